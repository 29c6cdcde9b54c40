package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestBuildInfoUserAgent(t *testing.T) {
	if got := (BuildInfo{Version: "dev", Commit: "none"}).UserAgent(); got != "giftclub/dev" {
		t.Errorf("UserAgent() = %q, want giftclub/dev", got)
	}
	if got := (BuildInfo{Version: "1.4.0", Commit: "abc1234"}).UserAgent(); got != "giftclub/1.4.0 (abc1234)" {
		t.Errorf("UserAgent() = %q", got)
	}
}

func TestBuildInfoLogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("started", "build", BuildInfo{Version: "1.4.0", Commit: "abc1234", BuildTime: "2026-10-01T00:00:00Z"})

	var record struct {
		Build map[string]string `json:"build"`
	}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decoding log line: %v", err)
	}
	want := map[string]string{"version": "1.4.0", "commit": "abc1234", "built": "2026-10-01T00:00:00Z"}
	for k, v := range want {
		if record.Build[k] != v {
			t.Errorf("build.%s = %q, want %q", k, record.Build[k], v)
		}
	}
}

func TestLoadConfigDefaultUserAgent(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Platform.UserAgent != "giftclub/dev" {
		t.Errorf("Platform.UserAgent = %q, want giftclub/dev", cfg.Platform.UserAgent)
	}

	t.Setenv("HABR_USER_AGENT", "giftclub-ops/1")
	cfg, err = LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Platform.UserAgent != "giftclub-ops/1" {
		t.Errorf("Platform.UserAgent = %q, want override", cfg.Platform.UserAgent)
	}
}
