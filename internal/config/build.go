package config

import "log/slog"

// Set at link time:
//
//	go build -ldflags "-X giftclub/internal/config.version=1.2.3 \
//	    -X giftclub/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X giftclub/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// UserAgent identifies this build to the Habr API when HABR_USER_AGENT is
// not set.
func (b BuildInfo) UserAgent() string {
	if b.Commit == "" || b.Commit == "none" {
		return "giftclub/" + b.Version
	}
	return "giftclub/" + b.Version + " (" + b.Commit + ")"
}

// LogValue renders the build as a single "build" group in log records.
func (b BuildInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", b.Version),
		slog.String("commit", b.Commit),
		slog.String("built", b.BuildTime),
	)
}
