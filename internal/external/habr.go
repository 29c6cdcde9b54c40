package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"giftclub/internal/types"
)

// HabrConfig configures HabrClient.
type HabrConfig struct {
	BaseURL   string
	ClientID  string
	APIKey    types.SecretString
	UserAgent string

	NotifyTimeout  time.Duration
	ProfileTimeout time.Duration

	BadgeID    string
	BadgeTitle string
}

// HabrClient calls the Habr API on behalf of the club.
type HabrClient struct {
	base *BaseClient
	cfg  HabrConfig
}

// NewHabrClient creates a HabrClient. opts tune the underlying BaseClient.
func NewHabrClient(httpClient *http.Client, cfg HabrConfig, opts ...BaseClientOption) *HabrClient {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	if cfg.ProfileTimeout <= 0 {
		cfg.ProfileTimeout = time.Second
	}
	return &HabrClient{
		base: NewBaseClient(httpClient, "habr", cfg.UserAgent, opts...),
		cfg:  cfg,
	}
}

// SendNotification posts message to the notification feed of the user that
// issued token.
func (c *HabrClient) SendNotification(ctx context.Context, token types.SecretString, message string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.NotifyTimeout)
	defer cancel()

	form := url.Values{"message": {message}}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v2/me/notifications/list", form)
	if err != nil {
		return err
	}
	req.Header.Set("client", c.cfg.ClientID)
	req.Header.Set("token", token.Unmask())

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(resp, "send notification")
	}
	return nil
}

// GrantBadge awards the club badge to login. The platform treats a repeated
// grant as a no-op.
func (c *HabrClient) GrantBadge(ctx context.Context, login string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.NotifyTimeout)
	defer cancel()

	form := url.Values{"badge": {c.cfg.BadgeID}}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v2/users/"+url.PathEscape(login)+"/badges", form)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.cfg.APIKey.Unmask())

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(resp, "grant badge")
	}
	return nil
}

type habrCard struct {
	Alias      string `json:"alias"`
	AvatarURL  string `json:"avatarUrl"`
	IsReadonly bool   `json:"isReadonly"`
	ScoreStats struct {
		Score float64 `json:"score"`
	} `json:"scoreStats"`
}

type habrWhois struct {
	Badges []struct {
		Title string `json:"title"`
	} `json:"badgets"`
}

// FetchProfile reads the user's card and whois pages and combines them.
// A user unknown to the platform is reported as not_found_user.
func (c *HabrClient) FetchProfile(ctx context.Context, login string) (*types.Profile, error) {
	var card habrCard
	if err := c.getJSON(ctx, "/api/v2/users/"+url.PathEscape(login)+"/card", &card); err != nil {
		return nil, err
	}
	var whois habrWhois
	if err := c.getJSON(ctx, "/api/v2/users/"+url.PathEscape(login)+"/whois", &whois); err != nil {
		return nil, err
	}

	p := &types.Profile{
		Login:      card.Alias,
		AvatarURL:  card.AvatarURL,
		Karma:      card.ScoreStats.Score,
		IsReadonly: card.IsReadonly,
	}
	for _, b := range whois.Badges {
		if b.Title == c.cfg.BadgeTitle {
			p.HasBadge = true
			break
		}
	}
	return p, nil
}

func (c *HabrClient) getJSON(ctx context.Context, path string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProfileTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.cfg.APIKey.Unmask())

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return types.NewAppError(types.ErrCodeNotFoundUser, "platform user not found", nil).
			WithDetails(map[string]any{"path": path})
	case resp.StatusCode != http.StatusOK:
		return statusError(resp, "GET "+path)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("decode %s", path), err)
	}
	return nil
}

func (c *HabrClient) newRequest(ctx context.Context, method, path string, form url.Values) (*http.Request, error) {
	var req *http.Request
	var err error
	if form != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "build platform request", err)
	}
	return req, nil
}
