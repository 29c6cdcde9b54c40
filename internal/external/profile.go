package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"giftclub/internal/types"
)

// ProfileFetcher loads a platform profile. *HabrClient implements it.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, login string) (*types.Profile, error)
}

// ProfileCache stores profiles for a short time. A miss is (nil, nil).
type ProfileCache interface {
	Get(ctx context.Context, login string) (*types.Profile, error)
	Set(ctx context.Context, login string, p *types.Profile, ttl time.Duration) error
}

// ProfileService serves platform profiles through a cache.
type ProfileService struct {
	fetcher ProfileFetcher
	cache   ProfileCache
	ttl     time.Duration
	logger  *slog.Logger
}

// NewProfileService creates a ProfileService.
func NewProfileService(fetcher ProfileFetcher, cache ProfileCache, ttl time.Duration, logger *slog.Logger) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{fetcher: fetcher, cache: cache, ttl: ttl, logger: logger}
}

// Profile returns the cached profile for login or fetches it. A cache
// failure only costs a fetch. Fetch failures other than an unknown user are
// reported as upstream_unavailable.
func (s *ProfileService) Profile(ctx context.Context, login string) (*types.Profile, error) {
	if p, err := s.cache.Get(ctx, login); err != nil {
		s.logger.WarnContext(ctx, "profile cache read failed", "login", login, "error", err)
	} else if p != nil {
		return p, nil
	}

	start := time.Now()
	p, err := s.fetcher.FetchProfile(ctx, login)
	if err != nil {
		if types.HasCode(err, types.ErrCodeNotFoundUser) {
			return nil, err
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "platform profile unavailable", err).
			WithDetails(map[string]any{"login": login})
	}
	s.logger.InfoContext(ctx, "platform profile fetched", "login", login, "duration_ms", time.Since(start).Milliseconds())

	if err := s.cache.Set(ctx, login, p, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "profile cache write failed", "login", login, "error", err)
	}
	return p, nil
}

func profileKey(login string) string { return "profile:" + login }

// RedisProfileCache keeps profiles in Redis as JSON.
type RedisProfileCache struct {
	client redis.UniversalClient
}

// NewRedisProfileCache creates a RedisProfileCache.
func NewRedisProfileCache(client redis.UniversalClient) *RedisProfileCache {
	return &RedisProfileCache{client: client}
}

// Get implements ProfileCache.
func (c *RedisProfileCache) Get(ctx context.Context, login string) (*types.Profile, error) {
	raw, err := c.client.Get(ctx, profileKey(login)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get profile: %w", err)
	}
	var p types.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode cached profile: %w", err)
	}
	return &p, nil
}

// Set implements ProfileCache.
func (c *RedisProfileCache) Set(ctx context.Context, login string, p *types.Profile, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := c.client.Set(ctx, profileKey(login), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set profile: %w", err)
	}
	return nil
}

// MemoryProfileCache keeps profiles in process memory.
type MemoryProfileCache struct {
	cache *gocache.Cache
}

// NewMemoryProfileCache creates a MemoryProfileCache that sweeps expired
// entries every cleanup interval.
func NewMemoryProfileCache(cleanup time.Duration) *MemoryProfileCache {
	return &MemoryProfileCache{cache: gocache.New(gocache.NoExpiration, cleanup)}
}

// Get implements ProfileCache.
func (c *MemoryProfileCache) Get(_ context.Context, login string) (*types.Profile, error) {
	v, ok := c.cache.Get(profileKey(login))
	if !ok {
		return nil, nil
	}
	p := v.(types.Profile)
	return &p, nil
}

// Set implements ProfileCache.
func (c *MemoryProfileCache) Set(_ context.Context, login string, p *types.Profile, ttl time.Duration) error {
	c.cache.Set(profileKey(login), *p, ttl)
	return nil
}
