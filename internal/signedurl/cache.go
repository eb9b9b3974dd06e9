// Package signedurl caches short-lived signed URLs for stored media and keeps
// them fresh in the background.
package signedurl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"clipstudio/internal/domain"
	"clipstudio/internal/infra"
)

const (
	DefaultSweepInterval      = 3 * time.Minute
	DefaultSignTimeout        = 10 * time.Second
	DefaultIdleTimeout        = time.Hour
	DefaultPreloadConcurrency = 8
)

// Signer produces a URL granting temporary read access to bucket/path.
type Signer interface {
	Sign(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc func(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)

func (f SignerFunc) Sign(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	return f(ctx, bucket, path, ttl)
}

// Policy sets how long URLs for a bucket live and how early they are
// refreshed before expiry.
type Policy struct {
	TTL          time.Duration
	SafetyMargin time.Duration
}

// ReferencePolicy suits long-lived reference media.
func ReferencePolicy() Policy {
	return Policy{TTL: time.Hour, SafetyMargin: 10 * time.Minute}
}

// WorkspacePolicy suits working assets that change often.
func WorkspacePolicy() Policy {
	return Policy{TTL: 15 * time.Minute, SafetyMargin: 2 * time.Minute}
}

func (p Policy) normalized(fallback Policy) Policy {
	if p.TTL <= 0 {
		p = fallback
	}
	if p.SafetyMargin < 0 {
		p.SafetyMargin = 0
	}
	if p.SafetyMargin >= p.TTL {
		p.SafetyMargin = p.TTL / 2
	}
	return p
}

// Options configures a Cache. Zero values fall back to defaults.
type Options struct {
	Policies           map[string]Policy
	DefaultPolicy      Policy
	SweepInterval      time.Duration
	SignTimeout        time.Duration
	IdleTimeout        time.Duration
	PreloadConcurrency int
	Now                func() time.Time
	Logger             *infra.Logger
}

// Entry is a snapshot of one cached URL.
type Entry struct {
	Bucket     string    `json:"bucket"`
	Path       string    `json:"path"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
	Refreshing bool      `json:"refreshing"`
}

type entry struct {
	Entry
	lastUsed time.Time
}

// Cache is safe for concurrent use. Signing of a given (bucket, path) is
// single-flight: concurrent misses share one Sign call.
type Cache struct {
	signer        Signer
	policies      map[string]Policy
	defaultPolicy Policy
	sweepInterval time.Duration
	signTimeout   time.Duration
	idleTimeout   time.Duration
	preloadLimit  int
	now           func() time.Time
	logger        *infra.Logger

	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
	bg      sync.WaitGroup
}

// New constructs a cache over signer.
func New(signer Signer, opts Options) (*Cache, error) {
	if signer == nil {
		return nil, errors.New("signedurl: signer is required")
	}
	defaultPolicy := opts.DefaultPolicy.normalized(WorkspacePolicy())
	policies := make(map[string]Policy, len(opts.Policies))
	for bucket, p := range opts.Policies {
		bucket = strings.TrimSpace(bucket)
		if bucket == "" {
			continue
		}
		policies[bucket] = p.normalized(defaultPolicy)
	}
	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}
	signTimeout := opts.SignTimeout
	if signTimeout <= 0 {
		signTimeout = DefaultSignTimeout
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	limit := opts.PreloadConcurrency
	if limit <= 0 {
		limit = DefaultPreloadConcurrency
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Cache{
		signer:        signer,
		policies:      policies,
		defaultPolicy: defaultPolicy,
		sweepInterval: sweep,
		signTimeout:   signTimeout,
		idleTimeout:   idle,
		preloadLimit:  limit,
		now:           now,
		logger:        logger,
		entries:       make(map[string]*entry),
	}, nil
}

// PolicyFor returns the policy applied to bucket.
func (c *Cache) PolicyFor(bucket string) Policy {
	if p, ok := c.policies[bucket]; ok {
		return p
	}
	return c.defaultPolicy
}

func cacheKey(bucket, path string) string {
	return bucket + "\x00" + path
}

func normalize(bucket, path string) (string, string, error) {
	bucket = strings.TrimSpace(bucket)
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if bucket == "" || path == "" {
		return "", "", fmt.Errorf("%w: bucket and path are required", domain.ErrSigningFailed)
	}
	return bucket, path, nil
}

// Get returns a usable signed URL for bucket/path. A fresh cached URL is
// returned as is. A cached URL inside its safety margin is returned
// immediately while a refresh runs in the background. Missing or expired
// entries are signed synchronously.
func (c *Cache) Get(ctx context.Context, bucket, path string) (string, error) {
	bucket, path, err := normalize(bucket, path)
	if err != nil {
		return "", err
	}
	key := cacheKey(bucket, path)
	policy := c.PolicyFor(bucket)
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Before(e.ExpiresAt) {
		e.lastUsed = now
		url := e.URL
		inMargin := !now.Before(e.ExpiresAt.Add(-policy.SafetyMargin))
		startRefresh := inMargin && !e.Refreshing
		if startRefresh {
			e.Refreshing = true
		}
		c.mu.Unlock()
		if startRefresh {
			c.refreshInBackground(ctx, bucket, path)
		}
		return url, nil
	}
	c.mu.Unlock()

	return c.sign(ctx, bucket, path)
}

// Refresh re-signs bucket/path regardless of freshness.
func (c *Cache) Refresh(ctx context.Context, bucket, path string) (string, error) {
	bucket, path, err := normalize(bucket, path)
	if err != nil {
		return "", err
	}
	return c.sign(ctx, bucket, path)
}

// Entry returns a snapshot of the cached entry for bucket/path.
func (c *Cache) Entry(bucket, path string) (Entry, bool) {
	bucket, path, err := normalize(bucket, path)
	if err != nil {
		return Entry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(bucket, path)]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Preload signs paths of bucket concurrently and returns how many are now
// cached. Individual failures are logged, not returned.
func (c *Cache) Preload(ctx context.Context, bucket string, paths []string) (int, error) {
	var loaded atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(c.preloadLimit)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			break
		}
		p := p
		g.Go(func() error {
			if _, err := c.Get(ctx, bucket, p); err != nil {
				c.logger.Warn().Err(err).Str("bucket", bucket).Str("path", p).Msg("signedurl: preload failed")
				return nil
			}
			loaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(loaded.Load()), ctx.Err()
}

// Run sweeps the cache every SweepInterval until ctx is done.
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.bg.Wait()
			return ctx.Err()
		case <-ticker.C:
			refreshed, idle := c.Sweep(ctx)
			if refreshed > 0 || idle > 0 {
				c.logger.Debug().Int("refreshed", refreshed).Int("idle", idle).Msg("signedurl: sweep")
			}
		}
	}
}

// Sweep refreshes entries that would enter their safety margin before the
// next sweep. Entries nobody has read within IdleTimeout are left as they are
// and counted in idle; entries only ever leave the cache by overwrite.
func (c *Cache) Sweep(ctx context.Context) (refreshed, idle int) {
	now := c.now()
	horizon := now.Add(c.sweepInterval)

	type target struct{ bucket, path string }
	var due []target

	c.mu.Lock()
	for _, e := range c.entries {
		if now.Sub(e.lastUsed) > c.idleTimeout {
			idle++
			continue
		}
		if e.Refreshing {
			continue
		}
		policy := c.PolicyFor(e.Bucket)
		if !horizon.Before(e.ExpiresAt.Add(-policy.SafetyMargin)) {
			e.Refreshing = true
			due = append(due, target{e.Bucket, e.Path})
		}
	}
	c.mu.Unlock()

	var ok atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(c.preloadLimit)
	for _, t := range due {
		t := t
		g.Go(func() error {
			if _, err := c.sign(ctx, t.bucket, t.path); err != nil {
				c.logger.Warn().Err(err).Str("bucket", t.bucket).Str("path", t.path).Msg("signedurl: sweep refresh failed")
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), idle
}

// Wait blocks until in-flight background refreshes finish.
func (c *Cache) Wait() {
	c.bg.Wait()
}

func (c *Cache) refreshInBackground(ctx context.Context, bucket, path string) {
	ctx = context.WithoutCancel(ctx)
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		if _, err := c.sign(ctx, bucket, path); err != nil {
			c.logger.Warn().Err(err).Str("bucket", bucket).Str("path", path).Msg("signedurl: background refresh failed")
		}
	}()
}

// sign runs one shared Sign call per key. Callers whose ctx ends early stop
// waiting but the shared call completes and populates the cache.
func (c *Cache) sign(ctx context.Context, bucket, path string) (string, error) {
	key := cacheKey(bucket, path)
	signCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.signAndStore(signCtx, bucket, path)
	})
	select {
	case <-ctx.Done():
		if url, ok := c.stale(key); ok {
			return url, nil
		}
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if url, ok := c.stale(key); ok {
				c.logger.Warn().Err(res.Err).Str("bucket", bucket).Str("path", path).Msg("signedurl: serving stale url")
				return url, nil
			}
			return "", fmt.Errorf("%w: %s/%s: %w", domain.ErrSigningFailed, bucket, path, res.Err)
		}
		return res.Val.(string), nil
	}
}

func (c *Cache) signAndStore(ctx context.Context, bucket, path string) (string, error) {
	key := cacheKey(bucket, path)
	policy := c.PolicyFor(bucket)
	ctx, cancel := context.WithTimeout(ctx, c.signTimeout)
	defer cancel()

	issuedAt := c.now()
	url, err := c.signer.Sign(ctx, bucket, path, policy.TTL)
	if err == nil && strings.TrimSpace(url) == "" {
		err = errors.New("signer returned empty url")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.entries[key]
	if err != nil {
		if existing != nil {
			existing.Refreshing = false
		}
		return "", err
	}
	lastUsed := issuedAt
	if existing != nil && existing.lastUsed.After(lastUsed) {
		lastUsed = existing.lastUsed
	}
	c.entries[key] = &entry{
		Entry: Entry{
			Bucket:    bucket,
			Path:      path,
			URL:       url,
			ExpiresAt: issuedAt.Add(policy.TTL),
		},
		lastUsed: lastUsed,
	}
	return url, nil
}

// stale returns the cached URL for key whatever its freshness.
func (c *Cache) stale(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.URL == "" {
		return "", false
	}
	return e.URL, true
}
