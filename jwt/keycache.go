package jwt

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"golang.org/x/sync/singleflight"
)

// DefaultKeyMaxAge is the default age after which cached keys are refreshed.
// Azure AD rotates the signing keys about every 24 hours.
const DefaultKeyMaxAge = 24 * time.Hour

// KeyResolver returns the verification key for kid
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (*Key, error)
}

// KeySetFetcher returns the current key set of the provider.
// DiscoveryClient implements the interface.
type KeySetFetcher interface {
	Fetch(ctx context.Context) (*KeySet, error)
}

// StaticKeySet is a resolver with a fixed set of keys,
// it never refreshes.
type StaticKeySet struct {
	keys *KeySet
}

// NewStaticKeySet returns StaticKeySet
func NewStaticKeySet(keys *KeySet) *StaticKeySet {
	return &StaticKeySet{keys: keys}
}

// Resolve returns the key for the given kid.
func (s *StaticKeySet) Resolve(_ context.Context, kid string) (*Key, error) {
	if key, ok := s.keys.Find(kid); ok {
		return key, nil
	}
	return nil, errors.Wrapf(ErrUnknownKeyID, "key not found: %q", kid)
}

// KeyCacheConfig controls KeyCache refresh policy
type KeyCacheConfig struct {
	// MaxAge is the age after which the cached keys are refreshed
	// before a lookup. DefaultKeyMaxAge if zero, never if negative.
	MaxAge time.Duration
	// MinRefreshInterval suppresses a refresh on unknown kid when the
	// keys were fetched less than the interval ago. Zero disables it.
	MinRefreshInterval time.Duration
}

// cacheEntry is an immutable snapshot, replaced as a whole
type cacheEntry struct {
	keys      *KeySet
	fetchedAt time.Time
}

// KeyCache holds the most recently fetched key set.
// Reads are lock free; a refresh replaces the snapshot atomically.
type KeyCache struct {
	fetcher KeySetFetcher
	cfg     KeyCacheConfig
	entry   atomic.Pointer[cacheEntry]

	// flight coalesces concurrent refreshes
	flight singleflight.Group

	// TimeNowFn allows to override the clock in tests
	TimeNowFn func() time.Time
}

// NewKeyCache returns KeyCache backed by the fetcher.
// The cache is empty until the first Resolve or Refresh.
func NewKeyCache(fetcher KeySetFetcher, cfg KeyCacheConfig) *KeyCache {
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultKeyMaxAge
	}
	return &KeyCache{
		fetcher:   fetcher,
		cfg:       cfg,
		TimeNowFn: time.Now,
	}
}

// Resolve returns the key for kid.
//
// A cached, fresh key is returned without a network call.
// Otherwise the key set is fetched once, and the lookup is retried
// against the new set. There is at most one fetch per call.
func (c *KeyCache) Resolve(ctx context.Context, kid string) (*Key, error) {
	if kid == "" {
		return nil, errors.Wrap(ErrUnknownKeyID, "missing kid")
	}

	e := c.entry.Load()
	if e != nil && c.isFresh(e) {
		if key, ok := e.keys.Find(kid); ok {
			return key, nil
		}
		if !c.mayRefresh(e) {
			return nil, errors.Wrapf(ErrUnknownKeyID, "key not found: %q, refresh suppressed", kid)
		}
	}

	if c.fetcher == nil {
		return nil, errors.Wrapf(ErrUnknownKeyID, "key not found: %q", kid)
	}

	// If the kid doesn't match, check for new keys from the remote,
	// as the provider may have rotated the signing keys.
	//
	// https://openid.net/specs/openid-connect-core-1_0.html#RotateSigKeys
	e, err := c.refresh(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to fetch JWKS")
	}
	if key, ok := e.keys.Find(kid); ok {
		return key, nil
	}
	return nil, errors.Wrapf(ErrUnknownKeyID, "key not found after refresh: %q", kid)
}

// Refresh fetches the key set and publishes it
func (c *KeyCache) Refresh(ctx context.Context) (*KeySet, error) {
	if c.fetcher == nil {
		return nil, errors.New("key cache has no fetcher")
	}
	e, err := c.refresh(ctx)
	if err != nil {
		return nil, err
	}
	return e.keys, nil
}

// Set publishes the keys, replacing the cached set.
// Use it to provide keys when the cache has no fetcher.
func (c *KeyCache) Set(keys *KeySet) {
	c.publish(&cacheEntry{keys: keys, fetchedAt: c.TimeNowFn()})
}

// Snapshot returns the cached keys and the time they were fetched,
// or nil if the cache is empty
func (c *KeyCache) Snapshot() (*KeySet, time.Time) {
	e := c.entry.Load()
	if e == nil {
		return nil, time.Time{}
	}
	return e.keys, e.fetchedAt
}

func (c *KeyCache) isFresh(e *cacheEntry) bool {
	if c.fetcher == nil || c.cfg.MaxAge < 0 {
		return true
	}
	return c.TimeNowFn().Sub(e.fetchedAt) <= c.cfg.MaxAge
}

func (c *KeyCache) mayRefresh(e *cacheEntry) bool {
	if c.cfg.MinRefreshInterval <= 0 {
		return true
	}
	return c.TimeNowFn().Sub(e.fetchedAt) >= c.cfg.MinRefreshInterval
}

// refresh fetches the key set, or joins a fetch already in flight.
// The fetch is not bound to the cancellation of the caller that started it,
// the fetcher's timeout bounds it; each caller waits on its own context.
func (c *KeyCache) refresh(ctx context.Context) (*cacheEntry, error) {
	ch := c.flight.DoChan("keys", func() (any, error) {
		keys, err := c.fetcher.Fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		return c.publish(&cacheEntry{keys: keys, fetchedAt: c.TimeNowFn()}), nil
	})

	select {
	case <-ctx.Done():
		return nil, mark(ErrNetwork, ctx.Err(), "key refresh canceled")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*cacheEntry), nil
	}
}

// publish swaps the snapshot, unless a newer one is already published.
// It returns the published snapshot.
func (c *KeyCache) publish(next *cacheEntry) *cacheEntry {
	for {
		cur := c.entry.Load()
		if cur != nil && cur.fetchedAt.After(next.fetchedAt) {
			return cur
		}
		if c.entry.CompareAndSwap(cur, next) {
			logger.KV(xlog.DEBUG, "status", "keys_published", "count", next.keys.Len())
			return next
		}
	}
}
