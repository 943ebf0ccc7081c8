// Package querycache is a keyed read-through cache for view queries.
//
// Identical keys share one in-flight fetch and one entry. Entries older than
// the staleness window are served immediately and refreshed once in the
// background. Failed fetches are retried and never cached. Writers drop
// whole kinds with Invalidate.
package querycache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Key identifies a cached query: the kind of data plus its canonical
// parameters.
type Key struct {
	Kind   string
	Params string
}

func (k Key) String() string { return k.Kind + ":" + k.Params }

// Result is what a caller sees for a key.
type Result[T any] struct {
	Data      T
	IsLoading bool
	IsError   bool
	Err       error
	Stale     bool
	FetchedAt time.Time
}

// FetchFunc loads the value for a key.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Observer receives cache events (hit, miss, stale, error, invalidate).
type Observer interface {
	CacheEvent(kind, event string)
}

// Publisher fans an invalidation out to other instances.
type Publisher interface {
	Publish(ctx context.Context, inv Invalidation) error
}

// Invalidation describes entries to drop. KindWide drops every key of Kind,
// otherwise only Kind:Params.
type Invalidation struct {
	Kind     string `json:"kind"`
	Params   string `json:"params,omitempty"`
	KindWide bool   `json:"kind_wide"`
}

type entry struct {
	key        Key
	value      any
	fetchedAt  time.Time
	refreshing bool
}

type loaded struct {
	value any
	at    time.Time
}

type options struct {
	staleAfter     time.Duration
	retries        int
	retryDelay     time.Duration
	retryIf        func(error) bool
	fetchTimeout   time.Duration
	publishTimeout time.Duration
	size           int
	observer       Observer
	log            *zap.Logger
	now            func() time.Time
}

func defaultOptions() options {
	return options{
		staleAfter:     5 * time.Minute,
		retries:        1,
		retryDelay:     time.Second,
		retryIf:        func(error) bool { return true },
		fetchTimeout:   10 * time.Second,
		publishTimeout: 2 * time.Second,
		size:           1024,
		log:            zap.NewNop(),
		now:            time.Now,
	}
}

// Option configures a Cache.
type Option func(*options)

// WithStaleAfter sets the staleness window.
func WithStaleAfter(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.staleAfter = d
		}
	}
}

// WithRetries sets how many times a failed fetch is retried.
func WithRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithRetryDelay sets the pause between attempts. Zero retries immediately.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.retryDelay = d
		}
	}
}

// WithRetryIf restricts retries to errors for which fn returns true.
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.retryIf = fn
		}
	}
}

// WithFetchTimeout bounds a single fetch including its retries.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithSize bounds the number of entries.
func WithSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.size = n
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Cache is safe for concurrent use.
type Cache struct {
	opts    options
	entries *lru.Cache[string, *entry]
	flight  singleflight.Group

	mu        sync.Mutex
	gens      map[string]uint64
	inflight  map[string]int
	publisher Publisher
}

func New(opts ...Option) *Cache {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	// lru.New only fails on a non-positive size
	entries, _ := lru.New[string, *entry](o.size)
	return &Cache{
		opts:     o,
		entries:  entries,
		gens:     make(map[string]uint64),
		inflight: make(map[string]int),
	}
}

// SetPublisher installs the fan-out used by Invalidate and InvalidateKey.
func (c *Cache) SetPublisher(p Publisher) {
	c.mu.Lock()
	c.publisher = p
	c.mu.Unlock()
}

// Get returns the cached value for key, fetching it on a miss. A stale hit
// is returned as is and triggers one background refresh.
func Get[T any](ctx context.Context, c *Cache, key Key, fetch FetchFunc[T]) Result[T] {
	load := func(ctx context.Context) (any, error) { return fetch(ctx) }

	if e, ok := c.lookup(key); ok {
		data, _ := e.value.(T)
		res := Result[T]{Data: data, FetchedAt: e.fetchedAt}
		if c.isStale(e) {
			res.Stale = true
			c.observe(key.Kind, "stale")
			c.refresh(key, load)
		} else {
			c.observe(key.Kind, "hit")
		}
		return res
	}

	c.observe(key.Kind, "miss")
	l, err := c.load(ctx, key, load)
	if err != nil {
		return Result[T]{IsError: true, Err: err}
	}
	data, _ := l.value.(T)
	return Result[T]{Data: data, FetchedAt: l.at}
}

// Peek reports the current state of key without fetching. IsLoading is set
// while a fetch for a key with no entry is in flight.
func Peek[T any](c *Cache, key Key) Result[T] {
	if e, ok := c.lookup(key); ok {
		data, _ := e.value.(T)
		return Result[T]{
			Data:      data,
			FetchedAt: e.fetchedAt,
			Stale:     c.isStale(e),
		}
	}
	c.mu.Lock()
	loading := c.inflight[key.String()] > 0
	c.mu.Unlock()
	return Result[T]{IsLoading: loading}
}

// Invalidate drops every entry of kind here and on other instances.
// Fetches for that kind already in flight are not stored.
func (c *Cache) Invalidate(kind string) {
	inv := Invalidation{Kind: kind, KindWide: true}
	c.Apply(inv)
	c.publish(inv)
}

// InvalidateKey drops a single entry here and on other instances.
func (c *Cache) InvalidateKey(key Key) {
	inv := Invalidation{Kind: key.Kind, Params: key.Params}
	c.Apply(inv)
	c.publish(inv)
}

// Apply drops entries locally without publishing.
func (c *Cache) Apply(inv Invalidation) {
	c.mu.Lock()
	c.gens[inv.Kind]++
	if inv.KindWide {
		for _, id := range c.entries.Keys() {
			if e, ok := c.entries.Peek(id); ok && e.key.Kind == inv.Kind {
				c.entries.Remove(id)
			}
		}
	} else {
		c.entries.Remove(Key{Kind: inv.Kind, Params: inv.Params}.String())
	}
	c.mu.Unlock()
	c.observe(inv.Kind, "invalidate")
}

// Len reports the number of cached entries.
func (c *Cache) Len() int { return c.entries.Len() }

func (c *Cache) lookup(key Key) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Get(key.String())
}

// load runs fetch once per key and generation. The fetch is detached from
// the caller's cancellation so other waiters are not affected by it.
func (c *Cache) load(ctx context.Context, key Key, fetch func(context.Context) (any, error)) (loaded, error) {
	id := key.String()

	c.mu.Lock()
	gen := c.gens[key.Kind]
	c.mu.Unlock()

	ch := c.flight.DoChan(id+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		// a flight that just finished may already have stored a fresh value
		if e, ok := c.entries.Peek(id); ok && !c.isStale(e) {
			return loaded{value: e.value, at: e.fetchedAt}, nil
		}

		c.trackInflight(id, 1)
		defer c.trackInflight(id, -1)

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.fetchTimeout)
		defer cancel()

		v, err := c.fetchWithRetry(fctx, fetch)
		if err != nil {
			c.observe(key.Kind, "error")
			c.opts.log.Warn("query fetch failed", zap.String("key", id), zap.Error(err))
			return nil, err
		}
		at := c.opts.now()
		c.store(key, gen, v, at)
		return loaded{value: v, at: at}, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return loaded{}, r.Err
		}
		return r.Val.(loaded), nil
	case <-ctx.Done():
		return loaded{}, ctx.Err()
	}
}

func (c *Cache) fetchWithRetry(ctx context.Context, fetch func(context.Context) (any, error)) (any, error) {
	for attempt := 0; ; attempt++ {
		v, err := fetch(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= c.opts.retries || !c.opts.retryIf(err) || ctx.Err() != nil {
			return nil, err
		}
		if c.opts.retryDelay > 0 {
			t := time.NewTimer(c.opts.retryDelay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return nil, errors.Join(err, ctx.Err())
			}
		}
	}
}

// store keeps v unless the kind was invalidated after the fetch started.
func (c *Cache) store(key Key, gen uint64, v any, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key.Kind] != gen {
		return
	}
	c.entries.Add(key.String(), &entry{key: key, value: v, fetchedAt: at})
}

func (c *Cache) refresh(key Key, fetch func(context.Context) (any, error)) {
	c.mu.Lock()
	e, ok := c.entries.Peek(key.String())
	if !ok || e.refreshing {
		c.mu.Unlock()
		return
	}
	e.refreshing = true
	c.mu.Unlock()

	go func() {
		if _, err := c.load(context.Background(), key, fetch); err != nil {
			// keep serving the stale value; allow another attempt later
			c.mu.Lock()
			e.refreshing = false
			c.mu.Unlock()
		}
	}()
}

func (c *Cache) isStale(e *entry) bool {
	return c.opts.now().Sub(e.fetchedAt) >= c.opts.staleAfter
}

func (c *Cache) trackInflight(id string, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[id] += delta
	if c.inflight[id] <= 0 {
		delete(c.inflight, id)
	}
}

func (c *Cache) publish(inv Invalidation) {
	c.mu.Lock()
	p := c.publisher
	c.mu.Unlock()
	if p == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.publishTimeout)
		defer cancel()
		if err := p.Publish(ctx, inv); err != nil {
			c.opts.log.Warn("publish invalidation failed", zap.String("kind", inv.Kind), zap.Error(err))
		}
	}()
}

func (c *Cache) observe(kind, event string) {
	if c.opts.observer != nil {
		c.opts.observer.CacheEvent(kind, event)
	}
}
