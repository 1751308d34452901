// internal/config/manager.go
//
// Settings lifecycle: memoized builds and the process-wide "current" slot.
//
// Context
// -------
// `Manager.Settings(ctx, args)` resolves settings for a set of init
// arguments and memoizes the result in an LRU keyed by the canonical JSON
// of args.  Concurrent callers with identical args share one build through
// singleflight, the same barrier the tenant cache used for site loads.
//
// The current slot holds the Settings value the CLI works with.  `Current`
// builds it lazily with no init arguments; `InitCurrent` builds with
// explicit arguments; `SetCurrent` installs a caller-built value.
//
// `Invalidate` clears both layers and bumps a generation counter so a
// build that started before the invalidation is returned to its caller
// but never cached.  Wire it to `configyml.Store.OnSave`.
//
// Notes
// -----
//   - Lock order: Manager.mu, then anything the Resolver takes (the store
//     mutex).  Store save hooks run after the store releases its lock, so
//     a hook calling Invalidate cannot deadlock.
//   - A failed build is never cached.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/tphub/internal/cache"
)

// DefaultMemoSize bounds the number of memoized Settings values.
const DefaultMemoSize = 32

// SourceFunc returns the sources for a build with init arguments args.
type SourceFunc func(args map[string]any) []Source

// Manager owns memoized and current settings.  Safe for concurrent use.
type Manager struct {
	sources SourceFunc
	opts    []ResolverOption
	sfg     singleflight.Group

	mu      sync.Mutex
	memo    *cache.LRU[string, *Settings]
	gen     uint64
	current *Settings
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithResolverOptions passes opts to every Resolver the Manager builds.
func WithResolverOptions(opts ...ResolverOption) ManagerOption {
	return func(m *Manager) { m.opts = append(m.opts, opts...) }
}

// WithMemoSize overrides DefaultMemoSize.
func WithMemoSize(n int) ManagerOption {
	return func(m *Manager) { m.memo = cache.New[string, *Settings](n) }
}

// NewManager returns a Manager building from sources.
func NewManager(sources SourceFunc, opts ...ManagerOption) *Manager {
	m := &Manager{sources: sources, memo: cache.New[string, *Settings](DefaultMemoSize)}
	for _, fn := range opts {
		fn(m)
	}
	return m
}

// NewProjectManager wires the standard source chain: init args, process
// environment, dotenvPath, and the hub section of store.
func NewProjectManager(store DocumentReader, dotenvPath string, opts ...ManagerOption) *Manager {
	return NewManager(func(args map[string]any) []Source {
		return DefaultSources(args, dotenvPath, store)
	}, opts...)
}

/*──────────────────────────── memo layer ──────────────────────────────────*/

// Settings returns memoized settings for args, building them on a miss.
func (m *Manager) Settings(ctx context.Context, args map[string]any) (*Settings, error) {
	key, err := memoKey(args)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if s, ok := m.memo.Get(key); ok {
		m.mu.Unlock()
		return s, nil
	}
	gen := m.gen
	m.mu.Unlock()

	v, err, shared := m.sfg.Do(fmt.Sprintf("%d/%s", gen, key), func() (any, error) {
		m.mu.Lock()
		if s, ok := m.memo.Get(key); ok {
			m.mu.Unlock()
			return s, nil
		}
		m.mu.Unlock()

		s, err := NewResolver(m.sources(args), m.opts...).Resolve(ctx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		if m.gen == gen {
			m.memo.Add(key, s)
		}
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	zap.S().Debugw("settings served", "key", key, "shared", shared)
	return v.(*Settings), nil
}

// ClearCache drops every memoized value.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	m.memo.Purge()
	m.gen++
	m.mu.Unlock()
}

// memoKey is the canonical JSON of args.  encoding/json sorts map keys, so
// equal argument maps produce equal keys.
func memoKey(args map[string]any) (string, error) {
	if len(args) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("settings init arguments are not serializable: %w", err)
	}
	return string(raw), nil
}

/*──────────────────────────── current slot ────────────────────────────────*/

// Current returns the current settings, building them with no init
// arguments on first use.  A build overtaken by Invalidate is returned to
// the caller but not installed.
func (m *Manager) Current(ctx context.Context) (*Settings, error) {
	m.mu.Lock()
	if s := m.current; s != nil {
		m.mu.Unlock()
		return s, nil
	}
	gen := m.gen
	m.mu.Unlock()

	s, err := m.Settings(ctx, nil)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		zap.S().Debugw("settings invalidated during build, not installed as current")
		return s, nil
	}
	if m.current == nil {
		m.current = s
	}
	return m.current, nil
}

// SetCurrent installs s as the current settings.
func (m *Manager) SetCurrent(s *Settings) {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
}

// InitCurrent builds settings with args and installs them as current.
func (m *Manager) InitCurrent(ctx context.Context, args map[string]any) (*Settings, error) {
	s, err := m.Settings(ctx, args)
	if err != nil {
		return nil, err
	}
	m.SetCurrent(s)
	return s, nil
}

// ClearCurrent empties the current slot.
func (m *Manager) ClearCurrent() { m.SetCurrent(nil) }

// Invalidate clears the memo layer and the current slot.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.memo.Purge()
	m.gen++
	m.current = nil
	m.mu.Unlock()
	zap.S().Debugw("settings caches invalidated")
}
