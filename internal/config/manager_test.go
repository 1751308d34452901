package config

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/tphub/internal/configyml"
)

// countingSource counts loads and serves a fixed map.
type countingSource struct {
	loads *atomic.Int32
	data  map[string]any
}

func (countingSource) Name() string { return "counting" }

func (c countingSource) Load(context.Context) (map[string]any, error) {
	c.loads.Add(1)
	return c.data, nil
}

// gatedSource blocks its first load until released, after reading its data.
type gatedSource struct {
	data    *atomic.Pointer[map[string]any]
	once    *sync.Once
	started chan struct{}
	release chan struct{}
}

func (gatedSource) Name() string { return "gated" }

func (g gatedSource) Load(context.Context) (map[string]any, error) {
	data := *g.data.Load()
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return data, nil
}

func newCountingManager(base map[string]any) (*Manager, *atomic.Int32) {
	var loads atomic.Int32
	m := NewManager(func(args map[string]any) []Source {
		return []Source{InitSource(args), countingSource{loads: &loads, data: base}}
	})
	return m, &loads
}

func TestManager_Settings(t *testing.T) {
	ctx := context.Background()

	t.Run("Should memoize per distinct argument set", func(t *testing.T) {
		m, loads := newCountingManager(validArgs())

		a, err := m.Settings(ctx, map[string]any{"admin_cert_resolver": "staging"})
		require.NoError(t, err)
		b, err := m.Settings(ctx, map[string]any{"admin_cert_resolver": "staging"})
		require.NoError(t, err)
		assert.Same(t, a, b)
		assert.Equal(t, int32(1), loads.Load())

		c, err := m.Settings(ctx, nil)
		require.NoError(t, err)
		assert.NotSame(t, a, c)
		assert.Equal(t, "prod", c.AdminCertResolver)
		assert.Equal(t, int32(2), loads.Load())
	})

	t.Run("Should rebuild after ClearCache", func(t *testing.T) {
		m, loads := newCountingManager(validArgs())
		a, err := m.Settings(ctx, nil)
		require.NoError(t, err)
		m.ClearCache()
		b, err := m.Settings(ctx, nil)
		require.NoError(t, err)
		assert.NotSame(t, a, b)
		assert.Equal(t, int32(2), loads.Load())
	})

	t.Run("Should not cache failures", func(t *testing.T) {
		m, loads := newCountingManager(map[string]any{})
		_, err := m.Settings(ctx, nil)
		require.Error(t, err)
		_, err = m.Settings(ctx, nil)
		require.Error(t, err)
		assert.Equal(t, int32(2), loads.Load())
	})

	t.Run("Should build once for concurrent identical calls", func(t *testing.T) {
		m, loads := newCountingManager(validArgs())
		var wg sync.WaitGroup
		results := make([]*Settings, 16)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s, err := m.Settings(ctx, map[string]any{"default_cert_resolver": "prod"})
				assert.NoError(t, err)
				results[i] = s
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), loads.Load())
		for _, s := range results[1:] {
			assert.Same(t, results[0], s)
		}
	})

	t.Run("Should reject arguments that cannot be serialized", func(t *testing.T) {
		m, _ := newCountingManager(validArgs())
		_, err := m.Settings(ctx, map[string]any{"x": func() {}})
		assert.Error(t, err)
	})
}

func TestMemoKey_IgnoresInsertionOrder(t *testing.T) {
	a := map[string]any{}
	a["b"] = 1
	a["a"] = map[string]any{"y": 2, "x": 1}
	b := map[string]any{"a": map[string]any{"x": 1, "y": 2}, "b": 1}

	ka, err := memoKey(a)
	require.NoError(t, err)
	kb, err := memoKey(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)

	kn, _ := memoKey(nil)
	ke, _ := memoKey(map[string]any{})
	assert.Equal(t, kn, ke)
}

func TestManager_CurrentSlot(t *testing.T) {
	ctx := context.Background()
	m, loads := newCountingManager(validArgs())

	cur, err := m.Current(ctx)
	require.NoError(t, err)
	again, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Same(t, cur, again)
	assert.Equal(t, int32(1), loads.Load())

	custom := &Settings{ParentDNSDomain: "custom.example.com"}
	m.SetCurrent(custom)
	got, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Same(t, custom, got)

	initd, err := m.InitCurrent(ctx, map[string]any{"parent_dns_domain": "init.example.com"})
	require.NoError(t, err)
	got, _ = m.Current(ctx)
	assert.Same(t, initd, got)
	assert.Equal(t, "portainer.init.example.com", got.PortainerDNSName)

	m.ClearCurrent()
	got, err = m.Current(ctx)
	require.NoError(t, err)
	assert.Same(t, cur, got, "memoized no-arg build is reused")

	m.Invalidate()
	got, err = m.Current(ctx)
	require.NoError(t, err)
	assert.NotSame(t, cur, got)
}

func TestManager_CurrentNotInstalledWhenInvalidatedMidBuild(t *testing.T) {
	ctx := context.Background()
	var data atomic.Pointer[map[string]any]
	old := with(validArgs(), "parent_dns_domain", "old.example.com")
	data.Store(&old)

	src := gatedSource{data: &data, once: &sync.Once{}, started: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(func(args map[string]any) []Source {
		return []Source{InitSource(args), src}
	})

	done := make(chan *Settings, 1)
	go func() {
		s, err := m.Current(ctx)
		assert.NoError(t, err)
		done <- s
	}()

	<-src.started
	updated := with(validArgs(), "parent_dns_domain", "new.example.com")
	data.Store(&updated)
	m.Invalidate()
	close(src.release)

	inFlight := <-done
	assert.Equal(t, "old.example.com", inFlight.ParentDNSDomain)

	cur, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new.example.com", cur.ParentDNSDomain)
	again, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Same(t, cur, again)
}

func TestManager_InvalidatedByStoreSave(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/hub", 0o755))
	store := configyml.New("/hub/"+configyml.FileName, configyml.WithFs(fsys), configyml.WithTemplate(GenerateYAML))

	for k, v := range validArgs() {
		require.NoError(t, store.SetProperty(HubSection+"."+k, v))
	}

	m := NewProjectManager(store, "")
	store.OnSave(m.Invalidate)
	ctx := context.Background()

	before, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ddns.example.com", before.StablePublicDNSName)

	require.NoError(t, store.SetProperty("hub.stable_public_dns_name", "home"))

	after, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "home.example.com", after.StablePublicDNSName)
}
