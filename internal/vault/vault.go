// internal/vault/vault.go
//
// Vault client wrapper for hub secret references.
//
// Context
// -------
//   - Secret settings (portainer_agent_secret, traefik_dashboard_htpasswd)
//     may hold `vault:<mount>/<path>#<key>` instead of the secret itself.
//     The settings resolver hands the part after `vault:` to
//     `Client.ResolveSecret`.
//   - Wraps the HashiCorp Vault Go SDK with KV-v2 helpers and a per-key
//     TTL cache, so one `hub` run reads each secret once.
//   - The hub is a short-lived CLI; tokens are used as given and never
//     renewed.
//
// Public workflow
// ---------------
//  1. cli, err := vault.FromEnv()                  // nil when VAULT_ADDR is unset.
//  2. pw,  err := cli.GetKV(ctx, path, key, ttl)   // or ResolveSecret(ctx, ref).
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// DefaultTTL is how long ResolveSecret caches a value.
const DefaultTTL = 5 * time.Minute

// ErrBadReference is returned for a reference without a path or key.
var ErrBadReference = errors.New("vault reference must look like <mount>/<path>#<key>")

//
// SECTION 1.  Public façade
//

// Client is safe for concurrent use.  Zero value is invalid.
type Client struct {
	api *vault.Client
	ttl time.Duration

	cacheMu sync.RWMutex
	cache   map[string]cached // canonical path#key → value + expiry.
}

type cached struct {
	val string
	exp time.Time
}

// FromEnv builds a client from VAULT_ADDR and VAULT_TOKEN.  It returns nil
// and no error when VAULT_ADDR is unset, which disables vault references.
func FromEnv() (*Client, error) {
	addr := os.Getenv(vault.EnvVaultAddress)
	if addr == "" {
		return nil, nil
	}
	return New(addr, os.Getenv(vault.EnvVaultToken))
}

// New constructs a client for the server at addr.
func New(addr, token string) (*Client, error) {
	cfg := vault.DefaultConfig()
	if cfg.Error != nil {
		return nil, fmt.Errorf("vault env cfg: %w", cfg.Error)
	}
	cfg.Address = addr

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if token != "" {
		apiCli.SetToken(token)
	}

	zap.S().Debugw("vault client ready", "addr", addr)
	return &Client{
		api:   apiCli,
		ttl:   DefaultTTL,
		cache: make(map[string]cached),
	}, nil
}

// ResolveSecret reads `<mount>/<path>#<key>` and caches it for DefaultTTL.
func (c *Client) ResolveSecret(ctx context.Context, ref string) (string, error) {
	path, key, ok := strings.Cut(ref, "#")
	if !ok || path == "" || key == "" || !strings.Contains(path, "/") {
		return "", fmt.Errorf("%q: %w", ref, ErrBadReference)
	}
	return c.GetKV(ctx, path, key, c.ttl)
}

// GetKV fetches a single key from a KV-v2 secret.  If ttl > 0 the result is
// cached for that duration.  Subsequent callers within the TTL receive the
// cached copy.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("secret path and key must be non-empty")
	}

	canonical := secretPath + "#" + key

	if ttl > 0 {
		c.cacheMu.RLock()
		if cv, ok := c.cache[canonical]; ok && time.Now().Before(cv.exp) {
			c.cacheMu.RUnlock()
			return cv.val, nil
		}
		c.cacheMu.RUnlock()
	}

	mount, rel := splitMount(secretPath)
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		zap.S().Errorw("vault read failed", "path", secretPath, "err", err)
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}

	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", secretPath, key)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[canonical] = cached{val: sval, exp: time.Now().Add(ttl)}
		c.cacheMu.Unlock()
	}

	zap.S().Debugw("vault secret read", "path", secretPath, "key", key)
	return sval, nil
}

//
// SECTION 2.  Helpers
//

func splitMount(p string) (mount, rel string) {
	if p == "" {
		return "", ""
	}
	parts := strings.SplitN(p, "/", 2)
	mount = parts[0]
	if len(parts) == 2 {
		rel = parts[1]
	}
	return
}
