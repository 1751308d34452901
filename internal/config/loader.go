// internal/config/loader.go
//
// Layered settings resolver.
//
/*
Context
--------
`Resolver.Resolve()` builds one immutable `Settings` value from an ordered
list of sources (highest precedence first, see sources.go):

  1. Every source is loaded once up front.
  2. `Schema()` is walked in declaration order.  For each field the first
     source holding a non-nil value wins; nil means "not defined here" and
     falls through to the next source.
  3. A raw `vault:<path>#<key>` value on a secret field is swapped for the
     secret read through the `SecretResolver`.
  4. The field's resolve function validates the raw value, or derives a
     default from fields already resolved.  The first failure aborts with a
     `*ConfigurationError`.

The resolved value map is decoded into `Settings` (mapstructure, `koanf`
tags) and validated once more with validator/v10.

Instrumentation
---------------
  • DEBUG spans: source loads, per-field origin.
  • ERROR spans: source load, field, decode, and validation failures.
  • INFO span: final “settings resolved” with key highlights.
  • Logs use the global *sugared* logger (`zap.S()`) so errors surface
    even before the file logger is installed.

Notes
-----
  • A source error is not a ConfigurationError; it is wrapped and returned
    as-is so the caller can tell "bad file" from "bad setting".
  • Oxford commas, two spaces after periods.
*/
package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"github.com/yanizio/tphub/internal/metrics"
)

// SecretRefPrefix marks a secret field value that must be read from Vault.
const SecretRefPrefix = "vault:"

// SecretResolver reads a secret named by a `vault:` reference (without the
// prefix).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// Resolver folds sources over the schema.  Safe for concurrent use when its
// sources are.
type Resolver struct {
	sources []Source
	fields  []Field
	secrets SecretResolver
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSecrets enables `vault:` references on secret fields.
func WithSecrets(sr SecretResolver) ResolverOption {
	return func(r *Resolver) { r.secrets = sr }
}

// NewResolver returns a Resolver over sources, highest precedence first.
func NewResolver(sources []Source, opts ...ResolverOption) *Resolver {
	r := &Resolver{sources: sources, fields: Schema()}
	for _, fn := range opts {
		fn(r)
	}
	return r
}

/*─────────────────────────────── resolve ──────────────────────────────────*/

// Resolve builds a validated Settings value.
func (r *Resolver) Resolve(ctx context.Context) (*Settings, error) {
	s, err := r.resolve(ctx)
	if err != nil {
		metrics.SettingsResolveErrorsTotal.Inc()
		return nil, err
	}
	metrics.SettingsResolveTotal.Inc()
	zap.S().Infow("settings resolved",
		"parent_dns_domain", s.ParentDNSDomain,
		"admin_parent_dns_domain", s.AdminParentDNSDomain,
		"default_cert_resolver", s.DefaultCertResolver,
	)
	return s, nil
}

func (r *Resolver) resolve(ctx context.Context) (*Settings, error) {
	layers := make([]map[string]any, len(r.sources))
	for i, src := range r.sources {
		data, err := src.Load(ctx)
		if err != nil {
			zap.S().Errorw("settings source load failed", "source", src.Name(), "err", err)
			return nil, fmt.Errorf("load %s settings: %w", src.Name(), err)
		}
		zap.S().Debugw("settings source loaded", "source", src.Name(), "keys", len(data))
		layers[i] = data
	}

	values := make(map[string]any, len(r.fields))
	prior := Values{m: values}
	for _, f := range r.fields {
		raw, origin := r.lookup(layers, f.Name)
		zap.S().Debugw("resolving setting", "field", f.Name, "source", origin)

		if f.Secret {
			var err error
			if raw, err = r.dereference(ctx, f, raw); err != nil {
				zap.S().Errorw("settings secret lookup failed", "field", f.Name, "err", err)
				return nil, err
			}
		}

		val, err := f.Resolve(raw, prior)
		if err != nil {
			zap.S().Errorw("settings field invalid", "field", f.Name, "source", origin, "err", err)
			return nil, err
		}
		values[f.Name] = val
	}

	var s Settings
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "koanf",
		Result:      &s,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(values); err != nil {
		zap.S().Errorw("settings decode failed", "err", err)
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := validateStruct(&s); err != nil {
		zap.S().Errorw("settings validation failed", "err", err)
		return nil, err
	}
	return &s, nil
}

func (r *Resolver) lookup(layers []map[string]any, name string) (any, string) {
	for i, data := range layers {
		if v, ok := data[name]; ok && v != nil {
			return v, r.sources[i].Name()
		}
	}
	return nil, "default"
}

func (r *Resolver) dereference(ctx context.Context, f Field, raw any) (any, error) {
	s, ok := raw.(string)
	if !ok || !strings.HasPrefix(s, SecretRefPrefix) {
		return raw, nil
	}
	if r.secrets == nil {
		return nil, &ConfigurationError{
			Field: f.Name, Value: raw, Reason: "is a vault reference but no vault client is configured",
			Remedy: RemedyVault,
		}
	}
	secret, err := r.secrets.ResolveSecret(ctx, strings.TrimPrefix(s, SecretRefPrefix))
	if err != nil {
		return nil, &ConfigurationError{
			Field: f.Name, Value: raw, Reason: fmt.Sprintf("could not be read from vault: %v", err),
			Remedy: RemedyVault,
		}
	}
	return secret, nil
}
