// internal/config/sources.go
//
// Settings sources, highest precedence first.
//
// Context
// -------
// A source yields a nested `map[string]any` keyed by setting name:
//
//  1. InitSource    explicit arguments (CLI flags, tests).
//  2. EnvSource     variables prefixed `TP_HUB_`, where `__` descends into
//     a table (`TP_HUB_BASE_STACK_ENV__TZ → base_stack_env.TZ`).
//  3. DotenvSource  `<project>/.env`, same naming rules as EnvSource.
//  4. FileSource    the `hub:` section of config.yml.
//
// The Resolver asks each source for one field at a time and takes the
// first non-nil value.  Sources are never merged with each other.
//
// Notes
// -----
//   - Only the setting-name part of a variable is lower-cased.  Table keys
//     keep their case (`TP_HUB_BASE_STACK_ENV__TZ` sets `TZ`).
//   - A config.yml without a `hub:` section is legal but almost certainly a
//     mistake, so FileSource logs a warning.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/tphub/internal/merge"
)

// EnvPrefix marks environment variables that carry settings.
const EnvPrefix = "TP_HUB_"

// HubSection is the config.yml key holding settings.
const HubSection = "hub"

// Source yields raw setting values.
type Source interface {
	Name() string
	Load(ctx context.Context) (map[string]any, error)
}

/*──────────────────────────── init ────────────────────────────────────────*/

// InitSource serves explicit arguments.
type InitSource map[string]any

func (InitSource) Name() string { return "init" }

func (s InitSource) Load(context.Context) (map[string]any, error) {
	if s == nil {
		return map[string]any{}, nil
	}
	return merge.DeepCopyMutable(map[string]any(s)).(map[string]any), nil
}

/*──────────────────────────── env ─────────────────────────────────────────*/

// EnvSource reads TP_HUB_ variables from the process environment.
type EnvSource struct{}

func (EnvSource) Name() string { return "env" }

func (EnvSource) Load(context.Context) (map[string]any, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key, _ := envKey(s)
		return key
	}), nil); err != nil {
		zap.S().Errorw("settings env overlay failed", "err", err)
		return nil, fmt.Errorf("read %s environment: %w", EnvPrefix, err)
	}
	return k.Raw(), nil
}

// envKey maps `TP_HUB_BASE_STACK_ENV__TZ` to `base_stack_env.TZ`.  It
// reports false for names outside the prefix.
func envKey(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, EnvPrefix)
	if !ok || rest == "" {
		return "", false
	}
	parts := strings.Split(rest, "__")
	parts[0] = strings.ToLower(parts[0])
	return strings.Join(parts, "."), true
}

/*──────────────────────────── dotenv ──────────────────────────────────────*/

// DotenvSource reads TP_HUB_ entries from a .env file.  A missing file
// yields nothing.
type DotenvSource struct{ Path string }

func (DotenvSource) Name() string { return "dotenv" }

func (s DotenvSource) Load(context.Context) (map[string]any, error) {
	if s.Path == "" {
		return map[string]any{}, nil
	}
	vars, err := godotenv.Read(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}

	var tree any = map[string]any{}
	for name, val := range vars {
		key, ok := envKey(name)
		if !ok {
			continue
		}
		if tree, err = merge.DeepMerge(tree, merge.Expand(key, val), merge.AllowRetypeMapping()); err != nil {
			return nil, err
		}
	}
	zap.S().Debugw("settings dotenv loaded", "file", s.Path)
	return tree.(map[string]any), nil
}

/*──────────────────────────── file ────────────────────────────────────────*/

// DocumentReader is the part of configyml.Store FileSource needs.
type DocumentReader interface {
	Document() (map[string]any, error)
	Path() string
}

// FileSource serves the `hub:` section of config.yml.
type FileSource struct{ Store DocumentReader }

func (FileSource) Name() string { return "file" }

func (s FileSource) Load(context.Context) (map[string]any, error) {
	if s.Store == nil {
		return map[string]any{}, nil
	}
	doc, err := s.Store.Document()
	if err != nil {
		return nil, err
	}
	if len(doc) == 0 {
		return map[string]any{}, nil
	}
	sec, ok := doc[HubSection]
	if !ok {
		zap.S().Warnw("config file has no hub section", "file", s.Store.Path())
		return map[string]any{}, nil
	}
	if sec == nil {
		return map[string]any{}, nil
	}
	m, ok := sec.(map[string]any)
	if !ok {
		return nil, &ConfigurationError{
			Field:  HubSection,
			Value:  sec,
			Reason: "must be a mapping",
			Remedy: RemedyEditConfig,
		}
	}
	return m, nil
}

// DefaultSources returns the standard precedence chain.
func DefaultSources(args map[string]any, dotenvPath string, store DocumentReader) []Source {
	return []Source{
		InitSource(args),
		EnvSource{},
		DotenvSource{Path: dotenvPath},
		FileSource{Store: store},
	}
}
