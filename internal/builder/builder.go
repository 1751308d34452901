// internal/builder/builder.go
//
// Stack builder: turns resolved settings into files docker compose reads.
//
/*
Context
--------
For each stack (traefik, portainer) `Builder.Build` prepares
`<root>/build/stacks/<name>/`:

  1. docker-compose.yml linked (default) or copied from `stacks/<name>/`.
  2. `.env` holding the values the compose file interpolates, written
     atomically with mode 0600.  Settings-derived variables come first and
     the stack's own env table overrides them.
  3. Extra env files (Portainer's `runtime.env`).
  4. `.config-hash`, the settings hash and mode of the last successful
     build.

In link mode `stacks/<name>/.env` is also made a link to the generated
file, so `docker compose up` works from either directory.

A stack whose stamp matches the current settings hash is skipped unless
the Builder was created with WithForce.

Instrumentation
---------------
  • INFO span: build and skip per stack.
  • ERROR span: failed step with the stack name.
  • Counter: tphub_stack_build_total{stack, result}.

Notes
-----
  • Copy mode first removes any compose link left by a link-mode build;
    copying through the link would truncate the checked-in file.
  • Oxford commas, two spaces after periods.
*/
package builder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yanizio/tphub/internal/config"
	"github.com/yanizio/tphub/internal/dotenv"
	"github.com/yanizio/tphub/internal/fsutil"
	"github.com/yanizio/tphub/internal/metrics"
	"github.com/yanizio/tphub/internal/projdir"
)

// File names inside a stack directory.
const (
	ComposeFile = "docker-compose.yml"
	EnvFile     = ".env"
	StampFile   = ".config-hash"
)

// ErrNoCompose is returned when a stack has no docker-compose.yml.
var ErrNoCompose = errors.New("stack has no " + ComposeFile)

// Mode selects how the compose file reaches the build directory.
type Mode int

const (
	ModeLink Mode = iota
	ModeCopy
)

func (m Mode) String() string {
	if m == ModeCopy {
		return "copy"
	}
	return "link"
}

// ParseMode accepts "link" or "copy".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "link", "symlink":
		return ModeLink, nil
	case "copy":
		return ModeCopy, nil
	}
	return ModeLink, fmt.Errorf("unknown build mode %q (want link or copy)", s)
}

// Result describes one stack build.
type Result struct {
	Stack   string
	Dir     string
	Skipped bool
}

// osFs backs the dotenv and stamp writes.  Builds need real symlinks and
// otiai10/copy, so every step works on the OS file system.
var osFs afero.Fs = afero.NewOsFs()

// Builder is safe for sequential use.
type Builder struct {
	dirs  projdir.Dirs
	mode  Mode
	force bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithMode selects link or copy mode.
func WithMode(m Mode) Option { return func(b *Builder) { b.mode = m } }

// WithForce rebuilds stacks even when their stamp is current.
func WithForce(force bool) Option { return func(b *Builder) { b.force = force } }

// New returns a Builder for the project at dirs.
func New(dirs projdir.Dirs, opts ...Option) *Builder {
	b := &Builder{dirs: dirs}
	for _, fn := range opts {
		fn(b)
	}
	return b
}

/*──────────────────────────── build ───────────────────────────────────────*/

// BuildHub builds every stack in Stacks() order and stops at the first
// failure.
func (b *Builder) BuildHub(ctx context.Context, s *config.Settings) ([]Result, error) {
	zap.S().Infow("building hub", "mode", b.mode.String(), "force", b.force)
	var out []Result
	for _, st := range Stacks() {
		res, err := b.Build(ctx, s, st)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	zap.S().Infow("hub build complete", "stacks", len(out))
	return out, nil
}

// Build prepares one stack.
func (b *Builder) Build(ctx context.Context, s *config.Settings, st Stack) (res Result, err error) {
	res = Result{Stack: st.Name, Dir: b.dirs.BuildStackDir(st.Name)}
	defer func() {
		outcome := "built"
		switch {
		case err != nil:
			outcome = "error"
			zap.S().Errorw("stack build failed", "stack", st.Name, "err", err)
		case res.Skipped:
			outcome = "skipped"
		}
		metrics.StackBuildTotal.WithLabelValues(st.Name, outcome).Inc()
	}()

	if err := ctx.Err(); err != nil {
		return res, err
	}

	hash, err := s.Hash()
	if err != nil {
		return res, fmt.Errorf("hash settings: %w", err)
	}
	stamp := hash + " " + b.mode.String()

	srcDir := b.dirs.StackDir(st.Name)
	srcCompose := filepath.Join(srcDir, ComposeFile)
	if _, err := os.Stat(srcCompose); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, fmt.Errorf("stack %s: %w", st.Name, ErrNoCompose)
		}
		return res, err
	}

	dst := res.Dir
	if !b.force && b.upToDate(dst, stamp) {
		res.Skipped = true
		zap.S().Infow("stack up to date", "stack", st.Name)
		return res, nil
	}

	zap.S().Infow("building stack", "stack", st.Name, "dir", dst)
	if err := os.MkdirAll(dst, 0o700); err != nil {
		return res, err
	}

	dstCompose := filepath.Join(dst, ComposeFile)
	if err := removeIfExists(dstCompose); err != nil {
		return res, err
	}
	switch b.mode {
	case ModeCopy:
		if err := copy.Copy(srcDir, dst, copy.Options{
			OnSymlink: func(string) copy.SymlinkAction { return copy.Skip },
			Skip: func(_ os.FileInfo, src, _ string) (bool, error) {
				return filepath.Base(src) == EnvFile, nil
			},
		}); err != nil {
			return res, fmt.Errorf("copy stack %s: %w", st.Name, err)
		}
	default:
		if err := relSymlink(srcCompose, dstCompose); err != nil {
			return res, err
		}
	}

	dstEnv := filepath.Join(dst, EnvFile)
	if err := dotenv.Save(osFs, dstEnv, st.Env(s)); err != nil {
		return res, fmt.Errorf("write %s: %w", dstEnv, err)
	}
	for name, fn := range st.ExtraEnv {
		p := filepath.Join(dst, name)
		if err := dotenv.Save(osFs, p, fn(s)); err != nil {
			return res, fmt.Errorf("write %s: %w", p, err)
		}
	}

	if b.mode == ModeLink {
		if err := linkSourceEnv(filepath.Join(srcDir, EnvFile), dstEnv); err != nil {
			return res, err
		}
	}

	if err := fsutil.WriteBytes(osFs, filepath.Join(dst, StampFile), 0o600, []byte(stamp+"\n")); err != nil {
		return res, err
	}
	zap.S().Infow("stack build complete", "stack", st.Name)
	return res, nil
}

func (b *Builder) upToDate(dst, stamp string) bool {
	if _, err := os.Stat(filepath.Join(dst, ComposeFile)); err != nil {
		return false
	}
	raw, err := os.ReadFile(filepath.Join(dst, StampFile))
	return err == nil && strings.TrimSpace(string(raw)) == stamp
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func removeIfExists(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// relSymlink makes link point at target through a relative path.
func relSymlink(target, link string) error {
	rel, err := filepath.Rel(filepath.Dir(link), target)
	if err != nil {
		return err
	}
	return os.Symlink(rel, link)
}

// linkSourceEnv points stacks/<name>/.env at the generated file.  An
// existing link is replaced; a regular file is left alone.
func linkSourceEnv(srcEnv, dstEnv string) error {
	fi, err := os.Lstat(srcEnv)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return err
	case fi.Mode()&os.ModeSymlink != 0:
		if err := os.Remove(srcEnv); err != nil {
			return err
		}
	default:
		zap.S().Warnw("leaving hand-written stack .env in place", "file", srcEnv)
		return nil
	}
	return relSymlink(dstEnv, srcEnv)
}
