// internal/projdir/projdir.go
//
// Project directory discovery and layout.
//
/*
Context
--------
Every hub command works relative to one project directory:

  <root>/config.yml              local settings (see internal/configyml)
  <root>/.env                    optional TP_HUB_ overrides
  <root>/stacks/<name>/          checked-in docker-compose stacks
  <root>/build/stacks/<name>/    generated .env files and compose links
  <root>/logs/                   JSON logs

`Find()` resolves the root from TP_HUB_ROOT, or climbs from the working
directory until it finds config.yml or a stacks/ directory, so `hub` works
from any sub-directory of a checkout.

Notes
-----
  • When nothing is found, the working directory is used.  That is what
    `hub config init` wants in a fresh checkout.
  • Oxford commas, two spaces after periods.
*/
package projdir

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// EnvRoot overrides discovery.
const EnvRoot = "TP_HUB_ROOT"

// Dirs is a resolved project layout.
type Dirs struct {
	Root string
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// Find resolves TP_HUB_ROOT or climbs directories until config.yml or
// stacks/ is found.  Falls back to the working directory.
func Find() (Dirs, error) {
	if r := os.Getenv(EnvRoot); r != "" {
		abs, err := filepath.Abs(r)
		if err != nil {
			return Dirs{}, err
		}
		zap.S().Debugw("project root from environment", "root", abs)
		return Dirs{Root: abs}, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return Dirs{}, err
	}
	if root, ok := climb(wd); ok {
		zap.S().Debugw("project root resolved", "root", root)
		return Dirs{Root: root}, nil
	}

	zap.S().Debugw("project root not found, using working directory", "root", wd)
	return Dirs{Root: wd}, nil
}

// At returns the layout rooted at dir.
func At(dir string) (Dirs, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Dirs{}, err
	}
	return Dirs{Root: abs}, nil
}

func climb(dir string) (string, bool) {
	for {
		if isFile(filepath.Join(dir, "config.yml")) || isDir(filepath.Join(dir, "stacks")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			return "", false
		}
		dir = parent
	}
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

/*──────────────────────────── layout ──────────────────────────────────────*/

func (d Dirs) ConfigFile() string  { return filepath.Join(d.Root, "config.yml") }
func (d Dirs) DotenvFile() string  { return filepath.Join(d.Root, ".env") }
func (d Dirs) StacksDir() string   { return filepath.Join(d.Root, "stacks") }
func (d Dirs) BuildDir() string    { return filepath.Join(d.Root, "build") }
func (d Dirs) LogDir() string      { return filepath.Join(d.Root, "logs") }
func (d Dirs) MetricsFile() string { return filepath.Join(d.BuildDir(), "metrics.prom") }

// StackDir is the checked-in source directory of a stack.
func (d Dirs) StackDir(name string) string { return filepath.Join(d.StacksDir(), name) }

// BuildStackDir is the generated directory of a stack.
func (d Dirs) BuildStackDir(name string) string {
	return filepath.Join(d.BuildDir(), "stacks", name)
}
