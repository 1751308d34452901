// internal/configyml/store.go
//
// Cached, atomically-persisted access to config.yml.
//
// Context
// -------
// config.yml is edited by humans and by the hub CLI.  The Store keeps two
// independent cached artifacts of the same file:
//
//   - the plain tree (`map[string]any`) used for reads and settings
//     resolution,
//   - the round-trip tree (`*yaml.Node`) that retains comments, key order,
//     and quoting.  Only this artifact is ever written back.
//
// Both caches are guarded by one mutex and dropped together by every save
// and by `Invalidate`.  Callers always receive deep copies, so nothing
// outside the Store can mutate cached state.
//
// Writes go to `<path>.tmp` with mode 0600 (the file carries secrets), the
// caches are dropped, and the tmp file is renamed over the target.  Any
// failure removes the tmp file and leaves the target untouched.
//
// Notes
// -----
//   - A missing file reads as an empty mapping; the round-trip tree falls
//     back to the template generator so first-time setup starts from a
//     fully commented document.
//   - Save hooks run after the cache lock is released.  They typically
//     clear settings caches, which take their own locks.
package configyml

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"github.com/gofrs/flock"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yanizio/tphub/internal/fsutil"
	"github.com/yanizio/tphub/internal/merge"
	"github.com/yanizio/tphub/internal/metrics"
)

// FileName is the config file name relative to the project directory.
const FileName = "config.yml"

// ErrPropertyNotFound is returned by Property for a missing dotted path.
var ErrPropertyNotFound = errors.New("config property not found")

// ErrNotMapping is returned when config.yml (or a path inside it) is not a
// mapping where one is required.
var ErrNotMapping = errors.New("config document is not a mapping")

// PersistenceError reports a failed save.  The target file is unchanged.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("config save %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// TemplateFunc produces default config.yml content.
type TemplateFunc func() (string, error)

// Store is safe for concurrent use.  Zero value is invalid; use New.
type Store struct {
	fs       afero.Fs
	path     string
	template TemplateFunc
	lockPath string

	editMu sync.Mutex // serializes read-modify-write edits

	mu        sync.Mutex
	plain     map[string]any
	roundtrip *yaml.Node
	hooks     []func()
}

// Option configures a Store.
type Option func(*Store)

// WithFs replaces the OS file system, mainly for tests.
func WithFs(fsys afero.Fs) Option { return func(s *Store) { s.fs = fsys } }

// WithTemplate sets the generator used when config.yml does not exist.
func WithTemplate(fn TemplateFunc) Option { return func(s *Store) { s.template = fn } }

// WithFileLock takes an advisory lock on `<path>.lock` around every edit and save so
// separate hub processes do not interleave writes.  OS file system only.
func WithFileLock() Option { return func(s *Store) { s.lockPath = s.path + ".lock" } }

// New returns a Store for the file at path.
func New(path string, opts ...Option) *Store {
	s := &Store{fs: afero.NewOsFs(), path: path}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

// Path returns the config file path.
func (s *Store) Path() string { return s.path }

// OnSave registers fn to run after every successful save or external
// change picked up by Watch.
func (s *Store) OnSave(fn func()) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Invalidate drops both cached artifacts.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.invalidateLocked()
	s.mu.Unlock()
}

func (s *Store) invalidateLocked() {
	s.plain = nil
	s.roundtrip = nil
}

/*──────────────────────────── reads ───────────────────────────────────────*/

// Document returns a deep copy of the plain tree.
func (s *Store) Document() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.plain == nil {
		data, err := s.loadPlainLocked()
		if err != nil {
			return nil, err
		}
		s.plain = data
	}
	return merge.DeepCopyMutable(s.plain).(map[string]any), nil
}

func (s *Store) loadPlainLocked() (map[string]any, error) {
	raw, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		zap.S().Debugw("config file absent, using empty document", "file", s.path)
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	data, err := kyaml.Parser().Unmarshal(raw)
	if err != nil {
		zap.S().Errorw("config yaml parse failed", "file", s.path, "err", err)
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	zap.S().Debugw("config yaml loaded", "file", s.path)
	return data, nil
}

// RoundTripDocument returns a deep copy of the format-preserving tree.  The
// result is always a document node wrapping a mapping node.
func (s *Store) RoundTripDocument() (*yaml.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roundtrip == nil {
		doc, err := s.loadRoundTripLocked()
		if err != nil {
			return nil, err
		}
		s.roundtrip = doc
	}
	return copyNode(s.roundtrip), nil
}

func (s *Store) loadRoundTripLocked() (*yaml.Node, error) {
	raw, err := afero.ReadFile(s.fs, s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		content := ""
		if s.template != nil {
			if content, err = s.template(); err != nil {
				return nil, fmt.Errorf("generate default %s: %w", FileName, err)
			}
		}
		raw = []byte(content)
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{newMapping()}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: %w", s.path, ErrNotMapping)
	}
	return &doc, nil
}

// Property reads a dotted path from the plain tree.
func (s *Store) Property(dotted string) (any, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}
	v, ok := merge.Lookup(doc, dotted)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, dotted)
	}
	return v, nil
}

/*──────────────────────────── writes ──────────────────────────────────────*/

// SaveRoundTripDocument atomically replaces config.yml with doc.
func (s *Store) SaveRoundTripDocument(doc *yaml.Node) error {
	unlock, err := s.lockFile()
	if err != nil {
		return s.saveFailed(err)
	}
	defer unlock()
	return s.commit(doc)
}

// commit writes doc and runs the save hooks.  The caller holds the file
// lock, if any.
func (s *Store) commit(doc *yaml.Node) error {
	if err := s.save(doc); err != nil {
		return s.saveFailed(err)
	}
	metrics.ConfigSaveTotal.Inc()
	zap.S().Infow("config saved", "file", s.path)
	s.runHooks()
	return nil
}

func (s *Store) saveFailed(err error) error {
	metrics.ConfigSaveErrorsTotal.Inc()
	zap.S().Errorw("config save failed", "file", s.path, "err", err)
	return err
}

// lockFile takes the cross-process lock when WithFileLock is set.
func (s *Store) lockFile() (unlock func(), err error) {
	if s.lockPath == "" {
		return func() {}, nil
	}
	fl := flock.New(s.lockPath)
	if err := fl.Lock(); err != nil {
		return nil, &PersistenceError{Op: "lock", Path: s.lockPath, Err: err}
	}
	return func() { _ = fl.Unlock() }, nil
}

func (s *Store) save(doc *yaml.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := fsutil.WriteFile(s.fs, s.path, 0o600, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}, s.invalidateLocked)
	var fe *fsutil.Error
	if errors.As(err, &fe) {
		return &PersistenceError{Op: fe.Op, Path: fe.Path, Err: fe.Err}
	}
	return err
}

func (s *Store) runHooks() {
	s.mu.Lock()
	hooks := make([]func(), len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// SetProperty assigns value at a dotted path, creating intermediate
// mappings, and saves.  The old value is replaced whole, never merged;
// comments attached to an existing leaf are kept.
func (s *Store) SetProperty(dotted string, value any) error {
	var val yaml.Node
	if err := val.Encode(value); err != nil {
		return fmt.Errorf("encode config property %s: %w", dotted, err)
	}
	segs := merge.SplitPath(dotted)
	return s.edit(func(root *yaml.Node) error {
		setNode(root, segs, &val)
		return nil
	})
}

// MergeProperties deep-merges update into the document and saves.  It
// follows merge.DeepMerge rules: a mapping never silently replaces a
// non-mapping unless merge.AllowRetypeMapping is passed.
func (s *Store) MergeProperties(update map[string]any, opts ...merge.Option) error {
	var src yaml.Node
	if err := src.Encode(update); err != nil {
		return fmt.Errorf("encode config update: %w", err)
	}
	allowRetype := merge.RetypeAllowed(opts...)
	return s.edit(func(root *yaml.Node) error {
		return mergeNode(root, &src, "", allowRetype)
	})
}

// edit runs one read-modify-write cycle.  With WithFileLock the file lock
// spans the whole cycle and the document is re-read from disk under it, so
// edits from other processes are never overwritten.
func (s *Store) edit(apply func(root *yaml.Node) error) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	unlock, err := s.lockFile()
	if err != nil {
		return s.saveFailed(err)
	}
	defer unlock()
	if s.lockPath != "" {
		s.Invalidate()
	}

	doc, err := s.RoundTripDocument()
	if err != nil {
		return err
	}
	if err := apply(doc.Content[0]); err != nil {
		return err
	}
	return s.commit(doc)
}
