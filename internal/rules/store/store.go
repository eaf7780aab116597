// Package store persists rule values between runs.
//
// A store file holds a lock flag and a table of rule name to canonical
// value string. TOML, YAML and JSON files are supported, chosen by
// extension. Only values that differ from the rule defaults are normally
// kept in the file.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrUnsupportedFormat is returned for file extensions with no codec.
var ErrUnsupportedFormat = errors.New("unsupported store format")

// Format identifies a store file encoding.
type Format uint8

const (
	// FormatTOML is used for .toml and .conf files.
	FormatTOML Format = iota
	// FormatYAML is used for .yaml and .yml files.
	FormatYAML
	// FormatJSON is used for .json files.
	FormatJSON
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatTOML:
		return "toml"
	case FormatYAML:
		return "yaml"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".conf":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// FileSystem is the file system used by a Store.
// This allows for easy testing with in-memory file systems.
type FileSystem interface {
	// ReadFile reads the entire file at path.
	ReadFile(path string) ([]byte, error)
	// WriteFile replaces the file at path with data. Readers must see
	// either the old or the new content, never a mix.
	WriteFile(path string, data []byte) error
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data to a temp file in the same directory and renames
// it over path. Missing directories are created.
func (OSFS) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing store file: %w", err)
	}
	return nil
}

// ParseError represents an error while decoding a store file.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Snapshot is the decoded content of a store file.
type Snapshot struct {
	// Locked rejects all mutations once restored.
	Locked bool
	// Rules maps rule name to canonical value string.
	Rules map[string]string
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Rules: make(map[string]string)}
}

// Set records a value for name.
func (s *Snapshot) Set(name, value string) {
	if s.Rules == nil {
		s.Rules = make(map[string]string)
	}
	s.Rules[name] = value
}

// Remove deletes name and reports whether it was present.
func (s *Snapshot) Remove(name string) bool {
	if _, ok := s.Rules[name]; !ok {
		return false
	}
	delete(s.Rules, name)
	return true
}

// Get returns the stored value for name.
func (s *Snapshot) Get(name string) (string, bool) {
	v, ok := s.Rules[name]
	return v, ok
}

// Names returns the stored rule names, sorted.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Rules))
	for name := range s.Rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{Locked: s.Locked, Rules: make(map[string]string, len(s.Rules))}
	for k, v := range s.Rules {
		c.Rules[k] = v
	}
	return c
}

// Store reads and writes one store file.
type Store struct {
	path   string
	format Format
	fs     FileSystem

	// mu serializes read-modify-write cycles.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithFS sets the file system used for reads and writes.
func WithFS(fsys FileSystem) Option {
	return func(s *Store) {
		if fsys != nil {
			s.fs = fsys
		}
	}
}

// New creates a store for path. The format is taken from the extension.
func New(path string, opts ...Option) (*Store, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, format: format, fs: OSFS{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the store file path.
func (s *Store) Path() string { return s.path }

// Format returns the store file format.
func (s *Store) Format() Format { return s.format }

// Load reads the store file. A missing file yields an empty snapshot.
func (s *Store) Load() (*Snapshot, error) {
	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewSnapshot(), nil
		}
		return nil, fmt.Errorf("reading store file %s: %w", s.path, err)
	}
	return s.decode(data)
}

func (s *Store) decode(data []byte) (*Snapshot, error) {
	snap, err := codecFor(s.format).decode(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = s.path
			return nil, pe
		}
		return nil, &ParseError{Path: s.path, Message: err.Error(), Err: err}
	}
	return snap, nil
}

// Save writes snap to the store file. The file is replaced atomically.
func (s *Store) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(snap)
}

func (s *Store) save(snap *Snapshot) error {
	data, err := codecFor(s.format).encode(snap)
	if err != nil {
		return fmt.Errorf("encoding store file %s: %w", s.path, err)
	}

	if err := s.fs.WriteFile(s.path, data); err != nil {
		return fmt.Errorf("saving store file %s: %w", s.path, err)
	}
	return nil
}

// Update loads the store file, passes the snapshot to fn and saves the
// result if fn returns nil.
func (s *Store) Update(fn func(*Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(snap); err != nil {
		return err
	}
	return s.save(snap)
}

// SetDefault persists value for name.
func (s *Store) SetDefault(name, value string) error {
	return s.Update(func(snap *Snapshot) error {
		snap.Set(name, value)
		return nil
	})
}

// RemoveDefault deletes name from the store file. It reports whether the
// name was present.
func (s *Store) RemoveDefault(name string) (bool, error) {
	var removed bool
	err := s.Update(func(snap *Snapshot) error {
		removed = snap.Remove(name)
		return nil
	})
	return removed, err
}
