package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	recordExt = ".yml"
	lockExt   = ".lock"
)

// ErrNotFound is returned when no record exists for a slug.
var ErrNotFound = errors.New("metadata record not found")

// Store reads and writes records under Dir. Writes to one record are
// serialised through a lock file and land atomically.
type Store struct {
	Dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Path is the file a slug's record lives in.
func (s *Store) Path(slug string) string {
	return filepath.Join(s.Dir, slug+recordExt)
}

func (s *Store) lockPath(slug string) string {
	return filepath.Join(s.Dir, slug+lockExt)
}

// Exists reports whether a record exists for slug.
func (s *Store) Exists(slug string) bool {
	_, err := os.Stat(s.Path(slug))
	return err == nil
}

// Load reads the record for slug. A file that does not parse is reported as
// a *ValidationError.
func (s *Store) Load(slug string) (*Record, error) {
	return s.LoadFile(s.Path(slug))
}

// LoadFile reads a record from an explicit path.
func (s *Store) LoadFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return Decode(data, strings.TrimSuffix(filepath.Base(path), recordExt))
}

// Decode parses record YAML. unit names the record in errors.
func Decode(data []byte, unit string) (*Record, error) {
	var r Record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, &ValidationError{
			Unit:     unit,
			Field:    "(file)",
			Expected: "a YAML metadata record",
			Found:    err.Error(),
			Action:   "fix the YAML syntax or re-run discovery for this unit",
		}
	}
	if r.Automation.Flags == nil {
		r.Automation.Flags = make(map[string]bool)
	}
	return &r, nil
}

// Encode renders r as YAML.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode metadata %s: %w", r.Slug, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes r. Completion flags already set on disk are kept.
func (s *Store) Save(r *Record) error {
	if r.Slug == "" {
		return fmt.Errorf("save metadata: record for %q has no slug", r.SourceFile)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	return s.withLock(r.Slug, func() error {
		return s.write(r)
	})
}

// Update loads the record for slug, applies fn and writes the result, all
// under the record's lock. Returning an error from fn leaves the file as it
// was.
func (s *Store) Update(slug string, fn func(r *Record) error) (*Record, error) {
	var out *Record
	err := s.withLock(slug, func() error {
		r, err := s.Load(slug)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
		out = r
		return s.write(r)
	})
	return out, err
}

// write must run under the slug's lock.
func (s *Store) write(r *Record) error {
	if prev, err := s.Load(r.Slug); err == nil {
		r.mergeFlags(prev)
	}
	if r.SchemaVersion == 0 {
		r.SchemaVersion = SchemaVersion
	}
	data, err := Encode(r)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.Dir, r.Slug+".*.tmp")
	if err != nil {
		return fmt.Errorf("write metadata %s: %w", r.Slug, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write metadata %s: %w", r.Slug, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write metadata %s: %w", r.Slug, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(r.Slug)); err != nil {
		return fmt.Errorf("write metadata %s: %w", r.Slug, err)
	}
	return nil
}

// List returns the slugs of every record, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	var slugs []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		slugs = append(slugs, strings.TrimSuffix(e.Name(), recordExt))
	}
	sort.Strings(slugs)
	return slugs, nil
}

// LoadAll loads every record. Records that fail to load are returned as
// errors keyed by slug alongside the ones that loaded.
func (s *Store) LoadAll() ([]*Record, map[string]error, error) {
	slugs, err := s.List()
	if err != nil {
		return nil, nil, err
	}
	var records []*Record
	failed := make(map[string]error)
	for _, slug := range slugs {
		r, err := s.Load(slug)
		if err != nil {
			failed[slug] = err
			continue
		}
		records = append(records, r)
	}
	return records, failed, nil
}
