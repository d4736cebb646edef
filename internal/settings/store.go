package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrSignatureMismatch is returned by Load when the stored record belongs to a
// different layout. Defaults are returned alongside it.
var ErrSignatureMismatch = errors.New("settings signature mismatch")

// Store persists Settings as a YAML file.
type Store struct {
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads the stored settings. A missing file yields defaults and no error.
// Any other failure yields defaults and a non-nil error so the caller can
// decide whether to rewrite the file.
func (s *Store) Load() (Settings, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), fmt.Errorf("read settings: %w", err)
	}

	var st Settings
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&st); err != nil {
		return Defaults(), fmt.Errorf("decode settings yaml: %w", err)
	}
	if st.Signature != Signature {
		return Defaults(), fmt.Errorf("%w: got 0x%08X", ErrSignatureMismatch, st.Signature)
	}

	st.Sanitize()
	return st, nil
}

// Save writes st atomically (temp file + rename).
func (s *Store) Save(st Settings) error {
	st.Signature = Signature
	st.Sanitize()

	b, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode settings yaml: %w", err)
	}
	return writeFileAtomic(s.path, b)
}

func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename settings file: %w", err)
	}
	return nil
}
