package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

const prefsFileName = ".prefs.json"

// prefsDocument is the on-disk layout of FilePreferenceStore.
type prefsDocument struct {
	Version int                 `json:"version"`
	Bools   map[string]bool     `json:"bools"`
	Sets    map[string][]string `json:"sets"`
}

// FilePreferenceStore implements domain.PreferenceStore using a JSON file.
// Writers take an exclusive flock and replace the file atomically, so
// concurrent processes never observe a partial document.
type FilePreferenceStore struct {
	path string
}

// NewFilePreferenceStore creates a file store in dataDir.
func NewFilePreferenceStore(dataDir string) (*FilePreferenceStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FilePreferenceStore{path: filepath.Join(dataDir, prefsFileName)}, nil
}

// NewFilePreferenceStoreWithPath creates a store at a specific path (for testing).
func NewFilePreferenceStoreWithPath(path string) *FilePreferenceStore {
	return &FilePreferenceStore{path: path}
}

// Path returns the preference file path.
func (s *FilePreferenceStore) Path() string {
	return s.path
}

// GetBool returns the stored flag or def when the key was never written.
func (s *FilePreferenceStore) GetBool(key string, def bool) (bool, error) {
	doc, err := s.read()
	if err != nil {
		return def, err
	}
	v, ok := doc.Bools[key]
	if !ok {
		return def, nil
	}
	return v, nil
}

// PutBool upserts a flag.
func (s *FilePreferenceStore) PutBool(key string, value bool) error {
	return s.update(func(doc *prefsDocument) {
		doc.Bools[key] = value
	})
}

// GetStringSet returns the members stored under key.
func (s *FilePreferenceStore) GetStringSet(key string) ([]string, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return append([]string{}, doc.Sets[key]...), nil
}

// PutStringSet replaces the set under key.
func (s *FilePreferenceStore) PutStringSet(key string, members []string) error {
	set := domain.NewPackageSet(members...)
	sorted := set.Sorted()
	return s.update(func(doc *prefsDocument) {
		doc.Sets[key] = sorted
	})
}

// Close is a no-op; the file is opened per operation.
func (s *FilePreferenceStore) Close() error {
	return nil
}

func (s *FilePreferenceStore) read() (*prefsDocument, error) {
	doc := &prefsDocument{Version: 1, Bools: map[string]bool{}, Sets: map[string][]string{}}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse preferences: %w", err)
	}
	if doc.Bools == nil {
		doc.Bools = map[string]bool{}
	}
	if doc.Sets == nil {
		doc.Sets = map[string][]string{}
	}
	return doc, nil
}

// update runs a read-modify-write of the whole document under the file lock.
func (s *FilePreferenceStore) update(mutate func(doc *prefsDocument)) error {
	unlock, err := lockFile(s.path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	mutate(doc)
	return atomicWriteJSON(s.path, doc)
}

// lockFile takes an exclusive flock on path and returns the release func.
func lockFile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}

// atomicWriteJSON writes v to path atomically (write + rename).
func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, werr := tmp.Write(data)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", werr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Ensure FilePreferenceStore implements domain.PreferenceStore.
var _ domain.PreferenceStore = (*FilePreferenceStore)(nil)
