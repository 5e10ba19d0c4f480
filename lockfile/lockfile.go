// Package lockfile implements resxsync.lock — a lock file that tracks
// SHA-256 checksums of neutral resource files at their last successful
// upload. This enables incremental sync: files whose content has not
// changed since the previous run are not re-uploaded.
//
// The lock file is stored in the project root next to .resxsync.yaml.
package lockfile

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// LockFileName is the default lock file name.
const LockFileName = "resxsync.lock"

// Version is the lock file format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// LockFile represents the resxsync.lock file structure. Checksums are
// keyed by the neutral file's slash-separated path relative to the
// project root.
type LockFile struct {
	Version   int               `yaml:"version"`
	Checksums map[string]string `yaml:"checksums"`

	mu   sync.Mutex `yaml:"-"`
	fs   afero.Fs   `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads a lock file from the given directory.
// Returns an empty lock file if the file doesn't exist.
func Load(fs afero.Fs, dir string) (*LockFile, error) {
	path := filepath.Join(dir, LockFileName)
	lf := &LockFile{
		Version:   Version,
		Checksums: make(map[string]string),
		fs:        fs,
		path:      path,
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	lf.fs = fs
	lf.path = path

	if lf.Checksums == nil {
		lf.Checksums = make(map[string]string)
	}

	return lf, nil
}

// Save writes the lock file to disk.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}

	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}

	if err := afero.WriteFile(lf.fs, lf.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}

	return nil
}

// Path returns the lock file path.
func (lf *LockFile) Path() string {
	return lf.path
}

// ---------------------------------------------------------------------------
// Checksum operations
// ---------------------------------------------------------------------------

// Hash computes the SHA-256 hex digest of file content.
func Hash(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// IsChanged reports whether a neutral file's content has changed since
// its last successful upload. New files count as changed.
func (lf *LockFile) IsChanged(relPath string, content []byte) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	oldHash, ok := lf.Checksums[relPath]
	if !ok {
		return true
	}
	return oldHash != Hash(content)
}

// Update records a neutral file's checksum after a successful upload.
func (lf *LockFile) Update(relPath string, content []byte) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	lf.Checksums[relPath] = Hash(content)
}

// Clean removes entries for files no longer present in the current
// neutral set, so deleted files do not accumulate.
func (lf *LockFile) Clean(currentPaths []string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	valid := make(map[string]bool, len(currentPaths))
	for _, p := range currentPaths {
		valid[p] = true
	}

	for p := range lf.Checksums {
		if !valid[p] {
			delete(lf.Checksums, p)
		}
	}
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Len returns the number of tracked files.
func (lf *LockFile) Len() int {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return len(lf.Checksums)
}

// Paths returns the sorted list of tracked file paths.
func (lf *LockFile) Paths() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	paths := make([]string, 0, len(lf.Checksums))
	for p := range lf.Checksums {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
