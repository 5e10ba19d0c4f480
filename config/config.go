// Package config — .resxsync.yaml configuration file support.
//
// When a .resxsync.yaml file exists in the project root, resxsync reads
// project defaults from it. Command-line flags always override file
// values; the file never overrides a flag.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// FileName is the default config file name.
const FileName = ".resxsync.yaml"

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .resxsync.yaml structure.
type File struct {
	// ProjectID identifies the backend project.
	ProjectID string `yaml:"project_id"`
	// SourceLocale is the language of the neutral files (default "en").
	SourceLocale string `yaml:"source_locale,omitempty"`
	// Locales are the target locales to synchronize.
	Locales []string `yaml:"locales,omitempty"`
	// ExcludeDirs replaces the default directory exclusion set.
	ExcludeDirs []string `yaml:"exclude_dirs,omitempty"`
	// TimeoutMinutes bounds the per-locale export phase (default 10).
	TimeoutMinutes int `yaml:"timeout_minutes,omitempty"`
	// BaseURL overrides the backend endpoint (for on-premise instances).
	BaseURL string `yaml:"base_url,omitempty"`
}

// Timeout converts TimeoutMinutes to a duration; zero means unset.
func (f *File) Timeout() time.Duration {
	return time.Duration(f.TimeoutMinutes) * time.Minute
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads and validates .resxsync.yaml from the given directory.
// Returns nil if no config file exists.
func Load(rootDir string) (*File, error) {
	return LoadWithFs(afero.NewOsFs(), rootDir)
}

// LoadWithFs is Load over an arbitrary filesystem.
func LoadWithFs(fs afero.Fs, rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if exists, _ := afero.Exists(fs, path); !exists {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if f.TimeoutMinutes < 0 {
		return nil, fmt.Errorf("%s: timeout_minutes must not be negative", path)
	}
	seen := make(map[string]struct{}, len(f.Locales))
	for _, l := range f.Locales {
		if l == "" {
			return nil, fmt.Errorf("%s: empty locale in locales list", path)
		}
		if _, dup := seen[l]; dup {
			return nil, fmt.Errorf("%s: duplicate locale %q", path, l)
		}
		seen[l] = struct{}{}
	}

	return &f, nil
}

// ---------------------------------------------------------------------------
// Flag merging
// ---------------------------------------------------------------------------

// Merged is the effective configuration after flags override file values.
type Merged struct {
	ProjectID     string
	SourceLocale  string
	Locales       []string
	ExcludeDirs   []string
	ExportTimeout time.Duration
	BaseURL       string
}

// Flags carries the command-line values that may override the file.
// Zero values mean "not set on the command line".
type Flags struct {
	ProjectID      string
	SourceLocale   string
	Locales        []string
	TimeoutMinutes int
	BaseURL        string
}

// Merge combines a loaded file (possibly nil) with command-line flags.
func Merge(f *File, flags Flags) Merged {
	if f == nil {
		f = &File{}
	}
	m := Merged{
		ProjectID:     f.ProjectID,
		SourceLocale:  f.SourceLocale,
		Locales:       f.Locales,
		ExcludeDirs:   f.ExcludeDirs,
		ExportTimeout: f.Timeout(),
		BaseURL:       f.BaseURL,
	}
	if flags.ProjectID != "" {
		m.ProjectID = flags.ProjectID
	}
	if flags.SourceLocale != "" {
		m.SourceLocale = flags.SourceLocale
	}
	if len(flags.Locales) > 0 {
		m.Locales = flags.Locales
	}
	if flags.TimeoutMinutes > 0 {
		m.ExportTimeout = time.Duration(flags.TimeoutMinutes) * time.Minute
	}
	if flags.BaseURL != "" {
		m.BaseURL = flags.BaseURL
	}
	return m
}
