// Package scan discovers neutral (source-language) .resx resource files
// under a project root. A file is neutral when its name carries no locale
// suffix: Strings.resx is neutral, Strings.fr.resx and Strings.fr-CA.resx
// are translated variants and never re-uploaded.
package scan

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// DefaultExcludes are directory names pruned entirely during traversal,
// including all their descendants.
var DefaultExcludes = []string{
	".git", ".svn", ".hg", ".vs",
	"bin", "obj", "node_modules", "packages",
}

// localeTagRe matches the locale suffix of a translated resource file name:
// a 2-letter code (fr), optionally followed by a 2–3 letter region subtag
// (fr-CA) or a capitalized 4-letter script subtag (sr-Latn, zh-Hans).
// Lowercase 4-letter subtags are not locale suffixes.
var localeTagRe = regexp.MustCompile(`^[a-zA-Z]{2}(?:-(?:[a-zA-Z]{2,3}|[A-Z][a-z]{3}))?$`)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// NeutralFile is a discovered source-language resource file. The set of
// neutral files is fixed after discovery; no re-scan happens mid-run.
type NeutralFile struct {
	// AbsPath is the absolute path on the local filesystem.
	AbsPath string
	// RelPath is the path relative to the scan root, forward-slash
	// normalized for remote addressing.
	RelPath string
	// Name is the file name including extension.
	Name string
	// Dir is the directory containing the file.
	Dir string
}

// BaseName returns the file name without the resource extension.
func (f NeutralFile) BaseName() string {
	return strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
}

// Scanner walks a directory tree and classifies resource files.
type Scanner struct {
	fs        afero.Fs
	extension string
	excludes  map[string]struct{}
}

// New creates a Scanner over the OS filesystem with DefaultExcludes.
func New(extension string) *Scanner {
	return NewWithFs(afero.NewOsFs(), extension, DefaultExcludes)
}

// NewWithFs creates a Scanner over an arbitrary filesystem. Used by tests
// with an in-memory fs.
func NewWithFs(fs afero.Fs, extension string, excludes []string) *Scanner {
	ex := make(map[string]struct{}, len(excludes))
	for _, name := range excludes {
		ex[name] = struct{}{}
	}
	return &Scanner{fs: fs, extension: strings.ToLower(extension), excludes: ex}
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

// Scan returns the neutral resource files under root in traversal order.
// The order is deterministic within one run (afero walks directory entries
// sorted by name).
func (s *Scanner) Scan(root string) ([]NeutralFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var files []NeutralFile
	err = afero.Walk(s.fs, absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != absRoot {
				if _, excluded := s.excludes[info.Name()]; excluded {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !s.isNeutral(info.Name()) {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		files = append(files, NeutralFile{
			AbsPath: path,
			RelPath: filepath.ToSlash(rel),
			Name:    info.Name(),
			Dir:     filepath.Dir(path),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// isNeutral reports whether name is a resource file without a locale suffix.
func (s *Scanner) isNeutral(name string) bool {
	ext := filepath.Ext(name)
	if strings.ToLower(ext) != s.extension {
		return false
	}
	base := strings.TrimSuffix(name, ext)

	// Strings.fr.resx -> base "Strings.fr" -> suffix "fr" -> locale-suffixed.
	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return true
	}
	return !IsLocaleTag(base[idx+1:])
}

// IsLocaleTag reports whether s looks like a locale tag usable as a file
// name suffix (fr, fr-CA, sr-Latn, zh-Hans).
func IsLocaleTag(s string) bool {
	return localeTagRe.MatchString(s)
}
