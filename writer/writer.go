// Package writer persists translated resource files. Writes are
// content-aware: the decision to create, update, or skip a destination is
// made by comparing SHA-256 digests, so re-running a sync with unchanged
// translations touches nothing on disk.
package writer

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// utf8BOM is the byte-order-mark prefix .resx consumers expect.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ---------------------------------------------------------------------------
// Decisions
// ---------------------------------------------------------------------------

// Decision is the outcome of a write request.
type Decision string

const (
	// Create: the destination did not exist and was written.
	Create Decision = "create"
	// Update: the destination existed with different content.
	Update Decision = "update"
	// Skip: the destination already holds identical bytes; no I/O done.
	Skip Decision = "skip"
)

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

// Writer applies translated payloads to the local filesystem.
type Writer struct {
	fs afero.Fs

	// DryRun computes and reports decisions without mutating anything.
	DryRun bool
}

// New creates a Writer over the OS filesystem.
func New() *Writer {
	return NewWithFs(afero.NewOsFs())
}

// NewWithFs creates a Writer over an arbitrary filesystem.
func NewWithFs(fs afero.Fs) *Writer {
	return &Writer{fs: fs}
}

// DestinationPath derives the destination file name for a translated
// variant: <base>.<locale><ext> beside its neutral sibling.
func DestinationPath(dir, baseName, locale, ext string) string {
	return filepath.Join(dir, baseName+"."+locale+ext)
}

// Write stores payload at path, prefixing the UTF-8 byte order mark if the
// payload does not already carry one. The decision is returned even in dry
// run mode; the filesystem is only mutated for Create and Update outside
// dry run. Writes go through a temp file and rename, so a failed write
// leaves the old content intact.
func (w *Writer) Write(path string, payload []byte) (Decision, error) {
	payload = ensureBOM(payload)

	existing, err := afero.ReadFile(w.fs, path)
	switch {
	case err == nil:
		if sha256.Sum256(existing) == sha256.Sum256(payload) {
			return Skip, nil
		}
		if w.DryRun {
			return Update, nil
		}
		if err := w.writeAtomic(path, payload); err != nil {
			return Update, err
		}
		return Update, nil
	case os.IsNotExist(err):
		if w.DryRun {
			return Create, nil
		}
		if err := w.writeAtomic(path, payload); err != nil {
			return Create, err
		}
		return Create, nil
	default:
		return Skip, fmt.Errorf("reading %s: %w", path, err)
	}
}

// writeAtomic writes payload to a temp file in the destination directory
// and renames it into place.
func (w *Writer) writeAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	if err := w.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(w.fs, dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		w.fs.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		w.fs.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}

	if err := w.fs.Rename(tmpName, path); err != nil {
		w.fs.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", tmpName, err)
	}
	return nil
}

// ensureBOM prefixes the UTF-8 byte order mark exactly once.
func ensureBOM(payload []byte) []byte {
	if bytes.HasPrefix(payload, utf8BOM) {
		return payload
	}
	out := make([]byte, 0, len(utf8BOM)+len(payload))
	out = append(out, utf8BOM...)
	return append(out, payload...)
}
