// Package syncer drives the end-to-end synchronization pipeline: discover
// neutral resource files, validate locales against the backend, upload,
// trigger machine translation, then per locale export, download, unpack,
// verify completeness, and write translated files back to disk.
//
// Processing is sequential by contract. Per-file and per-locale failures
// are isolated and recorded in RunStats; the run continues. The one fatal
// condition is an invalid locale set, which halts the run before any
// remote mutation.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/openlocalize/resxsync/backend"
	"github.com/openlocalize/resxsync/bundle"
	"github.com/openlocalize/resxsync/lockfile"
	"github.com/openlocalize/resxsync/resxfile"
	"github.com/openlocalize/resxsync/scan"
	"github.com/openlocalize/resxsync/writer"
)

// Failure contexts.
const (
	ctxUpload   = "Upload"
	ctxExport   = "Export"
	ctxDownload = "Download"
	ctxKeyCheck = "KeyCheck"
	ctxWrite    = "Write"
)

// ---------------------------------------------------------------------------
// Backend interface
// ---------------------------------------------------------------------------

// Backend is the remote service surface the pipeline consumes.
// *backend.Client satisfies it; tests substitute fakes.
type Backend interface {
	ProjectLanguages(ctx context.Context, projectID string) ([]string, error)
	UploadFile(ctx context.Context, req backend.UploadRequest) (*backend.Operation, error)
	TriggerMachineTranslation(ctx context.Context, req backend.TranslateRequest) (*backend.Operation, error)
	RequestExport(ctx context.Context, req backend.ExportRequest) (string, error)
	DownloadBundle(ctx context.Context, url string) ([]byte, error)
	Resolve(ctx context.Context, op *backend.Operation, timeout time.Duration) (*backend.JobStatus, error)
}

// ---------------------------------------------------------------------------
// Validation error
// ---------------------------------------------------------------------------

// ValidationError is the fatal locale-set mismatch: at least one requested
// locale is not configured for the project.
type ValidationError struct {
	// Invalid is the requested-but-unavailable subset.
	Invalid []string
	// Available is the project's configured locale set, sorted lexically.
	Available []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("locales not configured for project: %s (available: %s)",
		strings.Join(e.Invalid, ", "), strings.Join(e.Available, ", "))
}

// ValidateLocales checks requested against available. An empty available
// set yields no error; the caller decides whether to warn and proceed.
func ValidateLocales(requested, available []string) error {
	if len(available) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(available))
	for _, l := range available {
		set[l] = struct{}{}
	}

	var invalid []string
	for _, l := range requested {
		if _, ok := set[l]; !ok {
			invalid = append(invalid, l)
		}
	}
	if len(invalid) == 0 {
		return nil
	}

	avail := append([]string(nil), available...)
	sort.Strings(avail)
	return &ValidationError{Invalid: invalid, Available: avail}
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options controls one sync run.
type Options struct {
	// ProjectID identifies the backend project.
	ProjectID string
	// SourceLocale is the language of the neutral files (default "en").
	SourceLocale string
	// Locales are the target locales to synchronize.
	Locales []string
	// DryRun simulates the run: no remote calls, no filesystem writes.
	DryRun bool
	// ExportTimeout bounds the per-locale export phase, backoff waits
	// included (default 10 minutes).
	ExportTimeout time.Duration
	// JobTimeout bounds polling of upload and translation jobs
	// (default 120 seconds).
	JobTimeout time.Duration
	// ExportFormat is the archive format requested from the backend.
	ExportFormat string
	// Extension is the resource file extension (default ".resx").
	Extension string
	// UseLock enables the incremental-upload lock file: neutral files
	// unchanged since their last successful upload are not re-uploaded.
	UseLock bool
	// ExcludeDirs overrides the directory exclusion set.
	ExcludeDirs []string

	// OnLog, OnWarn, OnError emit progress and diagnostics.
	OnLog   func(format string, args ...any)
	OnWarn  func(format string, args ...any)
	OnError func(format string, args ...any)
	// Verbose enables detailed logging.
	Verbose bool

	// sleep is replaceable in tests; defaults to a context-aware wait.
	sleep func(ctx context.Context, d time.Duration) error
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) warn(format string, args ...any) {
	if o.OnWarn != nil {
		o.OnWarn(format, args...)
	} else {
		o.log(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else {
		o.log(format, args...)
	}
}

func (o *Options) withDefaults() {
	if o.SourceLocale == "" {
		o.SourceLocale = "en"
	}
	if o.ExportTimeout == 0 {
		o.ExportTimeout = 10 * time.Minute
	}
	if o.JobTimeout == 0 {
		o.JobTimeout = 120 * time.Second
	}
	if o.ExportFormat == "" {
		o.ExportFormat = "resx"
	}
	if o.Extension == "" {
		o.Extension = resxfile.Extension
	}
	if len(o.ExcludeDirs) == 0 {
		o.ExcludeDirs = scan.DefaultExcludes
	}
	if o.sleep == nil {
		o.sleep = func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Syncer
// ---------------------------------------------------------------------------

// Syncer runs the pipeline against one project root.
type Syncer struct {
	fs      afero.Fs
	backend Backend
	opts    Options
}

// New creates a Syncer over the OS filesystem.
func New(b Backend, opts Options) *Syncer {
	return NewWithFs(afero.NewOsFs(), b, opts)
}

// NewWithFs creates a Syncer over an arbitrary filesystem.
func NewWithFs(fs afero.Fs, b Backend, opts Options) *Syncer {
	opts.withDefaults()
	return &Syncer{fs: fs, backend: b, opts: opts}
}

// Run executes one synchronization run. The returned RunStats is always
// populated; the error is non-nil only for fatal conditions (locale
// validation failure, scan failure, cancellation).
func (s *Syncer) Run(ctx context.Context, root string) (*RunStats, error) {
	stats := &RunStats{}
	o := &s.opts

	// Discover. The neutral set is fixed from here on.
	scanner := scan.NewWithFs(s.fs, o.Extension, o.ExcludeDirs)
	files, err := scanner.Scan(root)
	if err != nil {
		return stats, fmt.Errorf("scanning %s: %w", root, err)
	}
	stats.NeutralFilesFound = len(files)
	o.log("Found %d neutral resource file(s)", len(files))
	if len(files) == 0 {
		return stats, nil
	}

	// Validate locales before any remote mutation.
	if o.DryRun {
		o.log("Dry run: skipping locale validation, assuming %s are valid",
			strings.Join(o.Locales, ", "))
	} else {
		available, err := s.backend.ProjectLanguages(ctx, o.ProjectID)
		if err != nil {
			o.warn("Could not fetch project languages (%v), proceeding without validation", err)
		} else if len(available) == 0 {
			o.warn("Backend reported no configured languages, proceeding without validation")
		} else if err := ValidateLocales(o.Locales, available); err != nil {
			return stats, err
		}
	}

	if o.DryRun {
		s.dryRun(files)
		return stats, nil
	}

	// Upload every neutral file; outcomes are independent.
	var lock *lockfile.LockFile
	if o.UseLock {
		lock, err = lockfile.Load(s.fs, root)
		if err != nil {
			o.warn("Could not read %s (%v), re-uploading everything", lockfile.LockFileName, err)
			lock = nil
		}
	}
	s.uploadAll(ctx, stats, files, lock)
	if lock != nil {
		current := make([]string, len(files))
		for i, f := range files {
			current[i] = f.RelPath
		}
		lock.Clean(current)
		if err := lock.Save(); err != nil {
			o.warn("Could not save %s: %v", lockfile.LockFileName, err)
		}
	}

	// Machine translation is an enhancement: failures never gate the run.
	for _, locale := range o.Locales {
		s.triggerTranslation(ctx, locale)
	}

	// Per locale, sequentially: export, download, unpack, validate, write.
	neutralKeys := newKeyCache(s.fs)
	for _, locale := range o.Locales {
		s.processLocale(ctx, stats, files, locale, neutralKeys)
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
	}

	return stats, nil
}

// dryRun logs the hypothetical actions without remote calls or writes.
func (s *Syncer) dryRun(files []scan.NeutralFile) {
	o := &s.opts
	for _, f := range files {
		o.log("Would upload %s", f.RelPath)
	}
	for _, locale := range o.Locales {
		o.log("Would trigger machine translation for %s (missing entries only)", locale)
		o.log("Would export and write translations for %s", locale)
	}
}

// ---------------------------------------------------------------------------
// Upload phase
// ---------------------------------------------------------------------------

func (s *Syncer) uploadAll(ctx context.Context, stats *RunStats, files []scan.NeutralFile, lock *lockfile.LockFile) {
	o := &s.opts
	for _, f := range files {
		content, err := afero.ReadFile(s.fs, f.AbsPath)
		if err != nil {
			o.logError("Reading %s: %v", f.RelPath, err)
			stats.fail(ctxUpload, "%s: %v", f.RelPath, err)
			continue
		}

		if lock != nil && !lock.IsChanged(f.RelPath, content) {
			o.log("Skipping upload of %s (unchanged since last sync)", f.RelPath)
			continue
		}

		op, err := s.backend.UploadFile(ctx, backend.UploadRequest{
			ProjectID:    o.ProjectID,
			Filename:     f.RelPath,
			Content:      content,
			SourceLocale: o.SourceLocale,
		})
		if err != nil {
			o.logError("Uploading %s: %v", f.RelPath, err)
			stats.fail(ctxUpload, "%s: %v", f.RelPath, err)
			continue
		}

		status, err := s.backend.Resolve(ctx, op, o.JobTimeout)
		if err != nil {
			o.logError("Uploading %s: %v", f.RelPath, err)
			stats.fail(ctxUpload, "%s: %v", f.RelPath, err)
			continue
		}
		switch status.State {
		case backend.JobFinished:
			o.log("Uploaded %s", f.RelPath)
			stats.FilesUploaded++
			if lock != nil {
				lock.Update(f.RelPath, content)
			}
		case backend.JobFailed:
			o.logError("Upload of %s failed: %s", f.RelPath, status.Reason)
			stats.fail(ctxUpload, "%s: %s", f.RelPath, status.Reason)
		case backend.JobTimedOut:
			// The upload may still complete server-side; degrade to a
			// warning rather than failing the file.
			o.warn("Upload of %s still pending after %s, continuing", f.RelPath, o.JobTimeout)
		}
	}
}

// ---------------------------------------------------------------------------
// Machine translation phase
// ---------------------------------------------------------------------------

func (s *Syncer) triggerTranslation(ctx context.Context, locale string) {
	o := &s.opts
	op, err := s.backend.TriggerMachineTranslation(ctx, backend.TranslateRequest{
		ProjectID: o.ProjectID,
		Locale:    locale,
		Mode:      backend.TranslateModeMissingOnly,
	})
	if err != nil {
		o.warn("Machine translation for %s failed: %v", locale, err)
		return
	}

	status, err := s.backend.Resolve(ctx, op, o.JobTimeout)
	if err != nil {
		o.warn("Machine translation for %s failed: %v", locale, err)
		return
	}
	switch status.State {
	case backend.JobFinished:
		o.log("Machine translation triggered for %s", locale)
	case backend.JobFailed:
		o.warn("Machine translation for %s failed: %s", locale, status.Reason)
	case backend.JobTimedOut:
		o.warn("Machine translation for %s still pending after %s, continuing", locale, o.JobTimeout)
	}
}

// ---------------------------------------------------------------------------
// Export phase
// ---------------------------------------------------------------------------

// exportWithBackoff drives the per-locale export state machine: request,
// and on a rate-limited rejection wait (5 s doubling to 30 s) and retry,
// bounded by the ExportTimeout deadline. Any non-rate-limit error is
// terminal for the locale.
func (s *Syncer) exportWithBackoff(ctx context.Context, locale string) (string, error) {
	o := &s.opts
	deadline := time.Now().Add(o.ExportTimeout)
	backoffSeq := NewBackoff()

	for {
		url, err := s.backend.RequestExport(ctx, backend.ExportRequest{
			ProjectID: o.ProjectID,
			Locale:    locale,
			Format:    o.ExportFormat,
		})
		if err == nil {
			return url, nil
		}

		var rle *backend.RateLimitError
		if !errors.As(err, &rle) {
			return "", err
		}

		wait := backoffSeq.Next()
		if time.Now().Add(wait).After(deadline) {
			return "", fmt.Errorf("export timed out after %s", o.ExportTimeout)
		}
		o.warn("Export for %s rate limited, retrying in %s", locale, wait)
		if err := o.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
}

// processLocale runs export → download → extract → validate → write for
// one locale. Failures are recorded locale-scoped; the run continues.
func (s *Syncer) processLocale(ctx context.Context, stats *RunStats, files []scan.NeutralFile, locale string, neutralKeys *keyCache) {
	o := &s.opts
	o.log("Processing locale %s", locale)

	bundleURL, err := s.exportWithBackoff(ctx, locale)
	if err != nil {
		o.logError("Export for %s: %v", locale, err)
		stats.fail(ctxExport, "%s: %v", locale, err)
		return
	}

	data, err := s.backend.DownloadBundle(ctx, bundleURL)
	if err != nil {
		o.logError("Download for %s: %v", locale, err)
		stats.fail(ctxDownload, "%s: %v", locale, err)
		return
	}

	extractor := &bundle.Extractor{Extension: o.Extension, OnLog: o.warn}
	entries := extractor.Extract(data)
	stats.LocalesProcessed++
	if o.Verbose {
		o.log("  %s: bundle holds %d resource entries", locale, len(entries))
	}

	// Deterministic entry order for reproducible logging.
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s.writeEntry(stats, files, locale, name, entries[name], neutralKeys)
	}
}

// ---------------------------------------------------------------------------
// Write phase
// ---------------------------------------------------------------------------

// writeEntry matches one extracted entry to its neutral counterpart,
// gates on key completeness, and hands the payload to the writer.
func (s *Syncer) writeEntry(stats *RunStats, files []scan.NeutralFile, locale, name string, payload []byte, cache *keyCache) {
	o := &s.opts

	neutral, ok := matchNeutral(files, name)
	if !ok {
		o.log("  %s: no neutral counterpart for bundle entry %q, skipping", locale, name)
		return
	}

	neutralSet, err := cache.keySet(neutral.AbsPath)
	if err != nil {
		o.logError("  %s: extracting keys of %s: %v", locale, neutral.RelPath, err)
		stats.fail(ctxKeyCheck, "%s %s: reading neutral keys: %v", locale, neutral.RelPath, err)
		return
	}
	candidateSet, err := resxfile.KeySetOf(payload)
	if err != nil {
		o.logError("  %s: candidate %q is malformed: %v", locale, name, err)
		stats.fail(ctxKeyCheck, "%s %s: malformed candidate: %v", locale, name, err)
		return
	}

	if missing := neutralSet.Missing(candidateSet); len(missing) > 0 {
		o.logError("  %s: %s is missing key(s): %s", locale, name, strings.Join(missing, ", "))
		stats.fail(ctxKeyCheck, "%s %s: missing keys: %s", locale, name, strings.Join(missing, ", "))
		return
	}

	w := writer.NewWithFs(s.fs)
	w.DryRun = o.DryRun
	dest := writer.DestinationPath(neutral.Dir, neutral.BaseName(), locale, o.Extension)
	decision, err := w.Write(dest, payload)
	if err != nil {
		o.logError("  %s: writing %s: %v", locale, dest, err)
		stats.fail(ctxWrite, "%s %s: %v", locale, dest, err)
		return
	}

	switch decision {
	case writer.Create:
		o.log("  Created %s", dest)
		stats.FilesCreated++
	case writer.Update:
		o.log("  Updated %s", dest)
		stats.FilesUpdated++
	case writer.Skip:
		if o.Verbose {
			o.log("  Unchanged %s", dest)
		}
		stats.FilesSkipped++
	}
}

// matchNeutral finds the neutral counterpart of a bundle entry name:
// relative-path equality first, then base-name equality.
func matchNeutral(files []scan.NeutralFile, name string) (scan.NeutralFile, bool) {
	clean := strings.TrimPrefix(name, "./")
	for _, f := range files {
		if f.RelPath == clean {
			return f, true
		}
	}
	base := clean
	if idx := strings.LastIndex(clean, "/"); idx >= 0 {
		base = clean[idx+1:]
	}
	for _, f := range files {
		if f.Name == base {
			return f, true
		}
	}
	return scan.NeutralFile{}, false
}

// ---------------------------------------------------------------------------
// Neutral key cache
// ---------------------------------------------------------------------------

// keyCache memoizes neutral key sets so each file is parsed once per run,
// not once per locale.
type keyCache struct {
	fs   afero.Fs
	sets map[string]resxfile.KeySet
}

func newKeyCache(fs afero.Fs) *keyCache {
	return &keyCache{fs: fs, sets: make(map[string]resxfile.KeySet)}
}

func (c *keyCache) keySet(path string) (resxfile.KeySet, error) {
	if set, ok := c.sets[path]; ok {
		return set, nil
	}
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, err
	}
	set, err := resxfile.KeySetOf(data)
	if err != nil {
		return nil, err
	}
	c.sets[path] = set
	return set, nil
}
