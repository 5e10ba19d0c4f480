package syncer

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlocalize/resxsync/backend"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func resxDoc(keys ...string) []byte {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<root>\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  <data name=%q xml:space=\"preserve\">\n    <value>%s translated</value>\n  </data>\n", k, k)
	}
	b.WriteString("</root>\n")
	return []byte(b.String())
}

// storeArchive builds a minimal archive of stored (uncompressed) entries.
func storeArchive(entries map[string][]byte) []byte {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	var buf bytes.Buffer
	for _, name := range names {
		content := entries[name]
		header := make([]byte, 30)
		binary.LittleEndian.PutUint32(header[0:], 0x04034b50)
		binary.LittleEndian.PutUint16(header[4:], 20)
		binary.LittleEndian.PutUint16(header[8:], 0) // store
		binary.LittleEndian.PutUint32(header[14:], crc32.ChecksumIEEE(content))
		binary.LittleEndian.PutUint32(header[18:], uint32(len(content)))
		binary.LittleEndian.PutUint32(header[22:], uint32(len(content)))
		binary.LittleEndian.PutUint16(header[26:], uint16(len(name)))
		buf.Write(header)
		buf.WriteString(name)
		buf.Write(content)
	}
	return buf.Bytes()
}

// ---------------------------------------------------------------------------
// Fake backend
// ---------------------------------------------------------------------------

type fakeBackend struct {
	languages []string
	langErr   error

	uploadState  backend.JobState
	uploadReason string
	uploadErr    error

	translateErr   error
	translateState backend.JobState

	// exportErrs are consumed one per RequestExport call; once exhausted
	// the call succeeds.
	exportErrs  []error
	bundles     map[string][]byte
	downloadErr error

	uploads     []backend.UploadRequest
	translates  []backend.TranslateRequest
	exportCalls int
	downloads   []string
	langCalls   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		uploadState:    backend.JobFinished,
		translateState: backend.JobFinished,
		bundles:        map[string][]byte{},
	}
}

func (f *fakeBackend) ProjectLanguages(ctx context.Context, projectID string) ([]string, error) {
	f.langCalls++
	return f.languages, f.langErr
}

func (f *fakeBackend) UploadFile(ctx context.Context, req backend.UploadRequest) (*backend.Operation, error) {
	f.uploads = append(f.uploads, req)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &backend.Operation{Job: &backend.JobHandle{ID: "upload"}}, nil
}

func (f *fakeBackend) TriggerMachineTranslation(ctx context.Context, req backend.TranslateRequest) (*backend.Operation, error) {
	f.translates = append(f.translates, req)
	if f.translateErr != nil {
		return nil, f.translateErr
	}
	return &backend.Operation{Job: &backend.JobHandle{ID: "translate"}}, nil
}

func (f *fakeBackend) RequestExport(ctx context.Context, req backend.ExportRequest) (string, error) {
	f.exportCalls++
	if len(f.exportErrs) > 0 {
		err := f.exportErrs[0]
		f.exportErrs = f.exportErrs[1:]
		return "", err
	}
	return "https://cdn.example.com/bundles/" + req.Locale, nil
}

func (f *fakeBackend) DownloadBundle(ctx context.Context, url string) ([]byte, error) {
	f.downloads = append(f.downloads, url)
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	locale := url[strings.LastIndex(url, "/")+1:]
	return f.bundles[locale], nil
}

func (f *fakeBackend) Resolve(ctx context.Context, op *backend.Operation, timeout time.Duration) (*backend.JobStatus, error) {
	if !op.Deferred() {
		return &backend.JobStatus{State: backend.JobFinished, Result: op.Result}, nil
	}
	switch op.Job.ID {
	case "upload":
		return &backend.JobStatus{State: f.uploadState, Reason: f.uploadReason}, nil
	case "translate":
		return &backend.JobStatus{State: f.translateState}, nil
	}
	return &backend.JobStatus{State: backend.JobFinished}, nil
}

// ---------------------------------------------------------------------------
// Test harness
// ---------------------------------------------------------------------------

type harness struct {
	fs      afero.Fs
	backend *fakeBackend
	waits   []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{fs: afero.NewMemMapFs(), backend: newFakeBackend()}
	require.NoError(t, h.fs.MkdirAll("/project", 0o755))
	return h
}

func (h *harness) addNeutral(t *testing.T, rel string, keys ...string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(h.fs, "/project/"+rel, resxDoc(keys...), 0o644))
}

func (h *harness) run(t *testing.T, opts Options) (*RunStats, error) {
	t.Helper()
	opts.sleep = func(ctx context.Context, d time.Duration) error {
		h.waits = append(h.waits, d)
		return nil
	}
	s := NewWithFs(h.fs, h.backend, opts)
	return s.Run(context.Background(), "/project")
}

func baseOptions(locales ...string) Options {
	return Options{
		ProjectID: "proj-1",
		Locales:   locales,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRunHappyPath(t *testing.T) {
	h := newHarness(t)
	h.addNeutral(t, "Strings.resx", "Greeting", "Farewell")
	// A pre-existing translation must not count as a neutral file.
	require.NoError(t, afero.WriteFile(h.fs, "/project/Strings.fr.resx", resxDoc("Greeting", "Farewell"), 0o644))

	h.backend.languages = []string{"fr", "fr-CA"}
	h.backend.bundles["fr-CA"] = storeArchive(map[string][]byte{
		"Strings.resx": resxDoc("Greeting", "Farewell"),
	})

	stats, err := h.run(t, baseOptions("fr-CA"))
	require.NoError(t, err)
	assert.False(t, stats.HasFailures(), "failures: %v", stats.Failures)

	assert.Equal(t, 1, stats.NeutralFilesFound)
	assert.Equal(t, 1, stats.FilesUploaded)
	assert.Equal(t, 1, stats.LocalesProcessed)
	assert.Equal(t, 1, stats.FilesCreated)
	assert.Equal(t, 0, stats.FilesUpdated)

	written, err := afero.ReadFile(h.fs, "/project/Strings.fr-CA.resx")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(written, []byte{0xEF, 0xBB, 0xBF}), "missing BOM")

	require.Len(t, h.backend.uploads, 1)
	assert.Equal(t, "Strings.resx", h.backend.uploads[0].Filename)
	assert.Equal(t, "en", h.backend.uploads[0].SourceLocale)
	require.Len(t, h.backend.translates, 1)
	assert.Equal(t, backend.TranslateModeMissingOnly, h.backend.translates[0].Mode)
}

func TestRunSecondPassSkipsIdenticalFiles(t *testing.T) {
	h := newHarness(t)
	h.addNeutral(t, "Strings.resx", "Greeting")
	h.backend.languages = []string{"de"}
	h.backend.bundles["de"] = storeArchive(map[string][]byte{
		"Strings.resx": resxDoc("Greeting"),
	})

	stats, err := h.run(t, baseOptions("de"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesCreated)

	stats, err = h.run(t, baseOptions("de"))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesCreated)
	assert.Equal(t, 0, stats.FilesUpdated)
	assert.Equal(t, 1, stats.FilesSkipped)
}

func TestRunMissingKeyRecordsKeyCheckFailure(t *testing.T) {
	h := newHarness(t)
	h.addNeutral(t, "Strings.resx", "Greeting", "Farewell")
	h.backend.languages = []string{"de"}
	h.backend.bundles["de"] = storeArchive(map[string][]byte{
		"Strings.resx": resxDoc("Greeting"), // Farewell absent
	})

	stats, err := h.run(t, baseOptions("de"))
	require.NoError(t, err)

	require.True(t, stats.HasFailures())
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, "KeyCheck", stats.Failures[0].Context)
	assert.Contains(t, stats.Failures[0].Message, "Farewell")

	// An incomplete candidate must never reach disk.
	exists, _ := afero.Exists(h.fs, "/project/Strings.de.resx")
	assert.False(t, exists)
	assert.Equal(t, 0, stats.FilesCreated)
}

func TestRunGarbageNeutralFileFailsKeyCheck(t *testing.T) {
	h := newHarness(t)
	// A neutral file that is not XML at all must surface as a key-check
	// failure, never as an empty key set that lets any candidate through.
	require.NoError(t, afero.WriteFile(h.fs, "/project/Strings.resx", []byte("key = value\n"), 0o644))
	h.backend.languages = []string{"de"}
	h.backend.bundles["de"] = storeArchive(map[string][]byte{
		"Strings.resx": resxDoc("Greeting"),
	})

	stats, err := h.run(t, baseOptions("de"))
	require.NoError(t, err)

	require.True(t, stats.HasFailures())
	assert.Equal(t, "KeyCheck", stats.Failures[0].Context)

	exists, _ := afero.Exists(h.fs, "/project/Strings.de.resx")
	assert.False(t, exists)
	assert.Equal(t, 0, stats.FilesCreated)
}

func TestRunLocaleValidationIsFatal(t *testing.T) {
	h := newHarness(t)
	h.addNeutral(t, "Strings.resx", "Greeting")
	h.backend.languages = []string{"de", "fr"}

	_, err := h.run(t, baseOptions("fr", "pt-BR"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"pt-BR"}, verr.Invalid)
	assert.Equal(t, []string{"de", "fr"}, verr.Available)

	// Validation happens before any mutation.
	assert.Empty(t, h.backend.uploads)
	assert.Empty(t, h.backend.translates)
	assert.Zero(t, h.backend.exportCalls)
}

func TestRunProceedsWhenLanguageListUnavailable(t *testing.T) {
	for name, setup := range map[string]func(*fakeBackend){
		"fetch error": func(f *fakeBackend) { f.langErr = errors.New("boom") },
		"empty list":  func(f *fakeBackend) { f.languages = nil },
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.addNeutral(t, "Strings.resx", "Greeting")
			setup(h.backend)
			h.backend.bundles["xx"] = storeArchive(map[string][]byte{
				"Strings.resx": resxDoc("Greeting"),
			})

			var warnings []string
			opts := baseOptions("xx")
			opts.OnWarn = func(format string, args ...any) {
				warnings = append(warnings, fmt.Sprintf(format, args...))
			}

			stats, err := h.run(t, opts)
			require.NoError(t, err)
			assert.False(t, stats.HasFailures())
			assert.Equal(t, 1, stats.FilesCreated)
			assert.NotEmpty(t, warnings)
		})
	}
}

func TestRunDryRunMakesNoRemoteCallsAndNoWrites(t *testing.T) {
	h := newHarness(t)
	h.addNeutral(t, "Strings.resx", "Greeting")

	opts := baseOptions("de")
	opts.DryRun = true
	var logs []string
	opts.OnLog = func(format string, args ...any) {
		logs = append(logs, fmt.Sprintf(format, args...))
	}

	stats, err := h.run(t, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NeutralFilesFound)
	assert.False(t, stats.HasFailures())

	assert.Zero(t, h.backend.langCalls)
	assert.Empty(t, h.backend.uploads)
	assert.Empty(t, h.backend.translates)
	assert.Zero(t, h.backend.exportCalls)

	exists, _ := afero.Exists(h.fs, "/project/Strings.de.resx")
	assert.False(t, exists)
	assert.Contains(t, strings.Join(logs, "\n"), "Would upload Strings.resx")
}

func TestRunExportRetriesAfterRateLimit(t *testing.T) {
	h := newHarness(t)
	h.addNeutral(t, "Strings.resx", "Greeting")
	h.backend.languages = []string{"de"}
	h.backend.exportErrs = []error{
		&backend.RateLimitError{},
		&backend.RateLimitError{},
	}
	h.backend.bundles["de"] = storeArchive(map[string][]byte{
		"Strings.resx": resxDoc("Greeting"),
	})

	stats, err := h.run(t, baseOptions("de"))
	require.NoError(t, err)
	assert.False(t, stats.HasFailures())
	assert.Equal(t, 1, stats.FilesCreated)

	assert.Equal(t, 3, h.backend.exportCalls)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, h.waits)
}

func TestRunExportTimeoutFailsLocaleOnly(t *testing.T) {
	h := newHarness(t)
	h.addNeutral(t, "Strings.resx", "Greeting")
	h.backend.languages = []string{"de", "fr"}
	// Every fr export is rejected; de succeeds immediately after.
	h.backend.exportErrs = []error{&backend.RateLimitError{}}
	h.backend.bundles["de"] = storeArchive(map[string][]byte{
		"Strings.resx": resxDoc("Greeting"),
	})

	opts := baseOptions("fr", "de")
	opts.ExportTimeout = time.Second // below the first backoff wait

	stats, err := h.run(t, opts)
	require.NoError(t, err)

	require.Len(t, stats.Failures, 1)
	assert.Equal(t, "Export", stats.Failures[0].Context)
	assert.Contains(t, stats.Failures[0].Message, "fr")

	// The other locale still synchronized.
	assert.Equal(t, 1, stats.LocalesProcessed)
	assert.Equal(t, 1, stats.FilesCreated)
	assert.Empty(t, h.waits, "timeout must preempt the wait, not follow it")
}

func TestRunExportHardErrorIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.addNeutral(t, "Strings.resx", "Greeting")
	h.backend.languages = []string{"de"}
	h.backend.exportErrs = []error{&backend.APIError{StatusCode: 500, Message: "internal"}}

	stats, err := h.run(t, baseOptions("de"))
	require.NoError(t, err)

	require.Len(t, stats.Failures, 1)
	assert.Equal(t, "Export", stats.Failures[0].Context)
	assert.Equal(t, 1, h.backend.exportCalls)
	assert.Empty(t, h.waits)
}

func TestRunUploadFailureDoesNotBlockLocales(t *testing.T) {
	h := newHarness(t)
	h.addNeutral(t, "Strings.resx", "Greeting")
	h.backend.languages = []string{"de"}
	h.backend.uploadState = backend.JobFailed
	h.backend.uploadReason = "quota exceeded"
	h.backend.bundles["de"] = storeArchive(map[string][]byte{
		"Strings.resx": resxDoc("Greeting"),
	})

	stats, err := h.run(t, baseOptions("de"))
	require.NoError(t, err)

	assert.Equal(t, 0, stats.FilesUploaded)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, "Upload", stats.Failures[0].Context)
	assert.Contains(t, stats.Failures[0].Message, "quota exceeded")

	// The export pipeline still ran for the locale.
	assert.Equal(t, 1, stats.LocalesProcessed)
	assert.Equal(t, 1, stats.FilesCreated)
}

func TestRunUploadTimeoutIsWarningOnly(t *testing.T) {
	h := newHarness(t)
	h.addNeutral(t, "Strings.resx", "Greeting")
	h.backend.languages = []string{"de"}
	h.backend.uploadState = backend.JobTimedOut
	h.backend.bundles["de"] = storeArchive(map[string][]byte{
		"Strings.resx": resxDoc("Greeting"),
	})

	var warnings []string
	opts := baseOptions("de")
	opts.OnWarn = func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	stats, err := h.run(t, opts)
	require.NoError(t, err)
	assert.False(t, stats.HasFailures())
	assert.Equal(t, 0, stats.FilesUploaded)
	assert.NotEmpty(t, warnings)
}

func TestRunTranslationFailureIsWarningOnly(t *testing.T) {
	h := newHarness(t)
	h.addNeutral(t, "Strings.resx", "Greeting")
	h.backend.languages = []string{"de"}
	h.backend.translateErr = errors.New("engine unavailable")
	h.backend.bundles["de"] = storeArchive(map[string][]byte{
		"Strings.resx": resxDoc("Greeting"),
	})

	var warnings []string
	opts := baseOptions("de")
	opts.OnWarn = func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	stats, err := h.run(t, opts)
	require.NoError(t, err)
	assert.False(t, stats.HasFailures())
	assert.Equal(t, 1, stats.FilesCreated)
	assert.NotEmpty(t, warnings)
}

func TestRunDownloadFailureIsLocaleScoped(t *testing.T) {
	h := newHarness(t)
	h.addNeutral(t, "Strings.resx", "Greeting")
	h.backend.languages = []string{"de"}
	h.backend.downloadErr = errors.New("connection reset")

	stats, err := h.run(t, baseOptions("de"))
	require.NoError(t, err)

	require.Len(t, stats.Failures, 1)
	assert.Equal(t, "Download", stats.Failures[0].Context)
	assert.Equal(t, 0, stats.LocalesProcessed)
}

func TestRunUnmatchedBundleEntryIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.addNeutral(t, "Strings.resx", "Greeting")
	h.backend.languages = []string{"de"}
	h.backend.bundles["de"] = storeArchive(map[string][]byte{
		"Strings.resx":  resxDoc("Greeting"),
		"Orphaned.resx": resxDoc("Greeting"),
	})

	stats, err := h.run(t, baseOptions("de"))
	require.NoError(t, err)
	assert.False(t, stats.HasFailures())
	assert.Equal(t, 1, stats.FilesCreated)

	exists, _ := afero.Exists(h.fs, "/project/Orphaned.de.resx")
	assert.False(t, exists)
}

func TestRunMatchesNestedEntriesByRelPath(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.fs.MkdirAll("/project/App/Resources", 0o755))
	h.addNeutral(t, "App/Resources/Strings.resx", "Greeting")
	h.backend.languages = []string{"de"}
	h.backend.bundles["de"] = storeArchive(map[string][]byte{
		"App/Resources/Strings.resx": resxDoc("Greeting"),
	})

	stats, err := h.run(t, baseOptions("de"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesCreated)

	exists, _ := afero.Exists(h.fs, "/project/App/Resources/Strings.de.resx")
	assert.True(t, exists)
}

func TestRunNoNeutralFilesIsCleanNoOp(t *testing.T) {
	h := newHarness(t)
	h.backend.languages = []string{"de"}

	stats, err := h.run(t, baseOptions("de"))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NeutralFilesFound)
	assert.False(t, stats.HasFailures())
	assert.Zero(t, h.backend.langCalls)
	assert.Empty(t, h.backend.uploads)
}

func TestRunLockSkipsUnchangedUploads(t *testing.T) {
	h := newHarness(t)
	h.addNeutral(t, "Strings.resx", "Greeting")
	h.backend.languages = []string{"de"}
	h.backend.bundles["de"] = storeArchive(map[string][]byte{
		"Strings.resx": resxDoc("Greeting"),
	})

	opts := baseOptions("de")
	opts.UseLock = true

	stats, err := h.run(t, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesUploaded)
	require.Len(t, h.backend.uploads, 1)

	// Second run: content unchanged, upload skipped via resxsync.lock.
	stats, err = h.run(t, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesUploaded)
	assert.Len(t, h.backend.uploads, 1)
	assert.False(t, stats.HasFailures())

	// Edited content is uploaded again.
	h.addNeutral(t, "Strings.resx", "Greeting", "Farewell")
	h.backend.bundles["de"] = storeArchive(map[string][]byte{
		"Strings.resx": resxDoc("Greeting", "Farewell"),
	})
	stats, err = h.run(t, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesUploaded)
	assert.Len(t, h.backend.uploads, 2)
}

func TestValidateLocales(t *testing.T) {
	assert.NoError(t, ValidateLocales([]string{"fr"}, []string{"fr", "de"}))
	assert.NoError(t, ValidateLocales([]string{"fr"}, nil))

	err := ValidateLocales([]string{"fr", "xx", "yy"}, []string{"fr"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"xx", "yy"}, verr.Invalid)
}
