package syncer

import "fmt"

// Failure is one recorded, non-fatal failure: the phase it happened in and
// the underlying message.
type Failure struct {
	// Context names the phase: Upload, Export, Download, KeyCheck, Write.
	Context string
	// Message is the diagnostic, including file/locale where relevant.
	Message string
}

func (f Failure) String() string {
	return fmt.Sprintf("[%s] %s", f.Context, f.Message)
}

// RunStats accumulates the outcome of one sync run. The orchestrator is
// its only mutator; everything else reports through return values.
type RunStats struct {
	// NeutralFilesFound is the size of the discovered neutral file set.
	NeutralFilesFound int
	// FilesUploaded counts successfully uploaded neutral files.
	FilesUploaded int
	// LocalesProcessed counts locales whose export bundle was obtained
	// and unpacked.
	LocalesProcessed int
	// FilesCreated / FilesUpdated / FilesSkipped count writer decisions.
	FilesCreated int
	FilesUpdated int
	FilesSkipped int
	// Failures is the list of recorded failures across all phases.
	Failures []Failure
}

// HasFailures reports whether any failure was recorded. The process exit
// status is non-zero exactly when this is true.
func (s *RunStats) HasFailures() bool {
	return len(s.Failures) > 0
}

// fail records a failure under a phase context.
func (s *RunStats) fail(context, format string, args ...any) {
	s.Failures = append(s.Failures, Failure{
		Context: context,
		Message: fmt.Sprintf(format, args...),
	})
}
