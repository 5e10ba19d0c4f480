package syncer

import "time"

// Export backoff policy: the wait after the first rate-limited rejection is
// BackoffInitial and doubles per rejection, capped at BackoffMax. This
// governs retrying the export request itself and is deliberately distinct
// from job-completion polling, which runs at a constant cadence.
const (
	BackoffInitial = 5 * time.Second
	BackoffMax     = 30 * time.Second
)

// Backoff yields the doubling wait sequence.
type Backoff struct {
	next time.Duration
}

// NewBackoff starts a fresh sequence at BackoffInitial.
func NewBackoff() *Backoff {
	return &Backoff{next: BackoffInitial}
}

// Next returns the wait before the next attempt and advances the sequence.
func (b *Backoff) Next() time.Duration {
	wait := b.next
	b.next *= 2
	if b.next > BackoffMax {
		b.next = BackoffMax
	}
	return wait
}
