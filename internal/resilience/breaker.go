package resilience

import (
	"sync"
	"time"
)

// Breaker is a consecutive-failure circuit breaker. Once RecordFailure has
// been called threshold times in a row, Allow returns false and the owner is
// expected to skip its external call silently. A single RecordSuccess resets
// the counter and closes the breaker. After the recovery interval elapses a
// probe call is allowed through so a recovered service can reset the breaker.
//
// The breaker is owned by one component instance and shared across requests
// for the process lifetime; it is safe for concurrent use.
type Breaker struct {
	mu         sync.Mutex
	threshold  int
	recovery   time.Duration
	consec     int
	openedAt   time.Time
	probeGiven bool

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and allows a probe after the recovery interval.
func NewBreaker(threshold int, recovery time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if recovery <= 0 {
		recovery = 5 * time.Minute
	}
	return &Breaker{
		threshold: threshold,
		recovery:  recovery,
		nowFunc:   time.Now,
	}
}

// Allow reports whether the next call may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consec < b.threshold {
		return true
	}
	// Open: allow one probe once the recovery interval has elapsed.
	if !b.probeGiven && b.nowFunc().Sub(b.openedAt) >= b.recovery {
		b.probeGiven = true
		return true
	}
	return false
}

// RecordFailure counts a consecutive failure; the threshold'th opens the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consec++
	if b.consec == b.threshold {
		b.openedAt = b.nowFunc()
	}
	if b.consec > b.threshold {
		// A failed probe restarts the recovery wait.
		b.openedAt = b.nowFunc()
		b.probeGiven = false
	}
}

// RecordSuccess resets the counter and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consec = 0
	b.probeGiven = false
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consec >= b.threshold
}

// ConsecutiveFailures returns the current failure streak for observability.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consec
}
