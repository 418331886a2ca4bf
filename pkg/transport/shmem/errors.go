package shmem

import (
	"errors"
	"time"
)

// errMessageBadAlloc is raised by an Allocator when no free block satisfies
// a request; AllocWithRetry wraps it with the bounded/unbounded retry
// policy of §4.7.
var errMessageBadAlloc = errors.New("shmem: message bad alloc")

// ErrMessageBadAlloc is the sentinel a caller should match against after
// AllocWithRetry's attempts are exhausted (§7's MessageBadAlloc).
var ErrMessageBadAlloc = errMessageBadAlloc

// RetryPolicy configures AllocWithRetry per §4.7: maxAttempts == -1 means
// unbounded retries; at least one attempt is always made regardless of
// maxAttempts.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// AllocWithRetry calls a.Alloc(size) under policy, retrying on
// ErrMessageBadAlloc with a fixed inter-attempt delay until an attempt
// succeeds, the attempt budget is exhausted, or interrupted reports true.
func AllocWithRetry(a Allocator, size int, policy RetryPolicy, interrupted func() bool) (int, error) {
	attempt := 0
	for {
		offset, err := a.Alloc(size)
		if err == nil {
			return offset, nil
		}
		if !errors.Is(err, errMessageBadAlloc) {
			return 0, err
		}
		attempt++
		if policy.MaxAttempts >= 0 && attempt >= policy.MaxAttempts {
			return 0, err
		}
		if interrupted != nil && interrupted() {
			return 0, err
		}
		if policy.Interval > 0 {
			time.Sleep(policy.Interval)
		}
	}
}
