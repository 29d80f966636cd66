// Package testutil provides shared helpers for tests that wait on goroutines.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for operations expected to complete quickly.
	ShortTestTimeout = 1 * time.Second
)

// WaitForChannel waits for a signal on the channel or fails after timeout.
func WaitForChannel(t testing.TB, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	RequireReceive(t, ch, timeout, msg)
}

// RequireReceive returns the next value from ch, failing the test if none
// arrives within timeout. Typical use is collecting the error of a Run loop
// after cancelling its context.
func RequireReceive[T any](t testing.TB, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		require.FailNow(t, msg)
	}
	var zero T
	return zero
}
