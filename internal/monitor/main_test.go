package monitor

import (
	"io"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/vitalcam/vitalcam/internal/logger"
	"github.com/vitalcam/vitalcam/internal/observability/metrics"
	"github.com/vitalcam/vitalcam/internal/synth"
)

// TestMain verifies no goroutines leak. The go-cache janitor lives until its
// cache is garbage collected.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

const frameInterval = time.Second / 30

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func newTestSession(t *testing.T, cfg Config) (*Session, *metrics.TestRecorder) {
	t.Helper()
	rec := metrics.NewTestRecorder()
	s, err := NewSession("test", cfg, WithRecorder(rec), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s, rec
}

// run feeds frames from subject for the given number of ticks starting at tick from.
func run(s *Session, subject *synth.Subject, from, ticks int) {
	for i := from; i < from+ticks; i++ {
		f := subject.Render(epoch.Add(time.Duration(i) * frameInterval))
		s.ProcessFrame(f.At, f.Image, f.Face)
	}
}
