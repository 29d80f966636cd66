package vitals

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const frameRate = 30.0

func frameTime(i int) time.Time {
	return epoch.Add(time.Duration(float64(i) / frameRate * float64(time.Second)))
}

// pulse returns a green level oscillating at bpm.
func pulse(i int, bpm, base, amp float64) float64 {
	return base + amp*math.Sin(2*math.Pi*bpm/60*float64(i)/frameRate)
}

type recordingObserver struct {
	mu     sync.Mutex
	ok     map[string]int
	failed map[string][]string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{ok: map[string]int{}, failed: map[string][]string{}}
}

func (o *recordingObserver) ObserveEstimate(processor string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err == nil {
		o.ok[processor]++
		return
	}
	o.failed[processor] = append(o.failed[processor], Reason(err))
}

func newHeartRate(t *testing.T, opts ...Option) *HeartRateEstimator {
	t.Helper()
	e, err := NewHeartRateEstimator(DefaultHeartRateConfig(), opts...)
	require.NoError(t, err)
	return e
}

func TestHeartRateMeasuringUntilWindowFull(t *testing.T) {
	e := newHeartRate(t)

	for i := range 149 {
		e.AddSample(frameTime(i), pulse(i, 72, 120, 2))
	}

	hr := e.HeartRate()
	assert.Equal(t, StatusMeasuring, hr.Status)
	assert.Zero(t, hr.BPM)
	assert.False(t, hr.Valid())
	assert.InDelta(t, 149.0/150.0, e.Progress(), 1e-9)
	assert.Zero(t, e.Diagnostics().Recomputes)
}

func TestHeartRateRecoversSinusoid(t *testing.T) {
	for _, bpm := range []float64{60, 72, 90, 120} {
		t.Run(fmt.Sprintf("%.0f_bpm", bpm), func(t *testing.T) {
			e := newHeartRate(t)
			for i := range 300 {
				e.AddSample(frameTime(i), pulse(i, bpm, 120, 2))
			}

			hr := e.HeartRate()
			require.Equal(t, StatusFresh, hr.Status, "diagnostics: %+v", e.Diagnostics())
			assert.InDelta(t, bpm, hr.BPM, 3)
			assert.Positive(t, hr.Confidence)
			assert.LessOrEqual(t, hr.Confidence, 100)
			assert.True(t, hr.UpdatedAt.Equal(frameTime(299)))

			dbg := e.Debug()
			assert.InDelta(t, frameRate, dbg.SampleRate, 1e-6)
			assert.True(t, dbg.Filtered)
		})
	}
}

// feedNoisy adds n samples of a 120+amp*sin pulse at bpm with Gaussian noise
// of the given sigma, sampled at jittered frame times.
func feedNoisy(e *HeartRateEstimator, rng *rand.Rand, start, n int, bpm, amp, sigma float64, jitter time.Duration, each func()) {
	for i := start; i < start+n; i++ {
		ts := frameTime(i)
		if jitter > 0 {
			ts = ts.Add(time.Duration((rng.Float64()*2 - 1) * float64(jitter)))
		}
		t := ts.Sub(epoch).Seconds()
		e.AddSample(ts, 120+amp*math.Sin(2*math.Pi*bpm/60*t)+sigma*rng.NormFloat64())
		if each != nil {
			each()
		}
	}
}

func TestHeartRateRecoversNoisyJitteredPulse(t *testing.T) {
	for _, bpm := range []float64{45, 55, 72, 90, 110, 130, 150, 175} {
		t.Run(fmt.Sprintf("%.0f_bpm", bpm), func(t *testing.T) {
			e := newHeartRate(t)
			rng := rand.New(rand.NewPCG(7, uint64(bpm)))
			feedNoisy(e, rng, 0, 400, bpm, 2, 0.5, 4*time.Millisecond, nil)

			hr := e.HeartRate()
			require.Equal(t, StatusFresh, hr.Status, "diagnostics: %+v", e.Diagnostics())
			assert.InDelta(t, bpm, hr.BPM, 3)
			assert.InDelta(t, frameRate, e.Debug().SampleRate, 0.1)
		})
	}
}

func TestHeartRateSingleSpikeIsAbsorbed(t *testing.T) {
	e := newHeartRate(t)
	for i := range 300 {
		e.AddSample(frameTime(i), pulse(i, 72, 120, 2))
	}
	before := e.HeartRate()
	require.Equal(t, StatusFresh, before.Status)

	e.AddSample(frameTime(300), pulse(300, 72, 120, 2)+30)

	// two padded bins at 30 fps
	tolerance := 2 * frameRate * 60 / float64(DefaultHeartRateConfig().FFTSize)
	for i := 301; i < 500; i++ {
		e.AddSample(frameTime(i), pulse(i, 72, 120, 2))
		hr := e.HeartRate()
		require.Equal(t, StatusFresh, hr.Status, "sample %d: %+v", i, e.Diagnostics())
		require.InDelta(t, before.BPM, hr.BPM, tolerance, "sample %d", i)
	}
}

func TestHeartRateConfidenceFallsWithNoise(t *testing.T) {
	meanConfidence := func(sigma float64) float64 {
		e := newHeartRate(t)
		rng := rand.New(rand.NewPCG(11, 3))
		feedNoisy(e, rng, 0, 149, 72, 1, sigma, 0, nil)

		var sum, windows float64
		feedNoisy(e, rng, 149, 300, 72, 1, sigma, 0, func() {
			sum += float64(e.HeartRate().Confidence)
			windows++
		})
		return sum / windows
	}

	clean := meanConfidence(0.1)
	moderate := meanConfidence(2)
	heavy := meanConfidence(8)

	assert.GreaterOrEqual(t, clean, 90.0)
	assert.GreaterOrEqual(t, clean, moderate)
	assert.Greater(t, moderate, heavy)
	assert.Less(t, heavy, 80.0, "heavy noise must not report near-certain confidence")
}

func TestHeartRateConfidencePublishedDuringWarmUp(t *testing.T) {
	e := newHeartRate(t)
	for i := range 150 {
		e.AddSample(frameTime(i), pulse(i, 72, 120, 2))
	}

	hr := e.HeartRate()
	assert.Equal(t, StatusMeasuring, hr.Status)
	assert.Zero(t, hr.BPM)
	assert.Positive(t, hr.Confidence)
}

func TestHeartRateWaitsForMinimumHistory(t *testing.T) {
	e := newHeartRate(t)
	for i := range 151 {
		e.AddSample(frameTime(i), pulse(i, 72, 120, 2))
	}
	assert.Equal(t, StatusMeasuring, e.HeartRate().Status)
	assert.EqualValues(t, 2, e.Diagnostics().Recomputes)

	e.AddSample(frameTime(151), pulse(151, 72, 120, 2))
	assert.Equal(t, StatusFresh, e.HeartRate().Status)
}

func TestHeartRateRejectsOutOfRange(t *testing.T) {
	cfg := DefaultHeartRateConfig()
	cfg.MinBPM = 65
	obs := newRecordingObserver()
	e, err := NewHeartRateEstimator(cfg, WithObserver(obs))
	require.NoError(t, err)

	// 54 bpm sits inside the pass band but below the configured floor
	for i := range 200 {
		e.AddSample(frameTime(i), pulse(i, 54, 120, 2))
	}

	hr := e.HeartRate()
	assert.Equal(t, StatusMeasuring, hr.Status)
	assert.Zero(t, hr.BPM)

	diag := e.Diagnostics()
	assert.Zero(t, diag.Recomputes)
	assert.EqualValues(t, 51, diag.Failures)
	assert.Equal(t, "out_of_range", diag.LastFailure)
	assert.EqualValues(t, 51, diag.ByReason["out_of_range"])
	assert.Len(t, obs.failed[ProcessorHeartRate], 51)
}

func TestHeartRateFlatSignalMarksStale(t *testing.T) {
	e := newHeartRate(t)
	for i := range 200 {
		e.AddSample(frameTime(i), pulse(i, 72, 120, 2))
	}
	require.Equal(t, StatusFresh, e.HeartRate().Status)

	for i := 200; i < 350; i++ {
		e.AddSample(frameTime(i), 120)
	}

	after := e.HeartRate()
	assert.Equal(t, StatusStale, after.Status)
	assert.Positive(t, after.BPM, "previous reading is retained")
	assert.Equal(t, "flat_signal", e.Diagnostics().LastFailure)
}

func TestHeartRateZeroSpan(t *testing.T) {
	e := newHeartRate(t)
	for i := range 150 {
		e.AddSample(epoch, pulse(i, 72, 120, 2))
	}
	assert.Equal(t, "short_span", e.Diagnostics().LastFailure)
}

func TestHeartRateOutOfOrderSample(t *testing.T) {
	e := newHeartRate(t)
	e.AddSample(frameTime(10), 120)
	e.AddSample(frameTime(5), 121)

	assert.InDelta(t, 1.0/150.0, e.Progress(), 1e-9)
	assert.Equal(t, "out_of_order", e.Diagnostics().LastFailure)
}

func TestHeartRateResetIsIdempotent(t *testing.T) {
	e := newHeartRate(t)
	for i := range 200 {
		e.AddSample(frameTime(i), pulse(i, 72, 120, 2))
	}
	require.True(t, e.HeartRate().Valid())

	e.Reset()
	first := e.HeartRate()
	e.Reset()

	assert.Equal(t, first, e.HeartRate())
	assert.Equal(t, HeartRate{}, e.HeartRate())
	assert.Zero(t, e.Progress())
	assert.Equal(t, HeartRateDebug{}, e.Debug())
	_, ok := e.ROI()
	assert.False(t, ok)

	// counters are cumulative
	assert.Positive(t, e.Diagnostics().Recomputes)

	// a reset estimator starts over from the measuring state
	for i := range 151 {
		e.AddSample(frameTime(1000+i), pulse(i, 72, 120, 2))
	}
	assert.Equal(t, StatusMeasuring, e.HeartRate().Status)
}

func TestHeartRateInvalidConfig(t *testing.T) {
	cfg := DefaultHeartRateConfig()
	cfg.BandHigh = cfg.BandLow
	_, err := NewHeartRateEstimator(cfg)
	require.Error(t, err)
}

func TestHeartRateProcessFrame(t *testing.T) {
	tick := 0
	clock := func() time.Time { return frameTime(tick) }
	e := newHeartRate(t, WithClock(clock))

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	face := image.Rect(8, 4, 56, 44)

	e.ProcessFrame(img, nil)
	assert.Zero(t, e.Progress(), "frames without a face are ignored")

	for ; tick < 200; tick++ {
		g := uint8(math.Round(pulse(tick, 72, 120, 6)))
		fillRGBA(img, color.RGBA{R: 150, G: g, B: 90, A: 255})
		e.ProcessFrame(img, &face)
	}

	roi, ok := e.ROI()
	require.True(t, ok)
	assert.Equal(t, ForeheadPulse.Rect(face, img.Bounds()), roi)

	hr := e.HeartRate()
	require.Equal(t, StatusFresh, hr.Status, "diagnostics: %+v", e.Diagnostics())
	assert.InDelta(t, 72, hr.BPM, 3)
}

func TestHeartRateConcurrentReaders(t *testing.T) {
	e := newHeartRate(t)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for range 4 {
		wg.Go(func() {
			for {
				select {
				case <-done:
					return
				default:
				}
				hr := e.HeartRate()
				if hr.Status == StatusMeasuring {
					assert.Zero(t, hr.BPM)
				} else {
					assert.Greater(t, hr.BPM, 40.0)
					assert.Less(t, hr.BPM, 180.0)
				}
				_ = e.Progress()
				_ = e.Diagnostics()
			}
		})
	}

	for i := range 400 {
		e.AddSample(frameTime(i), pulse(i, 72, 120, 2))
		if i == 250 {
			e.Reset()
		}
	}
	close(done)
	wg.Wait()
}

func fillRGBA(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}
