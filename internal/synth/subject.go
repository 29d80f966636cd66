// Package synth renders camera frames of a synthetic subject whose skin
// brightness follows a known pulse, for the simulate command and tests.
package synth

import (
	"image"
	"image/color"
	"math"
	"math/rand/v2"
	"time"
)

// Interval is a span of elapsed time, start inclusive and end exclusive.
type Interval struct {
	From, To time.Duration
}

func (iv Interval) contains(d time.Duration) bool {
	return d >= iv.From && d < iv.To
}

// Frame is one rendered tick. Face is nil while the subject is absent.
type Frame struct {
	At    time.Time
	Image *image.RGBA
	Face  *image.Rectangle
}

// Subject describes what the camera sees.
type Subject struct {
	Width, Height int
	Face          image.Rectangle
	Skin          color.RGBA
	Background    uint8

	// HeartRate is the pulse frequency in beats per minute.
	HeartRate float64
	// PulseAmplitude is the green swing in 8-bit units.
	PulseAmplitude float64
	// R is the ratio of ratios encoded in the red and blue swings.
	R float64
	// BlueModulation is the relative blue swing; red gets R times as much.
	BlueModulation float64

	// Noise is the standard deviation of a per-frame brightness offset.
	Noise float64
	// Jitter moves the face box by up to this many pixels per frame.
	Jitter int
	// Absent lists spans with no face in view.
	Absent []Interval

	start time.Time
	rng   *rand.Rand
}

// Option customizes a Subject.
type Option func(*Subject)

// WithHeartRate sets the pulse in BPM.
func WithHeartRate(bpm float64) Option {
	return func(s *Subject) { s.HeartRate = bpm }
}

// WithSpO2 encodes the R value that maps to spo2 under SpO2 = a - b*R.
func WithSpO2(spo2, a, b float64) Option {
	return func(s *Subject) { s.R = RForSpO2(spo2, a, b) }
}

// WithR sets the ratio of ratios directly.
func WithR(r float64) Option {
	return func(s *Subject) { s.R = r }
}

// WithNoise adds a random brightness offset per frame.
func WithNoise(stddev float64) Option {
	return func(s *Subject) { s.Noise = stddev }
}

// WithJitter moves the face box randomly by up to px pixels.
func WithJitter(px int) Option {
	return func(s *Subject) { s.Jitter = px }
}

// WithAbsence hides the face between from and to.
func WithAbsence(from, to time.Duration) Option {
	return func(s *Subject) { s.Absent = append(s.Absent, Interval{From: from, To: to}) }
}

// WithSeed makes noise and jitter reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Subject) { s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// RForSpO2 inverts the linear calibration SpO2 = a - b*R.
func RForSpO2(spo2, a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return (a - spo2) / b
}

// NewSubject returns a 320x240 scene with a centred face, a 72 BPM pulse and
// an R of 0.5, starting at start.
func NewSubject(start time.Time, opts ...Option) *Subject {
	s := &Subject{
		Width:          320,
		Height:         240,
		Face:           image.Rect(100, 40, 220, 200),
		Skin:           color.RGBA{R: 180, G: 120, B: 100, A: 255},
		Background:     40,
		HeartRate:      72,
		PulseAmplitude: 2,
		R:              0.5,
		BlueModulation: 0.02,
		start:          start,
		rng:            rand.New(rand.NewPCG(1, 2)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start returns the time of elapsed zero.
func (s *Subject) Start() time.Time {
	return s.start
}

// Render draws the scene at ts. Not safe for concurrent use.
func (s *Subject) Render(ts time.Time) Frame {
	elapsed := ts.Sub(s.start)
	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = s.Background
		img.Pix[i+1] = s.Background
		img.Pix[i+2] = s.Background
		img.Pix[i+3] = 255
	}

	if s.absent(elapsed) {
		return Frame{At: ts, Image: img}
	}

	face := s.Face
	if s.Jitter > 0 {
		face = face.Add(image.Pt(s.rng.IntN(2*s.Jitter+1)-s.Jitter, s.rng.IntN(2*s.Jitter+1)-s.Jitter))
	}
	face = face.Intersect(img.Bounds())

	p := math.Sin(2 * math.Pi * s.HeartRate / 60 * elapsed.Seconds())
	offset := 0.0
	if s.Noise > 0 {
		offset = s.rng.NormFloat64() * s.Noise
	}
	blueSwing := s.BlueModulation * float64(s.Skin.B)
	redSwing := s.R * s.BlueModulation * float64(s.Skin.R)
	fillDithered(img, face,
		float64(s.Skin.R)+redSwing*p+offset,
		float64(s.Skin.G)+s.PulseAmplitude*p+offset,
		float64(s.Skin.B)+blueSwing*p+offset)

	return Frame{At: ts, Image: img, Face: &face}
}

// Expected returns the channel means the face region should have at ts,
// before dithering and noise.
func (s *Subject) Expected(ts time.Time) (red, green, blue float64) {
	p := math.Sin(2 * math.Pi * s.HeartRate / 60 * ts.Sub(s.start).Seconds())
	return float64(s.Skin.R) + s.R*s.BlueModulation*float64(s.Skin.R)*p,
		float64(s.Skin.G) + s.PulseAmplitude*p,
		float64(s.Skin.B) + s.BlueModulation*float64(s.Skin.B)*p
}

func (s *Subject) absent(elapsed time.Duration) bool {
	for _, iv := range s.Absent {
		if iv.contains(elapsed) {
			return true
		}
	}
	return false
}

// bayer4 holds ordered dither thresholds; a 4x4 block averages to within 1/16 of the target.
var bayer4 = [4][4]float64{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

func fillDithered(img *image.RGBA, r image.Rectangle, red, green, blue float64) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := bayer4[y&3]
		i := img.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			t := (row[x&3] + 0.5) / 16
			img.Pix[i] = quantize(red + t)
			img.Pix[i+1] = quantize(green + t)
			img.Pix[i+2] = quantize(blue + t)
			img.Pix[i+3] = 255
			i += 4
		}
	}
}

func quantize(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
