package monitor

import (
	"sync"
	"time"

	"github.com/vitalcam/vitalcam/internal/dsp"
)

// DefaultAggregateSize is the number of recent values averaged per vital,
// about one second of frames at 30 fps.
const DefaultAggregateSize = 30

// Average is the mean of the values collected for one vital since the last drain.
type Average struct {
	Value float64
	Count int
}

// Valid reports whether any value was collected.
func (a Average) Valid() bool {
	return a.Count > 0
}

// Averages is one drained aggregation window.
type Averages struct {
	HeartRate Average
	Stress    Average
	SpO2      Average
	At        time.Time
}

// Aggregator keeps the most recent plausible readings of each vital between drains.
type Aggregator struct {
	mu     sync.Mutex
	size   int
	hr     []float64
	stress []float64
	spo2   []float64
}

// NewAggregator creates an aggregator keeping up to size values per vital.
func NewAggregator(size int) *Aggregator {
	if size < 1 {
		size = DefaultAggregateSize
	}
	return &Aggregator{size: size}
}

// AddHeartRate collects bpm when it lies in [40, 180].
func (a *Aggregator) AddHeartRate(bpm float64) {
	if bpm < 40 || bpm > 180 {
		return
	}
	a.mu.Lock()
	a.hr = a.push(a.hr, bpm)
	a.mu.Unlock()
}

// AddStress collects a positive stress index.
func (a *Aggregator) AddStress(index float64) {
	if index <= 0 {
		return
	}
	a.mu.Lock()
	a.stress = a.push(a.stress, index)
	a.mu.Unlock()
}

// AddSpO2 collects a saturation in [85, 100].
func (a *Aggregator) AddSpO2(spo2 float64) {
	if spo2 < 85 || spo2 > 100 {
		return
	}
	a.mu.Lock()
	a.spo2 = a.push(a.spo2, spo2)
	a.mu.Unlock()
}

func (a *Aggregator) push(buf []float64, v float64) []float64 {
	if len(buf) == a.size {
		copy(buf, buf[1:])
		buf = buf[:len(buf)-1]
	}
	return append(buf, v)
}

// Drain returns the averages of the collected values and clears them.
func (a *Aggregator) Drain(at time.Time) Averages {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := Averages{
		HeartRate: mean(a.hr),
		Stress:    mean(a.stress),
		SpO2:      mean(a.spo2),
		At:        at,
	}
	a.hr, a.stress, a.spo2 = a.hr[:0], a.stress[:0], a.spo2[:0]
	return out
}

// Reset discards collected values.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hr, a.stress, a.spo2 = a.hr[:0], a.stress[:0], a.spo2[:0]
}

func mean(x []float64) Average {
	if len(x) == 0 {
		return Average{}
	}
	return Average{Value: dsp.Mean(x), Count: len(x)}
}
