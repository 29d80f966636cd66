// Package rolling implements the fixed-capacity, timestamped sample window
// shared by the vital-sign estimators.
//
// Samples are encoded as fixed-size records (timestamp + one float64 per
// channel) inside a byte ring buffer. When the buffer is full the oldest
// record is evicted before the new one is written. A Buffer is not safe for
// concurrent use; its owner serializes access.
package rolling

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/vitalcam/vitalcam/internal/errors"
)

const timestampSize = 8

var (
	// ErrOutOfOrder is returned when a sample is older than the newest stored sample.
	ErrOutOfOrder = errors.NewStd("sample timestamp precedes newest buffered sample")
	// ErrChannelCount is returned when Push gets the wrong number of values.
	ErrChannelCount = errors.NewStd("sample channel count mismatch")
)

// Buffer is a ring of timestamped multi-channel samples.
type Buffer struct {
	capacity int
	channels int
	recSize  int
	rb       *ringbuffer.RingBuffer
	newest   time.Time
	record   []byte // encode/evict scratch, one record
	snapshot []byte // Window scratch, whole ring
}

// New creates a buffer holding up to capacity samples of the given channel count.
func New(capacity, channels int) (*Buffer, error) {
	if capacity < 1 || channels < 1 {
		return nil, errors.Newf("rolling buffer needs capacity and channels >= 1, got %d and %d", capacity, channels).
			Component("rolling").
			Category(errors.CategoryValidation).
			Build()
	}

	recSize := timestampSize + 8*channels
	return &Buffer{
		capacity: capacity,
		channels: channels,
		recSize:  recSize,
		rb:       ringbuffer.New(capacity * recSize),
		record:   make([]byte, recSize),
		snapshot: make([]byte, capacity*recSize),
	}, nil
}

// Push appends a sample, evicting the oldest one when full.
// Timestamps must be non-decreasing.
func (b *Buffer) Push(ts time.Time, values ...float64) error {
	if len(values) != b.channels {
		return fmt.Errorf("%w: want %d, got %d", ErrChannelCount, b.channels, len(values))
	}
	if b.Len() > 0 && ts.Before(b.newest) {
		return ErrOutOfOrder
	}

	if b.rb.Free() < b.recSize {
		if _, err := b.rb.Read(b.record); err != nil {
			return errors.New(err).
				Component("rolling").
				Category(errors.CategoryBuffer).
				Context("operation", "evict").
				Build()
		}
	}

	binary.LittleEndian.PutUint64(b.record, uint64(ts.UnixNano()))
	for i, v := range values {
		binary.LittleEndian.PutUint64(b.record[timestampSize+8*i:], math.Float64bits(v))
	}
	if _, err := b.rb.Write(b.record); err != nil {
		return errors.New(err).
			Component("rolling").
			Category(errors.CategoryBuffer).
			Context("operation", "write").
			Build()
	}

	b.newest = ts
	return nil
}

// Len returns the number of stored samples.
func (b *Buffer) Len() int {
	return b.rb.Length() / b.recSize
}

// Cap returns the sample capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Channels returns the number of values per sample.
func (b *Buffer) Channels() int {
	return b.channels
}

// Full reports whether the buffer holds Cap samples.
func (b *Buffer) Full() bool {
	return b.Len() == b.capacity
}

// Reset drops all samples.
func (b *Buffer) Reset() {
	b.rb.Reset()
	b.newest = time.Time{}
}

// Window copies the stored samples, oldest first.
func (b *Buffer) Window() (Window, error) {
	n := b.rb.Length()
	if n == 0 {
		return Window{Channels: make([][]float64, b.channels)}, nil
	}

	// reading drains the ring, so the bytes are written straight back
	buf := b.snapshot[:n]
	if _, err := b.rb.Read(buf); err != nil {
		return Window{}, errors.New(err).
			Component("rolling").
			Category(errors.CategoryBuffer).
			Context("operation", "snapshot_read").
			Build()
	}
	if _, err := b.rb.Write(buf); err != nil {
		return Window{}, errors.New(err).
			Component("rolling").
			Category(errors.CategoryBuffer).
			Context("operation", "snapshot_restore").
			Build()
	}

	count := n / b.recSize
	w := Window{
		Times:    make([]time.Time, count),
		Channels: make([][]float64, b.channels),
	}
	for c := range w.Channels {
		w.Channels[c] = make([]float64, count)
	}
	for i := range count {
		rec := buf[i*b.recSize : (i+1)*b.recSize]
		w.Times[i] = time.Unix(0, int64(binary.LittleEndian.Uint64(rec)))
		for c := range b.channels {
			w.Channels[c][i] = math.Float64frombits(binary.LittleEndian.Uint64(rec[timestampSize+8*c:]))
		}
	}
	return w, nil
}

// Window is an immutable copy of buffered samples.
type Window struct {
	Times    []time.Time
	Channels [][]float64
}

// Len returns the number of samples in the window.
func (w Window) Len() int {
	return len(w.Times)
}

// Span is the time between the oldest and newest sample.
func (w Window) Span() time.Duration {
	if len(w.Times) < 2 {
		return 0
	}
	return w.Times[len(w.Times)-1].Sub(w.Times[0])
}

// SampleRate derives samples per second from the measured span, (n-1)/span.
// It returns 0 when the span is empty.
func (w Window) SampleRate() float64 {
	span := w.Span().Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(w.Times)-1) / span
}

// Channel returns the samples of channel c.
func (w Window) Channel(c int) []float64 {
	return w.Channels[c]
}
