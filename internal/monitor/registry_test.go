package monitor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalcam/vitalcam/internal/errors"
)

func newTestRegistry(idle time.Duration, active *atomic.Int64) *Registry {
	return NewRegistry(DefaultConfig(), idle,
		WithSessionOptions(WithLogger(quietLogger())),
		WithActiveSessionsHook(func(n int) { active.Store(int64(n)) }),
	)
}

func TestRegistryLifecycle(t *testing.T) {
	var active atomic.Int64
	r := newTestRegistry(time.Hour, &active)

	a, err := r.Create()
	require.NoError(t, err)
	_, err = uuid.Parse(a.ID())
	require.NoError(t, err)

	b, err := r.CreateWithID("camera-1")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	assert.EqualValues(t, 2, active.Load())

	got, err := r.Get("camera-1")
	require.NoError(t, err)
	assert.Same(t, b, got)

	list := r.List()
	require.Len(t, list, 2)
	assert.LessOrEqual(t, list[0].ID(), list[1].ID())

	_, err = r.CreateWithID("camera-1")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	assert.True(t, r.Delete("camera-1"))
	assert.False(t, r.Delete("camera-1"))
	assert.EqualValues(t, 1, active.Load())

	_, err = r.Get("camera-1")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestRegistryIdleExpiry(t *testing.T) {
	var active atomic.Int64
	r := newTestRegistry(100*time.Millisecond, &active)

	_, err := r.CreateWithID("idle")
	require.NoError(t, err)
	_, err = r.CreateWithID("busy")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	assert.True(t, r.Touch("busy"))
	assert.False(t, r.Touch("missing"))
	time.Sleep(60 * time.Millisecond)

	r.DeleteExpired()
	_, err = r.Get("idle")
	require.Error(t, err)
	_, err = r.Get("busy")
	require.NoError(t, err)
	assert.EqualValues(t, 1, active.Load())
}

func TestRegistrySessionsShareConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled.SpO2 = false
	r := NewRegistry(cfg, 0, WithSessionOptions(WithLogger(quietLogger())))

	s, err := r.Create()
	require.NoError(t, err)
	assert.False(t, s.Enabled().SpO2)
}
