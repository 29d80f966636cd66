package monitor

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/vitalcam/vitalcam/internal/errors"
	"github.com/vitalcam/vitalcam/internal/logger"
)

// DefaultIdleTimeout drops sessions that received no frames for this long.
const DefaultIdleTimeout = 10 * time.Minute

// Registry tracks live sessions by ID. Sessions that are not touched within
// the idle timeout expire and are dropped.
type Registry struct {
	sessions *cache.Cache
	cfg      Config
	opts     []SessionOption
	log      logger.Logger
	onChange func(active int)
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithSessionOptions applies opts to every session the registry creates.
func WithSessionOptions(opts ...SessionOption) RegistryOption {
	return func(r *Registry) {
		r.opts = append(r.opts, opts...)
	}
}

// WithActiveSessionsHook is called with the session count after every create, delete or expiry.
func WithActiveSessionsHook(fn func(active int)) RegistryOption {
	return func(r *Registry) {
		r.onChange = fn
	}
}

// NewRegistry creates a registry whose sessions share cfg.
func NewRegistry(cfg Config, idle time.Duration, opts ...RegistryOption) *Registry {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	r := &Registry{
		sessions: cache.New(idle, idle/2),
		cfg:      cfg,
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sessions.OnEvicted(func(id string, _ any) {
		r.log.Debug("session removed", logger.String("session", id))
		r.notify()
	})
	return r
}

// Create starts a new session with a random ID.
func (r *Registry) Create() (*Session, error) {
	return r.CreateWithID(uuid.NewString())
}

// CreateWithID starts a session under a caller supplied ID.
func (r *Registry) CreateWithID(id string) (*Session, error) {
	s, err := NewSession(id, r.cfg, r.opts...)
	if err != nil {
		return nil, err
	}
	if err := r.sessions.Add(id, s, cache.DefaultExpiration); err != nil {
		return nil, errors.New(err).
			Component("monitor").
			Category(errors.CategoryState).
			Context("session", id).
			Build()
	}
	r.log.Info("session created", logger.String("session", id))
	r.notify()
	return s, nil
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, error) {
	v, ok := r.sessions.Get(id)
	if !ok {
		return nil, errors.Newf("session %q not found", id).
			Component("monitor").
			Category(errors.CategoryNotFound).
			Context("session", id).
			Build()
	}
	return v.(*Session), nil
}

// Touch restarts the idle timer of a session.
func (r *Registry) Touch(id string) bool {
	v, ok := r.sessions.Get(id)
	if !ok {
		return false
	}
	r.sessions.Set(id, v, cache.DefaultExpiration)
	return true
}

// List returns the live sessions ordered by ID.
func (r *Registry) List() []*Session {
	items := r.sessions.Items()
	out := make([]*Session, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(*Session))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Delete removes a session. It reports whether the session existed.
func (r *Registry) Delete(id string) bool {
	if _, ok := r.sessions.Get(id); !ok {
		return false
	}
	r.sessions.Delete(id)
	return true
}

// Len returns the number of live sessions, including expired ones not yet swept.
func (r *Registry) Len() int {
	return r.sessions.ItemCount()
}

// DeleteExpired drops idle sessions immediately.
func (r *Registry) DeleteExpired() {
	r.sessions.DeleteExpired()
}

func (r *Registry) notify() {
	if r.onChange != nil {
		r.onChange(r.sessions.ItemCount())
	}
}
