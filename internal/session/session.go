// Package session tracks per-viewer UI state: the selected metric and the
// active filter range.
package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/dataset"
)

var (
	// ErrNotFound is an unknown or expired session id.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidFilter is a filter range with non-finite bounds or min > max.
	ErrInvalidFilter = errors.New("invalid filter range")
	// ErrUnknownMetric is a metric key the registry does not know.
	ErrUnknownMetric = errors.New("unknown metric")
)

// State is one session's selection. Filter is nil when no filter is active.
type State struct {
	ID        string         `json:"id"`
	Metric    string         `json:"metric"`
	Filter    *dataset.Range `json:"filter"`
	Version   uint64         `json:"version"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (s State) clone() State {
	if s.Filter != nil {
		f := *s.Filter
		s.Filter = &f
	}
	return s
}

// MetricSet reports whether a metric key is selectable.
type MetricSet interface {
	Has(key string) bool
}

// Manager owns every session. Each mutation bumps the session's Version and
// notifies subscribers with the new state.
type Manager struct {
	metrics MetricSet
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*State

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(State)
}

// NewManager returns a Manager. Sessions idle longer than ttl are removed by
// Sweep; a non-positive ttl keeps them forever.
func NewManager(metrics MetricSet, ttl time.Duration) *Manager {
	return &Manager{
		metrics:  metrics,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*State),
		subs:     make(map[int]func(State)),
	}
}

// Create starts a session on metric with no filter.
func (m *Manager) Create(metric string) (State, error) {
	if !m.metrics.Has(metric) {
		return State{}, eris.Wrapf(ErrUnknownMetric, "session: create %q", metric)
	}
	st := &State{
		ID:        uuid.New().String(),
		Metric:    metric,
		Version:   1,
		UpdatedAt: m.now(),
	}

	m.mu.Lock()
	m.sessions[st.ID] = st
	out := st.clone()
	m.mu.Unlock()

	zap.L().Debug("session: created", zap.String("session", st.ID), zap.String("metric", metric))
	return out, nil
}

// Get returns a session's state.
func (m *Manager) Get(id string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	if !ok {
		return State{}, eris.Wrapf(ErrNotFound, "session: %s", id)
	}
	return st.clone(), nil
}

// SelectMetric switches the metric. The filter is always cleared: a range
// picked on one metric means nothing on another.
func (m *Manager) SelectMetric(id, metric string) (State, error) {
	if !m.metrics.Has(metric) {
		return State{}, eris.Wrapf(ErrUnknownMetric, "session: select %q", metric)
	}
	return m.update(id, func(st *State) {
		st.Metric = metric
		st.Filter = nil
	})
}

// SetFilter activates an inclusive [min, max] filter on the current metric.
func (m *Manager) SetFilter(id string, lo, hi float64) (State, error) {
	if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
		return State{}, eris.Wrapf(ErrInvalidFilter, "session: filter [%g, %g]", lo, hi)
	}
	return m.update(id, func(st *State) {
		st.Filter = &dataset.Range{Min: lo, Max: hi}
	})
}

// ClearFilter removes the filter.
func (m *Manager) ClearFilter(id string) (State, error) {
	return m.update(id, func(st *State) { st.Filter = nil })
}

// Touch marks the session active without changing it.
func (m *Manager) Touch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	if !ok {
		return eris.Wrapf(ErrNotFound, "session: %s", id)
	}
	st.UpdatedAt = m.now()
	return nil
}

// Delete removes a session.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Subscribe registers fn to run after each state change. The returned func
// unregisters it.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

// Sweep removes sessions idle longer than the ttl and returns their ids.
func (m *Manager) Sweep() []string {
	if m.ttl <= 0 {
		return nil
	}
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []string
	for id, st := range m.sessions {
		if st.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			expired = append(expired, id)
		}
	}
	return expired
}

// Run sweeps every interval until ctx ends.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || m.ttl <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if expired := m.Sweep(); len(expired) > 0 {
				zap.L().Info("session: expired idle sessions", zap.Int("count", len(expired)))
			}
		}
	}
}

func (m *Manager) update(id string, fn func(*State)) (State, error) {
	m.mu.Lock()
	st, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return State{}, eris.Wrapf(ErrNotFound, "session: %s", id)
	}
	fn(st)
	st.Version++
	st.UpdatedAt = m.now()
	out := st.clone()
	m.mu.Unlock()

	m.notify(out)
	return out, nil
}

func (m *Manager) notify(st State) {
	m.subMu.Lock()
	fns := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(st.clone())
	}
}
