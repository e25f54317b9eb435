package dataset

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/resilience"
)

// Transform post-processes freshly loaded records before they are
// snapshotted, e.g. to fill derived metrics.
type Transform func(records []Record)

// Manager owns the current Dataset. Loads are numbered when they start and a
// finished load is installed only if no later-started load has been
// installed already, so a slow stale load never overwrites a newer one.
type Manager struct {
	gw        Gateway
	fallback  []Record
	retry     resilience.RetryConfig
	transform Transform
	log       *zap.Logger

	current atomic.Pointer[Dataset]

	mu        sync.Mutex
	started   uint64
	installed uint64

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(*Dataset)
}

// Option configures a Manager.
type Option func(*Manager)

// WithFallback replaces the sample set installed on load failure.
func WithFallback(records []Record) Option {
	return func(m *Manager) { m.fallback = cloneRecords(records) }
}

// WithRetry sets the retry policy around Gateway.Load.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(m *Manager) { m.retry = cfg }
}

// WithTransform runs fn over every successful load, and over the fallback.
func WithTransform(fn Transform) Option {
	return func(m *Manager) { m.transform = fn }
}

// NewManager returns a Manager with nothing installed; call Reload before
// serving.
func NewManager(gw Gateway, opts ...Option) *Manager {
	m := &Manager{
		gw:       gw,
		fallback: Fallback(),
		retry:    resilience.DefaultRetryConfig(),
		log:      zap.L().With(zap.String("component", "dataset")),
		subs:     make(map[int]func(*Dataset)),
	}
	for _, o := range opts {
		o(m)
	}
	if m.retry.OnRetry == nil {
		m.retry.OnRetry = resilience.RetryLogger(gw.Source(), "load")
	}
	return m
}

// Current is the installed dataset, or nil before the first Reload.
func (m *Manager) Current() *Dataset {
	return m.current.Load()
}

// Reload loads the gateway once, retrying transient failures. A failed load
// installs the fallback set; the failure is kept on the Dataset's LoadErr.
// Reload returns an error only when ctx ends before anything was installed.
// If a later-started load won the race, the newer dataset is returned.
func (m *Manager) Reload(ctx context.Context) (*Dataset, error) {
	seq := m.begin()
	start := time.Now()

	records, err := resilience.DoVal(ctx, m.retry, m.gw.Load)
	if err != nil && ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "dataset: reload cancelled")
	}

	var ds *Dataset
	if err != nil {
		err = loadErr(m.gw.Source(), err)
		m.log.Warn("dataset load failed, installing fallback",
			zap.Uint64("version", seq),
			zap.Int("fallback_records", len(m.fallback)),
			zap.Error(err),
		)
		fb := cloneRecords(m.fallback)
		if m.transform != nil {
			m.transform(fb)
		}
		ds = newFallback(seq, fb, err)
	} else {
		if m.transform != nil {
			m.transform(records)
		}
		ds = New(seq, m.gw.Source(), records)
	}

	if !m.install(ds) {
		m.log.Debug("discarding superseded dataset load", zap.Uint64("version", seq))
		return m.Current(), nil
	}

	m.log.Info("dataset installed",
		zap.Uint64("version", seq),
		zap.String("source", ds.Source()),
		zap.Int("records", ds.Len()),
		zap.Bool("fallback", ds.IsFallback()),
		zap.Duration("elapsed", time.Since(start)),
	)
	m.notify(ds)
	return ds, nil
}

// Run reloads every interval until ctx ends. A non-positive interval
// returns immediately.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := m.Reload(ctx); err != nil && ctx.Err() == nil {
				m.log.Warn("scheduled reload failed", zap.Error(err))
			}
		}
	}
}

// Subscribe registers fn to run after each install. The returned func
// unregisters it.
func (m *Manager) Subscribe(fn func(*Dataset)) func() {
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

func (m *Manager) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
	return m.started
}

func (m *Manager) install(ds *Dataset) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ds.Version() <= m.installed {
		return false
	}
	m.installed = ds.Version()
	m.current.Store(ds)
	return true
}

func (m *Manager) notify(ds *Dataset) {
	m.subMu.Lock()
	fns := make([]func(*Dataset), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(ds)
	}
}
