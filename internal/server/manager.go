package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/energizer-project/mcwatch/internal/events"
	"github.com/energizer-project/mcwatch/internal/network"
	"github.com/energizer-project/mcwatch/internal/status"
)

var (
	// ErrInvalidInterval is returned for a negative auto-update interval.
	ErrInvalidInterval = errors.New("auto-update interval must not be negative")
	// ErrNoSubscribers is returned when auto-update would publish to nobody.
	ErrNoSubscribers = errors.New("auto-update requires at least one event subscriber")
)

// Config configures a Manager.
type Config struct {
	// Parallelism caps concurrent probes in one round.
	Parallelism  int
	ProbeTimeout time.Duration
	Tracker      TrackerConfig
	Session      network.SessionConfig
	QueueSize    int
}

// DefaultConfig returns 10 concurrent probes with a 5s budget each.
func DefaultConfig() Config {
	return Config{
		Parallelism:  10,
		ProbeTimeout: 30 * time.Second,
		Tracker:      DefaultTrackerConfig(),
		Session:      network.DefaultSessionConfig(),
		QueueSize:    events.DefaultQueueSize,
	}
}

// ProberFactory builds the prober used by a new tracker.
type ProberFactory func(ep status.Endpoint) network.Prober

// Option customizes a Manager.
type Option func(*Manager)

// WithProberFactory replaces the default network session prober.
func WithProberFactory(f ProberFactory) Option {
	return func(m *Manager) { m.newProber = f }
}

// WithEventBus publishes to an existing bus instead of an owned one.
func WithEventBus(bus *events.EventBus) Option {
	return func(m *Manager) {
		m.bus = bus
		m.ownsBus = false
	}
}

// Manager is the central orchestrator for all monitored endpoints. It
// shares one tracker between observers of the same endpoint, runs probe
// rounds with bounded concurrency and publishes the resulting event batches.
type Manager struct {
	mu sync.RWMutex

	cfg       Config
	bus       *events.EventBus
	ownsBus   bool
	newProber ProberFactory
	logger    zerolog.Logger

	trackers  []*trackerEntry
	observers []*Observer

	// roundMu serializes refresh rounds so each observer diffs one
	// snapshot at a time.
	roundMu sync.Mutex

	autoMu      sync.Mutex
	autoStop    chan struct{}
	autoDone    chan struct{}
	autoRunning atomic.Bool
}

type trackerEntry struct {
	tracker *Tracker
	refs    int
}

// NewManager creates a Manager. Unless WithEventBus is given the Manager
// starts and owns its own bus.
func NewManager(cfg Config, opts ...Option) *Manager {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultConfig().Parallelism
	}

	m := &Manager{
		cfg:     cfg,
		ownsBus: true,
		logger:  log.With().Str("component", "manager").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.newProber == nil {
		session := network.NewSession(cfg.Session)
		m.newProber = func(status.Endpoint) network.Prober { return session }
	}
	if m.bus == nil {
		m.bus = events.NewEventBus(cfg.QueueSize)
		m.ownsBus = true
	}
	if m.ownsBus {
		m.bus.Start()
	}

	return m
}

// Config returns the manager configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Bus returns the event bus batches are published on.
func (m *Manager) Bus() *events.EventBus {
	return m.bus
}

// Subscribe registers a named batch handler on the bus.
func (m *Manager) Subscribe(name string, handler events.BatchHandler) {
	m.bus.Subscribe(name, handler)
}

// Make returns a new observer labelled label for ep. Unless forceNew is set
// the observer shares the tracker already watching an equal endpoint.
func (m *Manager) Make(ep status.Endpoint, forceNew bool, label string) *Observer {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entry *trackerEntry
	if !forceNew {
		for _, e := range m.trackers {
			if e.tracker.Endpoint().Equal(ep) {
				entry = e
				break
			}
		}
	}
	if entry == nil {
		entry = &trackerEntry{tracker: NewTracker(ep, m.newProber(ep), m.cfg.Tracker)}
		m.trackers = append(m.trackers, entry)
		m.logger.Debug().Str("endpoint", ep.String()).Msg("tracker created")
	}
	entry.refs++

	o := newObserver(label, entry.tracker)
	m.observers = append(m.observers, o)

	m.logger.Info().
		Str("label", label).
		Str("endpoint", ep.String()).
		Int("observers", entry.refs).
		Msg("observer registered")
	return o
}

// Destroy removes o and disposes its tracker once no observer uses it.
// It reports whether o was registered.
func (m *Manager) Destroy(o *Observer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyLocked(o)
}

// DestroyAll removes every given observer, or all of them when none are
// given, and returns how many were removed.
func (m *Manager) DestroyAll(observers ...*Observer) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(observers) == 0 {
		observers = append([]*Observer(nil), m.observers...)
	}

	removed := 0
	for _, o := range observers {
		if m.destroyLocked(o) {
			removed++
		}
	}
	return removed
}

func (m *Manager) destroyLocked(o *Observer) bool {
	if o == nil {
		return false
	}

	idx := -1
	for i, existing := range m.observers {
		if existing == o {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	m.observers = append(m.observers[:idx], m.observers[idx+1:]...)
	o.destroyed.Store(true)

	for i, e := range m.trackers {
		if e.tracker != o.tracker {
			continue
		}
		e.refs--
		if e.refs <= 0 {
			e.tracker.Dispose()
			m.trackers = append(m.trackers[:i], m.trackers[i+1:]...)
			m.logger.Debug().Str("endpoint", e.tracker.Endpoint().String()).Msg("tracker disposed")
		}
		break
	}

	m.logger.Info().Str("label", o.label).Msg("observer removed")
	return true
}

// Observers returns the registered observers in registration order.
func (m *Manager) Observers() []*Observer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Observer(nil), m.observers...)
}

// ObserverByLabel returns the first observer with the given label.
func (m *Manager) ObserverByLabel(label string) (*Observer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, o := range m.observers {
		if o.label == label {
			return o, true
		}
	}
	return nil, false
}

// Trackers returns the live trackers in creation order.
func (m *Manager) Trackers() []*Tracker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Tracker, 0, len(m.trackers))
	for _, e := range m.trackers {
		out = append(out, e.tracker)
	}
	return out
}

// PingAll probes every tracker once, at most Parallelism at a time, and
// waits for all of them.
func (m *Manager) PingAll(ctx context.Context, timeout time.Duration) {
	trackers := m.Trackers()
	if len(trackers) == 0 {
		return
	}

	var online atomic.Int32
	var offline atomic.Int32

	var g errgroup.Group
	g.SetLimit(m.cfg.Parallelism)
	for _, t := range trackers {
		t := t
		g.Go(func() error {
			if snap := t.Probe(ctx, timeout); snap.Success {
				online.Add(1)
			} else {
				offline.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	m.logger.Debug().
		Int32("online", online.Load()).
		Int32("offline", offline.Load()).
		Int("total", len(trackers)).
		Msg("probe round complete")
}

// RefreshAll diffs every observer and returns one batch per observer that
// produced events, in registration order.
func (m *Manager) RefreshAll() []events.Batch {
	m.roundMu.Lock()
	defer m.roundMu.Unlock()
	return m.refreshLocked()
}

func (m *Manager) refreshLocked() []events.Batch {
	var batches []events.Batch
	for _, o := range m.Observers() {
		if o.destroyed.Load() {
			continue
		}
		evs := o.Refresh()
		if len(evs) == 0 {
			continue
		}
		batches = append(batches, events.NewBatch(o.label, o.Endpoint(), evs))
	}
	return batches
}

// Update runs one full round: probe everything, diff every observer and
// publish the batches. It returns the published batches.
func (m *Manager) Update(ctx context.Context) ([]events.Batch, error) {
	m.roundMu.Lock()
	defer m.roundMu.Unlock()

	m.PingAll(ctx, m.cfg.ProbeTimeout)
	batches := m.refreshLocked()

	for i, b := range batches {
		if err := m.bus.Publish(ctx, b); err != nil {
			return batches[:i], err
		}
	}
	return batches, nil
}

// StartAutoUpdate runs Update every interval until StopAutoUpdate. A
// running loop is stopped first.
func (m *Manager) StartAutoUpdate(interval time.Duration) error {
	if interval < 0 {
		return ErrInvalidInterval
	}
	if m.bus.HandlerCount() == 0 {
		return ErrNoSubscribers
	}

	m.autoMu.Lock()
	defer m.autoMu.Unlock()

	m.stopAutoLocked()

	stop := make(chan struct{})
	done := make(chan struct{})
	m.autoStop, m.autoDone = stop, done
	m.autoRunning.Store(true)

	go m.autoUpdateLoop(interval, stop, done)

	m.logger.Info().Dur("interval", interval).Msg("auto-update started")
	return nil
}

// StopAutoUpdate stops the loop and waits for the round in progress.
func (m *Manager) StopAutoUpdate() {
	m.autoMu.Lock()
	defer m.autoMu.Unlock()
	m.stopAutoLocked()
}

// AutoUpdating reports whether the auto-update loop is running.
func (m *Manager) AutoUpdating() bool {
	return m.autoRunning.Load()
}

func (m *Manager) stopAutoLocked() {
	if m.autoStop == nil {
		return
	}
	close(m.autoStop)
	<-m.autoDone
	m.autoStop, m.autoDone = nil, nil
	m.autoRunning.Store(false)
	m.logger.Info().Msg("auto-update stopped")
}

func (m *Manager) autoUpdateLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		// A round in progress always completes; stop is honoured between rounds.
		if _, err := m.Update(context.Background()); err != nil {
			m.logger.Warn().Err(err).Msg("auto-update round failed to publish")
		}

		select {
		case <-stop:
			return
		default:
		}

		timer := time.NewTimer(interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Dispose stops auto-update, removes every observer and disposes every
// tracker. An owned bus is stopped after draining.
func (m *Manager) Dispose() {
	m.StopAutoUpdate()

	m.mu.Lock()
	for _, o := range m.observers {
		o.destroyed.Store(true)
	}
	for _, e := range m.trackers {
		e.tracker.Dispose()
	}
	m.observers = nil
	m.trackers = nil
	m.mu.Unlock()

	if m.ownsBus {
		m.bus.Stop()
	}
	m.logger.Info().Msg("manager disposed")
}
