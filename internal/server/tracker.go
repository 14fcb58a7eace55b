// Package server implements endpoint monitoring: trackers that probe one
// endpoint and keep its history, observers that diff successive snapshots
// into events, and the Manager that orchestrates them.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/mcwatch/internal/network"
	"github.com/energizer-project/mcwatch/internal/status"
)

// TrackerConfig controls retries and history retention.
type TrackerConfig struct {
	Retries    int
	RetryDelay time.Duration
	Retention  time.Duration
}

// DefaultTrackerConfig returns 3 attempts 3s apart and a 6h history.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Retries:    3,
		RetryDelay: 3 * time.Second,
		Retention:  6 * time.Hour,
	}
}

// Tracker probes one endpoint and owns its snapshot history.
type Tracker struct {
	endpoint status.Endpoint
	prober   network.Prober
	cfg      TrackerConfig
	logger   zerolog.Logger

	// probeMu keeps attempts on this endpoint strictly sequential.
	probeMu sync.Mutex

	mu       sync.RWMutex
	history  []*status.Snapshot
	disposed bool

	now func() time.Time
}

// NewTracker creates a Tracker for ep.
func NewTracker(ep status.Endpoint, prober network.Prober, cfg TrackerConfig) *Tracker {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	return &Tracker{
		endpoint: ep,
		prober:   prober,
		cfg:      cfg,
		logger:   log.With().Str("component", "tracker").Str("endpoint", ep.String()).Logger(),
		now:      time.Now,
	}
}

// Endpoint returns the tracked endpoint.
func (t *Tracker) Endpoint() status.Endpoint {
	return t.endpoint
}

// Equal reports whether both trackers watch the same endpoint.
func (t *Tracker) Equal(other *Tracker) bool {
	return other != nil && t.endpoint.Equal(other.endpoint)
}

// Probe runs up to Retries attempts within timeout, waiting RetryDelay
// between failures. The result, success or not, is appended to the history
// and returned.
func (t *Tracker) Probe(ctx context.Context, timeout time.Duration) *status.Snapshot {
	t.probeMu.Lock()
	defer t.probeMu.Unlock()

	probeCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var snap *status.Snapshot
	for attempt := 1; attempt <= t.cfg.Retries; attempt++ {
		snap = t.prober.Probe(probeCtx, t.endpoint)
		if snap.Success || probeCtx.Err() != nil {
			break
		}

		if attempt < t.cfg.Retries {
			t.logger.Debug().
				Int("attempt", attempt).
				Str("reason", snap.Error.Summary()).
				Dur("delay", t.cfg.RetryDelay).
				Msg("probe failed, retrying")
			if !sleepCtx(probeCtx, t.cfg.RetryDelay) {
				break
			}
		}
	}

	if !snap.Success && timeout > 0 && errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
		snap = t.timedOut(snap, timeout)
	}
	if !snap.Success {
		t.logger.Info().Str("reason", snap.Error.Summary()).Msg("endpoint unreachable")
	}

	t.record(snap)
	return snap
}

// timedOut replaces the last attempt with a snapshot spanning the whole
// timeout, keeping the last attempt's failure kind.
func (t *Tracker) timedOut(last *status.Snapshot, timeout time.Duration) *status.Snapshot {
	cause := status.NewError(status.KindConnectTimeout, "probe", context.DeadlineExceeded)
	if last.Error != nil && last.Error.Kind != status.KindNone {
		cause = status.NewError(last.Error.Kind, "probe", errors.New(last.Error.Message))
	}
	return status.NewFailed(t.now().Add(-timeout), timeout, cause)
}

// record appends snap and evicts entries older than the retention window.
func (t *Tracker) record(snap *status.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disposed {
		return
	}

	t.history = append(t.history, snap)

	if t.cfg.Retention <= 0 {
		return
	}
	cutoff := t.now().Add(-t.cfg.Retention)
	kept := t.history[:0]
	for _, s := range t.history {
		if s.RequestedAt.Before(cutoff) {
			s.Release()
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(t.history); i++ {
		t.history[i] = nil
	}
	t.history = kept
}

// LatestSnapshot returns the most recently completed snapshot, optionally
// only among successes.
func (t *Tracker) LatestSnapshot(requireSuccess bool) (*status.Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var latest *status.Snapshot
	for _, s := range t.history {
		if requireSuccess && !s.Success {
			continue
		}
		if latest == nil || !s.CompletedAt().Before(latest.CompletedAt()) {
			latest = s
		}
	}
	return latest, latest != nil
}

// History returns a copy of the retained snapshots in insertion order.
func (t *Tracker) History() []*status.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*status.Snapshot, len(t.history))
	copy(out, t.history)
	return out
}

// Dispose releases the history. Later probes are not recorded.
func (t *Tracker) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.history {
		s.Release()
	}
	t.history = nil
	t.disposed = true
}

// sleepCtx waits for d, returning false if ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
