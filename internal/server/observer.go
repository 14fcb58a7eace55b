package server

import (
	"sync"
	"sync/atomic"

	"github.com/energizer-project/mcwatch/internal/events"
	"github.com/energizer-project/mcwatch/internal/status"
)

// Observer turns a tracker's snapshots into change events for one label.
// Several observers may share a tracker; each keeps its own view of which
// players are online.
type Observer struct {
	label   string
	tracker *Tracker

	mu                 sync.RWMutex
	notifyOnlineStatus bool
	notifyCount        bool
	notifyNames        bool
	last               *status.Snapshot

	// presence and order track player visibility across diffs.
	presence map[string]*presence
	order    []string

	destroyed atomic.Bool
}

type presence struct {
	name   string
	online bool
}

func newObserver(label string, tracker *Tracker) *Observer {
	return &Observer{
		label:              label,
		tracker:            tracker,
		notifyOnlineStatus: true,
		notifyCount:        true,
		notifyNames:        true,
		presence:           make(map[string]*presence),
	}
}

// Label returns the observer's label.
func (o *Observer) Label() string {
	return o.label
}

// Tracker returns the tracker the observer reads from.
func (o *Observer) Tracker() *Tracker {
	return o.tracker
}

// Endpoint returns the observed endpoint.
func (o *Observer) Endpoint() status.Endpoint {
	return o.tracker.Endpoint()
}

// SetNotify sets which event families the observer emits.
func (o *Observer) SetNotify(onlineStatus, count, names bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifyOnlineStatus = onlineStatus
	o.notifyCount = count
	o.notifyNames = names
}

// Notify returns the current notification flags.
func (o *Observer) Notify() (onlineStatus, count, names bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.notifyOnlineStatus, o.notifyCount, o.notifyNames
}

// LastSnapshot returns the snapshot the observer last diffed against.
func (o *Observer) LastSnapshot() *status.Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

// OnlinePlayers lists the players the observer currently considers online.
func (o *Observer) OnlinePlayers() []status.PlayerRef {
	o.mu.RLock()
	defer o.mu.RUnlock()

	players := make([]status.PlayerRef, 0, len(o.order))
	for _, id := range o.order {
		if p := o.presence[id]; p.online {
			players = append(players, status.PlayerRef{ID: id, RawName: p.name})
		}
	}
	return players
}

// Refresh diffs the tracker's latest snapshot against the last one seen.
// It returns nil when there is nothing new.
func (o *Observer) Refresh() []events.Event {
	current, ok := o.tracker.LatestSnapshot(false)
	if !ok {
		return nil
	}
	return o.Diff(current)
}

// Diff compares current with the previously seen snapshot and returns the
// resulting events in order: online status, joins, leaves, then the count
// fallback when no individual player moved.
func (o *Observer) Diff(current *status.Snapshot) []events.Event {
	if current == nil {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	last := o.last
	if last == current {
		return nil
	}
	isFirst := last == nil

	var evs []events.Event

	if o.notifyOnlineStatus && (isFirst || last.Success != current.Success) {
		evs = append(evs, o.statusEvent(current))
	}

	seen := make(map[string]bool, len(current.Sample))
	var joined []status.PlayerRef
	for _, p := range current.Sample {
		seen[p.ID] = true
		entry, ok := o.presence[p.ID]
		if !ok {
			entry = &presence{}
			o.presence[p.ID] = entry
			o.order = append(o.order, p.ID)
		}
		entry.name = p.RawName
		if !entry.online {
			entry.online = true
			joined = append(joined, p)
		}
	}
	if len(joined) > 0 {
		if o.notifyCount {
			evs = append(evs, events.NewPlayerCount(o.label, len(joined)))
		}
		if o.notifyNames {
			for _, p := range joined {
				evs = append(evs, events.NewPlayerJoined(o.label, p))
			}
		}
	}

	var left []status.PlayerRef
	for _, id := range o.order {
		entry := o.presence[id]
		if entry.online && !seen[id] {
			entry.online = false
			left = append(left, status.PlayerRef{ID: id, RawName: entry.name})
		}
	}
	if len(left) > 0 {
		if o.notifyCount {
			evs = append(evs, events.NewPlayerCount(o.label, -len(left)))
		}
		if o.notifyNames {
			for _, p := range left {
				evs = append(evs, events.NewPlayerLeft(o.label, p))
			}
		}
	}

	if len(joined) == 0 && len(left) == 0 && o.notifyCount {
		previous := 0
		if !isFirst {
			previous = last.CurrentPlayers
		}
		if delta := current.CurrentPlayers - previous; delta != 0 {
			evs = append(evs, events.NewPlayerCount(o.label, delta))
		}
	}

	o.last = current
	return evs
}

func (o *Observer) statusEvent(s *status.Snapshot) events.Event {
	if s.Success {
		motd := s.DisplayMotd()
		if motd == "" {
			motd = s.MotdRaw
		}
		return events.NewOnlineStatus(o.label, events.OnlineStatusPayload{
			Online:         true,
			Motd:           motd,
			Version:        s.Version,
			CurrentPlayers: s.CurrentPlayers,
			MaxPlayers:     s.MaxPlayers,
		})
	}
	return events.NewOnlineStatus(o.label, events.OnlineStatusPayload{
		Online:         false,
		ErrorSummary:   s.Error.Summary(),
		Version:        s.Version,
		CurrentPlayers: s.CurrentPlayers,
		MaxPlayers:     s.MaxPlayers,
	})
}
