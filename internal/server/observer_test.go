package server

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/mcwatch/internal/events"
	"github.com/energizer-project/mcwatch/internal/status"
)

func newTestObserver(t *testing.T) *Observer {
	t.Helper()
	return newObserver("lobby", NewTracker(endpoint(t, "mc.example"), alwaysOnline(0), fastRetries()))
}

// kinds renders events compactly: "+2", "J:id", "L:id", "online", "offline".
func kinds(evs []events.Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		switch p := ev.Payload.(type) {
		case events.PlayerCountPayload:
			out = append(out, fmt.Sprintf("%+d", p.Delta))
		case events.PlayerPayload:
			if ev.Type == events.EventPlayerJoined {
				out = append(out, "J:"+p.Player.ID)
			} else {
				out = append(out, "L:"+p.Player.ID)
			}
		case events.OnlineStatusPayload:
			if p.Online {
				out = append(out, "online")
			} else {
				out = append(out, "offline")
			}
		}
	}
	return out
}

func TestObserverFirstObservation(t *testing.T) {
	o := newTestObserver(t)

	evs := o.Diff(onlineSnapshot(0))
	assert.Equal(t, []string{"online"}, kinds(evs))

	o = newTestObserver(t)
	evs = o.Diff(onlineSnapshot(3))
	assert.Equal(t, []string{"online", "+3"}, kinds(evs))

	payload := evs[0].Payload.(events.OnlineStatusPayload)
	assert.Equal(t, "A Minecraft Server", payload.Motd)
	assert.Equal(t, "1.16.5", payload.Version)
	assert.Equal(t, 3, payload.CurrentPlayers)
	assert.Equal(t, 20, payload.MaxPlayers)
	assert.Equal(t, "lobby", evs[0].Source)
}

func TestObserverFirstObservationOffline(t *testing.T) {
	o := newTestObserver(t)

	evs := o.Diff(failedSnapshot(status.KindConnectTimeout))
	require.Equal(t, []string{"offline"}, kinds(evs))

	payload := evs[0].Payload.(events.OnlineStatusPayload)
	assert.Equal(t, "Connection Failed: ConnectTimeout", payload.ErrorSummary)
	assert.Equal(t, "0.0.0", payload.Version)
}

func TestObserverJoinLeaveSymmetry(t *testing.T) {
	o := newTestObserver(t)
	o.SetNotify(false, true, true)

	p1, p2 := player("p1", "Alice"), player("p2", "Bob")

	evs := o.Diff(onlineSnapshot(2, p1, p2))
	assert.Equal(t, []string{"+2", "J:p1", "J:p2"}, kinds(evs))

	evs = o.Diff(onlineSnapshot(1, p1))
	assert.Equal(t, []string{"-1", "L:p2"}, kinds(evs))

	left := evs[1].Payload.(events.PlayerPayload)
	assert.Equal(t, "Bob", left.Player.RawName)

	evs = o.Diff(onlineSnapshot(2, p1, p2))
	assert.Equal(t, []string{"+1", "J:p2"}, kinds(evs))
}

func TestObserverJoinsAndLeavesInOneDiff(t *testing.T) {
	o := newTestObserver(t)
	o.SetNotify(false, true, true)

	o.Diff(onlineSnapshot(2, player("a", "A"), player("b", "B")))
	evs := o.Diff(onlineSnapshot(2, player("b", "B"), player("c", "C")))
	assert.Equal(t, []string{"+1", "J:c", "-1", "L:a"}, kinds(evs))
}

func TestObserverCountFallback(t *testing.T) {
	o := newTestObserver(t)
	o.SetNotify(false, true, true)

	o.Diff(onlineSnapshot(3))
	evs := o.Diff(onlineSnapshot(5))
	assert.Equal(t, []string{"+2"}, kinds(evs))

	evs = o.Diff(onlineSnapshot(5))
	assert.Empty(t, evs)

	evs = o.Diff(onlineSnapshot(1))
	assert.Equal(t, []string{"-4"}, kinds(evs))
}

func TestObserverNoFallbackWhenPlayersMoved(t *testing.T) {
	o := newTestObserver(t)
	o.SetNotify(false, true, true)

	o.Diff(onlineSnapshot(10, player("a", "A")))
	evs := o.Diff(onlineSnapshot(20, player("a", "A"), player("b", "B")))
	assert.Equal(t, []string{"+1", "J:b"}, kinds(evs))
}

func TestObserverOnlineTransitions(t *testing.T) {
	o := newTestObserver(t)
	o.SetNotify(true, false, false)

	assert.Equal(t, []string{"online"}, kinds(o.Diff(onlineSnapshot(0))))
	assert.Empty(t, o.Diff(onlineSnapshot(0)))
	assert.Equal(t, []string{"offline"}, kinds(o.Diff(failedSnapshot(status.KindTruncated))))
	assert.Empty(t, o.Diff(failedSnapshot(status.KindTruncated)))
	assert.Equal(t, []string{"online"}, kinds(o.Diff(onlineSnapshot(0))))
}

func TestObserverOfflineReleasesPlayers(t *testing.T) {
	o := newTestObserver(t)

	o.Diff(onlineSnapshot(1, player("a", "A")))
	evs := o.Diff(failedSnapshot(status.KindConnectFailed))
	assert.Equal(t, []string{"offline", "-1", "L:a"}, kinds(evs))
	assert.Empty(t, o.OnlinePlayers())
}

func TestObserverNamesFlagGatesOnlyIndividualEvents(t *testing.T) {
	o := newTestObserver(t)
	o.SetNotify(false, true, false)

	evs := o.Diff(onlineSnapshot(2, player("a", "A"), player("b", "B")))
	assert.Equal(t, []string{"+2"}, kinds(evs))

	o.SetNotify(false, false, true)
	evs = o.Diff(onlineSnapshot(1, player("a", "A")))
	assert.Equal(t, []string{"L:b"}, kinds(evs))
}

func TestObserverSameSnapshotYieldsNothing(t *testing.T) {
	o := newTestObserver(t)
	snap := onlineSnapshot(2, player("a", "A"))

	require.NotEmpty(t, o.Diff(snap))
	assert.Nil(t, o.Diff(snap))
	assert.Same(t, snap, o.LastSnapshot())
}

func TestObserverDuplicateSampleEntries(t *testing.T) {
	o := newTestObserver(t)
	o.SetNotify(false, true, true)

	evs := o.Diff(onlineSnapshot(2, player("a", "A"), player("a", "A")))
	assert.Equal(t, []string{"+1", "J:a"}, kinds(evs))
}

func TestObserverRefreshReadsTracker(t *testing.T) {
	o := newTestObserver(t)
	assert.Nil(t, o.Refresh(), "no snapshot yet")

	o.tracker.record(onlineSnapshot(1, player("a", "A")))
	evs := o.Refresh()
	assert.Equal(t, []string{"online", "+1", "J:a"}, kinds(evs))
	assert.Nil(t, o.Refresh())

	assert.Equal(t, []status.PlayerRef{player("a", "A")}, o.OnlinePlayers())
}
