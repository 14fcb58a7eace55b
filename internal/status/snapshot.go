package status

import "time"

// OfflineVersion is the version reported by failed snapshots.
const OfflineVersion = "0.0.0"

// Snapshot is the immutable result of one probe. Failed probes produce a
// Snapshot too; Success tells them apart.
type Snapshot struct {
	RequestedAt    time.Time     `json:"requested_at"`
	Elapsed        time.Duration `json:"-"`
	Success        bool          `json:"success"`
	Error          *Failure      `json:"error,omitempty"`
	MotdRaw        string        `json:"motd"`
	MaxPlayers     int           `json:"max_players"`
	CurrentPlayers int           `json:"current_players"`
	Version        string        `json:"version"`
	Protocol       int           `json:"protocol,omitempty"`
	Icon           *Icon         `json:"-"`
	Sample         []PlayerRef   `json:"sample"`
}

// Result holds the fields a successful probe extracts from a server response.
type Result struct {
	Motd           string
	MaxPlayers     int
	CurrentPlayers int
	Version        string
	Protocol       int
	Icon           *Icon
	Sample         []PlayerRef
}

// NewSnapshot builds a successful Snapshot. The sample is copied.
func NewSnapshot(requestedAt time.Time, elapsed time.Duration, r Result) *Snapshot {
	sample := make([]PlayerRef, len(r.Sample))
	copy(sample, r.Sample)

	return &Snapshot{
		RequestedAt:    requestedAt,
		Elapsed:        elapsed,
		Success:        true,
		MotdRaw:        r.Motd,
		MaxPlayers:     r.MaxPlayers,
		CurrentPlayers: r.CurrentPlayers,
		Version:        r.Version,
		Protocol:       r.Protocol,
		Icon:           r.Icon,
		Sample:         sample,
	}
}

// NewFailed builds a failed Snapshot carrying err.
func NewFailed(requestedAt time.Time, elapsed time.Duration, err error) *Snapshot {
	return &Snapshot{
		RequestedAt: requestedAt,
		Elapsed:     elapsed,
		Error:       FailureOf(err),
		Version:     OfflineVersion,
		Sample:      []PlayerRef{},
	}
}

// CompletedAt is when the probe finished.
func (s *Snapshot) CompletedAt() time.Time {
	return s.RequestedAt.Add(s.Elapsed)
}

// ElapsedMs is the measured latency in milliseconds.
func (s *Snapshot) ElapsedMs() int64 {
	return s.Elapsed.Milliseconds()
}

// DisplayMotd is the MOTD without formatting codes.
func (s *Snapshot) DisplayMotd() string {
	return StripFormatting(s.MotdRaw)
}

// HasIcon reports whether a usable icon is attached.
func (s *Snapshot) HasIcon() bool {
	return s.Icon != nil && !s.Icon.Released()
}

// Release drops resources owned by the Snapshot.
func (s *Snapshot) Release() {
	if s == nil {
		return
	}
	s.Icon.Release()
}
