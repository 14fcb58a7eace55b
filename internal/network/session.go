package network

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/mcwatch/internal/protocol"
	"github.com/energizer-project/mcwatch/internal/status"
)

// Variant selects the status protocol spoken by a Session.
type Variant int

const (
	VariantModern Variant = iota
	VariantLegacy
)

// ParseVariant maps a config value to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "modern":
		return VariantModern, nil
	case "legacy":
		return VariantLegacy, nil
	default:
		return VariantModern, fmt.Errorf("unknown protocol variant %q", s)
	}
}

func (v Variant) String() string {
	if v == VariantLegacy {
		return "legacy"
	}
	return "modern"
}

// State is a step of a probe attempt.
type State int

const (
	StateConnecting State = iota
	StateHandshaking
	StateAwaitingStatus
	StateParsing
	StateTimedPing
	StateDone
)

var stateNames = [...]string{"connecting", "handshaking", "awaiting_status", "parsing", "timed_ping", "done"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Prober produces one Snapshot per call and never fails outright.
type Prober interface {
	Probe(ctx context.Context, ep status.Endpoint) *status.Snapshot
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Variant         Variant
	ProtocolVersion int32
	TimedPing       bool
}

// DefaultSessionConfig returns the modern variant with timed ping enabled.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Variant:         VariantModern,
		ProtocolVersion: protocol.DefaultProtocolVersion,
		TimedPing:       true,
	}
}

// Session runs probe attempts. It is safe for concurrent use; each Probe call
// opens and closes its own connection.
type Session struct {
	cfg    SessionConfig
	dialer net.Dialer
	logger zerolog.Logger
}

// NewSession creates a Session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.ProtocolVersion == 0 {
		cfg.ProtocolVersion = protocol.DefaultProtocolVersion
	}
	return &Session{
		cfg:    cfg,
		logger: log.With().Str("component", "probe").Str("variant", cfg.Variant.String()).Logger(),
	}
}

// Config returns the session configuration.
func (s *Session) Config() SessionConfig {
	return s.cfg
}

// Probe performs one attempt against ep. Every failure is folded into a
// failed Snapshot carrying the error kind; the connection is closed before
// Probe returns.
func (s *Session) Probe(ctx context.Context, ep status.Endpoint) *status.Snapshot {
	requestedAt := time.Now()
	logger := s.logger.With().Str("endpoint", ep.String()).Logger()

	res, elapsed, err := s.run(ctx, ep, logger)
	if err != nil {
		logger.Debug().Err(err).Str("kind", string(status.KindOf(err))).Msg("probe attempt failed")
		return status.NewFailed(requestedAt, time.Since(requestedAt), err)
	}

	logger.Trace().Dur("elapsed", elapsed).Int("online", res.CurrentPlayers).Msg("probe attempt succeeded")
	return status.NewSnapshot(requestedAt, elapsed, res)
}

func (s *Session) run(ctx context.Context, ep status.Endpoint, logger zerolog.Logger) (res status.Result, elapsed time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = status.Errorf(status.KindIO, "probe", "panic: %v", r)
		}
	}()

	trace(logger, StateConnecting)
	conn, err := Dial(ctx, &s.dialer, ep, logger)
	if err != nil {
		return status.Result{}, 0, err
	}
	defer conn.Close()

	stop := conn.Bind(ctx)
	defer stop()

	switch s.cfg.Variant {
	case VariantLegacy:
		res, elapsed, err = exchangeLegacy(conn, logger)
	default:
		res, elapsed, err = exchangeModern(conn, ep, s.cfg, logger)
	}
	if err == nil {
		trace(logger, StateDone)
	}
	return res, elapsed, err
}

// exchangeModern runs handshake, status request and the optional timed ping.
func exchangeModern(conn *Connection, ep status.Endpoint, cfg SessionConfig, logger zerolog.Logger) (status.Result, time.Duration, error) {
	start := time.Now()

	trace(logger, StateHandshaking)
	if err := conn.Write("write handshake",
		protocol.BuildHandshake(cfg.ProtocolVersion, ep.Host, ep.Port),
		protocol.BuildStatusRequest(),
	); err != nil {
		return status.Result{}, 0, err
	}

	trace(logger, StateAwaitingStatus)
	pkt, err := conn.ReadPacket()
	if err != nil {
		return status.Result{}, 0, err
	}
	text, err := protocol.StatusJSON(pkt)
	if err != nil {
		return status.Result{}, 0, err
	}
	elapsed := time.Since(start)

	trace(logger, StateParsing)
	res, err := protocol.InterpretStatus(text, logger)
	if err != nil {
		return status.Result{}, 0, err
	}

	if cfg.TimedPing {
		trace(logger, StateTimedPing)
		if rtt, ok := timedPing(conn, logger); ok {
			elapsed = rtt / 2
		}
	}
	return res, elapsed, nil
}

// timedPing measures a ping round trip. A failed or mismatched echo is logged
// and reported as not ok so the status round trip is kept.
func timedPing(conn *Connection, logger zerolog.Logger) (time.Duration, bool) {
	nonce := time.Now().UnixNano()

	start := time.Now()
	if err := conn.Write("write ping", protocol.BuildPing(nonce)); err != nil {
		logger.Warn().Err(err).Msg("timed ping failed, keeping status round trip")
		return 0, false
	}

	pkt, err := conn.ReadPacket()
	rtt := time.Since(start)
	if err != nil {
		logger.Warn().Err(err).Msg("timed ping failed, keeping status round trip")
		return 0, false
	}

	echoed, err := protocol.PongNonce(pkt)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid ping reply, keeping status round trip")
		return 0, false
	}
	if echoed != nonce {
		logger.Warn().Int64("sent", nonce).Int64("echoed", echoed).Msg("ping nonce mismatch, keeping status round trip")
		return 0, false
	}
	return rtt, true
}

// exchangeLegacy sends the 0xFE probe and decodes the kick reply.
func exchangeLegacy(conn *Connection, logger zerolog.Logger) (status.Result, time.Duration, error) {
	start := time.Now()

	trace(logger, StateHandshaking)
	if err := conn.Write("write legacy probe", protocol.BuildLegacyProbe()); err != nil {
		return status.Result{}, 0, err
	}

	trace(logger, StateAwaitingStatus)
	data, err := protocol.ReadLegacyResponse(conn.Reader())
	if err != nil {
		return status.Result{}, 0, err
	}
	elapsed := time.Since(start)

	trace(logger, StateParsing)
	res, err := protocol.ParseLegacy(data)
	if err != nil {
		return status.Result{}, 0, err
	}
	return res, elapsed, nil
}

func trace(logger zerolog.Logger, state State) {
	logger.Trace().Str("state", state.String()).Msg("probe state")
}
