// Package network implements the client side of the status exchange: one TCP
// connection per probe attempt, bounded by the caller's context.
package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/mcwatch/internal/protocol"
	"github.com/energizer-project/mcwatch/internal/status"
)

// Connection wraps the TCP connection of a single probe attempt.
type Connection struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	logger zerolog.Logger

	connectedAt time.Time
	closed      bool
}

// Dial connects to ep. Failures are classified as ConnectTimeout when the
// context ended or the dial timed out, ConnectFailed otherwise.
func Dial(ctx context.Context, dialer *net.Dialer, ep status.Endpoint, logger zerolog.Logger) (*Connection, error) {
	conn, err := dialer.DialContext(ctx, "tcp", ep.Address())
	if err != nil {
		var ne net.Error
		if ctx.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
			return nil, status.NewError(status.KindConnectTimeout, "connect", err)
		}
		return nil, status.NewError(status.KindConnectFailed, "connect", err)
	}

	return NewConnection(conn, logger), nil
}

// NewConnection wraps an existing net.Conn.
func NewConnection(conn net.Conn, logger zerolog.Logger) *Connection {
	return &Connection{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		connectedAt: time.Now(),
		logger:      logger.With().Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

// Bind applies ctx to all I/O on the connection: its deadline becomes the
// socket deadline and cancellation expires pending reads and writes at once.
// The returned function detaches the binding.
func (c *Connection) Bind(ctx context.Context) func() bool {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	}
	return context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
}

// ReadPacket reads one framed packet.
func (c *Connection) ReadPacket() (*protocol.Packet, error) {
	return protocol.ReadFrame(c.reader)
}

// Reader exposes the buffered stream for unframed replies.
func (c *Connection) Reader() io.Reader {
	return c.reader
}

// Write sends the given frames back to back in a single write.
func (c *Connection) Write(op string, frames ...[]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return status.Errorf(status.KindIO, op, "connection is closed")
	}

	var buf []byte
	for _, f := range frames {
		buf = append(buf, f...)
	}

	if _, err := c.conn.Write(buf); err != nil {
		return status.NewError(status.KindIO, op, fmt.Errorf("failed to write %d bytes: %w", len(buf), err))
	}
	return nil
}

// Close closes the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Trace().Dur("open_for", time.Since(c.connectedAt)).Msg("connection closed")
	return c.conn.Close()
}
