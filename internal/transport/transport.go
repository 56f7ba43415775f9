// Package transport implements the length-prefixed framed message channel
// of C1: a ten-digit ASCII decimal header followed by that many bytes of a
// serialized message.Message, heartbeat pings on send-side idle, and
// idle-timeout driven disconnection on the receive side.
package transport

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/exp/sessioncoordinator/internal/message"
)

const (
	headerLen = 10
	maxFrame  = 9_999_999_999

	// DefaultPingInterval is how long a sender idles before emitting a ping.
	DefaultPingInterval = 2 * time.Second
	// DefaultIdleTimeout is how long a receiver tolerates silence before
	// classifying the peer as disconnected.
	DefaultIdleTimeout = 10 * time.Second
)

var (
	// ErrFrameTooLarge is returned when an encoded payload would not fit
	// the ten-digit length header.
	ErrFrameTooLarge = errors.New("transport: frame exceeds maximum length")
	// ErrDisconnected is the synthesized condition on a clean peer close.
	ErrDisconnected = errors.New("transport: peer disconnected")
)

// Codec serializes and deserializes Messages for the wire. The default
// Codec is JSON (encoding/json); shopspring/decimal's own MarshalJSON/
// UnmarshalJSON preserve scale, satisfying the decimal round-trip
// requirement of §4.1 without a third-party serialization library — no
// dependency in the retrieved pack specializes in a wire codec, so this is
// the one ambient concern built directly on the standard library.
type Codec interface {
	Encode(m message.Message) ([]byte, error)
	Decode(b []byte) (message.Message, error)
}

// JSONCodec is the default Codec.
type JSONCodec struct{}

func (JSONCodec) Encode(m message.Message) ([]byte, error) { return json.Marshal(m) }
func (JSONCodec) Decode(b []byte) (message.Message, error) {
	var m message.Message
	err := json.Unmarshal(b, &m)
	return m, err
}

// Conn is a framed, heartbeating wrapper around a net.Conn.
type Conn struct {
	raw   net.Conn
	r     *bufio.Reader
	codec Codec

	pingInterval time.Duration
	idleTimeout  time.Duration

	lastSend time.Time
	lastRecv time.Time
}

// New wraps raw with framing, using codec for (de)serialization.
func New(raw net.Conn, codec Codec) *Conn {
	if codec == nil {
		codec = JSONCodec{}
	}
	now := time.Now()
	return &Conn{
		raw:          raw,
		r:            bufio.NewReader(raw),
		codec:        codec,
		pingInterval: DefaultPingInterval,
		idleTimeout:  DefaultIdleTimeout,
		lastSend:     now,
		lastRecv:     now,
	}
}

// SetTimings overrides the default ping interval / idle timeout.
func (c *Conn) SetTimings(pingInterval, idleTimeout time.Duration) {
	if pingInterval > 0 {
		c.pingInterval = pingInterval
	}
	if idleTimeout > 0 {
		c.idleTimeout = idleTimeout
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.raw.Close() }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// Send frames and writes m. It is safe to call concurrently with Recv but
// not with another concurrent Send (the caller, per §4.3, serializes sends
// through a single per-connection send worker).
func (c *Conn) Send(m message.Message) error {
	payload, err := c.codec.Encode(m)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	if len(payload) > maxFrame {
		return ErrFrameTooLarge
	}

	header := fmt.Sprintf("%0*d", headerLen, len(payload))
	if _, err := c.raw.Write([]byte(header)); err != nil {
		return fmt.Errorf("transport: write header: %w", err)
	}
	if _, err := c.raw.Write(payload); err != nil {
		return fmt.Errorf("transport: write payload: %w", err)
	}
	c.lastSend = time.Now()
	return nil
}

// SendPingIfIdle emits a ping if nothing has been sent for pingInterval.
// Called by the per-connection sender loop between outbound-queue waits.
func (c *Conn) SendPingIfIdle() error {
	if time.Since(c.lastSend) < c.pingInterval {
		return nil
	}
	return c.Send(message.Message{Type: message.TypePing})
}

// Recv reads one framed Message. A clean peer close, or no bytes within
// idleTimeout, surfaces as ErrDisconnected; any other I/O failure is
// wrapped and returned so the caller can classify it as a TransportError.
func (c *Conn) Recv() (message.Message, error) {
	_ = c.raw.SetReadDeadline(time.Now().Add(c.idleTimeout))

	var header [headerLen]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		if isTimeout(err) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return message.Message{}, ErrDisconnected
		}
		return message.Message{}, fmt.Errorf("transport: read header: %w", err)
	}

	n, err := strconv.Atoi(string(header[:]))
	if err != nil || n < 0 || n > maxFrame {
		return message.Message{}, fmt.Errorf("transport: malformed frame length %q", header[:])
	}

	_ = c.raw.SetReadDeadline(time.Now().Add(c.idleTimeout))
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		if isTimeout(err) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return message.Message{}, ErrDisconnected
		}
		return message.Message{}, fmt.Errorf("transport: read payload: %w", err)
	}

	c.lastRecv = time.Now()
	m, err := c.codec.Decode(payload)
	if err != nil {
		return message.Message{}, fmt.Errorf("transport: decode: %w", err)
	}
	return m, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IdleFor reports how long it has been since the last successful Recv.
// Idle-timeout disconnection itself is decided by Recv's read deadline,
// not by this method.
func (c *Conn) IdleFor() time.Duration { return time.Since(c.lastRecv) }

// IdleTimeout returns the configured idle timeout.
func (c *Conn) IdleTimeout() time.Duration { return c.idleTimeout }

// PingInterval returns the configured ping interval.
func (c *Conn) PingInterval() time.Duration { return c.pingInterval }
