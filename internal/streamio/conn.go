// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package streamio provides exact-byte read/write helpers with timeouts
// and stall detection over a reliable socket. It assumes the socket is
// already reachable (dialed directly, or tunneled by an external SSH
// process) and never concerns itself with how that reachability was
// established.
package streamio

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/nbridge/nbridge/internal/protocol"
)

// Default deadlines, overridable per Conn via WithControlDeadline /
// WithStallDeadline.
const (
	DefaultControlDeadline = 30 * time.Second
	DefaultStallDeadline   = 60 * time.Second
)

// Sentinel errors. Timeout and UnexpectedEOF are distinguished from a
// generic Io failure so the transfer engine can classify them.
var (
	ErrTimeout       = errors.New("streamio: operation timed out")
	ErrUnexpectedEOF = io.ErrUnexpectedEOF
)

// Conn wraps a net.Conn with the exact-byte read/write semantics the
// frame codec and transfer engine rely on. It owns the underlying
// connection exclusively.
type Conn struct {
	nc net.Conn

	controlDeadline time.Duration
	stallDeadline   time.Duration

	closeOnce sync.Once
	closeErr  error
}

// New wraps nc with the default control/stall deadlines.
func New(nc net.Conn) *Conn {
	return &Conn{
		nc:              nc,
		controlDeadline: DefaultControlDeadline,
		stallDeadline:   DefaultStallDeadline,
	}
}

// WithControlDeadline overrides the per-operation deadline used for
// control frames (handshake messages, PING/PONG, FILE_INFO, FILE_END).
func (c *Conn) WithControlDeadline(d time.Duration) *Conn {
	if d > 0 {
		c.controlDeadline = d
	}
	return c
}

// WithStallDeadline overrides the no-progress deadline used while
// streaming FILE_DATA payload bytes.
func (c *Conn) WithStallDeadline(d time.Duration) *Conn {
	if d > 0 {
		c.stallDeadline = d
	}
	return c
}

// RemoteAddr returns the peer address, or "" if unavailable.
func (c *Conn) RemoteAddr() string {
	if c.nc == nil || c.nc.RemoteAddr() == nil {
		return ""
	}
	return c.nc.RemoteAddr().String()
}

// ReadExact reads exactly n bytes, treating the whole read as one control
// operation bounded by the control deadline — it does not reset the
// deadline on partial progress, since control frames are expected to
// arrive promptly or not at all.
func (c *Conn) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	c.nc.SetReadDeadline(time.Now().Add(c.controlDeadline))
	if _, err := io.ReadFull(c.nc, buf); err != nil {
		return nil, classifyReadErr(err)
	}
	return buf, nil
}

// ReadExactStalling reads exactly n bytes into the destination slice,
// resetting the stall deadline after every Read call that makes
// progress. Total time is unbounded as long as bytes keep arriving; the
// deadline only fires on genuine stalls.
func (c *Conn) ReadExactStalling(buf []byte) error {
	total := 0
	for total < len(buf) {
		c.nc.SetReadDeadline(time.Now().Add(c.stallDeadline))
		n, err := c.nc.Read(buf[total:])
		total += n
		if err != nil {
			if total == len(buf) {
				return nil
			}
			return classifyReadErr(err)
		}
	}
	return nil
}

// WriteAll writes p fully, retrying on short writes, bounded by the
// control deadline for the whole call.
func (c *Conn) WriteAll(p []byte) error {
	c.nc.SetWriteDeadline(time.Now().Add(c.controlDeadline))
	return c.writeAll(p)
}

// WriteAllStalling writes p fully, resetting the stall deadline after
// every Write call that makes progress — used for FILE_DATA payloads
// where total transfer time is unbounded but forward progress must not
// stop for more than the stall deadline.
func (c *Conn) WriteAllStalling(p []byte) error {
	written := 0
	for written < len(p) {
		c.nc.SetWriteDeadline(time.Now().Add(c.stallDeadline))
		n, err := c.nc.Write(p[written:])
		written += n
		if err != nil {
			return classifyWriteErr(err)
		}
	}
	return nil
}

func (c *Conn) writeAll(p []byte) error {
	written := 0
	for written < len(p) {
		n, err := c.nc.Write(p[written:])
		written += n
		if err != nil {
			return classifyWriteErr(err)
		}
	}
	return nil
}

// Close shuts down the underlying connection. Safe to call more than
// once; subsequent calls return the first error observed.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

// Raw exposes the underlying net.Conn for callers that need to pass it
// to protocol.EncodeFrame/DecodeFrame directly (those operate on
// io.Writer/io.Reader, not *Conn).
func (c *Conn) Raw() net.Conn {
	return c.nc
}

// WriteControlFrame encodes and writes a frame whose header and payload
// are both bounded by the control deadline. Use for handshake messages,
// PING/PONG, FILE_INFO, FILE_END, CHECKSUM and ERROR — everything except
// the bulk FILE_DATA payload.
func (c *Conn) WriteControlFrame(kind protocol.Kind, payload []byte) error {
	header, err := protocol.EncodeHeader(kind, len(payload))
	if err != nil {
		return err
	}
	if err := c.WriteAll(header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return c.WriteAll(payload)
}

// ReadControlFrame reads one frame under the control deadline. The
// payload length is validated against protocol.MaxPayloadSize before any
// allocation.
func (c *Conn) ReadControlFrame() (protocol.Kind, []byte, error) {
	header, err := c.ReadExact(protocol.HeaderSize)
	if err != nil {
		return 0, nil, err
	}
	kind, payloadLen, err := protocol.DecodeHeader(header)
	if err != nil {
		return 0, nil, err
	}
	if payloadLen == 0 {
		return kind, nil, nil
	}
	payload, err := c.ReadExact(int(payloadLen))
	if err != nil {
		return 0, nil, err
	}
	return kind, payload, nil
}

// WriteDataFrame writes a frame in the streaming phase of a transfer:
// header and payload are both subject to the stall deadline rather than
// the short control deadline, since a large FILE_DATA payload can
// legitimately take much longer than 30s to leave the socket.
func (c *Conn) WriteDataFrame(kind protocol.Kind, payload []byte) error {
	header, err := protocol.EncodeHeader(kind, len(payload))
	if err != nil {
		return err
	}
	if err := c.WriteAllStalling(header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return c.WriteAllStalling(payload)
}

// ReadDataFrame reads one frame in the streaming phase: both the header
// wait and the payload read are governed by the stall deadline, reset on
// every byte of progress, so a slow-but-alive transfer is never killed
// while a genuinely stalled one is caught within stallDeadline.
// The payload length is validated against protocol.MaxPayloadSize before
// any allocation is made for the body.
func (c *Conn) ReadDataFrame() (protocol.Kind, []byte, error) {
	header := make([]byte, protocol.HeaderSize)
	if err := c.ReadExactStalling(header); err != nil {
		return 0, nil, err
	}
	kind, payloadLen, err := protocol.DecodeHeader(header)
	if err != nil {
		return 0, nil, err
	}
	if payloadLen == 0 {
		return kind, nil, nil
	}
	payload := make([]byte, payloadLen)
	if err := c.ReadExactStalling(payload); err != nil {
		return 0, nil, err
	}
	return kind, payload, nil
}

func classifyReadErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("streamio: %w", io.ErrUnexpectedEOF)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("streamio: %w", ErrTimeout)
	}
	return fmt.Errorf("streamio: read: %w", err)
}

func classifyWriteErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("streamio: %w", ErrTimeout)
	}
	return fmt.Errorf("streamio: write: %w", err)
}
