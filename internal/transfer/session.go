// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package transfer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nbridge/nbridge/internal/buffer"
	"github.com/nbridge/nbridge/internal/idgen"
	"github.com/nbridge/nbridge/internal/latency"
	"github.com/nbridge/nbridge/internal/progress"
	"github.com/nbridge/nbridge/internal/protocol"
	"github.com/nbridge/nbridge/internal/streamio"
)

// State names, held in an atomic.Value exactly like the teacher's
// ControlChannel.state, so a state read never blocks a concurrent
// transition.
const (
	StateIdle      = "idle"
	StateHandshake = "handshake"
	StateNegotiate = "negotiate"
	StateAwaitInfo = "await_info"
	StateStreaming = "streaming"
	StateFinalize  = "finalize"
	StateDone      = "done"
	StateFailed    = "failed"
)

// checksumCapability is the single negotiation byte appended to the
// READY message: 0x01 means the receiver expects the additive
// CHECKSUM frame, 0x00 means it does not.
const (
	checksumCapabilityOff byte = 0x00
	checksumCapabilityOn  byte = 0x01
)

// Config holds the knobs a Sender/Receiver needs beyond the bare
// connection: whether to verify a trailing checksum, and the buffer
// manager bounds/strategy to seed from the measured RTT.
type Config struct {
	VerifyChecksum bool
	BufferConfig   buffer.Config
	Strategy       buffer.Strategy
	RateLimitBytes int64 // 0 = unlimited
}

// session holds the state shared by Sender and Receiver: the
// connection, buffer manager, latency prober, progress subject, and a
// lock-free state string.
type session struct {
	conn    *streamio.Conn
	subject *progress.Subject
	buf     *buffer.Manager
	prober  *latency.Prober

	taskID string
	state  atomic.Value // string
}

func newSession(conn *streamio.Conn, subject *progress.Subject) *session {
	s := &session{
		conn:    conn,
		subject: subject,
		prober:  latency.NewProber(conn),
		taskID:  idgen.New(),
	}
	s.setState(StateIdle)
	return s
}

func (s *session) setState(state string) {
	s.state.Store(state)
}

func (s *session) State() string {
	v := s.state.Load()
	if v == nil {
		return StateIdle
	}
	return v.(string)
}

// fail transitions to Failed, writes a best-effort ERROR frame to the
// peer, publishes a TaskError, and returns a *Error wrapping cause
// with kind. This is the single path every engine failure funnels
// through so the terminal-state, peer-notification, and
// event-publishing guarantees can't be forgotten at some call site.
//
// No frame is sent for KindPeer: that kind means the peer already
// sent us an ERROR frame, and echoing one back would just race the
// connection teardown.
func (s *session) fail(kind Kind, message string, cause error) *Error {
	s.setState(StateFailed)
	err := newError(kind, message, cause)
	if kind != KindPeer {
		_ = s.conn.WriteControlFrame(protocol.KindError, []byte(err.Error()))
	}
	s.subject.Publish(progress.NewTaskError(s.taskID, err.Error()))
	return err
}

func bufferManagerFor(cfg Config, rtt time.Duration) (*buffer.Manager, error) {
	bufCfg := cfg.BufferConfig
	if bufCfg.Initial <= 0 {
		bufCfg.Initial = buffer.SuggestInitial(rtt, cfg.Strategy)
	}
	mgr, err := buffer.NewManager(bufCfg)
	if err != nil {
		return nil, fmt.Errorf("transfer: constructing buffer manager: %w", err)
	}
	mgr.SetRTT(rtt)
	return mgr, nil
}
