// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package transfer

import (
	"bufio"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nbridge/nbridge/internal/progress"
	"github.com/nbridge/nbridge/internal/protocol"
	"github.com/nbridge/nbridge/internal/streamio"
)

// sourceReadBufSize buffers the source file read under the adaptive
// chunk size so a small Buffer Manager size doesn't thrash syscalls.
const sourceReadBufSize = 256 * 1024

// Sender drives one outbound file transfer: Idle -> Handshake ->
// Negotiate -> Streaming -> Finalize -> Done|Failed.
type Sender struct {
	sess *session
	cfg  Config
}

// NewSender wraps conn for sending, publishing events to subject.
func NewSender(conn *streamio.Conn, subject *progress.Subject, cfg Config) *Sender {
	return &Sender{sess: newSession(conn, subject), cfg: cfg}
}

// TaskID identifies this transfer for logging and progress events.
func (s *Sender) TaskID() string {
	return s.sess.taskID
}

// Send transmits the file at path. ctx is polled between frames; an
// observed cancellation flushes a single ERROR "cancelled" frame
// before returning.
func (s *Sender) Send(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return s.sess.fail(KindIo, "opening source file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return s.sess.fail(KindIo, "statting source file", err)
	}

	checksumNegotiated, err := s.handshake(ctx)
	if err != nil {
		return err
	}

	return s.stream(ctx, f, info.Name(), info.Size(), uint64(info.ModTime().Unix()), checksumNegotiated)
}

func (s *Sender) handshake(ctx context.Context) (bool, error) {
	s.sess.setState(StateHandshake)

	if err := s.sess.conn.WriteControlFrame(protocol.KindMessage, []byte(protocol.MsgHello)); err != nil {
		return false, s.sess.fail(KindIo, "sending HELLO", err)
	}

	kind, payload, err := s.sess.conn.ReadControlFrame()
	if err != nil {
		return false, s.sess.fail(KindIo, "awaiting READY", err)
	}
	if kind != protocol.KindMessage || len(payload) == 0 || string(payload[:len(protocol.MsgReady)]) != protocol.MsgReady {
		return false, s.sess.fail(KindProtocol, fmt.Sprintf("expected READY, got %s", kind), nil)
	}
	peerSupportsChecksum := len(payload) > len(protocol.MsgReady) && payload[len(protocol.MsgReady)] == checksumCapabilityOn

	s.sess.setState(StateNegotiate)
	if _, err := s.sess.prober.Measure(); err != nil {
		// Non-fatal: the prober already fell back to DefaultRTT.
	}

	mgr, err := bufferManagerFor(s.cfg, s.sess.prober.RTT())
	if err != nil {
		return false, s.sess.fail(KindConfig, "seeding buffer manager", err)
	}
	s.sess.buf = mgr

	return peerSupportsChecksum && s.cfg.VerifyChecksum, nil
}

func (s *Sender) stream(ctx context.Context, f *os.File, name string, size int64, mtime uint64, useChecksum bool) error {
	s.sess.setState(StateStreaming)
	s.sess.subject.Publish(progress.NewTaskStarted(s.sess.taskID, name, size))

	fi := protocol.FileInfo{Name: name, Size: uint64(size), Mtime: &mtime}
	payload, err := protocol.EncodeFileInfo(fi)
	if err != nil {
		return s.sess.fail(KindProtocol, "encoding FILE_INFO", err)
	}
	if err := s.sess.conn.WriteControlFrame(protocol.KindFileInfo, payload); err != nil {
		return s.sess.fail(KindIo, "sending FILE_INFO", err)
	}

	hasher := sha256.New()
	throttle := NewThrottledWriter(ctx, io.Discard, s.cfg.RateLimitBytes)
	reader := bufio.NewReaderSize(f, sourceReadBufSize)

	var sent int64
	for {
		if err := ctx.Err(); err != nil {
			return s.cancel()
		}

		n := s.sess.buf.CurrentSize()
		buf := make([]byte, n)
		read, readErr := io.ReadFull(reader, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return s.sess.fail(KindIo, "reading source file", readErr)
		}
		buf = buf[:read]
		if read == 0 {
			break
		}

		if _, err := throttle.Write(buf); err != nil {
			return s.sess.fail(KindCancelled, "rate limiter wait interrupted", err)
		}

		start := time.Now()
		writeErr := s.sess.conn.WriteDataFrame(protocol.KindFileData, buf)
		elapsed := time.Since(start)
		if writeErr != nil {
			return s.sess.fail(KindIo, "sending FILE_DATA", writeErr)
		}
		hasher.Write(buf)

		s.sess.buf.AdaptiveAdjust(int64(read), elapsed)
		sent += int64(read)
		s.sess.subject.Publish(progress.NewProgressAdvanced(s.sess.taskID, int64(read)))

		if readErr == io.ErrUnexpectedEOF || readErr == io.EOF {
			break
		}
	}

	if sent != size {
		return s.sess.fail(KindProtocol, fmt.Sprintf("size mismatch: sent %d, expected %d", sent, size), nil)
	}

	if err := s.sess.conn.WriteControlFrame(protocol.KindFileEnd, nil); err != nil {
		return s.sess.fail(KindIo, "sending FILE_END", err)
	}

	if useChecksum {
		if err := s.sess.conn.WriteControlFrame(protocol.KindChecksum, hasher.Sum(nil)); err != nil {
			return s.sess.fail(KindIo, "sending CHECKSUM", err)
		}
	}

	s.sess.setState(StateFinalize)
	kind, payload, err := s.sess.conn.ReadControlFrame()
	if err != nil {
		return s.sess.fail(KindIo, "awaiting ACK", err)
	}
	if kind == protocol.KindError {
		return s.sess.fail(KindPeer, string(payload), nil)
	}
	if kind != protocol.KindMessage || string(payload) != protocol.MsgAck {
		return s.sess.fail(KindProtocol, fmt.Sprintf("expected ACK, got %s", kind), nil)
	}

	s.sess.setState(StateDone)
	s.sess.subject.Publish(progress.NewTaskFinished(s.sess.taskID, true))
	return nil
}

// cancel fails the session (which flushes a best-effort ERROR frame)
// and closes the socket. Both sides must tolerate the resulting close
// regardless of whether the frame made it out.
func (s *Sender) cancel() error {
	err := s.sess.fail(KindCancelled, "transfer cancelled", errors.New("cancelled"))
	_ = s.sess.conn.Close()
	return err
}
