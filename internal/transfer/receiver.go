// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package transfer

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nbridge/nbridge/internal/latency"
	"github.com/nbridge/nbridge/internal/progress"
	"github.com/nbridge/nbridge/internal/protocol"
	"github.com/nbridge/nbridge/internal/streamio"
)

// destWriteBufSize buffers the destination file write under the
// adaptive chunk size so a small Buffer Manager size doesn't thrash
// syscalls.
const destWriteBufSize = 256 * 1024

// Receiver drives one inbound file transfer: Idle -> Handshake ->
// AwaitInfo -> Streaming -> Finalize -> Done|Failed.
type Receiver struct {
	sess *session
	cfg  Config

	// destDir is where incoming files are written; the name carried by
	// FILE_INFO is joined against it, never trusted as an absolute path.
	destDir string

	// pendingFileInfo holds the FILE_INFO payload peeked by answerPings
	// once it sees the sender move past PING/PONG.
	pendingFileInfo []byte
}

// NewReceiver wraps conn for receiving into destDir, publishing events
// to subject.
func NewReceiver(conn *streamio.Conn, subject *progress.Subject, cfg Config, destDir string) *Receiver {
	return &Receiver{sess: newSession(conn, subject), cfg: cfg, destDir: destDir}
}

// TaskID identifies this transfer for logging and progress events.
func (r *Receiver) TaskID() string {
	return r.sess.taskID
}

// Receive runs one full transfer to completion (or failure). It
// returns the path written on success.
func (r *Receiver) Receive(ctx context.Context) (string, error) {
	weSupportChecksum, err := r.handshake(ctx)
	if err != nil {
		return "", err
	}
	return r.stream(ctx, weSupportChecksum)
}

func (r *Receiver) handshake(ctx context.Context) (bool, error) {
	r.sess.setState(StateHandshake)

	kind, payload, err := r.sess.conn.ReadControlFrame()
	if err != nil {
		return false, r.sess.fail(KindIo, "awaiting HELLO", err)
	}
	if kind != protocol.KindMessage || string(payload) != protocol.MsgHello {
		return false, r.sess.fail(KindProtocol, fmt.Sprintf("expected HELLO, got %s", kind), nil)
	}

	ready := []byte(protocol.MsgReady)
	if r.cfg.VerifyChecksum {
		ready = append(ready, checksumCapabilityOn)
	} else {
		ready = append(ready, checksumCapabilityOff)
	}
	if err := r.sess.conn.WriteControlFrame(protocol.KindMessage, ready); err != nil {
		return false, r.sess.fail(KindIo, "sending READY", err)
	}

	r.sess.setState(StateAwaitInfo)
	if err := r.answerPings(ctx); err != nil {
		return false, err
	}

	mgr, err := bufferManagerFor(r.cfg, r.sess.prober.RTT())
	if err != nil {
		return false, r.sess.fail(KindConfig, "seeding buffer manager", err)
	}
	r.sess.buf = mgr

	return r.cfg.VerifyChecksum, nil
}

// answerPings responds to the sender's latency probe. The sender
// drives the exchange; the receiver just echoes PING payloads back as
// PONG until the sender moves on to FILE_INFO, which this loop
// recognizes by peeking the next frame's kind.
func (r *Receiver) answerPings(ctx context.Context) error {
	for {
		kind, payload, err := r.sess.conn.ReadControlFrame()
		if err != nil {
			return r.sess.fail(KindIo, "awaiting PING or FILE_INFO", err)
		}
		switch kind {
		case protocol.KindPing:
			if err := latency.RespondPong(r.sess.conn, payload); err != nil {
				return r.sess.fail(KindIo, "sending PONG", err)
			}
		case protocol.KindFileInfo:
			r.pendingFileInfo = payload
			return nil
		default:
			return r.sess.fail(KindProtocol, fmt.Sprintf("expected PING or FILE_INFO, got %s", kind), nil)
		}
	}
}

func (r *Receiver) stream(ctx context.Context, verifyChecksum bool) (string, error) {
	fi, err := protocol.DecodeFileInfo(r.pendingFileInfo)
	if err != nil {
		return "", r.sess.fail(KindProtocol, "decoding FILE_INFO", err)
	}

	r.sess.setState(StateStreaming)
	r.sess.subject.Publish(progress.NewTaskStarted(r.sess.taskID, fi.Name, int64(fi.Size)))

	destPath := filepath.Join(r.destDir, filepath.Base(fi.Name))
	partPath := destPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return "", r.sess.fail(KindIo, "creating destination file", err)
	}
	defer out.Close()
	writer := bufio.NewWriterSize(out, destWriteBufSize)

	hasher := sha256.New()
	var received uint64

	for received < fi.Size {
		if err := ctx.Err(); err != nil {
			return "", r.sess.fail(KindCancelled, "transfer cancelled", err)
		}

		start := time.Now()
		kind, payload, err := r.sess.conn.ReadDataFrame()
		elapsed := time.Since(start)
		if err != nil {
			return "", r.sess.fail(KindIo, "awaiting FILE_DATA", err)
		}
		if kind == protocol.KindError {
			return "", r.sess.fail(KindPeer, string(payload), nil)
		}
		if kind == protocol.KindFileEnd {
			return "", r.sess.fail(KindProtocol, fmt.Sprintf("peer closed early: got %d of %d bytes", received, fi.Size), nil)
		}
		if kind != protocol.KindFileData {
			return "", r.sess.fail(KindProtocol, fmt.Sprintf("expected FILE_DATA, got %s", kind), nil)
		}

		if _, err := writer.Write(payload); err != nil {
			return "", r.sess.fail(KindIo, "writing destination file", err)
		}
		hasher.Write(payload)
		received += uint64(len(payload))

		r.sess.buf.AdaptiveAdjust(int64(len(payload)), elapsed)
		r.sess.subject.Publish(progress.NewProgressAdvanced(r.sess.taskID, int64(len(payload))))
	}

	if err := writer.Flush(); err != nil {
		return "", r.sess.fail(KindIo, "flushing destination file", err)
	}

	kind, payload, err := r.sess.conn.ReadControlFrame()
	if err != nil {
		return "", r.sess.fail(KindIo, "awaiting FILE_END", err)
	}
	if kind != protocol.KindFileEnd {
		return "", r.sess.fail(KindProtocol, fmt.Sprintf("expected FILE_END, got %s", kind), nil)
	}

	if verifyChecksum {
		kind, payload, err = r.sess.conn.ReadControlFrame()
		if err != nil {
			return "", r.sess.fail(KindIo, "awaiting CHECKSUM", err)
		}
		if kind != protocol.KindChecksum {
			return "", r.sess.fail(KindProtocol, fmt.Sprintf("expected CHECKSUM, got %s", kind), nil)
		}
		if !bytes.Equal(payload, hasher.Sum(nil)) {
			return "", r.sess.fail(KindProtocol, "checksum mismatch", nil)
		}
	}

	// The file is complete and verified: close it and promote it from
	// its .part name before telling the sender we're done. A failed
	// close or rename leaves the data under the .part name, same as
	// every earlier failure path; a failed ACK comes after the rename.
	if err := out.Close(); err != nil {
		return "", r.sess.fail(KindIo, "closing destination file", err)
	}
	if err := os.Rename(partPath, destPath); err != nil {
		return "", r.sess.fail(KindIo, "renaming completed file", err)
	}

	r.sess.setState(StateFinalize)
	if err := r.sess.conn.WriteControlFrame(protocol.KindMessage, []byte(protocol.MsgAck)); err != nil {
		return "", r.sess.fail(KindIo, "sending ACK", err)
	}

	r.sess.setState(StateDone)
	r.sess.subject.Publish(progress.NewTaskFinished(r.sess.taskID, true))
	return destPath, nil
}

