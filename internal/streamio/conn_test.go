// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package streamio

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nbridge/nbridge/internal/protocol"
)

func pipe(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	ca := New(a).WithControlDeadline(2 * time.Second).WithStallDeadline(2 * time.Second)
	cb := New(b).WithControlDeadline(2 * time.Second).WithStallDeadline(2 * time.Second)
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func TestConn_ControlFrameRoundTrip(t *testing.T) {
	client, server := pipe(t)

	done := make(chan error, 1)
	go func() {
		done <- client.WriteControlFrame(protocol.KindMessage, []byte(protocol.MsgHello))
	}()

	kind, payload, err := server.ReadControlFrame()
	if err != nil {
		t.Fatalf("ReadControlFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteControlFrame: %v", err)
	}
	if kind != protocol.KindMessage || string(payload) != protocol.MsgHello {
		t.Fatalf("got kind=%s payload=%q", kind, payload)
	}
}

func TestConn_DataFrameRoundTrip(t *testing.T) {
	client, server := pipe(t)

	body := make([]byte, 64*1024)
	for i := range body {
		body[i] = byte(i)
	}

	done := make(chan error, 1)
	go func() {
		done <- client.WriteDataFrame(protocol.KindFileData, body)
	}()

	kind, payload, err := server.ReadDataFrame()
	if err != nil {
		t.Fatalf("ReadDataFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteDataFrame: %v", err)
	}
	if kind != protocol.KindFileData || len(payload) != len(body) {
		t.Fatalf("got kind=%s len=%d", kind, len(payload))
	}
}

func TestConn_ReadControlFrame_PeerCloseMidFrame(t *testing.T) {
	client, server := pipe(t)

	header, err := protocol.EncodeHeader(protocol.KindFileData, 10)
	if err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		// write header only, then close — simulates peer dropping mid-frame.
		if err := client.WriteAll(header); err != nil {
			done <- err
			return
		}
		done <- client.Close()
	}()

	_, _, err = server.ReadControlFrame()
	if !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
	<-done
}

func TestConn_ReadControlFrame_Timeout(t *testing.T) {
	_, server := pipe(t)
	server.WithControlDeadline(50 * time.Millisecond)

	_, _, err := server.ReadControlFrame()
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestConn_Close_Idempotent(t *testing.T) {
	c, _ := pipe(t)
	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}
