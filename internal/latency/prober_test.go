// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package latency

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/nbridge/nbridge/internal/protocol"
	"github.com/nbridge/nbridge/internal/streamio"
)

func TestProber_Measure_RoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	client := streamio.New(a).WithControlDeadline(2 * time.Second)
	server := streamio.New(b).WithControlDeadline(2 * time.Second)

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			kind, payload, err := server.ReadControlFrame()
			if err != nil {
				return
			}
			if kind != protocol.KindPing {
				continue
			}
			if err := RespondPong(server, payload); err != nil {
				return
			}
		}
	}()
	defer close(stop)

	prober := NewProber(client)
	rtt, err := prober.Measure()
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if rtt <= 0 {
		t.Fatalf("expected positive RTT, got %v", rtt)
	}
	if prober.RTT() != rtt {
		t.Fatalf("RTT() should reflect the measured value: got %v want %v", prober.RTT(), rtt)
	}
}

func TestProber_RTT_DefaultsBeforeMeasurement(t *testing.T) {
	a, _ := net.Pipe()
	defer a.Close()

	prober := NewProber(streamio.New(a))
	if prober.RTT() != DefaultRTT {
		t.Fatalf("expected default RTT %v, got %v", DefaultRTT, prober.RTT())
	}
}

func TestProber_Measure_PropagatesNonFatalError(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	b.Close() // peer gone before any PING is sent

	client := streamio.New(a).WithControlDeadline(200 * time.Millisecond)
	prober := NewProber(client)

	rtt, err := prober.Measure()
	if err == nil {
		t.Fatal("expected an error from a dead peer")
	}
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected the PING write to fail with the closed-pipe error, got %v", err)
	}
	if rtt != DefaultRTT {
		t.Fatalf("expected fallback to DefaultRTT on failure, got %v", rtt)
	}
}

func TestAverageDiscardingMax(t *testing.T) {
	samples := []time.Duration{30 * time.Millisecond, 100 * time.Millisecond, 40 * time.Millisecond}
	got := averageDiscardingMax(samples)
	want := 35 * time.Millisecond
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
