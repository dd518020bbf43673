// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package latency measures round-trip time over an established connection
// via PING/PONG frames and smooths the result for the buffer manager.
package latency

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/nbridge/nbridge/internal/protocol"
	"github.com/nbridge/nbridge/internal/streamio"
)

// DefaultRTT is used whenever a probe fails or none has completed yet.
// Probe failures are treated as non-fatal: the caller falls back to this
// value rather than aborting the transfer.
const DefaultRTT = 50 * time.Millisecond

// sampleCount is the number of PING/PONG round trips taken per Measure
// call. The maximum sample is discarded before averaging, since it is
// the one most likely to include scheduling jitter or a GC pause rather
// than genuine network latency.
const sampleCount = 3

// ewmaAlpha is the smoothing factor for the running RTT estimate.
const ewmaAlpha = 0.3

// Prober drives PING/PONG round trips over a streamio.Conn and keeps a
// smoothed RTT estimate.
type Prober struct {
	conn *streamio.Conn

	rttNanos atomic.Int64
}

// NewProber wraps conn. The Prober does not own the connection's
// lifecycle; callers are responsible for closing it.
func NewProber(conn *streamio.Conn) *Prober {
	return &Prober{conn: conn}
}

// RTT returns the current smoothed RTT estimate, or DefaultRTT if no
// measurement has ever completed.
func (p *Prober) RTT() time.Duration {
	nanos := p.rttNanos.Load()
	if nanos == 0 {
		return DefaultRTT
	}
	return time.Duration(nanos)
}

// Measure runs sampleCount PING/PONG round trips, discards the largest
// sample, and averages the rest, feeding the result into the EWMA
// estimate. A measurement error is non-fatal: Measure logs nothing
// itself and simply returns the current (possibly default) RTT along
// with the error, leaving the decision to the caller.
func (p *Prober) Measure() (time.Duration, error) {
	samples := make([]time.Duration, 0, sampleCount)

	for i := 0; i < sampleCount; i++ {
		sample, err := p.ping()
		if err != nil {
			return p.RTT(), fmt.Errorf("latency: probe %d/%d: %w", i+1, sampleCount, err)
		}
		samples = append(samples, sample)
	}

	avg := averageDiscardingMax(samples)
	p.updateRTT(avg)
	return p.RTT(), nil
}

func (p *Prober) ping() (time.Duration, error) {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(time.Now().UnixNano()))

	sent := time.Now()
	if err := p.conn.WriteControlFrame(protocol.KindPing, payload); err != nil {
		return 0, fmt.Errorf("sending ping: %w", err)
	}

	kind, _, err := p.conn.ReadControlFrame()
	if err != nil {
		return 0, fmt.Errorf("reading pong: %w", err)
	}
	if kind != protocol.KindPong {
		return 0, fmt.Errorf("latency: expected PONG, got %s", kind)
	}

	return time.Since(sent), nil
}

func averageDiscardingMax(samples []time.Duration) time.Duration {
	maxIdx := 0
	for i, s := range samples {
		if s > samples[maxIdx] {
			maxIdx = i
		}
	}

	var total time.Duration
	count := 0
	for i, s := range samples {
		if i == maxIdx {
			continue
		}
		total += s
		count++
	}
	if count == 0 {
		return samples[0]
	}
	return total / time.Duration(count)
}

func (p *Prober) updateRTT(sample time.Duration) {
	current := p.rttNanos.Load()
	if current == 0 {
		p.rttNanos.Store(int64(sample))
		return
	}
	blended := ewmaAlpha*float64(sample) + (1-ewmaAlpha)*float64(current)
	p.rttNanos.Store(int64(math.Round(blended)))
}

// RespondPong answers a received PING frame with a PONG carrying the
// same payload back, so the prober on the other end can compute elapsed
// time against its own clock.
func RespondPong(conn *streamio.Conn, pingPayload []byte) error {
	if err := conn.WriteControlFrame(protocol.KindPong, pingPayload); err != nil {
		return fmt.Errorf("latency: responding pong: %w", err)
	}
	return nil
}
