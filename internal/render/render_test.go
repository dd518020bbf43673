// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package render

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestSimple_RateLimitsNonTerminalUpdates(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSimple(&buf)
	sink.interval = 50 * time.Millisecond

	handle := sink.Register("t1", "file.bin", 100)
	handle.Update(10, 100)
	handle.Update(20, 100) // should be suppressed, too soon

	out := buf.String()
	if strings.Count(out, "10 B/100 B") != 1 {
		t.Fatalf("expected first update to print once, got: %q", out)
	}
	if strings.Contains(out, "20 B/100 B") {
		t.Fatalf("expected second update within the interval to be suppressed, got: %q", out)
	}
}

func TestSimple_TerminalAlwaysPrints(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSimple(&buf)

	handle := sink.Register("t1", "file.bin", 100)
	handle.Finish(false, "disk full")

	if !strings.Contains(buf.String(), "disk full") {
		t.Fatalf("expected the failure message to appear, got: %q", buf.String())
	}
}

func TestMulti_ReapRemovesRow(t *testing.T) {
	var buf bytes.Buffer
	sink := NewMulti(&buf)

	h := sink.Register("t1", "file.bin", 100)
	h.Update(50, 100)
	sink.Reap("t1")

	buf.Reset()
	sink.redraw()
	if strings.Contains(buf.String(), "t1") {
		t.Fatalf("expected row removed after Reap, got: %q", buf.String())
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		500:             "500 B",
		2048:            "2.0 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
