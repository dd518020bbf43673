// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package render provides the terminal rendering sinks driven by
// progress.AggregatingObserver. Nothing in this package understands
// events or task bookkeeping — it only draws whatever it is told to.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Handle is a render-side reference to one in-progress task, returned
// by Sink.Register and updated for the task's lifetime.
type Handle interface {
	Update(completed, total int64)
	Finish(success bool, message string)
}

// Sink is the single rendering destination an AggregatingObserver
// drives. Exactly one Sink is owned by an observer for its lifetime.
type Sink interface {
	Register(taskID, description string, total int64) Handle
}

// Simple prints one line per event to w, rate-limited to one line per
// task per refresh interval except terminal events which always print.
// This is the fallback used when no rich rendering sink is configured.
type Simple struct {
	w        io.Writer
	interval time.Duration

	mu       sync.Mutex
	lastLine map[string]time.Time
}

// NewSimple returns a Simple sink writing to w. A nil w defaults to
// os.Stderr, matching the teacher's ProgressReporter.
func NewSimple(w io.Writer) *Simple {
	if w == nil {
		w = os.Stderr
	}
	return &Simple{w: w, interval: 200 * time.Millisecond, lastLine: make(map[string]time.Time)}
}

func (s *Simple) Register(taskID, description string, total int64) Handle {
	fmt.Fprintf(s.w, "[%s] %s (%s)\n", taskID, description, formatBytes(total))
	return &simpleHandle{sink: s, taskID: taskID, description: description, total: total}
}

type simpleHandle struct {
	sink        *Simple
	taskID      string
	description string
	total       int64
}

func (h *simpleHandle) Update(completed, total int64) {
	if !h.sink.allow(h.taskID) {
		return
	}
	pct := percentOf(completed, total)
	fmt.Fprintf(h.sink.w, "[%s] %s %s/%s (%.0f%%)\n",
		h.taskID, h.description, formatBytes(completed), formatBytes(total), pct)
}

func (h *simpleHandle) Finish(success bool, message string) {
	if success {
		fmt.Fprintf(h.sink.w, "[%s] %s done\n", h.taskID, h.description)
		return
	}
	fmt.Fprintf(h.sink.w, "[%s] %s failed: %s\n", h.taskID, h.description, message)
}

func (s *Simple) allow(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if last, ok := s.lastLine[taskID]; ok && now.Sub(last) < s.interval {
		return false
	}
	s.lastLine[taskID] = now
	return true
}

// Multi renders every attached task as its own line in a block that is
// printed again in full on every change (no cursor movement) — a
// multi-task variant of the teacher's single-bar ProgressReporter.render.
type Multi struct {
	w io.Writer

	mu    sync.Mutex
	order []string
	rows  map[string]*multiRow
}

type multiRow struct {
	description string
	completed   int64
	total       int64
	done        bool
	success     bool
	message     string
	start       time.Time
}

// NewMulti returns a Multi sink writing to w (os.Stderr if nil).
func NewMulti(w io.Writer) *Multi {
	if w == nil {
		w = os.Stderr
	}
	return &Multi{w: w, rows: make(map[string]*multiRow)}
}

func (m *Multi) Register(taskID, description string, total int64) Handle {
	m.mu.Lock()
	m.order = append(m.order, taskID)
	m.rows[taskID] = &multiRow{description: description, total: total, start: time.Now()}
	m.mu.Unlock()
	m.redraw()
	return &multiHandle{sink: m, taskID: taskID}
}

type multiHandle struct {
	sink   *Multi
	taskID string
}

func (h *multiHandle) Update(completed, total int64) {
	h.sink.mu.Lock()
	if row, ok := h.sink.rows[h.taskID]; ok {
		row.completed = completed
		row.total = total
	}
	h.sink.mu.Unlock()
	h.sink.redraw()
}

func (h *multiHandle) Finish(success bool, message string) {
	h.sink.mu.Lock()
	if row, ok := h.sink.rows[h.taskID]; ok {
		row.done = true
		row.success = success
		row.message = message
	}
	h.sink.mu.Unlock()
	h.sink.redraw()
}

// Reap drops the row for taskID, finished or not. The Sink interface
// has no Reap, so AggregatingObserver.Reap does not call it.
func (m *Multi) Reap(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, taskID)
	for i, id := range m.order {
		if id == taskID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Multi) redraw() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	for _, id := range m.order {
		row := m.rows[id]
		if row == nil {
			continue
		}
		pct := percentOf(row.completed, row.total)
		status := fmt.Sprintf("%s/%s (%.0f%%)", formatBytes(row.completed), formatBytes(row.total), pct)
		if row.done {
			if row.success {
				status = "done"
			} else {
				status = "failed: " + row.message
			}
		}
		fmt.Fprintf(&b, "[%s] %-24s %s  elapsed %s\n", id, row.description, status, formatDuration(time.Since(row.start)))
	}
	fmt.Fprint(m.w, b.String())
}

func percentOf(completed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(completed) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

func formatBytes(b int64) string {
	switch {
	case b >= 1024*1024*1024:
		return fmt.Sprintf("%.1f GB", float64(b)/(1024*1024*1024))
	case b >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(b)/(1024*1024))
	case b >= 1024:
		return fmt.Sprintf("%.1f KB", float64(b)/1024)
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
