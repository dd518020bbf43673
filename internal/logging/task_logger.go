// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// fanOutHandler is a slog.Handler that dispatches each record to two
// handlers. TaskLogger uses it to write simultaneously to the global
// handler and a transfer's dedicated log file.
type fanOutHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *fanOutHandler) Handle(ctx context.Context, r slog.Record) error {
	// Enabled() is checked per handler so DEBUG records aren't sent to
	// the primary handler when it only accepts INFO or above.
	if h.primary.Enabled(ctx, r.Level) {
		if err := h.primary.Handle(ctx, r); err != nil {
			return err
		}
	}
	// A write failure on the task file must not block the global log.
	if h.secondary.Enabled(ctx, r.Level) {
		_ = h.secondary.Handle(ctx, r)
	}
	return nil
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithAttrs(attrs),
		secondary: h.secondary.WithAttrs(attrs),
	}
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithGroup(name),
		secondary: h.secondary.WithGroup(name),
	}
}

// NewTaskLogger builds a logger that writes to both the base (global)
// logger and a file dedicated to a single transfer task, created at:
//
//	{taskLogDir}/{taskID}.log
//
// It returns the enriched logger, an io.Closer that must be closed
// (defer) when the transfer ends, and the path of the created file
// (relative if taskLogDir is relative).
//
// If taskLogDir is empty, it returns the base logger unmodified
// (no-op).
func NewTaskLogger(baseLogger *slog.Logger, taskLogDir, taskID string) (*slog.Logger, io.Closer, string, error) {
	if taskLogDir == "" {
		return baseLogger, io.NopCloser(nil), "", nil
	}

	if err := os.MkdirAll(taskLogDir, 0755); err != nil {
		return nil, nil, "", fmt.Errorf("creating task log directory %s: %w", taskLogDir, err)
	}

	logPath := filepath.Join(taskLogDir, taskID+".log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, "", fmt.Errorf("opening task log file %s: %w", logPath, err)
	}

	// The task file always uses JSON at DEBUG level for maximum capture.
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	combined := &fanOutHandler{
		primary:   baseLogger.Handler(),
		secondary: fileHandler,
	}

	return slog.New(combined), f, logPath, nil
}

// RemoveTaskLog removes the log file of a transfer that finished
// successfully. No-op if taskLogDir is empty or the file is missing.
func RemoveTaskLog(taskLogDir, taskID string) {
	if taskLogDir == "" {
		return
	}
	logPath := filepath.Join(taskLogDir, taskID+".log")
	os.Remove(logPath)
}
