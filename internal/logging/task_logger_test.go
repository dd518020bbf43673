// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewTaskLogger_Disabled(t *testing.T) {
	base := slog.New(slog.NewTextHandler(os.Stderr, nil))

	logger, closer, path, err := NewTaskLogger(base, "", "task-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closer.Close()

	if logger != base {
		t.Error("expected base logger when taskLogDir is empty")
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestNewTaskLogger_CreatesFileAndLogs(t *testing.T) {
	dir := t.TempDir()
	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger, closer, logPath, err := NewTaskLogger(base, dir, "task-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Fatalf("task log dir not created: %s", dir)
	}

	expectedPath := filepath.Join(dir, "task-abc.log")
	if logPath != expectedPath {
		t.Errorf("expected path %q, got %q", expectedPath, logPath)
	}

	logger.Info("test message", "key", "value")

	closer.Close()

	if !strings.Contains(baseBuf.String(), "test message") {
		t.Errorf("log message not found in base handler output: %s", baseBuf.String())
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading task log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "test message") {
		t.Errorf("log message not found in task file: %s", content)
	}
	if !strings.Contains(content, `"key":"value"`) {
		t.Errorf("structured key not found in task file: %s", content)
	}
}

func TestNewTaskLogger_DebugInFileInfoInBase(t *testing.T) {
	dir := t.TempDir()

	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger, closer, logPath, err := NewTaskLogger(base, dir, "task-debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Debug("debug only message")
	logger.Info("info for both")

	closer.Close()

	if strings.Contains(baseBuf.String(), "debug only message") {
		t.Error("DEBUG message should not appear in base handler with INFO level")
	}
	if !strings.Contains(baseBuf.String(), "info for both") {
		t.Error("INFO message missing from base handler")
	}

	data, _ := os.ReadFile(logPath)
	content := string(data)
	if !strings.Contains(content, "debug only message") {
		t.Errorf("DEBUG message missing from task file: %s", content)
	}
	if !strings.Contains(content, "info for both") {
		t.Errorf("INFO message missing from task file: %s", content)
	}
}

func TestRemoveTaskLog(t *testing.T) {
	dir := t.TempDir()

	logPath := filepath.Join(dir, "task-to-remove.log")
	os.WriteFile(logPath, []byte("test"), 0644)

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Fatal("setup failed: log file not created")
	}

	RemoveTaskLog(dir, "task-to-remove")

	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("task log file should have been removed")
	}
}

func TestRemoveTaskLog_NoOpWhenEmpty(t *testing.T) {
	RemoveTaskLog("", "task")
}

func TestRemoveTaskLog_NoOpWhenFileMissing(t *testing.T) {
	RemoveTaskLog(t.TempDir(), "nonexistent-task")
}

func TestNewTaskLogger_WithAttrs(t *testing.T) {
	dir := t.TempDir()
	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger, closer, logPath, err := NewTaskLogger(base, dir, "task-attrs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	enriched := logger.With("task", "task-attrs", "direction", "send")
	enriched.Info("enriched message")

	closer.Close()

	if !strings.Contains(baseBuf.String(), "task-attrs") {
		t.Error("task attr missing from base handler")
	}

	data, _ := os.ReadFile(logPath)
	content := string(data)
	if !strings.Contains(content, "task-attrs") {
		t.Errorf("task attr missing from task file: %s", content)
	}
	if !strings.Contains(content, "send") {
		t.Errorf("direction attr missing from task file: %s", content)
	}
}
