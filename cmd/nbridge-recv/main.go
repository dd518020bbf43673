// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nbridge/nbridge/internal/config"
	"github.com/nbridge/nbridge/internal/logging"
	"github.com/nbridge/nbridge/internal/orchestrator"
	"github.com/nbridge/nbridge/internal/progress"
	"github.com/nbridge/nbridge/internal/render"
	"github.com/nbridge/nbridge/internal/streamio"
	"github.com/nbridge/nbridge/internal/sysinfo"
	"github.com/nbridge/nbridge/internal/transfer"
)

func main() {
	configPath := flag.String("config", "/etc/nbridge/recv.yaml", "path to server config file")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	if err := os.MkdirAll(cfg.DestDir, 0755); err != nil {
		logger.Error("creating destination directory", "error", err, "dest_dir", cfg.DestDir)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	var sink render.Sink
	if cfg.Transfer.UseRichProgress {
		sink = render.NewMulti(os.Stderr)
	} else {
		sink = render.NewSimple(os.Stderr)
	}
	observer := progress.NewAggregatingObserver(sink)

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		logger.Error("listening", "error", err, "address", cfg.Server.Listen)
		os.Exit(1)
	}

	handler := newHandler(cfg, logger, observer)
	logger.Info("receiver listening", "address", cfg.Server.Listen, "dest_dir", cfg.DestDir)
	if err := orchestrator.RunServer(ctx, ln, logger, handler); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newHandler(cfg *config.ServerConfig, logger *slog.Logger, observer *progress.AggregatingObserver) orchestrator.Handler {
	return func(ctx context.Context, nc net.Conn) {
		defer nc.Close()

		remote := nc.RemoteAddr().String()
		connLogger := logger.With("remote", remote)

		if err := sysinfo.EnsureMinFree(connLogger, cfg.DestDir, cfg.SysInfo.MinFreeBytesRaw); err != nil {
			connLogger.Error("rejecting transfer: insufficient disk space", "error", err)
			return
		}

		conn := streamio.New(nc)
		if cfg.Transfer.ControlDeadlineSec > 0 {
			conn = conn.WithControlDeadline(time.Duration(cfg.Transfer.ControlDeadlineSec) * time.Second)
		}
		if cfg.Transfer.StallDeadlineSec > 0 {
			conn = conn.WithStallDeadline(time.Duration(cfg.Transfer.StallDeadlineSec) * time.Second)
		}

		subject := progress.NewSubject()
		subject.Attach(observer)

		receiver := transfer.NewReceiver(conn, subject, transfer.Config{
			VerifyChecksum: cfg.Transfer.VerifyChecksum,
			BufferConfig:   cfg.Transfer.BufferConfig(),
			Strategy:       cfg.Transfer.Strategy(),
			RateLimitBytes: cfg.Transfer.RateLimitRaw,
		}, cfg.DestDir)

		connLogger.Info("accepted transfer", "task_id", receiver.TaskID())

		path, err := receiver.Receive(ctx)
		if err != nil {
			connLogger.Error("transfer failed", "task_id", receiver.TaskID(), "error", err)
			return
		}

		connLogger.Info("transfer complete", "task_id", receiver.TaskID(), "path", path)
	}
}
