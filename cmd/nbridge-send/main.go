// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
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
	"github.com/nbridge/nbridge/internal/transfer"
)

func main() {
	configPath := flag.String("config", "/etc/nbridge/send.yaml", "path to client config file")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: nbridge-send -config <path> <file>")
		os.Exit(2)
	}
	filePath := flag.Arg(0)

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, cancelling transfer", "signal", sig)
		cancel()
	}()

	var sink render.Sink
	if cfg.Transfer.UseRichProgress {
		sink = render.NewMulti(os.Stderr)
	} else {
		sink = render.NewSimple(os.Stderr)
	}
	observer := progress.NewAggregatingObserver(sink)
	subject := progress.NewSubject()
	subject.Attach(observer)

	dialCfg := orchestrator.DialConfig{
		Retries: cfg.Retry.ConnectRetries,
		Backoff: time.Duration(cfg.Retry.BackoffSeconds) * time.Second,
	}
	nc, err := orchestrator.DialClient(ctx, cfg.Server.Address, dialCfg)
	if err != nil {
		logger.Error("dialing receiver", "error", err, "address", cfg.Server.Address)
		os.Exit(1)
	}

	conn := streamio.New(nc)
	if cfg.Transfer.ControlDeadlineSec > 0 {
		conn = conn.WithControlDeadline(time.Duration(cfg.Transfer.ControlDeadlineSec) * time.Second)
	}
	if cfg.Transfer.StallDeadlineSec > 0 {
		conn = conn.WithStallDeadline(time.Duration(cfg.Transfer.StallDeadlineSec) * time.Second)
	}

	sender := transfer.NewSender(conn, subject, transfer.Config{
		VerifyChecksum: cfg.Transfer.VerifyChecksum,
		BufferConfig:   cfg.Transfer.BufferConfig(),
		Strategy:       cfg.Transfer.Strategy(),
		RateLimitBytes: cfg.Transfer.RateLimitRaw,
	})

	logger.Info("sending file", "task_id", sender.TaskID(), "file", filePath, "address", cfg.Server.Address)

	if err := sender.Send(ctx, filePath); err != nil {
		logger.Error("transfer failed", "task_id", sender.TaskID(), "error", err)
		os.Exit(1)
	}

	logger.Info("transfer complete", "task_id", sender.TaskID(), "file", filePath)
}
