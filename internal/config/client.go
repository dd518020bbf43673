// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config loads and validates the YAML configuration for the
// nbridge-send and nbridge-recv binaries, following the same
// load-then-validate-with-defaults pattern throughout.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nbridge/nbridge/internal/buffer"
)

// ClientConfig is the full configuration for nbridge-send.
type ClientConfig struct {
	Server   ServerAddr     `yaml:"server"`
	Transfer TransferConfig `yaml:"transfer"`
	Logging  LoggingInfo    `yaml:"logging"`
	Retry    RetryInfo      `yaml:"retry"`
}

// ServerAddr is the receiver's listen address to dial.
type ServerAddr struct {
	Address string `yaml:"address"`
}

// RetryInfo bounds the client's connect retry loop.
type RetryInfo struct {
	ConnectRetries int `yaml:"connect_retries"` // default: 3
	BackoffSeconds int `yaml:"backoff_seconds"` // default: 1
}

// TransferConfig mirrors transfer.Config plus the buffer manager bounds,
// all expressed as YAML-friendly strings/primitives and converted to
// their typed equivalents by validate().
type TransferConfig struct {
	VerifyChecksum       bool   `yaml:"verify_checksum"`
	RateLimit            string `yaml:"rate_limit"`             // e.g. "10mb", empty = unlimited
	RateLimitRaw         int64  `yaml:"-"`
	InitialBufferSize    string `yaml:"initial_buffer_size"`    // empty = derive from RTT
	InitialBufferSizeRaw int64  `yaml:"-"`
	MinBufferSize        string `yaml:"min_buffer_size"`        // default: 4kb
	MinBufferSizeRaw     int64  `yaml:"-"`
	MaxBufferSize        string `yaml:"max_buffer_size"`        // default: 16mb
	MaxBufferSizeRaw     int64  `yaml:"-"`
	HistorySize          int    `yaml:"history_size"`           // default: 32
	AdjustCooldownSec    float64 `yaml:"adjust_cooldown_sec"`   // default: 1.0
	AdaptationStrategy   string `yaml:"adaptation_strategy"`    // conservative|balanced|aggressive
	ControlDeadlineSec   int    `yaml:"control_frame_deadline_sec"` // default: 30
	StallDeadlineSec     int    `yaml:"stall_deadline_sec"`         // default: 60
	UseRichProgress      bool   `yaml:"use_rich_progress"`
}

// LoggingInfo configures the slog handler shared by both binaries.
type LoggingInfo struct {
	Level  string `yaml:"level"`  // debug|info|warn|error, default: info
	Format string `yaml:"format"` // json|text, default: json
	File   string `yaml:"file"`   // empty = stdout only
}

// LoadClientConfig reads and validates path as a ClientConfig.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading client config: %w", err)
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating client config: %w", err)
	}
	return &cfg, nil
}

func (c *ClientConfig) validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}

	if c.Retry.ConnectRetries <= 0 {
		c.Retry.ConnectRetries = 3
	}
	if c.Retry.BackoffSeconds <= 0 {
		c.Retry.BackoffSeconds = 1
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return c.Transfer.validate()
}

func (t *TransferConfig) validate() error {
	if t.RateLimit != "" {
		parsed, err := ParseByteSize(t.RateLimit)
		if err != nil {
			return fmt.Errorf("transfer.rate_limit: %w", err)
		}
		t.RateLimitRaw = parsed
	}

	if t.MinBufferSize == "" {
		t.MinBufferSize = "4kb"
	}
	minRaw, err := ParseByteSize(t.MinBufferSize)
	if err != nil {
		return fmt.Errorf("transfer.min_buffer_size: %w", err)
	}
	t.MinBufferSizeRaw = minRaw

	if t.MaxBufferSize == "" {
		t.MaxBufferSize = "16mb"
	}
	maxRaw, err := ParseByteSize(t.MaxBufferSize)
	if err != nil {
		return fmt.Errorf("transfer.max_buffer_size: %w", err)
	}
	t.MaxBufferSizeRaw = maxRaw

	if t.InitialBufferSize != "" {
		initRaw, err := ParseByteSize(t.InitialBufferSize)
		if err != nil {
			return fmt.Errorf("transfer.initial_buffer_size: %w", err)
		}
		t.InitialBufferSizeRaw = initRaw
	}

	if t.HistorySize <= 0 {
		t.HistorySize = buffer.DefaultHistory
	}
	if t.AdjustCooldownSec <= 0 {
		t.AdjustCooldownSec = buffer.DefaultCooldown.Seconds()
	}

	if t.AdaptationStrategy == "" {
		t.AdaptationStrategy = "balanced"
	}
	if _, err := buffer.ParseStrategy(t.AdaptationStrategy); err != nil {
		return fmt.Errorf("transfer.adaptation_strategy: %w", err)
	}

	if t.ControlDeadlineSec <= 0 {
		t.ControlDeadlineSec = 30
	}
	if t.StallDeadlineSec <= 0 {
		t.StallDeadlineSec = 60
	}

	return nil
}

// BufferConfig builds a buffer.Config from the validated transfer
// settings.
func (t TransferConfig) BufferConfig() buffer.Config {
	return buffer.Config{
		Min:      t.MinBufferSizeRaw,
		Max:      t.MaxBufferSizeRaw,
		Initial:  t.InitialBufferSizeRaw,
		History:  t.HistorySize,
		Cooldown: secondsToDuration(t.AdjustCooldownSec),
	}
}

// Strategy parses the adaptation strategy string; validate() has
// already confirmed it parses cleanly.
func (t TransferConfig) Strategy() buffer.Strategy {
	s, _ := buffer.ParseStrategy(t.AdaptationStrategy)
	return s
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
