// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig is the full configuration for nbridge-recv.
type ServerConfig struct {
	Server   ServerListen   `yaml:"server"`
	DestDir  string         `yaml:"dest_dir"`
	Transfer TransferConfig `yaml:"transfer"`
	Logging  LoggingInfo    `yaml:"logging"`
	SysInfo  SysInfoConfig  `yaml:"sysinfo"`
}

// ServerListen is the receiver's bind address.
type ServerListen struct {
	Listen string `yaml:"listen"`
}

// SysInfoConfig controls the low-disk-space diagnostic check that runs
// before accepting each incoming file.
type SysInfoConfig struct {
	MinFreeBytes    string `yaml:"min_free_bytes"` // default: "512mb"
	MinFreeBytesRaw int64  `yaml:"-"`
}

// LoadServerConfig reads and validates path as a ServerConfig.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server config: %w", err)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating server config: %w", err)
	}
	return &cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.DestDir == "" {
		return fmt.Errorf("dest_dir is required")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.SysInfo.MinFreeBytes == "" {
		c.SysInfo.MinFreeBytes = "512mb"
	}
	minFree, err := ParseByteSize(c.SysInfo.MinFreeBytes)
	if err != nil {
		return fmt.Errorf("sysinfo.min_free_bytes: %w", err)
	}
	c.SysInfo.MinFreeBytesRaw = minFree

	return c.Transfer.validate()
}
