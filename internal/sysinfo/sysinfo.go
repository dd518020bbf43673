// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package sysinfo checks the receiver's destination filesystem for
// enough free space before a transfer is accepted.
package sysinfo

import (
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v3/disk"
)

// DiskStatus reports free space for a path.
type DiskStatus struct {
	Path      string
	FreeBytes uint64
	Percent   float64
}

// CheckFreeSpace returns the current disk usage for the filesystem
// backing path and an error if it could not be determined.
func CheckFreeSpace(path string) (DiskStatus, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return DiskStatus{}, fmt.Errorf("sysinfo: statting %s: %w", path, err)
	}
	return DiskStatus{
		Path:      path,
		FreeBytes: u.Free,
		Percent:   u.UsedPercent,
	}, nil
}

// EnsureMinFree checks that path has at least minFreeBytes available,
// logging the outcome through logger. It returns an error when the
// check itself fails (path unreadable) or when free space is below
// the threshold.
func EnsureMinFree(logger *slog.Logger, path string, minFreeBytes int64) error {
	status, err := CheckFreeSpace(path)
	if err != nil {
		logger.Warn("could not determine free disk space", "path", path, "error", err)
		return err
	}

	logger.Debug("disk usage checked", "path", path, "free_bytes", status.FreeBytes, "used_percent", status.Percent)

	if minFreeBytes > 0 && status.FreeBytes < uint64(minFreeBytes) {
		return fmt.Errorf("sysinfo: %s has %d bytes free, below the %d byte minimum", path, status.FreeBytes, minFreeBytes)
	}
	return nil
}
