// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

//go:build !linux

package latency

import (
	"errors"
	"net"
	"time"
)

// ErrKernelRTTUnsupported is returned on platforms without a TCP_INFO
// equivalent wired up.
var ErrKernelRTTUnsupported = errors.New("latency: kernel RTT not supported on this platform")

// KernelRTT is unavailable outside Linux; callers should treat its
// error as a signal to rely on the PING/PONG measurement alone.
func KernelRTT(nc net.Conn) (time.Duration, error) {
	return 0, ErrKernelRTTUnsupported
}
