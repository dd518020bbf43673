// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

//go:build linux

package latency

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// KernelRTT reads tcpi_rtt straight from the kernel's TCP_INFO socket
// option, corroborating the PING/PONG software measurement with the
// stack's own smoothed RTT estimate. It only works for *net.TCPConn;
// other net.Conn implementations return an error.
func KernelRTT(nc net.Conn) (time.Duration, error) {
	tcpConn, ok := nc.(*net.TCPConn)
	if !ok {
		return 0, fmt.Errorf("latency: kernel RTT requires a TCP connection, got %T", nc)
	}

	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("latency: obtaining raw conn: %w", err)
	}

	var info *unix.TCPInfo
	var sockErr error
	ctrlErr := rawConn.Control(func(fd uintptr) {
		info, sockErr = unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
	})
	if ctrlErr != nil {
		return 0, fmt.Errorf("latency: raw conn control: %w", ctrlErr)
	}
	if sockErr != nil {
		return 0, fmt.Errorf("latency: TCP_INFO getsockopt: %w", sockErr)
	}

	return time.Duration(info.Rtt) * time.Microsecond, nil
}
