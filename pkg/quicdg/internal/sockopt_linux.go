// SPDX-FileCopyrightText: 2021 Alvar Penning
// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux

package internal

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// udpBufferSize for SO_RCVBUF and SO_SNDBUF. Bursts of datagrams are dropped by the kernel for too small buffers.
// The kernel caps this value at net.core.rmem_max and net.core.wmem_max.
const udpBufferSize int = 7 << 20

// ListenControl enlarges the socket buffers of a QUIC listener's UDP socket; used as a net.ListenConfig's Control.
func ListenControl(_, _ string, rawConn syscall.RawConn) (err error) {
	opts := map[int]int{
		unix.SO_RCVBUF: udpBufferSize,
		unix.SO_SNDBUF: udpBufferSize,
	}

	ctrlErr := rawConn.Control(func(fd uintptr) {
		for opt, value := range opts {
			err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, value)
			if err != nil {
				return
			}
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}

	return
}
