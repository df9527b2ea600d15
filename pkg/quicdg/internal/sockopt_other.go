// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux

package internal

import "syscall"

// ListenControl keeps the system's default socket buffers.
func ListenControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
