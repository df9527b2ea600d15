// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datagram

import "math"

// Buffer is a single scatter-gather segment handed to the transport's send path. Data is borrowed from the caller
// and is only valid for the duration of the DatagramSend call.
type Buffer struct {
	Length uint32
	Data   []byte
}

// newBuffers describes p as exactly one Buffer. Nothing is copied.
func newBuffers(p []byte) ([]Buffer, error) {
	if uint64(len(p)) > math.MaxUint32 {
		return nil, &RangeError{Offset: 0, Count: len(p), Len: len(p)}
	}

	return []Buffer{{Length: uint32(len(p)), Data: p}}, nil
}

// checkRange validates a (offset, count) window of a buffer with length n.
func checkRange(n, offset, count int) error {
	if offset < 0 || count < 0 || offset > n || count > n-offset {
		return &RangeError{Offset: offset, Count: count, Len: n}
	}
	return nil
}
