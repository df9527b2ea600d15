// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datagram

import "encoding/hex"

// Payload is the owned and immutable content of one received datagram. All Subscriptions of a single fan-out share
// the same Payload.
type Payload struct {
	data []byte
}

// newPayload copies the transport's transient view into an owned Payload.
func newPayload(view []byte) Payload {
	data := make([]byte, len(view))
	copy(data, view)
	return Payload{data: data}
}

// Bytes returns the shared content. The returned slice MUST NOT be modified; use Clone for a private copy.
func (p Payload) Bytes() []byte {
	return p.data
}

// Clone returns a private copy of the content.
func (p Payload) Clone() []byte {
	data := make([]byte, len(p.data))
	copy(data, p.data)
	return data
}

// Len of the datagram in bytes.
func (p Payload) Len() int {
	return len(p.data)
}

func (p Payload) String() string {
	return hex.EncodeToString(p.data)
}
