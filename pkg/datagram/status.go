// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datagram

import "fmt"

// Status is a transport status code. Only StatusSuccess indicates success.
type Status uint32

const (
	StatusSuccess Status = iota

	// StatusInvalidState indicates a connection not (yet) able to send, e.g., before a completed handshake.
	StatusInvalidState

	// StatusNotSupported indicates a disabled datagram extension, either locally or by the peer.
	StatusNotSupported

	// StatusTooLarge indicates a payload exceeding the negotiated maximum datagram size.
	StatusTooLarge

	// StatusAborted indicates a closed connection.
	StatusAborted

	// StatusConnectionIdle indicates a connection closed due to its idle timeout.
	StatusConnectionIdle

	// StatusInternalError is the catchall for everything else.
	StatusInternalError
)

// Succeeded checks if this Status indicates success.
func (s Status) Succeeded() bool {
	return s == StatusSuccess
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidState:
		return "invalid state"
	case StatusNotSupported:
		return "not supported"
	case StatusTooLarge:
		return "too large"
	case StatusAborted:
		return "aborted"
	case StatusConnectionIdle:
		return "connection idle"
	case StatusInternalError:
		return "internal error"
	default:
		return fmt.Sprintf("status 0x%x", uint32(s))
	}
}
