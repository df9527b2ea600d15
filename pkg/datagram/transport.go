// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datagram

// Transport is the outbound half of the QUIC engine owning the connection.
//
// DatagramSend must neither retain buffers nor their Data after returning. It may block briefly on internal locks,
// but must not wait for network I/O.
type Transport interface {
	DatagramSend(buffers []Buffer, flags SendFlags) Status
}

// ReceiveCallback is the inbound callback invoked by the transport's dispatch goroutine. The view is only valid
// until the callback returns.
type ReceiveCallback func(view []byte) Status
