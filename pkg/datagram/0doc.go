// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package datagram implements the unreliable datagram extension of a QUIC connection.
//
// A Conn consists of two independent halves. The Receiver is invoked by the transport's dispatch goroutine for every
// inbound datagram. It copies the transport's transient buffer once and fans the resulting Payload out to all current
// Subscriptions. The Sender is invoked by the application. It wraps a borrowed byte range into a single Buffer
// descriptor, translates the SendOptions into the transport's native SendFlags and issues exactly one DatagramSend.
//
// Datagrams are unreliable by definition. Nothing in this package retries, reorders, queues or fragments them.
// A rejected send is reported as a *TransportError carrying the transport's Status; a dropped datagram is simply
// never observed.
//
// Both halves only share the Transport, which is injected on construction. Any implementation, e.g., the quic-go based
// Engine from the quicdg package or a fake inside a test, can be used.
package datagram
