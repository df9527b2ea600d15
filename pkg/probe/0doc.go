// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package probe measures a datagram path with two simple agents.
//
// A Pinger sends Request Messages over a datagram.Conn and matches incoming Reply Messages by their sequence number.
// An Echo answers each Request with a Reply. Messages are serialized as a CBOR array of four fields: kind, sequence
// number, timestamp and padding. Since datagrams are unreliable, both agents drop rather than queue when overloaded.
package probe
