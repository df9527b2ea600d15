// SPDX-FileCopyrightText: 2022 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package quicdg binds the datagram package to a QUIC connection of the quic-go library.

The Engine is the transport for a datagram.Conn. Its send path maps the datagram.SendFlags and the errors of
quic-go's SendDatagram onto a datagram.Status. Its dispatch loop is the only goroutine receiving datagrams from the
connection; each one is handed to the receive callback before the next one is fetched.

Roles

When it comes to the establishment of a connection, there are two distinct roles.
The Listener waits for incoming connections and creates a new Session each time a dialer connects.
The dialer creates its Session by calling Dial.
Both sides use a self-signed certificate resp. skip its verification; the datagram extension is always enabled.

Flags

quic-go has neither per-datagram priorities nor a drop-if-blocked policy. Priority and CancelOnBlocked are thus only
logged as hints. Allow0Rtt is enforced: without it, sending on a connection whose handshake has not completed yet is
rejected with StatusInvalidState.
*/
package quicdg
