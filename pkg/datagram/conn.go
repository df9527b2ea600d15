// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datagram

// Conn is the datagram extension of one connection, owning exactly one Receiver and one Sender for its lifetime.
type Conn struct {
	receiver *Receiver
	sender   *Sender
}

// NewConn creates a Conn for the given Transport. The transport must pass its inbound datagrams to HandleReceived.
func NewConn(transport Transport) *Conn {
	return &Conn{
		receiver: NewReceiver(),
		sender:   NewSender(transport),
	}
}

// Receiver returns the receive half.
func (c *Conn) Receiver() *Receiver {
	return c.receiver
}

// Sender returns the send half.
func (c *Conn) Sender() *Sender {
	return c.sender
}

// HandleReceived is the transport's inbound callback, see Receiver.HandleReceived.
func (c *Conn) HandleReceived(view []byte) Status {
	return c.receiver.HandleReceived(view)
}

// Subscribe a Handler for received datagrams, see Receiver.Subscribe.
func (c *Conn) Subscribe(handler Handler) *Subscription {
	return c.receiver.Subscribe(handler)
}

// SendDatagram sends p as a single datagram, see Sender.Send.
func (c *Conn) SendDatagram(p []byte, opts SendOptions) error {
	return c.sender.Send(p, opts)
}

// SendDatagramRange sends buf[offset:offset+count] as a single datagram, see Sender.SendRange.
func (c *Conn) SendDatagramRange(buf []byte, offset, count int, opts SendOptions) error {
	return c.sender.SendRange(buf, offset, count, opts)
}

// Close tears down the receive half. Sending is still possible until the transport itself is closed.
func (c *Conn) Close() {
	c.receiver.Close()
}
