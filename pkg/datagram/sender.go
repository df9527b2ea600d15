// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datagram

import (
	log "github.com/sirupsen/logrus"
)

// Sender is the send half of a Conn. It is stateless besides its Transport and can be used concurrently.
type Sender struct {
	transport Transport
}

// NewSender creates a Sender for the given Transport.
func NewSender(transport Transport) *Sender {
	return &Sender{transport: transport}
}

// Send p as a single datagram. The payload is only borrowed for this call and may be reused afterwards.
//
// A nil error means the transport accepted the datagram, not that it was delivered. If the transport rejects it, a
// *TransportError with the transport's Status is returned. Zero-length datagrams are permitted.
func (s *Sender) Send(p []byte, opts SendOptions) error {
	buffers, err := newBuffers(p)
	if err != nil {
		return err
	}

	flags := opts.Flags()
	if status := s.transport.DatagramSend(buffers, flags); !status.Succeeded() {
		log.WithFields(log.Fields{
			"length":  len(p),
			"options": opts,
			"status":  status,
		}).Debug("Transport rejected datagram")

		return newTransportError(status)
	}

	return nil
}

// SendRange sends buf[offset:offset+count] as a single datagram. An invalid range results in a *RangeError, which
// matches ErrMisuse, before the transport is involved.
func (s *Sender) SendRange(buf []byte, offset, count int, opts SendOptions) error {
	if err := checkRange(len(buf), offset, count); err != nil {
		return err
	}

	return s.Send(buf[offset:offset+count], opts)
}
