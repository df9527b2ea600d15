// SPDX-FileCopyrightText: 2022 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package quicdg

import (
	"context"

	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/quicdg/internal"
)

// Dial a QUIC connection to address and create its Session.
func Dial(ctx context.Context, address string) (*Session, error) {
	conn, err := quic.DialAddr(ctx, address, internal.GenerateSimpleDialerTLSConfig(), internal.GenerateQUICConfig())
	if err != nil {
		log.WithFields(log.Fields{
			"peer":  address,
			"error": err,
		}).Debug("Dialing QUIC connection failed")
		return nil, err
	}

	log.WithFields(log.Fields{
		"peer":      address,
		"datagrams": conn.ConnectionState().SupportsDatagrams,
	}).Info("Established QUIC datagram connection")

	return NewSession(conn, true), nil
}
