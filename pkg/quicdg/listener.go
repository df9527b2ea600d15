// SPDX-FileCopyrightText: 2022 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package quicdg

import (
	"context"
	"errors"
	"net"

	"github.com/hashicorp/go-multierror"
	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/quicdg/internal"
)

// Listener accepts QUIC connections and reports a new Session for each of them.
type Listener struct {
	listenAddress string
	onSession     func(*Session)
	packetConn    net.PacketConn
	listener      *quic.Listener
}

// NewListener creates a Listener for the given address. The onSession callback is called from the Listener's
// goroutine and should not block for long.
func NewListener(listenAddress string, onSession func(*Session)) *Listener {
	return &Listener{
		listenAddress: listenAddress,
		onSession:     onSession,
	}
}

// Start listening.
func (listener *Listener) Start() error {
	log.WithField("address", listener.listenAddress).Info("Starting QUIC datagram listener")

	tlsConf, err := internal.GenerateSimpleListenerTLSConfig()
	if err != nil {
		return err
	}

	lc := net.ListenConfig{Control: internal.ListenControl}
	pconn, err := lc.ListenPacket(context.Background(), "udp", listener.listenAddress)
	if err != nil {
		log.WithError(err).Error("Error creating UDP socket for QUIC datagram listener")
		return err
	}

	lst, err := quic.Listen(pconn, tlsConf, internal.GenerateQUICConfig())
	if err != nil {
		_ = pconn.Close()
		log.WithError(err).Error("Error creating QUIC datagram listener")
		return err
	}

	listener.packetConn = pconn
	listener.listener = lst
	go listener.handle()

	return nil
}

// Addr returns the bound address; only available after Start.
func (listener *Listener) Addr() net.Addr {
	return listener.listener.Addr()
}

// Close the Listener. Already established Sessions stay open.
func (listener *Listener) Close() error {
	log.WithField("address", listener.listenAddress).Info("Shutting QUIC datagram listener down")

	var errs error
	if err := listener.listener.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := listener.packetConn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = multierror.Append(errs, err)
	}
	return errs
}

func (listener *Listener) handle() {
	log.WithField("address", listener.listenAddress).Info("Listening for QUIC datagram connections")

	for {
		conn, err := listener.listener.Accept(context.Background())
		if err != nil {
			if errors.Is(err, quic.ErrServerClosed) {
				log.WithField("address", listener.listenAddress).Debug("QUIC datagram listener closed")
				return
			}

			log.WithFields(log.Fields{
				"address": listener.listenAddress,
				"error":   err,
			}).Error("Unknown error accepting QUIC connection")
			return
		}

		log.WithFields(log.Fields{
			"address":   listener.listenAddress,
			"peer":      conn.RemoteAddr(),
			"datagrams": conn.ConnectionState().SupportsDatagrams,
		}).Info("QUIC datagram listener accepted new connection")

		listener.onSession(NewSession(conn, false))
	}
}
