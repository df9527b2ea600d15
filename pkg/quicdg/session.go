// SPDX-FileCopyrightText: 2022 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package quicdg

import (
	"context"
	"fmt"
	"net"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/datagram"
	"github.com/dtn7/quicdgram/pkg/quicdg/internal"
)

// Session is the datagram.Conn of a QUIC connection together with its running dispatch loop.
type Session struct {
	*datagram.Conn

	engine *Engine
	dialer bool

	cancel  context.CancelFunc
	done    chan struct{}
	loopErr error
}

// NewSession creates a Session for an established QUIC connection and starts its dispatch loop.
func NewSession(conn quicConnection, dialer bool) *Session {
	engine := NewEngine(conn)
	ctx, cancel := context.WithCancel(conn.Context())

	session := &Session{
		Conn:   datagram.NewConn(engine),
		engine: engine,
		dialer: dialer,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go session.dispatch(ctx)

	return session
}

func (session *Session) String() string {
	return fmt.Sprintf("QUICDatagramSession{Peer: %v, Dialer: %v}", session.engine.conn.RemoteAddr(), session.dialer)
}

// RemoteAddr of the peer.
func (session *Session) RemoteAddr() net.Addr {
	return session.engine.conn.RemoteAddr()
}

func (session *Session) dispatch(ctx context.Context) {
	defer close(session.done)

	log.WithField("session", session).Debug("Starting datagram dispatch loop")

	session.loopErr = session.engine.Run(ctx, session.Conn.HandleReceived)
	if session.loopErr != nil {
		_ = session.engine.conn.CloseWithError(internal.LocalError, "Datagram dispatch failed")
	}

	// Subscriptions become inert as soon as the connection is gone.
	session.Conn.Close()

	log.WithField("session", session).Debug("Datagram dispatch loop terminated")
}

// Done is closed after the dispatch loop has terminated, e.g., because the peer disappeared.
func (session *Session) Done() <-chan struct{} {
	return session.done
}

// Close stops the dispatch loop and closes the QUIC connection.
func (session *Session) Close() error {
	log.WithField("session", session).Debug("Closing session")

	session.cancel()
	<-session.done

	var errs error
	if session.loopErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("dispatch loop: %w", session.loopErr))
	}
	if err := session.engine.conn.CloseWithError(internal.ApplicationShutdown, "Session closed"); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("closing connection: %w", err))
	}

	return errs
}
