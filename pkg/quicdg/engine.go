// SPDX-FileCopyrightText: 2022 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package quicdg

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/datagram"
)

// quicConnection is the part of quic.Connection used by the Engine.
type quicConnection interface {
	SendDatagram(payload []byte) error
	ReceiveDatagram(ctx context.Context) ([]byte, error)
	ConnectionState() quic.ConnectionState
	Context() context.Context
	CloseWithError(code quic.ApplicationErrorCode, msg string) error
	RemoteAddr() net.Addr
}

// earlyConnection is implemented by connections which might still be in their handshake, e.g., quic.EarlyConnection.
type earlyConnection interface {
	HandshakeComplete() <-chan struct{}
}

// Engine is the datagram.Transport for a single QUIC connection.
type Engine struct {
	conn quicConnection
}

// NewEngine creates an Engine for a QUIC connection. The connection must have negotiated the datagram extension for
// sending to succeed.
func NewEngine(conn quicConnection) *Engine {
	return &Engine{conn: conn}
}

func (engine *Engine) String() string {
	return fmt.Sprintf("QUICDatagramEngine{Peer: %v}", engine.conn.RemoteAddr())
}

func (engine *Engine) handshakeComplete() bool {
	early, ok := engine.conn.(earlyConnection)
	if !ok {
		return true
	}

	select {
	case <-early.HandshakeComplete():
		return true
	default:
		return false
	}
}

// DatagramSend passes the buffers as one datagram to quic-go, which copies the data before returning.
func (engine *Engine) DatagramSend(buffers []datagram.Buffer, flags datagram.SendFlags) datagram.Status {
	if flags&datagram.SendFlagAllow0Rtt == 0 && !engine.handshakeComplete() {
		return datagram.StatusInvalidState
	}

	if !engine.conn.ConnectionState().SupportsDatagrams {
		return datagram.StatusNotSupported
	}

	if log.IsLevelEnabled(log.TraceLevel) && flags&(datagram.SendFlagDgramPriority|datagram.SendFlagCancelOnBlocked) != 0 {
		log.WithFields(log.Fields{
			"engine": engine,
			"flags":  fmt.Sprintf("0x%02x", uint32(flags)),
		}).Trace("Ignoring datagram scheduling hints")
	}

	var payload []byte
	if len(buffers) == 1 {
		payload = buffers[0].Data
	} else {
		for _, buffer := range buffers {
			payload = append(payload, buffer.Data...)
		}
	}

	return engine.statusFromError(engine.conn.SendDatagram(payload))
}

// statusFromError translates errors of quic-go's SendDatagram.
func (engine *Engine) statusFromError(err error) datagram.Status {
	if err == nil {
		return datagram.StatusSuccess
	}

	var tooLargeErr *quic.DatagramTooLargeError
	var appErr *quic.ApplicationError
	var idleErr *quic.IdleTimeoutError

	switch {
	case errors.As(err, &tooLargeErr):
		return datagram.StatusTooLarge

	case errors.As(err, &appErr):
		return datagram.StatusAborted

	case errors.As(err, &idleErr):
		return datagram.StatusConnectionIdle

	case engine.conn.Context().Err() != nil:
		return datagram.StatusAborted

	default:
		log.WithFields(log.Fields{
			"engine": engine,
			"error":  err,
		}).Debug("Unexpected error while sending datagram")
		return datagram.StatusInternalError
	}
}

// Run the dispatch loop, passing each received datagram to callback. Datagrams are handled one after another.
//
// Run returns nil after ctx was canceled or the connection was closed regularly. Otherwise, the error of quic-go is
// returned.
func (engine *Engine) Run(ctx context.Context, callback datagram.ReceiveCallback) error {
	for {
		data, err := engine.conn.ReceiveDatagram(ctx)
		if err != nil {
			return engine.dispatchError(ctx, err)
		}

		if status := callback(data); !status.Succeeded() {
			log.WithFields(log.Fields{
				"engine": engine,
				"status": status,
			}).Warn("Receive callback reported a failure")
		}
	}
}

func (engine *Engine) dispatchError(ctx context.Context, err error) error {
	var appErr *quic.ApplicationError
	var idleErr *quic.IdleTimeoutError

	switch {
	case ctx.Err() != nil:
		log.WithField("engine", engine).Debug("Dispatch loop was canceled")
		return nil

	case errors.As(err, &appErr):
		log.WithFields(log.Fields{
			"engine":     engine,
			"remote":     appErr.Remote,
			"error code": appErr.ErrorCode,
			"error msg":  appErr.ErrorMessage,
		}).Debug("Connection to peer closed")
		return nil

	case errors.As(err, &idleErr):
		log.WithField("engine", engine).Debug("Peer timed out")
		return nil

	default:
		log.WithFields(log.Fields{
			"engine": engine,
			"error":  err,
		}).Error("Unexpected error while waiting for datagram")
		return err
	}
}
