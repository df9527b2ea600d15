// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/datagram"
)

// ErrConnectorClosed is returned for operations on a closed Connector.
var ErrConnectorClosed = errors.New("connector is closed")

// RemoteError is a failure reported by the Bridge, e.g., a rejected datagram.
type RemoteError struct {
	Msg string
}

func (re *RemoteError) Error() string {
	return "bridge: " + re.Msg
}

// Connector is the client side of a Bridge's WebSocket endpoint.
type Connector struct {
	conn *websocket.Conn

	msgOutChan chan []byte
	msgOutErr  chan error

	msgInChan     chan []byte
	remoteErrChan chan error

	closeSyn  chan struct{}
	closeAck  chan struct{}
	closeOnce sync.Once
}

// NewConnector connects to a Bridge's WebSocket endpoint, e.g., ws://localhost:8080/sessions/1/ws. The SendOptions
// are requested for all datagrams written through this Connector.
func NewConnector(apiUrl string, opts datagram.SendOptions) (con *Connector, err error) {
	u, err := url.Parse(apiUrl)
	if err != nil {
		return
	}
	if opts != datagram.None {
		query := u.Query()
		query.Set("options", opts.String())
		u.RawQuery = query.Encode()
	}

	var conn *websocket.Conn
	if conn, _, err = websocket.DefaultDialer.Dial(u.String(), nil); err != nil {
		return
	}

	con = &Connector{
		conn: conn,

		msgOutChan: make(chan []byte),
		msgOutErr:  make(chan error),

		msgInChan:     make(chan []byte),
		remoteErrChan: make(chan error, 16),

		closeSyn: make(chan struct{}),
		closeAck: make(chan struct{}),
	}

	go con.handler()
	go con.handleReader()

	return
}

func (con *Connector) handleReader() {
	defer close(con.msgInChan)

	for {
		mt, data, err := con.conn.ReadMessage()
		if err != nil {
			log.WithError(err).Debug("Connector's WebSocket reader errored")
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			select {
			case con.msgInChan <- data:
			case <-con.closeSyn:
				return
			}

		case websocket.TextMessage:
			msg := strings.TrimPrefix(string(data), errorPrefix)
			select {
			case con.remoteErrChan <- &RemoteError{Msg: msg}:
			default:
				log.WithField("error", msg).Warn("Connector dropped a remote error, nobody is listening")
			}
		}
	}
}

func (con *Connector) handler() {
	defer func() {
		_ = con.conn.Close()
		close(con.closeAck)
	}()

	for {
		select {
		case <-con.closeSyn:
			return

		case data := <-con.msgOutChan:
			con.msgOutErr <- con.conn.WriteMessage(websocket.BinaryMessage, data)
		}
	}
}

// WriteDatagram hands a datagram to the Bridge. A rejection by the transport is reported later via RemoteErrors.
func (con *Connector) WriteDatagram(data []byte) error {
	select {
	case con.msgOutChan <- data:
		return <-con.msgOutErr

	case <-con.closeSyn:
		return ErrConnectorClosed
	}
}

// ReadDatagram returns the next incoming datagram. This method blocks.
func (con *Connector) ReadDatagram() ([]byte, error) {
	if data, ok := <-con.msgInChan; ok {
		return data, nil
	}
	return nil, ErrConnectorClosed
}

// RemoteErrors reports failures from the Bridge, e.g., rejected datagrams.
func (con *Connector) RemoteErrors() <-chan error {
	return con.remoteErrChan
}

// Close this Connector.
func (con *Connector) Close() {
	con.closeOnce.Do(func() {
		close(con.closeSyn)
	})
	<-con.closeAck
}
