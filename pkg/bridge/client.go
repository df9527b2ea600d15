// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/datagram"
)

const (
	writeTimeout = time.Second

	// errorPrefix starts each text message reporting a failure back to a client.
	errorPrefix = "error: "
)

// wsMessage is an outgoing WebSocket message.
type wsMessage struct {
	messageType int
	data        []byte
}

// client is a single WebSocket connection of a Bridge.
type client struct {
	bridge *Bridge
	ws     *websocket.Conn
	opts   datagram.SendOptions
	sub    *datagram.Subscription

	outbox  chan wsMessage
	dropped atomic.Uint64

	closeSyn  chan struct{}
	closeOnce sync.Once
}

// newClient creates and subscribes a client.
func newClient(bridge *Bridge, ws *websocket.Conn, opts datagram.SendOptions) *client {
	c := &client{
		bridge:   bridge,
		ws:       ws,
		opts:     opts,
		outbox:   make(chan wsMessage, bridge.queueLen),
		closeSyn: make(chan struct{}),
	}
	c.sub = bridge.conn.Subscribe(c.handle)

	return c
}

func (c *client) log() *log.Entry {
	return log.WithField("client", c.ws.RemoteAddr())
}

// start the client's goroutines; blocks until the WebSocket is closed.
func (c *client) start() {
	go c.writer()
	c.reader()
}

// handle is the datagram.Handler, called on the dispatch goroutine.
func (c *client) handle(p datagram.Payload) error {
	c.enqueue(wsMessage{messageType: websocket.BinaryMessage, data: p.Bytes()})
	return nil
}

func (c *client) enqueue(msg wsMessage) {
	select {
	case c.outbox <- msg:
	default:
		if n := c.dropped.Add(1); n%100 == 1 {
			c.log().WithField("dropped", n).Info("WebSocket client is too slow, dropping messages")
		}
	}
}

func (c *client) writer() {
	defer c.close()

	for {
		select {
		case <-c.closeSyn:
			return

		case msg := <-c.outbox:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(msg.messageType, msg.data); err != nil {
				c.log().WithError(err).Debug("Writing to WebSocket client errored")
				return
			}
		}
	}
}

func (c *client) reader() {
	defer c.close()

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.log().WithError(err).Debug("Reading from WebSocket client errored")
			return
		}

		if messageType != websocket.BinaryMessage {
			c.enqueue(wsMessage{messageType: websocket.TextMessage, data: []byte(errorPrefix + "only binary messages are sent as datagrams")})
			continue
		}

		if err := c.bridge.conn.SendDatagram(data, c.opts); err != nil {
			c.log().WithError(err).Debug("Forwarding datagram from WebSocket client failed")
			c.enqueue(wsMessage{messageType: websocket.TextMessage, data: []byte(errorPrefix + err.Error())})
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.sub.Unsubscribe()
		close(c.closeSyn)
		_ = c.ws.Close()
		c.bridge.unregister(c)

		c.log().Info("WebSocket client disconnected")
	})
}
