// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package bridge exposes the datagrams of a datagram.Conn to WebSocket clients.
//
// Each client receives every datagram as a binary message and can send datagrams by writing binary messages. The
// SendOptions for a client's datagrams are taken from the "options" query parameter, e.g., /ws?options=priority.
// A failed send is reported back as a text message starting with "error: ".
package bridge

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/datagram"
)

// Bridge is a http.Handler serving "/ws" for WebSocket clients and "/status" for a JSON status.
type Bridge struct {
	conn     *datagram.Conn
	queueLen int

	router   *mux.Router
	upgrader websocket.Upgrader

	clientsMutex sync.Mutex
	clients      map[*client]struct{}
}

// Status is the JSON response of "/status".
type Status struct {
	Clients     int    `json:"clients"`
	Subscribers int    `json:"subscribers"`
	Received    uint64 `json:"received"`
	Faults      uint64 `json:"faults"`
}

// NewBridge creates a Bridge for conn. Each client buffers up to queueLen outgoing WebSocket messages.
func NewBridge(conn *datagram.Conn, queueLen int) *Bridge {
	b := &Bridge{
		conn:     conn,
		queueLen: queueLen,
		router:   mux.NewRouter(),
		upgrader: websocket.Upgrader{},
		clients:  make(map[*client]struct{}),
	}

	b.router.HandleFunc("/ws", b.handleWebSocket).Methods(http.MethodGet)
	b.router.HandleFunc("/status", b.handleStatus).Methods(http.MethodGet)

	return b
}

func (b *Bridge) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(rw, r)
}

func (b *Bridge) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	opts, err := datagram.ParseSendOptions(r.URL.Query().Get("options"))
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := b.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.WithError(err).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}

	c := newClient(b, ws, opts)

	b.clientsMutex.Lock()
	b.clients[c] = struct{}{}
	b.clientsMutex.Unlock()

	log.WithFields(log.Fields{
		"client":  ws.RemoteAddr(),
		"options": opts,
	}).Info("WebSocket bridge accepted new client")

	c.start()
}

func (b *Bridge) unregister(c *client) {
	b.clientsMutex.Lock()
	defer b.clientsMutex.Unlock()

	delete(b.clients, c)
}

func (b *Bridge) handleStatus(rw http.ResponseWriter, _ *http.Request) {
	b.clientsMutex.Lock()
	clients := len(b.clients)
	b.clientsMutex.Unlock()

	status := Status{
		Clients:     clients,
		Subscribers: b.conn.Receiver().Subscribers(),
		Received:    b.conn.Receiver().Received(),
		Faults:      b.conn.Receiver().Faults(),
	}

	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(status); err != nil {
		log.WithError(err).Warn("Writing bridge status errored")
	}
}

// Close all connected clients.
func (b *Bridge) Close() {
	b.clientsMutex.Lock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.clientsMutex.Unlock()

	for _, c := range clients {
		c.close()
	}
}
