// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bridge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/datagram"
)

// recordingTransport records every sent datagram, only used for testing.
type recordingTransport struct {
	sync.Mutex

	status datagram.Status
	sent   [][]byte
	flags  []datagram.SendFlags
}

func (r *recordingTransport) DatagramSend(buffers []datagram.Buffer, flags datagram.SendFlags) datagram.Status {
	r.Lock()
	defer r.Unlock()

	if r.status != datagram.StatusSuccess {
		return r.status
	}

	data := make([]byte, len(buffers[0].Data))
	copy(data, buffers[0].Data)
	r.sent = append(r.sent, data)
	r.flags = append(r.flags, flags)
	return datagram.StatusSuccess
}

func (r *recordingTransport) setStatus(status datagram.Status) {
	r.Lock()
	defer r.Unlock()

	r.status = status
}

func (r *recordingTransport) recorded() (sent [][]byte, flags []datagram.SendFlags) {
	r.Lock()
	defer r.Unlock()

	sent, flags = r.sent, r.flags
	r.sent, r.flags = nil, nil
	return
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	for i := 0; i < 100; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition was not met in time")
}

func wsURL(server *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
}

func TestBridge(t *testing.T) {
	log.SetLevel(log.DebugLevel)

	transport := &recordingTransport{}
	conn := datagram.NewConn(transport)
	b := NewBridge(conn, 16)

	server := httptest.NewServer(b)
	defer server.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(server, "?options=priority,cancel-on-blocked"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ws.Close() }()

	waitFor(t, func() bool { return conn.Receiver().Subscribers() == 1 })

	// Inbound datagram to the WebSocket client
	source := []byte{0x01, 0x02, 0x03}
	conn.HandleReceived(source)
	source[0] = 0xFF

	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	if mt, data, err := ws.ReadMessage(); err != nil {
		t.Fatal(err)
	} else if mt != websocket.BinaryMessage {
		t.Fatalf("expected message type %v, got %v", websocket.BinaryMessage, mt)
	} else if !bytes.Equal(data, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("unexpected data %x", data)
	}

	// Outbound datagram from the WebSocket client
	if err := ws.WriteMessage(websocket.BinaryMessage, []byte{0xDE, 0xAD, 0xBE, 0xEF}); err != nil {
		t.Fatal(err)
	}

	var sent [][]byte
	var flags []datagram.SendFlags
	waitFor(t, func() bool {
		s, f := transport.recorded()
		sent, flags = append(sent, s...), append(flags, f...)
		return len(sent) > 0
	})

	if len(sent) != 1 || !bytes.Equal(sent[0], []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Fatalf("unexpected datagrams %x", sent)
	} else if flags[0] != 0x48 {
		t.Fatalf("expected flags 0x48, got 0x%02x", flags[0])
	}

	// Rejected datagram
	transport.setStatus(datagram.StatusTooLarge)
	if err := ws.WriteMessage(websocket.BinaryMessage, make([]byte, 2048)); err != nil {
		t.Fatal(err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	if mt, data, err := ws.ReadMessage(); err != nil {
		t.Fatal(err)
	} else if mt != websocket.TextMessage {
		t.Fatalf("expected message type %v, got %v", websocket.TextMessage, mt)
	} else if string(data) != "error: SendDatagram failed: too large" {
		t.Fatalf("unexpected error message %q", data)
	}

	// Status
	resp, err := http.Get(server.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	if status.Clients != 1 || status.Subscribers != 1 || status.Received != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	// Disconnect
	_ = ws.Close()
	waitFor(t, func() bool { return conn.Receiver().Subscribers() == 0 })
}

func TestBridgeInvalidOptions(t *testing.T) {
	conn := datagram.NewConn(&recordingTransport{})
	server := httptest.NewServer(NewBridge(conn, 16))
	defer server.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "?options=fast"), nil)
	if err == nil {
		t.Fatal("invalid options were accepted")
	} else if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %v", http.StatusBadRequest, resp)
	}

	if n := conn.Receiver().Subscribers(); n != 0 {
		t.Fatalf("rejected client subscribed")
	}
}

func TestBridgeFanOut(t *testing.T) {
	conn := datagram.NewConn(&recordingTransport{})
	b := NewBridge(conn, 16)
	server := httptest.NewServer(b)
	defer server.Close()

	var clients []*websocket.Conn
	for i := 0; i < 3; i++ {
		ws, _, err := websocket.DefaultDialer.Dial(wsURL(server, ""), nil)
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = ws.Close() }()
		clients = append(clients, ws)
	}

	waitFor(t, func() bool { return conn.Receiver().Subscribers() == 3 })

	conn.HandleReceived([]byte("hello"))

	for i, ws := range clients {
		_ = ws.SetReadDeadline(time.Now().Add(time.Second))
		if _, data, err := ws.ReadMessage(); err != nil {
			t.Fatalf("client %d: %v", i, err)
		} else if string(data) != "hello" {
			t.Fatalf("client %d received %q", i, data)
		}
	}

	b.Close()
	waitFor(t, func() bool { return conn.Receiver().Subscribers() == 0 })
}
