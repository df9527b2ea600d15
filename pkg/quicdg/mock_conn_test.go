// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package quicdg

import (
	"context"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
)

// mockConnection mimics the used part of a quic.Connection, only used for testing.
type mockConnection struct {
	sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	supportsDatagrams bool
	sendErr           error
	sent              [][]byte

	incoming   chan []byte
	receiveErr error

	closeCode quic.ApplicationErrorCode
	closed    bool
}

func newMockConnection() *mockConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &mockConnection{
		ctx:               ctx,
		cancel:            cancel,
		supportsDatagrams: true,
		incoming:          make(chan []byte),
	}
}

func (m *mockConnection) SendDatagram(payload []byte) error {
	m.Lock()
	defer m.Unlock()

	if m.sendErr != nil {
		return m.sendErr
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockConnection) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	select {
	case data := <-m.incoming:
		return data, nil
	case <-ctx.Done():
		m.Lock()
		defer m.Unlock()
		if m.receiveErr != nil {
			return nil, m.receiveErr
		}
		return nil, ctx.Err()
	}
}

func (m *mockConnection) ConnectionState() quic.ConnectionState {
	m.Lock()
	defer m.Unlock()

	return quic.ConnectionState{SupportsDatagrams: m.supportsDatagrams}
}

func (m *mockConnection) Context() context.Context {
	return m.ctx
}

func (m *mockConnection) CloseWithError(code quic.ApplicationErrorCode, _ string) error {
	m.Lock()
	defer m.Unlock()

	m.closeCode = code
	m.closed = true
	m.cancel()
	return nil
}

func (m *mockConnection) RemoteAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4242}
}

// sentDatagrams returns all sent datagrams and resets them.
func (m *mockConnection) sentDatagrams() (sent [][]byte) {
	m.Lock()
	defer m.Unlock()

	sent = m.sent
	m.sent = nil
	return
}

// mockEarlyConnection is a mockConnection still performing its handshake until complete is closed.
type mockEarlyConnection struct {
	*mockConnection
	complete chan struct{}
}

func (m *mockEarlyConnection) HandshakeComplete() <-chan struct{} {
	return m.complete
}
