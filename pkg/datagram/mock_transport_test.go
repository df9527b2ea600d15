// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datagram

import "sync"

// mockCall is a single recorded DatagramSend invocation.
type mockCall struct {
	lengths []uint32
	data    [][]byte
	flags   SendFlags
}

// mockTransport is a trivial Transport, only used for testing. It records every call and answers with status.
type mockTransport struct {
	sync.Mutex

	status Status
	calls  []mockCall
}

func newMockTransport(status Status) *mockTransport {
	return &mockTransport{status: status}
}

func (m *mockTransport) DatagramSend(buffers []Buffer, flags SendFlags) Status {
	m.Lock()
	defer m.Unlock()

	call := mockCall{flags: flags}
	for _, buffer := range buffers {
		data := make([]byte, len(buffer.Data))
		copy(data, buffer.Data)

		call.lengths = append(call.lengths, buffer.Length)
		call.data = append(call.data, data)
	}
	m.calls = append(m.calls, call)

	return m.status
}

// recorded returns all recorded calls and resets them.
func (m *mockTransport) recorded() (calls []mockCall) {
	m.Lock()
	defer m.Unlock()

	calls = m.calls
	m.calls = nil
	return
}
