// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datagram

import (
	"bytes"
	"errors"
	"testing"
)

func TestSenderSendPriorityCancelOnBlocked(t *testing.T) {
	transport := newMockTransport(StatusSuccess)
	sender := NewSender(transport)

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := sender.Send(payload, Priority|CancelOnBlocked); err != nil {
		t.Fatal(err)
	}

	calls := transport.recorded()
	if len(calls) != 1 {
		t.Fatalf("expected one transport call, got %d", len(calls))
	}

	call := calls[0]
	if call.flags != 0x48 {
		t.Fatalf("expected flags 0x48, got 0x%02x", call.flags)
	}
	if len(call.lengths) != 1 || call.lengths[0] != 4 {
		t.Fatalf("expected a single 4 byte buffer, got %v", call.lengths)
	}
	if !bytes.Equal(call.data[0], payload) {
		t.Fatalf("expected %x, got %x", payload, call.data[0])
	}
}

func TestSenderSendOptions(t *testing.T) {
	payload := []byte("hello world")

	for opts := SendOptions(0); opts <= Allow0Rtt|Priority|CancelOnBlocked; opts++ {
		transport := newMockTransport(StatusSuccess)
		if err := NewSender(transport).Send(payload, opts); err != nil {
			t.Fatal(err)
		}

		calls := transport.recorded()
		if len(calls) != 1 {
			t.Fatalf("%v: expected one transport call, got %d", opts, len(calls))
		} else if calls[0].flags != opts.Flags() {
			t.Fatalf("%v: expected flags 0x%02x, got 0x%02x", opts, opts.Flags(), calls[0].flags)
		} else if len(calls[0].lengths) != 1 || calls[0].lengths[0] != uint32(len(payload)) {
			t.Fatalf("%v: unexpected buffers %v", opts, calls[0].lengths)
		}
	}
}

func TestSenderSendZeroLength(t *testing.T) {
	for _, payload := range [][]byte{nil, {}} {
		transport := newMockTransport(StatusSuccess)
		if err := NewSender(transport).Send(payload, None); err != nil {
			t.Fatalf("zero-length datagram was rejected: %v", err)
		}

		calls := transport.recorded()
		if len(calls) != 1 {
			t.Fatalf("expected one transport call, got %d", len(calls))
		} else if len(calls[0].lengths) != 1 || calls[0].lengths[0] != 0 {
			t.Fatalf("expected a single empty buffer, got %v", calls[0].lengths)
		}
	}
}

func TestSenderSendRejected(t *testing.T) {
	codes := []Status{StatusInvalidState, StatusNotSupported, StatusTooLarge, StatusAborted, Status(0x1234)}

	for _, code := range codes {
		transport := newMockTransport(code)
		err := NewSender(transport).Send([]byte{0x23, 0x42}, Allow0Rtt)

		var tErr *TransportError
		if !errors.As(err, &tErr) {
			t.Fatalf("expected a TransportError, got %v", err)
		} else if tErr.Code != code {
			t.Fatalf("expected code %v, got %v", code, tErr.Code)
		} else if tErr.Msg != "SendDatagram failed" {
			t.Fatalf("unexpected message %q", tErr.Msg)
		}

		if !errors.Is(err, &TransportError{Code: code}) {
			t.Fatalf("errors.Is does not match code %v", code)
		}
		if errors.Is(err, &TransportError{Code: StatusInternalError}) {
			t.Fatalf("errors.Is matches a different code")
		}
		if errors.Is(err, ErrMisuse) {
			t.Fatalf("rejection is reported as misuse")
		}

		if calls := transport.recorded(); len(calls) != 1 {
			t.Fatalf("expected exactly one transport call, got %d", len(calls))
		}
	}
}

func TestSenderSendRejectedNoSideEffect(t *testing.T) {
	transport := newMockTransport(StatusTooLarge)
	conn := NewConn(transport)

	notified := 0
	conn.Subscribe(func(Payload) error {
		notified++
		return nil
	})

	if err := conn.SendDatagram([]byte("too large"), None); err == nil {
		t.Fatal("rejected send returned no error")
	}

	if notified != 0 {
		t.Fatalf("subscriber was notified %d times", notified)
	}
	if conn.Receiver().Received() != 0 || conn.Receiver().Subscribers() != 1 {
		t.Fatalf("receiver state changed")
	}
}

func TestSenderSendRange(t *testing.T) {
	buf := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}

	tests := []struct {
		offset int
		count  int
		data   []byte
	}{
		{0, 6, buf},
		{2, 3, []byte{0x02, 0x03, 0x04}},
		{6, 0, []byte{}},
		{0, 0, []byte{}},
	}

	for _, test := range tests {
		transport := newMockTransport(StatusSuccess)
		if err := NewSender(transport).SendRange(buf, test.offset, test.count, Priority); err != nil {
			t.Fatal(err)
		}

		calls := transport.recorded()
		if len(calls) != 1 {
			t.Fatalf("expected one transport call, got %d", len(calls))
		} else if calls[0].lengths[0] != uint32(test.count) {
			t.Fatalf("expected length %d, got %d", test.count, calls[0].lengths[0])
		} else if !bytes.Equal(calls[0].data[0], test.data) {
			t.Fatalf("expected %x, got %x", test.data, calls[0].data[0])
		}
	}
}

func TestSenderSendRangeMisuse(t *testing.T) {
	buf := make([]byte, 8)

	tests := []struct {
		offset int
		count  int
	}{
		{-1, 2},
		{0, -1},
		{9, 0},
		{4, 5},
		{0, 9},
	}

	for _, test := range tests {
		transport := newMockTransport(StatusSuccess)
		err := NewSender(transport).SendRange(buf, test.offset, test.count, None)

		var rErr *RangeError
		if !errors.As(err, &rErr) {
			t.Fatalf("offset %d, count %d: expected RangeError, got %v", test.offset, test.count, err)
		} else if rErr.Offset != test.offset || rErr.Count != test.count || rErr.Len != len(buf) {
			t.Fatalf("unexpected RangeError %v", rErr)
		}

		if !errors.Is(err, ErrMisuse) {
			t.Fatalf("RangeError does not match ErrMisuse")
		}

		if calls := transport.recorded(); len(calls) != 0 {
			t.Fatalf("transport was called %d times despite misuse", len(calls))
		}
	}
}
