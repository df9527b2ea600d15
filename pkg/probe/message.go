// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package probe

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/dtn7/cboring"
)

// Kind of a probe Message.
type Kind uint64

const (
	_ Kind = iota

	// Request asks the peer's Echo for a Reply.
	Request

	// Reply answers a Request, carrying its Seq and Timestamp.
	Reply
)

// CheckValid returns an error for unknown Kinds.
func (k Kind) CheckValid() error {
	switch k {
	case Request, Reply:
		return nil
	default:
		return fmt.Errorf("unknown probe kind %d", uint64(k))
	}
}

func (k Kind) String() string {
	switch k {
	case Request:
		return "request"
	case Reply:
		return "reply"
	default:
		return "unknown"
	}
}

// Message is a single probe datagram.
type Message struct {
	Kind Kind
	Seq  uint64

	// Timestamp of the Request's creation in nanoseconds since the Unix epoch.
	Timestamp uint64

	// Padding inflates the Message to test larger datagrams.
	Padding []byte
}

// NewRequest creates a Request Message for the current time.
func NewRequest(seq uint64, padding int) Message {
	return Message{
		Kind:      Request,
		Seq:       seq,
		Timestamp: uint64(time.Now().UnixNano()),
		Padding:   make([]byte, padding),
	}
}

// Time of the Request's creation.
func (m Message) Time() time.Time {
	return time.Unix(0, int64(m.Timestamp))
}

func (m Message) String() string {
	return fmt.Sprintf("ProbeMessage(%v,%d,%v)", m.Kind, m.Seq, m.Time())
}

// MarshalCbor writes the Message's CBOR representation.
func (m *Message) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}

	for _, n := range []uint64{uint64(m.Kind), m.Seq, m.Timestamp} {
		if err := cboring.WriteUInt(n, w); err != nil {
			return err
		}
	}

	if err := cboring.WriteByteString(m.Padding, w); err != nil {
		return fmt.Errorf("marshalling padding failed: %v", err)
	}

	return nil
}

// UnmarshalCbor creates this Message based on a CBOR representation.
func (m *Message) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 4 {
		return fmt.Errorf("wrong array length: %d instead of 4", l)
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if kind := Kind(n); kind.CheckValid() != nil {
		return kind.CheckValid()
	} else {
		m.Kind = kind
	}

	for _, fld := range []*uint64{&m.Seq, &m.Timestamp} {
		if n, err := cboring.ReadUInt(r); err != nil {
			return err
		} else {
			*fld = n
		}
	}

	if padding, err := cboring.ReadByteString(r); err != nil {
		return fmt.Errorf("unmarshalling padding failed: %v", err)
	} else {
		m.Padding = padding
	}

	return nil
}

// MarshalMessage into a datagram payload.
func MarshalMessage(m Message) ([]byte, error) {
	buff := new(bytes.Buffer)
	if err := cboring.Marshal(&m, buff); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// UnmarshalMessage from a datagram payload. Trailing data is an error.
func UnmarshalMessage(data []byte) (m Message, err error) {
	buff := bytes.NewBuffer(data)

	if err = cboring.Unmarshal(&m, buff); err != nil {
		return
	}

	if buff.Len() != 0 {
		err = fmt.Errorf("%d bytes of trailing data", buff.Len())
	}
	return
}
