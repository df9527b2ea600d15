// SPDX-FileCopyrightText: 2020 Markus Sommer
// SPDX-FileCopyrightText: 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// announcementVersion is the first field of each encoded Announcement.
const announcementVersion uint64 = 1

// maxPorts limits the ports of a single Announcement.
const maxPorts = 16

// Announcement of a node's QUIC datagram listeners, all reachable at the sender's address.
type Announcement struct {
	NodeID string
	Ports  []uint
}

// MarshalCbor writes the Announcement as a CBOR array of version, node id and ports.
func (a *Announcement) MarshalCbor(w io.Writer) error {
	if len(a.Ports) > maxPorts {
		return fmt.Errorf("announcement has %d ports, at most %d are allowed", len(a.Ports), maxPorts)
	}

	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(announcementVersion, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(a.NodeID, w); err != nil {
		return fmt.Errorf("node id: %v", err)
	}

	if err := cboring.WriteArrayLength(uint64(len(a.Ports)), w); err != nil {
		return err
	}
	for _, p := range a.Ports {
		if err := cboring.WriteUInt(uint64(p), w); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalCbor reads an Announcement. Unknown versions and invalid ports are rejected.
func (a *Announcement) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("expected array of 3 fields, got %d", n)
	}

	if version, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if version != announcementVersion {
		return fmt.Errorf("unsupported announcement version %d", version)
	}

	nodeID, err := cboring.ReadTextString(r)
	if err != nil {
		return fmt.Errorf("node id: %v", err)
	} else if nodeID == "" {
		return fmt.Errorf("node id is empty")
	}

	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if n == 0 || n > maxPorts {
		return fmt.Errorf("invalid number of ports %d", n)
	}

	ports := make([]uint, n)
	for i := range ports {
		p, pErr := cboring.ReadUInt(r)
		if pErr != nil {
			return pErr
		} else if p == 0 || p > 65535 {
			return fmt.Errorf("invalid port %d", p)
		}
		ports[i] = uint(p)
	}

	a.NodeID, a.Ports = nodeID, ports
	return nil
}

// marshalAnnouncement creates a multicast payload.
func marshalAnnouncement(a Announcement) ([]byte, error) {
	buff := new(bytes.Buffer)
	if err := cboring.Marshal(&a, buff); err != nil {
		return nil, err
	}
	return buff.Bytes(), nil
}

// unmarshalAnnouncement parses a multicast payload, which must not contain trailing data.
func unmarshalAnnouncement(data []byte) (a Announcement, err error) {
	buff := bytes.NewBuffer(data)
	if err = cboring.Unmarshal(&a, buff); err != nil {
		return
	}
	if buff.Len() != 0 {
		err = fmt.Errorf("%d bytes of trailing data", buff.Len())
	}
	return
}

func (a Announcement) String() string {
	return fmt.Sprintf("Announcement(%s,%v)", a.NodeID, a.Ports)
}
