// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/ulikunitz/xz"
)

// Record is a single captured datagram together with its meta data.
type Record struct {
	Id string `badgerhold:"key"`

	Peer     string    `badgerholdIndex:"Peer"`
	Received time.Time `badgerholdIndex:"Received"`

	Data       []byte
	Compressed bool `json:"-"`
}

// compress the Record's Data with xz.
func (r *Record) compress() error {
	if r.Compressed {
		return nil
	}

	var buf bytes.Buffer
	if xzW, err := xz.NewWriter(&buf); err != nil {
		return err
	} else if _, err = xzW.Write(r.Data); err != nil {
		return err
	} else if err = xzW.Close(); err != nil {
		return err
	}

	r.Data = buf.Bytes()
	r.Compressed = true
	return nil
}

// decompress the Record's Data, if compressed.
func (r *Record) decompress() error {
	if !r.Compressed {
		return nil
	}

	xzR, err := xz.NewReader(bytes.NewBuffer(r.Data))
	if err != nil {
		return err
	}

	data, err := io.ReadAll(xzR)
	if err != nil {
		return err
	}

	r.Data = data
	r.Compressed = false
	return nil
}

// recordId is unique per Store, also for datagrams received at the same instant.
func recordId(peer string, received time.Time, seq uint64) string {
	return fmt.Sprintf("%s/%020d/%d", peer, received.UnixNano(), seq)
}

func (r Record) String() string {
	return fmt.Sprintf("Record(%s,%d bytes)", r.Id, len(r.Data))
}
