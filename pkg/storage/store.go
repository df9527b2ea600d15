// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"

	"github.com/dtn7/quicdgram/pkg/datagram"
)

// Store implements a storage for captured datagrams.
type Store struct {
	bh       *badgerhold.Store
	compress bool

	seq atomic.Uint64
}

// NewStore creates a new Store or opens an existing Store from the given path. If compress is set, newly captured
// datagrams are stored xz compressed.
func NewStore(dir string, compress bool) (s *Store, err error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	if dirErr := os.MkdirAll(dir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	if bh, bhErr := badgerhold.Open(opts); bhErr != nil {
		err = bhErr
	} else {
		s = &Store{
			bh:       bh,
			compress: compress,
		}
	}
	return
}

// Close the Store. It must not be used afterwards.
func (s *Store) Close() error {
	return s.bh.Close()
}

// Push a received datagram from some peer to the Store.
func (s *Store) Push(peer string, p datagram.Payload) error {
	now := time.Now()
	r := Record{
		Id:       recordId(peer, now, s.seq.Add(1)),
		Peer:     peer,
		Received: now,
		Data:     p.Clone(),
	}

	if s.compress {
		if err := r.compress(); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"peer":   peer,
		"record": r,
	}).Debug("Store captures datagram")

	return s.bh.Insert(r.Id, r)
}

// Query all Records of a peer, ordered by their reception. The Records' Data is always uncompressed.
func (s *Store) Query(peer string) (rs []Record, err error) {
	if err = s.bh.Find(&rs, badgerhold.Where("Peer").Eq(peer)); err != nil {
		return
	}

	for i := range rs {
		if err = rs[i].decompress(); err != nil {
			err = fmt.Errorf("decompressing %v failed: %w", rs[i], err)
			return
		}
	}

	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Received.Equal(rs[j].Received) {
			return rs[i].Id < rs[j].Id
		}
		return rs[i].Received.Before(rs[j].Received)
	})
	return
}

// DeleteOlder removes all Records received more than age ago.
func (s *Store) DeleteOlder(age time.Duration) {
	var rs []Record
	if err := s.bh.Find(&rs, badgerhold.Where("Received").Lt(time.Now().Add(-age))); err != nil {
		log.WithError(err).Warn("Failed to get outdated Records")
		return
	}

	for _, r := range rs {
		if err := s.bh.Delete(r.Id, Record{}); err != nil {
			log.WithError(err).WithField("record", r.Id).Warn("Failed to delete outdated Record")
		}
	}

	if len(rs) > 0 {
		log.WithField("records", len(rs)).Info("Deleted outdated Records")
	}
}
