// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/datagram"
)

// Subscriber is something received datagrams can be subscribed at, e.g., a datagram.Conn.
type Subscriber interface {
	Subscribe(handler datagram.Handler) *datagram.Subscription
}

// pusher is implemented by Store.
type pusher interface {
	Push(peer string, p datagram.Payload) error
}

// Capture writes the datagrams received from one peer into a Store.
//
// Compressing and inserting happens on the Capture's own goroutine. Datagrams exceeding the queue are dropped.
type Capture struct {
	store pusher
	peer  string
	sub   *datagram.Subscription

	queue chan datagram.Payload

	stopSyn  chan struct{}
	stopAck  chan struct{}
	stopOnce sync.Once

	captured atomic.Uint64
	dropped  atomic.Uint64
}

// Capture subscribes a new Capture for the peer's datagrams at conn.
func (s *Store) Capture(conn Subscriber, peer string, queueLen int) *Capture {
	return newCapture(s, conn, peer, queueLen)
}

func newCapture(store pusher, conn Subscriber, peer string, queueLen int) *Capture {
	c := &Capture{
		store: store,
		peer:  peer,
		queue: make(chan datagram.Payload, queueLen),

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	c.sub = conn.Subscribe(c.handle)
	go c.handler()

	return c
}

// handle is the datagram.Handler, called on the dispatch goroutine.
func (c *Capture) handle(p datagram.Payload) error {
	select {
	case c.queue <- p:
	default:
		c.dropped.Add(1)
	}
	return nil
}

func (c *Capture) handler() {
	defer close(c.stopAck)

	for {
		select {
		case <-c.stopSyn:
			return

		case p := <-c.queue:
			if err := c.store.Push(c.peer, p); err != nil {
				log.WithFields(log.Fields{
					"peer":  c.peer,
					"error": err,
				}).Warn("Capturing datagram errored")
				continue
			}
			c.captured.Add(1)
		}
	}
}

// Captured returns the amount of stored datagrams.
func (c *Capture) Captured() uint64 {
	return c.captured.Load()
}

// Dropped returns the amount of datagrams dropped due to a full queue.
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}

// Close unsubscribes this Capture and stops its goroutine. Queued but not yet stored datagrams are discarded.
func (c *Capture) Close() {
	c.stopOnce.Do(func() {
		c.sub.Unsubscribe()
		close(c.stopSyn)
		<-c.stopAck
	})
}
