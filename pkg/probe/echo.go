// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package probe

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/datagram"
)

// Echo answers each received Request with a Reply.
//
// The Reply is sent from the Echo's own goroutine, keeping the dispatch goroutine free. Requests exceeding the queue
// are dropped.
type Echo struct {
	conn *datagram.Conn
	opts datagram.SendOptions
	sub  *datagram.Subscription

	queue chan Message

	stopSyn  chan struct{}
	stopAck  chan struct{}
	stopOnce sync.Once

	answered atomic.Uint64
	dropped  atomic.Uint64
}

// NewEcho subscribes a new Echo to conn. Replies are sent with opts.
func NewEcho(conn *datagram.Conn, opts datagram.SendOptions, queueLen int) *Echo {
	e := &Echo{
		conn:  conn,
		opts:  opts,
		queue: make(chan Message, queueLen),

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	e.sub = conn.Subscribe(e.handle)
	go e.handler()

	return e
}

func (e *Echo) log() *log.Entry {
	return log.WithField("echo", e.sub)
}

// handle is the datagram.Handler, called on the dispatch goroutine.
func (e *Echo) handle(p datagram.Payload) error {
	msg, err := UnmarshalMessage(p.Bytes())
	if err != nil {
		// Conn might be shared with other traffic.
		e.log().WithError(err).Debug("Ignoring non-probe datagram")
		return nil
	}

	if msg.Kind != Request {
		return nil
	}

	select {
	case e.queue <- msg:
	default:
		e.dropped.Add(1)
	}
	return nil
}

func (e *Echo) handler() {
	defer close(e.stopAck)

	for {
		select {
		case <-e.stopSyn:
			return

		case msg := <-e.queue:
			e.reply(msg)
		}
	}
}

func (e *Echo) reply(msg Message) {
	msg.Kind = Reply

	data, err := MarshalMessage(msg)
	if err != nil {
		e.log().WithError(err).Warn("Marshalling reply errored")
		return
	}

	if err := e.conn.SendDatagram(data, e.opts); err != nil {
		e.log().WithFields(log.Fields{
			"seq":   msg.Seq,
			"error": err,
		}).Info("Sending reply failed")
		return
	}

	e.answered.Add(1)
}

// Answered returns the amount of sent Replies.
func (e *Echo) Answered() uint64 {
	return e.answered.Load()
}

// Dropped returns the amount of Requests dropped due to a full queue.
func (e *Echo) Dropped() uint64 {
	return e.dropped.Load()
}

// Close unsubscribes this Echo and stops its goroutine.
func (e *Echo) Close() {
	e.stopOnce.Do(func() {
		e.sub.Unsubscribe()
		close(e.stopSyn)
		<-e.stopAck
	})
}
