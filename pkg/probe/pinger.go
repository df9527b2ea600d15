// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/datagram"
)

// Stats of a Pinger. Rejected Requests were refused by the transport and are not part of Sent.
type Stats struct {
	Sent     uint64
	Received uint64
	Lost     uint64
	Rejected uint64
}

func (s Stats) String() string {
	return fmt.Sprintf("%d sent, %d received, %d lost, %d rejected", s.Sent, s.Received, s.Lost, s.Rejected)
}

// Result of a successful round trip.
type Result struct {
	Seq uint64
	RTT time.Duration
}

// Pinger sends Requests and matches the incoming Replies.
type Pinger struct {
	conn    *datagram.Conn
	opts    datagram.SendOptions
	padding int
	sub     *datagram.Subscription

	mutex       sync.Mutex
	seq         uint64
	outstanding map[uint64]time.Time
	stats       Stats

	results chan Result
}

// NewPinger subscribes a new Pinger to conn. Requests are sent with opts and padded by padding bytes.
func NewPinger(conn *datagram.Conn, opts datagram.SendOptions, padding int) *Pinger {
	p := &Pinger{
		conn:        conn,
		opts:        opts,
		padding:     padding,
		outstanding: make(map[uint64]time.Time),
		results:     make(chan Result, 64),
	}

	p.sub = conn.Subscribe(p.handle)

	return p
}

func (p *Pinger) log() *log.Entry {
	return log.WithField("pinger", p.sub)
}

// handle is the datagram.Handler, called on the dispatch goroutine.
func (p *Pinger) handle(payload datagram.Payload) error {
	msg, err := UnmarshalMessage(payload.Bytes())
	if err != nil {
		// Conn might be shared with other traffic.
		p.log().WithError(err).Debug("Ignoring non-probe datagram")
		return nil
	}

	if msg.Kind != Reply {
		return nil
	}

	p.mutex.Lock()
	sent, ok := p.outstanding[msg.Seq]
	if ok {
		delete(p.outstanding, msg.Seq)
		p.stats.Received++
	}
	p.mutex.Unlock()

	// Duplicated or already expired reply
	if !ok {
		return nil
	}

	select {
	case p.results <- Result{Seq: msg.Seq, RTT: time.Since(sent)}:
	default:
	}
	return nil
}

// Ping sends the next Request and returns its sequence number.
func (p *Pinger) Ping() (uint64, error) {
	p.mutex.Lock()
	p.seq++
	seq := p.seq
	p.outstanding[seq] = time.Now()
	p.mutex.Unlock()

	data, err := MarshalMessage(NewRequest(seq, p.padding))
	if err == nil {
		err = p.conn.SendDatagram(data, p.opts)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if err != nil {
		delete(p.outstanding, seq)
		p.stats.Rejected++
		return seq, err
	}

	p.stats.Sent++
	return seq, nil
}

// Expire marks each Request older than timeout as lost.
func (p *Pinger) Expire(timeout time.Duration) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	deadline := time.Now().Add(-timeout)
	for seq, sent := range p.outstanding {
		if sent.Before(deadline) {
			delete(p.outstanding, seq)
			p.stats.Lost++
		}
	}
}

// Results of successful round trips. Results are dropped if this channel is not read.
func (p *Pinger) Results() <-chan Result {
	return p.results
}

// Stats returns the current statistics.
func (p *Pinger) Stats() Stats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.stats
}

// Run sends count Requests, one per interval, or infinitely many for a count of zero. Afterwards, Run waits for
// timeout to collect late Replies. The final Stats are returned.
func (p *Pinger) Run(ctx context.Context, interval, timeout time.Duration, count uint64) Stats {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for sent := uint64(0); count == 0 || sent < count; sent++ {
		if seq, err := p.Ping(); err != nil {
			p.log().WithFields(log.Fields{
				"seq":   seq,
				"error": err,
			}).Info("Sending request failed")
		}

		p.Expire(timeout)

		select {
		case <-ctx.Done():
			p.Expire(0)
			return p.Stats()
		case <-ticker.C:
		}
	}

	select {
	case <-ctx.Done():
	case <-time.After(timeout):
	}

	p.Expire(0)
	return p.Stats()
}

// Close unsubscribes this Pinger.
func (p *Pinger) Close() {
	p.sub.Unsubscribe()
}
