// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datagram

import (
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Handler is notified for each received datagram. It is called on the transport's dispatch goroutine and MUST NOT
// block; longer work has to be handed off to the Handler's own goroutine.
//
// A returned error or a panic is a subscriber fault. Both are logged and contained within the Receiver.
type Handler func(Payload) error

// Subscription is the registration of a Handler at a Receiver. The Receiver only references the Handler until
// Unsubscribe is called or the Receiver is closed.
type Subscription struct {
	id       uint64
	handler  Handler
	receiver *Receiver
	active   atomic.Bool
}

// Active checks if this Subscription is still being notified.
func (sub *Subscription) Active() bool {
	return sub.active.Load()
}

// Unsubscribe stops all further notifications. A fan-out already in progress will not notify this Subscription
// afterwards. Calling Unsubscribe multiple times is safe.
func (sub *Subscription) Unsubscribe() {
	if sub.active.Swap(false) {
		sub.receiver.remove(sub)
	}
}

func (sub *Subscription) String() string {
	return fmt.Sprintf("Subscription{%d}", sub.id)
}

// Receiver is the receive half of a Conn. HandleReceived is called sequentially by the transport's dispatch
// goroutine, while Subscribe and Unsubscribe may be called concurrently from anywhere.
type Receiver struct {
	mutex sync.Mutex

	// subs is replaced on each change and never modified in place. Thus, a fan-out can iterate over its snapshot
	// without holding the mutex.
	subs   []*Subscription
	nextID uint64
	closed bool

	received atomic.Uint64
	faults   atomic.Uint64
}

// NewReceiver creates a Receiver without any Subscriptions.
func NewReceiver() *Receiver {
	return &Receiver{}
}

// Subscribe registers a new Handler. Datagrams whose fan-out has already started are not delivered to it. On a
// closed Receiver, the returned Subscription is inert.
func (r *Receiver) Subscribe(handler Handler) *Subscription {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.nextID++
	sub := &Subscription{
		id:       r.nextID,
		handler:  handler,
		receiver: r,
	}

	if r.closed {
		return sub
	}

	sub.active.Store(true)

	subs := make([]*Subscription, len(r.subs), len(r.subs)+1)
	copy(subs, r.subs)
	r.subs = append(subs, sub)

	log.WithField("subscription", sub).Debug("Datagram receiver registered subscription")
	return sub
}

func (r *Receiver) remove(sub *Subscription) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, other := range r.subs {
		if other != sub {
			continue
		}

		subs := make([]*Subscription, 0, len(r.subs)-1)
		subs = append(subs, r.subs[:i]...)
		r.subs = append(subs, r.subs[i+1:]...)

		log.WithField("subscription", sub).Debug("Datagram receiver removed subscription")
		return
	}
}

// Subscribers returns the amount of active Subscriptions.
func (r *Receiver) Subscribers() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return len(r.subs)
}

// Received returns the amount of datagrams which were delivered to at least one Subscription.
func (r *Receiver) Received() uint64 {
	return r.received.Load()
}

// Faults returns the amount of contained subscriber faults.
func (r *Receiver) Faults() uint64 {
	return r.faults.Load()
}

// Close tears this Receiver down. All Subscriptions become inert; later datagrams are dropped silently.
func (r *Receiver) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for _, sub := range r.subs {
		sub.active.Store(false)
	}
	r.subs = nil
}

// HandleReceived is the inbound callback for the transport. The view's memory is owned by the transport and only
// valid during this call. If at least one Subscription exists, the view is copied once and the resulting Payload is
// delivered to every Subscription in order. This method always returns StatusSuccess.
func (r *Receiver) HandleReceived(view []byte) Status {
	r.mutex.Lock()
	subs := r.subs
	r.mutex.Unlock()

	if len(subs) == 0 {
		return StatusSuccess
	}

	payload := newPayload(view)
	r.received.Add(1)

	for _, sub := range subs {
		r.notify(sub, payload)
	}

	return StatusSuccess
}

// notify a single Subscription, containing its errors and panics.
func (r *Receiver) notify(sub *Subscription, payload Payload) {
	if !sub.active.Load() {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.fault(sub, fmt.Errorf("handler panicked: %v", rec))
		}
	}()

	if err := sub.handler(payload); err != nil {
		r.fault(sub, err)
	}
}

func (r *Receiver) fault(sub *Subscription, err error) {
	r.faults.Add(1)

	log.WithFields(log.Fields{
		"subscription": sub,
		"error":        err,
	}).Warn("Datagram subscriber failed, continuing fan-out")
}
