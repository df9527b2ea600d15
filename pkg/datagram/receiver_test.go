// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datagram

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

// collector is a Handler recording every Payload.
type collector struct {
	sync.Mutex
	payloads [][]byte
}

func (c *collector) handle(p Payload) error {
	c.Lock()
	defer c.Unlock()

	c.payloads = append(c.payloads, p.Bytes())
	return nil
}

func (c *collector) inbox() (payloads [][]byte) {
	c.Lock()
	defer c.Unlock()

	payloads = c.payloads
	c.payloads = nil
	return
}

func TestReceiverTwoSubscribersCopy(t *testing.T) {
	r := NewReceiver()

	var c1, c2 collector
	r.Subscribe(c1.handle)
	r.Subscribe(c2.handle)

	source := []byte{0x01, 0x02, 0x03}
	if status := r.HandleReceived(source); status != StatusSuccess {
		t.Fatalf("expected success, got %v", status)
	}

	// The transport reuses its buffer after the callback.
	source[0], source[1], source[2] = 0xFF, 0xFF, 0xFF

	for i, c := range []*collector{&c1, &c2} {
		payloads := c.inbox()
		if len(payloads) != 1 {
			t.Fatalf("subscriber %d received %d datagrams", i, len(payloads))
		} else if !bytes.Equal(payloads[0], []byte{0x01, 0x02, 0x03}) {
			t.Fatalf("subscriber %d observed %x", i, payloads[0])
		}
	}
}

func TestReceiverSharedPayload(t *testing.T) {
	r := NewReceiver()

	var payloads []Payload
	for i := 0; i < 3; i++ {
		r.Subscribe(func(p Payload) error {
			payloads = append(payloads, p)
			return nil
		})
	}

	r.HandleReceived([]byte("hello world"))

	if len(payloads) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(payloads))
	}
	for _, p := range payloads[1:] {
		if &p.Bytes()[0] != &payloads[0].Bytes()[0] {
			t.Fatalf("payload was copied per subscriber")
		}
	}

	clone := payloads[0].Clone()
	clone[0] = 'j'
	if payloads[1].Bytes()[0] != 'h' {
		t.Fatalf("clone aliases the shared payload")
	}

	if payloads[0].Len() != 11 || payloads[0].String() != "68656c6c6f20776f726c64" {
		t.Fatalf("unexpected payload %v", payloads[0])
	}
}

func TestReceiverNoSubscribers(t *testing.T) {
	r := NewReceiver()
	view := make([]byte, 64*1024)

	allocs := testing.AllocsPerRun(100, func() {
		if status := r.HandleReceived(view); status != StatusSuccess {
			t.Fatalf("expected success, got %v", status)
		}
	})

	if allocs != 0 {
		t.Fatalf("receiving without subscribers allocated %f times", allocs)
	}
	if r.Received() != 0 {
		t.Fatalf("receiver counted %d datagrams", r.Received())
	}
}

func TestReceiverFaultContainment(t *testing.T) {
	r := NewReceiver()

	var before, after collector
	r.Subscribe(before.handle)
	r.Subscribe(func(Payload) error {
		return errors.New("subscriber error")
	})
	r.Subscribe(func(Payload) error {
		panic("subscriber panic")
	})
	r.Subscribe(after.handle)

	for i := 0; i < 2; i++ {
		if status := r.HandleReceived([]byte{byte(i)}); status != StatusSuccess {
			t.Fatalf("expected success, got %v", status)
		}
	}

	for _, c := range []*collector{&before, &after} {
		if payloads := c.inbox(); len(payloads) != 2 {
			t.Fatalf("expected 2 datagrams, got %d", len(payloads))
		} else if payloads[0][0] != 0 || payloads[1][0] != 1 {
			t.Fatalf("datagrams were reordered: %v", payloads)
		}
	}

	if faults := r.Faults(); faults != 4 {
		t.Fatalf("expected 4 faults, got %d", faults)
	}
}

func TestReceiverOrder(t *testing.T) {
	r := NewReceiver()

	var c collector
	r.Subscribe(c.handle)

	for i := 0; i < 100; i++ {
		r.HandleReceived([]byte{byte(i)})
	}

	payloads := c.inbox()
	if len(payloads) != 100 {
		t.Fatalf("expected 100 datagrams, got %d", len(payloads))
	}
	for i, p := range payloads {
		if p[0] != byte(i) {
			t.Fatalf("datagram %d has content %x", i, p)
		}
	}
	if r.Received() != 100 {
		t.Fatalf("receiver counted %d datagrams", r.Received())
	}
}

func TestReceiverUnsubscribe(t *testing.T) {
	r := NewReceiver()

	var c1, c2 collector
	sub1 := r.Subscribe(c1.handle)
	r.Subscribe(c2.handle)

	r.HandleReceived([]byte{0x01})

	sub1.Unsubscribe()
	sub1.Unsubscribe()

	if sub1.Active() {
		t.Fatal("subscription is still active")
	}
	if n := r.Subscribers(); n != 1 {
		t.Fatalf("expected one subscriber, got %d", n)
	}

	r.HandleReceived([]byte{0x02})

	if payloads := c1.inbox(); len(payloads) != 1 {
		t.Fatalf("unsubscribed handler received %d datagrams", len(payloads))
	}
	if payloads := c2.inbox(); len(payloads) != 2 {
		t.Fatalf("remaining handler received %d datagrams", len(payloads))
	}
}

func TestReceiverSubscribeDuringFanOut(t *testing.T) {
	r := NewReceiver()

	var late collector
	var lateSub *Subscription

	r.Subscribe(func(Payload) error {
		if lateSub == nil {
			lateSub = r.Subscribe(late.handle)
		}
		return nil
	})

	r.HandleReceived([]byte{0x01})
	if payloads := late.inbox(); len(payloads) != 0 {
		t.Fatalf("late subscriber received the in-progress datagram")
	}

	r.HandleReceived([]byte{0x02})
	if payloads := late.inbox(); len(payloads) != 1 || payloads[0][0] != 0x02 {
		t.Fatalf("late subscriber did not receive the next datagram: %v", payloads)
	}
}

func TestReceiverUnsubscribeDuringFanOut(t *testing.T) {
	r := NewReceiver()

	var c collector
	var victim *Subscription

	r.Subscribe(func(Payload) error {
		victim.Unsubscribe()
		return nil
	})
	victim = r.Subscribe(c.handle)

	r.HandleReceived([]byte{0x01})

	if payloads := c.inbox(); len(payloads) != 0 {
		t.Fatalf("unsubscribed handler was notified within the same fan-out")
	}
}

func TestReceiverClose(t *testing.T) {
	r := NewReceiver()

	var c collector
	sub := r.Subscribe(c.handle)

	r.Close()
	r.Close()

	if sub.Active() {
		t.Fatal("subscription is still active after close")
	}
	if status := r.HandleReceived([]byte{0x01}); status != StatusSuccess {
		t.Fatalf("expected success, got %v", status)
	}

	lateSub := r.Subscribe(c.handle)
	if lateSub.Active() {
		t.Fatal("subscription on a closed receiver is active")
	}
	lateSub.Unsubscribe()

	r.HandleReceived([]byte{0x02})
	if payloads := c.inbox(); len(payloads) != 0 {
		t.Fatalf("closed receiver delivered %d datagrams", len(payloads))
	}
}

func TestReceiverConcurrentSubscriptions(t *testing.T) {
	r := NewReceiver()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for {
				select {
				case <-stop:
					return
				default:
				}

				sub := r.Subscribe(func(Payload) error { return nil })
				sub.Unsubscribe()
			}
		}()
	}

	var c collector
	r.Subscribe(c.handle)

	for i := 0; i < 1000; i++ {
		r.HandleReceived([]byte{byte(i)})
	}

	close(stop)
	wg.Wait()

	if payloads := c.inbox(); len(payloads) != 1000 {
		t.Fatalf("expected 1000 datagrams, got %d", len(payloads))
	}
	if n := r.Subscribers(); n != 1 {
		t.Fatalf("expected one remaining subscriber, got %d", n)
	}
}
