// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2020 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/schollz/peerdiscovery"
	log "github.com/sirupsen/logrus"
)

// RegisterFunc is called with the host:port address of each newly discovered QUIC listener.
type RegisterFunc func(address string)

// beacon announces and listens on one multicast group.
type beacon struct {
	group   string
	version peerdiscovery.IPVersion
	stop    chan struct{}
}

// Manager announces this node and reports other nodes' listeners.
//
// For each pair of nodes only the one with the lexicographically smaller node id reports the other one, so that
// both do not dial each other at the same time. A listener is reported again only after it was not announced for
// three intervals.
type Manager struct {
	nodeID   string
	register RegisterFunc
	interval time.Duration
	beacons  []*beacon

	seenMutex sync.Mutex
	seen      map[string]time.Time
}

// NewManager starts announcing the given listener ports on the enabled IP versions.
func NewManager(nodeID string, ports []uint, interval time.Duration, ipv4, ipv6 bool, register RegisterFunc) (*Manager, error) {
	payload, err := marshalAnnouncement(Announcement{NodeID: nodeID, Ports: ports})
	if err != nil {
		return nil, err
	}

	m := &Manager{
		nodeID:   nodeID,
		register: register,
		interval: interval,
		seen:     make(map[string]time.Time),
	}
	if ipv4 {
		m.beacons = append(m.beacons, &beacon{group: address4, version: peerdiscovery.IPv4})
	}
	if ipv6 {
		m.beacons = append(m.beacons, &beacon{group: address6, version: peerdiscovery.IPv6})
	}

	log.WithFields(log.Fields{
		"node":     nodeID,
		"ports":    ports,
		"interval": interval,
		"IPv4":     ipv4,
		"IPv6":     ipv6,
	}).Info("Starting peer discovery")

	for i, b := range m.beacons {
		if err := m.start(b, payload); err != nil {
			m.stop(m.beacons[:i])
			return nil, err
		}
	}

	return m, nil
}

// start a beacon. peerdiscovery.Discover blocks for its whole lifetime, so only an early error is awaited.
func (m *Manager) start(b *beacon, payload []byte) error {
	b.stop = make(chan struct{})

	settings := peerdiscovery.Settings{
		Limit:            -1,
		TimeLimit:        -1,
		Port:             strconv.Itoa(port),
		MulticastAddress: b.group,
		IPVersion:        b.version,
		Payload:          payload,
		Delay:            m.interval,
		StopChan:         b.stop,
		AllowSelf:        true,
		Notify:           m.notify,
	}

	errChan := make(chan error, 1)
	go func() {
		_, err := peerdiscovery.Discover(settings)
		errChan <- err
	}()

	select {
	case err := <-errChan:
		return err
	case <-time.After(time.Second):
		return nil
	}
}

func (m *Manager) notify(discovered peerdiscovery.Discovered) {
	a, err := unmarshalAnnouncement(discovered.Payload)
	if err != nil {
		log.WithError(err).WithField("peer", discovered.Address).Debug("Dropping invalid announcement")
		return
	}

	for _, address := range m.handleAnnouncement(a, discovered.Address, time.Now()) {
		go m.register(address)
	}
}

// handleAnnouncement returns the addresses to be reported for an Announcement received from host at now.
func (m *Manager) handleAnnouncement(a Announcement, host string, now time.Time) (addresses []string) {
	logger := log.WithFields(log.Fields{
		"peer":         host,
		"announcement": a,
	})

	if a.NodeID == m.nodeID {
		return
	} else if m.nodeID > a.NodeID {
		logger.Debug("Waiting for peer with smaller node id to dial")
		return
	}

	m.seenMutex.Lock()
	defer m.seenMutex.Unlock()

	for _, p := range a.Ports {
		address := net.JoinHostPort(host, strconv.FormatUint(uint64(p), 10))

		if last, ok := m.seen[address]; ok && now.Sub(last) < 3*m.interval {
			m.seen[address] = now
			continue
		}
		m.seen[address] = now

		logger.WithField("address", address).Info("Discovered peer")
		addresses = append(addresses, address)
	}

	return
}

func (m *Manager) stop(beacons []*beacon) {
	for _, b := range beacons {
		b.stop <- struct{}{}
	}
}

// Close stops all announcements.
func (m *Manager) Close() {
	m.stop(m.beacons)
}
