// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/bridge"
	"github.com/dtn7/quicdgram/pkg/discovery"
	"github.com/dtn7/quicdgram/pkg/probe"
	"github.com/dtn7/quicdgram/pkg/quicdg"
	"github.com/dtn7/quicdgram/pkg/storage"
)

const dialTimeout = 5 * time.Second

// sessionElem wraps a Session together with its attached agents.
type sessionElem struct {
	id      string
	peer    string
	session *quicdg.Session
	bridge  *bridge.Bridge
	echo    *probe.Echo
	pinger  *probe.Pinger
	capture *storage.Capture
	cancel  context.CancelFunc
}

// daemon supervises all Sessions, their agents and the HTTP server of the bridge.
type daemon struct {
	conf daemonConf

	listeners  []*quicdg.Listener
	httpServer *http.Server
	discovery  *discovery.Manager
	store      *storage.Store

	cleanupSyn chan struct{}
	cleanupAck chan struct{}

	sessionsMutex sync.Mutex
	sessions      map[string]*sessionElem
	peers         map[string]struct{}
	nextID        int
}

func newDaemon(conf daemonConf) *daemon {
	return &daemon{
		conf:     conf,
		sessions: make(map[string]*sessionElem),
		peers:    make(map[string]struct{}),
	}
}

// start all listeners, the bridge's HTTP server and dials all peers. A failed peer is only logged.
func (d *daemon) start() error {
	if d.conf.captureDir != "" {
		store, err := storage.NewStore(d.conf.captureDir, d.conf.compress)
		if err != nil {
			return err
		}
		d.store = store

		d.cleanupSyn = make(chan struct{})
		d.cleanupAck = make(chan struct{})
		go d.cleanupCaptures()
	}

	for _, address := range d.conf.listen {
		listener := quicdg.NewListener(address, d.addSession)
		if err := listener.Start(); err != nil {
			return err
		}
		d.listeners = append(d.listeners, listener)
	}

	if d.conf.bridge != "" {
		d.httpServer = &http.Server{
			Addr:    d.conf.bridge,
			Handler: d.router(),
		}

		go func() {
			if err := d.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Bridge HTTP server errored")
			}
		}()

		log.WithField("address", d.conf.bridge).Info("Started WebSocket bridge")
	}

	for _, address := range d.conf.peers {
		d.dialPeer(address)
	}

	if ds := d.conf.discovery; len(ds.ports) > 0 {
		manager, err := discovery.NewManager(ds.nodeID, ds.ports, ds.interval, ds.ipv4, ds.ipv6, d.dialPeer)
		if err != nil {
			return err
		}
		d.discovery = manager
	}

	return nil
}

// dialPeer establishes a Session to a peer, unless there is already one to this address.
func (d *daemon) dialPeer(address string) {
	d.sessionsMutex.Lock()
	if _, known := d.peers[address]; known {
		d.sessionsMutex.Unlock()
		return
	}
	d.peers[address] = struct{}{}
	d.sessionsMutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	session, err := quicdg.Dial(ctx, address)
	cancel()

	if err != nil {
		log.WithFields(log.Fields{
			"peer":  address,
			"error": err,
		}).Warn("Failed to establish a connection to a peer")

		d.sessionsMutex.Lock()
		delete(d.peers, address)
		d.sessionsMutex.Unlock()
		return
	}

	d.registerSession(session, address)
}

// addSession attaches the configured agents to an incoming Session.
func (d *daemon) addSession(session *quicdg.Session) {
	d.registerSession(session, "")
}

// registerSession attaches the configured agents to a new Session. A dialed Session knows its peer's address.
func (d *daemon) registerSession(session *quicdg.Session, peer string) {
	d.sessionsMutex.Lock()
	d.nextID++
	elem := &sessionElem{
		id:      fmt.Sprintf("%d", d.nextID),
		peer:    peer,
		session: session,
		bridge:  bridge.NewBridge(session.Conn, d.conf.bridgeQueue),
	}
	d.sessions[elem.id] = elem
	d.sessionsMutex.Unlock()

	if d.store != nil {
		elem.capture = d.store.Capture(session.Conn, session.RemoteAddr().String(), d.conf.captureQueue)
	}

	switch d.conf.probe.mode {
	case "echo":
		elem.echo = probe.NewEcho(session.Conn, d.conf.probe.opts, d.conf.probe.queue)

	case "ping":
		var ctx context.Context
		ctx, elem.cancel = context.WithCancel(context.Background())
		elem.pinger = probe.NewPinger(session.Conn, d.conf.probe.opts, d.conf.probe.padding)

		go d.ping(ctx, elem)
	}

	log.WithFields(log.Fields{
		"id":      elem.id,
		"session": session,
		"probe":   d.conf.probe.mode,
	}).Info("Registered session")

	go func() {
		<-session.Done()
		d.removeSession(elem)
	}()
}

func (d *daemon) ping(ctx context.Context, elem *sessionElem) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return

			case res := <-elem.pinger.Results():
				log.WithFields(log.Fields{
					"session": elem.id,
					"seq":     res.Seq,
					"rtt":     res.RTT,
				}).Info("Received probe reply")
			}
		}
	}()

	stats := elem.pinger.Run(ctx, d.conf.probe.interval, d.conf.probe.timeout, d.conf.probe.count)

	log.WithFields(log.Fields{
		"session": elem.id,
		"stats":   stats,
	}).Info("Probing finished")
}

// removeSession detaches all agents and closes the Session.
func (d *daemon) removeSession(elem *sessionElem) {
	d.sessionsMutex.Lock()
	if _, ok := d.sessions[elem.id]; !ok {
		d.sessionsMutex.Unlock()
		return
	}
	delete(d.sessions, elem.id)
	if elem.peer != "" {
		delete(d.peers, elem.peer)
	}
	d.sessionsMutex.Unlock()

	if elem.cancel != nil {
		elem.cancel()
	}
	if elem.pinger != nil {
		elem.pinger.Close()
	}
	if elem.echo != nil {
		elem.echo.Close()
	}
	if elem.capture != nil {
		elem.capture.Close()
	}
	elem.bridge.Close()

	if err := elem.session.Close(); err != nil {
		log.WithFields(log.Fields{
			"id":    elem.id,
			"error": err,
		}).Debug("Closing session errored")
	}

	log.WithField("id", elem.id).Info("Removed session")
}

// router serves the session list, each session's capture and each session's Bridge below /sessions/{id}/.
func (d *daemon) router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/sessions", d.handleSessions).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}/capture", d.handleCapture).Methods(http.MethodGet)
	router.PathPrefix("/sessions/{id}/").HandlerFunc(d.handleSession)
	return router
}

func (d *daemon) handleSessions(rw http.ResponseWriter, _ *http.Request) {
	d.sessionsMutex.Lock()
	ids := make([]string, 0, len(d.sessions))
	for id := range d.sessions {
		ids = append(ids, id)
	}
	d.sessionsMutex.Unlock()

	sort.Strings(ids)

	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(ids); err != nil {
		log.WithError(err).Warn("Writing session list errored")
	}
}

func (d *daemon) handleSession(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	d.sessionsMutex.Lock()
	elem, ok := d.sessions[id]
	d.sessionsMutex.Unlock()

	if !ok {
		http.NotFound(rw, r)
		return
	}

	http.StripPrefix("/sessions/"+id, elem.bridge).ServeHTTP(rw, r)
}

func (d *daemon) handleCapture(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	d.sessionsMutex.Lock()
	elem, ok := d.sessions[id]
	d.sessionsMutex.Unlock()

	if !ok || d.store == nil {
		http.NotFound(rw, r)
		return
	}

	records, err := d.store.Query(elem.session.RemoteAddr().String())
	if err != nil {
		log.WithError(err).WithField("id", id).Warn("Querying captured datagrams errored")
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(records); err != nil {
		log.WithError(err).Warn("Writing captured datagrams errored")
	}
}

// cleanupCaptures periodically deletes captured datagrams beyond their retention.
func (d *daemon) cleanupCaptures() {
	defer close(d.cleanupAck)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-d.cleanupSyn:
			return

		case <-ticker.C:
			d.store.DeleteOlder(d.conf.retention)
		}
	}
}

// close everything down.
func (d *daemon) close() error {
	var errs error

	if d.discovery != nil {
		d.discovery.Close()
	}

	for _, listener := range d.listeners {
		if err := listener.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if d.httpServer != nil {
		if err := d.httpServer.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	d.sessionsMutex.Lock()
	elems := make([]*sessionElem, 0, len(d.sessions))
	for _, elem := range d.sessions {
		elems = append(elems, elem)
	}
	d.sessionsMutex.Unlock()

	for _, elem := range elems {
		d.removeSession(elem)
	}

	if d.store != nil {
		close(d.cleanupSyn)
		<-d.cleanupAck

		if err := d.store.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return errs
}
