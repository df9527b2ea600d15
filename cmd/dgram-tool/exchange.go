// SPDX-FileCopyrightText: 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/datagram"
)

const (
	// maxFileSize exceeds every QUIC datagram; larger files are not even tried.
	maxFileSize = 1 << 16

	// readAttempts for a new file, which might still be written to.
	readAttempts = 5

	// tmpPrefix marks files being written by the exchange itself.
	tmpPrefix = ".dgram-"
)

// datagramConn is implemented by bridge.Connector.
type datagramConn interface {
	WriteDatagram(data []byte) error
	ReadDatagram() ([]byte, error)
	RemoteErrors() <-chan error
	Close()
}

// exchange datagrams between a user and a dgramd over a directory. Each file is one datagram.
type exchange struct {
	dir   string
	con   datagramConn
	watch *fsnotify.Watcher

	// retryDelay before the second read attempt, doubled for each further one.
	retryDelay time.Duration

	// written holds the names of received datagrams, which must not be sent back.
	written sync.Map

	interrupt chan os.Signal
	incoming  chan []byte
}

// startExchange for the "exchange" CLI option.
func startExchange(args []string) {
	if len(args) != 2 {
		printUsage()
	}

	ex := &exchange{
		dir:        filepath.Clean(args[1]),
		retryDelay: 100 * time.Millisecond,
		interrupt:  make(chan os.Signal, 1),
		incoming:   make(chan []byte),
	}
	signal.Notify(ex.interrupt, os.Interrupt)

	var err error
	if ex.watch, err = fsnotify.NewWatcher(); err != nil {
		printFatal(err, "Starting file watcher errored")
	}
	if err = ex.watch.Add(ex.dir); err != nil {
		printFatal(err, "Watching directory errored")
	}

	ex.con = connect(args[0], datagram.None)

	go ex.readIncoming()
	ex.run()
}

func (ex *exchange) run() {
	defer func() {
		_ = ex.watch.Close()
		ex.con.Close()
	}()

	log.WithField("directory", ex.dir).Info("Exchanging datagrams")

	for {
		select {
		case <-ex.interrupt:
			log.Info("Received interrupt signal")
			return

		case e, ok := <-ex.watch.Events:
			if !ok {
				return
			}
			ex.onFileEvent(e)

		case err, ok := <-ex.watch.Errors:
			if !ok {
				return
			}
			log.WithError(err).Error("File watcher errored")
			return

		case err := <-ex.con.RemoteErrors():
			log.WithError(err).Warn("Datagram was rejected")

		case data, ok := <-ex.incoming:
			if !ok {
				return
			}
			ex.writeDatagram(data)
		}
	}
}

// onFileEvent sends newly created or moved in files.
func (ex *exchange) onFileEvent(e fsnotify.Event) {
	name := filepath.Base(e.Name)
	logger := log.WithFields(log.Fields{
		"file":      name,
		"operation": e.Op,
	})

	switch {
	case e.Op&fsnotify.Create == 0:
		logger.Debug("Ignoring file event")

	case strings.HasPrefix(name, tmpPrefix):
		logger.Debug("Ignoring temporary file")

	default:
		if _, known := ex.written.LoadAndDelete(name); known {
			logger.Debug("Ignoring received datagram")
			return
		}
		ex.sendFile(e.Name)
	}
}

// sendFile as a single datagram, retrying to read with a growing delay. A file which stays empty is sent as a
// zero-length datagram after the last attempt.
func (ex *exchange) sendFile(path string) {
	logger := log.WithField("file", path)

	for i, delay := 0, ex.retryDelay; i < readAttempts; i, delay = i+1, delay*2 {
		lastAttempt := i == readAttempts-1

		info, err := os.Stat(path)
		switch {
		case err != nil:
			logger.WithError(err).Debug("Stat errored, retrying")

		case info.Size() > maxFileSize:
			logger.WithField("size", info.Size()).Warn("File is too large for a datagram")
			return

		case info.Size() == 0 && !lastAttempt:
			logger.Debug("File is still empty, retrying")

		default:
			data, err := os.ReadFile(path)
			if err != nil {
				logger.WithError(err).Debug("Reading file errored, retrying")
				break
			}

			if err := ex.con.WriteDatagram(data); err != nil {
				logger.WithError(err).Error("Sending datagram errored")
			} else {
				logger.WithField("size", len(data)).Info("Sent datagram")
			}
			return
		}

		if !lastAttempt {
			time.Sleep(delay)
		}
	}

	logger.Error("Giving up on file")
}

// writeDatagram into a file named after its content's hash. The file appears atomically by a rename.
func (ex *exchange) writeDatagram(data []byte) {
	sum := sha256.Sum256(data)
	name := hex.EncodeToString(sum[:8])
	logger := log.WithFields(log.Fields{
		"file": name,
		"size": len(data),
	})

	tmp, err := os.CreateTemp(ex.dir, tmpPrefix)
	if err != nil {
		logger.WithError(err).Error("Creating temporary file errored")
		return
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		logger.WithError(err).Error("Writing datagram errored")
		return
	} else if err := tmp.Close(); err != nil {
		logger.WithError(err).Error("Closing temporary file errored")
		return
	}

	ex.written.Store(name, struct{}{})
	if err := os.Rename(tmp.Name(), filepath.Join(ex.dir, name)); err != nil {
		ex.written.Delete(name)
		logger.WithError(err).Error("Renaming temporary file errored")
		return
	}

	logger.Info("Saved received datagram")
}

func (ex *exchange) readIncoming() {
	defer close(ex.incoming)

	for {
		data, err := ex.con.ReadDatagram()
		if err != nil {
			log.WithError(err).Info("Connection to bridge closed")
			return
		}
		ex.incoming <- data
	}
}
