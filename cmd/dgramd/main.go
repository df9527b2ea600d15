// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// dgramd exchanges QUIC datagrams with its peers. Received datagrams can be answered by an echo agent, measured by a
// ping agent, captured on disk or forwarded to WebSocket clients.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"
)

// waitSignal blocks until SIGINT or SIGTERM arrives.
func waitSignal() os.Signal {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	return <-signals
}

func run(conf daemonConf) error {
	if conf.profile != nil {
		defer profile.Start(conf.profile...).Stop()
	}

	d := newDaemon(conf)
	if err := d.start(); err != nil {
		_ = d.close()
		return err
	}

	sig := waitSignal()
	log.WithField("signal", sig).Info("Shutting down..")

	return d.close()
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	conf, err := parseConfig(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}

	if err := run(conf); err != nil {
		log.WithError(err).Fatal("dgramd errored")
	}
}
