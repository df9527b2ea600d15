// SPDX-FileCopyrightText: 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/bridge"
	"github.com/dtn7/quicdgram/pkg/datagram"
)

// printUsage of dgram-tool and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s send|dump|exchange:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s send websocket options -|filename\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Sends the stdin (-) or the given file (filename) as a single datagram over a\n")
	_, _ = fmt.Fprintf(os.Stderr, "  dgramd's WebSocket bridge. The options are a list like \"priority,allow-0rtt\"\n")
	_, _ = fmt.Fprintf(os.Stderr, "  or \"none\".\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s dump websocket\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Prints each received datagram hex encoded.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s exchange websocket directory\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  %s connects to the given websocket and writes incoming datagrams in the\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  directory. If the user drops a new file in the directory, it will be sent.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "A websocket looks like ws://localhost:8080/sessions/1/ws\n")

	os.Exit(1)
}

// printFatal logs the error and exits with an error code afterwards.
func printFatal(err error, msg string) {
	log.WithError(err).Error(msg)
	os.Exit(1)
}

// connect to a dgramd's WebSocket bridge.
func connect(websocketAddr string, opts datagram.SendOptions) *bridge.Connector {
	con, err := bridge.NewConnector(websocketAddr, opts)
	if err != nil {
		printFatal(err, "Connecting to the WebSocket bridge errored")
	}
	return con
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
	}

	switch os.Args[1] {
	case "send":
		sendDatagram(os.Args[2:])

	case "dump":
		dumpDatagrams(os.Args[2:])

	case "exchange":
		startExchange(os.Args[2:])

	default:
		printUsage()
	}
}
