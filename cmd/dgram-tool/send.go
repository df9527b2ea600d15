// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/datagram"
)

// remoteErrorWait is the time to wait for a rejection after sending a datagram.
const remoteErrorWait = 500 * time.Millisecond

// sendDatagram for the "send" CLI option.
func sendDatagram(args []string) {
	if len(args) != 3 {
		printUsage()
	}

	var (
		websocketAddr = args[0]
		optsInput     = args[1]
		dataInput     = args[2]

		err  error
		opts datagram.SendOptions
		data []byte
	)

	if opts, err = datagram.ParseSendOptions(optsInput); err != nil {
		printFatal(err, "Parsing send options errored")
	}

	if dataInput == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(dataInput)
	}
	if err != nil {
		printFatal(err, "Reading input errored")
	}

	con := connect(websocketAddr, opts)
	defer con.Close()

	if err = con.WriteDatagram(data); err != nil {
		printFatal(err, "Sending datagram errored")
	}

	select {
	case err := <-con.RemoteErrors():
		con.Close()
		printFatal(err, "Datagram was rejected")

	case <-time.After(remoteErrorWait):
		log.WithFields(log.Fields{
			"size":    len(data),
			"options": opts,
		}).Info("Sent datagram")
	}
}

// dumpDatagrams for the "dump" CLI option.
func dumpDatagrams(args []string) {
	if len(args) != 1 {
		printUsage()
	}

	con := connect(args[0], datagram.None)
	defer con.Close()

	closeChan := make(chan os.Signal, 1)
	signal.Notify(closeChan, os.Interrupt)

	go func() {
		<-closeChan
		log.Info("Received interrupt signal")
		con.Close()
	}()

	for {
		data, err := con.ReadDatagram()
		if err != nil {
			log.WithError(err).Debug("Reading datagram errored")
			return
		}

		fmt.Println(hex.EncodeToString(data))
	}
}
