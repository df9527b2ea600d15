// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicdgram/pkg/datagram"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Logging   logConf
	Listen    []listenConf
	Peer      []peerConf
	Bridge    bridgeConf
	Probe     probeConf
	Discovery discoveryConf
	Capture   captureConf
	Debug     debugConf
}

// debugConf enables a pprof profile of the whole run, written to Dir on shutdown.
type debugConf struct {
	Profile string
	Dir     string
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// listenConf describes a QUIC listener.
type listenConf struct {
	Address string
}

// peerConf describes a QUIC peer to be dialed.
type peerConf struct {
	Address string
}

// bridgeConf describes the WebSocket bridge. An empty Listen address disables the bridge.
type bridgeConf struct {
	Listen string
	Queue  int
}

// probeConf describes the probe agent attached to each session.
type probeConf struct {
	Mode     string
	Interval string
	Timeout  string
	Count    uint64
	Padding  int
	Options  string
	Queue    int
}

// captureConf describes the storage of received datagrams. An empty Dir disables capturing.
type captureConf struct {
	Dir       string
	Retention string
	Compress  bool
	Queue     int
}

// discoveryConf describes the multicast peer discovery.
type discoveryConf struct {
	NodeID   string `toml:"node-id"`
	IPv4     bool
	IPv6     bool
	Interval uint
}

// discoverySettings is the validated discoveryConf. It is disabled for no ports.
type discoverySettings struct {
	nodeID   string
	ports    []uint
	interval time.Duration
	ipv4     bool
	ipv6     bool
}

// probeSettings is the validated probeConf.
type probeSettings struct {
	mode     string
	interval time.Duration
	timeout  time.Duration
	count    uint64
	padding  int
	opts     datagram.SendOptions
	queue    int
}

// daemonConf is the validated configuration.
type daemonConf struct {
	listen       []string
	peers        []string
	bridge       string
	bridgeQueue  int
	probe        probeSettings
	discovery    discoverySettings
	captureDir   string
	captureQueue int
	compress     bool
	retention    time.Duration
	profile      []func(*profile.Profile)
}

// parseDuration parses a duration, falling back to a default value for an empty string.
func parseDuration(value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	return time.ParseDuration(value)
}

// setupLogging configures logrus based on the Logging-configuration block.
func setupLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// validate a tomlConfig. All found errors are reported at once.
func validate(conf tomlConfig) (dc daemonConf, err error) {
	var errs error

	for i, listen := range conf.Listen {
		if listen.Address == "" {
			errs = multierror.Append(errs, fmt.Errorf("listen %d: address is empty", i))
		} else {
			dc.listen = append(dc.listen, listen.Address)
		}
	}

	for i, peer := range conf.Peer {
		if peer.Address == "" {
			errs = multierror.Append(errs, fmt.Errorf("peer %d: address is empty", i))
		} else {
			dc.peers = append(dc.peers, peer.Address)
		}
	}

	if len(dc.listen) == 0 && len(dc.peers) == 0 && errs == nil {
		errs = multierror.Append(errs, fmt.Errorf("neither listen nor peer is configured"))
	}

	dc.bridge = conf.Bridge.Listen
	dc.bridgeQueue = conf.Bridge.Queue
	if dc.bridgeQueue < 0 {
		errs = multierror.Append(errs, fmt.Errorf("bridge.queue is negative"))
	} else if dc.bridgeQueue == 0 {
		dc.bridgeQueue = 64
	}

	switch conf.Probe.Mode {
	case "", "none", "echo", "ping":
		dc.probe.mode = conf.Probe.Mode
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown probe.mode %q", conf.Probe.Mode))
	}

	if d, dErr := parseDuration(conf.Probe.Interval, time.Second); dErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("probe.interval: %w", dErr))
	} else if d <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("probe.interval must be positive"))
	} else {
		dc.probe.interval = d
	}

	if d, dErr := parseDuration(conf.Probe.Timeout, 2*time.Second); dErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("probe.timeout: %w", dErr))
	} else {
		dc.probe.timeout = d
	}

	if opts, oErr := datagram.ParseSendOptions(conf.Probe.Options); oErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("probe.options: %w", oErr))
	} else {
		dc.probe.opts = opts
	}

	if conf.Probe.Padding < 0 {
		errs = multierror.Append(errs, fmt.Errorf("probe.padding is negative"))
	}
	dc.probe.padding = conf.Probe.Padding
	dc.probe.count = conf.Probe.Count

	dc.probe.queue = conf.Probe.Queue
	if dc.probe.queue <= 0 {
		dc.probe.queue = 16
	}

	dc.captureDir = conf.Capture.Dir
	dc.compress = conf.Capture.Compress
	dc.captureQueue = conf.Capture.Queue
	if dc.captureQueue < 0 {
		errs = multierror.Append(errs, fmt.Errorf("capture.queue is negative"))
	} else if dc.captureQueue == 0 {
		dc.captureQueue = 256
	}
	if d, dErr := parseDuration(conf.Capture.Retention, time.Hour); dErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("capture.retention: %w", dErr))
	} else if d <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("capture.retention must be positive"))
	} else {
		dc.retention = d
	}

	if mode, pErr := profileMode(conf.Debug.Profile); pErr != nil {
		errs = multierror.Append(errs, pErr)
	} else if mode != nil {
		dir := conf.Debug.Dir
		if dir == "" {
			dir = "."
		}
		dc.profile = []func(*profile.Profile){mode, profile.ProfilePath(dir), profile.NoShutdownHook}
	}

	if conf.Discovery.IPv4 || conf.Discovery.IPv6 {
		dc.discovery, errs = validateDiscovery(conf.Discovery, dc.listen, errs)
	}

	err = errs
	return
}

// profileMode maps debug.profile onto a profile mode; nil disables profiling.
func profileMode(name string) (func(*profile.Profile), error) {
	switch name {
	case "", "none":
		return nil, nil
	case "cpu":
		return profile.CPUProfile, nil
	case "mem":
		return profile.MemProfile, nil
	case "block":
		return profile.BlockProfile, nil
	case "mutex":
		return profile.MutexProfile, nil
	case "trace":
		return profile.TraceProfile, nil
	default:
		return nil, fmt.Errorf("unknown debug.profile %q", name)
	}
}

// validateDiscovery announces the port of each listener.
func validateDiscovery(conf discoveryConf, listen []string, errs error) (ds discoverySettings, _ error) {
	if len(listen) == 0 {
		return ds, multierror.Append(errs, fmt.Errorf("discovery requires at least one listen address"))
	}

	ds.nodeID = conf.NodeID
	if ds.nodeID == "" {
		buff := make([]byte, 8)
		if _, err := rand.Read(buff); err != nil {
			return ds, multierror.Append(errs, fmt.Errorf("discovery: generating node id: %w", err))
		}
		ds.nodeID = hex.EncodeToString(buff)
	}

	for _, address := range listen {
		_, portStr, err := net.SplitHostPort(address)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("discovery: listen address %q: %w", address, err))
			continue
		}

		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || port == 0 {
			errs = multierror.Append(errs, fmt.Errorf("discovery: listen address %q needs a fixed port", address))
			continue
		}

		ds.ports = append(ds.ports, uint(port))
	}

	ds.interval = time.Duration(conf.Interval) * time.Second
	if ds.interval == 0 {
		ds.interval = 10 * time.Second
	}

	ds.ipv4 = conf.IPv4
	ds.ipv6 = conf.IPv6

	return ds, errs
}

// decodeConfig decodes and validates a TOML configuration. The logging is set up as a side effect.
func decodeConfig(data string) (dc daemonConf, err error) {
	var conf tomlConfig
	if _, err = toml.Decode(data, &conf); err != nil {
		return
	}

	setupLogging(conf.Logging)
	return validate(conf)
}

// parseConfig decodes and validates a TOML configuration file. The logging is set up as a side effect.
func parseConfig(filename string) (dc daemonConf, err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	setupLogging(conf.Logging)
	return validate(conf)
}
