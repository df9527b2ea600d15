// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datagram

import (
	"fmt"
	"strings"
)

// SendFlags is the transport's native encoding of the datagram send flags. The values cross into the transport and
// must therefore never change.
type SendFlags uint32

const (
	SendFlagNone            SendFlags = 0x00
	SendFlagAllow0Rtt       SendFlags = 0x01
	SendFlagDgramPriority   SendFlags = 0x08
	SendFlagCancelOnBlocked SendFlags = 0x40
)

// SendOptions specifies the delivery policy of a single outgoing datagram. Options are independent of each other
// and can be combined by a bitwise OR.
type SendOptions uint32

const (
	// None requests no special behavior.
	None SendOptions = 0

	// Allow0Rtt permits sending before the handshake has completed, using the weaker guarantees of early data.
	Allow0Rtt SendOptions = 1 << 0

	// Priority asks the transport to schedule this datagram ahead of non-priority ones. This is only a hint.
	Priority SendOptions = 1 << 3

	// CancelOnBlocked permits the transport to silently drop this datagram if it cannot be flushed promptly.
	CancelOnBlocked SendOptions = 1 << 6
)

// optionTable maps each SendOptions bit onto its native SendFlags bit and its textual name.
var optionTable = []struct {
	option SendOptions
	flag   SendFlags
	name   string
}{
	{Allow0Rtt, SendFlagAllow0Rtt, "allow-0rtt"},
	{Priority, SendFlagDgramPriority, "priority"},
	{CancelOnBlocked, SendFlagCancelOnBlocked, "cancel-on-blocked"},
}

// Has checks if all bits of other are set.
func (opts SendOptions) Has(other SendOptions) bool {
	return opts&other == other
}

// Flags translates these SendOptions into the transport's native SendFlags. Unknown bits are dropped.
func (opts SendOptions) Flags() (flags SendFlags) {
	for _, entry := range optionTable {
		if opts.Has(entry.option) {
			flags |= entry.flag
		}
	}
	return
}

func (opts SendOptions) String() string {
	if opts == None {
		return "none"
	}

	var names []string
	for _, entry := range optionTable {
		if opts.Has(entry.option) {
			names = append(names, entry.name)
		}
	}

	if unknown := opts &^ (Allow0Rtt | Priority | CancelOnBlocked); unknown != 0 {
		names = append(names, fmt.Sprintf("0x%02x", uint32(unknown)))
	}

	return strings.Join(names, "|")
}

// ParseSendOptions parses a list of option names, separated by either "," or "|". Valid names are "none",
// "allow-0rtt", "priority" and "cancel-on-blocked". An empty string results in None.
func ParseSendOptions(s string) (opts SendOptions, err error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '|'
	})

	for _, field := range fields {
		name := strings.ToLower(strings.TrimSpace(field))
		if name == "" || name == "none" {
			continue
		}

		found := false
		for _, entry := range optionTable {
			if entry.name == name {
				opts |= entry.option
				found = true
				break
			}
		}

		if !found {
			err = fmt.Errorf("unknown send option %q", field)
			return
		}
	}

	return
}
