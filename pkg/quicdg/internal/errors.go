// SPDX-FileCopyrightText: 2022 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package internal

import "github.com/quic-go/quic-go"

const (
	// LocalError designates errors that happen on this machine, e.g., a failed dispatch loop
	LocalError quic.ApplicationErrorCode = 2
	// ApplicationShutdown is sent when a session is closed by its owner
	ApplicationShutdown quic.ApplicationErrorCode = 5
)

// ConfigError wraps a failure while generating the TLS or QUIC configuration.
type ConfigError struct {
	Msg   string
	Cause error
}

func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{
		Msg:   message,
		Cause: cause,
	}
}

func (err *ConfigError) Error() string {
	return err.Msg + ": " + err.Cause.Error()
}

func (err *ConfigError) Unwrap() error {
	return err.Cause
}
