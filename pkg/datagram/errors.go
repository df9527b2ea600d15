// SPDX-FileCopyrightText: 2023 dtn7-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package datagram

import (
	"errors"
	"fmt"
)

// sendFailedMsg is the message of every TransportError created by the Sender.
const sendFailedMsg = "SendDatagram failed"

// ErrMisuse is matched by every RangeError through errors.Is.
var ErrMisuse = errors.New("invalid datagram range")

// TransportError is returned when the transport rejected an outgoing datagram. Code is passed on verbatim.
type TransportError struct {
	Code Status
	Msg  string
}

func newTransportError(code Status) *TransportError {
	return &TransportError{
		Code: code,
		Msg:  sendFailedMsg,
	}
}

func (err *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", err.Msg, err.Code)
}

// Is matches another *TransportError with the same Code, e.g., errors.Is(err, &TransportError{Code: StatusTooLarge}).
func (err *TransportError) Is(target error) bool {
	other, ok := target.(*TransportError)
	return ok && other.Code == err.Code
}

// RangeError is returned for an invalid byte range before any transport call was made.
type RangeError struct {
	Offset int
	Count  int
	Len    int
}

func (err *RangeError) Error() string {
	return fmt.Sprintf("%v: offset %d and count %d do not fit a buffer of length %d", ErrMisuse, err.Offset, err.Count, err.Len)
}

func (err *RangeError) Unwrap() error {
	return ErrMisuse
}
