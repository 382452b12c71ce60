// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package mpserrors

import (
	"fmt"
)

// we do not allocate on error returning path,
// so all errors are completely static

type Error struct {
	fatal bool
	code  int
	text  string
}

func (e *Error) Error() string {
	if e.fatal {
		return fmt.Sprintf("mps (fatal): %d %s", e.code, e.text)
	}
	return fmt.Sprintf("mps: %d %s", e.code, e.text)
}

// Fatal errors are not cured by retrying: caller bugs leave the object
// unchanged, content errors leave it in an unspecified state and the
// caller must tear down. Non-fatal errors are progress signals, the object stays in a
// well-defined state and the caller retries after feeding/flushing.
func (e *Error) Fatal() bool { return e.fatal }

func NewFatal(code int, text string) error {
	return &Error{
		fatal: true,
		code:  code,
		text:  text,
	}
}

func NewSignal(code int, text string) error {
	return &Error{
		fatal: false,
		code:  code,
		text:  text,
	}
}

// progress signals, the caller retries after supplying more buffer space,
// flushing, or feeding the next fragment
var ErrRetry = NewSignal(-100, "operation must be retried after the record layer made progress")
var ErrNeedMore = NewSignal(-101, "queued data remains, feed another buffer")
var ErrDataLeft = NewSignal(-102, "unprocessed data left in the current buffer")
var ErrOutOfData = NewSignal(-103, "request exceeds the current buffer")
var ErrWantRead = NewSignal(-104, "no record available, wait for the transport")

// caller bugs, the object is unchanged and remains usable
var ErrOperationUnexpected = NewFatal(-200, "operation not permitted in the current state")
var ErrInvalidArg = NewFatal(-201, "invalid argument")
var ErrBoundsViolation = NewFatal(-202, "request exceeds the logical bounds")
var ErrTooManyGroups = NewFatal(-203, "group nesting limit reached")
var ErrInconsistentRead = NewFatal(-204, "read request differs from the one before pausing")

// reader pause failures
var ErrNoAccumulator = NewFatal(-210, "pausing requires an accumulator")
var ErrAccumulatorTooSmall = NewFatal(-211, "accumulator too small to back up the paused request")

// fatal content errors
var ErrInvalidContent = NewFatal(-300, "malformed record content")
var ErrUnfinishedMessage = NewFatal(-301, "handshake message closed before being fully processed")
var ErrNoInterleaving = NewFatal(-302, "interleaving other content into a paused handshake is disabled")
var ErrInternal = NewFatal(-303, "internal invariant violated")
