// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

// Package layer2 defines the record layer as seen by the framing driver
// above it, and provides an in-memory implementation used by tests and
// demos. The framing driver borrows a reader/writer between the matching
// start/done calls and must not use it afterwards.
package layer2

import (
	"github.com/hrissan/mps/record"
	"github.com/hrissan/mps/stream"
)

// In is the content of the next available record, exposed through a
// reader valid until ReadDone.
type In struct {
	Type   record.ContentType
	Epoch  record.Epoch
	Reader *stream.Reader
}

// Layer is the record layer contract.
//
// Read half: ReadStart yields the next record's content reader, ReadDone
// releases it and must be called before the next ReadStart.
//
// Write half: WriteStart begins (or continues) a record of the given type
// and epoch, WriteDone closes the borrow, WriteFlush drains all pending
// records to the transport.
type Layer interface {
	ReadStart() (In, error)
	ReadDone() error

	WriteStart(t record.ContentType, epoch record.Epoch) (*stream.Writer, error)
	WriteDone() error
	WriteFlush() error
}
