// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package layer3

import (
	"github.com/hrissan/mps/mpserrors"
	"github.com/hrissan/mps/record"
	"github.com/hrissan/mps/safecast"
	"github.com/hrissan/mps/stream"
)

// HandshakeOut describes the handshake message (stream transports) or
// fragment (datagram transports) to open. Len, and on datagram
// transports FragLen, may be stream.SizeUnknown to defer the header
// length fields until Dispatch. On success Writer carries the bounded
// writer to fill the body through.
type HandshakeOut struct {
	Epoch record.Epoch
	Type  byte
	Len   int

	// datagram transports only
	SeqNr      uint16
	FragOffset int
	FragLen    int

	Writer *stream.ExtWriter
}

// Flush requests that all pending records reach the transport before the
// next record is opened, and attempts it immediately.
func (l *Layer) Flush() error {
	l.out.clearing = true
	return l.checkClear()
}

func (l *Layer) checkClear() error {
	if !l.out.clearing {
		return nil
	}
	if err := l.l2.WriteFlush(); err != nil {
		return err
	}
	l.out.clearing = false
	return nil
}

// prepareWrite obtains a writer for the given content type and epoch from
// the record layer, pursuing an unfinished flush first.
func (l *Layer) prepareWrite(t record.ContentType, epoch record.Epoch) error {
	if l.out.state != record.TypeNone {
		return mpserrors.ErrOperationUnexpected
	}
	if !l.cfg.AllowInterleaving &&
		l.out.hs.state == hsPaused && t != record.TypeHandshake {
		return mpserrors.ErrNoInterleaving
	}

	if err := l.checkClear(); err != nil {
		return err
	}

	wr, err := l.l2.WriteStart(t, epoch)
	if err != nil {
		return err
	}
	l.out.raw = wr
	l.out.epoch = epoch
	l.out.state = t
	return nil
}

// abandonWrite closes the just-opened channel after running out of record
// space, requesting a flush so the retry finds an empty record.
func (l *Layer) abandonWrite() error {
	l.out.clearing = true
	l.out.state = record.TypeNone
	if err := l.l2.WriteDone(); err != nil {
		return err
	}
	return mpserrors.ErrRetry
}

// WriteHandshake opens an outgoing handshake message, or continues a
// paused one (the epoch, type and length must then match). The header is
// written immediately when all its length fields are known, otherwise
// the reserved header bytes are backfilled on Dispatch.
func (l *Layer) WriteHandshake(out *HandshakeOut) error {
	hs := &l.out.hs

	if hs.state == hsPaused &&
		(hs.epoch != out.Epoch || hs.typ != out.Type || hs.length != out.Len) {
		return mpserrors.ErrInvalidArg
	}
	if hs.state == hsNone && l.datagram() {
		// an unknown total length admits only the first fragment with a
		// deferred fragment length
		if out.Len == stream.SizeUnknown &&
			(out.FragOffset != 0 || out.FragLen != stream.SizeUnknown) {
			return mpserrors.ErrInvalidArg
		}
		if out.Len != stream.SizeUnknown && out.FragLen != stream.SizeUnknown &&
			out.FragOffset+out.FragLen > out.Len {
			return mpserrors.ErrInvalidArg
		}
	}

	if err := l.prepareWrite(record.TypeHandshake, out.Epoch); err != nil {
		return err
	}

	if hs.state == hsNone {
		hs.epoch = out.Epoch
		hs.length = out.Len
		hs.typ = out.Type
		if l.datagram() {
			hs.seqNr = out.SeqNr
			hs.fragOffset = out.FragOffset
			hs.fragLen = out.FragLen
		}

		// Reserve header space. At the end of a record there might not
		// be enough left, then abort the write and flush before the
		// next attempt.
		buf, err := l.out.raw.Get(l.headerSize())
		if err == mpserrors.ErrOutOfData {
			return l.abandonWrite()
		}
		if err != nil {
			return err
		}
		hs.hdr = buf
		l.checkWriteHeader()

		// The header stays uncommitted even when written: if the user
		// aborts before making progress, no empty fragment is emitted.

		if l.datagram() {
			hs.wrExt.Init(hs.fragLen)
		} else {
			hs.wrExt.Init(hs.length)
		}
	}

	length := hs.length
	if l.datagram() {
		length = hs.fragLen
	}
	mode := stream.Pass
	if length == stream.SizeUnknown {
		mode = stream.Hold
	}
	if err := hs.wrExt.Attach(l.out.raw, mode); err != nil {
		return err
	}

	hs.state = hsActive
	out.Writer = &hs.wrExt
	return nil
}

// checkWriteHeader backfills the reserved header slice once every length
// field is known.
func (l *Layer) checkWriteHeader() {
	hs := &l.out.hs
	if hs.hdr == nil {
		return
	}
	if l.datagram() {
		if hs.length == stream.SizeUnknown || hs.fragLen == stream.SizeUnknown {
			return
		}
		hdr := record.HandshakeHeaderDTLS{
			MsgType:        hs.typ,
			Length:         safecast.Cast[uint32](hs.length),
			MessageSeq:     hs.seqNr,
			FragmentOffset: safecast.Cast[uint32](hs.fragOffset),
			FragmentLength: safecast.Cast[uint32](hs.fragLen),
		}
		hdr.Put(hs.hdr)
	} else {
		if hs.length == stream.SizeUnknown {
			return
		}
		hdr := record.HandshakeHeaderTLS{
			MsgType: hs.typ,
			Length:  safecast.Cast[uint32](hs.length),
		}
		hdr.Put(hs.hdr)
	}
	hs.hdr = nil
}

// WriteAlert opens an alert channel and fills its two bytes; Dispatch
// commits them.
func (l *Layer) WriteAlert(epoch record.Epoch, alert record.Alert) error {
	if err := l.prepareWrite(record.TypeAlert, epoch); err != nil {
		return err
	}
	buf, err := l.out.raw.Get(record.AlertSize)
	if err == mpserrors.ErrOutOfData {
		return l.abandonWrite()
	}
	if err != nil {
		return err
	}
	alert.Put(buf)
	return nil
}

// WriteCCS opens a change_cipher_spec channel and fills its single byte;
// Dispatch commits it.
func (l *Layer) WriteCCS(epoch record.Epoch) error {
	if err := l.prepareWrite(record.TypeCCS, epoch); err != nil {
		return err
	}
	buf, err := l.out.raw.Get(record.CCSSize)
	if err == mpserrors.ErrOutOfData {
		return l.abandonWrite()
	}
	if err != nil {
		return err
	}
	record.PutCCS(buf)
	return nil
}

// WriteApp opens an application-data channel, surfacing the raw record
// writer. The user commits what it writes; Dispatch only closes the
// channel.
func (l *Layer) WriteApp(epoch record.Epoch) (*stream.Writer, error) {
	if err := l.prepareWrite(record.TypeApplicationData, epoch); err != nil {
		return nil, err
	}
	return l.out.raw, nil
}

// Dispatch closes the current outgoing channel, backfilling a deferred
// handshake header from the committed body length.
func (l *Layer) Dispatch() error {
	switch l.out.state {
	case record.TypeHandshake:
		hs := &l.out.hs
		if hs.state != hsActive {
			return mpserrors.ErrInternal
		}

		if hs.wrExt.CheckDone() != nil {
			return mpserrors.ErrUnfinishedMessage
		}

		committed, uncommitted, err := hs.wrExt.Detach()
		if err != nil {
			return err
		}
		hs.wrExt.Init(0)

		if hs.length == stream.SizeUnknown {
			hs.length = committed
		}
		if l.datagram() && hs.fragLen == stream.SizeUnknown {
			hs.fragLen = committed
		}
		l.checkWriteHeader()

		// One commit finalizes the header bytes and the committed body
		// prefix, overlapping through the writer's queue when the body
		// straddled record buffers.
		if err := l.out.raw.CommitPartial(uncommitted); err != nil {
			return err
		}
		hs.state = hsNone

	case record.TypeAlert, record.TypeCCS:
		if err := l.out.raw.Commit(); err != nil {
			return err
		}

	case record.TypeApplicationData:
		// written and committed directly through the writer

	case record.TypeNone:
		return mpserrors.ErrOperationUnexpected

	default:
		return mpserrors.ErrInternal
	}

	// drop the borrowed writer before WriteDone invalidates it
	l.out.raw = nil
	if err := l.l2.WriteDone(); err != nil {
		return err
	}

	l.out.state = record.TypeNone
	return nil
}

// PauseHandshake suspends the writing of the current handshake message at
// a record boundary; a later WriteHandshake with matching parameters
// continues it. Stream transports only, and the total length must have
// been known up front.
func (l *Layer) PauseHandshake() error {
	hs := &l.out.hs
	if l.datagram() {
		return mpserrors.ErrOperationUnexpected
	}
	if l.out.state != record.TypeHandshake || hs.state != hsActive ||
		hs.length == stream.SizeUnknown {
		return mpserrors.ErrOperationUnexpected
	}

	_, uncommitted, err := hs.wrExt.Detach()
	if err != nil {
		return err
	}

	// Commit even though commits pass through: the user may pause before
	// committing anything, and the handshake header of the first
	// fragment must still reach the wire.
	if err := l.out.raw.CommitPartial(uncommitted); err != nil {
		return err
	}

	l.out.raw = nil
	if err := l.l2.WriteDone(); err != nil {
		return err
	}

	hs.state = hsPaused
	l.out.state = record.TypeNone
	return nil
}

// WriteAbortHandshake drops an open handshake message before anything
// was committed.
func (l *Layer) WriteAbortHandshake() error {
	hs := &l.out.hs
	if l.out.state != record.TypeHandshake || hs.state != hsActive {
		return mpserrors.ErrOperationUnexpected
	}

	committed, _, err := hs.wrExt.Detach()
	if err != nil {
		return err
	}
	hs.wrExt.Init(0)

	if committed != 0 {
		// aborting a partially committed message is a programmer error
		return mpserrors.ErrInternal
	}

	l.out.raw = nil
	if err := l.l2.WriteDone(); err != nil {
		return err
	}

	hs.state = hsNone
	l.out.state = record.TypeNone
	return nil
}
