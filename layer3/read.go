// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package layer3

import (
	"github.com/hrissan/mps/mpserrors"
	"github.com/hrissan/mps/record"
	"github.com/hrissan/mps/safecast"
	"github.com/hrissan/mps/stream"
)

// HandshakeIn exposes an incoming handshake message (stream transports)
// or fragment (datagram transports). The reader enforces the message
// bounds and survives pausing across records.
type HandshakeIn struct {
	Epoch  record.Epoch
	Type   byte
	Len    int
	Reader *stream.ExtReader

	// datagram transports only
	SeqNr      uint16
	FragOffset int
	FragLen    int
}

type AlertIn struct {
	Epoch record.Epoch
	Alert record.Alert
}

type CCSIn struct {
	Epoch record.Epoch
}

// AppIn exposes application data through the raw record reader.
type AppIn struct {
	Epoch  record.Epoch
	Reader *stream.Reader
}

// ReadCheck reports the currently open incoming channel, TypeNone if none.
func (l *Layer) ReadCheck() record.ContentType {
	return l.in.state
}

// Read opens the next incoming record-content channel.
//
// On stream transports an alert or handshake header cut off by a record
// boundary releases the record and returns ErrRetry; the interrupted
// parse transparently continues in the next record. On datagram
// transports the same condition is ErrInvalidContent.
func (l *Layer) Read() (record.ContentType, error) {
	if l.in.state != record.TypeNone {
		return record.TypeNone, mpserrors.ErrOperationUnexpected
	}

	in, err := l.l2.ReadStart()
	if err != nil {
		return record.TypeNone, err
	}

	switch in.Type {
	case record.TypeApplicationData:
		// surfaced through ReadApp as a direct reader handle

	case record.TypeAlert:
		err := l.parseAlert(in.Reader)
		if err == mpserrors.ErrOutOfData {
			if l.datagram() {
				return record.TypeNone, mpserrors.ErrInvalidContent
			}
			if err := l.l2.ReadDone(); err != nil {
				return record.TypeNone, err
			}
			return record.TypeNone, mpserrors.ErrRetry
		}
		if err != nil {
			return record.TypeNone, err
		}

	case record.TypeCCS:
		// empty CCS records never arrive, the record layer filters them
		if err := l.parseCCS(in.Reader); err != nil {
			return record.TypeNone, err
		}

	case record.TypeAck:
		return record.TypeNone, mpserrors.ErrInvalidContent

	case record.TypeHandshake:
		switch l.in.hs.state {
		case hsNone:
			err := l.parseHandshakeHeader(in.Reader)
			if err == mpserrors.ErrOutOfData {
				if l.datagram() {
					return record.TypeNone, mpserrors.ErrInvalidContent
				}
				if err := l.l2.ReadDone(); err != nil {
					return record.TypeNone, err
				}
				return record.TypeNone, mpserrors.ErrRetry
			}
			if err != nil {
				return record.TypeNone, err
			}
			if l.datagram() {
				l.in.hs.rdExt.Init(l.in.hs.fragLen)
			} else {
				l.in.hs.rdExt.Init(l.in.hs.length)
			}

		case hsPaused:
			// the record layer never switches epochs while a message is
			// being continued
			if l.in.hs.epoch != in.Epoch {
				return record.TypeNone, mpserrors.ErrInternal
			}

		default:
			// an active message is reflected in in.state, checked above
			return record.TypeNone, mpserrors.ErrInternal
		}

		if err := l.in.hs.rdExt.Attach(in.Reader); err != nil {
			return record.TypeNone, err
		}
		l.in.hs.epoch = in.Epoch
		l.in.hs.state = hsActive

	default:
		return record.TypeNone, mpserrors.ErrInternal
	}

	l.in.raw = in.Reader
	l.in.epoch = in.Epoch
	l.in.state = in.Type
	return in.Type, nil
}

// ReadConsume closes the current incoming channel, checking that a
// handshake message was fully processed.
func (l *Layer) ReadConsume() error {
	switch l.in.state {
	case record.TypeHandshake:
		if l.in.hs.rdExt.CheckDone() != nil {
			return mpserrors.ErrUnfinishedMessage
		}
		if err := l.in.hs.rdExt.Detach(); err != nil {
			return err
		}
		l.in.hs.rdExt.Init(0)

	case record.TypeAlert, record.TypeCCS, record.TypeApplicationData:
		// contents were committed by the parsing functions (alert, CCS)
		// or by the application (app data)

	case record.TypeNone:
		return mpserrors.ErrOperationUnexpected

	default:
		return mpserrors.ErrInternal
	}

	// drop the borrowed reader before ReadDone invalidates it
	l.in.raw = nil
	if err := l.l2.ReadDone(); err != nil {
		return err
	}

	if l.in.state == record.TypeHandshake {
		l.in.hs.state = hsNone
	}
	l.in.state = record.TypeNone
	return nil
}

// ReadPauseHandshake suspends the processing of an incoming handshake
// message until its next fragment arrives. Stream transports only.
func (l *Layer) ReadPauseHandshake() error {
	if l.datagram() {
		return mpserrors.ErrOperationUnexpected
	}
	if l.in.state != record.TypeHandshake || l.in.hs.state != hsActive {
		return mpserrors.ErrOperationUnexpected
	}

	if err := l.in.hs.rdExt.Detach(); err != nil {
		return err
	}

	l.in.raw = nil
	if err := l.l2.ReadDone(); err != nil {
		return err
	}

	l.in.state = record.TypeNone
	l.in.hs.state = hsPaused
	return nil
}

func (l *Layer) ReadHandshake() (HandshakeIn, error) {
	if l.in.state != record.TypeHandshake || l.in.hs.state != hsActive {
		return HandshakeIn{}, mpserrors.ErrOperationUnexpected
	}
	hs := HandshakeIn{
		Epoch:  l.in.epoch,
		Type:   l.in.hs.typ,
		Len:    l.in.hs.length,
		Reader: &l.in.hs.rdExt,
	}
	if l.datagram() {
		hs.SeqNr = l.in.hs.seqNr
		hs.FragOffset = l.in.hs.fragOffset
		hs.FragLen = l.in.hs.fragLen
	}
	return hs, nil
}

func (l *Layer) ReadAlert() (AlertIn, error) {
	if l.in.state != record.TypeAlert {
		return AlertIn{}, mpserrors.ErrOperationUnexpected
	}
	return AlertIn{Epoch: l.in.epoch, Alert: l.in.alert}, nil
}

func (l *Layer) ReadCCS() (CCSIn, error) {
	if l.in.state != record.TypeCCS {
		return CCSIn{}, mpserrors.ErrOperationUnexpected
	}
	return CCSIn{Epoch: l.in.epoch}, nil
}

func (l *Layer) ReadApp() (AppIn, error) {
	if l.in.state != record.TypeApplicationData {
		return AppIn{}, mpserrors.ErrOperationUnexpected
	}
	return AppIn{Epoch: l.in.epoch, Reader: l.in.raw}, nil
}

func (l *Layer) parseAlert(rd *stream.Reader) error {
	buf, err := rd.Get(record.AlertSize)
	if err != nil {
		return err
	}
	if err := rd.Commit(); err != nil {
		return err
	}
	if err := l.in.alert.Parse(buf); err != nil {
		return mpserrors.ErrInvalidContent
	}
	return nil
}

func (l *Layer) parseCCS(rd *stream.Reader) error {
	buf, err := rd.Get(record.CCSSize)
	if err != nil {
		return err
	}
	if err := rd.Commit(); err != nil {
		return err
	}
	if err := record.ParseCCS(buf); err != nil {
		return mpserrors.ErrInvalidContent
	}
	return nil
}

func (l *Layer) parseHandshakeHeader(rd *stream.Reader) error {
	buf, err := rd.Get(l.headerSize())
	if err != nil {
		return err
	}
	if err := rd.Commit(); err != nil {
		return err
	}

	if l.datagram() {
		var hdr record.HandshakeHeaderDTLS
		if err := hdr.Parse(buf); err != nil {
			return mpserrors.ErrInvalidContent
		}
		l.in.hs.typ = hdr.MsgType
		l.in.hs.length = safecast.Cast[int](hdr.Length)
		l.in.hs.seqNr = hdr.MessageSeq
		l.in.hs.fragOffset = safecast.Cast[int](hdr.FragmentOffset)
		l.in.hs.fragLen = safecast.Cast[int](hdr.FragmentLength)
		return nil
	}

	var hdr record.HandshakeHeaderTLS
	if err := hdr.Parse(buf); err != nil {
		return mpserrors.ErrInvalidContent
	}
	l.in.hs.typ = hdr.MsgType
	l.in.hs.length = safecast.Cast[int](hdr.Length)
	return nil
}
