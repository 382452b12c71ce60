// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

// Package layer3 drives record-content framing on top of a record layer:
// it parses and emits handshake, alert and change_cipher_spec content,
// splitting a handshake message across records (stream transports) or
// carrying explicit fragment headers (datagram transports).
//
// The two halves are independent: each serializes its operations through
// its own state variable. Progress that depends on the transport is
// signalled by returning mpserrors.ErrRetry, or mpserrors.ErrWantRead
// passed up from the record layer when no record is available; no call
// ever blocks.
package layer3

import (
	"github.com/hrissan/mps/layer2"
	"github.com/hrissan/mps/record"
	"github.com/hrissan/mps/stream"
)

// Protocol selects the transport flavor of the connection.
type Protocol byte

const (
	ProtocolTLS  Protocol = iota // stream, messages split implicitly
	ProtocolDTLS                 // datagram, fragments carry explicit headers
)

type Config struct {
	Protocol Protocol
	// permit dispatching other content while a handshake message is
	// paused on the outgoing half
	AllowInterleaving bool
}

type hsState byte

const (
	hsNone hsState = iota
	hsActive
	hsPaused
)

type hsIn struct {
	state hsState
	rdExt stream.ExtReader

	epoch      record.Epoch
	typ        byte
	length     int
	seqNr      uint16
	fragOffset int
	fragLen    int
}

type hsOut struct {
	state hsState
	wrExt stream.ExtWriter

	epoch      record.Epoch
	typ        byte
	length     int // stream.SizeUnknown until learned
	seqNr      uint16
	fragOffset int
	fragLen    int // stream.SizeUnknown until learned

	// header space reserved before the lengths were known, backfilled on
	// dispatch; nil once written
	hdr []byte
}

type inHalf struct {
	state record.ContentType // TypeNone when no channel is open
	raw   *stream.Reader     // borrowed from the record layer while open
	epoch record.Epoch
	hs    hsIn
	alert record.Alert
}

type outHalf struct {
	state    record.ContentType
	raw      *stream.Writer
	epoch    record.Epoch
	clearing bool // flush the record layer before the next dispatch
	hs       hsOut
}

// Layer owns the per-half framing state and mediates every interaction
// with the record layer below.
type Layer struct {
	cfg Config
	l2  layer2.Layer

	in  inHalf
	out outHalf
}

func New(l2 layer2.Layer, cfg Config) *Layer {
	return &Layer{cfg: cfg, l2: l2}
}

func (l *Layer) datagram() bool { return l.cfg.Protocol == ProtocolDTLS }

func (l *Layer) headerSize() int {
	if l.datagram() {
		return record.HandshakeHeaderSizeDTLS
	}
	return record.HandshakeHeaderSizeTLS
}
