// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package layer2

import (
	"github.com/hrissan/mps/mpserrors"
	"github.com/hrissan/mps/protect"
	"github.com/hrissan/mps/record"
	"github.com/hrissan/mps/stream"
)

// Record is one finished record travelling between two memory endpoints.
type Record struct {
	Type    record.ContentType
	Epoch   record.Epoch
	Seq     uint64
	Payload []byte
	Sealed  bool
}

type MemConfig struct {
	// payload capacity of one outgoing record
	RecordSize int
	// overflow queue for content types whose messages may span records
	QueueSize int
	// read-side accumulator for requests interrupted at a record boundary
	AccSize int
	// datagram transports never split outgoing messages across records:
	// no content spills through the queue; the read half does not consult
	// this setting
	Datagram bool
	// optional per-epoch record protection
	Protection *protect.Protection
}

// Mem is an in-memory record layer: outgoing records accumulate until
// flushed, Deliver moves them into the peer's incoming queue. Consecutive
// writes of the same type and epoch merge into one record.
type Mem struct {
	cfg MemConfig

	// write half
	wrQueued stream.Writer // for pausable content, absorbs overflow
	wrPlain  stream.Writer // for everything else
	outOpen  bool          // writer borrowed between WriteStart/WriteDone
	recOpen  bool
	outType  record.ContentType
	outEpoch record.Epoch
	outBuf   []byte
	outSeq   map[record.Epoch]uint64
	closed   []Record // finished, not yet flushed
	flushed  []Record // awaiting Deliver

	// read half
	rd          stream.Reader
	inQueue     []Record
	inOpen      bool
	inPaused    bool
	inRemaining bool // record partially consumed, reader still holds the rest
	inType      record.ContentType
	inEpoch     record.Epoch
}

func NewMem(cfg MemConfig) *Mem {
	m := &Mem{cfg: cfg, outSeq: map[record.Epoch]uint64{}}
	m.wrQueued.Init(make([]byte, cfg.QueueSize))
	m.wrPlain.Init(nil)
	m.rd.Init(make([]byte, cfg.AccSize))
	return m
}

// pausable content gets the queue-backed writer so that a message can
// spill over into the next record; datagram transports never spill
func (m *Mem) writerFor(t record.ContentType) *stream.Writer {
	if !m.cfg.Datagram && t.Pausable() && m.cfg.QueueSize > 0 {
		return &m.wrQueued
	}
	return &m.wrPlain
}

func (m *Mem) WriteStart(t record.ContentType, epoch record.Epoch) (*stream.Writer, error) {
	if m.outOpen {
		return nil, mpserrors.ErrOperationUnexpected
	}
	if !t.Valid() {
		return nil, mpserrors.ErrInvalidArg
	}

	if m.recOpen && (t != m.outType || epoch != m.outEpoch) {
		if err := m.settleRecord(true); err != nil {
			return nil, err
		}
	}
	if !m.recOpen {
		if err := m.openRecord(t, epoch); err != nil {
			return nil, err
		}
	}

	m.outOpen = true
	return m.writerFor(m.outType), nil
}

func (m *Mem) WriteDone() error {
	if !m.outOpen {
		return mpserrors.ErrOperationUnexpected
	}
	m.outOpen = false
	return m.settleRecord(false)
}

func (m *Mem) WriteFlush() error {
	if m.outOpen {
		return mpserrors.ErrOperationUnexpected
	}
	if m.recOpen {
		if err := m.settleRecord(true); err != nil {
			return err
		}
	}
	for i := range m.closed {
		rec := &m.closed[i]
		if keys := m.cfg.Protection.Keys(rec.Epoch); keys != nil {
			rec.Payload = keys.Seal(rec.Type, rec.Epoch, rec.Seq, rec.Payload)
			rec.Sealed = true
		}
	}
	m.flushed = append(m.flushed, m.closed...)
	m.closed = nil
	return nil
}

// Deliver moves all flushed records into the peer's incoming queue.
func (m *Mem) Deliver(peer *Mem) {
	peer.inQueue = append(peer.inQueue, m.flushed...)
	m.flushed = nil
}

// Enqueue appends a record received out of band to the incoming queue.
// Peers are free to fragment content differently than this write half
// would, so tests and relays can hand-craft record boundaries.
func (m *Mem) Enqueue(rec Record) {
	m.inQueue = append(m.inQueue, rec)
}

// Flushed reports the records flushed so far without delivering them.
func (m *Mem) Flushed() []Record {
	return m.flushed
}

func (m *Mem) openRecord(t record.ContentType, epoch record.Epoch) error {
	buf := make([]byte, m.cfg.RecordSize)
	// the queue was fully drained when the previous record was settled
	if err := m.writerFor(t).Feed(buf); err != nil {
		return err
	}
	m.recOpen = true
	m.outType = t
	m.outEpoch = epoch
	m.outBuf = buf
	return nil
}

// settleRecord reclaims the output buffer from the writer. With force
// false a partially filled record stays open for merging, with fetched
// but uncommitted bytes dropped; a full or spilling record is emitted and
// the spill drained into fresh record buffers, the last of which stays
// open for merging (or is emitted too, when forcing).
func (m *Mem) settleRecord(force bool) error {
	wr := m.writerFor(m.outType)
	written, queued, err := wr.Reclaim(force)
	if err == mpserrors.ErrDataLeft {
		return nil
	}
	if err != nil {
		return err
	}
	m.emit(m.outBuf[:written])
	m.recOpen = false
	m.outBuf = nil

	for queued > 0 {
		buf := make([]byte, m.cfg.RecordSize)
		err := wr.Feed(buf)
		if err == mpserrors.ErrNeedMore {
			m.emit(buf)
			continue
		}
		if err != nil {
			return err
		}
		if !force {
			// the queue tail becomes the start of the next open record
			m.recOpen = true
			m.outBuf = buf
			break
		}
		written, queued, err = wr.Reclaim(true)
		if err != nil {
			return err
		}
		if queued != 0 {
			panic("record layer drained the queue but the writer kept spilling")
		}
		m.emit(buf[:written])
	}
	return nil
}

func (m *Mem) emit(payload []byte) {
	if len(payload) == 0 {
		return
	}
	seq := m.outSeq[m.outEpoch]
	m.outSeq[m.outEpoch] = seq + 1
	m.closed = append(m.closed, Record{
		Type:    m.outType,
		Epoch:   m.outEpoch,
		Seq:     seq,
		Payload: payload,
	})
}

func (m *Mem) ReadStart() (In, error) {
	if m.inOpen {
		return In{}, mpserrors.ErrOperationUnexpected
	}

	// a record may carry several messages, serve the rest of it first
	if m.inRemaining {
		m.inRemaining = false
		m.inOpen = true
		return In{Type: m.inType, Epoch: m.inEpoch, Reader: &m.rd}, nil
	}

	for {
		if len(m.inQueue) == 0 {
			return In{}, mpserrors.ErrWantRead
		}
		rec := m.inQueue[0]
		m.inQueue = m.inQueue[1:]

		payload := rec.Payload
		if rec.Sealed {
			keys := m.cfg.Protection.Keys(rec.Epoch)
			if keys == nil {
				return In{}, protect.ErrDeprotectionFailed
			}
			var err error
			payload, err = keys.Open(rec.Type, rec.Epoch, rec.Seq, payload)
			if err != nil {
				return In{}, err
			}
		}

		if len(payload) == 0 {
			// empty CCS records are silently skipped, they never reach
			// the framing driver
			if rec.Type == record.TypeCCS {
				continue
			}
			return In{}, mpserrors.ErrInvalidContent
		}

		if m.inPaused && (rec.Type != m.inType || rec.Epoch != m.inEpoch) {
			return In{}, mpserrors.ErrInvalidContent
		}

		err := m.rd.Feed(payload)
		if err == mpserrors.ErrNeedMore {
			// the whole record went into the accumulator, the
			// interrupted request is still not satisfied
			m.inPaused = true
			m.inType = rec.Type
			m.inEpoch = rec.Epoch
			continue
		}
		if err != nil {
			return In{}, err
		}

		m.inPaused = false
		m.inType = rec.Type
		m.inEpoch = rec.Epoch
		m.inOpen = true
		return In{Type: rec.Type, Epoch: rec.Epoch, Reader: &m.rd}, nil
	}
}

func (m *Mem) ReadDone() error {
	if !m.inOpen {
		return mpserrors.ErrOperationUnexpected
	}
	paused, err := m.rd.Reclaim()
	if err == mpserrors.ErrDataLeft {
		m.inRemaining = true
		m.inOpen = false
		return nil
	}
	if err != nil {
		return err
	}
	m.inPaused = paused
	m.inOpen = false
	return nil
}
