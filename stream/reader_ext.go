// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package stream

import (
	"github.com/hrissan/mps/mpserrors"
)

// ExtReader imposes a total logical size and a stack of nested group
// bounds over an attached Reader. Unlike ExtWriter there is no deferred
// commit mode: reads are only accounted after the data existed.
type ExtReader struct {
	rd        *Reader // nil while detached
	grpEnd    [MaxGroups]int
	curGrp    int
	ofsFetch  int
	ofsCommit int
}

// Init sets up a detached reader over a logical stream of the given total
// size.
func (e *ExtReader) Init(size int) {
	*e = ExtReader{}
	e.grpEnd[0] = size
}

// Attach binds an underlying reader. The borrow is exclusive until Detach.
func (e *ExtReader) Attach(rd *Reader) error {
	if e.rd != nil {
		return mpserrors.ErrOperationUnexpected
	}
	e.rd = rd
	return nil
}

// Detach unbinds the underlying reader. Fetched but uncommitted bytes are
// dropped from the logical accounting, the next attach re-reads them.
func (e *ExtReader) Detach() error {
	if e.rd == nil {
		return mpserrors.ErrOperationUnexpected
	}
	e.ofsFetch = e.ofsCommit
	e.rd = nil
	return nil
}

func (e *ExtReader) Get(desired int) ([]byte, error) {
	return e.get(desired, false)
}

func (e *ExtReader) GetUpTo(desired int) ([]byte, error) {
	return e.get(desired, true)
}

func (e *ExtReader) get(desired int, upTo bool) ([]byte, error) {
	if e.rd == nil {
		return nil, mpserrors.ErrOperationUnexpected
	}
	logicAvail := e.grpEnd[e.curGrp] - e.ofsFetch
	if desired > logicAvail {
		return nil, mpserrors.ErrBoundsViolation
	}
	buf, err := e.rd.get(desired, upTo)
	if err != nil {
		return nil, err
	}
	e.ofsFetch += len(buf)
	return buf, nil
}

func (e *ExtReader) Commit() error {
	if e.rd == nil {
		return mpserrors.ErrOperationUnexpected
	}
	if err := e.rd.Commit(); err != nil {
		return err
	}
	e.ofsCommit = e.ofsFetch
	return nil
}

func (e *ExtReader) GroupOpen(size int) error {
	if e.curGrp >= MaxGroups-1 {
		return mpserrors.ErrTooManyGroups
	}
	logicAvail := e.grpEnd[e.curGrp] - e.ofsFetch
	if size < 0 || size > logicAvail {
		return mpserrors.ErrBoundsViolation
	}
	e.curGrp++
	e.grpEnd[e.curGrp] = e.ofsFetch + size
	return nil
}

func (e *ExtReader) GroupClose() error {
	if e.grpEnd[e.curGrp] != e.ofsFetch {
		return mpserrors.ErrBoundsViolation
	}
	if e.curGrp > 0 {
		e.curGrp--
	}
	return nil
}

// CheckDone succeeds when all groups are closed and the whole logical
// stream has been committed.
func (e *ExtReader) CheckDone() error {
	if e.curGrp > 0 || e.ofsCommit != e.grpEnd[0] {
		return mpserrors.ErrBoundsViolation
	}
	return nil
}
