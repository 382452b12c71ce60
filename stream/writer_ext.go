// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package stream

import (
	"github.com/hrissan/mps/mpserrors"
)

// PassMode governs whether ExtWriter commits propagate to the underlying
// writer immediately or are merely accounted.
type PassMode byte

const (
	// Pass forwards every commit to the underlying writer.
	Pass PassMode = iota
	// Hold keeps commits local, for messages whose header can only be
	// written once the final length is known. A partial commit in Hold
	// mode latches the writer into a blocked state until detach.
	Hold

	blocked
)

// ExtWriter imposes a total logical size and a stack of nested group
// bounds over an attached Writer. The root group is always present.
//
// ofsCommit <= ofsFetch <= grpEnd[curGrp] <= ... <= grpEnd[0] holds
// throughout.
type ExtWriter struct {
	wr        *Writer // nil while detached
	grpEnd    [MaxGroups]int
	curGrp    int
	ofsFetch  int
	ofsCommit int
	mode      PassMode
}

// Init sets up a detached writer over a logical stream of the given total
// size. Pass SizeUnknown if the size is only learned while writing.
func (e *ExtWriter) Init(size int) {
	*e = ExtWriter{}
	if size == SizeUnknown {
		e.grpEnd[0] = unbounded
	} else {
		e.grpEnd[0] = size
	}
}

// Attach binds an underlying writer. The borrow is exclusive until Detach.
func (e *ExtWriter) Attach(wr *Writer, mode PassMode) error {
	if e.wr != nil {
		return mpserrors.ErrOperationUnexpected
	}
	if mode != Pass && mode != Hold {
		return mpserrors.ErrInvalidArg
	}
	e.mode = mode
	e.wr = wr
	return nil
}

// Detach unbinds the underlying writer and reports how many logical bytes
// were committed and how many were fetched but not committed. Uncommitted
// bytes are dropped from the logical accounting.
func (e *ExtWriter) Detach() (committed, uncommitted int, err error) {
	if e.wr == nil {
		return 0, 0, mpserrors.ErrOperationUnexpected
	}
	committed = e.ofsCommit
	uncommitted = e.ofsFetch - e.ofsCommit
	e.ofsFetch = e.ofsCommit
	e.wr = nil
	return committed, uncommitted, nil
}

// Get hands out exactly desired bytes, failing with ErrBoundsViolation if
// the request exceeds the innermost group bound.
func (e *ExtWriter) Get(desired int) ([]byte, error) {
	return e.get(desired, false)
}

// GetUpTo is Get with permission to return fewer bytes when the
// underlying writer runs short.
func (e *ExtWriter) GetUpTo(desired int) ([]byte, error) {
	return e.get(desired, true)
}

func (e *ExtWriter) get(desired int, upTo bool) ([]byte, error) {
	if e.wr == nil {
		return nil, mpserrors.ErrOperationUnexpected
	}
	if e.mode == blocked {
		return nil, mpserrors.ErrOperationUnexpected
	}
	logicAvail := e.grpEnd[e.curGrp] - e.ofsFetch
	if desired > logicAvail {
		return nil, mpserrors.ErrBoundsViolation
	}
	buf, err := e.wr.get(desired, upTo)
	if err != nil {
		return nil, err
	}
	e.ofsFetch += len(buf)
	return buf, nil
}

func (e *ExtWriter) Commit() error {
	return e.CommitPartial(0)
}

func (e *ExtWriter) CommitPartial(omit int) error {
	if e.wr == nil {
		return mpserrors.ErrOperationUnexpected
	}
	if e.mode == blocked {
		return mpserrors.ErrOperationUnexpected
	}
	if omit < 0 || omit > e.ofsFetch-e.ofsCommit {
		return mpserrors.ErrBoundsViolation
	}

	e.ofsCommit = e.ofsFetch - omit

	if e.mode == Pass {
		if err := e.wr.CommitPartial(omit); err != nil {
			return err
		}
		e.ofsFetch = e.ofsCommit
	}
	if e.mode == Hold && omit > 0 {
		// a deferred partial commit cannot be represented twice
		e.mode = blocked
	}
	return nil
}

// GroupOpen pushes a nested logical bound of the given size starting at
// the current fetch offset.
func (e *ExtWriter) GroupOpen(size int) error {
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

// GroupClose pops the innermost group, which must have been fetched to
// its end.
func (e *ExtWriter) GroupClose() error {
	if e.grpEnd[e.curGrp] != e.ofsFetch {
		return mpserrors.ErrBoundsViolation
	}
	if e.curGrp > 0 {
		e.curGrp--
	}
	return nil
}

// CheckDone succeeds when all groups are closed and the root bound, if
// known, has been committed exactly.
func (e *ExtWriter) CheckDone() error {
	if e.curGrp > 0 {
		return mpserrors.ErrBoundsViolation
	}
	if e.grpEnd[0] != unbounded && e.ofsCommit != e.grpEnd[0] {
		return mpserrors.ErrBoundsViolation
	}
	return nil
}
