// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package stream

import (
	"github.com/hrissan/mps/mpserrors"
)

// Reader hands out read chunks from a provider-owned fragment. When a
// request cannot be satisfied at a fragment boundary, the unprocessed
// tail is backed up into an optional accumulator on Reclaim, and the next
// Feed completes the interrupted request from the following fragment.
//
// The reader is producing while frag is nil and consuming otherwise.
type Reader struct {
	frag []byte
	acc  []byte
	// bytes of acc filled with backed-up and newly fed data
	accAvail int
	// bytes still missing before the backed-up request is satisfied
	// (producing state only)
	accRemaining int
	// offset of the current fragment within the logical stream, i.e. the
	// number of accumulator bytes preceding it (consuming state only)
	fragOffset int

	commit int
	end    int
	// size of the tail of the last failed exact Get, to be collected
	// before the consumer regains control
	pending int
}

// Init resets the reader into producing state. The accumulator may be
// nil, in which case requests never survive a fragment boundary.
func (r *Reader) Init(acc []byte) {
	*r = Reader{acc: acc}
}

// Feed adopts frag as the current fragment and switches to consuming.
// If a backed-up request is outstanding, the head of frag first fills the
// accumulator; while the request remains unsatisfied Feed consumes the
// whole fragment and returns ErrNeedMore, staying in producing state.
func (r *Reader) Feed(frag []byte) error {
	if frag == nil {
		return mpserrors.ErrInvalidArg
	}
	if r.frag != nil {
		return mpserrors.ErrOperationUnexpected
	}

	if r.acc != nil {
		copyToAcc := r.accRemaining
		if copyToAcc > len(frag) {
			copyToAcc = len(frag)
		}
		copy(r.acc[r.accAvail:], frag[:copyToAcc])

		if r.accRemaining > copyToAcc {
			r.accAvail += copyToAcc
			r.accRemaining -= copyToAcc
			return mpserrors.ErrNeedMore
		}

		// the fragment prefix now exists both in the accumulator and in
		// the fragment; it is served from the accumulator so that the
		// repeated request gets one contiguous chunk
		r.fragOffset = r.accAvail
		r.accAvail += copyToAcc
		r.accRemaining = 0
	} else {
		r.fragOffset = 0
	}

	r.frag = frag
	r.commit = 0
	r.end = 0
	return nil
}

// Get hands out exactly desired bytes. At a fragment boundary it fails
// with ErrOutOfData, recording the missing tail so that Reclaim can back
// the request up into the accumulator.
func (r *Reader) Get(desired int) ([]byte, error) {
	return r.get(desired, false)
}

// GetUpTo hands out up to desired bytes, possibly fewer at a fragment
// boundary. It never records a pending request.
func (r *Reader) GetUpTo(desired int) ([]byte, error) {
	return r.get(desired, true)
}

func (r *Reader) get(desired int, upTo bool) ([]byte, error) {
	if r.frag == nil {
		return nil, mpserrors.ErrOperationUnexpected
	}
	if desired < 0 {
		return nil, mpserrors.ErrInvalidArg
	}

	fo := 0
	if r.acc != nil {
		fo = r.fragOffset
	}

	if r.end < fo {
		// still serving from the accumulator
		if fo-r.end < desired {
			// Only the exact continuation of the request interrupted
			// before pausing can span the accumulator end: it must stop
			// exactly where the accumulated data stops.
			if r.accAvail-r.end != desired {
				return nil, mpserrors.ErrInconsistentRead
			}
		}
		buf := r.acc[r.end : r.end+desired]
		r.end += desired
		r.pending = 0
		return buf, nil
	}

	fragFetched := r.end - fo
	fragRemaining := len(r.frag) - fragFetched
	if fragRemaining < desired {
		if !upTo {
			if fragRemaining > 0 {
				// remember to collect the tail before re-opening
				r.pending = desired - fragRemaining
			}
			return nil, mpserrors.ErrOutOfData
		}
		desired = fragRemaining
	}

	buf := r.frag[fragFetched : fragFetched+desired]
	r.end += desired
	r.pending = 0
	return buf, nil
}

// Commit marks everything handed out so far as processed, releasing the
// committed prefix of the accumulator.
func (r *Reader) Commit() error {
	if r.frag == nil {
		return mpserrors.ErrOperationUnexpected
	}

	if r.acc == nil {
		r.commit = r.end
		return nil
	}

	fo := r.fragOffset
	var shift, aa int
	if r.end >= fo {
		// fragment reached, accumulator contents fully processed
		shift = fo
		aa = 0
	} else {
		aa = r.accAvail
		shift = r.end
		copy(r.acc, r.acc[shift:aa])
		aa -= shift
	}

	r.end -= shift
	r.fragOffset = fo - shift
	r.accAvail = aa
	r.commit = r.end
	return nil
}

// Reclaim takes the fragment back from the consumer and switches to
// producing. Without a pending request it refuses with ErrDataLeft if
// unprocessed fragment bytes remain. With a pending request the
// unprocessed tail is backed up into the accumulator and paused=true is
// reported; the next Feed continues the interrupted request.
func (r *Reader) Reclaim() (paused bool, err error) {
	if r.frag == nil {
		return false, mpserrors.ErrOperationUnexpected
	}

	fo := 0
	if r.acc != nil {
		fo = r.fragOffset
	}
	fl := len(r.frag)

	if r.pending == 0 {
		if r.commit < fo || r.commit-fo < fl {
			r.end = r.commit
			return false, mpserrors.ErrDataLeft
		}
	} else {
		if r.acc == nil {
			return false, mpserrors.ErrNoAccumulator
		}
		al := len(r.acc)

		var backupOffset, backupLen int
		if r.commit < fo {
			// accumulator itself not fully processed, keep it whole and
			// back up the entire fragment behind it
			if al < fo+fl+r.pending {
				r.end = r.commit
				r.pending = 0
				return false, mpserrors.ErrAccumulatorTooSmall
			}
			backupOffset = 0
			backupLen = fl
		} else {
			backupOffset = r.commit
			backupLen = fl - r.commit
			if al-fo < backupLen+r.pending {
				r.end = r.commit
				r.pending = 0
				return false, mpserrors.ErrAccumulatorTooSmall
			}
		}

		copy(r.acc[fo:], r.frag[backupOffset:backupOffset+backupLen])
		r.accAvail = fo + backupLen
		r.accRemaining = r.pending
		paused = true
	}

	r.frag = nil
	r.commit = 0
	r.end = 0
	r.pending = 0
	return paused, nil
}
