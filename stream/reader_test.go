// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package stream_test

import (
	"bytes"
	"testing"

	"github.com/hrissan/mps/mpserrors"
	"github.com/hrissan/mps/stream"
)

func TestReaderBasic(t *testing.T) {
	var r stream.Reader
	r.Init(nil)

	if _, err := r.Get(1); err != mpserrors.ErrOperationUnexpected {
		t.Fatalf("get while producing: %v", err)
	}
	if err := r.Feed([]byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	buf, err := r.Get(3)
	if err != nil || !bytes.Equal(buf, []byte{1, 2, 3}) {
		t.Fatalf("get: % x, %v", buf, err)
	}
	if err := r.Commit(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Reclaim(); err != mpserrors.ErrDataLeft {
		t.Fatalf("reclaim with data left: %v", err)
	}
	buf, err = r.GetUpTo(10)
	if err != nil || !bytes.Equal(buf, []byte{4, 5}) {
		t.Fatalf("truncated get: % x, %v", buf, err)
	}
	if err := r.Commit(); err != nil {
		t.Fatal(err)
	}
	paused, err := r.Reclaim()
	if err != nil || paused {
		t.Fatalf("reclaim: paused %v err %v", paused, err)
	}
}

// Uncommitted reads are handed out again after an un-forced reclaim
// failure, committed ones are not.
func TestReaderUncommittedReread(t *testing.T) {
	var r stream.Reader
	r.Init(nil)
	if err := r.Feed([]byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(2); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Reclaim(); err != mpserrors.ErrDataLeft {
		t.Fatalf("reclaim: %v", err)
	}
	buf, err := r.Get(2)
	if err != nil || !bytes.Equal(buf, []byte{1, 2}) {
		t.Fatalf("reread: % x, %v", buf, err)
	}
}

// An interrupted request is backed up into the accumulator and continues
// seamlessly in the next fragment.
func TestReaderPauseAcrossFragments(t *testing.T) {
	var r stream.Reader
	r.Init(make([]byte, 16))

	if err := r.Feed([]byte{0x02}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(2); err != mpserrors.ErrOutOfData {
		t.Fatalf("get across boundary: %v", err)
	}
	paused, err := r.Reclaim()
	if err != nil || !paused {
		t.Fatalf("reclaim: paused %v err %v", paused, err)
	}

	if err := r.Feed([]byte{0x51}); err != nil {
		t.Fatal(err)
	}
	buf, err := r.Get(2)
	if err != nil || !bytes.Equal(buf, []byte{0x02, 0x51}) {
		t.Fatalf("continued get: % x, %v", buf, err)
	}
	if err := r.Commit(); err != nil {
		t.Fatal(err)
	}
	paused, err = r.Reclaim()
	if err != nil || paused {
		t.Fatalf("final reclaim: paused %v err %v", paused, err)
	}
}

// Tiny fragments keep feeding the accumulator until the request is
// satisfied.
func TestReaderFeedNeedMore(t *testing.T) {
	var r stream.Reader
	r.Init(make([]byte, 16))

	if err := r.Feed([]byte{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(4); err != mpserrors.ErrOutOfData {
		t.Fatalf("get: %v", err)
	}
	if paused, err := r.Reclaim(); err != nil || !paused {
		t.Fatalf("reclaim: %v", err)
	}

	if err := r.Feed([]byte{2}); err != mpserrors.ErrNeedMore {
		t.Fatalf("feed 1/3: %v", err)
	}
	if err := r.Feed([]byte{3}); err != mpserrors.ErrNeedMore {
		t.Fatalf("feed 2/3: %v", err)
	}
	if err := r.Feed([]byte{4, 5}); err != nil {
		t.Fatalf("feed 3/3: %v", err)
	}

	buf, err := r.Get(4)
	if err != nil || !bytes.Equal(buf, []byte{1, 2, 3, 4}) {
		t.Fatalf("continued get: % x, %v", buf, err)
	}
	buf, err = r.Get(1)
	if err != nil || !bytes.Equal(buf, []byte{5}) {
		t.Fatalf("fragment tail: % x, %v", buf, err)
	}
	if err := r.Commit(); err != nil {
		t.Fatal(err)
	}
	if paused, err := r.Reclaim(); err != nil || paused {
		t.Fatalf("final reclaim: %v", err)
	}
}

// Only the exact repetition of the interrupted request may span the
// accumulator end.
func TestReaderInconsistentRequest(t *testing.T) {
	var r stream.Reader
	r.Init(make([]byte, 16))

	if err := r.Feed([]byte{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(2); err != mpserrors.ErrOutOfData {
		t.Fatalf("get: %v", err)
	}
	if _, err := r.Reclaim(); err != nil {
		t.Fatal(err)
	}
	if err := r.Feed([]byte{2}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(3); err != mpserrors.ErrInconsistentRead {
		t.Fatalf("grown request: %v", err)
	}
	// the exact request still works
	if _, err := r.Get(2); err != nil {
		t.Fatal(err)
	}
}

func TestReaderPauseNeedsAccumulator(t *testing.T) {
	var r stream.Reader
	r.Init(nil)
	if err := r.Feed([]byte{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(2); err != mpserrors.ErrOutOfData {
		t.Fatalf("get: %v", err)
	}
	if _, err := r.Reclaim(); err != mpserrors.ErrNoAccumulator {
		t.Fatalf("reclaim: %v", err)
	}
}

func TestReaderAccumulatorTooSmall(t *testing.T) {
	var r stream.Reader
	r.Init(make([]byte, 2))
	if err := r.Feed([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(5); err != mpserrors.ErrOutOfData {
		t.Fatalf("get: %v", err)
	}
	if _, err := r.Reclaim(); err != mpserrors.ErrAccumulatorTooSmall {
		t.Fatalf("reclaim: %v", err)
	}
}

// Committing inside the accumulator drops the committed prefix so the
// space can be reused.
func TestReaderCommitShiftsAccumulator(t *testing.T) {
	var r stream.Reader
	r.Init(make([]byte, 4))

	if err := r.Feed([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(4); err != mpserrors.ErrOutOfData {
		t.Fatalf("get: %v", err)
	}
	if paused, err := r.Reclaim(); err != nil || !paused {
		t.Fatalf("reclaim: %v", err)
	}
	if err := r.Feed([]byte{4, 5, 6}); err != nil {
		t.Fatal(err)
	}
	buf, err := r.Get(4)
	if err != nil || !bytes.Equal(buf, []byte{1, 2, 3, 4}) {
		t.Fatalf("continued get: % x, %v", buf, err)
	}
	if err := r.Commit(); err != nil {
		t.Fatal(err)
	}
	buf, err = r.Get(2)
	if err != nil || !bytes.Equal(buf, []byte{5, 6}) {
		t.Fatalf("tail: % x, %v", buf, err)
	}
	if err := r.Commit(); err != nil {
		t.Fatal(err)
	}
	if paused, err := r.Reclaim(); err != nil || paused {
		t.Fatalf("final reclaim: %v", err)
	}
}
