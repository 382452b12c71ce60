// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package format

import (
	"encoding/binary"
)

// Headers are sometimes written into a slice reserved long before the
// values are known, so fixed-offset Put* variants exist alongside Append*.

func Uint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func PutUint24(b []byte, v uint32) {
	if v > 0xFFFFFF {
		panic("PutUint24 value out of range")
	}
	_ = b[2]
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func AppendUint24(b []byte, v uint32) []byte {
	if v > 0xFFFFFF {
		panic("AppendUint24 value out of range")
	}
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[1:]...)
}

func AppendUint48(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	if tmp[0] != 0 || tmp[1] != 0 {
		panic("AppendUint48 value out of range")
	}
	return append(b, tmp[2:]...)
}
