// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package record

import (
	"errors"

	"github.com/hrissan/mps/format"
)

var ErrCCSValueParsing = errors.New("change_cipher_spec body must be a single 0x01 byte")

const CCSSize = 1
const CCSValue = 1

// The change_cipher_spec message carries no information, only the fixed
// value is checked. Empty CCS records never reach this parser, the record
// layer filters them.
func ParseCCS(body []byte) error {
	offset, err := format.ParserReadByteConst(body, 0, CCSValue, ErrCCSValueParsing)
	if err != nil {
		return err
	}
	return format.ParserReadFinish(body, offset)
}

func PutCCS(body []byte) {
	body[0] = CCSValue
}
