// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package record

import (
	"errors"

	"github.com/hrissan/mps/format"
)

var ErrAlertLevelParsing = errors.New("alert level failed to parse")

const AlertSize = 2

const (
	// we use 0 as "no alert" indicator
	AlertLevelWarning = 1
	AlertLevelFatal   = 2
)

type Alert struct {
	Level       byte
	Description byte
}

func (msg *Alert) IsFatal() bool {
	return msg.Level == AlertLevelFatal
}

func AlertCloseNormal() Alert { return Alert{Level: AlertLevelFatal, Description: 0} }

func (msg *Alert) Parse(body []byte) (err error) {
	offset := 0
	var level byte
	if offset, level, err = format.ParserReadByte(body, offset); err != nil {
		return err
	}
	switch level {
	case AlertLevelWarning, AlertLevelFatal:
		msg.Level = level
	default:
		return ErrAlertLevelParsing
	}
	if offset, msg.Description, err = format.ParserReadByte(body, offset); err != nil {
		return err
	}
	return format.ParserReadFinish(body, offset)
}

// Put writes the alert into a buffer of exactly AlertSize bytes.
func (msg *Alert) Put(body []byte) {
	switch msg.Level {
	case AlertLevelWarning, AlertLevelFatal:
		body[0] = msg.Level
		body[1] = msg.Description
	default:
		panic("should not write alert with level not in standard")
	}
}
