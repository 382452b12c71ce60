// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

// Package stream decouples a provider of fixed-size buffers from a
// consumer of variable-size chunks. A Writer splices consumer writes
// across provider buffers, absorbing overflow in an optional queue; a
// Reader splices consumer reads across provider fragments, backing up
// interrupted requests in an optional accumulator. The Ext variants
// impose logical message bounds and nested groups on top.
package stream

import "math"

// SizeUnknown defers a length until the corresponding bytes have been
// committed. Only valid where explicitly documented.
const SizeUnknown = -1

// MaxGroups bounds group nesting in ExtWriter and ExtReader.
// Statically sufficient for the record content protocols driven on top.
const MaxGroups = 5

// internal end offset of a root group with unknown size
const unbounded = math.MaxInt
