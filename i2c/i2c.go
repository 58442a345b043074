// SPDX-License-Identifier: GPL-2.0-only

// Package i2c binds type-checked I2C drivers to the host bus core.
//
// The host core drives drivers through a registration record holding plain
// callbacks and matches devices against flat raw id arrays. This package
// owns the translation in both directions: id tables encode into the raw
// layout the core consumes, and the adapter's trampolines re-dispatch the
// core's callbacks into a concrete Driver implementation.
package i2c

import (
	"github.com/efficientgo/core/errors"

	"github.com/mlilabs/devbind/idtable"
)

// NameSize is the fixed capacity of the raw record's name buffer, trailing
// NUL included.
const NameSize = 20

// DeviceID is an I2C device identity. I2C devices match by name.
type DeviceID struct {
	Name string
}

// RawID is the host's raw I2C device id record. DriverData is the reserved
// field carrying the per-entry context slot.
type RawID struct {
	Name       [NameSize]byte
	DriverData uintptr
}

// Slot returns the reserved field.
func (r RawID) Slot() uintptr { return r.DriverData }

// Encode converts the identity into its raw record, stamping slot into the
// reserved field. It fails if the name does not leave room for the
// trailing NUL.
func (id DeviceID) Encode(slot uintptr) (RawID, error) {
	var r RawID
	if len(id.Name) >= NameSize {
		return r, errors.Newf("device name %q exceeds %d bytes", id.Name, NameSize-1)
	}
	copy(r.Name[:], id.Name)
	r.DriverData = slot
	return r, nil
}

// IDTable is an I2C device id table carrying per-entry context of type C.
type IDTable[C any] = idtable.Table[RawID, C]

// IDTableEntry is one (identity, optional context) pair of an IDTable.
type IDTableEntry[C any] struct {
	ID   DeviceID
	Info *C
}

// NewIDTable builds an I2C device id table. Entry order is preserved in
// the raw array; the core relies on it for first-match semantics.
func NewIDTable[C any](entries ...IDTableEntry[C]) (*IDTable[C], error) {
	generic := make([]idtable.Entry[RawID, C], len(entries))
	for i, e := range entries {
		generic[i] = idtable.Entry[RawID, C]{ID: e.ID, Info: e.Info}
	}
	return idtable.New(generic...)
}

// MatchID runs the host's first-match lookup of a client name against a
// raw table, stopping at the terminator.
func MatchID(raw []RawID, name string) *RawID {
	var zero RawID
	for i := range raw {
		if raw[i] == zero {
			return nil
		}
		if nameEqual(raw[i].Name, name) {
			return &raw[i]
		}
	}
	return nil
}

func nameEqual(buf [NameSize]byte, s string) bool {
	if len(s) >= NameSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		if buf[i] != s[i] {
			return false
		}
	}
	return buf[len(s)] == 0
}
