// SPDX-License-Identifier: GPL-2.0-only

// Package of provides firmware-node (open firmware) device identities and
// their fixed-size raw record layout.
package of

import (
	"github.com/efficientgo/core/errors"

	"github.com/mlilabs/devbind/device"
	"github.com/mlilabs/devbind/idtable"
)

// CompatibleSize is the fixed capacity of the raw record's compatible
// buffer, trailing NUL included.
const CompatibleSize = 128

// DeviceID identifies a device by its firmware-node compatible string,
// e.g. "mlilabs,emc".
type DeviceID struct {
	Compatible string
}

// RawID is the host's raw open-firmware id record. Data is the reserved
// field carrying the per-entry context slot.
type RawID struct {
	Compatible [CompatibleSize]byte
	Data       uintptr
}

// Slot returns the reserved field.
func (r RawID) Slot() uintptr { return r.Data }

// Encode converts the identity into its raw record, stamping slot into the
// reserved field. It fails if the compatible string does not leave room
// for the trailing NUL.
func (id DeviceID) Encode(slot uintptr) (RawID, error) {
	var r RawID
	if len(id.Compatible) >= CompatibleSize {
		return r, errors.Newf("compatible %q exceeds %d bytes", id.Compatible, CompatibleSize-1)
	}
	copy(r.Compatible[:], id.Compatible)
	r.Data = slot
	return r, nil
}

// Table is an open-firmware id table carrying per-entry context of type C.
type Table[C any] = idtable.Table[RawID, C]

// Entry is one (identity, optional context) pair of a Table.
type Entry[C any] struct {
	ID   DeviceID
	Info *C
}

// NewTable builds an open-firmware id table. Entry order is preserved in
// the raw array.
func NewTable[C any](entries ...Entry[C]) (*Table[C], error) {
	generic := make([]idtable.Entry[RawID, C], len(entries))
	for i, e := range entries {
		generic[i] = idtable.Entry[RawID, C]{ID: e.ID, Info: e.Info}
	}
	return idtable.New(generic...)
}

// Match runs the host's first-match lookup of a device's compatible string
// against a raw table, stopping at the terminator. It returns nil when the
// device has no firmware node or nothing matches.
func Match(raw []RawID, dev *device.Device) *RawID {
	if dev == nil || dev.Compatible() == "" {
		return nil
	}
	var zero RawID
	for i := range raw {
		if raw[i] == zero {
			return nil
		}
		if compatibleEqual(raw[i].Compatible, dev.Compatible()) {
			return &raw[i]
		}
	}
	return nil
}

func compatibleEqual(buf [CompatibleSize]byte, s string) bool {
	if len(s) >= CompatibleSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		if buf[i] != s[i] {
			return false
		}
	}
	return buf[len(s)] == 0
}
