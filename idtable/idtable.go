// SPDX-License-Identifier: GPL-2.0-only

// Package idtable builds the flat device-id record arrays consumed by the
// host's match routines and resolves per-entry context after a match.
//
// The host understands only a fixed-size record layout with one reserved
// integer field per record. Context attached to an entry lives in a side
// arena owned by the table; the reserved field carries a 1-based arena
// index (zero meaning "no context"). The index is only meaningful for the
// table that produced the record and must never be decoded against another
// table instance.
package idtable

import (
	"github.com/efficientgo/core/errors"
)

// Identity is a device identity that can encode itself into the host's raw
// record format R. Encode stamps slot into the record's reserved field and
// fails if the identity does not fit the record's fixed capacity. Encoding
// errors are construction-time errors: a table containing an oversized
// identity is never produced.
type Identity[R any] interface {
	Encode(slot uintptr) (R, error)
}

// RawRecord constrains the host record layouts usable with Table. The
// all-zero value of R is the terminator sentinel ending every raw array;
// Slot returns the value of the record's reserved field.
type RawRecord interface {
	comparable
	Slot() uintptr
}

// Entry pairs a device identity with optional per-entry context. A nil Info
// yields a zero reserved field in the encoded record.
type Entry[R RawRecord, C any] struct {
	ID   Identity[R]
	Info *C
}

// Table is an immutable device-id table. Entries keep their input order in
// the raw array, which hosts rely on for first-match semantics.
type Table[R RawRecord, C any] struct {
	raw []R
	ctx []*C
}

// New encodes the given entries into a table. It fails iff some identity's
// encoded form exceeds the raw record's fixed capacity.
func New[R RawRecord, C any](entries ...Entry[R, C]) (*Table[R, C], error) {
	t := &Table[R, C]{
		raw: make([]R, 0, len(entries)+1),
		ctx: make([]*C, len(entries)),
	}
	for i, e := range entries {
		var slot uintptr
		if e.Info != nil {
			t.ctx[i] = e.Info
			slot = uintptr(i + 1)
		}
		rec, err := e.ID.Encode(slot)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode id table entry %d", i)
		}
		t.raw = append(t.raw, rec)
	}
	var terminator R
	t.raw = append(t.raw, terminator)
	return t, nil
}

// Raw returns the flat record array, terminator included. The slice is
// shared with the table and must not be mutated.
func (t *Table[R, C]) Raw() []R {
	return t.raw
}

// Len returns the number of entries, not counting the terminator.
func (t *Table[R, C]) Len() int {
	return len(t.ctx)
}

// Info resolves the per-entry context for a record handed back by the
// host's match routine. A nil record, the terminator, or an entry built
// without context all yield nil; resolution never fails for a record that
// belongs to this table.
func (t *Table[R, C]) Info(rec *R) *C {
	if rec == nil {
		return nil
	}
	slot := (*rec).Slot()
	if slot == 0 || int(slot) > len(t.ctx) {
		return nil
	}
	return t.ctx[slot-1]
}
