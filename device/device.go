// SPDX-License-Identifier: GPL-2.0-only

// Package device models the host-managed device record seen by drivers.
package device

import "io"

// Device is a device record owned by the host subsystem. The framework
// never allocates one of these itself outside of registration paths; they
// are handed to callbacks by the host and wrapped in per-bus handles.
//
// The private-data slot is the single opaque field the host provides for a
// driver's context. The host serializes probe and remove per device, so
// slot access needs no locking here; that serialization is a documented
// host invariant, not something this package enforces.
type Device struct {
	name       string
	compatible string

	drvdata  any
	teardown []func()
}

// New creates a device record. compatible may be empty for devices without
// a firmware node.
func New(name, compatible string) *Device {
	return &Device{name: name, compatible: compatible}
}

// Name returns the device name the host matched or will match on.
func (d *Device) Name() string { return d.name }

// Compatible returns the firmware-node compatible string, or "" if the
// device has none.
func (d *Device) Compatible() string { return d.compatible }

// SetDrvdata transfers ownership of v into the private-data slot. Only the
// probe path (and registration paths that stand in for it) may call this,
// and only while the slot is empty.
func (d *Device) SetDrvdata(v any) {
	d.drvdata = v
}

// Drvdata returns a borrowed view of the slot without consuming it. The
// view is valid only for the dynamic extent of the callback that obtained
// it.
func (d *Device) Drvdata() any {
	return d.drvdata
}

// TakeDrvdata reclaims ownership of the slot's value and empties the slot.
// At most one reclamation matches each SetDrvdata; only the remove path
// (and failed-registration cleanup) may call this.
func (d *Device) TakeDrvdata() any {
	v := d.drvdata
	d.drvdata = nil
	return v
}

// OnTeardown registers f to run when the host tears the device down.
// Registration paths use this to tie the release of child records to the
// parent's lifetime.
func (d *Device) OnTeardown(f func()) {
	d.teardown = append(d.teardown, f)
}

// Teardown runs the registered teardown hooks in reverse registration
// order and discards them. The host invokes it exactly once, after the
// driver's remove callback has returned.
func (d *Device) Teardown() {
	hooks := d.teardown
	d.teardown = nil
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// Finalize releases driver-owned data reclaimed from a slot. Data that
// holds no resources implements nothing and is simply dropped.
func Finalize(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}
