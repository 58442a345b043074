// SPDX-License-Identifier: GPL-2.0-only

// Package rtc registers real-time clock drivers with the host RTC class.
//
// The registered data itself carries the clock operations: it implements
// TimeReader and/or TimeSetter, and only the operations it implements get
// entries in the host callback table. Callbacks borrow the data from the
// host device's private-data slot for the duration of one invocation;
// ownership stays with the slot until the device is torn down.
package rtc

import (
	"github.com/efficientgo/core/errors"

	"github.com/mlilabs/devbind/device"
)

// ErrAlreadyRegistered is returned by Register on an instance that has
// already completed a registration.
var ErrAlreadyRegistered = errors.New("rtc device is already registered")

// Time is a broken-down RTC time, mirroring the host's rtc_time layout.
type Time struct {
	Sec   int
	Min   int
	Hour  int
	Mday  int
	Mon   int
	Year  int
	Wday  int
	Yday  int
	Isdst int
}

// TimeReader reads the date and time from the clock hardware.
type TimeReader interface {
	ReadTime(t *Time) error
}

// TimeSetter sets the date and time of the clock hardware.
type TimeSetter interface {
	SetTime(t Time) error
}

// ClassOps is the host's callback table for one RTC device. Callback
// slots for unimplemented operations stay nil; the host treats a nil slot
// as "operation unsupported" rather than calling a stub.
type ClassOps struct {
	ReadTime func(dev *device.Device, t *Time) error
	SetTime  func(dev *device.Device, t Time) error
}

// DeviceRecord is the host-allocated record for one RTC device. Ops is
// referenced by address for the lifetime of the registration.
type DeviceRecord struct {
	Dev *device.Device
	Ops *ClassOps
}

// Core is the host RTC class's registration boundary. AllocateDevice
// creates an unregistered device record parented to the given device;
// RegisterDevice finalizes the registration and may reject it. Drivers
// never call UnregisterDevice themselves: release of a registered device
// is tied to the parent's teardown, which invokes it through the hook
// Register installs.
type Core interface {
	AllocateDevice(parent *device.Device) (*DeviceRecord, error)
	RegisterDevice(rec *DeviceRecord) error
	UnregisterDevice(rec *DeviceRecord)
}

// Registration is the registration state of one RTC device. The zero
// value is ready to use and unregistered; a Registration registers at
// most once for its lifetime.
//
// The embedded callback table is referenced by address from the host
// record, so a Registration must not be copied after Register succeeds.
type Registration struct {
	ops    ClassOps
	rtc    *DeviceRecord
	parent *device.Device
}

// Register allocates a host RTC device under parent, installs callback
// entries for the operations data implements, moves data into the
// device's private-data slot, and asks the core to finalize the
// registration.
//
// If the core rejects finalization, data is reclaimed from the slot and
// finalized immediately, and the instance remains unregistered. A second
// call on a registered instance fails with ErrAlreadyRegistered and
// alters nothing.
func (r *Registration) Register(core Core, parent *device.Device, data any) error {
	if r.parent != nil {
		return ErrAlreadyRegistered
	}

	r.ops = ClassOps{}
	if _, ok := data.(TimeReader); ok {
		r.ops.ReadTime = readTimeCallback
	}
	if _, ok := data.(TimeSetter); ok {
		r.ops.SetTime = setTimeCallback
	}

	rtc, err := core.AllocateDevice(parent)
	if err != nil {
		return errors.Wrap(err, "failed to allocate rtc device")
	}
	rtc.Ops = &r.ops
	r.rtc = rtc

	rtc.Dev.SetDrvdata(data)
	if err := core.RegisterDevice(rtc); err != nil {
		// No leak on failure: the data we just handed to the slot is
		// reclaimed and finalized before the error surfaces.
		device.Finalize(rtc.Dev.TakeDrvdata())
		r.rtc = nil
		return errors.Wrap(err, "failed to register rtc device")
	}

	// The class holds the record until the parent goes away; tearing the
	// parent down withdraws the clock and finalizes the data still in its
	// slot, the one reclamation matching the SetDrvdata above.
	parent.OnTeardown(func() {
		core.UnregisterDevice(rtc)
		device.Finalize(rtc.Dev.TakeDrvdata())
	})

	r.parent = parent
	return nil
}

// Registered reports whether the instance has completed a registration.
func (r *Registration) Registered() bool { return r.parent != nil }

// Device returns the registered host record, or nil before registration.
func (r *Registration) Device() *DeviceRecord { return r.rtc }

// readTimeCallback is the trampoline installed in the host callback
// table. It borrows the registered data from the device's slot; the
// borrow does not outlive the call.
func readTimeCallback(dev *device.Device, t *Time) error {
	rd, ok := dev.Drvdata().(TimeReader)
	if !ok {
		return errors.Newf("no readable clock data bound to %s", dev.Name())
	}
	return rd.ReadTime(t)
}

func setTimeCallback(dev *device.Device, t Time) error {
	st, ok := dev.Drvdata().(TimeSetter)
	if !ok {
		return errors.Newf("no settable clock data bound to %s", dev.Name())
	}
	return st.SetTime(t)
}
