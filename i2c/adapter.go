// SPDX-License-Identifier: GPL-2.0-only

package i2c

import (
	"github.com/efficientgo/core/errors"

	"github.com/mlilabs/devbind/device"
	"github.com/mlilabs/devbind/of"
)

// Driver is the capability contract a concrete I2C driver implements.
//
// D is the driver-owned per-device data returned by Probe; ownership moves
// into the device's private-data slot when Probe succeeds and moves back
// out when the device is removed. Because the core invokes callbacks on
// goroutines of its own choosing, D must be safe to share across
// goroutines. D may implement io.Closer to release resources on removal.
//
// I and DI are the per-entry context types of the driver's open-firmware
// and I2C id tables; drivers without a table of a given kind use struct{}.
type Driver[D any, I any, DI any] interface {
	// Probe is called when the core binds a device to this driver. The
	// context arguments are resolved from the matched id table entries
	// and are nil when nothing matched or the entry carried no context.
	Probe(client *Client, info *I, devInfo *DI) (D, error)
}

// Remover is optionally implemented by drivers that need to run logic on
// device removal. Drivers without it get a no-op remove; owned data is
// finalized either way.
type Remover[D any] interface {
	Remove(data D) error
}

// HostDriver is the raw registration record consumed by the host core:
// the driver name, the callback slots, and the raw id table arrays. It
// must stay valid until DelDriver returns.
type HostDriver struct {
	Name         string
	Probe        func(*ClientRecord) error
	Remove       func(*ClientRecord) error
	OFMatchTable []of.RawID
	IDTable      []RawID
}

// Core is the host bus core's registration boundary. The core owns device
// discovery, table matching order, and callback scheduling; it guarantees
// remove is invoked at most once per bound device, only after a successful
// probe, and never concurrently with it.
type Core interface {
	RegisterDriver(*HostDriver) error
	DelDriver(*HostDriver)
}

// Adapter translates a Driver implementation into the host core's
// registration record and owns the registration lifecycle. Each Adapter
// instantiation binds its trampolines to exactly one driver type; type
// information is erased only at the callback boundary.
type Adapter[D any, I any, DI any] struct {
	// Name is the driver name presented to the core.
	Name string
	// OFTable and IDTable are the driver's match tables; either may be
	// nil when the driver does not match on that id kind.
	OFTable *of.Table[I]
	IDTable *IDTable[DI]
	// Driver is the bound implementation.
	Driver Driver[D, I, DI]

	core Core
	rec  *HostDriver
}

// Register populates the registration record and hands it to the core.
// The record stays referenced by the core until Unregister returns, so
// the adapter must outlive the registration.
func (a *Adapter[D, I, DI]) Register(core Core) error {
	if a.rec != nil {
		return errors.Newf("driver %s is already registered", a.Name)
	}
	if a.Driver == nil {
		return errors.Newf("driver %s has no implementation bound", a.Name)
	}
	rec := &HostDriver{
		Name:   a.Name,
		Probe:  a.probe,
		Remove: a.remove,
	}
	if a.OFTable != nil {
		rec.OFMatchTable = a.OFTable.Raw()
	}
	if a.IDTable != nil {
		rec.IDTable = a.IDTable.Raw()
	}
	if err := core.RegisterDriver(rec); err != nil {
		return errors.Wrapf(err, "failed to register driver %s", a.Name)
	}
	a.core = core
	a.rec = rec
	return nil
}

// Unregister withdraws the driver from the core. The core unbinds any
// still-bound devices (invoking remove) before the record is released.
func (a *Adapter[D, I, DI]) Unregister() {
	if a.rec == nil {
		return
	}
	a.core.DelDriver(a.rec)
	a.core = nil
	a.rec = nil
}

func (a *Adapter[D, I, DI]) idInfo(c *Client) *I {
	if a.OFTable == nil {
		return nil
	}
	return a.OFTable.Info(of.Match(a.OFTable.Raw(), c.Dev()))
}

func (a *Adapter[D, I, DI]) deviceIDInfo(c *Client) *DI {
	if a.IDTable == nil {
		return nil
	}
	return a.IDTable.Info(MatchID(a.IDTable.Raw(), c.Name()))
}

// probe is the trampoline the core invokes with a matched device record.
// On success the driver's owned data moves into the device's private-data
// slot; on failure nothing is stored and the device stays unbound.
func (a *Adapter[D, I, DI]) probe(rec *ClientRecord) error {
	client := clientFromRecord(rec)
	data, err := a.Driver.Probe(client, a.idInfo(client), a.deviceIDInfo(client))
	if err != nil {
		return err
	}
	rec.Dev.SetDrvdata(data)
	return nil
}

// remove is the trampoline the core invokes when a bound device goes
// away. It reclaims the owned data stored by probe, runs the driver's
// Remove if implemented, and finalizes the data unconditionally; a remove
// error is propagated but never skips finalization.
func (a *Adapter[D, I, DI]) remove(rec *ClientRecord) error {
	data, ok := rec.Dev.TakeDrvdata().(D)
	if !ok {
		return errors.Newf("no driver data bound to device %s", rec.Name)
	}
	var err error
	if r, ok := any(a.Driver).(Remover[D]); ok {
		err = r.Remove(data)
	}
	device.Finalize(data)
	return err
}
