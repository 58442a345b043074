// SPDX-License-Identifier: GPL-2.0-only

// Package emc is the MLI-Labs embedded management controller driver, the
// in-tree consumer of the binding framework. The controller sits on an
// I2C bus, optionally wants a firmware image at probe time, and exposes a
// battery-backed clock through the RTC class.
package emc

import (
	"sync"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/mlilabs/devbind/firmware"
	"github.com/mlilabs/devbind/i2c"
	"github.com/mlilabs/devbind/of"
	"github.com/mlilabs/devbind/rtc"
)

// DriverName is the name the adapter registers under.
const DriverName = "mlilabs_emc"

// Variant is the per-entry id table context: what a given board revision
// of the controller supports.
type Variant struct {
	Model    string
	Firmware string // empty when the revision boots from ROM
	HasRTC   bool
}

var (
	emcVariant = Variant{Model: "emc", Firmware: "mlilabs/emc.bin", HasRTC: true}
	// The first-generation part has no loadable firmware and no clock.
	emcLiteVariant = Variant{Model: "emc-lite"}
)

// Driver implements i2c.Driver for the management controller. Its fields
// are the host services the driver consumes; Logger may be nil.
type Driver struct {
	Firmware firmware.Loader
	RTC      rtc.Core
	Logger   log.Logger
}

// NewAdapter builds the registration adapter for the driver, including
// its firmware-node and I2C id tables.
func NewAdapter(drv *Driver) (*i2c.Adapter[*Controller, Variant, Variant], error) {
	ofTable, err := of.NewTable(
		of.Entry[Variant]{ID: of.DeviceID{Compatible: "mlilabs,emc"}, Info: &emcVariant},
		of.Entry[Variant]{ID: of.DeviceID{Compatible: "mlilabs,emc-lite"}, Info: &emcLiteVariant},
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build emc of table")
	}
	idTable, err := i2c.NewIDTable(
		i2c.IDTableEntry[Variant]{ID: i2c.DeviceID{Name: "mlilabs-emc"}, Info: &emcVariant},
		i2c.IDTableEntry[Variant]{ID: i2c.DeviceID{Name: "mlilabs-emc-lite"}, Info: &emcLiteVariant},
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build emc id table")
	}
	return &i2c.Adapter[*Controller, Variant, Variant]{
		Name:    DriverName,
		OFTable: ofTable,
		IDTable: idTable,
		Driver:  drv,
	}, nil
}

// Controller is the driver-owned per-device data. It is safe for
// concurrent use; the clock callbacks and the remove path may run on
// different goroutines.
type Controller struct {
	addr    uint16
	variant Variant

	mu sync.Mutex
	fw *firmware.Firmware

	rtcReg rtc.Registration
}

// Variant returns the controller's resolved board revision.
func (c *Controller) Variant() Variant { return c.variant }

// Addr returns the controller's bus address.
func (c *Controller) Addr() uint16 { return c.addr }

// FirmwareSize returns the size of the loaded firmware image, or 0 when
// the revision runs from ROM.
func (c *Controller) FirmwareSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fw == nil {
		return 0
	}
	return len(c.fw.Data())
}

// Close releases the controller's firmware image. Called by the adapter
// when the device is removed.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fw != nil {
		c.fw.Release()
		c.fw = nil
	}
	return nil
}

// Probe brings up one controller. The variant is taken from the matched
// firmware-node entry when present, from the matched I2C id entry
// otherwise; with neither the device is treated as a bare emc-lite.
func (d *Driver) Probe(client *i2c.Client, info *Variant, devInfo *Variant) (*Controller, error) {
	logger := d.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	variant := emcLiteVariant
	switch {
	case info != nil:
		variant = *info
	case devInfo != nil:
		variant = *devInfo
	}

	ctrl := &Controller{addr: client.Addr(), variant: variant}

	if variant.Firmware != "" {
		if d.Firmware == nil {
			return nil, errors.Newf("variant %s needs firmware but no loader is available", variant.Model)
		}
		fw, err := firmware.Request(d.Firmware, variant.Firmware, client.Dev())
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load firmware for %s", client.Name())
		}
		ctrl.fw = fw
		_ = level.Debug(logger).Log("msg", "firmware loaded", "device", client.Name(), "size", len(fw.Data()))
	}

	if variant.HasRTC && d.RTC != nil {
		if err := ctrl.rtcReg.Register(d.RTC, client.Dev(), newClock()); err != nil {
			ctrl.Close()
			return nil, errors.Wrapf(err, "failed to register rtc for %s", client.Name())
		}
	}

	_ = level.Info(logger).Log("msg", "emc probed", "device", client.Name(), "addr", client.Addr(), "model", variant.Model)
	return ctrl, nil
}

// Remove powers the controller down. Firmware release happens in Close,
// which the adapter runs regardless of the outcome here.
func (d *Driver) Remove(ctrl *Controller) error {
	if d.Logger != nil {
		_ = level.Info(d.Logger).Log("msg", "emc removed", "addr", ctrl.addr, "model", ctrl.variant.Model)
	}
	return nil
}

// clock is the RTC-facing state of a controller: the battery-backed time
// registers. It implements both clock operations.
type clock struct {
	mu  sync.Mutex
	set bool
	t   rtc.Time
}

func newClock() *clock {
	return &clock{}
}

func (c *clock) ReadTime(t *rtc.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return errors.New("clock has not been set since power loss")
	}
	*t = c.t
	return nil
}

func (c *clock) SetTime(t rtc.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
	c.set = true
	return nil
}

var _ rtc.TimeReader = (*clock)(nil)
var _ rtc.TimeSetter = (*clock)(nil)
var _ i2c.Driver[*Controller, Variant, Variant] = (*Driver)(nil)
var _ i2c.Remover[*Controller] = (*Driver)(nil)
