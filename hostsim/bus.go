// SPDX-License-Identifier: GPL-2.0-only

// Package hostsim is an in-process stand-in for the host kernel's bus
// subsystem: the collaborator the binding framework registers with but
// does not own. It implements the registration entry points, runs the
// host side of id-table matching, and drives the probe/remove trampolines
// with the same guarantees the real host gives — first-match dispatch in
// registration order, at most one remove per successful probe, and no
// concurrent probe/remove for the same device.
package hostsim

import (
	"sync"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mlilabs/devbind/device"
	"github.com/mlilabs/devbind/i2c"
	"github.com/mlilabs/devbind/of"
)

// ErrDriverExists is returned when a driver registers under a name the
// bus already knows.
var ErrDriverExists = errors.New("driver name already registered")

// DeviceInfo is a snapshot of one device on the simulated bus.
type DeviceInfo struct {
	Name   string
	Addr   uint16
	Driver string // "" while unbound
}

type busDevice struct {
	rec *i2c.ClientRecord
	drv *i2c.HostDriver // nil while unbound
}

// Bus is a simulated I2C bus core. It satisfies i2c.Core.
type Bus struct {
	logger log.Logger

	mu      sync.Mutex
	drivers []*i2c.HostDriver
	devices []*busDevice

	probesTotal        prometheus.Counter
	probeFailuresTotal prometheus.Counter
	boundDevices       prometheus.Gauge
}

// NewBus creates an empty simulated bus. logger and reg may be nil.
func NewBus(logger log.Logger, reg prometheus.Registerer) *Bus {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	b := &Bus{
		logger: logger,
		probesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devbind_probes_total",
			Help: "The number of probe callbacks dispatched by the simulated bus.",
		}),
		probeFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devbind_probe_failures_total",
			Help: "The number of probe callbacks that returned an error.",
		}),
		boundDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "devbind_bound_devices",
			Help: "The number of devices currently bound to a driver.",
		}),
	}
	if reg != nil {
		reg.MustRegister(b.probesTotal, b.probeFailuresTotal, b.boundDevices)
	}
	return b
}

// RegisterDriver adds a driver record to the bus and attempts to bind any
// unbound devices against it. Registration fails on a duplicate name and
// leaves the bus unchanged.
func (b *Bus) RegisterDriver(rec *i2c.HostDriver) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.drivers {
		if d.Name == rec.Name {
			return errors.Wrapf(ErrDriverExists, "%s", rec.Name)
		}
	}
	b.drivers = append(b.drivers, rec)
	_ = level.Info(b.logger).Log("msg", "driver registered", "driver", rec.Name)
	for _, dev := range b.devices {
		if dev.drv == nil {
			b.tryBind(dev, rec)
		}
	}
	return nil
}

// DelDriver withdraws a driver record. Devices still bound to it are
// unbound first, which invokes the driver's remove callback.
func (b *Bus) DelDriver(rec *i2c.HostDriver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, dev := range b.devices {
		if dev.drv == rec {
			b.unbind(dev)
		}
	}
	for i, d := range b.drivers {
		if d == rec {
			b.drivers = append(b.drivers[:i], b.drivers[i+1:]...)
			break
		}
	}
	_ = level.Info(b.logger).Log("msg", "driver unregistered", "driver", rec.Name)
}

// AddDevice announces a device on the bus, as if discovered by the host.
// It is matched against registered drivers in registration order; a probe
// failure leaves the device on the bus, unbound.
func (b *Bus) AddDevice(name string, addr uint16, compatible string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, dev := range b.devices {
		if dev.rec.Addr == addr {
			return errors.Newf("address 0x%02x already occupied by %s", addr, dev.rec.Name)
		}
	}
	dev := &busDevice{
		rec: &i2c.ClientRecord{
			Name: name,
			Addr: addr,
			Dev:  device.New(name, compatible),
		},
	}
	b.devices = append(b.devices, dev)
	_ = level.Info(b.logger).Log("msg", "device added", "device", name, "addr", addr)
	for _, drv := range b.drivers {
		if b.tryBind(dev, drv) {
			break
		}
	}
	return nil
}

// RemoveDevice takes a device off the bus, unbinding it first if bound.
func (b *Bus) RemoveDevice(addr uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, dev := range b.devices {
		if dev.rec.Addr != addr {
			continue
		}
		if dev.drv != nil {
			b.unbind(dev)
		}
		dev.rec.Dev.Teardown()
		b.devices = append(b.devices[:i], b.devices[i+1:]...)
		_ = level.Info(b.logger).Log("msg", "device removed", "device", dev.rec.Name, "addr", addr)
		return nil
	}
	return errors.Newf("no device at address 0x%02x", addr)
}

// Devices returns a snapshot of the devices on the bus.
func (b *Bus) Devices() []DeviceInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	infos := make([]DeviceInfo, 0, len(b.devices))
	for _, dev := range b.devices {
		info := DeviceInfo{Name: dev.rec.Name, Addr: dev.rec.Addr}
		if dev.drv != nil {
			info.Driver = dev.drv.Name
		}
		infos = append(infos, info)
	}
	return infos
}

// matches runs the host's lookup order: firmware-node compatible first,
// then the I2C id table, then the bare driver name for drivers that carry
// no tables at all.
func matches(drv *i2c.HostDriver, rec *i2c.ClientRecord) bool {
	if of.Match(drv.OFMatchTable, rec.Dev) != nil {
		return true
	}
	if i2c.MatchID(drv.IDTable, rec.Name) != nil {
		return true
	}
	return len(drv.OFMatchTable) == 0 && len(drv.IDTable) == 0 && drv.Name == rec.Name
}

// tryBind is called with the bus lock held, which is what serializes
// probe and remove for any one device.
func (b *Bus) tryBind(dev *busDevice, drv *i2c.HostDriver) bool {
	if !matches(drv, dev.rec) {
		return false
	}
	b.probesTotal.Inc()
	if err := drv.Probe(dev.rec); err != nil {
		b.probeFailuresTotal.Inc()
		_ = level.Warn(b.logger).Log("msg", "probe failed; device left unbound", "driver", drv.Name, "device", dev.rec.Name, "err", err)
		return false
	}
	dev.drv = drv
	b.boundDevices.Inc()
	_ = level.Info(b.logger).Log("msg", "device bound", "driver", drv.Name, "device", dev.rec.Name)
	return true
}

func (b *Bus) unbind(dev *busDevice) {
	drv := dev.drv
	dev.drv = nil
	b.boundDevices.Dec()
	if err := drv.Remove(dev.rec); err != nil {
		_ = level.Warn(b.logger).Log("msg", "remove callback failed", "driver", drv.Name, "device", dev.rec.Name, "err", err)
	}
	// Release anything the probe path tied to the device's lifetime, such
	// as registered rtc children.
	dev.rec.Dev.Teardown()
	_ = level.Info(b.logger).Log("msg", "device unbound", "driver", drv.Name, "device", dev.rec.Name)
}
