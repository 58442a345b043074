// SPDX-License-Identifier: GPL-2.0-only

package hostsim

import (
	"sync"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/mlilabs/devbind/device"
	"github.com/mlilabs/devbind/rtc"
)

// ErrOpUnsupported is returned when a clock operation has no callback
// installed for the addressed device.
var ErrOpUnsupported = errors.New("operation not supported by this clock")

// RTCClass is a simulated host RTC class. It satisfies rtc.Core and lets
// callers exercise the registered clocks' read/set callbacks the way the
// host's character-device layer would.
type RTCClass struct {
	logger log.Logger

	mu      sync.Mutex
	devices map[string]*rtc.DeviceRecord
}

// NewRTCClass creates an empty RTC class. logger may be nil.
func NewRTCClass(logger log.Logger) *RTCClass {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &RTCClass{
		logger:  logger,
		devices: map[string]*rtc.DeviceRecord{},
	}
}

// AllocateDevice creates an unregistered RTC device record parented to
// the given device.
func (c *RTCClass) AllocateDevice(parent *device.Device) (*rtc.DeviceRecord, error) {
	if parent == nil {
		return nil, errors.New("rtc device needs a parent")
	}
	return &rtc.DeviceRecord{
		Dev: device.New(parent.Name()+"-rtc", ""),
	}, nil
}

// RegisterDevice finalizes the registration of an allocated record. It
// rejects a second clock under the same name.
func (c *RTCClass) RegisterDevice(rec *rtc.DeviceRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := rec.Dev.Name()
	if _, exists := c.devices[name]; exists {
		return errors.Newf("rtc device %s already exists", name)
	}
	c.devices[name] = rec
	_ = level.Info(c.logger).Log("msg", "rtc device registered", "rtc", name)
	return nil
}

// UnregisterDevice withdraws a registered record from the class. Called
// from the parent device's teardown; unknown records are ignored.
func (c *RTCClass) UnregisterDevice(rec *rtc.DeviceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := rec.Dev.Name()
	if c.devices[name] != rec {
		return
	}
	delete(c.devices, name)
	_ = level.Info(c.logger).Log("msg", "rtc device unregistered", "rtc", name)
}

// ReadTime invokes the read callback of the named clock.
func (c *RTCClass) ReadTime(name string) (rtc.Time, error) {
	rec, err := c.lookup(name)
	if err != nil {
		return rtc.Time{}, err
	}
	if rec.Ops == nil || rec.Ops.ReadTime == nil {
		return rtc.Time{}, ErrOpUnsupported
	}
	var t rtc.Time
	if err := rec.Ops.ReadTime(rec.Dev, &t); err != nil {
		return rtc.Time{}, err
	}
	return t, nil
}

// SetTime invokes the set callback of the named clock.
func (c *RTCClass) SetTime(name string, t rtc.Time) error {
	rec, err := c.lookup(name)
	if err != nil {
		return err
	}
	if rec.Ops == nil || rec.Ops.SetTime == nil {
		return ErrOpUnsupported
	}
	return rec.Ops.SetTime(rec.Dev, t)
}

// Names returns the registered clock names.
func (c *RTCClass) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.devices))
	for name := range c.devices {
		names = append(names, name)
	}
	return names
}

func (c *RTCClass) lookup(name string) (*rtc.DeviceRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.devices[name]
	if !ok {
		return nil, errors.Newf("no rtc device %s", name)
	}
	return rec, nil
}
