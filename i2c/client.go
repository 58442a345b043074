// SPDX-License-Identifier: GPL-2.0-only

package i2c

import "github.com/mlilabs/devbind/device"

// ClientRecord is the host-owned record for one I2C slave device. The core
// allocates it when a device appears and keeps it alive until the device
// goes away; drivers only ever see it through a Client view.
type ClientRecord struct {
	// Name is the board-info name the core matches against id tables.
	Name string
	// Addr is the address on the parent adapter's bus. 7-bit addresses
	// are stored in the lower 7 bits.
	Addr uint16
	// Dev is the backing device record, including the private-data slot.
	Dev *device.Device
}

// Client is a non-owning view of a host-managed I2C device record, handed
// to probe and remove. It is valid only for the duration of the enclosing
// callback invocation and must not be retained past its return.
type Client struct {
	rec *ClientRecord
}

func clientFromRecord(rec *ClientRecord) *Client {
	return &Client{rec: rec}
}

// Addr returns the address used on the I2C bus connected to the parent
// adapter. 7-bit addresses are stored in the lower 7 bits.
func (c *Client) Addr() uint16 { return c.rec.Addr }

// Name returns the device name the core matched on.
func (c *Client) Name() string { return c.rec.Name }

// Dev returns the backing device record.
func (c *Client) Dev() *device.Device { return c.rec.Dev }
