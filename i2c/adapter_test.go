// SPDX-License-Identifier: GPL-2.0-only

package i2c

import (
	"testing"

	"github.com/efficientgo/core/errors"

	"github.com/mlilabs/devbind/device"
	"github.com/mlilabs/devbind/of"
)

type fakeCore struct {
	rec    *HostDriver
	regErr error
}

func (c *fakeCore) RegisterDriver(rec *HostDriver) error {
	if c.regErr != nil {
		return c.regErr
	}
	c.rec = rec
	return nil
}

func (c *fakeCore) DelDriver(rec *HostDriver) {
	if c.rec == rec {
		c.rec = nil
	}
}

type testData struct {
	tag    string
	closed int
}

func (d *testData) Close() error {
	d.closed++
	return nil
}

type testDriver struct {
	probeErr  error
	removeErr error

	probes     int
	removes    int
	gotInfo    *int
	gotDevInfo *string
	gotAddr    uint16
}

func (d *testDriver) Probe(client *Client, info *int, devInfo *string) (*testData, error) {
	d.probes++
	d.gotInfo = info
	d.gotDevInfo = devInfo
	d.gotAddr = client.Addr()
	if d.probeErr != nil {
		return nil, d.probeErr
	}
	return &testData{tag: client.Name()}, nil
}

func (d *testDriver) Remove(data *testData) error {
	d.removes++
	return d.removeErr
}

// probeOnlyDriver has no Remove; the adapter defaults it to a no-op.
type probeOnlyDriver struct{}

func (probeOnlyDriver) Probe(client *Client, _ *int, _ *string) (*testData, error) {
	return &testData{tag: client.Name()}, nil
}

func newClientRecord(name string, addr uint16, compatible string) *ClientRecord {
	return &ClientRecord{Name: name, Addr: addr, Dev: device.New(name, compatible)}
}

func mustTables(t *testing.T) (*of.Table[int], *IDTable[string]) {
	t.Helper()
	ofInfo := 42
	ofTable, err := of.NewTable(
		of.Entry[int]{ID: of.DeviceID{Compatible: "mlilabs,emc"}, Info: &ofInfo},
		of.Entry[int]{ID: of.DeviceID{Compatible: "mlilabs,emc-lite"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	devInfo := "rev-b"
	idTable, err := NewIDTable(
		IDTableEntry[string]{ID: DeviceID{Name: "mlilabs-emc"}, Info: &devInfo},
	)
	if err != nil {
		t.Fatal(err)
	}
	return ofTable, idTable
}

func TestAdapterRegister(t *testing.T) {
	ofTable, idTable := mustTables(t)
	drv := &testDriver{}
	adapter := &Adapter[*testData, int, string]{
		Name:    "testdrv",
		OFTable: ofTable,
		IDTable: idTable,
		Driver:  drv,
	}

	core := &fakeCore{}
	if err := adapter.Register(core); err != nil {
		t.Fatal(err)
	}
	if core.rec == nil {
		t.Fatal("no record handed to the core")
	}
	if core.rec.Name != "testdrv" {
		t.Errorf("record name = %q; want testdrv", core.rec.Name)
	}
	if core.rec.Probe == nil || core.rec.Remove == nil {
		t.Error("record is missing callback slots")
	}
	if len(core.rec.OFMatchTable) != ofTable.Len()+1 {
		t.Errorf("of table has %d records; want %d", len(core.rec.OFMatchTable), ofTable.Len()+1)
	}
	if len(core.rec.IDTable) != idTable.Len()+1 {
		t.Errorf("id table has %d records; want %d", len(core.rec.IDTable), idTable.Len()+1)
	}

	if err := adapter.Register(core); err == nil {
		t.Error("second Register succeeded; want error")
	}

	adapter.Unregister()
	if core.rec != nil {
		t.Error("record still registered after Unregister")
	}
	adapter.Unregister() // no-op
}

func TestAdapterRegisterPropagatesCoreError(t *testing.T) {
	_, idTable := mustTables(t)
	adapter := &Adapter[*testData, int, string]{
		Name:    "testdrv",
		IDTable: idTable,
		Driver:  &testDriver{},
	}
	core := &fakeCore{regErr: errors.New("name collision")}
	if err := adapter.Register(core); err == nil {
		t.Fatal("Register succeeded; want core error propagated")
	}
	if err := adapter.Register(&fakeCore{}); err != nil {
		t.Fatalf("Register after failed attempt: %v", err)
	}
}

func TestProbeStoresOwnedData(t *testing.T) {
	ofTable, idTable := mustTables(t)
	drv := &testDriver{}
	adapter := &Adapter[*testData, int, string]{
		Name:    "testdrv",
		OFTable: ofTable,
		IDTable: idTable,
		Driver:  drv,
	}
	core := &fakeCore{}
	if err := adapter.Register(core); err != nil {
		t.Fatal(err)
	}

	rec := newClientRecord("mlilabs-emc", 0x4a, "mlilabs,emc")
	if err := core.rec.Probe(rec); err != nil {
		t.Fatal(err)
	}
	data, ok := rec.Dev.Drvdata().(*testData)
	if !ok {
		t.Fatalf("slot holds %T; want *testData", rec.Dev.Drvdata())
	}
	if data.tag != "mlilabs-emc" {
		t.Errorf("stored data tag = %q; want mlilabs-emc", data.tag)
	}
	if drv.gotInfo == nil || *drv.gotInfo != 42 {
		t.Errorf("of context = %v; want 42", drv.gotInfo)
	}
	if drv.gotDevInfo == nil || *drv.gotDevInfo != "rev-b" {
		t.Errorf("id context = %v; want rev-b", drv.gotDevInfo)
	}
	if drv.gotAddr != 0x4a {
		t.Errorf("client addr = %#x; want 0x4a", drv.gotAddr)
	}
}

func TestProbeFailureLeavesSlotEmpty(t *testing.T) {
	_, idTable := mustTables(t)
	drv := &testDriver{probeErr: errors.New("chip did not answer")}
	adapter := &Adapter[*testData, int, string]{
		Name:    "testdrv",
		IDTable: idTable,
		Driver:  drv,
	}
	core := &fakeCore{}
	if err := adapter.Register(core); err != nil {
		t.Fatal(err)
	}

	rec := newClientRecord("mlilabs-emc", 0x4a, "")
	if err := core.rec.Probe(rec); err == nil {
		t.Fatal("probe succeeded; want driver error propagated")
	}
	if got := rec.Dev.Drvdata(); got != nil {
		t.Errorf("slot holds %v after failed probe; want nil", got)
	}
}

func TestProbeWithoutContext(t *testing.T) {
	_, idTable := mustTables(t)
	drv := &testDriver{}
	adapter := &Adapter[*testData, int, string]{
		Name:    "testdrv",
		IDTable: idTable,
		Driver:  drv,
	}
	core := &fakeCore{}
	if err := adapter.Register(core); err != nil {
		t.Fatal(err)
	}

	// The core can bind on grounds the adapter's tables don't cover; the
	// driver then sees no context at all.
	rec := newClientRecord("unlisted", 0x21, "")
	if err := core.rec.Probe(rec); err != nil {
		t.Fatal(err)
	}
	if drv.gotInfo != nil || drv.gotDevInfo != nil {
		t.Errorf("contexts = (%v, %v); want both nil", drv.gotInfo, drv.gotDevInfo)
	}
}

func TestRemoveReclaimsAndFinalizes(t *testing.T) {
	_, idTable := mustTables(t)
	for _, tc := range []struct {
		name      string
		removeErr error
	}{
		{name: "remove succeeds"},
		{name: "remove fails but data is still finalized", removeErr: errors.New("bus stuck")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			drv := &testDriver{removeErr: tc.removeErr}
			adapter := &Adapter[*testData, int, string]{
				Name:    "testdrv",
				IDTable: idTable,
				Driver:  drv,
			}
			core := &fakeCore{}
			if err := adapter.Register(core); err != nil {
				t.Fatal(err)
			}

			rec := newClientRecord("mlilabs-emc", 0x4a, "")
			if err := core.rec.Probe(rec); err != nil {
				t.Fatal(err)
			}
			data := rec.Dev.Drvdata().(*testData)

			err := core.rec.Remove(rec)
			if (err != nil) != (tc.removeErr != nil) {
				t.Fatalf("remove error = %v; want %v", err, tc.removeErr)
			}
			if drv.removes != 1 {
				t.Errorf("driver Remove ran %d times; want 1", drv.removes)
			}
			if data.closed != 1 {
				t.Errorf("data finalized %d times; want exactly 1", data.closed)
			}
			if got := rec.Dev.Drvdata(); got != nil {
				t.Errorf("slot holds %v after remove; want nil", got)
			}
		})
	}
}

func TestRemoveDefaultsToNoop(t *testing.T) {
	adapter := &Adapter[*testData, int, string]{
		Name:   "plain",
		Driver: probeOnlyDriver{},
	}
	core := &fakeCore{}
	if err := adapter.Register(core); err != nil {
		t.Fatal(err)
	}

	rec := newClientRecord("plain", 0x30, "")
	if err := core.rec.Probe(rec); err != nil {
		t.Fatal(err)
	}
	data := rec.Dev.Drvdata().(*testData)
	if err := core.rec.Remove(rec); err != nil {
		t.Fatalf("default remove returned %v; want nil", err)
	}
	if data.closed != 1 {
		t.Errorf("data finalized %d times; want exactly 1", data.closed)
	}
}
