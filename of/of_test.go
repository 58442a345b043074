// SPDX-License-Identifier: GPL-2.0-only

package of

import (
	"strings"
	"testing"

	"github.com/mlilabs/devbind/device"
)

func TestDeviceIDEncode(t *testing.T) {
	for _, tc := range []struct {
		name    string
		id      DeviceID
		wantErr bool
	}{
		{name: "ordinary compatible", id: DeviceID{Compatible: "mlilabs,emc"}},
		{name: "exactly at capacity", id: DeviceID{Compatible: strings.Repeat("x", CompatibleSize-1)}},
		{name: "one past capacity", id: DeviceID{Compatible: strings.Repeat("x", CompatibleSize)}, wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := tc.id.Encode(3)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Encode() error = %v; wantErr = %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if rec.Data != 3 {
				t.Errorf("Data = %d; want 3", rec.Data)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	ctx := "emc"
	tbl, err := NewTable(
		Entry[string]{ID: DeviceID{Compatible: "mlilabs,emc"}, Info: &ctx},
		Entry[string]{ID: DeviceID{Compatible: "mlilabs,emc-lite"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	raw := tbl.Raw()

	rec := Match(raw, device.New("emc0", "mlilabs,emc"))
	if rec == nil {
		t.Fatal("mlilabs,emc did not match")
	}
	if info := tbl.Info(rec); info == nil || *info != "emc" {
		t.Errorf("context = %v; want emc", info)
	}

	if rec := Match(raw, device.New("emc1", "mlilabs,emc-lite")); rec == nil {
		t.Error("mlilabs,emc-lite did not match")
	} else if info := tbl.Info(rec); info != nil {
		t.Errorf("context = %v; want no context", info)
	}

	if rec := Match(raw, device.New("x", "acme,eeprom")); rec != nil {
		t.Errorf("unrelated compatible matched %v", rec)
	}
	if rec := Match(raw, device.New("x", "")); rec != nil {
		t.Errorf("device without firmware node matched %v", rec)
	}
	if rec := Match(raw, nil); rec != nil {
		t.Errorf("nil device matched %v", rec)
	}
}
