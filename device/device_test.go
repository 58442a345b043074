// SPDX-License-Identifier: GPL-2.0-only

package device

import "testing"

type closeCounter struct {
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestDrvdataSlot(t *testing.T) {
	dev := New("dev-a", "vendor,dev-a")

	if got := dev.Drvdata(); got != nil {
		t.Fatalf("fresh slot holds %v; want nil", got)
	}

	data := &closeCounter{}
	dev.SetDrvdata(data)

	// Borrowing does not consume.
	if got := dev.Drvdata(); got != any(data) {
		t.Errorf("Drvdata() = %v; want %v", got, data)
	}
	if got := dev.Drvdata(); got != any(data) {
		t.Errorf("second Drvdata() = %v; want %v", got, data)
	}

	// Reclaiming empties the slot.
	if got := dev.TakeDrvdata(); got != any(data) {
		t.Errorf("TakeDrvdata() = %v; want %v", got, data)
	}
	if got := dev.Drvdata(); got != nil {
		t.Errorf("slot after take holds %v; want nil", got)
	}
	if got := dev.TakeDrvdata(); got != nil {
		t.Errorf("second TakeDrvdata() = %v; want nil", got)
	}
}

func TestTeardownHooks(t *testing.T) {
	dev := New("dev-a", "")
	var order []int
	dev.OnTeardown(func() { order = append(order, 1) })
	dev.OnTeardown(func() { order = append(order, 2) })

	dev.Teardown()
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("hooks ran as %v; want reverse registration order [2 1]", order)
	}

	// Hooks run once; a second teardown finds none left.
	dev.Teardown()
	if len(order) != 2 {
		t.Errorf("hooks ran %d times in total; want 2", len(order))
	}
}

func TestFinalize(t *testing.T) {
	data := &closeCounter{}
	Finalize(data)
	if data.closed != 1 {
		t.Errorf("closed %d times; want 1", data.closed)
	}

	// Values without resources finalize as a no-op.
	Finalize(42)
	Finalize(nil)
}
