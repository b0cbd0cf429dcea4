package gpio

import "testing"

func TestIsPWMCapable(t *testing.T) {
	for _, pin := range []int{12, 13, 18, 19} {
		if !IsPWMCapable(pin) {
			t.Errorf("pin %d should be PWM capable", pin)
		}
	}
	for _, pin := range []int{0, 4, 17, 27} {
		if IsPWMCapable(pin) {
			t.Errorf("pin %d should not be PWM capable", pin)
		}
	}
}

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver(mock): %v", err)
	}
	if _, ok := d.(*MockDriver); !ok {
		t.Fatalf("expected *MockDriver, got %T", d)
	}
	if err := d.SetupPWM(18, 1_000_000); err != nil {
		t.Errorf("SetupPWM: %v", err)
	}
	if err := d.WriteDuty(18, 1500, 20000); err != nil {
		t.Errorf("WriteDuty: %v", err)
	}
	lvl, err := d.ReadPin(4)
	if err != nil || lvl != Low {
		t.Errorf("ReadPin = %v, %v; want Low, nil", lvl, err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
