package ble

import "testing"

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"6E400001-B5A3-F393-E0A9-E50E24DCCA9E", ServiceUUID},
		{"6e400002b5a3f393e0a9e50e24dcca9e", TXCharUUID},
		{" 6e400003-b5a3-f393-e0a9-e50e24dcca9e ", RXCharUUID},
		{"2902", "2902"},
		{"180A", "180a"},
	}
	for _, tt := range tests {
		if got := NormalizeUUID(tt.in); got != tt.want {
			t.Errorf("NormalizeUUID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSameUUID(t *testing.T) {
	if !SameUUID("6E400002B5A3F393E0A9E50E24DCCA9E", TXCharUUID) {
		t.Error("SameUUID should ignore case and dashes")
	}
	if SameUUID(TXCharUUID, RXCharUUID) {
		t.Error("SameUUID(tx, rx) = true, want false")
	}
}
