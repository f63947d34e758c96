package protocol

import (
	"bytes"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		len  int
		want FrameKind
	}{
		{"empty", 0, FrameFirmware},
		{"short", 4, FrameFirmware},
		{"just under", 9, FrameFirmware},
		{"boundary", 10, FrameTelemetry},
		{"long", 20, FrameTelemetry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(make([]byte, tt.len)); got != tt.want {
				t.Errorf("Classify(len=%d) = %v, want %v", tt.len, got, tt.want)
			}
		})
	}
}

func TestParseFirmware(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want FirmwareVersion
	}{
		{"v2 marker", []byte{0x01, 0x02, 0x03, 0x22}, FirmwareV2},
		{"v2 marker longer", []byte{0, 0, 0, 0x22, 0, 0}, FirmwareV2},
		{"other value", []byte{0, 0, 0, 0x21}, FirmwareV1},
		{"too short", []byte{0x22, 0x22, 0x22}, FirmwareV1},
		{"empty", nil, FirmwareV1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseFirmware(tt.data); got != tt.want {
				t.Errorf("ParseFirmware(%x) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

func TestPollStart(t *testing.T) {
	v1, err := PollStart(FirmwareV1)
	if err != nil {
		t.Fatalf("PollStart(V1) error = %v", err)
	}
	if !bytes.Equal(v1, []byte{0x62, 0x67}) {
		t.Errorf("PollStart(V1) = %x, want 6267", v1)
	}
	v2, err := PollStart(FirmwareV2)
	if err != nil {
		t.Fatalf("PollStart(V2) error = %v", err)
	}
	if !bytes.Equal(v2, []byte{0x62, 0x70}) {
		t.Errorf("PollStart(V2) = %x, want 6270", v2)
	}
	if _, err := PollStart(FirmwareUnknown); err == nil {
		t.Error("PollStart(Unknown) should fail")
	}

	// Callers own the returned slice.
	v2[0] = 0
	again, _ := PollStart(FirmwareV2)
	if again[0] != 0x62 {
		t.Error("PollStart returned a shared slice")
	}
}

func TestFirmwareQuery(t *testing.T) {
	tests := []struct {
		name string
		want byte
	}{
		{"FN12345", 0xD4},
		{"BB98765", 0xCF},
		{"MB11111", 0xCF},
		{"XYZ", 0xCF},
		{"F", 0xCF},
		{"fn12345", 0xCF},
	}
	for _, tt := range tests {
		got := FirmwareQuery(tt.name)
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("FirmwareQuery(%q) = %x, want %x", tt.name, got, tt.want)
		}
	}
}

func TestFamilyOf(t *testing.T) {
	tests := []struct {
		name string
		want Family
	}{
		{"MB1A2B3", FamilyMicroBit},
		{"BB1A2B3", FamilyHummingbird},
		{"FN1A2B3", FamilyFinch},
		{"Finch A", FamilyUnknown},
		{"", FamilyUnknown},
	}
	for _, tt := range tests {
		if got := FamilyOf(tt.name); got != tt.want {
			t.Errorf("FamilyOf(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPrefix(t *testing.T) {
	if got := Prefix("FN123"); got != "FN" {
		t.Errorf("Prefix(FN123) = %q", got)
	}
	if got := Prefix("F"); got != "F" {
		t.Errorf("Prefix(F) = %q", got)
	}
	if got := Prefix("é€x"); got != "é€" {
		t.Errorf("Prefix should count runes, got %q", got)
	}
}

func TestDecodeBlob(t *testing.T) {
	got, err := DecodeBlob("QUI=")
	if err != nil {
		t.Fatalf("DecodeBlob() error = %v", err)
	}
	if !bytes.Equal(got, []byte{0x41, 0x42}) {
		t.Errorf("DecodeBlob(QUI=) = %x, want 4142", got)
	}
	if _, err := DecodeBlob("not base64!"); err == nil {
		t.Error("DecodeBlob should reject invalid input")
	}
}

func TestFormatHex(t *testing.T) {
	tests := []struct {
		data []byte
		want string
	}{
		{nil, ""},
		{[]byte{0x0a}, "0A"},
		{[]byte{0x41, 0x42, 0x0a}, "41-42-0A"},
		{[]byte{0x00, 0xff, 0x10}, "00-FF-10"},
	}
	for _, tt := range tests {
		if got := FormatHex(tt.data); got != tt.want {
			t.Errorf("FormatHex(%x) = %q, want %q", tt.data, got, tt.want)
		}
	}
}
