// Package protocol implements the BlueBird robot byte protocol: framing of
// inbound notifications and encoding of outbound commands.
package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// FirmwareFrameMaxLen is the length bound separating firmware-version
// responses from telemetry. The firmware carries no frame-type tag, so a
// payload shorter than this is the firmware response.
const FirmwareFrameMaxLen = 10

// v2Marker at byte offset 3 of the firmware response selects V2.
const (
	versionOffset = 3
	v2Marker      = 0x22
)

// Opcodes.
const (
	opFirmwareQuery      = 0xCF
	opFirmwareQueryFinch = 0xD4
)

var (
	pollStartV1 = []byte{0x62, 0x67}
	pollStartV2 = []byte{0x62, 0x70}
)

// FirmwareVersion is the robot firmware generation learned at handshake.
type FirmwareVersion int

const (
	FirmwareUnknown FirmwareVersion = iota
	FirmwareV1
	FirmwareV2
)

func (v FirmwareVersion) String() string {
	switch v {
	case FirmwareV1:
		return "V1"
	case FirmwareV2:
		return "V2"
	default:
		return "unknown"
	}
}

// Family is the robot line selected by the first two characters of its name.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyMicroBit
	FamilyHummingbird
	FamilyFinch
)

func (f Family) String() string {
	switch f {
	case FamilyMicroBit:
		return "micro:bit"
	case FamilyHummingbird:
		return "Hummingbird"
	case FamilyFinch:
		return "Finch"
	default:
		return "unknown"
	}
}

// Prefix returns the device-type prefix of name: its first two characters,
// or the whole name when shorter.
func Prefix(name string) string {
	r := []rune(name)
	if len(r) > 2 {
		r = r[:2]
	}
	return string(r)
}

// FamilyOf maps a device name to its robot family.
func FamilyOf(name string) Family {
	switch Prefix(name) {
	case "MB":
		return FamilyMicroBit
	case "BB":
		return FamilyHummingbird
	case "FN":
		return FamilyFinch
	default:
		return FamilyUnknown
	}
}

// FrameKind classifies an inbound notification.
type FrameKind int

const (
	FrameTelemetry FrameKind = iota
	FrameFirmware
)

// Classify returns the kind of an inbound rx payload.
func Classify(data []byte) FrameKind {
	if len(data) < FirmwareFrameMaxLen {
		return FrameFirmware
	}
	return FrameTelemetry
}

// ParseFirmware reads the firmware version out of a firmware response. A
// payload too short to carry offset 3 is V1.
func ParseFirmware(data []byte) FirmwareVersion {
	if len(data) > versionOffset && data[versionOffset] == v2Marker {
		return FirmwareV2
	}
	return FirmwareV1
}

// FirmwareQuery returns the handshake command for a device name. Finch robots
// answer a different opcode than every other family.
func FirmwareQuery(name string) []byte {
	if FamilyOf(name) == FamilyFinch {
		return []byte{opFirmwareQueryFinch}
	}
	return []byte{opFirmwareQuery}
}

// PollStart returns the command that starts sensor streaming for v.
// FirmwareUnknown has no poll-start command.
func PollStart(v FirmwareVersion) ([]byte, error) {
	var cmd []byte
	switch v {
	case FirmwareV1:
		cmd = pollStartV1
	case FirmwareV2:
		cmd = pollStartV2
	default:
		return nil, errors.New("protocol: poll start needs a known firmware version")
	}
	out := make([]byte, len(cmd))
	copy(out, cmd)
	return out, nil
}

// DecodeBlob decodes a base64 sendBlob payload into the bytes to write.
func DecodeBlob(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode blob: %w", err)
	}
	return data, nil
}

const hexDigits = "0123456789ABCDEF"

// FormatHex renders data as upper-case hex bytes joined by '-', e.g.
// "41-42-0A". An empty payload renders as "".
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(data)*3 - 1)
	for i, c := range data {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}
