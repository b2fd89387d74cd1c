package ble

import "encoding/binary"

// Format identifies one of the advertisement layouts sent by the custom
// thermometer firmware. Frames carry no type tag: the format is known only
// from the exact frame length.
type Format int

const (
	Unrecognized Format = iota
	CustomEncrypted
	AtcEncrypted
	CustomPlain
	AtcPlain
)

func (f Format) String() string {
	switch f {
	case CustomEncrypted:
		return "custom-encrypted"
	case AtcEncrypted:
		return "atc1441-encrypted"
	case CustomPlain:
		return "custom"
	case AtcPlain:
		return "atc1441"
	default:
		return "unrecognized"
	}
}

// Encrypted reports whether frames of this format need a bind key.
func (f Format) Encrypted() bool {
	return f == CustomEncrypted || f == AtcEncrypted
}

// Frame layouts. Offsets are from the start of the advertisement data
// element, i.e. payload[0] is the element length byte.
const (
	// common to all formats
	offLength = 0
	offADType = 1
	offUUID   = 2

	// encrypted formats: size, type, uuid(2), counter
	encHeaderLen = 5
	tagLen       = 4

	customEncDataLen = 6 // temp i16, humi u16, battery u8, flags u8
	atcEncDataLen    = 5 // temp i16, humi u16, battery u8

	customEncryptedLen = encHeaderLen + customEncDataLen + tagLen // 15
	atcEncryptedLen    = encHeaderLen + atcEncDataLen + tagLen    // 14

	// custom plain: size, type, uuid(2), mac(6), temp i16, humi u16,
	// mV u16, battery u8, counter u8, flags u8
	customPlainLen     = 19
	customPlainTemp    = 10
	customPlainHumi    = 12
	customPlainMV      = 14
	customPlainBattery = 16

	// atc1441 plain: size, type, uuid(2), mac(6), temp i16 BE, humi u8,
	// battery u8, mV u16 BE, counter u8
	atcPlainLen     = 17
	atcPlainTemp    = 10
	atcPlainHumi    = 12
	atcPlainBattery = 13
	atcPlainMV      = 14
)

const (
	// adTypeServiceData16 is the "Service Data - 16-bit UUID" AD type.
	adTypeServiceData16 = 0x16
	// environmentalSensingUUID is the GATT Environmental Sensing service.
	environmentalSensingUUID = 0x181A
)

// Classify checks that payload is exactly one advertisement data element
// and maps its total length to a Format. The content beyond the length byte
// is not inspected.
func Classify(payload []byte) Format {
	if len(payload) == 0 || int(payload[offLength]) != len(payload)-1 {
		return Unrecognized
	}
	switch len(payload) {
	case customEncryptedLen:
		return CustomEncrypted
	case atcEncryptedLen:
		return AtcEncrypted
	case customPlainLen:
		return CustomPlain
	case atcPlainLen:
		return AtcPlain
	default:
		return Unrecognized
	}
}

// VerifyHeader checks the AD type and service UUID shared by every format.
// A mismatch means the frame only happens to have a known length.
func VerifyHeader(header []byte) bool {
	if len(header) < offUUID+2 {
		return false
	}
	return header[offADType] == adTypeServiceData16 &&
		binary.LittleEndian.Uint16(header[offUUID:]) == environmentalSensingUUID
}

// fields reads fixed-offset values from a verified frame or plaintext.
// Callers guarantee the length, so no bounds are re-checked here.
type fields []byte

func (f fields) u8(off int) uint8 { return f[off] }

func (f fields) le16(off int) uint16 { return binary.LittleEndian.Uint16(f[off:]) }

func (f fields) be16(off int) uint16 { return binary.BigEndian.Uint16(f[off:]) }
