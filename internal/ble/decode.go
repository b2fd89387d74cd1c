package ble

import (
	"errors"
	"fmt"

	"mitemp-gateway/internal/registry"
	"mitemp-gateway/internal/telemetry"
)

var (
	// ErrUnrecognized is returned for frames that match no known layout.
	ErrUnrecognized = errors.New("unrecognized advertisement")
	// ErrHeaderMismatch is returned when a frame has a known length but the
	// wrong AD type or service UUID.
	ErrHeaderMismatch = errors.New("advertisement header mismatch")
	// ErrMissingKey is returned for encrypted frames from a sensor without a
	// configured bind key.
	ErrMissingKey = errors.New("no bind key for encrypted advertisement")
	// ErrAuthentication is returned when CCM authentication fails.
	ErrAuthentication = errors.New("advertisement authentication failed")
)

// Decode classifies payload and runs the matching decoder. The returned
// record carries measurements only; sensor name, time and rssi are added by
// the emitter.
func Decode(payload []byte, sensor registry.Sensor) (telemetry.Telemetry, Format, error) {
	format := Classify(payload)

	var (
		rec telemetry.Telemetry
		err error
	)
	switch format {
	case CustomEncrypted:
		rec, err = DecodeCustomEncrypted(payload, sensor.Address, sensor.Key)
	case AtcEncrypted:
		rec, err = DecodeAtcEncrypted(payload, sensor.Address, sensor.Key)
	case CustomPlain:
		rec, err = DecodeCustomPlain(payload)
	case AtcPlain:
		rec, err = DecodeAtcPlain(payload)
	default:
		err = ErrUnrecognized
	}
	return rec, format, err
}

// DecodeCustomEncrypted decodes the pvvx custom encrypted format.
func DecodeCustomEncrypted(payload []byte, addr registry.Address, key *[registry.KeySize]byte) (telemetry.Telemetry, error) {
	plain, err := open(payload, customEncryptedLen, customEncDataLen, addr, key)
	if err != nil {
		return telemetry.Telemetry{}, err
	}
	d := fields(plain)
	return telemetry.Telemetry{
		Temperature: float64(int16(d.le16(0))) / 100,
		Humidity:    float64(d.le16(2)) / 100,
		Battery:     telemetry.Uint8(d.u8(4)),
	}, nil
}

// DecodeAtcEncrypted decodes the atc1441 encrypted format. The top bit of
// the battery byte is a trigger flag and is masked off.
func DecodeAtcEncrypted(payload []byte, addr registry.Address, key *[registry.KeySize]byte) (telemetry.Telemetry, error) {
	plain, err := open(payload, atcEncryptedLen, atcEncDataLen, addr, key)
	if err != nil {
		return telemetry.Telemetry{}, err
	}
	d := fields(plain)
	return telemetry.Telemetry{
		Temperature: float64(int16(d.le16(0)))/2 - 40,
		Humidity:    float64(d.le16(2)) / 2,
		Battery:     telemetry.Uint8(d.u8(4) & 0x7F),
	}, nil
}

// DecodeCustomPlain decodes the pvvx custom unencrypted format.
func DecodeCustomPlain(payload []byte) (telemetry.Telemetry, error) {
	if len(payload) != customPlainLen {
		return telemetry.Telemetry{}, ErrUnrecognized
	}
	if !VerifyHeader(payload) {
		return telemetry.Telemetry{}, ErrHeaderMismatch
	}
	f := fields(payload)
	return telemetry.Telemetry{
		Temperature: float64(int16(f.le16(customPlainTemp))) / 100,
		Humidity:    float64(f.le16(customPlainHumi)) / 100,
		Battery:     telemetry.Uint8(f.u8(customPlainBattery)),
		Voltage:     telemetry.Uint16(f.le16(customPlainMV)),
	}, nil
}

// DecodeAtcPlain decodes the original atc1441 format, whose multi-byte
// fields are big-endian.
func DecodeAtcPlain(payload []byte) (telemetry.Telemetry, error) {
	if len(payload) != atcPlainLen {
		return telemetry.Telemetry{}, ErrUnrecognized
	}
	if !VerifyHeader(payload) {
		return telemetry.Telemetry{}, ErrHeaderMismatch
	}
	f := fields(payload)
	return telemetry.Telemetry{
		Temperature: float64(int16(f.be16(atcPlainTemp))) / 10,
		Humidity:    float64(f.u8(atcPlainHumi)),
		Battery:     telemetry.Uint8(f.u8(atcPlainBattery)),
		Voltage:     telemetry.Uint16(f.be16(atcPlainMV)),
	}, nil
}

// open verifies the header of an encrypted frame and only then decrypts
// the data block that follows it.
func open(payload []byte, frameLen, dataLen int, addr registry.Address, key *[registry.KeySize]byte) ([]byte, error) {
	if len(payload) != frameLen {
		return nil, ErrUnrecognized
	}
	header := payload[:encHeaderLen]
	if !VerifyHeader(header) {
		return nil, ErrHeaderMismatch
	}
	if key == nil {
		return nil, ErrMissingKey
	}

	plain, err := Decrypt(payload[encHeaderLen:], header, addr, *key)
	if err != nil {
		return nil, err
	}
	if len(plain) != dataLen {
		return nil, fmt.Errorf("%w: plaintext is %d bytes, want %d", ErrAuthentication, len(plain), dataLen)
	}
	return plain, nil
}
