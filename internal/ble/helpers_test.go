package ble

import (
	"context"
	"crypto/aes"
	"encoding/binary"
	"log/slog"
	"sync"
	"testing"

	"github.com/pion/dtls/v2/pkg/crypto/ccm"

	"mitemp-gateway/internal/registry"
)

const testAddr registry.Address = 0xA4C138AABBCC

var testKey = [registry.KeySize]byte{
	0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
	0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
}

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *captureHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(_ string) slog.Handler { return h }

func (h *captureHandler) messages(level slog.Level) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range h.records {
		if r.Level == level {
			out = append(out, r.Message)
		}
	}
	return out
}

// encHeader builds the 5-byte header of an encrypted frame.
func encHeader(frameLen int, counter byte) []byte {
	h := []byte{byte(frameLen - 1), adTypeServiceData16, 0, 0, counter}
	binary.LittleEndian.PutUint16(h[offUUID:], environmentalSensingUUID)
	return h
}

// seal encrypts plain the way the sensor firmware does and returns the
// complete frame: header, ciphertext, tag.
func seal(t *testing.T, header, plain []byte, addr registry.Address, key [registry.KeySize]byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key[:])
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	nonce := Nonce(addr, header)
	aead, err := ccm.NewCCM(block, tagLen, len(nonce))
	if err != nil {
		t.Fatalf("ccm.NewCCM: %v", err)
	}
	frame := append([]byte(nil), header...)
	return aead.Seal(frame, nonce, plain, beaconAAD)
}

func customEncryptedFrame(t *testing.T, temp int16, humi uint16, bat byte, key [registry.KeySize]byte) []byte {
	t.Helper()
	plain := make([]byte, customEncDataLen)
	binary.LittleEndian.PutUint16(plain[0:], uint16(temp))
	binary.LittleEndian.PutUint16(plain[2:], humi)
	plain[4] = bat
	plain[5] = 0x00 // flags
	return seal(t, encHeader(customEncryptedLen, 0x2a), plain, testAddr, key)
}

func atcEncryptedFrame(t *testing.T, temp int16, humi uint16, bat byte, key [registry.KeySize]byte) []byte {
	t.Helper()
	plain := make([]byte, atcEncDataLen)
	binary.LittleEndian.PutUint16(plain[0:], uint16(temp))
	binary.LittleEndian.PutUint16(plain[2:], humi)
	plain[4] = bat
	return seal(t, encHeader(atcEncryptedLen, 0x07), plain, testAddr, key)
}

func plainHeader(frame []byte) {
	frame[offLength] = byte(len(frame) - 1)
	frame[offADType] = adTypeServiceData16
	binary.LittleEndian.PutUint16(frame[offUUID:], environmentalSensingUUID)
	copy(frame[4:10], []byte{0xCC, 0xBB, 0xAA, 0x38, 0xC1, 0xA4})
}

func customPlainFrame(temp int16, humi, mv uint16, bat byte) []byte {
	f := make([]byte, customPlainLen)
	plainHeader(f)
	binary.LittleEndian.PutUint16(f[customPlainTemp:], uint16(temp))
	binary.LittleEndian.PutUint16(f[customPlainHumi:], humi)
	binary.LittleEndian.PutUint16(f[customPlainMV:], mv)
	f[customPlainBattery] = bat
	f[17] = 0x10 // counter
	f[18] = 0x00 // flags
	return f
}

func atcPlainFrame(tempWire [2]byte, humi, bat byte, mvWire [2]byte) []byte {
	f := make([]byte, atcPlainLen)
	plainHeader(f)
	copy(f[atcPlainTemp:], tempWire[:])
	f[atcPlainHumi] = humi
	f[atcPlainBattery] = bat
	copy(f[atcPlainMV:], mvWire[:])
	f[16] = 0x10 // counter
	return f
}
