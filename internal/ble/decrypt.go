package ble

import (
	"crypto/aes"
	"fmt"

	"github.com/pion/dtls/v2/pkg/crypto/ccm"

	"mitemp-gateway/internal/registry"
)

// beaconAAD is the single associated-data byte the firmware authenticates
// with every encrypted frame.
var beaconAAD = []byte{0x11}

// Nonce builds the CCM nonce: the sender address in over-the-air order
// followed by a copy of the frame header.
func Nonce(addr registry.Address, header []byte) []byte {
	mac := addr.LittleEndian()
	nonce := make([]byte, 0, len(mac)+len(header))
	nonce = append(nonce, mac[:]...)
	return append(nonce, header...)
}

// Decrypt authenticates and decrypts sealed (ciphertext followed by the
// 4-byte tag) with AES-128-CCM. On any failure the returned error wraps
// ErrAuthentication and no plaintext is returned.
func Decrypt(sealed, header []byte, addr registry.Address, key [registry.KeySize]byte) ([]byte, error) {
	if len(sealed) < tagLen {
		return nil, fmt.Errorf("%w: sealed payload too short (%d bytes)", ErrAuthentication, len(sealed))
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: aes: %v", ErrAuthentication, err)
	}

	nonce := Nonce(addr, header)
	aead, err := ccm.NewCCM(block, tagLen, len(nonce))
	if err != nil {
		return nil, fmt.Errorf("%w: ccm: %v", ErrAuthentication, err)
	}

	plain, err := aead.Open(nil, nonce, sealed, beaconAAD)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return plain, nil
}
