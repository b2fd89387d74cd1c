package registry

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is a 48-bit BLE hardware address. The first octet of the usual
// colon-separated notation is the most significant byte.
type Address uint64

// ParseAddress parses "A4:C1:38:AA:BB:CC" (case-insensitive, ':' or '-'
// separators). The all-zero address is rejected.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(strings.ReplaceAll(s, "-", ":"), ":")
	if len(parts) != 6 {
		return 0, fmt.Errorf("invalid address %q: want 6 octets", s)
	}

	var a Address
	for _, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("invalid address %q: octet %q", s, p)
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return 0, fmt.Errorf("invalid address %q: %w", s, err)
		}
		a = a<<8 | Address(b[0])
	}
	if a == 0 {
		return 0, fmt.Errorf("invalid address %q: all zero", s)
	}
	return a, nil
}

func (a Address) String() string {
	b := a.BigEndian()
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}

// BigEndian returns the address in display order.
func (a Address) BigEndian() [6]byte {
	var out [6]byte
	for i := 0; i < 6; i++ {
		out[i] = byte(a >> (8 * (5 - i)))
	}
	return out
}

// LittleEndian returns the address in over-the-air order, least significant
// byte first.
func (a Address) LittleEndian() [6]byte {
	var out [6]byte
	for i := 0; i < 6; i++ {
		out[i] = byte(a >> (8 * i))
	}
	return out
}

// ShortName renders the lower 24 bits as six upper-case hex digits, the
// name the sensors show on their own displays.
func (a Address) ShortName() string {
	return fmt.Sprintf("%06X", uint64(a)&0xFFFFFF)
}
