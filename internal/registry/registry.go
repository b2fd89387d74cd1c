// Package registry holds the immutable set of sensors the gateway listens
// to, keyed by hardware address.
package registry

import (
	"encoding/hex"
	"log/slog"
	"slices"
	"strings"
)

// KeySize is the AES-128 bind key length in bytes.
const KeySize = 16

// Entry is one configured sensor as supplied by configuration. Key and Name
// may be empty.
type Entry struct {
	Address string
	Key     string
	Name    string
}

// Sensor is a registered sensor. Key is nil when no usable bind key was
// configured; encrypted advertisements from such a sensor are refused.
type Sensor struct {
	Address Address
	Key     *[KeySize]byte
	Name    string
	Topic   string
}

// HasKey reports whether a bind key is configured.
func (s Sensor) HasKey() bool { return s.Key != nil }

// Registry is read-only after Build and safe for concurrent lookups.
type Registry struct {
	sensors map[Address]Sensor
	byName  map[string]Address
}

// Build converts configuration entries into a Registry. Entries with an
// unparsable address are logged and skipped; entries with an unusable key
// are logged and kept without a key.
func Build(entries []Entry, topicPrefix string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	topicPrefix = strings.TrimRight(topicPrefix, "/")

	sensors := make(map[Address]Sensor, len(entries))
	for _, e := range entries {
		addr, err := ParseAddress(e.Address)
		if err != nil {
			logger.Error("registry: invalid sensor address", "addr", e.Address, "error", err)
			continue
		}

		s := Sensor{Address: addr}
		if k := strings.TrimSpace(e.Key); k != "" {
			key, ok := parseKey(k)
			if ok {
				s.Key = key
			} else {
				logger.Warn("registry: invalid bind key, encrypted frames will be dropped",
					"addr", addr.String(),
					"key_len", len(k),
				)
			}
		}

		s.Name = strings.TrimSpace(e.Name)
		if s.Name == "" {
			s.Name = addr.ShortName()
		}
		s.Topic = topicPrefix + "/" + s.Name

		if _, dup := sensors[addr]; dup {
			logger.Warn("registry: duplicate sensor address, later entry wins", "addr", addr.String())
		}
		sensors[addr] = s
	}

	// Shared names mean a shared topic; the lowest address answers ByName.
	addrs := make([]Address, 0, len(sensors))
	for addr := range sensors {
		addrs = append(addrs, addr)
	}
	slices.Sort(addrs)
	byName := make(map[string]Address, len(sensors))
	for _, addr := range addrs {
		name := sensors[addr].Name
		if first, dup := byName[name]; dup {
			logger.Warn("registry: duplicate sensor name, sensors share a topic",
				"name", name,
				"topic", sensors[addr].Topic,
				"addr", addr.String(),
				"first_addr", first.String(),
			)
			continue
		}
		byName[name] = addr
	}

	logger.Info("registry: sensors loaded", "count", len(sensors), "configured", len(entries))
	return &Registry{sensors: sensors, byName: byName}
}

// Lookup returns the sensor registered for addr. A miss is the normal
// outcome for foreign devices.
func (r *Registry) Lookup(addr Address) (Sensor, bool) {
	if r == nil {
		return Sensor{}, false
	}
	s, ok := r.sensors[addr]
	return s, ok
}

// ByName returns the sensor with the given display name.
func (r *Registry) ByName(name string) (Sensor, bool) {
	if r == nil {
		return Sensor{}, false
	}
	addr, ok := r.byName[name]
	if !ok {
		return Sensor{}, false
	}
	return r.sensors[addr], true
}

// Len returns the number of registered sensors.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.sensors)
}

// Sensors returns a copy of all registered sensors in no particular order.
func (r *Registry) Sensors() []Sensor {
	if r == nil {
		return nil
	}
	out := make([]Sensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		out = append(out, s)
	}
	return out
}

func parseKey(s string) (*[KeySize]byte, bool) {
	if len(s) != 2*KeySize {
		return nil, false
	}
	var key [KeySize]byte
	if _, err := hex.Decode(key[:], []byte(s)); err != nil {
		return nil, false
	}
	return &key, true
}
