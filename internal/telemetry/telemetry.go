// Package telemetry defines the normalised sensor record and the emitter
// that hands it to the message sink.
package telemetry

// Telemetry is a decoded sensor reading as published on the sensor topic.
// Battery and Voltage are only present for formats that carry them.
type Telemetry struct {
	Sensor      string  `json:"sensor"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Battery     *uint8  `json:"battery,omitempty"`
	Voltage     *uint16 `json:"voltage,omitempty"`
	Time        int64   `json:"time"`
	RSSI        int     `json:"rssi"`
}

// Uint8 returns a pointer to v.
func Uint8(v uint8) *uint8 { return &v }

// Uint16 returns a pointer to v.
func Uint16(v uint16) *uint16 { return &v }
