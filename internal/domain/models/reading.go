package models

import "time"

// Snapshot is one poll of the sensor hub: a value per signal name taken
// at a single instant. Missing signals are simply absent.
type Snapshot struct {
	Timestamp time.Time          `json:"ts"`
	Readings  map[string]float64 `json:"readings"`
}

// Clone returns a copy that does not share the readings map.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{Timestamp: s.Timestamp, Readings: make(map[string]float64, len(s.Readings))}
	for k, v := range s.Readings {
		out.Readings[k] = v
	}
	return out
}
