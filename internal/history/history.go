// Package history derives device recency from the event journal. Any
// journaled event carrying a serial counts as activity, so session
// starts and screenshots feed recency for free; commands with nothing
// else to journal record a plain device-used event via Touch.
package history

import (
	"sort"

	"devfwd/internal/events"
	"devfwd/internal/model"
)

// Touch records activity for a device serial.
func Touch(serial string) error {
	return events.NewStore().Append(events.Event{
		Serial:    serial,
		EventType: events.TypeDeviceUsed,
	})
}

// LastUsed returns the most recent journal timestamp per serial.
func LastUsed() (map[string]int64, error) {
	evts, err := events.NewStore().Read(events.Query{})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	for _, evt := range evts {
		if evt.Serial == "" {
			continue
		}
		if ts := evt.Timestamp.Unix(); ts > out[evt.Serial] {
			out[evt.Serial] = ts
		}
	}
	return out, nil
}

// SortDevicesRecent returns a new slice sorted by recent activity (desc),
// then serial.
func SortDevicesRecent(devices []model.DeviceEntry, lastUsed map[string]int64) []model.DeviceEntry {
	out := append([]model.DeviceEntry(nil), devices...)
	sort.Slice(out, func(i, j int) bool {
		ti := lastUsed[out[i].Serial]
		tj := lastUsed[out[j].Serial]
		if ti != tj {
			return ti > tj
		}
		return out[i].Serial < out[j].Serial
	})
	return out
}
