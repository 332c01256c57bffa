package history

import (
	"testing"
	"time"

	"devfwd/internal/events"
	"devfwd/internal/model"
)

func TestTouchAndLastUsed(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := Touch("emulator-5554"); err != nil {
		t.Fatal(err)
	}
	lu, err := LastUsed()
	if err != nil {
		t.Fatal(err)
	}
	if lu["emulator-5554"] == 0 {
		t.Fatal("touch did not record a timestamp")
	}
	if lu["unknown"] != 0 {
		t.Fatal("untouched serial must read as zero")
	}
}

func TestLastUsedDerivedFromJournal(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	journal := events.NewStore()

	// Session and screenshot events count as activity on their own; the
	// newest timestamp per serial wins.
	old := time.Now().Add(-time.Hour)
	if err := journal.Append(events.Event{Serial: "A", EventType: events.TypeSessionStarted, Timestamp: old}); err != nil {
		t.Fatal(err)
	}
	if err := journal.Append(events.Event{Serial: "A", EventType: events.TypeScreenshot}); err != nil {
		t.Fatal(err)
	}
	if err := journal.Append(events.Event{EventType: events.TypeSessionStopped}); err != nil {
		t.Fatal(err)
	}

	lu, err := LastUsed()
	if err != nil {
		t.Fatal(err)
	}
	if lu["A"] <= old.Unix() {
		t.Fatalf("newest event must win: got %d, older event at %d", lu["A"], old.Unix())
	}
	if len(lu) != 1 {
		t.Fatalf("events without a serial must not appear: %v", lu)
	}
}

func TestLastUsedMissingJournal(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	lu, err := LastUsed()
	if err != nil {
		t.Fatal(err)
	}
	if len(lu) != 0 {
		t.Fatalf("expected empty map, got %v", lu)
	}
}

func TestSortDevicesRecent(t *testing.T) {
	devices := []model.DeviceEntry{
		{Serial: "C"},
		{Serial: "A"},
		{Serial: "B"},
	}
	lastUsed := map[string]int64{"B": 200, "C": 100}

	got := SortDevicesRecent(devices, lastUsed)
	want := []string{"B", "C", "A"}
	for i, w := range want {
		if got[i].Serial != w {
			t.Fatalf("position %d = %s, want %s (order %+v)", i, got[i].Serial, w, got)
		}
	}
	// Input is not mutated.
	if devices[0].Serial != "C" {
		t.Fatal("sort must copy, not mutate")
	}
}

func TestSortDevicesRecentTiesBySerial(t *testing.T) {
	devices := []model.DeviceEntry{{Serial: "z"}, {Serial: "a"}}
	got := SortDevicesRecent(devices, nil)
	if got[0].Serial != "a" || got[1].Serial != "z" {
		t.Fatalf("tie-break order wrong: %+v", got)
	}
}
