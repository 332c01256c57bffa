package events

import (
	"testing"
	"time"
)

func TestAppendAndRead(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()

	evts := []Event{
		{Serial: "A", EventType: TypeSessionStarted, Mapping: map[int]int{8080: 9001}},
		{Serial: "B", EventType: TypeSessionFailed, Message: "handshake timed out"},
		{Serial: "A", EventType: TypeSessionStopped},
	}
	for _, e := range evts {
		if err := s.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.Read(Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("read %d events, want 3", len(all))
	}
	if all[0].Timestamp.IsZero() {
		t.Fatal("append must stamp events")
	}
	if all[0].Mapping[8080] != 9001 {
		t.Fatalf("mapping not preserved: %+v", all[0])
	}

	bySerial, err := s.Read(Query{Serial: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if len(bySerial) != 2 {
		t.Fatalf("serial filter returned %d, want 2", len(bySerial))
	}

	byType, err := s.Read(Query{EventType: TypeSessionFailed})
	if err != nil {
		t.Fatal(err)
	}
	if len(byType) != 1 || byType[0].Message != "handshake timed out" {
		t.Fatalf("type filter returned %+v", byType)
	}
}

func TestReadLimitKeepsNewest(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()

	for _, msg := range []string{"one", "two", "three"} {
		if err := s.Append(Event{EventType: TypeScreenshot, Message: msg}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.Read(Query{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Message != "two" || got[1].Message != "three" {
		t.Fatalf("limit should keep the newest events, got %+v", got)
	}
}

func TestReadSinceFilter(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()

	old := Event{EventType: TypeSessionStarted, Timestamp: time.Now().Add(-time.Hour)}
	recent := Event{EventType: TypeSessionStarted}
	if err := s.Append(old); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(recent); err != nil {
		t.Fatal(err)
	}

	got, err := s.Read(Query{Since: time.Now().Add(-time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("since filter returned %d events, want 1", len(got))
	}
}

func TestReadMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	got, err := NewStore().Read(Query{})
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected no events, got %+v", got)
	}
}
