package clock_test

import (
	"strings"
	"testing"
	"time"

	"coach-qa/internal/clock"
)

func TestParisWall_NoSuffixAndDST(t *testing.T) {
	summer := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	if got, want := clock.ParisWall(summer), "2026-07-01T12:00:00"; got != want {
		t.Fatalf("summer = %s, want %s", got, want)
	}
	winter := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	if got, want := clock.ParisWall(winter), "2026-01-15T11:00:00"; got != want {
		t.Fatalf("winter = %s, want %s", got, want)
	}
	if strings.ContainsAny(clock.ParisWall(winter), "Z+") {
		t.Fatal("wall time must not carry a zone suffix")
	}
}

func TestParisWallOffset_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	s, err := clock.ParisWallOffset(now, "-60s")
	if err != nil {
		t.Fatalf("offset: %v", err)
	}
	back, err := clock.ParseParisWall(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !back.Equal(now.Add(-time.Minute)) {
		t.Fatalf("round trip = %v, want %v", back, now.Add(-time.Minute))
	}
	if _, err := clock.ParisWallOffset(now, "soon"); err == nil {
		t.Fatal("expected error for bad offset")
	}
}

func TestParseParisWall_HonorsZone(t *testing.T) {
	got, err := clock.ParseParisWall("2026-03-10T08:30:00Z")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)) {
		t.Fatalf("got %v", got)
	}
}
