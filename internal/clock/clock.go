// Package clock builds timestamps the way the backend scheduler parses them:
// Europe/Paris wall time without a zone suffix.
package clock

import (
	"fmt"
	"time"
	_ "time/tzdata" // Europe/Paris must resolve on hosts without a zoneinfo db
)

// WallLayout is the suffix-less layout the scheduler expects.
const WallLayout = "2006-01-02T15:04:05"

var paris = mustLoad("Europe/Paris")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load %s: %v", name, err))
	}
	return loc
}

// Paris returns the Europe/Paris location.
func Paris() *time.Location { return paris }

// ParisWall formats t as Paris local wall time with no zone suffix.
func ParisWall(t time.Time) string {
	return t.In(paris).Format(WallLayout)
}

// ParisWallOffset formats now+offset, e.g. offset "-60s" for "one minute ago".
func ParisWallOffset(now time.Time, offset string) (string, error) {
	if offset == "" {
		return ParisWall(now), nil
	}
	d, err := time.ParseDuration(offset)
	if err != nil {
		return "", fmt.Errorf("paris offset %q: %w", offset, err)
	}
	return ParisWall(now.Add(d)), nil
}

// ParseParisWall parses a scheduler timestamp. Values carrying a zone are honored,
// bare values are read as Paris wall time.
func ParseParisWall(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{WallLayout, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, s, paris); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
