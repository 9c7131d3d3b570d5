package provider

import (
	"fmt"
	"strings"
	"time"
)

// Interval is a half-open datetime range [Start, End). A nil side is
// unbounded. A single instant expands to [t, t+1µs) so that equality
// queries match the instant itself.
type Interval struct {
	Start *time.Time
	End   *time.Time
}

// ParseInterval parses the datetime query parameter:
//
//	2019-11-14T11:16:02Z                    instant
//	2019-11-14T00:00:00Z/2019-11-15T00:00:00Z
//	../2019-11-15T00:00:00Z                 open start
//	2019-11-14T00:00:00Z/..                 open end
//
// An empty string yields (nil, nil): no temporal filter.
func ParseInterval(s string) (*Interval, error) {
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		t, err := parseInstant(parts[0])
		if err != nil {
			return nil, err
		}
		end := t.Add(time.Microsecond)
		return &Interval{Start: &t, End: &end}, nil
	case 2:
		iv := &Interval{}
		if parts[0] != ".." && parts[0] != "" {
			t, err := parseInstant(parts[0])
			if err != nil {
				return nil, err
			}
			iv.Start = &t
		}
		if parts[1] != ".." && parts[1] != "" {
			t, err := parseInstant(parts[1])
			if err != nil {
				return nil, err
			}
			iv.End = &t
		}
		if iv.Start == nil && iv.End == nil {
			return nil, fmt.Errorf("%w: datetime interval is open on both sides", ErrInvalidQuery)
		}
		if iv.Start != nil && iv.End != nil && iv.End.Before(*iv.Start) {
			return nil, fmt.Errorf("%w: datetime interval end precedes start", ErrInvalidQuery)
		}
		return iv, nil
	default:
		return nil, fmt.Errorf("%w: datetime must be an instant or an interval", ErrInvalidQuery)
	}
}

func parseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: datetime %q is not RFC 3339", ErrInvalidQuery, s)
	}
	return t.UTC(), nil
}
