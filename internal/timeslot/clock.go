// Package timeslot holds the civil date and time-of-day types used for
// booking slots. Clock is the only place where stored second-precision times
// are reconciled with minute-granular slots.
package timeslot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

var ErrInvalidClock = errors.New("invalid time of day")

// Clock is a time of day stored as seconds since midnight.
type Clock int

// NewClock builds a Clock from its components.
func NewClock(hour, minute, second int) (Clock, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d:%02d", ErrInvalidClock, hour, minute, second)
	}
	return Clock(hour*3600 + minute*60 + second), nil
}

// MustClock is NewClock for constants.
func MustClock(hour, minute int) Clock {
	c, err := NewClock(hour, minute, 0)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseClock accepts "H:MM", "HH:MM", "HH:MM:SS" and "HH:MM:SS.ffffff".
// Fractional seconds are dropped.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	var nums [3]int
	for i, p := range parts {
		if p == "" || len(p) > 2 || (i > 0 && len(p) != 2) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
		nums[i] = n
	}

	return NewClock(nums[0], nums[1], nums[2])
}

func (c Clock) Hour() int   { return int(c) / 3600 }
func (c Clock) Minute() int { return int(c) % 3600 / 60 }
func (c Clock) Second() int { return int(c) % 60 }

// TruncateToMinute drops the seconds component.
func (c Clock) TruncateToMinute() Clock {
	return c - Clock(c.Second())
}

// SameMinute compares two clocks at slot granularity.
func (c Clock) SameMinute(other Clock) bool {
	return c.TruncateToMinute() == other.TruncateToMinute()
}

// String renders minute precision, the slot representation.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// StoreString renders second precision, the representation the store keeps.
func (c Clock) StoreString() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour(), c.Minute(), c.Second())
}

// ParseClocks parses a list, skipping entries that do not parse.
func ParseClocks(values []string) ([]Clock, []error) {
	out := make([]Clock, 0, len(values))
	var errs []error
	for _, v := range values {
		c, err := ParseClock(v)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, c)
	}
	return out, errs
}

// Strings renders clocks at minute precision.
func Strings(clocks []Clock) []string {
	out := make([]string, len(clocks))
	for i, c := range clocks {
		out[i] = c.String()
	}
	return out
}

var defaultSlots = sync.OnceValue(func() []Clock {
	return []Clock{
		MustClock(8, 0), MustClock(9, 0), MustClock(10, 0), MustClock(11, 0),
		MustClock(14, 0), MustClock(15, 0), MustClock(16, 0), MustClock(17, 0),
	}
})

// DefaultSlots returns a copy of the slot list used when a provider has no
// template.
func DefaultSlots() []Clock {
	return append([]Clock(nil), defaultSlots()...)
}
