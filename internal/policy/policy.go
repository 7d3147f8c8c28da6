package policy

import (
	"errors"
	"fmt"
	"time"
)

// Setting names in newznab's site table.
const (
	KeyMergeTime   = "sphinxmergefreq"
	KeyMergeCount  = "sphinxmergefreq_count"
	KeyRebuildDay  = "sphinxrebuildfreq_day"
	KeyRebuildTime = "sphinxrebuildfreq"
)

// Keys lists every setting a Policy is built from, in lookup order.
var Keys = []string{KeyMergeTime, KeyMergeCount, KeyRebuildDay, KeyRebuildTime}

var ErrBadTimeFormat = errors.New("bad time of day")

// TimeOfDay is an hour and minute on the 24-hour clock.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d%02d", t.Hour, t.Minute)
}

// On returns the instant at t on the calendar day of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

// ParseTimeOfDay parses a zero-padded "HHMM" value such as "0330".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	if len(raw) != 4 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrBadTimeFormat, raw)
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrBadTimeFormat, raw)
		}
	}
	hh := int(raw[0]-'0')*10 + int(raw[1]-'0')
	mm := int(raw[2]-'0')*10 + int(raw[3]-'0')
	if hh > 23 || mm > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrBadTimeFormat, raw)
	}
	return TimeOfDay{Hour: hh, Minute: mm}, nil
}

var weekdays = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

// ParseWeekday resolves an English day name. Matching is exact and case-sensitive; any
// other value reports false.
func ParseWeekday(name string) (time.Weekday, bool) {
	day, ok := weekdays[name]
	return day, ok
}

// Policy is the merge/rebuild recurrence configured in newznab.
type Policy struct {
	MergeAt    TimeOfDay
	MergeCount string

	// RebuildEnabled is false when the configured day is not a weekday name.
	RebuildEnabled bool
	RebuildDay     time.Weekday
	RebuildAt      TimeOfDay
}

// Parse builds a Policy from raw site settings. Every key in Keys must be present.
func Parse(settings map[string]string) (Policy, error) {
	var p Policy
	for _, key := range Keys {
		if _, ok := settings[key]; !ok {
			return p, fmt.Errorf("missing setting %q", key)
		}
	}

	mergeAt, err := ParseTimeOfDay(settings[KeyMergeTime])
	if err != nil {
		return p, fmt.Errorf("%s: %w", KeyMergeTime, err)
	}
	p.MergeAt = mergeAt
	p.MergeCount = settings[KeyMergeCount]

	day, ok := ParseWeekday(settings[KeyRebuildDay])
	if !ok {
		return p, nil
	}
	rebuildAt, err := ParseTimeOfDay(settings[KeyRebuildTime])
	if err != nil {
		return p, fmt.Errorf("%s: %w", KeyRebuildTime, err)
	}
	p.RebuildEnabled = true
	p.RebuildDay = day
	p.RebuildAt = rebuildAt
	return p, nil
}
