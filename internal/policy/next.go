package policy

import "time"

// NextMerge returns the next merge slot for a database clock reading of now: today's slot
// if it is still ahead of now, otherwise the same time tomorrow.
func (p Policy) NextMerge(now time.Time) time.Time {
	today := p.MergeAt.On(now)
	if today.After(now) {
		return today
	}
	return p.MergeAt.On(now.AddDate(0, 0, 1))
}

// NextRebuild returns the rebuild slot on the first configured weekday on or after now's
// date. When now already falls on that weekday the result is today's slot even if it has
// passed. It reports false when rebuilds are disabled.
func (p Policy) NextRebuild(now time.Time) (time.Time, bool) {
	if !p.RebuildEnabled {
		return time.Time{}, false
	}
	ahead := (int(p.RebuildDay) - int(now.Weekday()) + 7) % 7
	return p.RebuildAt.On(now.AddDate(0, 0, ahead)), true
}
