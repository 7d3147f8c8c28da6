package policy

import (
	"errors"
	"testing"
	"time"
)

func settings(mergeAt, rebuildDay, rebuildAt string) map[string]string {
	return map[string]string{
		KeyMergeTime:   mergeAt,
		KeyMergeCount:  "1",
		KeyRebuildDay:  rebuildDay,
		KeyRebuildTime: rebuildAt,
	}
}

func mustParse(t *testing.T, s map[string]string) Policy {
	t.Helper()
	p, err := Parse(s)
	if err != nil {
		t.Fatalf("parse policy: %v", err)
	}
	return p
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("0330")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tod.Hour != 3 || tod.Minute != 30 {
		t.Fatalf("expected 03:30, got %+v", tod)
	}
	if tod.String() != "0330" {
		t.Fatalf("expected round trip, got %q", tod.String())
	}

	for _, raw := range []string{"", "330", "03:30", "2400", "0060", "abcd", "03300"} {
		if _, err := ParseTimeOfDay(raw); !errors.Is(err, ErrBadTimeFormat) {
			t.Fatalf("expected ErrBadTimeFormat for %q, got %v", raw, err)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	day, ok := ParseWeekday("Friday")
	if !ok || day != time.Friday {
		t.Fatalf("expected Friday, got %v %v", day, ok)
	}
	for _, name := range []string{"", "Disabled", "friday", "FRIDAY", "Fri"} {
		if _, ok := ParseWeekday(name); ok {
			t.Fatalf("expected %q to be unrecognised", name)
		}
	}
}

func TestParseRebuildDisabledSkipsRebuildTime(t *testing.T) {
	p := mustParse(t, settings("0330", "Disabled", "garbage"))
	if p.RebuildEnabled {
		t.Fatalf("expected rebuilds disabled")
	}
	if p.MergeCount != "1" {
		t.Fatalf("expected merge count carried, got %q", p.MergeCount)
	}
}

func TestParseBadTimes(t *testing.T) {
	if _, err := Parse(settings("3:30", "Friday", "0400")); !errors.Is(err, ErrBadTimeFormat) {
		t.Fatalf("expected bad merge time, got %v", err)
	}
	if _, err := Parse(settings("0330", "Friday", "4am")); !errors.Is(err, ErrBadTimeFormat) {
		t.Fatalf("expected bad rebuild time, got %v", err)
	}
}

func TestParseMissingKey(t *testing.T) {
	s := settings("0330", "Friday", "0400")
	delete(s, KeyRebuildDay)
	if _, err := Parse(s); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestNextMerge(t *testing.T) {
	p := mustParse(t, settings("0330", "", ""))

	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{
			now:  time.Date(2024, 3, 10, 3, 30, 0, 0, time.UTC),
			want: time.Date(2024, 3, 11, 3, 30, 0, 0, time.UTC),
		},
		{
			now:  time.Date(2024, 3, 10, 3, 29, 59, 0, time.UTC),
			want: time.Date(2024, 3, 10, 3, 30, 0, 0, time.UTC),
		},
		{
			now:  time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 1, 3, 30, 0, 0, time.UTC),
		},
		{
			now:  time.Date(2023, 12, 31, 12, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 1, 3, 30, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		got := p.NextMerge(tc.now)
		if !got.Equal(tc.want) {
			t.Fatalf("now=%s: expected %s, got %s", tc.now, tc.want, got)
		}
		if !got.After(tc.now) {
			t.Fatalf("now=%s: expected result after now, got %s", tc.now, got)
		}
		if again := p.NextMerge(tc.now); !again.Equal(got) {
			t.Fatalf("expected idempotent result, got %s then %s", got, again)
		}
	}
}

func TestNextMergeKeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	p := mustParse(t, settings("0330", "", ""))
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, loc)
	got := p.NextMerge(now)
	if got.Day() != 10 || got.Hour() != 3 || got.Minute() != 30 {
		t.Fatalf("expected 2024-03-10 03:30 local, got %s", got)
	}
}

func TestNextRebuild(t *testing.T) {
	p := mustParse(t, settings("0330", "Friday", "0400"))

	// Wednesday -> Friday of the same week.
	now := time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)
	got, ok := p.NextRebuild(now)
	if !ok {
		t.Fatalf("expected rebuild enabled")
	}
	if want := time.Date(2024, 3, 15, 4, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}

	// Saturday -> next Friday.
	now = time.Date(2024, 3, 16, 1, 0, 0, 0, time.UTC)
	got, _ = p.NextRebuild(now)
	if want := time.Date(2024, 3, 22, 4, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestNextRebuildSameDayEvenWhenPassed(t *testing.T) {
	p := mustParse(t, settings("0330", "Friday", "0400"))
	now := time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)
	got, ok := p.NextRebuild(now)
	if !ok {
		t.Fatalf("expected rebuild enabled")
	}
	if want := time.Date(2024, 3, 15, 4, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected same-day slot %s, got %s", want, got)
	}
}

func TestNextRebuildDisabled(t *testing.T) {
	p := mustParse(t, settings("0330", "", "0400"))
	if _, ok := p.NextRebuild(time.Now()); ok {
		t.Fatalf("expected rebuild disabled")
	}
}
