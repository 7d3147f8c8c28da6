package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type dialect struct {
	goose    string
	nowQuery string
	numbered bool
}

var dialects = map[string]dialect{
	"mysql":  {goose: "mysql", nowQuery: "SELECT NOW()"},
	"pgx":    {goose: "postgres", nowQuery: "SELECT LOCALTIMESTAMP", numbered: true},
	"sqlite": {goose: "sqlite3", nowQuery: "SELECT datetime('now', 'localtime')"},
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const wallClockLayout = "2006-01-02 15:04:05"

var wallClockLayouts = []string{
	wallClockLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
}

// newznab stores naive DATETIMEs, so only the wall clock is meaningful.
func (s *Store) formatWallClock(t time.Time) string {
	return t.In(s.loc).Format(wallClockLayout)
}

// wallClock converts a raw driver value into a time in the store's location, keeping the
// wall clock the database reported whatever zone the driver attached to it.
func (s *Store) wallClock(raw any) (sql.NullTime, error) {
	switch v := raw.(type) {
	case nil:
		return sql.NullTime{}, nil
	case time.Time:
		return sql.NullTime{Time: s.rebase(v), Valid: true}, nil
	case []byte:
		return s.parseWallClock(string(v))
	case string:
		return s.parseWallClock(v)
	default:
		return sql.NullTime{}, fmt.Errorf("unexpected datetime value %T", raw)
	}
}

func (s *Store) parseWallClock(v string) (sql.NullTime, error) {
	v = strings.TrimSpace(v)
	// MySQL zero dates come back when strict mode is off.
	if v == "" || strings.HasPrefix(v, "0000-00-00") {
		return sql.NullTime{}, nil
	}
	for _, layout := range wallClockLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return sql.NullTime{Time: s.rebase(t), Valid: true}, nil
		}
	}
	return sql.NullTime{}, fmt.Errorf("unrecognised datetime %q", v)
}

func (s *Store) rebase(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), s.loc)
}
