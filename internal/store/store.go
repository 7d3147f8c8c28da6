package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var ErrMissingSetting = errors.New("missing site setting")

// Store is a single-connection handle on a newznab database.
type Store struct {
	db      *sql.DB
	dialect dialect
	loc     *time.Location
}

// Open connects with the named database/sql driver ("mysql", "pgx" or "sqlite") and
// verifies the connection. Datetimes are read and written as wall-clock values in loc.
func Open(ctx context.Context, driverName, dsn string, loc *time.Location) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("missing database dsn")
	}
	d, ok := dialects[driverName]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driverName)
	}
	if loc == nil {
		loc = time.Local
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, dialect: d, loc: loc}, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Index is one row of newznab's sphinx table.
type Index struct {
	ID              int64
	Name            string
	MaxID           int64
	NextMergeDate   sql.NullTime
	LastMergeDate   sql.NullTime
	NextRebuildDate sql.NullTime
	LastRebuildDate sql.NullTime
}

// Now reads the database server's current time.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	var raw any
	if err := s.db.QueryRowContext(ctx, s.dialect.nowQuery).Scan(&raw); err != nil {
		return time.Time{}, err
	}
	now, err := s.wallClock(raw)
	if err != nil {
		return time.Time{}, err
	}
	if !now.Valid {
		return time.Time{}, errors.New("database returned NULL for the current time")
	}
	return now.Time, nil
}

// PolicySettings looks up each sphinx setting in the site table. A setting with no row is
// ErrMissingSetting; a NULL value reads as "".
func (s *Store) PolicySettings(ctx context.Context, keys []string) (map[string]string, error) {
	query := s.dialect.rebind(`SELECT value FROM site WHERE setting = ?`)
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		var value sql.NullString
		err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrMissingSetting, key)
		}
		if err != nil {
			return nil, fmt.Errorf("read setting %s: %w", key, err)
		}
		out[key] = value.String
	}
	return out, nil
}

// EnabledIndexes returns every sphinx row with a positive maxID.
func (s *Store) EnabledIndexes(ctx context.Context) ([]Index, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ID, name, maxID, nextmergedate, lastmergedate, nextrebuilddate, lastrebuilddate
		FROM sphinx WHERE maxID > 0 ORDER BY ID`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []Index
	for rows.Next() {
		var idx Index
		var nextMerge, lastMerge, nextRebuild, lastRebuild any
		if err := rows.Scan(&idx.ID, &idx.Name, &idx.MaxID, &nextMerge, &lastMerge, &nextRebuild, &lastRebuild); err != nil {
			return nil, err
		}
		for _, col := range []struct {
			raw any
			dst *sql.NullTime
		}{
			{nextMerge, &idx.NextMergeDate},
			{lastMerge, &idx.LastMergeDate},
			{nextRebuild, &idx.NextRebuildDate},
			{lastRebuild, &idx.LastRebuildDate},
		} {
			if *col.dst, err = s.wallClock(col.raw); err != nil {
				return nil, fmt.Errorf("sphinx row %d: %w", idx.ID, err)
			}
		}
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

func (s *Store) SetMergeDates(ctx context.Context, id int64, next, last time.Time) error {
	return s.setDates(ctx, `UPDATE sphinx SET nextmergedate = ?, lastmergedate = ? WHERE ID = ?`, id, next, last)
}

func (s *Store) SetRebuildDates(ctx context.Context, id int64, next, last time.Time) error {
	return s.setDates(ctx, `UPDATE sphinx SET nextrebuilddate = ?, lastrebuilddate = ? WHERE ID = ?`, id, next, last)
}

func (s *Store) setDates(ctx context.Context, query string, id int64, next, last time.Time) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(query), s.formatWallClock(next), s.formatWallClock(last), id)
	return err
}

// IsTransient reports whether err looks like a dropped connection. extra holds additional
// message fragments to treat the same way.
func IsTransient(err error, extra []string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := err.Error()
	for _, fragment := range extra {
		if fragment != "" && strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
