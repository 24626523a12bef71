// Package archive adds accumulated rain totals to records from a weewx SQLite
// archive database.
//
// weewx records carry the rain of their own interval only. The hour, 24 hour
// and day totals are summed from the archive rows ending at the record's
// timestamp, for records that do not already report them.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/chrissnell/wxdatadog/internal/types"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store sums rain from the archive table
type Store struct {
	db     *sql.DB
	table  string
	loc    *time.Location
	logger *zap.SugaredLogger
}

// Open opens the weewx database read-only
func Open(path, table string, logger *zap.SugaredLogger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	s, err := New(db, table, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Infof("adding rain totals from %s (table %s)", path, table)
	return s, nil
}

// New wraps an open database handle. Days start at local midnight.
func New(db *sql.DB, table string, logger *zap.SugaredLogger) (*Store, error) {
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("invalid archive table name %q", table)
	}
	return &Store{db: db, table: table, loc: time.Local, logger: logger}, nil
}

// RainSum returns the rain recorded in the archive in (from, to]. The
// pointer is nil when no row in the window has a rain value. All rows in the
// window must be in units.
func (s *Store) RainSum(ctx context.Context, from, to int64, units types.UnitSystem) (*float64, error) {
	query := fmt.Sprintf("SELECT SUM(rain), MIN(usUnits), MAX(usUnits) FROM %s WHERE dateTime > ? AND dateTime <= ?", s.table)

	var (
		sum              sql.NullFloat64
		minUnit, maxUnit sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, from, to).Scan(&sum, &minUnit, &maxUnit)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}

	if !sum.Valid {
		return nil, nil
	}
	if minUnit.Int64 != int64(units) || maxUnit.Int64 != int64(units) {
		return nil, fmt.Errorf("inconsistent units in archive between %d and %d (%d..%d, record is %v)",
			from, to, minUnit.Int64, maxUnit.Int64, units)
	}
	return types.Float(sum.Float64), nil
}

// Complete returns rec with hourRain, rain24 and dayRain added where rec has
// no value for them. Loop packets are returned unchanged.
func (s *Store) Complete(ctx context.Context, rec types.Record) (types.Record, error) {
	if rec.Type != types.ArchiveRecord {
		return rec, nil
	}

	ts := rec.Timestamp
	t := time.Unix(ts, 0).In(s.loc)
	startOfDay := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc).Unix()

	windows := []struct {
		field string
		from  int64
	}{
		{"hourRain", ts - 3600},
		{"rain24", ts - 24*3600},
		{"dayRain", startOfDay},
	}

	totals := make(map[string]*float64, len(windows))
	for _, w := range windows {
		if _, ok := rec.Value(w.field); ok {
			continue
		}
		sum, err := s.RainSum(ctx, w.from, ts, rec.Units)
		if err != nil {
			return rec, fmt.Errorf("%s at %d: %w", w.field, ts, err)
		}
		totals[w.field] = sum
	}

	s.logger.Debugf("archive adds %d rain totals to record at %d", len(totals), ts)
	return rec.Merge(totals), nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
