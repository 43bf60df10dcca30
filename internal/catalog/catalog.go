// Package catalog stores the user's saved stations (the library) in SQL.
// A postgres:// DSN uses PostgreSQL, anything else is a SQLite file.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/glebovdev/rtap/internal/station"
)

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "postgres"

	pgUniqueViolation = "23505"
)

var (
	ErrNotFound  = errors.New("station not found")
	ErrDuplicate = errors.New("station already saved")
)

const sqliteSchema = `
	create table if not exists radio_stations (
		id integer primary key autoincrement,
		provider text not null default '',
		provider_id text not null default '',
		name text not null,
		url text not null unique,
		codec text not null default '',
		bitrate integer not null default 0,
		tags text not null default '',
		country text not null default '',
		created_at timestamp not null,
		updated_at timestamp not null
	);`

const postgresSchema = `
	create table if not exists radio_stations (
		id bigserial primary key,
		provider text not null default '',
		provider_id text not null default '',
		name text not null,
		url text not null unique,
		codec text not null default '',
		bitrate integer not null default 0,
		tags text not null default '',
		country text not null default '',
		created_at timestamptz not null,
		updated_at timestamptz not null
	);`

const columns = `id, provider, provider_id, name, url, codec, bitrate, tags, country, created_at, updated_at`

// Store is the library of saved stations.
type Store struct {
	db *sqlx.DB
}

// driverFor picks the SQL driver and data source for dsn.
func driverFor(dsn string) (driver, source string) {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return driverPostgres, dsn
	}
	if dsn != ":memory:" && !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}
	return driverSQLite, dsn
}

// Open connects to dsn and creates the schema if needed.
func Open(dsn string) (*Store, error) {
	driver, source := driverFor(dsn)

	if driver == driverSQLite && dsn != ":memory:" {
		path := strings.TrimPrefix(strings.SplitN(dsn, "?", 2)[0], "file:")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create library directory: %w", err)
		}
	}

	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}
	if driver == driverSQLite {
		// a single connection serializes writers
		db.SetMaxOpenConns(1)
	}

	schema := sqliteSchema
	if driver == driverPostgres {
		schema = postgresSchema
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create library schema: %w", err)
	}

	log.Debug().Str("driver", driver).Msg("Library opened")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create saves st and returns it with its ID and timestamps set.
func (s *Store) Create(st station.Station) (station.Station, error) {
	if strings.TrimSpace(st.URL) == "" {
		return st, errors.New("station has no stream URL")
	}
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now

	query := s.db.Rebind(`
	  insert into radio_stations (provider, provider_id, name, url, codec, bitrate, tags, country, created_at, updated_at)
	  values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	  returning id;`)

	err := s.db.QueryRowx(query, st.Provider, st.ProviderID, st.Name, st.URL, st.Codec,
		st.Bitrate, st.Tags, st.Country, st.CreatedAt, st.UpdatedAt,
	).Scan(&st.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return st, fmt.Errorf("%w: %s", ErrDuplicate, st.URL)
		}
		return st, fmt.Errorf("failed to insert station: %w", err)
	}
	return st, nil
}

// Search lists saved stations whose name or tags contain filter.Query.
func (s *Store) Search(filter station.Filter) ([]station.Station, error) {
	var (
		where []string
		args  []any
	)
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		where = append(where, "(lower(name) like ? or lower(tags) like ?)")
		args = append(args, pattern, pattern)
	}

	query := "select " + columns + " from radio_stations"
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}

	switch filter.OrderBy {
	case station.OrderByCreated:
		query += " order by created_at desc, id desc"
	default:
		query += " order by lower(name), id"
	}

	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = math.MaxInt32
		}
		query += " limit ? offset ?"
		args = append(args, limit, max(filter.Offset, 0))
	}

	stations := []station.Station{}
	if err := s.db.Select(&stations, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to search library: %w", err)
	}
	return stations, nil
}

func (s *Store) FindByURL(url string) (station.Station, error) {
	var st station.Station
	query := s.db.Rebind("select " + columns + " from radio_stations where url = ?")
	if err := s.db.Get(&st, query, url); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, ErrNotFound
		}
		return st, fmt.Errorf("failed to find station: %w", err)
	}
	return st, nil
}

// Count returns the number of saved stations.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.Get(&n, "select count(*) from radio_stations"); err != nil {
		return 0, fmt.Errorf("failed to count stations: %w", err)
	}
	return n, nil
}

// Update rewrites the station with st.ID.
func (s *Store) Update(st station.Station) (station.Station, error) {
	st.UpdatedAt = time.Now().UTC()

	query := s.db.Rebind(`
	  update radio_stations
	  set provider=?, provider_id=?, name=?, url=?, codec=?, bitrate=?, tags=?, country=?, updated_at=?
	  where id=?;`)

	res, err := s.db.Exec(query, st.Provider, st.ProviderID, st.Name, st.URL, st.Codec,
		st.Bitrate, st.Tags, st.Country, st.UpdatedAt, st.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return st, fmt.Errorf("%w: %s", ErrDuplicate, st.URL)
		}
		return st, fmt.Errorf("failed to update station: %w", err)
	}
	if err := expectOne(res); err != nil {
		return st, err
	}
	return st, nil
}

func (s *Store) Delete(id int64) error {
	res, err := s.db.Exec(s.db.Rebind("delete from radio_stations where id=?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete station: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return false
}
