package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/lox/weatherreport/internal/models"

	_ "modernc.org/sqlite"
)

var (
	// ErrStoreUnavailable means the database file is missing or cannot be opened.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrQueryFailed matches every *QueryError.
	ErrQueryFailed = errors.New("query failed")

	ErrCityNotFound = errors.New("city not found")
)

// QueryError wraps a driver error from a read or write statement.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool { return target == ErrQueryFailed }

func queryErr(op string, err error) error {
	return &QueryError{Op: op, Err: err}
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens an existing SQLite database file. A missing file is reported as
// ErrStoreUnavailable instead of silently creating an empty database, unless
// create is set.
func Open(path string, create bool) (*Store, error) {
	if !create {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, path, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrStoreUnavailable, path, err)
	}

	db.Exec("PRAGMA busy_timeout=5000")
	return New(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Countries() ([]models.Country, error) {
	rows, err := s.db.Query(`SELECT id, name, timezone FROM countries ORDER BY name`)
	if err != nil {
		return nil, queryErr("select countries", err)
	}
	defer rows.Close()

	var countries []models.Country
	for rows.Next() {
		var c models.Country
		if err := rows.Scan(&c.ID, &c.Name, &c.Timezone); err != nil {
			return nil, queryErr("scan country", err)
		}
		countries = append(countries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("select countries", err)
	}
	return countries, nil
}

func (s *Store) Cities() ([]models.CityWithCountry, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.name, COALESCE(c.latlong, ''), co.id, co.name, co.timezone
		FROM cities c
		JOIN countries co ON c.country_id = co.id
		ORDER BY co.name, c.name
	`)
	if err != nil {
		return nil, queryErr("select cities", err)
	}
	defer rows.Close()

	var cities []models.CityWithCountry
	for rows.Next() {
		var c models.CityWithCountry
		if err := rows.Scan(&c.ID, &c.Name, &c.LatLong, &c.CountryID, &c.CountryName, &c.Timezone); err != nil {
			return nil, queryErr("scan city", err)
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("select cities", err)
	}
	return cities, nil
}

// CityLocation resolves the name, raw coordinate text and country timezone
// for a city.
func (s *Store) CityLocation(cityID int64) (*models.CityLocation, error) {
	loc := models.CityLocation{CityID: cityID}
	var latlong sql.NullString
	err := s.db.QueryRow(`
		SELECT c.name, c.latlong, co.timezone
		FROM cities c
		JOIN countries co ON c.country_id = co.id
		WHERE c.id = ?
	`, cityID).Scan(&loc.Name, &latlong, &loc.Timezone)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: city_id=%d", ErrCityNotFound, cityID)
	}
	if err != nil {
		return nil, queryErr("lookup city", err)
	}
	loc.LatLong = latlong.String
	return &loc, nil
}

// InsertDailyEntryIfAbsent inserts e unless a row for (city_id, date) already
// exists. Existing rows are never overwritten. It reports whether a row was
// written. The unique index from EnsureDailyUniqueIndex must exist for the
// conflict clause to apply.
func (s *Store) InsertDailyEntryIfAbsent(e models.DailyWeatherEntry) (bool, error) {
	res, err := s.db.Exec(`
		INSERT INTO daily_weather_entries (date, min_temp, max_temp, mean_temp, precipitation, city_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(city_id, date) DO NOTHING
	`, e.Date, e.MinTemp, e.MaxTemp, e.MeanTemp, e.Precipitation, e.CityID)
	if err != nil {
		return false, queryErr("insert daily entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, queryErr("insert daily entry", err)
	}
	return n > 0, nil
}

// InsertDailyEntry is a plain insert with no conflict handling. A duplicate
// (city_id, date) fails with ErrQueryFailed once the unique index exists.
func (s *Store) InsertDailyEntry(e models.DailyWeatherEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO daily_weather_entries (date, min_temp, max_temp, mean_temp, precipitation, city_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Date, e.MinTemp, e.MaxTemp, e.MeanTemp, e.Precipitation, e.CityID)
	if err != nil {
		return queryErr("insert daily entry", err)
	}
	return nil
}

func (s *Store) GetDailyEntries(cityID int64, from, to string) ([]models.DailyWeatherEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, city_id, date, min_temp, max_temp, mean_temp, precipitation
		FROM daily_weather_entries
		WHERE city_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, cityID, from, to)
	if err != nil {
		return nil, queryErr("select daily entries", err)
	}
	defer rows.Close()

	var entries []models.DailyWeatherEntry
	for rows.Next() {
		var e models.DailyWeatherEntry
		var minT, maxT, meanT, precip sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.CityID, &e.Date, &minT, &maxT, &meanT, &precip); err != nil {
			return nil, queryErr("scan daily entry", err)
		}
		// NULL columns read as zero.
		e.MinTemp, e.MaxTemp, e.MeanTemp, e.Precipitation = minT.Float64, maxT.Float64, meanT.Float64, precip.Float64
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("select daily entries", err)
	}
	return entries, nil
}

// CountEntries counts the rows stored for a city in a calendar year.
func (s *Store) CountEntries(cityID int64, year int) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM daily_weather_entries
		WHERE city_id = ? AND substr(date, 1, 4) = ?
	`, cityID, strconv.Itoa(year)).Scan(&n)
	if err != nil {
		return 0, queryErr("count daily entries", err)
	}
	return n, nil
}

// TableColumns returns PRAGMA table_info for a table. Unknown tables yield no
// columns.
func (s *Store) TableColumns(table string) ([]models.Column, error) {
	rows, err := s.db.Query(`SELECT cid, name, type, "notnull", dflt_value, pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, queryErr("table info "+table, err)
	}
	defer rows.Close()

	var cols []models.Column
	for rows.Next() {
		var c models.Column
		var notNull, pk int
		if err := rows.Scan(&c.CID, &c.Name, &c.Type, &notNull, &c.Default, &pk); err != nil {
			return nil, queryErr("scan table info", err)
		}
		c.NotNull = notNull != 0
		c.PrimaryKey = pk != 0
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("table info "+table, err)
	}
	return cols, nil
}
