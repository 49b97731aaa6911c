package store

import (
	"fmt"
	"log"

	"github.com/lox/weatherreport/internal/models"
)

const dailyUniqueIndex = "idx_weather_city_date"

var schemaTables = []struct {
	Name string
	SQL  string
}{
	{
		Name: "countries",
		SQL: `
CREATE TABLE IF NOT EXISTS countries (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    timezone TEXT NOT NULL
)`,
	},
	{
		Name: "cities",
		SQL: `
CREATE TABLE IF NOT EXISTS cities (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    latlong TEXT,
    country_id INTEGER NOT NULL REFERENCES countries(id)
)`,
	},
	{
		Name: "daily_weather_entries",
		SQL: `
CREATE TABLE IF NOT EXISTS daily_weather_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    date TEXT NOT NULL,
    min_temp REAL,
    max_temp REAL,
    mean_temp REAL,
    precipitation REAL,
    city_id INTEGER NOT NULL REFERENCES cities(id)
)`,
	},
}

// EnsureSchema creates the reference and daily tables when they are absent.
// Existing tables are left untouched; reference data is seeded elsewhere.
func (s *Store) EnsureSchema() error {
	for _, t := range schemaTables {
		if _, err := s.db.Exec(t.SQL); err != nil {
			return queryErr(fmt.Sprintf("create table %s", t.Name), err)
		}
	}
	log.Printf("schema: ensured %d tables", len(schemaTables))
	return nil
}

// EnsureDailyUniqueIndex creates the (city_id, date) unique index if missing.
// Safe to call on every reconciliation. Fails with ErrQueryFailed when the
// table already holds duplicate pairs.
func (s *Store) EnsureDailyUniqueIndex() error {
	_, err := s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ` + dailyUniqueIndex + `
		ON daily_weather_entries(city_id, date)`)
	if err != nil {
		return queryErr("create unique index", err)
	}
	return nil
}

// SeedCountry and SeedCity upsert reference rows by id. Used by tests and
// when preparing a fresh database.
func (s *Store) SeedCountry(c models.Country) error {
	_, err := s.db.Exec(`
		INSERT INTO countries (id, name, timezone) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, timezone = excluded.timezone
	`, c.ID, c.Name, c.Timezone)
	if err != nil {
		return queryErr("seed country", err)
	}
	return nil
}

func (s *Store) SeedCity(c models.City) error {
	_, err := s.db.Exec(`
		INSERT INTO cities (id, name, latlong, country_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, latlong = excluded.latlong, country_id = excluded.country_id
	`, c.ID, c.Name, c.LatLong, c.CountryID)
	if err != nil {
		return queryErr("seed city", err)
	}
	return nil
}
