package store

import (
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/lox/weatherreport/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.EnsureSchema(); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return store
}

func seedReference(t *testing.T, s *Store) {
	t.Helper()
	countries := []models.Country{
		{ID: 1, Name: "United Kingdom", Timezone: "Europe/London"},
		{ID: 2, Name: "France", Timezone: "Europe/Paris"},
	}
	for _, c := range countries {
		if err := s.SeedCountry(c); err != nil {
			t.Fatalf("SeedCountry: %v", err)
		}
	}
	cities := []models.City{
		{ID: 1, Name: "Middlesbrough", LatLong: "54.57,-1.23", CountryID: 1},
		{ID: 2, Name: "London", LatLong: "51.5,-0.12", CountryID: 1},
		{ID: 3, Name: "Paris", LatLong: "48.85, 2.35", CountryID: 2},
	}
	for _, c := range cities {
		if err := s.SeedCity(c); err != nil {
			t.Fatalf("SeedCity: %v", err)
		}
	}
}

func insertEntries(t *testing.T, s *Store, entries ...models.DailyWeatherEntry) {
	t.Helper()
	for _, e := range entries {
		if err := s.InsertDailyEntry(e); err != nil {
			t.Fatalf("InsertDailyEntry(%s): %v", e.Date, err)
		}
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestOpen_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	_, err := Open(path, false)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Open(missing) error = %v, want ErrStoreUnavailable", err)
	}
}

func TestOpen_Create(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.db")
	s, err := Open(path, true)
	if err != nil {
		t.Fatalf("Open(create): %v", err)
	}
	defer s.Close()

	if err := s.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	reopened, err := Open(path, false)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.Close()
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	if err := s.EnsureSchema(); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
	if err := s.EnsureDailyUniqueIndex(); err != nil {
		t.Fatalf("EnsureDailyUniqueIndex: %v", err)
	}
	if err := s.EnsureDailyUniqueIndex(); err != nil {
		t.Fatalf("second EnsureDailyUniqueIndex: %v", err)
	}
}

func TestCountriesAndCities(t *testing.T) {
	s := setupTestStore(t)
	seedReference(t, s)

	countries, err := s.Countries()
	if err != nil {
		t.Fatalf("Countries: %v", err)
	}
	if len(countries) != 2 {
		t.Fatalf("len(countries) = %d, want 2", len(countries))
	}
	if countries[0].Name != "France" {
		t.Errorf("countries[0].Name = %q, want France (ordered by name)", countries[0].Name)
	}

	cities, err := s.Cities()
	if err != nil {
		t.Fatalf("Cities: %v", err)
	}
	want := []string{"Paris", "London", "Middlesbrough"}
	if len(cities) != len(want) {
		t.Fatalf("len(cities) = %d, want %d", len(cities), len(want))
	}
	for i, name := range want {
		if cities[i].Name != name {
			t.Errorf("cities[%d].Name = %q, want %q", i, cities[i].Name, name)
		}
	}
	if cities[0].Timezone != "Europe/Paris" {
		t.Errorf("Paris timezone = %q, want Europe/Paris", cities[0].Timezone)
	}
}

func TestCityLocation(t *testing.T) {
	s := setupTestStore(t)
	seedReference(t, s)

	loc, err := s.CityLocation(2)
	if err != nil {
		t.Fatalf("CityLocation: %v", err)
	}
	if loc.Name != "London" || loc.LatLong != "51.5,-0.12" || loc.Timezone != "Europe/London" {
		t.Errorf("CityLocation(2) = %+v", loc)
	}

	_, err = s.CityLocation(99)
	if !errors.Is(err, ErrCityNotFound) {
		t.Errorf("CityLocation(99) error = %v, want ErrCityNotFound", err)
	}
}

func TestInsertDailyEntryIfAbsent(t *testing.T) {
	s := setupTestStore(t)
	seedReference(t, s)
	if err := s.EnsureDailyUniqueIndex(); err != nil {
		t.Fatalf("EnsureDailyUniqueIndex: %v", err)
	}

	entry := models.DailyWeatherEntry{CityID: 2, Date: "2025-01-01", MinTemp: 1, MaxTemp: 7, MeanTemp: 4, Precipitation: 2.5}
	inserted, err := s.InsertDailyEntryIfAbsent(entry)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !inserted {
		t.Error("first insert reported not inserted")
	}

	dup := entry
	dup.MaxTemp = 99
	inserted, err = s.InsertDailyEntryIfAbsent(dup)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if inserted {
		t.Error("duplicate insert reported inserted")
	}

	entries, err := s.GetDailyEntries(2, "2025-01-01", "2025-01-01")
	if err != nil {
		t.Fatalf("GetDailyEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].MaxTemp != 7 {
		t.Errorf("MaxTemp = %v, want 7 (existing row must not be overwritten)", entries[0].MaxTemp)
	}

	// Same date for another city is a distinct key.
	other := entry
	other.CityID = 3
	inserted, err = s.InsertDailyEntryIfAbsent(other)
	if err != nil {
		t.Fatalf("other city insert: %v", err)
	}
	if !inserted {
		t.Error("other city insert reported not inserted")
	}
}

func TestUniqueIndex_RejectsDirectDuplicate(t *testing.T) {
	s := setupTestStore(t)
	seedReference(t, s)
	if err := s.EnsureDailyUniqueIndex(); err != nil {
		t.Fatalf("EnsureDailyUniqueIndex: %v", err)
	}

	entry := models.DailyWeatherEntry{CityID: 2, Date: "2025-01-02", MinTemp: 0, MaxTemp: 5, MeanTemp: 2.5, Precipitation: 0}
	insertEntries(t, s, entry)

	dup := entry
	dup.MinTemp = -20
	err := s.InsertDailyEntry(dup)
	if !errors.Is(err, ErrQueryFailed) {
		t.Fatalf("duplicate InsertDailyEntry error = %v, want ErrQueryFailed", err)
	}

	entries, err := s.GetDailyEntries(2, "2025-01-02", "2025-01-02")
	if err != nil {
		t.Fatalf("GetDailyEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].MinTemp != 0 {
		t.Errorf("entries after rejected duplicate = %+v", entries)
	}
}

func TestEnsureDailyUniqueIndex_ExistingDuplicates(t *testing.T) {
	s := setupTestStore(t)
	seedReference(t, s)

	entry := models.DailyWeatherEntry{CityID: 1, Date: "2023-01-01"}
	insertEntries(t, s, entry, entry)

	if err := s.EnsureDailyUniqueIndex(); !errors.Is(err, ErrQueryFailed) {
		t.Errorf("EnsureDailyUniqueIndex with duplicates error = %v, want ErrQueryFailed", err)
	}
}

func TestCountEntries(t *testing.T) {
	s := setupTestStore(t)
	seedReference(t, s)
	insertEntries(t, s,
		models.DailyWeatherEntry{CityID: 2, Date: "2024-12-31"},
		models.DailyWeatherEntry{CityID: 2, Date: "2025-01-01"},
		models.DailyWeatherEntry{CityID: 2, Date: "2025-01-02"},
		models.DailyWeatherEntry{CityID: 3, Date: "2025-01-01"},
	)

	n, err := s.CountEntries(2, 2025)
	if err != nil {
		t.Fatalf("CountEntries: %v", err)
	}
	if n != 2 {
		t.Errorf("CountEntries(2, 2025) = %d, want 2", n)
	}

	n, err = s.CountEntries(1, 2025)
	if err != nil {
		t.Fatalf("CountEntries: %v", err)
	}
	if n != 0 {
		t.Errorf("CountEntries(1, 2025) = %d, want 0", n)
	}
}

func TestTableColumns(t *testing.T) {
	s := setupTestStore(t)

	cols, err := s.TableColumns("cities")
	if err != nil {
		t.Fatalf("TableColumns: %v", err)
	}
	var names []string
	for _, c := range cols {
		names = append(names, c.Name)
	}
	want := []string{"id", "name", "latlong", "country_id"}
	if len(names) != len(want) {
		t.Fatalf("columns = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("columns[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if !cols[0].PrimaryKey {
		t.Error("id should be primary key")
	}

	cols, err = s.TableColumns("no_such_table")
	if err != nil {
		t.Fatalf("TableColumns(unknown): %v", err)
	}
	if len(cols) != 0 {
		t.Errorf("unknown table columns = %d, want 0", len(cols))
	}
}
