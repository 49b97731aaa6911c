package ingest

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/lox/weatherreport/internal/coords"
	"github.com/lox/weatherreport/internal/models"
	"github.com/lox/weatherreport/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	if err := s.EnsureSchema(); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := s.SeedCountry(models.Country{ID: 1, Name: "United Kingdom", Timezone: "Europe/London"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SeedCountry(models.Country{ID: 2, Name: "France", Timezone: "Europe/Paris"}); err != nil {
		t.Fatal(err)
	}
	cities := []models.City{
		{ID: 2, Name: "London", LatLong: "51.5,-0.12", CountryID: 1},
		{ID: 3, Name: "Paris", LatLong: "48.85, 2.35", CountryID: 2},
		{ID: 4, Name: "Nowhere", LatLong: "somewhere", CountryID: 1},
	}
	for _, c := range cities {
		if err := s.SeedCity(c); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func setupReconciler(t *testing.T) (*Reconciler, *store.Store, *httpmock.MockTransport, *recordingTimer) {
	t.Helper()
	s := setupTestStore(t)
	client, transport, timer := newTestArchiveClient(t)
	return NewReconciler(s, client), s, transport, timer
}

func TestReconcile_InsertsThenIdempotent(t *testing.T) {
	r, s, transport, _ := setupReconciler(t)
	transport.RegisterResponder(http.MethodGet, testArchiveURL,
		httpmock.NewStringResponder(http.StatusOK, londonFixture))

	dr := mustRange(t, "2025-01-01", "2025-01-03")

	res, err := r.Reconcile(context.Background(), 2, dr)
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	if res.Inserted != 3 {
		t.Errorf("first Inserted = %d, want 3", res.Inserted)
	}
	if res.CityName != "London" {
		t.Errorf("CityName = %q, want London", res.CityName)
	}
	if len(res.Skipped) != 0 {
		t.Errorf("first Skipped = %v, want none", res.Skipped)
	}

	res, err = r.Reconcile(context.Background(), 2, dr)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if res.Inserted != 0 {
		t.Errorf("second Inserted = %d, want 0", res.Inserted)
	}
	if want := []string{"2025-01-01", "2025-01-02", "2025-01-03"}; !reflect.DeepEqual(res.Skipped, want) {
		t.Errorf("second Skipped = %v, want %v", res.Skipped, want)
	}

	n, err := s.CountEntries(2, 2025)
	if err != nil {
		t.Fatalf("CountEntries: %v", err)
	}
	if n != 3 {
		t.Errorf("CountEntries(2, 2025) = %d, want 3", n)
	}

	entries, err := s.GetDailyEntries(2, "2025-01-01", "2025-01-03")
	if err != nil {
		t.Fatalf("GetDailyEntries: %v", err)
	}
	if entries[2].MinTemp != -0.8 || entries[0].Precipitation != 5.2 || entries[1].MeanTemp != 4.1 {
		t.Errorf("stored entries = %+v", entries)
	}
}

func TestReconcile_DoesNotOverwriteExisting(t *testing.T) {
	r, s, transport, _ := setupReconciler(t)
	transport.RegisterResponder(http.MethodGet, testArchiveURL,
		httpmock.NewStringResponder(http.StatusOK, londonFixture))

	if err := s.EnsureDailyUniqueIndex(); err != nil {
		t.Fatal(err)
	}
	existing := models.DailyWeatherEntry{CityID: 2, Date: "2025-01-02", MinTemp: 10, MaxTemp: 20, MeanTemp: 15, Precipitation: 0}
	if err := s.InsertDailyEntry(existing); err != nil {
		t.Fatal(err)
	}

	res, err := r.Reconcile(context.Background(), 2, mustRange(t, "2025-01-01", "2025-01-03"))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2", res.Inserted)
	}
	if !reflect.DeepEqual(res.Skipped, []string{"2025-01-02"}) {
		t.Errorf("Skipped = %v", res.Skipped)
	}

	entries, err := s.GetDailyEntries(2, "2025-01-02", "2025-01-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].MaxTemp != 20 {
		t.Errorf("existing row changed: %+v", entries)
	}
}

func TestReconcile_RetriesThenSucceeds(t *testing.T) {
	r, s, transport, timer := setupReconciler(t)
	transport.RegisterResponder(http.MethodGet, testArchiveURL,
		httpmock.NewErrorResponder(errors.New("connection refused")).
			Then(httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway")).
			Then(httpmock.NewStringResponder(http.StatusOK, londonFixture)))

	res, err := r.Reconcile(context.Background(), 2, mustRange(t, "2025-01-01", "2025-01-03"))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Inserted != 3 {
		t.Errorf("Inserted = %d, want 3", res.Inserted)
	}
	if n := transport.GetTotalCallCount(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
	if len(timer.waits) != 2 || timer.waits[0] >= timer.waits[1] {
		t.Errorf("waits = %v, want two increasing delays", timer.waits)
	}
	if n, _ := s.CountEntries(2, 2025); n != 3 {
		t.Errorf("CountEntries = %d, want 3", n)
	}
}

func TestReconcile_FetchExhaustedInsertsNothing(t *testing.T) {
	r, s, transport, _ := setupReconciler(t)
	transport.RegisterResponder(http.MethodGet, testArchiveURL,
		httpmock.NewErrorResponder(errors.New("no route to host")))

	res, err := r.Reconcile(context.Background(), 2, mustRange(t, "2025-01-01", "2025-01-03"))
	if !errors.Is(err, ErrFetchExhausted) {
		t.Fatalf("error = %v, want ErrFetchExhausted", err)
	}
	if res.Inserted != 0 {
		t.Errorf("Inserted = %d, want 0", res.Inserted)
	}
	if n := transport.GetTotalCallCount(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
	if n, _ := s.CountEntries(2, 2025); n != 0 {
		t.Errorf("CountEntries = %d, want 0", n)
	}
}

func TestReconcile_CityNotFound(t *testing.T) {
	r, _, transport, _ := setupReconciler(t)

	_, err := r.Reconcile(context.Background(), 99, mustRange(t, "2025-01-01", "2025-01-03"))
	if !errors.Is(err, store.ErrCityNotFound) {
		t.Fatalf("error = %v, want ErrCityNotFound", err)
	}
	if n := transport.GetTotalCallCount(); n != 0 {
		t.Errorf("API called %d times for unknown city", n)
	}
}

func TestReconcile_InvalidCoordinates(t *testing.T) {
	r, _, transport, _ := setupReconciler(t)

	_, err := r.Reconcile(context.Background(), 4, mustRange(t, "2025-01-01", "2025-01-03"))
	if !errors.Is(err, coords.ErrInvalidFormat) {
		t.Fatalf("error = %v, want coords.ErrInvalidFormat", err)
	}
	if n := transport.GetTotalCallCount(); n != 0 {
		t.Errorf("API called %d times for invalid coordinates", n)
	}
}

func TestReconcile_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "length mismatch",
			body: `{"daily": {
				"time": ["2025-01-01", "2025-01-02"],
				"temperature_2m_min": [1.0, 2.0],
				"temperature_2m_max": [5.0],
				"temperature_2m_mean": [3.0, 4.0],
				"precipitation_sum": [0.0, 0.1]
			}}`,
		},
		{
			name: "null value",
			body: `{"daily": {
				"time": ["2025-01-01", "2025-01-02"],
				"temperature_2m_min": [1.0, 2.0],
				"temperature_2m_max": [5.0, 6.0],
				"temperature_2m_mean": [3.0, null],
				"precipitation_sum": [0.0, 0.1]
			}}`,
		},
		{
			name: "bad date",
			body: `{"daily": {
				"time": ["2025-01-01", "02/01/2025"],
				"temperature_2m_min": [1.0, 2.0],
				"temperature_2m_max": [5.0, 6.0],
				"temperature_2m_mean": [3.0, 4.0],
				"precipitation_sum": [0.0, 0.1]
			}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, s, transport, _ := setupReconciler(t)
			transport.RegisterResponder(http.MethodGet, testArchiveURL,
				httpmock.NewStringResponder(http.StatusOK, tt.body))

			res, err := r.Reconcile(context.Background(), 2, mustRange(t, "2025-01-01", "2025-01-02"))
			if !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("error = %v, want ErrMalformedPayload", err)
			}
			if res.Inserted != 0 {
				t.Errorf("Inserted = %d, want 0", res.Inserted)
			}
			if n, _ := s.CountEntries(2, 2025); n != 0 {
				t.Errorf("CountEntries = %d, want 0", n)
			}
			if n := transport.GetTotalCallCount(); n != 1 {
				t.Errorf("attempts = %d, want 1 (payload errors are not retried)", n)
			}
		})
	}
}

func TestReconcile_EmptyDaily(t *testing.T) {
	r, _, transport, _ := setupReconciler(t)
	transport.RegisterResponder(http.MethodGet, testArchiveURL,
		httpmock.NewStringResponder(http.StatusOK, `{"daily": {"time": [], "temperature_2m_min": [], "temperature_2m_max": [], "temperature_2m_mean": [], "precipitation_sum": []}}`))

	res, err := r.Reconcile(context.Background(), 2, mustRange(t, "2025-01-01", "2025-01-03"))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Inserted != 0 || res.Fetched != 0 {
		t.Errorf("result = %+v, want nothing fetched or inserted", res)
	}
}

func TestReconcile_FlagsImplausibleValues(t *testing.T) {
	r, s, transport, _ := setupReconciler(t)
	transport.RegisterResponder(http.MethodGet, testArchiveURL,
		httpmock.NewStringResponder(http.StatusOK, `{"daily": {
			"time": ["2025-01-01"],
			"temperature_2m_min": [8.0],
			"temperature_2m_max": [2.0],
			"temperature_2m_mean": [5.0],
			"precipitation_sum": [0.0]
		}}`))

	res, err := r.Reconcile(context.Background(), 2, mustRange(t, "2025-01-01", "2025-01-01"))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Inserted != 1 || res.Flagged != 1 {
		t.Errorf("result = %+v, want 1 inserted and 1 flagged", res)
	}
	if n, _ := s.CountEntries(2, 2025); n != 1 {
		t.Errorf("CountEntries = %d, want 1", n)
	}

	again, err := r.Reconcile(context.Background(), 2, mustRange(t, "2025-01-01", "2025-01-01"))
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if again.Inserted != 0 || again.Flagged != 0 || len(again.Skipped) != 1 {
		t.Errorf("second result = %+v, want 0 inserted, 0 flagged, 1 skipped", again)
	}
}

func TestReconcileAll_ContinuesPastFailures(t *testing.T) {
	r, s, transport, _ := setupReconciler(t)
	transport.RegisterResponder(http.MethodGet, testArchiveURL,
		httpmock.NewStringResponder(http.StatusOK, londonFixture))

	results, err := r.ReconcileAll(context.Background(), []int64{99, 2, 3}, mustRange(t, "2025-01-01", "2025-01-03"))
	if !errors.Is(err, store.ErrCityNotFound) {
		t.Fatalf("error = %v, want ErrCityNotFound joined", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[1].Inserted != 3 || results[2].Inserted != 3 {
		t.Errorf("results = %+v", results)
	}
	if n, _ := s.CountEntries(3, 2025); n != 3 {
		t.Errorf("Paris CountEntries = %d, want 3", n)
	}
}
