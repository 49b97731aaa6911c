package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/lox/weatherreport/internal/coords"
	"github.com/lox/weatherreport/internal/metrics"
	"github.com/lox/weatherreport/internal/models"
)

// ErrMalformedPayload is returned when the archive response has mismatched
// array lengths, null or non-finite values, or unparseable dates.
var ErrMalformedPayload = errors.New("malformed archive payload")

type EntryStore interface {
	EnsureDailyUniqueIndex() error
	CityLocation(cityID int64) (*models.CityLocation, error)
	InsertDailyEntryIfAbsent(e models.DailyWeatherEntry) (bool, error)
}

type DailyFetcher interface {
	FetchDaily(ctx context.Context, lat, lon float64, r DateRange, timezone string) (*DailySeries, error)
}

// Result describes one reconciliation. Skipped lists the dates that were
// already stored and left untouched.
type Result struct {
	CityID   int64
	CityName string
	Range    DateRange
	Fetched  int
	Inserted int
	Skipped  []string
	Flagged  int
}

// Reconciler merges archive data into local storage without duplicating
// (city, date) rows.
type Reconciler struct {
	store   EntryStore
	fetcher DailyFetcher
}

func NewReconciler(store EntryStore, fetcher DailyFetcher) *Reconciler {
	return &Reconciler{store: store, fetcher: fetcher}
}

// Reconcile fetches daily data for a city over r and inserts the dates not
// yet stored. Rows are inserted one at a time with no surrounding
// transaction; on a storage error the returned Result counts the rows
// inserted before the failure.
func (r *Reconciler) Reconcile(ctx context.Context, cityID int64, dr DateRange) (Result, error) {
	result := Result{CityID: cityID, Range: dr}

	if err := r.store.EnsureDailyUniqueIndex(); err != nil {
		return result, fmt.Errorf("ensure unique index: %w", err)
	}

	loc, err := r.store.CityLocation(cityID)
	if err != nil {
		return result, fmt.Errorf("resolve city: %w", err)
	}
	result.CityName = loc.Name

	lat, lon, err := coords.Parse(loc.LatLong)
	if err != nil {
		return result, fmt.Errorf("city %s (city_id=%d): %w", loc.Name, cityID, err)
	}

	log.Printf("reconcile: fetching %s (city_id=%d) [%g, %g] timezone=%s range=%s",
		loc.Name, cityID, lat, lon, loc.Timezone, dr)

	series, err := r.fetcher.FetchDaily(ctx, lat, lon, dr, loc.Timezone)
	if err != nil {
		return result, err
	}

	entries, err := toEntries(cityID, series)
	if err != nil {
		return result, err
	}
	result.Fetched = len(entries)

	if len(entries) == 0 {
		log.Printf("reconcile: no daily data returned for %s", loc.Name)
		return result, nil
	}
	if len(entries) != dr.Days() {
		log.Printf("reconcile: %s: archive returned %d days for a %d day range", loc.Name, len(entries), dr.Days())
	}

	label := cityLabel(loc)
	for _, e := range entries {
		inserted, err := r.store.InsertDailyEntryIfAbsent(e)
		if err != nil {
			return result, fmt.Errorf("insert %s: %w", e.Date, err)
		}
		if inserted {
			result.Inserted++
			metrics.EntriesInserted.WithLabelValues(label).Inc()
			// Only rows written by this run are flagged.
			if flags := ValidateEntry(e); len(flags) > 0 {
				log.Printf("reconcile: %s %s flagged: %s", loc.Name, e.Date, strings.Join(flags, ","))
				for _, f := range flags {
					metrics.EntriesFlagged.WithLabelValues(f).Inc()
				}
				result.Flagged++
			}
		} else {
			result.Skipped = append(result.Skipped, e.Date)
			metrics.EntriesSkipped.WithLabelValues(label).Inc()
		}
	}

	log.Printf("reconcile: %s inserted=%d skipped=%d", loc.Name, result.Inserted, len(result.Skipped))
	return result, nil
}

// ReconcileAll reconciles each city independently. A failing city does not
// stop the others; all failures are joined into the returned error.
func (r *Reconciler) ReconcileAll(ctx context.Context, cityIDs []int64, dr DateRange) ([]Result, error) {
	var results []Result
	var errs []error
	for _, id := range cityIDs {
		res, err := r.Reconcile(ctx, id, dr)
		results = append(results, res)
		if err != nil {
			log.Printf("reconcile: city_id=%d failed: %v", id, err)
			errs = append(errs, fmt.Errorf("city_id=%d: %w", id, err))
		}
	}
	return results, errors.Join(errs...)
}

// toEntries checks the whole payload before anything is written, so a
// malformed response inserts no rows.
func toEntries(cityID int64, s *DailySeries) ([]models.DailyWeatherEntry, error) {
	if s == nil {
		return nil, nil
	}
	n := len(s.Time)
	if len(s.MinTemp) != n || len(s.MaxTemp) != n || len(s.MeanTemp) != n || len(s.Precipitation) != n {
		return nil, fmt.Errorf("%w: array lengths differ: time=%d min=%d max=%d mean=%d precipitation=%d",
			ErrMalformedPayload, n, len(s.MinTemp), len(s.MaxTemp), len(s.MeanTemp), len(s.Precipitation))
	}

	entries := make([]models.DailyWeatherEntry, 0, n)
	for i, date := range s.Time {
		if _, err := time.Parse(DateLayout, date); err != nil {
			return nil, fmt.Errorf("%w: index %d: date %q", ErrMalformedPayload, i, date)
		}
		var vals [4]float64
		for j, field := range []struct {
			name string
			v    *float64
		}{
			{"temperature_2m_min", s.MinTemp[i]},
			{"temperature_2m_max", s.MaxTemp[i]},
			{"temperature_2m_mean", s.MeanTemp[i]},
			{"precipitation_sum", s.Precipitation[i]},
		} {
			if field.v == nil {
				return nil, fmt.Errorf("%w: %s: %s is null", ErrMalformedPayload, date, field.name)
			}
			if math.IsNaN(*field.v) || math.IsInf(*field.v, 0) {
				return nil, fmt.Errorf("%w: %s: %s is not finite", ErrMalformedPayload, date, field.name)
			}
			vals[j] = *field.v
		}
		entries = append(entries, models.DailyWeatherEntry{
			CityID:        cityID,
			Date:          date,
			MinTemp:       vals[0],
			MaxTemp:       vals[1],
			MeanTemp:      vals[2],
			Precipitation: vals[3],
		})
	}
	return entries, nil
}

func cityLabel(loc *models.CityLocation) string {
	if loc.Name != "" {
		return loc.Name
	}
	return fmt.Sprintf("city_%d", loc.CityID)
}
