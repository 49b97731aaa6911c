// Package report prints the fixed set of aggregate reports over stored
// weather data.
package report

import (
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/lox/weatherreport/internal/metrics"
	"github.com/lox/weatherreport/internal/store"
)

// Params carries every argument any report accepts. Each report reads only
// the fields it needs.
type Params struct {
	CityID int64
	Year   int
	Start  string // first day of a seven day window
	From   string
	To     string
	Limit  int
}

// Reporter writes report output to a writer. Query failures are printed in
// place of the report and never abort a run.
type Reporter struct {
	store *store.Store
	out   io.Writer
}

func New(s *store.Store, out io.Writer) *Reporter {
	return &Reporter{store: s, out: out}
}

type reportFunc func(r *Reporter, p Params)

var reports = map[string]reportFunc{
	"countries":         func(r *Reporter, _ Params) { r.Countries() },
	"cities":            func(r *Reporter, _ Params) { r.Cities() },
	"annual-temp":       func(r *Reporter, p Params) { r.AnnualTemperature(p.CityID, p.Year) },
	"seven-day-precip":  func(r *Reporter, p Params) { r.SevenDayPrecipitation(p.CityID, p.Start) },
	"mean-temp-by-city": func(r *Reporter, p Params) { r.MeanTempByCity(p.From, p.To) },
	"precip-by-country": func(r *Reporter, p Params) { r.PrecipitationByCountry(p.Year) },
	"wettest-city":      func(r *Reporter, p Params) { r.WettestCity(p.Year) },
	"temp-variability":  func(r *Reporter, p Params) { r.TemperatureVariability(p.From, p.To) },
	"top-rainfall-days": func(r *Reporter, p Params) { r.TopRainfallDays(p.CityID, p.Year, p.Limit) },
	"count":             func(r *Reporter, p Params) { r.Count(p.CityID, p.Year) },
}

// Names lists the reports accepted by Run, sorted.
func Names() []string {
	names := make([]string, 0, len(reports))
	for name := range reports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run prints the named report. The only error is an unknown name.
func (r *Reporter) Run(name string, p Params) error {
	fn, ok := reports[name]
	if !ok {
		return fmt.Errorf("unknown report %q (available: %v)", name, Names())
	}
	fn(r, p)
	return nil
}

// All prints every report with the parameters of the standard run.
func (r *Reporter) All() {
	r.println("All Countries:")
	r.Countries()

	r.println("\nAll Cities:")
	r.Cities()

	r.println("\nAverage Annual Temperature (London, 2023):")
	r.AnnualTemperature(2, 2023)

	r.println("\nAverage 7-Day Precipitation (Middlesbrough from 2023-01-01):")
	r.SevenDayPrecipitation(1, "2023-01-01")

	r.println("\nAverage Mean Temp by City (2023-01-01 to 2023-01-31):")
	r.MeanTempByCity("2023-01-01", "2023-01-31")

	r.println("\nAverage Annual Precipitation by Country (2023):")
	r.PrecipitationByCountry(2023)

	r.println("\nWettest City (2023):")
	r.WettestCity(2023)

	r.println("\nTemperature Variability by City (2023-01-01 to 2023-12-31):")
	r.TemperatureVariability("2023-01-01", "2023-12-31")

	r.println("\nTop Rainfall Days (London, 2023):")
	r.TopRainfallDays(2, 2023, 5)
}

func (r *Reporter) Countries() {
	countries, err := r.store.Countries()
	if err != nil {
		r.failed("countries", err)
		return
	}
	for _, c := range countries {
		r.printf("Country Id: %d -- Country Name: %s -- Timezone: %s\n", c.ID, c.Name, c.Timezone)
	}
}

func (r *Reporter) Cities() {
	cities, err := r.store.Cities()
	if err != nil {
		r.failed("cities", err)
		return
	}
	for _, c := range cities {
		r.printf("City Id: %d -- City: %s | Country: %s (Id: %d) | Timezone: %s\n",
			c.ID, c.Name, c.CountryName, c.CountryID, c.Timezone)
	}
}

func (r *Reporter) AnnualTemperature(cityID int64, year int) {
	avg, err := r.store.AverageAnnualTemperature(cityID, year)
	if err != nil {
		r.failed("annual-temp", err)
		return
	}
	if !avg.Valid {
		r.printf("No temperature data found for city_id=%d in year=%d.\n", cityID, year)
		return
	}
	r.printf("Average annual mean temperature (city_id=%d, year=%d): %.2f°C\n", cityID, year, avg.Float64)
}

func (r *Reporter) SevenDayPrecipitation(cityID int64, start string) {
	avg, err := r.store.AverageSevenDayPrecipitation(cityID, start)
	if err != nil {
		r.failed("seven-day-precip", err)
		return
	}
	if !avg.Valid {
		r.printf("No precipitation data found for city_id=%d starting from %s.\n", cityID, start)
		return
	}
	r.printf("Average 7-day precipitation (city_id=%d, start_date=%s): %.2f mm\n", cityID, start, avg.Float64)
}

func (r *Reporter) MeanTempByCity(from, to string) {
	values, err := r.store.AverageMeanTempByCity(from, to)
	if err != nil {
		r.failed("mean-temp-by-city", err)
		return
	}
	if len(values) == 0 {
		r.printf("No results found between %s and %s.\n", from, to)
		return
	}
	r.printf("Average mean temperature by city (%s to %s):\n", from, to)
	for _, v := range values {
		r.printf(" - %s (city_id=%d): %.2f°C\n", v.CityName, v.CityID, v.Value)
	}
}

func (r *Reporter) PrecipitationByCountry(year int) {
	values, err := r.store.AveragePrecipitationByCountry(year)
	if err != nil {
		r.failed("precip-by-country", err)
		return
	}
	if len(values) == 0 {
		r.printf("No precipitation data found for year=%d.\n", year)
		return
	}
	r.printf("Average daily precipitation by country (year=%d):\n", year)
	for _, v := range values {
		r.printf(" - %s (country_id=%d): %.2f mm\n", v.CountryName, v.CountryID, v.Value)
	}
}

func (r *Reporter) WettestCity(year int) {
	city, err := r.store.WettestCity(year)
	if err != nil {
		r.failed("wettest-city", err)
		return
	}
	if city == nil {
		r.printf("No precipitation data found for year=%d.\n", year)
		return
	}
	r.printf("Wettest city in %d: %s (city_id=%d) with total precipitation %.2f mm\n",
		year, city.CityName, city.CityID, city.Value)
}

func (r *Reporter) TemperatureVariability(from, to string) {
	values, err := r.store.TemperatureVariabilityByCity(from, to)
	if err != nil {
		r.failed("temp-variability", err)
		return
	}
	if len(values) == 0 {
		r.printf("No temperature data found between %s and %s.\n", from, to)
		return
	}
	r.printf("Temperature variability by city (%s to %s):\n", from, to)
	for _, v := range values {
		r.printf(" - %s (city_id=%d): %.2f°C range\n", v.CityName, v.CityID, v.Value)
	}
}

func (r *Reporter) TopRainfallDays(cityID int64, year, limit int) {
	if limit <= 0 {
		limit = 5
	}
	days, err := r.store.TopRainfallDays(cityID, year, limit)
	if err != nil {
		r.failed("top-rainfall-days", err)
		return
	}
	if len(days) == 0 {
		r.printf("No rainfall data found for city_id=%d in year=%d.\n", cityID, year)
		return
	}
	r.printf("Top %d rainfall days for city_id=%d in %d:\n", limit, cityID, year)
	for _, d := range days {
		r.printf(" - %s: %.2f mm\n", d.Date, d.Value)
	}
}

// Count prints the stored row count for a city and year, labelled with the
// city's name when it can be resolved.
func (r *Reporter) Count(cityID int64, year int) {
	n, err := r.store.CountEntries(cityID, year)
	if err != nil {
		r.failed("count", err)
		return
	}
	label := fmt.Sprintf("city_id=%d", cityID)
	if loc, err := r.store.CityLocation(cityID); err == nil {
		label = loc.Name
	}
	r.printf("Rows for %s in %d now: %d\n", label, year, n)
}

// Schema prints the column layout of the weather and city tables.
func (r *Reporter) Schema() {
	for _, t := range []struct{ table, heading string }{
		{"daily_weather_entries", "Database Schema for daily_weather_entries:"},
		{"cities", "Schema for cities:"},
	} {
		r.printf("\n%s\n", t.heading)
		cols, err := r.store.TableColumns(t.table)
		if err != nil {
			r.failed("schema", err)
			continue
		}
		for _, c := range cols {
			r.printf(" - %s (%s)\n", c.Name, c.Type)
		}
	}
}

func (r *Reporter) failed(name string, err error) {
	log.Printf("report: %s failed: %v", name, err)
	metrics.ReportFailures.WithLabelValues(name).Inc()
	r.printf("%v\n", err)
}

func (r *Reporter) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func (r *Reporter) println(s string) {
	fmt.Fprintln(r.out, s)
}
