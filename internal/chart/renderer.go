// Package chart renders the weather charts as PNG files.
package chart

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lox/weatherreport/internal/metrics"
	"github.com/lox/weatherreport/internal/models"
	"github.com/lox/weatherreport/internal/store"
)

// Publisher copies a saved chart somewhere else, such as an FTP drop.
type Publisher interface {
	Publish(localPath string) error
}

// Params carries every argument any chart accepts. File overrides the
// default file name.
type Params struct {
	CityID int64
	Year   int
	Month  int
	Start  string
	From   string
	To     string
	File   string
}

// Renderer builds charts from stored data and writes them under dir.
// Query failures and empty results print a message and write nothing.
type Renderer struct {
	store     *store.Store
	dir       string
	out       io.Writer
	publisher Publisher
}

func New(s *store.Store, dir string, out io.Writer) *Renderer {
	return &Renderer{store: s, dir: dir, out: out}
}

// SetPublisher uploads every saved chart through p. nil disables uploads.
func (r *Renderer) SetPublisher(p Publisher) {
	r.publisher = p
}

type chartFunc func(r *Renderer, p Params) error

var charts = map[string]chartFunc{
	"seven-day-precip": func(r *Renderer, p Params) error {
		return r.SevenDayPrecipitation(p.CityID, p.Start, p.File)
	},
	"min-max-month": func(r *Renderer, p Params) error {
		return r.DailyMinMaxForMonth(p.CityID, p.Year, p.Month, p.File)
	},
	"precip-by-country": func(r *Renderer, p Params) error {
		return r.PrecipitationByCountry(p.Year, p.File)
	},
	"temp-stats-by-city": func(r *Renderer, p Params) error {
		return r.TempStatsByCity(p.From, p.To, p.File)
	},
	"temp-vs-precip": func(r *Renderer, p Params) error {
		return r.TempVsPrecip(p.From, p.To, p.File)
	},
	"total-precip-by-city": func(r *Renderer, p Params) error {
		return r.TotalPrecipitationByCity(p.From, p.To, p.File)
	},
}

// Names lists the charts accepted by Run, sorted.
func Names() []string {
	names := make([]string, 0, len(charts))
	for name := range charts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run renders the named chart.
func (r *Renderer) Run(name string, p Params) error {
	fn, ok := charts[name]
	if !ok {
		return fmt.Errorf("unknown chart %q (available: %v)", name, Names())
	}
	return fn(r, p)
}

// All renders the six charts of the standard run. Every chart is attempted;
// failures are joined.
func (r *Renderer) All() error {
	return errors.Join(
		r.SevenDayPrecipitation(1, "2023-01-01", ""),
		r.DailyMinMaxForMonth(2, 2023, 12, ""),
		r.PrecipitationByCountry(2023, ""),
		r.TempStatsByCity("2023-01-01", "2023-01-31", ""),
		r.TempVsPrecip("2023-01-01", "2023-12-31", ""),
		r.TotalPrecipitationByCity("2023-01-01", "2023-12-31", ""),
	)
}

func (r *Renderer) SevenDayPrecipitation(cityID int64, start, file string) error {
	days, err := r.store.SevenDayPrecipitation(cityID, start)
	if err != nil {
		r.failed("seven-day-precip", err)
		return nil
	}
	if len(days) == 0 {
		r.printf("No data found for city_id=%d from %s for 7 days.\n", cityID, start)
		return nil
	}

	dates, values := splitDays(days)
	img, err := Bar(Labels{
		Title:  fmt.Sprintf("7-Day Precipitation (City ID %d) from %s", cityID, start),
		XLabel: "Date",
		YLabel: "Precipitation (mm)",
	}, dates, values)
	if err != nil {
		return err
	}
	return r.save(img, file, fmt.Sprintf("chart1_7day_precip_city%d_%s", cityID, start))
}

func (r *Renderer) DailyMinMaxForMonth(cityID int64, year, month int, file string) error {
	rows, err := r.store.DailyMinMaxForMonth(cityID, year, month)
	if err != nil {
		r.failed("min-max-month", err)
		return nil
	}
	period := fmt.Sprintf("%d-%02d", year, month)
	if len(rows) == 0 {
		r.printf("No data found for city_id=%d in %s.\n", cityID, period)
		return nil
	}

	dates := make([]string, len(rows))
	mins := make([]float64, len(rows))
	maxs := make([]float64, len(rows))
	for i, row := range rows {
		dates[i], mins[i], maxs[i] = row.Date, row.MinTemp, row.MaxTemp
	}
	img, err := Line(Labels{
		Title:  fmt.Sprintf("Daily Min/Max Temperature (City ID %d) - %s", cityID, period),
		XLabel: "Date",
		YLabel: "Temperature (°C)",
	}, dates, []Series{
		{Label: "Min Temp (°C)", Values: mins},
		{Label: "Max Temp (°C)", Values: maxs},
	})
	if err != nil {
		return err
	}
	return r.save(img, file, fmt.Sprintf("chart2_min_max_temp_city%d_%s", cityID, period))
}

func (r *Renderer) PrecipitationByCountry(year int, file string) error {
	values, err := r.store.AveragePrecipitationByCountry(year)
	if err != nil {
		r.failed("precip-by-country", err)
		return nil
	}
	if len(values) == 0 {
		r.printf("No precipitation data found for year=%d.\n", year)
		return nil
	}

	names := make([]string, len(values))
	avgs := make([]float64, len(values))
	for i, v := range values {
		names[i], avgs[i] = v.CountryName, v.Value
	}
	img, err := Bar(Labels{
		Title:  fmt.Sprintf("Average Daily Precipitation by Country (%d)", year),
		XLabel: "Country",
		YLabel: "Average Daily Precipitation (mm)",
	}, names, avgs)
	if err != nil {
		return err
	}
	return r.save(img, file, fmt.Sprintf("chart3_avg_daily_precip_by_country_%d", year))
}

func (r *Renderer) TempStatsByCity(from, to, file string) error {
	stats, err := r.store.TempStatsByCity(from, to)
	if err != nil {
		r.failed("temp-stats-by-city", err)
		return nil
	}
	if len(stats) == 0 {
		r.printf("No temperature data found between %s and %s.\n", from, to)
		return nil
	}

	names := make([]string, len(stats))
	mins := make([]float64, len(stats))
	means := make([]float64, len(stats))
	maxs := make([]float64, len(stats))
	for i, s := range stats {
		names[i], mins[i], means[i], maxs[i] = s.CityName, s.AvgMinTemp, s.AvgMeanTemp, s.AvgMaxTemp
	}
	img, err := GroupedBar(Labels{
		Title:  fmt.Sprintf("Average Temperature Statistics by City (%s to %s)", from, to),
		XLabel: "City",
		YLabel: "Temperature (°C)",
	}, names, []Series{
		{Label: "Avg Min Temp", Values: mins},
		{Label: "Avg Mean Temp", Values: means},
		{Label: "Avg Max Temp", Values: maxs},
	})
	if err != nil {
		return err
	}
	return r.save(img, file, fmt.Sprintf("chart4_grouped_temp_stats_by_city_%s", monthOf(from)))
}

func (r *Renderer) TempVsPrecip(from, to, file string) error {
	climate, err := r.store.TempVsPrecipByCity(from, to)
	if err != nil {
		r.failed("temp-vs-precip", err)
		return nil
	}
	if len(climate) == 0 {
		r.printf("No data found between %s and %s.\n", from, to)
		return nil
	}

	points := make([]Point, len(climate))
	for i, c := range climate {
		points[i] = Point{X: c.AvgTemp, Y: c.AvgPrecip, Label: c.CityName}
	}
	img, err := Scatter(Labels{
		Title:  fmt.Sprintf("Avg Temperature vs Avg Precipitation by City (%s to %s)", from, to),
		XLabel: "Average Mean Temperature (°C)",
		YLabel: "Average Daily Precipitation (mm)",
	}, points)
	if err != nil {
		return err
	}
	return r.save(img, file, fmt.Sprintf("chart5_scatter_temp_vs_precip_by_city_%s", yearOf(from)))
}

func (r *Renderer) TotalPrecipitationByCity(from, to, file string) error {
	values, err := r.store.TotalPrecipitationByCity(from, to)
	if err != nil {
		r.failed("total-precip-by-city", err)
		return nil
	}
	if len(values) == 0 {
		r.printf("No precipitation data found between %s and %s.\n", from, to)
		return nil
	}

	names := make([]string, len(values))
	totals := make([]float64, len(values))
	for i, v := range values {
		names[i], totals[i] = v.CityName, v.Value
	}
	img, err := Bar(Labels{
		Title:  fmt.Sprintf("Total Precipitation by City (%s to %s)", from, to),
		XLabel: "City",
		YLabel: "Total Precipitation (mm)",
	}, names, totals)
	if err != nil {
		return err
	}
	return r.save(img, file, fmt.Sprintf("chart6_total_precip_by_city_%s", yearOf(from)))
}

// Save writes img as PNG to dir/name, appending .png when missing, and
// returns the written path.
func Save(img image.Image, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create charts dir: %w", err)
	}
	if !strings.HasSuffix(strings.ToLower(name), ".png") {
		name += ".png"
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

func (r *Renderer) save(img image.Image, file, defaultName string) error {
	if file == "" {
		file = defaultName
	}
	path, err := Save(img, r.dir, file)
	if err != nil {
		return err
	}
	metrics.ChartsRendered.Inc()
	log.Printf("chart: saved %s", path)
	r.printf("Saved chart to %s\n", path)

	if r.publisher != nil {
		if err := r.publisher.Publish(path); err != nil {
			return fmt.Errorf("publish %s: %w", path, err)
		}
	}
	return nil
}

func (r *Renderer) failed(name string, err error) {
	log.Printf("chart: %s failed: %v", name, err)
	metrics.ReportFailures.WithLabelValues("chart-" + name).Inc()
	r.printf("%v\n", err)
}

func (r *Renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func splitDays(days []models.DayValue) ([]string, []float64) {
	dates := make([]string, len(days))
	values := make([]float64, len(days))
	for i, d := range days {
		dates[i], values[i] = d.Date, d.Value
	}
	return dates, values
}

// monthOf and yearOf shorten a YYYY-MM-DD date for default file names.
func monthOf(date string) string {
	if len(date) >= 7 {
		return date[:7]
	}
	return date
}

func yearOf(date string) string {
	if len(date) >= 4 {
		return date[:4]
	}
	return date
}
