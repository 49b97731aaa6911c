package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/weatherreport/internal/chart"
	"github.com/lox/weatherreport/internal/httputil"
	"github.com/lox/weatherreport/internal/ingest"
	"github.com/lox/weatherreport/internal/metrics"
	"github.com/lox/weatherreport/internal/publish"
	"github.com/lox/weatherreport/internal/report"
	"github.com/lox/weatherreport/internal/store"
)

type Globals struct {
	DB          string        `help:"Path to the SQLite database." env:"WEATHER_DB" default:"./db/CIS4044-N-SDI-OPENMETEO-PARTIAL.db"`
	ArchiveURL  string        `help:"Open-Meteo archive endpoint." env:"ARCHIVE_URL" default:"https://archive-api.open-meteo.com/v1/archive"`
	HTTPTimeout time.Duration `help:"Timeout for each archive request attempt." env:"HTTP_TIMEOUT" default:"15s"`
	ChartsDir   string        `help:"Directory charts are written to." env:"CHARTS_DIR" default:"charts"`
	FTPURL      string        `name:"ftp-url" help:"Upload charts to this ftp:// URL." env:"CHART_FTP_URL"`
	MetricsFile string        `help:"Write Prometheus metrics to this textfile on exit." env:"METRICS_FILE"`

	ctx context.Context
	out io.Writer
}

type CLI struct {
	Globals

	Report    ReportCmd    `cmd:"" help:"Print a report by name, or every report."`
	Chart     ChartCmd     `cmd:"" help:"Render a chart by name, or every chart."`
	Reconcile ReconcileCmd `cmd:"" help:"Fetch daily weather for cities and insert missing dates."`
	Count     CountCmd     `cmd:"" help:"Print the stored row count for a city and year."`
	Schema    SchemaCmd    `cmd:"" help:"Print the weather and city table columns."`
	Init      InitCmd      `cmd:"" help:"Create the tables in a new database."`
	All       AllCmd       `cmd:"" default:"1" help:"Schema, reports, charts, reconciliation and counts."`
}

// newParser builds the command line parser. Flag values missing from the
// command line and environment are read from envFiles, by their env names.
func newParser(cli *CLI, envFiles ...string) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("weatherreport"),
		kong.Description("Reports, charts and archive reconciliation over a daily weather database."),
		kong.UsageOnError(),
		kong.Configuration(kongdotenv.ENVFileReader, envFiles...),
	)
}

func main() {
	var cli CLI
	parser, err := newParser(&cli, ".env")
	if err != nil {
		log.Fatalf("build parser: %v", err)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cli.ctx = ctx
	cli.out = os.Stdout

	err = kctx.Run(&cli.Globals)
	if cli.MetricsFile != "" {
		if mErr := metrics.WriteTextfile(cli.MetricsFile); mErr != nil {
			log.Printf("write metrics: %v", mErr)
		}
	}
	kctx.FatalIfErrorf(err)
}

func (g *Globals) openStore() (*store.Store, error) {
	return store.Open(g.DB, false)
}

func (g *Globals) renderer(s *store.Store) (*chart.Renderer, error) {
	r := chart.New(s, g.ChartsDir, g.out)
	if g.FTPURL != "" {
		pub, err := publish.NewFTPPublisher(g.FTPURL, g.HTTPTimeout)
		if err != nil {
			return nil, err
		}
		r.SetPublisher(pub)
	}
	return r, nil
}

func (g *Globals) reconciler(s *store.Store) *ingest.Reconciler {
	client := ingest.NewArchiveClient(g.ArchiveURL, httputil.NewClient(g.HTTPTimeout))
	return ingest.NewReconciler(s, client)
}

// reconcile runs every city and prints one summary line per success.
func (g *Globals) reconcile(s *store.Store, cityIDs []int64, dr ingest.DateRange) error {
	results, err := g.reconciler(s).ReconcileAll(g.ctx, cityIDs, dr)
	for _, res := range results {
		if res.CityName == "" {
			continue
		}
		fmt.Fprintf(g.out, "Inserted %d new rows into daily_weather_entries for %s (%d already present).\n",
			res.Inserted, res.CityName, len(res.Skipped))
	}
	return err
}

type ReportCmd struct {
	Name  string `arg:"" optional:"" help:"Report name; omit for every report."`
	City  int64  `help:"City id." default:"2"`
	Year  int    `help:"Year." default:"2023"`
	Start string `help:"First day of a seven day window (YYYY-MM-DD)." default:"2023-01-01"`
	From  string `help:"Range start (YYYY-MM-DD)." default:"2023-01-01"`
	To    string `help:"Range end (YYYY-MM-DD)." default:"2023-12-31"`
	Limit int    `help:"Row limit for ranked reports." default:"5"`
}

func (c *ReportCmd) Run(g *Globals) error {
	s, err := g.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	r := report.New(s, g.out)
	if c.Name == "" {
		r.All()
		return nil
	}
	return r.Run(c.Name, report.Params{
		CityID: c.City,
		Year:   c.Year,
		Start:  c.Start,
		From:   c.From,
		To:     c.To,
		Limit:  c.Limit,
	})
}

type ChartCmd struct {
	Name  string `arg:"" optional:"" help:"Chart name; omit for every chart."`
	City  int64  `help:"City id." default:"2"`
	Year  int    `help:"Year." default:"2023"`
	Month int    `help:"Month (1-12)." default:"12"`
	Start string `help:"First day of a seven day window (YYYY-MM-DD)." default:"2023-01-01"`
	From  string `help:"Range start (YYYY-MM-DD)." default:"2023-01-01"`
	To    string `help:"Range end (YYYY-MM-DD)." default:"2023-12-31"`
	File  string `help:"Output file name inside the charts directory."`
}

func (c *ChartCmd) Run(g *Globals) error {
	s, err := g.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := g.renderer(s)
	if err != nil {
		return err
	}
	if c.Name == "" {
		return r.All()
	}
	return r.Run(c.Name, chart.Params{
		CityID: c.City,
		Year:   c.Year,
		Month:  c.Month,
		Start:  c.Start,
		From:   c.From,
		To:     c.To,
		File:   c.File,
	})
}

type ReconcileCmd struct {
	Cities []int64 `arg:"" name:"city" help:"City ids to reconcile."`
	Start  string  `required:"" help:"First date (YYYY-MM-DD)."`
	End    string  `required:"" help:"Last date, inclusive (YYYY-MM-DD)."`
}

func (c *ReconcileCmd) Run(g *Globals) error {
	dr, err := ingest.ParseDateRange(c.Start, c.End)
	if err != nil {
		return err
	}
	s, err := g.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	return g.reconcile(s, c.Cities, dr)
}

type CountCmd struct {
	City int64 `arg:"" help:"City id."`
	Year int   `arg:"" help:"Year."`
}

func (c *CountCmd) Run(g *Globals) error {
	s, err := g.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	report.New(s, g.out).Count(c.City, c.Year)
	return nil
}

type SchemaCmd struct{}

func (c *SchemaCmd) Run(g *Globals) error {
	s, err := g.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	report.New(s, g.out).Schema()
	return nil
}

type InitCmd struct{}

func (c *InitCmd) Run(g *Globals) error {
	s, err := store.Open(g.DB, true)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.EnsureSchema(); err != nil {
		return err
	}
	if err := s.EnsureDailyUniqueIndex(); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "Initialised %s\n", g.DB)
	return nil
}

// standardRuns are the reconciliations of the full run.
var standardRuns = []struct {
	cityID     int64
	start, end string
}{
	{2, "2025-01-01", "2025-01-14"},
	{3, "2025-02-01", "2025-02-28"},
}

type AllCmd struct{}

func (c *AllCmd) Run(g *Globals) error {
	s, err := g.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	rep := report.New(s, g.out)
	rep.Schema()

	fmt.Fprintln(g.out, "\nReports:")
	fmt.Fprintln(g.out)
	rep.All()

	fmt.Fprintln(g.out, "\n--- Charts ---")
	fmt.Fprintln(g.out)
	r, err := g.renderer(s)
	if err != nil {
		return err
	}
	var errs []error
	if err := r.All(); err != nil {
		errs = append(errs, err)
	}

	fmt.Fprintln(g.out, "\n--- API Update ---")
	fmt.Fprintln(g.out)
	for _, run := range standardRuns {
		dr, err := ingest.ParseDateRange(run.start, run.end)
		if err != nil {
			return err
		}
		if err := g.reconcile(s, []int64{run.cityID}, dr); err != nil {
			errs = append(errs, err)
		}
	}

	for _, run := range standardRuns {
		rep.Count(run.cityID, 2025)
	}
	return errors.Join(errs...)
}
