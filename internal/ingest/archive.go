package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lox/weatherreport/internal/httputil"
	"github.com/lox/weatherreport/internal/metrics"
)

const (
	DefaultArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

	dailyFields = "temperature_2m_min,temperature_2m_max,temperature_2m_mean,precipitation_sum"
)

// ErrFetchExhausted matches every *FetchError.
var ErrFetchExhausted = errors.New("fetch exhausted")

// FetchError is returned once every attempt allowed by the retry policy has
// failed. Err is the error from the last attempt.
type FetchError struct {
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetchExhausted }

// DailySeries holds the parallel daily arrays of an archive response. Values
// are pointers because the API reports missing data as null.
type DailySeries struct {
	Time          []string   `json:"time"`
	MinTemp       []*float64 `json:"temperature_2m_min"`
	MaxTemp       []*float64 `json:"temperature_2m_max"`
	MeanTemp      []*float64 `json:"temperature_2m_mean"`
	Precipitation []*float64 `json:"precipitation_sum"`
}

type archiveResponse struct {
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
	Timezone  string      `json:"timezone"`
	Daily     DailySeries `json:"daily"`
}

type archiveErrorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// ArchiveClient fetches daily aggregates from the Open-Meteo historical
// weather API.
type ArchiveClient struct {
	baseURL string
	client  *http.Client
	retry   RetryPolicy
	timer   backoff.Timer
}

func NewArchiveClient(baseURL string, client *http.Client) *ArchiveClient {
	if baseURL == "" {
		baseURL = DefaultArchiveURL
	}
	if client == nil {
		client = httputil.NewClient(httputil.DefaultTimeout)
	}
	return &ArchiveClient{
		baseURL: baseURL,
		client:  client,
		retry:   DefaultRetryPolicy,
	}
}

// SetRetryPolicy replaces DefaultRetryPolicy.
func (a *ArchiveClient) SetRetryPolicy(p RetryPolicy) {
	a.retry = p
}

// SetTimer overrides the timer used to wait between attempts. nil restores
// the system timer.
func (a *ArchiveClient) SetTimer(t backoff.Timer) {
	a.timer = t
}

// FetchDaily retrieves min/max/mean temperature and precipitation for every
// date in r, with dates interpreted in the given IANA timezone. Network
// errors, non-200 responses and undecodable bodies are retried according to
// the retry policy.
func (a *ArchiveClient) FetchDaily(ctx context.Context, lat, lon float64, r DateRange, timezone string) (*DailySeries, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("start_date", r.StartDate())
	params.Set("end_date", r.EndDate())
	params.Set("daily", dailyFields)
	params.Set("timezone", timezone)
	reqURL := a.baseURL + "?" + params.Encode()

	attempts := 0
	operation := func() (*DailySeries, error) {
		if err := ctx.Err(); err != nil {
			return nil, backoff.Permanent(err)
		}
		attempts++
		return a.fetchOnce(ctx, reqURL)
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("archive: attempt %d/%d failed: %v (retrying in %s)", attempts, a.retry.attempts(), err, wait)
	}

	series, err := backoff.RetryNotifyWithTimerAndData(operation, a.retry.backOff(ctx), notify, a.timer)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch daily: %w", ctxErr)
		}
		metrics.FetchesExhausted.Inc()
		return nil, &FetchError{Attempts: attempts, Err: err}
	}
	return series, nil
}

func (a *ArchiveClient) fetchOnce(ctx context.Context, reqURL string) (*DailySeries, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", httputil.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	metrics.ArchiveAPILatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ArchiveAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch archive: %w", err)
	}
	defer resp.Body.Close()

	metrics.ArchiveAPICallsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr archiveErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Reason != "" {
			return nil, fmt.Errorf("fetch archive: status %d: %s", resp.StatusCode, apiErr.Reason)
		}
		return nil, fmt.Errorf("fetch archive: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var data archiveResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return &data.Daily, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
