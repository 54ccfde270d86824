package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/aniketwaliyan/ga4-warehouse/internal/dataset"
)

const defaultBaseURL = "https://analyticsdata.googleapis.com/v1beta"

// GA4 report dates come back as compact YYYYMMDD strings.
const ga4DateFormat = "20060102"

// ga4PageSize is the row limit requested per runReport call. The API caps
// a single response at 250k rows but large pages are slow; results beyond
// one page are fetched with increasing offsets.
const ga4PageSize = 10000

// GA4Client calls the GA4 Data API runReport endpoint for a single
// property. Requests are rate limited locally and guarded by a circuit
// breaker so a struggling API is not hammered across datasets.
type GA4Client struct {
	propertyID string
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]Row]
}

// GA4Option customizes a GA4Client.
type GA4Option func(*GA4Client)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(url string) GA4Option {
	return func(c *GA4Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) GA4Option {
	return func(c *GA4Client) { c.httpClient = hc }
}

// NewGA4Client builds a client for the given property. The credentials
// file holds an access token for the Analytics Data API; token acquisition
// is handled outside this program.
func NewGA4Client(propertyID, credentialsPath string, opts ...GA4Option) (*GA4Client, error) {
	token, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	c := &GA4Client{
		propertyID: propertyID,
		token:      strings.TrimSpace(string(token)),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// GA4 Data API core tokens allow ~10 concurrent requests and
		// modest hourly quotas; one request per second is well inside.
		limiter: rate.NewLimiter(rate.Limit(1), 2),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]Row](gobreaker.Settings{
		Name:    "ga4-" + propertyID,
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return c, nil
}

type runReportRequest struct {
	DateRanges []ga4DateRange `json:"dateRanges"`
	Dimensions []ga4Name      `json:"dimensions"`
	Metrics    []ga4Name      `json:"metrics"`
	// Limit and offset are int64 fields, which the REST API encodes as
	// JSON strings.
	Limit  string `json:"limit,omitempty"`
	Offset string `json:"offset,omitempty"`
}

type ga4DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type ga4Name struct {
	Name string `json:"name"`
}

type runReportResponse struct {
	Rows []struct {
		DimensionValues []ga4Value `json:"dimensionValues"`
		MetricValues    []ga4Value `json:"metricValues"`
	} `json:"rows"`
	RowCount int `json:"rowCount"`
}

type ga4Value struct {
	Value string `json:"value"`
}

// RunReport implements Client.
func (c *GA4Client) RunReport(ctx context.Context, ds dataset.Dataset, start, end time.Time) ([]Row, error) {
	return c.breaker.Execute(func() ([]Row, error) {
		return c.runReport(ctx, ds, start, end)
	})
}

// runReport fetches the full result set, following the API's pagination.
// The response carries the true total in rowCount while each page holds at
// most the requested limit; returning a short page as the whole result
// would let the caller commit an incomplete day and advance the watermark
// over the missing rows, so running out of pages early is an error.
func (c *GA4Client) runReport(ctx context.Context, ds dataset.Dataset, start, end time.Time) ([]Row, error) {
	var all []Row
	for offset := 0; ; {
		report, err := c.fetchPage(ctx, ds, start, end, offset)
		if err != nil {
			return nil, err
		}
		rows, err := decodeRows(ds, report)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		offset += len(rows)

		if offset >= report.RowCount {
			return all, nil
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("report for %s returned %d of %d rows and no further pages",
				ds.ID, offset, report.RowCount)
		}
	}
}

func (c *GA4Client) fetchPage(ctx context.Context, ds dataset.Dataset, start, end time.Time, offset int) (*runReportResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody := runReportRequest{
		DateRanges: []ga4DateRange{{
			StartDate: start.Format("2006-01-02"),
			EndDate:   end.Format("2006-01-02"),
		}},
		Dimensions: make([]ga4Name, 0, len(ds.Dimensions)),
		Metrics:    make([]ga4Name, 0, len(ds.Metrics)),
		Limit:      strconv.Itoa(ga4PageSize),
	}
	if offset > 0 {
		reqBody.Offset = strconv.Itoa(offset)
	}
	for _, d := range ds.Dimensions {
		reqBody.Dimensions = append(reqBody.Dimensions, ga4Name{Name: d})
	}
	for _, m := range ds.Metrics {
		reqBody.Metrics = append(reqBody.Metrics, ga4Name{Name: m})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report request: %w", err)
	}

	url := fmt.Sprintf("%s/properties/%s:runReport", c.baseURL, c.propertyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report request failed: %w", err)
	}
	defer resp.Body.Close()

	// Generous cap: a full 10k-row page of wide reports runs to a few MB.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read report response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var report runReportResponse
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report response: %w", err)
	}
	return &report, nil
}

// decodeRows converts an API response into warehouse rows. The first
// dimension value is always the report date; any remaining dimension
// values are joined into the dimension key.
func decodeRows(ds dataset.Dataset, report *runReportResponse) ([]Row, error) {
	rows := make([]Row, 0, len(report.Rows))
	for i, r := range report.Rows {
		if len(r.DimensionValues) != len(ds.Dimensions) {
			return nil, fmt.Errorf("row %d: got %d dimension values, want %d",
				i, len(r.DimensionValues), len(ds.Dimensions))
		}
		if len(r.MetricValues) != len(ds.Metrics) {
			return nil, fmt.Errorf("row %d: got %d metric values, want %d",
				i, len(r.MetricValues), len(ds.Metrics))
		}

		date, err := time.Parse(ga4DateFormat, r.DimensionValues[0].Value)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid report date %q", i, r.DimensionValues[0].Value)
		}

		var key string
		if len(r.DimensionValues) > 1 {
			parts := make([]string, 0, len(r.DimensionValues)-1)
			for _, dv := range r.DimensionValues[1:] {
				parts = append(parts, dv.Value)
			}
			key = strings.Join(parts, "|")
		}

		measures := make([]float64, len(r.MetricValues))
		for j, mv := range r.MetricValues {
			v, err := strconv.ParseFloat(mv.Value, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid metric value %q for %s",
					i, mv.Value, ds.Metrics[j])
			}
			measures[j] = v
		}

		rows = append(rows, Row{Date: date, DimensionKey: key, Measures: measures})
	}
	return rows, nil
}
