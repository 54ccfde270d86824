package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniketwaliyan/ga4-warehouse/internal/dataset"
)

func writeToken(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.token")
	require.NoError(t, os.WriteFile(path, []byte("test-token\n"), 0600))
	return path
}

func contentDataset() dataset.Dataset {
	for _, ds := range dataset.Defaults() {
		if ds.ID == "content" {
			return ds
		}
	}
	panic("content dataset missing")
}

func TestGA4ClientRunReport(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq runReportRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := map[string]interface{}{
			"rows": []map[string]interface{}{
				{
					"dimensionValues": []map[string]string{{"value": "20240311"}, {"value": "Home"}},
					"metricValues":    []map[string]string{{"value": "120"}, {"value": "80"}, {"value": "0.45"}, {"value": "33.5"}},
				},
				{
					"dimensionValues": []map[string]string{{"value": "20240312"}, {"value": "Pricing"}},
					"metricValues":    []map[string]string{{"value": "60"}, {"value": "41"}, {"value": "0.52"}, {"value": "21"}},
				},
			},
			"rowCount": 2,
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewGA4Client("123456", writeToken(t), WithBaseURL(server.URL))
	require.NoError(t, err)

	ds := contentDataset()
	rows, err := client.RunReport(context.Background(), ds,
		time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "/properties/123456:runReport", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "2024-03-11", gotReq.DateRanges[0].StartDate)
	assert.Equal(t, "2024-03-12", gotReq.DateRanges[0].EndDate)
	require.Len(t, gotReq.Dimensions, 2)
	assert.Equal(t, "date", gotReq.Dimensions[0].Name)
	assert.Equal(t, "pageTitle", gotReq.Dimensions[1].Name)
	require.Len(t, gotReq.Metrics, len(ds.Metrics))
	assert.Equal(t, "10000", gotReq.Limit)
	assert.Empty(t, gotReq.Offset)

	require.Len(t, rows, 2)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.Equal(t, "Home", rows[0].DimensionKey)
	assert.Equal(t, []float64{120, 80, 0.45, 33.5}, rows[0].Measures)
	assert.Equal(t, "Pricing", rows[1].DimensionKey)
}

func TestGA4ClientFollowsPagination(t *testing.T) {
	// Full result of 5 rows, served 3 at a time as if the API applied a
	// smaller cap than the requested limit.
	all := make([]map[string]interface{}, 5)
	for i := range all {
		all[i] = map[string]interface{}{
			"dimensionValues": []map[string]string{{"value": "20240311"}, {"value": fmt.Sprintf("Page %d", i)}},
			"metricValues":    []map[string]string{{"value": "1"}, {"value": "2"}, {"value": "0.5"}, {"value": "3"}},
		}
	}

	var gotOffsets []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req runReportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotOffsets = append(gotOffsets, req.Offset)

		offset := 0
		if req.Offset != "" {
			var err error
			offset, err = strconv.Atoi(req.Offset)
			require.NoError(t, err)
		}
		end := offset + 3
		if end > len(all) {
			end = len(all)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"rows":     all[offset:end],
			"rowCount": len(all),
		})
	}))
	defer server.Close()

	client, err := NewGA4Client("123456", writeToken(t), WithBaseURL(server.URL))
	require.NoError(t, err)

	rows, err := client.RunReport(context.Background(), contentDataset(), time.Now(), time.Now())
	require.NoError(t, err)

	require.Len(t, rows, 5)
	assert.Equal(t, []string{"", "3"}, gotOffsets)
	assert.Equal(t, "Page 0", rows[0].DimensionKey)
	assert.Equal(t, "Page 4", rows[4].DimensionKey)
}

func TestGA4ClientRejectsShortResult(t *testing.T) {
	// The API reports 5 matching rows but hands back only 2, and the next
	// page is empty. Accepting the short result as complete would let the
	// caller commit partial data and advance past the missing rows.
	page := []map[string]interface{}{
		{
			"dimensionValues": []map[string]string{{"value": "20240311"}, {"value": "Home"}},
			"metricValues":    []map[string]string{{"value": "1"}, {"value": "2"}, {"value": "0.5"}, {"value": "3"}},
		},
		{
			"dimensionValues": []map[string]string{{"value": "20240311"}, {"value": "Pricing"}},
			"metricValues":    []map[string]string{{"value": "1"}, {"value": "2"}, {"value": "0.5"}, {"value": "3"}},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req runReportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		rows := []map[string]interface{}{}
		if req.Offset == "" {
			rows = page
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"rows":     rows,
			"rowCount": 5,
		})
	}))
	defer server.Close()

	client, err := NewGA4Client("123456", writeToken(t), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.RunReport(context.Background(), contentDataset(), time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 5 rows")
}

func TestGA4ClientHTTPErrorCarriesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewGA4Client("123456", writeToken(t), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.RunReport(context.Background(), contentDataset(), time.Now(), time.Now())
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Status)
	assert.True(t, Transient(err))
}

func TestGA4ClientRejectsMalformedRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"rows": []map[string]interface{}{
				{
					// Missing the pageTitle dimension value.
					"dimensionValues": []map[string]string{{"value": "20240311"}},
					"metricValues":    []map[string]string{{"value": "1"}, {"value": "2"}, {"value": "3"}, {"value": "4"}},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewGA4Client("123456", writeToken(t), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.RunReport(context.Background(), contentDataset(), time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension values")
}

func TestGA4ClientMissingCredentials(t *testing.T) {
	_, err := NewGA4Client("123456", filepath.Join(t.TempDir(), "nope.token"))
	require.Error(t, err)
}

func TestUsersDatasetHasEmptyDimensionKey(t *testing.T) {
	report := &runReportResponse{}
	report.Rows = []struct {
		DimensionValues []ga4Value `json:"dimensionValues"`
		MetricValues    []ga4Value `json:"metricValues"`
	}{
		{
			DimensionValues: []ga4Value{{Value: "20240311"}},
			MetricValues: []ga4Value{
				{Value: "10"}, {Value: "12"}, {Value: "0.5"}, {Value: "2"}, {Value: "30.25"},
			},
		},
	}

	rows, err := decodeRows(dataset.Defaults()[0], report)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0].DimensionKey)
	assert.Equal(t, []float64{10, 12, 0.5, 2, 30.25}, rows[0].Measures)
}
