package usgs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossglen/vtwx-ingest/internal/domain"
	"github.com/mossglen/vtwx-ingest/internal/observability"
)

func testClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second,
		observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const ivBody = `{
  "value": {
    "timeSeries": [
      {
        "sourceInfo": {"siteName": "LAMOILLE RIVER AT JOHNSON, VT", "siteCode": [{"value": "04292000"}]},
        "variable": {"variableCode": [{"value": "00065"}]},
        "values": [{"value": [{"value": "3.42", "dateTime": "2026-01-10T09:15:00.000-05:00"}]}]
      },
      {
        "sourceInfo": {"siteName": "LAMOILLE RIVER AT JOHNSON, VT", "siteCode": [{"value": "04292000"}]},
        "variable": {"variableCode": [{"value": "00060"}]},
        "values": [{"value": [{"value": "528", "dateTime": "2026-01-10T09:15:00.000-05:00"}]}]
      },
      {
        "sourceInfo": {"siteName": "WINOOSKI RIVER AT MONTPELIER, VT", "siteCode": [{"value": "04286000"}]},
        "variable": {"variableCode": [{"value": "00010"}]},
        "values": [{"value": [
          {"value": "0.3", "dateTime": "2026-01-10T09:15:00.000-05:00"},
          {"value": "0.4", "dateTime": "not-a-time"}
        ]}]
      }
    ]
  }
}`

func TestClient_Readings_FoldsParametersBySiteAndTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/nwis/iv/", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "04292000,04286000", r.URL.Query().Get("sites"))
		assert.Contains(t, r.URL.Query().Get("parameterCd"), "00065")
		_, _ = w.Write([]byte(ivBody))
	}))
	defer srv.Close()

	readings, err := testClient(srv.URL).Readings(context.Background(), []string{"04292000", "04286000"})
	require.NoError(t, err)
	require.Len(t, readings, 2, "bad timestamp entry is dropped, not fatal")

	johnson := readings[1]
	assert.Equal(t, "04292000", johnson.SiteID)
	assert.Equal(t, "LAMOILLE RIVER AT JOHNSON, VT", johnson.SiteName)
	assert.Equal(t, "3.42", johnson.GaugeHeight)
	assert.Equal(t, "528", johnson.Discharge)
	assert.Empty(t, johnson.WaterTemp)
	assert.Equal(t, time.Date(2026, 1, 10, 14, 15, 0, 0, time.UTC), johnson.ObservedAt)

	montpelier := readings[0]
	assert.Equal(t, "04286000", montpelier.SiteID)
	assert.Equal(t, "0.3", montpelier.WaterTemp)
	assert.Empty(t, montpelier.GaugeHeight)
}

func TestClient_Readings_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Readings(context.Background(), []string{"04292000"})
	require.Error(t, err)

	var ue *domain.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "usgs", ue.Source)
	assert.Equal(t, http.StatusBadGateway, ue.Status)
}

func TestClient_Readings_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value": [`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Readings(context.Background(), []string{"04292000"})
	require.Error(t, err)

	var ue *domain.UpstreamError
	assert.True(t, errors.As(err, &ue))
}
