package results

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduforge/gamehost/internal/domain/session"
	"github.com/eduforge/gamehost/internal/infrastructure/config"
	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/infrastructure/monitoring"
)

func newTestReporter(t *testing.T, handler http.Handler) *HTTPReporter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPReporter(config.ResultsConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, logging.NewNop())
}

func TestReportDeliversSummary(t *testing.T) {
	var got session.Summary
	r := newTestReporter(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, http.MethodPost, req.Method)
		require.Equal(t, "/results", req.URL.Path)
		body, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
	}))

	err := r.Report(context.Background(), session.Summary{
		GameID:           "g1",
		SessionID:        "sess_test",
		Score:            55,
		TimeSpentSeconds: 12,
		Completed:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, "g1", got.GameID)
	assert.Equal(t, 55, got.Score)
	assert.Equal(t, 12, got.TimeSpentSeconds)
	assert.True(t, got.Completed)
}

func TestReportRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	r := newTestReporter(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	err := r.Report(context.Background(), session.Summary{GameID: "g1", SessionID: "sess_r"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestReportCountsFinalFailure(t *testing.T) {
	m := monitoring.NewMetrics()
	r := newTestReporter(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})).WithMetrics(m)

	err := r.Report(context.Background(), session.Summary{GameID: "g1", SessionID: "sess_f"})
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportFailures))
}
