// Package results persists session outcomes to the results service.
//
// Persistence is best effort: the player experience never blocks on it
// and failures are logged and counted, not surfaced.
package results

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/eduforge/gamehost/internal/domain/session"
	"github.com/eduforge/gamehost/internal/infrastructure/config"
	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/infrastructure/monitoring"
)

// HTTPReporter delivers summaries to the results service with retries on
// transient failures.
type HTTPReporter struct {
	client  *retryablehttp.Client
	baseURL string
	log     *logging.Logger
	metrics *monitoring.Metrics
}

var _ session.Reporter = (*HTTPReporter)(nil)

// NewHTTPReporter builds a reporter from configuration.
func NewHTTPReporter(cfg config.ResultsConfig, log *logging.Logger) *HTTPReporter {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil

	return &HTTPReporter{
		client:  client,
		baseURL: cfg.BaseURL,
		log:     log.Named("results"),
	}
}

// WithMetrics attaches the failure counter.
func (r *HTTPReporter) WithMetrics(m *monitoring.Metrics) *HTTPReporter {
	r.metrics = m
	return r
}

// Report posts one session summary. Retries are handled internally; an
// error return means delivery ultimately failed.
func (r *HTTPReporter) Report(ctx context.Context, s session.Summary) (err error) {
	defer func() {
		if err != nil {
			if r.metrics != nil {
				r.metrics.ReportFailures.Inc()
			}
			r.log.Warn("result delivery failed",
				zap.String("session_id", s.SessionID.String()),
				zap.Bool("completed", s.Completed),
				zap.Error(err),
			)
		}
	}()

	body, err := sonic.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/results", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("results service: status %d", resp.StatusCode)
	}

	r.log.Debug("result delivered",
		zap.String("session_id", s.SessionID.String()),
		zap.Bool("completed", s.Completed),
		zap.Int("score", s.Score),
	)
	return nil
}
