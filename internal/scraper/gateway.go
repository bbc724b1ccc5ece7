// Package scraper wraps the third-party LinkedIn scraping vendor's
// trigger/poll HTTP contract.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tbakker/linkcrm/internal/crm"
	"github.com/tbakker/linkcrm/internal/metrics"
)

// ErrMissingCredential is returned when no vendor API key is configured.
// ErrGatewayUnavailable wraps transport failures where no HTTP response
// arrived; a vendor error *response* is returned as a plain error instead.
var (
	ErrMissingCredential  = crm.ErrMissingCredential
	ErrGatewayUnavailable = crm.ErrGatewayUnavailable
)

// Config controls Gateway behavior.
type Config struct {
	BaseURL        string
	APIKey         string
	DatasetProfile string
	DatasetCompany string
	Timeout        time.Duration
	RequestsPerSec float64
}

// Gateway implements crm.ScrapeGateway against the vendor HTTP API.
type Gateway struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New constructs a Gateway. The vendor enforces request quotas, so all
// outbound calls share one rate limiter.
func New(cfg Config, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 2
	}
	return &Gateway{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

func (g *Gateway) datasetFor(kind crm.EntityKind) string {
	if kind == crm.KindCompany {
		return g.cfg.DatasetCompany
	}
	return g.cfg.DatasetProfile
}

// Trigger submits a batch of URLs for scraping and returns the vendor's
// snapshot id correlating the batch to its eventual result set.
func (g *Gateway) Trigger(ctx context.Context, kind crm.EntityKind, urls []string) (string, error) {
	if g.cfg.APIKey == "" {
		return "", ErrMissingCredential
	}
	dataset := g.datasetFor(kind)
	if dataset == "" {
		return "", fmt.Errorf("no dataset configured for kind %q", kind)
	}

	payload := make([]map[string]string, 0, len(urls))
	for _, u := range urls {
		payload = append(payload, map[string]string{"url": u})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal trigger payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/datasets/v3/trigger?dataset_id=%s&include_errors=true", g.cfg.BaseURL, dataset)
	respBody, status, err := g.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		metrics.ObserveGatewayRequest("trigger", "error")
		return "", err
	}
	if status < 200 || status >= 300 {
		metrics.ObserveGatewayRequest("trigger", "error")
		return "", fmt.Errorf("trigger scrape: vendor returned %d: %s", status, string(respBody))
	}

	var out struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil || out.SnapshotID == "" {
		metrics.ObserveGatewayRequest("trigger", "error")
		return "", fmt.Errorf("trigger scrape: no snapshot id returned")
	}

	metrics.ObserveGatewayRequest("trigger", "ok")
	g.logger.Info("scrape triggered",
		zap.String("dataset", dataset),
		zap.String("snapshot_id", out.SnapshotID),
		zap.Int("url_count", len(urls)),
	)
	return out.SnapshotID, nil
}

// PollSnapshot checks a snapshot once. HTTP 202 means still processing,
// 200 means ready (a single-object body is wrapped into a one-element
// array), anything else is a terminal error carrying the vendor's body text.
func (g *Gateway) PollSnapshot(ctx context.Context, snapshotID string) (crm.Snapshot, error) {
	if g.cfg.APIKey == "" {
		return crm.Snapshot{}, ErrMissingCredential
	}
	endpoint := fmt.Sprintf("%s/datasets/v3/snapshot/%s?format=json", g.cfg.BaseURL, snapshotID)
	respBody, status, err := g.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		metrics.ObserveGatewayRequest("poll", "error")
		return crm.Snapshot{}, err
	}

	switch {
	case status == http.StatusAccepted:
		metrics.ObserveGatewayRequest("poll", "processing")
		return crm.Snapshot{Ready: false}, nil
	case status == http.StatusOK:
		records, err := decodeRecords(respBody)
		if err != nil {
			metrics.ObserveGatewayRequest("poll", "error")
			return crm.Snapshot{}, fmt.Errorf("poll snapshot %s: %w", snapshotID, err)
		}
		metrics.ObserveGatewayRequest("poll", "ok")
		return crm.Snapshot{Ready: true, Records: records}, nil
	default:
		metrics.ObserveGatewayRequest("poll", "error")
		return crm.Snapshot{}, fmt.Errorf("poll snapshot %s: vendor returned %d: %s", snapshotID, status, string(respBody))
	}
}

// PollUntilReady polls on an interval until the snapshot is ready, a hard
// error occurs, or maxAttempts still-processing responses have elapsed. It
// is the blocking counterpart of the background job poller and suspends the
// caller for up to maxAttempts*interval.
func (g *Gateway) PollUntilReady(ctx context.Context, snapshotID string, maxAttempts int, interval time.Duration) ([]crm.Record, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		snap, err := g.PollSnapshot(ctx, snapshotID)
		if err != nil {
			return nil, err
		}
		if snap.Ready {
			return snap.Records, nil
		}
		g.logger.Debug("snapshot not ready",
			zap.String("snapshot_id", snapshotID),
			zap.Int("attempt", attempt),
		)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("poll snapshot %s: %w", snapshotID, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, fmt.Errorf("snapshot %s not ready after %d attempts", snapshotID, maxAttempts)
}

func (g *Gateway) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, int, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit wait: %w", err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build vendor request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", crm.ErrGatewayUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			g.logger.Warn("close vendor response body", zap.Error(closeErr))
		}
	}()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read response: %v", crm.ErrGatewayUnavailable, err)
	}
	return respBody, resp.StatusCode, nil
}

func decodeRecords(body []byte) ([]crm.Record, error) {
	var records []crm.Record
	if err := json.Unmarshal(body, &records); err == nil {
		return records, nil
	}
	var single crm.Record
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, fmt.Errorf("decode snapshot body: %w", err)
	}
	return []crm.Record{single}, nil
}
