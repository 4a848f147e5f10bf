package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/nusantararadius/notifyhub/pkg/types"
	"github.com/nusantararadius/notifyhub/server/internal/config"
)

// ErrScrape is wrapped by every ScrapeProvider failure.
var ErrScrape = errors.New("metrics scrape failed")

// ScrapeProvider reads a Prometheus text endpoint and maps the configured
// metric families onto snapshot fields. Families that are not configured or
// absent from the scrape leave their field untouched.
type ScrapeProvider struct {
	cfg    config.ScrapeConfig
	client *http.Client
}

// NewScrapeProvider builds a ScrapeProvider. The HTTP client is created once
// and reused for every scrape.
func NewScrapeProvider(cfg config.ScrapeConfig) *ScrapeProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultScrapeTimeout
	}
	return &ScrapeProvider{
		cfg: cfg,
		client: &http.Client{
			Transport: &authRoundTripper{base: http.DefaultTransport, cfg: cfg},
			Timeout:   timeout,
		},
	}
}

// Apply implements Provider.
func (p *ScrapeProvider) Apply(ctx context.Context, snap *types.MetricsSnapshot) error {
	mfs, err := fetchMetrics(ctx, p.client, p.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrScrape, p.cfg.Endpoint, err)
	}

	if v, ok := lookupCount(mfs, p.cfg.ActiveUsersMetric); ok {
		snap.ActiveUsers = v
	}
	if v, ok := lookupCount(mfs, p.cfg.RevenueMetric); ok {
		snap.TotalRevenue = v
	}
	if v, ok := lookup(mfs, p.cfg.LoadMetric); ok {
		snap.ServerLoad = v
	}
	return nil
}

func lookup(mfs map[string]*dto.MetricFamily, name string) (float64, bool) {
	if name == "" {
		return 0, false
	}
	mf, ok := mfs[name]
	if !ok {
		slog.Debug("metrics: scrape family missing", "metric", name)
		return 0, false
	}
	v := sumFamily(mf)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		slog.Warn("metrics: scrape value not finite, keeping previous", "metric", name, "value", v)
		return 0, false
	}
	return v, true
}

// lookupCount is lookup for integer fields. Values outside the int64 range
// are skipped.
func lookupCount(mfs map[string]*dto.MetricFamily, name string) (int64, bool) {
	v, ok := lookup(mfs, name)
	if !ok {
		return 0, false
	}
	if v >= math.MaxInt64 || v <= math.MinInt64 {
		slog.Warn("metrics: scrape value out of range, keeping previous", "metric", name, "value", v)
		return 0, false
	}
	return int64(v), true
}

// authRoundTripper injects the configured API key header into every request.
type authRoundTripper struct {
	base http.RoundTripper
	cfg  config.ScrapeConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.cfg.Header != "" {
		if key := t.cfg.Key(); key != "" {
			req = req.Clone(req.Context())
			req.Header.Set(t.cfg.Header, key)
		}
	}
	return t.base.RoundTrip(req)
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition. A partial parse that
// produced at least one family is treated as success.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
