package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/thushan/olla/internal/core/domain"
	"github.com/thushan/olla/internal/core/ports"
	"github.com/thushan/olla/internal/logger"
	"github.com/thushan/olla/internal/util"
)

const (
	DefaultTimeout      = 30 * time.Second
	MaxResponseSize     = 1 * 1024 * 1024 // discovery bodies are small address lists
	DefaultMaxIdleConns = 10
	DefaultIdleTimeout  = 60 * time.Second

	// backoffJitter softens the thundering-herd risk of many proxies'
	// resolvers retrying a shared discovery endpoint in lockstep.
	backoffJitter = 0.2
)

// Resolver polls a namerd-style discovery API on a fixed period and
// publishes decoded EndpointSet values. It never terminates and never
// surfaces an error to its consumer; every outcome is folded into the
// metrics sink (spec.md §4.1). Consecutive poll failures back off
// exponentially up to the configured period rather than hammering a
// discovery endpoint that's already unhealthy.
type Resolver struct {
	label      string
	url        string
	period     time.Duration
	httpClient *http.Client
	metrics    ports.MetricsSink
	log        *logger.StyledLogger

	failureStreak int
	updates       chan domain.EndpointSet
}

// NewResolver builds a resolver for one proxy's discovery stanza. The
// request URL is built once, up front, query-escaped exactly as
// `{base}/api/1/resolve/{namespace}?path={target}`.
func NewResolver(label, baseAddr, namespace, target string, period time.Duration, metrics ports.MetricsSink, log *logger.StyledLogger) *Resolver {
	u := fmt.Sprintf("%s/api/1/resolve/%s?%s", baseAddr, url.PathEscape(namespace),
		url.Values{"path": {target}}.Encode())

	return &Resolver{
		label:  label,
		url:    u,
		period: period,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    DefaultMaxIdleConns,
				IdleConnTimeout: DefaultIdleTimeout,
			},
		},
		metrics: metrics,
		log:     log,
		updates: make(chan domain.EndpointSet, 1),
	}
}

// Updates implements ports.Resolver.
func (r *Resolver) Updates() <-chan domain.EndpointSet {
	return r.updates
}

// Run issues one request immediately and then one every period (backed
// off on consecutive failures) until ctx is cancelled, at which point
// the updates channel is closed.
func (r *Resolver) Run(ctx context.Context) error {
	defer close(r.updates)

	r.poll(ctx)

	timer := time.NewTimer(r.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			r.poll(ctx)
			timer.Reset(r.nextDelay())
		}
	}
}

// nextDelay returns the configured period on a healthy streak, or an
// exponential backoff (capped at period) once polls start failing.
func (r *Resolver) nextDelay() time.Duration {
	if r.failureStreak == 0 {
		return r.period
	}
	return util.CalculateExponentialBackoff(r.failureStreak, r.period/8, r.period, backoffJitter)
}

func (r *Resolver) poll(ctx context.Context) {
	start := time.Now()
	set, err := r.request(ctx)
	latency := time.Since(start)

	r.metrics.RecordDiscoveryPoll(r.label, err == nil, latency)

	if err != nil {
		r.failureStreak++
		terr := domain.NewTransientDiscoveryError(r.url, err)
		r.log.WarnWithProxy("discovery poll failed", r.label, "error", terr, "latency", latency, "streak", r.failureStreak)
		return
	}
	r.failureStreak = 0
	r.publish(ctx, set)
}

func (r *Resolver) publish(ctx context.Context, set domain.EndpointSet) {
	select {
	case r.updates <- set:
	case <-ctx.Done():
	}
}

func (r *Resolver) request(ctx context.Context) (domain.EndpointSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return domain.EndpointSet{}, err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return domain.EndpointSet{}, &NetworkError{URL: r.url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return domain.EndpointSet{}, &NetworkError{URL: r.url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return domain.EndpointSet{}, &NetworkError{URL: r.url, Err: err}
	}

	set, err := decodeResponse(body)
	if err != nil {
		return domain.EndpointSet{}, &ParseError{URL: r.url, Err: err}
	}
	return set, nil
}
