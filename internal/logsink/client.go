package logsink

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/geoinfo-winterthur/cadusage/internal/clock"
	"github.com/geoinfo-winterthur/cadusage/internal/config"
	"github.com/geoinfo-winterthur/cadusage/internal/observability/metrics"
	obstracing "github.com/geoinfo-winterthur/cadusage/internal/observability/tracing"
	"go.uber.org/zap"
)

const defaultSinkTimeout = 10 * time.Second

// Record is the document shape the log collector indexes.
type Record struct {
	Timestamp   string   `json:"@timestamp"`
	Host        string   `json:"host"`
	Environment string   `json:"environment"`
	Service     string   `json:"service"`
	Level       string   `json:"level"`
	Message     string   `json:"message"`
	Details     []string `json:"details"`
}

// Emitter ships operational events to the remote log collector.
// Implementations must never fail the caller: delivery problems are
// logged locally and swallowed.
type Emitter interface {
	Info(ctx context.Context, message string, details ...string)
	Warn(ctx context.Context, message string, details ...string)
	Error(ctx context.Context, message string, details ...string)
}

// Client posts records to an HTTP log collector.
type Client struct {
	endpoint    string
	host        string
	environment string
	service     string
	httpClient  *http.Client
	clock       clock.Clock
	log         *zap.Logger
	metrics     *Metrics
	inflight    sync.WaitGroup
}

// Metrics narrows the instruments the client touches.
type Metrics struct {
	inner *metrics.Metrics
}

func NewClientMetrics(m *metrics.Metrics) *Metrics {
	return &Metrics{inner: m}
}

func (m *Metrics) recordFailure(ctx context.Context) {
	if m == nil || m.inner == nil {
		return
	}
	m.inner.RecordSinkFailure(ctx)
}

// NewClient builds an emitter from config. An empty sink URL returns a
// client that only writes locally, so deployments without a collector
// keep working.
func NewClient(cfg config.Config, clk clock.Clock, log *zap.Logger, m *Metrics) *Client {
	if log == nil {
		log = zap.NewNop()
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	timeout := time.Duration(cfg.LogSink.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultSinkTimeout
	}

	transport := http.DefaultTransport
	if !cfg.LogSink.VerifySSL {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		endpoint:    strings.TrimSpace(cfg.LogSink.URL),
		host:        host,
		environment: cfg.Environment,
		service:     cfg.AppName,
		httpClient: obstracing.WrapHTTPClient(&http.Client{
			Timeout:   timeout,
			Transport: transport,
		}),
		clock:   clk,
		log:     log,
		metrics: m,
	}
}

func (c *Client) Info(ctx context.Context, message string, details ...string) {
	c.emit(ctx, "INFO", message, details)
}

func (c *Client) Warn(ctx context.Context, message string, details ...string) {
	c.emit(ctx, "WARN", message, details)
}

func (c *Client) Error(ctx context.Context, message string, details ...string) {
	c.emit(ctx, "ERROR", message, details)
}

func (c *Client) emit(ctx context.Context, level, message string, details []string) {
	if c == nil {
		return
	}
	if details == nil {
		details = []string{}
	}

	record := Record{
		Timestamp:   c.now().Format(time.RFC3339),
		Host:        c.host,
		Environment: c.environment,
		Service:     c.service,
		Level:       level,
		Message:     message,
		Details:     details,
	}

	if c.endpoint == "" {
		return
	}

	// The heartbeat response must not wait on the collector.
	c.inflight.Add(1)
	go c.send(context.WithoutCancel(ctx), record)
}

// Flush blocks until all in-flight deliveries have finished.
func (c *Client) Flush() {
	if c == nil {
		return
	}
	c.inflight.Wait()
}

func (c *Client) send(ctx context.Context, record Record) {
	defer c.inflight.Done()
	payload, err := json.Marshal(record)
	if err != nil {
		c.log.Warn("log sink record marshal failed", zap.Error(err))
		c.metrics.recordFailure(ctx)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		c.log.Warn("log sink request build failed", zap.Error(err))
		c.metrics.recordFailure(ctx)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("log sink delivery failed", zap.Error(err))
		c.metrics.recordFailure(ctx)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.log.Warn("log sink rejected record", zap.String("status", resp.Status))
		c.metrics.recordFailure(ctx)
	}
}

func (c *Client) now() time.Time {
	if c.clock != nil {
		return c.clock.Now()
	}
	return time.Now()
}
