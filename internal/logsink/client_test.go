package logsink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/geoinfo-winterthur/cadusage/internal/clock"
	"github.com/geoinfo-winterthur/cadusage/internal/config"
	"go.uber.org/zap"
)

func sinkConfig(url string) config.Config {
	return config.Config{
		AppName:     "cadusage",
		Environment: "test",
		LogSink: config.LogSinkConfig{
			URL:            url,
			VerifySSL:      true,
			TimeoutSeconds: 2,
		},
	}
}

func TestClientDeliversRecord(t *testing.T) {
	var mu sync.Mutex
	var received []Record

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s, want application/json", ct)
		}
		var rec Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			t.Errorf("decode record: %v", err)
		}
		mu.Lock()
		received = append(received, rec)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	now := time.Date(2024, 3, 11, 10, 5, 0, 0, time.Local)
	client := NewClient(sinkConfig(srv.URL), clock.NewFakeClock(now), zap.NewNop(), nil)

	client.Info(context.Background(), "usage has been counted", "orgfid: 42", "appCode: 1")
	client.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d records, want 1", len(received))
	}
	rec := received[0]
	if rec.Level != "INFO" {
		t.Errorf("level = %q, want INFO", rec.Level)
	}
	if rec.Message != "usage has been counted" {
		t.Errorf("message = %q", rec.Message)
	}
	if rec.Service != "cadusage" || rec.Environment != "test" {
		t.Errorf("service/environment = %q/%q", rec.Service, rec.Environment)
	}
	if rec.Timestamp != now.Format(time.RFC3339) {
		t.Errorf("timestamp = %q, want %q", rec.Timestamp, now.Format(time.RFC3339))
	}
	if len(rec.Details) != 2 || rec.Details[0] != "orgfid: 42" {
		t.Errorf("details = %v", rec.Details)
	}
	if rec.Host == "" {
		t.Error("host is empty")
	}
}

func TestClientLevels(t *testing.T) {
	var mu sync.Mutex
	levels := map[string]int{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err == nil {
			mu.Lock()
			levels[rec.Level]++
			mu.Unlock()
		}
	}))
	defer srv.Close()

	client := NewClient(sinkConfig(srv.URL), clock.NewFakeClock(time.Now()), zap.NewNop(), nil)
	ctx := context.Background()
	client.Info(ctx, "info")
	client.Warn(ctx, "warn")
	client.Error(ctx, "error")
	client.Flush()

	mu.Lock()
	defer mu.Unlock()
	for _, level := range []string{"INFO", "WARN", "ERROR"} {
		if levels[level] != 1 {
			t.Errorf("level %s delivered %d times, want 1", level, levels[level])
		}
	}
}

func TestClientSwallowsDeliveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	srv.Close() // connection refused from here on

	client := NewClient(sinkConfig(srv.URL), clock.NewFakeClock(time.Now()), zap.NewNop(), nil)
	client.Error(context.Background(), "boom")
	client.Flush() // must not panic or block
}

func TestClientWithoutEndpointIsNoop(t *testing.T) {
	client := NewClient(sinkConfig(""), clock.NewFakeClock(time.Now()), zap.NewNop(), nil)
	client.Info(context.Background(), "nothing to deliver")
	client.Flush()
}
