package tracing

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
)

// allowedSpanKeys holds the attribute keys exported spans may carry.
// Login and domain names must never appear in telemetry.
var allowedSpanKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"request_id":              {},
	"app_code":                {},
	"outcome":                 {},
}

// SafeAttributes drops any attribute not on the export allowlist.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	safe := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; ok {
			safe = append(safe, attr)
		}
	}
	return safe
}

// SafeError returns an error stripped to its category so request payload
// values carried in error strings cannot leak into span events.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New("request handling failed")
}
