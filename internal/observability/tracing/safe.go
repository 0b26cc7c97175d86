package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var sensitiveKeys = []string{"email", "token", "secret", "authorization", "password"}

// SafeAttributes drops attributes whose key looks like it carries secrets or PII.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		key := strings.ToLower(string(attr.Key))
		drop := false
		for _, sensitive := range sensitiveKeys {
			if strings.Contains(key, sensitive) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, attr)
		}
	}
	return out
}

// SafeError returns an error safe to attach to spans: the message is kept,
// wrapped provider payloads are not.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return errors.New(msg)
}

func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
