// Package correlation tags background work with an id that every log line
// emitted for that unit of work carries.
package correlation

import (
	"context"

	"github.com/smallbiznis/partnerpay/pkg/idgen"
)

const prefix = "run"

type key struct{}

func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key{}).(string)
	return id
}

func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, key{}, id)
}

// Ensure keeps an existing id or attaches a fresh one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := idgen.New(prefix)
	return WithID(ctx, id), id
}
