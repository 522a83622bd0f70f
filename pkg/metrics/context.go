package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

type newRelicContextKey struct{}

// NewRelicContextKey is the context key holding the *newrelic.Application used
// to record events and custom metrics
var NewRelicContextKey = newRelicContextKey{}

// WithNewRelicApp returns a context that records events and metrics to app.
// A nil app returns ctx unchanged.
func WithNewRelicApp(ctx context.Context, app *newrelic.Application) context.Context {
	if app == nil {
		return ctx
	}
	return context.WithValue(ctx, NewRelicContextKey, app)
}
