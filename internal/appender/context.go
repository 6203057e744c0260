package appender

import (
	"context"
	"maps"
)

type propertiesKey struct{}

// WithProperties returns a context carrying diagnostic properties that the
// slog front-end attaches to every event emitted under it. Properties merge
// over any already carried; the input map is copied.
func WithProperties(ctx context.Context, props map[string]string) context.Context {
	merged := maps.Clone(Properties(ctx))
	if merged == nil {
		merged = make(map[string]string, len(props))
	}
	maps.Copy(merged, props)
	return context.WithValue(ctx, propertiesKey{}, merged)
}

// Properties returns the diagnostic properties carried by ctx, or nil.
func Properties(ctx context.Context) map[string]string {
	props, _ := ctx.Value(propertiesKey{}).(map[string]string)
	return props
}
