package appender

import (
	"context"
	"log/slog"
	"maps"
)

// Handler adapts an Appender to the slog.Handler interface so a standard
// *slog.Logger can publish straight to the broker. Record attributes and
// context-carried properties become message headers; an "error" attribute
// becomes the event's error text.
type Handler struct {
	appender *Appender
	name     string
	level    slog.Leveler
	prefix   string
	attrs    map[string]string
}

// NewHandler creates a slog handler emitting through a. Records below level
// are discarded. The name identifies the logger in the event and routing key.
func NewHandler(a *Appender, name string, level slog.Leveler) *Handler {
	return &Handler{appender: a, name: name, level: level}
}

// Enabled reports whether records at lvl should be emitted.
func (h *Handler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level.Level()
}

// Handle converts the record to an Event and emits it. Emit failures
// propagate to slog per the Handler contract.
func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	props := maps.Clone(Properties(ctx))
	if props == nil && (len(h.attrs) > 0 || rec.NumAttrs() > 0) {
		props = make(map[string]string)
	}
	maps.Copy(props, h.attrs)

	var errText string
	rec.Attrs(func(attr slog.Attr) bool {
		if attr.Key == "error" {
			errText = attr.Value.String()
			return true
		}
		props[h.prefix+attr.Key] = attr.Value.String()
		return true
	})

	return h.appender.Emit(ctx, Event{
		Logger:     h.name,
		Level:      levelFrom(rec.Level),
		Message:    rec.Message,
		Err:        errText,
		Time:       rec.Time,
		Properties: props,
	})
}

// WithAttrs returns a handler whose events carry attrs as properties.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, attr := range attrs {
		next.attrs[next.prefix+attr.Key] = attr.Value.String()
	}
	return next
}

// WithGroup returns a handler prefixing subsequent attribute keys with the
// group name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.prefix = h.prefix + name + "."
	return next
}

func (h *Handler) clone() *Handler {
	next := *h
	next.attrs = make(map[string]string, len(h.attrs))
	maps.Copy(next.attrs, h.attrs)
	return &next
}

func levelFrom(lvl slog.Level) Level {
	switch {
	case lvl >= slog.LevelError:
		return LevelError
	case lvl >= slog.LevelWarn:
		return LevelWarn
	case lvl >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}
