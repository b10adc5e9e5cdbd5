package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
)

// Poster is the part of *fluent.Fluent the handler uses.
type Poster interface {
	Post(tag string, message any) error
}

// NewFluentClient connects to a Fluent Bit forward input. Posting is
// asynchronous so a slow collector never blocks request handling.
func NewFluentClient(host string, port int, tagPrefix string) (*fluent.Fluent, error) {
	if tagPrefix == "" {
		return nil, errors.New("fluent tag prefix is required")
	}

	client, err := fluent.New(fluent.Config{
		FluentHost: host,
		FluentPort: port,
		TagPrefix:  tagPrefix,
		Async:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("create fluent client: %w", err)
	}
	return client, nil
}

// FluentHandler ships records to Fluent Bit, tagged by level.
type FluentHandler struct {
	client Poster
	level  slog.Leveler
	fields map[string]any
	prefix string
}

// NewFluentHandler creates a handler posting records at or above level.
func NewFluentHandler(client Poster, level slog.Leveler) *FluentHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &FluentHandler{client: client, level: level, fields: map[string]any{}}
}

func (h *FluentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *FluentHandler) Handle(_ context.Context, r slog.Record) error {
	data := make(map[string]any, len(h.fields)+r.NumAttrs()+3)
	for k, v := range h.fields {
		data[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(data, h.prefix, a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	data["level"] = r.Level.String()
	data["message"] = r.Message
	data["timestamp"] = ts.UTC().Format(time.RFC3339Nano)

	return h.client.Post(strings.ToLower(r.Level.String()), data)
}

func (h *FluentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make(map[string]any, len(h.fields)+len(attrs))
	for k, v := range h.fields {
		fields[k] = v
	}
	for _, a := range attrs {
		addAttr(fields, h.prefix, a)
	}
	return &FluentHandler{client: h.client, level: h.level, fields: fields, prefix: h.prefix}
}

func (h *FluentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &FluentHandler{client: h.client, level: h.level, fields: h.fields, prefix: h.prefix + name + "."}
}

// addAttr flattens groups into dotted keys and keeps values msgpack-friendly.
func addAttr(data map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range v.Group() {
			addAttr(data, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}

	key := prefix + a.Key
	switch v.Kind() {
	case slog.KindString:
		data[key] = v.String()
	case slog.KindInt64:
		data[key] = v.Int64()
	case slog.KindUint64:
		data[key] = v.Uint64()
	case slog.KindFloat64:
		data[key] = v.Float64()
	case slog.KindBool:
		data[key] = v.Bool()
	case slog.KindTime:
		data[key] = v.Time().UTC().Format(time.RFC3339Nano)
	default:
		if err, ok := v.Any().(error); ok {
			data[key] = err.Error()
			return
		}
		data[key] = v.String()
	}
}
