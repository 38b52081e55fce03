package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Sink is one destination of the process logger: the console and log file,
// Graylog, or the OpenTelemetry bridge.
type Sink struct {
	Name    string
	Handler slog.Handler
}

// Tee writes each record to every sink whose handler accepts its level.
// A sink that fails to write does not keep the record from the others.
type Tee struct {
	sinks []Sink
}

// NewTee skips sinks without a handler.
func NewTee(sinks ...Sink) *Tee {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s.Handler != nil {
			kept = append(kept, s)
		}
	}
	return &Tee{sinks: kept}
}

// Names lists the sinks in write order.
func (t *Tee) Names() []string {
	out := make([]string, len(t.sinks))
	for i, s := range t.sinks {
		out[i] = s.Name
	}
	return out
}

func (t *Tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range t.sinks {
		if s.Handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *Tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range t.sinks {
		if !s.Handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, fmt.Errorf("log sink %s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t *Tee) WithGroup(name string) slog.Handler {
	if name == "" {
		return t
	}
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t *Tee) derive(f func(slog.Handler) slog.Handler) *Tee {
	sinks := make([]Sink, len(t.sinks))
	for i, s := range t.sinks {
		sinks[i] = Sink{Name: s.Name, Handler: f(s.Handler)}
	}
	return &Tee{sinks: sinks}
}
