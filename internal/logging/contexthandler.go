package logging

import (
	"context"
	"log/slog"
)

// LiveAttrs reports values that change while a logger is held, such as a
// hub's recipient count. It runs once per written record.
type LiveAttrs func() []slog.Attr

// liveHandler appends LiveAttrs after the logger's own attributes.
type liveHandler struct {
	inner slog.Handler
	live  LiveAttrs
}

func (h *liveHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *liveHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(h.live()...)
	return h.inner.Handle(ctx, r)
}

func (h *liveHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &liveHandler{inner: h.inner.WithAttrs(attrs), live: h.live}
}

func (h *liveHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &liveHandler{inner: h.inner.WithGroup(name), live: h.live}
}

// WithLive returns a logger that stamps every record with live's
// attributes. A nil live returns logger unchanged.
func WithLive(logger *slog.Logger, live LiveAttrs) *slog.Logger {
	if live == nil {
		return logger
	}
	return slog.New(&liveHandler{inner: logger.Handler(), live: live})
}
