package logging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/surveyor-hil/asvsim/pkg/core"
)

// fanout sends every record to each sink that accepts its level. A failing
// sink does not stop the others.
type fanout []slog.Handler

func newFanout(sinks ...slog.Handler) fanout {
	out := make(fanout, 0, len(sinks))
	for _, h := range sinks {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// ContextProvider returns attributes describing the current simulator
// state. It is called once per record.
type ContextProvider func() []slog.Attr

// SimState is the part of the simulator log records are tagged with.
type SimState interface {
	Mode() core.ControlMode
	Mission() core.Mission
	Telemetry() core.Telemetry
}

// SimContext reports the control mode, mission progress and tick.
func SimContext(src SimState) ContextProvider {
	return func() []slog.Attr {
		m := src.Mission()
		return []slog.Attr{
			slog.String("mode", string(src.Mode())),
			slog.String("mission", string(m.Status)),
			slog.Int("waypoint", m.Target),
			slog.Uint64("tick", src.Telemetry().Tick),
		}
	}
}

// stateHandler adds the provider's attributes to each record under the
// "sim" group. Records logged while the provider returns nothing are left
// alone.
type stateHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

func newStateHandler(inner slog.Handler, provider ContextProvider) slog.Handler {
	if provider == nil {
		return inner
	}
	return &stateHandler{inner: inner, provider: provider}
}

func (h *stateHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *stateHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := h.provider(); len(attrs) > 0 {
		args := make([]any, len(attrs))
		for i, a := range attrs {
			args[i] = a
		}
		r.AddAttrs(slog.Group("sim", args...))
	}
	return h.inner.Handle(ctx, r)
}

func (h *stateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &stateHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

func (h *stateHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &stateHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}
