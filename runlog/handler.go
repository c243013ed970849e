package runlog

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Handler is a slog.Handler that tees records to an inner handler and to a
// Store, tagging each row with the run in progress.
type Handler struct {
	inner    slog.Handler
	store    *Store
	preAttrs map[string]any // attrs accumulated via WithAttrs
}

// NewHandler wraps inner with a tee to store.
func NewHandler(inner slog.Handler, store *Store) *Handler {
	return &Handler{inner: inner, store: store, preAttrs: make(map[string]any)}
}

func (h *Handler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	child := &Handler{
		inner:    h.inner.WithAttrs(attrs),
		store:    h.store,
		preAttrs: copyMap(h.preAttrs),
	}
	for _, a := range attrs {
		child.preAttrs[a.Key] = attrValue(a)
	}
	return child
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		inner:    h.inner.WithGroup(name),
		store:    h.store,
		preAttrs: copyMap(h.preAttrs),
	}
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	extra := copyMap(h.preAttrs)
	r.Attrs(func(a slog.Attr) bool {
		extra[a.Key] = attrValue(a)
		return true
	})

	var attrsJSON string
	if len(extra) > 0 {
		b, _ := json.Marshal(extra)
		attrsJSON = string(b)
	}

	h.store.write(ctx, r.Time, r.Level.String(), r.Message, h.store.current.Load(), attrsJSON)
	return nil
}

// attrValue returns a JSON-friendly value; errors are stored as their message.
func attrValue(a slog.Attr) any {
	v := a.Value.Resolve().Any()
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
