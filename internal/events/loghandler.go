package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// LogHandler forwards records to next and mirrors those at or above level
// to the host as DEBUG packets.
type LogHandler struct {
	next    slog.Handler
	emitter *Emitter
	level   slog.Leveler
	prefix  string // open groups, dot-joined
	attrs   string // preformatted attrs from WithAttrs
}

// NewLogHandler wraps next.
func NewLogHandler(next slog.Handler, emitter *Emitter, level slog.Leveler) *LogHandler {
	return &LogHandler{next: next, emitter: emitter, level: level}
}

func (h *LogHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() || h.next.Enabled(ctx, l)
}

func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.next.Enabled(ctx, r.Level) {
		err = h.next.Handle(ctx, r)
	}
	if r.Level < h.level.Level() {
		return err
	}

	var b strings.Builder
	b.WriteString(r.Level.String())
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	h.emitter.Debug(b.String())
	return err
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		writeAttr(&b, h.prefix, a)
	}
	cp := *h
	cp.next = h.next.WithAttrs(attrs)
	cp.attrs = b.String()
	return &cp
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	cp.next = h.next.WithGroup(name)
	cp.prefix = h.prefix + name + "."
	return &cp
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			writeAttr(b, p, ga)
		}
		return
	}
	fmt.Fprintf(b, " %s%s=%v", prefix, a.Key, a.Value.Any())
}

var _ slog.Handler = (*LogHandler)(nil)
