package remote

import (
	"context"
	"log/slog"
	"strings"
)

// LineSink 接收需要镜像到远程端的日志行
type LineSink interface {
	EnqueueLine(kind, text string)
}

// EnqueueLine 放入一条非事件的文本行，例如镜像的日志
func (t *Transmitter) EnqueueLine(kind, text string) {
	t.enqueue(kind, text)
}

// MirrorHandler 把不低于指定级别的日志记录同时作为 LOG|<text> 行发给遥控端
type MirrorHandler struct {
	next  slog.Handler
	sink  LineSink
	level slog.Level
	attrs []slog.Attr
}

func NewMirrorHandler(next slog.Handler, sink LineSink, level slog.Level) *MirrorHandler {
	return &MirrorHandler{next: next, sink: sink, level: level}
}

func (h *MirrorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level) || level >= h.level
}

func (h *MirrorHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level && h.sink != nil {
		h.sink.EnqueueLine("LOG", "LOG|"+h.format(r))
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *MirrorHandler) format(r slog.Record) string {
	var b strings.Builder
	b.WriteString(r.Level.String())
	b.WriteByte(' ')
	b.WriteString(r.Message)
	write := func(a slog.Attr) bool {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteByte('=')
		b.WriteString(a.Value.String())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)
	// 换行会破坏行协议
	return strings.ReplaceAll(b.String(), "\n", " ")
}

func (h *MirrorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &MirrorHandler{next: h.next.WithAttrs(attrs), sink: h.sink, level: h.level, attrs: merged}
}

// WithGroup 只作用于下游 handler，镜像行保持扁平
func (h *MirrorHandler) WithGroup(name string) slog.Handler {
	return &MirrorHandler{next: h.next.WithGroup(name), sink: h.sink, level: h.level, attrs: h.attrs}
}
