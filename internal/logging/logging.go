package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel 解析 debug / info / warn / error
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("未知的日志级别 %q", s)
	}
	return level, nil
}

// NewHandler 根据格式创建 JSON 或文本 handler
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// New 创建带 run_id 的根日志记录器，wrap 可以为 nil，用来在 handler 外再包一层 (例如远程镜像)
func New(w io.Writer, format, level, runID string, wrap func(slog.Handler) slog.Handler) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	h := NewHandler(w, format, lvl)
	if wrap != nil {
		h = wrap(h)
	}
	return slog.New(h).With("run_id", runID), nil
}
