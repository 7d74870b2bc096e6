package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		" warn": slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; 期望 %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("未知级别应返回错误")
	}
}

func TestNew_JSONWithRunID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "json", "info", "run-42", nil)
	if err != nil {
		t.Fatalf("创建日志失败: %v", err)
	}
	logger.Debug("不会输出")
	logger.Info("启动")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("应只输出一行, 实际 %q", buf.String())
	}
	var rec map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("输出不是 JSON: %v", err)
	}
	if rec["run_id"] != "run-42" || rec["msg"] != "启动" {
		t.Fatalf("日志字段错误: %v", rec)
	}
}

func TestNew_Wrap(t *testing.T) {
	var buf bytes.Buffer
	wrapped := false
	_, err := New(&buf, "text", "warn", "run", func(h slog.Handler) slog.Handler {
		wrapped = true
		return h
	})
	if err != nil || !wrapped {
		t.Fatalf("应调用 wrap: %v", err)
	}
}
