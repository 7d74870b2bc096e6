package util

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == b {
		t.Fatalf("两次生成的 ID 不应相同")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("ID 应为合法的 UUID: %v", err)
	}
}

func TestClientID(t *testing.T) {
	if got := ClientID("robot-1", "0123456789abcdef"); got != "robot-1-01234567" {
		t.Fatalf("客户端 ID 错误: %s", got)
	}
	if got := ClientID("robot-1", "abc"); got != "robot-1-abc" {
		t.Fatalf("短 ID 应保持不变: %s", got)
	}
}

func TestRunIDContext(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "run-1")
	if id, ok := RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("应能取回 Run ID")
	}
	if _, ok := RunIDFromContext(context.Background()); ok {
		t.Fatalf("空 Context 不应有 Run ID")
	}
}
