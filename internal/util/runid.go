package util

import (
	"context"

	"github.com/google/uuid"
)

// contextKey 是一个私有类型，用于避免 context key 的冲突
type contextKey string

const runIDKey contextKey = "runID"

// NewRunID 生成一次运行的唯一 ID
// 用于关联同一次启动的日志、MQTT 客户端 ID 和遥测数据
func NewRunID() string {
	return uuid.NewString()
}

// ClientID 生成 MQTT 客户端 ID: <robot_id>-<run_id 前 8 位>
func ClientID(robotID, runID string) string {
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return robotID + "-" + runID
}

// ContextWithRunID 将 Run ID 注入到 Context 中，并返回一个新的 Context
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext 从 Context 中提取 Run ID
func RunIDFromContext(ctx context.Context) (string, bool) {
	runID, ok := ctx.Value(runIDKey).(string)
	return runID, ok
}
