// Package planner 提供行程规划后端：LLM 实现与本地降级生成器。
package planner

import (
	"context"
	"errors"

	"github.com/zhiyou-ai/trip_planner/internal/domain"
)

// ErrNotReady 表示后端尚未完成本次生成，调用方应稍后重试。
var ErrNotReady = errors.New("plan not ready")

// ErrParse 表示模型已响应但输出无法解析为行程计划。
// 调用方据此与网络、限流等后端错误区分处理。
var ErrParse = errors.New("plan parse failed")

// Backend 规划后端。
// Fetch 对一个会话发起一次取结果尝试：生成未完成返回 ErrNotReady，
// 完成返回完整计划，其余错误视为本次会话失败。
// Modify 基于当前计划与修改请求生成一份完整的替换计划（非增量补丁）。
type Backend interface {
	Fetch(ctx context.Context, sessionID string, demand domain.UserDemand) (*domain.TravelPlan, error)
	Modify(ctx context.Context, sessionID string, current *domain.TravelPlan, demand domain.UserDemand, request string) (*domain.TravelPlan, error)
}
