// Package session 实现规划会话的生命周期编排：
// 提交需求、轮询结果、就地修改，以及轮询驱动器。
package session

import (
	"strings"

	"github.com/zhiyou-ai/trip_planner/internal/domain"
)

// Status 单次轮询的结果状态
type Status int

const (
	// StatusPending 后端尚未完成，调用方应按固定间隔重试
	StatusPending Status = iota
	// StatusReady 计划已就绪
	StatusReady
	// StatusFailed 本会话失败，终态；恢复路径是发起全新会话
	StatusFailed
)

// FailureKind 失败分类
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureInvalidSession 未知或已过期的会话
	FailureInvalidSession
	// FailureTimeout 轮询次数用尽仍未就绪
	FailureTimeout
	// FailureBackend 后端错误或响应无法解析
	FailureBackend
)

// PollOutcome 一次 Poll 的结果
type PollOutcome struct {
	Status Status
	Plan   *domain.TravelPlan
	Kind   FailureKind
	Reason string
}

// ModifyOutcome 一次 Modify 的结果
type ModifyOutcome struct {
	OK     bool
	Plan   *domain.TravelPlan
	Reason string
}

func pending() PollOutcome {
	return PollOutcome{Status: StatusPending}
}

func ready(plan *domain.TravelPlan) PollOutcome {
	return PollOutcome{Status: StatusReady, Plan: plan}
}

func failed(kind FailureKind, reason string) PollOutcome {
	return PollOutcome{Status: StatusFailed, Kind: kind, Reason: reason}
}

// notReadyMarkers 识别"仍在生成"类的后端措辞，归类为软等待
var notReadyMarkers = []string{"not ready", "生成中", "处理中", "排队中"}

// expiredMarkers 会话过期类措辞。历史实现把"过期"也当软等待重试，
// 但过期的会话不可能再就绪，这里归类为终态的无效会话。
var expiredMarkers = []string{"过期", "expired"}

func isNotReady(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range notReadyMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func isExpired(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range expiredMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
