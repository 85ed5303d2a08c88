package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhiyou-ai/trip_planner/internal/domain"
	"github.com/zhiyou-ai/trip_planner/internal/planner"
	"github.com/zhiyou-ai/trip_planner/internal/store"
)

var testDemand = domain.UserDemand{
	StartCity:   "上海",
	Destination: "杭州",
	Duration:    "3天",
	People:      "2人",
	Budget:      "3000-8000",
	RawInput:    "",
}

func testPlan(sessionID string) *domain.TravelPlan {
	return &domain.TravelPlan{
		SessionID:    sessionID,
		Title:        "杭州三日游",
		StartCity:    "上海",
		Destination:  "杭州",
		DurationDays: 3,
		DailyPlans: []domain.DailyPlan{
			{Day: 1, Activities: []domain.Activity{
				{ID: "a1", Position: "西湖", Type: domain.ActivityAttraction,
					Longitude: 120.15, Latitude: 30.27},
			}},
		},
	}
}

// fakeBackend 按脚本响应的规划后端桩
type fakeBackend struct {
	mu          sync.Mutex
	fetchCalls  int
	modifyCalls int
	fetchFn     func(call int, sessionID string) (*domain.TravelPlan, error)
	modifyFn    func(current *domain.TravelPlan, request string) (*domain.TravelPlan, error)
}

func (f *fakeBackend) Fetch(_ context.Context, sessionID string, _ domain.UserDemand) (*domain.TravelPlan, error) {
	f.mu.Lock()
	f.fetchCalls++
	call := f.fetchCalls
	f.mu.Unlock()
	return f.fetchFn(call, sessionID)
}

func (f *fakeBackend) Modify(_ context.Context, _ string, current *domain.TravelPlan, _ domain.UserDemand, request string) (*domain.TravelPlan, error) {
	f.mu.Lock()
	f.modifyCalls++
	f.mu.Unlock()
	return f.modifyFn(current, request)
}

func (f *fakeBackend) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func newTestOrchestrator(backend planner.Backend) *Orchestrator {
	st := store.NewSessionStore(nil, time.Hour)
	return New(st, backend, nil, nil)
}

func TestStartThenImmediatePollPending(t *testing.T) {
	backend := &fakeBackend{
		fetchFn: func(int, string) (*domain.TravelPlan, error) {
			return nil, planner.ErrNotReady
		},
	}
	orch := newTestOrchestrator(backend)

	sessionID := orch.Start(t.Context(), testDemand)
	assert.NotEmpty(t, sessionID)
	assert.Contains(t, sessionID, "task_")

	outcome := orch.Poll(t.Context(), sessionID)
	assert.Equal(t, StatusPending, outcome.Status)
}

func TestPollReadyThenCached(t *testing.T) {
	backend := &fakeBackend{
		fetchFn: func(_ int, sessionID string) (*domain.TravelPlan, error) {
			return testPlan(sessionID), nil
		},
	}
	orch := newTestOrchestrator(backend)
	sessionID := orch.Start(t.Context(), testDemand)

	first := orch.Poll(t.Context(), sessionID)
	require.Equal(t, StatusReady, first.Status)
	require.NotNil(t, first.Plan)

	// 完成后的重复轮询：同一份计划，后端不再被调用
	second := orch.Poll(t.Context(), sessionID)
	require.Equal(t, StatusReady, second.Status)
	assert.Same(t, first.Plan, second.Plan)
	assert.Equal(t, 1, backend.FetchCalls())
}

func TestPollSoftPendingClassification(t *testing.T) {
	backend := &fakeBackend{
		fetchFn: func(int, string) (*domain.TravelPlan, error) {
			return nil, errors.New("backend: plan Not Ready yet")
		},
	}
	orch := newTestOrchestrator(backend)
	sessionID := orch.Start(t.Context(), testDemand)

	outcome := orch.Poll(t.Context(), sessionID)
	assert.Equal(t, StatusPending, outcome.Status)
}

func TestPollExpiredIsTerminal(t *testing.T) {
	backend := &fakeBackend{
		fetchFn: func(int, string) (*domain.TravelPlan, error) {
			return nil, errors.New("任务已过期")
		},
	}
	orch := newTestOrchestrator(backend)
	sessionID := orch.Start(t.Context(), testDemand)

	outcome := orch.Poll(t.Context(), sessionID)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, FailureInvalidSession, outcome.Kind)
}

func TestPollBackendErrorIsTerminal(t *testing.T) {
	backend := &fakeBackend{
		fetchFn: func(int, string) (*domain.TravelPlan, error) {
			return nil, errors.New("upstream exploded")
		},
	}
	orch := newTestOrchestrator(backend)
	sessionID := orch.Start(t.Context(), testDemand)

	outcome := orch.Poll(t.Context(), sessionID)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, FailureBackend, outcome.Kind)
	assert.Equal(t, "upstream exploded", outcome.Reason)
}

func TestPollUnknownSession(t *testing.T) {
	orch := newTestOrchestrator(&fakeBackend{})

	outcome := orch.Poll(t.Context(), "task_nonexistent")
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, FailureInvalidSession, outcome.Kind)
}

func TestPollDiscardsLateResponseAfterInvalidate(t *testing.T) {
	var orch *Orchestrator
	backend := &fakeBackend{}
	backend.fetchFn = func(_ int, sessionID string) (*domain.TravelPlan, error) {
		// 后端响应期间会话被切换：模拟迟到响应
		orch.Invalidate(sessionID)
		return testPlan(sessionID), nil
	}
	orch = newTestOrchestrator(backend)
	sessionID := orch.Start(t.Context(), testDemand)

	outcome := orch.Poll(t.Context(), sessionID)
	assert.Equal(t, StatusFailed, outcome.Status)

	// 迟到结果不得写入缓存：直接轮询会重新走后端
	backend.fetchFn = func(int, string) (*domain.TravelPlan, error) {
		return nil, planner.ErrNotReady
	}
	again := orch.Poll(t.Context(), sessionID)
	assert.Equal(t, StatusPending, again.Status)
}

func TestModifyBeforeReady(t *testing.T) {
	orch := newTestOrchestrator(&fakeBackend{})
	sessionID := orch.Start(t.Context(), testDemand)

	outcome := orch.Modify(t.Context(), sessionID, "预算减半")
	assert.False(t, outcome.OK)
	assert.Equal(t, reasonNoPlanToModify, outcome.Reason)
}

func TestModifyFailureLeavesPlanUntouched(t *testing.T) {
	backend := &fakeBackend{
		fetchFn: func(_ int, sessionID string) (*domain.TravelPlan, error) {
			return testPlan(sessionID), nil
		},
		modifyFn: func(*domain.TravelPlan, string) (*domain.TravelPlan, error) {
			return nil, fmt.Errorf("%w: unexpected token", planner.ErrParse)
		},
	}
	orch := newTestOrchestrator(backend)
	sessionID := orch.Start(t.Context(), testDemand)

	ready := orch.Poll(t.Context(), sessionID)
	require.Equal(t, StatusReady, ready.Status)
	before, err := json.Marshal(ready.Plan)
	require.NoError(t, err)

	outcome := orch.Modify(t.Context(), sessionID, "预算减半")
	assert.False(t, outcome.OK)
	assert.Equal(t, reasonModifyParse, outcome.Reason)

	after := orch.Poll(t.Context(), sessionID)
	require.Equal(t, StatusReady, after.Status)
	afterJSON, err := json.Marshal(after.Plan)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(afterJSON), "失败的修改不得改动已缓存的计划")
}

func TestModifyBackendErrorSurfacesRawMessage(t *testing.T) {
	backend := &fakeBackend{
		fetchFn: func(_ int, sessionID string) (*domain.TravelPlan, error) {
			return testPlan(sessionID), nil
		},
		modifyFn: func(*domain.TravelPlan, string) (*domain.TravelPlan, error) {
			return nil, errors.New("connection refused: upstream unreachable")
		},
	}
	orch := newTestOrchestrator(backend)
	sessionID := orch.Start(t.Context(), testDemand)
	require.Equal(t, StatusReady, orch.Poll(t.Context(), sessionID).Status)

	// 非解析类的后端错误原样透出，不得被解析失败话术吞掉
	outcome := orch.Modify(t.Context(), sessionID, "预算减半")
	assert.False(t, outcome.OK)
	assert.Equal(t, "connection refused: upstream unreachable", outcome.Reason)
}

func TestModifyReplacesPlanAtomically(t *testing.T) {
	backend := &fakeBackend{
		fetchFn: func(_ int, sessionID string) (*domain.TravelPlan, error) {
			return testPlan(sessionID), nil
		},
		modifyFn: func(current *domain.TravelPlan, request string) (*domain.TravelPlan, error) {
			replacement := testPlan(current.SessionID)
			replacement.Title = "修改后的杭州之旅"
			return replacement, nil
		},
	}
	orch := newTestOrchestrator(backend)
	sessionID := orch.Start(t.Context(), testDemand)

	require.Equal(t, StatusReady, orch.Poll(t.Context(), sessionID).Status)

	outcome := orch.Modify(t.Context(), sessionID, "换一家酒店")
	require.True(t, outcome.OK)
	assert.Equal(t, "修改后的杭州之旅", outcome.Plan.Title)
	assert.Equal(t, sessionID, outcome.Plan.SessionID)

	// 替换后的计划成为后续轮询的权威结果
	again := orch.Poll(t.Context(), sessionID)
	assert.Equal(t, "修改后的杭州之旅", again.Plan.Title)
}

func genCount(o *Orchestrator) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.gens)
}

func TestGenerationStateBoundedByInflight(t *testing.T) {
	var orch *Orchestrator
	var duringFetch int
	backend := &fakeBackend{}
	backend.fetchFn = func(call int, sessionID string) (*domain.TravelPlan, error) {
		duringFetch = genCount(orch)
		if call == 1 {
			return nil, planner.ErrNotReady
		}
		return testPlan(sessionID), nil
	}
	orch = newTestOrchestrator(backend)

	// 代数记录只在后端调用在途期间存在
	sessionID := orch.Start(t.Context(), testDemand)
	assert.Equal(t, 0, genCount(orch))

	require.Equal(t, StatusPending, orch.Poll(t.Context(), sessionID).Status)
	assert.Equal(t, 1, duringFetch)
	assert.Equal(t, 0, genCount(orch))

	require.Equal(t, StatusReady, orch.Poll(t.Context(), sessionID).Status)
	assert.Equal(t, 0, genCount(orch))
}

func TestGenerationStateReleasedOnFailure(t *testing.T) {
	backend := &fakeBackend{
		fetchFn: func(int, string) (*domain.TravelPlan, error) {
			return nil, errors.New("upstream exploded")
		},
	}
	orch := newTestOrchestrator(backend)
	sessionID := orch.Start(t.Context(), testDemand)

	require.Equal(t, StatusFailed, orch.Poll(t.Context(), sessionID).Status)
	assert.Equal(t, 0, genCount(orch))
}

func TestInvalidateUnknownSessionAddsNothing(t *testing.T) {
	orch := newTestOrchestrator(&fakeBackend{})

	orch.Invalidate("task_ghost")
	assert.Equal(t, 0, genCount(orch))
}

func TestModifyDiscardedAfterInvalidate(t *testing.T) {
	var orch *Orchestrator
	backend := &fakeBackend{
		fetchFn: func(_ int, sessionID string) (*domain.TravelPlan, error) {
			return testPlan(sessionID), nil
		},
	}
	backend.modifyFn = func(current *domain.TravelPlan, _ string) (*domain.TravelPlan, error) {
		orch.Invalidate(current.SessionID)
		replacement := testPlan(current.SessionID)
		replacement.Title = "迟到的修改"
		return replacement, nil
	}
	orch = newTestOrchestrator(backend)
	sessionID := orch.Start(t.Context(), testDemand)
	require.Equal(t, StatusReady, orch.Poll(t.Context(), sessionID).Status)

	outcome := orch.Modify(t.Context(), sessionID, "预算减半")
	assert.False(t, outcome.OK)

	// 缓存中的计划保持原样
	cached := orch.Poll(t.Context(), sessionID)
	assert.Equal(t, "杭州三日游", cached.Plan.Title)
}
