package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhiyou-ai/trip_planner/internal/planner"
	"github.com/zhiyou-ai/trip_planner/internal/session"
	"github.com/zhiyou-ai/trip_planner/internal/store"
)

func newTestService() *PlanningService {
	st := store.NewSessionStore(nil, time.Hour)
	orch := session.New(st, planner.NewMockBackend(), nil, nil)
	poller := session.NewPoller(orch, 5*time.Millisecond, 30)
	return NewPlanningService(orch, poller, log.NewStdLogger(io.Discard))
}

func TestPlanningLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := t.Context()

	started, err := svc.Start(ctx, &StartReq{
		StartCity:   "上海",
		Destination: "杭州",
		Duration:    "3天",
		People:      "2人",
		Budget:      "3000-8000",
	})
	require.NoError(t, err)
	require.NotEmpty(t, started.TaskID)

	// 首次轮询必然处于生成中
	first, err := svc.Result(ctx, started.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "pending", first.Status)
	assert.Nil(t, first.Plan)

	second, err := svc.Result(ctx, started.TaskID)
	require.NoError(t, err)
	require.Equal(t, "ready", second.Status)
	require.NotNil(t, second.Plan)
	assert.Equal(t, started.TaskID, second.Plan.SessionID)
	assert.Len(t, second.Plan.DailyPlans, 3)

	modified, err := svc.Modify(ctx, &ModifyReq{TaskID: started.TaskID, Request: "多安排一些美食"})
	require.NoError(t, err)
	require.True(t, modified.Success)
	assert.Contains(t, modified.Plan.Title, "已修改")
}

func TestAwaitBlocksUntilReady(t *testing.T) {
	svc := newTestService()
	ctx := t.Context()

	started, err := svc.Start(ctx, &StartReq{StartCity: "上海", Destination: "杭州", Duration: "2天"})
	require.NoError(t, err)

	// 长轮询：服务端内部驱动，一次调用直接拿到终态
	reply, err := svc.Await(ctx, started.TaskID)
	require.NoError(t, err)
	require.Equal(t, "ready", reply.Status)
	require.NotNil(t, reply.Plan)
	assert.Equal(t, started.TaskID, reply.Plan.SessionID)
}

func TestAwaitCancelledContext(t *testing.T) {
	svc := newTestService()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := svc.Await(ctx, "task_whatever")
	assert.Error(t, err)
}

func TestCancelSession(t *testing.T) {
	svc := newTestService()
	ctx := t.Context()

	started, err := svc.Start(ctx, &StartReq{StartCity: "上海", Destination: "杭州", Duration: "2天"})
	require.NoError(t, err)

	reply, err := svc.Cancel(ctx, &CancelReq{TaskID: started.TaskID})
	require.NoError(t, err)
	assert.True(t, reply.Success)
}

func TestResultUnknownSession(t *testing.T) {
	svc := newTestService()

	reply, err := svc.Result(t.Context(), "task_unknown")
	require.NoError(t, err)
	assert.Equal(t, "failed", reply.Status)
	assert.NotEmpty(t, reply.Reason)
}

func TestMarkersBeforeReady(t *testing.T) {
	svc := newTestService()
	ctx := t.Context()

	started, err := svc.Start(ctx, &StartReq{StartCity: "上海", Destination: "杭州", Duration: "2天"})
	require.NoError(t, err)

	reply, err := svc.Markers(ctx, started.TaskID)
	require.NoError(t, err)
	assert.Empty(t, reply.Markers)
	assert.InDelta(t, 116.397428, reply.Center.Longitude, 1e-9)
	assert.InDelta(t, 39.90923, reply.Center.Latitude, 1e-9)
}
