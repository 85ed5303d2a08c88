package service

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/zhiyou-ai/trip_planner/internal/domain"
	"github.com/zhiyou-ai/trip_planner/internal/geo"
	"github.com/zhiyou-ai/trip_planner/internal/session"
)

// StartReq 发起规划请求
type StartReq struct {
	StartCity   string `json:"startCity"`
	Destination string `json:"destination"`
	Duration    string `json:"duration"`
	People      string `json:"people"`
	Budget      string `json:"budget"`
	RawInput    string `json:"rawInput"`
}

type StartReply struct {
	TaskID string `json:"taskId"`
}

// ResultReply 轮询结果。Status 取值 pending / ready / failed。
type ResultReply struct {
	Status string             `json:"status"`
	Plan   *domain.TravelPlan `json:"plan,omitempty"`
	Reason string             `json:"reason,omitempty"`
}

type ModifyReq struct {
	TaskID  string `json:"taskId"`
	Request string `json:"request"`
}

type ModifyReply struct {
	Success bool               `json:"success"`
	Plan    *domain.TravelPlan `json:"plan,omitempty"`
	Message string             `json:"message,omitempty"`
}

type MarkersReply struct {
	Markers []geo.Marker `json:"markers"`
	Center  geo.Center   `json:"center"`
}

type CancelReq struct {
	TaskID string `json:"taskId"`
}

type CancelReply struct {
	Success bool `json:"success"`
}

// PlanningService 对外暴露规划会话的完整生命周期
type PlanningService struct {
	orch   *session.Orchestrator
	poller *session.Poller
	log    *log.Helper
}

func NewPlanningService(orch *session.Orchestrator, poller *session.Poller, logger log.Logger) *PlanningService {
	return &PlanningService{
		orch:   orch,
		poller: poller,
		log:    log.NewHelper(logger),
	}
}

func (s *PlanningService) Start(ctx context.Context, req *StartReq) (*StartReply, error) {
	demand := domain.UserDemand{
		StartCity:   req.StartCity,
		Destination: req.Destination,
		Duration:    req.Duration,
		People:      req.People,
		Budget:      req.Budget,
		RawInput:    req.RawInput,
	}
	sessionID := s.orch.Start(ctx, demand)
	s.log.Infof("发起规划: %s -> %s, task=%s", req.StartCity, req.Destination, sessionID)
	return &StartReply{TaskID: sessionID}, nil
}

func (s *PlanningService) Result(ctx context.Context, sessionID string) (*ResultReply, error) {
	return resultReply(s.orch.Poll(ctx, sessionID)), nil
}

// Await 长轮询变体：由服务端按配置的间隔与次数上限驱动轮询，
// 阻塞到会话进入终态（就绪、失败或超时）才返回。
func (s *PlanningService) Await(ctx context.Context, sessionID string) (*ResultReply, error) {
	terminal := make(chan session.PollOutcome, 1)
	task := s.poller.Start(ctx, sessionID, func(outcome session.PollOutcome) {
		if outcome.Status == session.StatusPending {
			return
		}
		select {
		case terminal <- outcome:
		default:
		}
	})
	defer task.Cancel()

	select {
	case outcome := <-terminal:
		return resultReply(outcome), nil
	case <-task.Done():
		// 终态送达与 done 关闭竞争时优先取结果
		select {
		case outcome := <-terminal:
			return resultReply(outcome), nil
		default:
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, context.Canceled
	}
}

// Cancel 作废一个会话：之后到达的迟到响应不再写入共享状态。
func (s *PlanningService) Cancel(_ context.Context, req *CancelReq) (*CancelReply, error) {
	s.orch.Invalidate(req.TaskID)
	s.log.Infof("作废规划会话 [%s]", req.TaskID)
	return &CancelReply{Success: true}, nil
}

func resultReply(outcome session.PollOutcome) *ResultReply {
	switch outcome.Status {
	case session.StatusReady:
		return &ResultReply{Status: "ready", Plan: outcome.Plan}
	case session.StatusFailed:
		return &ResultReply{Status: "failed", Reason: outcome.Reason}
	default:
		return &ResultReply{Status: "pending"}
	}
}

func (s *PlanningService) Modify(ctx context.Context, req *ModifyReq) (*ModifyReply, error) {
	outcome := s.orch.Modify(ctx, req.TaskID, req.Request)
	if !outcome.OK {
		return &ModifyReply{Success: false, Message: outcome.Reason}, nil
	}
	return &ModifyReply{Success: true, Plan: outcome.Plan}, nil
}

// Markers 返回已完成计划的地图标注与视图中心。
// 计划未完成或会话无效时返回空标注和默认中心。
func (s *PlanningService) Markers(ctx context.Context, sessionID string) (*MarkersReply, error) {
	outcome := s.orch.Poll(ctx, sessionID)
	if outcome.Status != session.StatusReady {
		return &MarkersReply{
			Markers: []geo.Marker{},
			Center:  geo.Center{Longitude: geo.DefaultCenterLongitude, Latitude: geo.DefaultCenterLatitude},
		}, nil
	}
	markers := geo.BuildMarkers(outcome.Plan)
	return &MarkersReply{
		Markers: markers,
		Center:  geo.MapCenter(markers),
	}, nil
}
