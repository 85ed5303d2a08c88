package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhiyou-ai/trip_planner/internal/domain"
	"github.com/zhiyou-ai/trip_planner/internal/geo"
	"github.com/zhiyou-ai/trip_planner/internal/logger"
	"github.com/zhiyou-ai/trip_planner/internal/planner"
	"github.com/zhiyou-ai/trip_planner/internal/store"
)

// 会话标识前缀，沿用对外约定的 task_ 形式
const sessionIDPrefix = "task_"

const (
	reasonInvalidSession = "无效的任务ID或任务已过期。"
	reasonNoPlanToModify = "尚无已完成的计划可供修改。"
	reasonStaleSession   = "会话已被新会话取代，结果已丢弃。"
	reasonModifyParse    = "无法从AI响应中解析修改后的计划。"
)

// Orchestrator 规划会话编排器。
// 独占 PlanningSession 与 TravelPlan 的生命周期，表现层只持有只读引用。
type Orchestrator struct {
	store    *store.SessionStore
	backend  planner.Backend
	resolver *geo.Resolver // 可为 nil：跳过坐标回填
	archive  *store.Archive

	mu   sync.Mutex
	gens map[string]*genState // sessionID → 在途操作的代数记录
}

// genState 一个会话的代数记录。只在有在途后端调用时存在：
// 最后一个在途操作结束即删除，map 的大小以并发请求数为界。
type genState struct {
	gen      uint64
	inflight int
}

// New 创建编排器。resolver 与 archive 允许为 nil。
func New(st *store.SessionStore, backend planner.Backend, resolver *geo.Resolver, archive *store.Archive) *Orchestrator {
	return &Orchestrator{
		store:    st,
		backend:  backend,
		resolver: resolver,
		archive:  archive,
		gens:     make(map[string]*genState),
	}
}

// Start 开启一个新会话：生成会话标识并保存会话记录，立即返回。
// 不同步接触后端——会话创建与计划生成解耦。
func (o *Orchestrator) Start(ctx context.Context, demand domain.UserDemand) string {
	sess := domain.PlanningSession{
		SessionID: sessionIDPrefix + uuid.NewString(),
		Demand:    demand,
		CreatedAt: time.Now(),
	}

	o.store.PutSession(ctx, sess)
	logger.Log.Infof("创建规划会话 [%s]: %s → %s", sess.SessionID, demand.StartCity, demand.Destination)
	return sess.SessionID
}

// demand 取会话的原始需求
func (o *Orchestrator) demand(ctx context.Context, sessionID string) (domain.UserDemand, bool) {
	sess, ok := o.store.GetSession(ctx, sessionID)
	if !ok {
		return domain.UserDemand{}, false
	}
	return sess.Demand, true
}

// Invalidate 作废一个会话（切换会话或视图销毁时调用）：
// 在途的 poll/modify 响应返回后不再写入共享状态。
// 没有在途操作时为空操作，不新增记录——没有可丢弃的东西。
func (o *Orchestrator) Invalidate(sessionID string) {
	o.mu.Lock()
	if st, ok := o.gens[sessionID]; ok {
		st.gen++
	}
	o.mu.Unlock()
}

// acquire 登记一次在途后端调用并返回进入时的代数
func (o *Orchestrator) acquire(sessionID string) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.gens[sessionID]
	if !ok {
		st = &genState{gen: 1}
		o.gens[sessionID] = st
	}
	st.inflight++
	return st.gen
}

// currentGen 读取当前代数。只在 acquire 与 finish 之间调用，记录必然存在。
func (o *Orchestrator) currentGen(sessionID string) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.gens[sessionID]; ok {
		return st.gen
	}
	return 0
}

// finish 注销一次在途调用；最后一个在途操作结束时删除记录
func (o *Orchestrator) finish(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.gens[sessionID]
	if !ok {
		return
	}
	st.inflight--
	if st.inflight <= 0 {
		delete(o.gens, sessionID)
	}
}

// Poll 对会话做一次取结果尝试。
// 完成后的重复轮询直接命中缓存，稳定返回同一份计划。
func (o *Orchestrator) Poll(ctx context.Context, sessionID string) PollOutcome {
	if plan, ok := o.store.GetPlan(ctx, sessionID); ok {
		return ready(plan)
	}

	demand, ok := o.demand(ctx, sessionID)
	if !ok {
		return failed(FailureInvalidSession, reasonInvalidSession)
	}

	gen := o.acquire(sessionID)
	defer o.finish(sessionID)

	plan, err := o.backend.Fetch(ctx, sessionID, demand)
	if err != nil {
		if errors.Is(err, planner.ErrNotReady) || isNotReady(err.Error()) {
			return pending()
		}
		if isExpired(err.Error()) {
			return failed(FailureInvalidSession, reasonInvalidSession)
		}
		return failed(FailureBackend, err.Error())
	}

	o.postProcess(ctx, plan)

	// 迟到响应：会话已被作废则丢弃，不污染共享状态
	if o.currentGen(sessionID) != gen {
		logger.Log.Warnf("丢弃过期会话的计划 [%s]", sessionID)
		return failed(FailureInvalidSession, reasonStaleSession)
	}

	o.store.PutPlan(ctx, sessionID, plan)
	o.archivePlan(ctx, sessionID, demand, plan)

	// 返回缓存中的实例，保证后续轮询拿到同一份计划
	if cached, ok := o.store.GetPlan(ctx, sessionID); ok {
		return ready(cached)
	}
	return ready(plan)
}

// Modify 基于自然语言请求生成整份替换计划。
// 前置条件：会话已有完成的计划且原始需求仍可取得。
// 解析失败时不触碰已存储的计划——旧计划在有效替换到达前始终权威。
func (o *Orchestrator) Modify(ctx context.Context, sessionID, request string) ModifyOutcome {
	current, ok := o.store.GetPlan(ctx, sessionID)
	if !ok {
		return ModifyOutcome{OK: false, Reason: reasonNoPlanToModify}
	}
	demand, ok := o.demand(ctx, sessionID)
	if !ok {
		return ModifyOutcome{OK: false, Reason: reasonInvalidSession}
	}

	gen := o.acquire(sessionID)
	defer o.finish(sessionID)

	replacement, err := o.backend.Modify(ctx, sessionID, current, demand, request)
	if err != nil {
		logger.Log.Errorf("修改计划失败 [%s]: %v", sessionID, err)
		// 解析失败用固定话术；其余后端错误原样透出
		if errors.Is(err, planner.ErrParse) {
			return ModifyOutcome{OK: false, Reason: reasonModifyParse}
		}
		return ModifyOutcome{OK: false, Reason: err.Error()}
	}
	replacement.SessionID = current.SessionID

	o.postProcess(ctx, replacement)

	if o.currentGen(sessionID) != gen {
		logger.Log.Warnf("丢弃过期会话的修改结果 [%s]", sessionID)
		return ModifyOutcome{OK: false, Reason: reasonStaleSession}
	}

	o.store.PutPlan(ctx, sessionID, replacement)
	o.archivePlan(ctx, sessionID, demand, replacement)

	if cached, ok := o.store.GetPlan(ctx, sessionID); ok {
		return ModifyOutcome{OK: true, Plan: cached}
	}
	return ModifyOutcome{OK: true, Plan: replacement}
}

// postProcess 计划后处理：坐标回填与兴趣点派生。
// 回填失败只体现为个别点位缺失，绝不影响整个计划的成败。
func (o *Orchestrator) postProcess(ctx context.Context, plan *domain.TravelPlan) {
	if o.resolver != nil {
		o.resolver.BackfillPlan(ctx, plan)
	}
	if len(plan.POIs) == 0 {
		plan.DerivePOIs(func(lng, lat float64) bool {
			return geo.IsValidCoordinate(lng, lat) && (lng != 0 || lat != 0)
		})
	}
}

func (o *Orchestrator) archivePlan(ctx context.Context, sessionID string, demand domain.UserDemand, plan *domain.TravelPlan) {
	if o.archive == nil {
		return
	}
	if err := o.archive.SavePlan(ctx, sessionID, demand, plan); err != nil {
		logger.Log.Warnf("归档计划失败 [%s]: %v", sessionID, err)
	}
}
