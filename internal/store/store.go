// Package store 保存规划会话的需求与已完成计划。
// 内存为主，redis 作为持久镜像：写入尽力而为，读取缺失时从 redis 恢复，
// 用于进程重启后的会话恢复。所有条目带 TTL，到期后对读取方不可见。
package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhiyou-ai/trip_planner/internal/domain"
	"github.com/zhiyou-ai/trip_planner/internal/logger"
)

const (
	requestKeyPrefix = "planning:request:"
	planKeyPrefix    = "planning:plan:"
)

type sessionEntry struct {
	sess      domain.PlanningSession
	expiresAt time.Time
}

type planEntry struct {
	plan      *domain.TravelPlan
	expiresAt time.Time
}

// SessionStore 会话存储：sessionID → 需求 / 已完成计划。
// rdb 为 nil 时退化为纯内存模式（测试与无 redis 部署）。
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]sessionEntry
	plans    map[string]planEntry

	rdb *redis.Client
	ttl time.Duration
}

// NewSessionStore 创建会话存储。ttl 必须为正。
func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{
		sessions: make(map[string]sessionEntry),
		plans:    make(map[string]planEntry),
		rdb:      rdb,
		ttl:      ttl,
	}
}

// Load 启动时把 redis 中尚存的条目合并进内存。redis 不可用时记录后继续。
func (s *SessionStore) Load(ctx context.Context) {
	if s.rdb == nil {
		return
	}

	loaded := 0
	iter := s.rdb.Scan(ctx, 0, requestKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.rdb.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var sess domain.PlanningSession
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			logger.Log.Warnf("跳过无法解析的会话条目 [%s]: %v", key, err)
			continue
		}
		// 保存时长以创建时刻为基准，重启后的会话保持原有到期时间
		deadline := s.deadline(sess.CreatedAt)
		if !time.Now().Before(deadline) {
			continue
		}
		id := strings.TrimPrefix(key, requestKeyPrefix)
		s.mu.Lock()
		s.sessions[id] = sessionEntry{sess: sess, expiresAt: deadline}
		s.mu.Unlock()
		loaded++
	}
	if err := iter.Err(); err != nil {
		logger.Log.Warnf("恢复会话条目失败: %v", err)
	}

	iter = s.rdb.Scan(ctx, 0, planKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.rdb.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var plan domain.TravelPlan
		if err := json.Unmarshal([]byte(raw), &plan); err != nil {
			logger.Log.Warnf("跳过无法解析的计划条目 [%s]: %v", key, err)
			continue
		}
		id := strings.TrimPrefix(key, planKeyPrefix)
		s.mu.Lock()
		s.plans[id] = planEntry{plan: &plan, expiresAt: time.Now().Add(s.ttl)}
		s.mu.Unlock()
		loaded++
	}
	if err := iter.Err(); err != nil {
		logger.Log.Warnf("恢复计划条目失败: %v", err)
	}

	if loaded > 0 {
		logger.Log.Infof("从 redis 恢复了 %d 条会话数据", loaded)
	}
}

// deadline 计算会话的过期时刻。创建时刻缺失（历史数据）时从当下起算。
func (s *SessionStore) deadline(createdAt time.Time) time.Time {
	if createdAt.IsZero() {
		return time.Now().Add(s.ttl)
	}
	return createdAt.Add(s.ttl)
}

// PutSession 写入会话记录。内存同步更新；redis 写入失败仅记录日志。
func (s *SessionStore) PutSession(ctx context.Context, sess domain.PlanningSession) {
	s.mu.Lock()
	s.sessions[sess.SessionID] = sessionEntry{sess: sess, expiresAt: s.deadline(sess.CreatedAt)}
	s.mu.Unlock()

	s.mirror(ctx, requestKeyPrefix+sess.SessionID, sess)
}

// GetSession 读取会话。内存未命中或已过期时尝试从 redis 恢复（页面重载恢复路径）。
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (domain.PlanningSession, bool) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if ok && time.Now().Before(e.expiresAt) {
		return e.sess, true
	}
	if ok {
		// 惰性清理过期条目
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
	}

	if s.rdb == nil {
		return domain.PlanningSession{}, false
	}
	raw, err := s.rdb.Get(ctx, requestKeyPrefix+sessionID).Result()
	if err != nil {
		return domain.PlanningSession{}, false
	}
	var sess domain.PlanningSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return domain.PlanningSession{}, false
	}
	deadline := s.deadline(sess.CreatedAt)
	if !time.Now().Before(deadline) {
		return domain.PlanningSession{}, false
	}

	s.mu.Lock()
	s.sessions[sessionID] = sessionEntry{sess: sess, expiresAt: deadline}
	s.mu.Unlock()
	return sess, true
}

// PutPlan 写入计划。存储深拷贝，避免调用方后续修改影响缓存内容。
func (s *SessionStore) PutPlan(ctx context.Context, sessionID string, plan *domain.TravelPlan) {
	stored := clonePlan(plan)

	s.mu.Lock()
	s.plans[sessionID] = planEntry{plan: stored, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	s.mirror(ctx, planKeyPrefix+sessionID, stored)
}

// GetPlan 读取计划，语义同 GetSession。
func (s *SessionStore) GetPlan(ctx context.Context, sessionID string) (*domain.TravelPlan, bool) {
	s.mu.RLock()
	e, ok := s.plans[sessionID]
	s.mu.RUnlock()

	if ok && time.Now().Before(e.expiresAt) {
		return e.plan, true
	}
	if ok {
		s.mu.Lock()
		delete(s.plans, sessionID)
		s.mu.Unlock()
	}

	if s.rdb == nil {
		return nil, false
	}
	raw, err := s.rdb.Get(ctx, planKeyPrefix+sessionID).Result()
	if err != nil {
		return nil, false
	}
	var plan domain.TravelPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, false
	}

	s.mu.Lock()
	s.plans[sessionID] = planEntry{plan: &plan, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return &plan, true
}

// mirror 把条目序列化后写入 redis，带 TTL。失败记录后吞掉：持久化只是尽力而为。
func (s *SessionStore) mirror(ctx context.Context, key string, value any) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		logger.Log.Warnf("序列化失败 [%s]: %v", key, err)
		return
	}
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		logger.Log.Warnf("redis 写入失败 [%s]: %v", key, err)
	}
}

func clonePlan(plan *domain.TravelPlan) *domain.TravelPlan {
	data, err := json.Marshal(plan)
	if err != nil {
		// TravelPlan 全部为可序列化的基础字段，不会走到这里
		cp := *plan
		return &cp
	}
	var cp domain.TravelPlan
	if err := json.Unmarshal(data, &cp); err != nil {
		c := *plan
		return &c
	}
	return &cp
}
