package planner

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/zhiyou-ai/trip_planner/internal/domain"
)

// MockBackend 未配置 LLM 时的本地确定性降级生成器。
// 每个会话首次 Fetch 返回 ErrNotReady，之后返回固定结构的计划，
// 保持与真实后端一致的 Pending → Ready 观测序列。
type MockBackend struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewMockBackend 创建降级生成器
func NewMockBackend() *MockBackend {
	return &MockBackend{seen: make(map[string]bool)}
}

var _ Backend = (*MockBackend)(nil)

// Fetch 实现 Backend
func (b *MockBackend) Fetch(_ context.Context, sessionID string, demand domain.UserDemand) (*domain.TravelPlan, error) {
	b.mu.Lock()
	first := !b.seen[sessionID]
	b.seen[sessionID] = true
	b.mu.Unlock()

	if first {
		return nil, ErrNotReady
	}
	return generateMockPlan(demand, sessionID), nil
}

// Modify 实现 Backend。对当前计划做最小改动并返回副本。
func (b *MockBackend) Modify(_ context.Context, _ string, current *domain.TravelPlan, _ domain.UserDemand, request string) (*domain.TravelPlan, error) {
	modified := *current
	modified.DailyPlans = make([]domain.DailyPlan, len(current.DailyPlans))
	copy(modified.DailyPlans, current.DailyPlans)

	if len(modified.DailyPlans) > 0 && len(modified.DailyPlans[0].Activities) > 0 {
		acts := make([]domain.Activity, len(modified.DailyPlans[0].Activities))
		copy(acts, modified.DailyPlans[0].Activities)
		acts[0].Notes = fmt.Sprintf("已修改：%s。%s", request, acts[0].Notes)
		modified.DailyPlans[0].Activities = acts
		modified.Title = modified.Title + "（已修改）"
	}
	return &modified, nil
}

func generateMockPlan(demand domain.UserDemand, sessionID string) *domain.TravelPlan {
	normalized := demand.Normalize()

	dailyPlans := make([]domain.DailyPlan, 0, normalized.DurationDays)
	for i := 1; i <= normalized.DurationDays; i++ {
		dailyPlans = append(dailyPlans, domain.DailyPlan{
			Day:     i,
			Summary: fmt.Sprintf("第 %d 天从 %s 出发前往 %s。重点：常规观光。", i, demand.StartCity, demand.Destination),
			Activities: []domain.Activity{
				{ID: uuid.NewString(), Position: fmt.Sprintf("上午活动 %d", i), Type: domain.ActivityAttraction,
					StartTime: "09:00", EndTime: "12:00", Cost: 20,
					Picture: pictureURL("morning", i, 0), Notes: "享受早晨时光。"},
				{ID: uuid.NewString(), Position: fmt.Sprintf("午餐地点 %d", i), Type: domain.ActivityDining,
					StartTime: "12:30", EndTime: "13:30", Cost: 25,
					FoodInfo: &domain.FoodInfo{Name: fmt.Sprintf("当地餐馆 %d", i)},
					Picture:  pictureURL("lunch", i, 1)},
				{ID: uuid.NewString(), Position: fmt.Sprintf("下午活动 %d", i), Type: domain.ActivityAttraction,
					StartTime: "14:00", EndTime: "17:00", Cost: 30,
					Picture: pictureURL("afternoon", i, 2)},
			},
			DailyCost: 75,
		})
	}

	return &domain.TravelPlan{
		SessionID:          sessionID,
		Title:              fmt.Sprintf("模拟从%s到%s的旅程", demand.StartCity, demand.Destination),
		StartCity:          demand.StartCity,
		Destination:        demand.Destination,
		DurationDays:       normalized.DurationDays,
		NumberOfPeople:     normalized.People,
		Budget:             normalized.BudgetMax,
		Currency:           "CNY",
		DailyPlans:         dailyPlans,
		TotalEstimatedCost: 75 * float64(normalized.DurationDays),
		POIs:               []domain.POIDetail{{Name: demand.Destination + " 中心点"}},
		TransportOutbound: &domain.TransportDetail{
			Mode:     "train",
			Start:    demand.StartCity,
			End:      demand.Destination,
			Duration: "3小时",
			Cost:     50,
			Details:  "G123次列车",
		},
	}
}
