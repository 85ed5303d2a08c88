package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		demand UserDemand
		want   NormalizedDemand
	}{
		{
			name:   "典型中文输入",
			demand: UserDemand{Duration: "7天", People: "2人", Budget: "3000-8000"},
			want:   NormalizedDemand{DurationDays: 7, People: 2, BudgetMin: 3000, BudgetMax: 8000},
		},
		{
			name:   "单值预算带货币后缀",
			demand: UserDemand{Duration: "3 天", People: "4", Budget: "2000 USD"},
			want:   NormalizedDemand{DurationDays: 3, People: 4, BudgetMin: 2000, BudgetMax: 2000},
		},
		{
			name:   "全部为空",
			demand: UserDemand{},
			want:   NormalizedDemand{DurationDays: 1, People: 1},
		},
		{
			name:   "非数字人数回退",
			demand: UserDemand{Duration: "两周", People: "两人", Budget: "随意"},
			want:   NormalizedDemand{DurationDays: 1, People: 1},
		},
		{
			name:   "倒置区间取首数字",
			demand: UserDemand{Duration: "2天", People: "1人", Budget: "8000-3000"},
			want:   NormalizedDemand{DurationDays: 2, People: 1, BudgetMin: 8000, BudgetMax: 8000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.demand.Normalize())
		})
	}
}

func TestRecomputeTotalCost(t *testing.T) {
	plan := TravelPlan{
		DailyPlans: []DailyPlan{
			{Day: 1, DailyCost: 580},
			{Day: 2, DailyCost: 800},
		},
		TransportOutbound: &TransportDetail{Mode: "train", Cost: 73},
		TransportReturn:   &TransportDetail{Mode: "train", Cost: 73},
	}
	plan.RecomputeTotalCost()
	assert.Equal(t, 1526.0, plan.TotalEstimatedCost)
}

func TestDerivePOIs(t *testing.T) {
	valid := func(lng, lat float64) bool { return lng != 0 || lat != 0 }
	plan := TravelPlan{
		DailyPlans: []DailyPlan{
			{Day: 1, Activities: []Activity{
				{Position: "西湖", Type: ActivityAttraction, Longitude: 120.15, Latitude: 30.25,
					Pose: &Pose{Latitude: 30.25, Longitude: 120.15}},
				{Position: "楼外楼", Type: ActivityDining, Longitude: 120.14, Latitude: 30.25},
				{Position: "未知地点", Type: ActivityAttraction}, // 无效坐标，应被排除
			}},
		},
	}
	plan.DerivePOIs(valid)

	if assert.Len(t, plan.POIs, 1) {
		assert.Equal(t, "西湖", plan.POIs[0].Name)
		assert.NotNil(t, plan.POIs[0].Pose)
	}
}
