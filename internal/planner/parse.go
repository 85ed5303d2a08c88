package planner

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/zhiyou-ai/trip_planner/internal/domain"
)

// totalCostExprRe 匹配 "totalEstimatedCost": 580 + 800 + 280 这类模型偶发输出的算式
var totalCostExprRe = regexp.MustCompile(`"totalEstimatedCost"\s*:\s*([\d\s.+]+)\s*([,}])`)

// stripFences 去掉模型输出外层的 markdown 代码块标记
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// evalCostExpressions 把总价字段里的加法算式预先求值成单个数字，
// 否则 JSON 解析会直接失败。仅处理纯数字加法。
func evalCostExpressions(jsonStr string) string {
	return totalCostExprRe.ReplaceAllStringFunc(jsonStr, func(match string) string {
		groups := totalCostExprRe.FindStringSubmatch(match)
		expr := strings.TrimSpace(groups[1])
		trailing := groups[2]

		parts := strings.Split(expr, "+")
		var sum float64
		for _, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return match
			}
			sum += v
		}
		return fmt.Sprintf(`"totalEstimatedCost": %s%s`, strconv.FormatFloat(sum, 'f', -1, 64), trailing)
	})
}

// ParsePlanResponse 把模型返回的文本解析为完整的 TravelPlan 并补齐缺省字段。
// 解析失败返回错误，不产出半成品计划。
func ParsePlanResponse(responseText string, demand domain.UserDemand, sessionID string) (*domain.TravelPlan, error) {
	jsonStr := evalCostExpressions(stripFences(responseText))

	var plan domain.TravelPlan
	if err := json.Unmarshal([]byte(jsonStr), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	normalized := demand.Normalize()
	plan.SessionID = sessionID
	if plan.Title == "" {
		plan.Title = demand.Destination + "之旅"
	}
	if plan.StartCity == "" {
		plan.StartCity = demand.StartCity
	}
	if plan.Destination == "" {
		plan.Destination = demand.Destination
	}
	if plan.DurationDays <= 0 {
		plan.DurationDays = normalized.DurationDays
	}
	if plan.NumberOfPeople <= 0 {
		plan.NumberOfPeople = normalized.People
	}
	if plan.Budget <= 0 {
		plan.Budget = normalized.BudgetMax
	}
	if plan.Currency == "" {
		plan.Currency = "CNY"
	}

	for di := range plan.DailyPlans {
		dp := &plan.DailyPlans[di]
		if dp.Day <= 0 {
			dp.Day = di + 1
		}
		for ai := range dp.Activities {
			act := &dp.Activities[ai]
			if act.ID == "" {
				act.ID = uuid.NewString()
			}
			if act.Position == "" {
				act.Position = "未知活动"
			}
			if act.Type == "" {
				act.Type = domain.ActivityOther
			}
			if act.TrainID != "" {
				act.Type = domain.ActivityTrain
			}
			if act.StartTime == "" {
				act.StartTime = "09:00"
			}
			if act.EndTime == "" {
				act.EndTime = "10:00"
			}
			if act.Picture == "" {
				act.Picture = pictureURL(act.Position, dp.Day, ai)
			}
			// 多段交通费用计入所属活动
			for _, tr := range act.Transports {
				act.Cost += tr.Cost
			}
		}
		if dp.DailyCost <= 0 {
			var cost float64
			for _, act := range dp.Activities {
				cost += act.Cost
			}
			dp.DailyCost = cost
		}
	}

	for pi := range plan.POIs {
		if plan.POIs[pi].Name == "" {
			plan.POIs[pi].Name = "未知兴趣点"
		}
	}

	// 城际交通缺起点时补出发城市
	if plan.TransportOutbound != nil && plan.TransportOutbound.Start == "" && demand.StartCity != "" {
		plan.TransportOutbound.Start = demand.StartCity
	}

	if plan.TotalEstimatedCost <= 0 {
		plan.RecomputeTotalCost()
	}

	return &plan, nil
}

func pictureURL(position string, day, index int) string {
	seed := url.QueryEscape(position)
	return fmt.Sprintf("https://picsum.photos/seed/%s%d%d/300/200", seed, day, index)
}
