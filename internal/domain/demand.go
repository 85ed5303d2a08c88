package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// UserDemand 用户提交的出行需求。提交后不可变。
type UserDemand struct {
	StartCity   string `json:"startCity"`   // 出发城市
	Destination string `json:"destination"` // 目的地城市
	Duration    string `json:"duration"`    // 旅行天数，自由文本，如 "7天"
	People      string `json:"people"`      // 人数，自由文本，如 "2人"
	Budget      string `json:"budget"`      // 预算，自由文本或区间，如 "3000-8000"
	RawInput    string `json:"rawInput"`    // 额外需求描述
}

// PlanningSession 一次规划会话的不可变记录
type PlanningSession struct {
	SessionID string     `json:"sessionId"`
	Demand    UserDemand `json:"demand"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NormalizedDemand 从自由文本需求解析出的结构化字段。
// 解析失败的字段回退为默认值（天数/人数 1，预算 0）。
type NormalizedDemand struct {
	DurationDays int
	People       int
	BudgetMin    float64
	BudgetMax    float64
}

var (
	leadingIntRe   = regexp.MustCompile(`\d+`)
	leadingFloatRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// Normalize 将自由文本需求归一化为结构化值。
// 已覆盖的输入形态：
//   - "7天" / "7 天" / "7" → 7 天
//   - "2人" / "两人"（非数字）→ 2 人 / 1 人
//   - "3000-8000" → 区间 [3000, 8000]
//   - "2000 USD" / "约5000元" → [5000, 5000]
//   - 空串 → 默认值
func (d UserDemand) Normalize() NormalizedDemand {
	n := NormalizedDemand{DurationDays: 1, People: 1}

	if m := leadingIntRe.FindString(d.Duration); m != "" {
		if v, err := strconv.Atoi(m); err == nil && v >= 1 {
			n.DurationDays = v
		}
	}
	if m := leadingIntRe.FindString(d.People); m != "" {
		if v, err := strconv.Atoi(m); err == nil && v >= 1 {
			n.People = v
		}
	}

	budget := strings.TrimSpace(d.Budget)
	if budget == "" {
		return n
	}
	// 区间形式 "3000-8000"。非区间取首个数字，上下界相同。
	if lo, hi, ok := strings.Cut(budget, "-"); ok {
		loV := firstFloat(lo)
		hiV := firstFloat(hi)
		if loV > 0 && hiV >= loV {
			n.BudgetMin, n.BudgetMax = loV, hiV
			return n
		}
	}
	if v := firstFloat(budget); v > 0 {
		n.BudgetMin, n.BudgetMax = v, v
	}
	return n
}

func firstFloat(s string) float64 {
	m := leadingFloatRe.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}
