package domain

// Pose 已确认的坐标。一旦写入即视为权威坐标，后续回填不得覆盖。
type Pose struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// POIDetail 计划中的兴趣点
type POIDetail struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Pose      *Pose   `json:"pose,omitempty"`
}

// TransportDetail 一段交通信息
type TransportDetail struct {
	Mode      string  `json:"mode"` // flight / train / car / subway / walk / metro
	Start     string  `json:"start,omitempty"`
	End       string  `json:"end,omitempty"`
	Duration  string  `json:"duration,omitempty"` // e.g. "2h 30m"
	Cost      float64 `json:"cost,omitempty"`
	Distance  float64 `json:"distance,omitempty"` // 公里
	StartTime string  `json:"start_time,omitempty"`
	EndTime   string  `json:"end_time,omitempty"`
	Details   string  `json:"details,omitempty"` // e.g. "G123次列车"
	Tickets   int     `json:"tickets,omitempty"`
}

// FoodInfo 餐饮信息
type FoodInfo struct {
	Name          string  `json:"name"`
	Type          string  `json:"type,omitempty"`
	EstimatedCost float64 `json:"estimatedCost,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// AccommodationInfo 住宿信息
type AccommodationInfo struct {
	Name string  `json:"name"`
	Type string  `json:"type,omitempty"`
	Cost float64 `json:"cost,omitempty"`
}

// Activity 类型标签
const (
	ActivityAttraction    = "attraction"
	ActivityDining        = "dining"
	ActivityAccommodation = "accommodation"
	ActivityTravel        = "travel"
	ActivityTrain         = "train"
	ActivityOther         = "other"
)

// Activity 行程中的单个条目
type Activity struct {
	ID        string  `json:"id,omitempty"`
	Position  string  `json:"position"` // 地点名称，如 "西湖"
	Type      string  `json:"type"`
	StartTime string  `json:"startTime,omitempty"` // e.g. "09:00"
	EndTime   string  `json:"endTime,omitempty"`
	Cost      float64 `json:"cost,omitempty"`
	Picture   string  `json:"pictureUrl,omitempty"`
	Notes     string  `json:"notes,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Pose      *Pose   `json:"pose,omitempty"`

	// 火车类活动
	TrainID string `json:"TrainID,omitempty"`
	Start   string `json:"start,omitempty"` // 起点站
	End     string `json:"end,omitempty"`   // 终点站
	Tickets int    `json:"tickets,omitempty"`

	Transports    []TransportDetail  `json:"transports,omitempty"` // 多段通勤
	TransportTo   *TransportDetail   `json:"transportTo,omitempty"`
	FoodInfo      *FoodInfo          `json:"foodInfo,omitempty"`
	Accommodation *AccommodationInfo `json:"accommodationInfo,omitempty"`
}

// DailyPlan 单日行程。day 从 1 开始。
type DailyPlan struct {
	Day        int        `json:"day"`
	Date       string     `json:"date,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	Activities []Activity `json:"activities"`
	DailyCost  float64    `json:"dailyCost,omitempty"`
}

// TravelPlan 完整的行程规划结果
type TravelPlan struct {
	SessionID          string           `json:"taskId"`
	Title              string           `json:"title,omitempty"`
	StartCity          string           `json:"startCity,omitempty"`
	Destination        string           `json:"destination"`
	DurationDays       int              `json:"durationDays"`
	NumberOfPeople     int              `json:"numberOfPeople"`
	Budget             float64          `json:"budget,omitempty"`
	Currency           string           `json:"currency,omitempty"`
	DailyPlans         []DailyPlan      `json:"dailyPlans"`
	POIs               []POIDetail      `json:"pois,omitempty"`
	TotalEstimatedCost float64          `json:"totalEstimatedCost,omitempty"`
	Notes              string           `json:"notes,omitempty"`
	TransportOutbound  *TransportDetail `json:"intercityTransportStart,omitempty"`
	TransportReturn    *TransportDetail `json:"intercityTransportEnd,omitempty"`
}

// RecomputeTotalCost 在后端未给出总价时按每日花费与城际交通汇总。
func (p *TravelPlan) RecomputeTotalCost() {
	var total float64
	for _, dp := range p.DailyPlans {
		total += dp.DailyCost
	}
	if p.TransportOutbound != nil {
		total += p.TransportOutbound.Cost
	}
	if p.TransportReturn != nil {
		total += p.TransportReturn.Cost
	}
	p.TotalEstimatedCost = total
}

// DerivePOIs 从每日行程中收集坐标有效的景点类活动作为兴趣点列表。
// valid 由调用方提供坐标有效性判定，避免 domain 包反向依赖 geo 包。
func (p *TravelPlan) DerivePOIs(valid func(lng, lat float64) bool) {
	var pois []POIDetail
	for _, dp := range p.DailyPlans {
		for _, act := range dp.Activities {
			if act.Type != ActivityAttraction {
				continue
			}
			if !valid(act.Longitude, act.Latitude) {
				continue
			}
			poi := POIDetail{
				Name:      act.Position,
				Latitude:  act.Latitude,
				Longitude: act.Longitude,
			}
			if act.Pose != nil {
				pose := *act.Pose
				poi.Pose = &pose
			}
			pois = append(pois, poi)
		}
	}
	p.POIs = pois
}
