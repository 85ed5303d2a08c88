package geo

import "github.com/zhiyou-ai/trip_planner/internal/domain"

// 默认地图中心点（北京）
const (
	DefaultCenterLongitude = 116.397428
	DefaultCenterLatitude  = 39.90923
)

// Marker 地图渲染边界消费的标记点。凡进入此结构的坐标均已通过有效性校验。
type Marker struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
}

// Center 地图中心点
type Center struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// BuildMarkers 从计划中收集可渲染的标记点。
// 坐标无效或从未解析成功（仍为零值）的条目被排除，而不是带着坏坐标传给地图。
func BuildMarkers(plan *domain.TravelPlan) []Marker {
	if plan == nil {
		return nil
	}

	var markers []Marker
	for _, dp := range plan.DailyPlans {
		for _, act := range dp.Activities {
			lng, lat := act.Longitude, act.Latitude
			if act.Pose != nil {
				lng, lat = act.Pose.Longitude, act.Pose.Latitude
			}
			if !IsValidCoordinate(lng, lat) || (lng == 0 && lat == 0) {
				continue
			}
			markers = append(markers, Marker{
				Longitude: lng,
				Latitude:  lat,
				Name:      act.Position,
				Category:  act.Type,
			})
		}
	}
	return markers
}

// MapCenter 以标记点均值作为中心；无标记时回退到默认中心。
func MapCenter(markers []Marker) Center {
	if len(markers) == 0 {
		return Center{Longitude: DefaultCenterLongitude, Latitude: DefaultCenterLatitude}
	}

	var sumLng, sumLat float64
	for _, m := range markers {
		sumLng += m.Longitude
		sumLat += m.Latitude
	}
	n := float64(len(markers))
	return Center{Longitude: sumLng / n, Latitude: sumLat / n}
}
