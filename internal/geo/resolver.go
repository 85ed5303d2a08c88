package geo

import (
	"context"
	"math"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhiyou-ai/trip_planner/internal/domain"
	"github.com/zhiyou-ai/trip_planner/internal/logger"
)

// IsValidCoordinate 坐标有效性判定：有限数且经度 [-180,180]、纬度 [-90,90]。
// 所有坐标消费点（地图标记、中心点计算、缓存写入）都以此为准。
func IsValidCoordinate(lng, lat float64) bool {
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lng >= -180 && lng <= 180 && lat >= -90 && lat <= 90
}

var (
	timeRangeRe   = regexp.MustCompile(`\d{2}:\d{2}[-\s]*\d{2}:\d{2}`)
	parentheseRe  = regexp.MustCompile(`[（(][^（）()]*[）)]`)
	dashSuffixRe  = regexp.MustCompile(`\s*[-–—]\s*.*`)
	activityVerbs = regexp.MustCompile(`\s*(参观|游览|用餐|入住|前往)\s*`)
	multiSpaceRe  = regexp.MustCompile(`\s+`)
)

// ExtractLocationName 从活动标签中提取干净的地点名：
// 去掉时间段、括号备注、破折号后缀与常见动词。清理结果为空时返回原文。
func ExtractLocationName(position string) string {
	if position == "" {
		return ""
	}

	cleaned := timeRangeRe.ReplaceAllString(position, "")
	cleaned = parentheseRe.ReplaceAllString(cleaned, "")
	cleaned = dashSuffixRe.ReplaceAllString(cleaned, "")
	cleaned = activityVerbs.ReplaceAllString(cleaned, "")
	cleaned = multiSpaceRe.ReplaceAllString(strings.TrimSpace(cleaned), " ")

	if cleaned == "" {
		return position
	}
	return cleaned
}

// Resolver 尽力而为的地址坐标解析器。
// 所有查询串行执行，相邻两次之间保持固定间隔以遵守第三方限流。
type Resolver struct {
	geocoder Geocoder
	limiter  *rate.Limiter
}

// NewResolver 创建解析器。delay 为相邻两次查询的固定间隔。
func NewResolver(geocoder Geocoder, delay time.Duration) *Resolver {
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	return &Resolver{
		geocoder: geocoder,
		limiter:  rate.NewLimiter(rate.Every(delay), 1),
	}
}

// Resolve 清理名称后做一次地理编码查询。
// 空输入、网络失败或服务端非成功状态都返回 nil；调用方必须保留原坐标，
// 不得用 nil 结果清零。
func (r *Resolver) Resolve(ctx context.Context, name string) *Result {
	cleaned := ExtractLocationName(name)
	if cleaned == "" {
		return nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil
	}

	result, err := r.geocoder.Geocode(ctx, cleaned)
	if err != nil {
		logger.Log.Warnf("地理编码失败 [%s]: %v", cleaned, err)
		return nil
	}
	return result
}

// BackfillPlan 为计划中坐标缺失的活动与兴趣点回填坐标。
// 仅处理既无 pose 又无有效原始坐标的条目；命中后同时写入原始坐标与 pose。
// 已带 pose 的条目视为权威坐标，整体跳过。逐条串行，失败条目保持原样。
func (r *Resolver) BackfillPlan(ctx context.Context, plan *domain.TravelPlan) int {
	updated := 0

	for di := range plan.DailyPlans {
		acts := plan.DailyPlans[di].Activities
		for ai := range acts {
			act := &acts[ai]
			if act.Pose != nil {
				continue
			}
			if IsValidCoordinate(act.Longitude, act.Latitude) && (act.Longitude != 0 || act.Latitude != 0) {
				continue
			}

			name := act.Position
			// 火车类活动按起点站名查询
			if act.TrainID != "" && act.Start != "" {
				name = act.Start + "火车站"
			}
			if name == "" {
				continue
			}

			result := r.Resolve(ctx, name)
			if result == nil {
				continue
			}

			act.Latitude = result.Latitude
			act.Longitude = result.Longitude
			act.Pose = &domain.Pose{Latitude: result.Latitude, Longitude: result.Longitude}
			updated++
			logger.Log.Debugf("回填活动坐标: %s -> (%f, %f)", name, result.Longitude, result.Latitude)
		}
	}

	for pi := range plan.POIs {
		poi := &plan.POIs[pi]
		if poi.Pose != nil {
			continue
		}
		if IsValidCoordinate(poi.Longitude, poi.Latitude) && (poi.Longitude != 0 || poi.Latitude != 0) {
			continue
		}
		if poi.Name == "" {
			continue
		}

		result := r.Resolve(ctx, poi.Name)
		if result == nil {
			continue
		}

		poi.Latitude = result.Latitude
		poi.Longitude = result.Longitude
		poi.Pose = &domain.Pose{Latitude: result.Latitude, Longitude: result.Longitude}
		updated++
	}

	return updated
}
