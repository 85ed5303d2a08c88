package planner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/zhiyou-ai/trip_planner/internal/conf"
	"github.com/zhiyou-ai/trip_planner/internal/domain"
	"github.com/zhiyou-ai/trip_planner/internal/logger"
)

const planJSONStructure = `{
	"title": "行程标题",
	"startCity": "出发城市",
	"destination": "目的地城市",
	"durationDays": 3,
	"numberOfPeople": 2,
	"budget": 5000,
	"currency": "CNY",
	"intercityTransportStart": {"mode": "train", "start": "出发城市", "end": "目的地城市", "cost": 73, "details": "G123次列车"},
	"dailyPlans": [
		{
			"day": 1,
			"summary": "当日概要",
			"dailyCost": 580,
			"activities": [
				{"position": "地点名称", "type": "attraction|dining|accommodation|travel|train|other", "startTime": "09:00", "endTime": "11:00", "cost": 80, "notes": "说明"}
			]
		}
	],
	"intercityTransportEnd": {"mode": "train", "start": "目的地城市", "end": "出发城市", "cost": 73},
	"pois": [{"name": "兴趣点名称", "latitude": 0, "longitude": 0}],
	"totalEstimatedCost": 1500,
	"notes": "给用户的整体提示（可选）"
}`

// generation 一次进行中或已完成的生成任务
type generation struct {
	done chan struct{}
	plan *domain.TravelPlan
	err  error
}

// LLMBackend 基于大模型的规划后端。
// 首次 Fetch 启动后台生成并返回 ErrNotReady，之后的 Fetch 轮询完成状态。
type LLMBackend struct {
	chatModel model.BaseChatModel
	limiter   *rate.Limiter

	mu      sync.Mutex
	pending map[string]*generation
}

// NewLLMBackend 创建 LLM 后端
func NewLLMBackend(cfg *conf.Planner) (*LLMBackend, error) {
	ctx := context.Background()

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}

	rpm := cfg.RPM
	if rpm <= 0 {
		rpm = 60
	}
	burst := cfg.QPS
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)

	return newLLMBackend(chatModel, limiter), nil
}

// newLLMBackend 注入模型实例，测试用
func newLLMBackend(cm model.BaseChatModel, limiter *rate.Limiter) *LLMBackend {
	return &LLMBackend{
		chatModel: cm,
		limiter:   limiter,
		pending:   make(map[string]*generation),
	}
}

var _ Backend = (*LLMBackend)(nil)

// Fetch 实现 Backend。生成在后台进行，本方法不阻塞等待。
func (b *LLMBackend) Fetch(ctx context.Context, sessionID string, demand domain.UserDemand) (*domain.TravelPlan, error) {
	b.mu.Lock()
	g, ok := b.pending[sessionID]
	if !ok {
		g = &generation{done: make(chan struct{})}
		b.pending[sessionID] = g
		// 生成任务与本次轮询请求解耦：轮询方超时放弃不中断生成
		go b.run(sessionID, demand, g)
	}
	b.mu.Unlock()

	select {
	case <-g.done:
	default:
		return nil, ErrNotReady
	}

	b.mu.Lock()
	delete(b.pending, sessionID)
	b.mu.Unlock()

	return g.plan, g.err
}

func (b *LLMBackend) run(sessionID string, demand domain.UserDemand, g *generation) {
	defer close(g.done)

	plan, err := b.generate(context.Background(), sessionID, demand)
	if err != nil {
		logger.Log.Errorf("生成行程失败 [%s]: %v", sessionID, err)
		g.err = err
		return
	}
	g.plan = plan
}

func (b *LLMBackend) generate(ctx context.Context, sessionID string, demand domain.UserDemand) (*domain.TravelPlan, error) {
	normalized := demand.Normalize()

	var sb strings.Builder
	sb.WriteString("你是一个资深旅行规划师。请根据以下出行需求生成一份逐日行程：\n\n")
	fmt.Fprintf(&sb, "出发城市：%s\n", demand.StartCity)
	fmt.Fprintf(&sb, "目的地：%s\n", demand.Destination)
	fmt.Fprintf(&sb, "天数：%d 天\n", normalized.DurationDays)
	fmt.Fprintf(&sb, "人数：%d 人\n", normalized.People)
	if normalized.BudgetMax > 0 {
		fmt.Fprintf(&sb, "预算：%.0f - %.0f 元\n", normalized.BudgetMin, normalized.BudgetMax)
	}
	if demand.RawInput != "" {
		fmt.Fprintf(&sb, "额外需求：%s\n", demand.RawInput)
	}
	sb.WriteString("\n请务必严格按照以下 JSON 结构返回，不要包含任何 markdown 标记：\n")
	sb.WriteString(planJSONStructure)
	sb.WriteString("\ntotalEstimatedCost 必须是单个数字。所有字段请给出合理取值。")

	return b.chatJSON(ctx, sb.String(), demand, sessionID)
}

// Modify 实现 Backend。同步调用模型生成一份完整替换计划。
func (b *LLMBackend) Modify(ctx context.Context, sessionID string, current *domain.TravelPlan, demand domain.UserDemand, request string) (*domain.TravelPlan, error) {
	var sb strings.Builder
	sb.WriteString("你是一个资深旅行规划师。用户已有一份行程，希望按新要求调整。\n\n")
	fmt.Fprintf(&sb, "原始需求：从 %s 到 %s，%s，%s，预算 %s\n",
		demand.StartCity, demand.Destination, demand.Duration, demand.People, orUnspecified(demand.Budget))
	if demand.RawInput != "" {
		fmt.Fprintf(&sb, "原始补充说明：%s\n", demand.RawInput)
	}

	fmt.Fprintf(&sb, "\n当前行程概要（%s → %s，%d 天）：\n",
		current.StartCity, current.Destination, current.DurationDays)
	for _, dp := range current.DailyPlans {
		names := make([]string, 0, len(dp.Activities))
		for _, act := range dp.Activities {
			names = append(names, act.Position)
		}
		fmt.Fprintf(&sb, "第 %d 天：%s\n", dp.Day, strings.Join(names, "、"))
	}

	fmt.Fprintf(&sb, "\n用户的修改要求：%s\n", request)
	sb.WriteString("\n请输出调整后的完整行程（不是差异），严格按照以下 JSON 结构，不要包含任何 markdown 标记：\n")
	sb.WriteString(planJSONStructure)
	sb.WriteString("\n若修改很小则只调整相关部分，若修改很大则在保持原行程风格的前提下重排。totalEstimatedCost 必须是单个数字。")

	plan, err := b.chatJSON(ctx, sb.String(), demand, sessionID)
	if err != nil {
		return nil, err
	}
	plan.SessionID = current.SessionID
	return plan, nil
}

// chatJSON 调用模型并把输出解析为 TravelPlan。429 指数退避，解析失败重试。
func (b *LLMBackend) chatJSON(ctx context.Context, prompt string, demand domain.UserDemand, sessionID string) (*domain.TravelPlan, error) {
	maxRetries := 3
	baseDelay := 2 * time.Second
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		messages := []*schema.Message{
			{Role: schema.System, Content: "你是一个 JSON 生成器。请只输出 JSON 字符串。"},
			{Role: schema.User, Content: prompt},
		}

		resp, err := b.chatModel.Generate(ctx, messages)
		if err != nil {
			if strings.Contains(err.Error(), "429") || strings.Contains(strings.ToLower(err.Error()), "too many requests") {
				lastErr = err
				if i < maxRetries {
					time.Sleep(baseDelay * time.Duration(1<<i))
					continue
				}
			}
			return nil, err
		}

		plan, err := ParsePlanResponse(resp.Content, demand, sessionID)
		if err != nil {
			lastErr = err
			if i < maxRetries {
				continue
			}
			return nil, err
		}
		return plan, nil
	}
	return nil, lastErr
}

func orUnspecified(s string) string {
	if s == "" {
		return "未指定"
	}
	return s
}
