package session

import (
	"context"
	"time"
)

const (
	reasonTimeout = "轮询超时，请重新发起规划。"
)

// Handler 接收每次轮询的结果，终态结果恰好送达一次
type Handler func(PollOutcome)

// Poller 固定间隔、带次数上限的轮询驱动器。
// 同一会话内严格串行：下一次轮询在上一次完成后才计时。
type Poller struct {
	orch        *Orchestrator
	interval    time.Duration
	maxAttempts int
}

// NewPoller 创建轮询器
func NewPoller(orch *Orchestrator, interval time.Duration, maxAttempts int) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 30
	}
	return &Poller{orch: orch, interval: interval, maxAttempts: maxAttempts}
}

// Task 一次进行中的轮询任务句柄。
// 视图销毁路径必须调用 Cancel，否则定时器会在消费方消失后继续触发。
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel 立即停止轮询。幂等。
func (t *Task) Cancel() {
	t.cancel()
}

// Done 轮询结束（终态送达或被取消）时关闭
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Start 启动对一个会话的轮询，结果经 handler 送出。
// 在 interval × maxAttempts 时间内必有终态：就绪、失败或超时。
// 取消后不再送出任何结果。
func (p *Poller) Start(ctx context.Context, sessionID string, handler Handler) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(task.done)

		timer := time.NewTimer(p.interval)
		defer timer.Stop()

		for attempt := 1; attempt <= p.maxAttempts; attempt++ {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			outcome := p.orch.Poll(ctx, sessionID)

			if ctx.Err() != nil {
				// 取消与响应竞争时丢弃迟到结果
				return
			}

			if outcome.Status != StatusPending {
				handler(outcome)
				return
			}

			if attempt == p.maxAttempts {
				handler(failed(FailureTimeout, reasonTimeout))
				return
			}

			handler(outcome)
			timer.Reset(p.interval)
		}
	}()

	return task
}
