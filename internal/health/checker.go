package health

import (
	"context"
	"time"
)

// Status 组件健康状态
type Status string

const (
	// StatusHealthy 组件正常
	StatusHealthy Status = "healthy"
	// StatusDegraded 组件受损但桥接核心仍可服务
	StatusDegraded Status = "degraded"
	// StatusUnhealthy 组件失效，无法继续服务
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult 单个组件的检查结果
type CheckResult struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Latency time.Duration          `json:"latency"`
}

// Checker 单个依赖组件的健康检查器。
// Check 必须尊重 ctx 超时，不允许无限阻塞。
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// CheckFunc 函数式检查器适配
type CheckFunc struct {
	CheckerName string
	Fn          func(ctx context.Context) CheckResult
}

func (f CheckFunc) Name() string { return f.CheckerName }

func (f CheckFunc) Check(ctx context.Context) CheckResult { return f.Fn(ctx) }
