package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/wearable-server/internal/outbound"
)

// QueueChecker 下行队列健康检查器
type QueueChecker struct {
	queue    *outbound.Queue
	capacity int
}

// NewQueueChecker 创建下行队列健康检查器
func NewQueueChecker(queue *outbound.Queue, capacity int) *QueueChecker {
	return &QueueChecker{queue: queue, capacity: capacity}
}

// Name 返回检查器名称
func (c *QueueChecker) Name() string {
	return "outbound_queue"
}

// Check 执行健康检查
func (c *QueueChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	length := c.queue.Len()

	if c.capacity <= 0 {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "no capacity limit",
			Details: map[string]interface{}{
				"queue_length": length,
			},
			Latency: time.Since(start),
		}
	}

	// 计算队列占用率
	utilization := float64(length) / float64(c.capacity)

	status := StatusHealthy
	message := "ok"

	if utilization > 0.8 {
		status = StatusDegraded
		message = "queue filling up, device may be offline"
	}

	if utilization > 0.95 {
		status = StatusUnhealthy
		message = "queue near capacity"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{
			"queue_length": length,
			"capacity":     c.capacity,
			"utilization":  fmt.Sprintf("%.1f%%", utilization*100),
		},
		Latency: time.Since(start),
	}
}
