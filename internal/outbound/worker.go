package outbound

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/wearable-server/internal/driverapi"
)

// Worker 下行队列消费者：按优先级出队，经限速器后交给传输层发送。
// 发送失败按退避重新入队，超过最大重试次数丢弃并打日志。
type Worker struct {
	queue      *Queue
	sender     driverapi.ByteSender
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	log        *zap.Logger

	onDrop func(msg *Message) // 丢弃回调，供指标埋点
}

// NewWorker 创建下行消费者。perSec <= 0 时不限速。
func NewWorker(queue *Queue, sender driverapi.ByteSender, perSec int, maxRetries int, log *zap.Logger) *Worker {
	var limiter *rate.Limiter
	if perSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Worker{
		queue:      queue,
		sender:     sender,
		limiter:    limiter,
		maxRetries: maxRetries,
		retryDelay: 3 * time.Second,
		log:        log,
	}
}

// SetOnDrop 安装丢弃回调
func (w *Worker) SetOnDrop(fn func(msg *Message)) { w.onDrop = fn }

// Run 阻塞消费队列直到 ctx 取消或队列关闭
func (w *Worker) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		w.queue.Close()
	}()

	for {
		msg, ok := w.queue.Pop()
		if !ok {
			return
		}
		w.deliver(ctx, msg)
	}
}

func (w *Worker) deliver(ctx context.Context, msg *Message) {
	// 未到发送窗口: 定时后重新入队，消费循环不等待，其余消息照常出队
	if !msg.NotBefore.IsZero() {
		if wait := time.Until(msg.NotBefore); wait > 0 {
			time.AfterFunc(wait, func() {
				if err := w.queue.Push(msg); err != nil {
					if w.log != nil {
						w.log.Warn("deferred requeue failed, message lost",
							zap.String("device_id", string(msg.DeviceID)),
							zap.Uint16("kind", msg.Kind),
							zap.Error(err))
					}
					if w.onDrop != nil {
						w.onDrop(msg)
					}
				}
			})
			return
		}
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
	}

	err := w.sender.SendBytes(ctx, msg.DeviceID, msg.Kind, msg.Payload)
	if err == nil {
		if w.log != nil {
			w.log.Debug("outbound message sent",
				zap.String("device_id", string(msg.DeviceID)),
				zap.Uint16("kind", msg.Kind),
				zap.Int("bytes", len(msg.Payload)))
		}
		return
	}

	if msg.RetryCount >= w.maxRetries {
		if w.log != nil {
			w.log.Warn("outbound message dropped after retries",
				zap.String("device_id", string(msg.DeviceID)),
				zap.Uint16("kind", msg.Kind),
				zap.Int("retry_count", msg.RetryCount),
				zap.Error(err))
		}
		if w.onDrop != nil {
			w.onDrop(msg)
		}
		return
	}

	msg.RetryCount++
	msg.NotBefore = time.Now().Add(w.retryDelay * time.Duration(msg.RetryCount))
	if w.log != nil {
		w.log.Warn("outbound send failed, requeued",
			zap.String("device_id", string(msg.DeviceID)),
			zap.Uint16("kind", msg.Kind),
			zap.Int("retry_count", msg.RetryCount),
			zap.Error(err))
	}
	if pushErr := w.queue.Push(msg); pushErr != nil {
		if w.log != nil {
			w.log.Error("requeue failed, message lost",
				zap.String("device_id", string(msg.DeviceID)),
				zap.Error(pushErr))
		}
		if w.onDrop != nil {
			w.onDrop(msg)
		}
	}
}
