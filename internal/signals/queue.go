package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// Redis Key前缀
	signalQueueKey = "wearable:signal:queue"    // 主队列
	signalDLQKey   = "wearable:signal:dlq"      // 死信队列（Dead Letter Queue）
	signalRetryKey = "wearable:signal:retry:%s" // 重试计数器（signal_id）
	signalDedupKey = "wearable:signal:dedup:%s" // 去重标记（signal_id）

	// 配置常量
	maxRetries = 5              // 最大重试次数
	retryTTL   = 24 * time.Hour // 重试记录TTL
	dedupTTL   = time.Hour      // 去重标记TTL
)

// Queue 异步信号队列。实现 Publisher：Publish 仅入队，
// 推送由独立 Worker 完成，对事件处理循环不产生阻塞。
type Queue struct {
	redis   *redis.Client
	logger  *zap.Logger
	pusher  *Pusher
	baseURL string        // Webhook基础URL
	limiter *rate.Limiter // 推送限速（保护宿主回调端）

	retryBase time.Duration // 重试退避基数
}

// NewQueue 创建信号队列。pushPerSec <= 0 时不限速。
func NewQueue(redisClient *redis.Client, pusher *Pusher, webhookURL string, pushPerSec int, logger *zap.Logger) *Queue {
	var limiter *rate.Limiter
	if pushPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(pushPerSec), pushPerSec*2)
	}
	return &Queue{
		redis:     redisClient,
		logger:    logger,
		pusher:    pusher,
		baseURL:   webhookURL,
		limiter:   limiter,
		retryBase: time.Second,
	}
}

// Publish 入队信号（异步，不阻塞业务逻辑）
func (q *Queue) Publish(ctx context.Context, sig *Signal) error {
	if q == nil || q.redis == nil {
		return fmt.Errorf("signal queue not initialized")
	}

	data, err := json.Marshal(sig)
	if err != nil {
		q.logger.Error("failed to marshal signal",
			zap.String("signal_id", sig.SignalID),
			zap.String("type", string(sig.Type)),
			zap.Error(err))
		return fmt.Errorf("marshal signal: %w", err)
	}

	if err := q.redis.RPush(ctx, signalQueueKey, data).Err(); err != nil {
		q.logger.Error("failed to enqueue signal",
			zap.String("signal_id", sig.SignalID),
			zap.String("type", string(sig.Type)),
			zap.Error(err))
		return fmt.Errorf("redis rpush: %w", err)
	}

	q.logger.Debug("signal enqueued",
		zap.String("signal_id", sig.SignalID),
		zap.String("type", string(sig.Type)),
		zap.String("device_id", sig.DeviceID))
	return nil
}

// StartWorker 启动信号消费Worker
func (q *Queue) StartWorker(ctx context.Context, workerCount int) {
	if q == nil || q.redis == nil || q.pusher == nil {
		q.logger.Error("signal queue worker cannot start: not initialized")
		return
	}

	q.logger.Info("starting signal queue workers",
		zap.Int("worker_count", workerCount),
		zap.String("webhook_url", q.baseURL))

	for i := 0; i < workerCount; i++ {
		workerID := i + 1
		go q.worker(ctx, workerID)
	}
}

func (q *Queue) worker(ctx context.Context, workerID int) {
	logger := q.logger.With(zap.Int("worker_id", workerID))
	logger.Info("signal queue worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("signal queue worker stopped")
			return
		default:
			// 从队列左侧阻塞取出信号（超时5秒）
			result, err := q.redis.BLPop(ctx, 5*time.Second, signalQueueKey).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				logger.Error("redis blpop error", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			if len(result) < 2 {
				logger.Warn("invalid blpop result", zap.Any("result", result))
				continue
			}

			// result[0]是key，result[1]是value
			q.processSignal(ctx, result[1], logger)
		}
	}
}

func (q *Queue) processSignal(ctx context.Context, raw string, logger *zap.Logger) {
	var sig Signal
	if err := json.Unmarshal([]byte(raw), &sig); err != nil {
		logger.Error("failed to unmarshal signal", zap.Error(err))
		// 格式错误的信号直接丢弃
		return
	}

	logger.Debug("processing signal",
		zap.String("signal_id", sig.SignalID),
		zap.String("type", string(sig.Type)),
		zap.String("device_id", sig.DeviceID))

	dup, err := q.isDuplicate(ctx, sig.SignalID)
	if err != nil {
		logger.Warn("dedup check failed, pushing anyway",
			zap.String("signal_id", sig.SignalID),
			zap.Error(err))
	}
	if dup {
		logger.Debug("duplicate signal skipped", zap.String("signal_id", sig.SignalID))
		return
	}

	retryCount, err := q.getRetryCount(ctx, sig.SignalID)
	if err != nil {
		logger.Error("failed to get retry count",
			zap.String("signal_id", sig.SignalID),
			zap.Error(err))
	}

	if retryCount >= maxRetries {
		logger.Warn("signal exceeded max retries, moving to DLQ",
			zap.String("signal_id", sig.SignalID),
			zap.String("type", string(sig.Type)),
			zap.Int("retry_count", retryCount))
		q.moveToDLQ(ctx, raw, "max_retries_exceeded")
		return
	}

	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			return
		}
	}

	pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	statusCode, respBody, err := q.pusher.SendJSON(pushCtx, q.baseURL, &sig)

	if err != nil || statusCode >= 500 {
		// 推送失败，增加重试计数并重新入队
		logger.Warn("signal push failed, will retry",
			zap.String("signal_id", sig.SignalID),
			zap.String("type", string(sig.Type)),
			zap.Int("status_code", statusCode),
			zap.Int("retry_count", retryCount+1),
			zap.Error(err))

		q.incrementRetryCount(ctx, sig.SignalID)

		// 延迟后重新入队（指数退避: 1、2、4、8、16 倍基数）
		delay := time.Duration(1<<uint(retryCount)) * q.retryBase
		time.Sleep(delay)

		if err := q.redis.RPush(ctx, signalQueueKey, raw).Err(); err != nil {
			logger.Error("failed to re-enqueue signal",
				zap.String("signal_id", sig.SignalID),
				zap.Error(err))
			q.moveToDLQ(ctx, raw, "re_enqueue_failed")
		}
		return
	}

	if statusCode >= 400 && statusCode < 500 {
		// 4xx错误，客户端错误，不重试，移到DLQ
		logger.Warn("signal push client error, moving to DLQ",
			zap.String("signal_id", sig.SignalID),
			zap.String("type", string(sig.Type)),
			zap.Int("status_code", statusCode),
			zap.ByteString("response", respBody))
		q.moveToDLQ(ctx, raw, fmt.Sprintf("client_error_%d", statusCode))
		return
	}

	logger.Info("signal pushed successfully",
		zap.String("signal_id", sig.SignalID),
		zap.String("type", string(sig.Type)),
		zap.Int("status_code", statusCode))

	q.markPushed(ctx, sig.SignalID)
	q.deleteRetryCount(ctx, sig.SignalID)
}

// isDuplicate 只读检查去重标记。
// 标记只在推送成功后由 markPushed 写入，重试中的信号不会被自己挡掉。
func (q *Queue) isDuplicate(ctx context.Context, signalID string) (bool, error) {
	if signalID == "" {
		return false, nil
	}
	key := fmt.Sprintf(signalDedupKey, signalID)
	if err := q.redis.Get(ctx, key).Err(); err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// markPushed 推送成功（2xx）后写入去重标记
func (q *Queue) markPushed(ctx context.Context, signalID string) {
	key := fmt.Sprintf(signalDedupKey, signalID)
	q.redis.SetNX(ctx, key, "1", dedupTTL)
}

// moveToDLQ 移动信号到死信队列
func (q *Queue) moveToDLQ(ctx context.Context, raw string, reason string) {
	dlqRecord := map[string]interface{}{
		"signal_data": raw,
		"reason":      reason,
		"timestamp":   time.Now().Unix(),
	}

	dlqData, err := json.Marshal(dlqRecord)
	if err != nil {
		q.logger.Error("failed to marshal dlq record", zap.Error(err))
		return
	}

	if err := q.redis.RPush(ctx, signalDLQKey, dlqData).Err(); err != nil {
		q.logger.Error("failed to move signal to DLQ", zap.Error(err))
	}
}

func (q *Queue) getRetryCount(ctx context.Context, signalID string) (int, error) {
	key := fmt.Sprintf(signalRetryKey, signalID)
	val, err := q.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var count int
	_, err = fmt.Sscanf(val, "%d", &count)
	return count, err
}

func (q *Queue) incrementRetryCount(ctx context.Context, signalID string) {
	key := fmt.Sprintf(signalRetryKey, signalID)
	if _, err := q.redis.Incr(ctx, key).Result(); err != nil {
		q.logger.Error("failed to increment retry count",
			zap.String("signal_id", signalID),
			zap.Error(err))
		return
	}
	q.redis.Expire(ctx, key, retryTTL)
}

func (q *Queue) deleteRetryCount(ctx context.Context, signalID string) {
	key := fmt.Sprintf(signalRetryKey, signalID)
	q.redis.Del(ctx, key)
}

// QueueLength 获取队列长度
func (q *Queue) QueueLength(ctx context.Context) (int64, error) {
	if q == nil || q.redis == nil {
		return 0, fmt.Errorf("queue not initialized")
	}
	return q.redis.LLen(ctx, signalQueueKey).Result()
}

// DLQLength 获取死信队列长度
func (q *Queue) DLQLength(ctx context.Context) (int64, error) {
	if q == nil || q.redis == nil {
		return 0, fmt.Errorf("queue not initialized")
	}
	return q.redis.LLen(ctx, signalDLQKey).Result()
}

// GetDLQSignals 获取死信队列中的信号（用于人工处理）
func (q *Queue) GetDLQSignals(ctx context.Context, start, stop int64) ([]string, error) {
	if q == nil || q.redis == nil {
		return nil, fmt.Errorf("queue not initialized")
	}
	return q.redis.LRange(ctx, signalDLQKey, start, stop).Result()
}

// ClearDLQ 清空死信队列
func (q *Queue) ClearDLQ(ctx context.Context) error {
	if q == nil || q.redis == nil {
		return fmt.Errorf("queue not initialized")
	}
	return q.redis.Del(ctx, signalDLQKey).Err()
}
