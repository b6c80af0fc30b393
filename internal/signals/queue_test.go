package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestQueue(t *testing.T, webhookURL string, httpClient *http.Client) (*Queue, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	pusher := NewPusher(httpClient, "test-key", "test-secret")
	pusher.Retries = 0 // 重试全部交给队列层，便于观察

	q := NewQueue(rdb, pusher, webhookURL, 0, zap.NewNop())
	q.retryBase = time.Millisecond
	return q, mr, rdb
}

func TestQueue_RetryAfterServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q, mr, rdb := newTestQueue(t, srv.URL, srv.Client())
	ctx := context.Background()

	sig := New(SignalFindPhoneStart, "watch-1", nil)
	raw, err := json.Marshal(sig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// 第一次处理: 500，信号重新入队
	q.processSignal(ctx, string(raw), q.logger)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 webhook call, got %d", got)
	}
	requeued, err := rdb.LPop(ctx, signalQueueKey).Result()
	if err != nil {
		t.Fatalf("signal must be re-enqueued after 5xx: %v", err)
	}

	// 第二次处理: 必须再次到达 webhook 并成功
	q.processSignal(ctx, requeued, q.logger)
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("retry must reach the webhook: %d call(s)", got)
	}

	// 成功后: 去重标记写实，重试计数清除
	if !mr.Exists(fmt.Sprintf(signalDedupKey, sig.SignalID)) {
		t.Errorf("dedup mark must be set after success")
	}
	if mr.Exists(fmt.Sprintf(signalRetryKey, sig.SignalID)) {
		t.Errorf("retry counter must be cleared after success")
	}

	// 已推送的信号再来一遍: 去重拦下，webhook 不再被调用
	q.processSignal(ctx, string(raw), q.logger)
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("duplicate must be skipped, got %d calls", got)
	}
}

func TestQueue_MaxRetriesMovesToDLQ(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q, _, rdb := newTestQueue(t, srv.URL, srv.Client())
	ctx := context.Background()

	sig := New(SignalDeviceInfoChanged, "watch-1", map[string]interface{}{"battery_level": 50})
	raw, err := json.Marshal(sig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// maxRetries 次失败后，下一次处理直接进死信队列
	current := string(raw)
	for i := 0; i < maxRetries; i++ {
		q.processSignal(ctx, current, q.logger)
		current, err = rdb.LPop(ctx, signalQueueKey).Result()
		if err != nil {
			t.Fatalf("attempt %d: signal must be re-enqueued: %v", i+1, err)
		}
	}
	q.processSignal(ctx, current, q.logger)

	if got := atomic.LoadInt32(&calls); got != maxRetries {
		t.Errorf("expected %d webhook attempts, got %d", maxRetries, got)
	}
	dlqLen, err := q.DLQLength(ctx)
	if err != nil {
		t.Fatalf("dlq length: %v", err)
	}
	if dlqLen != 1 {
		t.Errorf("exhausted signal must land in DLQ, got %d", dlqLen)
	}
}

func TestQueue_ClientErrorGoesToDLQ(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	q, _, rdb := newTestQueue(t, srv.URL, srv.Client())
	ctx := context.Background()

	sig := New(SignalPhoneFound, "watch-1", nil)
	raw, _ := json.Marshal(sig)
	q.processSignal(ctx, string(raw), q.logger)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 webhook call, got %d", got)
	}
	// 4xx 不重试: 主队列为空，信号在死信队列
	if n, _ := rdb.LLen(ctx, signalQueueKey).Result(); n != 0 {
		t.Errorf("client error must not be re-enqueued, queue len %d", n)
	}
	if dlqLen, _ := q.DLQLength(ctx); dlqLen != 1 {
		t.Errorf("client error must land in DLQ, got %d", dlqLen)
	}
}
