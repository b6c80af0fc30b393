package outbound

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
)

func TestQueue_PriorityOrder(t *testing.T) {
	q := NewQueue(16)
	require.NoError(t, q.Push(&Message{DeviceID: "d", Kind: 1, Priority: PriorityLow}))
	require.NoError(t, q.Push(&Message{DeviceID: "d", Kind: 2, Priority: PriorityEmergency}))
	require.NoError(t, q.Push(&Message{DeviceID: "d", Kind: 3, Priority: PriorityNormal}))

	m, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, uint16(2), m.Kind)

	m, _ = q.TryPop()
	assert.Equal(t, uint16(3), m.Kind)

	m, _ = q.TryPop()
	assert.Equal(t, uint16(1), m.Kind)

	_, ok = q.TryPop()
	assert.False(t, ok)
}

func TestQueue_FIFOWithinPriority(t *testing.T) {
	q := NewQueue(16)
	for i := uint16(1); i <= 4; i++ {
		require.NoError(t, q.Push(&Message{DeviceID: "d", Kind: i, Priority: PriorityNormal}))
	}
	for i := uint16(1); i <= 4; i++ {
		m, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, m.Kind)
	}
}

func TestQueue_Full(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.Push(&Message{Priority: PriorityNormal}))
	require.NoError(t, q.Push(&Message{Priority: PriorityNormal}))
	assert.ErrorIs(t, q.Push(&Message{Priority: PriorityNormal}), ErrQueueFull)
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewQueue(4)
	got := make(chan *Message, 1)
	go func() {
		m, ok := q.Pop()
		if ok {
			got <- m
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(&Message{DeviceID: "d", Kind: 7, Priority: PriorityHigh}))

	select {
	case m := <-got:
		assert.Equal(t, uint16(7), m.Kind)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestQueue_CloseUnblocksPop(t *testing.T) {
	q := NewQueue(4)
	done := make(chan struct{})
	go func() {
		_, ok := q.Pop()
		assert.False(t, ok)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pop did not return after close")
	}
}

// recordingSender 记录发送顺序的测试发送器
type recordingSender struct {
	mu    sync.Mutex
	kinds []uint16
	fail  map[uint16]int // kind -> 剩余失败次数
}

func (s *recordingSender) SendBytes(_ context.Context, _ coremodel.DeviceID, kind uint16, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if left, ok := s.fail[kind]; ok && left > 0 {
		s.fail[kind] = left - 1
		return assert.AnError
	}
	s.kinds = append(s.kinds, kind)
	return nil
}

func (s *recordingSender) sent() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint16, len(s.kinds))
	copy(out, s.kinds)
	return out
}

func TestWorker_DrainsByPriority(t *testing.T) {
	q := NewQueue(16)
	sender := &recordingSender{}
	w := NewWorker(q, sender, 0, 1, nil)

	require.NoError(t, q.Push(&Message{DeviceID: "d", Kind: 0x01, Priority: PriorityLow}))
	require.NoError(t, q.Push(&Message{DeviceID: "d", Kind: 0x02, Priority: PriorityEmergency}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return len(sender.sent()) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, []uint16{0x02, 0x01}, sender.sent())
}

func TestWorker_DeferredMessageDoesNotBlockQueue(t *testing.T) {
	q := NewQueue(16)
	sender := &recordingSender{}
	w := NewWorker(q, sender, 0, 1, nil)

	// 高优先级但未到发送窗口的消息先出队，不得挡住后面的即时消息
	require.NoError(t, q.Push(&Message{
		DeviceID:  "d",
		Kind:      0x0a,
		Priority:  PriorityEmergency,
		NotBefore: time.Now().Add(150 * time.Millisecond),
	}))
	require.NoError(t, q.Push(&Message{DeviceID: "d", Kind: 0x0b, Priority: PriorityNormal}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	assert.Eventually(t, func() bool {
		sent := sender.sent()
		return len(sent) >= 1 && sent[0] == 0x0b
	}, time.Second, 5*time.Millisecond, "immediate message must go out before the deferred one")

	// 发送窗口到达后延迟消息补发
	assert.Eventually(t, func() bool {
		return len(sender.sent()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint16{0x0b, 0x0a}, sender.sent())
}

func TestWorker_DropAfterMaxRetries(t *testing.T) {
	q := NewQueue(16)
	sender := &recordingSender{fail: map[uint16]int{0x09: 100}}
	w := NewWorker(q, sender, 0, 0, nil)
	w.retryDelay = time.Millisecond

	dropped := make(chan *Message, 1)
	w.SetOnDrop(func(m *Message) { dropped <- m })

	require.NoError(t, q.Push(&Message{DeviceID: "d", Kind: 0x09, Priority: PriorityNormal}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case m := <-dropped:
		assert.Equal(t, uint16(0x09), m.Kind)
	case <-time.After(time.Second):
		t.Fatal("message was not dropped")
	}
}
