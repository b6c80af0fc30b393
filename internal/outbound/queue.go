package outbound

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
)

// ErrQueueFull 队列达到容量上限
var ErrQueueFull = errors.New("outbound queue full")

// Message 一条待下发的设备消息
type Message struct {
	DeviceID   coremodel.DeviceID
	Kind       uint16
	Payload    []byte
	Priority   int
	NotBefore  time.Time // 零值表示立即可发
	RetryCount int

	seq uint64 // 同优先级按入队顺序
}

// Queue 进程内优先级队列。优先级相同按入队顺序出队（FIFO）。
// Pop 在队列为空时阻塞，Close 之后 Pop 返回 false。
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   messageHeap
	nextSeq uint64
	maxSize int
	closed  bool
}

func NewQueue(maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = 1024
	}
	q := &Queue{maxSize: maxSize}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push 入队。队列满返回 ErrQueueFull，已关闭返回错误。
func (q *Queue) Push(msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.New("outbound queue closed")
	}
	if q.items.Len() >= q.maxSize {
		return ErrQueueFull
	}

	msg.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.items, msg)
	q.cond.Signal()
	return nil
}

// Pop 出队最高优先级消息，队列空时阻塞。
// 队列关闭且排空后返回 (nil, false)。
func (q *Queue) Pop() (*Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.items.Len() == 0 {
		return nil, false
	}
	msg := heap.Pop(&q.items).(*Message)
	return msg, true
}

// TryPop 非阻塞出队
func (q *Queue) TryPop() (*Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return nil, false
	}
	msg := heap.Pop(&q.items).(*Message)
	return msg, true
}

// Len 当前队列长度
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Close 关闭队列，唤醒所有阻塞的 Pop
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// messageHeap 实现 container/heap，优先级小者在前，同级按 seq
type messageHeap []*Message

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x interface{}) {
	*h = append(*h, x.(*Message))
}

func (h *messageHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
