package signals

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemoryPublisher 进程内信号收集器，供测试与嵌入式宿主使用
type MemoryPublisher struct {
	mu      sync.Mutex
	signals []*Signal
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, sig *Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, sig)
	return nil
}

// Signals 返回已发布信号的快照
func (p *MemoryPublisher) Signals() []*Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Signal, len(p.signals))
	copy(out, p.signals)
	return out
}

// ByType 按类型过滤已发布信号
func (p *MemoryPublisher) ByType(t Type) []*Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Signal
	for _, s := range p.signals {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

func (p *MemoryPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = nil
}

// LogPublisher 仅打日志的信号发布器，用于未配置任何后端时的降级
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, sig *Signal) error {
	if p.logger != nil {
		p.logger.Info("signal (log only)",
			zap.String("signal_id", sig.SignalID),
			zap.String("type", string(sig.Type)),
			zap.String("device_id", sig.DeviceID),
			zap.Any("data", sig.Data))
	}
	return nil
}
