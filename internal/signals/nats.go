package signals

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPublisher 通过 NATS 发布信号，subject = <prefix>.<type>
// 适合宿主与桥接核心同进程域部署、不走公网 Webhook 的场景。
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

func NewNATSPublisher(conn *nats.Conn, subjectPrefix string, logger *zap.Logger) *NATSPublisher {
	if subjectPrefix == "" {
		subjectPrefix = "wearable.signal"
	}
	return &NATSPublisher{conn: conn, prefix: subjectPrefix, logger: logger}
}

func (p *NATSPublisher) Publish(ctx context.Context, sig *Signal) error {
	if p == nil || p.conn == nil {
		return fmt.Errorf("nats publisher not initialized")
	}

	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, sig.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		if p.logger != nil {
			p.logger.Error("nats publish failed",
				zap.String("subject", subject),
				zap.String("signal_id", sig.SignalID),
				zap.Error(err))
		}
		return fmt.Errorf("nats publish: %w", err)
	}

	if p.logger != nil {
		p.logger.Debug("signal published to nats",
			zap.String("subject", subject),
			zap.String("signal_id", sig.SignalID))
	}
	return nil
}
