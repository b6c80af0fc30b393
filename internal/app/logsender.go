package app

import (
	"context"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
)

// LogSender 开发/演示用的发送器：只把下行帧打到日志。
// 真实部署由宿主传输层实现 driverapi.ByteSender。
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendBytes(_ context.Context, deviceID coremodel.DeviceID, kind uint16, payload []byte) error {
	if s.log != nil {
		s.log.Info("outbound frame",
			zap.String("device_id", string(deviceID)),
			zap.Uint16("kind", kind),
			zap.String("payload", hex.EncodeToString(payload)))
	}
	return nil
}
