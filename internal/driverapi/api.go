package driverapi

import (
	"context"

	"github.com/google/uuid"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
)

// EventSink 接收协议层上报的规范化设备事件，由宿主核心实现。
type EventSink interface {
	HandleDeviceEvent(ctx context.Context, ev *coremodel.DeviceEvent) error
}

// CommandSource 向设备发出规范化命令，由宿主核心实现调度。
// 编码失败时必须整体失败，不得向设备发送半成品。
type CommandSource interface {
	// StartApp 请求设备启动指定应用
	StartApp(ctx context.Context, deviceID coremodel.DeviceID, appUUID uuid.UUID) error
	// SendKeyValues 按数值键下发应用消息
	SendKeyValues(ctx context.Context, deviceID coremodel.DeviceID, appUUID uuid.UUID, pairs []coremodel.AppMessagePair) error
	// SendNamedValues 按清单键名下发应用消息，未解析键名导致整体失败
	SendNamedValues(ctx context.Context, deviceID coremodel.DeviceID, appUUID uuid.UUID, values map[string]interface{}) error
}

// ByteSender 把编码完成的消息写给设备。终端实现由承载传输的一方提供，
// 消息边界以下的分帧不在本层职责内。
type ByteSender interface {
	SendBytes(ctx context.Context, deviceID coremodel.DeviceID, kind uint16, payload []byte) error
}
