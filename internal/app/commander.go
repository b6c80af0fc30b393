package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
	"github.com/taoyao-code/wearable-server/internal/manifest"
	"github.com/taoyao-code/wearable-server/internal/outbound"
	"github.com/taoyao-code/wearable-server/internal/protocol/appmsg"
)

// Commander 实现 driverapi.CommandSource：把宿主下发的命令编码为
// 设备消息并交给下行队列。编码失败即整体失败，不发送半成品。
type Commander struct {
	registry *appmsg.Registry
	resolver manifest.Resolver
	queue    *outbound.Queue
	log      *zap.Logger
	txn      atomic.Uint32
}

func NewCommander(registry *appmsg.Registry, resolver manifest.Resolver, queue *outbound.Queue, log *zap.Logger) *Commander {
	return &Commander{
		registry: registry,
		resolver: resolver,
		queue:    queue,
		log:      log,
	}
}

// StartApp 请求设备启动指定应用。
// 已注册编解码器的应用用其专属启动消息，其余用通用启动消息。
func (c *Commander) StartApp(ctx context.Context, deviceID coremodel.DeviceID, appUUID uuid.UUID) error {
	var payload []byte
	if codec, ok := c.registry.Lookup(appUUID); ok {
		payload = codec.EncodeStartCommand()
	} else {
		payload = appmsg.DefaultStartCommand(appUUID)
	}
	if len(payload) == 0 {
		return fmt.Errorf("empty start command for app %s", appUUID)
	}

	if c.log != nil {
		c.log.Info("commander: start app",
			zap.String("device_id", string(deviceID)),
			zap.String("app_uuid", appUUID.String()))
	}
	return c.enqueue(deviceID, payload)
}

// SendKeyValues 按数值键下发键值对
func (c *Commander) SendKeyValues(ctx context.Context, deviceID coremodel.DeviceID, appUUID uuid.UUID, pairs []coremodel.AppMessagePair) error {
	if len(pairs) == 0 {
		return fmt.Errorf("no pairs to send")
	}

	payload, err := appmsg.BuildPush(c.nextTxn(), appUUID, pairs)
	if err != nil {
		if c.log != nil {
			c.log.Warn("commander: encode failed, nothing sent",
				zap.String("device_id", string(deviceID)),
				zap.String("app_uuid", appUUID.String()),
				zap.Error(err))
		}
		return fmt.Errorf("encode app message: %w", err)
	}
	return c.enqueue(deviceID, payload)
}

// SendNamedValues 按键名下发键值对，键名经应用清单解析。
// 任一键名无法解析则整体失败。
func (c *Commander) SendNamedValues(ctx context.Context, deviceID coremodel.DeviceID, appUUID uuid.UUID, values map[string]interface{}) error {
	if len(values) == 0 {
		return fmt.Errorf("no values to send")
	}
	if c.resolver == nil {
		return fmt.Errorf("no manifest resolver configured")
	}

	man, err := c.resolver.Resolve(appUUID)
	if err != nil {
		return fmt.Errorf("resolve manifest for %s: %w", appUUID, err)
	}

	pairs, err := appmsg.PairsFromNames(man, values)
	if err != nil {
		return err
	}
	return c.SendKeyValues(ctx, deviceID, appUUID, pairs)
}

func (c *Commander) nextTxn() byte {
	return byte(c.txn.Add(1))
}

func (c *Commander) enqueue(deviceID coremodel.DeviceID, payload []byte) error {
	if c.queue == nil {
		return fmt.Errorf("outbound queue not configured")
	}
	return c.queue.Push(&outbound.Message{
		DeviceID: deviceID,
		Kind:     appmsg.KindAppMessage,
		Payload:  payload,
		Priority: outbound.KindPriority(appmsg.KindAppMessage),
	})
}
