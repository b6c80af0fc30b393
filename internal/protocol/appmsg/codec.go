package appmsg

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
	"github.com/taoyao-code/wearable-server/internal/manifest"
)

// ErrKeyUnresolved 出站编码时清单中缺少所需键名
var ErrKeyUnresolved = errors.New("appmsg key unresolved")

// Codec 单个手表应用的键值消息编解码器。
// 构造完成后无内部可变状态，可被多设备并发使用。
type Codec interface {
	// AppUUID 该编解码器服务的应用
	AppUUID() uuid.UUID
	// Decode 把入站键值对翻译为规范化设备事件。
	// 无法识别的键静默跳过，不视为错误。
	Decode(deviceID coremodel.DeviceID, pairs []coremodel.AppMessagePair) []*coremodel.DeviceEvent
	// EncodeStartCommand 编码应用启动消息。成功时保证返回非 nil。
	EncodeStartCommand() []byte
}

// BaseCodec 具体应用编解码器的公共部分：持有清单与事务号。
// 清单加载失败仅使本编解码器降级（入站按数值键处理，出站按键名失败），
// 首次降级时打一条诊断日志。
type BaseCodec struct {
	appUUID  uuid.UUID
	man      *manifest.KeyManifest
	manErr   error
	log      *zap.Logger
	degraded sync.Once
	txn      atomic.Uint32
}

// NewBaseCodec 通过解析器装载清单。resolver 可为 nil（纯数值键应用）。
func NewBaseCodec(appUUID uuid.UUID, resolver manifest.Resolver, log *zap.Logger) *BaseCodec {
	b := &BaseCodec{appUUID: appUUID, log: log}
	if resolver != nil {
		b.man, b.manErr = resolver.Resolve(appUUID)
	}
	return b
}

// AppUUID 实现 Codec
func (b *BaseCodec) AppUUID() uuid.UUID { return b.appUUID }

// Manifest 返回已加载的清单，降级时为 nil
func (b *BaseCodec) Manifest() *manifest.KeyManifest {
	if b.man == nil {
		b.noteDegraded()
		return nil
	}
	return b.man
}

func (b *BaseCodec) noteDegraded() {
	b.degraded.Do(func() {
		if b.log != nil {
			b.log.Warn("appmsg codec degraded: manifest not loaded",
				zap.String("app_uuid", b.appUUID.String()),
				zap.Error(b.manErr))
		}
	})
}

// NextTxn 下一个事务号（按字节回绕）
func (b *BaseCodec) NextTxn() byte {
	return byte(b.txn.Add(1))
}

// KeyID 按键名解析数值键，清单缺失或键名不存在时返回 ErrKeyUnresolved
func (b *BaseCodec) KeyID(name string) (uint32, error) {
	m := b.Manifest()
	if m == nil {
		return 0, fmt.Errorf("%w: %s (no manifest)", ErrKeyUnresolved, name)
	}
	id, ok := m.KeyID(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrKeyUnresolved, name)
	}
	return id, nil
}

// EncodeStartCommand 默认启动消息：键 0 写入 uint8(1)。
// 大多数应用把键 0 约定为启动/唤醒信号；有特殊约定的应用自行覆盖。
func (b *BaseCodec) EncodeStartCommand() []byte {
	data, err := BuildPush(b.NextTxn(), b.appUUID, []coremodel.AppMessagePair{
		{Key: 0, Value: uint8(1)},
	})
	if err != nil {
		// 固定输入不会失败，保底返回最小合法 Push
		return append([]byte{CmdPush, 0}, append(b.appUUID[:], 0)...)
	}
	return data
}

// PairsFromNames 把键名->值表解析为数值键值对。
// 任何一个键名无法解析则整体失败，保证出站消息不缺键。
func PairsFromNames(man *manifest.KeyManifest, values map[string]interface{}) ([]coremodel.AppMessagePair, error) {
	if man == nil {
		return nil, fmt.Errorf("%w: no manifest", ErrKeyUnresolved)
	}
	pairs := make([]coremodel.AppMessagePair, 0, len(values))
	for name, v := range values {
		id, ok := man.KeyID(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrKeyUnresolved, name)
		}
		pairs = append(pairs, coremodel.AppMessagePair{Key: id, Value: v})
	}
	return pairs, nil
}

// DefaultStartCommand 无编解码器注册时的通用启动消息
func DefaultStartCommand(appUUID uuid.UUID) []byte {
	data, err := BuildPush(0, appUUID, []coremodel.AppMessagePair{
		{Key: 0, Value: uint8(1)},
	})
	if err != nil {
		return append([]byte{CmdPush, 0}, append(appUUID[:], 0)...)
	}
	return data
}
