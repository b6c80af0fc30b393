package appmsg

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
	"github.com/taoyao-code/wearable-server/internal/manifest"
)

// UUIDHealthify Healthify 健康表盘
var UUIDHealthify = uuid.MustParse("32dc5203-9727-4b07-9dd9-718af9e7fd16")

// Healthify 键名（小写是该应用清单的固有风格）
const (
	healthifyKeyRequest     = "request"
	healthifyKeyTemperature = "temperature"
	healthifyKeyConditions  = "conditions"
)

// HealthifyCodec Healthify 表盘编解码器。
// 与 Obsidian 不同，该表盘期望图标字符与温度合并为一个状况字符串。
type HealthifyCodec struct {
	*BaseCodec
	weather WeatherSource
	log     *zap.Logger
}

func NewHealthifyCodec(resolver manifest.Resolver, weather WeatherSource, log *zap.Logger) *HealthifyCodec {
	return &HealthifyCodec{
		BaseCodec: NewBaseCodec(UUIDHealthify, resolver, log),
		weather:   weather,
		log:       log,
	}
}

func (c *HealthifyCodec) Decode(deviceID coremodel.DeviceID, pairs []coremodel.AppMessagePair) []*coremodel.DeviceEvent {
	now := time.Now()

	reqKey, err := c.KeyID(healthifyKeyRequest)
	if err == nil {
		for _, p := range pairs {
			if p.Key != reqKey {
				continue
			}
			data := c.encodeWeather(now)
			if data == nil {
				return nil
			}
			return []*coremodel.DeviceEvent{{
				Type:       coremodel.EventSendBytes,
				DeviceID:   deviceID,
				OccurredAt: now,
				SendBytes: &coremodel.SendBytesPayload{
					DeviceID: deviceID,
					Kind:     KindAppMessage,
					Data:     data,
				},
			}}
		}
	}

	return []*coremodel.DeviceEvent{{
		Type:       coremodel.EventAppMessage,
		DeviceID:   deviceID,
		OccurredAt: now,
		AppMessage: &coremodel.AppMessagePayload{
			DeviceID: deviceID,
			AppUUID:  c.AppUUID(),
			Pairs:    pairs,
		},
	}}
}

func (c *HealthifyCodec) encodeWeather(now time.Time) []byte {
	if c.weather == nil {
		return nil
	}
	w := c.weather.Current()
	if w == nil {
		return nil
	}

	tempKey, err := c.KeyID(healthifyKeyTemperature)
	if err != nil {
		c.warnSkip(err)
		return nil
	}
	condKey, err := c.KeyID(healthifyKeyConditions)
	if err != nil {
		c.warnSkip(err)
		return nil
	}

	pairs := []coremodel.AppMessagePair{
		{Key: tempKey, Value: int32(CelsiusFromK(w.TemperatureK))},
		{Key: condKey, Value: IconForCondition(w.ConditionCode, IsNight(now))},
	}

	data, err := BuildPush(c.NextTxn(), c.AppUUID(), pairs)
	if err != nil {
		c.warnSkip(err)
		return nil
	}
	return data
}

func (c *HealthifyCodec) warnSkip(err error) {
	if c.log != nil {
		c.log.Warn("healthify weather encode skipped",
			zap.String("app_uuid", c.AppUUID().String()),
			zap.Error(err))
	}
}
