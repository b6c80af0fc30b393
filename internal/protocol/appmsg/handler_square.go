package appmsg

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
	"github.com/taoyao-code/wearable-server/internal/manifest"
)

// UUIDSquare Square 表盘
var UUIDSquare = uuid.MustParse("cb4b8e11-9c7d-4f9b-9db6-8c52b4d67f2a")

// Square 键名
const (
	squareKeyWeatherRequest = "KEY_WEATHER_REQUEST"
	squareKeyWeatherIcon    = "KEY_WEATHER_ICON"
	squareKeyWeatherTemp    = "KEY_WEATHER_TEMP"
)

// SquareCodec Square 表盘编解码器。
// 温度以带单位的字符串下发（如 "21°"），图标沿用统一字形映射。
type SquareCodec struct {
	*BaseCodec
	weather WeatherSource
	log     *zap.Logger
}

func NewSquareCodec(resolver manifest.Resolver, weather WeatherSource, log *zap.Logger) *SquareCodec {
	return &SquareCodec{
		BaseCodec: NewBaseCodec(UUIDSquare, resolver, log),
		weather:   weather,
		log:       log,
	}
}

func (c *SquareCodec) Decode(deviceID coremodel.DeviceID, pairs []coremodel.AppMessagePair) []*coremodel.DeviceEvent {
	now := time.Now()

	if reqKey, err := c.KeyID(squareKeyWeatherRequest); err == nil {
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

func (c *SquareCodec) encodeWeather(now time.Time) []byte {
	if c.weather == nil {
		return nil
	}
	w := c.weather.Current()
	if w == nil {
		return nil
	}

	iconKey, err := c.KeyID(squareKeyWeatherIcon)
	if err != nil {
		c.warnSkip(err)
		return nil
	}
	tempKey, err := c.KeyID(squareKeyWeatherTemp)
	if err != nil {
		c.warnSkip(err)
		return nil
	}

	pairs := []coremodel.AppMessagePair{
		{Key: iconKey, Value: IconForCondition(w.ConditionCode, IsNight(now))},
		{Key: tempKey, Value: fmt.Sprintf("%d°", CelsiusFromK(w.TemperatureK))},
	}

	data, err := BuildPush(c.NextTxn(), c.AppUUID(), pairs)
	if err != nil {
		c.warnSkip(err)
		return nil
	}
	return data
}

func (c *SquareCodec) warnSkip(err error) {
	if c.log != nil {
		c.log.Warn("square weather encode skipped",
			zap.String("app_uuid", c.AppUUID().String()),
			zap.Error(err))
	}
}
