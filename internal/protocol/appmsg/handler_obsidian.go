package appmsg

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
	"github.com/taoyao-code/wearable-server/internal/manifest"
)

// UUIDObsidian Obsidian 表盘
var UUIDObsidian = uuid.MustParse("ef42caba-0c65-4879-ab23-edd2bde68824")

// Obsidian 表盘键名
const (
	obsidianKeyWeatherRequest = "WEATHER_REQUEST"
	obsidianKeyWeatherIcon    = "WEATHER_ICON"
	obsidianKeyWeatherTemp    = "WEATHER_TEMPERATURE"
)

// ObsidianCodec Obsidian 表盘的天气推送编解码器。
// 表盘定期上行天气请求，宿主以图标字符 + 摄氏温度字符串应答。
type ObsidianCodec struct {
	*BaseCodec
	weather WeatherSource
	log     *zap.Logger
}

func NewObsidianCodec(resolver manifest.Resolver, weather WeatherSource, log *zap.Logger) *ObsidianCodec {
	return &ObsidianCodec{
		BaseCodec: NewBaseCodec(UUIDObsidian, resolver, log),
		weather:   weather,
		log:       log,
	}
}

// Decode 处理表盘上行。识别到天气请求键时编码一条天气推送作为回包。
func (c *ObsidianCodec) Decode(deviceID coremodel.DeviceID, pairs []coremodel.AppMessagePair) []*coremodel.DeviceEvent {
	now := time.Now()

	if c.isWeatherRequest(pairs) {
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

	// 其余消息转交宿主应用层
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

func (c *ObsidianCodec) isWeatherRequest(pairs []coremodel.AppMessagePair) bool {
	reqKey, err := c.KeyID(obsidianKeyWeatherRequest)
	if err != nil {
		return false
	}
	for _, p := range pairs {
		if p.Key == reqKey {
			return true
		}
	}
	return false
}

func (c *ObsidianCodec) encodeWeather(now time.Time) []byte {
	if c.weather == nil {
		return nil
	}
	w := c.weather.Current()
	if w == nil {
		return nil
	}

	iconKey, err := c.KeyID(obsidianKeyWeatherIcon)
	if err != nil {
		c.logEncodeSkip(err)
		return nil
	}
	tempKey, err := c.KeyID(obsidianKeyWeatherTemp)
	if err != nil {
		c.logEncodeSkip(err)
		return nil
	}

	pairs := []coremodel.AppMessagePair{
		{Key: iconKey, Value: IconForCondition(w.ConditionCode, IsNight(now))},
		{Key: tempKey, Value: int32(CelsiusFromK(w.TemperatureK))},
	}

	data, err := BuildPush(c.NextTxn(), c.AppUUID(), pairs)
	if err != nil {
		c.logEncodeSkip(err)
		return nil
	}
	return data
}

func (c *ObsidianCodec) logEncodeSkip(err error) {
	if c.log != nil {
		c.log.Warn("obsidian weather encode skipped",
			zap.String("app_uuid", c.AppUUID().String()),
			zap.Error(err))
	}
}
