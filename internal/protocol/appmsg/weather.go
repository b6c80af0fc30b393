package appmsg

import (
	"strings"
	"time"
)

// WeatherInfo 宿主侧的当前天气快照。
// 温度统一使用开尔文，由各应用编码器换算。
type WeatherInfo struct {
	Timestamp     time.Time
	Location      string
	ConditionCode int32
	TemperatureK  int32
	TodayMaxK     int32
	TodayMinK     int32
}

// WeatherSource 提供当前天气，由宿主注入。无数据时返回 nil。
type WeatherSource interface {
	Current() *WeatherInfo
}

// CelsiusFromK 开尔文转摄氏（四舍五入前直接截断，与设备侧显示一致）
func CelsiusFromK(k int32) int32 { return k - 273 }

// 天气图标字符，与常见表盘字体的字形映射一致：
// a=晴 b=少云 c=多云 d=阴 e=小雨 f=雨 g=雷雨 h=雪 i=雾
const (
	iconClear        = "a"
	iconPartlyCloudy = "b"
	iconCloudy       = "c"
	iconOvercast     = "d"
	iconDrizzle      = "e"
	iconRain         = "f"
	iconThunderstorm = "g"
	iconSnow         = "h"
	iconMist         = "i"
)

// IconForCondition 把天气状况码映射为图标字符。
// 状况码按百位分组：2xx 雷雨，3xx 毛毛雨，5xx 雨，6xx 雪，7xx 大气，8xx 云。
// 夜间使用大写形式。
func IconForCondition(code int32, night bool) string {
	var icon string
	switch code / 100 {
	case 2:
		icon = iconThunderstorm
	case 3:
		icon = iconDrizzle
	case 5:
		switch {
		case code == 500:
			icon = iconDrizzle
		case code < 505:
			icon = iconRain
		case code == 511:
			icon = iconRain
		default:
			icon = iconDrizzle
		}
	case 6:
		icon = iconSnow
	case 7:
		icon = iconCloudy
	case 8:
		switch {
		case code == 800:
			icon = iconClear
		case code < 803:
			icon = iconPartlyCloudy
		default:
			icon = iconOvercast
		}
	default:
		icon = iconPartlyCloudy
	}

	if night {
		return strings.ToUpper(icon)
	}
	return icon
}

// IsNight 简单的昼夜判断：18 点到次日 6 点按夜间处理
func IsNight(t time.Time) bool {
	h := t.Hour()
	return h < 6 || h >= 18
}
