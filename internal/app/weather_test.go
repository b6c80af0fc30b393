package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taoyao-code/wearable-server/internal/protocol/appmsg"
)

func TestWeatherStore_CurrentCopies(t *testing.T) {
	s := NewWeatherStore(0)
	assert.Nil(t, s.Current())

	s.Update(&appmsg.WeatherInfo{Timestamp: time.Now(), ConditionCode: 800, TemperatureK: 294})

	got := s.Current()
	assert.NotNil(t, got)
	got.TemperatureK = 0
	assert.Equal(t, int32(294), s.Current().TemperatureK)
}

func TestWeatherStore_Expiry(t *testing.T) {
	s := NewWeatherStore(time.Hour)

	s.Update(&appmsg.WeatherInfo{Timestamp: time.Now().Add(-2 * time.Hour), ConditionCode: 800, TemperatureK: 294})
	assert.Nil(t, s.Current(), "stale snapshot must not be served")

	s.Update(&appmsg.WeatherInfo{Timestamp: time.Now(), ConditionCode: 800, TemperatureK: 294})
	assert.NotNil(t, s.Current())
}
