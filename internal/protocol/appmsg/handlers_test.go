package appmsg

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
	"github.com/taoyao-code/wearable-server/internal/manifest"
)

type fixedWeather struct{ w *WeatherInfo }

func (f *fixedWeather) Current() *WeatherInfo { return f.w }

func obsidianResolver() manifest.Resolver {
	return manifest.NewStaticResolver(map[uuid.UUID]map[string]uint32{
		UUIDObsidian: {
			obsidianKeyWeatherRequest: 0,
			obsidianKeyWeatherIcon:    1,
			obsidianKeyWeatherTemp:    2,
		},
	})
}

func TestObsidianCodec_WeatherRequest(t *testing.T) {
	weather := &fixedWeather{w: &WeatherInfo{
		Timestamp:     time.Now(),
		ConditionCode: 800,
		TemperatureK:  294,
	}}
	c := NewObsidianCodec(obsidianResolver(), weather, zap.NewNop())

	events := c.Decode("watch-1", []coremodel.AppMessagePair{
		{Key: 0, Value: uint32(1)},
	})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	ev := events[0]
	if ev.Type != coremodel.EventSendBytes {
		t.Fatalf("expected SendBytes event, got %s", ev.Type)
	}
	if ev.SendBytes == nil || ev.SendBytes.Kind != KindAppMessage {
		t.Fatalf("unexpected payload: %+v", ev.SendBytes)
	}

	msg, err := ParsePush(ev.SendBytes.Data)
	if err != nil {
		t.Fatalf("reply parse error: %v", err)
	}
	if msg.AppUUID != UUIDObsidian {
		t.Errorf("reply uuid mismatch: %s", msg.AppUUID)
	}

	var icon string
	var temp int32
	var gotTemp bool
	for _, p := range msg.Pairs {
		switch p.Key {
		case 1:
			icon, _ = p.Value.(string)
		case 2:
			temp, gotTemp = p.Value.(int32)
		}
	}
	// 晴天图标为 a，昼夜只影响大小写
	if strings.ToLower(icon) != "a" {
		t.Errorf("expected clear icon, got %q", icon)
	}
	if !gotTemp || temp != 21 {
		t.Errorf("expected 21C, got %d (present=%v)", temp, gotTemp)
	}
}

func TestObsidianCodec_NonRequestForwarded(t *testing.T) {
	c := NewObsidianCodec(obsidianResolver(), &fixedWeather{}, zap.NewNop())

	events := c.Decode("watch-1", []coremodel.AppMessagePair{
		{Key: 99, Value: uint32(7)},
	})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != coremodel.EventAppMessage {
		t.Fatalf("expected AppMessage event, got %s", events[0].Type)
	}
	if events[0].AppMessage.AppUUID != UUIDObsidian {
		t.Errorf("uuid mismatch")
	}
}

func TestObsidianCodec_DegradedManifest(t *testing.T) {
	// 清单缺失时请求键无法识别，消息按普通应用消息转发
	c := NewObsidianCodec(manifest.NewStaticResolver(nil), &fixedWeather{}, zap.NewNop())

	events := c.Decode("watch-1", []coremodel.AppMessagePair{
		{Key: 0, Value: uint32(1)},
	})
	if len(events) != 1 || events[0].Type != coremodel.EventAppMessage {
		t.Fatalf("degraded codec should forward raw message, got %+v", events)
	}

	// 启动命令不依赖清单，必须仍然可用
	if data := c.EncodeStartCommand(); len(data) == 0 {
		t.Error("start command must not be empty")
	}
}

func TestObsidianCodec_NoWeatherData(t *testing.T) {
	c := NewObsidianCodec(obsidianResolver(), &fixedWeather{w: nil}, zap.NewNop())

	events := c.Decode("watch-1", []coremodel.AppMessagePair{
		{Key: 0, Value: uint32(1)},
	})
	if len(events) != 0 {
		t.Errorf("request without weather data should produce no events, got %d", len(events))
	}
}

func TestHealthifyCodec_WeatherRequest(t *testing.T) {
	resolver := manifest.NewStaticResolver(map[uuid.UUID]map[string]uint32{
		UUIDHealthify: {
			healthifyKeyRequest:     0,
			healthifyKeyTemperature: 1,
			healthifyKeyConditions:  2,
		},
	})
	weather := &fixedWeather{w: &WeatherInfo{ConditionCode: 600, TemperatureK: 263}}
	c := NewHealthifyCodec(resolver, weather, zap.NewNop())

	events := c.Decode("watch-2", []coremodel.AppMessagePair{
		{Key: 0, Value: uint32(1)},
	})
	if len(events) != 1 || events[0].Type != coremodel.EventSendBytes {
		t.Fatalf("expected SendBytes reply, got %+v", events)
	}

	msg, err := ParsePush(events[0].SendBytes.Data)
	if err != nil {
		t.Fatalf("reply parse error: %v", err)
	}
	for _, p := range msg.Pairs {
		if p.Key == 1 {
			if v := p.Value.(int32); v != -10 {
				t.Errorf("expected -10C, got %d", v)
			}
		}
		if p.Key == 2 {
			if s := p.Value.(string); strings.ToLower(s) != "h" {
				t.Errorf("expected snow icon, got %q", s)
			}
		}
	}
}

func TestSquareCodec_TempFormat(t *testing.T) {
	resolver := manifest.NewStaticResolver(map[uuid.UUID]map[string]uint32{
		UUIDSquare: {
			squareKeyWeatherRequest: 0,
			squareKeyWeatherIcon:    1,
			squareKeyWeatherTemp:    2,
		},
	})
	weather := &fixedWeather{w: &WeatherInfo{ConditionCode: 501, TemperatureK: 294}}
	c := NewSquareCodec(resolver, weather, zap.NewNop())

	events := c.Decode("watch-3", []coremodel.AppMessagePair{
		{Key: 0, Value: uint32(1)},
	})
	if len(events) != 1 || events[0].Type != coremodel.EventSendBytes {
		t.Fatalf("expected SendBytes reply, got %+v", events)
	}

	msg, err := ParsePush(events[0].SendBytes.Data)
	if err != nil {
		t.Fatalf("reply parse error: %v", err)
	}
	for _, p := range msg.Pairs {
		if p.Key == 2 {
			if s := p.Value.(string); s != "21°" {
				t.Errorf("expected 21°, got %q", s)
			}
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	c := NewObsidianCodec(obsidianResolver(), &fixedWeather{}, zap.NewNop())
	r.Register(c)

	got, ok := r.Lookup(UUIDObsidian)
	if !ok {
		t.Fatal("registered codec not found")
	}
	if got.AppUUID() != UUIDObsidian {
		t.Errorf("uuid mismatch")
	}

	if _, ok := r.Lookup(uuid.New()); ok {
		t.Error("unknown uuid should not resolve")
	}
	if len(r.Registered()) != 1 {
		t.Errorf("expected 1 registered codec")
	}
}

func TestPairsFromNames_FailClosed(t *testing.T) {
	resolver := obsidianResolver()
	man, err := resolver.Resolve(UUIDObsidian)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}

	pairs, err := PairsFromNames(man, map[string]interface{}{
		obsidianKeyWeatherIcon: "a",
	})
	if err != nil || len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %v (%v)", pairs, err)
	}

	if _, err := PairsFromNames(man, map[string]interface{}{
		obsidianKeyWeatherIcon: "a",
		"NO_SUCH_KEY":          1,
	}); err == nil {
		t.Error("unresolved name must fail the whole encode")
	}
}
