package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
	"github.com/taoyao-code/wearable-server/internal/driverapi"
	"github.com/taoyao-code/wearable-server/internal/metrics"
	"github.com/taoyao-code/wearable-server/internal/outbound"
	"github.com/taoyao-code/wearable-server/internal/protocol/appmsg"
	"github.com/taoyao-code/wearable-server/internal/protocol/datalog"
	"github.com/taoyao-code/wearable-server/internal/protocol/watch"
	"github.com/taoyao-code/wearable-server/internal/session"
	"github.com/taoyao-code/wearable-server/internal/signals"
)

// Router 入站消息路由：接收传输层交来的 (deviceID, kind, payload)，
// 解码为设备事件并交给分发器，必要时生成回执经下行队列发回。
// 同一设备的消息串行处理（设备锁），不同设备并行。
type Router struct {
	sessions *session.Manager
	registry *appmsg.Registry
	tracker  *datalog.Tracker
	sink     driverapi.EventSink
	queue    *outbound.Queue
	signals  signals.Publisher
	metrics  *metrics.AppMetrics
	log      *zap.Logger
}

func NewRouter(
	sessions *session.Manager,
	registry *appmsg.Registry,
	tracker *datalog.Tracker,
	sink driverapi.EventSink,
	queue *outbound.Queue,
	pub signals.Publisher,
	m *metrics.AppMetrics,
	log *zap.Logger,
) *Router {
	return &Router{
		sessions: sessions,
		registry: registry,
		tracker:  tracker,
		sink:     sink,
		queue:    queue,
		signals:  pub,
		metrics:  m,
		log:      log,
	}
}

// HandleFrame 处理一条已定界的入站消息。
// 解码/分发失败吞掉并记日志，绝不让事件循环崩溃；
// 只有传输层应当感知的致命情况才返回错误。
func (r *Router) HandleFrame(ctx context.Context, deviceID coremodel.DeviceID, kind uint16, payload []byte) error {
	if deviceID == "" {
		return errors.New("empty device id")
	}

	if r.sessions != nil {
		lock := r.sessions.DeviceLock(deviceID)
		lock.Lock()
		defer lock.Unlock()
		r.sessions.Touch(deviceID, time.Now())
	}

	if r.metrics != nil {
		r.metrics.MessagesRouted.WithLabelValues(fmt.Sprintf("0x%04x", kind)).Inc()
	}

	switch kind {
	case appmsg.KindAppMessage:
		r.handleAppMessage(ctx, deviceID, payload)
	case datalog.KindDatalog:
		r.handleDatalog(ctx, deviceID, payload)
	default:
		r.handleSystem(ctx, deviceID, kind, payload)
	}
	return nil
}

func (r *Router) handleSystem(ctx context.Context, deviceID coremodel.DeviceID, kind uint16, payload []byte) {
	events, err := watch.Decode(deviceID, kind, payload)
	if err != nil {
		if r.metrics != nil {
			r.metrics.DecodeTotal.WithLabelValues(fmt.Sprintf("0x%04x", kind), "error").Inc()
		}
		if errors.Is(err, watch.ErrUnknownKind) {
			if r.log != nil {
				r.log.Debug("router: unknown message kind ignored",
					zap.String("device_id", string(deviceID)),
					zap.Uint16("kind", kind))
			}
			return
		}
		if r.log != nil {
			r.log.Warn("router: system message decode failed",
				zap.String("device_id", string(deviceID)),
				zap.Uint16("kind", kind),
				zap.Int("payload_len", len(payload)),
				zap.Error(err))
		}
		return
	}

	if r.metrics != nil {
		r.metrics.DecodeTotal.WithLabelValues(fmt.Sprintf("0x%04x", kind), "ok").Inc()
	}
	r.dispatchAll(ctx, events)
}

func (r *Router) handleAppMessage(ctx context.Context, deviceID coremodel.DeviceID, payload []byte) {
	msg, err := appmsg.ParsePush(payload)
	if err != nil {
		if r.log != nil {
			r.log.Warn("router: app message parse failed",
				zap.String("device_id", string(deviceID)),
				zap.Int("payload_len", len(payload)),
				zap.Error(err))
		}
		return
	}

	// 设备侧对此前下行的确认/否认，只记录不回执
	if msg.Command == appmsg.CmdAck || msg.Command == appmsg.CmdNack {
		if r.log != nil {
			r.log.Debug("router: app message reply from device",
				zap.String("device_id", string(deviceID)),
				zap.Uint8("command", msg.Command),
				zap.Uint8("txn", msg.TxnID))
		}
		return
	}

	appID := msg.AppUUID.String()
	codec, registered := r.registry.Lookup(msg.AppUUID)
	if !registered {
		// 未注册应用：透传给宿主，仍然回 ACK 避免设备重发
		if r.metrics != nil {
			r.metrics.AppMessageTotal.WithLabelValues(appID, "forwarded").Inc()
		}
		r.publish(ctx, signals.New(signals.SignalAppMessageReceived, deviceID, map[string]interface{}{
			"app_uuid": appID,
			"pairs":    renderPairs(msg.Pairs),
		}))
		r.enqueue(deviceID, appmsg.KindAppMessage, appmsg.BuildAck(msg.TxnID))
		return
	}

	events := codec.Decode(deviceID, msg.Pairs)
	if r.metrics != nil {
		r.metrics.AppMessageTotal.WithLabelValues(appID, "decoded").Inc()
	}
	r.enqueue(deviceID, appmsg.KindAppMessage, appmsg.BuildAck(msg.TxnID))
	r.dispatchAll(ctx, events)
}

func (r *Router) handleDatalog(ctx context.Context, deviceID coremodel.DeviceID, payload []byte) {
	events, reply, err := r.tracker.HandleMessage(deviceID, payload)
	if err != nil && r.log != nil {
		r.log.Warn("router: datalog message rejected",
			zap.String("device_id", string(deviceID)),
			zap.Int("payload_len", len(payload)),
			zap.Error(err))
	}

	if len(reply) > 0 {
		if r.metrics != nil {
			result := "ack"
			if reply[0] == datalog.CmdNack {
				result = "nack"
			}
			r.metrics.DatalogTotal.WithLabelValues(result).Inc()
		}
		r.enqueue(deviceID, datalog.KindDatalog, reply)
	}

	if r.metrics != nil && r.tracker != nil {
		r.metrics.SessionsOpen.Set(float64(r.tracker.SessionCount()))
	}
	r.dispatchAll(ctx, events)
}

// dispatchAll 把解码出的事件逐条送入分发器。
// SendBytes 事件转下行队列，AppMessage 事件转宿主信号，其余进分发器。
func (r *Router) dispatchAll(ctx context.Context, events []*coremodel.DeviceEvent) {
	for _, ev := range events {
		if ev == nil {
			continue
		}

		switch ev.Type {
		case coremodel.EventSendBytes:
			if ev.SendBytes != nil {
				r.enqueue(ev.DeviceID, ev.SendBytes.Kind, ev.SendBytes.Data)
			}
			continue
		case coremodel.EventAppMessage:
			if ev.AppMessage != nil {
				r.publish(ctx, signals.New(signals.SignalAppMessageReceived, ev.DeviceID, map[string]interface{}{
					"app_uuid": ev.AppMessage.AppUUID.String(),
					"pairs":    renderPairs(ev.AppMessage.Pairs),
				}))
			}
			continue
		}

		err := r.sink.HandleDeviceEvent(ctx, ev)
		if r.metrics != nil {
			result := "ok"
			if err != nil {
				result = "error"
			}
			r.metrics.DispatchTotal.WithLabelValues(string(ev.Type), result).Inc()
		}
		if err != nil && r.log != nil {
			r.log.Error("router: event dispatch failed",
				zap.String("device_id", string(ev.DeviceID)),
				zap.String("type", string(ev.Type)),
				zap.Error(err))
		}
	}
}

func (r *Router) enqueue(deviceID coremodel.DeviceID, kind uint16, payload []byte) {
	if r.queue == nil || len(payload) == 0 {
		return
	}
	err := r.queue.Push(&outbound.Message{
		DeviceID: deviceID,
		Kind:     kind,
		Payload:  payload,
		Priority: outbound.KindPriority(kind),
	})
	if err != nil && r.log != nil {
		r.log.Error("router: outbound enqueue failed",
			zap.String("device_id", string(deviceID)),
			zap.Uint16("kind", kind),
			zap.Error(err))
	}
}

func (r *Router) publish(ctx context.Context, sig *signals.Signal) {
	if r.signals == nil {
		return
	}
	if r.metrics != nil {
		r.metrics.SignalTotal.WithLabelValues(string(sig.Type)).Inc()
	}
	if err := r.signals.Publish(ctx, sig); err != nil && r.log != nil {
		r.log.Warn("router: signal publish failed",
			zap.String("type", string(sig.Type)),
			zap.Error(err))
	}
}

// renderPairs 把键值对转成可 JSON 化的形式，字节数组转 hex
func renderPairs(pairs []coremodel.AppMessagePair) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(pairs))
	for _, p := range pairs {
		v := p.Value
		if b, ok := v.([]byte); ok {
			v = hex.EncodeToString(b)
		}
		out = append(out, map[string]interface{}{
			"key":   p.Key,
			"value": v,
		})
	}
	return out
}
