package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
	"github.com/taoyao-code/wearable-server/internal/signals"
	"github.com/taoyao-code/wearable-server/internal/storage"
	"github.com/taoyao-code/wearable-server/internal/storage/models"
)

// IdentityLookup 通知句柄到联系人的反查，由宿主实现
type IdentityLookup interface {
	// Lookup 返回句柄对应的电话号码，未命中时 ok=false
	Lookup(ctx context.Context, handle uint32) (phoneNumber string, ok bool)
}

// ReplySender 出站回复投递，由宿主的电话/短信能力实现
type ReplySender interface {
	SendReply(ctx context.Context, deviceID coremodel.DeviceID, phoneNumber, text string) error
}

// DispatcherConfig 事件分发配置
type DispatcherConfig struct {
	// BatteryThresholdPercent 低电量阈值（百分比）
	BatteryThresholdPercent int32
	// ReplySuffix 追加在回复文本末尾的后缀（为空则不追加）
	ReplySuffix string
}

// Dispatcher 实现 driverapi.EventSink：逐条消费规范化设备事件，
// 更新设备档案并向宿主发布信号。同一设备的事件由上游串行投递，
// 信号发布与回复投递是 fire-and-forget，失败只记日志不回传。
type Dispatcher struct {
	repo     storage.DeviceRepo
	signals  signals.Publisher
	identity IdentityLookup
	replies  ReplySender
	cfg      DispatcherConfig
	log      *zap.Logger
}

func NewDispatcher(repo storage.DeviceRepo, pub signals.Publisher, identity IdentityLookup, replies ReplySender, cfg DispatcherConfig, log *zap.Logger) *Dispatcher {
	if cfg.BatteryThresholdPercent <= 0 {
		cfg.BatteryThresholdPercent = 10
	}
	return &Dispatcher{
		repo:     repo,
		signals:  pub,
		identity: identity,
		replies:  replies,
		cfg:      cfg,
		log:      log,
	}
}

// HandleDeviceEvent 处理一条设备事件。
// 事件类型集合是封闭的：新增类型必须在这里显式接入，
// 走到 default 分支视为编码缺陷。
func (d *Dispatcher) HandleDeviceEvent(ctx context.Context, ev *coremodel.DeviceEvent) error {
	if ev == nil {
		return nil
	}

	switch ev.Type {
	case coremodel.EventVersionInfo:
		return d.handleVersionInfo(ctx, ev)
	case coremodel.EventAppInfo:
		return d.handleAppInfo(ctx, ev)
	case coremodel.EventSleepMonitorResult:
		return d.handleSleepMonitor(ctx, ev)
	case coremodel.EventNotificationControl:
		return d.handleNotificationControl(ctx, ev)
	case coremodel.EventBatteryInfo:
		return d.handleBatteryInfo(ctx, ev)
	case coremodel.EventFindPhone:
		return d.handleFindPhone(ctx, ev)
	case coremodel.EventDisplayMessage:
		return d.handleDisplayMessage(ctx, ev)
	case coremodel.EventSendBytes, coremodel.EventAppMessage:
		// 原始下行与应用消息由路由层处理，这里显式不处理
		if d.log != nil {
			d.log.Debug("dispatcher: event handled upstream",
				zap.String("device_id", string(ev.DeviceID)),
				zap.String("type", string(ev.Type)))
		}
		return nil
	default:
		// 封闭联合之外的类型：新增事件未接入分发器
		if d.log != nil {
			d.log.Error("dispatcher: unhandled event type, this is a bug",
				zap.String("device_id", string(ev.DeviceID)),
				zap.String("type", string(ev.Type)))
		}
		return fmt.Errorf("unhandled device event type %q", ev.Type)
	}
}

func (d *Dispatcher) handleVersionInfo(ctx context.Context, ev *coremodel.DeviceEvent) error {
	payload := ev.VersionInfo
	if payload == nil {
		return nil
	}

	phyID := string(ev.DeviceID)
	if d.repo != nil {
		if err := d.repo.UpdateDeviceVersion(ctx, phyID, payload.FirmwareVersion, payload.HardwareModel); err != nil {
			if d.log != nil {
				d.log.Error("dispatcher: update device version failed",
					zap.String("device_id", phyID),
					zap.Error(err))
			}
			return err
		}
	}

	d.publish(ctx, signals.New(signals.SignalDeviceInfoChanged, ev.DeviceID, map[string]interface{}{
		"firmware_version": payload.FirmwareVersion,
		"hardware_model":   payload.HardwareModel,
	}))
	return nil
}

func (d *Dispatcher) handleAppInfo(ctx context.Context, ev *coremodel.DeviceEvent) error {
	payload := ev.AppInfo
	if payload == nil {
		return nil
	}

	phyID := string(ev.DeviceID)
	if d.repo != nil {
		apps := make([]models.WatchApp, len(payload.Apps))
		for i, a := range payload.Apps {
			apps[i] = models.WatchApp{
				AppUUID: a.UUID.String(),
				Name:    a.Name,
				Creator: a.Creator,
				Kind:    string(a.Kind),
			}
		}
		if err := d.repo.ReplaceAppInventory(ctx, phyID, apps); err != nil {
			if d.log != nil {
				d.log.Error("dispatcher: replace app inventory failed",
					zap.String("device_id", phyID),
					zap.Int("app_count", len(apps)),
					zap.Error(err))
			}
			return err
		}
	}

	entries := make([]map[string]interface{}, len(payload.Apps))
	for i, a := range payload.Apps {
		entries[i] = map[string]interface{}{
			"uuid":    a.UUID.String(),
			"name":    a.Name,
			"creator": a.Creator,
			"kind":    string(a.Kind),
		}
	}
	data := map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	}
	if payload.FreeSlots != nil {
		data["free_slots"] = *payload.FreeSlots
	}
	d.publish(ctx, signals.New(signals.SignalAppListChanged, ev.DeviceID, data))
	return nil
}

func (d *Dispatcher) handleSleepMonitor(ctx context.Context, ev *coremodel.DeviceEvent) error {
	payload := ev.SleepMonitor
	if payload == nil {
		return nil
	}

	phyID := string(ev.DeviceID)
	windowStart := payload.RecordingBase
	windowEnd := windowStart.Add(time.Duration(len(payload.Points)) * time.Minute)

	// 纯闹钟批次没有采样点，只发信号不落库
	if d.repo != nil && len(payload.Points) > 0 {
		points, err := json.Marshal(payload.Points)
		if err != nil {
			points = []byte("[]")
		}
		rec := &models.SleepRecord{
			RecordingBase: windowStart,
			Points:        points,
			PointCount:    int32(len(payload.Points)),
		}
		if err := d.repo.AppendSleepRecord(ctx, phyID, rec); err != nil {
			if d.log != nil {
				d.log.Error("dispatcher: append sleep record failed",
					zap.String("device_id", phyID),
					zap.Error(err))
			}
			return err
		}
	}

	data := map[string]interface{}{
		"window_start":   windowStart.Unix(),
		"window_end":     windowEnd.Unix(),
		"point_count":    len(payload.Points),
		"alarm_gone_off": payload.AlarmGoneOff,
	}
	if payload.SmartAlarmFrom != nil {
		data["smart_alarm_from"] = *payload.SmartAlarmFrom
	}
	if payload.SmartAlarmTo != nil {
		data["smart_alarm_to"] = *payload.SmartAlarmTo
	}
	d.publish(ctx, signals.New(signals.SignalSleepDataReady, ev.DeviceID, data))
	return nil
}

func (d *Dispatcher) handleNotificationControl(ctx context.Context, ev *coremodel.DeviceEvent) error {
	payload := ev.NotificationControl
	if payload == nil {
		return nil
	}

	switch payload.Action {
	case coremodel.ActionReply:
		return d.handleReply(ctx, ev.DeviceID, payload)
	case coremodel.ActionDismiss:
		d.publishHandleSignal(ctx, signals.SignalNotificationDismiss, ev.DeviceID, payload.Handle)
	case coremodel.ActionDismissAll:
		d.publishHandleSignal(ctx, signals.SignalNotificationDismissAll, ev.DeviceID, payload.Handle)
	case coremodel.ActionOpen:
		d.publishHandleSignal(ctx, signals.SignalNotificationOpen, ev.DeviceID, payload.Handle)
	case coremodel.ActionMute:
		d.publishHandleSignal(ctx, signals.SignalNotificationMute, ev.DeviceID, payload.Handle)
	default:
		// 通知动作集合同样封闭，落到这里说明解码层加了新动作
		if d.log != nil {
			d.log.Error("dispatcher: unroutable notification action, this is a bug",
				zap.String("device_id", string(ev.DeviceID)),
				zap.String("action", string(payload.Action)))
		}
		return fmt.Errorf("unroutable notification action %q", payload.Action)
	}
	return nil
}

// handleReply 回复路由：
// 1) 事件自带号码 → 直接投递
// 2) 句柄反查命中 → 按查到的号码投递
// 3) 都没有 → 降级为通用回复信号，交宿主兜底
func (d *Dispatcher) handleReply(ctx context.Context, deviceID coremodel.DeviceID, payload *coremodel.NotificationControlPayload) error {
	text := ""
	if payload.ReplyText != nil {
		text = *payload.ReplyText
	}
	if d.cfg.ReplySuffix != "" {
		text += d.cfg.ReplySuffix
	}

	number := ""
	if payload.PhoneNumber != nil && *payload.PhoneNumber != "" {
		number = *payload.PhoneNumber
	} else if d.identity != nil {
		if n, ok := d.identity.Lookup(ctx, payload.Handle); ok {
			number = n
		}
	}

	if number == "" {
		d.publish(ctx, signals.New(signals.SignalNotificationReply, deviceID, map[string]interface{}{
			"handle": payload.Handle,
			"text":   text,
		}))
		return nil
	}

	if d.replies == nil {
		if d.log != nil {
			d.log.Warn("dispatcher: reply sender not configured, dropping reply",
				zap.String("device_id", string(deviceID)),
				zap.Uint32("handle", payload.Handle))
		}
		d.publish(ctx, signals.New(signals.SignalReplyFailed, deviceID, map[string]interface{}{
			"handle": payload.Handle,
			"reason": "no_sender",
		}))
		return nil
	}

	if err := d.replies.SendReply(ctx, deviceID, number, text); err != nil {
		// 投递失败吞掉错误，重试由宿主自己决定
		if d.log != nil {
			d.log.Warn("dispatcher: reply delivery failed",
				zap.String("device_id", string(deviceID)),
				zap.Uint32("handle", payload.Handle),
				zap.Error(err))
		}
		d.publish(ctx, signals.New(signals.SignalReplyFailed, deviceID, map[string]interface{}{
			"handle": payload.Handle,
			"reason": "send_error",
		}))
		return nil
	}

	d.publish(ctx, signals.New(signals.SignalReplyDelivered, deviceID, map[string]interface{}{
		"handle": payload.Handle,
	}))
	return nil
}

func (d *Dispatcher) handleBatteryInfo(ctx context.Context, ev *coremodel.DeviceEvent) error {
	payload := ev.BatteryInfo
	if payload == nil {
		return nil
	}

	// 充电中的设备即使低于阈值也不提醒
	low := payload.Level <= d.cfg.BatteryThresholdPercent &&
		(payload.State == coremodel.BatteryStateLow || payload.State == coremodel.BatteryStateNormal)

	phyID := string(ev.DeviceID)
	if d.repo != nil {
		if err := d.repo.UpdateBattery(ctx, phyID, payload.Level, string(payload.State), low, payload.LastChargeAt, payload.ChargeCycles); err != nil {
			if d.log != nil {
				d.log.Error("dispatcher: update battery failed",
					zap.String("device_id", phyID),
					zap.Error(err))
			}
			return err
		}
	}

	if low {
		d.publish(ctx, signals.New(signals.SignalBatteryLowRaised, ev.DeviceID, map[string]interface{}{
			"level":     payload.Level,
			"state":     string(payload.State),
			"threshold": d.cfg.BatteryThresholdPercent,
		}))
	} else {
		d.publish(ctx, signals.New(signals.SignalBatteryLowCleared, ev.DeviceID, map[string]interface{}{
			"level": payload.Level,
			"state": string(payload.State),
		}))
	}

	// 阈值判定结果如何都要广播设备信息变化
	d.publish(ctx, signals.New(signals.SignalDeviceInfoChanged, ev.DeviceID, map[string]interface{}{
		"battery_level": payload.Level,
		"battery_state": string(payload.State),
	}))
	return nil
}

func (d *Dispatcher) handleFindPhone(ctx context.Context, ev *coremodel.DeviceEvent) error {
	payload := ev.FindPhone
	if payload == nil {
		return nil
	}

	if payload.Phase == coremodel.FindPhoneStart {
		d.publish(ctx, signals.New(signals.SignalFindPhoneStart, ev.DeviceID, nil))
	} else {
		d.publish(ctx, signals.New(signals.SignalPhoneFound, ev.DeviceID, nil))
	}
	return nil
}

func (d *Dispatcher) handleDisplayMessage(ctx context.Context, ev *coremodel.DeviceEvent) error {
	payload := ev.DisplayMessage
	if payload == nil {
		return nil
	}

	data := map[string]interface{}{
		"text":     payload.Text,
		"severity": payload.Severity,
	}
	if payload.DurationMs != nil {
		data["duration_ms"] = *payload.DurationMs
	}
	d.publish(ctx, signals.New(signals.SignalDisplayMessage, ev.DeviceID, data))
	return nil
}

func (d *Dispatcher) publishHandleSignal(ctx context.Context, t signals.Type, deviceID coremodel.DeviceID, handle uint32) {
	d.publish(ctx, signals.New(t, deviceID, map[string]interface{}{
		"handle": handle,
	}))
}

// publish 发布信号，失败只记日志
func (d *Dispatcher) publish(ctx context.Context, sig *signals.Signal) {
	if d.signals == nil {
		return
	}
	if err := d.signals.Publish(ctx, sig); err != nil && d.log != nil {
		d.log.Warn("dispatcher: signal publish failed",
			zap.String("type", string(sig.Type)),
			zap.String("device_id", sig.DeviceID),
			zap.Error(err))
	}
}
