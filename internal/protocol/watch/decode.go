package watch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
)

var (
	ErrShort       = errors.New("watch message too short")
	ErrBadPayload  = errors.New("watch message payload invalid")
	ErrUnknownKind = errors.New("watch message kind unknown")
)

// Decode 把一条系统消息解码为规范化设备事件。
// 所有多字节数值大端编码。格式错误返回 error，调用方记录后继续处理循环。
func Decode(deviceID coremodel.DeviceID, kind uint16, payload []byte) ([]*coremodel.DeviceEvent, error) {
	now := time.Now()
	switch kind {
	case KindVersionInfo:
		return decodeVersionInfo(deviceID, payload, now)
	case KindBatteryInfo:
		return decodeBatteryInfo(deviceID, payload, now)
	case KindAppInfo:
		return decodeAppInfo(deviceID, payload, now)
	case KindNotificationControl:
		return decodeNotificationControl(deviceID, payload, now)
	case KindFindPhone:
		return decodeFindPhone(deviceID, payload, now)
	case KindDisplayMessage:
		return decodeDisplayMessage(deviceID, payload, now)
	default:
		return nil, fmt.Errorf("%w: 0x%04x", ErrUnknownKind, kind)
	}
}

// decodeVersionInfo 布局: fwLen u8 + fw, hwLen u8 + hw
func decodeVersionInfo(deviceID coremodel.DeviceID, payload []byte, now time.Time) ([]*coremodel.DeviceEvent, error) {
	fw, rest, err := readString8(payload)
	if err != nil {
		return nil, fmt.Errorf("version info firmware: %w", err)
	}
	hw, _, err := readString8(rest)
	if err != nil {
		return nil, fmt.Errorf("version info hardware: %w", err)
	}

	return []*coremodel.DeviceEvent{{
		Type:       coremodel.EventVersionInfo,
		DeviceID:   deviceID,
		OccurredAt: now,
		VersionInfo: &coremodel.VersionInfoPayload{
			DeviceID:        deviceID,
			FirmwareVersion: fw,
			HardwareModel:   hw,
		},
	}}, nil
}

// decodeBatteryInfo 布局: level u8, state u8, flags u8；
// flags bit0 携带最近充电时间(u32 unix)，bit1 携带循环次数(u16)。
func decodeBatteryInfo(deviceID coremodel.DeviceID, payload []byte, now time.Time) ([]*coremodel.DeviceEvent, error) {
	if len(payload) < 3 {
		return nil, fmt.Errorf("battery info: %w", ErrShort)
	}
	level := int32(payload[0])
	if level > 100 {
		return nil, fmt.Errorf("battery info: %w: level %d", ErrBadPayload, level)
	}

	var state coremodel.BatteryState
	switch payload[1] {
	case batteryLow:
		state = coremodel.BatteryStateLow
	case batteryNormal:
		state = coremodel.BatteryStateNormal
	case batteryCharging:
		state = coremodel.BatteryStateCharging
	default:
		state = coremodel.BatteryStateUnknown
	}

	flags := payload[2]
	pos := 3
	p := &coremodel.BatteryInfoPayload{DeviceID: deviceID, Level: level, State: state}

	if flags&0x01 != 0 {
		if len(payload) < pos+4 {
			return nil, fmt.Errorf("battery info last charge: %w", ErrShort)
		}
		ts := time.Unix(int64(binary.BigEndian.Uint32(payload[pos:pos+4])), 0).UTC()
		p.LastChargeAt = &ts
		pos += 4
	}
	if flags&0x02 != 0 {
		if len(payload) < pos+2 {
			return nil, fmt.Errorf("battery info cycles: %w", ErrShort)
		}
		cycles := int32(binary.BigEndian.Uint16(payload[pos : pos+2]))
		p.ChargeCycles = &cycles
	}

	return []*coremodel.DeviceEvent{{
		Type:        coremodel.EventBatteryInfo,
		DeviceID:    deviceID,
		OccurredAt:  now,
		BatteryInfo: p,
	}}, nil
}

// decodeAppInfo 布局: freeSlots u8, count u8, 每项: uuid 16B, kind u8,
// nameLen u8 + name, creatorLen u8 + creator。顺序即设备槽位顺序。
func decodeAppInfo(deviceID coremodel.DeviceID, payload []byte, now time.Time) ([]*coremodel.DeviceEvent, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("app info: %w", ErrShort)
	}
	freeSlots := int32(payload[0])
	count := int(payload[1])
	rest := payload[2:]

	apps := make([]coremodel.AppEntry, 0, count)
	for i := 0; i < count; i++ {
		if len(rest) < 17 {
			return nil, fmt.Errorf("app info entry %d: %w", i, ErrShort)
		}
		id, err := uuid.FromBytes(rest[:16])
		if err != nil {
			return nil, fmt.Errorf("app info entry %d: %w: %v", i, ErrBadPayload, err)
		}
		kind := decodeAppKind(rest[16])
		rest = rest[17:]

		var name, creator string
		name, rest, err = readString8(rest)
		if err != nil {
			return nil, fmt.Errorf("app info entry %d name: %w", i, err)
		}
		creator, rest, err = readString8(rest)
		if err != nil {
			return nil, fmt.Errorf("app info entry %d creator: %w", i, err)
		}

		apps = append(apps, coremodel.AppEntry{UUID: id, Name: name, Creator: creator, Kind: kind})
	}

	return []*coremodel.DeviceEvent{{
		Type:       coremodel.EventAppInfo,
		DeviceID:   deviceID,
		OccurredAt: now,
		AppInfo: &coremodel.AppInfoPayload{
			DeviceID:  deviceID,
			Apps:      apps,
			FreeSlots: &freeSlots,
		},
	}}, nil
}

func decodeAppKind(b uint8) coremodel.AppKind {
	switch b {
	case appKindGeneric:
		return coremodel.AppKindGeneric
	case appKindWatchface:
		return coremodel.AppKindWatchface
	case appKindActivityTracker:
		return coremodel.AppKindActivityTracker
	case appKindSystem:
		return coremodel.AppKindSystem
	case appKindSystemWatchface:
		return coremodel.AppKindSystemWatchface
	default:
		return coremodel.AppKindUnknown
	}
}

// decodeNotificationControl 布局: action u8, handle u32；
// Reply 追加 phoneLen u8 + phone（0 表示未携带）、textLen u16 + text。
func decodeNotificationControl(deviceID coremodel.DeviceID, payload []byte, now time.Time) ([]*coremodel.DeviceEvent, error) {
	if len(payload) < 5 {
		return nil, fmt.Errorf("notification control: %w", ErrShort)
	}

	var action coremodel.NotificationAction
	switch payload[0] {
	case actionDismiss:
		action = coremodel.ActionDismiss
	case actionDismissAll:
		action = coremodel.ActionDismissAll
	case actionOpen:
		action = coremodel.ActionOpen
	case actionMute:
		action = coremodel.ActionMute
	case actionReply:
		action = coremodel.ActionReply
	default:
		return nil, fmt.Errorf("notification control: %w: action 0x%02x", ErrBadPayload, payload[0])
	}

	p := &coremodel.NotificationControlPayload{
		DeviceID: deviceID,
		Handle:   binary.BigEndian.Uint32(payload[1:5]),
		Action:   action,
	}

	if action == coremodel.ActionReply {
		rest := payload[5:]
		phone, rest, err := readString8(rest)
		if err != nil {
			return nil, fmt.Errorf("notification reply phone: %w", err)
		}
		if phone != "" {
			p.PhoneNumber = &phone
		}

		text, _, err := readString16(rest)
		if err != nil {
			return nil, fmt.Errorf("notification reply text: %w", err)
		}
		p.ReplyText = &text
	}

	return []*coremodel.DeviceEvent{{
		Type:                coremodel.EventNotificationControl,
		DeviceID:            deviceID,
		OccurredAt:          now,
		NotificationControl: p,
	}}, nil
}

// decodeFindPhone 布局: phase u8（1=开始，0=结束）
func decodeFindPhone(deviceID coremodel.DeviceID, payload []byte, now time.Time) ([]*coremodel.DeviceEvent, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("find phone: %w", ErrShort)
	}

	phase := coremodel.FindPhoneStop
	if payload[0] == 0x01 {
		phase = coremodel.FindPhoneStart
	}

	return []*coremodel.DeviceEvent{{
		Type:       coremodel.EventFindPhone,
		DeviceID:   deviceID,
		OccurredAt: now,
		FindPhone: &coremodel.FindPhonePayload{
			DeviceID: deviceID,
			Phase:    phase,
		},
	}}, nil
}

// decodeDisplayMessage 布局: severity u8, durationMs u16（0=未指定）, textLen u16 + text
func decodeDisplayMessage(deviceID coremodel.DeviceID, payload []byte, now time.Time) ([]*coremodel.DeviceEvent, error) {
	if len(payload) < 3 {
		return nil, fmt.Errorf("display message: %w", ErrShort)
	}

	severity := "info"
	switch payload[0] {
	case 0x01:
		severity = "warning"
	case 0x02:
		severity = "error"
	}

	p := &coremodel.DisplayMessagePayload{DeviceID: deviceID, Severity: severity}
	if dur := binary.BigEndian.Uint16(payload[1:3]); dur > 0 {
		ms := int32(dur)
		p.DurationMs = &ms
	}

	text, _, err := readString16(payload[3:])
	if err != nil {
		return nil, fmt.Errorf("display message text: %w", err)
	}
	p.Text = text

	return []*coremodel.DeviceEvent{{
		Type:           coremodel.EventDisplayMessage,
		DeviceID:       deviceID,
		OccurredAt:     now,
		DisplayMessage: p,
	}}, nil
}

func readString8(data []byte) (string, []byte, error) {
	if len(data) < 1 {
		return "", nil, ErrShort
	}
	n := int(data[0])
	if len(data) < 1+n {
		return "", nil, ErrShort
	}
	return string(data[1 : 1+n]), data[1+n:], nil
}

func readString16(data []byte) (string, []byte, error) {
	if len(data) < 2 {
		return "", nil, ErrShort
	}
	n := int(binary.BigEndian.Uint16(data[:2]))
	if len(data) < 2+n {
		return "", nil, ErrShort
	}
	return string(data[2 : 2+n]), data[2+n:], nil
}
