package appmsg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
)

var (
	ErrShort      = errors.New("appmsg data too short")
	ErrBadDict    = errors.New("invalid appmsg dictionary")
	ErrBadValue   = errors.New("unsupported appmsg value type")
	ErrBadCommand = errors.New("unknown appmsg command")
)

// KindAppMessage 应用消息所在的消息类别
const KindAppMessage uint16 = 0x0030

// 应用消息命令字节
const (
	CmdPush byte = 0x01
	CmdAck  byte = 0xff
	CmdNack byte = 0x7f
)

// 字典元组的值类型编码
const (
	typeByteArray byte = 0x00
	typeCString   byte = 0x01
	typeUint      byte = 0x02
	typeInt       byte = 0x03
)

// Message 解析后的应用消息。
// Push 消息携带目标应用 UUID 与键值对；ACK/NACK 仅携带事务号。
type Message struct {
	Command byte
	TxnID   byte
	AppUUID uuid.UUID
	Pairs   []coremodel.AppMessagePair
}

// ParseDict 解析键值字典：count u8 + N × (key u32 LE, type u8, len u16 LE, value)。
// 整数值按宽度 1/2/4 解读并统一放大为 int32/uint32。
func ParseDict(data []byte) ([]coremodel.AppMessagePair, error) {
	if len(data) < 1 {
		return nil, ErrShort
	}
	count := int(data[0])
	pos := 1

	pairs := make([]coremodel.AppMessagePair, 0, count)
	for i := 0; i < count; i++ {
		if pos+7 > len(data) {
			return nil, fmt.Errorf("%w: tuple %d header", ErrShort, i)
		}
		key := binary.LittleEndian.Uint32(data[pos : pos+4])
		vt := data[pos+4]
		vlen := int(binary.LittleEndian.Uint16(data[pos+5 : pos+7]))
		pos += 7

		if pos+vlen > len(data) {
			return nil, fmt.Errorf("%w: tuple %d value", ErrShort, i)
		}
		raw := data[pos : pos+vlen]
		pos += vlen

		value, err := decodeValue(vt, raw)
		if err != nil {
			return nil, fmt.Errorf("tuple %d key %d: %w", i, key, err)
		}
		pairs = append(pairs, coremodel.AppMessagePair{Key: key, Value: value})
	}
	return pairs, nil
}

func decodeValue(vt byte, raw []byte) (interface{}, error) {
	switch vt {
	case typeByteArray:
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case typeCString:
		// 去除结尾 NUL
		end := len(raw)
		for end > 0 && raw[end-1] == 0 {
			end--
		}
		return string(raw[:end]), nil
	case typeUint:
		switch len(raw) {
		case 1:
			return uint32(raw[0]), nil
		case 2:
			return uint32(binary.LittleEndian.Uint16(raw)), nil
		case 4:
			return binary.LittleEndian.Uint32(raw), nil
		}
		return nil, fmt.Errorf("%w: uint width %d", ErrBadDict, len(raw))
	case typeInt:
		switch len(raw) {
		case 1:
			return int32(int8(raw[0])), nil
		case 2:
			return int32(int16(binary.LittleEndian.Uint16(raw))), nil
		case 4:
			return int32(binary.LittleEndian.Uint32(raw)), nil
		}
		return nil, fmt.Errorf("%w: int width %d", ErrBadDict, len(raw))
	default:
		return nil, fmt.Errorf("%w: type 0x%02x", ErrBadDict, vt)
	}
}

// BuildDict 编码键值字典。值类型必须是 int32 / uint32 / uint8 / string / []byte。
func BuildDict(pairs []coremodel.AppMessagePair) ([]byte, error) {
	if len(pairs) > math.MaxUint8 {
		return nil, fmt.Errorf("%w: %d pairs", ErrBadDict, len(pairs))
	}

	out := []byte{byte(len(pairs))}
	for _, p := range pairs {
		var vt byte
		var raw []byte

		switch v := p.Value.(type) {
		case []byte:
			vt, raw = typeByteArray, v
		case string:
			vt = typeCString
			raw = append([]byte(v), 0)
		case uint8:
			vt, raw = typeUint, []byte{v}
		case uint16:
			vt = typeUint
			raw = binary.LittleEndian.AppendUint16(nil, v)
		case uint32:
			vt = typeUint
			raw = binary.LittleEndian.AppendUint32(nil, v)
		case int32:
			vt = typeInt
			raw = binary.LittleEndian.AppendUint32(nil, uint32(v))
		case int:
			vt = typeInt
			raw = binary.LittleEndian.AppendUint32(nil, uint32(int32(v)))
		default:
			return nil, fmt.Errorf("%w: key %d (%T)", ErrBadValue, p.Key, p.Value)
		}

		if len(raw) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: key %d value too long", ErrBadDict, p.Key)
		}

		out = binary.LittleEndian.AppendUint32(out, p.Key)
		out = append(out, vt)
		out = binary.LittleEndian.AppendUint16(out, uint16(len(raw)))
		out = append(out, raw...)
	}
	return out, nil
}

// ParsePush 解析应用消息载荷。
// Push: cmd u8, txn u8, uuid 16B, dict。ACK/NACK: cmd u8, txn u8。
func ParsePush(payload []byte) (*Message, error) {
	if len(payload) < 2 {
		return nil, ErrShort
	}

	msg := &Message{Command: payload[0], TxnID: payload[1]}
	switch msg.Command {
	case CmdAck, CmdNack:
		return msg, nil
	case CmdPush:
		if len(payload) < 18 {
			return nil, fmt.Errorf("%w: push header", ErrShort)
		}
		id, err := uuid.FromBytes(payload[2:18])
		if err != nil {
			return nil, fmt.Errorf("%w: uuid: %v", ErrBadDict, err)
		}
		msg.AppUUID = id

		pairs, err := ParseDict(payload[18:])
		if err != nil {
			return nil, err
		}
		msg.Pairs = pairs
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrBadCommand, msg.Command)
	}
}

// BuildPush 编码一条 Push 应用消息
func BuildPush(txn byte, appUUID uuid.UUID, pairs []coremodel.AppMessagePair) ([]byte, error) {
	dict, err := BuildDict(pairs)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 18+len(dict))
	out = append(out, CmdPush, txn)
	out = append(out, appUUID[:]...)
	out = append(out, dict...)
	return out, nil
}

// BuildAck 编码收妥应答
func BuildAck(txn byte) []byte { return []byte{CmdAck, txn} }

// BuildNack 编码拒收应答
func BuildNack(txn byte) []byte { return []byte{CmdNack, txn} }
