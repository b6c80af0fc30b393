package appmsg

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/google/uuid"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
)

func TestParseDict_Mixed(t *testing.T) {
	// 2个键值对: key=1 cstring "hello", key=2 uint32 42
	hexStr := "02" +
		"01000000" + "01" + "0600" + "68656c6c6f00" +
		"02000000" + "02" + "0400" + "2a000000"
	data, err := hex.DecodeString(hexStr)
	if err != nil {
		t.Fatalf("hex decode error: %v", err)
	}

	pairs, err := ParseDict(data)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}

	if pairs[0].Key != 1 {
		t.Errorf("expected key 1, got %d", pairs[0].Key)
	}
	if s, ok := pairs[0].Value.(string); !ok || s != "hello" {
		t.Errorf("expected string hello, got %v", pairs[0].Value)
	}

	if pairs[1].Key != 2 {
		t.Errorf("expected key 2, got %d", pairs[1].Key)
	}
	if v, ok := pairs[1].Value.(uint32); !ok || v != 42 {
		t.Errorf("expected uint32 42, got %v", pairs[1].Value)
	}
}

func TestParseDict_NarrowInts(t *testing.T) {
	// int8 -1 与 uint16 513 按宽度解读
	hexStr := "02" +
		"05000000" + "03" + "0100" + "ff" +
		"06000000" + "02" + "0200" + "0102"
	data, _ := hex.DecodeString(hexStr)

	pairs, err := ParseDict(data)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if v, ok := pairs[0].Value.(int32); !ok || v != -1 {
		t.Errorf("expected int32 -1, got %v", pairs[0].Value)
	}
	if v, ok := pairs[1].Value.(uint32); !ok || v != 513 {
		t.Errorf("expected uint32 513, got %v", pairs[1].Value)
	}
}

func TestParseDict_Truncated(t *testing.T) {
	// 声称1个元组但数据在值中截断
	hexStr := "01" + "01000000" + "00" + "0800" + "1122"
	data, _ := hex.DecodeString(hexStr)

	if _, err := ParseDict(data); err == nil {
		t.Error("truncated dict should fail")
	}

	if _, err := ParseDict(nil); err == nil {
		t.Error("empty input should fail")
	}
}

func TestBuildDict_RoundTrip(t *testing.T) {
	in := []coremodel.AppMessagePair{
		{Key: 7, Value: int32(-300)},
		{Key: 8, Value: "x"},
		{Key: 9, Value: []byte{0xde, 0xad}},
	}

	data, err := BuildDict(in)
	if err != nil {
		t.Fatalf("build error: %v", err)
	}

	out, err := ParseDict(data)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 pairs, got %d", len(out))
	}
	if v := out[0].Value.(int32); v != -300 {
		t.Errorf("expected -300, got %d", v)
	}
	if v := out[1].Value.(string); v != "x" {
		t.Errorf("expected x, got %q", v)
	}
	if !bytes.Equal(out[2].Value.([]byte), []byte{0xde, 0xad}) {
		t.Errorf("bytearray mismatch: %x", out[2].Value)
	}
}

func TestBuildDict_UnsupportedValue(t *testing.T) {
	_, err := BuildDict([]coremodel.AppMessagePair{{Key: 1, Value: 3.14}})
	if err == nil {
		t.Error("float value should be rejected")
	}
}

func TestParsePush(t *testing.T) {
	id := uuid.MustParse("11223344-5566-7788-99aa-bbccddeeff00")
	data, err := BuildPush(0x2a, id, []coremodel.AppMessagePair{
		{Key: 1, Value: uint32(5)},
	})
	if err != nil {
		t.Fatalf("build error: %v", err)
	}

	msg, err := ParsePush(data)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if msg.Command != CmdPush {
		t.Errorf("expected push command, got 0x%02x", msg.Command)
	}
	if msg.TxnID != 0x2a {
		t.Errorf("expected txn 0x2a, got 0x%02x", msg.TxnID)
	}
	if msg.AppUUID != id {
		t.Errorf("uuid mismatch: %s", msg.AppUUID)
	}
	if len(msg.Pairs) != 1 || msg.Pairs[0].Key != 1 {
		t.Errorf("unexpected pairs: %+v", msg.Pairs)
	}
}

func TestParsePush_AckNack(t *testing.T) {
	msg, err := ParsePush(BuildAck(0x07))
	if err != nil {
		t.Fatalf("ack parse error: %v", err)
	}
	if msg.Command != CmdAck || msg.TxnID != 0x07 {
		t.Errorf("unexpected ack: %+v", msg)
	}

	msg, err = ParsePush(BuildNack(0x09))
	if err != nil {
		t.Fatalf("nack parse error: %v", err)
	}
	if msg.Command != CmdNack || msg.TxnID != 0x09 {
		t.Errorf("unexpected nack: %+v", msg)
	}
}

func TestParsePush_Invalid(t *testing.T) {
	if _, err := ParsePush([]byte{0x01}); err == nil {
		t.Error("short push should fail")
	}
	if _, err := ParsePush([]byte{0x42, 0x00}); err == nil {
		t.Error("unknown command should fail")
	}
}
