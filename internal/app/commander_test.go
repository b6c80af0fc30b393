package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/wearable-server/internal/coremodel"
	"github.com/taoyao-code/wearable-server/internal/manifest"
	"github.com/taoyao-code/wearable-server/internal/outbound"
	"github.com/taoyao-code/wearable-server/internal/protocol/appmsg"
)

var cmdAppUUID = uuid.MustParse("0f14c1b3-6e8a-4f54-91c8-1a2b3c4d5e6f")

func newTestCommander(t *testing.T) (*Commander, *outbound.Queue) {
	t.Helper()
	resolver := manifest.NewStaticResolver(map[uuid.UUID]map[string]uint32{
		cmdAppUUID: {"mode": 1, "interval": 2},
	})
	queue := outbound.NewQueue(16)
	return NewCommander(appmsg.NewRegistry(), resolver, queue, nil), queue
}

func TestCommander_StartApp_Unregistered(t *testing.T) {
	c, queue := newTestCommander(t)

	require.NoError(t, c.StartApp(context.Background(), testDev, cmdAppUUID))

	m, ok := queue.TryPop()
	require.True(t, ok)
	assert.Equal(t, appmsg.KindAppMessage, m.Kind)

	msg, err := appmsg.ParsePush(m.Payload)
	require.NoError(t, err)
	assert.Equal(t, appmsg.CmdPush, msg.Command)
	assert.Equal(t, cmdAppUUID, msg.AppUUID)
	require.Len(t, msg.Pairs, 1)
	assert.Equal(t, uint32(0), msg.Pairs[0].Key)
}

func TestCommander_SendNamedValues_RoundTrip(t *testing.T) {
	c, queue := newTestCommander(t)

	err := c.SendNamedValues(context.Background(), testDev, cmdAppUUID, map[string]interface{}{
		"mode":     uint8(2),
		"interval": int32(60),
	})
	require.NoError(t, err)

	m, ok := queue.TryPop()
	require.True(t, ok)
	msg, err := appmsg.ParsePush(m.Payload)
	require.NoError(t, err)
	require.Len(t, msg.Pairs, 2)

	byKey := map[uint32]interface{}{}
	for _, p := range msg.Pairs {
		byKey[p.Key] = p.Value
	}
	// 窄宽度整数在解码侧拓宽
	assert.Equal(t, uint32(2), byKey[1])
	assert.Equal(t, int32(60), byKey[2])
}

func TestCommander_SendNamedValues_UnknownName_FailsClosed(t *testing.T) {
	c, queue := newTestCommander(t)

	err := c.SendNamedValues(context.Background(), testDev, cmdAppUUID, map[string]interface{}{
		"mode":    uint8(1),
		"no_such": uint8(9),
	})
	assert.ErrorIs(t, err, appmsg.ErrKeyUnresolved)
	// 编码失败什么都不发
	assert.Zero(t, queue.Len())
}

func TestCommander_SendNamedValues_UnknownApp(t *testing.T) {
	c, queue := newTestCommander(t)

	other := uuid.MustParse("55555555-5555-5555-5555-555555555555")
	err := c.SendNamedValues(context.Background(), testDev, other, map[string]interface{}{"mode": uint8(1)})
	assert.Error(t, err)
	assert.Zero(t, queue.Len())
}

func TestCommander_SendKeyValues_BadValue_FailsClosed(t *testing.T) {
	c, queue := newTestCommander(t)

	err := c.SendKeyValues(context.Background(), testDev, cmdAppUUID, []coremodel.AppMessagePair{
		{Key: 1, Value: 3.14}, // 浮点不在线协议类型集合内
	})
	assert.Error(t, err)
	assert.Zero(t, queue.Len())
}
