package outbound

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taoyao-code/wearable-server/internal/protocol/appmsg"
	"github.com/taoyao-code/wearable-server/internal/protocol/datalog"
	"github.com/taoyao-code/wearable-server/internal/protocol/watch"
)

func TestKindPriority(t *testing.T) {
	tests := []struct {
		name     string
		kind     uint16
		expected int
	}{
		{
			name:     "数据日志回执=紧急优先级",
			kind:     datalog.KindDatalog,
			expected: PriorityEmergency,
		},
		{
			name:     "通知操作=高优先级",
			kind:     watch.KindNotificationControl,
			expected: PriorityHigh,
		},
		{
			name:     "找手机应答=高优先级",
			kind:     watch.KindFindPhone,
			expected: PriorityHigh,
		},
		{
			name:     "应用消息=普通优先级",
			kind:     appmsg.KindAppMessage,
			expected: PriorityNormal,
		},
		{
			name:     "清单同步=后台优先级",
			kind:     watch.KindAppInfo,
			expected: PriorityBackground,
		},
		{
			name:     "未知消息类=普通优先级",
			kind:     0x9999,
			expected: PriorityNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			priority := KindPriority(tt.kind)
			assert.Equal(t, tt.expected, priority,
				"消息类 0x%04X 的优先级应该是 %d，实际是 %d",
				tt.kind, tt.expected, priority)
		})
	}
}

func TestPriorityValues(t *testing.T) {
	// 确保优先级数值是递增的（数值越小=优先级越高）
	assert.Less(t, PriorityEmergency, PriorityHigh, "紧急 < 高")
	assert.Less(t, PriorityHigh, PriorityNormal, "高 < 普通")
	assert.Less(t, PriorityNormal, PriorityLow, "普通 < 低")
	assert.Less(t, PriorityLow, PriorityBackground, "低 < 后台")
}
