package watch

// 系统消息类别。应用消息与 datalog 的类别由各自包定义。
const (
	KindVersionInfo         uint16 = 0x0010
	KindBatteryInfo         uint16 = 0x0011
	KindAppInfo             uint16 = 0x0012
	KindNotificationControl uint16 = 0x0014
	KindFindPhone           uint16 = 0x0015
	KindDisplayMessage      uint16 = 0x0016
)

// 通知操作编码
const (
	actionDismiss    uint8 = 0x01
	actionDismissAll uint8 = 0x02
	actionOpen       uint8 = 0x03
	actionMute       uint8 = 0x04
	actionReply      uint8 = 0x05
)

// 电池状态编码
const (
	batteryUnknown  uint8 = 0x00
	batteryLow      uint8 = 0x01
	batteryNormal   uint8 = 0x02
	batteryCharging uint8 = 0x03
)

// 应用类型编码
const (
	appKindUnknown         uint8 = 0x00
	appKindGeneric         uint8 = 0x01
	appKindWatchface       uint8 = 0x02
	appKindActivityTracker uint8 = 0x03
	appKindSystem          uint8 = 0x04
	appKindSystemWatchface uint8 = 0x05
)
