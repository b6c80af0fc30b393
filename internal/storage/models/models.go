package models

import (
	"time"
)

// 注意：
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt
// - battery_state 存字符串枚举（unknown/low/normal/charging），与核心模型一致

// Device 映射 devices 表
type Device struct {
	// 主键
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 物理设备唯一标识（蓝牙地址或序列号）
	PhyID string `gorm:"column:phy_id;type:text;not null;uniqueIndex"`
	// 固件/硬件信息，可空
	FirmwareVersion *string `gorm:"column:firmware_version;type:text"`
	HardwareModel   *string `gorm:"column:hardware_model;type:text"`
	// 电量快照
	BatteryLevel *int32     `gorm:"column:battery_level"`
	BatteryState *string    `gorm:"column:battery_state;type:text"`
	BatteryLow   bool       `gorm:"column:battery_low;not null;default:false"`
	LastChargeAt *time.Time `gorm:"column:last_charge_at"`
	ChargeCycles *int32     `gorm:"column:charge_cycles"`
	// 最近一次收到消息
	LastSeenAt *time.Time `gorm:"column:last_seen_at"`
	// 审计字段
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Device) TableName() string { return "devices" }

// WatchApp 映射 watch_apps 表（设备上报的应用清单，整表随上报替换）
type WatchApp struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	DeviceID int64  `gorm:"column:device_id;not null;uniqueIndex:uniq_watchapp_device_uuid,priority:1"`
	AppUUID  string `gorm:"column:app_uuid;type:text;not null;uniqueIndex:uniq_watchapp_device_uuid,priority:2"`
	Name     string `gorm:"column:name;type:text;not null"`
	Creator  string `gorm:"column:creator;type:text"`
	// 应用类别（app/watchface/activity_tracker/system/unknown）
	Kind string `gorm:"column:kind;type:text;not null"`
	// 清单内位置，保持上报顺序
	Position  int32     `gorm:"column:position;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (WatchApp) TableName() string { return "watch_apps" }

// SleepRecord 映射 sleep_records 表（一次睡眠监测会话的结果）
type SleepRecord struct {
	ID       int64 `gorm:"column:id;primaryKey;autoIncrement"`
	DeviceID int64 `gorm:"column:device_id;not null;index:idx_sleep_device_time,priority:1"`
	// 采样基准时刻（第一条逐分钟数据对应的时间）
	RecordingBase time.Time `gorm:"column:recording_base;not null;index:idx_sleep_device_time,priority:2,sort:desc"`
	// 逐分钟动作强度，JSON 数组编码
	Points []byte `gorm:"column:points;type:jsonb"`
	// 点数冗余字段，便于查询
	PointCount int32     `gorm:"column:point_count;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (SleepRecord) TableName() string { return "sleep_records" }
