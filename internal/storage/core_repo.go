package storage

import (
	"context"
	"time"

	"github.com/taoyao-code/wearable-server/internal/storage/models"
)

// DeviceRepo 面向桥接核心的存储抽象。
// 约束：
// - 禁止上层直接写 SQL，统一通过本接口访问
// - 实现需要提供事务封装 WithTx，保证核心路径原子性
// - 接口必须保持 DB-agnostic（面向模型与基础类型）
type DeviceRepo interface {
	// ---------- 事务 ----------
	// WithTx 在单个事务中执行 fn，fn 内使用 repo 执行的所有写入/读取都在同一事务中。
	// 实现应保证嵌套调用正确复用当前事务。
	WithTx(ctx context.Context, fn func(repo DeviceRepo) error) error

	// ---------- 设备 ----------
	// EnsureDevice 若 phyID 不存在则创建，返回设备记录
	EnsureDevice(ctx context.Context, phyID string) (*models.Device, error)
	// TouchDeviceLastSeen 刷新设备最近上报时间（不存在则创建）
	TouchDeviceLastSeen(ctx context.Context, phyID string, at time.Time) error
	// GetDeviceByPhyID 通过物理 ID 查询设备
	GetDeviceByPhyID(ctx context.Context, phyID string) (*models.Device, error)
	// ListDevices 分页列表（用于管理/调试接口）
	ListDevices(ctx context.Context, limit, offset int) ([]models.Device, error)
	// UpdateDeviceVersion 更新固件/硬件信息
	UpdateDeviceVersion(ctx context.Context, phyID string, firmware, hardware string) error
	// UpdateBattery 更新电量快照，low 表示当前低电量提醒是否置位
	UpdateBattery(ctx context.Context, phyID string, level int32, state string, low bool, lastChargeAt *time.Time, chargeCycles *int32) error

	// ---------- 应用清单 ----------
	// ReplaceAppInventory 用上报的清单整体替换设备应用列表（保持上报顺序）
	ReplaceAppInventory(ctx context.Context, phyID string, apps []models.WatchApp) error
	// ListApps 返回设备应用清单，按上报顺序
	ListApps(ctx context.Context, phyID string) ([]models.WatchApp, error)

	// ---------- 睡眠数据 ----------
	// AppendSleepRecord 追加一条睡眠监测结果
	AppendSleepRecord(ctx context.Context, phyID string, rec *models.SleepRecord) error
	// ListRecentSleepRecords 返回设备最近的睡眠记录
	ListRecentSleepRecords(ctx context.Context, phyID string, limit int) ([]models.SleepRecord, error)
}
