package gormrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taoyao-code/wearable-server/internal/storage"
	"github.com/taoyao-code/wearable-server/internal/storage/models"
)

// Repository 基于 GORM 的 DeviceRepo 实现。
// 使用 isTx 标记区分事务上下文，避免嵌套事务重复 Begin/Commit。
type Repository struct {
	db   *gorm.DB
	isTx bool
}

// New 返回一个使用给定 *gorm.DB 的 DeviceRepo 实例。
func New(db *gorm.DB) storage.DeviceRepo {
	return &Repository{db: db}
}

// WithTx 复用现有事务或开启新事务执行 fn。
func (r *Repository) WithTx(ctx context.Context, fn func(storage.DeviceRepo) error) error {
	if r.isTx {
		return fn(r)
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	child := &Repository{db: tx, isTx: true}
	if err := fn(child); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// EnsureDevice 若设备不存在则插入，存在则刷新 updated_at。
func (r *Repository) EnsureDevice(ctx context.Context, phyID string) (*models.Device, error) {
	now := time.Now()
	record := &models.Device{
		PhyID:      phyID,
		LastSeenAt: &now,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "phy_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"updated_at": gorm.Expr("NOW()")}),
		}).
		Create(record).Error
	if err != nil {
		return nil, err
	}

	return r.GetDeviceByPhyID(ctx, phyID)
}

// TouchDeviceLastSeen 刷新设备 last_seen_at（不存在则插入）。
func (r *Repository) TouchDeviceLastSeen(ctx context.Context, phyID string, at time.Time) error {
	ts := at
	record := &models.Device{
		PhyID:      phyID,
		LastSeenAt: &ts,
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "phy_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"last_seen_at": gorm.Expr("excluded.last_seen_at"),
				"updated_at":   gorm.Expr("NOW()"),
			}),
		}).
		Create(record).Error
}

// GetDeviceByPhyID 通过物理 ID 查询设备。
func (r *Repository) GetDeviceByPhyID(ctx context.Context, phyID string) (*models.Device, error) {
	var device models.Device
	err := r.db.WithContext(ctx).Where("phy_id = ?", phyID).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &device, err
}

// ListDevices 分页返回设备列表，按 id 倒序。
func (r *Repository) ListDevices(ctx context.Context, limit, offset int) ([]models.Device, error) {
	var devices []models.Device
	q := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

// UpdateDeviceVersion 写入固件/硬件信息（设备不存在则插入）。
func (r *Repository) UpdateDeviceVersion(ctx context.Context, phyID string, firmware, hardware string) error {
	record := &models.Device{
		PhyID:           phyID,
		FirmwareVersion: &firmware,
		HardwareModel:   &hardware,
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "phy_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"firmware_version": gorm.Expr("excluded.firmware_version"),
				"hardware_model":   gorm.Expr("excluded.hardware_model"),
				"updated_at":       gorm.Expr("NOW()"),
			}),
		}).
		Create(record).Error
}

// UpdateBattery 写入电量快照（设备不存在则插入）。
func (r *Repository) UpdateBattery(ctx context.Context, phyID string, level int32, state string, low bool, lastChargeAt *time.Time, chargeCycles *int32) error {
	record := &models.Device{
		PhyID:        phyID,
		BatteryLevel: &level,
		BatteryState: &state,
		BatteryLow:   low,
		LastChargeAt: lastChargeAt,
		ChargeCycles: chargeCycles,
	}

	assignments := map[string]interface{}{
		"battery_level": gorm.Expr("excluded.battery_level"),
		"battery_state": gorm.Expr("excluded.battery_state"),
		"battery_low":   gorm.Expr("excluded.battery_low"),
		"updated_at":    gorm.Expr("NOW()"),
	}
	if lastChargeAt != nil {
		assignments["last_charge_at"] = gorm.Expr("excluded.last_charge_at")
	}
	if chargeCycles != nil {
		assignments["charge_cycles"] = gorm.Expr("excluded.charge_cycles")
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "phy_id"}},
			DoUpdates: clause.Assignments(assignments),
		}).
		Create(record).Error
}

// ReplaceAppInventory 整表替换设备应用清单（事务内先删后插）。
func (r *Repository) ReplaceAppInventory(ctx context.Context, phyID string, apps []models.WatchApp) error {
	return r.WithTx(ctx, func(repo storage.DeviceRepo) error {
		device, err := repo.EnsureDevice(ctx, phyID)
		if err != nil {
			return err
		}

		tx := repo.(*Repository).db
		if err := tx.WithContext(ctx).
			Where("device_id = ?", device.ID).
			Delete(&models.WatchApp{}).Error; err != nil {
			return err
		}

		if len(apps) == 0 {
			return nil
		}
		for i := range apps {
			apps[i].ID = 0
			apps[i].DeviceID = device.ID
			apps[i].Position = int32(i)
		}
		return tx.WithContext(ctx).Create(&apps).Error
	})
}

// ListApps 返回设备应用清单，按上报顺序。
func (r *Repository) ListApps(ctx context.Context, phyID string) ([]models.WatchApp, error) {
	device, err := r.GetDeviceByPhyID(ctx, phyID)
	if err != nil {
		return nil, err
	}

	var apps []models.WatchApp
	err = r.db.WithContext(ctx).
		Where("device_id = ?", device.ID).
		Order("position ASC").
		Find(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}

// AppendSleepRecord 追加睡眠监测结果。
func (r *Repository) AppendSleepRecord(ctx context.Context, phyID string, rec *models.SleepRecord) error {
	device, err := r.EnsureDevice(ctx, phyID)
	if err != nil {
		return err
	}
	rec.DeviceID = device.ID
	return r.db.WithContext(ctx).Create(rec).Error
}

// ListRecentSleepRecords 返回设备最近的睡眠记录。
func (r *Repository) ListRecentSleepRecords(ctx context.Context, phyID string, limit int) ([]models.SleepRecord, error) {
	device, err := r.GetDeviceByPhyID(ctx, phyID)
	if err != nil {
		return nil, err
	}

	var records []models.SleepRecord
	q := r.db.WithContext(ctx).
		Where("device_id = ?", device.ID).
		Order("recording_base DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
