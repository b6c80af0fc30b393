package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/taoyao-code/wearable-server/internal/storage"
	"github.com/taoyao-code/wearable-server/internal/storage/models"
)

// Repository 内存版 DeviceRepo，用于测试与无数据库部署。
// WithTx 直接串行执行 fn，锁粒度为整个仓储。
type Repository struct {
	mu      sync.Mutex
	nextID  int64
	devices map[string]*models.Device // phy_id -> device
	apps    map[int64][]models.WatchApp
	sleep   map[int64][]models.SleepRecord
}

func New() *Repository {
	return &Repository{
		nextID:  1,
		devices: make(map[string]*models.Device),
		apps:    make(map[int64][]models.WatchApp),
		sleep:   make(map[int64][]models.SleepRecord),
	}
}

func (r *Repository) WithTx(ctx context.Context, fn func(storage.DeviceRepo) error) error {
	return fn(r)
}

func (r *Repository) ensureLocked(phyID string) *models.Device {
	if d, ok := r.devices[phyID]; ok {
		return d
	}
	now := time.Now()
	d := &models.Device{
		ID:        r.nextID,
		PhyID:     phyID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.nextID++
	r.devices[phyID] = d
	return d
}

func (r *Repository) EnsureDevice(ctx context.Context, phyID string) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.ensureLocked(phyID)
	cp := *d
	return &cp, nil
}

func (r *Repository) TouchDeviceLastSeen(ctx context.Context, phyID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.ensureLocked(phyID)
	ts := at
	d.LastSeenAt = &ts
	d.UpdatedAt = time.Now()
	return nil
}

func (r *Repository) GetDeviceByPhyID(ctx context.Context, phyID string) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[phyID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *Repository) ListDevices(ctx context.Context, limit, offset int) ([]models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]models.Device, 0, len(r.devices))
	for _, d := range r.devices {
		all = append(all, *d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	if offset > 0 {
		if offset >= len(all) {
			return nil, nil
		}
		all = all[offset:]
	}
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *Repository) UpdateDeviceVersion(ctx context.Context, phyID string, firmware, hardware string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.ensureLocked(phyID)
	fw, hw := firmware, hardware
	d.FirmwareVersion = &fw
	d.HardwareModel = &hw
	d.UpdatedAt = time.Now()
	return nil
}

func (r *Repository) UpdateBattery(ctx context.Context, phyID string, level int32, state string, low bool, lastChargeAt *time.Time, chargeCycles *int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.ensureLocked(phyID)
	lv, st := level, state
	d.BatteryLevel = &lv
	d.BatteryState = &st
	d.BatteryLow = low
	if lastChargeAt != nil {
		ts := *lastChargeAt
		d.LastChargeAt = &ts
	}
	if chargeCycles != nil {
		c := *chargeCycles
		d.ChargeCycles = &c
	}
	d.UpdatedAt = time.Now()
	return nil
}

func (r *Repository) ReplaceAppInventory(ctx context.Context, phyID string, apps []models.WatchApp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.ensureLocked(phyID)

	stored := make([]models.WatchApp, len(apps))
	now := time.Now()
	for i, a := range apps {
		a.ID = int64(i + 1)
		a.DeviceID = d.ID
		a.Position = int32(i)
		a.CreatedAt = now
		a.UpdatedAt = now
		stored[i] = a
	}
	r.apps[d.ID] = stored
	return nil
}

func (r *Repository) ListApps(ctx context.Context, phyID string) ([]models.WatchApp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[phyID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := make([]models.WatchApp, len(r.apps[d.ID]))
	copy(out, r.apps[d.ID])
	return out, nil
}

func (r *Repository) AppendSleepRecord(ctx context.Context, phyID string, rec *models.SleepRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.ensureLocked(phyID)
	cp := *rec
	cp.ID = int64(len(r.sleep[d.ID]) + 1)
	cp.DeviceID = d.ID
	cp.CreatedAt = time.Now()
	r.sleep[d.ID] = append(r.sleep[d.ID], cp)
	rec.ID = cp.ID
	rec.DeviceID = d.ID
	return nil
}

func (r *Repository) ListRecentSleepRecords(ctx context.Context, phyID string, limit int) ([]models.SleepRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[phyID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	records := make([]models.SleepRecord, len(r.sleep[d.ID]))
	copy(records, r.sleep[d.ID])
	sort.Slice(records, func(i, j int) bool { return records[i].RecordingBase.After(records[j].RecordingBase) })
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}
