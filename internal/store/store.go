// Package store implements the Persistence Adapter: CRUD over Devices,
// DeviceData points, SystemLogs, SceneRules and EmailAlertRules. The
// teacher repo keeps everything in memory; this is grounded instead on
// the gorm + sqlite/postgres combination used by a same-domain Go
// device-management backend in the retrieval pack (see DESIGN.md).
package store

import (
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	glebarezsqlite "github.com/glebarez/sqlite"

	"github.com/homehub/core/internal/model"
)

// Store wraps a gorm.DB bound to the five core entities.
type Store struct {
	db *gorm.DB
}

// Open opens a store using driver ("sqlite" or "postgres") and dsn,
// running AutoMigrate for the five entities.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = glebarezsqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, errors.New("store: unknown driver " + driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&model.Device{},
		&model.DeviceData{},
		&model.SystemLog{},
		&model.SceneRule{},
		&model.EmailAlertRule{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory sqlite store, used by tests throughout
// the module.
func OpenMemory() (*Store, error) {
	// Each call gets its own named in-memory database, so stores opened
	// by different tests never see each other's rows.
	n := atomic.AddUint64(&memorySeq, 1)
	return Open("sqlite", "file:homehub-mem-"+strconv.FormatUint(n, 10)+"?mode=memory&cache=shared")
}

var memorySeq uint64

func (s *Store) DB() *gorm.DB { return s.db }

// --- Device ---

func (s *Store) GetDevice(id uint) (*model.Device, error) {
	var d model.Device
	if err := s.db.First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) ListDevices() ([]model.Device, error) {
	var ds []model.Device
	if err := s.db.Order("id").Find(&ds).Error; err != nil {
		return nil, err
	}
	return ds, nil
}

// ListVisibleDevices returns the devices visible to viewerID: the
// viewer's own devices, devices marked public, or — for admins —
// everything. Grounded on mqtt_gateway/views.py::_visible_devices_qs.
func (s *Store) ListVisibleDevices(viewerID uint, isAdmin bool) ([]model.Device, error) {
	var ds []model.Device
	q := s.db.Order("id")
	if !isAdmin {
		q = q.Where("owner_id = ? OR is_public = ?", viewerID, true)
	}
	if err := q.Find(&ds).Error; err != nil {
		return nil, err
	}
	return ds, nil
}

// DeviceVisibilitySignature returns a cheap change-detection signature
// (count + max(updated_at)) over the visible device set, used by the
// Realtime Fan-out to decide whether to re-emit the device list.
func (s *Store) DeviceVisibilitySignature(viewerID uint, isAdmin bool) (int64, time.Time, error) {
	var row struct {
		Count   int64
		MaxTime *time.Time
	}
	q := s.db.Model(&model.Device{}).Select("count(*) as count, max(updated_at) as max_time")
	if !isAdmin {
		q = q.Where("owner_id = ? OR is_public = ?", viewerID, true)
	}
	if err := q.Scan(&row).Error; err != nil {
		return 0, time.Time{}, err
	}
	var max time.Time
	if row.MaxTime != nil {
		max = *row.MaxTime
	}
	return row.Count, max, nil
}

// SaveDevice upserts a device, advancing UpdatedAt monotonically per
// the Device.updated_at invariant (§3).
func (s *Store) SaveDevice(d *model.Device) error {
	switch d.Type {
	case model.DeviceTempHumi, model.DeviceLight, model.DevicePressure, model.DeviceLampSwitch,
		model.DeviceACSwitch, model.DevicePIR, model.DeviceFanSwitch, model.DeviceSmoke:
	default:
		return errors.New("store: unknown device type " + string(d.Type))
	}
	d.UpdatedAt = time.Now().UTC()
	return s.db.Save(d).Error
}

// MergeDeviceState applies a key-level overwrite of patch into the
// device's current_state, flips is_online if online is non-nil, and
// persists, returning the updated device.
func (s *Store) MergeDeviceState(id uint, patch model.State, online *bool) (*model.Device, error) {
	d, err := s.GetDevice(id)
	if err != nil {
		return nil, err
	}
	if d.CurrentState == nil {
		d.CurrentState = model.State{}
	}
	d.CurrentState = d.CurrentState.Merge(patch)
	if online != nil {
		d.IsOnline = *online
	}
	if err := s.SaveDevice(d); err != nil {
		return nil, err
	}
	return d, nil
}

// --- DeviceData ---

func (s *Store) AppendDeviceData(dd *model.DeviceData) error {
	return s.db.Create(dd).Error
}

// DeviceHistory returns history points for device id within [start, end]
// ordered ascending by timestamp.
func (s *Store) DeviceHistory(deviceID uint, start, end time.Time) ([]model.DeviceData, error) {
	var out []model.DeviceData
	err := s.db.Where("device_id = ? AND timestamp >= ? AND timestamp <= ?", deviceID, start, end).
		Order("timestamp asc").
		Find(&out).Error
	return out, err
}

// PreBaseline returns the most recent history row strictly before ts,
// or nil if none exists.
func (s *Store) PreBaseline(deviceID uint, ts time.Time) (*model.DeviceData, error) {
	var dd model.DeviceData
	err := s.db.Where("device_id = ? AND timestamp < ?", deviceID, ts).
		Order("timestamp desc").
		Limit(1).
		First(&dd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dd, nil
}

// --- SystemLog ---

func (s *Store) AppendLog(l *model.SystemLog) error {
	l.CreatedAt = time.Now().UTC()
	return s.db.Create(l).Error
}

// LatestLogID returns the id of the most recent SystemLog visible to
// viewerID (0 if none exist yet) — the Realtime Fan-out's init cursor,
// distinct from LogsSince's page-ordered id range.
func (s *Store) LatestLogID(viewerID uint, isAdmin bool) (uint, error) {
	var l model.SystemLog
	q := s.db.Order("id desc").Limit(1)
	if !isAdmin {
		q = q.Where("user_id = ? OR user_id IS NULL", viewerID)
	}
	err := q.First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return l.ID, nil
}

// LogsSince returns SystemLogs with id > afterID, ascending, capped at
// limit rows — the Realtime Fan-out's resumable tail query.
func (s *Store) LogsSince(afterID uint, limit int, viewerID uint, isAdmin bool) ([]model.SystemLog, error) {
	var out []model.SystemLog
	q := s.db.Where("id > ?", afterID).Order("id asc").Limit(limit)
	if !isAdmin {
		q = q.Where("user_id = ? OR user_id IS NULL", viewerID)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// --- SceneRule ---

func (s *Store) GetSceneRule(id uint) (*model.SceneRule, error) {
	var r model.SceneRule
	if err := s.db.First(&r, id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// RulesForTriggerDevice returns enabled rules whose trigger_device is
// deviceID — the Scene Rule Engine's selection predicate's device half.
func (s *Store) RulesForTriggerDevice(deviceID uint) ([]model.SceneRule, error) {
	var rs []model.SceneRule
	err := s.db.Where("trigger_device_id = ? AND enabled = ?", deviceID, true).Find(&rs).Error
	return rs, err
}

// OtherRulesForDevice returns all rules (enabled or not) on the same
// trigger device, excluding excludeID, for conflict validation.
func (s *Store) OtherRulesForDevice(deviceID uint, excludeID uint) ([]model.SceneRule, error) {
	var rs []model.SceneRule
	q := s.db.Where("trigger_device_id = ?", deviceID)
	if excludeID != 0 {
		q = q.Where("id != ?", excludeID)
	}
	err := q.Find(&rs).Error
	return rs, err
}

func (s *Store) SaveSceneRule(r *model.SceneRule) error {
	r.UpdatedAt = time.Now().UTC()
	return s.db.Save(r).Error
}

// --- EmailAlertRule ---

func (s *Store) RulesForTrigger(deviceID uint, field string) ([]model.EmailAlertRule, error) {
	var rs []model.EmailAlertRule
	err := s.db.Where("trigger_device_id = ? AND trigger_field = ? AND enabled = ?", deviceID, field, true).Find(&rs).Error
	return rs, err
}

func (s *Store) SaveEmailAlertRule(r *model.EmailAlertRule) error {
	r.UpdatedAt = time.Now().UTC()
	return s.db.Save(r).Error
}
