package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/domain/alarm"
)

// errUnsupportedDriver is returned by OpenSQL for drivers other than sqlite and postgres.
var errUnsupportedDriver = errors.New("unsupported SQL driver")

// alarmEntry is one alarm of one device; Position keeps insertion order.
type alarmEntry struct {
	ID       uint   `gorm:"primaryKey"`
	DeviceID string `gorm:"size:64;index;not null"`
	Position int    `gorm:"not null"`
	Date     string `gorm:"size:10;not null"`
	Time     string `gorm:"size:5;not null"`
}

// TableName pins the table name independently of the struct name.
func (alarmEntry) TableName() string { return "alarm_entries" }

// triggerValue is the trigger of one device.
type triggerValue struct {
	DeviceID      string `gorm:"primaryKey;size:64"`
	Value         bool   `gorm:"not null"`
	ChangedAt     time.Time
	ChangedByHost string `gorm:"size:255"`
	ChangedByUser string `gorm:"size:255"`
}

// TableName pins the table name independently of the struct name.
func (triggerValue) TableName() string { return "trigger_values" }

// SQLRepository persists the snapshot in a relational database through GORM.
type SQLRepository struct {
	db *gorm.DB
}

// OpenSQL connects to the database of the given driver and migrates the schema.
func OpenSQL(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch driver {
	case config.BackendSQLite:
		dialector = sqlite.Open(dsn)
	case config.BackendPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err = db.AutoMigrate(&alarmEntry{}, &triggerValue{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	return db, nil
}

// NewSQLRepository wraps an opened database.
func NewSQLRepository(db *gorm.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Load reads every alarm and trigger. An empty database yields ErrNotFound.
func (r *SQLRepository) Load(ctx context.Context) (*Snapshot, error) {
	var (
		entries  []alarmEntry
		triggers []triggerValue
	)

	db := r.db.WithContext(ctx)

	if err := db.Order("device_id, position").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("load alarms: %w", err)
	}

	if err := db.Find(&triggers).Error; err != nil {
		return nil, fmt.Errorf("load triggers: %w", err)
	}

	if len(entries) == 0 && len(triggers) == 0 {
		return nil, ErrNotFound
	}

	result := New()

	for _, entry := range entries {
		result.Alarms[entry.DeviceID] = append(result.Alarms[entry.DeviceID], alarm.Alarm{
			Date: entry.Date,
			Time: entry.Time,
		})
	}

	for _, trigger := range triggers {
		state := &alarm.TriggerState{
			UpdatedAt: trigger.ChangedAt,
			Value:     trigger.Value,
		}

		if trigger.ChangedByHost != "" || trigger.ChangedByUser != "" {
			state.LastActor = &alarm.Actor{
				Hostname: trigger.ChangedByHost,
				Username: trigger.ChangedByUser,
			}
		}

		result.Triggers[trigger.DeviceID] = state
	}

	return result, nil
}

// Save replaces the stored snapshot in a single transaction.
func (r *SQLRepository) Save(ctx context.Context, snapshot *Snapshot) error {
	if snapshot == nil {
		snapshot = New()
	}

	var (
		entries  []alarmEntry
		triggers []triggerValue
	)

	for id, list := range snapshot.Alarms {
		for position, entry := range list {
			entries = append(entries, alarmEntry{
				DeviceID: id,
				Position: position,
				Date:     entry.Date,
				Time:     entry.Time,
			})
		}
	}

	for id, state := range snapshot.Triggers {
		if state == nil {
			continue
		}

		trigger := triggerValue{
			DeviceID:  id,
			Value:     state.Value,
			ChangedAt: state.UpdatedAt,
		}

		if state.LastActor != nil {
			trigger.ChangedByHost = state.LastActor.Hostname
			trigger.ChangedByUser = state.LastActor.Username
		}

		triggers = append(triggers, trigger)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&alarmEntry{}).Error; err != nil {
			return fmt.Errorf("clear alarms: %w", err)
		}

		if err := tx.Where("1 = 1").Delete(&triggerValue{}).Error; err != nil {
			return fmt.Errorf("clear triggers: %w", err)
		}

		if len(entries) > 0 {
			if err := tx.CreateInBatches(entries, 100).Error; err != nil {
				return fmt.Errorf("store alarms: %w", err)
			}
		}

		if len(triggers) > 0 {
			if err := tx.Create(&triggers).Error; err != nil {
				return fmt.Errorf("store triggers: %w", err)
			}
		}

		return nil
	})
}

// Close releases the underlying connection pool.
func (r *SQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}

	return sqlDB.Close()
}
