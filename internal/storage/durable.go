package storage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// StoredValue is a keyed value in the durable SQLite tier.
type StoredValue struct {
	ID        uint       `gorm:"primaryKey"`
	Key       string     `gorm:"uniqueIndex;not null"`
	Value     string     `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time  `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time  `gorm:"not null;autoUpdateTime:milli"`
}

// DurableTier persists values in SQLite through the shared DB manager.
type DurableTier struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
}

// NewDurableTier creates the SQLite-backed tier.
func NewDurableTier(dbManager cartridge.DBManager, logger *slog.Logger) *DurableTier {
	return &DurableTier{dbManager: dbManager, logger: logger}
}

// Name implements Tier.
func (t *DurableTier) Name() string { return "durable" }

// Set upserts the value under key.
func (t *DurableTier) Set(key string, data []byte, expiresAt *time.Time) error {
	db := t.dbManager.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	err := sqlite.PerformWrite(t.logger, db, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		return tx.Exec(`
            INSERT INTO stored_values (key, value, expires_at, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?)
            ON CONFLICT(key) DO UPDATE SET
                value = excluded.value,
                expires_at = excluded.expires_at,
                updated_at = excluded.updated_at
        `, key, string(data), expiresAt, now, now).Error
	})
	if err != nil {
		return fmt.Errorf("failed to upsert stored value %s: %w", key, err)
	}
	return nil
}

// Get returns the value under key, or found=false on a miss.
func (t *DurableTier) Get(key string) ([]byte, bool, error) {
	db := t.dbManager.GetConnection()
	if db == nil {
		return nil, false, gorm.ErrInvalidDB
	}

	var value StoredValue
	if err := db.Where("key = ?", key).First(&value).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("unexpected error querying stored value: %w", err)
	}
	return []byte(value.Value), true, nil
}

// Remove deletes the value under key.
func (t *DurableTier) Remove(key string) error {
	db := t.dbManager.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	return sqlite.PerformWrite(t.logger, db, func(tx *gorm.DB) error {
		return tx.Where("key = ?", key).Delete(&StoredValue{}).Error
	})
}

// PruneExpired removes every entry whose expiry has passed. Called
// opportunistically at startup.
func (t *DurableTier) PruneExpired() error {
	db := t.dbManager.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	return sqlite.PerformWrite(t.logger, db, func(tx *gorm.DB) error {
		return tx.Where("expires_at IS NOT NULL AND expires_at < ?", time.Now().UTC()).
			Delete(&StoredValue{}).Error
	})
}
