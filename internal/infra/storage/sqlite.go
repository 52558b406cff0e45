package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// cacheEntry is one cached value. Entries are never deleted; writers overwrite.
type cacheEntry struct {
	Key       string `gorm:"column:cache_key;primaryKey"`
	Value     []byte `gorm:"column:value"`
	UpdatedAt time.Time
}

func (cacheEntry) TableName() string {
	return "cache_entries"
}

// SQLiteStore is a persistent key/value cache on a local SQLite file.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Pure Go driver, no cgo
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&cacheEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the value for key, or nil if absent.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var entry cacheEntry
	err := s.db.WithContext(ctx).First(&entry, "cache_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// MGet returns values in the order of keys, nil for absent ones.
func (s *SQLiteStore) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	var entries []cacheEntry
	if err := s.db.WithContext(ctx).Where("cache_key IN ?", keys).Find(&entries).Error; err != nil {
		return nil, err
	}

	byKey := make(map[string][]byte, len(entries))
	for _, e := range entries {
		byKey[e.Key] = e.Value
	}

	result := make([][]byte, len(keys))
	for i, k := range keys {
		result[i] = byKey[k]
	}
	return result, nil
}

// Set upserts key.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	entry := cacheEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&entry).Error
}

// Health pings the underlying connection.
func (s *SQLiteStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
