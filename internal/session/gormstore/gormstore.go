// Package gormstore keeps the session in a SQL table through gorm. With the
// sqlite dialector it is the default on-disk store of laundryctl.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/laundry_pos/internal/models"
)

type Backend struct {
	DB *gorm.DB
}

func New(db *gorm.DB) (*Backend, error) {
	if db == nil {
		return nil, errors.New("gormstore: db is required")
	}
	if err := db.AutoMigrate(&models.SessionEntry{}); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return &Backend{DB: db}, nil
}

func (b *Backend) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	var rows []models.SessionEntry
	if err := b.DB.WithContext(ctx).Where("name IN ?", keys).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Value
	}
	return out, nil
}

func (b *Backend) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	rows := make([]models.SessionEntry, 0, len(values))
	for k, v := range values {
		rows = append(rows, models.SessionEntry{Name: k, Value: v})
	}
	return b.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&rows).Error
	})
}

func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("name IN ?", keys).Delete(&models.SessionEntry{}).Error
	})
}

func (b *Backend) Close() error {
	sqlDB, err := b.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
