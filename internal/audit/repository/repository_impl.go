package repository

import (
	"context"

	"github.com/smallbiznis/hireboard/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

// List returns entries newest first. Snowflake ids order by creation time,
// so the id alone is the page cursor.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	var logs []*domain.AuditLog
	err := db.WithContext(ctx).
		Scopes(
			equals("action", filter.Action),
			equals("target_type", filter.TargetType),
			equals("target_id", filter.TargetID),
			window(filter),
		).
		Order("id DESC").
		Limit(filter.Limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func equals(column, value string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if value == "" {
			return db
		}
		return db.Where(column+" = ?", value)
	}
}

func window(filter domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if filter.StartAt != nil {
			db = db.Where("created_at >= ?", filter.StartAt.UTC())
		}
		if filter.EndAt != nil {
			db = db.Where("created_at < ?", filter.EndAt.UTC())
		}
		if filter.BeforeID != 0 {
			db = db.Where("id < ?", filter.BeforeID)
		}
		return db
	}
}
