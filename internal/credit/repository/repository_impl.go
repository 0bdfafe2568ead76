package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/smallbiznis/hireboard/internal/credit/domain"
	"github.com/smallbiznis/hireboard/pkg/db"
	"github.com/smallbiznis/hireboard/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBatch(ctx context.Context, tx *gorm.DB, units []*domain.CreditUnit) error {
	if len(units) == 0 {
		return nil
	}
	return tx.WithContext(ctx).CreateInBatches(units, 100).Error
}

// FindNextEligible returns the earliest-expiring spendable unit. On postgres
// rows held by a concurrent consumer are skipped rather than waited on.
func (r *repo) FindNextEligible(ctx context.Context, tx *gorm.DB, userID snowflake.ID, creditType catalogdomain.CreditType, now time.Time) (*domain.CreditUnit, error) {
	var unit domain.CreditUnit
	err := tx.WithContext(ctx).Raw(
		`SELECT id, user_id, credit_type, purchase_id, used, used_against_job_id, used_at, issued_at, expires_at
		 FROM credit_units
		 WHERE user_id = ? AND credit_type = ? AND used = ? AND expires_at > ?
		 ORDER BY expires_at ASC, id ASC
		 LIMIT 1`+db.LockingClause(tx, true),
		userID,
		creditType,
		false,
		now,
	).Scan(&unit).Error
	if err != nil {
		return nil, err
	}
	if unit.ID == 0 {
		return nil, nil
	}
	return &unit, nil
}

// MarkUsed flips the used flag only if it is still false. The boolean reports
// whether this caller won the unit.
func (r *repo) MarkUsed(ctx context.Context, tx *gorm.DB, unitID, jobID snowflake.ID, usedAt time.Time) (bool, error) {
	var against any
	if jobID != 0 {
		against = jobID
	}
	result := tx.WithContext(ctx).Exec(
		`UPDATE credit_units
		 SET used = ?, used_against_job_id = ?, used_at = ?
		 WHERE id = ? AND used = ?`,
		true,
		against,
		usedAt,
		unitID,
		false,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) CountAvailable(ctx context.Context, tx *gorm.DB, userID snowflake.ID, creditType catalogdomain.CreditType, now time.Time) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM credit_units
		 WHERE user_id = ? AND credit_type = ? AND used = ? AND expires_at > ?`,
		userID,
		creditType,
		false,
		now,
	).Scan(&count).Error
	return count, err
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter domain.ListUnitsFilter, page pagination.Pagination) ([]*domain.CreditUnit, error) {
	var units []*domain.CreditUnit
	stmt := tx.WithContext(ctx).
		Model(&domain.CreditUnit{}).
		Where("user_id = ?", filter.UserID)
	if filter.CreditType != "" {
		stmt = stmt.Where("credit_type = ?", filter.CreditType)
	}
	switch filter.State {
	case domain.UnitStateAvailable:
		stmt = stmt.Where("used = ? AND expires_at > ?", false, filter.Now)
	case domain.UnitStateUsed:
		stmt = stmt.Where("used = ?", true)
	case domain.UnitStateExpired:
		stmt = stmt.Where("used = ? AND expires_at <= ?", false, filter.Now)
	}

	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, err
	}
	if cursor != nil && cursor.ID != "" {
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("id < ?", id)
	}

	err = stmt.
		Order("id desc").
		Limit(pagination.NormalizePageSize(page.PageSize) + 1).
		Find(&units).Error
	if err != nil {
		return nil, err
	}
	return units, nil
}
