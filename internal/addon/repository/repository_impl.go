package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/addon/domain"
	"github.com/smallbiznis/hireboard/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertGrant(ctx context.Context, tx *gorm.DB, grant *domain.Grant) (bool, error) {
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "purchase_id"}}, DoNothing: true}).
		Create(grant)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindGrantForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Grant, error) {
	var grant domain.Grant
	err := tx.WithContext(ctx).Raw(
		`SELECT id, user_id, add_on_id, purchase_id, effects, active, created_at, expires_at
		 FROM user_add_on_grants WHERE id = ?`+db.LockingClause(tx, false),
		id,
	).Scan(&grant).Error
	if err != nil {
		return nil, err
	}
	if grant.ID == 0 {
		return nil, nil
	}
	return &grant, nil
}

func (r *repo) FindGrantByPurchase(ctx context.Context, tx *gorm.DB, purchaseID snowflake.ID) (*domain.Grant, error) {
	var grant domain.Grant
	err := tx.WithContext(ctx).Raw(
		`SELECT id, user_id, add_on_id, purchase_id, effects, active, created_at, expires_at
		 FROM user_add_on_grants WHERE purchase_id = ?`,
		purchaseID,
	).Scan(&grant).Error
	if err != nil {
		return nil, err
	}
	if grant.ID == 0 {
		return nil, nil
	}
	return &grant, nil
}

func (r *repo) ListGrantsByUser(ctx context.Context, tx *gorm.DB, userID snowflake.ID) ([]*domain.Grant, error) {
	var grants []*domain.Grant
	err := tx.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("expires_at asc, id asc").
		Find(&grants).Error
	if err != nil {
		return nil, err
	}
	return grants, nil
}

func (r *repo) InsertApplication(ctx context.Context, tx *gorm.DB, app *domain.Application) (bool, error) {
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "grant_id"}, {Name: "job_id"}}, DoNothing: true}).
		Create(app)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) HasApplication(ctx context.Context, tx *gorm.DB, grantID, jobID snowflake.ID) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM add_on_applications WHERE grant_id = ? AND job_id = ?`,
		grantID,
		jobID,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) ListApplications(ctx context.Context, tx *gorm.DB, grantIDs []snowflake.ID) ([]*domain.Application, error) {
	var apps []*domain.Application
	if len(grantIDs) == 0 {
		return apps, nil
	}
	err := tx.WithContext(ctx).
		Where("grant_id IN ?", grantIDs).
		Order("applied_at asc, id asc").
		Find(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}
