package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/job/domain"
	"github.com/smallbiznis/hireboard/pkg/db"
	"github.com/smallbiznis/hireboard/pkg/db/pagination"
	"gorm.io/gorm"
)

const jobColumns = `id, owner_id, title, status, source, expires_at, boosted, pinned, social_push,
		        featured, featured_at, repost_count, published_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, job *domain.Job) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO jobs (id, owner_id, title, status, source, expires_at, boosted, pinned, social_push,
		                   featured, featured_at, repost_count, published_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.OwnerID,
		job.Title,
		job.Status,
		job.Source,
		job.ExpiresAt,
		job.Boosted,
		job.Pinned,
		job.SocialPush,
		job.Featured,
		job.FeaturedAt,
		job.RepostCount,
		job.PublishedAt,
		job.CreatedAt,
		job.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Job, error) {
	return r.find(ctx, tx, id, "")
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Job, error) {
	return r.find(ctx, tx, id, db.LockingClause(tx, false))
}

func (r *repo) find(ctx context.Context, tx *gorm.DB, id snowflake.ID, lock string) (*domain.Job, error) {
	var job domain.Job
	err := tx.WithContext(ctx).Raw(
		`SELECT `+jobColumns+`
		 FROM jobs WHERE id = ?`+lock,
		id,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *repo) Repost(ctx context.Context, tx *gorm.DB, id snowflake.ID, expiresAt, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE jobs
		 SET status = ?, expires_at = ?, published_at = ?, repost_count = repost_count + 1, updated_at = ?
		 WHERE id = ?`,
		domain.JobStatusActive,
		expiresAt,
		now,
		now,
		id,
	).Error
}

func (r *repo) SetFlags(ctx context.Context, tx *gorm.DB, id snowflake.ID, flags domain.Flags, now time.Time) error {
	updates := map[string]any{"updated_at": now}
	if flags.Boosted {
		updates["boosted"] = true
	}
	if flags.Pinned {
		updates["pinned"] = true
	}
	if flags.SocialPush {
		updates["social_push"] = true
	}
	if flags.Featured {
		updates["featured"] = true
		updates["featured_at"] = now
	}
	return tx.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, page pagination.Pagination) ([]*domain.Job, error) {
	var jobs []*domain.Job
	stmt := tx.WithContext(ctx).
		Model(&domain.Job{}).
		Where("owner_id = ?", ownerID)

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
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) MarkExpired(ctx context.Context, tx *gorm.DB, now time.Time, limit int) (int64, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE jobs
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND id IN (
			SELECT id FROM jobs
			WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?
			ORDER BY id
			LIMIT ?
		 )`,
		domain.JobStatusExpired,
		now,
		domain.JobStatusActive,
		domain.JobStatusActive,
		now,
		limit,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
