package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/purchase/domain"
	"github.com/smallbiznis/hireboard/pkg/db/pagination"
	"gorm.io/gorm"
)

const purchaseColumns = `id, user_id, external_session_id, kind, pack_id, add_on_id, status,
		        job_post_credits, feature_credits, social_graphic_credits, repost_credits,
		        validity_days, total_amount, currency, metadata, expires_at,
		        created_at, updated_at, completed_at`

const upsellColumns = `id, user_id, job_id, external_session_id, social_push, placement_bump,
		        total_amount, currency, status, created_at, paid_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, purchase *domain.Purchase) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO purchases (`+purchaseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		purchase.ID,
		purchase.UserID,
		purchase.ExternalSessionID,
		purchase.Kind,
		purchase.PackID,
		purchase.AddOnID,
		purchase.Status,
		purchase.JobPostCredits,
		purchase.FeatureCredits,
		purchase.SocialGraphicCredits,
		purchase.RepostCredits,
		purchase.ValidityDays,
		purchase.TotalAmount,
		purchase.Currency,
		purchase.Metadata,
		purchase.ExpiresAt,
		purchase.CreatedAt,
		purchase.UpdatedAt,
		purchase.CompletedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Purchase, error) {
	var item domain.Purchase
	err := tx.WithContext(ctx).Raw(
		`SELECT `+purchaseColumns+`
		 FROM purchases WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindBySessionID(ctx context.Context, tx *gorm.DB, sessionID string) (*domain.Purchase, error) {
	var item domain.Purchase
	err := tx.WithContext(ctx).Raw(
		`SELECT `+purchaseColumns+`
		 FROM purchases WHERE external_session_id = ?`,
		sessionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, userID snowflake.ID, page pagination.Pagination) ([]*domain.Purchase, error) {
	var items []*domain.Purchase
	stmt := tx.WithContext(ctx).
		Model(&domain.Purchase{}).
		Where("user_id = ?", userID)

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
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkCompleted(ctx context.Context, tx *gorm.DB, sessionID string, completedAt time.Time, expiresAt *time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE purchases
		 SET status = ?, completed_at = ?, expires_at = ?, updated_at = ?
		 WHERE external_session_id = ? AND status IN (?, ?)`,
		domain.StatusCompleted,
		completedAt,
		expiresAt,
		completedAt,
		sessionID,
		domain.StatusPending,
		domain.StatusAbandoned,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkFailed(ctx context.Context, tx *gorm.DB, sessionID string, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE purchases
		 SET status = ?, updated_at = ?
		 WHERE external_session_id = ? AND status IN (?, ?)`,
		domain.StatusFailed,
		now,
		sessionID,
		domain.StatusPending,
		domain.StatusAbandoned,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkAbandoned(ctx context.Context, tx *gorm.DB, createdBefore time.Time, limit int, now time.Time) (int64, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE purchases
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND id IN (
			SELECT id FROM purchases
			WHERE status = ? AND created_at < ?
			ORDER BY id
			LIMIT ?
		 )`,
		domain.StatusAbandoned,
		now,
		domain.StatusPending,
		domain.StatusPending,
		createdBefore,
		limit,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) InsertUpsell(ctx context.Context, tx *gorm.DB, upsell *domain.UpsellPurchase) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO upsell_purchases (`+upsellColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		upsell.ID,
		upsell.UserID,
		upsell.JobID,
		upsell.ExternalSessionID,
		upsell.SocialPush,
		upsell.PlacementBump,
		upsell.TotalAmount,
		upsell.Currency,
		upsell.Status,
		upsell.CreatedAt,
		upsell.PaidAt,
	).Error
}

func (r *repo) FindUpsellBySessionID(ctx context.Context, tx *gorm.DB, sessionID string) (*domain.UpsellPurchase, error) {
	var item domain.UpsellPurchase
	err := tx.WithContext(ctx).Raw(
		`SELECT `+upsellColumns+`
		 FROM upsell_purchases WHERE external_session_id = ?`,
		sessionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkUpsellPaid(ctx context.Context, tx *gorm.DB, sessionID string, paidAt time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE upsell_purchases
		 SET status = ?, paid_at = ?
		 WHERE external_session_id = ? AND status = ?`,
		domain.UpsellStatusPaid,
		paidAt,
		sessionID,
		domain.UpsellStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkUpsellFailed(ctx context.Context, tx *gorm.DB, sessionID string) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE upsell_purchases
		 SET status = ?
		 WHERE external_session_id = ? AND status = ?`,
		domain.UpsellStatusFailed,
		sessionID,
		domain.UpsellStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
