package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, purchase *Purchase) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Purchase, error)
	FindBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*Purchase, error)
	List(ctx context.Context, db *gorm.DB, userID snowflake.ID, page pagination.Pagination) ([]*Purchase, error)
	// MarkCompleted flips a pending or abandoned purchase to completed and
	// reports whether this caller made the change.
	MarkCompleted(ctx context.Context, db *gorm.DB, sessionID string, completedAt time.Time, expiresAt *time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, sessionID string, now time.Time) (bool, error)
	MarkAbandoned(ctx context.Context, db *gorm.DB, createdBefore time.Time, limit int, now time.Time) (int64, error)

	InsertUpsell(ctx context.Context, db *gorm.DB, upsell *UpsellPurchase) error
	FindUpsellBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*UpsellPurchase, error)
	MarkUpsellPaid(ctx context.Context, db *gorm.DB, sessionID string, paidAt time.Time) (bool, error)
	MarkUpsellFailed(ctx context.Context, db *gorm.DB, sessionID string) (bool, error)
}

// PlanChecker answers whether a user currently holds an employer plan.
type PlanChecker interface {
	HasActivePlan(ctx context.Context, userID snowflake.ID) (bool, error)
}
