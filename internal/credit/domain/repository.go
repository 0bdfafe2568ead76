package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/smallbiznis/hireboard/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListUnitsFilter struct {
	UserID     snowflake.ID
	CreditType catalogdomain.CreditType
	State      UnitState
	Now        time.Time
}

type Repository interface {
	InsertBatch(ctx context.Context, db *gorm.DB, units []*CreditUnit) error
	FindNextEligible(ctx context.Context, db *gorm.DB, userID snowflake.ID, creditType catalogdomain.CreditType, now time.Time) (*CreditUnit, error)
	MarkUsed(ctx context.Context, db *gorm.DB, unitID, jobID snowflake.ID, usedAt time.Time) (bool, error)
	CountAvailable(ctx context.Context, db *gorm.DB, userID snowflake.ID, creditType catalogdomain.CreditType, now time.Time) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListUnitsFilter, page pagination.Pagination) ([]*CreditUnit, error)
}
