package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *Job) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Job, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Job, error)
	Repost(ctx context.Context, db *gorm.DB, id snowflake.ID, expiresAt, now time.Time) error
	SetFlags(ctx context.Context, db *gorm.DB, id snowflake.ID, flags Flags, now time.Time) error
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, page pagination.Pagination) ([]*Job, error)
	// MarkExpired flips up to limit active jobs whose window has closed.
	MarkExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error)
}
