package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertGrant reports false when a grant for the purchase already exists.
	InsertGrant(ctx context.Context, db *gorm.DB, grant *Grant) (bool, error)
	FindGrantForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Grant, error)
	FindGrantByPurchase(ctx context.Context, db *gorm.DB, purchaseID snowflake.ID) (*Grant, error)
	ListGrantsByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]*Grant, error)
	// InsertApplication reports false when the grant was already applied to the job.
	InsertApplication(ctx context.Context, db *gorm.DB, app *Application) (bool, error)
	HasApplication(ctx context.Context, db *gorm.DB, grantID, jobID snowflake.ID) (bool, error)
	ListApplications(ctx context.Context, db *gorm.DB, grantIDs []snowflake.ID) ([]*Application, error)
}
