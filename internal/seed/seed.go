package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/authorization"
	"gorm.io/gorm"
)

// EnsureOperator grants the operator role to userID, promoting an existing
// row if one is present.
func EnsureOperator(db *gorm.DB, userID snowflake.ID, now time.Time) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if userID <= 0 {
		return errors.New("seed operator id must be positive")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Exec(
		`INSERT INTO operator_roles (user_id, role, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET role = excluded.role`,
		userID, authorization.RoleOperator, now.UTC(),
	).Error
}
