package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"gorm.io/gorm"
)

type CreateGrantRequest struct {
	UserID     snowflake.ID
	AddOnID    string
	PurchaseID snowflake.ID
	Effects    []catalogdomain.Effect
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

type Service interface {
	CreateGrant(ctx context.Context, tx *gorm.DB, req CreateGrantRequest) (*Grant, error)
	ListGrants(ctx context.Context, userID snowflake.ID) ([]GrantView, error)
}

var (
	ErrGrantNotFound       = errors.New("grant_not_found")
	ErrGrantInactive       = errors.New("grant_inactive")
	ErrGrantExpired        = errors.New("grant_expired")
	ErrAddonAlreadyApplied = errors.New("addon_already_applied")
	ErrInvalidGrant        = errors.New("invalid_grant")
)
