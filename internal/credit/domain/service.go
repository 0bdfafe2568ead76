package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/smallbiznis/hireboard/pkg/db/pagination"
	"gorm.io/gorm"
)

type ConsumeRequest struct {
	UserID     snowflake.ID
	CreditType catalogdomain.CreditType
	JobID      snowflake.ID
}

type MintRequest struct {
	UserID     snowflake.ID
	PurchaseID snowflake.ID
	Counts     map[catalogdomain.CreditType]int
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

type ListUnitsRequest struct {
	UserID     snowflake.ID
	CreditType string
	State      string
	PageToken  string
	PageSize   int
}

type ListUnitsResponse struct {
	pagination.PageInfo
	Units []CreditUnit `json:"units"`
}

type Service interface {
	// TryConsume spends one unit inside the caller's transaction. A rollback
	// of tx returns the unit to the pool.
	TryConsume(ctx context.Context, tx *gorm.DB, req ConsumeRequest) (*CreditUnit, error)
	Consume(ctx context.Context, req ConsumeRequest) (*CreditUnit, error)
	MintForPurchase(ctx context.Context, tx *gorm.DB, req MintRequest) (int, error)
	Balance(ctx context.Context, userID snowflake.ID) ([]BalanceLine, error)
	HasCredit(ctx context.Context, userID snowflake.ID, creditType catalogdomain.CreditType) (bool, error)
	ListUnits(ctx context.Context, req ListUnitsRequest) (ListUnitsResponse, error)
}

var (
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrConsumeContention   = errors.New("consume_contention")
	ErrInvalidCreditType   = errors.New("invalid_credit_type")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidMint         = errors.New("invalid_mint")
	ErrInvalidState        = errors.New("invalid_state")
)
