package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
)

// SummaryRequest bounds the report by creation time. Nil bounds are open.
type SummaryRequest struct {
	From *time.Time
	To   *time.Time
}

type CreditLine struct {
	CreditType catalogdomain.CreditType `json:"credit_type"`
	Issued     int64                    `json:"issued"`
	Used       int64                    `json:"used"`
	Expired    int64                    `json:"expired"`
	Available  int64                    `json:"available"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type RevenueLine struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
}

type Summary struct {
	From         *time.Time    `json:"from,omitempty"`
	To           *time.Time    `json:"to,omitempty"`
	UserID       *snowflake.ID `json:"user_id,omitempty"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Credits      []CreditLine  `json:"credits"`
	Purchases    []StatusCount `json:"purchases"`
	Upsells      []StatusCount `json:"upsells"`
	Grants       int64         `json:"grants"`
	ActiveGrants int64         `json:"active_grants"`
	Applications int64         `json:"applications"`
	Revenue      []RevenueLine `json:"revenue"`
}

// Service derives read-only ledger aggregates from the purchase, credit and
// add-on tables.
type Service interface {
	Summary(ctx context.Context, req SummaryRequest) (*Summary, error)
	UserLedger(ctx context.Context, userID snowflake.ID) (*Summary, error)
}

var (
	ErrInvalidRange = errors.New("invalid_range")
	ErrInvalidUser  = errors.New("invalid_user")
)
