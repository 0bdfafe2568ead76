package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Outcome string

const (
	OutcomeFulfilled        Outcome = "fulfilled"
	OutcomeAlreadyFulfilled Outcome = "already_fulfilled"
	OutcomeMarkedFailed     Outcome = "marked_failed"
	OutcomeSkipped          Outcome = "skipped"
)

// Confirmation is a verified "payment completed" signal for one checkout session.
type Confirmation struct {
	SessionID   string
	Kind        string
	Metadata    map[string]string
	AmountTotal int64
	Currency    string
}

type Result struct {
	Outcome       Outcome      `json:"outcome"`
	Kind          string       `json:"kind"`
	PurchaseID    snowflake.ID `json:"purchase_id"`
	CreditsMinted int          `json:"credits_minted"`
	GrantID       snowflake.ID `json:"grant_id,omitempty"`
}

type Service interface {
	Fulfill(ctx context.Context, confirmation Confirmation) (*Result, error)
	MarkFailed(ctx context.Context, sessionID string, kind string) (*Result, error)
	Reconcile(ctx context.Context, sessionID string) (*Result, error)
}

var (
	ErrUnknownPurchase     = errors.New("unknown_purchase")
	ErrInvalidConfirmation = errors.New("invalid_confirmation")
	ErrSessionNotPaid      = errors.New("session_not_paid")
)
