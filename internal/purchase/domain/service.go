package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/smallbiznis/hireboard/pkg/db/pagination"
)

type CreateCheckoutRequest struct {
	UserID     snowflake.ID `json:"-"`
	PackID     string       `json:"pack_id"`
	AddOnID    string       `json:"add_on_id"`
	SuccessURL string       `json:"success_url"`
	CancelURL  string       `json:"cancel_url"`
}

type CreateUpsellCheckoutRequest struct {
	UserID        snowflake.ID `json:"-"`
	JobID         snowflake.ID `json:"job_id"`
	SocialPush    bool         `json:"social_push"`
	PlacementBump bool         `json:"placement_bump"`
	SuccessURL    string       `json:"success_url"`
	CancelURL     string       `json:"cancel_url"`
}

type CheckoutResponse struct {
	PurchaseID  snowflake.ID `json:"purchase_id"`
	Kind        Kind         `json:"kind"`
	SessionID   string       `json:"session_id"`
	RedirectURL string       `json:"redirect_url"`
}

type ListPurchasesRequest struct {
	UserID    snowflake.ID
	PageToken string
	PageSize  int
}

type ListPurchasesResponse struct {
	pagination.PageInfo
	Purchases []Purchase `json:"purchases"`
}

type Service interface {
	CreateCheckout(ctx context.Context, req CreateCheckoutRequest) (*CheckoutResponse, error)
	CreateUpsellCheckout(ctx context.Context, req CreateUpsellCheckoutRequest) (*CheckoutResponse, error)
	Get(ctx context.Context, userID, purchaseID snowflake.ID) (*Purchase, error)
	List(ctx context.Context, req ListPurchasesRequest) (ListPurchasesResponse, error)
}

var (
	ErrInvalidSelection     = catalogdomain.ErrInvalidSelection
	ErrSubscriptionRequired = errors.New("subscription_required")
	ErrPurchaseNotFound     = errors.New("purchase_not_found")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidRedirect      = errors.New("invalid_redirect_url")
	ErrRateLimited          = errors.New("rate_limited")
)
