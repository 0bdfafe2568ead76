package domain

import (
	"context"
	"errors"
)

type Service interface {
	Active(ctx context.Context) Catalog
	FindPack(ctx context.Context, id string) (*CreditPack, error)
	FindAddOn(ctx context.Context, id string) (*AddOnDefinition, error)
	FindUpsell(ctx context.Context, flag UpsellFlag) (*UpsellOption, error)
}

var (
	ErrInvalidSelection = errors.New("invalid_selection")
)
