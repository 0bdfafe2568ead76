package service

import (
	"context"
	"strings"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/smallbiznis/hireboard/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Holder *config.CatalogHolder
	Log    *zap.Logger
}

type Service struct {
	holder *config.CatalogHolder
	log    *zap.Logger
}

func New(p Params) domain.Service {
	return &Service{
		holder: p.Holder,
		log:    p.Log.Named("catalog.service"),
	}
}

// Active returns only purchasable items. The catalog is read on every call so
// hot reloads take effect without a restart.
func (s *Service) Active(ctx context.Context) domain.Catalog {
	all := s.snapshot()
	out := domain.Catalog{Upsells: all.Upsells}
	for _, pack := range all.Packs {
		if pack.Active {
			out.Packs = append(out.Packs, pack)
		}
	}
	for _, addOn := range all.AddOns {
		if addOn.Active {
			out.AddOns = append(out.AddOns, addOn)
		}
	}
	return out
}

func (s *Service) FindPack(ctx context.Context, id string) (*domain.CreditPack, error) {
	key := slug.Make(strings.TrimSpace(id))
	if key == "" {
		return nil, domain.ErrInvalidSelection
	}
	for _, pack := range s.snapshot().Packs {
		if pack.Slug == key && pack.Active {
			return &pack, nil
		}
	}
	return nil, domain.ErrInvalidSelection
}

func (s *Service) FindAddOn(ctx context.Context, id string) (*domain.AddOnDefinition, error) {
	key := slug.Make(strings.TrimSpace(id))
	if key == "" {
		return nil, domain.ErrInvalidSelection
	}
	for _, addOn := range s.snapshot().AddOns {
		if addOn.Slug == key && addOn.Active {
			return &addOn, nil
		}
	}
	return nil, domain.ErrInvalidSelection
}

func (s *Service) FindUpsell(ctx context.Context, flag domain.UpsellFlag) (*domain.UpsellOption, error) {
	for _, upsell := range s.snapshot().Upsells {
		if upsell.Flag == flag {
			return &upsell, nil
		}
	}
	return nil, domain.ErrInvalidSelection
}

func (s *Service) snapshot() domain.Catalog {
	return FromConfig(s.holder.Get())
}

// FromConfig converts the raw catalog file into domain values. Unknown credit
// types and effects are dropped with the rest of the entry kept.
func FromConfig(cfg config.CatalogConfig) domain.Catalog {
	out := domain.Catalog{
		Packs:   make([]domain.CreditPack, 0, len(cfg.Packs)),
		AddOns:  make([]domain.AddOnDefinition, 0, len(cfg.AddOns)),
		Upsells: make([]domain.UpsellOption, 0, len(cfg.Upsells)),
	}
	for _, p := range cfg.Packs {
		credits := make(map[domain.CreditType]int, len(p.Credits))
		for name, count := range p.Credits {
			t := domain.CreditType(strings.ToLower(strings.TrimSpace(name)))
			if !t.Valid() || count <= 0 {
				continue
			}
			credits[t] = count
		}
		out.Packs = append(out.Packs, domain.CreditPack{
			ID:                   strings.TrimSpace(p.ID),
			Slug:                 slug.Make(p.ID),
			Name:                 p.Name,
			Credits:              credits,
			Price:                p.Price,
			ExpirationDays:       p.ExpirationDays,
			GatewayPriceID:       strings.TrimSpace(p.GatewayPriceID),
			RequiresSubscription: p.RequiresSubscription,
			Active:               p.Active,
		})
	}
	for _, a := range cfg.AddOns {
		effects := make([]domain.Effect, 0, len(a.Effects))
		for _, name := range a.Effects {
			effect := domain.Effect(strings.ToLower(strings.TrimSpace(name)))
			if effect.Valid() {
				effects = append(effects, effect)
			}
		}
		out.AddOns = append(out.AddOns, domain.AddOnDefinition{
			ID:             strings.TrimSpace(a.ID),
			Slug:           slug.Make(a.ID),
			Name:           a.Name,
			Category:       a.Category,
			Price:          a.Price,
			Effects:        effects,
			ValidityDays:   a.ValidityDays,
			GatewayPriceID: strings.TrimSpace(a.GatewayPriceID),
			Active:         a.Active,
		})
	}
	for _, u := range cfg.Upsells {
		out.Upsells = append(out.Upsells, domain.UpsellOption{
			Flag:           domain.UpsellFlag(strings.ToLower(strings.TrimSpace(u.Flag))),
			Price:          u.Price,
			GatewayPriceID: strings.TrimSpace(u.GatewayPriceID),
		})
	}
	return out
}
