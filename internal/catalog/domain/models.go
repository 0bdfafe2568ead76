package domain

import "time"

type CreditType string

const (
	CreditTypeJobPost       CreditType = "job_post"
	CreditTypeFeature       CreditType = "feature"
	CreditTypeSocialGraphic CreditType = "social_graphic"
	CreditTypeRepost        CreditType = "repost"
)

// CreditTypes lists every credit type in display order.
var CreditTypes = []CreditType{
	CreditTypeJobPost,
	CreditTypeFeature,
	CreditTypeSocialGraphic,
	CreditTypeRepost,
}

func (t CreditType) Valid() bool {
	switch t {
	case CreditTypeJobPost, CreditTypeFeature, CreditTypeSocialGraphic, CreditTypeRepost:
		return true
	}
	return false
}

type Effect string

const (
	EffectBoost      Effect = "boost"
	EffectPin        Effect = "pin"
	EffectSocialPush Effect = "social_push"
	EffectFeature    Effect = "feature"
)

func (e Effect) Valid() bool {
	switch e {
	case EffectBoost, EffectPin, EffectSocialPush, EffectFeature:
		return true
	}
	return false
}

type UpsellFlag string

const (
	UpsellSocialPush    UpsellFlag = "social_push"
	UpsellPlacementBump UpsellFlag = "placement_bump"
)

type CreditPack struct {
	ID                   string             `json:"id"`
	Slug                 string             `json:"slug"`
	Name                 string             `json:"name"`
	Credits              map[CreditType]int `json:"credits"`
	Price                int64              `json:"price"`
	ExpirationDays       int                `json:"expiration_days"`
	GatewayPriceID       string             `json:"-"`
	RequiresSubscription bool               `json:"requires_subscription"`
	Active               bool               `json:"active"`
}

// Count returns the number of credits of the given type the pack grants.
func (p CreditPack) Count(t CreditType) int {
	return p.Credits[t]
}

// TotalCredits sums the units one purchase of the pack mints.
func (p CreditPack) TotalCredits() int {
	total := 0
	for _, n := range p.Credits {
		if n > 0 {
			total += n
		}
	}
	return total
}

type AddOnDefinition struct {
	ID             string   `json:"id"`
	Slug           string   `json:"slug"`
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Price          int64    `json:"price"`
	Effects        []Effect `json:"effects"`
	ValidityDays   int      `json:"validity_days"`
	GatewayPriceID string   `json:"-"`
	Active         bool     `json:"active"`
}

func (a AddOnDefinition) HasEffect(effect Effect) bool {
	for _, e := range a.Effects {
		if e == effect {
			return true
		}
	}
	return false
}

type UpsellOption struct {
	Flag           UpsellFlag `json:"flag"`
	Price          int64      `json:"price"`
	GatewayPriceID string     `json:"-"`
}

type Catalog struct {
	Packs   []CreditPack      `json:"packs"`
	AddOns  []AddOnDefinition `json:"addons"`
	Upsells []UpsellOption    `json:"upsells"`
}

// WindowEnd returns the expiry instant for a window of days starting at from.
func WindowEnd(from time.Time, days int) time.Time {
	return from.AddDate(0, 0, days)
}
