package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindCreditPack Kind = "credit_pack"
	KindAddOn      Kind = "add_on"
	KindUpsell     Kind = "upsell"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// Fulfillable reports whether a confirmation may still complete the purchase.
func (s Status) Fulfillable() bool {
	return s == StatusPending || s == StatusAbandoned
}

type UpsellStatus string

const (
	UpsellStatusPending UpsellStatus = "pending"
	UpsellStatusPaid    UpsellStatus = "paid"
	UpsellStatusFailed  UpsellStatus = "failed"
)

type Purchase struct {
	ID                   snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID               snowflake.ID      `json:"user_id" gorm:"not null"`
	ExternalSessionID    string            `json:"external_session_id" gorm:"not null;uniqueIndex"`
	Kind                 Kind              `json:"kind" gorm:"not null"`
	PackID               string            `json:"pack_id,omitempty"`
	AddOnID              string            `json:"add_on_id,omitempty"`
	Status               Status            `json:"status" gorm:"not null"`
	JobPostCredits       int               `json:"job_post_credits"`
	FeatureCredits       int               `json:"feature_credits"`
	SocialGraphicCredits int               `json:"social_graphic_credits"`
	RepostCredits        int               `json:"repost_credits"`
	ValidityDays         int               `json:"validity_days"`
	TotalAmount          int64             `json:"total_amount"`
	Currency             string            `json:"currency"`
	Metadata             datatypes.JSONMap `json:"metadata,omitempty"`
	ExpiresAt            *time.Time        `json:"expires_at,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
}

func (Purchase) TableName() string { return "purchases" }

// Counts returns the recorded credit counts keyed by type, omitting zeros.
func (p Purchase) Counts() map[catalogdomain.CreditType]int {
	counts := map[catalogdomain.CreditType]int{}
	for creditType, n := range map[catalogdomain.CreditType]int{
		catalogdomain.CreditTypeJobPost:       p.JobPostCredits,
		catalogdomain.CreditTypeFeature:       p.FeatureCredits,
		catalogdomain.CreditTypeSocialGraphic: p.SocialGraphicCredits,
		catalogdomain.CreditTypeRepost:        p.RepostCredits,
	} {
		if n > 0 {
			counts[creditType] = n
		}
	}
	return counts
}

// SetCounts records the per-type credit counts a pack grants.
func (p *Purchase) SetCounts(pack catalogdomain.CreditPack) {
	p.JobPostCredits = pack.Count(catalogdomain.CreditTypeJobPost)
	p.FeatureCredits = pack.Count(catalogdomain.CreditTypeFeature)
	p.SocialGraphicCredits = pack.Count(catalogdomain.CreditTypeSocialGraphic)
	p.RepostCredits = pack.Count(catalogdomain.CreditTypeRepost)
}

// MetadataEffects holds the add-on effects captured at checkout time, so a
// later catalog edit does not change what the buyer paid for.
const MetadataEffects = "effects"

func (p Purchase) Effects() []catalogdomain.Effect {
	raw, ok := p.Metadata[MetadataEffects]
	if !ok {
		return nil
	}
	var effects []catalogdomain.Effect
	switch values := raw.(type) {
	case []any:
		for _, v := range values {
			if s, ok := v.(string); ok && catalogdomain.Effect(s).Valid() {
				effects = append(effects, catalogdomain.Effect(s))
			}
		}
	case []string:
		for _, s := range values {
			if catalogdomain.Effect(s).Valid() {
				effects = append(effects, catalogdomain.Effect(s))
			}
		}
	}
	return effects
}

type UpsellPurchase struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID            snowflake.ID `json:"user_id" gorm:"not null"`
	JobID             snowflake.ID `json:"job_id" gorm:"not null"`
	ExternalSessionID string       `json:"external_session_id" gorm:"not null;uniqueIndex"`
	SocialPush        bool         `json:"social_push"`
	PlacementBump     bool         `json:"placement_bump"`
	TotalAmount       int64        `json:"total_amount"`
	Currency          string       `json:"currency"`
	Status            UpsellStatus `json:"status" gorm:"not null"`
	CreatedAt         time.Time    `json:"created_at"`
	PaidAt            *time.Time   `json:"paid_at,omitempty"`
}

func (UpsellPurchase) TableName() string { return "upsell_purchases" }
