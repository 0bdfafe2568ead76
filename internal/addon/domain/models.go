package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"gorm.io/datatypes"
)

// Grant is a purchased add-on that can be applied to any number of the
// owner's jobs while active, at most once per job.
type Grant struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	UserID     snowflake.ID   `gorm:"not null;index" json:"user_id"`
	AddOnID    string         `gorm:"not null" json:"add_on_id"`
	PurchaseID snowflake.ID   `gorm:"not null;uniqueIndex" json:"purchase_id"`
	Effects    datatypes.JSON `gorm:"not null" json:"effects"`
	Active     bool           `gorm:"not null" json:"active"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	ExpiresAt  time.Time      `gorm:"not null" json:"expires_at"`
}

func (Grant) TableName() string { return "user_add_on_grants" }

func (g Grant) EffectList() []catalogdomain.Effect {
	var effects []catalogdomain.Effect
	if len(g.Effects) == 0 {
		return effects
	}
	if err := json.Unmarshal(g.Effects, &effects); err != nil {
		return nil
	}
	return effects
}

func (g Grant) HasEffect(effect catalogdomain.Effect) bool {
	for _, e := range g.EffectList() {
		if e == effect {
			return true
		}
	}
	return false
}

func EncodeEffects(effects []catalogdomain.Effect) datatypes.JSON {
	if effects == nil {
		effects = []catalogdomain.Effect{}
	}
	b, _ := json.Marshal(effects)
	return datatypes.JSON(b)
}

// Application records one use of a grant against a job.
type Application struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	GrantID   snowflake.ID `gorm:"not null" json:"grant_id"`
	JobID     snowflake.ID `gorm:"not null" json:"job_id"`
	AppliedAt time.Time    `gorm:"not null" json:"applied_at"`
}

func (Application) TableName() string { return "add_on_applications" }

type GrantView struct {
	Grant
	Applications []Application `json:"applications"`
}
