package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
)

// CreditUnit is one spendable credit. Used only ever moves from false to true.
type CreditUnit struct {
	ID               snowflake.ID             `gorm:"primaryKey" json:"id"`
	UserID           snowflake.ID             `gorm:"not null;index" json:"user_id"`
	CreditType       catalogdomain.CreditType `gorm:"not null" json:"credit_type"`
	PurchaseID       snowflake.ID             `gorm:"not null" json:"purchase_id"`
	Used             bool                     `gorm:"not null" json:"used"`
	UsedAgainstJobID *snowflake.ID            `json:"used_against_job_id,omitempty"`
	UsedAt           *time.Time               `json:"used_at,omitempty"`
	IssuedAt         time.Time                `gorm:"not null" json:"issued_at"`
	ExpiresAt        time.Time                `gorm:"not null" json:"expires_at"`
}

func (CreditUnit) TableName() string { return "credit_units" }

// Available reports whether the unit can still be spent at now.
func (u CreditUnit) Available(now time.Time) bool {
	return !u.Used && u.ExpiresAt.After(now)
}

type BalanceLine struct {
	CreditType catalogdomain.CreditType `json:"credit_type"`
	Available  int64                    `json:"available"`
	NextExpiry *time.Time               `json:"next_expiry,omitempty"`
}

type UnitState string

const (
	UnitStateAvailable UnitState = "available"
	UnitStateUsed      UnitState = "used"
	UnitStateExpired   UnitState = "expired"
)
