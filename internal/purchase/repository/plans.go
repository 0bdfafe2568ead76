package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/clock"
	"github.com/smallbiznis/hireboard/internal/purchase/domain"
	"gorm.io/gorm"
)

var activePlanStatuses = []string{"active", "trialing"}

// subscriptionPlans reads employer_subscriptions, which the account service owns.
type subscriptionPlans struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewPlanChecker(db *gorm.DB, c clock.Clock) domain.PlanChecker {
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &subscriptionPlans{db: db, clock: c}
}

func (p *subscriptionPlans) HasActivePlan(ctx context.Context, userID snowflake.ID) (bool, error) {
	var row struct {
		UserID           snowflake.ID
		Status           string
		CurrentPeriodEnd *time.Time
	}
	err := p.db.WithContext(ctx).Raw(
		`SELECT user_id, status, current_period_end
		 FROM employer_subscriptions
		 WHERE user_id = ? AND status IN ?`,
		userID,
		activePlanStatuses,
	).Scan(&row).Error
	if err != nil {
		return false, err
	}
	if row.UserID == 0 {
		return false, nil
	}
	if row.CurrentPeriodEnd != nil && !row.CurrentPeriodEnd.After(p.clock.Now()) {
		return false, nil
	}
	return true, nil
}
