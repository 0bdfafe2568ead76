package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type JobStatus string

const (
	JobStatusDraft    JobStatus = "draft"
	JobStatusActive   JobStatus = "active"
	JobStatusInactive JobStatus = "inactive"
	JobStatusExpired  JobStatus = "expired"
)

type JobSource string

const (
	JobSourceFree JobSource = "free"
	JobSourcePaid JobSource = "paid"
)

type Job struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID     snowflake.ID `gorm:"not null;index" json:"owner_id"`
	Title       string       `gorm:"not null" json:"title"`
	Status      JobStatus    `gorm:"not null" json:"status"`
	Source      JobSource    `gorm:"not null" json:"source"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	Boosted     bool         `gorm:"not null" json:"boosted"`
	Pinned      bool         `gorm:"not null" json:"pinned"`
	SocialPush  bool         `gorm:"not null" json:"social_push"`
	Featured    bool         `gorm:"not null" json:"featured"`
	FeaturedAt  *time.Time   `json:"featured_at,omitempty"`
	RepostCount int          `gorm:"not null" json:"repost_count"`
	PublishedAt *time.Time   `json:"published_at,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (Job) TableName() string { return "jobs" }

// LiveAt reports whether the listing is active and inside its window.
func (j Job) LiveAt(now time.Time) bool {
	if j.Status != JobStatusActive {
		return false
	}
	return j.ExpiresAt == nil || j.ExpiresAt.After(now)
}

// Flags is a set of visibility switches to turn on for a job. False fields
// leave the current value alone.
type Flags struct {
	Boosted    bool
	Pinned     bool
	SocialPush bool
	Featured   bool
}

func (f Flags) Empty() bool {
	return !f.Boosted && !f.Pinned && !f.SocialPush && !f.Featured
}
