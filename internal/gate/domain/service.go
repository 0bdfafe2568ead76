package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	addondomain "github.com/smallbiznis/hireboard/internal/addon/domain"
	jobdomain "github.com/smallbiznis/hireboard/internal/job/domain"
)

type PublishJobRequest struct {
	UserID snowflake.ID        `json:"-"`
	Title  string              `json:"title"`
	Source jobdomain.JobSource `json:"source"`
}

type RepostJobRequest struct {
	UserID snowflake.ID
	JobID  snowflake.ID
}

type FeatureJobRequest struct {
	UserID snowflake.ID
	JobID  snowflake.ID
}

type FeatureResult struct {
	Job             *jobdomain.Job `json:"job"`
	AlreadyFeatured bool           `json:"already_featured"`
}

type ApplyAddOnRequest struct {
	UserID  snowflake.ID `json:"-"`
	GrantID snowflake.ID `json:"grant_id"`
	JobID   snowflake.ID `json:"-"`
}

type ApplyResult struct {
	Job         *jobdomain.Job           `json:"job"`
	Application *addondomain.Application `json:"application"`
}

// Service spends credits or add-on grants on job actions. Each operation
// commits the spend and its effect together or not at all.
type Service interface {
	PublishJob(ctx context.Context, req PublishJobRequest) (*jobdomain.Job, error)
	RepostJob(ctx context.Context, req RepostJobRequest) (*jobdomain.Job, error)
	FeatureJob(ctx context.Context, req FeatureJobRequest) (*FeatureResult, error)
	ApplyAddOn(ctx context.Context, req ApplyAddOnRequest) (*ApplyResult, error)
}
