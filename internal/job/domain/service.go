package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/pkg/db/pagination"
)

type ListJobsRequest struct {
	OwnerID   snowflake.ID
	PageToken string
	PageSize  int
}

type ListJobsResponse struct {
	pagination.PageInfo
	Jobs []Job `json:"jobs"`
}

type Service interface {
	Get(ctx context.Context, ownerID, jobID snowflake.ID) (*Job, error)
	List(ctx context.Context, req ListJobsRequest) (ListJobsResponse, error)
}

var (
	ErrJobNotFound       = errors.New("job_not_found")
	ErrJobNotActive      = errors.New("job_not_active")
	ErrJobStillActive    = errors.New("job_still_active")
	ErrOwnershipMismatch = errors.New("ownership_mismatch")
	ErrInvalidTitle      = errors.New("invalid_title")
	ErrInvalidSource     = errors.New("invalid_source")
)
