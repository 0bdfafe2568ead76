package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/job/domain"
	"github.com/smallbiznis/hireboard/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("job.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, ownerID, jobID snowflake.ID) (*domain.Job, error) {
	job, err := s.repo.FindByID(ctx, s.db, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrJobNotFound
	}
	if job.OwnerID != ownerID {
		return nil, domain.ErrOwnershipMismatch
	}
	return job, nil
}

func (s *Service) List(ctx context.Context, req domain.ListJobsRequest) (domain.ListJobsResponse, error) {
	pageSize := pagination.NormalizePageSize(req.PageSize)
	items, err := s.repo.ListByOwner(ctx, s.db, req.OwnerID, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListJobsResponse{}, err
	}

	items, pageInfo := pagination.Trim(items, pageSize, func(job *domain.Job) string {
		return job.ID.String()
	})
	jobs := make([]domain.Job, 0, len(items))
	for _, item := range items {
		jobs = append(jobs, *item)
	}
	return domain.ListJobsResponse{PageInfo: pageInfo, Jobs: jobs}, nil
}
