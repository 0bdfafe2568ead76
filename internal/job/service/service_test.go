package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/job/domain"
	"github.com/smallbiznis/hireboard/internal/job/repository"
	"github.com/smallbiznis/hireboard/internal/job/service"
	"github.com/smallbiznis/hireboard/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetChecksOwnership(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.Provide()
	svc := service.New(service.Params{DB: db, Log: zap.NewNop(), Repo: repo})

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	expires := now.AddDate(0, 0, 30)
	job := &domain.Job{
		ID:        node.Generate(),
		OwnerID:   node.Generate(),
		Title:     "Backend Engineer",
		Status:    domain.JobStatusActive,
		Source:    domain.JobSourcePaid,
		ExpiresAt: &expires,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Insert(ctx, db, job))

	got, err := svc.Get(ctx, job.OwnerID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer", got.Title)
	assert.True(t, got.LiveAt(now))
	assert.False(t, got.LiveAt(expires))

	_, err = svc.Get(ctx, node.Generate(), job.ID)
	assert.ErrorIs(t, err, domain.ErrOwnershipMismatch)

	_, err = svc.Get(ctx, job.OwnerID, node.Generate())
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestSetFlagsOnlyRaisesRequestedFlags(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.Provide()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	job := &domain.Job{
		ID:        node.Generate(),
		OwnerID:   node.Generate(),
		Title:     "Designer",
		Status:    domain.JobStatusActive,
		Source:    domain.JobSourceFree,
		Pinned:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Insert(ctx, db, job))
	require.NoError(t, repo.SetFlags(ctx, db, job.ID, domain.Flags{Boosted: true, Featured: true}, now.Add(time.Hour)))

	got, err := repo.FindByID(ctx, db, job.ID)
	require.NoError(t, err)
	assert.True(t, got.Boosted)
	assert.True(t, got.Pinned)
	assert.True(t, got.Featured)
	assert.False(t, got.SocialPush)
	require.NotNil(t, got.FeaturedAt)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.Provide()
	svc := service.New(service.Params{DB: db, Log: zap.NewNop(), Repo: repo})

	ownerID := node.Generate()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		job := &domain.Job{
			ID:        node.Generate(),
			OwnerID:   ownerID,
			Title:     "Role",
			Status:    domain.JobStatusDraft,
			Source:    domain.JobSourceFree,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, repo.Insert(ctx, db, job))
		ids = append(ids, job.ID)
	}

	first, err := svc.List(ctx, domain.ListJobsRequest{OwnerID: ownerID, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Jobs, 2)
	assert.Equal(t, ids[2], first.Jobs[0].ID)
	assert.True(t, first.HasMore)

	second, err := svc.List(ctx, domain.ListJobsRequest{OwnerID: ownerID, PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Jobs, 1)
	assert.Equal(t, ids[0], second.Jobs[0].ID)
	assert.False(t, second.HasMore)
}
