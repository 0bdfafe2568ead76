package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/addon/domain"
	"github.com/smallbiznis/hireboard/internal/addon/repository"
	"github.com/smallbiznis/hireboard/internal/addon/service"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/smallbiznis/hireboard/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCreateGrantIsIdempotentPerPurchase(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := service.New(service.Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repository.Provide()})

	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	req := domain.CreateGrantRequest{
		UserID:     node.Generate(),
		AddOnID:    "spotlight",
		PurchaseID: node.Generate(),
		Effects:    []catalogdomain.Effect{catalogdomain.EffectBoost, catalogdomain.EffectPin},
		CreatedAt:  now,
		ExpiresAt:  now.AddDate(0, 0, 60),
	}

	first, err := svc.CreateGrant(ctx, db, req)
	require.NoError(t, err)
	second, err := svc.CreateGrant(ctx, db, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.HasEffect(catalogdomain.EffectPin))
	assert.False(t, second.HasEffect(catalogdomain.EffectSocialPush))

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM user_add_on_grants`).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateGrantValidatesInput(t *testing.T) {
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := service.New(service.Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repository.Provide()})

	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	_, err = svc.CreateGrant(context.Background(), db, domain.CreateGrantRequest{
		UserID:     node.Generate(),
		AddOnID:    "boost",
		PurchaseID: node.Generate(),
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidGrant)
}

func TestApplicationJournalRejectsSameJobTwice(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.Provide()
	svc := service.New(service.Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repo})

	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	userID := node.Generate()
	grant, err := svc.CreateGrant(ctx, db, domain.CreateGrantRequest{
		UserID:     userID,
		AddOnID:    "boost",
		PurchaseID: node.Generate(),
		Effects:    []catalogdomain.Effect{catalogdomain.EffectBoost},
		CreatedAt:  now,
		ExpiresAt:  now.AddDate(0, 0, 30),
	})
	require.NoError(t, err)

	jobA, jobB := node.Generate(), node.Generate()
	ok, err := repo.InsertApplication(ctx, db, &domain.Application{ID: node.Generate(), GrantID: grant.ID, JobID: jobA, AppliedAt: now})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.InsertApplication(ctx, db, &domain.Application{ID: node.Generate(), GrantID: grant.ID, JobID: jobA, AppliedAt: now})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.InsertApplication(ctx, db, &domain.Application{ID: node.Generate(), GrantID: grant.ID, JobID: jobB, AppliedAt: now})
	require.NoError(t, err)
	assert.True(t, ok)

	views, err := svc.ListGrants(ctx, userID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Len(t, views[0].Applications, 2)
}
