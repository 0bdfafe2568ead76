package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/audit/domain"
	"github.com/smallbiznis/hireboard/internal/audit/repository"
	"github.com/smallbiznis/hireboard/internal/audit/service"
	"github.com/smallbiznis/hireboard/internal/clock"
	obscontext "github.com/smallbiznis/hireboard/internal/observability/context"
	"github.com/smallbiznis/hireboard/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var baseTime = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) domain.Service {
	t.Helper()
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	return service.New(service.Params{
		DB:    dbtest.Open(t),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(baseTime),
		Repo:  repository.Provide(),
	})
}

func TestRecordTakesActorFromContext(t *testing.T) {
	svc := newService(t)
	ctx := obscontext.WithUserID(context.Background(), "42")
	ctx = obscontext.WithRequestID(ctx, "req-1")

	require.NoError(t, svc.Record(ctx, domain.Entry{
		Action:     "purchase.reconcile",
		TargetType: "checkout_session",
		TargetID:   "cs_1",
		Metadata:   map[string]any{"outcome": "fulfilled"},
	}))

	resp, err := svc.List(context.Background(), domain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, string(domain.ActorTypeUser), entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "42", *entry.ActorID)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "cs_1", *entry.TargetID)
	assert.Equal(t, "fulfilled", entry.Metadata["outcome"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.True(t, entry.CreatedAt.Equal(baseTime))
	assert.False(t, resp.HasMore)
}

func TestRecordWithoutActorIsSystem(t *testing.T) {
	svc := newService(t)

	require.NoError(t, svc.Record(context.Background(), domain.Entry{
		Action:     "purchase.expire",
		TargetType: "purchase",
	}))

	resp, err := svc.List(context.Background(), domain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, string(domain.ActorTypeSystem), resp.AuditLogs[0].ActorType)
	assert.Nil(t, resp.AuditLogs[0].ActorID)
	assert.Nil(t, resp.AuditLogs[0].TargetID)
}

func TestRecordRequiresActionAndTarget(t *testing.T) {
	svc := newService(t)

	err := svc.Record(context.Background(), domain.Entry{TargetType: "purchase"})
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	err = svc.Record(context.Background(), domain.Entry{Action: "purchase.reconcile"})
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
}

func TestListPagesNewestFirst(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	for _, target := range []string{"cs_1", "cs_2", "cs_3"} {
		require.NoError(t, svc.Record(ctx, domain.Entry{
			Action:     "purchase.reconcile",
			TargetType: "checkout_session",
			TargetID:   target,
		}))
	}

	first, err := svc.List(ctx, domain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 3)
	assert.Equal(t, "cs_3", *first.AuditLogs[0].TargetID)

	req := domain.ListAuditLogRequest{}
	req.PageSize = 2
	page, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, page.AuditLogs, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextPageToken)

	req.PageToken = page.NextPageToken
	rest, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, rest.AuditLogs, 1)
	assert.Equal(t, "cs_1", *rest.AuditLogs[0].TargetID)
	assert.False(t, rest.HasMore)
}

func TestListFiltersByTarget(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Record(ctx, domain.Entry{Action: "purchase.reconcile", TargetType: "checkout_session", TargetID: "cs_1"}))
	require.NoError(t, svc.Record(ctx, domain.Entry{Action: "purchase.reconcile", TargetType: "checkout_session", TargetID: "cs_2"}))

	resp, err := svc.List(ctx, domain.ListAuditLogRequest{TargetID: "cs_2"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "cs_2", *resp.AuditLogs[0].TargetID)
}

func TestListRejectsBadInput(t *testing.T) {
	svc := newService(t)

	req := domain.ListAuditLogRequest{}
	req.PageToken = "!!not-base64"
	_, err := svc.List(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)

	start := baseTime
	end := baseTime.Add(-time.Hour)
	_, err = svc.List(context.Background(), domain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)
}
