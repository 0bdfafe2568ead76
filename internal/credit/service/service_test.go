package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/smallbiznis/hireboard/internal/clock"
	"github.com/smallbiznis/hireboard/internal/credit/domain"
	"github.com/smallbiznis/hireboard/internal/credit/repository"
	"github.com/smallbiznis/hireboard/internal/credit/service"
	"github.com/smallbiznis/hireboard/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, nil)
}

func newFixtureWithRepo(t *testing.T, wrap func(domain.Repository) domain.Repository) *fixture {
	t.Helper()
	var repo domain.Repository = repository.Provide()
	if wrap != nil {
		repo = wrap(repo)
	}
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(baseTime)
	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fc,
		Repo:  repo,
	})
	return &fixture{db: db, node: node, clock: fc, svc: svc}
}

func (f *fixture) mint(t *testing.T, userID snowflake.ID, counts map[catalogdomain.CreditType]int, expiresAt time.Time) snowflake.ID {
	t.Helper()
	purchaseID := f.node.Generate()
	n, err := f.svc.MintForPurchase(context.Background(), f.db, domain.MintRequest{
		UserID:     userID,
		PurchaseID: purchaseID,
		Counts:     counts,
		IssuedAt:   f.clock.Now(),
		ExpiresAt:  expiresAt,
	})
	require.NoError(t, err)
	total := 0
	for _, c := range counts {
		total += c
	}
	require.Equal(t, total, n)
	return purchaseID
}

func TestMintForPurchaseWritesRecordedCounts(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	purchaseID := f.mint(t, userID, map[catalogdomain.CreditType]int{
		catalogdomain.CreditTypeJobPost: 3,
		catalogdomain.CreditTypeFeature: 2,
	}, baseTime.AddDate(0, 0, 30))

	var rows []struct {
		CreditType string
		Count      int64
	}
	require.NoError(t, f.db.Raw(
		`SELECT credit_type, COUNT(*) AS count FROM credit_units WHERE purchase_id = ? GROUP BY credit_type ORDER BY credit_type`,
		purchaseID,
	).Scan(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "feature", rows[0].CreditType)
	assert.Equal(t, int64(2), rows[0].Count)
	assert.Equal(t, "job_post", rows[1].CreditType)
	assert.Equal(t, int64(3), rows[1].Count)
}

func TestMintForPurchaseRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.MintForPurchase(ctx, f.db, domain.MintRequest{
		UserID:     f.node.Generate(),
		PurchaseID: f.node.Generate(),
		Counts:     map[catalogdomain.CreditType]int{"gold": 1},
		IssuedAt:   baseTime,
		ExpiresAt:  baseTime.Add(time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCreditType)

	_, err = f.svc.MintForPurchase(ctx, f.db, domain.MintRequest{
		UserID:     f.node.Generate(),
		PurchaseID: f.node.Generate(),
		Counts:     map[catalogdomain.CreditType]int{catalogdomain.CreditTypeJobPost: 1},
		IssuedAt:   baseTime,
		ExpiresAt:  baseTime,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidMint)
}

func TestTryConsumeSpendsEarliestExpiringFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.node.Generate()

	late := f.mint(t, userID, map[catalogdomain.CreditType]int{catalogdomain.CreditTypeJobPost: 1}, baseTime.AddDate(0, 0, 90))
	early := f.mint(t, userID, map[catalogdomain.CreditType]int{catalogdomain.CreditTypeJobPost: 1}, baseTime.AddDate(0, 0, 10))

	jobID := f.node.Generate()
	unit, err := f.svc.Consume(ctx, domain.ConsumeRequest{
		UserID:     userID,
		CreditType: catalogdomain.CreditTypeJobPost,
		JobID:      jobID,
	})
	require.NoError(t, err)
	assert.Equal(t, early, unit.PurchaseID)
	assert.True(t, unit.Used)
	require.NotNil(t, unit.UsedAgainstJobID)
	assert.Equal(t, jobID, *unit.UsedAgainstJobID)

	unit, err = f.svc.Consume(ctx, domain.ConsumeRequest{UserID: userID, CreditType: catalogdomain.CreditTypeJobPost})
	require.NoError(t, err)
	assert.Equal(t, late, unit.PurchaseID)
	assert.Nil(t, unit.UsedAgainstJobID)

	_, err = f.svc.Consume(ctx, domain.ConsumeRequest{UserID: userID, CreditType: catalogdomain.CreditTypeJobPost})
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)
}

func TestTryConsumeIgnoresExpiredAndForeignUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.node.Generate()
	otherID := f.node.Generate()

	f.mint(t, userID, map[catalogdomain.CreditType]int{catalogdomain.CreditTypeJobPost: 1}, baseTime.Add(time.Hour))
	f.mint(t, otherID, map[catalogdomain.CreditType]int{catalogdomain.CreditTypeJobPost: 1}, baseTime.AddDate(0, 0, 30))
	f.mint(t, userID, map[catalogdomain.CreditType]int{catalogdomain.CreditTypeFeature: 1}, baseTime.AddDate(0, 0, 30))

	f.clock.Advance(2 * time.Hour)

	_, err := f.svc.Consume(ctx, domain.ConsumeRequest{UserID: userID, CreditType: catalogdomain.CreditTypeJobPost})
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)

	has, err := f.svc.HasCredit(ctx, userID, catalogdomain.CreditTypeFeature)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestTryConsumeRollsBackWithCallerTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.node.Generate()
	f.mint(t, userID, map[catalogdomain.CreditType]int{catalogdomain.CreditTypeJobPost: 1}, baseTime.AddDate(0, 0, 30))

	sideEffect := errors.New("job insert failed")
	err := f.db.Transaction(func(tx *gorm.DB) error {
		if _, err := f.svc.TryConsume(ctx, tx, domain.ConsumeRequest{
			UserID:     userID,
			CreditType: catalogdomain.CreditTypeJobPost,
			JobID:      f.node.Generate(),
		}); err != nil {
			return err
		}
		return sideEffect
	})
	require.ErrorIs(t, err, sideEffect)

	has, err := f.svc.HasCredit(ctx, userID, catalogdomain.CreditTypeJobPost)
	require.NoError(t, err)
	assert.True(t, has, "rolled back consume must leave the unit spendable")
}

func TestConcurrentConsumeNeverDoubleSpends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.node.Generate()

	const units = 5
	const callers = 20
	f.mint(t, userID, map[catalogdomain.CreditType]int{catalogdomain.CreditTypeJobPost: units}, baseTime.AddDate(0, 0, 30))

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		won        = map[snowflake.ID]int{}
		rejected   int
		unexpected []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unit, err := f.svc.Consume(ctx, domain.ConsumeRequest{
				UserID:     userID,
				CreditType: catalogdomain.CreditTypeJobPost,
				JobID:      f.node.Generate(),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won[unit.ID]++
			case errors.Is(err, domain.ErrInsufficientCredits):
				rejected++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, unexpected)
	assert.Len(t, won, units)
	for id, n := range won {
		assert.Equalf(t, 1, n, "unit %s consumed %d times", id, n)
	}
	assert.Equal(t, callers-units, rejected)

	var used int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM credit_units WHERE used = ?`, true).Scan(&used).Error)
	assert.Equal(t, int64(units), used)
}

func TestBalanceReportsAvailableAndNextExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.node.Generate()

	f.mint(t, userID, map[catalogdomain.CreditType]int{catalogdomain.CreditTypeJobPost: 2}, baseTime.AddDate(0, 0, 60))
	f.mint(t, userID, map[catalogdomain.CreditType]int{catalogdomain.CreditTypeJobPost: 1}, baseTime.AddDate(0, 0, 5))
	f.mint(t, userID, map[catalogdomain.CreditType]int{catalogdomain.CreditTypeFeature: 1}, baseTime.Add(time.Minute))
	f.clock.Advance(time.Hour)

	lines, err := f.svc.Balance(ctx, userID)
	require.NoError(t, err)
	require.Len(t, lines, len(catalogdomain.CreditTypes))

	byType := map[catalogdomain.CreditType]domain.BalanceLine{}
	for _, line := range lines {
		byType[line.CreditType] = line
	}
	assert.Equal(t, int64(3), byType[catalogdomain.CreditTypeJobPost].Available)
	require.NotNil(t, byType[catalogdomain.CreditTypeJobPost].NextExpiry)
	assert.True(t, byType[catalogdomain.CreditTypeJobPost].NextExpiry.Equal(baseTime.AddDate(0, 0, 5)))
	assert.Equal(t, int64(0), byType[catalogdomain.CreditTypeFeature].Available)
	assert.Nil(t, byType[catalogdomain.CreditTypeFeature].NextExpiry)
}

func TestListUnitsFiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.node.Generate()

	f.mint(t, userID, map[catalogdomain.CreditType]int{catalogdomain.CreditTypeJobPost: 3}, baseTime.AddDate(0, 0, 30))
	_, err := f.svc.Consume(ctx, domain.ConsumeRequest{UserID: userID, CreditType: catalogdomain.CreditTypeJobPost})
	require.NoError(t, err)

	resp, err := f.svc.ListUnits(ctx, domain.ListUnitsRequest{UserID: userID, State: "available", PageSize: 1})
	require.NoError(t, err)
	require.Len(t, resp.Units, 1)
	assert.True(t, resp.HasMore)

	next, err := f.svc.ListUnits(ctx, domain.ListUnitsRequest{UserID: userID, State: "available", PageSize: 1, PageToken: resp.NextPageToken})
	require.NoError(t, err)
	require.Len(t, next.Units, 1)
	assert.False(t, next.HasMore)
	assert.NotEqual(t, resp.Units[0].ID, next.Units[0].ID)

	used, err := f.svc.ListUnits(ctx, domain.ListUnitsRequest{UserID: userID, State: "used"})
	require.NoError(t, err)
	assert.Len(t, used.Units, 1)

	_, err = f.svc.ListUnits(ctx, domain.ListUnitsRequest{UserID: userID, State: "spent"})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

const rivalJobID = snowflake.ID(777)

// racingRepo lets another consumer spend the unit FindNextEligible picked
// before the caller gets to mark it, for the first `steals` lookups.
type racingRepo struct {
	domain.Repository
	steals int
	finds  int
	stolen []snowflake.ID
}

func (r *racingRepo) FindNextEligible(ctx context.Context, db *gorm.DB, userID snowflake.ID, creditType catalogdomain.CreditType, now time.Time) (*domain.CreditUnit, error) {
	r.finds++
	unit, err := r.Repository.FindNextEligible(ctx, db, userID, creditType, now)
	if err != nil || unit == nil || len(r.stolen) >= r.steals {
		return unit, err
	}
	won, err := r.Repository.MarkUsed(ctx, db, unit.ID, rivalJobID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, errors.New("rival could not take the unit")
	}
	r.stolen = append(r.stolen, unit.ID)
	return unit, nil
}

func (f *fixture) usedAgainst(t *testing.T, jobID snowflake.ID) []snowflake.ID {
	t.Helper()
	var ids []snowflake.ID
	require.NoError(t, f.db.Raw(
		`SELECT id FROM credit_units WHERE used = ? AND used_against_job_id = ? ORDER BY id`, true, jobID,
	).Scan(&ids).Error)
	return ids
}

func TestTryConsumeRetriesAfterLosingUnit(t *testing.T) {
	race := &racingRepo{steals: 2}
	f := newFixtureWithRepo(t, func(inner domain.Repository) domain.Repository {
		race.Repository = inner
		return race
	})
	userID := f.node.Generate()
	jobID := f.node.Generate()
	f.mint(t, userID, map[catalogdomain.CreditType]int{catalogdomain.CreditTypeJobPost: 3}, baseTime.AddDate(0, 0, 30))

	unit, err := f.svc.TryConsume(context.Background(), f.db, domain.ConsumeRequest{
		UserID:     userID,
		CreditType: catalogdomain.CreditTypeJobPost,
		JobID:      jobID,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, race.finds)
	require.Len(t, race.stolen, 2)
	assert.NotContains(t, race.stolen, unit.ID)

	assert.Equal(t, []snowflake.ID{unit.ID}, f.usedAgainst(t, jobID))
	assert.ElementsMatch(t, race.stolen, f.usedAgainst(t, rivalJobID))
}

func TestTryConsumeGivesUpUnderSustainedContention(t *testing.T) {
	race := &racingRepo{steals: 100}
	f := newFixtureWithRepo(t, func(inner domain.Repository) domain.Repository {
		race.Repository = inner
		return race
	})
	userID := f.node.Generate()
	jobID := f.node.Generate()
	f.mint(t, userID, map[catalogdomain.CreditType]int{catalogdomain.CreditTypeJobPost: 10}, baseTime.AddDate(0, 0, 30))

	_, err := f.svc.TryConsume(context.Background(), f.db, domain.ConsumeRequest{
		UserID:     userID,
		CreditType: catalogdomain.CreditTypeJobPost,
		JobID:      jobID,
	})
	assert.ErrorIs(t, err, domain.ErrConsumeContention)
	assert.Equal(t, 5, race.finds)
	assert.Empty(t, f.usedAgainst(t, jobID))
	assert.Len(t, f.usedAgainst(t, rivalJobID), 5)
}

func TestTryConsumeReportsInsufficientWhenRivalTookTheLastUnit(t *testing.T) {
	race := &racingRepo{steals: 1}
	f := newFixtureWithRepo(t, func(inner domain.Repository) domain.Repository {
		race.Repository = inner
		return race
	})
	userID := f.node.Generate()
	f.mint(t, userID, map[catalogdomain.CreditType]int{catalogdomain.CreditTypeJobPost: 1}, baseTime.AddDate(0, 0, 30))

	_, err := f.svc.TryConsume(context.Background(), f.db, domain.ConsumeRequest{
		UserID:     userID,
		CreditType: catalogdomain.CreditTypeJobPost,
		JobID:      f.node.Generate(),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)
	assert.Equal(t, 2, race.finds)
}
