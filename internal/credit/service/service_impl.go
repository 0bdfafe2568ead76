package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/smallbiznis/hireboard/internal/clock"
	"github.com/smallbiznis/hireboard/internal/credit/domain"
	"github.com/smallbiznis/hireboard/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxConsumeAttempts bounds how many lost CAS races a single consume absorbs.
const maxConsumeAttempts = 5

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("credit.service"),
		genID: p.GenID,
		clock: c,
		repo:  p.Repo,
	}
}

func (s *Service) TryConsume(ctx context.Context, tx *gorm.DB, req domain.ConsumeRequest) (*domain.CreditUnit, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if !req.CreditType.Valid() {
		return nil, domain.ErrInvalidCreditType
	}

	for attempt := 1; attempt <= maxConsumeAttempts; attempt++ {
		now := s.clock.Now().UTC()
		unit, err := s.repo.FindNextEligible(ctx, tx, req.UserID, req.CreditType, now)
		if err != nil {
			return nil, fmt.Errorf("find eligible credit: %w", err)
		}
		if unit == nil {
			return nil, domain.ErrInsufficientCredits
		}

		won, err := s.repo.MarkUsed(ctx, tx, unit.ID, req.JobID, now)
		if err != nil {
			return nil, fmt.Errorf("mark credit used: %w", err)
		}
		if !won {
			s.log.Debug("credit unit taken by concurrent consumer",
				zap.String("unit_id", unit.ID.String()),
				zap.Int("attempt", attempt),
			)
			continue
		}

		unit.Used = true
		unit.UsedAt = &now
		if req.JobID != 0 {
			jobID := req.JobID
			unit.UsedAgainstJobID = &jobID
		}
		return unit, nil
	}

	s.log.Warn("credit consume gave up after repeated contention",
		zap.String("user_id", req.UserID.String()),
		zap.String("credit_type", string(req.CreditType)),
	)
	return nil, domain.ErrConsumeContention
}

func (s *Service) Consume(ctx context.Context, req domain.ConsumeRequest) (*domain.CreditUnit, error) {
	var unit *domain.CreditUnit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		unit, err = s.TryConsume(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}

// MintForPurchase writes one row per credit in req.Counts and returns the
// number written.
func (s *Service) MintForPurchase(ctx context.Context, tx *gorm.DB, req domain.MintRequest) (int, error) {
	if req.UserID == 0 || req.PurchaseID == 0 {
		return 0, domain.ErrInvalidMint
	}
	if !req.ExpiresAt.After(req.IssuedAt) {
		return 0, domain.ErrInvalidMint
	}

	types := make([]catalogdomain.CreditType, 0, len(req.Counts))
	for creditType := range req.Counts {
		types = append(types, creditType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	units := make([]*domain.CreditUnit, 0)
	for _, creditType := range types {
		if !creditType.Valid() {
			return 0, domain.ErrInvalidCreditType
		}
		count := req.Counts[creditType]
		if count < 0 {
			return 0, domain.ErrInvalidMint
		}
		for i := 0; i < count; i++ {
			units = append(units, &domain.CreditUnit{
				ID:         s.genID.Generate(),
				UserID:     req.UserID,
				CreditType: creditType,
				PurchaseID: req.PurchaseID,
				IssuedAt:   req.IssuedAt.UTC(),
				ExpiresAt:  req.ExpiresAt.UTC(),
			})
		}
	}

	if err := s.repo.InsertBatch(ctx, tx, units); err != nil {
		return 0, fmt.Errorf("insert credit units: %w", err)
	}
	return len(units), nil
}

func (s *Service) Balance(ctx context.Context, userID snowflake.ID) ([]domain.BalanceLine, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	now := s.clock.Now().UTC()

	lines := make([]domain.BalanceLine, 0, len(catalogdomain.CreditTypes))
	for _, creditType := range catalogdomain.CreditTypes {
		count, err := s.repo.CountAvailable(ctx, s.db, userID, creditType, now)
		if err != nil {
			return nil, err
		}
		line := domain.BalanceLine{CreditType: creditType, Available: count}
		if count > 0 {
			next, err := s.repo.FindNextEligible(ctx, s.db, userID, creditType, now)
			if err != nil {
				return nil, err
			}
			if next != nil {
				expiry := next.ExpiresAt
				line.NextExpiry = &expiry
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *Service) HasCredit(ctx context.Context, userID snowflake.ID, creditType catalogdomain.CreditType) (bool, error) {
	if userID == 0 {
		return false, domain.ErrInvalidUser
	}
	if !creditType.Valid() {
		return false, domain.ErrInvalidCreditType
	}
	count, err := s.repo.CountAvailable(ctx, s.db, userID, creditType, s.clock.Now().UTC())
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) ListUnits(ctx context.Context, req domain.ListUnitsRequest) (domain.ListUnitsResponse, error) {
	if req.UserID == 0 {
		return domain.ListUnitsResponse{}, domain.ErrInvalidUser
	}

	filter := domain.ListUnitsFilter{
		UserID: req.UserID,
		Now:    s.clock.Now().UTC(),
	}
	if value := strings.TrimSpace(req.CreditType); value != "" {
		creditType := catalogdomain.CreditType(strings.ToLower(value))
		if !creditType.Valid() {
			return domain.ListUnitsResponse{}, domain.ErrInvalidCreditType
		}
		filter.CreditType = creditType
	}
	switch state := domain.UnitState(strings.ToLower(strings.TrimSpace(req.State))); state {
	case "", domain.UnitStateAvailable, domain.UnitStateUsed, domain.UnitStateExpired:
		filter.State = state
	default:
		return domain.ListUnitsResponse{}, domain.ErrInvalidState
	}

	pageSize := pagination.NormalizePageSize(req.PageSize)
	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListUnitsResponse{}, err
	}

	items, pageInfo := pagination.Trim(items, pageSize, func(unit *domain.CreditUnit) string {
		return unit.ID.String()
	})
	units := make([]domain.CreditUnit, 0, len(items))
	for _, item := range items {
		units = append(units, *item)
	}
	return domain.ListUnitsResponse{PageInfo: pageInfo, Units: units}, nil
}

var _ domain.Service = (*Service)(nil)
