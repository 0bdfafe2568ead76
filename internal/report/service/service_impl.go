package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/hireboard/internal/catalog/domain"
	"github.com/smallbiznis/hireboard/internal/clock"
	purchasedomain "github.com/smallbiznis/hireboard/internal/purchase/domain"
	"github.com/smallbiznis/hireboard/internal/report/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("report.service"),
		clock: c,
	}
}

// scope narrows every aggregate to one user and a creation window.
type scope struct {
	req    domain.SummaryRequest
	userID snowflake.ID
}

func (sc scope) apply(q *gorm.DB, userCol, timeCol string) *gorm.DB {
	if sc.userID != 0 {
		q = q.Where(userCol+" = ?", sc.userID)
	}
	if sc.req.From != nil {
		q = q.Where(timeCol+" >= ?", sc.req.From.UTC())
	}
	if sc.req.To != nil {
		q = q.Where(timeCol+" < ?", sc.req.To.UTC())
	}
	return q
}

func (s *Service) Summary(ctx context.Context, req domain.SummaryRequest) (*domain.Summary, error) {
	if req.From != nil && req.To != nil && !req.To.After(*req.From) {
		return nil, domain.ErrInvalidRange
	}
	return s.build(ctx, scope{req: req})
}

func (s *Service) UserLedger(ctx context.Context, userID snowflake.ID) (*domain.Summary, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	summary, err := s.build(ctx, scope{userID: userID})
	if err != nil {
		return nil, err
	}
	summary.UserID = &userID
	return summary, nil
}

func (s *Service) build(ctx context.Context, sc scope) (*domain.Summary, error) {
	now := s.clock.Now().UTC()
	summary := &domain.Summary{
		From:        sc.req.From,
		To:          sc.req.To,
		GeneratedAt: now,
	}

	var err error
	if summary.Credits, err = s.credits(ctx, sc, now); err != nil {
		return nil, fmt.Errorf("credit aggregates: %w", err)
	}
	if summary.Purchases, err = s.statusCounts(ctx, sc, "purchases"); err != nil {
		return nil, fmt.Errorf("purchase aggregates: %w", err)
	}
	if summary.Upsells, err = s.statusCounts(ctx, sc, "upsell_purchases"); err != nil {
		return nil, fmt.Errorf("upsell aggregates: %w", err)
	}
	if err := s.grants(ctx, sc, now, summary); err != nil {
		return nil, fmt.Errorf("grant aggregates: %w", err)
	}
	if summary.Revenue, err = s.revenue(ctx, sc); err != nil {
		return nil, fmt.Errorf("revenue aggregates: %w", err)
	}
	return summary, nil
}

type creditRow struct {
	CreditType string `gorm:"column:credit_type"`
	Issued     int64  `gorm:"column:issued"`
	Used       int64  `gorm:"column:used"`
	Expired    int64  `gorm:"column:expired"`
}

func (s *Service) credits(ctx context.Context, sc scope, now time.Time) ([]domain.CreditLine, error) {
	var rows []creditRow
	q := s.db.WithContext(ctx).
		Table("credit_units").
		Select(
			`credit_type,
			 COUNT(*) AS issued,
			 COALESCE(SUM(CASE WHEN used = ? THEN 1 ELSE 0 END), 0) AS used,
			 COALESCE(SUM(CASE WHEN used = ? AND expires_at <= ? THEN 1 ELSE 0 END), 0) AS expired`,
			true, false, now,
		)
	if err := sc.apply(q, "user_id", "issued_at").Group("credit_type").Scan(&rows).Error; err != nil {
		return nil, err
	}

	byType := make(map[string]creditRow, len(rows))
	for _, row := range rows {
		byType[row.CreditType] = row
	}
	lines := make([]domain.CreditLine, 0, len(catalogdomain.CreditTypes))
	for _, t := range catalogdomain.CreditTypes {
		row := byType[string(t)]
		lines = append(lines, domain.CreditLine{
			CreditType: t,
			Issued:     row.Issued,
			Used:       row.Used,
			Expired:    row.Expired,
			Available:  row.Issued - row.Used - row.Expired,
		})
	}
	return lines, nil
}

type statusRow struct {
	Status string `gorm:"column:status"`
	Count  int64  `gorm:"column:count"`
}

func (s *Service) statusCounts(ctx context.Context, sc scope, table string) ([]domain.StatusCount, error) {
	var rows []statusRow
	q := s.db.WithContext(ctx).
		Table(table).
		Select("status, COUNT(*) AS count")
	if err := sc.apply(q, "user_id", "created_at").Group("status").Order("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make([]domain.StatusCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, domain.StatusCount{Status: row.Status, Count: row.Count})
	}
	return counts, nil
}

func (s *Service) grants(ctx context.Context, sc scope, now time.Time, summary *domain.Summary) error {
	var grants struct {
		Total  int64 `gorm:"column:total"`
		Active int64 `gorm:"column:active"`
	}
	q := s.db.WithContext(ctx).
		Table("user_add_on_grants").
		Select(
			`COUNT(*) AS total,
			 COALESCE(SUM(CASE WHEN active = ? AND expires_at > ? THEN 1 ELSE 0 END), 0) AS active`,
			true, now,
		)
	if err := sc.apply(q, "user_id", "created_at").Scan(&grants).Error; err != nil {
		return err
	}

	var applications int64
	q = s.db.WithContext(ctx).
		Table("add_on_applications AS a").
		Joins("JOIN user_add_on_grants AS g ON g.id = a.grant_id")
	if err := sc.apply(q, "g.user_id", "a.applied_at").Count(&applications).Error; err != nil {
		return err
	}

	summary.Grants = grants.Total
	summary.ActiveGrants = grants.Active
	summary.Applications = applications
	return nil
}

type revenueRow struct {
	Currency string `gorm:"column:currency"`
	Amount   int64  `gorm:"column:amount"`
}

// revenue sums completed credit pack and add-on purchases plus paid upsells,
// per currency, by completion time.
func (s *Service) revenue(ctx context.Context, sc scope) ([]domain.RevenueLine, error) {
	totals := map[string]int64{}

	var rows []revenueRow
	q := s.db.WithContext(ctx).
		Table("purchases").
		Select("currency, COALESCE(SUM(total_amount), 0) AS amount").
		Where("status = ?", purchasedomain.StatusCompleted)
	if err := sc.apply(q, "user_id", "completed_at").Group("currency").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		totals[row.Currency] += row.Amount
	}

	rows = nil
	q = s.db.WithContext(ctx).
		Table("upsell_purchases").
		Select("currency, COALESCE(SUM(total_amount), 0) AS amount").
		Where("status = ?", purchasedomain.UpsellStatusPaid)
	if err := sc.apply(q, "user_id", "paid_at").Group("currency").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		totals[row.Currency] += row.Amount
	}

	currencies := make([]string, 0, len(totals))
	for currency := range totals {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)
	lines := make([]domain.RevenueLine, 0, len(currencies))
	for _, currency := range currencies {
		lines = append(lines, domain.RevenueLine{Currency: currency, Amount: totals[currency]})
	}
	return lines, nil
}
