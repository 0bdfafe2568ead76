package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/addon/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("addon.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// CreateGrant is idempotent per purchase: a second call returns the grant the
// first call wrote.
func (s *Service) CreateGrant(ctx context.Context, tx *gorm.DB, req domain.CreateGrantRequest) (*domain.Grant, error) {
	addOnID := strings.TrimSpace(req.AddOnID)
	if req.UserID == 0 || req.PurchaseID == 0 || addOnID == "" || len(req.Effects) == 0 {
		return nil, domain.ErrInvalidGrant
	}
	if !req.ExpiresAt.After(req.CreatedAt) {
		return nil, domain.ErrInvalidGrant
	}

	grant := &domain.Grant{
		ID:         s.genID.Generate(),
		UserID:     req.UserID,
		AddOnID:    addOnID,
		PurchaseID: req.PurchaseID,
		Effects:    domain.EncodeEffects(req.Effects),
		Active:     true,
		CreatedAt:  req.CreatedAt.UTC(),
		ExpiresAt:  req.ExpiresAt.UTC(),
	}
	inserted, err := s.repo.InsertGrant(ctx, tx, grant)
	if err != nil {
		return nil, err
	}
	if inserted {
		return grant, nil
	}

	existing, err := s.repo.FindGrantByPurchase(ctx, tx, req.PurchaseID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.ErrGrantNotFound
	}
	s.log.Warn("grant already exists for purchase",
		zap.String("purchase_id", req.PurchaseID.String()),
		zap.String("grant_id", existing.ID.String()),
	)
	return existing, nil
}

func (s *Service) ListGrants(ctx context.Context, userID snowflake.ID) ([]domain.GrantView, error) {
	grants, err := s.repo.ListGrantsByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(grants))
	for _, grant := range grants {
		ids = append(ids, grant.ID)
	}
	apps, err := s.repo.ListApplications(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	byGrant := make(map[snowflake.ID][]domain.Application, len(grants))
	for _, app := range apps {
		byGrant[app.GrantID] = append(byGrant[app.GrantID], *app)
	}
	views := make([]domain.GrantView, 0, len(grants))
	for _, grant := range grants {
		applied := byGrant[grant.ID]
		if applied == nil {
			applied = []domain.Application{}
		}
		views = append(views, domain.GrantView{Grant: *grant, Applications: applied})
	}
	return views, nil
}
