package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/audit/domain"
	"github.com/smallbiznis/hireboard/internal/clock"
	obscontext "github.com/smallbiznis/hireboard/internal/observability/context"
	"github.com/smallbiznis/hireboard/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

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
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry domain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	targetType := strings.TrimSpace(entry.TargetType)
	if action == "" || targetType == "" {
		return domain.ErrInvalidAction
	}

	actorType := entry.ActorType
	actorID := strings.TrimSpace(entry.ActorID)
	if actorID == "" {
		actorID = obscontext.UserIDFromContext(ctx)
	}
	if actorType == "" {
		actorType = domain.ActorTypeSystem
		if actorID != "" {
			actorType = domain.ActorTypeUser
		}
	}

	metadata := datatypes.JSONMap{}
	for k, v := range entry.Metadata {
		metadata[k] = v
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}

	log := &domain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  string(actorType),
		ActorID:    optionalString(actorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   optionalString(entry.TargetID),
		Metadata:   metadata,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, log); err != nil {
		s.log.Error("failed to record audit log",
			zap.String("action", action),
			zap.String("target_type", targetType),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListAuditLogRequest) (domain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && !req.EndAt.After(*req.StartAt) {
		return domain.ListAuditLogResponse{}, domain.ErrInvalidTimeRange
	}

	var beforeID snowflake.ID
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListAuditLogResponse{}, domain.ErrInvalidPageToken
	}
	if cursor != nil {
		id, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil || id <= 0 {
			return domain.ListAuditLogResponse{}, domain.ErrInvalidPageToken
		}
		beforeID = snowflake.ID(id)
	}

	limit := pagination.NormalizePageSize(req.PageSize)
	rows, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Action:     strings.TrimSpace(req.Action),
		TargetType: strings.TrimSpace(req.TargetType),
		TargetID:   strings.TrimSpace(req.TargetID),
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		BeforeID:   beforeID,
		Limit:      limit + 1,
	})
	if err != nil {
		return domain.ListAuditLogResponse{}, err
	}

	rows, pageInfo := pagination.Trim(rows, limit, func(l *domain.AuditLog) string {
		return l.ID.String()
	})
	logs := make([]domain.AuditLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, *row)
	}
	return domain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
