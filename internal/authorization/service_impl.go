package authorization

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

// subject is a resolved actor: the casbin subject plus the role it
// currently belongs to.
type subject struct {
	name string
	role string
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	object = strings.TrimSpace(object)
	action = strings.TrimSpace(action)
	switch {
	case actor == "":
		return ErrInvalidActor
	case object == "":
		return ErrInvalidObject
	case action == "":
		return ErrInvalidAction
	}

	sub, err := s.subjectFor(ctx, actor)
	if err != nil {
		return err
	}
	if err := s.linkRole(sub); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(sub.name, object, action)
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}
	s.log.Info("access denied",
		zap.String("subject", sub.name),
		zap.String("role", sub.role),
		zap.String("object", object),
		zap.String("action", action),
	)
	return ErrForbidden
}

func (s *ServiceImpl) subjectFor(ctx context.Context, actor string) (subject, error) {
	if actor == RoleSystem {
		return subject{name: RoleSystem, role: RoleSystem}, nil
	}
	raw, ok := strings.CutPrefix(actor, "user:")
	if !ok {
		return subject{}, ErrInvalidActor
	}
	userID, err := snowflake.ParseString(raw)
	if err != nil || userID <= 0 {
		return subject{}, ErrInvalidActor
	}

	role, err := s.lookupRole(ctx, userID)
	if err != nil {
		return subject{}, err
	}
	return subject{name: "user:" + userID.String(), role: role}, nil
}

// lookupRole reads operator_roles. A user without a row is an employer.
func (s *ServiceImpl) lookupRole(ctx context.Context, userID snowflake.ID) (string, error) {
	var role string
	err := s.db.WithContext(ctx).
		Table("operator_roles").
		Select("role").
		Where("user_id = ?", userID).
		Limit(1).
		Row().
		Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return RoleEmployer, nil
	}
	if err != nil {
		return "", err
	}
	if role = strings.ToLower(strings.TrimSpace(role)); role == "" {
		return RoleEmployer, nil
	}
	return role, nil
}

// linkRole leaves the subject linked to its current role only, so a demoted
// operator loses access on the next check.
func (s *ServiceImpl) linkRole(sub subject) error {
	want := roleSubject(sub.role)
	links, err := s.enforcer.GetFilteredGroupingPolicy(0, sub.name)
	if err != nil {
		return err
	}

	linked := false
	for _, link := range links {
		if len(link) < 2 {
			continue
		}
		if link[1] == want {
			linked = true
			continue
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(link[0], link[1]); err != nil {
			return err
		}
	}
	if linked {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(sub.name, want)
	return err
}
