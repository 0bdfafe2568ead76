package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hireboard/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	return NewService(Params{DB: db, Log: zap.NewNop(), Enforcer: enforcer}), db
}

func grantRole(t *testing.T, db *gorm.DB, userID snowflake.ID, role string) {
	t.Helper()
	require.NoError(t, db.Exec(
		`INSERT INTO operator_roles (user_id, role, created_at) VALUES (?, ?, ?)`,
		userID, role, time.Now().UTC(),
	).Error)
}

func TestOperatorMayViewReportsAndReconcile(t *testing.T) {
	svc, db := newService(t)
	userID := snowflake.ID(4242)
	grantRole(t, db, userID, RoleOperator)

	actor := "user:" + userID.String()
	assert.NoError(t, svc.Authorize(context.Background(), actor, ObjectReport, ActionReportView))
	assert.NoError(t, svc.Authorize(context.Background(), actor, ObjectPurchase, ActionPurchaseReconcile))
}

func TestEmployerIsForbidden(t *testing.T) {
	svc, _ := newService(t)
	actor := "user:" + snowflake.ID(77).String()

	err := svc.Authorize(context.Background(), actor, ObjectReport, ActionReportView)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDemotedOperatorLosesAccess(t *testing.T) {
	svc, db := newService(t)
	userID := snowflake.ID(99)
	grantRole(t, db, userID, RoleOperator)
	actor := "user:" + userID.String()
	require.NoError(t, svc.Authorize(context.Background(), actor, ObjectReport, ActionReportView))

	require.NoError(t, db.Exec(`DELETE FROM operator_roles WHERE user_id = ?`, userID).Error)
	err := svc.Authorize(context.Background(), actor, ObjectReport, ActionReportView)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSystemActorAndInvalidInput(t *testing.T) {
	svc, _ := newService(t)

	assert.NoError(t, svc.Authorize(context.Background(), RoleSystem, ObjectPurchase, ActionPurchaseReconcile))
	assert.ErrorIs(t, svc.Authorize(context.Background(), "", ObjectReport, ActionReportView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(context.Background(), "api_key:1", ObjectReport, ActionReportView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(context.Background(), "user:abc", ObjectReport, ActionReportView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(context.Background(), RoleSystem, "", ActionReportView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(context.Background(), RoleSystem, ObjectReport, " "), ErrInvalidAction)
}

func TestNewEnforcerSeedsOnce(t *testing.T) {
	db := dbtest.Open(t)
	first, err := NewEnforcer(db)
	require.NoError(t, err)
	before, err := first.GetPolicy()
	require.NoError(t, err)

	second, err := NewEnforcer(db)
	require.NoError(t, err)
	after, err := second.GetPolicy()
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}
