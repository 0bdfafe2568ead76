package authorization

import (
	_ "embed"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectReport   = "report"
	ObjectPurchase = "purchase"
)

const (
	ActionReportView        = "report.view"
	ActionPurchaseReconcile = "purchase.reconcile"
)

const (
	RoleEmployer = "employer"
	RoleOperator = "operator"
	RoleSystem   = "system"
)

// grants lists what each privileged role may do. Employers hold no
// policies; their access to their own ledger is checked by ownership.
var grants = map[string][][2]string{
	RoleOperator: {
		{ObjectReport, ActionReportView},
		{ObjectPurchase, ActionPurchaseReconcile},
	},
	RoleSystem: {
		{ObjectReport, ActionReportView},
		{ObjectPurchase, ActionPurchaseReconcile},
	},
}

// NewEnforcer loads policies persisted in casbin_rule and tops them up with
// the built-in grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}

	for role, rules := range grants {
		for _, rule := range rules {
			if _, err := enforcer.AddPolicy(roleSubject(role), rule[0], rule[1]); err != nil {
				return nil, err
			}
		}
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func roleSubject(role string) string {
	return "role:" + role
}
