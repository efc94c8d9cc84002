package authorization

import (
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// NewEnforcer builds the casbin enforcer over the casbin_rule table and
// seeds the role policies for the billing surface.
func NewEnforcer(db *gorm.DB) (*casbin.Enforcer, error) {
	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, "", "casbin_rule")
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}

	policies := [][]string{
		{"ADMIN", ObjectBilling, ActionBillingView},
		{"ADMIN", ObjectBilling, ActionBillingCheckout},
		{"ADMIN", ObjectBilling, ActionBillingCancel},
		{"ADMIN", ObjectBilling, ActionBillingResume},
		{"ADMIN", ObjectBilling, ActionBillingChangePlan},
		{"ADMIN", ObjectBilling, ActionBillingPortal},
		{"MEMBER", ObjectBilling, ActionBillingView},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return nil, err
		}
	}
	// Owners hold every admin capability.
	if _, err := enforcer.AddGroupingPolicy("OWNER", "ADMIN"); err != nil {
		return nil, err
	}
	return enforcer, nil
}
