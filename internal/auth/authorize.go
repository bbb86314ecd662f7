package auth

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const policyModel = `
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

// Authorizer decides whether the roles in a request context may act on an object.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

// NewAuthorizer builds an in-memory casbin enforcer seeded with perms.
func NewAuthorizer(perms []Permission) (*Authorizer, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("load policy model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	for _, p := range perms {
		if _, err := e.AddPolicy(p.Role, p.Object, p.Action); err != nil {
			return nil, fmt.Errorf("add policy %s/%s/%s: %w", p.Role, p.Object, p.Action, err)
		}
	}
	for _, g := range roleInheritance {
		if _, err := e.AddGroupingPolicy(g[0], g[1]); err != nil {
			return nil, fmt.Errorf("add role %s -> %s: %w", g[0], g[1], err)
		}
	}
	return &Authorizer{enforcer: e}, nil
}

// Allowed reports whether any role of the caller grants act on obj.
func (a *Authorizer) Allowed(ctx context.Context, obj, act string) bool {
	if a == nil {
		return false
	}
	for _, role := range RolesFromContext(ctx) {
		ok, err := a.enforcer.Enforce(role, obj, act)
		if err == nil && ok {
			return true
		}
	}
	return false
}
