package policy

import (
	"github.com/finstack/docflow/internal/domain/document"
)

// Authorizer answers whether a role may perform an action. It is a
// static capability table instead of role-ID comparisons scattered
// through transition code; ADMIN may perform everything.
type Authorizer struct {
	capabilities map[document.Action]map[document.Role]bool
}

// NewAuthorizer creates the default capability table
func NewAuthorizer() *Authorizer {
	return &Authorizer{
		capabilities: map[document.Action]map[document.Role]bool{
			document.ActionSubmit: roles(
				document.RoleEmployee, document.RoleManager, document.RoleDirector,
				document.RoleCEO, document.RoleAccountant,
			),
			document.ActionApprove: roles(
				document.RoleManager, document.RoleDirector, document.RoleCEO,
			),
			document.ActionReject: roles(
				document.RoleManager, document.RoleDirector, document.RoleCEO,
			),
			document.ActionReopen: roles(
				document.RoleEmployee, document.RoleManager, document.RoleDirector,
				document.RoleCEO, document.RoleAccountant,
			),
			document.ActionPay: roles(
				document.RoleAccountant,
			),
			document.ActionTerminate: roles(
				document.RoleDirector, document.RoleCEO,
			),
			document.ActionCancel: roles(
				document.RoleManager, document.RoleDirector, document.RoleCEO,
			),
		},
	}
}

// Can reports whether the role may perform the action on documents of
// the category
func (a *Authorizer) Can(role document.Role, action document.Action, category document.Category) bool {
	if role == document.RoleAdmin {
		return true
	}
	allowed, ok := a.capabilities[action]
	if !ok {
		return false
	}
	return allowed[role]
}

func roles(rs ...document.Role) map[document.Role]bool {
	m := make(map[document.Role]bool, len(rs))
	for _, r := range rs {
		m[r] = true
	}
	return m
}
