// Package authz centralizes every project access decision. Handlers and
// middleware never inline ownership or membership checks; they ask Resolve
// and act on the single role it returns.
package authz

import (
	"github.com/taskflowhq/taskflow/internal/domain/project"
)

// Role is the caller's effective role on a project.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleLead   Role = project.RoleLead
	RoleMember Role = project.RoleMember
	RoleViewer Role = project.RoleViewer
	RoleDenied Role = "denied"
)

func (r Role) Granted() bool {
	return r != RoleDenied
}

// CanModify reports whether the role may mutate project content (tasks,
// comments). Viewers, public or stored, are read-only.
func (r Role) CanModify() bool {
	switch r {
	case RoleOwner, RoleLead, RoleMember:
		return true
	}

	return false
}

// Resolve computes exactly one of owner / stored team role / public viewer /
// denied, in that precedence order. First match wins: an owner who also
// appears in the team list resolves as owner.
func Resolve(userID string, p project.Project) Role {
	if p.IsOwner(userID) {
		return RoleOwner
	}

	if role, ok := p.MemberRole(userID); ok {
		return Role(role)
	}

	if p.IsPublic {
		return RoleViewer
	}

	return RoleDenied
}

// IsOwner is the stricter owner-only gate for project mutation and team
// management. It short-circuits before the four-outcome resolution runs.
func IsOwner(userID string, p project.Project) bool {
	return p.IsOwner(userID)
}
