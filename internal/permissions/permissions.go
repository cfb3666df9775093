// Package permissions resolves role-based capabilities against a live,
// admin-editable role→capability map that is shared by every process
// through a change feed.
package permissions

import (
	"fmt"
	"slices"
	"time"
)

// Role is the named bundle attached to a user account.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleMember}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return slices.Contains(Roles(), r)
}

// Capability is an opaque token guarding one class of action.
type Capability string

const (
	CreateProject       Capability = "create_project"
	UpdateProject       Capability = "update_project"
	DeleteProject       Capability = "delete_project"
	AssignProject       Capability = "assign_project"
	ChangeProjectStatus Capability = "change_project_status"
	ViewAllProjects     Capability = "view_all_projects"
	CreateTask          Capability = "create_task"
	AssignTask          Capability = "assign_task"
	UpdateTaskStatus    Capability = "update_task_status"
	DeleteTask          Capability = "delete_task"
	ViewReports         Capability = "view_reports"
	ManageUsers         Capability = "manage_users"
	ViewTeamWorkload    Capability = "view_team_workload"
	AccessSettings      Capability = "access_settings"
	ManagePermissions   Capability = "manage_permissions"
)

// Capabilities returns the closed set of capabilities.
func Capabilities() []Capability {
	return []Capability{
		CreateProject,
		UpdateProject,
		DeleteProject,
		AssignProject,
		ChangeProjectStatus,
		ViewAllProjects,
		CreateTask,
		AssignTask,
		UpdateTaskStatus,
		DeleteTask,
		ViewReports,
		ManageUsers,
		ViewTeamWorkload,
		AccessSettings,
		ManagePermissions,
	}
}

// Valid reports whether c belongs to the closed capability set.
func (c Capability) Valid() bool {
	return slices.Contains(Capabilities(), c)
}

// Actor is the authenticated caller of a guarded operation.
type Actor struct {
	UserID uint64
	Role   Role
}

// RoleCapabilityMap maps a role to the capabilities it is granted.
// Order inside each slice carries no meaning.
type RoleCapabilityMap map[Role][]Capability

// DefaultMap is the seed written when no configuration has been stored yet.
//
// The admin entry is informational: admins are granted everything without
// consulting the map.
func DefaultMap() RoleCapabilityMap {
	return RoleCapabilityMap{
		RoleAdmin: Capabilities(),
		RoleManager: {
			CreateProject,
			UpdateProject,
			AssignProject,
			ChangeProjectStatus,
			ViewAllProjects,
			CreateTask,
			AssignTask,
			UpdateTaskStatus,
			DeleteTask,
			ViewReports,
			ViewTeamWorkload,
		},
		RoleMember: {
			UpdateTaskStatus,
		},
	}
}

// Validate rejects unknown roles and capabilities outside the closed set.
func (m RoleCapabilityMap) Validate() error {
	if m == nil {
		return &InvalidMapError{Problems: []string{"map is empty"}}
	}
	var problems []string
	for role, caps := range m {
		if !role.Valid() {
			problems = append(problems, fmt.Sprintf("unknown role %q", role))
			continue
		}
		for _, c := range caps {
			if !c.Valid() {
				problems = append(problems, fmt.Sprintf("unknown capability %q for role %q", c, role))
			}
		}
	}
	if len(problems) > 0 {
		slices.Sort(problems)
		return &InvalidMapError{Problems: problems}
	}
	return nil
}

// Normalize returns a deep copy with every capability list de-duplicated
// and sorted, so equal maps serialize identically.
func (m RoleCapabilityMap) Normalize() RoleCapabilityMap {
	out := make(RoleCapabilityMap, len(m))
	for role, caps := range m {
		cp := slices.Clone(caps)
		slices.Sort(cp)
		out[role] = slices.Compact(cp)
		if out[role] == nil {
			out[role] = []Capability{}
		}
	}
	return out
}

// Config is the persisted configuration record.
type Config struct {
	Revision  uint64            `json:"revision"`
	Roles     RoleCapabilityMap `json:"roles"`
	UpdatedBy uint64            `json:"updated_by,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Decision is the outcome of a capability check.
type Decision int

const (
	Denied Decision = iota
	Allowed
	// Unavailable means the map has not been loaded yet; callers must treat it as a denial.
	Unavailable
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Unavailable:
		return "unavailable"
	default:
		return "denied"
	}
}

// State tracks the engine lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}
