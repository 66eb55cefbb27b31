package models

import "time"

type ProjectRole string

const (
	RoleViewer ProjectRole = "viewer"
	RoleEditor ProjectRole = "editor"
	RoleOwner  ProjectRole = "owner"
)

// Rank places roles on a total order: viewer < editor < owner.
// Unknown roles rank below everything.
func (r ProjectRole) Rank() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleOwner:
		return 3
	default:
		return 0
	}
}

// Valid reports whether r is one of the known roles.
func (r ProjectRole) Valid() bool {
	return r.Rank() > 0
}

// Satisfies reports whether a holder of r meets the minimum role requirement.
func (r ProjectRole) Satisfies(min ProjectRole) bool {
	return r.Rank() > 0 && r.Rank() >= min.Rank()
}

// ProjectMember records that a project has been shared with a user at a given
// role. The project owner is never stored here; ownership is carried on the
// project itself and always resolves to RoleOwner.
type ProjectMember struct {
	ProjectID uint64      `gorm:"primarykey" json:"project_id"`
	UserID    uint64      `gorm:"primarykey" json:"user_id"`
	Role      ProjectRole `gorm:"type:varchar(20);not null" json:"role"`
	SharedAt  time.Time   `json:"shared_at"`

	// Relations
	Project Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
