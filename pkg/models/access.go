package models

// Access grants one user a role on one project. (ProjectID, UserID) is unique.
type Access struct {
	ID        int64 `json:"id" db:"id"`
	Role      Role  `json:"role" db:"role"`
	ProjectID int64 `json:"project_id" db:"project_id"`
	UserID    int64 `json:"user_id" db:"user_id"`
}

// AccessUpdate is the only way to change an access row: the role is the sole mutable field.
type AccessUpdate struct {
	ID   int64 `json:"-"`
	Role Role  `json:"role"`
}

// AccessTarget selects the user receiving access. Exactly one field must be set.
type AccessTarget struct {
	UserID   *int64  `json:"user_id,omitempty"`
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
}

// CreateAccessRequest is the payload for granting access
type CreateAccessRequest struct {
	Role      Role         `json:"role"`
	ProjectID int64        `json:"project_id"`
	User      AccessTarget `json:"user"`
}

// AccessInfo is an access row joined with the user it grants
type AccessInfo struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Role      Role   `json:"role"`
}
