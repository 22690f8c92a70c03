package models

import "encoding/json"

// Project is a shared document of model components owned by one user.
type Project struct {
	ID             int64           `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	ComponentsInfo json.RawMessage `json:"components_info" db:"components_info"`
	OwnerID        int64           `json:"owner_id" db:"owner_id"`
}

// ProjectInfo is a project as listed for one user, with that user's role
type ProjectInfo struct {
	ProjectID int64  `json:"project_id" db:"project_id"`
	Name      string `json:"name" db:"name"`
	OwnerID   int64  `json:"owner_id" db:"owner_id"`
	Role      Role   `json:"role" db:"role"`
}

// ProjectUpdate carries the mutable project fields. Nil/empty fields are left as stored.
type ProjectUpdate struct {
	ID             int64           `json:"-"`
	Name           *string         `json:"name,omitempty"`
	ComponentsInfo json.RawMessage `json:"components_info,omitempty"`
}

// CreateProjectRequest is the payload for creating a project
type CreateProjectRequest struct {
	Name           string          `json:"name"`
	ComponentsInfo json.RawMessage `json:"components_info"`
}

// ProjectWithQueries is a project together with its cached queries
type ProjectWithQueries struct {
	Project Project `json:"project"`
	Role    Role    `json:"role"`
	Queries []Query `json:"queries"`
}
