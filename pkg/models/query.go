package models

import "encoding/json"

// Query is a cached verification query owned by one project.
//
// Outdated is the staleness flag: true whenever Result may not reflect the
// project's current component data. A stale result is kept, not discarded.
type Query struct {
	ID        int64           `json:"id" db:"id"`
	String    string          `json:"string" db:"string"`
	Result    json.RawMessage `json:"result,omitempty" db:"result"`
	Outdated  bool            `json:"outdated" db:"outdated"`
	ProjectID int64           `json:"project_id" db:"project_id"`
}

// HasResult reports whether a result has ever been stored for the query.
func (q Query) HasResult() bool {
	return len(q.Result) > 0 && string(q.Result) != "null"
}

// QueryUpdate carries the only mutable query field.
type QueryUpdate struct {
	ID     int64  `json:"-"`
	String string `json:"string"`
}

// CreateQueryRequest is the payload for creating a query
type CreateQueryRequest struct {
	String    string `json:"string"`
	ProjectID int64  `json:"project_id"`
}

// SendQueryRequest asks for a query to be evaluated against a project
type SendQueryRequest struct {
	ID        int64 `json:"id"`
	ProjectID int64 `json:"project_id"`
}
