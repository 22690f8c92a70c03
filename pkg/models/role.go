package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Role is a user's privilege level on one project.
//
// Roles are totally ordered by privilege; the zero value is not a role and
// never comes out of the store.
type Role int

const (
	RoleReader Role = iota + 1
	RoleCommenter
	RoleEditor
)

var roleNames = map[Role]string{
	RoleReader:    "Reader",
	RoleCommenter: "Commenter",
	RoleEditor:    "Editor",
}

// Roles lists every role from least to most privileged.
func Roles() []Role {
	return []Role{RoleReader, RoleCommenter, RoleEditor}
}

// ParseRole converts a canonical role name into a Role.
func ParseRole(name string) (Role, error) {
	names := make([]string, 0, len(roleNames))
	for _, r := range Roles() {
		if roleNames[r] == name {
			return r, nil
		}
		names = append(names, roleNames[r])
	}
	return 0, fmt.Errorf("unknown role %q, expected one of %s", name, strings.Join(names, ", "))
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast reports whether r grants at least the privileges of min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r >= min
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// MarshalJSON encodes the role by name.
func (r Role) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid role %d", int(r))
	}
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a role name.
func (r *Role) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("role must be a string: %w", err)
	}
	parsed, err := ParseRole(name)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value stores the role by name; the schema restricts the column to these names.
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return r.String(), nil
}

// Scan reads a role name from the store.
func (r *Role) Scan(src interface{}) error {
	var name string
	switch v := src.(type) {
	case string:
		name = v
	case []byte:
		name = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Role", src)
	}
	parsed, err := ParseRole(name)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
