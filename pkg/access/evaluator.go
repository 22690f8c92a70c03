// Package access resolves a caller's role on a project and enforces minimum roles.
package access

import (
	"context"
	"errors"

	"ecdar-gateway/pkg/apperr"
	"ecdar-gateway/pkg/models"
)

// Store is the part of the entity store the evaluator reads.
type Store interface {
	GetAccessByUserAndProject(ctx context.Context, userID, projectID int64) (*models.Access, error)
}

// Evaluator answers "what may this user do on this project". It holds no
// cache: every call reads the current access row.
type Evaluator struct {
	store Store
}

func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{store: store}
}

// Resolve returns the stored role, or ok=false when the user has no access row.
func (e *Evaluator) Resolve(ctx context.Context, userID, projectID int64) (models.Role, bool, error) {
	a, err := e.store.GetAccessByUserAndProject(ctx, userID, projectID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, apperr.Internal(err, "failed to resolve access")
	}
	return a.Role, true, nil
}

// Require fails with PermissionDenied unless the user holds at least min on
// the project. action names the attempted operation in the error message.
func (e *Evaluator) Require(ctx context.Context, userID, projectID int64, min models.Role, action string) (models.Role, error) {
	role, ok, err := e.Resolve(ctx, userID, projectID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apperr.PermissionDenied("User does not have access to project")
	}
	if !role.AtLeast(min) {
		return role, apperr.PermissionDenied("Role does not have permission to %s", action)
	}
	return role, nil
}

// RequireAny fails with PermissionDenied unless the user has some role on the project.
func (e *Evaluator) RequireAny(ctx context.Context, userID, projectID int64) (models.Role, error) {
	return e.Require(ctx, userID, projectID, models.RoleReader, "read project")
}
