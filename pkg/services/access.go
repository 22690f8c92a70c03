package services

import (
	"context"

	"ecdar-gateway/pkg/access"
	"ecdar-gateway/pkg/apperr"
	"ecdar-gateway/pkg/database"
	"ecdar-gateway/pkg/models"

	"github.com/rs/zerolog"
)

// AccessService grants, changes and revokes project roles.
type AccessService struct {
	db     database.DatabaseInterface
	access *access.Evaluator
	logger zerolog.Logger
}

func NewAccessService(db database.DatabaseInterface, evaluator *access.Evaluator, logger zerolog.Logger) *AccessService {
	return &AccessService{
		db:     db,
		access: evaluator,
		logger: logger.With().Str("service", "access").Logger(),
	}
}

// CreateAccess grants the target user a role. Only Editors may grant, and a
// user holds at most one role per project.
func (s *AccessService) CreateAccess(ctx context.Context, userID int64, req models.CreateAccessRequest) (*models.Access, error) {
	if _, err := s.access.Require(ctx, userID, req.ProjectID, models.RoleEditor, "create access"); err != nil {
		return nil, err
	}
	if !req.Role.Valid() {
		return nil, apperr.Invalid("a valid role is required")
	}
	if err := validateTarget(req.User); err != nil {
		return nil, err
	}

	target, err := s.resolveTarget(ctx, req.User)
	if err != nil {
		return nil, err
	}

	a := &models.Access{Role: req.Role, ProjectID: req.ProjectID, UserID: target.ID}
	if err := s.db.CreateAccess(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int64("project_id", a.ProjectID).
		Int64("target_user_id", a.UserID).
		Str("role", a.Role.String()).
		Msg("access granted")
	return a, nil
}

// UpdateAccess changes the role of an access row. Nothing else is writable.
func (s *AccessService) UpdateAccess(ctx context.Context, userID int64, update models.AccessUpdate) (*models.Access, error) {
	existing, err := s.authorizeRow(ctx, userID, update.ID, "update access")
	if err != nil {
		return nil, err
	}
	if !update.Role.Valid() {
		return nil, apperr.Invalid("a valid role is required")
	}

	a, err := s.db.UpdateAccess(ctx, update)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int64("project_id", existing.ProjectID).
		Int64("access_id", a.ID).
		Str("role", a.Role.String()).
		Msg("access updated")
	return a, nil
}

// DeleteAccess revokes an access row and returns it.
func (s *AccessService) DeleteAccess(ctx context.Context, userID, accessID int64) (*models.Access, error) {
	if _, err := s.authorizeRow(ctx, userID, accessID, "delete access"); err != nil {
		return nil, err
	}

	a, err := s.db.DeleteAccess(ctx, accessID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", userID).Int64("project_id", a.ProjectID).Int64("access_id", a.ID).Msg("access revoked")
	return a, nil
}

// ListAccess lists who can see a project, for anyone who can see it.
func (s *AccessService) ListAccess(ctx context.Context, userID, projectID int64) ([]models.AccessInfo, error) {
	if _, err := s.access.RequireAny(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return s.db.ListAccessByProject(ctx, projectID)
}

// authorizeRow loads an access row and checks the caller is an Editor on
// its project. The owner's own row cannot be changed.
func (s *AccessService) authorizeRow(ctx context.Context, userID, accessID int64, action string) (*models.Access, error) {
	existing, err := s.db.GetAccess(ctx, accessID)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.Require(ctx, userID, existing.ProjectID, models.RoleEditor, action); err != nil {
		return nil, err
	}

	project, err := s.db.GetProject(ctx, existing.ProjectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID == existing.UserID {
		return nil, apperr.PermissionDenied("Cannot %s of the project owner", action)
	}
	return existing, nil
}

func validateTarget(t models.AccessTarget) error {
	set := 0
	for _, present := range []bool{t.UserID != nil, t.Username != nil, t.Email != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return apperr.Invalid("exactly one of user_id, username or email is required")
	}
	return nil
}

func (s *AccessService) resolveTarget(ctx context.Context, t models.AccessTarget) (*models.User, error) {
	switch {
	case t.UserID != nil:
		return s.db.GetUserByID(ctx, *t.UserID)
	case t.Username != nil:
		return s.db.GetUserByUsername(ctx, *t.Username)
	default:
		return s.db.GetUserByEmail(ctx, *t.Email)
	}
}
