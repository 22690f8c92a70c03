package services

import (
	"context"
	"encoding/json"
	"strings"

	"ecdar-gateway/pkg/access"
	"ecdar-gateway/pkg/apperr"
	"ecdar-gateway/pkg/database"
	"ecdar-gateway/pkg/models"

	"github.com/rs/zerolog"
)

// ProjectService manages projects and their component data.
type ProjectService struct {
	db     database.DatabaseInterface
	access *access.Evaluator
	logger zerolog.Logger
}

func NewProjectService(db database.DatabaseInterface, evaluator *access.Evaluator, logger zerolog.Logger) *ProjectService {
	return &ProjectService{
		db:     db,
		access: evaluator,
		logger: logger.With().Str("service", "project").Logger(),
	}
}

// CreateProject creates a project owned by the caller, who becomes its Editor.
func (s *ProjectService) CreateProject(ctx context.Context, userID int64, name string, componentsInfo json.RawMessage) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("project name is required")
	}
	if string(componentsInfo) == "null" {
		componentsInfo = nil
	}
	if len(componentsInfo) > 0 && !json.Valid(componentsInfo) {
		return nil, apperr.Invalid("components_info must be valid JSON")
	}

	p := &models.Project{Name: name, ComponentsInfo: componentsInfo, OwnerID: userID}
	if err := s.db.CreateProject(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", userID).Int64("project_id", p.ID).Msg("project created")
	return p, nil
}

// GetProject returns a project with its queries and the caller's role.
func (s *ProjectService) GetProject(ctx context.Context, userID, projectID int64) (*models.ProjectWithQueries, error) {
	role, err := s.access.RequireAny(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	p, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	queries, err := s.db.ListQueriesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	return &models.ProjectWithQueries{Project: *p, Role: role, Queries: queries}, nil
}

// ListProjects lists every project the caller holds a role on.
func (s *ProjectService) ListProjects(ctx context.Context, userID int64) ([]models.ProjectInfo, error) {
	return s.db.ListProjectInfoByUser(ctx, userID)
}

// UpdateProject renames a project and/or replaces its component data.
// New component data marks every query of the project outdated.
func (s *ProjectService) UpdateProject(ctx context.Context, userID int64, update models.ProjectUpdate) (*models.Project, error) {
	if update.Name == nil && len(update.ComponentsInfo) == 0 {
		return nil, apperr.Invalid("nothing to update")
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, apperr.Invalid("project name cannot be empty")
	}
	if len(update.ComponentsInfo) > 0 && (!json.Valid(update.ComponentsInfo) || string(update.ComponentsInfo) == "null") {
		return nil, apperr.Invalid("components_info must be valid JSON")
	}
	if _, err := s.access.Require(ctx, userID, update.ID, models.RoleEditor, "update project"); err != nil {
		return nil, err
	}

	p, err := s.db.UpdateProject(ctx, update)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int64("project_id", p.ID).
		Bool("components_changed", len(update.ComponentsInfo) > 0).
		Msg("project updated")
	return p, nil
}

// DeleteProject deletes a project with its access rows and queries. Owner only.
func (s *ProjectService) DeleteProject(ctx context.Context, userID, projectID int64) (*models.Project, error) {
	if _, err := s.access.RequireAny(ctx, userID, projectID); err != nil {
		return nil, err
	}
	p, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != userID {
		return nil, apperr.PermissionDenied("Only the owner can delete the project")
	}

	deleted, err := s.db.DeleteProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", userID).Int64("project_id", projectID).Msg("project deleted")
	return deleted, nil
}
