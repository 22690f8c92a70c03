// Package services holds the caller-facing operations. Each takes an already
// authenticated user id and returns either a result or an apperr error.
package services

import (
	"context"
	"errors"
	"strings"

	"ecdar-gateway/pkg/access"
	"ecdar-gateway/pkg/apperr"
	"ecdar-gateway/pkg/database"
	"ecdar-gateway/pkg/engine"
	"ecdar-gateway/pkg/models"

	"github.com/rs/zerolog"
)

// SendQueryResult is the refreshed query together with the raw engine answer
type SendQueryResult struct {
	Query    *models.Query         `json:"query"`
	Response *engine.QueryResponse `json:"response"`
}

// QueryService creates, edits and evaluates cached queries.
type QueryService struct {
	db       database.DatabaseInterface
	access   *access.Evaluator
	engine   engine.Engine
	settings engine.Settings
	logger   zerolog.Logger
}

func NewQueryService(db database.DatabaseInterface, evaluator *access.Evaluator, eng engine.Engine, logger zerolog.Logger) *QueryService {
	return &QueryService{
		db:     db,
		access: evaluator,
		engine: eng,
		logger: logger.With().Str("service", "query").Logger(),
	}
}

// WithSettings sets the engine settings sent with every evaluation.
func (s *QueryService) WithSettings(settings engine.Settings) *QueryService {
	s.settings = settings
	return s
}

// CreateQuery adds a query to a project. New queries have no result and are outdated.
func (s *QueryService) CreateQuery(ctx context.Context, userID, projectID int64, queryString string) (*models.Query, error) {
	if _, err := s.access.Require(ctx, userID, projectID, models.RoleEditor, "create query"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(queryString) == "" {
		return nil, apperr.Invalid("query string is required")
	}

	q := &models.Query{String: queryString, ProjectID: projectID}
	if err := s.db.CreateQuery(ctx, q); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", userID).Int64("project_id", projectID).Int64("query_id", q.ID).Msg("query created")
	return q, nil
}

// UpdateQuery replaces the query text. The cached result and outdated flag are kept.
func (s *QueryService) UpdateQuery(ctx context.Context, userID int64, update models.QueryUpdate) (*models.Query, error) {
	existing, err := s.db.GetQuery(ctx, update.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.Require(ctx, userID, existing.ProjectID, models.RoleEditor, "update query"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(update.String) == "" {
		return nil, apperr.Invalid("query string is required")
	}

	q, err := s.db.UpdateQuery(ctx, update)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", userID).Int64("project_id", q.ProjectID).Int64("query_id", q.ID).Msg("query updated")
	return q, nil
}

// DeleteQuery removes a query and returns the deleted row.
func (s *QueryService) DeleteQuery(ctx context.Context, userID, queryID int64) (*models.Query, error) {
	existing, err := s.db.GetQuery(ctx, queryID)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.Require(ctx, userID, existing.ProjectID, models.RoleEditor, "delete query"); err != nil {
		return nil, err
	}

	q, err := s.db.DeleteQuery(ctx, queryID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", userID).Int64("project_id", q.ProjectID).Int64("query_id", q.ID).Msg("query deleted")
	return q, nil
}

// ListQueries returns every query of a project the user can see.
func (s *QueryService) ListQueries(ctx context.Context, userID, projectID int64) ([]models.Query, error) {
	if _, err := s.access.RequireAny(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return s.db.ListQueriesByProject(ctx, projectID)
}

// SendQuery evaluates a query against the project's current component data
// and caches the result. Any role on the project may send.
//
// No transaction is held while the engine works. When two sends of the same
// query overlap, whichever write-back lands last is kept.
func (s *QueryService) SendQuery(ctx context.Context, userID int64, req models.SendQueryRequest) (*SendQueryResult, error) {
	log := s.logger.With().Int64("user_id", userID).Int64("project_id", req.ProjectID).Int64("query_id", req.ID).Logger()

	if _, err := s.access.RequireAny(ctx, userID, req.ProjectID); err != nil {
		return nil, err
	}

	project, err := s.db.GetProject(ctx, req.ProjectID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("Model not found")
		}
		return nil, err
	}

	query, err := s.db.GetQuery(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if query.ProjectID != project.ID {
		return nil, apperr.NotFound("Query not found")
	}

	engineReq := &engine.QueryRequest{
		UserID:         userID,
		QueryID:        query.ID,
		Query:          query.String,
		ComponentsInfo: project.ComponentsInfo,
		Settings:       s.settings,
	}

	log.Debug().Msg("sending query to engine")
	res, err := s.engine.SendQuery(ctx, engineReq)
	if err != nil {
		log.Warn().Err(err).Msg("engine call failed")
		return nil, apperr.Internal(err, "%s", engineMessage(err))
	}
	if !res.HasResult() {
		log.Warn().Msg("engine returned no result")
		return nil, apperr.Internal(nil, "failed to get query result")
	}
	// a caller that gave up must not see its result stored
	if err := ctx.Err(); err != nil {
		return nil, apperr.Internal(err, "query aborted")
	}

	saved, err := s.db.SaveQueryResult(ctx, query.ID, res.Result)
	if err != nil {
		return nil, err
	}

	log.Info().Msg("query result stored")
	return &SendQueryResult{Query: saved, Response: res}, nil
}

func engineMessage(err error) string {
	var engineErr *engine.EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "verification engine timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "query aborted"
	}
	return err.Error()
}
