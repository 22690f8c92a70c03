package database

import (
	"context"
	"encoding/json"
	"fmt"

	"ecdar-gateway/pkg/models"

	"github.com/rs/zerolog"
)

// DatabaseInterface is the entity store. Missing rows are reported as
// apperr.NotFound and constraint violations as apperr.ConstraintViolation.
type DatabaseInterface interface {
	// Users
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	DeleteUser(ctx context.Context, id int64) (*models.User, error)

	// Projects
	// CreateProject inserts the project and the owner's Editor access row together.
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
	ListProjectInfoByUser(ctx context.Context, userID int64) ([]models.ProjectInfo, error)
	// UpdateProject marks every query of the project outdated in the same
	// transaction when the component data changes.
	UpdateProject(ctx context.Context, update models.ProjectUpdate) (*models.Project, error)
	DeleteProject(ctx context.Context, id int64) (*models.Project, error)

	// Access
	CreateAccess(ctx context.Context, access *models.Access) error
	GetAccess(ctx context.Context, id int64) (*models.Access, error)
	GetAccessByUserAndProject(ctx context.Context, userID, projectID int64) (*models.Access, error)
	ListAccessByProject(ctx context.Context, projectID int64) ([]models.AccessInfo, error)
	UpdateAccess(ctx context.Context, update models.AccessUpdate) (*models.Access, error)
	DeleteAccess(ctx context.Context, id int64) (*models.Access, error)

	// Queries
	CreateQuery(ctx context.Context, query *models.Query) error
	GetQuery(ctx context.Context, id int64) (*models.Query, error)
	ListQueriesByProject(ctx context.Context, projectID int64) ([]models.Query, error)
	// UpdateQuery changes the query text only; result and outdated are kept.
	UpdateQuery(ctx context.Context, update models.QueryUpdate) (*models.Query, error)
	// SaveQueryResult stores a fresh engine result and clears outdated.
	SaveQueryResult(ctx context.Context, id int64, result json.RawMessage) (*models.Query, error)
	DeleteQuery(ctx context.Context, id int64) (*models.Query, error)

	// Migrate applies the schema. Safe to call repeatedly.
	Migrate(ctx context.Context) error

	HealthCheck(ctx context.Context) error
	Close() error
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig selects and configures the backing store
type DatabaseConfig struct {
	Driver      string
	PostgresDSN string
	SQLitePath  string
	Debug       bool
}

// NewDatabase opens the store selected by config.
func NewDatabase(config DatabaseConfig, logger zerolog.Logger) (DatabaseInterface, error) {
	switch config.Driver {
	case DriverPostgres:
		if config.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres driver selected but no DSN configured")
		}
		logger.Info().Str("driver", DriverPostgres).Msg("using PostgreSQL database")
		return NewPostgresDatabase(config.PostgresDSN, logger)
	case DriverSQLite, "":
		path := config.SQLitePath
		if path == "" {
			path = "./data/gateway.db"
		}
		logger.Info().Str("driver", DriverSQLite).Str("path", path).Msg("using SQLite database")
		return NewSQLiteDatabase(path, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", config.Driver)
	}
}
