package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"ecdar-gateway/pkg/apperr"
	"ecdar-gateway/pkg/models"

	"github.com/rs/zerolog"
)

// SQLDatabase implements DatabaseInterface over database/sql.
// Statements use $n placeholders and RETURNING, which both backends accept.
type SQLDatabase struct {
	db     *sql.DB
	driver string
	schema string
	logger zerolog.Logger

	// classify turns a driver constraint error into apperr.ConstraintViolation,
	// or returns nil for anything else.
	classify func(err error) error
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB returns the underlying sql.DB for direct queries.
func (db *SQLDatabase) DB() *sql.DB {
	return db.db
}

// Migrate applies the embedded schema for the backend.
func (db *SQLDatabase) Migrate(ctx context.Context) error {
	if _, err := db.db.ExecContext(ctx, db.schema); err != nil {
		return fmt.Errorf("failed to apply %s schema: %w", db.driver, err)
	}
	return nil
}

// HealthCheck pings the database
func (db *SQLDatabase) HealthCheck(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Close closes the connection pool
func (db *SQLDatabase) Close() error {
	if db.db == nil {
		return nil
	}
	return db.db.Close()
}

// ==== error helpers ====

func (db *SQLDatabase) wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) == apperr.KindInternal {
		if c := db.classify(err); c != nil {
			return c
		}
	}
	return apperr.Wrap(err, "failed to %s", op)
}

func (db *SQLDatabase) notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(notFound)
	}
	return db.wrap(err, op)
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func (db *SQLDatabase) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return db.wrap(err, op+": begin tx")
	}
	defer tx.Rollback() // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return db.wrap(err, op+": commit")
	}
	return nil
}

// jsonParam passes JSON as text: jsonb accepts it in Postgres, SQLite stores TEXT.
func jsonParam(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// ================= Users =================

const userColumns = `id, email, username`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Username); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user and fills in its id
func (db *SQLDatabase) CreateUser(ctx context.Context, user *models.User) error {
	err := db.db.QueryRowContext(ctx,
		`INSERT INTO users (email, username) VALUES ($1, $2) RETURNING id`,
		user.Email, user.Username,
	).Scan(&user.ID)
	return db.wrap(err, "create user")
}

func (db *SQLDatabase) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(db.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, db.notFoundOr(err, "User not found", "get user")
	}
	return u, nil
}

func (db *SQLDatabase) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(db.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, db.notFoundOr(err, "User not found", "get user by email")
	}
	return u, nil
}

func (db *SQLDatabase) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(db.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, db.notFoundOr(err, "User not found", "get user by username")
	}
	return u, nil
}

func (db *SQLDatabase) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, db.wrap(err, "list users")
	}
	defer rows.Close()

	result := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, db.wrap(err, "scan user")
		}
		result = append(result, *u)
	}
	return result, db.wrap(rows.Err(), "list users")
}

// DeleteUser removes a user; projects and access rows cascade
func (db *SQLDatabase) DeleteUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(db.db.QueryRowContext(ctx, `DELETE FROM users WHERE id = $1 RETURNING `+userColumns, id))
	if err != nil {
		return nil, db.notFoundOr(err, "User not found", "delete user")
	}
	return u, nil
}

// ================= Projects =================

const projectColumns = `id, name, components_info, owner_id`

func scanProject(row interface{ Scan(...interface{}) error }) (*models.Project, error) {
	var p models.Project
	var info []byte
	if err := row.Scan(&p.ID, &p.Name, &info, &p.OwnerID); err != nil {
		return nil, err
	}
	p.ComponentsInfo = json.RawMessage(info)
	return &p, nil
}

// CreateProject inserts a project and grants its owner Editor access
func (db *SQLDatabase) CreateProject(ctx context.Context, project *models.Project) error {
	if len(project.ComponentsInfo) == 0 {
		project.ComponentsInfo = json.RawMessage(`{}`)
	}
	return db.withTx(ctx, "create project", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO projects (name, components_info, owner_id) VALUES ($1, $2, $3) RETURNING id`,
			project.Name, jsonParam(project.ComponentsInfo), project.OwnerID,
		).Scan(&project.ID)
		if err != nil {
			return db.wrap(err, "create project")
		}
		// owner access
		_, err = tx.ExecContext(ctx,
			`INSERT INTO project_access (role, project_id, user_id) VALUES ($1, $2, $3)`,
			models.RoleEditor, project.ID, project.OwnerID,
		)
		return db.wrap(err, "add owner access")
	})
}

func (db *SQLDatabase) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	p, err := scanProject(db.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		return nil, db.notFoundOr(err, "Project not found", "get project")
	}
	return p, nil
}

func (db *SQLDatabase) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id`)
	if err != nil {
		return nil, db.wrap(err, "list projects")
	}
	defer rows.Close()

	result := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, db.wrap(err, "scan project")
		}
		result = append(result, *p)
	}
	return result, db.wrap(rows.Err(), "list projects")
}

// ListProjectInfoByUser lists every project the user holds access to, with the role
func (db *SQLDatabase) ListProjectInfoByUser(ctx context.Context, userID int64) ([]models.ProjectInfo, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.owner_id, a.role
		FROM project_access a
		JOIN projects p ON p.id = a.project_id
		WHERE a.user_id = $1
		ORDER BY p.id
	`, userID)
	if err != nil {
		return nil, db.wrap(err, "list project info")
	}
	defer rows.Close()

	result := []models.ProjectInfo{}
	for rows.Next() {
		var info models.ProjectInfo
		if err := rows.Scan(&info.ProjectID, &info.Name, &info.OwnerID, &info.Role); err != nil {
			return nil, db.wrap(err, "scan project info")
		}
		result = append(result, info)
	}
	return result, db.wrap(rows.Err(), "list project info")
}

// UpdateProject applies the patch and, when component data is part of it,
// invalidates the project's queries before committing.
func (db *SQLDatabase) UpdateProject(ctx context.Context, update models.ProjectUpdate) (*models.Project, error) {
	var name interface{}
	if update.Name != nil {
		name = *update.Name
	}

	var updated *models.Project
	err := db.withTx(ctx, "update project", func(tx *sql.Tx) error {
		p, err := scanProject(tx.QueryRowContext(ctx, `
			UPDATE projects
			SET name = COALESCE($1, name),
			    components_info = COALESCE($2, components_info)
			WHERE id = $3
			RETURNING `+projectColumns,
			name, jsonParam(update.ComponentsInfo), update.ID,
		))
		if err != nil {
			return db.notFoundOr(err, "Project not found", "update project")
		}
		if len(update.ComponentsInfo) > 0 {
			n, err := invalidateProjectQueries(ctx, tx, p.ID)
			if err != nil {
				return db.wrap(err, "invalidate queries")
			}
			db.logger.Debug().Int64("project_id", p.ID).Int64("queries", n).Msg("queries marked outdated")
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteProject removes a project; access rows and queries cascade
func (db *SQLDatabase) DeleteProject(ctx context.Context, id int64) (*models.Project, error) {
	p, err := scanProject(db.db.QueryRowContext(ctx, `DELETE FROM projects WHERE id = $1 RETURNING `+projectColumns, id))
	if err != nil {
		return nil, db.notFoundOr(err, "Project not found", "delete project")
	}
	return p, nil
}

// ================= Access =================

const accessColumns = `id, role, project_id, user_id`

func scanAccess(row interface{ Scan(...interface{}) error }) (*models.Access, error) {
	var a models.Access
	if err := row.Scan(&a.ID, &a.Role, &a.ProjectID, &a.UserID); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccess inserts an access row. A second row for the same
// (project, user) pair is a constraint violation, never an upgrade.
func (db *SQLDatabase) CreateAccess(ctx context.Context, access *models.Access) error {
	if !access.Role.Valid() {
		return apperr.Invalid("invalid role %d", int(access.Role))
	}
	err := db.db.QueryRowContext(ctx,
		`INSERT INTO project_access (role, project_id, user_id) VALUES ($1, $2, $3) RETURNING id`,
		access.Role, access.ProjectID, access.UserID,
	).Scan(&access.ID)
	return db.wrap(err, "create access")
}

func (db *SQLDatabase) GetAccess(ctx context.Context, id int64) (*models.Access, error) {
	a, err := scanAccess(db.db.QueryRowContext(ctx, `SELECT `+accessColumns+` FROM project_access WHERE id = $1`, id))
	if err != nil {
		return nil, db.notFoundOr(err, "Access not found", "get access")
	}
	return a, nil
}

func (db *SQLDatabase) GetAccessByUserAndProject(ctx context.Context, userID, projectID int64) (*models.Access, error) {
	a, err := scanAccess(db.db.QueryRowContext(ctx,
		`SELECT `+accessColumns+` FROM project_access WHERE user_id = $1 AND project_id = $2`,
		userID, projectID,
	))
	if err != nil {
		return nil, db.notFoundOr(err, "Access not found", "get access by user and project")
	}
	return a, nil
}

func (db *SQLDatabase) ListAccessByProject(ctx context.Context, projectID int64) ([]models.AccessInfo, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT a.id, a.project_id, a.user_id, u.username, a.role
		FROM project_access a
		JOIN users u ON u.id = a.user_id
		WHERE a.project_id = $1
		ORDER BY a.id
	`, projectID)
	if err != nil {
		return nil, db.wrap(err, "list access")
	}
	defer rows.Close()

	result := []models.AccessInfo{}
	for rows.Next() {
		var info models.AccessInfo
		if err := rows.Scan(&info.ID, &info.ProjectID, &info.UserID, &info.Username, &info.Role); err != nil {
			return nil, db.wrap(err, "scan access")
		}
		result = append(result, info)
	}
	return result, db.wrap(rows.Err(), "list access")
}

// UpdateAccess writes the role; id, project and user never change
func (db *SQLDatabase) UpdateAccess(ctx context.Context, update models.AccessUpdate) (*models.Access, error) {
	if !update.Role.Valid() {
		return nil, apperr.Invalid("invalid role %d", int(update.Role))
	}
	a, err := scanAccess(db.db.QueryRowContext(ctx,
		`UPDATE project_access SET role = $1 WHERE id = $2 RETURNING `+accessColumns,
		update.Role, update.ID,
	))
	if err != nil {
		return nil, db.notFoundOr(err, "Access not found", "update access")
	}
	return a, nil
}

func (db *SQLDatabase) DeleteAccess(ctx context.Context, id int64) (*models.Access, error) {
	a, err := scanAccess(db.db.QueryRowContext(ctx, `DELETE FROM project_access WHERE id = $1 RETURNING `+accessColumns, id))
	if err != nil {
		return nil, db.notFoundOr(err, "Access not found", "delete access")
	}
	return a, nil
}

// ================= Queries =================

const queryColumns = `id, string, result, outdated, project_id`

func scanQuery(row interface{ Scan(...interface{}) error }) (*models.Query, error) {
	var q models.Query
	var result []byte
	if err := row.Scan(&q.ID, &q.String, &result, &q.Outdated, &q.ProjectID); err != nil {
		return nil, err
	}
	if result != nil {
		q.Result = json.RawMessage(result)
	}
	return &q, nil
}

// CreateQuery inserts a query with no result, outdated by construction
func (db *SQLDatabase) CreateQuery(ctx context.Context, query *models.Query) error {
	err := db.db.QueryRowContext(ctx,
		`INSERT INTO queries (string, result, outdated, project_id) VALUES ($1, NULL, TRUE, $2) RETURNING id`,
		query.String, query.ProjectID,
	).Scan(&query.ID)
	if err != nil {
		return db.wrap(err, "create query")
	}
	query.Result = nil
	query.Outdated = true
	return nil
}

func (db *SQLDatabase) GetQuery(ctx context.Context, id int64) (*models.Query, error) {
	q, err := scanQuery(db.db.QueryRowContext(ctx, `SELECT `+queryColumns+` FROM queries WHERE id = $1`, id))
	if err != nil {
		return nil, db.notFoundOr(err, "Query not found", "get query")
	}
	return q, nil
}

func (db *SQLDatabase) ListQueriesByProject(ctx context.Context, projectID int64) ([]models.Query, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT `+queryColumns+` FROM queries WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, db.wrap(err, "list queries")
	}
	defer rows.Close()

	result := []models.Query{}
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, db.wrap(err, "scan query")
		}
		result = append(result, *q)
	}
	return result, db.wrap(rows.Err(), "list queries")
}

// UpdateQuery writes the query text only. The cached result and the
// outdated flag are left as they are.
func (db *SQLDatabase) UpdateQuery(ctx context.Context, update models.QueryUpdate) (*models.Query, error) {
	q, err := scanQuery(db.db.QueryRowContext(ctx,
		`UPDATE queries SET string = $1 WHERE id = $2 RETURNING `+queryColumns,
		update.String, update.ID,
	))
	if err != nil {
		return nil, db.notFoundOr(err, "Query not found", "update query")
	}
	return q, nil
}

// SaveQueryResult overwrites the result and marks the query fresh in one statement
func (db *SQLDatabase) SaveQueryResult(ctx context.Context, id int64, result json.RawMessage) (*models.Query, error) {
	if len(result) == 0 {
		return nil, apperr.Invalid("query result is empty")
	}
	q, err := scanQuery(db.db.QueryRowContext(ctx,
		`UPDATE queries SET result = $1, outdated = FALSE WHERE id = $2 RETURNING `+queryColumns,
		jsonParam(result), id,
	))
	if err != nil {
		return nil, db.notFoundOr(err, "Query not found", "save query result")
	}
	return q, nil
}

func (db *SQLDatabase) DeleteQuery(ctx context.Context, id int64) (*models.Query, error) {
	q, err := scanQuery(db.db.QueryRowContext(ctx, `DELETE FROM queries WHERE id = $1 RETURNING `+queryColumns, id))
	if err != nil {
		return nil, db.notFoundOr(err, "Query not found", "delete query")
	}
	return q, nil
}
