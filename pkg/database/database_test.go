package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"ecdar-gateway/pkg/apperr"
	"ecdar-gateway/pkg/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *SQLDatabase {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := NewSQLiteDatabase(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// testStores returns the SQLite store and, when TEST_POSTGRES_DSN is set,
// a freshly truncated PostgreSQL store.
func testStores(t *testing.T) map[string]*SQLDatabase {
	t.Helper()
	stores := map[string]*SQLDatabase{DriverSQLite: createTestStore(t)}

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		return stores
	}
	pg, err := NewPostgresDatabase(dsn, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { pg.Close() })
	require.NoError(t, pg.Migrate(context.Background()))
	_, err = pg.DB().Exec(`TRUNCATE queries, project_access, projects, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	stores[DriverPostgres] = pg
	return stores
}

func forEachStore(t *testing.T, fn func(t *testing.T, db *SQLDatabase)) {
	for name, db := range testStores(t) {
		t.Run(name, func(t *testing.T) { fn(t, db) })
	}
}

func seedUser(t *testing.T, db DatabaseInterface, name string) *models.User {
	t.Helper()
	u := &models.User{Email: name + "@example.com", Username: name}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func seedProject(t *testing.T, db DatabaseInterface, owner int64, components string) *models.Project {
	t.Helper()
	p := &models.Project{Name: "project", ComponentsInfo: json.RawMessage(components), OwnerID: owner}
	require.NoError(t, db.CreateProject(context.Background(), p))
	return p
}

func seedQuery(t *testing.T, db DatabaseInterface, projectID int64, s string) *models.Query {
	t.Helper()
	q := &models.Query{String: s, ProjectID: projectID}
	require.NoError(t, db.CreateQuery(context.Background(), q))
	return q
}

func TestSQLite_Pragmas(t *testing.T) {
	db := createTestStore(t)

	var fk int
	require.NoError(t, db.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var mode string
	require.NoError(t, db.DB().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestSQLite_PragmasOnEveryConnection(t *testing.T) {
	db := createTestStore(t)
	ctx := context.Background()
	db.DB().SetMaxOpenConns(2)

	first, err := db.DB().Conn(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := db.DB().Conn(ctx)
	require.NoError(t, err)
	defer second.Close()

	for _, conn := range []*sql.Conn{first, second} {
		var fk, busy int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy))
		assert.Equal(t, 1, fk)
		assert.Equal(t, 5000, busy)
	}
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "./data/g.db?"+sqlitePragmas, sqliteDSN("./data/g.db"))
	assert.Equal(t, "file:g.db?cache=shared&"+sqlitePragmas, sqliteDSN("file:g.db?cache=shared"))
}

func TestMigrate_Idempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		ctx := context.Background()
		require.NoError(t, db.Migrate(ctx))
		require.NoError(t, db.Migrate(ctx))
		require.NoError(t, db.HealthCheck(ctx))
	})
}

func TestUsers_CRUD(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		ctx := context.Background()
		u := seedUser(t, db, "alice")
		assert.NotZero(t, u.ID)

		byID, err := db.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u, byID)

		byEmail, err := db.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)

		byName, err := db.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byName.ID)

		dup := &models.User{Email: "alice@example.com", Username: "other"}
		err = db.CreateUser(ctx, dup)
		assert.Equal(t, apperr.KindConstraintViolation, apperr.KindOf(err))

		users, err := db.ListUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 1)

		deleted, err := db.DeleteUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.ID, deleted.ID)

		_, err = db.GetUserByID(ctx, u.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestCreateProject_GrantsOwnerEditor(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		ctx := context.Background()
		owner := seedUser(t, db, "owner")
		p := seedProject(t, db, owner.ID, `{"components":[]}`)

		access, err := db.GetAccessByUserAndProject(ctx, owner.ID, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RoleEditor, access.Role)

		infos, err := db.ListProjectInfoByUser(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, models.ProjectInfo{ProjectID: p.ID, Name: "project", OwnerID: owner.ID, Role: models.RoleEditor}, infos[0])
	})
}

func TestCreateProject_UnknownOwner(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		p := &models.Project{Name: "orphan", OwnerID: 999}
		err := db.CreateProject(context.Background(), p)
		assert.Equal(t, apperr.KindConstraintViolation, apperr.KindOf(err))

		projects, err := db.ListProjects(context.Background())
		require.NoError(t, err)
		assert.Empty(t, projects)
	})
}

func TestAccess_UniquePair(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		ctx := context.Background()
		owner := seedUser(t, db, "owner")
		other := seedUser(t, db, "other")
		p := seedProject(t, db, owner.ID, `{}`)

		first := &models.Access{Role: models.RoleReader, ProjectID: p.ID, UserID: other.ID}
		require.NoError(t, db.CreateAccess(ctx, first))

		second := &models.Access{Role: models.RoleEditor, ProjectID: p.ID, UserID: other.ID}
		err := db.CreateAccess(ctx, second)
		assert.ErrorIs(t, err, apperr.ErrConstraintViolation)

		// never an upgrade
		got, err := db.GetAccess(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RoleReader, got.Role)
	})
}

func TestAccess_ConcurrentGrants(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		ctx := context.Background()
		owner := seedUser(t, db, "owner")
		other := seedUser(t, db, "other")
		p := seedProject(t, db, owner.ID, `{}`)

		const workers = 8
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = db.CreateAccess(ctx, &models.Access{Role: models.RoleCommenter, ProjectID: p.ID, UserID: other.ID})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.Equal(t, apperr.KindConstraintViolation, apperr.KindOf(err))
		}
		assert.Equal(t, 1, succeeded)
	})
}

func TestAccess_UpdateAndList(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		ctx := context.Background()
		owner := seedUser(t, db, "owner")
		other := seedUser(t, db, "other")
		p := seedProject(t, db, owner.ID, `{}`)

		a := &models.Access{Role: models.RoleReader, ProjectID: p.ID, UserID: other.ID}
		require.NoError(t, db.CreateAccess(ctx, a))

		updated, err := db.UpdateAccess(ctx, models.AccessUpdate{ID: a.ID, Role: models.RoleCommenter})
		require.NoError(t, err)
		assert.Equal(t, models.RoleCommenter, updated.Role)
		assert.Equal(t, a.ProjectID, updated.ProjectID)
		assert.Equal(t, a.UserID, updated.UserID)

		_, err = db.UpdateAccess(ctx, models.AccessUpdate{ID: 999, Role: models.RoleEditor})
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = db.UpdateAccess(ctx, models.AccessUpdate{ID: a.ID})
		assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

		list, err := db.ListAccessByProject(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "owner", list[0].Username)
		assert.Equal(t, "other", list[1].Username)

		_, err = db.DeleteAccess(ctx, a.ID)
		require.NoError(t, err)
		_, err = db.DeleteAccess(ctx, a.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestQuery_CreateStartsOutdated(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		ctx := context.Background()
		owner := seedUser(t, db, "owner")
		p := seedProject(t, db, owner.ID, `{}`)
		q := seedQuery(t, db, p.ID, "refinement: A <= B")

		got, err := db.GetQuery(ctx, q.ID)
		require.NoError(t, err)
		assert.True(t, got.Outdated)
		assert.False(t, got.HasResult())
	})
}

func TestQuery_SaveResultClearsOutdated(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		ctx := context.Background()
		owner := seedUser(t, db, "owner")
		p := seedProject(t, db, owner.ID, `{}`)
		q := seedQuery(t, db, p.ID, "consistency: A")

		saved, err := db.SaveQueryResult(ctx, q.ID, json.RawMessage(`{"success":true}`))
		require.NoError(t, err)
		assert.False(t, saved.Outdated)
		assert.JSONEq(t, `{"success":true}`, string(saved.Result))

		_, err = db.SaveQueryResult(ctx, 999, json.RawMessage(`{}`))
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestQuery_UpdateKeepsResultAndFlag(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		ctx := context.Background()
		owner := seedUser(t, db, "owner")
		p := seedProject(t, db, owner.ID, `{}`)
		q := seedQuery(t, db, p.ID, "consistency: A")
		_, err := db.SaveQueryResult(ctx, q.ID, json.RawMessage(`{"ok":1}`))
		require.NoError(t, err)

		updated, err := db.UpdateQuery(ctx, models.QueryUpdate{ID: q.ID, String: "consistency: B"})
		require.NoError(t, err)
		assert.Equal(t, "consistency: B", updated.String)
		assert.False(t, updated.Outdated)
		assert.JSONEq(t, `{"ok":1}`, string(updated.Result))
	})
}

func TestUpdateProject_InvalidatesQueries(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		ctx := context.Background()
		owner := seedUser(t, db, "owner")
		p := seedProject(t, db, owner.ID, `{"v":1}`)
		other := seedProject(t, db, owner.ID, `{"v":1}`)

		q1 := seedQuery(t, db, p.ID, "q1")
		q2 := seedQuery(t, db, p.ID, "q2")
		untouched := seedQuery(t, db, other.ID, "q3")
		for _, id := range []int64{q1.ID, q2.ID, untouched.ID} {
			_, err := db.SaveQueryResult(ctx, id, json.RawMessage(`{"r":true}`))
			require.NoError(t, err)
		}

		updated, err := db.UpdateProject(ctx, models.ProjectUpdate{ID: p.ID, ComponentsInfo: json.RawMessage(`{"v":2}`)})
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(updated.ComponentsInfo))
		assert.Equal(t, "project", updated.Name)

		queries, err := db.ListQueriesByProject(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, queries, 2)
		for _, q := range queries {
			assert.True(t, q.Outdated, "query %d should be outdated", q.ID)
			assert.JSONEq(t, `{"r":true}`, string(q.Result), "result is kept")
		}

		got, err := db.GetQuery(ctx, untouched.ID)
		require.NoError(t, err)
		assert.False(t, got.Outdated)
	})
}

func TestUpdateProject_RenameKeepsQueriesFresh(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		ctx := context.Background()
		owner := seedUser(t, db, "owner")
		p := seedProject(t, db, owner.ID, `{}`)
		q := seedQuery(t, db, p.ID, "q")
		_, err := db.SaveQueryResult(ctx, q.ID, json.RawMessage(`{}`))
		require.NoError(t, err)

		name := "renamed"
		updated, err := db.UpdateProject(ctx, models.ProjectUpdate{ID: p.ID, Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "renamed", updated.Name)

		got, err := db.GetQuery(ctx, q.ID)
		require.NoError(t, err)
		assert.False(t, got.Outdated)
	})
}

func TestUpdateProject_NotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		_, err := db.UpdateProject(context.Background(), models.ProjectUpdate{ID: 42, ComponentsInfo: json.RawMessage(`{}`)})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestUpdateProject_RollsBackWhenInvalidationFails(t *testing.T) {
	db := createTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")
	p := seedProject(t, db, owner.ID, `{"v":1}`)
	q := seedQuery(t, db, p.ID, "q")
	_, err := db.SaveQueryResult(ctx, q.ID, json.RawMessage(`{"r":1}`))
	require.NoError(t, err)

	_, err = db.DB().Exec(`
		CREATE TRIGGER block_invalidation BEFORE UPDATE OF outdated ON queries
		BEGIN SELECT RAISE(ABORT, 'invalidation blocked'); END`)
	require.NoError(t, err)

	_, err = db.UpdateProject(ctx, models.ProjectUpdate{ID: p.ID, ComponentsInfo: json.RawMessage(`{"v":2}`)})
	require.Error(t, err)

	got, err := db.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(got.ComponentsInfo))

	gotQuery, err := db.GetQuery(ctx, q.ID)
	require.NoError(t, err)
	assert.False(t, gotQuery.Outdated)
}

func TestDeleteProject_Cascades(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		ctx := context.Background()
		owner := seedUser(t, db, "owner")
		p := seedProject(t, db, owner.ID, `{}`)
		q := seedQuery(t, db, p.ID, "q")

		deleted, err := db.DeleteProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, deleted.ID)

		_, err = db.GetQuery(ctx, q.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = db.GetAccessByUserAndProject(ctx, owner.ID, p.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = db.DeleteProject(ctx, p.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestCreateQuery_UnknownProject(t *testing.T) {
	forEachStore(t, func(t *testing.T, db *SQLDatabase) {
		err := db.CreateQuery(context.Background(), &models.Query{String: "q", ProjectID: 77})
		assert.Equal(t, apperr.KindConstraintViolation, apperr.KindOf(err))
	})
}

func TestNewDatabase_Selection(t *testing.T) {
	db, err := NewDatabase(DatabaseConfig{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "x.db")}, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	_, err = NewDatabase(DatabaseConfig{Driver: DriverPostgres}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewDatabase(DatabaseConfig{Driver: "mongo"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestAddConnectionParams(t *testing.T) {
	assert.Equal(t, "postgres://h/db?a=1", addConnectionParams("postgres://h/db", "a=1"))
	assert.Equal(t, "postgres://h/db?x=y&a=1", addConnectionParams("postgres://h/db?x=y", "a=1"))
	assert.Equal(t, "host=h dbname=db a=1 b=2", addConnectionParams("host=h dbname=db", "a=1&b=2"))
	assert.Equal(t, "postgres://h/db", addConnectionParams("postgres://h/db", ""))
}
