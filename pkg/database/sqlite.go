package database

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ecdar-gateway/pkg/apperr"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// sqlitePragmas are applied by the driver to every connection it opens.
const sqlitePragmas = "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + sqlitePragmas
	}
	return path + "?" + sqlitePragmas
}

// NewSQLiteDatabase opens or creates a SQLite database file and applies the
// schema. Use ":memory:" only with care: every connection gets its own database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement, required for cascading deletes
//   - A single connection, so transactions must only use their tx handle
func NewSQLiteDatabase(path string, logger zerolog.Logger) (*SQLDatabase, error) {
	log := logger.With().Str("component", "database").Str("driver", DriverSQLite).Logger()

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite database ready")
	return &SQLDatabase{
		db:       db,
		driver:   DriverSQLite,
		schema:   sqliteSchema,
		logger:   log,
		classify: classifySQLiteError,
	}, nil
}

func classifySQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return nil
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return apperr.Constraint(err, "duplicate entry")
	case sqlite3.ErrConstraintForeignKey:
		return apperr.Constraint(err, "referenced row does not exist")
	default:
		return apperr.Constraint(err, "value rejected: %s", sqliteErr.Error())
	}
}
