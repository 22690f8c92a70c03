package database

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecdar-gateway/pkg/apperr"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgreSQL error codes the store maps to apperr kinds
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
	pgInvalidTextRep      = "22P02"
)

// NewPostgresDatabase connects to PostgreSQL, trying a few connection
// strategies before giving up.
func NewPostgresDatabase(dsn string, logger zerolog.Logger) (*SQLDatabase, error) {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		dsn,
		addConnectionParams(dsn, "connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&connect_timeout=10"),
	}

	log := logger.With().Str("component", "database").Str("driver", DriverPostgres).Logger()

	var db *sql.DB
	var err error

	for i, strategy := range strategies {
		log.Debug().Int("strategy", i+1).Msg("trying connection strategy")

		db, err = sql.Open("postgres", strategy)
		if err != nil {
			log.Warn().Err(err).Int("strategy", i+1).Msg("failed to open")
			continue
		}

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err = db.Ping(); err != nil {
			log.Warn().Err(err).Int("strategy", i+1).Msg("failed to ping")
			db.Close()
			continue
		}

		log.Info().Int("strategy", i+1).Msg("PostgreSQL connection established")
		return &SQLDatabase{
			db:       db,
			driver:   DriverPostgres,
			schema:   postgresSchema,
			logger:   log,
			classify: classifyPostgresError,
		}, nil
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL with all strategies: %w", err)
}

// addConnectionParams appends query parameters to a DSN
func addConnectionParams(dsn, params string) string {
	if params == "" {
		return dsn
	}

	// key=value DSNs take space separated params
	if !strings.Contains(dsn, "://") {
		return dsn + " " + strings.ReplaceAll(params, "&", " ")
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + params
}

func classifyPostgresError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}
	switch pqErr.Code {
	case pgUniqueViolation:
		return apperr.Constraint(err, "duplicate entry violates %s", pqErr.Constraint)
	case pgForeignKeyViolation:
		return apperr.Constraint(err, "referenced row does not exist (%s)", pqErr.Constraint)
	case pgCheckViolation, pgNotNullViolation:
		return apperr.Constraint(err, "value rejected by %s", pqErr.Constraint)
	case pgInvalidTextRep:
		return apperr.Invalid("invalid value: %s", pqErr.Message)
	}
	return nil
}
