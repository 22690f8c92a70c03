package database

import (
	"context"
	"database/sql"
)

// invalidateProjectQueries marks every query of the project outdated.
// Cached results are kept so callers can still show the last known answer.
// It must run on the same tx as the component data write.
func invalidateProjectQueries(ctx context.Context, tx *sql.Tx, projectID int64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE queries SET outdated = TRUE WHERE project_id = $1 AND outdated = FALSE`,
		projectID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
