package store

import (
	"context"
	"database/sql"
	"fmt"

	"stardeck/api/internal/util"
)

// SetWatched marks every target in one transaction, so a cascade over a show
// and its descendants lands atomically. Watched inserts a row per target,
// unwatched deletes it.
func (s *PostgresStore) SetWatched(ctx context.Context, targets []TargetRef, watched bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin watch tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, target := range targets {
		column, err := target.Column()
		if err != nil {
			return err
		}
		if watched {
			query := fmt.Sprintf(`
				INSERT INTO watch_progress (id, %[1]s, watched)
				VALUES ($1, $2, TRUE)
				ON CONFLICT (%[1]s) WHERE %[1]s IS NOT NULL
				DO UPDATE SET watched = TRUE, updated_at = NOW()
			`, column)
			if _, err := tx.ExecContext(ctx, query, util.NewID("watch"), target.ID); err != nil {
				return fmt.Errorf("mark watched: %w", err)
			}
		} else {
			query := fmt.Sprintf(`DELETE FROM watch_progress WHERE %s = $1`, column)
			if _, err := tx.ExecContext(ctx, query, target.ID); err != nil {
				return fmt.Errorf("mark unwatched: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit watch tx: %w", err)
	}
	return nil
}

// ListWatchedTargets returns every target currently marked watched.
func (s *PostgresStore) ListWatchedTargets(ctx context.Context) ([]TargetRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT show_id, season_id, episode_id, movie_id
		FROM watch_progress WHERE watched
	`)
	if err != nil {
		return nil, fmt.Errorf("list watched: %w", err)
	}
	defer rows.Close()

	items := make([]TargetRef, 0)
	for rows.Next() {
		var showID, seasonID, episodeID, movieID sql.NullString
		if err := rows.Scan(&showID, &seasonID, &episodeID, &movieID); err != nil {
			return nil, fmt.Errorf("scan watched: %w", err)
		}
		items = append(items, targetFromColumns(showID, seasonID, episodeID, movieID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watched: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) IsWatched(ctx context.Context, target TargetRef) (bool, error) {
	column, err := target.Column()
	if err != nil {
		return false, err
	}

	var watched bool
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT EXISTS(SELECT 1 FROM watch_progress WHERE %s = $1 AND watched)
	`, column), target.ID).Scan(&watched)
	if err != nil {
		return false, fmt.Errorf("check watched: %w", err)
	}
	return watched, nil
}
