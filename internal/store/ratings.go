package store

import (
	"context"
	"database/sql"
	"fmt"
)

// titleJoins builds the joins needed to render a display title for a row in
// any table that carries the four target columns. The alias comes from a
// fixed call-site set, never from input.
func titleJoins(alias string) string {
	return fmt.Sprintf(`
		LEFT JOIN shows sh ON sh.id = %[1]s.show_id
		LEFT JOIN seasons se ON se.id = %[1]s.season_id
		LEFT JOIN shows ssh ON ssh.id = se.show_id
		LEFT JOIN episodes e ON e.id = %[1]s.episode_id
		LEFT JOIN seasons ese ON ese.id = e.season_id
		LEFT JOIN shows esh ON esh.id = ese.show_id
		LEFT JOIN movies m ON m.id = %[1]s.movie_id
	`, alias)
}

// titleExpr renders "Show", "Show Season N", "Show S2E5: Title", or "Movie".
func titleExpr(alias string) string {
	return fmt.Sprintf(`
		CASE
			WHEN %[1]s.show_id IS NOT NULL THEN sh.title
			WHEN %[1]s.season_id IS NOT NULL THEN ssh.title || ' Season ' || se.number
			WHEN %[1]s.episode_id IS NOT NULL THEN esh.title || ' S' || ese.number || 'E' || e.episode_number || ': ' || e.title
			ELSE m.title
		END
	`, alias)
}

func targetFromColumns(showID, seasonID, episodeID, movieID sql.NullString) TargetRef {
	switch {
	case showID.Valid:
		return TargetRef{Type: TargetShow, ID: showID.String}
	case seasonID.Valid:
		return TargetRef{Type: TargetSeason, ID: seasonID.String}
	case episodeID.Valid:
		return TargetRef{Type: TargetEpisode, ID: episodeID.String}
	default:
		return TargetRef{Type: TargetMovie, ID: movieID.String}
	}
}

// UpsertRating inserts or replaces the caller's rating for the target. The
// conflict clause names the partial unique index for the target's column.
func (s *PostgresStore) UpsertRating(ctx context.Context, id, userID string, target TargetRef, value float64) (Rating, error) {
	column, err := target.Column()
	if err != nil {
		return Rating{}, err
	}

	query := fmt.Sprintf(`
		INSERT INTO ratings (id, user_id, %[1]s, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, %[1]s) WHERE %[1]s IS NOT NULL
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		RETURNING id, value, created_at, updated_at
	`, column)

	var rating Rating
	rating.UserID = userID
	rating.Target = target
	err = s.db.QueryRowContext(ctx, query, id, userID, target.ID, value).
		Scan(&rating.ID, &rating.Value, &rating.CreatedAt, &rating.UpdatedAt)
	if err != nil {
		return Rating{}, fmt.Errorf("upsert rating: %w", err)
	}
	return rating, nil
}

// ListRatingsForTarget returns every user's rating for one target, newest
// first.
func (s *PostgresStore) ListRatingsForTarget(ctx context.Context, target TargetRef) ([]UserRating, error) {
	column, err := target.Column()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT r.id, u.username, r.value, r.created_at
		FROM ratings r
		JOIN users u ON u.id = r.user_id
		WHERE r.%s = $1
		ORDER BY r.updated_at DESC
	`, column), target.ID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	items := make([]UserRating, 0)
	for rows.Next() {
		var item UserRating
		if err := rows.Scan(&item.ID, &item.Username, &item.Value, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return items, nil
}

// ListRatingSummaries aggregates every rated target in one pass: community
// average, vote count, and the caller's own value when present.
func (s *PostgresStore) ListRatingSummaries(ctx context.Context, userID string) ([]RatingSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT show_id, season_id, episode_id, movie_id,
			AVG(value), COUNT(*),
			MAX(CASE WHEN user_id = $1 THEN value END)
		FROM ratings
		GROUP BY show_id, season_id, episode_id, movie_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rating summaries: %w", err)
	}
	defer rows.Close()

	items := make([]RatingSummary, 0)
	for rows.Next() {
		var item RatingSummary
		var showID, seasonID, episodeID, movieID sql.NullString
		if err := rows.Scan(&showID, &seasonID, &episodeID, &movieID, &item.Average, &item.Count, &item.UserValue); err != nil {
			return nil, fmt.Errorf("scan rating summary: %w", err)
		}
		item.Target = targetFromColumns(showID, seasonID, episodeID, movieID)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rating summaries: %w", err)
	}
	return items, nil
}

// TargetRatingSummary is the single-target variant for detail pages. A target
// with no ratings yields a zero summary, not an error.
func (s *PostgresStore) TargetRatingSummary(ctx context.Context, target TargetRef, userID string) (RatingSummary, error) {
	column, err := target.Column()
	if err != nil {
		return RatingSummary{}, err
	}

	summary := RatingSummary{Target: target}
	var average sql.NullFloat64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT AVG(value), COUNT(*), MAX(CASE WHEN user_id = $2 THEN value END)
		FROM ratings WHERE %s = $1
	`, column), target.ID, userID).Scan(&average, &summary.Count, &summary.UserValue)
	if err != nil {
		return RatingSummary{}, fmt.Errorf("target rating summary: %w", err)
	}
	if average.Valid {
		summary.Average = average.Float64
	}
	return summary, nil
}

// ListTopRatings returns the caller's highest ratings with display titles.
func (s *PostgresStore) ListTopRatings(ctx context.Context, userID string, limit int) ([]TitledRating, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.show_id, r.season_id, r.episode_id, r.movie_id, r.value, `+titleExpr("r")+`, u.username, r.updated_at
		FROM ratings r
		JOIN users u ON u.id = r.user_id
		`+titleJoins("r")+`
		WHERE r.user_id = $1
		ORDER BY r.value DESC, r.updated_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list top ratings: %w", err)
	}
	return collectTitledRatings(rows)
}

// ListRecentRatings is the activity feed: latest ratings across the given
// users, or across everyone when userIDs is empty.
func (s *PostgresStore) ListRecentRatings(ctx context.Context, userIDs []string, limit int) ([]TitledRating, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.show_id, r.season_id, r.episode_id, r.movie_id, r.value, `+titleExpr("r")+`, u.username, r.updated_at
		FROM ratings r
		JOIN users u ON u.id = r.user_id
		`+titleJoins("r")+`
		WHERE cardinality($1::text[]) = 0 OR r.user_id = ANY($1)
		ORDER BY r.updated_at DESC
		LIMIT $2
	`, textArray(userIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent ratings: %w", err)
	}
	return collectTitledRatings(rows)
}

func collectTitledRatings(rows *sql.Rows) ([]TitledRating, error) {
	defer rows.Close()

	items := make([]TitledRating, 0)
	for rows.Next() {
		var item TitledRating
		var showID, seasonID, episodeID, movieID sql.NullString
		if err := rows.Scan(&item.ID, &showID, &seasonID, &episodeID, &movieID, &item.Value, &item.Title, &item.Username, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan titled rating: %w", err)
		}
		item.Target = targetFromColumns(showID, seasonID, episodeID, movieID)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate titled ratings: %w", err)
	}
	return items, nil
}
