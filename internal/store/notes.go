package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertNote inserts or replaces the caller's note for the target, same
// conflict mechanics as ratings.
func (s *PostgresStore) UpsertNote(ctx context.Context, id, userID string, target TargetRef, content string) (Note, error) {
	column, err := target.Column()
	if err != nil {
		return Note{}, err
	}

	query := fmt.Sprintf(`
		INSERT INTO notes (id, user_id, %[1]s, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, %[1]s) WHERE %[1]s IS NOT NULL
		DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
		RETURNING id, content, created_at, updated_at
	`, column)

	var note Note
	note.UserID = userID
	note.Target = target
	err = s.db.QueryRowContext(ctx, query, id, userID, target.ID, content).
		Scan(&note.ID, &note.Content, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return Note{}, fmt.Errorf("upsert note: %w", err)
	}
	return note, nil
}

func (s *PostgresStore) ListNotesForTarget(ctx context.Context, target TargetRef) ([]UserNote, error) {
	column, err := target.Column()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT n.id, u.username, n.content, n.created_at
		FROM notes n
		JOIN users u ON u.id = n.user_id
		WHERE n.%s = $1
		ORDER BY n.updated_at DESC
	`, column), target.ID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]UserNote, 0)
	for rows.Next() {
		var item UserNote
		if err := rows.Scan(&item.ID, &item.Username, &item.Content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListRecentNotes(ctx context.Context, userID string, limit int) ([]TitledNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.show_id, n.season_id, n.episode_id, n.movie_id, n.content, `+titleExpr("n")+`, u.username, n.created_at, n.updated_at
		FROM notes n
		JOIN users u ON u.id = n.user_id
		`+titleJoins("n")+`
		WHERE n.user_id = $1
		ORDER BY n.updated_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent notes: %w", err)
	}
	return collectTitledNotes(rows)
}

func collectTitledNotes(rows *sql.Rows) ([]TitledNote, error) {
	defer rows.Close()

	items := make([]TitledNote, 0)
	for rows.Next() {
		var item TitledNote
		var showID, seasonID, episodeID, movieID sql.NullString
		if err := rows.Scan(&item.ID, &showID, &seasonID, &episodeID, &movieID, &item.Content, &item.Title, &item.Username, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan titled note: %w", err)
		}
		item.Target = targetFromColumns(showID, seasonID, episodeID, movieID)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate titled notes: %w", err)
	}
	return items, nil
}

// TargetCount pairs a target with how many notes attach to it.
type TargetCount struct {
	Target TargetRef
	Count  int
}

// NoteCountsByTarget counts notes per target, optionally restricted to one
// author. userID empty means all authors.
func (s *PostgresStore) NoteCountsByTarget(ctx context.Context, userID string) ([]TargetCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT show_id, season_id, episode_id, movie_id, COUNT(*)
		FROM notes
		WHERE $1 = '' OR user_id = $1
		GROUP BY show_id, season_id, episode_id, movie_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("note counts: %w", err)
	}
	defer rows.Close()

	items := make([]TargetCount, 0)
	for rows.Next() {
		var item TargetCount
		var showID, seasonID, episodeID, movieID sql.NullString
		if err := rows.Scan(&showID, &seasonID, &episodeID, &movieID, &item.Count); err != nil {
			return nil, fmt.Errorf("scan note count: %w", err)
		}
		item.Target = targetFromColumns(showID, seasonID, episodeID, movieID)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note counts: %w", err)
	}
	return items, nil
}

// ExportNote is a note joined with everything the export renderer needs:
// display title, author, and the catalog position used for canonical sorting.
type ExportNote struct {
	ID        string
	Target    TargetRef
	Title     string
	Username  string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListNotesForExport returns notes in canonical catalog order. When
// includeOthers is false only the caller's notes qualify. The selection
// arrays restrict by target: a selected show pulls in its seasons' and
// episodes' notes, a selected season pulls in its episodes' notes. Empty
// arrays across the board mean everything.
func (s *PostgresStore) ListNotesForExport(ctx context.Context, userID string, includeOthers bool, showIDs, seasonIDs, episodeIDs, movieIDs []string) ([]ExportNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.show_id, n.season_id, n.episode_id, n.movie_id, n.content, `+titleExpr("n")+`, u.username, n.created_at, n.updated_at
		FROM notes n
		JOIN users u ON u.id = n.user_id
		`+titleJoins("n")+`
		WHERE ($1 OR n.user_id = $2)
			AND (
				cardinality($3::text[]) + cardinality($4::text[]) + cardinality($5::text[]) + cardinality($6::text[]) = 0
				OR n.show_id = ANY($3)
				OR n.season_id = ANY($4) OR se.show_id = ANY($3)
				OR n.episode_id = ANY($5) OR ese.show_id = ANY($3) OR e.season_id = ANY($4)
				OR n.movie_id = ANY($6)
			)
		ORDER BY
			COALESCE(sh.sort_order, ssh.sort_order, esh.sort_order, m.sort_order, 0) ASC,
			COALESCE(se.number, ese.number, 0) ASC,
			COALESCE(e.episode_number, 0) ASC,
			n.updated_at DESC
	`, includeOthers, userID, textArray(showIDs), textArray(seasonIDs), textArray(episodeIDs), textArray(movieIDs))
	if err != nil {
		return nil, fmt.Errorf("list export notes: %w", err)
	}
	defer rows.Close()

	items := make([]ExportNote, 0)
	for rows.Next() {
		var item ExportNote
		var showID, seasonID, episodeID, movieID sql.NullString
		if err := rows.Scan(&item.ID, &showID, &seasonID, &episodeID, &movieID, &item.Content, &item.Title, &item.Username, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan export note: %w", err)
		}
		item.Target = targetFromColumns(showID, seasonID, episodeID, movieID)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export notes: %w", err)
	}
	return items, nil
}

// ShowNoteSummary backs the export summary screen: per show, how many
// episodes exist and how many of those carry at least one qualifying note,
// plus notes attached directly to the show or its seasons.
type ShowNoteSummary struct {
	ShowID        string
	Title         string
	TotalEpisodes int
	NotedEpisodes int
	NoteCount     int
}

func (s *PostgresStore) ListShowNoteSummaries(ctx context.Context, userID string, includeOthers bool) ([]ShowNoteSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sh.id, sh.title,
			(SELECT COUNT(*) FROM episodes e JOIN seasons se ON se.id = e.season_id WHERE se.show_id = sh.id),
			(SELECT COUNT(DISTINCT n.episode_id) FROM notes n
				JOIN episodes e ON e.id = n.episode_id
				JOIN seasons se ON se.id = e.season_id
				WHERE se.show_id = sh.id AND ($2 OR n.user_id = $1)),
			(SELECT COUNT(*) FROM notes n
				LEFT JOIN seasons se ON se.id = n.season_id
				LEFT JOIN episodes e ON e.id = n.episode_id
				LEFT JOIN seasons ese ON ese.id = e.season_id
				WHERE (n.show_id = sh.id OR se.show_id = sh.id OR ese.show_id = sh.id)
					AND ($2 OR n.user_id = $1))
		FROM shows sh
		ORDER BY sh.sort_order ASC NULLS LAST, sh.title ASC
	`, userID, includeOthers)
	if err != nil {
		return nil, fmt.Errorf("list show note summaries: %w", err)
	}
	defer rows.Close()

	items := make([]ShowNoteSummary, 0)
	for rows.Next() {
		var item ShowNoteSummary
		if err := rows.Scan(&item.ShowID, &item.Title, &item.TotalEpisodes, &item.NotedEpisodes, &item.NoteCount); err != nil {
			return nil, fmt.Errorf("scan show note summary: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate show note summaries: %w", err)
	}
	return items, nil
}

// MovieNoteCount pairs a movie with its qualifying note count.
type MovieNoteCount struct {
	MovieID   string
	Title     string
	NoteCount int
}

func (s *PostgresStore) ListMovieNoteCounts(ctx context.Context, userID string, includeOthers bool) ([]MovieNoteCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.title,
			(SELECT COUNT(*) FROM notes n WHERE n.movie_id = m.id AND ($2 OR n.user_id = $1))
		FROM movies m
		ORDER BY m.sort_order ASC NULLS LAST, m.title ASC
	`, userID, includeOthers)
	if err != nil {
		return nil, fmt.Errorf("list movie note counts: %w", err)
	}
	defer rows.Close()

	items := make([]MovieNoteCount, 0)
	for rows.Next() {
		var item MovieNoteCount
		if err := rows.Scan(&item.MovieID, &item.Title, &item.NoteCount); err != nil {
			return nil, fmt.Errorf("scan movie note count: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movie note counts: %w", err)
	}
	return items, nil
}
