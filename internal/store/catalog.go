package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) ListShows(ctx context.Context) ([]Show, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, sort_order, artwork_url, reference_rating, runtime, created_at
		FROM shows
		ORDER BY sort_order ASC NULLS LAST, title ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list shows: %w", err)
	}
	defer rows.Close()

	items := make([]Show, 0)
	for rows.Next() {
		var item Show
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.SortOrder, &item.ArtworkURL, &item.ReferenceRating, &item.Runtime, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan show: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetShow(ctx context.Context, showID string) (Show, error) {
	var item Show
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, sort_order, artwork_url, reference_rating, runtime, created_at
		FROM shows WHERE id=$1
	`, showID).Scan(&item.ID, &item.Title, &item.Description, &item.SortOrder, &item.ArtworkURL, &item.ReferenceRating, &item.Runtime, &item.CreatedAt)
	if err != nil {
		return Show{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListSeasons(ctx context.Context) ([]Season, error) {
	return s.querySeasons(ctx, `
		SELECT id, show_id, number, artwork_url, reference_rating, runtime
		FROM seasons ORDER BY show_id, number ASC
	`)
}

func (s *PostgresStore) ListSeasonsByShow(ctx context.Context, showID string) ([]Season, error) {
	return s.querySeasons(ctx, `
		SELECT id, show_id, number, artwork_url, reference_rating, runtime
		FROM seasons WHERE show_id=$1 ORDER BY number ASC
	`, showID)
}

func (s *PostgresStore) querySeasons(ctx context.Context, query string, args ...any) ([]Season, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list seasons: %w", err)
	}
	defer rows.Close()

	items := make([]Season, 0)
	for rows.Next() {
		var item Season
		if err := rows.Scan(&item.ID, &item.ShowID, &item.Number, &item.ArtworkURL, &item.ReferenceRating, &item.Runtime); err != nil {
			return nil, fmt.Errorf("scan season: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seasons: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetSeason(ctx context.Context, seasonID string) (Season, error) {
	var item Season
	err := s.db.QueryRowContext(ctx, `
		SELECT id, show_id, number, artwork_url, reference_rating, runtime
		FROM seasons WHERE id=$1
	`, seasonID).Scan(&item.ID, &item.ShowID, &item.Number, &item.ArtworkURL, &item.ReferenceRating, &item.Runtime)
	if err != nil {
		return Season{}, err
	}
	return item, nil
}

const episodeColumns = `id, season_id, title, episode_number, air_date, artwork_url, reference_rating, description, runtime`

func (s *PostgresStore) ListEpisodes(ctx context.Context) ([]Episode, error) {
	return s.queryEpisodes(ctx, `
		SELECT `+episodeColumns+` FROM episodes ORDER BY season_id, episode_number ASC
	`)
}

func (s *PostgresStore) ListEpisodesBySeason(ctx context.Context, seasonID string) ([]Episode, error) {
	return s.queryEpisodes(ctx, `
		SELECT `+episodeColumns+` FROM episodes WHERE season_id=$1 ORDER BY episode_number ASC
	`, seasonID)
}

// ListEpisodesByShow spans every season of the show, in season then episode
// order. The watch cascade and exports both walk this.
func (s *PostgresStore) ListEpisodesByShow(ctx context.Context, showID string) ([]Episode, error) {
	return s.queryEpisodes(ctx, `
		SELECT e.id, e.season_id, e.title, e.episode_number, e.air_date, e.artwork_url, e.reference_rating, e.description, e.runtime
		FROM episodes e
		JOIN seasons se ON se.id = e.season_id
		WHERE se.show_id=$1
		ORDER BY se.number ASC, e.episode_number ASC
	`, showID)
}

func (s *PostgresStore) queryEpisodes(ctx context.Context, query string, args ...any) ([]Episode, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	items := make([]Episode, 0)
	for rows.Next() {
		var item Episode
		if err := rows.Scan(&item.ID, &item.SeasonID, &item.Title, &item.EpisodeNumber, &item.AirDate, &item.ArtworkURL, &item.ReferenceRating, &item.Description, &item.Runtime); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episodes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetEpisode(ctx context.Context, episodeID string) (Episode, error) {
	var item Episode
	err := s.db.QueryRowContext(ctx, `
		SELECT `+episodeColumns+` FROM episodes WHERE id=$1
	`, episodeID).Scan(&item.ID, &item.SeasonID, &item.Title, &item.EpisodeNumber, &item.AirDate, &item.ArtworkURL, &item.ReferenceRating, &item.Description, &item.Runtime)
	if err != nil {
		return Episode{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListMovies(ctx context.Context) ([]Movie, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, release_date, description, sort_order, artwork_url, reference_rating, runtime
		FROM movies
		ORDER BY sort_order ASC NULLS LAST, title ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}
	defer rows.Close()

	items := make([]Movie, 0)
	for rows.Next() {
		var item Movie
		if err := rows.Scan(&item.ID, &item.Title, &item.ReleaseDate, &item.Description, &item.SortOrder, &item.ArtworkURL, &item.ReferenceRating, &item.Runtime); err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movies: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMovie(ctx context.Context, movieID string) (Movie, error) {
	var item Movie
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, release_date, description, sort_order, artwork_url, reference_rating, runtime
		FROM movies WHERE id=$1
	`, movieID).Scan(&item.ID, &item.Title, &item.ReleaseDate, &item.Description, &item.SortOrder, &item.ArtworkURL, &item.ReferenceRating, &item.Runtime)
	if err != nil {
		return Movie{}, err
	}
	return item, nil
}

// EpisodeProgress holds watched/total episode counts for one container.
type EpisodeProgress struct {
	Watched int
	Total   int
}

func (s *PostgresStore) ShowEpisodeProgress(ctx context.Context, showID string) (EpisodeProgress, error) {
	var p EpisodeProgress
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE w.id IS NOT NULL),
			COUNT(*)
		FROM episodes e
		JOIN seasons se ON se.id = e.season_id
		LEFT JOIN watch_progress w ON w.episode_id = e.id AND w.watched
		WHERE se.show_id = $1
	`, showID).Scan(&p.Watched, &p.Total)
	if err != nil {
		return EpisodeProgress{}, fmt.Errorf("show episode progress: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) SeasonEpisodeProgress(ctx context.Context, seasonID string) (EpisodeProgress, error) {
	var p EpisodeProgress
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE w.id IS NOT NULL),
			COUNT(*)
		FROM episodes e
		LEFT JOIN watch_progress w ON w.episode_id = e.id AND w.watched
		WHERE e.season_id = $1
	`, seasonID).Scan(&p.Watched, &p.Total)
	if err != nil {
		return EpisodeProgress{}, fmt.Errorf("season episode progress: %w", err)
	}
	return p, nil
}
