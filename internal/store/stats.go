package store

import (
	"context"
	"fmt"
	"time"
)

// StatsFilter narrows the rating rows feeding the statistics bundle. Empty
// slices mean "no restriction". Since nil means all time.
type StatsFilter struct {
	ShowIDs       []string
	UserIDs       []string
	Since         *time.Time
	IncludeShows  bool
	IncludeMovies bool
}

// args binds the filter as five fixed parameters, $1 through $5, shared by
// every statistics query. Nil slices are normalized so cardinality() sees an
// empty array rather than NULL.
func (f StatsFilter) args() []any {
	return []any{textArray(f.ShowIDs), textArray(f.UserIDs), f.Since, f.IncludeShows, f.IncludeMovies}
}

func textArray(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// statsWhere expects the titleJoins("r") aliases to be in scope. Show-scoped
// rows are ratings on shows, seasons, or episodes; the show filter matches
// whichever alias resolves the owning show.
const statsWhere = `
	(
		($4 AND r.movie_id IS NULL AND (cardinality($1::text[]) = 0 OR COALESCE(sh.id, ssh.id, esh.id) = ANY($1)))
		OR ($5 AND r.movie_id IS NOT NULL)
	)
	AND (cardinality($2::text[]) = 0 OR r.user_id = ANY($2))
	AND ($3::timestamptz IS NULL OR r.updated_at >= $3)
`

// orderKeyExpr positions an episode or movie rating on the shared timeline
// axis. Ratings on shows and seasons have no position and come back NULL.
const orderKeyExpr = `
	CASE
		WHEN r.episode_id IS NOT NULL THEN COALESCE(esh.sort_order, 0)*10000 + ese.number*100 + e.episode_number
		WHEN r.movie_id IS NOT NULL THEN COALESCE(m.sort_order, 0)*10000
	END
`

// RatingAverage returns the mean and count over the filtered rating rows.
func (s *PostgresStore) RatingAverage(ctx context.Context, f StatsFilter) (float64, int, error) {
	var average float64
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(r.value), 0), COUNT(*)
		FROM ratings r
		`+titleJoins("r")+`
		WHERE `+statsWhere, f.args()...).Scan(&average, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("rating average: %w", err)
	}
	return average, count, nil
}

// DistributionBucket counts ratings per stored value. Values are already
// rounded to one decimal at write time, so grouping by the exact value gives
// 0.1-wide buckets.
type DistributionBucket struct {
	Value float64
	Count int
}

func (s *PostgresStore) RatingDistribution(ctx context.Context, f StatsFilter) ([]DistributionBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.value, COUNT(*)
		FROM ratings r
		`+titleJoins("r")+`
		WHERE `+statsWhere+`
		GROUP BY r.value
		ORDER BY r.value ASC
	`, f.args()...)
	if err != nil {
		return nil, fmt.Errorf("rating distribution: %w", err)
	}
	defer rows.Close()

	items := make([]DistributionBucket, 0)
	for rows.Next() {
		var item DistributionBucket
		if err := rows.Scan(&item.Value, &item.Count); err != nil {
			return nil, fmt.Errorf("scan distribution bucket: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distribution: %w", err)
	}
	return items, nil
}

// TrendPoint is an average pinned to one position on the timeline axis.
type TrendPoint struct {
	Order   int
	Average float64
	Title   string
	IsMovie bool
}

// RatingTrend averages episode and movie ratings per timeline position.
func (s *PostgresStore) RatingTrend(ctx context.Context, f StatsFilter) ([]TrendPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderKeyExpr+` AS ord,
			AVG(r.value),
			MIN(COALESCE(e.title, m.title)),
			BOOL_OR(r.movie_id IS NOT NULL)
		FROM ratings r
		`+titleJoins("r")+`
		WHERE `+statsWhere+` AND (`+orderKeyExpr+`) IS NOT NULL
		GROUP BY ord
		ORDER BY ord ASC
	`, f.args()...)
	if err != nil {
		return nil, fmt.Errorf("rating trend: %w", err)
	}
	defer rows.Close()

	items := make([]TrendPoint, 0)
	for rows.Next() {
		var item TrendPoint
		if err := rows.Scan(&item.Order, &item.Average, &item.Title, &item.IsMovie); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend: %w", err)
	}
	return items, nil
}

// UserPoint is one user's average at one timeline position.
type UserPoint struct {
	Username string
	Order    int
	Average  float64
	Title    string
}

func (s *PostgresStore) UserComparison(ctx context.Context, f StatsFilter) ([]UserPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.username, `+orderKeyExpr+` AS ord,
			AVG(r.value),
			MIN(COALESCE(e.title, m.title))
		FROM ratings r
		JOIN users u ON u.id = r.user_id
		`+titleJoins("r")+`
		WHERE `+statsWhere+` AND (`+orderKeyExpr+`) IS NOT NULL
		GROUP BY u.username, ord
		ORDER BY ord ASC, u.username ASC
	`, f.args()...)
	if err != nil {
		return nil, fmt.Errorf("user comparison: %w", err)
	}
	defer rows.Close()

	items := make([]UserPoint, 0)
	for rows.Next() {
		var item UserPoint
		if err := rows.Scan(&item.Username, &item.Order, &item.Average, &item.Title); err != nil {
			return nil, fmt.Errorf("scan user point: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user comparison: %w", err)
	}
	return items, nil
}

// ReferenceSeries returns the stored reference ratings for exactly the
// timeline positions that carry at least one qualifying user rating, so the
// synthetic comparison line never extends past real data.
func (s *PostgresStore) ReferenceSeries(ctx context.Context, f StatsFilter) ([]TrendPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT `+orderKeyExpr+` AS ord,
			COALESCE(e.reference_rating, m.reference_rating),
			COALESCE(e.title, m.title),
			r.movie_id IS NOT NULL
		FROM ratings r
		`+titleJoins("r")+`
		WHERE `+statsWhere+`
			AND (`+orderKeyExpr+`) IS NOT NULL
			AND COALESCE(e.reference_rating, m.reference_rating) IS NOT NULL
		ORDER BY ord ASC
	`, f.args()...)
	if err != nil {
		return nil, fmt.Errorf("reference series: %w", err)
	}
	defer rows.Close()

	items := make([]TrendPoint, 0)
	for rows.Next() {
		var item TrendPoint
		if err := rows.Scan(&item.Order, &item.Average, &item.Title, &item.IsMovie); err != nil {
			return nil, fmt.Errorf("scan reference point: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference series: %w", err)
	}
	return items, nil
}

// UserAverage is one user's overall mean over the filtered rows.
type UserAverage struct {
	Username string
	Average  float64
	Count    int
}

func (s *PostgresStore) UserAverages(ctx context.Context, f StatsFilter) ([]UserAverage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.username, AVG(r.value), COUNT(*)
		FROM ratings r
		JOIN users u ON u.id = r.user_id
		`+titleJoins("r")+`
		WHERE `+statsWhere+`
		GROUP BY u.username
		ORDER BY u.username ASC
	`, f.args()...)
	if err != nil {
		return nil, fmt.Errorf("user averages: %w", err)
	}
	defer rows.Close()

	items := make([]UserAverage, 0)
	for rows.Next() {
		var item UserAverage
		if err := rows.Scan(&item.Username, &item.Average, &item.Count); err != nil {
			return nil, fmt.Errorf("scan user average: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user averages: %w", err)
	}
	return items, nil
}

// WatchTotals summarizes shared watch progress. Runtimes are in minutes.
type WatchTotals struct {
	TotalEpisodes   int
	WatchedEpisodes int
	TotalMovies     int
	WatchedMovies   int
	WatchedRuntime  int
	TotalRuntime    int
}

func (s *PostgresStore) WatchSummary(ctx context.Context) (WatchTotals, error) {
	var t WatchTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM episodes),
			(SELECT COUNT(*) FROM watch_progress WHERE watched AND episode_id IS NOT NULL),
			(SELECT COUNT(*) FROM movies),
			(SELECT COUNT(*) FROM watch_progress WHERE watched AND movie_id IS NOT NULL),
			(SELECT COALESCE(SUM(e.runtime), 0) FROM watch_progress w JOIN episodes e ON e.id = w.episode_id WHERE w.watched)
			+ (SELECT COALESCE(SUM(m.runtime), 0) FROM watch_progress w JOIN movies m ON m.id = w.movie_id WHERE w.watched),
			(SELECT COALESCE(SUM(runtime), 0) FROM episodes) + (SELECT COALESCE(SUM(runtime), 0) FROM movies)
	`).Scan(&t.TotalEpisodes, &t.WatchedEpisodes, &t.TotalMovies, &t.WatchedMovies, &t.WatchedRuntime, &t.TotalRuntime)
	if err != nil {
		return WatchTotals{}, fmt.Errorf("watch summary: %w", err)
	}
	return t, nil
}

// CountNotes counts note rows for the given users (empty means everyone)
// since the given time (nil means all time).
func (s *PostgresStore) CountNotes(ctx context.Context, userIDs []string, since *time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notes
		WHERE (cardinality($1::text[]) = 0 OR user_id = ANY($1))
			AND ($2::timestamptz IS NULL OR updated_at >= $2)
	`, textArray(userIDs), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return count, nil
}

// SeriesProgress is episode completion for one show.
type SeriesProgress struct {
	ShowID  string
	Title   string
	Total   int
	Watched int
}

func (s *PostgresStore) ListSeriesProgress(ctx context.Context) ([]SeriesProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sh.id, sh.title, COUNT(e.id), COUNT(w.id)
		FROM shows sh
		LEFT JOIN seasons se ON se.show_id = sh.id
		LEFT JOIN episodes e ON e.season_id = se.id
		LEFT JOIN watch_progress w ON w.episode_id = e.id AND w.watched
		GROUP BY sh.id, sh.title
		ORDER BY sh.sort_order ASC NULLS LAST, sh.title ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list series progress: %w", err)
	}
	defer rows.Close()

	items := make([]SeriesProgress, 0)
	for rows.Next() {
		var item SeriesProgress
		if err := rows.Scan(&item.ShowID, &item.Title, &item.Total, &item.Watched); err != nil {
			return nil, fmt.Errorf("scan series progress: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series progress: %w", err)
	}
	return items, nil
}

// SeriesBand is the closed timeline range a show's episodes occupy.
type SeriesBand struct {
	Title string
	Start int
	End   int
}

func (s *PostgresStore) ListSeriesBands(ctx context.Context) ([]SeriesBand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sh.title,
			MIN(COALESCE(sh.sort_order, 0)*10000 + se.number*100 + e.episode_number),
			MAX(COALESCE(sh.sort_order, 0)*10000 + se.number*100 + e.episode_number)
		FROM shows sh
		JOIN seasons se ON se.show_id = sh.id
		JOIN episodes e ON e.season_id = se.id
		GROUP BY sh.id, sh.title
		ORDER BY 2 ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list series bands: %w", err)
	}
	defer rows.Close()

	items := make([]SeriesBand, 0)
	for rows.Next() {
		var item SeriesBand
		if err := rows.Scan(&item.Title, &item.Start, &item.End); err != nil {
			return nil, fmt.Errorf("scan series band: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series bands: %w", err)
	}
	return items, nil
}

// ListMovieOrders returns each movie's timeline position, ascending.
func (s *PostgresStore) ListMovieOrders(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(sort_order, 0)*10000 FROM movies ORDER BY 1 ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list movie orders: %w", err)
	}
	defer rows.Close()

	items := make([]int, 0)
	for rows.Next() {
		var order int
		if err := rows.Scan(&order); err != nil {
			return nil, fmt.Errorf("scan movie order: %w", err)
		}
		items = append(items, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movie orders: %w", err)
	}
	return items, nil
}
