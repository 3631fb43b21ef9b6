package app

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"stardeck/api/internal/store"
)

// StatisticsInput is the request-scoped filter for the aggregation bundle.
type StatisticsInput struct {
	Scope     string   // "all", "series", "movies", "show:<id>"
	TimeRange string   // "all", "week", "month", "year"
	Users     []string // user IDs; "me" resolves to the caller; empty means everyone
}

func (s *Service) statsFilter(sess Session, in StatisticsInput) (store.StatsFilter, error) {
	filter := store.StatsFilter{IncludeShows: true, IncludeMovies: true}

	switch {
	case in.Scope == "" || in.Scope == "all":
	case in.Scope == "series":
		filter.IncludeMovies = false
	case in.Scope == "movies":
		filter.IncludeShows = false
	case strings.HasPrefix(in.Scope, "show:"):
		showID := strings.TrimPrefix(in.Scope, "show:")
		if showID == "" {
			return store.StatsFilter{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "scope show id is empty", nil)
		}
		filter.IncludeMovies = false
		filter.ShowIDs = []string{showID}
	default:
		return store.StatsFilter{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "scope must be all, series, movies, or show:<id>", nil)
	}

	now := time.Now()
	switch in.TimeRange {
	case "", "all":
	case "week":
		since := now.AddDate(0, 0, -7)
		filter.Since = &since
	case "month":
		since := now.AddDate(0, -1, 0)
		filter.Since = &since
	case "year":
		since := now.AddDate(-1, 0, 0)
		filter.Since = &since
	default:
		return store.StatsFilter{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "timeRange must be all, week, month, or year", nil)
	}

	for _, u := range in.Users {
		if u == "me" {
			u = sess.UserID
		}
		filter.UserIDs = append(filter.UserIDs, u)
	}
	return filter, nil
}

// Statistics computes the full aggregation bundle for one filter. Every
// piece is read fresh; there is no cache to invalidate.
func (s *Service) Statistics(ctx context.Context, sess Session, in StatisticsInput) (map[string]any, error) {
	filter, err := s.statsFilter(sess, in)
	if err != nil {
		return nil, err
	}

	average, ratingCount, err := s.store.RatingAverage(ctx, filter)
	if err != nil {
		return nil, err
	}

	distribution, err := s.store.RatingDistribution(ctx, filter)
	if err != nil {
		return nil, err
	}

	trend, err := s.store.RatingTrend(ctx, filter)
	if err != nil {
		return nil, err
	}

	comparison, err := s.userComparison(ctx, filter)
	if err != nil {
		return nil, err
	}

	userAverages, err := s.store.UserAverages(ctx, filter)
	if err != nil {
		return nil, err
	}

	progress, err := s.store.ListSeriesProgress(ctx)
	if err != nil {
		return nil, err
	}

	bands, err := s.store.ListSeriesBands(ctx)
	if err != nil {
		return nil, err
	}

	movieOrders, err := s.store.ListMovieOrders(ctx)
	if err != nil {
		return nil, err
	}

	activity, err := s.store.ListRecentRatings(ctx, filter.UserIDs, 20)
	if err != nil {
		return nil, err
	}

	summary, err := s.statsSummary(ctx, sess, filter, average, ratingCount)
	if err != nil {
		return nil, err
	}

	distributionViews := make([]map[string]any, 0, len(distribution))
	for _, b := range distribution {
		distributionViews = append(distributionViews, map[string]any{"value": b.Value, "count": b.Count})
	}

	trendViews := make([]map[string]any, 0, len(trend))
	for _, p := range trend {
		trendViews = append(trendViews, map[string]any{
			"order":   p.Order,
			"title":   p.Title,
			"average": round1(p.Average),
			"isMovie": p.IsMovie,
		})
	}

	averageViews := make([]map[string]any, 0, len(userAverages))
	for _, u := range userAverages {
		averageViews = append(averageViews, map[string]any{
			"username": u.Username,
			"average":  round1(u.Average),
			"count":    u.Count,
		})
	}

	progressViews := make([]map[string]any, 0, len(progress))
	for _, p := range progress {
		progressViews = append(progressViews, map[string]any{
			"showId":  p.ShowID,
			"title":   p.Title,
			"watched": p.Watched,
			"total":   p.Total,
		})
	}

	bandViews := make([]map[string]any, 0, len(bands))
	for _, b := range bands {
		bandViews = append(bandViews, map[string]any{"title": b.Title, "start": b.Start, "end": b.End})
	}

	return map[string]any{
		"summary":          summary,
		"distribution":     distributionViews,
		"trend":            trendViews,
		"userComparison":   comparison,
		"userAverages":     averageViews,
		"progressBySeries": progressViews,
		"seriesBands":      bandViews,
		"movieOrders":      movieOrders,
		"activity":         activityViews(activity),
	}, nil
}

// userComparison pivots the per-user trend into one row per timeline
// position, each carrying a value per user. The reference line is appended
// under the "IMDb" key, only at positions real users have rated.
func (s *Service) userComparison(ctx context.Context, filter store.StatsFilter) ([]map[string]any, error) {
	points, err := s.store.UserComparison(ctx, filter)
	if err != nil {
		return nil, err
	}

	type row struct {
		order  int
		title  string
		values map[string]float64
	}
	byOrder := make(map[int]*row)
	for _, p := range points {
		r, ok := byOrder[p.Order]
		if !ok {
			r = &row{order: p.Order, title: p.Title, values: make(map[string]float64)}
			byOrder[p.Order] = r
		}
		r.values[p.Username] = round1(p.Average)
	}

	reference, err := s.store.ReferenceSeries(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, p := range reference {
		r, ok := byOrder[p.Order]
		if !ok {
			continue
		}
		// An account that happens to be named IMDb keeps its own column.
		if _, taken := r.values["IMDb"]; taken {
			continue
		}
		r.values["IMDb"] = round1(p.Average)
	}

	rows := make([]*row, 0, len(byOrder))
	for _, r := range byOrder {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].order < rows[j].order })

	views := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		views = append(views, map[string]any{
			"order":  r.order,
			"title":  r.title,
			"values": r.values,
		})
	}
	return views, nil
}

func (s *Service) statsSummary(ctx context.Context, sess Session, filter store.StatsFilter, average float64, ratingCount int) (map[string]any, error) {
	totals, err := s.store.WatchSummary(ctx)
	if err != nil {
		return nil, err
	}

	counts, err := s.store.ProfileCounts(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	noteCount, err := s.store.CountNotes(ctx, filter.UserIDs, filter.Since)
	if err != nil {
		return nil, err
	}

	rateable := counts.TotalEpisodes + counts.TotalMovies + counts.TotalSeasons + counts.TotalShows
	return map[string]any{
		"averageRating":       round1(average),
		"totalRatings":        ratingCount,
		"rateableItems":       rateable,
		"noteCount":           noteCount,
		"watchedEpisodes":     totals.WatchedEpisodes,
		"totalEpisodes":       totals.TotalEpisodes,
		"watchedMovies":       totals.WatchedMovies,
		"totalMovies":         totals.TotalMovies,
		"watchTimeHours":      round1(float64(totals.WatchedRuntime) / 60),
		"totalWatchTimeHours": round1(float64(totals.TotalRuntime) / 60),
	}, nil
}

// ExportSummary backs the export picker: per show, how many episodes carry
// notes, plus per-movie note counts.
func (s *Service) ExportSummary(ctx context.Context, sess Session, includeOthers bool) (map[string]any, error) {
	shows, err := s.store.ListShowNoteSummaries(ctx, sess.UserID, includeOthers)
	if err != nil {
		return nil, err
	}
	movies, err := s.store.ListMovieNoteCounts(ctx, sess.UserID, includeOthers)
	if err != nil {
		return nil, err
	}

	totalNotes := 0
	showViews := make([]map[string]any, 0, len(shows))
	for _, sh := range shows {
		totalNotes += sh.NoteCount
		showViews = append(showViews, map[string]any{
			"showId":        sh.ShowID,
			"title":         sh.Title,
			"totalEpisodes": sh.TotalEpisodes,
			"notedEpisodes": sh.NotedEpisodes,
			"noteCount":     sh.NoteCount,
		})
	}

	movieViews := make([]map[string]any, 0, len(movies))
	for _, m := range movies {
		totalNotes += m.NoteCount
		movieViews = append(movieViews, map[string]any{
			"movieId":   m.MovieID,
			"title":     m.Title,
			"noteCount": m.NoteCount,
		})
	}

	return map[string]any{
		"shows":      showViews,
		"movies":     movieViews,
		"totalNotes": totalNotes,
	}, nil
}
