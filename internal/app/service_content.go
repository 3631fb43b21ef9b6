package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"stardeck/api/internal/ordering"
	"stardeck/api/internal/search"
	"stardeck/api/internal/store"
	"stardeck/api/internal/util"
)

// ContentQuery narrows and orders the catalog listing.
type ContentQuery struct {
	Type          string // "all", "shows", "movies"
	SortBy        string // "order", "title", "rating"
	UnwatchedOnly bool
	Search        string
}

// RatingView is the per-target aggregate exposed on listings and details.
type RatingView struct {
	Average   float64  `json:"average"`
	Count     int      `json:"count"`
	UserValue *float64 `json:"userValue,omitempty"`
}

type ProgressView struct {
	Watched int `json:"watched"`
	Total   int `json:"total"`
}

type EpisodeView struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	EpisodeNumber int        `json:"episodeNumber"`
	AirDate       *time.Time `json:"airDate,omitempty"`
	ArtworkURL    string     `json:"artworkUrl,omitempty"`
	Description   string     `json:"description,omitempty"`
	Runtime       int        `json:"runtime"`
	Order         int        `json:"order"`
	Watched       bool       `json:"watched"`
	HasNotes      bool       `json:"hasNotes"`
	Rating        *RatingView `json:"rating,omitempty"`
}

type SeasonView struct {
	ID               string        `json:"id"`
	Number           int           `json:"number"`
	ArtworkURL       string        `json:"artworkUrl,omitempty"`
	Runtime          int           `json:"runtime"`
	Watched          bool          `json:"watched"`
	HasNotes         bool          `json:"hasNotes"`
	Rating           *RatingView   `json:"rating,omitempty"`
	CommunityAverage *float64      `json:"communityAverage,omitempty"`
	Progress         ProgressView  `json:"progress"`
	Episodes         []EpisodeView `json:"episodes"`
}

type ShowView struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	SortOrder        *int         `json:"sortOrder,omitempty"`
	ArtworkURL       string       `json:"artworkUrl,omitempty"`
	Runtime          int          `json:"runtime"`
	Watched          bool         `json:"watched"`
	HasNotes         bool         `json:"hasNotes"`
	Rating           *RatingView  `json:"rating,omitempty"`
	CommunityAverage *float64     `json:"communityAverage,omitempty"`
	Progress         ProgressView `json:"progress"`
	Seasons          []SeasonView `json:"seasons"`
}

type MovieView struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	ReleaseDate *time.Time  `json:"releaseDate,omitempty"`
	Description string      `json:"description,omitempty"`
	ArtworkURL  string      `json:"artworkUrl,omitempty"`
	Runtime     int         `json:"runtime"`
	Order       int         `json:"order"`
	Watched     bool        `json:"watched"`
	HasNotes    bool        `json:"hasNotes"`
	Rating      *RatingView `json:"rating,omitempty"`
}

// ListContent assembles the nested catalog with watch flags, note flags, and
// rating aggregates in a fixed number of queries regardless of catalog size.
func (s *Service) ListContent(ctx context.Context, sess Session, q ContentQuery) (map[string]any, error) {
	includeShows := q.Type == "" || q.Type == "all" || q.Type == "shows"
	includeMovies := q.Type == "" || q.Type == "all" || q.Type == "movies"
	if !includeShows && !includeMovies {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "type must be all, shows, or movies", nil)
	}

	summaries, err := s.store.ListRatingSummaries(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	ratingByTarget := make(map[store.TargetRef]store.RatingSummary, len(summaries))
	for _, summary := range summaries {
		ratingByTarget[summary.Target] = summary
	}

	watchedTargets, err := s.store.ListWatchedTargets(ctx)
	if err != nil {
		return nil, err
	}
	watched := make(map[store.TargetRef]bool, len(watchedTargets))
	for _, t := range watchedTargets {
		watched[t] = true
	}

	noteCounts, err := s.store.NoteCountsByTarget(ctx, "")
	if err != nil {
		return nil, err
	}
	hasNotes := make(map[store.TargetRef]bool, len(noteCounts))
	for _, c := range noteCounts {
		hasNotes[c.Target] = c.Count > 0
	}

	var matched matchFilter
	if text := strings.TrimSpace(q.Search); text != "" {
		matched = newMatchFilter(s.search.Search(ctx, text, 100))
	}

	shows := make([]ShowView, 0)
	if includeShows {
		shows, err = s.buildShowViews(ctx, ratingByTarget, watched, hasNotes, matched, q.UnwatchedOnly)
		if err != nil {
			return nil, err
		}
		sortShows(shows, q.SortBy)
	}

	movies := make([]MovieView, 0)
	if includeMovies {
		movies, err = s.buildMovieViews(ctx, ratingByTarget, watched, hasNotes, matched, q.UnwatchedOnly)
		if err != nil {
			return nil, err
		}
		sortMovies(movies, q.SortBy)
	}

	return map[string]any{"shows": shows, "movies": movies}, nil
}

// matchFilter holds the ID sets a search narrowed the catalog to. A nil
// filter matches everything.
type matchFilter map[store.TargetType]map[string]bool

func newMatchFilter(results []search.Result) matchFilter {
	m := matchFilter{
		store.TargetShow:  make(map[string]bool),
		store.TargetMovie: make(map[string]bool),
	}
	for _, r := range results {
		switch r.Type {
		case search.ResultShow:
			m[store.TargetShow][r.ID] = true
		case search.ResultMovie:
			m[store.TargetMovie][r.ID] = true
		}
	}
	return m
}

func (m matchFilter) matches(t store.TargetType, id string) bool {
	if m == nil {
		return true
	}
	return m[t][id]
}

func (s *Service) buildShowViews(ctx context.Context, ratings map[store.TargetRef]store.RatingSummary, watched, hasNotes map[store.TargetRef]bool, matched matchFilter, unwatchedOnly bool) ([]ShowView, error) {
	shows, err := s.store.ListShows(ctx)
	if err != nil {
		return nil, err
	}
	seasons, err := s.store.ListSeasons(ctx)
	if err != nil {
		return nil, err
	}
	episodes, err := s.store.ListEpisodes(ctx)
	if err != nil {
		return nil, err
	}

	episodesBySeason := make(map[string][]store.Episode)
	for _, e := range episodes {
		episodesBySeason[e.SeasonID] = append(episodesBySeason[e.SeasonID], e)
	}
	seasonsByShow := make(map[string][]store.Season)
	for _, se := range seasons {
		seasonsByShow[se.ShowID] = append(seasonsByShow[se.ShowID], se)
	}

	views := make([]ShowView, 0, len(shows))
	for _, show := range shows {
		if !matched.matches(store.TargetShow, show.ID) {
			continue
		}

		view := ShowView{
			ID:          show.ID,
			Title:       show.Title,
			Description: show.Description,
			SortOrder:   show.SortOrder,
			ArtworkURL:  show.ArtworkURL,
			Runtime:     show.Runtime,
			Watched:     watched[store.TargetRef{Type: store.TargetShow, ID: show.ID}],
			HasNotes:    hasNotes[store.TargetRef{Type: store.TargetShow, ID: show.ID}],
			Rating:      ratingView(ratings, store.TargetRef{Type: store.TargetShow, ID: show.ID}),
			Seasons:     make([]SeasonView, 0, len(seasonsByShow[show.ID])),
		}

		var episodeAverages []float64
		for _, season := range seasonsByShow[show.ID] {
			seasonView := SeasonView{
				ID:         season.ID,
				Number:     season.Number,
				ArtworkURL: season.ArtworkURL,
				Runtime:    season.Runtime,
				Watched:    watched[store.TargetRef{Type: store.TargetSeason, ID: season.ID}],
				HasNotes:   hasNotes[store.TargetRef{Type: store.TargetSeason, ID: season.ID}],
				Rating:     ratingView(ratings, store.TargetRef{Type: store.TargetSeason, ID: season.ID}),
				Episodes:   make([]EpisodeView, 0, len(episodesBySeason[season.ID])),
			}

			var seasonAverages []float64
			for _, episode := range episodesBySeason[season.ID] {
				ref := store.TargetRef{Type: store.TargetEpisode, ID: episode.ID}
				episodeView := EpisodeView{
					ID:            episode.ID,
					Title:         episode.Title,
					EpisodeNumber: episode.EpisodeNumber,
					AirDate:       episode.AirDate,
					ArtworkURL:    episode.ArtworkURL,
					Description:   episode.Description,
					Runtime:       episode.Runtime,
					Order:         ordering.Episode(show.SortOrder, season.Number, episode.EpisodeNumber),
					Watched:       watched[ref],
					HasNotes:      hasNotes[ref],
					Rating:        ratingView(ratings, ref),
				}
				if episodeView.Rating != nil {
					seasonAverages = append(seasonAverages, episodeView.Rating.Average)
					episodeAverages = append(episodeAverages, episodeView.Rating.Average)
				}
				seasonView.Progress.Total++
				if episodeView.Watched {
					seasonView.Progress.Watched++
				}
				if unwatchedOnly && episodeView.Watched {
					continue
				}
				seasonView.Episodes = append(seasonView.Episodes, episodeView)
			}
			seasonView.CommunityAverage = meanOf(seasonAverages)

			view.Progress.Total += seasonView.Progress.Total
			view.Progress.Watched += seasonView.Progress.Watched
			if unwatchedOnly && len(seasonView.Episodes) == 0 {
				continue
			}
			view.Seasons = append(view.Seasons, seasonView)
		}
		view.CommunityAverage = meanOf(episodeAverages)

		if unwatchedOnly && len(view.Seasons) == 0 {
			continue
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) buildMovieViews(ctx context.Context, ratings map[store.TargetRef]store.RatingSummary, watched, hasNotes map[store.TargetRef]bool, matched matchFilter, unwatchedOnly bool) ([]MovieView, error) {
	movies, err := s.store.ListMovies(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]MovieView, 0, len(movies))
	for _, movie := range movies {
		if !matched.matches(store.TargetMovie, movie.ID) {
			continue
		}
		ref := store.TargetRef{Type: store.TargetMovie, ID: movie.ID}
		view := MovieView{
			ID:          movie.ID,
			Title:       movie.Title,
			ReleaseDate: movie.ReleaseDate,
			Description: movie.Description,
			ArtworkURL:  movie.ArtworkURL,
			Runtime:     movie.Runtime,
			Order:       ordering.Movie(movie.SortOrder),
			Watched:     watched[ref],
			HasNotes:    hasNotes[ref],
			Rating:      ratingView(ratings, ref),
		}
		if unwatchedOnly && view.Watched {
			continue
		}
		views = append(views, view)
	}
	return views, nil
}

func ratingView(ratings map[store.TargetRef]store.RatingSummary, ref store.TargetRef) *RatingView {
	summary, ok := ratings[ref]
	if !ok || summary.Count == 0 {
		return nil
	}
	view := &RatingView{Average: round1(summary.Average), Count: summary.Count}
	if summary.UserValue != nil {
		v := round1(*summary.UserValue)
		view.UserValue = &v
	}
	return view
}

func meanOf(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := round1(sum / float64(len(values)))
	return &mean
}

func sortShows(shows []ShowView, sortBy string) {
	sort.SliceStable(shows, func(i, j int) bool {
		switch sortBy {
		case "title":
			return shows[i].Title < shows[j].Title
		case "rating":
			return communityOrZero(shows[i].CommunityAverage) > communityOrZero(shows[j].CommunityAverage)
		default:
			return sortOrderOrMax(shows[i].SortOrder) < sortOrderOrMax(shows[j].SortOrder)
		}
	})
}

func sortMovies(movies []MovieView, sortBy string) {
	sort.SliceStable(movies, func(i, j int) bool {
		switch sortBy {
		case "title":
			return movies[i].Title < movies[j].Title
		case "rating":
			ri, rj := 0.0, 0.0
			if movies[i].Rating != nil {
				ri = movies[i].Rating.Average
			}
			if movies[j].Rating != nil {
				rj = movies[j].Rating.Average
			}
			return ri > rj
		default:
			return movies[i].Order < movies[j].Order
		}
	})
}

func communityOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func sortOrderOrMax(order *int) int {
	if order == nil {
		return int(^uint(0) >> 1)
	}
	return *order
}

// GetContentDetail returns one item with its community aggregate, the
// caller's own rating, watch state, and for containers an episode progress
// rollup.
func (s *Service) GetContentDetail(ctx context.Context, sess Session, target store.TargetRef) (map[string]any, error) {
	item, err := s.loadItem(ctx, target)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Content not found", nil)
		}
		return nil, err
	}

	summary, err := s.store.TargetRatingSummary(ctx, target, sess.UserID)
	if err != nil {
		return nil, err
	}

	isWatched, err := s.store.IsWatched(ctx, target)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"type":    target.Type,
		"item":    item,
		"watched": isWatched,
	}
	if summary.Count > 0 {
		payload["communityAverage"] = round1(summary.Average)
		payload["ratingCount"] = summary.Count
	}
	if summary.UserValue != nil {
		payload["userRating"] = round1(*summary.UserValue)
	}

	switch target.Type {
	case store.TargetShow:
		progress, err := s.store.ShowEpisodeProgress(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		payload["progress"] = ProgressView{Watched: progress.Watched, Total: progress.Total}
	case store.TargetSeason:
		progress, err := s.store.SeasonEpisodeProgress(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		payload["progress"] = ProgressView{Watched: progress.Watched, Total: progress.Total}
	}
	return payload, nil
}

func (s *Service) loadItem(ctx context.Context, target store.TargetRef) (any, error) {
	switch target.Type {
	case store.TargetShow:
		return s.store.GetShow(ctx, target.ID)
	case store.TargetSeason:
		return s.store.GetSeason(ctx, target.ID)
	case store.TargetEpisode:
		return s.store.GetEpisode(ctx, target.ID)
	case store.TargetMovie:
		return s.store.GetMovie(ctx, target.ID)
	}
	return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid content type", nil)
}

// verifyTarget confirms the referenced content row exists before attaching a
// rating, note, or watch toggle to it.
func (s *Service) verifyTarget(ctx context.Context, target store.TargetRef) error {
	if target.ID == "" {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "contentId is required", nil)
	}
	_, err := s.loadItem(ctx, target)
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Content not found", nil)
	}
	return err
}

// UpsertRating stores the caller's rating for the target. Values outside
// [0,10] are rejected; in-range values are rounded to one decimal before
// storage so refetch-and-resubmit is a no-op.
func (s *Service) UpsertRating(ctx context.Context, sess Session, target store.TargetRef, value float64) (map[string]any, error) {
	if value < 0 || value > 10 {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "rating must be between 0 and 10", nil)
	}
	if err := s.verifyTarget(ctx, target); err != nil {
		return nil, err
	}

	rating, err := s.store.UpsertRating(ctx, util.NewID("rating"), sess.UserID, target, round1(value))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":        rating.ID,
		"type":      target.Type,
		"contentId": target.ID,
		"value":     rating.Value,
		"updatedAt": rating.UpdatedAt,
	}, nil
}

// ListRatings returns every rating for the target plus the average.
func (s *Service) ListRatings(ctx context.Context, sess Session, target store.TargetRef) (map[string]any, error) {
	if err := s.verifyTarget(ctx, target); err != nil {
		return nil, err
	}

	ratings, err := s.store.ListRatingsForTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	summary, err := s.store.TargetRatingSummary(ctx, target, sess.UserID)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(ratings))
	for _, r := range ratings {
		items = append(items, map[string]any{
			"id":        r.ID,
			"username":  r.Username,
			"value":     round1(r.Value),
			"createdAt": r.CreatedAt,
		})
	}

	payload := map[string]any{"ratings": items, "count": summary.Count}
	if summary.Count > 0 {
		payload["averageRating"] = round1(summary.Average)
	}
	return payload, nil
}

// UpsertNote replaces the caller's note for the target.
func (s *Service) UpsertNote(ctx context.Context, sess Session, target store.TargetRef, content string) (map[string]any, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "content is required", nil)
	}
	if err := s.verifyTarget(ctx, target); err != nil {
		return nil, err
	}

	note, err := s.store.UpsertNote(ctx, util.NewID("note"), sess.UserID, target, content)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":        note.ID,
		"type":      target.Type,
		"contentId": target.ID,
		"content":   note.Content,
		"updatedAt": note.UpdatedAt,
	}, nil
}

// ListNotes returns every user's note for the target.
func (s *Service) ListNotes(ctx context.Context, target store.TargetRef) (map[string]any, error) {
	if err := s.verifyTarget(ctx, target); err != nil {
		return nil, err
	}

	notes, err := s.store.ListNotesForTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(notes))
	for _, n := range notes {
		items = append(items, map[string]any{
			"id":        n.ID,
			"username":  n.Username,
			"content":   n.Content,
			"createdAt": n.CreatedAt,
		})
	}
	return map[string]any{"notes": items}, nil
}

// SetWatched toggles the target and cascades to every descendant in one
// transaction: a show covers its seasons and episodes, a season its
// episodes. Episodes and movies are leaves.
func (s *Service) SetWatched(ctx context.Context, target store.TargetRef, watchedFlag bool) (map[string]any, error) {
	if err := s.verifyTarget(ctx, target); err != nil {
		return nil, err
	}

	targets := []store.TargetRef{target}
	switch target.Type {
	case store.TargetShow:
		seasons, err := s.store.ListSeasonsByShow(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		for _, season := range seasons {
			targets = append(targets, store.TargetRef{Type: store.TargetSeason, ID: season.ID})
		}
		episodes, err := s.store.ListEpisodesByShow(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		for _, episode := range episodes {
			targets = append(targets, store.TargetRef{Type: store.TargetEpisode, ID: episode.ID})
		}
	case store.TargetSeason:
		episodes, err := s.store.ListEpisodesBySeason(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		for _, episode := range episodes {
			targets = append(targets, store.TargetRef{Type: store.TargetEpisode, ID: episode.ID})
		}
	}

	if err := s.store.SetWatched(ctx, targets, watchedFlag); err != nil {
		return nil, err
	}
	return map[string]any{
		"type":      target.Type,
		"contentId": target.ID,
		"watched":   watchedFlag,
		"affected":  len(targets),
	}, nil
}
