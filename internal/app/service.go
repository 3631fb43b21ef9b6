// Package app wires the domain services behind the HTTP surface.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"stardeck/api/internal/access"
	"stardeck/api/internal/accounts"
	"stardeck/api/internal/auth"
	"stardeck/api/internal/export"
	"stardeck/api/internal/search"
	"stardeck/api/internal/session"
	"stardeck/api/internal/store"
)

// Session is the request-scoped principal resolved from the access token.
// Flags are re-read from the database on every request so an approval
// revocation takes effect without waiting for token expiry.
type Session struct {
	UserID     string
	Username   string
	IsAdmin    bool
	IsApproved bool
}

func (s Session) principal() access.Principal {
	return access.Principal{
		UserID:     s.UserID,
		Username:   s.Username,
		IsAdmin:    s.IsAdmin,
		IsApproved: s.IsApproved,
	}
}

// dataStore is everything the service reads and writes. *store.PostgresStore
// implements it; tests substitute a fake.
type dataStore interface {
	Ping(ctx context.Context) error

	GetUserByID(ctx context.Context, userID string) (store.User, error)
	ListAdminUsers(ctx context.Context) ([]store.AdminUser, error)
	ListApprovedUsers(ctx context.Context) ([]store.ApprovedUser, error)
	ProfileCounts(ctx context.Context, userID string) (store.ProfileCounts, error)

	ListShows(ctx context.Context) ([]store.Show, error)
	GetShow(ctx context.Context, showID string) (store.Show, error)
	ListSeasons(ctx context.Context) ([]store.Season, error)
	ListSeasonsByShow(ctx context.Context, showID string) ([]store.Season, error)
	GetSeason(ctx context.Context, seasonID string) (store.Season, error)
	ListEpisodes(ctx context.Context) ([]store.Episode, error)
	ListEpisodesBySeason(ctx context.Context, seasonID string) ([]store.Episode, error)
	ListEpisodesByShow(ctx context.Context, showID string) ([]store.Episode, error)
	GetEpisode(ctx context.Context, episodeID string) (store.Episode, error)
	ListMovies(ctx context.Context) ([]store.Movie, error)
	GetMovie(ctx context.Context, movieID string) (store.Movie, error)
	ShowEpisodeProgress(ctx context.Context, showID string) (store.EpisodeProgress, error)
	SeasonEpisodeProgress(ctx context.Context, seasonID string) (store.EpisodeProgress, error)

	UpsertRating(ctx context.Context, id, userID string, target store.TargetRef, value float64) (store.Rating, error)
	ListRatingsForTarget(ctx context.Context, target store.TargetRef) ([]store.UserRating, error)
	ListRatingSummaries(ctx context.Context, userID string) ([]store.RatingSummary, error)
	TargetRatingSummary(ctx context.Context, target store.TargetRef, userID string) (store.RatingSummary, error)
	ListTopRatings(ctx context.Context, userID string, limit int) ([]store.TitledRating, error)
	ListRecentRatings(ctx context.Context, userIDs []string, limit int) ([]store.TitledRating, error)

	UpsertNote(ctx context.Context, id, userID string, target store.TargetRef, content string) (store.Note, error)
	ListNotesForTarget(ctx context.Context, target store.TargetRef) ([]store.UserNote, error)
	ListRecentNotes(ctx context.Context, userID string, limit int) ([]store.TitledNote, error)
	NoteCountsByTarget(ctx context.Context, userID string) ([]store.TargetCount, error)
	ListShowNoteSummaries(ctx context.Context, userID string, includeOthers bool) ([]store.ShowNoteSummary, error)
	ListMovieNoteCounts(ctx context.Context, userID string, includeOthers bool) ([]store.MovieNoteCount, error)
	CountNotes(ctx context.Context, userIDs []string, since *time.Time) (int, error)

	SetWatched(ctx context.Context, targets []store.TargetRef, watched bool) error
	ListWatchedTargets(ctx context.Context) ([]store.TargetRef, error)
	IsWatched(ctx context.Context, target store.TargetRef) (bool, error)

	RatingAverage(ctx context.Context, f store.StatsFilter) (float64, int, error)
	RatingDistribution(ctx context.Context, f store.StatsFilter) ([]store.DistributionBucket, error)
	RatingTrend(ctx context.Context, f store.StatsFilter) ([]store.TrendPoint, error)
	UserComparison(ctx context.Context, f store.StatsFilter) ([]store.UserPoint, error)
	ReferenceSeries(ctx context.Context, f store.StatsFilter) ([]store.TrendPoint, error)
	UserAverages(ctx context.Context, f store.StatsFilter) ([]store.UserAverage, error)
	WatchSummary(ctx context.Context) (store.WatchTotals, error)
	ListSeriesProgress(ctx context.Context) ([]store.SeriesProgress, error)
	ListSeriesBands(ctx context.Context) ([]store.SeriesBand, error)
	ListMovieOrders(ctx context.Context) ([]int, error)
}

// sessionStore is the refresh-session backend. *session.RedisStore
// implements it.
type sessionStore interface {
	Save(ctx context.Context, tokenHash string, data session.TokenData, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (session.TokenData, error)
	Revoke(ctx context.Context, tokenHash string) error
}

// searcher finds catalog entries by title.
type searcher interface {
	Search(ctx context.Context, text string, limit int) []search.Result
}

// exporter renders note exports.
type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type Service struct {
	store      dataStore
	accounts   *accounts.Service
	sessions   sessionStore
	issuer     *auth.TokenIssuer
	search     searcher
	exporter   exporter
	refreshTTL time.Duration
}

func NewService(store dataStore, accountsSvc *accounts.Service, sessions sessionStore, issuer *auth.TokenIssuer, searchSvc searcher, exporterSvc exporter, refreshTTL time.Duration) *Service {
	return &Service{
		store:      store,
		accounts:   accountsSvc,
		sessions:   sessions,
		issuer:     issuer,
		search:     searchSvc,
		exporter:   exporterSvc,
		refreshTTL: refreshTTL,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Can checks the session against the access rules.
func (s *Service) Can(sess Session, action access.Action) bool {
	return access.Can(sess.principal(), action)
}

// SessionTokens is what a successful login or refresh hands back.
type SessionTokens struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
	User         store.User
}

// CreateSession mints an access token and a refresh session for the user.
func (s *Service) CreateSession(ctx context.Context, user store.User) (SessionTokens, error) {
	token, err := s.issuer.Issue(user.ID, user.Username, user.IsAdmin)
	if err != nil {
		return SessionTokens{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := auth.NewRefreshToken()
	if err != nil {
		return SessionTokens{}, err
	}

	expiresAt := time.Now().Add(s.refreshTTL)
	data := session.TokenData{UserID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin}
	if err := s.sessions.Save(ctx, auth.HashToken(refresh), data, expiresAt); err != nil {
		return SessionTokens{}, err
	}

	return SessionTokens{Token: token, RefreshToken: refresh, ExpiresAt: expiresAt, User: user}, nil
}

// Refresh rotates the refresh token and mints a fresh access token. Flags
// come from the database, not the stored session, so promotions and
// revocations apply on the next refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (SessionTokens, error) {
	hash := auth.HashToken(refreshToken)
	data, err := s.sessions.Lookup(ctx, hash)
	if err != nil {
		return SessionTokens{}, err
	}

	user, err := s.store.GetUserByID(ctx, data.UserID)
	if err != nil {
		return SessionTokens{}, fmt.Errorf("look up user: %w", err)
	}
	if !user.IsApproved {
		_ = s.sessions.Revoke(ctx, hash)
		return SessionTokens{}, accounts.ErrPendingApproval
	}

	if err := s.sessions.Revoke(ctx, hash); err != nil {
		return SessionTokens{}, err
	}
	return s.CreateSession(ctx, user)
}

// Logout revokes the refresh session. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, auth.HashToken(refreshToken))
}

// SessionFromToken validates the access token and loads the current account
// flags.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, fmt.Errorf("look up user: %w", err)
	}

	return Session{
		UserID:     user.ID,
		Username:   user.Username,
		IsAdmin:    user.IsAdmin,
		IsApproved: user.IsApproved,
	}, nil
}

// Accounts exposes the registration and approval flows to the HTTP layer.
func (s *Service) Accounts() *accounts.Service {
	return s.accounts
}

// Profile is the /me payload: identity, rollup counts, favorites, and recent
// notes.
func (s *Service) Profile(ctx context.Context, sess Session) (map[string]any, error) {
	counts, err := s.store.ProfileCounts(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	favorites, err := s.store.ListTopRatings(ctx, sess.UserID, 5)
	if err != nil {
		return nil, err
	}

	notes, err := s.store.ListRecentNotes(ctx, sess.UserID, 5)
	if err != nil {
		return nil, err
	}

	activity, err := s.store.ListRecentRatings(ctx, []string{sess.UserID}, 20)
	if err != nil {
		return nil, err
	}

	favoriteViews := make([]map[string]any, 0, len(favorites))
	for _, f := range favorites {
		favoriteViews = append(favoriteViews, map[string]any{
			"type":  f.Target.Type,
			"id":    f.Target.ID,
			"title": f.Title,
			"value": round1(f.Value),
		})
	}

	noteViews := make([]map[string]any, 0, len(notes))
	for _, n := range notes {
		noteViews = append(noteViews, map[string]any{
			"type":      n.Target.Type,
			"id":        n.Target.ID,
			"title":     n.Title,
			"content":   n.Content,
			"updatedAt": n.UpdatedAt,
		})
	}

	return map[string]any{
		"user": map[string]any{
			"id":       sess.UserID,
			"username": sess.Username,
			"isAdmin":  sess.IsAdmin,
		},
		"counts": map[string]any{
			"totalShows":      counts.TotalShows,
			"totalSeasons":    counts.TotalSeasons,
			"totalEpisodes":   counts.TotalEpisodes,
			"totalMovies":     counts.TotalMovies,
			"watchedEpisodes": counts.WatchedEpisodes,
			"watchedMovies":   counts.WatchedMovies,
			"rated":           counts.RatedByUser,
			"notes":           counts.NotesByUser,
		},
		"favorites":   favoriteViews,
		"recentNotes": noteViews,
		"activity":    activityViews(activity),
	}, nil
}

// ListApprovedUsers backs the filter pickers.
func (s *Service) ListApprovedUsers(ctx context.Context) (map[string]any, error) {
	users, err := s.store.ListApprovedUsers(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, u := range users {
		items = append(items, map[string]any{"id": u.ID, "username": u.Username})
	}
	return map[string]any{"users": items}, nil
}

// ListAdminUsers is the admin screen payload.
func (s *Service) ListAdminUsers(ctx context.Context) (map[string]any, error) {
	users, err := s.store.ListAdminUsers(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, u := range users {
		items = append(items, map[string]any{
			"id":          u.ID,
			"username":    u.Username,
			"email":       u.Email,
			"isAdmin":     u.IsAdmin,
			"isApproved":  u.IsApproved,
			"createdAt":   u.CreatedAt,
			"ratingCount": u.RatingCount,
			"noteCount":   u.NoteCount,
		})
	}
	return map[string]any{"users": items}, nil
}

// UpdateUser applies one admin action to an account.
func (s *Service) UpdateUser(ctx context.Context, sess Session, userID, action string) error {
	if userID == "" {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "userId is required", nil)
	}

	switch action {
	case "approve":
		return s.accounts.Approve(ctx, userID)
	case "reject":
		return s.accounts.Reject(ctx, userID)
	case "toggle-admin":
		if userID == sess.UserID {
			return domainError(http.StatusConflict, "CONFLICT", "Cannot change your own admin flag", nil)
		}
		user, err := s.store.GetUserByID(ctx, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return accounts.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return s.accounts.SetAdmin(ctx, userID, !user.IsAdmin)
	}
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "action must be approve, reject, or toggle-admin", nil)
}

// ExportNotes renders the selected notes in the requested format.
func (s *Service) ExportNotes(ctx context.Context, sess Session, req export.Request) (*export.Result, error) {
	req.UserID = sess.UserID
	req.Username = sess.Username
	return s.exporter.Export(ctx, req)
}

func activityViews(ratings []store.TitledRating) []map[string]any {
	items := make([]map[string]any, 0, len(ratings))
	for _, r := range ratings {
		items = append(items, map[string]any{
			"type":      "rating",
			"target":    r.Target.Type,
			"id":        r.Target.ID,
			"title":     r.Title,
			"username":  r.Username,
			"value":     round1(r.Value),
			"timestamp": r.UpdatedAt,
		})
	}
	return items
}

// round1 rounds to one decimal, the precision every rating is stored and
// displayed at.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
