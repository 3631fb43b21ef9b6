package store

import (
	"fmt"
	"time"
)

// TargetType discriminates the four content tables a rating, note, or
// watch-progress row can attach to.
type TargetType string

const (
	TargetShow    TargetType = "show"
	TargetSeason  TargetType = "season"
	TargetEpisode TargetType = "episode"
	TargetMovie   TargetType = "movie"
)

// TargetRef identifies exactly one content item. It replaces the four
// mutually exclusive nullable foreign keys of the schema at the type level:
// the store maps it back onto the matching column.
type TargetRef struct {
	Type TargetType
	ID   string
}

// ParseTargetType validates a wire-level content type discriminator.
func ParseTargetType(raw string) (TargetType, error) {
	switch TargetType(raw) {
	case TargetShow, TargetSeason, TargetEpisode, TargetMovie:
		return TargetType(raw), nil
	}
	return "", fmt.Errorf("invalid content type %q", raw)
}

// Column returns the foreign-key column for the target. The return value is
// drawn from a fixed set, so it is safe to splice into SQL.
func (t TargetRef) Column() (string, error) {
	switch t.Type {
	case TargetShow:
		return "show_id", nil
	case TargetSeason:
		return "season_id", nil
	case TargetEpisode:
		return "episode_id", nil
	case TargetMovie:
		return "movie_id", nil
	}
	return "", fmt.Errorf("invalid content type %q", t.Type)
}

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsAdmin      bool
	IsApproved   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Show struct {
	ID              string
	Title           string
	Description     string
	SortOrder       *int
	ArtworkURL      string
	ReferenceRating *float64
	Runtime         int
	CreatedAt       time.Time
}

type Season struct {
	ID              string
	ShowID          string
	Number          int
	ArtworkURL      string
	ReferenceRating *float64
	Runtime         int
}

type Episode struct {
	ID              string
	SeasonID        string
	Title           string
	EpisodeNumber   int
	AirDate         *time.Time
	ArtworkURL      string
	ReferenceRating *float64
	Description     string
	Runtime         int
}

type Movie struct {
	ID              string
	Title           string
	ReleaseDate     *time.Time
	Description     string
	SortOrder       *int
	ArtworkURL      string
	ReferenceRating *float64
	Runtime         int
}

type Rating struct {
	ID        string
	UserID    string
	Target    TargetRef
	Value     float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Note struct {
	ID        string
	UserID    string
	Target    TargetRef
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WatchProgress is global, not per user: one row per target, deleted when the
// target is marked unwatched.
type WatchProgress struct {
	ID        string
	Target    TargetRef
	Watched   bool
	UpdatedAt time.Time
}

// RatingSummary is the per-target aggregate used by catalog listings: the
// community average, row count, and the caller's own value if present.
type RatingSummary struct {
	Target    TargetRef
	Average   float64
	Count     int
	UserValue *float64
}

// UserRating is a rating row joined with the rater's username.
type UserRating struct {
	ID        string
	Username  string
	Value     float64
	CreatedAt time.Time
}

// TitledRating is a rating joined with a human-readable display title for the
// target ("Show S2E: Episode" and so on), used by favorites and activity.
type TitledRating struct {
	ID        string
	Target    TargetRef
	Value     float64
	Title     string
	Username  string
	UpdatedAt time.Time
}

// TitledNote mirrors TitledRating for notes.
type TitledNote struct {
	ID        string
	Target    TargetRef
	Content   string
	Title     string
	Username  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserNote is a note row joined with the author's username.
type UserNote struct {
	ID        string
	Username  string
	Content   string
	CreatedAt time.Time
}

type AdminUser struct {
	ID          string
	Username    string
	Email       string
	IsAdmin     bool
	IsApproved  bool
	CreatedAt   time.Time
	RatingCount int
	NoteCount   int
}

// ProfileCounts backs the /me rollups.
type ProfileCounts struct {
	TotalEpisodes   int
	TotalMovies     int
	TotalSeasons    int
	TotalShows      int
	WatchedEpisodes int
	WatchedMovies   int
	RatedByUser     int
	NotesByUser     int
}
