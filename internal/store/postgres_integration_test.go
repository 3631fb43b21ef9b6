package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// openTestDB connects to the database named by STARDECK_TEST_DATABASE_URL,
// resets the public schema, and applies the migrations. Tests that need a real
// Postgres skip when the variable is unset.
func openTestDB(t *testing.T) (context.Context, *sql.DB) {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("STARDECK_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("STARDECK_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return ctx, db
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}

// seedCatalog inserts one user, one show with a season and an episode, and one
// movie, and returns the episode and movie IDs.
func seedCatalog(ctx context.Context, t *testing.T, db *sql.DB) (userID, episodeID, movieID string) {
	t.Helper()
	statements := []string{
		`INSERT INTO users (id, username, email, password_hash, is_admin, is_approved)
			VALUES ('user_1', 'kira', 'kira@example.com', 'x', TRUE, TRUE)`,
		`INSERT INTO shows (id, title, sort_order) VALUES ('show_1', 'Deep Space Nine', 3)`,
		`INSERT INTO seasons (id, show_id, number) VALUES ('season_1', 'show_1', 1)`,
		`INSERT INTO episodes (id, season_id, title, episode_number)
			VALUES ('ep_1', 'season_1', 'Emissary', 1)`,
		`INSERT INTO movies (id, title, sort_order) VALUES ('movie_1', 'First Contact', 8)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed catalog: %v", err)
		}
	}
	return "user_1", "ep_1", "movie_1"
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	ctx, db := openTestDB(t)

	migrationsDir := filepath.Join("..", "..", "db", "migrations")

	if err := applyDownMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func applyDownMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return err
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.down\.sql$`)
	type migration struct {
		version string
		path    string
	}
	downs := make([]migration, 0)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		downs = append(downs, migration{
			version: match[1],
			path:    filepath.Join(migrationsDir, name),
		})
	}

	sort.Slice(downs, func(i, j int) bool {
		return downs[i].version > downs[j].version
	})

	for _, down := range downs {
		sqlBytes, err := os.ReadFile(down.path)
		if err != nil {
			return err
		}
		sqlText := strings.TrimSpace(string(sqlBytes))
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			return err
		}
	}

	return nil
}

func TestSchemaRejectsAmbiguousTarget(t *testing.T) {
	ctx, db := openTestDB(t)
	seedCatalog(ctx, t, db)

	// A rating must point at exactly one content item.
	_, err := db.ExecContext(ctx, `
		INSERT INTO ratings (id, user_id, episode_id, movie_id, value)
		VALUES ('rating_1', 'user_1', 'ep_1', 'movie_1', 7.5)
	`)
	if err == nil {
		t.Fatal("insert with two targets should violate the check constraint")
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO notes (id, user_id, content) VALUES ('note_1', 'user_1', 'hm')
	`)
	if err == nil {
		t.Fatal("insert with no target should violate the check constraint")
	}
}

func TestUpsertRatingReplacesExistingRow(t *testing.T) {
	ctx, db := openTestDB(t)
	userID, episodeID, _ := seedCatalog(ctx, t, db)
	s := NewPostgresStore(db)

	target := TargetRef{Type: TargetEpisode, ID: episodeID}
	if _, err := s.UpsertRating(ctx, "rating_1", userID, target, 7.5); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := s.UpsertRating(ctx, "rating_2", userID, target, 9.0); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	ratings, err := s.ListRatingsForTarget(ctx, target)
	if err != nil {
		t.Fatalf("list ratings: %v", err)
	}
	if len(ratings) != 1 {
		t.Fatalf("ratings = %d rows, want the second upsert to replace the first", len(ratings))
	}
	if ratings[0].Value != 9.0 {
		t.Fatalf("value = %v, want 9.0", ratings[0].Value)
	}
}

func TestSetWatchedUnwatchDeletesRow(t *testing.T) {
	ctx, db := openTestDB(t)
	_, episodeID, _ := seedCatalog(ctx, t, db)
	s := NewPostgresStore(db)

	target := TargetRef{Type: TargetEpisode, ID: episodeID}
	if err := s.SetWatched(ctx, []TargetRef{target}, true); err != nil {
		t.Fatalf("mark watched: %v", err)
	}
	if watched, err := s.IsWatched(ctx, target); err != nil || !watched {
		t.Fatalf("watched = %v, %v, want true", watched, err)
	}

	if err := s.SetWatched(ctx, []TargetRef{target}, false); err != nil {
		t.Fatalf("mark unwatched: %v", err)
	}
	if watched, err := s.IsWatched(ctx, target); err != nil || watched {
		t.Fatalf("watched = %v, %v, want false", watched, err)
	}

	// Unwatching removes the row entirely, timestamp included.
	var rows int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM watch_progress`).Scan(&rows); err != nil {
		t.Fatalf("count watch rows: %v", err)
	}
	if rows != 0 {
		t.Fatalf("watch_progress rows = %d, want 0 after unwatch", rows)
	}
}

func TestNilSelectionsMeanEverything(t *testing.T) {
	ctx, db := openTestDB(t)
	userID, episodeID, movieID := seedCatalog(ctx, t, db)
	s := NewPostgresStore(db)

	episode := TargetRef{Type: TargetEpisode, ID: episodeID}
	movie := TargetRef{Type: TargetMovie, ID: movieID}
	if _, err := s.UpsertRating(ctx, "rating_1", userID, episode, 8.5); err != nil {
		t.Fatalf("upsert rating: %v", err)
	}
	if _, err := s.UpsertNote(ctx, "note_1", userID, movie, "resistance is futile"); err != nil {
		t.Fatalf("upsert note: %v", err)
	}

	// Nil user filter means the whole crew's activity.
	recent, err := s.ListRecentRatings(ctx, nil, 20)
	if err != nil {
		t.Fatalf("list recent ratings: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("recent ratings = %d rows, want 1", len(recent))
	}

	// Nil target selections mean export everything.
	notes, err := s.ListNotesForExport(ctx, userID, false, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("list export notes: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("export notes = %d rows, want 1", len(notes))
	}
}
