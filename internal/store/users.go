package store

import (
	"context"
	"database/sql"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, username, email, password_hash, is_admin, is_approved, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.IsAdmin, &user.IsApproved, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

// CountUsers returns the total number of accounts, approved or not. Zero means
// the instance has never seen a registration.
func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// UsernameOrEmailTaken reports whether any user already holds the username or
// the email. Used for the 409 path at registration.
func (s *PostgresStore) UsernameOrEmailTaken(ctx context.Context, username, email string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE username=$1 OR email=$2)
	`, username, email).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check username/email: %w", err)
	}
	return taken, nil
}

// CreateUserBootstrap inserts the user inside a transaction that re-counts the
// user table: when the count is zero the new account is promoted to approved
// admin. Returns the user as stored and whether it took the bootstrap path.
func (s *PostgresStore) CreateUserBootstrap(ctx context.Context, user User) (User, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, false, fmt.Errorf("begin create user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return User{}, false, fmt.Errorf("count users: %w", err)
	}
	first := count == 0
	if first {
		user.IsAdmin = true
		user.IsApproved = true
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, is_admin, is_approved)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.IsAdmin, user.IsApproved); err != nil {
		return User{}, false, fmt.Errorf("insert user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return User{}, false, fmt.Errorf("commit create user: %w", err)
	}
	return user, first, nil
}

func (s *PostgresStore) SetUserApproved(ctx context.Context, userID string, approved bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_approved=$2, updated_at=NOW() WHERE id=$1
	`, userID, approved)
	if err != nil {
		return fmt.Errorf("set user approved: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SetUserAdmin(ctx context.Context, userID string, admin bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_admin=$2, updated_at=NOW() WHERE id=$1
	`, userID, admin)
	if err != nil {
		return fmt.Errorf("set user admin: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListAdminUsers returns every account with per-user rating and note counts
// for the admin screen.
func (s *PostgresStore) ListAdminUsers(ctx context.Context) ([]AdminUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.email, u.is_admin, u.is_approved, u.created_at,
			(SELECT COUNT(*) FROM ratings r WHERE r.user_id=u.id) AS rating_count,
			(SELECT COUNT(*) FROM notes n WHERE n.user_id=u.id) AS note_count
		FROM users u
		ORDER BY u.created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list admin users: %w", err)
	}
	defer rows.Close()

	items := make([]AdminUser, 0)
	for rows.Next() {
		var item AdminUser
		if err := rows.Scan(&item.ID, &item.Username, &item.Email, &item.IsAdmin, &item.IsApproved, &item.CreatedAt, &item.RatingCount, &item.NoteCount); err != nil {
			return nil, fmt.Errorf("scan admin user: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admin users: %w", err)
	}
	return items, nil
}

// ApprovedUser is the minimal identity exposed to filter pickers.
type ApprovedUser struct {
	ID       string
	Username string
}

func (s *PostgresStore) ListApprovedUsers(ctx context.Context) ([]ApprovedUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username FROM users WHERE is_approved = TRUE ORDER BY username ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list approved users: %w", err)
	}
	defer rows.Close()

	items := make([]ApprovedUser, 0)
	for rows.Next() {
		var item ApprovedUser
		if err := rows.Scan(&item.ID, &item.Username); err != nil {
			return nil, fmt.Errorf("scan approved user: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approved users: %w", err)
	}
	return items, nil
}

// ProfileCounts gathers the totals behind the /me rollups in one round trip
// per table.
func (s *PostgresStore) ProfileCounts(ctx context.Context, userID string) (ProfileCounts, error) {
	var counts ProfileCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM episodes),
			(SELECT COUNT(*) FROM movies),
			(SELECT COUNT(*) FROM seasons),
			(SELECT COUNT(*) FROM shows),
			(SELECT COUNT(*) FROM watch_progress WHERE watched AND episode_id IS NOT NULL),
			(SELECT COUNT(*) FROM watch_progress WHERE watched AND movie_id IS NOT NULL),
			(SELECT COUNT(*) FROM ratings WHERE user_id=$1),
			(SELECT COUNT(*) FROM notes WHERE user_id=$1)
	`, userID).Scan(
		&counts.TotalEpisodes,
		&counts.TotalMovies,
		&counts.TotalSeasons,
		&counts.TotalShows,
		&counts.WatchedEpisodes,
		&counts.WatchedMovies,
		&counts.RatedByUser,
		&counts.NotesByUser,
	)
	if err != nil {
		return ProfileCounts{}, fmt.Errorf("profile counts: %w", err)
	}
	return counts, nil
}
