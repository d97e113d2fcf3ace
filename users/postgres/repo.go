package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stockpilot/auth-service/users"
)

var _ users.UserRepo = (*Repo)(nil)

// Repo is the Postgres-backed UserRepo. Token rotation is a single
// conditional statement, so two concurrent rotations of the same hash
// cannot both succeed.
type Repo struct {
	db *sql.DB
}

// Open connects to Postgres using the pgx stdlib driver. Caller must Close.
func Open(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Repo{db: db}, nil
}

// NewRepo wraps an existing connection, e.g. one shared with the migrate runner.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Close() error {
	return r.db.Close()
}

// DB exposes the underlying handle for the migration runner.
func (r *Repo) DB() *sql.DB {
	return r.db
}

func (r *Repo) Create(ctx context.Context, user *users.User) error {
	email := strings.ToLower(user.Email)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Name, email, user.PasswordHash, string(user.Role), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return users.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	user.Email = email
	return nil
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.getUser(ctx, `SELECT id, name, email, password_hash, role, created_at, updated_at
		FROM users WHERE email = $1`, strings.ToLower(email))
}

func (r *Repo) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.getUser(ctx, `SELECT id, name, email, password_hash, role, created_at, updated_at
		FROM users WHERE id = $1`, id)
}

func (r *Repo) getUser(ctx context.Context, query string, arg any) (*users.User, error) {
	var u users.User
	var role string
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	u.Role = users.RoleType(role)

	rows, err := r.db.QueryContext(ctx, `SELECT token_hash, created_at, expires_at
		FROM refresh_tokens WHERE user_id = $1 ORDER BY created_at`, u.ID)
	if err != nil {
		return nil, fmt.Errorf("select refresh tokens: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rt users.RefreshTokenRecord
		if err := rows.Scan(&rt.TokenHash, &rt.CreatedAt, &rt.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		u.RefreshTokens = append(u.RefreshTokens, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh tokens: %w", err)
	}
	return &u, nil
}

func (r *Repo) AddRefreshToken(ctx context.Context, userID string, record users.RefreshTokenRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)`,
		record.TokenHash, userID, record.CreatedAt, record.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// RotateRefreshToken deletes the old record and inserts the new one in one
// statement. The insert only fires when the delete matched a row, which is
// what makes concurrent rotations of the same hash mutually exclusive.
func (r *Repo) RotateRefreshToken(ctx context.Context, userID string, oldHash string, newRecord users.RefreshTokenRecord) error {
	res, err := r.db.ExecContext(ctx, `
		WITH deleted AS (
			DELETE FROM refresh_tokens
			WHERE user_id = $1 AND token_hash = $2
			RETURNING user_id
		)
		INSERT INTO refresh_tokens (token_hash, user_id, created_at, expires_at)
		SELECT $3, user_id, $4, $5 FROM deleted`,
		userID, oldHash, newRecord.TokenHash, newRecord.CreatedAt, newRecord.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if n == 0 {
		return users.ErrTokenHashNotFound
	}
	return nil
}

func (r *Repo) RemoveRefreshToken(ctx context.Context, userID string, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens
		WHERE user_id = $1 AND token_hash = $2`, userID, tokenHash)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (r *Repo) ClearRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("clear refresh tokens: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// pgx stdlib surfaces *pgconn.PgError; 23505 is unique_violation.
	type sqlState interface{ SQLState() string }
	var se sqlState
	if errors.As(err, &se) {
		return se.SQLState() == "23505"
	}
	return false
}
