package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUserNotFound signals that the user does not exist.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrDuplicateUsername signals that the username is already registered.
	ErrDuplicateUsername = errors.New("auth: username already exists")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("auth: email already exists")
	// ErrDuplicateMobile signals that the mobile number is already registered.
	ErrDuplicateMobile = errors.New("auth: mobile already exists")
)

// Repository handles data access for authentication.
type Repository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
	// SetRefreshToken stores token for the user; an empty token clears it.
	SetRefreshToken(ctx context.Context, userID, token string) error
}

// CreateUserParams contains write parameters for creating users.
type CreateUserParams struct {
	Username     string
	Email        string
	Mobile       string
	PasswordHash string
	Role         Role
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed auth repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateUser inserts a new user with hashed password.
func (r *PGRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	const insertSQL = `
		INSERT INTO users (username, email, mobile, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, username, email, mobile, role, password_hash, refresh_token, created_at, updated_at
	`

	user, err := scanUser(r.pool.QueryRow(ctx, insertSQL, params.Username, params.Email, params.Mobile, params.PasswordHash, params.Role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, duplicateFor(pgErr.ConstraintName)
		}
		return User{}, fmt.Errorf("auth: create user: %w", err)
	}

	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (r *PGRepository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	const selectSQL = `
		SELECT id, username, email, mobile, role, password_hash, refresh_token, created_at, updated_at
		FROM users
		WHERE username = $1
	`

	user, err := scanUser(r.pool.QueryRow(ctx, selectSQL, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("auth: get user by username: %w", err)
	}

	return user, nil
}

// GetUserByID retrieves a user by ID.
func (r *PGRepository) GetUserByID(ctx context.Context, userID string) (User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return User{}, ErrUserNotFound
	}

	const selectSQL = `
		SELECT id, username, email, mobile, role, password_hash, refresh_token, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	user, err := scanUser(r.pool.QueryRow(ctx, selectSQL, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("auth: get user by id: %w", err)
	}

	return user, nil
}

func (r *PGRepository) SetRefreshToken(ctx context.Context, userID, token string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return ErrUserNotFound
	}

	var value any
	if token != "" {
		value = token
	}
	tag, err := r.pool.Exec(ctx, `UPDATE users SET refresh_token = $2, updated_at = now() WHERE id = $1`, userID, value)
	if err != nil {
		return fmt.Errorf("auth: set refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func duplicateFor(constraint string) error {
	switch constraint {
	case "users_username_key":
		return ErrDuplicateUsername
	case "users_mobile_key":
		return ErrDuplicateMobile
	default:
		return ErrDuplicateEmail
	}
}

func scanUser(row pgx.Row) (User, error) {
	var (
		user         User
		refreshToken *string
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Mobile,
		&user.Role,
		&user.PasswordHash,
		&refreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}

	if refreshToken != nil {
		user.RefreshToken = *refreshToken
	}
	return user, nil
}
