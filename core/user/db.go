package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/swasthik/sarathi/core/claims"
	"github.com/swasthik/sarathi/validate"
	"golang.org/x/crypto/bcrypt"
)

// ErrUniqueViolation flags inserts and updates colliding on username or email.
var ErrUniqueViolation = errors.New("username or email is already taken")

const uniqueViolation = "23505"

func Create(ctx context.Context, db sqlx.ExtContext, usr User) error {
	const q = `
	INSERT INTO users
		(user_id, username, email, role, active, password_hash, created_at, updated_at)
	VALUES
		(:user_id, :username, :email, :role, :active, :password_hash, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, usr); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrUniqueViolation
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, userID string) (User, error) {
	const q = `
	SELECT *
	FROM users
	WHERE user_id = $1`

	var usr User
	if err := sqlx.GetContext(ctx, db, &usr, q, userID); err != nil {
		return User{}, fmt.Errorf("selecting user[%s]: %w", userID, err)
	}

	return usr, nil
}

func FetchByEmail(ctx context.Context, db sqlx.ExtContext, email string) (User, error) {
	const q = `
	SELECT *
	FROM users
	WHERE email = $1`

	var usr User
	if err := sqlx.GetContext(ctx, db, &usr, q, email); err != nil {
		return User{}, fmt.Errorf("selecting user by email: %w", err)
	}

	return usr, nil
}

// Update stores a new username and email for the user.
func Update(ctx context.Context, db sqlx.ExtContext, usr User) error {
	const q = `
	UPDATE users
	SET
		username = :username,
		email = :email,
		updated_at = :updated_at
	WHERE user_id = :user_id`

	if _, err := sqlx.NamedExecContext(ctx, db, q, usr); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrUniqueViolation
		}
		return fmt.Errorf("updating user[%s]: %w", usr.ID, err)
	}

	return nil
}

func UpdatePasswordHash(ctx context.Context, db sqlx.ExtContext, userID string, hash []byte, now time.Time) error {
	const q = `
	UPDATE users
	SET password_hash = $2, updated_at = $3
	WHERE user_id = $1`

	if _, err := db.ExecContext(ctx, q, userID, hash, now); err != nil {
		return fmt.Errorf("updating password of user[%s]: %w", userID, err)
	}

	return nil
}

func UpdateLastLogin(ctx context.Context, db sqlx.ExtContext, userID string, now time.Time) error {
	const q = `
	UPDATE users
	SET last_login = $2
	WHERE user_id = $1`

	if _, err := db.ExecContext(ctx, q, userID, now); err != nil {
		return fmt.Errorf("updating last login of user[%s]: %w", userID, err)
	}

	return nil
}

func Activate(ctx context.Context, db sqlx.ExtContext, userID string, now time.Time) error {
	const q = `
	UPDATE users
	SET active = TRUE, updated_at = $2
	WHERE user_id = $1`

	if _, err := db.ExecContext(ctx, q, userID, now); err != nil {
		return fmt.Errorf("activating user[%s]: %w", userID, err)
	}

	return nil
}

// EnsureAdmin creates the back-office account when it does not exist yet,
// so a fresh deployment can always be administered.
func EnsureAdmin(ctx context.Context, db *sqlx.DB, username, email, password string) error {
	if _, err := FetchByEmail(ctx, db, email); err == nil {
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking admin account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}

	now := time.Now().UTC()
	adm := User{
		ID:           validate.GenerateID(),
		Username:     username,
		Email:        email,
		Role:         claims.RoleAdmin,
		Active:       true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := Create(ctx, db, adm); err != nil && !errors.Is(err, ErrUniqueViolation) {
		return fmt.Errorf("creating admin account: %w", err)
	}

	return nil
}
