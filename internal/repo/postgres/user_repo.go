package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/repo"
)

type UsersRepoImpl struct{ pool *pgxpool.Pool }

func NewUsersRepo(pool *pgxpool.Pool) *UsersRepoImpl { return &UsersRepoImpl{pool: pool} }

const userCols = `id, name, email, photo, role, password_hash, password_changed_at,
COALESCE(password_reset_token, ''), password_reset_expires, active, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Photo, &u.Role, &u.PasswordHash, &u.PasswordChangedAt,
		&u.PasswordResetToken, &u.PasswordResetExpires, &u.Active, &u.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UsersRepoImpl) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	const q = `
INSERT INTO users (id, name, email, photo, role, password_hash, password_changed_at, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,COALESCE($9, now()))
RETURNING ` + userCols
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var createdAt *time.Time
	if !u.CreatedAt.IsZero() {
		createdAt = &u.CreatedAt
	}
	out, err := scanUser(r.pool.QueryRow(ctx, q,
		newID(u.ID), u.Name, u.Email, u.Photo, u.Role, u.PasswordHash, u.PasswordChangedAt, u.Active, createdAt,
	))
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, err
	}
	return out, nil
}

func (r *UsersRepoImpl) FindByID(ctx context.Context, id string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id=$1 AND active`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanUser(r.pool.QueryRow(ctx, q, id))
}

func (r *UsersRepoImpl) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE email=$1 AND active`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanUser(r.pool.QueryRow(ctx, q, email))
}

func (r *UsersRepoImpl) UpdateProfile(ctx context.Context, id string, upd repo.ProfileUpdate) (*domain.User, error) {
	const q = `
UPDATE users
SET name  = COALESCE($2, name),
    email = COALESCE($3, email),
    photo = COALESCE($4, photo)
WHERE id=$1 AND active
RETURNING ` + userCols
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	out, err := scanUser(r.pool.QueryRow(ctx, q, id, upd.Name, upd.Email, upd.Photo))
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, err
	}
	return out, nil
}

func (r *UsersRepoImpl) UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error {
	const q = `
UPDATE users
SET password_hash = $2,
    password_changed_at = $3,
    password_reset_token = NULL,
    password_reset_expires = NULL
WHERE id=$1 AND active`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id, hash, changedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UsersRepoImpl) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	const q = `UPDATE users SET password_reset_token=$2, password_reset_expires=$3 WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id, tokenHash, expires)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UsersRepoImpl) ClearResetToken(ctx context.Context, id, tokenHash string) error {
	const q = `UPDATE users SET password_reset_token=NULL, password_reset_expires=NULL WHERE id=$1 AND password_reset_token=$2`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, id, tokenHash)
	return err
}

// ConsumeResetToken matches and clears the token in one UPDATE ... RETURNING.
func (r *UsersRepoImpl) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, newHash string, changedAt time.Time) (*domain.User, error) {
	const q = `
UPDATE users
SET password_hash = $3,
    password_changed_at = $4,
    password_reset_token = NULL,
    password_reset_expires = NULL
WHERE password_reset_token = $1
  AND password_reset_expires > $2
  AND active
RETURNING ` + userCols
	if tokenHash == "" {
		return nil, domain.ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return scanUser(r.pool.QueryRow(ctx, q, tokenHash, now, newHash, changedAt))
}

func (r *UsersRepoImpl) Deactivate(ctx context.Context, id string) error {
	const q = `UPDATE users SET active=false WHERE id=$1 AND active`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UsersRepoImpl) DeleteAll(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM users`)
	return err
}
