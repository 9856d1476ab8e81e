package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/concert-booking/internal/domain"
)

func (r *Repository) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, u.ID, u.Username, u.PasswordHash)
	return mapError(errors.Wrap(err, "insert user"))
}

func (r *Repository) FindUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.findUser(ctx, `SELECT id, username, password_hash FROM users WHERE username = $1`, username)
}

func (r *Repository) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return r.findUser(ctx, `SELECT id, username, password_hash FROM users WHERE id = $1`, id)
}

func (r *Repository) findUser(ctx context.Context, query string, arg any) (domain.User, error) {
	var u domain.User
	err := r.q(ctx).QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, errors.Wrapf(domain.ErrNotFound, "user %v", arg)
	}
	if err != nil {
		return domain.User{}, errors.Wrap(err, "select user")
	}
	return u, nil
}
