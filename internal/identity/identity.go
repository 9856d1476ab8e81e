// Package identity authenticates users and maps session tokens back to them.
package identity

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/concert-booking/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	FindUserByUsername(ctx context.Context, username string) (domain.User, error)
	GetUser(ctx context.Context, id int64) (domain.User, error)
}

type SessionStore interface {
	SetSession(ctx context.Context, token string, userID int64, ttl time.Duration) error
	GetSession(ctx context.Context, token string) (int64, error)
}

type Service struct {
	users    UserStore
	sessions SessionStore
	ttl      time.Duration
}

func NewService(users UserStore, sessions SessionStore, ttl time.Duration) *Service {
	return &Service{users: users, sessions: sessions, ttl: ttl}
}

// HashPassword is used when seeding users.
func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(b), nil
}

// Login returns a fresh session token. Unknown users and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (string, domain.User, error) {
	u, err := s.users.FindUserByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return "", domain.User{}, errors.Wrap(domain.ErrUnauthenticated, "unknown user")
	}
	if err != nil {
		return "", domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", domain.User{}, errors.Wrap(domain.ErrUnauthenticated, "wrong password")
	}

	token := uuid.NewString()
	if err := s.sessions.SetSession(ctx, token, u.ID, s.ttl); err != nil {
		return "", domain.User{}, err
	}
	return token, u, nil
}

func (s *Service) Resolve(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}
	id, err := s.sessions.GetSession(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, errors.Wrap(domain.ErrUnauthenticated, "session expired")
	}
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetUser(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, errors.Wrap(domain.ErrUnauthenticated, "session user gone")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
