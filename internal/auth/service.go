package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aegis-iam/aegis/internal/shared"
	"github.com/aegis-iam/aegis/internal/users"
)

// UserPort exposes the user lookups the auth flow needs.
type UserPort interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	Register(ctx context.Context, email, password string) (users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	usersSvc UserPort
	sessions *shared.SessionManager
	repo     Repository
}

// NewService constructs a new Service.
func NewService(usersSvc UserPort, sessions *shared.SessionManager, repo Repository) *Service {
	return &Service{usersSvc: usersSvc, sessions: sessions, repo: repo}
}

// Login validates credentials and issues a bearer session token. Lookup
// failures and password mismatches collapse into one error so callers cannot
// distinguish unknown accounts from wrong passwords.
func (s *Service) Login(ctx context.Context, email, password, ip, ua string) (*shared.Session, error) {
	user, err := s.usersSvc.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrInvalidInput) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	sess, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	record := SessionRecord{
		Token:     sess.Token,
		UserID:    user.ID,
		CreatedAt: sess.IssuedAt,
		ExpiresAt: sess.IssuedAt.Add(s.sessions.TTL()),
		IP:        ip,
		UserAgent: ua,
	}
	if err := s.repo.CreateSession(ctx, record); err != nil {
		return nil, err
	}
	return sess, nil
}

// Logout revokes the session token in Redis and drops the durable record.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return err
	}
	return s.repo.DeleteSession(ctx, token)
}

// Register creates a new account with no roles attached.
func (s *Service) Register(ctx context.Context, email, password string) (users.User, error) {
	return s.usersSvc.Register(ctx, email, password)
}

// PruneExpiredSessions drops durable session records past their expiry.
func (s *Service) PruneExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, now)
}
