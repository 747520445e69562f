package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/secure/precis"

	"github.com/aegis-iam/aegis/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Insert(ctx context.Context, user User) error
	GetActive(ctx context.Context, id string) (User, error)
	FindActiveByEmail(ctx context.Context, email string) (User, error)
	ListActive(ctx context.Context, limit, offset int) ([]User, int, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// Service handles user account business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Register creates a user with a bcrypt-hashed credential. Email addresses
// are normalized with the PRECIS UsernameCaseMapped profile before storage so
// lookups and the uniqueness constraint see one canonical form.
func (s *Service) Register(ctx context.Context, email, password string) (User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	if password == "" {
		return User{}, fmt.Errorf("password required: %w", shared.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Get fetches an active user by ID.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	if err := validateID(id); err != nil {
		return User{}, err
	}
	return s.repo.GetActive(ctx, id)
}

// FindByEmail fetches an active user by email.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	return s.repo.FindActiveByEmail(ctx, email)
}

// List returns a page of active users with pagination metadata.
func (s *Service) List(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	list, total, err := s.repo.ListActive(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// SoftDelete marks a user deleted.
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, id, time.Now().UTC())
}

// NormalizeEmail canonicalizes an email address for storage and comparison.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("valid email required: %w", shared.ErrInvalidInput)
	}
	normalized, err := precis.UsernameCaseMapped.String(email)
	if err != nil {
		return "", fmt.Errorf("email %q: %w", email, shared.ErrInvalidInput)
	}
	return normalized, nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("malformed id %q: %w", id, shared.ErrInvalidInput)
	}
	return nil
}
