package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pampa-erp/pampa-erp/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// PrincipalFor loads the firm-access grants for a user and builds the
// principal passed into lifecycle operations.
func (s *Service) PrincipalFor(ctx context.Context, userID int64) (Principal, error) {
	if userID == 0 {
		return Principal{}, shared.ErrAuthRequired
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	if !user.IsActive {
		return Principal{}, shared.ErrAuthRequired
	}
	firmIDs, err := s.repo.ListFirmAccess(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: userID, FirmIDs: firmIDs}, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
