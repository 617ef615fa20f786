package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// SecurityRecorder receives failed-login security events.
type SecurityRecorder interface {
	RecordSecurity(ctx context.Context, e audit.SecurityEvent)
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	recorder SecurityRecorder
}

// NewService constructs a new Service.
func NewService(repo Repository, recorder SecurityRecorder) *Service {
	return &Service{repo: repo, recorder: recorder}
}

// Authenticate validates email/password credentials. Failures are uniform
// towards the caller and recorded as security events.
func (s *Service) Authenticate(ctx context.Context, email, password string, reqCtx audit.RequestContext) (*Account, error) {
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.recordFailure(ctx, email, "unknown account", reqCtx)
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !account.IsActive {
		s.recordFailure(ctx, email, "inactive account", reqCtx)
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.recordFailure(ctx, email, "password mismatch", reqCtx)
		return nil, shared.ErrInvalidCredentials
	}
	return account, nil
}

func (s *Service) recordFailure(ctx context.Context, email, detail string, reqCtx audit.RequestContext) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordSecurity(ctx, audit.SecurityEvent{
		Type:     audit.EventFailedLogin,
		Actor:    audit.Actor{Kind: audit.ActorSystem, Label: email},
		Severity: audit.RiskMedium,
		Detail:   detail,
		Request:  reqCtx,
	})
}
