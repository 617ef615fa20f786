// Package apikeys issues and verifies API keys for machine callers. Only the
// SHA-256 digest of a key is stored; the plaintext is shown once at issue
// time.
package apikeys

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-sis/meridian-sis/internal/audit"
	"github.com/meridian-sis/meridian-sis/internal/shared"
)

// ErrInvalidKey indicates the presented key does not match any active record.
var ErrInvalidKey = errors.New("apikeys: invalid key")

const keyPrefix = "msk_"

// APIKey is the stored record for one issued key.
type APIKey struct {
	ID         int64
	UserID     int64
	Name       string
	Digest     string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	IsActive   bool
}

// RepositoryPort defines persistence for API keys.
type RepositoryPort interface {
	Create(ctx context.Context, key APIKey) (APIKey, error)
	FindActiveByDigest(ctx context.Context, digest string) (*APIKey, error)
	TouchUsage(ctx context.Context, id int64, at time.Time) error
	Revoke(ctx context.Context, id int64) error
}

// SecurityRecorder receives invalid-key security events.
type SecurityRecorder interface {
	RecordSecurity(ctx context.Context, e audit.SecurityEvent)
}

// Service issues and verifies keys.
type Service struct {
	repo     RepositoryPort
	recorder SecurityRecorder
	clock    func() time.Time
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, recorder SecurityRecorder) *Service {
	return &Service{
		repo:     repo,
		recorder: recorder,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a new key for the user and returns the plaintext exactly once.
func (s *Service) Issue(ctx context.Context, userID int64, name string) (string, APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", APIKey{}, errors.New("apikeys: name required")
	}
	plaintext := keyPrefix + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	record := APIKey{
		UserID:    userID,
		Name:      name,
		Digest:    digest(plaintext),
		CreatedAt: s.clock(),
		IsActive:  true,
	}
	stored, err := s.repo.Create(ctx, record)
	if err != nil {
		return "", APIKey{}, fmt.Errorf("apikeys: issue: %w", err)
	}
	return plaintext, stored, nil
}

// Verify resolves a presented key to its record. Unknown or revoked keys are
// recorded as invalid_api_key security events.
func (s *Service) Verify(ctx context.Context, plaintext string, reqCtx audit.RequestContext) (*APIKey, error) {
	if !strings.HasPrefix(plaintext, keyPrefix) {
		s.reportInvalid(ctx, reqCtx)
		return nil, ErrInvalidKey
	}
	d := digest(plaintext)
	key, err := s.repo.FindActiveByDigest(ctx, d)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.reportInvalid(ctx, reqCtx)
			return nil, ErrInvalidKey
		}
		return nil, err
	}
	// Constant-time recheck; the lookup already matched but keeps the
	// comparison uniform.
	if subtle.ConstantTimeCompare([]byte(key.Digest), []byte(d)) != 1 {
		s.reportInvalid(ctx, reqCtx)
		return nil, ErrInvalidKey
	}
	if err := s.repo.TouchUsage(ctx, key.ID, s.clock()); err != nil {
		return nil, err
	}
	return key, nil
}

// Revoke deactivates a key.
func (s *Service) Revoke(ctx context.Context, id int64) error {
	return s.repo.Revoke(ctx, id)
}

func (s *Service) reportInvalid(ctx context.Context, reqCtx audit.RequestContext) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordSecurity(ctx, audit.SecurityEvent{
		Type:     audit.EventInvalidAPIKey,
		Severity: audit.RiskMedium,
		Detail:   "api key rejected",
		Request:  reqCtx,
	})
}

func digest(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
