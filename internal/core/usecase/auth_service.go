package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/ports"
)

var ErrUnauthorized = errors.New("unauthorized")

// touchInterval bounds how often a busy key writes its last-use time.
const touchInterval = time.Minute

// AuthService resolves API tokens to the tenant whose files they may use.
type AuthService struct {
	repo ports.APIKeyRepository
	log  logrus.FieldLogger
	now  func() time.Time
}

func NewAuthService(repo ports.APIKeyRepository, log logrus.FieldLogger) *AuthService {
	return &AuthService{repo: repo, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		s.log.WithField("reason", "missing token").Warn("api key rejected")
		return domain.APIKey{}, ErrUnauthorized
	}

	hash := HashToken(token)
	entry := s.log.WithField("key_hash", hash[:12])
	apiKey, err := s.repo.FindByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			entry.WithField("reason", "unknown key").Warn("api key rejected")
			return domain.APIKey{}, ErrUnauthorized
		}
		return domain.APIKey{}, err
	}
	if !apiKey.Active {
		entry.WithFields(logrus.Fields{"reason": "inactive key", "tenant": apiKey.TenantID, "key": apiKey.Name}).
			Warn("api key rejected")
		return domain.APIKey{}, ErrUnauthorized
	}

	now := s.now()
	if !apiKey.UsedSince(now, touchInterval) {
		if err := s.repo.Touch(ctx, hash, now); err != nil {
			entry.WithError(err).Warn("record api key use")
		} else {
			apiKey.LastUsedAt = now
		}
	}
	return apiKey, nil
}

// Register stores an active key for token under tenantID, replacing the
// tenant and name of an existing key with the same token.
func (s *AuthService) Register(ctx context.Context, token, tenantID, name string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.APIKey{}, fmt.Errorf("%w: token is required", domain.ErrInvalidAPIKey)
	}
	key := domain.APIKey{
		TokenHash: HashToken(token),
		TenantID:  tenantID,
		Name:      name,
		Active:    true,
		CreatedAt: s.now(),
	}
	if err := key.Validate(); err != nil {
		return domain.APIKey{}, err
	}
	if err := s.repo.Upsert(ctx, key); err != nil {
		return domain.APIKey{}, err
	}
	s.log.WithFields(logrus.Fields{"tenant": key.TenantID, "key": key.Name}).Info("api key registered")
	return key, nil
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
