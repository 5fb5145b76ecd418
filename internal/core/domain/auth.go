package domain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrInvalidAPIKey is returned when a key cannot be registered.
var ErrInvalidAPIKey = errors.New("invalid api key")

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// APIKey grants one tenant access to its file store and validation runs. Only
// the SHA-256 of the token is kept.
type APIKey struct {
	TokenHash  string
	TenantID   string
	Name       string
	Active     bool
	CreatedAt  time.Time
	LastUsedAt time.Time // zero until first use
}

// ValidateTenantID checks a tenant ID against the characters the file store
// and event topics accept.
func ValidateTenantID(tenantID string) error {
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("%w: tenant %q must be 1-64 letters, digits, '.', '_' or '-'", ErrInvalidAPIKey, tenantID)
	}
	return nil
}

func (k APIKey) Validate() error {
	if raw, err := hex.DecodeString(k.TokenHash); err != nil || len(raw) != 32 {
		return fmt.Errorf("%w: token hash must be a hex sha256 digest", ErrInvalidAPIKey)
	}
	if err := ValidateTenantID(k.TenantID); err != nil {
		return err
	}
	if k.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAPIKey)
	}
	return nil
}

// UsedSince reports whether the key was last used within window of now.
func (k APIKey) UsedSince(now time.Time, window time.Duration) bool {
	return !k.LastUsedAt.IsZero() && now.Sub(k.LastUsedAt) < window
}
