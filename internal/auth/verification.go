package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tasklane/tasklane/internal/shared"
)

// CodeLength is the number of digits in a verification code.
const CodeLength = 6

// VerificationStore keeps at most one pending code per admin in Redis.
// Issuing a new code replaces the previous one; checking a code consumes it
// whether or not it matched.
type VerificationStore struct {
	client *redis.Client
	signer *shared.CodeSigner
	ttl    time.Duration
}

// NewVerificationStore constructs a store whose codes expire after ttl.
func NewVerificationStore(client *redis.Client, signer *shared.CodeSigner, ttl time.Duration) *VerificationStore {
	return &VerificationStore{client: client, signer: signer, ttl: ttl}
}

// TTL returns the code lifetime.
func (s *VerificationStore) TTL() time.Duration {
	return s.ttl
}

// Issue generates and stores a fresh code for adminID.
func (s *VerificationStore) Issue(ctx context.Context, adminID string) (string, error) {
	code, err := shared.GenerateCode(CodeLength)
	if err != nil {
		return "", fmt.Errorf("auth: generate code: %w", err)
	}
	if err := s.client.Set(ctx, s.key(adminID), s.signer.Sign(adminID, code), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store code: %w", err)
	}
	return code, nil
}

// Consume checks code against the pending one for adminID and deletes it.
func (s *VerificationStore) Consume(ctx context.Context, adminID, code string) error {
	signature, err := s.client.GetDel(ctx, s.key(adminID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return shared.ErrVerificationFailed
		}
		return fmt.Errorf("auth: load code: %w", err)
	}
	if !s.signer.Verify(adminID, code, signature) {
		return shared.ErrVerificationFailed
	}
	return nil
}

func (s *VerificationStore) key(adminID string) string {
	return shared.VerificationKey(adminID)
}
