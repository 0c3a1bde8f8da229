package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// OTPStore persists one-time codes with a time-to-live. Consume must compare
// and delete atomically so a code can be redeemed at most once.
type OTPStore interface {
	Save(ctx context.Context, subject, code string, ttl time.Duration) error
	// Consume reports whether code matched the stored value. A match deletes
	// the entry; a mismatch leaves it in place.
	Consume(ctx context.Context, subject, code string) (bool, error)
}

// GenerateOTP returns a uniformly random numeric code of the given length.
func GenerateOTP(digits int) (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// consumeScript deletes the key only when its value equals ARGV[1].
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisOTPStore struct {
	client *redis.Client
	prefix string
}

// NewRedisOTPStore stores codes under "<prefix><subject>".
func NewRedisOTPStore(client *redis.Client, prefix string) *RedisOTPStore {
	return &RedisOTPStore{client: client, prefix: prefix}
}

func (s *RedisOTPStore) key(subject string) string {
	return s.prefix + strings.ToLower(strings.TrimSpace(subject))
}

func (s *RedisOTPStore) Save(ctx context.Context, subject, code string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(subject), code, ttl).Err(); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	return nil
}

func (s *RedisOTPStore) Consume(ctx context.Context, subject, code string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{s.key(subject)}, code).Int()
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return n == 1, nil
}
