package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"bakubin-auth/internal/domain"
)

type redisTokenClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

type redisTokenPayload struct {
	Identifier string    `json:"identifier"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// RedisVerificationTokenRepository guarda los tokens con TTL y los consume con GETDEL.
type RedisVerificationTokenRepository struct {
	client redisTokenClient
	prefix string
	now    func() time.Time
}

func NewRedisVerificationTokenRepository(client *redis.Client) *RedisVerificationTokenRepository {
	return &RedisVerificationTokenRepository{
		client: client,
		prefix: "auth:verify:",
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *RedisVerificationTokenRepository) Create(ctx context.Context, token domain.VerificationToken) error {
	if strings.TrimSpace(token.Token) == "" {
		return errors.New("empty verification token")
	}
	payload, err := json.Marshal(redisTokenPayload{
		Identifier: token.Identifier,
		IssuedAt:   token.IssuedAt,
		ExpiresAt:  token.ExpiresAt,
	})
	if err != nil {
		return err
	}
	// El TTL sólo limpia; la expiración real se evalúa al consumir.
	ttl := token.ExpiresAt.Sub(r.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	return r.client.Set(ctx, r.prefix+token.Token, payload, ttl).Err()
}

func (r *RedisVerificationTokenRepository) Consume(ctx context.Context, token string) (domain.VerificationToken, error) {
	raw, err := r.client.GetDel(ctx, r.prefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.VerificationToken{}, ErrTokenNotFound
	}
	if err != nil {
		return domain.VerificationToken{}, err
	}
	var payload redisTokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.VerificationToken{}, err
	}
	return domain.VerificationToken{
		Token:      token,
		Identifier: payload.Identifier,
		IssuedAt:   payload.IssuedAt,
		ExpiresAt:  payload.ExpiresAt,
	}, nil
}

// DeleteExpired no hace nada: Redis expira las claves por TTL.
func (r *RedisVerificationTokenRepository) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}
