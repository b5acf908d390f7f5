package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"bakubin-auth/internal/domain"
	"bakubin-auth/internal/metrics"
	"bakubin-auth/internal/repository"
)

// 32 bytes = 256 bits de aleatoriedad.
const verificationTokenBytes = 32

// TokenIssuer emite y consume tokens de verificación de email.
type TokenIssuer struct {
	tokens repository.VerificationTokenRepository
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(tokens repository.VerificationTokenRepository) *TokenIssuer {
	return &TokenIssuer{
		tokens: tokens,
		ttl:    domain.VerificationTokenTTL,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue genera, persiste y devuelve un token nuevo para identifier.
func (i *TokenIssuer) Issue(ctx context.Context, identifier string) (domain.VerificationToken, error) {
	value, err := generateToken()
	if err != nil {
		return domain.VerificationToken{}, err
	}
	now := i.now()
	tok := domain.VerificationToken{
		Token:      value,
		Identifier: domain.NormalizeEmail(identifier),
		IssuedAt:   now,
		ExpiresAt:  now.Add(i.ttl),
	}
	if err := i.tokens.Create(ctx, tok); err != nil {
		return domain.VerificationToken{}, fmt.Errorf("store verification token: %w", err)
	}
	return tok, nil
}

// Consume borra el token en una sola operación de storage y reporta si era
// válido. Cualquier intento, válido o no, deja el token inutilizable.
func (i *TokenIssuer) Consume(ctx context.Context, token string) (domain.VerificationToken, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.VerificationToken{}, false, nil
	}
	rec, err := i.tokens.Consume(ctx, token)
	if errors.Is(err, repository.ErrTokenNotFound) {
		return domain.VerificationToken{}, false, nil
	}
	if err != nil {
		return domain.VerificationToken{}, false, fmt.Errorf("consume verification token: %w", err)
	}
	if rec.Expired(i.now()) {
		return domain.VerificationToken{}, false, nil
	}
	return rec, true, nil
}

// PurgeExpired borra tokens vencidos que nunca se presentaron.
func (i *TokenIssuer) PurgeExpired(ctx context.Context) (int64, error) {
	return i.tokens.DeleteExpired(ctx, i.now())
}

// RunPurger llama a PurgeExpired cada interval hasta que ctx se cancela.
func (i *TokenIssuer) RunPurger(ctx context.Context, interval time.Duration, logger *zap.Logger, m *metrics.Metrics) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := i.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("purge expired verification tokens failed", zap.Error(err))
				continue
			}
			if n > 0 {
				m.Purged(n)
				logger.Info("purged expired verification tokens", zap.Int64("count", n))
			}
		}
	}
}

func generateToken() (string, error) {
	buf := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
