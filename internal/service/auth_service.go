package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bakubin-auth/internal/domain"
	"bakubin-auth/internal/email"
	"bakubin-auth/internal/metrics"
	"bakubin-auth/internal/repository"
)

const (
	flowRegister = "register"
	flowVerify   = "verify_email"
	flowLogin    = "login"
)

// Auditor anexa entradas de auditoría; AuditRecorder es la implementación real.
type Auditor interface {
	Record(ctx context.Context, entry domain.AuditLogEntry)
}

// AuthOptions agrupa la configuración de los flujos de autenticación.
type AuthOptions struct {
	// BaseURL se usa para construir el enlace de verificación.
	BaseURL string
	// ExposeVerificationURL devuelve el enlace en la respuesta de registro.
	// Sólo debe activarse fuera de producción.
	ExposeVerificationURL bool
}

// AuthService coordina registro, verificación de email y login.
type AuthService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	hasher   PasswordHasher
	hashPool *HashPool
	tokens   *TokenIssuer
	audit    Auditor
	mailer   email.Sender
	limiter  RateLimiter
	metrics  *metrics.Metrics
	opts     AuthOptions
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	hasher PasswordHasher,
	hashPool *HashPool,
	tokens *TokenIssuer,
	audit Auditor,
	mailer email.Sender,
	limiter RateLimiter,
	m *metrics.Metrics,
	opts AuthOptions,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = NewRateLimiter(time.Minute, 20)
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &AuthService{
		logger:   logger,
		users:    users,
		hasher:   hasher,
		hashPool: hashPool,
		tokens:   tokens,
		audit:    audit,
		mailer:   mailer,
		limiter:  limiter,
		metrics:  m,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterResult es la salida del registro. VerificationURL sólo se completa
// cuando AuthOptions.ExposeVerificationURL está activo.
type RegisterResult struct {
	User            domain.PublicUser
	VerificationURL string
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput, client domain.ClientInfo) (RegisterResult, error) {
	if !s.limiter.Allow(rateLimitKey(flowRegister, client.IP)) {
		s.metrics.RateLimited(flowRegister)
		return RegisterResult{}, ErrRateLimited
	}

	in, err := ValidateRegister(in)
	if err != nil {
		s.metrics.Outcome(flowRegister, "invalid")
		return RegisterResult{}, err
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		s.record(ctx, domain.AuditUserRegistrationFailed, existing.ID, "registration attempt with an email already in use", client)
		s.metrics.Outcome(flowRegister, "conflict")
		return RegisterResult{}, ErrConflict
	case !errors.Is(err, repository.ErrUserNotFound):
		return RegisterResult{}, s.registerFailed(ctx, "", fmt.Errorf("lookup email: %w", err), client)
	}

	var (
		hash    string
		hashErr error
	)
	if err := s.hashPool.Run(ctx, func() { hash, hashErr = s.hasher.Hash(in.Password) }); err != nil {
		s.metrics.HashRejected()
		s.record(ctx, domain.AuditUserRegistrationFailed, "", "password hashing capacity exhausted", client)
		s.metrics.Outcome(flowRegister, "busy")
		return RegisterResult{}, err
	}
	if hashErr != nil {
		return RegisterResult{}, s.registerFailed(ctx, "", fmt.Errorf("hash password: %w", hashErr), client)
	}

	role, _ := domain.ParseRole(in.Role)
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		DisplayName:  in.Name,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			s.record(ctx, domain.AuditUserRegistrationFailed, "", "registration lost a race for an email already in use", client)
			s.metrics.Outcome(flowRegister, "conflict")
			return RegisterResult{}, ErrConflict
		}
		return RegisterResult{}, s.registerFailed(ctx, "", fmt.Errorf("create user: %w", err), client)
	}
	s.record(ctx, domain.AuditUserRegistered, user.ID, "account registered, email not yet verified", client)

	tok, err := s.tokens.Issue(ctx, user.Email)
	if err != nil {
		return RegisterResult{}, s.registerFailed(ctx, user.ID, err, client)
	}
	s.record(ctx, domain.AuditEmailVerificationSent, user.ID, "verification token "+tokenFingerprint(tok.Token), client)

	link := s.verificationURL(tok.Token)
	if s.mailer != nil {
		if err := s.mailer.SendVerificationLink(ctx, user.Email, link, tok.ExpiresAt); err != nil {
			s.logger.Warn("send verification link failed", zap.Error(err), zap.String("user_id", user.ID))
		}
	}

	s.metrics.Outcome(flowRegister, "success")
	res := RegisterResult{User: user.Public()}
	if s.opts.ExposeVerificationURL {
		res.VerificationURL = link
	}
	return res, nil
}

func (s *AuthService) registerFailed(ctx context.Context, userID string, err error, client domain.ClientInfo) error {
	s.record(ctx, domain.AuditUserRegistrationFailed, userID, "unexpected error: "+err.Error(), client)
	s.metrics.Outcome(flowRegister, "error")
	return fmt.Errorf("register: %w", err)
}

// VerifyEmail consume el token y marca la cuenta como verificada.
func (s *AuthService) VerifyEmail(ctx context.Context, token string, client domain.ClientInfo) (domain.PublicUser, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		s.metrics.Outcome(flowVerify, "invalid")
		return domain.PublicUser{}, newValidationError("token", "is required")
	}

	rec, ok, err := s.tokens.Consume(ctx, token)
	if err != nil {
		s.metrics.Outcome(flowVerify, "error")
		return domain.PublicUser{}, fmt.Errorf("verify email: %w", err)
	}
	if !ok {
		s.metrics.Outcome(flowVerify, "invalid_token")
		return domain.PublicUser{}, ErrInvalidToken
	}

	user, err := s.users.GetByEmail(ctx, rec.Identifier)
	if errors.Is(err, repository.ErrUserNotFound) {
		s.metrics.Outcome(flowVerify, "not_found")
		return domain.PublicUser{}, ErrUserNotFound
	}
	if err != nil {
		s.metrics.Outcome(flowVerify, "error")
		return domain.PublicUser{}, fmt.Errorf("verify email: lookup user: %w", err)
	}

	verifiedAt := s.now()
	if err := s.users.MarkVerified(ctx, user.ID, verifiedAt); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.metrics.Outcome(flowVerify, "not_found")
			return domain.PublicUser{}, ErrUserNotFound
		}
		s.metrics.Outcome(flowVerify, "error")
		return domain.PublicUser{}, fmt.Errorf("verify email: mark verified: %w", err)
	}
	// MarkVerified conserva la primera marca; se relee la fila para devolverla.
	stored, err := s.users.GetByID(ctx, user.ID)
	switch {
	case err == nil:
		user = stored
	case errors.Is(err, repository.ErrUserNotFound):
		s.metrics.Outcome(flowVerify, "not_found")
		return domain.PublicUser{}, ErrUserNotFound
	default:
		s.logger.Warn("reload verified user failed", zap.Error(err), zap.String("user_id", user.ID))
		if user.EmailVerifiedAt == nil {
			user.EmailVerifiedAt = &verifiedAt
		}
	}

	s.record(ctx, domain.AuditEmailVerified, user.ID, "email address confirmed", client)
	s.metrics.Outcome(flowVerify, "success")
	return user.Public(), nil
}

// Login autentica por email y contraseña. Email desconocido y contraseña
// incorrecta devuelven el mismo ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in LoginInput, client domain.ClientInfo) (domain.PublicUser, error) {
	if !s.limiter.Allow(rateLimitKey(flowLogin, client.IP)) {
		s.metrics.RateLimited(flowLogin)
		return domain.PublicUser{}, ErrRateLimited
	}

	in, err := ValidateLogin(in)
	if err != nil {
		s.metrics.Outcome(flowLogin, "invalid")
		return domain.PublicUser{}, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrUserNotFound) {
		// Igualar el costo de una verificación real.
		if err := s.verifyPassword(ctx, s.fallbackHash(), in.Password, nil); err != nil {
			return domain.PublicUser{}, s.loginFailed(ctx, "", "busy", err, client)
		}
		s.record(ctx, domain.AuditUserLoginFailed, "", "login attempt for unknown email", client)
		s.metrics.Outcome(flowLogin, "failed")
		return domain.PublicUser{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.PublicUser{}, s.loginFailed(ctx, "", "error", fmt.Errorf("lookup user: %w", err), client)
	}

	var valid bool
	if err := s.verifyPassword(ctx, user.PasswordHash, in.Password, &valid); err != nil {
		return domain.PublicUser{}, s.loginFailed(ctx, user.ID, "busy", err, client)
	}
	if !valid {
		s.record(ctx, domain.AuditUserLoginFailed, user.ID, "wrong password", client)
		s.metrics.Outcome(flowLogin, "failed")
		return domain.PublicUser{}, ErrInvalidCredentials
	}

	s.record(ctx, domain.AuditUserLoginSuccess, user.ID, "login succeeded", client)
	s.metrics.Outcome(flowLogin, "success")
	return user.Public(), nil
}

func (s *AuthService) verifyPassword(ctx context.Context, hash, password string, out *bool) error {
	err := s.hashPool.Run(ctx, func() {
		ok := s.hasher.Verify(hash, password)
		if out != nil {
			*out = ok
		}
	})
	if err != nil {
		s.metrics.HashRejected()
		return err
	}
	return nil
}

// loginFailed audita un fallo de login que no es de credenciales. ErrBusy se
// devuelve tal cual; el resto se envuelve como error interno.
func (s *AuthService) loginFailed(ctx context.Context, userID, outcome string, err error, client domain.ClientInfo) error {
	detail := "unexpected error: " + err.Error()
	if errors.Is(err, ErrBusy) {
		detail = "password hashing capacity exhausted"
	}
	s.record(ctx, domain.AuditUserLoginFailed, userID, detail, client)
	s.metrics.Outcome(flowLogin, outcome)
	if errors.Is(err, ErrBusy) {
		return err
	}
	return fmt.Errorf("login: %w", err)
}

func (s *AuthService) fallbackHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.logger.Warn("dummy password hash unavailable", zap.Error(err))
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func (s *AuthService) verificationURL(token string) string {
	return s.opts.BaseURL + "/auth/verify-email?token=" + url.QueryEscape(token)
}

func (s *AuthService) record(ctx context.Context, event domain.AuditEvent, userID, details string, client domain.ClientInfo) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, domain.AuditLogEntry{
		Event:     event,
		UserID:    domain.OptionalString(userID),
		Details:   details,
		IP:        domain.OptionalString(client.IP),
		UserAgent: domain.OptionalString(client.UserAgent),
	})
}

// tokenFingerprint identifica un token en auditoría sin exponer el secreto.
func tokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:6])
}
