package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"bakubin-auth/internal/domain"
	"bakubin-auth/internal/repository"
)

type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
	getErr       error
	createErr    error
	markErr      error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	key := strings.ToLower(user.Email)
	if _, ok := m.usersByEmail[key]; ok {
		return repository.ErrEmailTaken
	}
	user.Email = key
	m.usersByID[user.ID] = user
	m.usersByEmail[key] = user.ID
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	if m.getErr != nil {
		m.mu.Unlock()
		return domain.User{}, m.getErr
	}
	id, ok := m.usersByEmail[strings.ToLower(email)]
	m.mu.Unlock()
	if !ok {
		return domain.User{}, repository.ErrUserNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *mockUserRepo) MarkVerified(_ context.Context, id string, verifiedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	user, ok := m.usersByID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	if user.EmailVerifiedAt == nil {
		user.EmailVerifiedAt = &verifiedAt
	}
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.usersByID[id]
	delete(m.usersByEmail, user.Email)
	delete(m.usersByID, id)
}

// mockTokenRepo emula DELETE ... RETURNING: buscar y borrar bajo un mismo lock.
type mockTokenRepo struct {
	mu         sync.Mutex
	tokens     map[string]domain.VerificationToken
	createErr  error
	consumeErr error
	consumes   int
}

func newMockTokenRepo() *mockTokenRepo {
	return &mockTokenRepo{tokens: make(map[string]domain.VerificationToken)}
}

func (m *mockTokenRepo) Create(_ context.Context, token domain.VerificationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.tokens[token.Token] = token
	return nil
}

func (m *mockTokenRepo) Consume(_ context.Context, token string) (domain.VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumes++
	if m.consumeErr != nil {
		return domain.VerificationToken{}, m.consumeErr
	}
	rec, ok := m.tokens[token]
	if !ok {
		return domain.VerificationToken{}, repository.ErrTokenNotFound
	}
	delete(m.tokens, token)
	return rec, nil
}

func (m *mockTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, v := range m.tokens {
		if v.Expired(now) {
			delete(m.tokens, k)
			n++
		}
	}
	return n, nil
}

func (m *mockTokenRepo) has(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tokens[token]
	return ok
}

type captureAuditor struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
}

func (c *captureAuditor) Record(_ context.Context, entry domain.AuditLogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAuditor) events() []domain.AuditEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.AuditEvent, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Event)
	}
	return out
}

func (c *captureAuditor) last() domain.AuditLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return domain.AuditLogEntry{}
	}
	return c.entries[len(c.entries)-1]
}

// plainHasher evita el costo de argon2 en tests de flujo.
type plainHasher struct {
	hashErr error
}

func (h plainHasher) Hash(password string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "plain$" + password, nil
}

func (h plainHasher) Verify(hash, password string) bool {
	return hash == "plain$"+password
}

type mockEmailSender struct {
	mu       sync.Mutex
	lastTo   string
	lastLink string
	err      error
}

func (m *mockEmailSender) SendVerificationLink(_ context.Context, toEmail string, link string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTo = toEmail
	m.lastLink = link
	return m.err
}

type mockLimiter struct {
	allow bool
}

func (m *mockLimiter) Allow(_ string) bool {
	return m.allow
}

// hangingAuditRepo simula una base de auditoría que no responde.
type hangingAuditRepo struct {
	mu    sync.Mutex
	calls int
}

func (r *hangingAuditRepo) Append(ctx context.Context, _ domain.AuditLogEntry) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (r *hangingAuditRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
