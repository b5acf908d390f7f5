package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"bakubin-auth/internal/domain"
	"bakubin-auth/internal/metrics"
	"bakubin-auth/internal/repository"
)

const (
	defaultAuditQueueSize    = 1024
	auditFirstAttemptTimeout = 250 * time.Millisecond
	auditWriteTimeout        = 3 * time.Second
	auditRetryBase           = 100 * time.Millisecond
	auditMaxRetries          = 5
)

// AuditRecorder anexa entradas de auditoría sin bloquear la operación principal.
//
// Las escrituras no son transaccionales con la acción que describen. Si la
// escritura falla o no responde dentro de firstAttempt, la entrada se loguea
// completa como error, se encola y un worker la reintenta con backoff
// exponencial; si se agotan los reintentos o la cola está llena se loguea como
// descartada. Mientras haya entradas encoladas, Record encola sin intentar la
// escritura, así una base lenta cuesta a lo sumo un firstAttempt por petición.
type AuditRecorder struct {
	logger       *zap.Logger
	repo         repository.AuditRepository
	metrics      *metrics.Metrics
	queue        chan domain.AuditLogEntry
	firstAttempt time.Duration
	backoff      func() retry.Backoff
	newID        func() string
	now          func() time.Time
}

func NewAuditRecorder(logger *zap.Logger, repo repository.AuditRepository, m *metrics.Metrics, queueSize int) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = defaultAuditQueueSize
	}
	return &AuditRecorder{
		logger:  logger,
		repo:    repo,
		metrics: m,
		queue:        make(chan domain.AuditLogEntry, queueSize),
		firstAttempt: auditFirstAttemptTimeout,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(auditMaxRetries, retry.NewExponential(auditRetryBase))
		},
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Record nunca devuelve error al llamador.
func (r *AuditRecorder) Record(ctx context.Context, entry domain.AuditLogEntry) {
	if entry.ID == "" {
		entry.ID = r.newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	if !entry.Event.Valid() {
		r.drop(entry, "unknown audit event")
		return
	}

	if len(r.queue) > 0 {
		r.enqueue(entry)
		return
	}

	// La auditoría sobrevive a la cancelación de la petición.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.firstAttempt)
	defer cancel()
	err := r.repo.Append(writeCtx, entry)
	if err == nil {
		return
	}

	r.metrics.AuditFailure()
	r.logger.Error("audit write failed", append(auditFields(entry), zap.Error(err))...)
	r.enqueue(entry)
}

func (r *AuditRecorder) enqueue(entry domain.AuditLogEntry) {
	select {
	case r.queue <- entry:
	default:
		r.drop(entry, "retry queue full")
	}
}

// Run procesa la cola de reintentos hasta que ctx se cancela; al salir hace
// un último intento con lo que quede encolado.
func (r *AuditRecorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case entry := <-r.queue:
			err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
				writeCtx, cancel := context.WithTimeout(ctx, auditWriteTimeout)
				defer cancel()
				if err := r.repo.Append(writeCtx, entry); err != nil {
					return retry.RetryableError(err)
				}
				return nil
			})
			switch {
			case err == nil:
				r.metrics.AuditRetry()
				r.logger.Info("audit entry written after retry", zap.String("audit_id", entry.ID))
			case ctx.Err() != nil:
				r.finalAttempt(entry)
			default:
				r.drop(entry, err.Error())
			}
		}
	}
}

// Pending devuelve cuántas entradas esperan reintento.
func (r *AuditRecorder) Pending() int {
	return len(r.queue)
}

func (r *AuditRecorder) drain() {
	for {
		select {
		case entry := <-r.queue:
			r.finalAttempt(entry)
		default:
			return
		}
	}
}

func (r *AuditRecorder) finalAttempt(entry domain.AuditLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()
	if err := r.repo.Append(ctx, entry); err != nil {
		r.drop(entry, err.Error())
		return
	}
	r.metrics.AuditRetry()
}

func (r *AuditRecorder) drop(entry domain.AuditLogEntry, reason string) {
	r.metrics.AuditDrop()
	r.logger.Error("audit entry dropped", append(auditFields(entry), zap.String("reason", reason))...)
}

func auditFields(e domain.AuditLogEntry) []zap.Field {
	fields := []zap.Field{
		zap.String("audit_id", e.ID),
		zap.String("event", string(e.Event)),
		zap.String("details", e.Details),
		zap.Time("created_at", e.CreatedAt),
	}
	if e.UserID != nil {
		fields = append(fields, zap.String("user_id", *e.UserID))
	}
	if e.IP != nil {
		fields = append(fields, zap.String("ip", *e.IP))
	}
	if e.UserAgent != nil {
		fields = append(fields, zap.String("user_agent", *e.UserAgent))
	}
	return fields
}
