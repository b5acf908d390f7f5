package domain

import "time"

// AuditEvent enumera los eventos de seguridad auditables.
type AuditEvent string

const (
	AuditUserRegistered         AuditEvent = "USER_REGISTERED"
	AuditUserRegistrationFailed AuditEvent = "USER_REGISTRATION_FAILED"
	AuditEmailVerificationSent  AuditEvent = "EMAIL_VERIFICATION_SENT"
	AuditEmailVerified          AuditEvent = "EMAIL_VERIFIED"
	AuditUserLoginSuccess       AuditEvent = "USER_LOGIN_SUCCESS"
	AuditUserLoginFailed        AuditEvent = "USER_LOGIN_FAILED"
	// Reservados para el flujo de reseteo de contraseña.
	AuditPasswordResetRequested AuditEvent = "PASSWORD_RESET_REQUESTED"
	AuditPasswordResetSuccess   AuditEvent = "PASSWORD_RESET_SUCCESS"
)

func (e AuditEvent) Valid() bool {
	switch e {
	case AuditUserRegistered, AuditUserRegistrationFailed, AuditEmailVerificationSent,
		AuditEmailVerified, AuditUserLoginSuccess, AuditUserLoginFailed,
		AuditPasswordResetRequested, AuditPasswordResetSuccess:
		return true
	}
	return false
}

// AuditLogEntry es un registro inmutable; los campos puntero son opcionales.
type AuditLogEntry struct {
	ID        string     `json:"id"`
	Event     AuditEvent `json:"event"`
	UserID    *string    `json:"user_id,omitempty"`
	Details   string     `json:"details"`
	IP        *string    `json:"ip,omitempty"`
	UserAgent *string    `json:"user_agent,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ClientInfo agrupa los metadatos de la petición que se registran en auditoría.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// OptionalString devuelve nil para cadenas vacías.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
