package domain

import "time"

// VerificationTokenTTL es la ventana de validez de un token de verificación.
const VerificationTokenTTL = 24 * time.Hour

// VerificationToken es un token de un solo uso que prueba la posesión de un email.
type VerificationToken struct {
	Token      string    `json:"-"`
	Identifier string    `json:"identifier"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired indica si el token ya no es válido en now.
func (t VerificationToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}
