package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bakubin-auth/internal/domain"
	"bakubin-auth/internal/service"
)

const (
	msgInvalidBody        = "invalid request body"
	msgValidationFailed   = "validation failed"
	msgInvalidCredentials = "invalid credentials"
	msgInternal           = "internal server error"
)

// AuthHandler expone registro, verificación de email y login.
type AuthHandler struct {
	logger *zap.Logger
	auth   *service.AuthService
}

func NewAuthHandler(logger *zap.Logger, auth *service.AuthService) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{logger: logger, auth: auth}
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "message": msgInvalidBody})
		return
	}

	res, err := h.auth.Register(c.Request.Context(), req, clientInfo(c))
	if err != nil {
		h.writeError(c, "register", err)
		return
	}

	body := gin.H{
		"ok":      true,
		"message": "account created, check your inbox to verify your email",
		"user":    res.User,
	}
	if res.VerificationURL != "" {
		body["debugVerificationUrl"] = res.VerificationURL
	}
	c.JSON(http.StatusCreated, body)
}

// VerifyEmail maneja GET /auth/verify-email?token=...
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	if _, err := h.auth.VerifyEmail(c.Request.Context(), c.Query("token"), clientInfo(c)); err != nil {
		h.writeError(c, "verify email", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "email verified"})
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "message": msgInvalidBody})
		return
	}

	user, err := h.auth.Login(c.Request.Context(), req, clientInfo(c))
	if err != nil {
		h.writeError(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "login successful", "user": user})
}

// writeError traduce errores del servicio a respuestas HTTP. Los errores
// internos se loguean completos y se responden con un mensaje genérico.
func (h *AuthHandler) writeError(c *gin.Context, op string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "message": msgValidationFailed, "errors": verr.Fields})
	case errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "message": "invalid or expired token"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "message": msgInvalidCredentials})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "message": "account not found"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"ok": false, "message": "email already registered"})
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"ok": false, "message": "too many requests"})
	case errors.Is(err, service.ErrBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "message": "service busy, try again later"})
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "message": msgInternal})
	}
}

func clientInfo(c *gin.Context) domain.ClientInfo {
	return domain.ClientInfo{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
