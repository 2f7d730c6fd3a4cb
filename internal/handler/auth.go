package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"syncplane/internal/auth"
	"syncplane/internal/middleware"
	"syncplane/internal/store"
)

type AuthHandler struct {
	Store       store.AccountStore
	TokenConfig auth.TokenConfig
	Limiter     *middleware.Throttle
}

type authBody struct {
	PublicKey string `json:"publicKey"`
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

// Auth exchanges a signed challenge for a bearer token, creating the account
// on first sight of the public key.
func (h *AuthHandler) Auth(c *gin.Context) {
	if h.Limiter != nil {
		if ok, retryAfter := h.Limiter.Allow(c.ClientIP()); !ok {
			seconds := int64((retryAfter + time.Second - 1) / time.Second)
			c.Header("Retry-After", strconv.FormatInt(seconds, 10))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
	}

	var body authBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := auth.VerifyChallenge(body.PublicKey, body.Challenge, body.Signature); err != nil {
		msg := "Invalid signature"
		if errors.Is(err, auth.ErrBadPublicKey) {
			msg = "Invalid public key"
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
		return
	}

	now := time.Now().UnixMilli()
	account, err := h.Store.GetOrCreateAccount(c.Request.Context(), body.PublicKey, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Account lookup failed"})
		return
	}
	token, err := auth.CreateToken(account.ID, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token creation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}
