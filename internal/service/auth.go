package service

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/pkg/clock"
)

// TOTPHeader carries the one-time code on mutating API calls.
const TOTPHeader = "X-TOTP-Code"

type AuthService struct {
	logger     *zap.Logger
	clock      clock.Clock
	totpSecret string
}

func NewAuthService(logger *zap.Logger, clk clock.Clock, totpSecret string) *AuthService {
	return &AuthService{
		logger:     logger,
		clock:      clk,
		totpSecret: totpSecret,
	}
}

// Enabled reports whether a TOTP secret is configured.
func (a *AuthService) Enabled() bool {
	return a.totpSecret != ""
}

// GenerateSecret creates a key for auth.totp_secret. The key's URL can be
// loaded into an authenticator app.
func (a *AuthService) GenerateSecret(account string) (*otp.Key, error) {
	if account == "" {
		account = "admin"
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Cadence",
		AccountName: account,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	return key, nil
}

func (a *AuthService) ValidateToken(token string) bool {
	valid, err := totp.ValidateCustom(token, a.totpSecret, a.clock.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		a.logger.Warn("TOTP token validation failed", zap.Error(err))
		return false
	}
	return true
}

// RequireTOTP rejects requests without a valid code when a secret is configured.
func (a *AuthService) RequireTOTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}

		token := c.GetHeader(TOTPHeader)
		if token == "" || !a.ValidateToken(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		c.Next()
	}
}
