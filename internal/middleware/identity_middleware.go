package middleware

import (
	"context"
	"strings"

	"pollpulse/internal/services"
	"pollpulse/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// IdentityMiddleware resolves the voter identity behind a request. A valid
// bearer token yields a stable authenticated identity; otherwise the
// persisted anonymous device token from X-Device-Token is used. Requests
// with neither proceed without a voter in context; handlers that need one
// reject there.
func IdentityMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		voter, ok := resolveVoter(c, jwtSecret)
		if ok {
			ctx := services.WithVoterContext(c.Request.Context(), voter)
			ctx = context.WithValue(ctx, logger.VoterIdKey, voter.ID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

func resolveVoter(c *gin.Context, jwtSecret string) (services.Voter, bool) {
	if token := extractBearer(c); token != "" {
		subject, err := parseSubject(token, jwtSecret)
		if err == nil && subject != "" {
			return services.Voter{ID: "user:" + subject, Authenticated: true}, true
		}
	}
	if device := strings.TrimSpace(c.GetHeader("X-Device-Token")); device != "" {
		return services.Voter{ID: "anon:" + device, Authenticated: false}, true
	}
	return services.Voter{}, false
}

func parseSubject(token, secret string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	return parsed.Claims.GetSubject()
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
