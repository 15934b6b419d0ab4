package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/imyashkale/mcphub/internal/logger"
	"github.com/imyashkale/mcphub/internal/models"
	"github.com/imyashkale/mcphub/internal/session"
)

// Context keys set by Authentication
const (
	ContextUserId      = "user_id"
	ContextIdentity    = "identity"
	ContextSessionUser = "session_user"
)

var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrMissingUserID     = errors.New("missing user ID in token")
)

// authClaims are the claims the auth service puts in its access tokens
type authClaims struct {
	Email        string         `json:"email"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// Authentication validates HS256 access tokens issued by the auth service
// and stores the caller's identity in the gin context.
func Authentication(secret, audience string) gin.HandlerFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(secret)

	return func(c *gin.Context) {
		tokenString, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			logger.WithField("path", c.Request.URL.Path).Warn("Authentication failed: missing or invalid authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "Missing or invalid authorization header",
			})
			return
		}

		claims := &authClaims{}
		_, err = parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil {
			code, message := "invalid_token", "Token is not valid"
			if errors.Is(err, jwt.ErrTokenExpired) {
				code, message = "token_expired", "Token has expired"
			}
			logger.WithFields(map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			}).Warn("Authentication failed: token validation error")
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: code, Message: message})
			return
		}

		if claims.Subject == "" {
			logger.WithField("path", c.Request.URL.Path).Warn("Authentication failed: missing user ID in token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "invalid_token",
				Message: ErrMissingUserID.Error(),
			})
			return
		}

		su := claims.sessionUser()
		identity := session.IdentityFromSession(su)

		c.Set(ContextUserId, su.Id)
		c.Set(ContextSessionUser, su)
		c.Set(ContextIdentity, identity)

		logger.WithFields(map[string]interface{}{
			"user_id": su.Id,
			"path":    c.Request.URL.Path,
		}).Debug("Authentication successful")

		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) || strings.TrimSpace(header[len(prefix):]) == "" {
		return "", ErrMissingAuthHeader
	}
	return strings.TrimSpace(header[len(prefix):]), nil
}

func (c *authClaims) sessionUser() models.SessionUser {
	su := models.SessionUser{
		Id:           c.Subject,
		Email:        c.Email,
		AppMetadata:  c.AppMetadata,
		UserMetadata: c.UserMetadata,
	}
	if c.IssuedAt != nil {
		t := c.IssuedAt.Time.UTC()
		su.UpdatedAt = &t
	}
	return su
}

// UserId returns the authenticated caller's id, or "" outside Authentication
func UserId(c *gin.Context) string {
	return c.GetString(ContextUserId)
}

// Identity returns the authenticated caller's identity
func Identity(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return models.User{}, false
	}
	u, ok := v.(models.User)
	return u, ok
}

// IssueToken signs an access token the way the auth service does. Used
// by tests and local development tooling.
func IssueToken(secret, audience string, su models.SessionUser, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := authClaims{
		Email:        su.Email,
		AppMetadata:  su.AppMetadata,
		UserMetadata: su.UserMetadata,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   su.Id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
