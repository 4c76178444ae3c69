package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/autotab/api/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "autotab_session"

const (
	userIDKey = "user_id"
	claimsKey = "claims"
)

var (
	ErrMissingToken = errors.New("missing session token")
	ErrInvalidToken = errors.New("invalid session token")
	ErrRevokedToken = errors.New("session has been revoked")
)

// Claims are the JWT claims of a session.
type Claims struct {
	UserID   uuid.UUID   `json:"user_id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Sessions issues, parses and revokes HS256 session tokens.
type Sessions struct {
	secret   []byte
	ttl      time.Duration
	denylist Denylist
	logger   *zap.Logger
}

func NewSessions(secret string, ttl time.Duration, denylist Denylist, logger *zap.Logger) *Sessions {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if denylist == nil {
		denylist = NewMemoryDenylist()
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, denylist: denylist, logger: logger}
}

// TTL is the lifetime of issued tokens.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue signs a new token for user.
func (s *Sessions) Issue(user *models.User) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// Parse validates a token and rejects revoked ones.
func (s *Sessions) Parse(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevokedToken
	}
	return claims, nil
}

// Revoke denies claims until they expire.
func (s *Sessions) Revoke(ctx context.Context, claims *Claims) error {
	until := time.Now().Add(s.ttl)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	return s.denylist.Revoke(ctx, claims.ID, until)
}

// Auth requires a valid session from the Authorization header or the
// session cookie.
func (s *Sessions) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := BearerToken(c)
		if tokenString == "" {
			Unauthorized(c, ErrMissingToken.Error())
			c.Abort()
			return
		}
		claims, err := s.Parse(c.Request.Context(), tokenString)
		if err != nil {
			s.logger.Debug("session rejected", zap.Error(err))
			if errors.Is(err, ErrRevokedToken) {
				Unauthorized(c, ErrRevokedToken.Error())
			} else if errors.Is(err, ErrInvalidToken) {
				Unauthorized(c, "invalid or expired session")
			} else {
				InternalError(c, "failed to validate session")
			}
			c.Abort()
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// BearerToken returns the token from "Authorization: Bearer" or, failing
// that, from the session cookie.
func BearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
		return ""
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

// GetUserID returns the authenticated user's id.
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetClaims returns the claims of the authenticated session.
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
