package server

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	obscontext "github.com/smallbiznis/hireboard/internal/observability/context"
)

const contextUserIDKey = "user_id"

var errInvalidToken = errors.New("invalid_token")

// TokenVerifier validates HS256 bearer tokens issued by the identity
// provider. The subject claim carries the employer's user id.
type TokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(strings.TrimSpace(secret)),
		issuer: strings.TrimSpace(issuer),
		now:    time.Now,
	}
}

func (v *TokenVerifier) Verify(raw string) (snowflake.ID, error) {
	if v == nil || len(v.secret) == 0 || strings.TrimSpace(raw) == "" {
		return 0, errInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || token == nil || !token.Valid {
		return 0, errInvalidToken
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(claims.Subject))
	if err != nil || userID <= 0 {
		return 0, errInvalidToken
	}
	return userID, nil
}

// AuthRequired resolves the bearer token into the request's user id.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, err := s.verifier.Verify(raw)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), userID.String()))
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func currentUserID(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	userID, ok := value.(snowflake.ID)
	return userID, ok && userID > 0
}
