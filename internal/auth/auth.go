package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"waste-patrol-service/internal/domain/report"
)

var ErrInvalidToken = errors.New("invalid token")

const actorContextKey = "actor"

// Claims carries the identity issued by the upstream auth service.
type Claims struct {
	UserID string      `json:"user_id"`
	Role   report.Role `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 bearer tokens and resolves them to an actor.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for the given actor. Used by tests and local tooling.
func (v *Verifier) Issue(actor report.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: actor.UserID,
		Role:   actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    v.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *Verifier) Verify(tokenString string) (report.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return report.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return report.Actor{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return report.Actor{}, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	if claims.Role == "" {
		claims.Role = report.RoleCitizen
	}
	if !claims.Role.Valid() {
		return report.Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return report.Actor{UserID: claims.UserID, Role: claims.Role}, nil
}

// Middleware rejects requests without a valid bearer token.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := v.fromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(actorContextKey, actor)
		c.Next()
	}
}

// Optional attaches the actor when a valid token is present and lets
// anonymous requests through.
func (v *Verifier) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor, err := v.fromRequest(c.Request); err == nil {
			c.Set(actorContextKey, actor)
		}
		c.Next()
	}
}

func (v *Verifier) fromRequest(r *http.Request) (report.Actor, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return report.Actor{}, errors.New("authorization header required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return report.Actor{}, errors.New("invalid authorization header format")
	}
	return v.Verify(strings.TrimSpace(parts[1]))
}

func ActorFrom(c *gin.Context) (report.Actor, bool) {
	v, ok := c.Get(actorContextKey)
	if !ok {
		return report.Actor{}, false
	}
	actor, ok := v.(report.Actor)
	return actor, ok
}
