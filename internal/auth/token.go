package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds the token signing configuration.
type Config struct {
	Secret []byte
	TTL    time.Duration
}

// PlayerClaims identifies a player across requests.
type PlayerClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

type contextKey struct{}

// NewConfig reads LOTTO_JWT_SECRET from the environment. Without one it
// generates a random per-process secret, which invalidates tokens across
// restarts; fine for development, logged so operators notice.
func NewConfig() *Config {
	ttl := 30 * 24 * time.Hour

	if secret := os.Getenv("LOTTO_JWT_SECRET"); secret != "" {
		return &Config{Secret: []byte(secret), TTL: ttl}
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("generate jwt secret: %v", err)
	}
	log.Printf("LOTTO_JWT_SECRET not set; using ephemeral secret %s...", hex.EncodeToString(buf[:4]))
	return &Config{Secret: buf, TTL: ttl}
}

// IssueToken mints a signed identity token for a player.
func (c *Config) IssueToken(playerID, name string) (string, error) {
	now := time.Now()
	claims := PlayerClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token string.
func (c *Config) ValidateToken(tokenString string) (*PlayerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PlayerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*PlayerClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token or claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token missing subject")
	}
	return claims, nil
}

// Middleware authenticates requests via the Authorization header or, for
// WebSocket upgrades where headers are awkward, a token query parameter.
func (c *Config) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Bearer token required", http.StatusUnauthorized)
				return
			}
		} else if q := r.URL.Query().Get("token"); q != "" {
			tokenString = q
		} else {
			http.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}

		claims, err := c.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PlayerFromContext extracts the authenticated player from a request context.
func PlayerFromContext(ctx context.Context) (*PlayerClaims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*PlayerClaims)
	return claims, ok
}
