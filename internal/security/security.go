// Package security provides password hashing and admin session tokens.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken is returned for malformed, expired, or foreign tokens.
var ErrInvalidToken = errors.New("security: invalid token")

const adminTokenIssuer = "gymdesk-admin"

// AdminClaims are the JWT claims of an admin session.
type AdminClaims struct {
	AdminID  uint64 `json:"admin_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("security: empty password")
	}
	hash, errHash := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errHash != nil {
		return "", fmt.Errorf("security: hash password: %w", errHash)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssueAdminToken signs a session token for an admin.
func IssueAdminToken(secret string, adminID uint64, username string, expiry time.Duration) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, fmt.Errorf("security: jwt secret is empty")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(expiry)
	claims := AdminClaims{
		AdminID:  adminID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    adminTokenIssuer,
			Subject:   strconv.FormatUint(adminID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if errSign != nil {
		return "", time.Time{}, fmt.Errorf("security: sign token: %w", errSign)
	}
	return signed, expiresAt, nil
}

// ParseAdminToken verifies token and returns its claims.
func ParseAdminToken(secret, token string) (*AdminClaims, error) {
	if secret == "" || token == "" {
		return nil, ErrInvalidToken
	}
	claims := &AdminClaims{}
	parsed, errParse := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(adminTokenIssuer))
	if errParse != nil || !parsed.Valid || claims.AdminID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateRandomString returns a hex string built from n random bytes.
func GenerateRandomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, errRead := rand.Read(buf); errRead != nil {
		return "", fmt.Errorf("security: read random: %w", errRead)
	}
	return hex.EncodeToString(buf), nil
}
