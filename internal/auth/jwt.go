// Package auth issues and verifies the identity service's access tokens
// and hashes account passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/PaulBabatuyi/monochrome-chat/internal/normalize"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"
)

// defaultKid names the single key of a manager built from one secret.
const defaultKid = "default"

// JWTManager signs and validates JWT tokens used by the identity service.
// Several keys may be known at once so tokens signed before a rotation keep
// verifying; new tokens are always signed with the active key.
type JWTManager struct {
	keys      map[string][]byte // kid -> HMAC secret
	activeKid string            // key used for signing
	duration  time.Duration     // how long tokens are valid
}

// Claims is the custom JWT payload (principal id + email).
type Claims struct {
	UserID               string `json:"user_id"` // account ObjectID as hex
	Email                string `json:"email"`   // normalized email
	jwt.RegisteredClaims        // ExpiresAt, IssuedAt, etc.
}

// NewJWTManager returns a manager with a single signing secret.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return NewJWTManagerFromKeys(map[string]string{defaultKid: secretKey}, defaultKid, duration)
}

// NewJWTManagerFromKeys returns a manager that signs with activeKid and
// accepts tokens signed by any key in keys.
func NewJWTManagerFromKeys(keys map[string]string, activeKid string, duration time.Duration) *JWTManager {
	m := &JWTManager{
		keys:      make(map[string][]byte, len(keys)),
		activeKid: activeKid,
		duration:  duration,
	}
	for kid, secret := range keys {
		m.keys[kid] = []byte(secret)
	}
	return m
}

// GenerateToken issues a signed JWT token for a principal.
func (m *JWTManager) GenerateToken(userID bson.ObjectID, email string) (string, time.Time, error) {
	secret, ok := m.keys[m.activeKid]
	if !ok {
		return "", time.Time{}, fmt.Errorf("active key %q not configured", m.activeKid)
	}

	now := time.Now()
	expiresAt := now.Add(m.duration)

	claims := &Claims{
		UserID: userID.Hex(),
		Email:  normalize.Email(email),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	// HS256; the kid header tells VerifyToken which secret to use
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = m.activeKid

	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// VerifyToken parses and validates a token and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Reject anything that is not HMAC (alg confusion)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		// Tokens without a kid predate rotation and use the active key
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			kid = m.activeKid
		}
		secret, ok := m.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// HashPassword returns a bcrypt hash for the provided plaintext.
func HashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
// CompareHashAndPassword is constant-time.
func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
