package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// TokenType is returned alongside every access token
const TokenType = "bearer"

var (
	ErrMissingClaim = errors.New("token claim is missing or not a string")
	ErrBadPassword  = errors.New("password does not match")
)

// TokenIssuer signs and verifies HS256 access tokens
type TokenIssuer struct {
	auth *jwtauth.JWTAuth
	ttl  time.Duration
	now  func() time.Time
}

// NewTokenIssuer creates an issuer with the given secret and token lifetime
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		auth: jwtauth.New("HS256", []byte(secret), nil),
		ttl:  ttl,
		now:  time.Now,
	}
}

// JWTAuth exposes the verifier used by the HTTP middleware
func (t *TokenIssuer) JWTAuth() *jwtauth.JWTAuth {
	return t.auth
}

// Issue creates a token carrying the user id and role
func (t *TokenIssuer) Issue(userID, role string) (string, error) {
	now := t.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     now.Add(t.ttl).Unix(),
		"iat":     now.Unix(),
	}

	_, token, err := t.auth.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// UserIDFromClaims extracts the user_id claim
func UserIDFromClaims(claims map[string]interface{}) (string, error) {
	return stringClaim(claims, "user_id")
}

// RoleFromClaims extracts the role claim
func RoleFromClaims(claims map[string]interface{}) (string, error) {
	return stringClaim(claims, "role")
}

func stringClaim(claims map[string]interface{}, name string) (string, error) {
	v, ok := claims[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s: %w", name, ErrMissingClaim)
	}
	return v, nil
}

// HashPassword hashes a password with bcrypt's default cost
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with a candidate password
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrBadPassword
	}
	return nil
}
