package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "shopfront-identity"

	useAccess  = "access"
	useRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer signs the HS256 pairs handed out at sign-in. Both halves share
// the key; the "use" claim keeps a refresh token from passing as a bearer
// token and the other way round.
type TokenIssuer struct {
	key           []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	parser        *jwt.Parser
}

type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	Use    string    `json:"use"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int64
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

func NewTokenIssuer(secret string, accessExpiry, refreshExpiry time.Duration) *TokenIssuer {
	return &TokenIssuer{
		key:           []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

func (s *TokenIssuer) GenerateTokenPair(userID uuid.UUID, email string) (*TokenPair, error) {
	now := time.Now()
	pair := &TokenPair{
		ExpiresIn:        int64(s.accessExpiry.Seconds()),
		AccessExpiresAt:  now.Add(s.accessExpiry),
		RefreshExpiresAt: now.Add(s.refreshExpiry),
	}

	var err error
	pair.AccessToken, err = s.sign(Claims{
		UserID:           userID,
		Email:            email,
		Use:              useAccess,
		RegisteredClaims: registered(userID, now, pair.AccessExpiresAt),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	// Only the hash of a refresh token is stored, so two issued within the
	// same second must still differ.
	rc := registered(userID, now, pair.RefreshExpiresAt)
	rc.ID = uuid.NewString()
	pair.RefreshToken, err = s.sign(Claims{UserID: userID, Use: useRefresh, RegisteredClaims: rc})
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return pair, nil
}

func (s *TokenIssuer) ValidateAccessToken(token string) (*Claims, error) {
	return s.parse(token, useAccess)
}

func (s *TokenIssuer) ValidateRefreshToken(token string) (uuid.UUID, error) {
	claims, err := s.parse(token, useRefresh)
	if err != nil {
		return uuid.Nil, err
	}
	return claims.UserID, nil
}

func (s *TokenIssuer) sign(c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
}

func (s *TokenIssuer) parse(token, use string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Use != use {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, use, claims.Use)
	}
	if claims.Subject != claims.UserID.String() {
		return nil, fmt.Errorf("%w: subject does not match user", ErrInvalidToken)
	}
	return claims, nil
}

func registered(userID uuid.UUID, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

// HashToken is the form refresh tokens are stored and looked up in.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
