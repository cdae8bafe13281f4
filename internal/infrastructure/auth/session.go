// Package auth issues and validates session tokens for authenticated API calls.
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

// SessionTTL is the fixed lifetime of a session token.
const SessionTTL = 7 * 24 * time.Hour

// keyInfo binds the derived key to its purpose so the same secret can never
// produce a key that validates tokens of another kind.
const keyInfo = "alphawulf/session/hs256/v1"

// ErrInvalidSession is returned for every rejected token: bad signature,
// wrong algorithm, malformed claims and expiry all look the same to callers.
var ErrInvalidSession = shared.NewDomainError("session", "Validate", shared.ErrUnauthorized, "invalid session")

// Claims - содержимое токена сессии.
type Claims struct {
	AccountID  string `json:"accountId"`
	TelegramID int64  `json:"telegramId"`
	jwt.RegisteredClaims
}

// Token is a signed session credential.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionConfig configures a SessionIssuer.
type SessionConfig struct {
	// Secret is the server-held secret the signing key is derived from.
	Secret string
	// Issuer is written to the iss claim.
	Issuer string
	// Now defaults to time.Now.
	Now func() time.Time
}

// SessionIssuer mints and validates HS256 session tokens.
// Validation is stateless and does not touch the store.
type SessionIssuer struct {
	key    []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// NewSessionIssuer derives the signing key from cfg.Secret with HKDF-SHA256.
func NewSessionIssuer(cfg SessionConfig) (*SessionIssuer, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(cfg.Secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}

	return &SessionIssuer{
		key:    key,
		issuer: cfg.Issuer,
		now:    cfg.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(cfg.Now),
		),
	}, nil
}

// Issue signs a token for the account. Expiry is issuance + SessionTTL.
func (s *SessionIssuer) Issue(acc *account.Account) (Token, error) {
	if acc == nil || acc.ID == "" {
		return Token{}, account.ErrInvalidAccountID
	}

	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(SessionTTL)

	claims := Claims{
		AccountID:  acc.ID,
		TelegramID: int64(acc.TelegramID),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(int64(acc.TelegramID), 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return Token{}, fmt.Errorf("sign session: %w", err)
	}
	return Token{Value: signed, ExpiresAt: expiresAt}, nil
}

// Validate checks signature, algorithm and expiry and returns the claims.
// iss and aud are not checked.
func (s *SessionIssuer) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidSession
	}

	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	if err != nil || !token.Valid || claims.AccountID == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
