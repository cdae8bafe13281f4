package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MINI APP INIT DATA
// ══════════════════════════════════════════════════════════════════════════════

// webAppDataKey is the fixed HMAC key Telegram uses to derive the secret from the bot token.
const webAppDataKey = "WebAppData"

// ErrInvalidInitData is the only error Verify returns. The concrete reason is
// logged at debug level and never leaves the verifier.
var ErrInvalidInitData = shared.NewDomainError("telegram", "VerifyInitData", shared.ErrUnauthorized, "invalid identity payload")

// InitDataVerifier validates the signed initData string a Mini App sends.
// It is stateless and safe for concurrent use.
type InitDataVerifier struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// VerifierOption configures an InitDataVerifier.
type VerifierOption func(*InitDataVerifier)

// WithMaxAge rejects payloads whose auth_date is older than d. Zero disables the check.
func WithMaxAge(d time.Duration) VerifierOption {
	return func(v *InitDataVerifier) {
		v.maxAge = d
	}
}

// WithNow overrides the clock used for the auth_date check.
func WithNow(now func() time.Time) VerifierOption {
	return func(v *InitDataVerifier) {
		v.now = now
	}
}

// WithVerifierLogger sets the logger used for rejection diagnostics.
func WithVerifierLogger(l *slog.Logger) VerifierOption {
	return func(v *InitDataVerifier) {
		v.logger = l
	}
}

// NewInitDataVerifier creates a verifier bound to the bot token.
func NewInitDataVerifier(botToken string, opts ...VerifierOption) *InitDataVerifier {
	v := &InitDataVerifier{
		secret: deriveSecret(botToken),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With("component", "initdata_verifier")
	return v
}

// Verify checks the signature of raw initData and returns the embedded identity.
func (v *InitDataVerifier) Verify(raw string) (account.Identity, error) {
	identity, err := v.verify(raw)
	if err != nil {
		v.logger.Debug("init data rejected", "reason", err.Error())
		return account.Identity{}, ErrInvalidInitData
	}
	return identity, nil
}

func (v *InitDataVerifier) verify(raw string) (account.Identity, error) {
	values, err := url.ParseQuery(strings.TrimSpace(raw))
	if err != nil {
		return account.Identity{}, fmt.Errorf("parse query: %w", err)
	}

	hashes := values["hash"]
	if len(hashes) != 1 || hashes[0] == "" {
		return account.Identity{}, errors.New("hash is missing")
	}
	received, err := hex.DecodeString(hashes[0])
	if err != nil {
		return account.Identity{}, errors.New("hash is not hex")
	}
	values.Del("hash")

	checkString, err := DataCheckString(values)
	if err != nil {
		return account.Identity{}, err
	}

	if !hmac.Equal(sign(v.secret, checkString), received) {
		return account.Identity{}, errors.New("hash mismatch")
	}

	if v.maxAge > 0 {
		if err := v.checkAuthDate(values.Get("auth_date")); err != nil {
			return account.Identity{}, err
		}
	}

	return parseUser(values.Get("user"))
}

func (v *InitDataVerifier) checkAuthDate(raw string) error {
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return errors.New("auth_date is missing or malformed")
	}
	if v.now().Sub(time.Unix(sec, 0)) > v.maxAge {
		return errors.New("auth_date is too old")
	}
	return nil
}

// DataCheckString builds the canonical check-string: keys sorted
// lexicographically, each rendered as key=value, joined by '\n'.
// Repeated keys are rejected.
func DataCheckString(values url.Values) (string, error) {
	keys := make([]string, 0, len(values))
	for k, vs := range values {
		if len(vs) != 1 {
			return "", fmt.Errorf("key %q must appear exactly once", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(values.Get(k))
	}
	return b.String(), nil
}

// Sign produces a valid initData string for the given fields. It exists for tests
// and for the local "initdata sign" command.
func Sign(botToken string, values url.Values) (string, error) {
	signed := url.Values{}
	for k, vs := range values {
		if k == "hash" {
			continue
		}
		signed[k] = append([]string(nil), vs...)
	}
	checkString, err := DataCheckString(signed)
	if err != nil {
		return "", err
	}
	signed.Set("hash", hex.EncodeToString(sign(deriveSecret(botToken), checkString)))
	return signed.Encode(), nil
}

// deriveSecret computes HMAC-SHA256(key="WebAppData", message=botToken).
func deriveSecret(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte(webAppDataKey))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

func sign(secret []byte, checkString string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(checkString))
	return mac.Sum(nil)
}

// initDataUser is the subset of the Telegram WebAppUser object we rely on.
type initDataUser struct {
	ID        json.RawMessage `json:"id"`
	Username  string          `json:"username"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
}

func parseUser(raw string) (account.Identity, error) {
	if raw == "" {
		return account.Identity{}, errors.New("user is missing")
	}

	var u initDataUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return account.Identity{}, fmt.Errorf("decode user: %w", err)
	}

	// id приходит числом, но старые клиенты присылают строку.
	idText := strings.Trim(strings.TrimSpace(string(u.ID)), `"`)
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil || id <= 0 {
		return account.Identity{}, errors.New("user.id is missing or not a positive integer")
	}

	return account.Identity{
		TelegramID: account.TelegramID(id),
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
	}, nil
}
