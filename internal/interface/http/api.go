package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alphawulf/alphawulf-hub/internal/application/command"
	"github.com/alphawulf/alphawulf-hub/internal/application/query"
	"github.com/alphawulf/alphawulf-hub/internal/domain/account"
	"github.com/alphawulf/alphawulf-hub/internal/domain/progress"
	"github.com/alphawulf/alphawulf-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTH
// ══════════════════════════════════════════════════════════════════════════════

// InitDataHeader carries the Mini App initData string.
const InitDataHeader = "X-Telegram-Init-Data"

type telegramAuthRequest struct {
	InitData string `json:"initData"`
}

// AuthResponse is returned by POST /api/auth/telegram.
type AuthResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      *account.Account `json:"user"`
	Created   bool             `json:"created"`
}

var errBadBody = shared.NewDomainError("http", "Decode", shared.ErrInvalidInput, "malformed JSON body")

// handleTelegramAuth verifies initData, provisions the account and issues a session.
func (s *Server) handleTelegramAuth(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.Header.Get(InitDataHeader))
	if raw == "" {
		var body telegramAuthRequest
		if err := decodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
			writeUnauthorized(w)
			return
		}
		raw = strings.TrimSpace(body.InitData)
	}
	if raw == "" {
		writeUnauthorized(w)
		return
	}

	identity, err := s.deps.Verifier.Verify(raw)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	res, err := s.deps.ProvisionAccount.Handle(r.Context(), identity)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := s.deps.Sessions.Issue(res.Account)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
		User:      res.Account,
		Created:   res.Created,
	})
}

// handleMe returns the account of the current session.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	acc, err := s.deps.Accounts.GetByID(r.Context(), claims.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			writeUnauthorized(w)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	dto, err := s.deps.GetProgress.Handle(r.Context(), query.GetProgressQuery{AccountID: claims.AccountID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

type awardRequest struct {
	Amount json.RawMessage `json:"amount"`
}

// parseAmount accepts only a JSON integer literal. Quoted numbers, floats,
// null and a missing field are rejected.
func parseAmount(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return 0, progress.ErrInvalidAmount
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, progress.ErrInvalidAmount
	}
	return n, nil
}

// AwardResponse is the settled record plus what the award changed.
type AwardResponse struct {
	*query.ProgressDTO
	LevelsCrossed   []int               `json:"levelsCrossed"`
	LeveledUp       bool                `json:"leveledUp"`
	NewAchievements []progress.Unlocked `json:"newAchievements"`
}

func (s *Server) handleAwardExperience(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	var body awardRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, errBadBody)
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.AwardExperience.Handle(r.Context(), command.AwardExperienceCommand{
		AccountID: claims.AccountID,
		Amount:    amount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	unlocked := res.Outcome.NewAchievements
	if unlocked == nil {
		unlocked = []progress.Unlocked{}
	}
	writeJSON(w, http.StatusOK, AwardResponse{
		ProgressDTO:     query.NewProgressDTO(res.Record),
		LevelsCrossed:   res.Outcome.LevelsCrossed,
		LeveledUp:       res.Outcome.LeveledUp,
		NewAchievements: unlocked,
	})
}

// SyncResponse reports whether the progress summary reached the chat.
type SyncResponse struct {
	Delivered bool `json:"delivered"`
}

// handleSyncTelegram sends the progress summary to the account's Telegram chat.
// A chat that blocked the bot is not an error: Delivered is false.
func (s *Server) handleSyncTelegram(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	delivered, err := s.deps.ProgressSync.Sync(r.Context(), claims.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			writeUnauthorized(w)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Delivered: delivered})
}

func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	dto, err := s.deps.GetAchievements.Handle(r.Context(), query.GetAchievementsQuery{AccountID: claims.AccountID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.GetAchievements.Catalog(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"achievements": list})
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"ready": false, "message": status.Message})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ready": true})
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"alive": true, "uptime": s.Uptime().Round(time.Second).String()})
}

// decodeJSON decodes a single JSON object.
func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
