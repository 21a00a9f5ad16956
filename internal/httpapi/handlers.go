package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
	"serotonyl.ru/reward-ledger/internal/features/rewards"
	"serotonyl.ru/reward-ledger/internal/features/settlement"
)

// Максимальный размер тела запроса
const maxBodyBytes = 64 << 10

// Состояние выплаты в ответе на claim
const (
	SettlementQueued   = "queued"
	SettlementFailed   = "failed"
	SettlementDisabled = "disabled"
	SettlementNothing  = "nothing_to_settle"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type eventRequest struct {
	PlayerID   string          `json:"player_id"`
	Game       string          `json:"game"`
	EventID    string          `json:"event_id"`
	EventData  json.RawMessage `json:"event_data"`
	OccurredAt *time.Time      `json:"occurred_at"`
}

type claimRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type claimResponse struct {
	PlayerID    string           `json:"player_id"`
	Claimed     []*ledger.Reward `json:"claimed"`
	TotalAmount uint64           `json:"total_amount"`
	Settlement  string           `json:"settlement"`
}

type rewardsResponse struct {
	PlayerID string           `json:"player_id"`
	Rewards  []*ledger.Reward `json:"rewards"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("Ошибка записи ответа")
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeServiceError переводит ошибки движка в HTTP-статусы.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrUnknownGame):
		writeError(w, http.StatusBadRequest, "unknown_game", err.Error())
	case errors.Is(err, common.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, "invalid_event", err.Error())
	case errors.Is(err, common.ErrInvalidWallet):
		writeError(w, http.StatusBadRequest, "invalid_wallet", err.Error())
	case errors.Is(err, common.ErrStorageFailure):
		writeError(w, http.StatusServiceUnavailable, "storage_failure", "хранилище недоступно, повторите запрос")
	default:
		log.WithError(err).Error("Необработанная ошибка HTTP API")
		writeError(w, http.StatusInternalServerError, "internal", "внутренняя ошибка")
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rewards.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage_failure", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /v1/events
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_event", "некорректный JSON: "+err.Error())
		return
	}
	game, err := ledger.ParseGameType(req.Game)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	ev := rewards.GameEvent{
		PlayerID:  req.PlayerID,
		Game:      game,
		EventID:   req.EventID,
		EventData: req.EventData,
	}
	if req.OccurredAt != nil {
		ev.OccurredAt = *req.OccurredAt
	}

	resp, err := s.rewards.ProcessGameEvent(r.Context(), ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	list, err := s.rewards.GetRewards(r.Context(), playerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rewardsResponse{PlayerID: playerID, Rewards: nonNil(list)})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	list, err := s.rewards.GetPendingRewards(r.Context(), playerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rewardsResponse{PlayerID: playerID, Rewards: nonNil(list)})
}

// POST /v1/players/{playerID}/claim
//
// Кошелёк проверяется до claim: с некорректным адресом награды остаются pending.
// Ошибка постановки в очередь выплат claim не отменяет.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	var req claimRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "некорректный JSON: "+err.Error())
		return
	}
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	if s.opts.Settler != nil || req.WalletAddress != "" {
		if err := settlement.ValidateWallet(req.WalletAddress); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	claimed, err := s.rewards.ClaimRewards(r.Context(), playerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := claimResponse{PlayerID: playerID, Claimed: nonNil(claimed)}
	for _, rw := range claimed {
		resp.TotalAmount += rw.Amount
	}

	switch {
	case len(claimed) == 0:
		resp.Settlement = SettlementNothing
	case s.opts.Settler == nil:
		resp.Settlement = SettlementDisabled
	default:
		err := s.opts.Settler.Submit(settlement.Batch{PlayerID: playerID, Wallet: req.WalletAddress, Rewards: claimed})
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"player_id": playerID,
				"rewards":   len(claimed),
			}).Error("Выплата не поставлена в очередь")
			resp.Settlement = SettlementFailed
		} else {
			resp.Settlement = SettlementQueued
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /v1/players/{playerID}/daily-stats?game=flypoke&date=2024-03-11
func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	q := r.URL.Query()

	game, err := ledger.ParseGameType(q.Get("game"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	date := s.rewards.Today()
	if raw := q.Get("date"); raw != "" {
		if date, err = common.ParseDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "дата в формате YYYY-MM-DD")
			return
		}
	}

	stats, err := s.rewards.GetDailyStats(r.Context(), playerID, game, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	st, err := s.rewards.GetStreak(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if s.opts.Wallets == nil {
		writeError(w, http.StatusNotImplemented, "settlement_disabled", "выплаты выключены")
		return
	}
	addr := chi.URLParam(r, "address")
	if err := settlement.ValidateWallet(addr); err != nil {
		writeServiceError(w, err)
		return
	}
	balance, err := s.opts.Wallets.Balance(r.Context(), addr)
	if err != nil {
		log.WithError(err).Warn("Ошибка запроса баланса")
		writeError(w, http.StatusBadGateway, "settlement_error", "платёжная система недоступна")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallet_address": addr, "balance": balance})
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	if s.opts.Wallets == nil {
		writeError(w, http.StatusNotImplemented, "settlement_disabled", "выплаты выключены")
		return
	}
	signature := chi.URLParam(r, "signature")
	ok, err := s.opts.Wallets.VerifyTransaction(r.Context(), signature)
	if err != nil {
		log.WithError(err).Warn("Ошибка проверки транзакции")
		writeError(w, http.StatusBadGateway, "settlement_error", "платёжная система недоступна")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signature": signature, "confirmed": ok})
}

func nonNil(list []*ledger.Reward) []*ledger.Reward {
	if list == nil {
		return []*ledger.Reward{}
	}
	return list
}
