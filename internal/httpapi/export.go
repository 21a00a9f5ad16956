package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reward-ledger/internal/features/ledger"
)

// rewardRow - строка CSV-выгрузки журнала для аудита.
type rewardRow struct {
	ID            string `csv:"id"`
	PlayerID      string `csv:"player_id"`
	Game          string `csv:"game"`
	Amount        string `csv:"amount"`
	Status        string `csv:"status"`
	CreatedAt     string `csv:"created_at"`
	ClaimedAt     string `csv:"claimed_at"`
	SourceEventID string `csv:"source_event_id"`
	Metadata      string `csv:"metadata"`
}

func toRow(r *ledger.Reward) rewardRow {
	row := rewardRow{
		ID:            r.ID.String(),
		PlayerID:      r.PlayerID,
		Game:          string(r.Game),
		Amount:        strconv.FormatUint(r.Amount, 10),
		Status:        string(r.Status),
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339),
		SourceEventID: r.SourceEventID,
	}
	if r.ClaimedAt != nil {
		row.ClaimedAt = r.ClaimedAt.UTC().Format(time.RFC3339)
	}
	if len(r.Metadata) > 0 {
		if b, err := json.Marshal(r.Metadata); err == nil {
			row.Metadata = string(b)
		}
	}
	return row
}

// GET /v1/players/{playerID}/rewards.csv
func (s *Server) handleRewardsCSV(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	list, err := s.rewards.GetRewards(r.Context(), playerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	rows := make([]rewardRow, 0, len(list))
	for _, rw := range list {
		rows = append(rows, toRow(rw))
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="rewards.csv"`)
	if err := gocsv.Marshal(&rows, w); err != nil {
		log.WithError(err).WithField("player_id", playerID).Error("Ошибка CSV-выгрузки")
	}
}
