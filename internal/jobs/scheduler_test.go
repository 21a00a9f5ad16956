package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/reward-ledger/internal/features/ledger"
)

type stubAuditor struct {
	today   time.Time
	summary []ledger.GameSummary
	err     error
	asked   time.Time
}

func (a *stubAuditor) DaySummary(_ context.Context, date time.Time) ([]ledger.GameSummary, error) {
	a.asked = date
	return a.summary, a.err
}

func (a *stubAuditor) Today() time.Time { return a.today }

type stubReminder struct {
	calls int
	err   error
}

func (r *stubReminder) SendReminders(_ context.Context, sendFunc func(int64, string)) (int, error) {
	r.calls++
	sendFunc(1, "серия сгорает")
	return 1, r.err
}

var today = time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)

func TestRunAudit(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	a := &stubAuditor{
		today: today,
		summary: []ledger.GameSummary{
			{Game: ledger.GameFlyPoke, Players: 2, EventCount: 5, TotalAwarded: 300},
			{Game: ledger.GameLogin, Players: 2, EventCount: 2, TotalAwarded: 40},
		},
	}
	s := NewScheduler(a, nil, nil)
	s.runAudit(context.Background())

	assert.Equal(t, today.AddDate(0, 0, -1), a.asked, "сверяются вчерашние сутки")

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, "[CRON] Сверка журнала завершена", last.Message)
	assert.Equal(t, uint64(340), last.Data["total_awarded"])
	assert.Equal(t, "2024-03-11", last.Data["date"])
}

func TestRunAuditError(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	s := NewScheduler(&stubAuditor{today: today, err: errors.New("db down")}, nil, nil)
	s.runAudit(context.Background())

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, log.ErrorLevel, last.Level)
}

func TestRunReminders(t *testing.T) {
	r := &stubReminder{}
	var sent []int64
	s := NewScheduler(&stubAuditor{today: today}, r, func(userID int64, _ string) {
		sent = append(sent, userID)
	})
	s.runReminders(context.Background())

	assert.Equal(t, 1, r.calls)
	assert.Equal(t, []int64{1}, sent)
}

func TestStartRegistersJobs(t *testing.T) {
	ctx := context.Background()

	withReminders := NewScheduler(&stubAuditor{today: today}, &stubReminder{}, func(int64, string) {})
	require.NoError(t, withReminders.Start(ctx))
	assert.Len(t, withReminders.cron.Entries(), 2)
	withReminders.Stop()

	auditOnly := NewScheduler(&stubAuditor{today: today}, &stubReminder{}, nil)
	require.NoError(t, auditOnly.Start(ctx))
	assert.Len(t, auditOnly.cron.Entries(), 1)
	auditOnly.Stop()
}
