// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ежечасные напоминания о сериях входов
// и ночную сверку журнала за прошедшие сутки.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/reward-ledger/internal/common"
	"serotonyl.ru/reward-ledger/internal/features/ledger"
)

// Reminder рассылает напоминания о сгорающих сериях (streak.Service).
type Reminder interface {
	SendReminders(ctx context.Context, sendFunc func(userID int64, text string)) (int, error)
}

// Auditor отдаёт суточные итоги журнала (rewards.Service).
type Auditor interface {
	DaySummary(ctx context.Context, date time.Time) ([]ledger.GameSummary, error)
	Today() time.Time
}

const (
	reminderSpec = "0 * * * *" // каждый час
	auditSpec    = "5 0 * * *" // 00:05 UTC, сутки уже закрыты
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	auditor  Auditor
	reminder Reminder // nil - напоминания выключены
	sendFunc func(userID int64, text string)
}

// NewScheduler создаёт планировщик. Сутки журнала считаются по UTC,
// поэтому и расписание в UTC. reminder и sendFunc могут быть nil.
func NewScheduler(auditor Auditor, reminder Reminder, sendFunc func(userID int64, text string)) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		auditor:  auditor,
		reminder: reminder,
		sendFunc: sendFunc,
	}
}

// Start регистрирует задачи и запускает cron.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(auditSpec, func() { s.runAudit(ctx) }); err != nil {
		return err
	}

	if s.reminder != nil && s.sendFunc != nil {
		if _, err := s.cron.AddFunc(reminderSpec, func() { s.runReminders(ctx) }); err != nil {
			return err
		}
	}

	s.cron.Start()
	log.WithField("jobs", len(s.cron.Entries())).Info("Планировщик задач запущен (UTC)")
	return nil
}

// Stop останавливает планировщик и ждёт завершения выполняющихся задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

func (s *Scheduler) runReminders(ctx context.Context) {
	log.Debug("[CRON] Проверка напоминаний")
	if _, err := s.reminder.SendReminders(ctx, s.sendFunc); err != nil {
		log.WithError(err).Error("[CRON] Ошибка напоминаний")
	}
}

// runAudit пишет в лог итоги вчерашних суток по каждой игре.
func (s *Scheduler) runAudit(ctx context.Context) {
	day := s.auditor.Today().AddDate(0, 0, -1)
	logger := log.WithField("date", common.FormatDate(day))

	summary, err := s.auditor.DaySummary(ctx, day)
	if err != nil {
		logger.WithError(err).Error("[CRON] Ошибка сверки журнала")
		return
	}
	if len(summary) == 0 {
		logger.Info("[CRON] Сверка журнала: за сутки начислений нет")
		return
	}

	var total uint64
	for _, g := range summary {
		total += g.TotalAwarded
		logger.WithFields(log.Fields{
			"game":          g.Game,
			"players":       g.Players,
			"events":        g.EventCount,
			"total_awarded": g.TotalAwarded,
		}).Info("[CRON] Сверка журнала")
	}
	logger.WithField("total_awarded", total).Info("[CRON] Сверка журнала завершена")
}
