package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/skalibog/brtb/internal/exchange"
	"github.com/skalibog/brtb/internal/risk"
	"github.com/skalibog/brtb/internal/strategy"
	"github.com/skalibog/brtb/pkg/logger"
)

// Scheduler управляет периодическими задачами: пересканирование
// ордер-блоков, суточный сброс и обновление оценки капитала
type Scheduler struct {
	cron    *cron.Cron
	engine  *strategy.Engine
	broker  exchange.Broker
	riskMgr *risk.Manager
	ctx     context.Context
}

// NewScheduler создает планировщик задач
func NewScheduler(ctx context.Context, engine *strategy.Engine, broker exchange.Broker, riskMgr *risk.Manager) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		engine:  engine,
		broker:  broker,
		riskMgr: riskMgr,
		ctx:     ctx,
	}
}

// RegisterAll регистрирует все периодические задачи
func (s *Scheduler) RegisterAll(rescanCron string) error {
	if _, err := s.cron.AddFunc(rescanCron, s.rescanTask); err != nil {
		return fmt.Errorf("регистрация задачи пересканирования: %w", err)
	}
	// Суточный сброс на границе суток UTC
	if _, err := s.cron.AddFunc("0 0 * * *", s.dailyResetTask); err != nil {
		return fmt.Errorf("регистрация суточного сброса: %w", err)
	}
	// Обновление оценки капитала каждые 5 минут
	if _, err := s.cron.AddFunc("@every 5m", s.refreshEquityTask); err != nil {
		return fmt.Errorf("регистрация обновления капитала: %w", err)
	}
	return nil
}

// Start запускает планировщик
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Планировщик запущен")
}

// Stop останавливает планировщик
func (s *Scheduler) Stop() {
	s.cron.Stop()
	logger.Info("Планировщик остановлен")
}

// rescanTask пересканирует зоны ордер-блоков
func (s *Scheduler) rescanTask() {
	for _, st := range s.engine.Strategies() {
		if ob, ok := st.(*strategy.OrderBlockStrategy); ok {
			logger.Debug("Пересканирование ордер-блоков")
			ob.Rescan()
		}
	}
}

// dailyResetTask публикует итоги прошедшего дня и сбрасывает суточное
// состояние стратегий
func (s *Scheduler) dailyResetTask() {
	s.engine.ResetDaily(time.Now().UTC().Add(-time.Minute))
}

// refreshEquityTask подтягивает оценку капитала от брокера
func (s *Scheduler) refreshEquityTask() {
	info, err := s.broker.GetAccountInfo(s.ctx)
	if err != nil {
		logger.Warn("Ошибка обновления оценки капитала", zap.Error(err))
		return
	}
	s.riskMgr.SetAccountEquity(info.Equity)
	logger.Debug("Оценка капитала обновлена", zap.Float64("equity", info.Equity))
}
