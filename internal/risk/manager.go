package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

// dayStats суточные счетчики одного календарного дня
type dayStats struct {
	trades int
	pnl    float64
	open   map[string]*models.Trade
}

// Manager рассчитывает размер позиции и следит за суточными лимитами.
// Статистика ведется по календарным дням даты входа в сделку.
type Manager struct {
	mu     sync.Mutex
	cfg    config.RiskConfig
	equity float64
	days   map[string]*dayStats
}

// NewManager создает менеджер рисков со стартовым капиталом
func NewManager(cfg config.RiskConfig, equity float64) *Manager {
	return &Manager{
		cfg:    cfg,
		equity: equity,
		days:   make(map[string]*dayStats),
	}
}

// SetAccountEquity обновляет оценку капитала счета
func (m *Manager) SetAccountEquity(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = equity
}

// AccountEquity возвращает текущую оценку капитала
func (m *Manager) AccountEquity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.equity
}

// CalculatePositionSize возвращает размер позиции в единицах и сумму
// риска. Размер: floor(equity*perTrade / (|entry-stop| * valuePerUnit)),
// зажатый в [1, maxUnits]. Нулевая дистанция до стопа дает 1 единицу
// с предупреждением.
func (m *Manager) CalculatePositionSize(symbol string, entry, stop float64) (int, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	valuePerUnit := m.cfg.ValuePerUnit[symbol]
	if valuePerUnit <= 0 {
		valuePerUnit = 1.0
	}

	riskPerUnit := math.Abs(entry-stop) * valuePerUnit
	if riskPerUnit == 0 {
		logger.Warn("Нулевая дистанция до стопа, размер позиции 1",
			zap.String("symbol", symbol), zap.Float64("entry", entry))
		return 1, 0
	}

	budget := m.equity * m.cfg.PerTrade
	units := int(math.Floor(budget / riskPerUnit))
	if units < 1 {
		units = 1
	}
	if m.cfg.MaxUnits > 0 && units > m.cfg.MaxUnits {
		units = m.cfg.MaxUnits
	}

	return units, float64(units) * riskPerUnit
}

// CanPlaceTrade проверяет суточные лимиты перед открытием сделки.
// Возвращает разрешение и причину отказа.
func (m *Manager) CanPlaceTrade(symbol string, riskAmount float64, at time.Time) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := m.dayLocked(at)

	if m.cfg.MaxTradesPerDay > 0 && day.trades >= m.cfg.MaxTradesPerDay {
		return false, fmt.Sprintf("достигнут суточный лимит сделок (%d)", m.cfg.MaxTradesPerDay)
	}

	lossFloor := -m.equity * m.cfg.MaxDailyLoss
	if m.cfg.MaxDailyLoss > 0 && day.pnl <= lossFloor {
		return false, fmt.Sprintf("достигнут суточный лимит убытка (%.2f)", lossFloor)
	}

	if m.cfg.MaxDailyProfit > 0 {
		profitCeiling := m.equity * m.cfg.MaxDailyProfit
		if day.pnl >= profitCeiling {
			return false, fmt.Sprintf("достигнут суточный лимит прибыли (%.2f)", profitCeiling)
		}
	}

	maxRisk := m.equity * m.cfg.PerTrade
	if riskAmount > maxRisk {
		return false, fmt.Sprintf("риск сделки %.2f превышает лимит %.2f", riskAmount, maxRisk)
	}

	if _, exists := day.open[symbol]; exists {
		return false, fmt.Sprintf("по символу %s уже есть открытая сделка", symbol)
	}

	return true, ""
}

// RegisterTrade учитывает открытую сделку в суточной статистике
func (m *Manager) RegisterTrade(trade *models.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := m.dayLocked(trade.EntryTime)
	day.trades++
	day.open[trade.Symbol] = trade

	logger.Info("Сделка зарегистрирована",
		zap.String("symbol", trade.Symbol),
		zap.String("id", trade.ID),
		zap.Int("trades_today", day.trades))
}

// UpdateTrade переносит результат закрытой сделки в суточный P&L.
// Сделка учитывается в дне своего входа.
func (m *Manager) UpdateTrade(trade *models.Trade) {
	if !trade.IsClosed() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	day := m.dayLocked(trade.EntryTime)
	delete(day.open, trade.Symbol)

	pl, ok := trade.ProfitLossAmount()
	if !ok {
		return
	}
	valuePerUnit := m.cfg.ValuePerUnit[trade.Symbol]
	if valuePerUnit <= 0 {
		valuePerUnit = 1.0
	}
	pl *= valuePerUnit
	day.pnl += pl

	logger.Info("Суточный P&L обновлен",
		zap.String("symbol", trade.Symbol),
		zap.Float64("trade_pl", pl),
		zap.Float64("day_pnl", day.pnl))
}

// HasOpenTrade сообщает, есть ли открытая сделка по символу
func (m *Manager) HasOpenTrade(symbol string, at time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.dayLocked(at).open[symbol]
	return ok
}

// DailySummary возвращает счетчики дня: сделки и P&L
func (m *Manager) DailySummary(at time.Time) (int, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := m.dayLocked(at)
	return day.trades, day.pnl
}

// dayLocked возвращает статистику календарного дня, создавая ее при
// первом обращении; вызывается под mu
func (m *Manager) dayLocked(at time.Time) *dayStats {
	key := at.Format("2006-01-02")
	day, ok := m.days[key]
	if !ok {
		day = &dayStats{open: make(map[string]*models.Trade)}
		m.days[key] = day
	}
	return day
}
