package notify

import (
	"go.uber.org/zap"

	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

// Notifier получает уведомления о событиях торговли
type Notifier interface {
	TradeEntry(trade *models.Trade)
	TradeExit(trade *models.Trade)
	LevelDetected(level *models.Level)
	DailySummary(date string, trades int, pnl float64)
	Error(message string, err error)
}

// LogNotifier пишет уведомления в структурированный лог
type LogNotifier struct{}

// NewLogNotifier создает лог-уведомитель
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) TradeEntry(trade *models.Trade) {
	logger.Info("ВХОД В СДЕЛКУ",
		zap.String("symbol", trade.Symbol),
		zap.String("strategy", trade.StrategyName),
		zap.String("direction", string(trade.Direction)),
		zap.Float64("entry", trade.EntryPrice),
		zap.Float64("stop", trade.StopLoss),
		zap.Float64("target", trade.TakeProfit),
		zap.Int("quantity", trade.Quantity))
}

func (n *LogNotifier) TradeExit(trade *models.Trade) {
	pl, _ := trade.ProfitLossAmount()
	plR, _ := trade.ProfitLossR()
	logger.Info("ВЫХОД ИЗ СДЕЛКИ",
		zap.String("symbol", trade.Symbol),
		zap.String("strategy", trade.StrategyName),
		zap.String("result", string(trade.Result)),
		zap.Float64("exit", trade.ExitPrice),
		zap.Float64("pl", pl),
		zap.Float64("pl_r", plR),
		zap.String("reason", trade.Notes))
}

func (n *LogNotifier) LevelDetected(level *models.Level) {
	logger.Info("Обнаружен уровень",
		zap.String("symbol", level.Symbol),
		zap.String("type", string(level.Type)),
		zap.Float64("price", level.Price),
		zap.String("description", level.Description))
}

func (n *LogNotifier) DailySummary(date string, trades int, pnl float64) {
	logger.Info("ИТОГИ ДНЯ",
		zap.String("date", date),
		zap.Int("trades", trades),
		zap.Float64("pnl", pnl))
}

func (n *LogNotifier) Error(message string, err error) {
	logger.Error(message, zap.Error(err))
}

// MultiNotifier рассылает уведомления нескольким получателям
type MultiNotifier struct {
	targets []Notifier
}

// NewMultiNotifier объединяет уведомителей в один
func NewMultiNotifier(targets ...Notifier) *MultiNotifier {
	return &MultiNotifier{targets: targets}
}

func (m *MultiNotifier) TradeEntry(trade *models.Trade) {
	for _, n := range m.targets {
		n.TradeEntry(trade)
	}
}

func (m *MultiNotifier) TradeExit(trade *models.Trade) {
	for _, n := range m.targets {
		n.TradeExit(trade)
	}
}

func (m *MultiNotifier) LevelDetected(level *models.Level) {
	for _, n := range m.targets {
		n.LevelDetected(level)
	}
}

func (m *MultiNotifier) DailySummary(date string, trades int, pnl float64) {
	for _, n := range m.targets {
		n.DailySummary(date, trades, pnl)
	}
}

func (m *MultiNotifier) Error(message string, err error) {
	for _, n := range m.targets {
		n.Error(message, err)
	}
}
