package strategy

import (
	"github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/internal/marketdata"
	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

// TrendFilter трендовый фильтр старшего таймфрейма: лонги разрешены
// только при закрытии выше скользящей средней, шорты — ниже
type TrendFilter struct {
	feed     *marketdata.Feed
	cfg      config.HTFFilterConfig
	interval int
}

// NewTrendFilter создает фильтр на свечах интервала interval
func NewTrendFilter(feed *marketdata.Feed, cfg config.HTFFilterConfig, interval int) *TrendFilter {
	return &TrendFilter{
		feed:     feed,
		cfg:      cfg,
		interval: interval,
	}
}

// Allows проверяет направление против тренда старшего таймфрейма.
// При выключенном фильтре или недостатке истории вето не накладывается.
func (f *TrendFilter) Allows(symbol string, direction models.Direction) bool {
	if !f.cfg.Enabled {
		return true
	}

	candles := f.feed.GetCandles(symbol, f.interval, f.cfg.MAPeriod*2)
	if len(candles) < f.cfg.MAPeriod {
		logger.Debug("Недостаточно истории для трендового фильтра",
			zap.String("symbol", symbol),
			zap.Int("have", len(candles)), zap.Int("need", f.cfg.MAPeriod))
		return true
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	var ma []float64
	switch f.cfg.MAType {
	case "SMA":
		ma = talib.Sma(closes, f.cfg.MAPeriod)
	default:
		ma = talib.Ema(closes, f.cfg.MAPeriod)
	}

	lastClose := closes[len(closes)-1]
	lastMA := ma[len(ma)-1]

	allowed := (direction == models.Long && lastClose > lastMA) ||
		(direction == models.Short && lastClose < lastMA)
	if !allowed {
		logger.Info("Сигнал отклонен трендовым фильтром",
			zap.String("symbol", symbol),
			zap.String("direction", string(direction)),
			zap.Float64("close", lastClose),
			zap.Float64("ma", lastMA))
	}
	return allowed
}
