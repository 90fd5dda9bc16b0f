package strategy

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/internal/exchange"
	"github.com/skalibog/brtb/internal/levels"
	"github.com/skalibog/brtb/internal/marketdata"
	"github.com/skalibog/brtb/internal/notify"
	"github.com/skalibog/brtb/internal/risk"
	"github.com/skalibog/brtb/internal/storage"
	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

// Strategy торговая стратегия: получает закрытые свечи исполнительного
// интервала и возвращает подтвержденные сигналы
type Strategy interface {
	Name() string
	OnCandle(candle *models.Candle) []*Signal
	ResetDaily()
}

// Toolkit общие зависимости стратегий
type Toolkit struct {
	Feed         *marketdata.Feed
	Registry     *levels.Registry
	Notifier     notify.Notifier
	Session      *Session
	ExecInterval int
}

// Engine ведет стратегии: раздает им свечи, проверяет сигналы против
// трендового фильтра и лимитов риска, исполняет входы и выходы.
// На символ одновременно открыта не более одной сделки.
type Engine struct {
	cfg     *config.Config
	tk      *Toolkit
	broker  exchange.Broker
	riskMgr *risk.Manager
	store   storage.Storage
	trend   *TrendFilter

	mu         sync.Mutex
	strategies []Strategy
	open       map[string]*models.Trade
	closed     []*models.Trade

	ctx         context.Context
	callbackIDs map[string]int64
	levelCbIDs  map[string]int64
}

// NewEngine создает движок стратегий
func NewEngine(cfg *config.Config, tk *Toolkit, broker exchange.Broker, riskMgr *risk.Manager, store storage.Storage, trend *TrendFilter) *Engine {
	return &Engine{
		cfg:         cfg,
		tk:          tk,
		broker:      broker,
		riskMgr:     riskMgr,
		store:       store,
		trend:       trend,
		open:        make(map[string]*models.Trade),
		callbackIDs: make(map[string]int64),
		levelCbIDs:  make(map[string]int64),
	}
}

// AddStrategy подключает стратегию к движку
func (e *Engine) AddStrategy(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies = append(e.strategies, s)
	logger.Info("Стратегия подключена", zap.String("strategy", s.Name()))
}

// Strategies возвращает подключенные стратегии
func (e *Engine) Strategies() []Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Strategy, len(e.strategies))
	copy(out, e.strategies)
	return out
}

// Start подписывает движок на закрытые свечи исполнительного интервала
func (e *Engine) Start(ctx context.Context) {
	e.ctx = ctx
	for _, symbol := range e.cfg.Trading.Symbols {
		symbol := symbol
		e.callbackIDs[symbol] = e.tk.Feed.AddCandleCallback(symbol, e.tk.ExecInterval, e.onCandle)
		e.levelCbIDs[symbol] = e.tk.Feed.AddLevelCallback(symbol, func(level float64) {
			logger.Debug("Цена пересекла отслеживаемый уровень",
				zap.String("symbol", symbol), zap.Float64("level", level))
		})
	}
}

// Stop снимает подписки движка
func (e *Engine) Stop() {
	for symbol, id := range e.callbackIDs {
		e.tk.Feed.RemoveCandleCallback(symbol, e.tk.ExecInterval, id)
	}
	for symbol, id := range e.levelCbIDs {
		e.tk.Feed.RemoveLevelCallback(symbol, id)
	}
}

// onCandle обрабатывает закрытую свечу: сначала выходы по открытой
// сделке, затем сигналы стратегий внутри торговой сессии
func (e *Engine) onCandle(candle *models.Candle) {
	closeTime := candle.OpenTime.Add(time.Duration(candle.Interval) * time.Minute)

	e.manageExit(candle, closeTime)

	if !e.tk.Session.Contains(candle.OpenTime) {
		return
	}

	for _, s := range e.Strategies() {
		for _, sig := range s.OnCandle(candle) {
			e.tryEnter(s.Name(), sig, closeTime)
		}
	}
}

// manageExit проверяет стоп и цель открытой сделки против экстремумов
// свечи. Стоп проверяется раньше цели: при свече, задевшей оба уровня,
// считается сработавшим стоп.
func (e *Engine) manageExit(candle *models.Candle, closeTime time.Time) {
	e.mu.Lock()
	trade := e.open[candle.Symbol]
	e.mu.Unlock()
	if trade == nil {
		return
	}

	var exitPrice float64
	var reason string

	if trade.Direction == models.Long {
		switch {
		case candle.Low <= trade.StopLoss:
			exitPrice, reason = trade.StopLoss, "стоп-лосс"
		case candle.High >= trade.TakeProfit:
			exitPrice, reason = trade.TakeProfit, "тейк-профит"
		default:
			return
		}
	} else {
		switch {
		case candle.High >= trade.StopLoss:
			exitPrice, reason = trade.StopLoss, "стоп-лосс"
		case candle.Low <= trade.TakeProfit:
			exitPrice, reason = trade.TakeProfit, "тейк-профит"
		default:
			return
		}
	}

	remaining := trade.Quantity - trade.ExitedQuantity()
	if ok, msg, _ := e.broker.ClosePosition(e.ctx, trade.Symbol, remaining); !ok {
		logger.Error("Ошибка закрытия позиции у брокера",
			zap.String("symbol", trade.Symbol), zap.String("message", msg))
	}

	trade.Close(exitPrice, closeTime, reason)
	e.riskMgr.UpdateTrade(trade)

	e.mu.Lock()
	delete(e.open, trade.Symbol)
	e.closed = append(e.closed, trade)
	e.mu.Unlock()

	e.tk.Notifier.TradeExit(trade)
	if err := e.store.SaveTrade(e.ctx, trade); err != nil {
		logger.Warn("Ошибка сохранения сделки", zap.Error(err))
	}
}

// tryEnter проводит сигнал через фильтры и исполняет вход
func (e *Engine) tryEnter(strategyName string, sig *Signal, closeTime time.Time) {
	e.mu.Lock()
	if e.open[sig.Symbol] != nil {
		e.mu.Unlock()
		logger.Debug("Сигнал пропущен: по символу уже открыта сделка",
			zap.String("symbol", sig.Symbol), zap.String("strategy", strategyName))
		return
	}
	e.mu.Unlock()

	if !e.trend.Allows(sig.Symbol, sig.Direction) {
		return
	}

	entry := sig.Candle.Close
	stop := e.stopPrice(sig)
	target := e.targetPrice(sig, entry, stop)

	units, riskAmount := e.riskMgr.CalculatePositionSize(sig.Symbol, entry, stop)
	if ok, reason := e.riskMgr.CanPlaceTrade(sig.Symbol, riskAmount, closeTime); !ok {
		logger.Info("Вход отклонен лимитами риска",
			zap.String("symbol", sig.Symbol),
			zap.String("strategy", strategyName),
			zap.String("reason", reason))
		return
	}

	ok, msg, details := e.broker.PlaceMarketOrder(e.ctx, sig.Symbol, sig.Direction, units, stop, target)
	if !ok {
		e.tk.Notifier.Error("Ошибка размещения ордера: "+msg, nil)
		return
	}

	// Уровень потрачен на вход и больше не должен давать установок
	sig.Level.Active = false

	trade := models.NewTrade(sig.Symbol, sig.Direction, strategyName, entry, stop, target, units, sig.Level)
	trade.Status = models.TradeOpen
	trade.EntryTime = closeTime
	if details != nil {
		trade.BrokerOrderID = details.OrderID
		if details.AvgPrice > 0 {
			trade.EntryPrice = details.AvgPrice
		}
	}

	e.riskMgr.RegisterTrade(trade)

	e.mu.Lock()
	e.open[sig.Symbol] = trade
	e.mu.Unlock()

	e.tk.Notifier.TradeEntry(trade)
	if err := e.store.SaveTrade(e.ctx, trade); err != nil {
		logger.Warn("Ошибка сохранения сделки", zap.Error(err))
	}
}

// stopPrice считает стоп-лосс сигнала: от уровня или от худшего
// экстремума свечей ретеста, с буфером как долей цены
func (e *Engine) stopPrice(sig *Signal) float64 {
	buffer := e.cfg.StopLoss.Buffer
	if sig.Direction == models.Long {
		base := sig.Level.ZoneLow
		if e.cfg.StopLoss.Type == "candle" {
			base = retestLow(sig)
		}
		return base * (1 - buffer)
	}
	base := sig.Level.ZoneHigh
	if e.cfg.StopLoss.Type == "candle" {
		base = retestHigh(sig)
	}
	return base * (1 + buffer)
}

// retestLow возвращает минимальный хвост среди свечей ретеста и
// подтверждающей свечи
func retestLow(sig *Signal) float64 {
	low := sig.Candle.Low
	for _, c := range sig.Retest {
		if c.Low < low {
			low = c.Low
		}
	}
	return low
}

// retestHigh возвращает максимальный хвост среди свечей ретеста и
// подтверждающей свечи
func retestHigh(sig *Signal) float64 {
	high := sig.Candle.High
	for _, c := range sig.Retest {
		if c.High > high {
			high = c.High
		}
	}
	return high
}

// targetPrice считает цель как кратное риска. Режим next_level
// использует фиксированное кратное 2R.
func (e *Engine) targetPrice(sig *Signal, entry, stop float64) float64 {
	ratio := e.cfg.TakeProfit.RiskRewardRatio
	if e.cfg.TakeProfit.Type == "next_level" {
		ratio = 2.0
	}
	if sig.Direction == models.Long {
		return entry + ratio*(entry-stop)
	}
	return entry - ratio*(stop-entry)
}

// OpenTrades возвращает открытые сделки
func (e *Engine) OpenTrades() []*models.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.Trade, 0, len(e.open))
	for _, tr := range e.open {
		out = append(out, tr)
	}
	return out
}

// ClosedTrades возвращает завершенные сделки
func (e *Engine) ClosedTrades() []*models.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.Trade, len(e.closed))
	copy(out, e.closed)
	return out
}

// ResetDaily публикует итоги дня и сбрасывает суточное состояние
// стратегий. Вызывается планировщиком на границе суток.
func (e *Engine) ResetDaily(at time.Time) {
	trades, pnl := e.riskMgr.DailySummary(at)
	e.tk.Notifier.DailySummary(at.Format("2006-01-02"), trades, pnl)

	for _, s := range e.Strategies() {
		s.ResetDaily()
	}
	logger.Info("Суточный сброс выполнен", zap.String("date", at.Format("2006-01-02")))
}
