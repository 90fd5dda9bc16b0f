package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Direction направление сделки
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// TradeStatus статус сделки
type TradeStatus string

const (
	TradePending   TradeStatus = "PENDING"
	TradeOpen      TradeStatus = "OPEN"
	TradeClosed    TradeStatus = "CLOSED"
	TradeCancelled TradeStatus = "CANCELLED"
	TradeRejected  TradeStatus = "REJECTED"
)

// TradeResult результат сделки
type TradeResult string

const (
	ResultWin       TradeResult = "WIN"
	ResultLoss      TradeResult = "LOSS"
	ResultBreakeven TradeResult = "BREAKEVEN"
	ResultUnknown   TradeResult = "UNKNOWN"
)

// PartialExit запись о частичном выходе из сделки
type PartialExit struct {
	Price    float64
	Quantity int
	Time     time.Time
	Reason   string
}

// Trade представляет сделку с деталями входа, выхода и результатом.
// Производные величины (риск, доходность, P&L) не хранятся, а всегда
// вычисляются по текущему состоянию.
type Trade struct {
	ID            string
	Symbol        string
	Direction     Direction
	StrategyName  string
	EntryPrice    float64
	StopLoss      float64
	TakeProfit    float64
	Quantity      int
	EntryTime     time.Time
	ExitPrice     float64
	ExitTime      time.Time
	Status        TradeStatus
	Result        TradeResult
	Level         *Level
	BrokerOrderID string
	Notes         string
	PartialExits  []PartialExit
}

// NewTrade создает новую сделку в статусе PENDING
func NewTrade(symbol string, direction Direction, strategyName string, entryPrice, stopLoss, takeProfit float64, quantity int, level *Level) *Trade {
	return &Trade{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Direction:    direction,
		StrategyName: strategyName,
		EntryPrice:   entryPrice,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		Quantity:     quantity,
		EntryTime:    time.Now(),
		Status:       TradePending,
		Result:       ResultUnknown,
		Level:        level,
	}
}

// IsOpen проверяет, открыта ли сделка
func (t *Trade) IsOpen() bool {
	return t.Status == TradeOpen
}

// IsClosed проверяет, закрыта ли сделка
func (t *Trade) IsClosed() bool {
	return t.Status == TradeClosed
}

// Risk возвращает риск на контракт (расстояние вход-стоп по направлению)
func (t *Trade) Risk() float64 {
	if t.Direction == Long {
		return t.EntryPrice - t.StopLoss
	}
	return t.StopLoss - t.EntryPrice
}

// Reward возвращает потенциальную доходность на контракт
func (t *Trade) Reward() float64 {
	if t.Direction == Long {
		return t.TakeProfit - t.EntryPrice
	}
	return t.EntryPrice - t.TakeProfit
}

// RiskRewardRatio возвращает соотношение риск/доходность
func (t *Trade) RiskRewardRatio() (float64, bool) {
	risk := t.Risk()
	if risk == 0 {
		return 0, false
	}
	ratio := t.Reward() / risk
	if ratio < 0 {
		ratio = -ratio
	}
	return ratio, true
}

// ExitedQuantity возвращает количество, закрытое частичными выходами
func (t *Trade) ExitedQuantity() int {
	total := 0
	for _, pe := range t.PartialExits {
		total += pe.Quantity
	}
	return total
}

// AddPartialExit записывает частичный выход. Суммарное частично закрытое
// количество никогда не превышает объем сделки.
func (t *Trade) AddPartialExit(price float64, quantity int, ts time.Time, reason string) error {
	if quantity <= 0 {
		return fmt.Errorf("некорректное количество частичного выхода: %d", quantity)
	}
	if t.ExitedQuantity()+quantity > t.Quantity {
		return fmt.Errorf("частичный выход %d превышает остаток позиции %d",
			quantity, t.Quantity-t.ExitedQuantity())
	}
	t.PartialExits = append(t.PartialExits, PartialExit{
		Price:    price,
		Quantity: quantity,
		Time:     ts,
		Reason:   reason,
	})
	return nil
}

// perUnitPL возвращает P&L на контракт для заданной цены выхода
func (t *Trade) perUnitPL(exitPrice float64) float64 {
	if t.Direction == Long {
		return exitPrice - t.EntryPrice
	}
	return t.EntryPrice - exitPrice
}

// ProfitLoss возвращает P&L на контракт по финальному выходу
func (t *Trade) ProfitLoss() (float64, bool) {
	if !t.IsClosed() {
		return 0, false
	}
	return t.perUnitPL(t.ExitPrice), true
}

// ProfitLossAmount возвращает совокупный P&L, взвешенный по частичным
// выходам и финальному выходу остатка позиции
func (t *Trade) ProfitLossAmount() (float64, bool) {
	if !t.IsClosed() {
		return 0, false
	}
	partial := 0.0
	for _, pe := range t.PartialExits {
		partial += t.perUnitPL(pe.Price) * float64(pe.Quantity)
	}
	remaining := t.Quantity - t.ExitedQuantity()
	return partial + t.perUnitPL(t.ExitPrice)*float64(remaining), true
}

// ProfitLossR возвращает P&L в единицах риска (R-multiple)
func (t *Trade) ProfitLossR() (float64, bool) {
	pl, ok := t.ProfitLoss()
	if !ok {
		return 0, false
	}
	risk := t.Risk()
	if risk == 0 {
		return 0, false
	}
	if risk < 0 {
		risk = -risk
	}
	return pl / risk, true
}

// Duration возвращает длительность сделки
func (t *Trade) Duration() (time.Duration, bool) {
	if !t.IsClosed() {
		return 0, false
	}
	return t.ExitTime.Sub(t.EntryTime), true
}

// Close переводит сделку в статус CLOSED с заданной ценой выхода.
// Закрытая сделка всегда имеет и цену, и время выхода.
func (t *Trade) Close(exitPrice float64, exitTime time.Time, reason string) {
	t.ExitPrice = exitPrice
	t.ExitTime = exitTime
	t.Status = TradeClosed
	t.Notes = reason

	pl := t.perUnitPL(exitPrice)
	switch {
	case pl > 0:
		t.Result = ResultWin
	case pl < 0:
		t.Result = ResultLoss
	default:
		t.Result = ResultBreakeven
	}
}

func (t *Trade) String() string {
	status := string(t.Status)
	if t.IsClosed() {
		status = fmt.Sprintf("%s (%s)", t.Status, t.Result)
	}
	return fmt.Sprintf("Сделка %s: %s %s (%s) - %s, вход=%.2f",
		t.ID[:8], t.Symbol, t.Direction, t.StrategyName, status, t.EntryPrice)
}
