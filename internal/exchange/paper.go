package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

// paperPosition открытая бумажная позиция
type paperPosition struct {
	direction models.Direction
	quantity  int
	price     float64
}

// PaperBroker брокер для тестового прогона без реальных ордеров.
// Исторических данных у него нет, ордера исполняются мгновенно по
// последней известной цене символа.
type PaperBroker struct {
	mu          sync.Mutex
	equity      float64
	orderSeq    int
	lastPrice   map[string]float64
	positions   map[string]*paperPosition
	subscribers map[string]func(*models.Candle)

	// FailOrders заставляет брокера отклонять все ордера (для проверки
	// путей обработки неуспешных вызовов)
	FailOrders bool
}

// NewPaperBroker создает бумажного брокера с заданным капиталом
func NewPaperBroker(equity float64) *PaperBroker {
	return &PaperBroker{
		equity:      equity,
		lastPrice:   make(map[string]float64),
		positions:   make(map[string]*paperPosition),
		subscribers: make(map[string]func(*models.Candle)),
	}
}

// Name возвращает имя брокера
func (b *PaperBroker) Name() string {
	return "paper"
}

// GetHistoricalCandles возвращает пустую историю: бумажный брокер
// начинает без бэкфилла
func (b *PaperBroker) GetHistoricalCandles(ctx context.Context, symbol string, interval int, start, end time.Time, limit int) ([]*models.Candle, error) {
	return nil, nil
}

// SubscribeMarketData регистрирует подписчика; свечи подаются через Push
func (b *PaperBroker) SubscribeMarketData(symbol string, interval int, callback func(*models.Candle)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[subKey(symbol, interval)] = callback
	return nil
}

// UnsubscribeMarketData удаляет подписчика
func (b *PaperBroker) UnsubscribeMarketData(symbol string, interval int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, subKey(symbol, interval))
	return nil
}

// Push подает свечу подписчику, как это делал бы поток биржи
func (b *PaperBroker) Push(candle *models.Candle) {
	b.mu.Lock()
	b.lastPrice[candle.Symbol] = candle.Close
	callback := b.subscribers[subKey(candle.Symbol, candle.Interval)]
	b.mu.Unlock()

	if callback != nil {
		callback(candle)
	}
}

// PlaceMarketOrder мгновенно исполняет рыночный ордер по последней цене
func (b *PaperBroker) PlaceMarketOrder(ctx context.Context, symbol string, direction models.Direction, quantity int, stopLoss, takeProfit float64) (bool, string, *OrderDetails) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailOrders {
		return false, "ордер отклонен бумажным брокером", nil
	}
	if quantity <= 0 {
		return false, fmt.Sprintf("некорректное количество: %d", quantity), nil
	}

	price, known := b.lastPrice[symbol]
	if !known {
		return false, fmt.Sprintf("нет последней цены для %s", symbol), nil
	}
	b.orderSeq++
	b.positions[symbol] = &paperPosition{
		direction: direction,
		quantity:  quantity,
		price:     price,
	}

	logger.Info("Бумажный ордер исполнен",
		zap.String("symbol", symbol),
		zap.String("direction", string(direction)),
		zap.Int("quantity", quantity),
		zap.Float64("price", price))

	return true, "", &OrderDetails{
		OrderID:  fmt.Sprintf("paper-%d", b.orderSeq),
		AvgPrice: price,
	}
}

// ClosePosition закрывает бумажную позицию и применяет P&L к капиталу
func (b *PaperBroker) ClosePosition(ctx context.Context, symbol string, quantity int) (bool, string, *OrderDetails) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailOrders {
		return false, "закрытие отклонено бумажным брокером", nil
	}

	pos, ok := b.positions[symbol]
	if !ok {
		return false, fmt.Sprintf("нет открытой позиции по %s", symbol), nil
	}

	price := b.lastPrice[symbol]
	closeQty := pos.quantity
	if quantity > 0 && quantity < closeQty {
		closeQty = quantity
	}

	pl := (price - pos.price) * float64(closeQty)
	if pos.direction == models.Short {
		pl = -pl
	}
	b.equity += pl

	pos.quantity -= closeQty
	if pos.quantity == 0 {
		delete(b.positions, symbol)
	}

	b.orderSeq++
	return true, "", &OrderDetails{
		OrderID:  fmt.Sprintf("paper-%d", b.orderSeq),
		AvgPrice: price,
	}
}

// GetAccountInfo возвращает текущий бумажный капитал
func (b *PaperBroker) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &AccountInfo{
		Equity:      b.equity,
		BuyingPower: b.equity,
	}, nil
}
