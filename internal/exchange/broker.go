package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/pkg/models"
)

// OrderDetails детали исполненного ордера
type OrderDetails struct {
	OrderID  string
	AvgPrice float64
}

// AccountInfo сводка по торговому счету
type AccountInfo struct {
	Equity      float64
	BuyingPower float64
}

// Broker интерфейс брокера. Ядро считает все вызовы потенциально
// неуспешными и никогда не предполагает, что вызов удался.
type Broker interface {
	Name() string

	// GetHistoricalCandles возвращает исторические свечи для бэкфилла
	GetHistoricalCandles(ctx context.Context, symbol string, interval int, start, end time.Time, limit int) ([]*models.Candle, error)

	// SubscribeMarketData подписывает на поток свечей символа и интервала
	SubscribeMarketData(symbol string, interval int, callback func(*models.Candle)) error

	// UnsubscribeMarketData отменяет подписку
	UnsubscribeMarketData(symbol string, interval int) error

	// PlaceMarketOrder размещает рыночный ордер. Неуспех возвращается
	// флагом и сообщением, не ошибкой.
	PlaceMarketOrder(ctx context.Context, symbol string, direction models.Direction, quantity int, stopLoss, takeProfit float64) (bool, string, *OrderDetails)

	// ClosePosition закрывает позицию по символу (quantity 0 = целиком)
	ClosePosition(ctx context.Context, symbol string, quantity int) (bool, string, *OrderDetails)

	// GetAccountInfo возвращает информацию о счете
	GetAccountInfo(ctx context.Context) (*AccountInfo, error)
}

// NewBroker создает брокера по имени из конфигурации.
// Неизвестное имя — фатальная ошибка конфигурации.
func NewBroker(cfg config.BrokerConfig) (Broker, error) {
	switch cfg.Name {
	case "binance":
		return NewBinanceBroker(cfg)
	case "paper":
		return NewPaperBroker(100000), nil
	default:
		return nil, fmt.Errorf("неизвестный брокер: %q", cfg.Name)
	}
}
