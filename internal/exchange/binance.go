package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

// BinanceBroker брокер на основе фьючерсного API Binance
type BinanceBroker struct {
	client *futures.Client

	mu    sync.Mutex
	stops map[string]chan struct{} // ключ: symbol/interval
}

// NewBinanceBroker создает нового брокера Binance
func NewBinanceBroker(cfg config.BrokerConfig) (*BinanceBroker, error) {
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.Testnet {
		futures.UseTestnet = true
	}

	return &BinanceBroker{
		client: client,
		stops:  make(map[string]chan struct{}),
	}, nil
}

// Name возвращает имя брокера
func (b *BinanceBroker) Name() string {
	return "binance"
}

// GetHistoricalCandles получает исторические свечи
func (b *BinanceBroker) GetHistoricalCandles(ctx context.Context, symbol string, interval int, start, end time.Time, limit int) ([]*models.Candle, error) {
	binanceInterval, err := toBinanceInterval(interval)
	if err != nil {
		return nil, err
	}

	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(binanceInterval).
		StartTime(start.UnixMilli()).
		EndTime(end.UnixMilli()).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	candles := make([]*models.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := klineToCandle(symbol, interval, k)
		if err != nil {
			logger.Warn("Пропущена некорректная свеча", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// SubscribeMarketData подписывает на поток свечей через websocket
func (b *BinanceBroker) SubscribeMarketData(symbol string, interval int, callback func(*models.Candle)) error {
	binanceInterval, err := toBinanceInterval(interval)
	if err != nil {
		return err
	}

	handler := func(event *futures.WsKlineEvent) {
		candle, err := wsKlineToCandle(symbol, interval, event)
		if err != nil {
			logger.Warn("Некорректное событие свечи", zap.String("symbol", symbol), zap.Error(err))
			return
		}
		callback(candle)
	}
	errHandler := func(err error) {
		logger.Error("Ошибка потока рыночных данных",
			zap.String("symbol", symbol), zap.Int("interval", interval), zap.Error(err))
	}

	_, stopC, err := futures.WsKlineServe(symbol, binanceInterval, handler, errHandler)
	if err != nil {
		return fmt.Errorf("ошибка подписки на %s %dm: %w", symbol, interval, err)
	}

	b.mu.Lock()
	b.stops[subKey(symbol, interval)] = stopC
	b.mu.Unlock()

	logger.Info("Подписка на рыночные данные",
		zap.String("symbol", symbol), zap.Int("interval", interval))
	return nil
}

// UnsubscribeMarketData отменяет подписку на поток свечей
func (b *BinanceBroker) UnsubscribeMarketData(symbol string, interval int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := subKey(symbol, interval)
	stopC, ok := b.stops[key]
	if !ok {
		return fmt.Errorf("нет подписки на %s %dm", symbol, interval)
	}
	close(stopC)
	delete(b.stops, key)
	return nil
}

// PlaceMarketOrder размещает рыночный ордер
func (b *BinanceBroker) PlaceMarketOrder(ctx context.Context, symbol string, direction models.Direction, quantity int, stopLoss, takeProfit float64) (bool, string, *OrderDetails) {
	side := futures.SideTypeBuy
	if direction == models.Short {
		side = futures.SideTypeSell
	}

	order, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.Itoa(quantity)).
		Do(ctx)
	if err != nil {
		return false, fmt.Sprintf("ошибка размещения ордера: %v", err), nil
	}

	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	details := &OrderDetails{
		OrderID:  strconv.FormatInt(order.OrderID, 10),
		AvgPrice: avgPrice,
	}

	logger.Info("Размещен рыночный ордер",
		zap.String("symbol", symbol),
		zap.String("direction", string(direction)),
		zap.Int("quantity", quantity),
		zap.String("order_id", details.OrderID))

	return true, "", details
}

// ClosePosition закрывает позицию рыночным ордером в обратную сторону
func (b *BinanceBroker) ClosePosition(ctx context.Context, symbol string, quantity int) (bool, string, *OrderDetails) {
	positions, err := b.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return false, fmt.Sprintf("ошибка получения позиции: %v", err), nil
	}

	var posAmt float64
	for _, p := range positions {
		if p.Symbol == symbol {
			posAmt, _ = strconv.ParseFloat(p.PositionAmt, 64)
			break
		}
	}
	if posAmt == 0 {
		return false, fmt.Sprintf("нет открытой позиции по %s", symbol), nil
	}

	side := futures.SideTypeSell
	closeQty := posAmt
	if posAmt < 0 {
		side = futures.SideTypeBuy
		closeQty = -posAmt
	}
	if quantity > 0 && float64(quantity) < closeQty {
		closeQty = float64(quantity)
	}

	order, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatFloat(closeQty, 'f', -1, 64)).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return false, fmt.Sprintf("ошибка закрытия позиции: %v", err), nil
	}

	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	return true, "", &OrderDetails{
		OrderID:  strconv.FormatInt(order.OrderID, 10),
		AvgPrice: avgPrice,
	}
}

// GetAccountInfo возвращает информацию о счете
func (b *BinanceBroker) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения информации о счете: %w", err)
	}

	equity, _ := strconv.ParseFloat(account.TotalMarginBalance, 64)
	available, _ := strconv.ParseFloat(account.AvailableBalance, 64)

	return &AccountInfo{
		Equity:      equity,
		BuyingPower: available,
	}, nil
}

func subKey(symbol string, interval int) string {
	return fmt.Sprintf("%s/%d", symbol, interval)
}

// toBinanceInterval переводит интервал в минутах в обозначение Binance
func toBinanceInterval(interval int) (string, error) {
	switch interval {
	case 1, 3, 5, 15, 30:
		return fmt.Sprintf("%dm", interval), nil
	case 60:
		return "1h", nil
	case 120:
		return "2h", nil
	case 240:
		return "4h", nil
	case 1440:
		return "1d", nil
	default:
		return "", fmt.Errorf("неподдерживаемый интервал: %d минут", interval)
	}
}

// klineToCandle переводит историческую свечу Binance во внутреннюю модель
func klineToCandle(symbol string, interval int, k *futures.Kline) (*models.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("разбор open: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("разбор high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("разбор low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("разбор close: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("разбор volume: %w", err)
	}

	return &models.Candle{
		Symbol:   symbol,
		Interval: interval,
		OpenTime: time.UnixMilli(k.OpenTime),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
		Complete: true,
	}, nil
}

// wsKlineToCandle переводит websocket-событие во внутреннюю модель
func wsKlineToCandle(symbol string, interval int, event *futures.WsKlineEvent) (*models.Candle, error) {
	k := event.Kline
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("разбор open: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("разбор high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("разбор low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("разбор close: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("разбор volume: %w", err)
	}

	return &models.Candle{
		Symbol:   symbol,
		Interval: interval,
		OpenTime: time.UnixMilli(k.StartTime),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
		Complete: k.IsFinal,
	}, nil
}
