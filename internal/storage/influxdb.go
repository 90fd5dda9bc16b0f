package storage

import (
	"context"
	"fmt"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/pkg/models"
)

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBStorage{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveCandle сохраняет закрытую свечу
func (s *InfluxDBStorage) SaveCandle(ctx context.Context, candle *models.Candle) error {
	point := influxdb2.NewPoint(
		"candles",
		map[string]string{
			"symbol":   candle.Symbol,
			"interval": strconv.Itoa(candle.Interval),
		},
		map[string]interface{}{
			"open":   candle.Open,
			"high":   candle.High,
			"low":    candle.Low,
			"close":  candle.Close,
			"volume": candle.Volume,
		},
		candle.OpenTime,
	)
	s.writeAPI.WritePoint(point)
	return nil
}

// SaveLevel сохраняет обнаруженный уровень
func (s *InfluxDBStorage) SaveLevel(ctx context.Context, level *models.Level) error {
	point := influxdb2.NewPoint(
		"levels",
		map[string]string{
			"symbol": level.Symbol,
			"type":   string(level.Type),
		},
		map[string]interface{}{
			"price":     level.Price,
			"zone_high": level.ZoneHigh,
			"zone_low":  level.ZoneLow,
			"active":    level.Active,
		},
		level.CreatedAt,
	)
	s.writeAPI.WritePoint(point)
	return nil
}

// SaveTrade сохраняет сделку. Открытая сделка пишется без результата,
// закрытая — с ценой выхода и P&L.
func (s *InfluxDBStorage) SaveTrade(ctx context.Context, trade *models.Trade) error {
	fields := map[string]interface{}{
		"id":          trade.ID,
		"entry_price": trade.EntryPrice,
		"stop_loss":   trade.StopLoss,
		"take_profit": trade.TakeProfit,
		"quantity":    trade.Quantity,
		"status":      string(trade.Status),
	}
	if pl, ok := trade.ProfitLossAmount(); ok {
		fields["exit_price"] = trade.ExitPrice
		fields["pl"] = pl
		fields["result"] = string(trade.Result)
	}

	point := influxdb2.NewPoint(
		"trades",
		map[string]string{
			"symbol":    trade.Symbol,
			"strategy":  trade.StrategyName,
			"direction": string(trade.Direction),
		},
		fields,
		trade.EntryTime,
	)
	s.writeAPI.WritePoint(point)
	return nil
}
