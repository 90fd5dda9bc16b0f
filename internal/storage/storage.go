package storage

import (
	"context"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/pkg/models"
)

// Storage определяет интерфейс хранения рыночных и торговых данных
type Storage interface {
	SaveCandle(ctx context.Context, candle *models.Candle) error
	SaveLevel(ctx context.Context, level *models.Level) error
	SaveTrade(ctx context.Context, trade *models.Trade) error
	Close()
}

// New создает хранилище по конфигурации. Пустой URL отключает
// хранение: возвращается заглушка.
func New(cfg config.StorageConfig) (Storage, error) {
	if cfg.URL == "" {
		return NewNoopStorage(), nil
	}
	return NewInfluxDBStorage(cfg)
}
