package storage

import (
	"context"

	"github.com/skalibog/brtb/pkg/models"
)

// NoopStorage заглушка хранилища: все операции успешны и ничего не пишут
type NoopStorage struct{}

// NewNoopStorage создает заглушку хранилища
func NewNoopStorage() *NoopStorage {
	return &NoopStorage{}
}

func (s *NoopStorage) SaveCandle(ctx context.Context, candle *models.Candle) error {
	return nil
}

func (s *NoopStorage) SaveLevel(ctx context.Context, level *models.Level) error {
	return nil
}

func (s *NoopStorage) SaveTrade(ctx context.Context, trade *models.Trade) error {
	return nil
}

func (s *NoopStorage) Close() {}
