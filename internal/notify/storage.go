package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/skalibog/brtb/internal/storage"
	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

// StorageNotifier записывает обнаруженные уровни в хранилище.
// Сделки движок сохраняет сам, остальные события здесь не пишутся.
type StorageNotifier struct {
	ctx   context.Context
	store storage.Storage
}

// NewStorageNotifier создает уведомитель, пишущий уровни в хранилище
func NewStorageNotifier(ctx context.Context, store storage.Storage) *StorageNotifier {
	return &StorageNotifier{ctx: ctx, store: store}
}

func (n *StorageNotifier) TradeEntry(trade *models.Trade) {}

func (n *StorageNotifier) TradeExit(trade *models.Trade) {}

func (n *StorageNotifier) LevelDetected(level *models.Level) {
	if err := n.store.SaveLevel(n.ctx, level); err != nil {
		logger.Warn("Ошибка сохранения уровня",
			zap.String("symbol", level.Symbol),
			zap.String("type", string(level.Type)),
			zap.Error(err))
	}
}

func (n *StorageNotifier) DailySummary(date string, trades int, pnl float64) {}

func (n *StorageNotifier) Error(message string, err error) {}
