package levels

import (
	"sync"

	"go.uber.org/zap"

	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

// Registry общий реестр уровней по символам. Стратегии публикуют сюда
// свои уровни; интерфейс и хранилище читают реестр для отображения и
// записи.
type Registry struct {
	mu     sync.RWMutex
	levels map[string][]*models.Level
}

// NewRegistry создает пустой реестр уровней
func NewRegistry() *Registry {
	return &Registry{
		levels: make(map[string][]*models.Level),
	}
}

// Add добавляет уровень в реестр
func (r *Registry) Add(level *models.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels[level.Symbol] = append(r.levels[level.Symbol], level)
	logger.Debug("Уровень добавлен в реестр",
		zap.String("symbol", level.Symbol),
		zap.String("type", string(level.Type)),
		zap.Float64("price", level.Price))
}

// Remove удаляет уровень из реестра
func (r *Registry) Remove(level *models.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.levels[level.Symbol]
	for i, l := range list {
		if l == level {
			r.levels[level.Symbol] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Get возвращает уровни символа
func (r *Registry) Get(symbol string) []*models.Level {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Level, len(r.levels[symbol]))
	copy(out, r.levels[symbol])
	return out
}

// GetActive возвращает только активные уровни символа
func (r *Registry) GetActive(symbol string) []*models.Level {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Level
	for _, l := range r.levels[symbol] {
		if l.Active {
			out = append(out, l)
		}
	}
	return out
}

// GetByType возвращает уровни символа заданного типа
func (r *Registry) GetByType(symbol string, levelType models.LevelType) []*models.Level {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Level
	for _, l := range r.levels[symbol] {
		if l.Type == levelType {
			out = append(out, l)
		}
	}
	return out
}

// RemoveByType удаляет уровни символа заданного типа. Используется при
// пересканировании и суточном сбросе.
func (r *Registry) RemoveByType(symbol string, levelType models.LevelType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.levels[symbol]
	kept := list[:0]
	removed := 0
	for _, l := range list {
		if l.Type == levelType {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	r.levels[symbol] = kept
	return removed
}

// All возвращает все уровни по всем символам
func (r *Registry) All() map[string][]*models.Level {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]*models.Level, len(r.levels))
	for symbol, list := range r.levels {
		cp := make([]*models.Level, len(list))
		copy(cp, list)
		out[symbol] = cp
	}
	return out
}
