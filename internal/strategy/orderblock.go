package strategy

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

// maxMoveSpan сколько свечей после кандидата учитывается при оценке
// импульса
const maxMoveSpan = 3

type obEntry struct {
	level   *models.Level
	tracker *levelTracker
	manual  bool
}

// OrderBlockStrategy стратегия ордер-блоков: последняя встречная свеча
// перед значимым импульсом становится зоной. Зоны находятся
// пересканированием истории и могут задаваться вручную.
type OrderBlockStrategy struct {
	cfg     config.OrderBlockConfig
	tk      *Toolkit
	symbols []string

	mu      sync.Mutex
	entries map[string][]*obEntry
}

// NewOrderBlockStrategy создает стратегию ордер-блоков
func NewOrderBlockStrategy(cfg config.OrderBlockConfig, tk *Toolkit, symbols []string) *OrderBlockStrategy {
	return &OrderBlockStrategy{
		cfg:     cfg,
		tk:      tk,
		symbols: symbols,
		entries: make(map[string][]*obEntry),
	}
}

func (s *OrderBlockStrategy) Name() string {
	return "order_block"
}

func (s *OrderBlockStrategy) OnCandle(candle *models.Candle) []*Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	var signals []*Signal
	for _, entry := range s.entries[candle.Symbol] {
		if sig := entry.tracker.Advance(candle); sig != nil {
			signals = append(signals, sig)
		}
	}
	return signals
}

// Rescan пересканирует историю всех символов и заменяет автоматические
// зоны; ручные зоны сохраняются
func (s *OrderBlockStrategy) Rescan() {
	for _, symbol := range s.symbols {
		s.rescanSymbol(symbol)
	}
}

func (s *OrderBlockStrategy) rescanSymbol(symbol string) {
	candles := s.tk.Feed.GetCandles(symbol, s.tk.ExecInterval, s.cfg.LookbackPeriod+maxMoveSpan)
	if len(candles) < 2 {
		return
	}

	bullish := s.findBlock(candles, true)
	bearish := s.findBlock(candles, false)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Снимаем прежние автоматические зоны
	kept := s.entries[symbol][:0]
	for _, entry := range s.entries[symbol] {
		if entry.manual {
			kept = append(kept, entry)
			continue
		}
		entry.level.Active = false
		s.tk.Registry.Remove(entry.level)
	}
	s.entries[symbol] = kept

	for _, level := range []*models.Level{bullish, bearish} {
		if level == nil {
			continue
		}
		s.addEntryLocked(symbol, level, false)
	}
}

// findBlock ищет самую свежую встречную свечу, после которой цена
// прошла значимое расстояние в направлении импульса
func (s *OrderBlockStrategy) findBlock(candles []*models.Candle, bullish bool) *models.Level {
	for i := len(candles) - 2; i >= 0; i-- {
		c := candles[i]
		if bullish && !c.IsBearish() {
			continue
		}
		if !bullish && !c.IsBullish() {
			continue
		}

		end := i + 1 + maxMoveSpan
		if end > len(candles) {
			end = len(candles)
		}

		moved := false
		for _, next := range candles[i+1 : end] {
			if bullish && (next.High-c.Close)/c.Close >= s.cfg.SignificantMove {
				moved = true
				break
			}
			if !bullish && (c.Close-next.Low)/c.Close >= s.cfg.SignificantMove {
				moved = true
				break
			}
		}
		if !moved {
			continue
		}

		levelType := models.BullishOrderBlock
		description := "Бычий ордер-блок"
		if !bullish {
			levelType = models.BearishOrderBlock
			description = "Медвежий ордер-блок"
		}
		mid := (c.High + c.Low) / 2
		return models.NewZoneLevel(c.Symbol, mid, c.High, c.Low, levelType, c.OpenTime, description)
	}
	return nil
}

// AddManualOrderBlock добавляет зону, заданную оператором
func (s *OrderBlockStrategy) AddManualOrderBlock(symbol string, zoneHigh, zoneLow float64, bullish bool) error {
	if !s.cfg.ManualInput {
		return fmt.Errorf("ручной ввод ордер-блоков отключен")
	}
	if zoneHigh <= zoneLow {
		return fmt.Errorf("верхняя граница зоны %.4f не выше нижней %.4f", zoneHigh, zoneLow)
	}

	levelType := models.BullishOrderBlock
	description := "Ручной бычий ордер-блок"
	if !bullish {
		levelType = models.BearishOrderBlock
		description = "Ручной медвежий ордер-блок"
	}
	mid := (zoneHigh + zoneLow) / 2
	level := models.NewZoneLevel(symbol, mid, zoneHigh, zoneLow, levelType, time.Now(), description)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.addEntryLocked(symbol, level, true)
	return nil
}

// addEntryLocked публикует зону и создает машину уровня
func (s *OrderBlockStrategy) addEntryLocked(symbol string, level *models.Level, manual bool) {
	s.tk.Registry.Add(level)
	s.tk.Notifier.LevelDetected(level)
	s.entries[symbol] = append(s.entries[symbol], &obEntry{
		level: level,
		// Порог пробоя зоны совпадает с порогом ретеста
		tracker: newLevelTracker(level,
			s.cfg.RetestThreshold, s.cfg.RetestThreshold, s.cfg.ConfirmationCandles),
		manual: manual,
	})

	logger.Info("Зона ордер-блока опубликована",
		zap.String("symbol", symbol),
		zap.String("type", string(level.Type)),
		zap.Float64("zone_high", level.ZoneHigh),
		zap.Float64("zone_low", level.ZoneLow),
		zap.Bool("manual", manual))
}

// ResetDaily пересканирует зоны на новый день
func (s *OrderBlockStrategy) ResetDaily() {
	s.Rescan()
}
