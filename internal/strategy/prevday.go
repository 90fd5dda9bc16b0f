package strategy

import (
	"sync"

	"go.uber.org/zap"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

type prevDayState struct {
	day      string
	levels   []*models.Level
	trackers []*levelTracker
}

// PrevDayStrategy стратегия максимума и минимума предыдущей сессии:
// PDH и PDL строятся из истории закрытых свечей
type PrevDayStrategy struct {
	cfg config.PrevDayConfig
	tk  *Toolkit

	mu    sync.Mutex
	state map[string]*prevDayState
}

// NewPrevDayStrategy создает стратегию уровней предыдущего дня
func NewPrevDayStrategy(cfg config.PrevDayConfig, tk *Toolkit) *PrevDayStrategy {
	return &PrevDayStrategy{
		cfg:   cfg,
		tk:    tk,
		state: make(map[string]*prevDayState),
	}
}

func (s *PrevDayStrategy) Name() string {
	return "prev_day"
}

func (s *PrevDayStrategy) OnCandle(candle *models.Candle) []*Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := candle.OpenTime.UTC().Format("2006-01-02")
	st := s.state[candle.Symbol]
	if st == nil || st.day != day {
		s.dropLevelsLocked(st)
		st = &prevDayState{day: day}
		s.state[candle.Symbol] = st
		s.buildLevelsLocked(candle, st)
	}

	var signals []*Signal
	for _, tr := range st.trackers {
		if sig := tr.Advance(candle); sig != nil {
			signals = append(signals, sig)
		}
	}
	return signals
}

// buildLevelsLocked ищет в истории последний день до текущего и строит
// PDH/PDL по его экстремумам
func (s *PrevDayStrategy) buildLevelsLocked(candle *models.Candle, st *prevDayState) {
	history := s.tk.Feed.GetCandles(candle.Symbol, s.tk.ExecInterval, 0)
	if len(history) == 0 {
		logger.Warn("Нет истории для уровней предыдущего дня",
			zap.String("symbol", candle.Symbol))
		return
	}

	var high, low float64
	var prevDay string
	found := false

	// История упорядочена по времени: идем с конца до первого дня,
	// отличного от текущего
	for i := len(history) - 1; i >= 0; i-- {
		c := history[i]
		d := c.OpenTime.UTC().Format("2006-01-02")
		if d == st.day {
			continue
		}
		if !found {
			prevDay = d
			high, low = c.High, c.Low
			found = true
			continue
		}
		if d != prevDay {
			break
		}
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}

	if !found {
		logger.Warn("В истории нет завершенного предыдущего дня",
			zap.String("symbol", candle.Symbol))
		return
	}

	pdh := models.NewLevel(candle.Symbol, high, models.PreviousDayHigh, candle.OpenTime, "Максимум предыдущего дня")
	pdl := models.NewLevel(candle.Symbol, low, models.PreviousDayLow, candle.OpenTime, "Минимум предыдущего дня")

	for _, level := range []*models.Level{pdh, pdl} {
		s.tk.Registry.Add(level)
		s.tk.Feed.WatchLevel(candle.Symbol, level.Price)
		s.tk.Notifier.LevelDetected(level)
		st.levels = append(st.levels, level)
		st.trackers = append(st.trackers, newLevelTracker(level,
			s.cfg.BreakoutThreshold, s.cfg.RetestThreshold, s.cfg.ConfirmationCandles))
	}

	logger.Info("Уровни предыдущего дня построены",
		zap.String("symbol", candle.Symbol),
		zap.String("prev_day", prevDay),
		zap.Float64("pdh", high),
		zap.Float64("pdl", low))
}

func (s *PrevDayStrategy) dropLevelsLocked(st *prevDayState) {
	if st == nil {
		return
	}
	for _, level := range st.levels {
		level.Active = false
		s.tk.Registry.Remove(level)
		s.tk.Feed.UnwatchLevel(level.Symbol, level.Price)
	}
}

// ResetDaily снимает уровни; новые будут построены на первой свече
// следующего дня
func (s *PrevDayStrategy) ResetDaily() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for symbol, st := range s.state {
		s.dropLevelsLocked(st)
		delete(s.state, symbol)
	}
}
