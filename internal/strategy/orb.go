package strategy

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

// orbState суточное состояние символа: накопленный открывающий
// диапазон и машины уровней
type orbState struct {
	day       string
	high      float64
	low       float64
	haveRange bool
	built     bool
	levels    []*models.Level
	trackers  []*levelTracker
}

// ORBStrategy стратегия пробоя открывающего диапазона: максимум и
// минимум первых минут сессии становятся уровнями дня
type ORBStrategy struct {
	cfg config.ORBConfig
	tk  *Toolkit

	mu    sync.Mutex
	state map[string]*orbState
}

// NewORBStrategy создает стратегию открывающего диапазона
func NewORBStrategy(cfg config.ORBConfig, tk *Toolkit) *ORBStrategy {
	return &ORBStrategy{
		cfg:   cfg,
		tk:    tk,
		state: make(map[string]*orbState),
	}
}

func (s *ORBStrategy) Name() string {
	return "orb"
}

func (s *ORBStrategy) OnCandle(candle *models.Candle) []*Signal {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := candle.OpenTime.UTC().Format("2006-01-02")
	st := s.state[candle.Symbol]
	if st == nil || st.day != day {
		s.dropLevelsLocked(st)
		st = &orbState{day: day}
		s.state[candle.Symbol] = st
	}

	sessionOpen := s.tk.Session.Open(candle.OpenTime)
	windowEnd := sessionOpen.Add(time.Duration(s.cfg.Timeframe) * time.Minute)
	candleEnd := candle.OpenTime.Add(time.Duration(candle.Interval) * time.Minute)

	// Свеча целиком внутри окна открывающего диапазона: накапливаем
	if !candle.OpenTime.Before(sessionOpen) && !candleEnd.After(windowEnd) {
		if !st.haveRange {
			st.high, st.low = candle.High, candle.Low
			st.haveRange = true
		} else {
			if candle.High > st.high {
				st.high = candle.High
			}
			if candle.Low < st.low {
				st.low = candle.Low
			}
		}
		return nil
	}

	if !st.built && st.haveRange && !candle.OpenTime.Before(windowEnd) {
		s.buildLevelsLocked(candle.Symbol, st, windowEnd)
	}

	var signals []*Signal
	for _, tr := range st.trackers {
		if sig := tr.Advance(candle); sig != nil {
			signals = append(signals, sig)
		}
	}
	return signals
}

// buildLevelsLocked публикует ORH и ORL как уровни дня
func (s *ORBStrategy) buildLevelsLocked(symbol string, st *orbState, at time.Time) {
	orh := models.NewLevel(symbol, st.high, models.OpeningRangeHigh, at, "Максимум открывающего диапазона")
	orl := models.NewLevel(symbol, st.low, models.OpeningRangeLow, at, "Минимум открывающего диапазона")

	for _, level := range []*models.Level{orh, orl} {
		s.tk.Registry.Add(level)
		s.tk.Feed.WatchLevel(symbol, level.Price)
		s.tk.Notifier.LevelDetected(level)
		st.levels = append(st.levels, level)
		st.trackers = append(st.trackers, newLevelTracker(level,
			s.cfg.BreakoutThreshold, s.cfg.RetestThreshold, s.cfg.ConfirmationCandles))
	}
	st.built = true

	logger.Info("Открывающий диапазон зафиксирован",
		zap.String("symbol", symbol),
		zap.Float64("high", st.high),
		zap.Float64("low", st.low))
}

// dropLevelsLocked снимает уровни прошедшего дня
func (s *ORBStrategy) dropLevelsLocked(st *orbState) {
	if st == nil {
		return
	}
	for _, level := range st.levels {
		level.Active = false
		s.tk.Registry.Remove(level)
		s.tk.Feed.UnwatchLevel(level.Symbol, level.Price)
	}
}

// ResetDaily снимает уровни всех символов; новый диапазон будет
// накоплен со следующей сессии
func (s *ORBStrategy) ResetDaily() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for symbol, st := range s.state {
		s.dropLevelsLocked(st)
		delete(s.state, symbol)
	}
}
