package strategy

import (
	"go.uber.org/zap"

	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

// Signal подтвержденная установка пробоя и ретеста
type Signal struct {
	Symbol    string
	Direction models.Direction
	Level     *models.Level
	Candle    *models.Candle   // подтверждающая свеча
	Retest    []*models.Candle // свечи, касавшиеся окна ретеста
}

type trackerState int

const (
	stateArmed trackerState = iota
	stateBrokeUp
	stateBrokeDown
	stateRetestUp
	stateRetestDown
	stateDone
)

// levelTracker машина состояний пробоя и ретеста одного уровня.
// Пробой считается по закрытию; касание окна ретеста и отмена — по
// хвосту свечи. Гистерезис отмены вдвое шире окна ретеста, чтобы
// колебание внутри окна не сбрасывало установку. Отмена обнуляет
// только накопленные свечи ретеста: пробой остается, и ретест может
// начаться заново без нового пробоя.
type levelTracker struct {
	level *models.Level

	breakoutThreshold   float64
	retestThreshold     float64
	confirmationCandles int

	state         trackerState
	retestCandles []*models.Candle
}

func newLevelTracker(level *models.Level, breakoutThreshold, retestThreshold float64, confirmationCandles int) *levelTracker {
	return &levelTracker{
		level:               level,
		breakoutThreshold:   breakoutThreshold,
		retestThreshold:     retestThreshold,
		confirmationCandles: confirmationCandles,
	}
}

// Advance обрабатывает закрытую свечу. Возвращает сигнал, когда ретест
// подтвержден, иначе nil.
func (t *levelTracker) Advance(candle *models.Candle) *Signal {
	if t.state == stateDone || !t.level.Active {
		return nil
	}

	switch t.state {
	case stateArmed:
		t.advanceArmed(candle)
	case stateBrokeUp, stateRetestUp:
		return t.advanceLong(candle)
	case stateBrokeDown, stateRetestDown:
		return t.advanceShort(candle)
	}
	return nil
}

func (t *levelTracker) advanceArmed(candle *models.Candle) {
	switch {
	case t.level.IsBrokenAbove(candle.Close, t.breakoutThreshold):
		t.state = stateBrokeUp
		t.level.AddBreak(candle.OpenTime, candle.Close, models.CrossAbove)
		logger.Info("Пробой уровня вверх",
			zap.String("symbol", t.level.Symbol),
			zap.String("type", string(t.level.Type)),
			zap.Float64("level", t.level.ZoneHigh),
			zap.Float64("close", candle.Close))
	case t.level.IsBrokenBelow(candle.Close, t.breakoutThreshold):
		t.state = stateBrokeDown
		t.level.AddBreak(candle.OpenTime, candle.Close, models.CrossBelow)
		logger.Info("Пробой уровня вниз",
			zap.String("symbol", t.level.Symbol),
			zap.String("type", string(t.level.Type)),
			zap.Float64("level", t.level.ZoneLow),
			zap.Float64("close", candle.Close))
	}
}

// advanceLong ведет установку после пробоя вверх
func (t *levelTracker) advanceLong(candle *models.Candle) *Signal {
	boundary := t.level.ZoneHigh
	cancel := boundary - boundary*2*t.retestThreshold

	// Хвост глубоко под уровнем отменяет ретест
	if candle.Low < cancel {
		if t.state == stateRetestUp {
			t.cancelRetest(candle, stateBrokeUp)
		}
		return nil
	}

	if t.level.IsRetestingFromAbove(candle.Low, t.retestThreshold) {
		if t.state == stateBrokeUp {
			t.state = stateRetestUp
			t.level.AddRetest(candle.OpenTime, candle.Low, models.CrossBelow)
			logger.Info("Ретест уровня сверху",
				zap.String("symbol", t.level.Symbol),
				zap.Float64("level", boundary),
				zap.Float64("low", candle.Low))
		}
		t.retestCandles = append(t.retestCandles, candle)
	}

	if t.state == stateRetestUp && len(t.retestCandles) >= t.confirmationCandles && candle.Close > boundary {
		t.state = stateDone
		return &Signal{
			Symbol:    t.level.Symbol,
			Direction: models.Long,
			Level:     t.level,
			Candle:    candle,
			Retest:    t.retestCandles,
		}
	}
	return nil
}

// advanceShort ведет установку после пробоя вниз
func (t *levelTracker) advanceShort(candle *models.Candle) *Signal {
	boundary := t.level.ZoneLow
	cancel := boundary + boundary*2*t.retestThreshold

	if candle.High > cancel {
		if t.state == stateRetestDown {
			t.cancelRetest(candle, stateBrokeDown)
		}
		return nil
	}

	if t.level.IsRetestingFromBelow(candle.High, t.retestThreshold) {
		if t.state == stateBrokeDown {
			t.state = stateRetestDown
			t.level.AddRetest(candle.OpenTime, candle.High, models.CrossAbove)
			logger.Info("Ретест уровня снизу",
				zap.String("symbol", t.level.Symbol),
				zap.Float64("level", boundary),
				zap.Float64("high", candle.High))
		}
		t.retestCandles = append(t.retestCandles, candle)
	}

	if t.state == stateRetestDown && len(t.retestCandles) >= t.confirmationCandles && candle.Close < boundary {
		t.state = stateDone
		return &Signal{
			Symbol:    t.level.Symbol,
			Direction: models.Short,
			Level:     t.level,
			Candle:    candle,
			Retest:    t.retestCandles,
		}
	}
	return nil
}

// cancelRetest сбрасывает накопленный ретест, сохраняя пробой
func (t *levelTracker) cancelRetest(candle *models.Candle, breakState trackerState) {
	logger.Info("Ретест отменен: хвост свечи ушел от уровня",
		zap.String("symbol", t.level.Symbol),
		zap.String("type", string(t.level.Type)),
		zap.Float64("low", candle.Low),
		zap.Float64("high", candle.High))
	t.state = breakState
	t.retestCandles = nil
}
