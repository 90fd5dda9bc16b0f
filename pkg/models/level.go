package models

import (
	"fmt"
	"time"
)

// LevelType тип ценового уровня
type LevelType string

const (
	OpeningRangeHigh  LevelType = "ORH"
	OpeningRangeLow   LevelType = "ORL"
	PreviousDayHigh   LevelType = "PDH"
	PreviousDayLow    LevelType = "PDL"
	BullishOrderBlock LevelType = "BOB"
	BearishOrderBlock LevelType = "BRB"
	CustomLevel       LevelType = "CUSTOM"
)

// CrossDirection направление пробоя или ретеста
type CrossDirection string

const (
	CrossAbove CrossDirection = "above"
	CrossBelow CrossDirection = "below"
)

// LevelEvent запись о пробое или ретесте уровня
type LevelEvent struct {
	Timestamp time.Time
	Price     float64
	Direction CrossDirection
}

// Level представляет ключевой ценовой уровень (или зону) для торговых решений.
// Сам уровень никогда не мутирует от цены: пробои и ретесты записывают
// стратегии явными вызовами AddBreak/AddRetest, когда их собственный
// автомат распознает событие.
type Level struct {
	Symbol      string
	Price       float64
	Type        LevelType
	CreatedAt   time.Time
	Description string
	ZoneHigh    float64
	ZoneLow     float64
	Active      bool
	Breaks      []LevelEvent
	Retests     []LevelEvent
}

// NewLevel создает новый точечный уровень (zone_low == zone_high == price)
func NewLevel(symbol string, price float64, levelType LevelType, createdAt time.Time, description string) *Level {
	return &Level{
		Symbol:      symbol,
		Price:       price,
		Type:        levelType,
		CreatedAt:   createdAt,
		Description: description,
		ZoneHigh:    price,
		ZoneLow:     price,
		Active:      true,
	}
}

// NewZoneLevel создает новый уровень-зону [zoneLow, zoneHigh]
func NewZoneLevel(symbol string, price, zoneHigh, zoneLow float64, levelType LevelType, createdAt time.Time, description string) *Level {
	return &Level{
		Symbol:      symbol,
		Price:       price,
		Type:        levelType,
		CreatedAt:   createdAt,
		Description: description,
		ZoneHigh:    zoneHigh,
		ZoneLow:     zoneLow,
		Active:      true,
	}
}

// IsZone проверяет, является ли уровень зоной (имеет ширину)
func (l *Level) IsZone() bool {
	return l.ZoneHigh != l.ZoneLow
}

// ZoneWidth возвращает ширину зоны
func (l *Level) ZoneWidth() float64 {
	return l.ZoneHigh - l.ZoneLow
}

// HasBeenBroken проверяет, был ли уровень пробит
func (l *Level) HasBeenBroken() bool {
	return len(l.Breaks) > 0
}

// HasBeenRetested проверяет, был ли уровень ретестирован
func (l *Level) HasBeenRetested() bool {
	return len(l.Retests) > 0
}

// LastBreak возвращает последний пробой уровня
func (l *Level) LastBreak() *LevelEvent {
	if len(l.Breaks) == 0 {
		return nil
	}
	return &l.Breaks[len(l.Breaks)-1]
}

// LastRetest возвращает последний ретест уровня
func (l *Level) LastRetest() *LevelEvent {
	if len(l.Retests) == 0 {
		return nil
	}
	return &l.Retests[len(l.Retests)-1]
}

// IsBrokenAbove проверяет, пробивает ли цена уровень снизу вверх.
// Порог threshold задается как доля цены уровня, не абсолютный тик.
func (l *Level) IsBrokenAbove(price, threshold float64) bool {
	boundary := l.ZoneHigh
	return price > boundary+boundary*threshold
}

// IsBrokenBelow проверяет, пробивает ли цена уровень сверху вниз
func (l *Level) IsBrokenBelow(price, threshold float64) bool {
	boundary := l.ZoneLow
	return price < boundary-boundary*threshold
}

// IsRetestingFromAbove проверяет, ретестирует ли цена уровень сверху
func (l *Level) IsRetestingFromAbove(price, threshold float64) bool {
	boundary := l.ZoneHigh
	offset := boundary * threshold
	return price >= boundary-offset && price <= boundary+offset
}

// IsRetestingFromBelow проверяет, ретестирует ли цена уровень снизу
func (l *Level) IsRetestingFromBelow(price, threshold float64) bool {
	boundary := l.ZoneLow
	offset := boundary * threshold
	return price >= boundary-offset && price <= boundary+offset
}

// AddBreak записывает пробой уровня
func (l *Level) AddBreak(timestamp time.Time, price float64, direction CrossDirection) {
	l.Breaks = append(l.Breaks, LevelEvent{
		Timestamp: timestamp,
		Price:     price,
		Direction: direction,
	})
}

// AddRetest записывает ретест уровня
func (l *Level) AddRetest(timestamp time.Time, price float64, direction CrossDirection) {
	l.Retests = append(l.Retests, LevelEvent{
		Timestamp: timestamp,
		Price:     price,
		Direction: direction,
	})
}

func (l *Level) String() string {
	if l.IsZone() {
		return fmt.Sprintf("%s %s зона: %.2f-%.2f (%s)",
			l.Symbol, l.Type, l.ZoneLow, l.ZoneHigh, l.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return fmt.Sprintf("%s %s: %.2f (%s)",
		l.Symbol, l.Type, l.Price, l.CreatedAt.Format("2006-01-02 15:04:05"))
}
