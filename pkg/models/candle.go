package models

import (
	"fmt"
	"time"
)

// Candle представляет свечу OHLCV для символа и интервала (в минутах)
type Candle struct {
	Symbol   string
	Interval int // минуты
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Complete bool
}

// IsBullish проверяет, является ли свеча бычьей (close > open)
func (c *Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish проверяет, является ли свеча медвежьей (close < open)
func (c *Candle) IsBearish() bool {
	return c.Close < c.Open
}

// BodySize возвращает размер тела свечи
func (c *Candle) BodySize() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// UpperWick возвращает размер верхней тени
func (c *Candle) UpperWick() float64 {
	body := c.Open
	if c.Close > c.Open {
		body = c.Close
	}
	return c.High - body
}

// LowerWick возвращает размер нижней тени
func (c *Candle) LowerWick() float64 {
	body := c.Open
	if c.Close < c.Open {
		body = c.Close
	}
	return body - c.Low
}

// Range возвращает полный диапазон свечи
func (c *Candle) Range() float64 {
	return c.High - c.Low
}

// BucketStart возвращает начало интервального бакета, которому принадлежит
// момент ts для заданного интервала в минутах. Бакеты выкладываются от
// полуночи, поэтому интервалы больше часа (120, 240, 1440) тоже работают
func BucketStart(ts time.Time, interval int) time.Time {
	minutes := ts.Hour()*60 + ts.Minute()
	start := (minutes / interval) * interval
	return time.Date(ts.Year(), ts.Month(), ts.Day(), start/60, start%60, 0, 0, ts.Location())
}

func (c *Candle) String() string {
	return fmt.Sprintf(
		"%s %s (%dm): O=%.2f, H=%.2f, L=%.2f, C=%.2f, V=%.2f",
		c.Symbol, c.OpenTime.Format("2006-01-02 15:04:05"), c.Interval,
		c.Open, c.High, c.Low, c.Close, c.Volume,
	)
}
