package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/brtb/internal/exchange"
	"github.com/skalibog/brtb/pkg/models"
)

func fiveMinCandle(symbol string, t time.Time, o, h, l, c float64) *models.Candle {
	return &models.Candle{
		Symbol:   symbol,
		Interval: 5,
		OpenTime: t,
		Open:     o,
		High:     h,
		Low:      l,
		Close:    c,
		Volume:   1,
		Complete: true,
	}
}

func TestFeedDispatchesInRegistrationOrder(t *testing.T) {
	f := NewFeed(exchange.NewPaperBroker(10000), []string{"BTCUSDT"}, []int{5}, 100)
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	var order []string
	f.AddCandleCallback("BTCUSDT", 5, func(c *models.Candle) {
		order = append(order, "first")
	})
	f.AddCandleCallback("BTCUSDT", 5, func(c *models.Candle) {
		order = append(order, "second")
	})

	f.Update(fiveMinCandle("BTCUSDT", base, 100, 101, 99, 100.5))
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Len(t, f.GetCandles("BTCUSDT", 5, 0), 1)
}

func TestFeedRemoveCandleCallback(t *testing.T) {
	f := NewFeed(exchange.NewPaperBroker(10000), []string{"BTCUSDT"}, []int{5}, 100)
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	calls := 0
	id := f.AddCandleCallback("BTCUSDT", 5, func(c *models.Candle) { calls++ })

	f.Update(fiveMinCandle("BTCUSDT", base, 100, 101, 99, 100.5))
	f.RemoveCandleCallback("BTCUSDT", 5, id)
	f.Update(fiveMinCandle("BTCUSDT", base.Add(5*time.Minute), 100.5, 101, 100, 100.8))

	assert.Equal(t, 1, calls)
}

func TestFeedPanicInCallbackDoesNotStopOthers(t *testing.T) {
	f := NewFeed(exchange.NewPaperBroker(10000), []string{"BTCUSDT"}, []int{5}, 100)
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	reached := false
	f.AddCandleCallback("BTCUSDT", 5, func(c *models.Candle) { panic("boom") })
	f.AddCandleCallback("BTCUSDT", 5, func(c *models.Candle) { reached = true })

	f.Update(fiveMinCandle("BTCUSDT", base, 100, 101, 99, 100.5))
	assert.True(t, reached)
	// История обновлена несмотря на панику обработчика
	assert.Len(t, f.GetCandles("BTCUSDT", 5, 0), 1)
}

func TestFeedRegistrationDuringDispatchDeferred(t *testing.T) {
	f := NewFeed(exchange.NewPaperBroker(10000), []string{"BTCUSDT"}, []int{5}, 100)
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	lateCalls := 0
	f.AddCandleCallback("BTCUSDT", 5, func(c *models.Candle) {
		// Регистрация изнутри раздачи применяется после нее
		f.AddCandleCallback("BTCUSDT", 5, func(c *models.Candle) { lateCalls++ })
	})

	f.Update(fiveMinCandle("BTCUSDT", base, 100, 101, 99, 100.5))
	assert.Equal(t, 0, lateCalls)

	f.Update(fiveMinCandle("BTCUSDT", base.Add(5*time.Minute), 100.5, 101, 100, 100.8))
	assert.Equal(t, 1, lateCalls)
}

func TestFeedLevelCrossingBothDirections(t *testing.T) {
	f := NewFeed(exchange.NewPaperBroker(10000), []string{"BTCUSDT"}, []int{5}, 100)
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	f.WatchLevel("BTCUSDT", 101.0)
	var crossed []float64
	f.AddLevelCallback("BTCUSDT", func(level float64) {
		crossed = append(crossed, level)
	})

	// Первое закрытие: предыдущего нет, пересечение не проверяется
	f.Update(fiveMinCandle("BTCUSDT", base, 100, 100.5, 99.5, 100.2))
	assert.Empty(t, crossed)

	// Снизу вверх: 100.2 < 101 <= 101.5
	f.Update(fiveMinCandle("BTCUSDT", base.Add(5*time.Minute), 100.2, 102, 100, 101.5))
	require.Len(t, crossed, 1)
	assert.Equal(t, 101.0, crossed[0])

	// Закрытие по другую сторону, без пересечения границы закрытиями
	f.Update(fiveMinCandle("BTCUSDT", base.Add(10*time.Minute), 101.5, 102, 101.1, 101.2))
	assert.Len(t, crossed, 1)

	// Сверху вниз: 101.2 > 101 >= 100.5
	f.Update(fiveMinCandle("BTCUSDT", base.Add(15*time.Minute), 101.2, 101.3, 100.3, 100.5))
	require.Len(t, crossed, 2)

	// Снятый уровень больше не срабатывает
	f.UnwatchLevel("BTCUSDT", 101.0)
	f.Update(fiveMinCandle("BTCUSDT", base.Add(20*time.Minute), 100.5, 102, 100.4, 101.8))
	assert.Len(t, crossed, 2)
}

func TestFeedTouchWithoutCloseDoesNotCross(t *testing.T) {
	f := NewFeed(exchange.NewPaperBroker(10000), []string{"BTCUSDT"}, []int{5}, 100)
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	f.WatchLevel("BTCUSDT", 101.0)
	crossings := 0
	f.AddLevelCallback("BTCUSDT", func(level float64) { crossings++ })

	f.Update(fiveMinCandle("BTCUSDT", base, 100, 100.5, 99.5, 100.2))
	// Хвост прокалывает уровень, но закрытие остается ниже
	f.Update(fiveMinCandle("BTCUSDT", base.Add(5*time.Minute), 100.2, 101.4, 100, 100.8))
	assert.Zero(t, crossings)
}

func TestFeedFoldsCompletedCandlesUpward(t *testing.T) {
	f := NewFeed(exchange.NewPaperBroker(10000), []string{"BTCUSDT"}, []int{1, 5}, 100)
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		f.Update(minuteCandle("BTCUSDT", base.Add(time.Duration(i)*time.Minute), 100, 101, 99, 100, 1))
	}

	assert.Len(t, f.GetCandles("BTCUSDT", 1, 0), 6)
	five := f.GetCandles("BTCUSDT", 5, 0)
	require.Len(t, five, 1)
	assert.Equal(t, 5.0, five[0].Volume)

	cur := f.GetCurrentCandle("BTCUSDT", 5)
	require.NotNil(t, cur)
	assert.True(t, cur.OpenTime.Equal(base.Add(5*time.Minute)))
}

func TestFeedHistoryBounded(t *testing.T) {
	f := NewFeed(exchange.NewPaperBroker(10000), []string{"BTCUSDT"}, []int{5}, 3)
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		f.Update(fiveMinCandle("BTCUSDT", base.Add(time.Duration(i*5)*time.Minute), 100, 101, 99, 100))
	}

	history := f.GetCandles("BTCUSDT", 5, 0)
	require.Len(t, history, 3)
	assert.True(t, history[2].OpenTime.Equal(base.Add(45*time.Minute)))

	last := f.GetLastCompleteCandle("BTCUSDT", 5)
	require.NotNil(t, last)
	assert.True(t, last.OpenTime.Equal(base.Add(45*time.Minute)))
}

func TestFeedStartWithEmptyBackfill(t *testing.T) {
	broker := exchange.NewPaperBroker(10000)
	f := NewFeed(broker, []string{"BTCUSDT"}, []int{5}, 100)

	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	// Живые данные идут через подписку брокера
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	broker.Push(fiveMinCandle("BTCUSDT", base, 100, 101, 99, 100.5))
	assert.Len(t, f.GetCandles("BTCUSDT", 5, 0), 1)
}
