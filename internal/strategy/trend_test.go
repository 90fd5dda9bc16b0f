package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/internal/exchange"
	"github.com/skalibog/brtb/internal/marketdata"
	"github.com/skalibog/brtb/pkg/models"
)

func htfCandle(t time.Time, close float64) *models.Candle {
	return &models.Candle{
		Symbol:   "BTCUSDT",
		Interval: 60,
		OpenTime: t,
		Open:     close,
		High:     close + 1,
		Low:      close - 1,
		Close:    close,
		Volume:   1,
		Complete: true,
	}
}

func TestTrendFilterVetoesAgainstTrend(t *testing.T) {
	feed := marketdata.NewFeed(exchange.NewPaperBroker(10000), []string{"BTCUSDT"}, []int{60}, 100)
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	// Растущий ряд: закрытие выше средней
	for i := 0; i < 10; i++ {
		feed.Update(htfCandle(base.Add(time.Duration(i)*time.Hour), 100+float64(i)))
	}

	filter := NewTrendFilter(feed, config.HTFFilterConfig{
		Enabled:  true,
		MAType:   "SMA",
		MAPeriod: 5,
	}, 60)

	assert.True(t, filter.Allows("BTCUSDT", models.Long))
	assert.False(t, filter.Allows("BTCUSDT", models.Short))
}

func TestTrendFilterDisabledAllowsAll(t *testing.T) {
	feed := marketdata.NewFeed(exchange.NewPaperBroker(10000), []string{"BTCUSDT"}, []int{60}, 100)
	filter := NewTrendFilter(feed, config.HTFFilterConfig{Enabled: false}, 60)

	assert.True(t, filter.Allows("BTCUSDT", models.Long))
	assert.True(t, filter.Allows("BTCUSDT", models.Short))
}

func TestTrendFilterInsufficientHistoryAllows(t *testing.T) {
	feed := marketdata.NewFeed(exchange.NewPaperBroker(10000), []string{"BTCUSDT"}, []int{60}, 100)
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	feed.Update(htfCandle(base, 100))

	filter := NewTrendFilter(feed, config.HTFFilterConfig{
		Enabled:  true,
		MAType:   "EMA",
		MAPeriod: 50,
	}, 60)

	assert.True(t, filter.Allows("BTCUSDT", models.Short))
}
