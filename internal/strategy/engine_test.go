package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/internal/exchange"
	"github.com/skalibog/brtb/internal/levels"
	"github.com/skalibog/brtb/internal/marketdata"
	"github.com/skalibog/brtb/internal/notify"
	"github.com/skalibog/brtb/internal/risk"
	"github.com/skalibog/brtb/internal/storage"
	"github.com/skalibog/brtb/pkg/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Broker: config.BrokerConfig{Name: "paper"},
		Trading: config.TradingConfig{
			Symbols:           []string{"BTCUSDT"},
			ExecutionInterval: 5,
			HTFInterval:       60,
			SessionStart:      "09:30",
			SessionEnd:        "16:00",
			SessionDays:       []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
			HistoryDepth:      100,
		},
		Strategies: config.StrategiesConfig{
			Enabled: []string{"orb"},
			ORB: config.ORBConfig{
				Timeframe:           5,
				BreakoutThreshold:   0.001,
				RetestThreshold:     0.001,
				ConfirmationCandles: 1,
			},
		},
		HTFFilter:  config.HTFFilterConfig{Enabled: false},
		StopLoss:   config.StopLossConfig{Type: "level", Buffer: 0.001},
		TakeProfit: config.TakeProfitConfig{Type: "risk_reward", RiskRewardRatio: 2.0},
		Risk: config.RiskConfig{
			PerTrade:        0.01,
			MaxDailyLoss:    0.03,
			MaxTradesPerDay: 3,
			MaxUnits:        10,
			ValuePerUnit:    map[string]float64{"BTCUSDT": 1.0},
		},
	}
}

type testRig struct {
	cfg    *config.Config
	broker *exchange.PaperBroker
	feed   *marketdata.Feed
	reg    *levels.Registry
	engine *Engine
}

func newTestRig(t *testing.T, cfg *config.Config) *testRig {
	t.Helper()

	broker := exchange.NewPaperBroker(10000)
	feed := marketdata.NewFeed(broker, cfg.Trading.Symbols,
		[]int{cfg.Trading.ExecutionInterval, cfg.Trading.HTFInterval}, cfg.Trading.HistoryDepth)
	reg := levels.NewRegistry()

	session, err := NewSession(cfg.Trading.SessionStart, cfg.Trading.SessionEnd, cfg.Trading.SessionDays)
	require.NoError(t, err)

	tk := &Toolkit{
		Feed:         feed,
		Registry:     reg,
		Notifier:     notify.NewLogNotifier(),
		Session:      session,
		ExecInterval: cfg.Trading.ExecutionInterval,
	}

	riskMgr := risk.NewManager(cfg.Risk, 10000)
	trend := NewTrendFilter(feed, cfg.HTFFilter, cfg.Trading.HTFInterval)
	engine := NewEngine(cfg, tk, broker, riskMgr, storage.NewNoopStorage(), trend)

	for _, name := range cfg.Strategies.Enabled {
		s, err := New(name, cfg, tk)
		require.NoError(t, err)
		engine.AddStrategy(s)
	}

	ctx := context.Background()
	require.NoError(t, feed.Start(ctx))
	engine.Start(ctx)
	t.Cleanup(func() {
		engine.Stop()
		feed.Stop()
	})

	return &testRig{cfg: cfg, broker: broker, feed: feed, reg: reg, engine: engine}
}

// push подает закрытую пятиминутную свечу через брокера
func (r *testRig) push(t time.Time, o, h, l, c float64) {
	r.broker.Push(&models.Candle{
		Symbol:   "BTCUSDT",
		Interval: 5,
		OpenTime: t,
		Open:     o,
		High:     h,
		Low:      l,
		Close:    c,
		Volume:   1,
		Complete: true,
	})
}

// Понедельник 2026-03-02, открытие сессии 09:30 UTC
var sessionOpen = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func TestORBBreakRetestEntersLong(t *testing.T) {
	rig := newTestRig(t, testConfig())

	// Открывающий диапазон: максимум 101, минимум 99
	rig.push(sessionOpen, 100, 101, 99, 100.5)
	// Пробой максимума закрытием
	rig.push(sessionOpen.Add(5*time.Minute), 100.5, 101.8, 100.4, 101.6)

	// Диапазон опубликован как уровни
	active := rig.reg.GetActive("BTCUSDT")
	require.Len(t, active, 2)

	// Ретест хвостом и закрытие выше уровня: вход в лонг
	rig.push(sessionOpen.Add(10*time.Minute), 101.6, 101.9, 101.05, 101.8)

	open := rig.engine.OpenTrades()
	require.Len(t, open, 1)
	tr := open[0]
	assert.Equal(t, models.Long, tr.Direction)
	assert.Equal(t, "orb", tr.StrategyName)
	assert.InDelta(t, 101.8, tr.EntryPrice, 1e-9)
	assert.InDelta(t, 100.899, tr.StopLoss, 1e-9)
	// Цель = вход + 2R
	assert.InDelta(t, 101.8+2*(101.8-100.899), tr.TakeProfit, 1e-9)
	assert.Equal(t, models.OpeningRangeHigh, tr.Level.Type)
	assert.Equal(t, 10, tr.Quantity)

	// Потраченный уровень деактивирован, минимум диапазона еще активен
	assert.False(t, tr.Level.Active)
	require.Len(t, rig.reg.GetActive("BTCUSDT"), 1)
	assert.Equal(t, models.OpeningRangeLow, rig.reg.GetActive("BTCUSDT")[0].Type)
}

func TestStopPriceCandleModeUsesWorstRetestExtreme(t *testing.T) {
	cfg := testConfig()
	cfg.StopLoss = config.StopLossConfig{Type: "candle", Buffer: 0.001}
	e := &Engine{cfg: cfg}

	level := models.NewLevel("BTCUSDT", 101.0, models.OpeningRangeHigh, time.Now(), "")
	sig := &Signal{
		Symbol:    "BTCUSDT",
		Direction: models.Long,
		Level:     level,
		Candle:    closedCandle(sessionOpen, 101.6, 101.9, 101.05, 101.8),
		Retest: []*models.Candle{
			closedCandle(sessionOpen, 101.6, 101.7, 100.95, 101.0),
			closedCandle(sessionOpen, 101.0, 101.9, 101.05, 101.8),
		},
	}
	// Худший хвост ретеста 100.95, а не хвост подтверждающей свечи
	assert.InDelta(t, 100.95*(1-0.001), e.stopPrice(sig), 1e-9)

	short := models.NewLevel("BTCUSDT", 99.0, models.OpeningRangeLow, time.Now(), "")
	sigShort := &Signal{
		Symbol:    "BTCUSDT",
		Direction: models.Short,
		Level:     short,
		Candle:    closedCandle(sessionOpen, 98.7, 98.95, 98.3, 98.4),
		Retest: []*models.Candle{
			closedCandle(sessionOpen, 98.7, 99.08, 98.5, 98.9),
			closedCandle(sessionOpen, 98.9, 98.95, 98.3, 98.4),
		},
	}
	assert.InDelta(t, 99.08*(1+0.001), e.stopPrice(sigShort), 1e-9)
}

func TestExitStopCheckedBeforeTarget(t *testing.T) {
	rig := newTestRig(t, testConfig())

	rig.push(sessionOpen, 100, 101, 99, 100.5)
	rig.push(sessionOpen.Add(5*time.Minute), 100.5, 101.8, 100.4, 101.6)
	rig.push(sessionOpen.Add(10*time.Minute), 101.6, 101.9, 101.05, 101.8)
	require.Len(t, rig.engine.OpenTrades(), 1)

	// Свеча задевает и стоп, и цель: считается сработавшим стоп
	rig.push(sessionOpen.Add(15*time.Minute), 101.8, 106, 99.5, 102)

	assert.Empty(t, rig.engine.OpenTrades())
	closed := rig.engine.ClosedTrades()
	require.Len(t, closed, 1)
	assert.InDelta(t, 100.899, closed[0].ExitPrice, 1e-9)
	assert.Equal(t, models.ResultLoss, closed[0].Result)
}

func TestExitAtTarget(t *testing.T) {
	rig := newTestRig(t, testConfig())

	rig.push(sessionOpen, 100, 101, 99, 100.5)
	rig.push(sessionOpen.Add(5*time.Minute), 100.5, 101.8, 100.4, 101.6)
	rig.push(sessionOpen.Add(10*time.Minute), 101.6, 101.9, 101.05, 101.8)
	open := rig.engine.OpenTrades()
	require.Len(t, open, 1)
	target := open[0].TakeProfit

	rig.push(sessionOpen.Add(15*time.Minute), 101.8, target+0.1, 101.5, target)

	closed := rig.engine.ClosedTrades()
	require.Len(t, closed, 1)
	assert.InDelta(t, target, closed[0].ExitPrice, 1e-9)
	assert.Equal(t, models.ResultWin, closed[0].Result)
}

func TestHTFFilterVetoesEntry(t *testing.T) {
	cfg := testConfig()
	cfg.HTFFilter = config.HTFFilterConfig{Enabled: true, MAType: "SMA", MAPeriod: 3}
	rig := newTestRig(t, cfg)

	// Нисходящий старший таймфрейм: последнее закрытие ниже средней
	for i, close := range []float64{110, 108, 106} {
		rig.feed.Update(&models.Candle{
			Symbol:   "BTCUSDT",
			Interval: 60,
			OpenTime: sessionOpen.Add(time.Duration(i-4) * time.Hour),
			Open:     close,
			High:     close + 1,
			Low:      close - 1,
			Close:    close,
			Volume:   1,
			Complete: true,
		})
	}

	rig.push(sessionOpen, 100, 101, 99, 100.5)
	rig.push(sessionOpen.Add(5*time.Minute), 100.5, 101.8, 100.4, 101.6)
	rig.push(sessionOpen.Add(10*time.Minute), 101.6, 101.9, 101.05, 101.8)

	assert.Empty(t, rig.engine.OpenTrades())
}

func TestOutOfSessionCandlesIgnored(t *testing.T) {
	rig := newTestRig(t, testConfig())

	// Те же свечи до открытия сессии: диапазон не строится, входов нет
	early := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	rig.push(early, 100, 101, 99, 100.5)
	rig.push(early.Add(5*time.Minute), 100.5, 101.8, 100.4, 101.6)
	rig.push(early.Add(10*time.Minute), 101.6, 101.9, 101.05, 101.8)

	assert.Empty(t, rig.reg.Get("BTCUSDT"))
	assert.Empty(t, rig.engine.OpenTrades())
}

func TestResetDailyClearsLevels(t *testing.T) {
	rig := newTestRig(t, testConfig())

	rig.push(sessionOpen, 100, 101, 99, 100.5)
	rig.push(sessionOpen.Add(5*time.Minute), 100.5, 101.8, 100.4, 101.6)
	require.Len(t, rig.reg.Get("BTCUSDT"), 2)

	rig.engine.ResetDaily(sessionOpen.Add(24 * time.Hour))
	assert.Empty(t, rig.reg.Get("BTCUSDT"))
}

func TestUnknownStrategyRejected(t *testing.T) {
	cfg := testConfig()
	_, err := New("martingale", cfg, &Toolkit{})
	assert.Error(t, err)
}
