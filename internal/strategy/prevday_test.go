package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/pkg/models"
)

func TestPrevDayBuildsLevelsFromHistory(t *testing.T) {
	cfg := testConfig()
	cfg.Strategies.Enabled = []string{"prev_day"}
	cfg.Strategies.PrevDay = config.PrevDayConfig{
		BreakoutThreshold:   0.001,
		RetestThreshold:     0.001,
		ConfirmationCandles: 1,
	}
	rig := newTestRig(t, cfg)

	// Вчерашние свечи: максимум 105, минимум 95
	yesterday := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rig.push(yesterday, 100, 102, 95, 101)
	rig.push(yesterday.Add(5*time.Minute), 101, 105, 100, 104)
	rig.push(yesterday.Add(10*time.Minute), 104, 104.5, 103, 103.5)

	// Первая свеча нового дня строит PDH/PDL
	rig.push(sessionOpen, 103.5, 104, 103, 103.8)

	pdh := rig.reg.GetByType("BTCUSDT", models.PreviousDayHigh)
	require.Len(t, pdh, 1)
	assert.Equal(t, 105.0, pdh[0].Price)

	pdl := rig.reg.GetByType("BTCUSDT", models.PreviousDayLow)
	require.Len(t, pdl, 1)
	assert.Equal(t, 95.0, pdl[0].Price)
}

func TestPrevDayBreakRetestEntersLong(t *testing.T) {
	cfg := testConfig()
	cfg.Strategies.Enabled = []string{"prev_day"}
	cfg.Strategies.PrevDay = config.PrevDayConfig{
		BreakoutThreshold:   0.001,
		RetestThreshold:     0.001,
		ConfirmationCandles: 1,
	}
	rig := newTestRig(t, cfg)

	yesterday := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rig.push(yesterday, 100, 105, 95, 104)

	// Пробой PDH 105 и ретест
	rig.push(sessionOpen, 104, 105.9, 103.9, 105.7)
	rig.push(sessionOpen.Add(5*time.Minute), 105.7, 106, 105.05, 105.8)

	open := rig.engine.OpenTrades()
	require.Len(t, open, 1)
	assert.Equal(t, models.Long, open[0].Direction)
	assert.Equal(t, "prev_day", open[0].StrategyName)
	assert.Equal(t, models.PreviousDayHigh, open[0].Level.Type)
}

func TestPrevDayWithoutHistoryNoLevels(t *testing.T) {
	cfg := testConfig()
	cfg.Strategies.Enabled = []string{"prev_day"}
	rig := newTestRig(t, cfg)

	rig.push(sessionOpen, 100, 101, 99, 100.5)
	assert.Empty(t, rig.reg.Get("BTCUSDT"))
}
