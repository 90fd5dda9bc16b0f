package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/pkg/models"
)

func orderBlockConfig() config.OrderBlockConfig {
	return config.OrderBlockConfig{
		LookbackPeriod:      20,
		SignificantMove:     0.003,
		RetestThreshold:     0.001,
		ConfirmationCandles: 1,
		ManualInput:         true,
	}
}

func TestRescanFindsBullishOrderBlock(t *testing.T) {
	cfg := testConfig()
	cfg.Strategies.Enabled = []string{"order_block"}
	cfg.Strategies.OrderBlock = orderBlockConfig()
	rig := newTestRig(t, cfg)

	base := sessionOpen
	// Медвежья свеча перед импульсом вверх
	rig.push(base, 100.5, 100.6, 99.8, 100)
	// Импульс: (100.9 - 100) / 100 = 0.9% >= 0.3%
	rig.push(base.Add(5*time.Minute), 100, 100.9, 100, 100.8)
	rig.push(base.Add(10*time.Minute), 100.8, 101, 100.6, 100.9)

	ob := findOrderBlockStrategy(t, rig)
	ob.Rescan()

	zones := rig.reg.GetByType("BTCUSDT", models.BullishOrderBlock)
	require.Len(t, zones, 1)
	assert.Equal(t, 100.6, zones[0].ZoneHigh)
	assert.Equal(t, 99.8, zones[0].ZoneLow)
	assert.True(t, zones[0].IsZone())
}

func TestRescanReplacesAutomaticKeepsManual(t *testing.T) {
	cfg := testConfig()
	cfg.Strategies.Enabled = []string{"order_block"}
	cfg.Strategies.OrderBlock = orderBlockConfig()
	rig := newTestRig(t, cfg)

	base := sessionOpen
	rig.push(base, 100.5, 100.6, 99.8, 100)
	rig.push(base.Add(5*time.Minute), 100, 100.9, 100, 100.8)

	ob := findOrderBlockStrategy(t, rig)
	require.NoError(t, ob.AddManualOrderBlock("BTCUSDT", 98, 97, true))

	ob.Rescan()
	ob.Rescan()

	// Автоматическая зона одна (не дублируется), ручная сохранена
	zones := rig.reg.GetByType("BTCUSDT", models.BullishOrderBlock)
	assert.Len(t, zones, 2)
}

func TestManualOrderBlockValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Strategies.Enabled = []string{"order_block"}
	cfg.Strategies.OrderBlock = orderBlockConfig()
	rig := newTestRig(t, cfg)
	ob := findOrderBlockStrategy(t, rig)

	// Границы зоны перепутаны
	assert.Error(t, ob.AddManualOrderBlock("BTCUSDT", 97, 98, true))

	disabled := orderBlockConfig()
	disabled.ManualInput = false
	off := NewOrderBlockStrategy(disabled, nil, nil)
	assert.Error(t, off.AddManualOrderBlock("BTCUSDT", 98, 97, true))
}

func findOrderBlockStrategy(t *testing.T, rig *testRig) *OrderBlockStrategy {
	t.Helper()
	for _, s := range rig.engine.Strategies() {
		if ob, ok := s.(*OrderBlockStrategy); ok {
			return ob
		}
	}
	t.Fatal("стратегия ордер-блоков не подключена")
	return nil
}
