package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Broker     BrokerConfig     `yaml:"broker"`
	Trading    TradingConfig    `yaml:"trading"`
	Strategies StrategiesConfig `yaml:"strategies"`
	HTFFilter  HTFFilterConfig  `yaml:"htf_filter"`
	StopLoss   StopLossConfig   `yaml:"stop_loss"`
	TakeProfit TakeProfitConfig `yaml:"take_profit"`
	Risk       RiskConfig       `yaml:"risk"`
	Storage    StorageConfig    `yaml:"storage"`
	UI         UIConfig         `yaml:"ui"`
}

// BrokerConfig содержит настройки подключения к брокеру
type BrokerConfig struct {
	Name      string `yaml:"name"` // "binance" или "paper"
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Symbols           []string `yaml:"symbols"`
	ExecutionInterval int      `yaml:"execution_interval"` // минуты
	HTFInterval       int      `yaml:"htf_interval"`       // минуты
	SessionStart      string   `yaml:"session_start"`      // "09:30"
	SessionEnd        string   `yaml:"session_end"`        // "16:00"
	SessionDays       []string `yaml:"session_days"`
	HistoryDepth      int      `yaml:"history_depth"` // свечей на (символ, интервал)
}

// StrategiesConfig содержит настройки всех стратегий
type StrategiesConfig struct {
	Enabled    []string         `yaml:"enabled"`
	ORB        ORBConfig        `yaml:"orb"`
	PrevDay    PrevDayConfig    `yaml:"prev_day"`
	OrderBlock OrderBlockConfig `yaml:"order_block"`
}

// ORBConfig настройки стратегии пробоя открывающего диапазона
type ORBConfig struct {
	Timeframe           int     `yaml:"timeframe"` // минуты
	BreakoutThreshold   float64 `yaml:"breakout_threshold"`
	RetestThreshold     float64 `yaml:"retest_threshold"`
	ConfirmationCandles int     `yaml:"confirmation_candles"`
}

// PrevDayConfig настройки стратегии максимума/минимума предыдущей сессии
type PrevDayConfig struct {
	BreakoutThreshold   float64 `yaml:"breakout_threshold"`
	RetestThreshold     float64 `yaml:"retest_threshold"`
	ConfirmationCandles int     `yaml:"confirmation_candles"`
}

// OrderBlockConfig настройки стратегии ордер-блоков
type OrderBlockConfig struct {
	LookbackPeriod      int     `yaml:"lookback_period"`
	SignificantMove     float64 `yaml:"significant_move_threshold"`
	RetestThreshold     float64 `yaml:"retest_threshold"`
	ConfirmationCandles int     `yaml:"confirmation_candles"`
	RescanCron          string  `yaml:"rescan_cron"` // cron-выражение пере-скана
	ManualInput         bool    `yaml:"manual_input"`
}

// HTFFilterConfig настройки трендового фильтра старшего таймфрейма
type HTFFilterConfig struct {
	Enabled  bool   `yaml:"enabled"`
	MAType   string `yaml:"ma_type"` // "SMA" или "EMA"
	MAPeriod int    `yaml:"ma_period"`
}

// StopLossConfig настройки стоп-лосса
type StopLossConfig struct {
	Type   string  `yaml:"type"` // "level" или "candle"
	Buffer float64 `yaml:"buffer"`
}

// TakeProfitConfig настройки тейк-профита
type TakeProfitConfig struct {
	Type            string  `yaml:"type"` // "risk_reward" или "next_level"
	RiskRewardRatio float64 `yaml:"risk_reward_ratio"`
}

// RiskConfig настройки риск-менеджмента
type RiskConfig struct {
	PerTrade        float64            `yaml:"per_trade"`        // доля капитала
	MaxDailyLoss    float64            `yaml:"max_daily_loss"`   // доля капитала
	MaxDailyProfit  float64            `yaml:"max_daily_profit"` // 0 = без ограничения
	MaxTradesPerDay int                `yaml:"max_trades_per_day"`
	MaxUnits        int                `yaml:"max_units"`
	ValuePerUnit    map[string]float64 `yaml:"value_per_unit"` // множитель инструмента
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	URL          string `yaml:"url"` // пусто = хранение отключено
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	Enabled     bool `yaml:"enabled"`
	RefreshRate int  `yaml:"refresh_rate_ms"`
}

// Load загружает конфигурацию из файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults подставляет значения по умолчанию
func (c *Config) applyDefaults() {
	if c.Trading.ExecutionInterval == 0 {
		c.Trading.ExecutionInterval = 1
	}
	if c.Trading.HTFInterval == 0 {
		c.Trading.HTFInterval = 60
	}
	if c.Trading.SessionStart == "" {
		c.Trading.SessionStart = "09:30"
	}
	if c.Trading.SessionEnd == "" {
		c.Trading.SessionEnd = "16:00"
	}
	if len(c.Trading.SessionDays) == 0 {
		c.Trading.SessionDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}
	}
	if c.Trading.HistoryDepth == 0 {
		c.Trading.HistoryDepth = 1000
	}
	if c.Strategies.ORB.Timeframe == 0 {
		c.Strategies.ORB.Timeframe = 5
	}
	if c.Strategies.ORB.BreakoutThreshold == 0 {
		c.Strategies.ORB.BreakoutThreshold = 0.0005
	}
	if c.Strategies.ORB.RetestThreshold == 0 {
		c.Strategies.ORB.RetestThreshold = 0.001
	}
	if c.Strategies.PrevDay.BreakoutThreshold == 0 {
		c.Strategies.PrevDay.BreakoutThreshold = 0.0005
	}
	if c.Strategies.PrevDay.RetestThreshold == 0 {
		c.Strategies.PrevDay.RetestThreshold = 0.001
	}
	if c.Strategies.OrderBlock.SignificantMove == 0 {
		c.Strategies.OrderBlock.SignificantMove = 0.003
	}
	if c.Strategies.OrderBlock.RetestThreshold == 0 {
		c.Strategies.OrderBlock.RetestThreshold = 0.001
	}
	if c.Strategies.ORB.ConfirmationCandles == 0 {
		c.Strategies.ORB.ConfirmationCandles = 1
	}
	if c.Strategies.PrevDay.ConfirmationCandles == 0 {
		c.Strategies.PrevDay.ConfirmationCandles = 1
	}
	if c.Strategies.OrderBlock.ConfirmationCandles == 0 {
		c.Strategies.OrderBlock.ConfirmationCandles = 1
	}
	if c.Strategies.OrderBlock.LookbackPeriod == 0 {
		c.Strategies.OrderBlock.LookbackPeriod = 20
	}
	if c.Strategies.OrderBlock.RescanCron == "" {
		c.Strategies.OrderBlock.RescanCron = "@every 15m"
	}
	if c.HTFFilter.MAType == "" {
		c.HTFFilter.MAType = "EMA"
	}
	if c.HTFFilter.MAPeriod == 0 {
		c.HTFFilter.MAPeriod = 200
	}
	if c.StopLoss.Type == "" {
		c.StopLoss.Type = "level"
	}
	if c.TakeProfit.Type == "" {
		c.TakeProfit.Type = "risk_reward"
	}
	if c.TakeProfit.RiskRewardRatio == 0 {
		c.TakeProfit.RiskRewardRatio = 2.0
	}
	if c.Risk.PerTrade == 0 {
		c.Risk.PerTrade = 0.01
	}
	if c.Risk.MaxDailyLoss == 0 {
		c.Risk.MaxDailyLoss = 0.03
	}
	if c.Risk.MaxTradesPerDay == 0 {
		c.Risk.MaxTradesPerDay = 3
	}
	if c.Risk.MaxUnits == 0 {
		c.Risk.MaxUnits = 1
	}
	if c.UI.RefreshRate == 0 {
		c.UI.RefreshRate = 1000
	}
}

// Validate проверяет конфигурацию. Ошибочная конфигурация должна
// останавливать процесс до запуска конвейера.
func (c *Config) Validate() error {
	switch c.Broker.Name {
	case "binance", "paper":
	default:
		return fmt.Errorf("неизвестный брокер: %q", c.Broker.Name)
	}
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("trading.symbols не задан")
	}
	for _, name := range c.Strategies.Enabled {
		switch name {
		case "orb", "prev_day", "order_block":
		default:
			return fmt.Errorf("неизвестная стратегия: %q", name)
		}
	}
	if c.Trading.ExecutionInterval <= 0 || c.Trading.HTFInterval <= 0 {
		return fmt.Errorf("интервалы должны быть положительными")
	}
	if c.Risk.PerTrade <= 0 || c.Risk.PerTrade >= 1 {
		return fmt.Errorf("risk.per_trade должен быть в (0, 1)")
	}
	if c.Risk.MaxDailyLoss <= 0 || c.Risk.MaxDailyLoss >= 1 {
		return fmt.Errorf("risk.max_daily_loss должен быть в (0, 1)")
	}
	if c.Risk.MaxUnits < 1 {
		return fmt.Errorf("risk.max_units должен быть не меньше 1")
	}
	switch c.StopLoss.Type {
	case "level", "candle":
	default:
		return fmt.Errorf("неизвестный тип стоп-лосса: %q", c.StopLoss.Type)
	}
	switch c.TakeProfit.Type {
	case "risk_reward", "next_level":
	default:
		return fmt.Errorf("неизвестный тип тейк-профита: %q", c.TakeProfit.Type)
	}
	switch c.HTFFilter.MAType {
	case "SMA", "EMA":
	default:
		return fmt.Errorf("неизвестный тип скользящей средней: %q", c.HTFFilter.MAType)
	}
	return nil
}
