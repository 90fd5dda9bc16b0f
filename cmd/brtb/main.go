package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/internal/exchange"
	"github.com/skalibog/brtb/internal/levels"
	"github.com/skalibog/brtb/internal/marketdata"
	"github.com/skalibog/brtb/internal/notify"
	"github.com/skalibog/brtb/internal/risk"
	"github.com/skalibog/brtb/internal/scheduler"
	"github.com/skalibog/brtb/internal/storage"
	"github.com/skalibog/brtb/internal/strategy"
	"github.com/skalibog/brtb/internal/ui"
	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Некорректная конфигурация", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Обработка сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
		time.Sleep(3 * time.Second) // Даем горутинам время на завершение
		os.Exit(0)
	}()

	// Хранилище: пустой URL отключает запись
	store, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
	}
	defer store.Close()

	// Брокер
	broker, err := exchange.NewBroker(cfg.Broker)
	if err != nil {
		logger.Fatal("Ошибка инициализации брокера", zap.Error(err))
	}
	logger.Info("Брокер подключен", zap.String("broker", broker.Name()))

	// Фид рыночных данных: исполнительный и старший интервалы
	feed := marketdata.NewFeed(broker, cfg.Trading.Symbols,
		[]int{cfg.Trading.ExecutionInterval, cfg.Trading.HTFInterval}, cfg.Trading.HistoryDepth)

	// Закрытые свечи исполнительного интервала пишутся в хранилище
	for _, symbol := range cfg.Trading.Symbols {
		feed.AddCandleCallback(symbol, cfg.Trading.ExecutionInterval, func(candle *models.Candle) {
			if err := store.SaveCandle(ctx, candle); err != nil {
				logger.Warn("Ошибка сохранения свечи", zap.Error(err))
			}
		})
	}

	// Риск-менеджер со стартовой оценкой капитала от брокера
	equity := 10000.0
	if info, err := broker.GetAccountInfo(ctx); err != nil {
		logger.Warn("Оценка капитала недоступна, используется значение по умолчанию",
			zap.Float64("equity", equity), zap.Error(err))
	} else {
		equity = info.Equity
	}
	riskMgr := risk.NewManager(cfg.Risk, equity)

	// Торговая сессия
	session, err := strategy.NewSession(cfg.Trading.SessionStart, cfg.Trading.SessionEnd, cfg.Trading.SessionDays)
	if err != nil {
		logger.Fatal("Некорректные границы сессии", zap.Error(err))
	}

	registry := levels.NewRegistry()
	notifier := notify.NewMultiNotifier(
		notify.NewLogNotifier(),
		notify.NewStorageNotifier(ctx, store),
	)

	tk := &strategy.Toolkit{
		Feed:         feed,
		Registry:     registry,
		Notifier:     notifier,
		Session:      session,
		ExecInterval: cfg.Trading.ExecutionInterval,
	}

	trend := strategy.NewTrendFilter(feed, cfg.HTFFilter, cfg.Trading.HTFInterval)
	engine := strategy.NewEngine(cfg, tk, broker, riskMgr, store, trend)

	for _, name := range cfg.Strategies.Enabled {
		s, err := strategy.New(name, cfg, tk)
		if err != nil {
			logger.Fatal("Ошибка создания стратегии", zap.Error(err))
		}
		engine.AddStrategy(s)
	}

	// Запуск конвейера: бэкфилл, подписки, движок, планировщик
	if err := feed.Start(ctx); err != nil {
		logger.Fatal("Ошибка запуска фида", zap.Error(err))
	}
	defer feed.Stop()

	engine.Start(ctx)
	defer engine.Stop()

	sched := scheduler.NewScheduler(ctx, engine, broker, riskMgr)
	if err := sched.RegisterAll(cfg.Strategies.OrderBlock.RescanCron); err != nil {
		logger.Fatal("Ошибка регистрации задач планировщика", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	logger.Info("BRTB запущен",
		zap.Strings("symbols", cfg.Trading.Symbols),
		zap.Strings("strategies", cfg.Strategies.Enabled))

	if cfg.UI.Enabled {
		// UI блокирует основной поток до выхода пользователя
		userInterface := ui.NewTermUI(cfg.UI, registry, engine)
		if err := userInterface.Start(); err != nil {
			logger.Error("Ошибка интерфейса", zap.Error(err))
		}
		cancel()
		return
	}

	<-ctx.Done()
}
