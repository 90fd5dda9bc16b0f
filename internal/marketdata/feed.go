package marketdata

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/brtb/internal/exchange"
	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

// CandleCallback обработчик закрытой свечи
type CandleCallback func(*models.Candle)

// LevelCallback обработчик пересечения отслеживаемого уровня
type LevelCallback func(level float64)

type seriesKey struct {
	symbol   string
	interval int
}

type candleSub struct {
	id int64
	fn CandleCallback
}

type levelSub struct {
	id int64
	fn LevelCallback
}

// series состояние одной пары (символ, интервал). Мьютекс mu строго
// упорядочивает обновления одного ключа; обновления разных ключей не
// сериализуются друг против друга.
type series struct {
	mu      sync.Mutex
	histMu  sync.RWMutex
	builder *Builder
	history []*models.Candle
	depth   int

	regMu       sync.Mutex
	dispatching bool
	callbacks   []candleSub
	pending     []func()
}

// symbolWatch отслеживаемые уровни и их обработчики для символа
type symbolWatch struct {
	regMu       sync.Mutex
	dispatching bool
	levels      map[float64]struct{}
	callbacks   []levelSub
	pending     []func()
}

// Feed владеет сборщиками свечей и ограниченной историей на пару
// (символ, интервал), раздает закрытые свечи и пересечения уровней
// зарегистрированным слушателям
type Feed struct {
	broker    exchange.Broker
	symbols   []string
	intervals []int // отсортированы по возрастанию
	depth     int

	nextID  int64
	series  map[seriesKey]*series
	watches map[string]*symbolWatch

	runMu   sync.Mutex
	running bool
}

// NewFeed создает новый фид. Набор символов и интервалов фиксируется
// при создании: карты серий не растут во время работы.
func NewFeed(broker exchange.Broker, symbols []string, intervals []int, historyDepth int) *Feed {
	sorted := make([]int, len(intervals))
	copy(sorted, intervals)
	sort.Ints(sorted)
	// Убираем дубликаты интервалов
	uniq := sorted[:0]
	for i, iv := range sorted {
		if i == 0 || iv != sorted[i-1] {
			uniq = append(uniq, iv)
		}
	}

	f := &Feed{
		broker:    broker,
		symbols:   symbols,
		intervals: uniq,
		depth:     historyDepth,
		series:    make(map[seriesKey]*series),
		watches:   make(map[string]*symbolWatch),
	}

	for _, symbol := range symbols {
		for _, interval := range uniq {
			f.series[seriesKey{symbol, interval}] = &series{
				builder: NewBuilder(symbol, interval),
				depth:   historyDepth,
			}
		}
		f.watches[symbol] = &symbolWatch{
			levels: make(map[float64]struct{}),
		}
	}

	return f
}

// Start выполняет бэкфилл истории и подписывается на живые данные.
// Пустой бэкфилл не фатален: пара продолжает с пустой историей.
func (f *Feed) Start(ctx context.Context) error {
	f.runMu.Lock()
	if f.running {
		f.runMu.Unlock()
		logger.Warn("Фид уже запущен")
		return nil
	}
	f.running = true
	f.runMu.Unlock()

	end := time.Now()
	start := end.Add(-48 * time.Hour)

	for _, symbol := range f.symbols {
		for _, interval := range f.intervals {
			candles, err := f.broker.GetHistoricalCandles(ctx, symbol, interval, start, end, f.depth)
			if err != nil {
				logger.Warn("Бэкфилл недоступен",
					zap.String("symbol", symbol), zap.Int("interval", interval), zap.Error(err))
				continue
			}
			if len(candles) == 0 {
				logger.Warn("Бэкфилл вернул пустую историю",
					zap.String("symbol", symbol), zap.Int("interval", interval))
				continue
			}
			s := f.series[seriesKey{symbol, interval}]
			s.histMu.Lock()
			s.history = append(s.history, candles...)
			s.trimLocked()
			s.histMu.Unlock()
			logger.Info("Загружена история",
				zap.String("symbol", symbol), zap.Int("interval", interval), zap.Int("count", len(candles)))
		}
	}

	// Подписываемся на наименьший интервал: свечи большего интервала
	// сворачиваются сборщиками
	base := f.intervals[0]
	for _, symbol := range f.symbols {
		if err := f.broker.SubscribeMarketData(symbol, base, f.Update); err != nil {
			logger.Error("Ошибка подписки на рыночные данные",
				zap.String("symbol", symbol), zap.Int("interval", base), zap.Error(err))
		}
	}

	logger.Info("Фид запущен", zap.Strings("symbols", f.symbols), zap.Ints("intervals", f.intervals))
	return nil
}

// Stop отменяет подписки и снимает все регистрации. Сделки при
// остановке не откатываются.
func (f *Feed) Stop() {
	f.runMu.Lock()
	if !f.running {
		f.runMu.Unlock()
		return
	}
	f.running = false
	f.runMu.Unlock()

	base := f.intervals[0]
	for _, symbol := range f.symbols {
		if err := f.broker.UnsubscribeMarketData(symbol, base); err != nil {
			logger.Warn("Ошибка отмены подписки", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	for _, s := range f.series {
		s.regMu.Lock()
		s.callbacks = nil
		s.pending = nil
		s.regMu.Unlock()
	}
	for _, w := range f.watches {
		w.regMu.Lock()
		w.callbacks = nil
		w.levels = make(map[float64]struct{})
		w.pending = nil
		w.regMu.Unlock()
	}

	logger.Info("Фид остановлен")
}

// Update прогоняет сырое обновление через релевантные сборщики.
// Незакрытая свеча обновляет только серию своего интервала; закрытая
// дополнительно сворачивается в серии большего интервала.
func (f *Feed) Update(candle *models.Candle) {
	for _, interval := range f.intervals {
		if interval < candle.Interval {
			continue
		}
		if interval > candle.Interval && !candle.Complete {
			continue
		}
		s, ok := f.series[seriesKey{candle.Symbol, interval}]
		if !ok {
			logger.Warn("Обновление для неизвестного символа", zap.String("symbol", candle.Symbol))
			return
		}
		f.updateSeries(s, candle)
	}
}

// updateSeries обновляет одну серию под ее мьютексом
func (f *Feed) updateSeries(s *series, candle *models.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prevClose float64
	hasPrev := false

	s.histMu.Lock()
	if len(s.history) > 0 {
		prevClose = s.history[len(s.history)-1].Close
		hasPrev = true
	}
	complete := s.builder.Update(candle)
	if complete != nil {
		s.history = append(s.history, complete)
		s.trimLocked()
	}
	s.histMu.Unlock()

	if complete == nil {
		return
	}

	s.dispatch(complete)

	if hasPrev {
		f.checkLevelCrossings(complete.Symbol, prevClose, complete.Close)
	}
}

// dispatch вызывает обработчики закрытой свечи в порядке регистрации.
// Изменения регистраций во время раздачи буферизуются и применяются
// после нее; паника одного обработчика не мешает остальным.
func (s *series) dispatch(candle *models.Candle) {
	s.regMu.Lock()
	s.dispatching = true
	subs := make([]candleSub, len(s.callbacks))
	copy(subs, s.callbacks)
	s.regMu.Unlock()

	for _, sub := range subs {
		invokeCandleCallback(sub.fn, candle)
	}

	s.regMu.Lock()
	for _, op := range s.pending {
		op()
	}
	s.pending = nil
	s.dispatching = false
	s.regMu.Unlock()
}

func invokeCandleCallback(fn CandleCallback, candle *models.Candle) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Паника в обработчике свечи",
				zap.String("symbol", candle.Symbol), zap.Any("panic", r))
		}
	}()
	fn(candle)
}

// checkLevelCrossings проверяет пересечение отслеживаемых уровней
// двумя последними закрытиями: prev < level <= curr или
// prev > level >= curr
func (f *Feed) checkLevelCrossings(symbol string, prevClose, currClose float64) {
	w, ok := f.watches[symbol]
	if !ok {
		return
	}

	w.regMu.Lock()
	w.dispatching = true
	levels := make([]float64, 0, len(w.levels))
	for level := range w.levels {
		if (prevClose < level && currClose >= level) ||
			(prevClose > level && currClose <= level) {
			levels = append(levels, level)
		}
	}
	subs := make([]levelSub, len(w.callbacks))
	copy(subs, w.callbacks)
	w.regMu.Unlock()

	sort.Float64s(levels)
	for _, level := range levels {
		for _, sub := range subs {
			invokeLevelCallback(sub.fn, symbol, level)
		}
	}

	w.regMu.Lock()
	for _, op := range w.pending {
		op()
	}
	w.pending = nil
	w.dispatching = false
	w.regMu.Unlock()
}

func invokeLevelCallback(fn LevelCallback, symbol string, level float64) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Паника в обработчике уровня",
				zap.String("symbol", symbol), zap.Float64("level", level), zap.Any("panic", r))
		}
	}()
	fn(level)
}

// AddCandleCallback регистрирует обработчик закрытых свечей пары.
// Возвращает идентификатор для снятия регистрации.
func (f *Feed) AddCandleCallback(symbol string, interval int, fn CandleCallback) int64 {
	s, ok := f.series[seriesKey{symbol, interval}]
	if !ok {
		logger.Warn("Регистрация для неизвестной пары",
			zap.String("symbol", symbol), zap.Int("interval", interval))
		return 0
	}

	id := atomic.AddInt64(&f.nextID, 1)
	op := func() {
		s.callbacks = append(s.callbacks, candleSub{id: id, fn: fn})
	}

	s.regMu.Lock()
	if s.dispatching {
		s.pending = append(s.pending, op)
	} else {
		op()
	}
	s.regMu.Unlock()
	return id
}

// RemoveCandleCallback снимает регистрацию обработчика свечей
func (f *Feed) RemoveCandleCallback(symbol string, interval int, id int64) {
	s, ok := f.series[seriesKey{symbol, interval}]
	if !ok {
		return
	}

	op := func() {
		for i, sub := range s.callbacks {
			if sub.id == id {
				s.callbacks = append(s.callbacks[:i], s.callbacks[i+1:]...)
				return
			}
		}
	}

	s.regMu.Lock()
	if s.dispatching {
		s.pending = append(s.pending, op)
	} else {
		op()
	}
	s.regMu.Unlock()
}

// WatchLevel добавляет ценовой уровень под наблюдение для символа
func (f *Feed) WatchLevel(symbol string, level float64) {
	w, ok := f.watches[symbol]
	if !ok {
		logger.Warn("Наблюдение для неизвестного символа", zap.String("symbol", symbol))
		return
	}

	op := func() {
		w.levels[level] = struct{}{}
	}

	w.regMu.Lock()
	if w.dispatching {
		w.pending = append(w.pending, op)
	} else {
		op()
	}
	w.regMu.Unlock()
}

// UnwatchLevel снимает уровень с наблюдения
func (f *Feed) UnwatchLevel(symbol string, level float64) {
	w, ok := f.watches[symbol]
	if !ok {
		return
	}

	op := func() {
		delete(w.levels, level)
	}

	w.regMu.Lock()
	if w.dispatching {
		w.pending = append(w.pending, op)
	} else {
		op()
	}
	w.regMu.Unlock()
}

// AddLevelCallback регистрирует обработчик пересечений уровней символа
func (f *Feed) AddLevelCallback(symbol string, fn LevelCallback) int64 {
	w, ok := f.watches[symbol]
	if !ok {
		logger.Warn("Регистрация для неизвестного символа", zap.String("symbol", symbol))
		return 0
	}

	id := atomic.AddInt64(&f.nextID, 1)
	op := func() {
		w.callbacks = append(w.callbacks, levelSub{id: id, fn: fn})
	}

	w.regMu.Lock()
	if w.dispatching {
		w.pending = append(w.pending, op)
	} else {
		op()
	}
	w.regMu.Unlock()
	return id
}

// RemoveLevelCallback снимает регистрацию обработчика уровней
func (f *Feed) RemoveLevelCallback(symbol string, id int64) {
	w, ok := f.watches[symbol]
	if !ok {
		return
	}

	op := func() {
		for i, sub := range w.callbacks {
			if sub.id == id {
				w.callbacks = append(w.callbacks[:i], w.callbacks[i+1:]...)
				return
			}
		}
	}

	w.regMu.Lock()
	if w.dispatching {
		w.pending = append(w.pending, op)
	} else {
		op()
	}
	w.regMu.Unlock()
}

// GetCandles возвращает последние count закрытых свечей (0 = все)
func (f *Feed) GetCandles(symbol string, interval, count int) []*models.Candle {
	s, ok := f.series[seriesKey{symbol, interval}]
	if !ok {
		return nil
	}

	s.histMu.RLock()
	defer s.histMu.RUnlock()

	history := s.history
	if count > 0 && count < len(history) {
		history = history[len(history)-count:]
	}
	out := make([]*models.Candle, len(history))
	copy(out, history)
	return out
}

// GetCurrentCandle возвращает текущую (незакрытую) свечу пары
func (f *Feed) GetCurrentCandle(symbol string, interval int) *models.Candle {
	s, ok := f.series[seriesKey{symbol, interval}]
	if !ok {
		return nil
	}

	s.histMu.RLock()
	defer s.histMu.RUnlock()
	return s.builder.Current()
}

// GetLastCompleteCandle возвращает последнюю закрытую свечу пары
func (f *Feed) GetLastCompleteCandle(symbol string, interval int) *models.Candle {
	s, ok := f.series[seriesKey{symbol, interval}]
	if !ok {
		return nil
	}

	s.histMu.RLock()
	defer s.histMu.RUnlock()
	if len(s.history) == 0 {
		return nil
	}
	return s.history[len(s.history)-1]
}

// trimLocked ограничивает историю глубиной depth; вызывается под histMu
func (s *series) trimLocked() {
	if s.depth > 0 && len(s.history) > s.depth {
		s.history = s.history[len(s.history)-s.depth:]
	}
}
