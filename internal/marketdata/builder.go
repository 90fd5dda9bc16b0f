package marketdata

import (
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

// Builder складывает поток тиков или свечей меньшего интервала в свечу
// своего интервала. Закрытая свеча эмитится ровно один раз.
type Builder struct {
	symbol   string
	interval int
	current  *models.Candle
}

// NewBuilder создает новый сборщик свечей
func NewBuilder(symbol string, interval int) *Builder {
	return &Builder{
		symbol:   symbol,
		interval: interval,
	}
}

// Current возвращает текущую (незакрытую) свечу
func (b *Builder) Current() *models.Candle {
	return b.current
}

// Update обновляет текущую свечу новыми данными. Возвращает закрытую
// свечу, если обновление ее завершило, иначе nil. Вход для чужого
// символа или большего интервала логируется и отбрасывается.
func (b *Builder) Update(candle *models.Candle) *models.Candle {
	if candle.Symbol != b.symbol {
		logger.Warn("Свеча для чужого символа",
			zap.String("got", candle.Symbol), zap.String("want", b.symbol))
		return nil
	}

	// Уже закрытая свеча своего интервала проходит насквозь и
	// сбрасывает состояние
	if candle.Complete && candle.Interval == b.interval {
		b.current = nil
		return candle
	}

	if candle.Interval < b.interval {
		return b.updateFromSmaller(candle)
	}

	if candle.Interval > b.interval {
		logger.Warn("Свеча большего интервала отброшена",
			zap.String("symbol", b.symbol),
			zap.Int("got", candle.Interval), zap.Int("want", b.interval))
		return nil
	}

	// Незакрытая свеча своего интервала становится текущей
	b.current = candle
	return nil
}

// updateFromSmaller сворачивает свечу меньшего интервала в текущий бакет
func (b *Builder) updateFromSmaller(candle *models.Candle) *models.Candle {
	bucket := models.BucketStart(candle.OpenTime, b.interval)

	if b.current == nil {
		b.current = b.open(bucket, candle)
		return nil
	}

	if bucket.Equal(b.current.OpenTime) {
		// Вход принадлежит текущему бакету: сливаем
		if candle.High > b.current.High {
			b.current.High = candle.High
		}
		if candle.Low < b.current.Low {
			b.current.Low = candle.Low
		}
		b.current.Close = candle.Close
		b.current.Volume += candle.Volume
		return nil
	}

	// Новый бакет: закрываем предыдущую свечу и открываем новую из
	// входа, чтобы граничный тик не потерял свой вклад
	complete := b.finalize()
	b.current = b.open(bucket, candle)
	return complete
}

// open создает незакрытую свечу бакета, засеянную входом
func (b *Builder) open(bucket time.Time, candle *models.Candle) *models.Candle {
	return &models.Candle{
		Symbol:   b.symbol,
		Interval: b.interval,
		OpenTime: bucket,
		Open:     candle.Open,
		High:     candle.High,
		Low:      candle.Low,
		Close:    candle.Close,
		Volume:   candle.Volume,
	}
}

// finalize закрывает и возвращает текущую свечу, очищая состояние
func (b *Builder) finalize() *models.Candle {
	complete := b.current
	complete.Complete = true
	b.current = nil
	return complete
}
