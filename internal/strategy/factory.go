package strategy

import (
	"fmt"

	"github.com/skalibog/brtb/internal/config"
)

// New создает стратегию по имени из конфигурации. Неизвестное имя —
// ошибка: процесс должен остановиться до запуска конвейера.
func New(name string, cfg *config.Config, tk *Toolkit) (Strategy, error) {
	switch name {
	case "orb":
		return NewORBStrategy(cfg.Strategies.ORB, tk), nil
	case "prev_day":
		return NewPrevDayStrategy(cfg.Strategies.PrevDay, tk), nil
	case "order_block":
		return NewOrderBlockStrategy(cfg.Strategies.OrderBlock, tk, cfg.Trading.Symbols), nil
	default:
		return nil, fmt.Errorf("неизвестная стратегия: %q", name)
	}
}
