package strategy

import (
	"fmt"
	"time"
)

// Session торговое окно: время начала и конца внутри дня плюс
// разрешенные дни недели. Времена трактуются в UTC.
type Session struct {
	startMinute int
	endMinute   int
	days        map[time.Weekday]bool
}

// NewSession разбирает границы сессии вида "09:30" и список дней недели
func NewSession(start, end string, days []string) (*Session, error) {
	startMinute, err := parseClock(start)
	if err != nil {
		return nil, fmt.Errorf("начало сессии: %w", err)
	}
	endMinute, err := parseClock(end)
	if err != nil {
		return nil, fmt.Errorf("конец сессии: %w", err)
	}
	if endMinute <= startMinute {
		return nil, fmt.Errorf("конец сессии %q не позже начала %q", end, start)
	}

	s := &Session{
		startMinute: startMinute,
		endMinute:   endMinute,
		days:        make(map[time.Weekday]bool),
	}
	for _, name := range days {
		day, err := parseWeekday(name)
		if err != nil {
			return nil, err
		}
		s.days[day] = true
	}
	return s, nil
}

// Contains сообщает, попадает ли момент в торговое окно
func (s *Session) Contains(t time.Time) bool {
	t = t.UTC()
	if !s.days[t.Weekday()] {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	return minute >= s.startMinute && minute < s.endMinute
}

// Open возвращает момент открытия сессии в день момента t
func (s *Session) Open(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), s.startMinute/60, s.startMinute%60, 0, 0, time.UTC)
}

func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("неверный формат времени %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseWeekday(name string) (time.Weekday, error) {
	for day := time.Sunday; day <= time.Saturday; day++ {
		if day.String() == name {
			return day, nil
		}
	}
	return 0, fmt.Errorf("неизвестный день недели: %q", name)
}
