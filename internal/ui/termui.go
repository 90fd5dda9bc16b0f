package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/skalibog/brtb/internal/config"
	"github.com/skalibog/brtb/internal/levels"
	"github.com/skalibog/brtb/internal/strategy"
	"github.com/skalibog/brtb/pkg/logger"
	"github.com/skalibog/brtb/pkg/models"
)

// Стили UI
var (
	// Основные цвета
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")
	// Главный контейнер
	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	// Заголовок
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#ffffff")).
				Background(secondaryColor).
				Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// TermUI терминальный интерфейс: уровни, сделки и хвост логов
type TermUI struct {
	registry *levels.Registry
	engine   *strategy.Engine
	config   config.UIConfig
	program  *tea.Program

	logs     []string
	logsMu   sync.RWMutex
	logFile  string
	width    int
	height   int
	stopTail chan struct{}
}

// Сообщения для обновления UI
type refreshMsg struct{}

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

// NewTermUI создает терминальный интерфейс
func NewTermUI(cfg config.UIConfig, registry *levels.Registry, engine *strategy.Engine) *TermUI {
	ui := &TermUI{
		registry: registry,
		engine:   engine,
		config:   cfg,
		logs:     []string{"BRTB запущен. Ожидание данных..."},
		logFile:  "brtb.json.log",
		width:    120,
		height:   40,
		stopTail: make(chan struct{}),
	}

	if err := ui.loadLogsFromFile(); err != nil {
		ui.logs = append(ui.logs, fmt.Sprintf("Ошибка загрузки логов: %v", err))
	}

	// Таймер перечитывания логов и обновления экрана
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.RefreshRate) * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := ui.loadLogsFromFile(); err != nil {
					logger.Warn("Ошибка загрузки логов", zap.Error(err))
				}
				if ui.program != nil {
					ui.program.Send(refreshMsg{})
				}
			case <-ui.stopTail:
				return
			}
		}
	}()

	return ui
}

// Start запускает интерфейс; блокирует до выхода пользователя
func (ui *TermUI) Start() error {
	model := bubbleModel{ui: ui}
	ui.program = tea.NewProgram(model, tea.WithAltScreen())

	_, err := ui.program.Run()
	close(ui.stopTail)
	return err
}

// loadLogsFromFile читает хвост JSON-лога и форматирует записи
func (ui *TermUI) loadLogsFromFile() error {
	file, err := os.Open(ui.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var logs []string

	// Регулярное выражение для удаления ANSI-цветов
	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)

	for scanner.Scan() {
		line := scanner.Text()

		var zapLog map[string]interface{}
		if err := json.Unmarshal([]byte(line), &zapLog); err == nil {
			level, _ := zapLog["level"].(string)
			ts, _ := zapLog["ts"].(string)
			msg, _ := zapLog["msg"].(string)

			level = ansiRegex.ReplaceAllString(level, "")

			timestamp := ""
			if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
				timestamp = t.Format("15:04:05")
			}

			formattedMsg := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)
			for k, v := range zapLog {
				if k != "level" && k != "ts" && k != "msg" && k != "caller" {
					formattedMsg += fmt.Sprintf(" (%s: %v)", k, v)
				}
			}
			logs = append(logs, formattedMsg)
		} else {
			logs = append(logs, line)
		}

		if len(logs) > 50 {
			logs = logs[1:]
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	ui.logsMu.Lock()
	defer ui.logsMu.Unlock()
	if len(logs) > 0 {
		ui.logs = logs
	}
	return nil
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return nil
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.ui.width = msg.Width
		m.ui.height = msg.Height

	case refreshMsg:
		// Просто обновляем UI
	}

	return m, nil
}

func (m bubbleModel) View() string {
	m.ui.logsMu.RLock()
	defer m.ui.logsMu.RUnlock()

	title := titleStyle.Render("BRTB - Break and Retest Trading Bot")
	levelsSection := renderLevelsSection(m.ui.registry.All())
	tradesSection := renderTradesSection(m.ui.engine.OpenTrades(), m.ui.engine.ClosedTrades())
	logsSection := renderLogsSection(m.ui.logs)
	footer := footerStyle.Render("Клавиши: Q - выход")

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			levelsSection,
			"\n",
			tradesSection,
			"\n",
			logsSection,
			"\n",
			footer,
		),
	)
}

// renderLevelsSection выводит активные уровни по символам
func renderLevelsSection(all map[string][]*models.Level) string {
	header := sectionHeaderStyle.Render("УРОВНИ")
	content := strings.Builder{}

	symbols := make([]string, 0, len(all))
	for symbol := range all {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	empty := true
	for _, symbol := range symbols {
		for _, level := range all[symbol] {
			if !level.Active {
				continue
			}
			empty = false
			line := fmt.Sprintf("  %s %s: %.2f", symbol, level.Type, level.Price)
			if level.IsZone() {
				line = fmt.Sprintf("  %s %s: %.2f-%.2f", symbol, level.Type, level.ZoneLow, level.ZoneHigh)
			}
			if level.HasBeenBroken() {
				line += lipgloss.NewStyle().Foreground(warningColor).Render(" [пробит]")
			}
			content.WriteString(line + "\n")
		}
	}
	if empty {
		content.WriteString("  Ожидание данных...\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

// renderTradesSection выводит открытые и последние закрытые сделки
func renderTradesSection(open, closed []*models.Trade) string {
	header := sectionHeaderStyle.Render("СДЕЛКИ")
	content := strings.Builder{}

	if len(open) == 0 && len(closed) == 0 {
		content.WriteString("  Сделок нет\n")
	}

	for _, tr := range open {
		line := fmt.Sprintf("  %s %s (%s) вход=%.2f стоп=%.2f цель=%.2f x%d",
			tr.Symbol, tr.Direction, tr.StrategyName,
			tr.EntryPrice, tr.StopLoss, tr.TakeProfit, tr.Quantity)
		content.WriteString(lipgloss.NewStyle().Foreground(primaryColor).Render(line) + "\n")
	}

	// Последние пять закрытых
	start := 0
	if len(closed) > 5 {
		start = len(closed) - 5
	}
	for _, tr := range closed[start:] {
		pl, _ := tr.ProfitLossAmount()
		line := fmt.Sprintf("  %s %s (%s) выход=%.2f P&L=%.2f [%s]",
			tr.Symbol, tr.Direction, tr.StrategyName, tr.ExitPrice, pl, tr.Result)
		style := lipgloss.NewStyle().Foreground(successColor)
		if pl < 0 {
			style = lipgloss.NewStyle().Foreground(errorColor)
		}
		content.WriteString(style.Render(line) + "\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}

func renderLogsSection(logs []string) string {
	header := sectionHeaderStyle.Render("ЛОГИ")
	content := strings.Builder{}

	maxLogsToShow := 10
	start := 0
	if len(logs) > maxLogsToShow {
		start = len(logs) - maxLogsToShow
	}

	for i := start; i < len(logs); i++ {
		log := logs[i]

		// Выделение по уровню логирования
		if strings.Contains(log, "[ERROR]") {
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		} else if strings.Contains(log, "[INFO]") {
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		} else if strings.Contains(log, "[WARN]") {
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		} else if strings.Contains(log, "[DEBUG]") {
			log = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(log)
		}

		content.WriteString("  " + log + "\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left, header, content.String()),
	)
}
