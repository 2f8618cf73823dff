package view

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Timeframe is a predefined or custom range of billing periods.
type Timeframe int

const (
	TimeframeThisMonth Timeframe = iota
	TimeframeLastMonth
	TimeframeThisYear
	TimeframeLastYear
	TimeframeAll
	TimeframeCustom
)

func (t Timeframe) String() string {
	switch t {
	case TimeframeThisMonth:
		return "This Month"
	case TimeframeLastMonth:
		return "Last Month"
	case TimeframeThisYear:
		return "This Year"
	case TimeframeLastYear:
		return "Last Year"
	case TimeframeAll:
		return "All Periods"
	case TimeframeCustom:
		return "Custom Range"
	}

	return "Unknown"
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// periodRange returns the first and last period (first of month) covered by tf.
func periodRange(tf Timeframe, now time.Time) (time.Time, time.Time) {
	this := monthStart(now)

	switch tf {
	case TimeframeLastMonth:
		last := this.AddDate(0, -1, 0)
		return last, last
	case TimeframeThisYear:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), this
	case TimeframeLastYear:
		return time.Date(now.Year()-1, time.January, 1, 0, 0, 0, 0, time.UTC),
			time.Date(now.Year()-1, time.December, 1, 0, 0, 0, 0, time.UTC)
	default:
		return this, this
	}
}

// TimeframeSelectedMsg carries the chosen period range; both are nil for All.
type TimeframeSelectedMsg struct {
	From  *time.Time
	To    *time.Time
	Label string
}

type timeframeState int

const (
	timeframeStateSelect timeframeState = iota
	timeframeStateCustom
)

// TimeframePicker selects a range of billing periods.
type TimeframePicker struct {
	state    timeframeState
	selected Timeframe

	fromInput  textinput.Model
	toInput    textinput.Model
	focusIndex int

	err error
}

func NewTimeframePicker() TimeframePicker {
	fi := textinput.New()
	fi.Placeholder = "YYYY-MM"
	fi.CharLimit = 7
	fi.Width = 9
	fi.Prompt = "From period: "

	ti := textinput.New()
	ti.Placeholder = "YYYY-MM"
	ti.CharLimit = 7
	ti.Width = 9
	ti.Prompt = "To period:   "

	return TimeframePicker{
		state:     timeframeStateSelect,
		selected:  TimeframeAll,
		fromInput: fi,
		toInput:   ti,
	}
}

func (m TimeframePicker) Init() tea.Cmd {
	return nil
}

func (m TimeframePicker) Update(msg tea.Msg) (TimeframePicker, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch m.state {
		case timeframeStateSelect:
			return m.updateSelect(msg)
		case timeframeStateCustom:
			if next, cmd, handled := m.updateCustom(msg); handled {
				return next, cmd
			}
		}
	}

	if m.state == timeframeStateCustom {
		return m.updateInputs(msg)
	}

	return m, nil
}

func (m TimeframePicker) updateSelect(msg tea.KeyMsg) (TimeframePicker, tea.Cmd) {
	switch msg.Type {
	case tea.KeyUp:
		if m.selected > TimeframeThisMonth {
			m.selected--
		}
	case tea.KeyDown:
		if m.selected < TimeframeCustom {
			m.selected++
		}
	case tea.KeyEnter:
		switch m.selected {
		case TimeframeCustom:
			m.state = timeframeStateCustom
			m.focusIndex = 0
			m.fromInput.Focus()

			return m, textinput.Blink
		case TimeframeAll:
			return m, selected(TimeframeSelectedMsg{Label: m.selected.String()})
		}

		from, to := periodRange(m.selected, time.Now())

		return m, selected(TimeframeSelectedMsg{From: &from, To: &to, Label: m.selected.String()})
	}

	return m, nil
}

func (m TimeframePicker) updateCustom(msg tea.KeyMsg) (TimeframePicker, tea.Cmd, bool) {
	switch msg.String() {
	case "tab", "shift+tab":
		m.focusIndex = (m.focusIndex + 1) % 2
		m.fromInput.Blur()
		m.toInput.Blur()

		if m.focusIndex == 0 {
			m.fromInput.Focus()
		} else {
			m.toInput.Focus()
		}

		return m, textinput.Blink, true

	case "enter":
		from, err := time.Parse("2006-01", m.fromInput.Value())
		if err != nil {
			m.err = fmt.Errorf("invalid from period (YYYY-MM)")
			return m, nil, true
		}

		to, err := time.Parse("2006-01", m.toInput.Value())
		if err != nil {
			m.err = fmt.Errorf("invalid to period (YYYY-MM)")
			return m, nil, true
		}

		if to.Before(from) {
			m.err = fmt.Errorf("to period is before from period")
			return m, nil, true
		}

		m.err = nil
		label := FormatPeriod(from) + " to " + FormatPeriod(to)

		return m, selected(TimeframeSelectedMsg{From: &from, To: &to, Label: label}), true

	case "esc":
		m.state = timeframeStateSelect
		m.err = nil

		return m, nil, true
	}

	return m, nil, false
}

func (m TimeframePicker) updateInputs(msg tea.Msg) (TimeframePicker, tea.Cmd) {
	var fromCmd, toCmd tea.Cmd

	m.fromInput, fromCmd = m.fromInput.Update(msg)
	m.toInput, toCmd = m.toInput.Update(msg)

	return m, tea.Batch(fromCmd, toCmd)
}

func selected(msg TimeframeSelectedMsg) tea.Cmd {
	return func() tea.Msg { return msg }
}

func (m TimeframePicker) View() string {
	errStr := ""
	if m.err != nil {
		errStr = "\n\n" + errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	if m.state == timeframeStateCustom {
		return fmt.Sprintf(
			"Enter period range:\n\n%s\n%s\n\n(Enter to confirm, Tab to switch, Esc to back)%s",
			m.fromInput.View(),
			m.toInput.View(),
			errStr,
		)
	}

	s := "Select periods:\n\n"
	for i := TimeframeThisMonth; i <= TimeframeCustom; i++ {
		cursor := " "
		if m.selected == i {
			cursor = ">"
		}

		s += fmt.Sprintf("%s %s\n", cursor, i.String())
	}

	s += "\n(Enter to select, Esc to cancel)"

	return s + errStr
}

// IsSelecting reports whether the picker is on the preset list.
func (m TimeframePicker) IsSelecting() bool {
	return m.state == timeframeStateSelect
}

func (m *TimeframePicker) Reset() {
	m.state = timeframeStateSelect
	m.err = nil
	m.fromInput.SetValue("")
	m.toInput.SetValue("")
}
