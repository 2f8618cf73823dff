package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

type statementState int

const (
	statementStateUnit statementState = iota
	statementStateBrowse
	statementStatePeriod
)

var statementStatuses = []string{"", "PENDING", "OVERDUE", "PARTIAL", "PAID", "VOID"}

// StatementModel shows the account statement of one unit.
type StatementModel struct {
	CommonModel
	svc *billing.Service

	state  statementState
	form   *huh.Form
	picker TimeframePicker
	table  table.Model

	unitID      uuid.UUID
	query       billing.StatementQuery
	periodLabel string
	statusIdx   int

	page    *billing.StatementPage
	loading bool
	err     error
}

func NewStatementModel(svc *billing.Service) StatementModel {
	m := StatementModel{
		svc:         svc,
		picker:      NewTimeframePicker(),
		periodLabel: TimeframeAll.String(),
		table: newTable([]table.Column{
			{Title: "Period", Width: 8},
			{Title: "Concept", Width: 24},
			{Title: "Due", Width: 11},
			{Title: "Principal", Width: 11},
			{Title: "Late fee", Width: 9},
			{Title: "Paid", Width: 11},
			{Title: "Balance", Width: 11},
			{Title: "Status", Width: 9},
			{Title: "Registered", Width: 10},
		}),
	}
	m.form = unitForm()

	return m
}

// Values are read back with GetString; the model is copied on every update.
func unitForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("unit_id").
				Title("Unit ID").
				Placeholder("00000000-0000-0000-0000-000000000000").
				Validate(func(s string) error {
					if _, err := uuid.Parse(strings.TrimSpace(s)); err != nil {
						return fmt.Errorf("not a valid unit id")
					}

					return nil
				}),
		),
	).WithWidth(50).WithShowHelp(false)
}

func (m StatementModel) Init() tea.Cmd {
	return m.form.Init()
}

type loadStatementMsg struct {
	page *billing.StatementPage
	err  error
}

func (m StatementModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadStatementMsg:
		m.loading = false
		m.err = msg.err

		if msg.err == nil {
			m.page = msg.page
			m.refreshTable()
		}

		return m, nil

	case TimeframeSelectedMsg:
		m.query.PeriodFrom = msg.From
		m.query.PeriodTo = msg.To
		m.periodLabel = msg.Label
		m.state = statementStateBrowse
		m.picker.Reset()
		m.table.Focus()

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 12)
		return m, nil
	}

	switch m.state {
	case statementStateUnit:
		return m.updateUnit(msg)
	case statementStatePeriod:
		return m.updatePeriod(msg)
	default:
		return m.updateBrowse(msg)
	}
}

func (m StatementModel) updateUnit(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		return m, Back
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.unitID = uuid.MustParse(strings.TrimSpace(m.form.GetString("unit_id")))
	m.state = statementStateBrowse
	m.loading = true

	return m, m.loadCmd()
}

func (m StatementModel) updatePeriod(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc && m.picker.IsSelecting() {
		m.state = statementStateBrowse
		m.table.Focus()

		return m, nil
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	return m, cmd
}

func (m StatementModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "s":
			m.statusIdx = (m.statusIdx + 1) % len(statementStatuses)
			m.query.Status = statementStatuses[m.statusIdx]

			return m, m.loadCmd()
		case "p":
			m.state = statementStatePeriod
			m.table.Blur()

			return m, nil
		case "u":
			m.form = unitForm()
			m.state = statementStateUnit

			return m, m.form.Init()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m StatementModel) loadCmd() tea.Cmd {
	unitID, query := m.unitID, m.query
	query.PerPage = 500

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		page, err := m.svc.ListStatement(ctx, unitID, query)

		return loadStatementMsg{page: page, err: err}
	}
}

func (m *StatementModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.page.Rows))

	for _, r := range m.page.Rows {
		rows = append(rows, table.Row{
			FormatPeriod(r.Period),
			r.ConceptName,
			FormatDate(r.DueDate),
			FormatMoney(r.Principal),
			FormatMoney(r.LateFee),
			FormatMoney(r.Paid),
			FormatMoney(r.Balance),
			string(r.ComputedStatus),
			string(r.RegisteredStatus),
		})
	}

	m.table.SetRows(rows)
}

func (m StatementModel) balance() decimal.Decimal {
	total := decimal.Zero
	if m.page == nil {
		return total
	}

	for _, r := range m.page.Rows {
		total = total.Add(r.Balance)
	}

	return total
}

func (m StatementModel) View() string {
	switch m.state {
	case statementStateUnit:
		return panelStyle.Render("Account Statement\n\n" + m.form.View())
	case statementStatePeriod:
		return panelStyle.Render(m.picker.View())
	}

	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading statement...")
	}

	status := statementStatuses[m.statusIdx]
	if status == "" {
		status = "All"
	}

	header := fmt.Sprintf(
		"Unit %s | [p] Periods: %s | [s] Status: %s | Balance: %s",
		m.unitID,
		activeStyle(m.periodLabel),
		activeStyle(status),
		activeStyle(FormatMoney(m.balance())),
	)

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		boxed(m.table.View()),
		faintStyle.Render("Esc: back | u: change unit | r: refresh"),
	)

	if m.err != nil {
		content = errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}
