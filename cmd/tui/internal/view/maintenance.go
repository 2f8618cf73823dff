package view

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

const (
	opAccrue      = "accrue"
	opRecalculate = "recalculate"
)

// maintenanceInput is heap-allocated so form bindings survive model copies.
type maintenanceInput struct {
	Op     string
	AsOf   string
	Rate   string
	UnitID string
	From   string
	To     string
}

// MaintenanceModel runs late-fee accrual or a bulk status recalculation.
type MaintenanceModel struct {
	CommonModel
	svc         *billing.Service
	defaultRate decimal.Decimal

	in      *maintenanceInput
	form    *huh.Form
	running bool
	result  string
	err     error
}

func NewMaintenanceModel(svc *billing.Service, defaultRate decimal.Decimal) MaintenanceModel {
	in := &maintenanceInput{Op: opAccrue}

	return MaintenanceModel{
		svc:         svc,
		defaultRate: defaultRate,
		in:          in,
		form:        maintenanceForm(in, defaultRate),
	}
}

func validDate(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	if _, err := time.Parse(time.DateOnly, strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("use YYYY-MM-DD")
	}

	return nil
}

func maintenanceForm(in *maintenanceInput, defaultRate decimal.Decimal) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Operation").
				Options(
					huh.NewOption("Accrue late fees", opAccrue),
					huh.NewOption("Recalculate charge statuses", opRecalculate),
				).
				Value(&in.Op),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("As of").
				Placeholder(time.Now().Format(time.DateOnly)).
				Value(&in.AsOf).
				Validate(validDate),
			huh.NewInput().
				Title("Daily rate").
				Placeholder(defaultRate.String()).
				Value(&in.Rate).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}

					d, err := decimal.NewFromString(strings.TrimSpace(s))
					if err != nil || d.IsNegative() {
						return fmt.Errorf("not a non-negative number")
					}

					return nil
				}),
		).WithHideFunc(func() bool { return in.Op != opAccrue }),
		huh.NewGroup(
			huh.NewInput().
				Title("Unit ID (empty for all)").
				Value(&in.UnitID).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}

					if _, err := uuid.Parse(strings.TrimSpace(s)); err != nil {
						return fmt.Errorf("not a valid unit id")
					}

					return nil
				}),
			huh.NewInput().Title("Period from (YYYY-MM-DD, optional)").Value(&in.From).Validate(validDate),
			huh.NewInput().Title("Period to (YYYY-MM-DD, optional)").Value(&in.To).Validate(validDate),
		).WithHideFunc(func() bool { return in.Op != opRecalculate }),
	).WithWidth(50).WithShowHelp(false)
}

func (m MaintenanceModel) Init() tea.Cmd {
	return m.form.Init()
}

type maintenanceDoneMsg struct {
	result string
	err    error
}

func (m MaintenanceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case maintenanceDoneMsg:
		m.running = false
		m.result = msg.result
		m.err = msg.err
		m.in = &maintenanceInput{Op: opAccrue}
		m.form = maintenanceForm(m.in, m.defaultRate)

		return m, m.form.Init()

	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			return m, Back
		}
	}

	if m.running {
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.running = true

	if m.in.Op == opRecalculate {
		return m, m.recalculateCmd(m.in.UnitID, m.in.From, m.in.To)
	}

	return m, m.accrueCmd(m.in.AsOf, m.in.Rate)
}

func (m MaintenanceModel) accrueCmd(asOfStr, rateStr string) tea.Cmd {
	asOf := time.Now().UTC().Truncate(24 * time.Hour)
	if s := strings.TrimSpace(asOfStr); s != "" {
		asOf, _ = time.Parse(time.DateOnly, s)
	}

	rate := m.defaultRate
	if s := strings.TrimSpace(rateStr); s != "" {
		rate, _ = decimal.NewFromString(s)
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		n, err := m.svc.AccrueLateFees(ctx, asOf, rate)
		if err != nil {
			return maintenanceDoneMsg{err: err}
		}

		return maintenanceDoneMsg{result: fmt.Sprintf("Accrued late fees as of %s at %s/day: %d charge(s) updated", FormatDate(asOf), rate, n)}
	}
}

func (m MaintenanceModel) recalculateCmd(unitStr, fromStr, toStr string) tea.Cmd {
	var filter billing.RecalculateFilter

	if s := strings.TrimSpace(unitStr); s != "" {
		id := uuid.MustParse(s)
		filter.UnitID = &id
	}

	if s := strings.TrimSpace(fromStr); s != "" {
		from, _ := time.Parse(time.DateOnly, s)
		filter.PeriodFrom = &from
	}

	if s := strings.TrimSpace(toStr); s != "" {
		to, _ := time.Parse(time.DateOnly, s)
		filter.PeriodTo = &to
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		n, err := m.svc.RecalculateCharges(ctx, filter)
		if err != nil {
			return maintenanceDoneMsg{err: err}
		}

		return maintenanceDoneMsg{result: fmt.Sprintf("Recalculated %d charge(s)", n)}
	}
}

func (m MaintenanceModel) View() string {
	body := m.form.View()
	if m.running {
		body = "Running..."
	}

	content := panelStyle.Width(56).Render("Maintenance\n\n" + body)

	if m.err != nil {
		content = lipgloss.JoinVertical(lipgloss.Left, content, errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	} else if m.result != "" {
		content = lipgloss.JoinVertical(lipgloss.Left, content, activeStyle(m.result))
	}

	return lipgloss.NewStyle().Padding(1).Render(content + "\n" + faintStyle.Render("Esc: back"))
}
