package view

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

type paymentsState int

const (
	paymentsStateBrowse paymentsState = iota
	paymentsStateConfirm
)

type paymentAction int

const (
	actionSettle paymentAction = iota
	actionVoid
)

func (a paymentAction) String() string {
	if a == actionVoid {
		return "Void"
	}

	return "Settle"
}

var paymentStatusFilters = []billing.PaymentStatus{billing.PaymentPending, billing.PaymentApproved, billing.PaymentVoid, ""}

// PaymentsModel lists payments and settles or voids the selected one.
type PaymentsModel struct {
	CommonModel
	svc *billing.Service

	state    paymentsState
	table    table.Model
	payments []*billing.Payment
	form     *huh.Form
	action   paymentAction

	statusIdx int
	filter    billing.PaymentFilter
	loading   bool
	err       error
	status    string
}

func NewPaymentsModel(svc *billing.Service) PaymentsModel {
	m := PaymentsModel{
		svc: svc,
		table: newTable([]table.Column{
			{Title: "Created", Width: 11},
			{Title: "Unit", Width: 10},
			{Title: "Method", Width: 9},
			{Title: "Status", Width: 9},
			{Title: "Amount", Width: 11},
			{Title: "Reference", Width: 16},
			{Title: "Document", Width: 16},
		}),
	}
	m.applyFilter()

	return m
}

func (m PaymentsModel) Init() tea.Cmd {
	return m.loadCmd()
}

type loadPaymentsMsg struct {
	payments []*billing.Payment
	err      error
}

type paymentActionMsg struct {
	payment *billing.Payment
	action  paymentAction
	err     error
}

func (m PaymentsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadPaymentsMsg:
		m.loading = false
		m.err = msg.err

		if msg.err == nil {
			m.payments = msg.payments
			m.refreshTable()
		}

		return m, nil

	case paymentActionMsg:
		m.state = paymentsStateBrowse
		m.form = nil
		m.table.Focus()

		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		} else {
			m.status = fmt.Sprintf("%s done: payment %s is %s", msg.action, msg.payment.ID, msg.payment.Status)
		}

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	if m.state == paymentsStateConfirm {
		return m.updateConfirm(msg)
	}

	return m.updateBrowse(msg)
}

func (m PaymentsModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "s":
			m.statusIdx = (m.statusIdx + 1) % len(paymentStatusFilters)
			m.applyFilter()

			return m, m.loadCmd()
		case "a":
			return m.askConfirm(actionSettle)
		case "v":
			return m.askConfirm(actionVoid)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m PaymentsModel) selected() *billing.Payment {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.payments) {
		return nil
	}

	return m.payments[idx]
}

func (m PaymentsModel) askConfirm(action paymentAction) (tea.Model, tea.Cmd) {
	p := m.selected()
	if p == nil {
		return m, nil
	}

	m.action = action
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Key("confirm").
				Title(fmt.Sprintf("%s payment of %s %s?", action, FormatMoney(p.Amount), p.Currency)).
				Affirmative("Yes").
				Negative("No"),
		),
	).WithWidth(45).WithShowHelp(false)

	m.state = paymentsStateConfirm
	m.table.Blur()

	return m, m.form.Init()
}

func (m PaymentsModel) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = paymentsStateBrowse
		m.form = nil
		m.table.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	if !m.form.GetBool("confirm") {
		m.state = paymentsStateBrowse
		m.form = nil
		m.table.Focus()

		return m, nil
	}

	return m, m.actionCmd(m.selected(), m.action)
}

func (m PaymentsModel) actionCmd(p *billing.Payment, action paymentAction) tea.Cmd {
	if p == nil {
		return nil
	}

	run := m.svc.Settle
	if action == actionVoid {
		run = m.svc.Void
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		updated, err := run(ctx, p.ID)

		return paymentActionMsg{payment: updated, action: action, err: err}
	}
}

func (m *PaymentsModel) applyFilter() {
	status := paymentStatusFilters[m.statusIdx]
	if status == "" {
		m.filter.Status = nil
		return
	}

	m.filter.Status = &status
}

func (m PaymentsModel) loadCmd() tea.Cmd {
	filter := m.filter

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		payments, err := m.svc.ListPayments(ctx, filter)

		return loadPaymentsMsg{payments: payments, err: err}
	}
}

func (m *PaymentsModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.payments))

	for _, p := range m.payments {
		doc := ""
		if p.Document != nil {
			doc = p.Document.Number
		}

		rows = append(rows, table.Row{
			FormatDate(p.CreatedAt),
			p.UnitID.String()[:8],
			string(p.Method),
			string(p.Status),
			FormatMoney(p.Amount),
			p.ExternalRef,
			doc,
		})
	}

	m.table.SetRows(rows)
}

func (m PaymentsModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading payments...")
	}

	statusLabel := string(paymentStatusFilters[m.statusIdx])
	if statusLabel == "" {
		statusLabel = "All"
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render("Filter: [s] Status: "+activeStyle(statusLabel)),
		boxed(m.table.View()),
		faintStyle.Render("Esc: back | a: settle | v: void | r: refresh"),
	)

	if m.state == paymentsStateConfirm && m.form != nil {
		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panelStyle.Width(48).Render(m.form.View()))
	}

	if m.err != nil {
		content = errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n" + content
	} else if m.status != "" {
		content = faintStyle.Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}
