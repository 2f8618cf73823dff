package main

import (
	"context"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/luisfernandobanegasro/parcial/cmd/tui/internal/view"
	"github.com/luisfernandobanegasro/parcial/internal/billing"
	billingStore "github.com/luisfernandobanegasro/parcial/internal/billing/store"
	"github.com/luisfernandobanegasro/parcial/internal/config"
	"github.com/luisfernandobanegasro/parcial/internal/database"
	"github.com/luisfernandobanegasro/parcial/internal/events"
	"github.com/luisfernandobanegasro/parcial/internal/qrpay"
	"github.com/luisfernandobanegasro/parcial/internal/units"
)

type model struct {
	billingService *billing.Service
	dailyRate      decimal.Decimal

	currentView View

	statementView   view.StatementModel
	paymentsView    view.PaymentsModel
	maintenanceView view.MaintenanceModel
}

type View int

const (
	ViewMenu        View = 0
	ViewStatement   View = 1
	ViewPayments    View = 2
	ViewMaintenance View = 3
)

func initialModel() (model, func()) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// The terminal belongs to bubbletea; keep logs off stdout.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	db, err := database.New(context.Background(), cfg.ConnectionString(), database.DefaultPool)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	keys, err := qrpay.NewKeyring(cfg.QR.Secret, cfg.QR.KeyVersion, cfg.QR.OldestKeyVersion)
	if err != nil {
		slog.Error("failed to build qr keyring", "error", err)
		os.Exit(1)
	}

	publisher, closePublisher := events.Connect(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)

	svc := billing.NewService(
		billingStore.New(db),
		units.NewStore(db),
		qrpay.NewSigner(keys),
		billing.WithPublisher(publisher),
		billing.WithLogger(logger),
		billing.WithSettings(cfg.BillingSettings()),
	)

	cleanup := func() {
		closePublisher()
		db.Close()
	}

	return model{
		billingService:  svc,
		dailyRate:       cfg.Billing.LateFeeDailyRate,
		currentView:     ViewMenu,
		statementView:   view.NewStatementModel(svc),
		paymentsView:    view.NewPaymentsModel(svc),
		maintenanceView: view.NewMaintenanceModel(svc, cfg.Billing.LateFeeDailyRate),
	}, cleanup
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.currentView == ViewMenu {
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewStatement
				m.statementView = view.NewStatementModel(m.billingService)

				return m, m.statementView.Init()
			case "2":
				m.currentView = ViewPayments
				m.paymentsView = view.NewPaymentsModel(m.billingService)

				return m, m.paymentsView.Init()
			case "3":
				m.currentView = ViewMaintenance
				m.maintenanceView = view.NewMaintenanceModel(m.billingService, m.dailyRate)

				return m, m.maintenanceView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewStatement:
		var newModel tea.Model
		newModel, cmd = m.statementView.Update(msg)
		m.statementView = newModel.(view.StatementModel)
	case ViewPayments:
		var newModel tea.Model
		newModel, cmd = m.paymentsView.Update(msg)
		m.paymentsView = newModel.(view.PaymentsModel)
	case ViewMaintenance:
		var newModel tea.Model
		newModel, cmd = m.maintenanceView.Update(msg)
		m.maintenanceView = newModel.(view.MaintenanceModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"Condominium Billing\n\n" +
				"1. Account Statement\n" +
				"2. Payments\n" +
				"3. Late Fees & Recalculation\n\n" +
				"q. Quit",
		)
	case ViewStatement:
		return m.statementView.View()
	case ViewPayments:
		return m.paymentsView.View()
	case ViewMaintenance:
		return m.maintenanceView.View()
	}

	return "Unknown View"
}

func main() {
	m, cleanup := initialModel()
	defer cleanup()

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}
