// Package export renders account statements for owners and accountants.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

// exportPageSize is large enough that a unit's full history fits one page.
const exportPageSize = 500

type StatementLister interface {
	ListStatement(ctx context.Context, unitID uuid.UUID, q billing.StatementQuery) (*billing.StatementPage, error)
}

type Service struct {
	statements StatementLister
	units      billing.UnitDirectory
}

func NewService(statements StatementLister, units billing.UnitDirectory) *Service {
	return &Service{statements: statements, units: units}
}

// Export is a unit together with its full statement.
type Export struct {
	Unit *billing.Unit
	Rows []billing.StatementRow
}

func (s *Service) Export(ctx context.Context, unitID uuid.UUID, q billing.StatementQuery) (*Export, error) {
	unit, err := s.units.GetUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("get unit: %w", err)
	}

	rows, err := s.statement(ctx, unitID, q)
	if err != nil {
		return nil, err
	}

	return &Export{Unit: unit, Rows: rows}, nil
}

// statement loads every row, walking all pages.
func (s *Service) statement(ctx context.Context, unitID uuid.UUID, q billing.StatementQuery) ([]billing.StatementRow, error) {
	q.PerPage = exportPageSize

	var rows []billing.StatementRow

	for page := 1; ; page++ {
		q.Page = page

		p, err := s.statements.ListStatement(ctx, unitID, q)
		if err != nil {
			return nil, fmt.Errorf("listing statement page %d: %w", page, err)
		}

		rows = append(rows, p.Rows...)

		if page >= p.TotalPages {
			return rows, nil
		}
	}
}

var csvHeader = []string{"period", "concept", "due_date", "principal", "late_fee", "paid", "balance", "status", "registered_status"}

// WriteCSV writes rows as semicolon-separated values, the layout spreadsheet
// tools expect under Spanish locales.
func WriteCSV(w io.Writer, rows []billing.StatementRow) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.Period.Format("2006-01"),
			r.ConceptName,
			r.DueDate.Format(time.DateOnly),
			r.Principal.StringFixed(2),
			r.LateFee.StringFixed(2),
			r.Paid.StringFixed(2),
			r.Balance.StringFixed(2),
			string(r.ComputedStatus),
			string(r.RegisteredStatus),
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}

	cw.Flush()

	return cw.Error()
}

// Summary is a plain-text digest suitable for an email to the owner.
func Summary(unitCode string, rows []billing.StatementRow) string {
	var (
		sb      strings.Builder
		balance = decimal.Zero
		overdue int
	)

	fmt.Fprintf(&sb, "Estado de cuenta %s\n\n", unitCode)

	for _, r := range rows {
		balance = balance.Add(r.Balance)

		if r.ComputedStatus == billing.ComputedOverdue {
			overdue++
		}

		fmt.Fprintf(&sb, "* %s | %s | %s | saldo %s\n",
			r.Period.Format("2006-01"),
			r.ConceptName,
			r.ComputedStatus,
			r.Balance.StringFixed(2),
		)
	}

	fmt.Fprintf(&sb, "\nCargos vencidos: %d\nSaldo total: %s\n", overdue, balance.StringFixed(2))

	return sb.String()
}
