package billing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ComputedStatus is derived from balance and due date alone, independent of
// the status the ledger stored for the charge.
type ComputedStatus string

const (
	ComputedPaid    ComputedStatus = "PAID"
	ComputedOverdue ComputedStatus = "OVERDUE"
	ComputedPending ComputedStatus = "PENDING"
)

type StatementRow struct {
	ChargeID         uuid.UUID
	UnitID           uuid.UUID
	ConceptID        uuid.UUID
	ConceptName      string
	Period           time.Time
	DueDate          time.Time
	Principal        decimal.Decimal
	LateFee          decimal.Decimal
	RegisteredStatus ChargeStatus
	Paid             decimal.Decimal
	Balance          decimal.Decimal
	ComputedStatus   ComputedStatus
}

func NewStatementRow(line *StatementLine, today time.Time) StatementRow {
	c := line.Charge
	balance := c.Due().Sub(line.Paid)

	computed := ComputedPending

	switch {
	case balance.Sign() <= 0:
		computed = ComputedPaid
	case DateOnly(c.DueDate).Before(DateOnly(today)):
		computed = ComputedOverdue
	}

	return StatementRow{
		ChargeID:         c.ID,
		UnitID:           c.UnitID,
		ConceptID:        c.ConceptID,
		ConceptName:      c.ConceptName,
		Period:           c.Period,
		DueDate:          c.DueDate,
		Principal:        c.Principal,
		LateFee:          c.LateFee,
		RegisteredStatus: c.Status,
		Paid:             line.Paid,
		Balance:          balance,
		ComputedStatus:   computed,
	}
}

type StatementQuery struct {
	PeriodFrom *time.Time
	PeriodTo   *time.Time
	// Status matches either the computed or the registered status.
	Status  string
	Page    int
	PerPage int
}

type StatementPage struct {
	Rows       []StatementRow
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

func knownStatementStatus(s string) bool {
	switch s {
	case string(ComputedPaid), string(ComputedOverdue), string(ComputedPending),
		string(ChargePartial), string(ChargeVoid):
		return true
	}

	return false
}

// ListStatement projects a unit's charges into statement rows. It never writes.
func (s *Service) ListStatement(ctx context.Context, unitID uuid.UUID, q StatementQuery) (*StatementPage, error) {
	if q.Status != "" && !knownStatementStatus(q.Status) {
		return nil, Invalid("status", "unknown status "+q.Status)
	}

	if q.PeriodFrom != nil && q.PeriodTo != nil && q.PeriodTo.Before(*q.PeriodFrom) {
		return nil, Invalid("period_to", "must not be before period_from")
	}

	filter := StatementFilter{}

	if q.PeriodFrom != nil {
		from := NormalizePeriod(*q.PeriodFrom)
		filter.PeriodFrom = &from
	}

	if q.PeriodTo != nil {
		to := NormalizePeriod(*q.PeriodTo)
		filter.PeriodTo = &to
	}

	lines, err := s.repo.ListStatement(ctx, unitID, filter)
	if err != nil {
		return nil, fmt.Errorf("list statement: %w", err)
	}

	today := s.now()

	rows := make([]StatementRow, 0, len(lines))

	for _, l := range lines {
		row := NewStatementRow(l, today)
		if q.Status != "" && string(row.ComputedStatus) != q.Status && string(row.RegisteredStatus) != q.Status {
			continue
		}

		rows = append(rows, row)
	}

	return paginate(rows, q.Page, q.PerPage), nil
}

func paginate(rows []StatementRow, page, perPage int) *StatementPage {
	if perPage <= 0 {
		perPage = defaultPerPage
	}

	perPage = min(perPage, maxPerPage)

	if page <= 0 {
		page = 1
	}

	total := len(rows)
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)

	return &StatementPage{
		Rows:       rows[start:end],
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(perPage))),
	}
}
