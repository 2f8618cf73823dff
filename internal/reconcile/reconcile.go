// Package reconcile settles pending bank-transfer payments from uploaded
// bank statements.
package reconcile

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

// Line is one movement of a bank statement. Amount is always positive;
// Credit tells money in from money out.
type Line struct {
	Row         int
	Date        time.Time
	Description string
	Reference   string
	Amount      decimal.Decimal
	Credit      bool
}

// Statement is a parsed upload.
type Statement struct {
	Profile string
	Charset string
	Lines   []Line
}

type Outcome string

const (
	OutcomeMatched        Outcome = "matched"
	OutcomeAlreadySettled Outcome = "already_settled"
	OutcomeAmountMismatch Outcome = "amount_mismatch"
	OutcomeUnmatched      Outcome = "unmatched"
	OutcomeFailed         Outcome = "failed"
	OutcomeIgnored        Outcome = "ignored"
)

type LineResult struct {
	Line            Line
	Outcome         Outcome
	PaymentID       *uuid.UUID
	Expected        *decimal.Decimal
	SuggestedUnitID *uuid.UUID
	Error           string
}

// Import records one processed file so the same bytes are never applied twice.
type Import struct {
	ID         uuid.UUID
	SHA256     string
	Filename   string
	Lines      int
	Matched    int
	ImportedAt time.Time
}

type Report struct {
	Import  Import
	Profile string
	Charset string
	Results []LineResult
	Counts  map[Outcome]int
}

type Parser interface {
	Parse(r io.Reader) (*Statement, error)
}

type Repository interface {
	// ReserveImport inserts the import row. A second reservation of the same
	// SHA256 fails with billing.ErrConflict.
	ReserveImport(ctx context.Context, imp *Import) error
	CompleteImport(ctx context.Context, imp *Import) error
	ReleaseImport(ctx context.Context, id uuid.UUID) error
}

// Payments is the slice of the billing service reconciliation drives.
type Payments interface {
	ListPayments(ctx context.Context, filter billing.PaymentFilter) ([]*billing.Payment, error)
	Settle(ctx context.Context, id uuid.UUID) (*billing.Payment, error)
}

// UnitSuggester guesses the paying unit of an unmatched credit from its description.
type UnitSuggester interface {
	Suggest(ctx context.Context, rawDescription string) (*uuid.UUID, error)
}
