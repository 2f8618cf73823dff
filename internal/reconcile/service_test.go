package reconcile_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	"github.com/luisfernandobanegasro/parcial/internal/reconcile"
)

var ctx = context.Background()

type fakeParser struct {
	stmt *reconcile.Statement
	err  error
}

func (p fakeParser) Parse(io.Reader) (*reconcile.Statement, error) {
	return p.stmt, p.err
}

type memoryImports struct {
	bySHA    map[string]*reconcile.Import
	released []uuid.UUID
}

func (m *memoryImports) ReserveImport(_ context.Context, imp *reconcile.Import) error {
	if _, ok := m.bySHA[imp.SHA256]; ok {
		return billing.ErrConflict
	}

	imp.ID = uuid.New()
	m.bySHA[imp.SHA256] = imp

	return nil
}

func (m *memoryImports) CompleteImport(_ context.Context, imp *reconcile.Import) error {
	m.bySHA[imp.SHA256] = imp
	return nil
}

func (m *memoryImports) ReleaseImport(_ context.Context, id uuid.UUID) error {
	m.released = append(m.released, id)

	for k, imp := range m.bySHA {
		if imp.ID == id {
			delete(m.bySHA, k)
		}
	}

	return nil
}

type fakePayments struct {
	payments []*billing.Payment
	settled  []uuid.UUID
	listErr  error
	settleFn func(id uuid.UUID) error
}

func (f *fakePayments) ListPayments(_ context.Context, filter billing.PaymentFilter) ([]*billing.Payment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	var out []*billing.Payment

	for _, p := range f.payments {
		if filter.Method != nil && p.Method != *filter.Method {
			continue
		}

		out = append(out, p)
	}

	return out, nil
}

func (f *fakePayments) Settle(_ context.Context, id uuid.UUID) (*billing.Payment, error) {
	if f.settleFn != nil {
		if err := f.settleFn(id); err != nil {
			return nil, err
		}
	}

	f.settled = append(f.settled, id)

	return &billing.Payment{ID: id, Status: billing.PaymentApproved}, nil
}

type fakeSuggester struct {
	unitID uuid.UUID
}

func (f fakeSuggester) Suggest(_ context.Context, raw string) (*uuid.UUID, error) {
	if strings.Contains(raw, "MARIA") {
		return &f.unitID, nil
	}

	return nil, nil
}

func transfer(ref, amount string, status billing.PaymentStatus) *billing.Payment {
	return &billing.Payment{
		ID:          uuid.New(),
		Method:      billing.MethodTransfer,
		Status:      status,
		Amount:      decimal.RequireFromString(amount),
		ExternalRef: ref,
	}
}

func credit(row int, ref, amount, desc string) reconcile.Line {
	return reconcile.Line{
		Row:         row,
		Reference:   ref,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Credit:      true,
	}
}

func newService(parser reconcile.Parser, imports *memoryImports, payments *fakePayments, suggester reconcile.UnitSuggester) *reconcile.Service {
	return reconcile.NewService(parser, imports, payments, suggester, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestReconcile(t *testing.T) {
	pending := transfer("TRX-1", "150.00", billing.PaymentPending)
	settled := transfer("TRX-2", "80.00", billing.PaymentApproved)
	wrongAmount := transfer("TRX-3", "100.00", billing.PaymentPending)
	cash := &billing.Payment{ID: uuid.New(), Method: billing.MethodCash, Status: billing.PaymentPending, ExternalRef: "TRX-4", Amount: decimal.RequireFromString("10")}
	unitID := uuid.New()

	payments := &fakePayments{payments: []*billing.Payment{pending, settled, wrongAmount, cash}}
	imports := &memoryImports{bySHA: map[string]*reconcile.Import{}}

	parser := fakeParser{stmt: &reconcile.Statement{
		Profile: "bnb",
		Charset: "UTF-8",
		Lines: []reconcile.Line{
			credit(2, "trx-1 ", "150.00", "TRANSFERENCIA JUAN"),
			credit(3, "TRX-1", "150.00", "DUPLICATE LINE"),
			credit(4, "TRX-2", "80", "TRANSFERENCIA ANA"),
			credit(5, "TRX-3", "99.99", "TRANSFERENCIA LUIS"),
			credit(6, "TRX-4", "10.00", "DEPOSITO"),
			credit(7, "", "500.00", "TRANSF DE MARIA LOPEZ"),
			{Row: 8, Reference: "TRX-1", Amount: decimal.RequireFromString("150.00"), Description: "DEBITO"},
		},
	}}

	svc := newService(parser, imports, payments, fakeSuggester{unitID: unitID})

	report, err := svc.Reconcile(ctx, "enero.csv", strings.NewReader("file-bytes"))
	require.NoError(t, err)

	outcomes := make([]reconcile.Outcome, len(report.Results))
	for i, r := range report.Results {
		outcomes[i] = r.Outcome
	}

	assert.Equal(t, []reconcile.Outcome{
		reconcile.OutcomeMatched,
		reconcile.OutcomeUnmatched,
		reconcile.OutcomeAlreadySettled,
		reconcile.OutcomeAmountMismatch,
		reconcile.OutcomeUnmatched,
		reconcile.OutcomeUnmatched,
		reconcile.OutcomeIgnored,
	}, outcomes)

	assert.Equal(t, []uuid.UUID{pending.ID}, payments.settled)
	assert.Equal(t, "100", report.Results[3].Expected.String())
	require.NotNil(t, report.Results[5].SuggestedUnitID)
	assert.Equal(t, unitID, *report.Results[5].SuggestedUnitID)

	assert.Equal(t, 1, report.Counts[reconcile.OutcomeMatched])
	assert.Equal(t, 1, report.Import.Matched)
	assert.Equal(t, 7, report.Import.Lines)
	assert.Len(t, report.Import.SHA256, 64)
	assert.Equal(t, "bnb", report.Profile)

	t.Run("same file twice is a conflict", func(t *testing.T) {
		_, err := svc.Reconcile(ctx, "enero-copia.csv", strings.NewReader("file-bytes"))
		assert.ErrorIs(t, err, billing.ErrConflict)
		assert.Len(t, payments.settled, 1)
	})
}

func TestReconcile_SettleFailureIsReported(t *testing.T) {
	p := transfer("TRX-9", "20.00", billing.PaymentPending)
	payments := &fakePayments{
		payments: []*billing.Payment{p},
		settleFn: func(uuid.UUID) error { return errors.New("lock timeout") },
	}

	svc := newService(
		fakeParser{stmt: &reconcile.Statement{Lines: []reconcile.Line{credit(2, "TRX-9", "20.00", "X")}}},
		&memoryImports{bySHA: map[string]*reconcile.Import{}},
		payments,
		nil,
	)

	report, err := svc.Reconcile(ctx, "f.csv", strings.NewReader("abc"))
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, reconcile.OutcomeFailed, report.Results[0].Outcome)
	assert.Contains(t, report.Results[0].Error, "lock timeout")
}

func TestReconcile_Errors(t *testing.T) {
	t.Run("unparseable file is a validation error", func(t *testing.T) {
		svc := newService(
			fakeParser{err: errors.New("no matching bank format found")},
			&memoryImports{bySHA: map[string]*reconcile.Import{}},
			&fakePayments{},
			nil,
		)

		_, err := svc.Reconcile(ctx, "f.csv", strings.NewReader("abc"))
		assert.True(t, billing.IsValidation(err))
	})

	t.Run("listing failure releases the reservation", func(t *testing.T) {
		imports := &memoryImports{bySHA: map[string]*reconcile.Import{}}
		svc := newService(
			fakeParser{stmt: &reconcile.Statement{Lines: []reconcile.Line{credit(2, "A", "1", "x")}}},
			imports,
			&fakePayments{listErr: errors.New("db down")},
			nil,
		)

		_, err := svc.Reconcile(ctx, "f.csv", strings.NewReader("abc"))
		require.Error(t, err)
		assert.Len(t, imports.released, 1)
		assert.Empty(t, imports.bySHA, "the same file can be retried")
	})
}
