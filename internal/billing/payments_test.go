package billing_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	"github.com/luisfernandobanegasro/parcial/internal/billing/billingtest"
)

func sumAllocations(p *billing.Payment) string {
	total := dec("0")
	for _, a := range p.Allocations {
		total = total.Add(a.Amount)
	}

	return total.StringFixed(2)
}

func TestRegisterPayment_CashThenVoid(t *testing.T) {
	f := newFixture(t)
	c := f.charge(t, f.unit.ID, "50.00", date(2024, 1, 10))

	p := f.pay(t, billing.MethodCash, alloc(c, "50.00"))

	assert.Equal(t, billing.PaymentApproved, p.Status)
	assert.Equal(t, p.Amount.StringFixed(2), sumAllocations(p))
	assert.Equal(t, billing.ChargePaid, f.status(t, c.ID))

	voided, err := f.svc.Void(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, billing.PaymentVoid, voided.Status)
	assert.Equal(t, billing.ChargePending, f.status(t, c.ID))

	stored, err := f.svc.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", stored.Amount.StringFixed(2))
	assert.Equal(t, "0.00", sumAllocations(stored))

	rows := f.store.Allocations(c.ID)
	require.Len(t, rows, 1, "voiding keeps allocation rows")
	assert.True(t, rows[0].Amount.IsZero())
}

func TestRegisterPayment_TwoPartialPayments(t *testing.T) {
	f := newFixture(t)
	c := f.charge(t, f.unit.ID, "100.00", date(2024, 2, 10))

	f.pay(t, billing.MethodCash, alloc(c, "40.00"))
	f.pay(t, billing.MethodCash, alloc(c, "30.00"))

	assert.Equal(t, billing.ChargePartial, f.status(t, c.ID))

	page, err := f.svc.ListStatement(ctx, f.unit.ID, billing.StatementQuery{})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "70.00", page.Rows[0].Paid.StringFixed(2))
	assert.Equal(t, "30.00", page.Rows[0].Balance.StringFixed(2))
}

func TestRegisterPayment_SplitAcrossCharges(t *testing.T) {
	f := newFixture(t)
	a := f.charge(t, f.unit.ID, "20.00", date(2024, 2, 10))
	b := f.charge(t, f.unit.ID, "30.00", date(2024, 2, 10))

	p := f.pay(t, billing.MethodCash, alloc(a, "20.00"), alloc(b, "10.00"))

	assert.Equal(t, "30.00", p.Amount.StringFixed(2))
	assert.Equal(t, billing.ChargePaid, f.status(t, a.ID))
	assert.Equal(t, billing.ChargePartial, f.status(t, b.ID))
}

func TestRegisterPayment_Validation(t *testing.T) {
	f := newFixture(t)
	other := f.units.NewUnit("B-202")

	own := f.charge(t, f.unit.ID, "10.00", date(2024, 2, 10))
	foreign := f.charge(t, other.ID, "10.00", date(2024, 2, 10))
	void := f.charge(t, f.unit.ID, "10.00", date(2024, 3, 10))
	_, err := f.svc.VoidCharge(ctx, void.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		params billing.RegisterParams
		field  string
	}{
		{
			name:   "no allocations",
			params: billing.RegisterParams{UnitID: f.unit.ID, Method: billing.MethodCash},
			field:  "allocations",
		},
		{
			name: "unknown method",
			params: billing.RegisterParams{
				UnitID:      f.unit.ID,
				Method:      "CHEQUE",
				Allocations: []billing.AllocationParams{alloc(own, "1.00")},
			},
			field: "method",
		},
		{
			name: "zero amount",
			params: billing.RegisterParams{
				UnitID:      f.unit.ID,
				Method:      billing.MethodCash,
				Allocations: []billing.AllocationParams{alloc(own, "0")},
			},
			field: "allocations[0].amount",
		},
		{
			name: "fractional cents",
			params: billing.RegisterParams{
				UnitID:      f.unit.ID,
				Method:      billing.MethodCash,
				Allocations: []billing.AllocationParams{alloc(own, "1.001")},
			},
			field: "allocations[0].amount",
		},
		{
			name: "same charge twice",
			params: billing.RegisterParams{
				UnitID:      f.unit.ID,
				Method:      billing.MethodCash,
				Allocations: []billing.AllocationParams{alloc(own, "1.00"), alloc(own, "2.00")},
			},
			field: "allocations[1].charge_id",
		},
		{
			name: "charge of another unit",
			params: billing.RegisterParams{
				UnitID:      f.unit.ID,
				Method:      billing.MethodCash,
				Allocations: []billing.AllocationParams{alloc(own, "5.00"), alloc(foreign, "5.00")},
			},
			field: "allocations",
		},
		{
			name: "unknown charge",
			params: billing.RegisterParams{
				UnitID:      f.unit.ID,
				Method:      billing.MethodCash,
				Allocations: []billing.AllocationParams{{ChargeID: uuid.New(), Amount: dec("1.00")}},
			},
			field: "allocations",
		},
		{
			name: "void charge",
			params: billing.RegisterParams{
				UnitID:      f.unit.ID,
				Method:      billing.MethodCash,
				Allocations: []billing.AllocationParams{alloc(void, "1.00")},
			},
			field: "allocations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RegisterPayment(ctx, tt.params)

			var ve *billing.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, tt.field)
			assert.Zero(t, f.store.PaymentCount(), "rejected payments write nothing")
		})
	}

	assert.Equal(t, billing.ChargePending, f.status(t, own.ID))
	assert.Equal(t, billing.ChargePending, f.status(t, foreign.ID))
}

func TestRegisterPayment_NonCashCountsOnRegistration(t *testing.T) {
	f := newFixture(t)
	c := f.charge(t, f.unit.ID, "75.00", date(2024, 2, 10))

	p := f.pay(t, billing.MethodTransfer, alloc(c, "75.00"))
	assert.Equal(t, billing.PaymentPending, p.Status)
	assert.Nil(t, p.PaidAt)
	assert.Equal(t, billing.ChargePaid, f.status(t, c.ID))
	assert.Empty(t, f.events.Types())

	settled, err := f.svc.Settle(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentApproved, settled.Status)
	assert.NotNil(t, settled.PaidAt)
	assert.Equal(t, billing.ChargePaid, f.status(t, c.ID), "settling re-runs the same recalculation")

	again, err := f.svc.Settle(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentApproved, again.Status)
	assert.Equal(t, []billing.EventType{billing.EventPaymentApproved}, f.events.Types())
}

func TestRegisterPayment_SplitAcrossPendingPayments(t *testing.T) {
	f := newFixture(t)
	c := f.charge(t, f.unit.ID, "100.00", date(2024, 2, 10))

	f.pay(t, billing.MethodTransfer, alloc(c, "40.00"))
	f.pay(t, billing.MethodQR, alloc(c, "30.00"))

	assert.Equal(t, billing.ChargePartial, f.status(t, c.ID))

	page, err := f.svc.ListStatement(ctx, f.unit.ID, billing.StatementQuery{})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "70.00", page.Rows[0].Paid.StringFixed(2))
	assert.Equal(t, "30.00", page.Rows[0].Balance.StringFixed(2))
	assert.Equal(t, billing.ChargePartial, page.Rows[0].RegisteredStatus)
}

func TestSettle_VoidedPaymentConflicts(t *testing.T) {
	f := newFixture(t)
	c := f.charge(t, f.unit.ID, "75.00", date(2024, 2, 10))
	p := f.pay(t, billing.MethodTransfer, alloc(c, "75.00"))

	_, err := f.svc.Void(ctx, p.ID)
	require.NoError(t, err)

	_, err = f.svc.Settle(ctx, p.ID)
	assert.ErrorIs(t, err, billing.ErrConflict)
	assert.Equal(t, billing.ChargePending, f.status(t, c.ID))
}

func TestVoid_Twice(t *testing.T) {
	f := newFixture(t)
	c := f.charge(t, f.unit.ID, "50.00", date(2024, 2, 10))
	p := f.pay(t, billing.MethodCash, alloc(c, "50.00"))

	first, err := f.svc.Void(ctx, p.ID)
	require.NoError(t, err)

	second, err := f.svc.Void(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, []billing.EventType{billing.EventPaymentApproved, billing.EventPaymentVoided}, f.events.Types())
}

func TestVoid_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Void(ctx, uuid.New())
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestVoidCharge_IsSticky(t *testing.T) {
	f := newFixture(t)
	c := f.charge(t, f.unit.ID, "50.00", date(2024, 2, 10))
	p := f.pay(t, billing.MethodTransfer, alloc(c, "50.00"))

	_, err := f.svc.VoidCharge(ctx, c.ID)
	require.NoError(t, err)

	_, err = f.svc.Settle(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.ChargeVoid, f.status(t, c.ID))

	_, err = f.svc.Void(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.ChargeVoid, f.status(t, c.ID))

	require.NoError(t, f.svc.Recalculate(ctx, c.ID))
	assert.Equal(t, billing.ChargeVoid, f.status(t, c.ID))
}

func TestRegisterPayment_Documents(t *testing.T) {
	f := newFixture(t)
	c := f.charge(t, f.unit.ID, "300.00", date(2024, 2, 10))

	register := func(number string) (*billing.Payment, error) {
		return f.svc.RegisterPayment(ctx, billing.RegisterParams{
			UnitID:           f.unit.ID,
			Method:           billing.MethodCash,
			Allocations:      []billing.AllocationParams{alloc(c, "10.00")},
			GenerateDocument: true,
			Document:         billing.DocumentParams{Number: number},
		})
	}

	first, err := register("")
	require.NoError(t, err)
	require.NotNil(t, first.Document)
	assert.Equal(t, "R-2024-000001", first.Document.Number)
	assert.Equal(t, billing.DocumentReceipt, first.Document.Type)
	assert.Equal(t, "BOB", first.Document.Currency)
	assert.Equal(t, f.unit.CondominiumID, first.Document.CondominiumID)

	second, err := register("")
	require.NoError(t, err)
	assert.Equal(t, "R-2024-000002", second.Document.Number)

	_, err = register("R-2024-000002")
	assert.ErrorIs(t, err, billing.ErrConflict)
	assert.Equal(t, 2, f.store.PaymentCount())
}

func TestFormatDocumentNumber(t *testing.T) {
	assert.Equal(t, "F-2025-000123", billing.FormatDocumentNumber("F", 2025, 123))
	assert.Equal(t, "R-2024-1234567", billing.FormatDocumentNumber("R", 2024, 1234567))
}

func TestRegisterPayment_PublishFailureIsNotFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := billing.NewMockPublisher(ctrl)

	f := newFixture(t, billing.WithPublisher(pub))
	c := f.charge(t, f.unit.ID, "10.00", date(2024, 2, 10))

	pub.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, e billing.Event) error {
			assert.Equal(t, billing.EventPaymentApproved, e.Type)
			assert.Equal(t, "10.00", e.Amount.StringFixed(2))
			return errors.New("broker down")
		})

	p := f.pay(t, billing.MethodCash, alloc(c, "10.00"))
	assert.Equal(t, billing.PaymentApproved, p.Status)
}

func TestRegisterPayment_InsertFailureRollsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := billing.NewMockRepository(ctrl)
	tx := billing.NewMockTx(ctrl)
	unitID := uuid.New()
	chargeID := uuid.New()

	repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	tx.EXPECT().LockCharge(gomock.Any(), chargeID).Return(&billing.Charge{
		ID:     chargeID,
		UnitID: unitID,
		Status: billing.ChargePending,
	}, nil)
	tx.EXPECT().InsertPayment(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	tx.EXPECT().Rollback().Return(nil)

	svc := billing.NewService(repo, billingtest.Units{}, nil, billing.WithLogger(discardLogger()))

	_, err := svc.RegisterPayment(ctx, billing.RegisterParams{
		UnitID:      unitID,
		Method:      billing.MethodCash,
		Allocations: []billing.AllocationParams{{ChargeID: chargeID, Amount: dec("5.00")}},
	})
	assert.ErrorContains(t, err, "disk full")
}

func TestExternallyRejectedPaymentIsFinal(t *testing.T) {
	f := newFixture(t)
	c := f.charge(t, f.unit.ID, "75.00", date(2024, 2, 10))
	p := f.pay(t, billing.MethodCard, alloc(c, "75.00"))

	// Gateway integrations write REJECTED straight to the payment row.
	tx, err := f.store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SetPaymentStatus(ctx, p.ID, billing.PaymentRejected, nil))
	require.NoError(t, tx.Commit())

	_, err = f.svc.Settle(ctx, p.ID)
	assert.ErrorIs(t, err, billing.ErrConflict)

	_, err = f.svc.CreateIntent(ctx, p.ID, 0)
	assert.ErrorIs(t, err, billing.ErrConflict)
}
