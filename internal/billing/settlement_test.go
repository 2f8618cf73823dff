package billing_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

func TestSettlementStatus(t *testing.T) {
	tests := []struct {
		name string
		paid string
		due  string
		want billing.ChargeStatus
	}{
		{name: "nothing paid", paid: "0", due: "100.00", want: billing.ChargePending},
		{name: "partially paid", paid: "99.99", due: "100.00", want: billing.ChargePartial},
		{name: "exactly paid", paid: "100.00", due: "100.00", want: billing.ChargePaid},
		{name: "overpaid", paid: "120.00", due: "100.00", want: billing.ChargePaid},
		{name: "negative sum", paid: "-1.00", due: "100.00", want: billing.ChargePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, billing.SettlementStatus(dec(tt.paid), dec(tt.due)))
		})
	}
}

func TestService_Recalculate(t *testing.T) {
	chargeID := uuid.New()

	type testCase struct {
		name      string
		setupMock func(repo *billing.MockRepository, tx *billing.MockTx)
		wantErr   bool
	}

	tests := []testCase{
		{
			name: "missing charge is a no-op",
			setupMock: func(repo *billing.MockRepository, tx *billing.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockCharge(gomock.Any(), chargeID).Return(nil, billing.ErrNotFound)
				tx.EXPECT().Commit().Return(nil)
			},
		},
		{
			name: "void charge is left alone",
			setupMock: func(repo *billing.MockRepository, tx *billing.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockCharge(gomock.Any(), chargeID).Return(&billing.Charge{
					ID:        chargeID,
					Principal: dec("100"),
					Status:    billing.ChargeVoid,
				}, nil)
				tx.EXPECT().Commit().Return(nil)
			},
		},
		{
			name: "unchanged status is not written",
			setupMock: func(repo *billing.MockRepository, tx *billing.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockCharge(gomock.Any(), chargeID).Return(&billing.Charge{
					ID:        chargeID,
					Principal: dec("100"),
					Status:    billing.ChargePartial,
				}, nil)
				tx.EXPECT().ActiveAllocationSum(gomock.Any(), chargeID).Return(dec("40"), nil)
				tx.EXPECT().Commit().Return(nil)
			},
		},
		{
			name: "late fee counts towards what is due",
			setupMock: func(repo *billing.MockRepository, tx *billing.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockCharge(gomock.Any(), chargeID).Return(&billing.Charge{
					ID:        chargeID,
					Principal: dec("100"),
					LateFee:   dec("5"),
					Status:    billing.ChargePaid,
				}, nil)
				tx.EXPECT().ActiveAllocationSum(gomock.Any(), chargeID).Return(dec("100"), nil)
				tx.EXPECT().SetChargeStatus(gomock.Any(), chargeID, billing.ChargePartial).Return(nil)
				tx.EXPECT().Commit().Return(nil)
			},
		},
		{
			name: "lock failure aborts without commit",
			setupMock: func(repo *billing.MockRepository, tx *billing.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().LockCharge(gomock.Any(), chargeID).Return(nil, errors.New("connection reset"))
			},
			wantErr: true,
		},
		{
			name: "begin failure",
			setupMock: func(repo *billing.MockRepository, _ *billing.MockTx) {
				repo.EXPECT().Begin(gomock.Any()).Return(nil, errors.New("pool exhausted"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := billing.NewMockRepository(ctrl)
			tx := billing.NewMockTx(ctrl)
			tx.EXPECT().Rollback().Return(nil).AnyTimes()

			tt.setupMock(repo, tx)

			svc := billing.NewService(repo, nil, nil, billing.WithLogger(discardLogger()))

			err := svc.Recalculate(ctx, chargeID)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
		})
	}
}

func TestRecalculate_Idempotent(t *testing.T) {
	f := newFixture(t)
	c := f.charge(t, f.unit.ID, "100.00", date(2024, 2, 10))
	f.pay(t, billing.MethodCash, alloc(c, "40.00"))

	require.NoError(t, f.svc.Recalculate(ctx, c.ID))
	first := f.status(t, c.ID)

	require.NoError(t, f.svc.Recalculate(ctx, c.ID))
	assert.Equal(t, first, f.status(t, c.ID))
	assert.Equal(t, billing.ChargePartial, first)
}

func TestRecalculate_MissingChargeIsNoop(t *testing.T) {
	f := newFixture(t)

	assert.NoError(t, f.svc.Recalculate(ctx, uuid.New()))
}

func TestRecalculateCharges(t *testing.T) {
	f := newFixture(t)
	a := f.charge(t, f.unit.ID, "10.00", date(2024, 1, 5))
	b := f.charge(t, f.unit.ID, "10.00", date(2024, 2, 5))
	_, err := f.svc.VoidCharge(ctx, b.ID)
	require.NoError(t, err)

	f.pay(t, billing.MethodCash, alloc(a, "10.00"))

	n, err := f.svc.RecalculateCharges(ctx, billing.RecalculateFilter{UnitID: &f.unit.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, billing.ChargePaid, f.status(t, a.ID))
	assert.Equal(t, billing.ChargeVoid, f.status(t, b.ID))
}

func TestOverpaymentIsAccepted(t *testing.T) {
	f := newFixture(t)
	c := f.charge(t, f.unit.ID, "50.00", date(2024, 2, 10))

	f.pay(t, billing.MethodCash, alloc(c, "80.00"))

	assert.Equal(t, billing.ChargePaid, f.status(t, c.ID))

	page, err := f.svc.ListStatement(ctx, f.unit.ID, billing.StatementQuery{})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.True(t, page.Rows[0].Balance.Equal(decimal.RequireFromString("-30")))
}
