package billing_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	"github.com/luisfernandobanegasro/parcial/internal/billing/billingtest"
	"github.com/luisfernandobanegasro/parcial/internal/qrpay"
)

var ctx = context.Background()

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store  *billingtest.Store
	units  billingtest.Units
	events *billingtest.Events
	signer *qrpay.Signer
	svc    *billing.Service
	unit   *billing.Unit
	now    time.Time
}

func newFixture(t *testing.T, opts ...billing.Option) *fixture {
	t.Helper()

	keys, err := qrpay.NewKeyring("test-secret", 1, 1)
	require.NoError(t, err)

	f := &fixture{
		store:  billingtest.New(),
		units:  billingtest.Units{},
		events: &billingtest.Events{},
		signer: qrpay.NewSigner(keys),
		now:    time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC),
	}
	f.unit = f.units.NewUnit("A-101")

	base := []billing.Option{
		billing.WithPublisher(f.events),
		billing.WithLogger(discardLogger()),
		billing.WithClock(func() time.Time { return f.now }),
	}
	f.svc = billing.NewService(f.store, f.units, f.signer, append(base, opts...)...)

	return f
}

// charge creates a charge under a fresh concept so fixtures never collide.
func (f *fixture) charge(t *testing.T, unitID uuid.UUID, principal string, due time.Time) *billing.Charge {
	t.Helper()

	concept, err := f.svc.CreateConcept(ctx, billing.CreateConceptParams{Name: "fee " + uuid.NewString()})
	require.NoError(t, err)

	c, err := f.svc.CreateCharge(ctx, billing.CreateChargeParams{
		UnitID:    unitID,
		ConceptID: concept.ID,
		DueDate:   due,
		Principal: dec(principal),
	})
	require.NoError(t, err)

	return c
}

func (f *fixture) pay(t *testing.T, method billing.Method, allocs ...billing.AllocationParams) *billing.Payment {
	t.Helper()

	p, err := f.svc.RegisterPayment(ctx, billing.RegisterParams{
		UnitID:      f.unit.ID,
		Method:      method,
		Allocations: allocs,
	})
	require.NoError(t, err)

	return p
}

func alloc(c *billing.Charge, amount string) billing.AllocationParams {
	return billing.AllocationParams{ChargeID: c.ID, Amount: dec(amount)}
}

func (f *fixture) status(t *testing.T, id uuid.UUID) billing.ChargeStatus {
	t.Helper()

	c, err := f.svc.GetCharge(ctx, id)
	require.NoError(t, err)

	return c.Status
}
