package billingtest

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

type tx struct {
	store *Store
	st    *state
	done  bool
}

func (t *tx) Commit() error {
	if t.done {
		return ErrTxDone
	}

	t.done = true
	defer t.store.txMu.Unlock()

	if t.store.CommitErr != nil {
		return t.store.CommitErr
	}

	t.store.mu.Lock()
	t.store.st = t.st
	t.store.mu.Unlock()

	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return ErrTxDone
	}

	t.done = true
	t.store.txMu.Unlock()

	return nil
}

func (t *tx) LockCharge(_ context.Context, id uuid.UUID) (*billing.Charge, error) {
	c, ok := t.st.charges[id]
	if !ok {
		return nil, billing.ErrNotFound
	}

	return copyCharge(c), nil
}

func (t *tx) LockOverdueCharges(_ context.Context, asOf time.Time) ([]*billing.Charge, error) {
	var out []*billing.Charge

	for _, c := range t.st.charges {
		if c.Status != billing.ChargePending && c.Status != billing.ChargePartial {
			continue
		}

		if !c.DueDate.Before(asOf) {
			continue
		}

		out = append(out, copyCharge(c))
	}

	slices.SortFunc(out, func(a, b *billing.Charge) int {
		return bytes.Compare(a.ID[:], b.ID[:])
	})

	return out, nil
}

func (t *tx) ActiveAllocationSum(_ context.Context, chargeID uuid.UUID) (decimal.Decimal, error) {
	return t.st.activeSum(chargeID), nil
}

func (t *tx) SetChargeStatus(_ context.Context, id uuid.UUID, status billing.ChargeStatus) error {
	c, ok := t.st.charges[id]
	if !ok {
		return billing.ErrNotFound
	}

	now := time.Now()
	c.Status = status
	c.UpdatedAt = &now

	return nil
}

func (t *tx) SetChargeLateFee(_ context.Context, id uuid.UUID, fee decimal.Decimal) error {
	c, ok := t.st.charges[id]
	if !ok {
		return billing.ErrNotFound
	}

	now := time.Now()
	c.LateFee = fee
	c.UpdatedAt = &now

	return nil
}

func (t *tx) InsertPayment(_ context.Context, p *billing.Payment) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()

	for _, a := range p.Allocations {
		a.ID = uuid.New()
		a.PaymentID = p.ID
	}

	t.st.payments[p.ID] = copyPayment(p)

	return nil
}

func (t *tx) LockPayment(_ context.Context, id uuid.UUID) (*billing.Payment, error) {
	p, ok := t.st.payments[id]
	if !ok {
		return nil, billing.ErrNotFound
	}

	return copyPayment(p), nil
}

func (t *tx) SetPaymentStatus(_ context.Context, id uuid.UUID, status billing.PaymentStatus, paidAt *time.Time) error {
	p, ok := t.st.payments[id]
	if !ok {
		return billing.ErrNotFound
	}

	now := time.Now()
	p.Status = status
	p.PaidAt = paidAt
	p.UpdatedAt = &now

	return nil
}

func (t *tx) ZeroAllocations(_ context.Context, paymentID uuid.UUID) error {
	p, ok := t.st.payments[paymentID]
	if !ok {
		return billing.ErrNotFound
	}

	for _, a := range p.Allocations {
		a.Amount = decimal.Zero
	}

	p.Amount = decimal.Zero

	return nil
}

func (t *tx) NextDocumentSeq(_ context.Context, condominiumID uuid.UUID, prefix string, year int) (int64, error) {
	k := counterKey{condominium: condominiumID, prefix: prefix, year: year}
	t.st.counters[k]++

	return t.st.counters[k], nil
}

func (t *tx) InsertDocument(_ context.Context, d *billing.Document) error {
	for _, existing := range t.st.documents {
		if existing.CondominiumID == d.CondominiumID && existing.Number == d.Number {
			return fmt.Errorf("creating document: %w", billing.ErrConflict)
		}
	}

	d.ID = uuid.New()

	cp := *d
	t.st.documents[d.ID] = &cp

	return nil
}

func (t *tx) InsertIntent(_ context.Context, in *billing.Intent) error {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}

	in.CreatedAt = time.Now()
	t.st.intents[in.ID] = copyIntent(in)

	return nil
}

func (t *tx) LockIntent(_ context.Context, id uuid.UUID) (*billing.Intent, error) {
	in, ok := t.st.intents[id]
	if !ok {
		return nil, billing.ErrNotFound
	}

	return copyIntent(in), nil
}

func (t *tx) UpdateIntent(_ context.Context, in *billing.Intent) error {
	if _, ok := t.st.intents[in.ID]; !ok {
		return billing.ErrNotFound
	}

	if in.Status == billing.IntentApproved {
		for _, other := range t.st.intents {
			if other.ID != in.ID && other.PaymentID == in.PaymentID && other.Status == billing.IntentApproved {
				return fmt.Errorf("updating intent: %w", billing.ErrConflict)
			}
		}
	}

	now := time.Now()
	in.UpdatedAt = &now
	t.st.intents[in.ID] = copyIntent(in)

	return nil
}

func (t *tx) RejectOpenIntents(_ context.Context, paymentID uuid.UUID) (int, error) {
	n := 0

	for _, in := range t.st.intents {
		if in.PaymentID != paymentID {
			continue
		}

		if in.Status == billing.IntentCreated || in.Status == billing.IntentInProgress {
			now := time.Now()
			in.Status = billing.IntentRejected
			in.UpdatedAt = &now
			n++
		}
	}

	return n, nil
}
