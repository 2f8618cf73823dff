// Package billingtest provides an in-memory billing.Repository for tests.
//
// Transactions are fully serialized: Begin blocks until the previous
// transaction commits or rolls back, which stands in for row locks.
// Writes go to a private copy of the state and are published on Commit.
package billingtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

var ErrTxDone = errors.New("billingtest: transaction already finished")

type counterKey struct {
	condominium uuid.UUID
	prefix      string
	year        int
}

type state struct {
	concepts  map[uuid.UUID]*billing.Concept
	charges   map[uuid.UUID]*billing.Charge
	payments  map[uuid.UUID]*billing.Payment
	documents map[uuid.UUID]*billing.Document
	intents   map[uuid.UUID]*billing.Intent
	counters  map[counterKey]int64
}

func newState() *state {
	return &state{
		concepts:  map[uuid.UUID]*billing.Concept{},
		charges:   map[uuid.UUID]*billing.Charge{},
		payments:  map[uuid.UUID]*billing.Payment{},
		documents: map[uuid.UUID]*billing.Document{},
		intents:   map[uuid.UUID]*billing.Intent{},
		counters:  map[counterKey]int64{},
	}
}

func (s *state) clone() *state {
	out := newState()

	for k, v := range s.concepts {
		c := *v
		out.concepts[k] = &c
	}

	for k, v := range s.charges {
		out.charges[k] = copyCharge(v)
	}

	for k, v := range s.payments {
		out.payments[k] = copyPayment(v)
	}

	for k, v := range s.documents {
		d := *v
		out.documents[k] = &d
	}

	for k, v := range s.intents {
		out.intents[k] = copyIntent(v)
	}

	for k, v := range s.counters {
		out.counters[k] = v
	}

	return out
}

func copyCharge(c *billing.Charge) *billing.Charge {
	cp := *c
	return &cp
}

func copyPayment(p *billing.Payment) *billing.Payment {
	cp := *p

	cp.Allocations = make([]*billing.Allocation, len(p.Allocations))
	for i, a := range p.Allocations {
		ac := *a
		cp.Allocations[i] = &ac
	}

	if p.Document != nil {
		d := *p.Document
		cp.Document = &d
	}

	return &cp
}

func copyIntent(in *billing.Intent) *billing.Intent {
	cp := *in
	return &cp
}

// Store is safe for concurrent use.
type Store struct {
	txMu sync.Mutex

	mu sync.RWMutex
	st *state

	// CommitErr, when set, makes every Commit fail without applying writes.
	CommitErr error
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) Begin(ctx context.Context) (billing.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.txMu.Lock()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	return &tx{store: s, st: work}, nil
}

func (s *Store) CreateConcept(_ context.Context, c *billing.Concept) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.concepts {
		if existing.Name == c.Name {
			return fmt.Errorf("creating concept: %w", billing.ErrConflict)
		}
	}

	c.ID = uuid.New()
	c.CreatedAt = time.Now()

	cp := *c
	s.st.concepts[c.ID] = &cp

	return nil
}

func (s *Store) ListConcepts(_ context.Context) ([]*billing.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*billing.Concept, 0, len(s.st.concepts))
	for _, c := range s.st.concepts {
		cp := *c
		out = append(out, &cp)
	}

	slices.SortFunc(out, func(a, b *billing.Concept) int {
		return compareStrings(a.Name, b.Name)
	})

	return out, nil
}

func (s *Store) CreateCharge(_ context.Context, c *billing.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.concepts[c.ConceptID]; !ok {
		return billing.Invalid("concept_id", "concept does not exist")
	}

	for _, existing := range s.st.charges {
		if existing.UnitID == c.UnitID && existing.ConceptID == c.ConceptID && existing.Period.Equal(c.Period) {
			return fmt.Errorf("creating charge: %w", billing.ErrConflict)
		}
	}

	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.ConceptName = s.st.concepts[c.ConceptID].Name

	s.st.charges[c.ID] = copyCharge(c)

	return nil
}

func (s *Store) GetCharge(_ context.Context, id uuid.UUID) (*billing.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.st.charges[id]
	if !ok {
		return nil, billing.ErrNotFound
	}

	return copyCharge(c), nil
}

func (s *Store) ListCharges(_ context.Context, filter billing.ChargeFilter) ([]*billing.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*billing.Charge

	for _, c := range s.st.charges {
		if filter.UnitID != nil && c.UnitID != *filter.UnitID {
			continue
		}

		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}

		if filter.PeriodFrom != nil && c.Period.Before(*filter.PeriodFrom) {
			continue
		}

		if filter.PeriodTo != nil && c.Period.After(*filter.PeriodTo) {
			continue
		}

		out = append(out, copyCharge(c))
	}

	sortCharges(out)

	return out, nil
}

func (s *Store) GetPayment(_ context.Context, id uuid.UUID) (*billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.st.payments[id]
	if !ok {
		return nil, billing.ErrNotFound
	}

	return copyPayment(p), nil
}

func (s *Store) ListPayments(_ context.Context, filter billing.PaymentFilter) ([]*billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*billing.Payment

	for _, p := range s.st.payments {
		if filter.UnitID != nil && p.UnitID != *filter.UnitID {
			continue
		}

		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}

		if filter.Method != nil && p.Method != *filter.Method {
			continue
		}

		out = append(out, copyPayment(p))
	}

	slices.SortFunc(out, func(a, b *billing.Payment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return bytes.Compare(a.ID[:], b.ID[:])
	})

	return out, nil
}

func (s *Store) GetIntent(_ context.Context, id uuid.UUID) (*billing.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.st.intents[id]
	if !ok {
		return nil, billing.ErrNotFound
	}

	return copyIntent(in), nil
}

func (s *Store) ExpireIntents(_ context.Context, now time.Time) (int, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int

	for _, in := range s.st.intents {
		if in.Expired(now) {
			in.Status = billing.IntentExpired
			n++
		}
	}

	return n, nil
}

func (s *Store) ListStatement(_ context.Context, unitID uuid.UUID, filter billing.StatementFilter) ([]*billing.StatementLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var charges []*billing.Charge

	for _, c := range s.st.charges {
		if c.UnitID != unitID {
			continue
		}

		if filter.PeriodFrom != nil && c.Period.Before(*filter.PeriodFrom) {
			continue
		}

		if filter.PeriodTo != nil && c.Period.After(*filter.PeriodTo) {
			continue
		}

		charges = append(charges, copyCharge(c))
	}

	sortCharges(charges)

	lines := make([]*billing.StatementLine, len(charges))
	for i, c := range charges {
		lines[i] = &billing.StatementLine{Charge: c, Paid: s.st.activeSum(c.ID)}
	}

	return lines, nil
}

// Allocations returns every allocation on a charge, including zeroed ones.
func (s *Store) Allocations(chargeID uuid.UUID) []*billing.Allocation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*billing.Allocation

	for _, p := range s.st.payments {
		for _, a := range p.Allocations {
			if a.ChargeID == chargeID {
				cp := *a
				out = append(out, &cp)
			}
		}
	}

	return out
}

// PaymentCount reports how many payments exist.
func (s *Store) PaymentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.st.payments)
}

func (st *state) activeSum(chargeID uuid.UUID) decimal.Decimal {
	sum := decimal.Zero

	for _, p := range st.payments {
		for _, a := range p.Allocations {
			if a.ChargeID == chargeID && a.Amount.IsPositive() {
				sum = sum.Add(a.Amount)
			}
		}
	}

	return sum
}

func sortCharges(cs []*billing.Charge) {
	slices.SortFunc(cs, func(a, b *billing.Charge) int {
		if c := a.Period.Compare(b.Period); c != 0 {
			return c
		}

		if c := compareStrings(a.ConceptName, b.ConceptName); c != 0 {
			return c
		}

		return bytes.Compare(a.ID[:], b.ID[:])
	})
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}

	return 0
}
