package billingtest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

// Units is a fixed unit registry.
type Units map[uuid.UUID]*billing.Unit

// NewUnit registers a unit in a fresh condominium and returns it.
func (u Units) NewUnit(code string) *billing.Unit {
	unit := &billing.Unit{ID: uuid.New(), CondominiumID: uuid.New(), Code: code}
	u[unit.ID] = unit

	return unit
}

func (u Units) GetUnit(_ context.Context, id uuid.UUID) (*billing.Unit, error) {
	unit, ok := u[id]
	if !ok {
		return nil, billing.ErrNotFound
	}

	cp := *unit

	return &cp, nil
}

// Events records everything published to it.
type Events struct {
	mu     sync.Mutex
	events []billing.Event
}

func (e *Events) Publish(_ context.Context, ev billing.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = append(e.events, ev)

	return nil
}

func (e *Events) Types() []billing.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]billing.EventType, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Type
	}

	return out
}
