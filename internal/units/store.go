package units

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

// Store reads the unit registry table. Billing never writes to it.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetUnit(ctx context.Context, id uuid.UUID) (*billing.Unit, error) {
	query := `SELECT id, condominium_id, code FROM units WHERE id = $1`

	var u billing.Unit
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.CondominiumID, &u.Code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, billing.ErrNotFound
		}

		return nil, fmt.Errorf("getting unit: %w", err)
	}

	return &u, nil
}
