package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
	"github.com/luisfernandobanegasro/parcial/internal/reconcile"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ReserveImport(ctx context.Context, imp *reconcile.Import) error {
	query := `
		INSERT INTO bank_statement_imports (sha256, filename, lines, matched, imported_at)
		VALUES ($1, $2, $3, 0, NOW())
		RETURNING id, imported_at
	`

	err := s.db.QueryRowContext(ctx, query, imp.SHA256, imp.Filename, imp.Lines).Scan(&imp.ID, &imp.ImportedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("reserving import: %w", billing.ErrConflict)
		}

		return fmt.Errorf("reserving import: %w", err)
	}

	return nil
}

func (s *Store) CompleteImport(ctx context.Context, imp *reconcile.Import) error {
	query := `
		UPDATE bank_statement_imports
		SET lines = $1, matched = $2
		WHERE id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, imp.Lines, imp.Matched, imp.ID); err != nil {
		return fmt.Errorf("completing import: %w", err)
	}

	return nil
}

func (s *Store) ReleaseImport(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bank_statement_imports WHERE id = $1`, id); err != nil {
		return fmt.Errorf("releasing import: %w", err)
	}

	return nil
}
