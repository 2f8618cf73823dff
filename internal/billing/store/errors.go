package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// translate maps driver errors onto the billing error taxonomy.
func translate(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return billing.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, billing.ErrConflict, pgErr.ConstraintName)
		case foreignKeyViolation:
			return billing.Invalid(referenceField(pgErr), "references a missing row")
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// referenceField turns a constraint like charges_concept_id_fkey into concept_id.
func referenceField(pgErr *pgconn.PgError) string {
	name := strings.TrimSuffix(pgErr.ConstraintName, "_fkey")
	name = strings.TrimPrefix(name, pgErr.TableName+"_")

	if name == "" {
		return "reference"
	}

	return name
}
