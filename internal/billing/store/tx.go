package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

type tx struct {
	tx *sql.Tx
}

func (t *tx) Commit() error   { return t.tx.Commit() }
func (t *tx) Rollback() error { return t.tx.Rollback() }

func (t *tx) LockCharge(ctx context.Context, id uuid.UUID) (*billing.Charge, error) {
	return getCharge(ctx, t.tx, id, true)
}

func (t *tx) LockOverdueCharges(ctx context.Context, asOf time.Time) ([]*billing.Charge, error) {
	query := `SELECT ` + selectChargeColumns + `
		FROM charges c
		JOIN concepts co ON co.id = c.concept_id
		WHERE c.status IN ($1, $2) AND c.due_date < $3
		ORDER BY c.id ASC
		FOR UPDATE OF c`

	rows, err := t.tx.QueryContext(ctx, query, billing.ChargePending, billing.ChargePartial, asOf)
	if err != nil {
		return nil, fmt.Errorf("locking overdue charges: %w", err)
	}
	defer rows.Close()

	var charges []*billing.Charge

	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning charge: %w", err)
		}

		charges = append(charges, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating overdue charges: %w", err)
	}

	return charges, nil
}

func (t *tx) ActiveAllocationSum(ctx context.Context, chargeID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM payment_allocations
		WHERE charge_id = $1 AND amount > 0
	`

	var sum decimal.Decimal
	if err := t.tx.QueryRowContext(ctx, query, chargeID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("summing allocations: %w", err)
	}

	return sum, nil
}

func (t *tx) SetChargeStatus(ctx context.Context, id uuid.UUID, status billing.ChargeStatus) error {
	query := `
		UPDATE charges
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`

	return t.execOne(ctx, "updating charge status", query, status, id)
}

func (t *tx) SetChargeLateFee(ctx context.Context, id uuid.UUID, fee decimal.Decimal) error {
	query := `
		UPDATE charges
		SET late_fee = $1, updated_at = NOW()
		WHERE id = $2
	`

	return t.execOne(ctx, "updating late fee", query, fee, id)
}

// execOne runs an update that must touch exactly one row.
func (t *tx) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err, op)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return billing.ErrNotFound
	}

	return nil
}

func (t *tx) InsertPayment(ctx context.Context, p *billing.Payment) error {
	query := `
		INSERT INTO payments (unit_id, method, status, currency, amount, external_ref, document_id, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at
	`

	err := t.tx.QueryRowContext(ctx, query,
		p.UnitID,
		p.Method,
		p.Status,
		p.Currency,
		p.Amount,
		nullString(p.ExternalRef),
		p.DocumentID,
		p.PaidAt,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return translate(err, "creating payment")
	}

	allocQuery := `
		INSERT INTO payment_allocations (payment_id, charge_id, amount)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	for _, a := range p.Allocations {
		a.PaymentID = p.ID

		if err := t.tx.QueryRowContext(ctx, allocQuery, a.PaymentID, a.ChargeID, a.Amount).Scan(&a.ID); err != nil {
			return translate(err, "creating allocation")
		}
	}

	return nil
}

func (t *tx) LockPayment(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	return getPayment(ctx, t.tx, id, true)
}

func (t *tx) SetPaymentStatus(ctx context.Context, id uuid.UUID, status billing.PaymentStatus, paidAt *time.Time) error {
	query := `
		UPDATE payments
		SET status = $1, paid_at = $2, updated_at = NOW()
		WHERE id = $3
	`

	return t.execOne(ctx, "updating payment status", query, status, paidAt, id)
}

func (t *tx) ZeroAllocations(ctx context.Context, paymentID uuid.UUID) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE payment_allocations SET amount = 0 WHERE payment_id = $1`, paymentID); err != nil {
		return fmt.Errorf("zeroing allocations: %w", err)
	}

	query := `
		UPDATE payments
		SET amount = 0, updated_at = NOW()
		WHERE id = $1
	`

	return t.execOne(ctx, "zeroing payment amount", query, paymentID)
}

// NextDocumentSeq bumps the per-condominium counter. The upsert holds the
// counter row lock until the surrounding transaction ends.
func (t *tx) NextDocumentSeq(ctx context.Context, condominiumID uuid.UUID, prefix string, year int) (int64, error) {
	query := `
		INSERT INTO document_counters (condominium_id, prefix, year, last_value)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (condominium_id, prefix, year)
		DO UPDATE SET last_value = document_counters.last_value + 1
		RETURNING last_value
	`

	var seq int64
	if err := t.tx.QueryRowContext(ctx, query, condominiumID, prefix, year).Scan(&seq); err != nil {
		return 0, fmt.Errorf("bumping document counter: %w", err)
	}

	return seq, nil
}

func (t *tx) InsertDocument(ctx context.Context, d *billing.Document) error {
	query := `
		INSERT INTO documents (condominium_id, type, number, currency, issued_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := t.tx.QueryRowContext(ctx, query,
		d.CondominiumID,
		d.Type,
		d.Number,
		d.Currency,
		d.IssuedAt,
	).Scan(&d.ID)
	if err != nil {
		return translate(err, "creating document")
	}

	return nil
}

func (t *tx) InsertIntent(ctx context.Context, in *billing.Intent) error {
	query := `
		INSERT INTO payment_intents (id, payment_id, unit_id, method, amount, currency, status, gateway_ref, payload, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING created_at
	`

	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}

	err := t.tx.QueryRowContext(ctx, query,
		in.ID,
		in.PaymentID,
		in.UnitID,
		in.Method,
		in.Amount,
		in.Currency,
		in.Status,
		nullString(in.GatewayRef),
		in.Payload,
		in.ExpiresAt,
	).Scan(&in.CreatedAt)
	if err != nil {
		return translate(err, "creating intent")
	}

	return nil
}

func (t *tx) LockIntent(ctx context.Context, id uuid.UUID) (*billing.Intent, error) {
	return getIntent(ctx, t.tx, id, true)
}

func (t *tx) UpdateIntent(ctx context.Context, in *billing.Intent) error {
	query := `
		UPDATE payment_intents
		SET status = $1, gateway_ref = $2, approved_payment_id = $3, updated_at = NOW()
		WHERE id = $4
	`

	return t.execOne(ctx, "updating intent", query,
		in.Status,
		nullString(in.GatewayRef),
		in.ApprovedPaymentID,
		in.ID,
	)
}

func (t *tx) RejectOpenIntents(ctx context.Context, paymentID uuid.UUID) (int, error) {
	query := `
		UPDATE payment_intents
		SET status = $1, updated_at = NOW()
		WHERE payment_id = $2 AND status IN ($3, $4)
	`

	res, err := t.tx.ExecContext(ctx, query, billing.IntentRejected, paymentID, billing.IntentCreated, billing.IntentInProgress)
	if err != nil {
		return 0, fmt.Errorf("rejecting open intents: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rejecting open intents: %w", err)
	}

	return int(n), nil
}
