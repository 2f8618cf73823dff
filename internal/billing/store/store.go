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

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) Begin(ctx context.Context) (billing.Tx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	return &tx{tx: dbTx}, nil
}

const selectChargeColumns = `
	c.id, c.unit_id, c.concept_id, co.name, c.period, c.principal, c.late_fee,
	c.due_date, c.status, c.created_at, c.updated_at
`

// scanCharge expects the column order of selectChargeColumns, optionally followed by extra.
func scanCharge(s scanner, extra ...any) (*billing.Charge, error) {
	var c billing.Charge

	var status string

	dest := []any{
		&c.ID, &c.UnitID, &c.ConceptID, &c.ConceptName, &c.Period, &c.Principal, &c.LateFee,
		&c.DueDate, &status, &c.CreatedAt, &c.UpdatedAt,
	}

	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	c.Status = billing.ChargeStatus(status)

	return &c, nil
}

const selectPaymentColumns = `
	p.id, p.unit_id, p.method, p.status, p.currency, p.amount, p.external_ref,
	p.document_id, d.condominium_id, d.type, d.number, d.currency, d.issued_at,
	p.paid_at, p.created_at, p.updated_at
`

const paymentFrom = `
	FROM payments p
	LEFT JOIN documents d ON d.id = p.document_id
`

func scanPayment(s scanner) (*billing.Payment, error) {
	var p billing.Payment

	var method, status string

	var externalRef sql.NullString

	var (
		docCondo    *uuid.UUID
		docType     sql.NullString
		docNumber   sql.NullString
		docCurrency sql.NullString
		docIssued   sql.NullTime
	)

	if err := s.Scan(
		&p.ID, &p.UnitID, &method, &status, &p.Currency, &p.Amount, &externalRef,
		&p.DocumentID, &docCondo, &docType, &docNumber, &docCurrency, &docIssued,
		&p.PaidAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.Method = billing.Method(method)
	p.Status = billing.PaymentStatus(status)
	p.ExternalRef = externalRef.String

	if p.DocumentID != nil && docCondo != nil {
		p.Document = &billing.Document{
			ID:            *p.DocumentID,
			CondominiumID: *docCondo,
			Type:          billing.DocumentType(docType.String),
			Number:        docNumber.String,
			Currency:      docCurrency.String,
			IssuedAt:      docIssued.Time,
		}
	}

	return &p, nil
}

const selectIntentColumns = `
	id, payment_id, unit_id, method, amount, currency, status, gateway_ref, payload,
	expires_at, approved_payment_id, created_at, updated_at
`

func scanIntent(s scanner) (*billing.Intent, error) {
	var in billing.Intent

	var method, status string

	var gatewayRef sql.NullString

	if err := s.Scan(
		&in.ID, &in.PaymentID, &in.UnitID, &method, &in.Amount, &in.Currency, &status, &gatewayRef, &in.Payload,
		&in.ExpiresAt, &in.ApprovedPaymentID, &in.CreatedAt, &in.UpdatedAt,
	); err != nil {
		return nil, err
	}

	in.Method = billing.Method(method)
	in.Status = billing.IntentStatus(status)
	in.GatewayRef = gatewayRef.String

	return &in, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) CreateConcept(ctx context.Context, c *billing.Concept) error {
	query := `
		INSERT INTO concepts (name, created_at)
		VALUES ($1, NOW())
		RETURNING id, created_at
	`

	if err := s.db.QueryRowContext(ctx, query, c.Name).Scan(&c.ID, &c.CreatedAt); err != nil {
		return translate(err, "creating concept")
	}

	return nil
}

func (s *Store) ListConcepts(ctx context.Context) ([]*billing.Concept, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM concepts ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing concepts: %w", err)
	}
	defer rows.Close()

	var concepts []*billing.Concept

	for rows.Next() {
		var c billing.Concept
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning concept: %w", err)
		}

		concepts = append(concepts, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating concepts: %w", err)
	}

	return concepts, nil
}

func (s *Store) CreateCharge(ctx context.Context, c *billing.Charge) error {
	query := `
		WITH ins AS (
			INSERT INTO charges (unit_id, concept_id, period, principal, late_fee, due_date, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			RETURNING id, concept_id, created_at
		)
		SELECT ins.id, ins.created_at, co.name
		FROM ins
		JOIN concepts co ON co.id = ins.concept_id
	`

	err := s.db.QueryRowContext(ctx, query,
		c.UnitID,
		c.ConceptID,
		c.Period,
		c.Principal,
		c.LateFee,
		c.DueDate,
		c.Status,
	).Scan(&c.ID, &c.CreatedAt, &c.ConceptName)
	if err != nil {
		return translate(err, "creating charge")
	}

	return nil
}

func (s *Store) GetCharge(ctx context.Context, id uuid.UUID) (*billing.Charge, error) {
	return getCharge(ctx, s.db, id, false)
}

func getCharge(ctx context.Context, q querier, id uuid.UUID, lock bool) (*billing.Charge, error) {
	query := `SELECT ` + selectChargeColumns + `
		FROM charges c
		JOIN concepts co ON co.id = c.concept_id
		WHERE c.id = $1`

	if lock {
		query += " FOR UPDATE OF c"
	}

	c, err := scanCharge(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translate(err, "getting charge")
	}

	return c, nil
}

func (s *Store) ListCharges(ctx context.Context, filter billing.ChargeFilter) ([]*billing.Charge, error) {
	query := `SELECT ` + selectChargeColumns + `
		FROM charges c
		JOIN concepts co ON co.id = c.concept_id
		WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.UnitID != nil {
		query += fmt.Sprintf(" AND c.unit_id = $%d", argIdx)

		args = append(args, *filter.UnitID)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND c.status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.PeriodFrom != nil {
		query += fmt.Sprintf(" AND c.period >= $%d", argIdx)

		args = append(args, *filter.PeriodFrom)
		argIdx++
	}

	if filter.PeriodTo != nil {
		query += fmt.Sprintf(" AND c.period <= $%d", argIdx)

		args = append(args, *filter.PeriodTo)
		argIdx++
	}

	query += " ORDER BY c.period ASC, co.name ASC, c.id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing charges: %w", err)
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
		return nil, fmt.Errorf("iterating charges: %w", err)
	}

	return charges, nil
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	return getPayment(ctx, s.db, id, false)
}

func getPayment(ctx context.Context, q querier, id uuid.UUID, lock bool) (*billing.Payment, error) {
	query := `SELECT ` + selectPaymentColumns + paymentFrom + ` WHERE p.id = $1`

	if lock {
		query += " FOR UPDATE OF p"
	}

	p, err := scanPayment(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translate(err, "getting payment")
	}

	if err := loadAllocations(ctx, q, []*billing.Payment{p}); err != nil {
		return nil, err
	}

	return p, nil
}

func (s *Store) ListPayments(ctx context.Context, filter billing.PaymentFilter) ([]*billing.Payment, error) {
	query := `SELECT ` + selectPaymentColumns + paymentFrom + ` WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.UnitID != nil {
		query += fmt.Sprintf(" AND p.unit_id = $%d", argIdx)

		args = append(args, *filter.UnitID)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND p.status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.Method != nil {
		query += fmt.Sprintf(" AND p.method = $%d", argIdx)

		args = append(args, *filter.Method)
		argIdx++
	}

	query += " ORDER BY p.created_at DESC, p.id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	var payments []*billing.Payment

	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}

		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payments: %w", err)
	}

	if err := loadAllocations(ctx, s.db, payments); err != nil {
		return nil, err
	}

	return payments, nil
}

// loadAllocations fills Allocations on each payment with a single query.
func loadAllocations(ctx context.Context, q querier, payments []*billing.Payment) error {
	if len(payments) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*billing.Payment, len(payments))

	ids := make([]string, len(payments))

	for i, p := range payments {
		byID[p.ID] = p
		ids[i] = p.ID.String()
	}

	query := `
		SELECT id, payment_id, charge_id, amount
		FROM payment_allocations
		WHERE payment_id = ANY($1::uuid[])
		ORDER BY payment_id, charge_id, id
	`

	rows, err := q.QueryContext(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("loading allocations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a billing.Allocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.ChargeID, &a.Amount); err != nil {
			return fmt.Errorf("scanning allocation: %w", err)
		}

		p := byID[a.PaymentID]
		p.Allocations = append(p.Allocations, &a)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating allocations: %w", err)
	}

	return nil
}

func (s *Store) GetIntent(ctx context.Context, id uuid.UUID) (*billing.Intent, error) {
	return getIntent(ctx, s.db, id, false)
}

func getIntent(ctx context.Context, q querier, id uuid.UUID, lock bool) (*billing.Intent, error) {
	query := `SELECT ` + selectIntentColumns + ` FROM payment_intents WHERE id = $1`

	if lock {
		query += " FOR UPDATE"
	}

	in, err := scanIntent(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translate(err, "getting intent")
	}

	return in, nil
}

func (s *Store) ExpireIntents(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE payment_intents
		SET status = $1, updated_at = NOW()
		WHERE status IN ($2, $3) AND expires_at <= $4
	`

	res, err := s.db.ExecContext(ctx, query,
		billing.IntentExpired,
		billing.IntentCreated,
		billing.IntentInProgress,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("expiring intents: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting expired intents: %w", err)
	}

	return int(n), nil
}

// activeSumExpr sums the allocations that count towards settlement. Voided
// payments have their allocations zeroed, so they contribute nothing.
const activeSumExpr = `
	COALESCE((
		SELECT SUM(a.amount)
		FROM payment_allocations a
		WHERE a.charge_id = c.id AND a.amount > 0
	), 0)
`

func (s *Store) ListStatement(ctx context.Context, unitID uuid.UUID, filter billing.StatementFilter) ([]*billing.StatementLine, error) {
	query := `SELECT ` + selectChargeColumns + `, ` + activeSumExpr + `
		FROM charges c
		JOIN concepts co ON co.id = c.concept_id
		WHERE c.unit_id = $1`

	args := []any{unitID}

	argIdx := 2

	if filter.PeriodFrom != nil {
		query += fmt.Sprintf(" AND c.period >= $%d", argIdx)

		args = append(args, *filter.PeriodFrom)
		argIdx++
	}

	if filter.PeriodTo != nil {
		query += fmt.Sprintf(" AND c.period <= $%d", argIdx)

		args = append(args, *filter.PeriodTo)
		argIdx++
	}

	query += " ORDER BY c.period ASC, co.name ASC, c.id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing statement: %w", err)
	}
	defer rows.Close()

	var lines []*billing.StatementLine

	for rows.Next() {
		var paid decimal.Decimal

		c, err := scanCharge(rows, &paid)
		if err != nil {
			return nil, fmt.Errorf("scanning statement line: %w", err)
		}

		lines = append(lines, &billing.StatementLine{Charge: c, Paid: paid})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating statement: %w", err)
	}

	return lines, nil
}
