package reconcile

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

// MaxUploadSize caps a statement upload.
const MaxUploadSize = 10 << 20

type Service struct {
	parser    Parser
	repo      Repository
	payments  Payments
	suggester UnitSuggester
	logger    *slog.Logger
}

func NewService(parser Parser, repo Repository, payments Payments, suggester UnitSuggester, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		parser:    parser,
		repo:      repo,
		payments:  payments,
		suggester: suggester,
		logger:    logger,
	}
}

// Reconcile parses a bank statement and settles every PENDING transfer whose
// external reference and amount match a credit line. Uploading the same
// bytes twice fails with billing.ErrConflict.
func (s *Service) Reconcile(ctx context.Context, filename string, r io.Reader) (*Report, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}

	if len(data) > MaxUploadSize {
		return nil, billing.Invalid("file", "exceeds 10 MiB")
	}

	stmt, err := s.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, billing.Invalid("file", err.Error())
	}

	sum := sha256.Sum256(data)
	imp := &Import{SHA256: hex.EncodeToString(sum[:]), Filename: filename, Lines: len(stmt.Lines)}

	if err := s.repo.ReserveImport(ctx, imp); err != nil {
		if errors.Is(err, billing.ErrConflict) {
			return nil, fmt.Errorf("statement %s was already imported: %w", filename, billing.ErrConflict)
		}

		return nil, fmt.Errorf("reserve import: %w", err)
	}

	results, err := s.match(ctx, stmt.Lines)
	if err != nil {
		if relErr := s.repo.ReleaseImport(ctx, imp.ID); relErr != nil {
			s.logger.Error("failed to release import", "import_id", imp.ID, "error", relErr)
		}

		return nil, err
	}

	report := &Report{
		Profile: stmt.Profile,
		Charset: stmt.Charset,
		Results: results,
		Counts:  make(map[Outcome]int),
	}

	for _, res := range results {
		report.Counts[res.Outcome]++
	}

	imp.Matched = report.Counts[OutcomeMatched]

	if err := s.repo.CompleteImport(ctx, imp); err != nil {
		return nil, fmt.Errorf("complete import: %w", err)
	}

	report.Import = *imp

	s.logger.Info("bank statement reconciled",
		"import_id", imp.ID,
		"filename", filename,
		"profile", stmt.Profile,
		"lines", imp.Lines,
		"matched", imp.Matched,
		"unmatched", report.Counts[OutcomeUnmatched],
	)

	return report, nil
}

func normalizeRef(ref string) string {
	return strings.ToUpper(strings.TrimSpace(ref))
}

func (s *Service) match(ctx context.Context, lines []Line) ([]LineResult, error) {
	transfer := billing.MethodTransfer

	payments, err := s.payments.ListPayments(ctx, billing.PaymentFilter{Method: &transfer})
	if err != nil {
		return nil, fmt.Errorf("list transfer payments: %w", err)
	}

	byRef := make(map[string][]*billing.Payment)

	for _, p := range payments {
		if ref := normalizeRef(p.ExternalRef); ref != "" {
			byRef[ref] = append(byRef[ref], p)
		}
	}

	// A payment is settled by at most one line of the file.
	used := make(map[*billing.Payment]bool)

	results := make([]LineResult, 0, len(lines))

	for _, line := range lines {
		res := LineResult{Line: line}

		if line.Credit {
			s.matchCredit(ctx, &res, byRef[normalizeRef(line.Reference)], used)
		} else {
			res.Outcome = OutcomeIgnored
		}

		results = append(results, res)
	}

	return results, nil
}

func (s *Service) matchCredit(ctx context.Context, res *LineResult, candidates []*billing.Payment, used map[*billing.Payment]bool) {
	var mismatch *billing.Payment

	for _, p := range candidates {
		if used[p] {
			continue
		}

		if !p.Amount.Equal(res.Line.Amount) {
			mismatch = p
			continue
		}

		used[p] = true
		res.PaymentID = &p.ID

		switch p.Status {
		case billing.PaymentApproved:
			res.Outcome = OutcomeAlreadySettled
			return
		case billing.PaymentPending:
		default:
			res.Outcome = OutcomeFailed
			res.Error = fmt.Sprintf("payment is %s", p.Status)

			return
		}

		if _, err := s.payments.Settle(ctx, p.ID); err != nil {
			s.logger.Warn("settling matched payment failed", "payment_id", p.ID, "row", res.Line.Row, "error", err)
			res.Outcome = OutcomeFailed
			res.Error = err.Error()

			return
		}

		res.Outcome = OutcomeMatched

		return
	}

	if mismatch != nil {
		res.Outcome = OutcomeAmountMismatch
		res.PaymentID = &mismatch.ID
		res.Expected = &mismatch.Amount

		return
	}

	res.Outcome = OutcomeUnmatched

	if s.suggester == nil {
		return
	}

	unitID, err := s.suggester.Suggest(ctx, res.Line.Description)
	if err != nil {
		s.logger.Warn("unit suggestion failed", "row", res.Line.Row, "error", err)
		return
	}

	res.SuggestedUnitID = unitID
}
