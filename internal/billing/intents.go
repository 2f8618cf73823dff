package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/luisfernandobanegasro/parcial/internal/qrpay"
)

// CreateIntent opens a gateway attempt for a pending non-cash payment and
// signs the QR text the payer will present. A zero ttl uses the configured window.
func (s *Service) CreateIntent(ctx context.Context, paymentID uuid.UUID, ttl time.Duration) (*Intent, error) {
	if ttl <= 0 {
		ttl = s.settings.IntentTTL
	}

	now := s.now()

	var in *Intent

	err := s.inTx(ctx, func(tx Tx) error {
		p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return err
		}

		if p.Method == MethodCash {
			return Invalid("method", "cash payments are settled directly")
		}

		switch p.Status {
		case PaymentApproved:
			return conflictf("payment %s is already approved", p.ID)
		case PaymentVoid, PaymentRejected:
			return conflictf("payment %s is %s", p.ID, strings.ToLower(string(p.Status)))
		}

		in = &Intent{
			ID:        uuid.New(),
			PaymentID: p.ID,
			UnitID:    p.UnitID,
			Method:    p.Method,
			Amount:    p.Amount,
			Currency:  p.Currency,
			Status:    IntentCreated,
			ExpiresAt: now.Add(ttl),
		}

		text, err := s.signer.Sign(qrpay.Payload{
			PaymentID: p.ID.String(),
			IntentID:  in.ID.String(),
			Currency:  in.Currency,
			Amount:    in.Amount.StringFixed(2),
			ExpiresAt: in.ExpiresAt.Unix(),
		})
		if err != nil {
			return fmt.Errorf("sign payload: %w", err)
		}

		in.Payload = text

		if err := tx.InsertIntent(ctx, in); err != nil {
			return fmt.Errorf("insert intent: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create intent: %w", err)
	}

	s.logger.Info("payment intent created",
		"intent_id", in.ID,
		"payment_id", in.PaymentID,
		"expires_at", in.ExpiresAt,
	)

	return in, nil
}

// GetIntent reads an intent, reporting it as EXPIRED once its window has passed.
func (s *Service) GetIntent(ctx context.Context, id uuid.UUID) (*Intent, error) {
	in, err := s.repo.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Expired(s.now()) {
		in.Status = IntentExpired
	}

	return in, nil
}

// MarkInProgress records that the gateway picked up the intent.
func (s *Service) MarkInProgress(ctx context.Context, id uuid.UUID, gatewayRef string) (*Intent, error) {
	now := s.now()

	var in *Intent

	err := s.inTx(ctx, func(tx Tx) error {
		var err error

		in, err = tx.LockIntent(ctx, id)
		if err != nil {
			return err
		}

		if in.Expired(now) {
			in.Status = IntentExpired
			return tx.UpdateIntent(ctx, in)
		}

		if in.Status.Terminal() {
			return nil
		}

		in.Status = IntentInProgress
		if gatewayRef != "" {
			in.GatewayRef = gatewayRef
		}

		return tx.UpdateIntent(ctx, in)
	})
	if err != nil {
		return nil, fmt.Errorf("mark intent in progress: %w", err)
	}

	return in, nil
}

type ConfirmParams struct {
	IntentID   uuid.UUID
	Outcome    Outcome
	GatewayRef string
	// QRText, when present, must carry a valid signature for this intent.
	QRText string
}

// Confirm applies an external verdict to an intent. Approval settles the
// linked payment exactly once; a terminal intent is returned unchanged.
func (s *Service) Confirm(ctx context.Context, params ConfirmParams) (*Intent, error) {
	if params.Outcome != OutcomeApproved && params.Outcome != OutcomeRejected {
		return nil, Invalid("outcome", "must be approved or rejected")
	}

	var payload *qrpay.Payload

	if params.QRText != "" {
		p, err := s.signer.Verify(params.QRText)
		if err != nil {
			return nil, Invalid("qr_text", err.Error())
		}

		payload = &p
	}

	now := s.now()

	var (
		in       *Intent
		approved *Payment
	)

	err := s.inTx(ctx, func(tx Tx) error {
		var err error

		in, err = tx.LockIntent(ctx, params.IntentID)
		if err != nil {
			return err
		}

		if in.Expired(now) {
			in.Status = IntentExpired
			return tx.UpdateIntent(ctx, in)
		}

		if in.Status.Terminal() {
			return nil
		}

		if payload != nil {
			if err := matchPayload(in, *payload); err != nil {
				return err
			}
		}

		if params.GatewayRef != "" {
			in.GatewayRef = params.GatewayRef
		}

		if params.Outcome == OutcomeRejected {
			in.Status = IntentRejected
			return tx.UpdateIntent(ctx, in)
		}

		p, err := tx.LockPayment(ctx, in.PaymentID)
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}

		switch p.Status {
		case PaymentPending:
			if err := s.approve(ctx, tx, p); err != nil {
				return err
			}

			approved = p
		case PaymentApproved:
		default:
			return conflictf("payment %s is %s", p.ID, strings.ToLower(string(p.Status)))
		}

		in.Status = IntentApproved
		in.ApprovedPaymentID = &p.ID

		return tx.UpdateIntent(ctx, in)
	})
	if err != nil {
		return nil, fmt.Errorf("confirm intent: %w", err)
	}

	s.logger.Info("payment intent confirmed",
		"intent_id", in.ID,
		"outcome", params.Outcome,
		"status", in.Status,
	)

	if approved != nil {
		intentEvent := paymentEvent(EventIntentApproved, approved, now)
		intentEvent.IntentID = &in.ID

		s.publish(ctx, paymentEvent(EventPaymentApproved, approved, now), intentEvent)
	}

	return in, nil
}

func matchPayload(in *Intent, p qrpay.Payload) error {
	switch {
	case p.IntentID != in.ID.String():
		return Invalid("qr_text", "payload belongs to another intent")
	case p.PaymentID != in.PaymentID.String():
		return Invalid("qr_text", "payload belongs to another payment")
	case p.Amount != in.Amount.StringFixed(2) || p.Currency != in.Currency:
		return Invalid("qr_text", "payload amount does not match intent")
	}

	return nil
}

// ExpireStale persists EXPIRED on every open intent past its window.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	n, err := s.repo.ExpireIntents(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire intents: %w", err)
	}

	if n > 0 {
		s.logger.Info("stale intents expired", "count", n)
	}

	return n, nil
}

// ValidateIntent is the manual approval used in test mode: it confirms an
// intent of the given payment as approved.
func (s *Service) ValidateIntent(ctx context.Context, paymentID, intentID uuid.UUID) (*Intent, error) {
	in, err := s.repo.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	if in.PaymentID != paymentID {
		return nil, Invalid("intent_id", "intent does not belong to this payment")
	}

	return s.Confirm(ctx, ConfirmParams{IntentID: intentID, Outcome: OutcomeApproved})
}
