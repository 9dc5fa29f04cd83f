/*
Package billing implements the payment confirmation lifecycle.

PURPOSE:
  A payment moves through exactly two states:

      Submitted(unconfirmed) ---ConfirmPayment---> Confirmed

  Platform payments skip straight to Confirmed at submission (the platform
  already holds the funds). Direct payments start unconfirmed and only the
  payment's teacher can confirm receipt. Confirmed is terminal: there is
  no reversal, and ConfirmedAt is stamped exactly once.

FEE ARITHMETIC:
  market.ComputePayout splits each payment at submission time; the split
  is stored on the record so later fee-rate changes never rewrite history.

CONCURRENCY:
  Confirmation is an atomic read-modify-write. Racing duplicate
  confirmations resolve so that exactly one transition happens; the rest
  observe ErrAlreadyConfirmed and earnings aggregates count the payment
  once.

SEE ALSO:
  - market/payout.go: The fee policy
  - chat/gate.go: Consumes confirmed state to unlock messaging
*/
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/englishhop/marketplace/market"
)

// Service submits and confirms payments.
type Service struct {
	store market.TxStore
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store market.TxStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log, now: time.Now}
}

// WithClock overrides the service's clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Submit records a payment from the student to their matched teacher.
// Requires an existing match between the pair (ErrNoActiveMatch otherwise)
// and a non-negative amount. The payout split is computed here and frozen
// on the record. Platform payments are created already confirmed; direct
// payments await teacher confirmation.
func (s *Service) Submit(ctx context.Context, studentID, teacherID market.UserID, amount decimal.Decimal, method market.PaymentMethod) (*market.Payment, error) {
	payout, err := market.ComputePayout(amount, method)
	if err != nil {
		return nil, err
	}

	match, err := s.store.MatchForPair(ctx, studentID, teacherID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, market.ErrNoActiveMatch
	}

	payment := &market.Payment{
		ID:              market.PaymentID(uuid.NewString()),
		MatchID:         match.ID,
		StudentID:       studentID,
		TeacherID:       teacherID,
		Amount:          amount,
		PlatformFee:     payout.PlatformFee,
		TeacherReceives: payout.TeacherReceives,
		PaymentMethod:   method,
		Confirmed:       method == market.PayPlatform,
		SubmittedAt:     s.now(),
	}
	if err := s.store.PutPayment(ctx, payment); err != nil {
		return nil, err
	}

	s.log.Info("payment submitted",
		zap.String("payment_id", string(payment.ID)),
		zap.String("student_id", string(studentID)),
		zap.String("teacher_id", string(teacherID)),
		zap.String("amount", amount.String()),
		zap.String("method", string(method)),
		zap.Bool("confirmed", payment.Confirmed),
	)
	return payment, nil
}

// Confirm transitions a submitted payment to Confirmed and stamps
// ConfirmedAt. Only the payment's teacher may confirm. The transition
// happens at most once: duplicate or racing confirmations observe
// ErrAlreadyConfirmed and the original timestamp is preserved.
func (s *Service) Confirm(ctx context.Context, paymentID market.PaymentID, actingTeacherID market.UserID) (*market.Payment, error) {
	var confirmed *market.Payment

	err := retry.Do(ctx, confirmBackoff(), func(ctx context.Context) error {
		p, err := s.store.UpdatePayment(ctx, paymentID, func(p *market.Payment) error {
			if p.TeacherID != actingTeacherID {
				return market.ErrNotAuthorized
			}
			if p.Confirmed {
				return market.ErrAlreadyConfirmed
			}
			at := s.now()
			p.Confirmed = true
			p.ConfirmedAt = &at
			return nil
		})
		if errors.Is(err, market.ErrConflict) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		confirmed = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment confirmed",
		zap.String("payment_id", string(paymentID)),
		zap.String("teacher_id", string(actingTeacherID)),
	)
	return confirmed, nil
}

func confirmBackoff() retry.Backoff {
	return retry.WithMaxRetries(3, retry.NewConstant(2*time.Millisecond))
}

// =============================================================================
// TEACHER-FACING QUERIES
// =============================================================================

// Pending returns the teacher's direct payments still awaiting confirmation.
func (s *Service) Pending(ctx context.Context, teacherID market.UserID) ([]*market.Payment, error) {
	all, err := s.store.PaymentsForTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	var out []*market.Payment
	for _, p := range all {
		if !p.Confirmed && p.PaymentMethod == market.PayDirect {
			out = append(out, p)
		}
	}
	return out, nil
}

// Confirmed returns the teacher's confirmed payments.
func (s *Service) Confirmed(ctx context.Context, teacherID market.UserID) ([]*market.Payment, error) {
	all, err := s.store.PaymentsForTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	var out []*market.Payment
	for _, p := range all {
		if p.Confirmed {
			out = append(out, p)
		}
	}
	return out, nil
}

// Earnings sums TeacherReceives over the teacher's confirmed payments.
func (s *Service) Earnings(ctx context.Context, teacherID market.UserID) (decimal.Decimal, error) {
	confirmed, err := s.Confirmed(ctx, teacherID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range confirmed {
		total = total.Add(p.TeacherReceives)
	}
	return total, nil
}
