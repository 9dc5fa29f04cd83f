/*
slots.go - Slot accounting service

PURPOSE:
  Standalone slot operations outside of match creation: crediting purchased
  bundles and (for admin tooling) debiting a single slot. Both apply the
  counter arithmetic from market/slots.go inside an atomic store update, so
  no decision is ever made on a stale read.

PURCHASE AUDIT:
  Every credit also records a SlotPurchase. The purchase record and the
  counter update commit in one transaction.
*/
package matching

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

// SlotAccounting applies slot credits and debits to teacher inventories.
type SlotAccounting struct {
	store market.TxStore
	log   *zap.Logger
	now   func() time.Time
}

func NewSlotAccounting(store market.TxStore, log *zap.Logger) *SlotAccounting {
	if log == nil {
		log = zap.NewNop()
	}
	return &SlotAccounting{store: store, log: log, now: time.Now}
}

// WithClock overrides the service's clock. Tests only.
func (a *SlotAccounting) WithClock(now func() time.Time) *SlotAccounting {
	a.now = now
	return a
}

// Credit adds n purchased slots to the teacher's pool and records the
// purchase. n must be positive; price is what the teacher paid for the
// bundle (audit only, no arithmetic on it here).
func (a *SlotAccounting) Credit(ctx context.Context, teacherID market.UserID, n int, price decimal.Decimal) (*market.SlotPurchase, error) {
	purchase := &market.SlotPurchase{
		ID:          market.PurchaseID(uuid.NewString()),
		TeacherID:   teacherID,
		Slots:       n,
		Amount:      price,
		PurchasedAt: a.now(),
	}

	err := retry.Do(ctx, conflictBackoff(), func(ctx context.Context) error {
		err := a.store.WithTx(ctx, func(s market.Store) error {
			if _, err := s.UpdateTeacher(ctx, teacherID, func(t *market.Teacher) error {
				next, err := t.Slots.Credit(n)
				if err != nil {
					return err
				}
				t.Slots = next
				return nil
			}); err != nil {
				return err
			}
			return s.PutSlotPurchase(ctx, purchase)
		})
		if errors.Is(err, market.ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	a.log.Info("slots credited",
		zap.String("teacher_id", string(teacherID)),
		zap.Int("slots", n),
		zap.String("amount", price.String()),
	)
	return purchase, nil
}

// DebitOne consumes one available slot. Match creation has its own inline
// debit; this entry point exists for admin corrections.
func (a *SlotAccounting) DebitOne(ctx context.Context, teacherID market.UserID) error {
	err := retry.Do(ctx, conflictBackoff(), func(ctx context.Context) error {
		_, err := a.store.UpdateTeacher(ctx, teacherID, func(t *market.Teacher) error {
			next, err := t.Slots.Debit(teacherID)
			if err != nil {
				return err
			}
			t.Slots = next
			return nil
		})
		if errors.Is(err, market.ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return err
	}

	a.log.Info("slot debited", zap.String("teacher_id", string(teacherID)))
	return nil
}
