/*
Package matching implements the match-creation engine and slot accounting.

PURPOSE:
  Moving a student from "unmatched" to "matched" consumes one unit of the
  teacher's slot inventory and must survive concurrent callers: two
  students racing for a teacher's last slot must not both succeed.

ELIGIBILITY (checked in order, first failure wins):
  1. Teacher exists
  2. Teacher has set a positive hourly rate
  3. Direct-payment teachers have complete bank details
  4. Teacher has at least one available slot
  5. Student has no existing match

ATOMICITY:
  The match record, the slot debit, and the student's matched-teacher
  pointer are written in one store transaction. Either all three land or
  none do. ErrConflict from the store (a concurrent writer won) is retried
  a bounded number of times; every retry re-runs the precondition checks
  against fresh state, so an exhausted slot pool surfaces as
  ErrInsufficientSlots rather than a transient failure.

SEE ALSO:
  - slots.go: Standalone slot credit/debit operations
  - market/slots.go: The counter arithmetic and its invariant
*/
package matching

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/englishhop/marketplace/market"
)

// conflictBackoff bounds how often a store conflict is retried before the
// error surfaces. Preconditions are re-evaluated on every attempt.
func conflictBackoff() retry.Backoff {
	return retry.WithMaxRetries(3, retry.NewConstant(2*time.Millisecond))
}

// Engine creates matches.
type Engine struct {
	store market.TxStore
	log   *zap.Logger
	now   func() time.Time
}

func NewEngine(store market.TxStore, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, log: log, now: time.Now}
}

// WithClock overrides the engine's clock. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CreateMatch pairs the student with the teacher, debiting one slot and
// snapshotting the teacher's current rate and payment method. The student
// record is created on the fly if it doesn't exist yet.
func (e *Engine) CreateMatch(ctx context.Context, studentID, teacherID market.UserID) (*market.Match, error) {
	var match *market.Match

	err := retry.Do(ctx, conflictBackoff(), func(ctx context.Context) error {
		err := e.store.WithTx(ctx, func(s market.Store) error {
			m, err := e.createMatchTx(ctx, s, studentID, teacherID)
			if err != nil {
				return err
			}
			match = m
			return nil
		})
		if errors.Is(err, market.ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("match created",
		zap.String("match_id", string(match.ID)),
		zap.String("student_id", string(studentID)),
		zap.String("teacher_id", string(teacherID)),
		zap.String("rate", match.Rate.String()),
		zap.String("payment_method", string(match.PaymentMethod)),
	)
	return match, nil
}

// createMatchTx runs the precondition checks and the three writes inside
// one transaction. Check order matters: first failure wins.
func (e *Engine) createMatchTx(ctx context.Context, s market.Store, studentID, teacherID market.UserID) (*market.Match, error) {
	teacher, err := s.GetTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if !teacher.RateSet() {
		return nil, market.ErrRateNotSet
	}
	if !teacher.PayoutReady() {
		return nil, market.ErrPayoutSetupIncomplete
	}
	if teacher.Slots.Available < 1 {
		return nil, &market.InsufficientSlotsError{TeacherID: teacherID, Available: teacher.Slots.Available}
	}

	student, err := s.GetStudent(ctx, studentID)
	if err != nil && !errors.Is(err, market.ErrStudentNotFound) {
		return nil, err
	}
	if student != nil && student.Matched() {
		return nil, &market.AlreadyMatchedError{StudentID: studentID, TeacherID: student.MatchedTeacherID}
	}
	// Belt and braces: the pointer and the match table must agree.
	if existing, err := s.MatchForStudent(ctx, studentID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, &market.AlreadyMatchedError{StudentID: studentID, TeacherID: existing.TeacherID}
	}

	now := e.now()
	studentName := ""
	if student != nil {
		studentName = student.Name
	}

	match := &market.Match{
		ID:            market.MatchID(uuid.NewString()),
		StudentID:     studentID,
		TeacherID:     teacherID,
		StudentName:   studentName,
		TeacherName:   teacher.Name,
		Rate:          teacher.RatePerHour,
		PaymentMethod: teacher.PaymentMethod,
		Status:        market.MatchActive,
		CreatedAt:     now,
	}
	if err := s.PutMatch(ctx, match); err != nil {
		return nil, err
	}

	// Debit one slot inside the same transaction as the match write.
	if _, err := s.UpdateTeacher(ctx, teacherID, func(t *market.Teacher) error {
		next, err := t.Slots.Debit(teacherID)
		if err != nil {
			return err
		}
		t.Slots = next
		return nil
	}); err != nil {
		return nil, err
	}

	if student == nil {
		student = &market.Student{ID: studentID, CreatedAt: now}
	}
	student.MatchedTeacherID = teacherID
	if err := s.PutStudent(ctx, student); err != nil {
		return nil, err
	}

	return match, nil
}
