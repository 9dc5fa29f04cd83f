/*
slots.go - Slot counter arithmetic

PURPOSE:
  A teacher's capacity to accept students is tracked as three non-negative
  integer counters: purchased, used, available.

CRITICAL INVARIANT:
  purchased == used + available, at every mutation, with all counters >= 0.

  Debit and Credit are the only mutations. They are pure value operations;
  the caller (matching engine, slot accounting service) is responsible for
  applying them inside an atomic store update so that no debit is based on
  a stale read.

SEE ALSO:
  - matching/slots.go: Applies these inside conditional store updates
*/
package market

import "fmt"

// Slots tracks a teacher's slot inventory.
type Slots struct {
	Purchased int
	Used      int
	Available int
}

// Debit consumes one available slot (one new student match).
// Returns InsufficientSlotsError when nothing is available.
func (s Slots) Debit(teacherID UserID) (Slots, error) {
	if s.Available < 1 {
		return s, &InsufficientSlotsError{TeacherID: teacherID, Available: s.Available}
	}
	next := Slots{
		Purchased: s.Purchased,
		Used:      s.Used + 1,
		Available: s.Available - 1,
	}
	return next, next.check()
}

// Credit adds n purchased slots to the pool. n must be positive.
func (s Slots) Credit(n int) (Slots, error) {
	if n <= 0 {
		return s, fmt.Errorf("slot credit must be positive, got %d", n)
	}
	next := Slots{
		Purchased: s.Purchased + n,
		Used:      s.Used,
		Available: s.Available + n,
	}
	return next, next.check()
}

// check verifies the counter invariant. A failure here means corrupted
// state, not a business-rule violation.
func (s Slots) check() error {
	if s.Purchased < 0 || s.Used < 0 || s.Available < 0 {
		return fmt.Errorf("negative slot counter: %+v", s)
	}
	if s.Purchased != s.Used+s.Available {
		return fmt.Errorf("slot counters out of balance: purchased %d != used %d + available %d",
			s.Purchased, s.Used, s.Available)
	}
	return nil
}
