/*
store.go - Persistence interfaces for marketplace records

PURPOSE:
  Defines the boundary between the domain logic and storage. The core only
  assumes keyed reads, keyed writes, atomic conditional read-modify-write,
  and (optionally) change notification. Implementations may be in-memory,
  SQLite, or any store that can honor the Update* and WithTx contracts.

ATOMICITY CONTRACT:
  Update* methods are atomic read-modify-write: the mutation function runs
  against the current record and the write only lands if no concurrent
  writer got there first (ErrConflict otherwise). This is what closes the
  read-check-then-write race on slot debits and payment confirmation.

  WithTx runs a function against a transactional view: either every write
  inside it commits, or none do. Match creation spans three records
  (match, teacher, student) and must go through WithTx.

OPTIONAL CAPABILITIES:
  Watcher is an optional interface; callers type-assert for it. Stores
  without change notification (e.g. SQLite) simply don't implement it and
  dashboards fall back to polling.

IMPLEMENTATIONS:
  - market/store/memory.go: In-memory, serializable, with notifier
  - store/sqlite/sqlite.go: SQLite with optimistic version checks

SEE ALSO:
  - matching/engine.go, billing/service.go: The consumers of this contract
*/
package market

import (
	"context"
	"time"
)

// =============================================================================
// COLLECTIONS
// =============================================================================

// Collection names the record families a store holds. Used by change
// notification and by the generic parts of store implementations.
type Collection string

const (
	ColTeachers  Collection = "teachers"
	ColStudents  Collection = "students"
	ColMatches   Collection = "matches"
	ColPayments  Collection = "payments"
	ColPurchases Collection = "slot_purchases"
	ColChannels  Collection = "chats"
	ColUsers     Collection = "users"
)

// =============================================================================
// STORE - Keyed persistence for the four record families (+ chat/identity)
// =============================================================================

// Store is the narrow persistence interface the core requires.
//
// Get* return the Not Found sentinel for missing records, except where the
// doc comment says otherwise. Put* are unconditional writes (create or
// last-write-wins replace of profile data). Update* are atomic conditional
// read-modify-write; if fn returns an error nothing is written and the
// error is returned verbatim.
type Store interface {
	// Teachers
	GetTeacher(ctx context.Context, id UserID) (*Teacher, error)
	PutTeacher(ctx context.Context, t *Teacher) error
	UpdateTeacher(ctx context.Context, id UserID, fn func(*Teacher) error) (*Teacher, error)
	ListTeachers(ctx context.Context) ([]*Teacher, error)

	// Students
	GetStudent(ctx context.Context, id UserID) (*Student, error)
	PutStudent(ctx context.Context, s *Student) error
	UpdateStudent(ctx context.Context, id UserID, fn func(*Student) error) (*Student, error)
	ListStudents(ctx context.Context) ([]*Student, error)

	// Matches (immutable: no update)
	GetMatch(ctx context.Context, id MatchID) (*Match, error)
	PutMatch(ctx context.Context, m *Match) error
	ListMatches(ctx context.Context) ([]*Match, error)
	// MatchForStudent returns the student's match, or (nil, nil) if unmatched.
	MatchForStudent(ctx context.Context, studentID UserID) (*Match, error)
	// MatchForPair returns the match between the pair, or (nil, nil) if none.
	MatchForPair(ctx context.Context, studentID, teacherID UserID) (*Match, error)
	MatchesForTeacher(ctx context.Context, teacherID UserID) ([]*Match, error)

	// Payments
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
	PutPayment(ctx context.Context, p *Payment) error
	UpdatePayment(ctx context.Context, id PaymentID, fn func(*Payment) error) (*Payment, error)
	ListPayments(ctx context.Context) ([]*Payment, error)
	PaymentsForTeacher(ctx context.Context, teacherID UserID) ([]*Payment, error)
	PaymentsForPair(ctx context.Context, studentID, teacherID UserID) ([]*Payment, error)

	// Slot purchases (append-only audit)
	PutSlotPurchase(ctx context.Context, p *SlotPurchase) error
	SlotPurchasesForTeacher(ctx context.Context, teacherID UserID) ([]*SlotPurchase, error)

	// Chat channels. GetChannel returns (nil, nil) for a channel with no
	// activity yet. UpdateChannel creates the channel if absent.
	GetChannel(ctx context.Context, id ChannelID) (*Channel, error)
	UpdateChannel(ctx context.Context, id ChannelID, fn func(*Channel) error) (*Channel, error)
	AppendMessage(ctx context.Context, id ChannelID, msg Message) error
	Messages(ctx context.Context, id ChannelID) ([]Message, error)

	// Identity directory. GetUser returns (nil, nil) for unknown users.
	GetUser(ctx context.Context, id UserID) (*User, error)
	PutUser(ctx context.Context, u *User) error
}

// =============================================================================
// TRANSACTIONAL STORE - Atomic multi-record operations
// =============================================================================

// TxStore extends Store with all-or-nothing multi-record transactions.
//
// WithTx executes fn against a view of the store. If fn returns nil every
// write commits atomically and becomes visible to other callers at once;
// if fn returns an error nothing is written. ErrConflict from the commit
// means a concurrent writer won; the caller re-runs the whole function
// (preconditions included) a bounded number of times.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// CHANGE NOTIFICATION - Optional capability
// =============================================================================

// EventOp says what happened to a record.
type EventOp string

const (
	OpPut    EventOp = "put"
	OpUpdate EventOp = "update"
)

// Event is a change notification for one record. Emitted after commit,
// never before; subscribers observe only durable state.
type Event struct {
	Collection Collection
	ID         string
	Op         EventOp
	At         time.Time
}

// Watcher is the optional change-notification capability. Subscribe with an
// empty id to observe the whole collection. The returned cancel func must be
// called to release the subscription.
//
/// Callers type-assert:
//
//	if w, ok := store.(market.Watcher); ok { ... }
type Watcher interface {
	Subscribe(c Collection, id string, fn func(Event)) (cancel func())
}

// =============================================================================
// IDENTITY COLLABORATOR
// =============================================================================

// Identity resolves who is acting and what role they hold. Authentication
// itself is external; the core only consumes the resolved identity.
type Identity interface {
	// RoleOf returns the user's role, or RoleNone for unknown users.
	RoleOf(ctx context.Context, id UserID) (Role, error)
}

// Directory is the Store-backed Identity implementation.
type Directory struct {
	Store Store
}

func (d *Directory) RoleOf(ctx context.Context, id UserID) (Role, error) {
	u, err := d.Store.GetUser(ctx, id)
	if err != nil {
		return RoleNone, err
	}
	if u == nil {
		return RoleNone, nil
	}
	return u.Role, nil
}
