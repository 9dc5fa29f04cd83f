/*
Package market provides the core domain model for the EnglishHop marketplace.

PURPOSE:
  This package contains the record types and pure policies shared by every
  other package: teachers with slot inventories, students with at most one
  active match, immutable match records, payments with a confirmation
  lifecycle, and the chat channel read/unread contract.

KEY CONCEPTS IN THIS FILE (types.go):
  - Teacher/Student/Match/Payment: The four ledger record families
  - Slots: A teacher's purchased/used/available counters
  - PaymentMethod: platform (fee deducted, auto-confirmed) vs direct
    (teacher-confirmed bank transfer)
  - Channel/Message: The read/unread contract with the chat transport

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all money to avoid float errors
  2. Type Safety: Strong typing for IDs prevents mixing user and record IDs
  3. Snapshots: A match freezes the teacher's rate and payment method at
     creation time; later rate edits never change existing matches
  4. Versioning: Mutable records carry a version counter for optimistic
     concurrency in stores that need it

SEE ALSO:
  - payout.go: Platform fee arithmetic
  - slots.go: Slot counter invariants
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
*/
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// UserID identifies a teacher, student, or admin account.
type UserID string

type MatchID string
type PaymentID string
type PurchaseID string
type MessageID string

// ChannelID identifies a chat channel between a student and a teacher.
// Always formed as "<studentID>_<teacherID>"; see chat.ChannelID.
type ChannelID string

// =============================================================================
// ROLES
// =============================================================================

// Role is the single tagged role value for a user. The core never infers a
// role by probing multiple collections; the identity collaborator resolves it.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleNone    Role = ""
)

// User is the identity directory record backing Role lookups.
type User struct {
	ID        UserID
	Role      Role
	CreatedAt time.Time
}

// =============================================================================
// PAYMENT METHOD
// =============================================================================

type PaymentMethod string

const (
	// PayPlatform routes funds through the platform, which deducts the
	// platform fee and auto-confirms the payment.
	PayPlatform PaymentMethod = "platform"

	// PayDirect is a bank transfer from student to teacher. Requires the
	// teacher's bank details and a manual confirmation of receipt.
	PayDirect PaymentMethod = "direct"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PayPlatform || m == PayDirect
}

// =============================================================================
// TEACHER
// =============================================================================

// BankDetails is required (all fields non-empty) for teachers using direct
// payment. Complete() is the payout-setup precondition for matching.
type BankDetails struct {
	BankName      string
	AccountName   string
	AccountNumber string
}

func (b BankDetails) Complete() bool {
	return b.BankName != "" && b.AccountName != "" && b.AccountNumber != ""
}

// Teacher is a teacher account with its slot inventory and payout settings.
// Profile text fields are last-write-wins; only Slots and the matching
// preconditions carry cross-entity invariants.
type Teacher struct {
	ID    UserID
	Name  string
	Email string

	// Profile (display only, no invariants)
	Title           string
	Bio             string
	Experience      string
	Qualifications  string
	Specializations string

	// Payout settings. A zero rate means "not set yet" and blocks matching.
	RatePerHour   decimal.Decimal
	PaymentMethod PaymentMethod
	BankDetails   BankDetails

	Slots Slots

	Version   int64
	CreatedAt time.Time
}

// RateSet reports whether the teacher has set a positive hourly rate.
func (t *Teacher) RateSet() bool {
	return t.RatePerHour.IsPositive()
}

// PayoutReady reports whether the teacher's payout setup allows matching:
// direct-payment teachers must have complete bank details.
func (t *Teacher) PayoutReady() bool {
	if t.PaymentMethod == PayDirect {
		return t.BankDetails.Complete()
	}
	return true
}

// =============================================================================
// STUDENT
// =============================================================================

// Student is a student account. MatchedTeacherID is empty until the student
// matches; a student has at most one active match, enforced by the matching
// engine rather than by storage.
type Student struct {
	ID    UserID
	Name  string
	Email string

	// Profile (display only)
	Level          string
	Goals          string
	Budget         string
	PreferredTimes string

	MatchedTeacherID UserID

	Version   int64
	CreatedAt time.Time
}

// Matched reports whether the student already has an active match.
func (s *Student) Matched() bool { return s.MatchedTeacherID != "" }

// =============================================================================
// MATCH
// =============================================================================

type MatchStatus string

const (
	MatchActive MatchStatus = "active"
)

// Match is a durable pairing between one student and one teacher. Rate and
// PaymentMethod are snapshotted from the teacher at creation time and never
// change, even if the teacher later edits their rate. Matches are immutable.
type Match struct {
	ID          MatchID
	StudentID   UserID
	TeacherID   UserID
	StudentName string
	TeacherName string

	Rate          decimal.Decimal
	PaymentMethod PaymentMethod
	Status        MatchStatus
	CreatedAt     time.Time
}

// =============================================================================
// PAYMENT
// =============================================================================

// Payment records one lesson/billing-cycle payment from a student to a
// teacher. Platform payments are confirmed from creation; direct payments
// start unconfirmed and transition exactly once via teacher confirmation,
// which stamps ConfirmedAt. A payment is never un-confirmed.
//
// MatchID links the payment to the match it was submitted under. Chat gating
// still keys on the (student, teacher) pair, which supports multiple payments
// per pair over time.
type Payment struct {
	ID        PaymentID
	MatchID   MatchID
	StudentID UserID
	TeacherID UserID

	Amount          decimal.Decimal
	PlatformFee     decimal.Decimal
	TeacherReceives decimal.Decimal
	PaymentMethod   PaymentMethod

	Confirmed   bool
	ConfirmedAt *time.Time
	SubmittedAt time.Time

	Version int64
}

// =============================================================================
// SLOT PURCHASE - Audit record for slot credits
// =============================================================================

// SlotPurchase records one slot bundle purchase. Append-only.
type SlotPurchase struct {
	ID          PurchaseID
	TeacherID   UserID
	Slots       int
	Amount      decimal.Decimal
	PurchasedAt time.Time
}

// =============================================================================
// CHAT CHANNEL - Read/unread contract with the chat transport
// =============================================================================

// Message is a single chat message. The transport itself is external; the
// core only needs sender and timestamp to derive unread state.
type Message struct {
	ID       MessageID
	SenderID UserID
	Text     string
	SentAt   time.Time
}

// Channel holds the per-channel metadata the chat gate reads: the most
// recent message and each participant's last-read timestamp.
type Channel struct {
	ID          ChannelID
	LastMessage *Message
	LastRead    map[UserID]time.Time

	Version int64
}

// ReadAt returns the user's last-read timestamp for the channel
// (zero time if the user has never read it).
func (c *Channel) ReadAt(user UserID) time.Time {
	if c == nil || c.LastRead == nil {
		return time.Time{}
	}
	return c.LastRead[user]
}
