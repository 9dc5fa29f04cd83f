/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupled from the domain types:
  money crosses the wire as plain numbers, bank details nest the way the
  frontend expects, and internal fields (versions) never leave the server.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validate tags; handlers run them through a shared
  validator.Validate instance before touching domain logic.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/englishhop/marketplace/market"
)

// =============================================================================
// TEACHERS
// =============================================================================

type BankDetailsDTO struct {
	BankName      string `json:"bankName" validate:"required"`
	AccountName   string `json:"accountName" validate:"required"`
	AccountNumber string `json:"accountNumber" validate:"required"`
}

type SlotsDTO struct {
	Purchased int `json:"purchased"`
	Used      int `json:"used"`
	Available int `json:"available"`
}

type TeacherDTO struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email,omitempty"`
	Title           string          `json:"title,omitempty"`
	Bio             string          `json:"bio,omitempty"`
	Experience      string          `json:"experience,omitempty"`
	Qualifications  string          `json:"qualifications,omitempty"`
	Specializations string          `json:"specializations,omitempty"`
	RatePerHour     float64         `json:"ratePerHour"`
	PaymentMethod   string          `json:"paymentMethod"`
	BankDetails     *BankDetailsDTO `json:"bankDetails,omitempty"`
	Slots           SlotsDTO        `json:"slots"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func toTeacherDTO(t *market.Teacher) TeacherDTO {
	dto := TeacherDTO{
		ID:              string(t.ID),
		Name:            t.Name,
		Email:           t.Email,
		Title:           t.Title,
		Bio:             t.Bio,
		Experience:      t.Experience,
		Qualifications:  t.Qualifications,
		Specializations: t.Specializations,
		RatePerHour:     t.RatePerHour.InexactFloat64(),
		PaymentMethod:   string(t.PaymentMethod),
		Slots: SlotsDTO{
			Purchased: t.Slots.Purchased,
			Used:      t.Slots.Used,
			Available: t.Slots.Available,
		},
		CreatedAt: t.CreatedAt,
	}
	if t.BankDetails != (market.BankDetails{}) {
		dto.BankDetails = &BankDetailsDTO{
			BankName:      t.BankDetails.BankName,
			AccountName:   t.BankDetails.AccountName,
			AccountNumber: t.BankDetails.AccountNumber,
		}
	}
	return dto
}

type CreateTeacherRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Title string `json:"title"`
	Bio   string `json:"bio"`
}

type UpdateTeacherProfileRequest struct {
	Name            *string `json:"name"`
	Title           *string `json:"title"`
	Bio             *string `json:"bio"`
	Experience      *string `json:"experience"`
	Qualifications  *string `json:"qualifications"`
	Specializations *string `json:"specializations"`
}

type SetRateRequest struct {
	RatePerHour   float64         `json:"ratePerHour" validate:"gte=0"`
	PaymentMethod string          `json:"paymentMethod" validate:"required,oneof=platform direct"`
	BankDetails   *BankDetailsDTO `json:"bankDetails" validate:"omitempty"`
}

type BuySlotsRequest struct {
	Slots  int     `json:"slots" validate:"required,gt=0"`
	Amount float64 `json:"amount" validate:"gte=0"`
}

// =============================================================================
// STUDENTS
// =============================================================================

type StudentDTO struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email,omitempty"`
	Level            string    `json:"level,omitempty"`
	Goals            string    `json:"goals,omitempty"`
	Budget           string    `json:"budget,omitempty"`
	PreferredTimes   string    `json:"preferredTimes,omitempty"`
	MatchedTeacherID string    `json:"matchedTeacherId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

func toStudentDTO(s *market.Student) StudentDTO {
	return StudentDTO{
		ID:               string(s.ID),
		Name:             s.Name,
		Email:            s.Email,
		Level:            s.Level,
		Goals:            s.Goals,
		Budget:           s.Budget,
		PreferredTimes:   s.PreferredTimes,
		MatchedTeacherID: string(s.MatchedTeacherID),
		CreatedAt:        s.CreatedAt,
	}
}

type CreateStudentRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

type UpdateStudentProfileRequest struct {
	Name           *string `json:"name"`
	Level          *string `json:"level"`
	Goals          *string `json:"goals"`
	Budget         *string `json:"budget"`
	PreferredTimes *string `json:"preferredTimes"`
}

// =============================================================================
// MATCHES
// =============================================================================

type MatchDTO struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"studentId"`
	TeacherID     string    `json:"teacherId"`
	StudentName   string    `json:"studentName,omitempty"`
	TeacherName   string    `json:"teacherName,omitempty"`
	Rate          float64   `json:"rate"`
	PaymentMethod string    `json:"paymentMethod"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toMatchDTO(m *market.Match) MatchDTO {
	return MatchDTO{
		ID:            string(m.ID),
		StudentID:     string(m.StudentID),
		TeacherID:     string(m.TeacherID),
		StudentName:   m.StudentName,
		TeacherName:   m.TeacherName,
		Rate:          m.Rate.InexactFloat64(),
		PaymentMethod: string(m.PaymentMethod),
		Status:        string(m.Status),
		CreatedAt:     m.CreatedAt,
	}
}

type CreateMatchRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	TeacherID string `json:"teacherId" validate:"required"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentDTO struct {
	ID              string     `json:"id"`
	MatchID         string     `json:"matchId,omitempty"`
	StudentID       string     `json:"studentId"`
	TeacherID       string     `json:"teacherId"`
	Amount          float64    `json:"amount"`
	PlatformFee     float64    `json:"platformFee"`
	TeacherReceives float64    `json:"teacherReceives"`
	PaymentMethod   string     `json:"paymentMethod"`
	Confirmed       bool       `json:"confirmed"`
	ConfirmedAt     *time.Time `json:"confirmedAt,omitempty"`
	SubmittedAt     time.Time  `json:"submittedAt"`
}

func toPaymentDTO(p *market.Payment) PaymentDTO {
	return PaymentDTO{
		ID:              string(p.ID),
		MatchID:         string(p.MatchID),
		StudentID:       string(p.StudentID),
		TeacherID:       string(p.TeacherID),
		Amount:          p.Amount.InexactFloat64(),
		PlatformFee:     p.PlatformFee.InexactFloat64(),
		TeacherReceives: p.TeacherReceives.InexactFloat64(),
		PaymentMethod:   string(p.PaymentMethod),
		Confirmed:       p.Confirmed,
		ConfirmedAt:     p.ConfirmedAt,
		SubmittedAt:     p.SubmittedAt,
	}
}

// SubmitPaymentRequest pays the student's matched teacher. Amount defaults
// to the match's snapshotted rate when omitted.
type SubmitPaymentRequest struct {
	StudentID string   `json:"studentId" validate:"required"`
	TeacherID string   `json:"teacherId" validate:"required"`
	Amount    *float64 `json:"amount"`
}

type ConfirmPaymentRequest struct {
	TeacherID string `json:"teacherId"`
}

type TeacherPaymentsDTO struct {
	Pending   []PaymentDTO `json:"pending"`
	Confirmed []PaymentDTO `json:"confirmed"`
}

type EarningsDTO struct {
	TeacherID string  `json:"teacherId"`
	Earnings  float64 `json:"earnings"`
}

type PurchaseDTO struct {
	ID          string    `json:"id"`
	TeacherID   string    `json:"teacherId"`
	Slots       int       `json:"slots"`
	Amount      float64   `json:"amount"`
	PurchasedAt time.Time `json:"purchasedAt"`
}

func toPurchaseDTO(p *market.SlotPurchase) PurchaseDTO {
	return PurchaseDTO{
		ID:          string(p.ID),
		TeacherID:   string(p.TeacherID),
		Slots:       p.Slots,
		Amount:      p.Amount.InexactFloat64(),
		PurchasedAt: p.PurchasedAt,
	}
}

// =============================================================================
// CHAT
// =============================================================================

type MessageDTO struct {
	ID       string    `json:"id"`
	SenderID string    `json:"senderId"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sentAt"`
}

func toMessageDTO(m market.Message) MessageDTO {
	return MessageDTO{
		ID:       string(m.ID),
		SenderID: string(m.SenderID),
		Text:     m.Text,
		SentAt:   m.SentAt,
	}
}

type SendMessageRequest struct {
	SenderID string `json:"senderId"`
	Text     string `json:"text" validate:"required"`
}

type EligibilityDTO struct {
	CanChat bool `json:"canChat"`
}

type UnreadDTO struct {
	Unread int `json:"unread"`
}

// =============================================================================
// AUTH / ADMIN
// =============================================================================

type TokenRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type TokenResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

type OverviewDTO struct {
	Teachers  int     `json:"teachers"`
	Students  int     `json:"students"`
	Matches   int     `json:"matches"`
	Payments  int     `json:"payments"`
	Confirmed int     `json:"confirmedPayments"`
	FeeTotal  float64 `json:"platformFeeTotal"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
