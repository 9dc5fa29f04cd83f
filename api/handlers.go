/*
handlers.go - HTTP API handlers for the marketplace core

PURPOSE:
  Exposes the matching/billing/chat engines via REST. Handles HTTP
  request/response, JSON serialization, request validation, and delegates
  to the domain packages.

ENDPOINTS:
  Teachers:
    GET    /api/teachers                    Browse teachers
    POST   /api/teachers                    Register a teacher
    GET    /api/teachers/{id}               Teacher details
    PUT    /api/teachers/{id}               Update profile text
    PUT    /api/teachers/{id}/rate          Set rate / payment method / bank details
    POST   /api/teachers/{id}/slots         Buy a slot bundle
    GET    /api/teachers/{id}/slots         Purchase history
    GET    /api/teachers/{id}/students      Matched students
    GET    /api/teachers/{id}/payments      Pending + confirmed payments
    GET    /api/teachers/{id}/earnings      Confirmed earnings total

  Students:
    POST   /api/students                    Register a student
    GET    /api/students/{id}               Student details
    PUT    /api/students/{id}               Update profile
    GET    /api/students/{id}/match         Current match (404 if unmatched)

  Matches:
    POST   /api/matches                     Choose a teacher (the core transition)
    GET    /api/matches                     All matches (admin)

  Payments:
    POST   /api/payments                    Submit a payment
    POST   /api/payments/{id}/confirm       Teacher confirms receipt

  Chat:
    GET    /api/chats/{id}/eligibility      Is messaging unlocked?
    GET    /api/chats/{id}/messages         History (gated)
    POST   /api/chats/{id}/messages         Send (gated)
    POST   /api/chats/{id}/read             Mark read
    GET    /api/chats/{id}/unread           Unread flag for a user

ERROR HANDLING:
  Domain errors map to JSON with appropriate status:
  - 400: validation failures, invalid amounts, rate-not-set, payout-incomplete
  - 403: not authorized
  - 404: unknown teacher/student/match/payment
  - 409: already matched, no slots, already confirmed, store conflicts

ACTING USER:
  When a bearer token is present its principal is the actor; body fields
  naming an actor must agree with it. Without a token (dev mode) the body
  fields stand alone.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/englishhop/marketplace/auth"
	"github.com/englishhop/marketplace/billing"
	"github.com/englishhop/marketplace/chat"
	"github.com/englishhop/marketplace/market"
	"github.com/englishhop/marketplace/matching"
	"github.com/google/uuid"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    market.TxStore
	Matching *matching.Engine
	Slots    *matching.SlotAccounting
	Billing  *billing.Service
	Gate     *chat.Gate
	Room     *chat.Room
	Auth     *auth.Manager
	Log      *zap.Logger

	validate *validator.Validate
}

// NewHandler wires the domain services around the given store.
func NewHandler(store market.TxStore, authMgr *auth.Manager, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	gate := chat.NewGate(store)
	return &Handler{
		Store:    store,
		Matching: matching.NewEngine(store, log),
		Slots:    matching.NewSlotAccounting(store, log),
		Billing:  billing.NewService(store, log),
		Gate:     gate,
		Room:     chat.NewRoom(store, gate, log),
		Auth:     authMgr,
		Log:      log,
		validate: validator.New(),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case market.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, market.ErrAlreadyMatched),
		errors.Is(err, market.ErrInsufficientSlots),
		errors.Is(err, market.ErrAlreadyConfirmed),
		errors.Is(err, market.ErrConflict):
		status = http.StatusConflict
	case market.IsClientError(err):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.Log.Error("internal error", zap.Error(err))
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// decode parses and validates a JSON request body.
func (h *Handler) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return h.validate.Struct(v)
}

// actor resolves the acting user: the token's principal when present,
// otherwise the fallback from the request body (dev mode). A body actor
// that contradicts the token is rejected.
func (h *Handler) actor(r *http.Request, fallback market.UserID) (market.UserID, error) {
	if p, ok := auth.FromContext(r.Context()); ok {
		if fallback != "" && fallback != p.UserID && p.Role != market.RoleAdmin {
			return "", market.ErrNotAuthorized
		}
		if p.Role == market.RoleAdmin && fallback != "" {
			return fallback, nil
		}
		return p.UserID, nil
	}
	return fallback, nil
}

// =============================================================================
// TEACHERS
// =============================================================================

func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.Store.ListTeachers(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]TeacherDTO, 0, len(teachers))
	for _, t := range teachers {
		out = append(out, toTeacherDTO(t))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req CreateTeacherRequest
	if err := h.decode(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	id := market.UserID(req.ID)
	if id == "" {
		id = market.UserID(uuid.NewString())
	}

	now := time.Now()
	teacher := &market.Teacher{
		ID:            id,
		Name:          req.Name,
		Email:         req.Email,
		Title:         req.Title,
		Bio:           req.Bio,
		PaymentMethod: market.PayPlatform,
		CreatedAt:     now,
	}
	err := h.Store.WithTx(r.Context(), func(s market.Store) error {
		if err := s.PutTeacher(r.Context(), teacher); err != nil {
			return err
		}
		return s.PutUser(r.Context(), &market.User{ID: id, Role: market.RoleTeacher, CreatedAt: now})
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toTeacherDTO(teacher))
}

func (h *Handler) GetTeacher(w http.ResponseWriter, r *http.Request) {
	id := market.UserID(chi.URLParam(r, "id"))
	t, err := h.Store.GetTeacher(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTeacherDTO(t))
}

// UpdateTeacherProfile updates display-only fields. Last-write-wins; these
// carry no cross-entity invariant.
func (h *Handler) UpdateTeacherProfile(w http.ResponseWriter, r *http.Request) {
	id := market.UserID(chi.URLParam(r, "id"))
	if _, err := h.actor(r, id); err != nil {
		h.writeError(w, err)
		return
	}
	var req UpdateTeacherProfileRequest
	if err := h.decode(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	t, err := h.Store.UpdateTeacher(r.Context(), id, func(t *market.Teacher) error {
		apply := func(dst *string, src *string) {
			if src != nil {
				*dst = *src
			}
		}
		apply(&t.Name, req.Name)
		apply(&t.Title, req.Title)
		apply(&t.Bio, req.Bio)
		apply(&t.Experience, req.Experience)
		apply(&t.Qualifications, req.Qualifications)
		apply(&t.Specializations, req.Specializations)
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTeacherDTO(t))
}

// SetRate updates the teacher's hourly rate, payment method, and (for
// direct payment) bank details. Switching to platform clears bank details,
// mirroring how the settings form behaves.
func (h *Handler) SetRate(w http.ResponseWriter, r *http.Request) {
	id := market.UserID(chi.URLParam(r, "id"))
	if _, err := h.actor(r, id); err != nil {
		h.writeError(w, err)
		return
	}
	var req SetRateRequest
	if err := h.decode(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	method := market.PaymentMethod(req.PaymentMethod)
	if method == market.PayDirect && req.BankDetails == nil {
		h.badRequest(w, "bank details required for direct payment")
		return
	}

	t, err := h.Store.UpdateTeacher(r.Context(), id, func(t *market.Teacher) error {
		t.RatePerHour = decimalFromFloat(req.RatePerHour)
		t.PaymentMethod = method
		if method == market.PayDirect {
			t.BankDetails = market.BankDetails{
				BankName:      req.BankDetails.BankName,
				AccountName:   req.BankDetails.AccountName,
				AccountNumber: req.BankDetails.AccountNumber,
			}
		} else {
			t.BankDetails = market.BankDetails{}
		}
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTeacherDTO(t))
}

func (h *Handler) BuySlots(w http.ResponseWriter, r *http.Request) {
	id := market.UserID(chi.URLParam(r, "id"))
	if _, err := h.actor(r, id); err != nil {
		h.writeError(w, err)
		return
	}
	var req BuySlotsRequest
	if err := h.decode(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	purchase, err := h.Slots.Credit(r.Context(), id, req.Slots, decimalFromFloat(req.Amount))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toPurchaseDTO(purchase))
}

func (h *Handler) ListSlotPurchases(w http.ResponseWriter, r *http.Request) {
	id := market.UserID(chi.URLParam(r, "id"))
	purchases, err := h.Store.SlotPurchasesForTeacher(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]PurchaseDTO, 0, len(purchases))
	for _, p := range purchases {
		out = append(out, toPurchaseDTO(p))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) TeacherStudents(w http.ResponseWriter, r *http.Request) {
	id := market.UserID(chi.URLParam(r, "id"))
	matches, err := h.Store.MatchesForTeacher(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]StudentDTO, 0, len(matches))
	for _, m := range matches {
		s, err := h.Store.GetStudent(r.Context(), m.StudentID)
		if errors.Is(err, market.ErrStudentNotFound) {
			continue
		}
		if err != nil {
			h.writeError(w, err)
			return
		}
		out = append(out, toStudentDTO(s))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) TeacherPayments(w http.ResponseWriter, r *http.Request) {
	id := market.UserID(chi.URLParam(r, "id"))
	pending, err := h.Billing.Pending(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	confirmed, err := h.Billing.Confirmed(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	dto := TeacherPaymentsDTO{Pending: []PaymentDTO{}, Confirmed: []PaymentDTO{}}
	for _, p := range pending {
		dto.Pending = append(dto.Pending, toPaymentDTO(p))
	}
	for _, p := range confirmed {
		dto.Confirmed = append(dto.Confirmed, toPaymentDTO(p))
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) TeacherEarnings(w http.ResponseWriter, r *http.Request) {
	id := market.UserID(chi.URLParam(r, "id"))
	total, err := h.Billing.Earnings(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, EarningsDTO{TeacherID: string(id), Earnings: total.InexactFloat64()})
}

// =============================================================================
// STUDENTS
// =============================================================================

func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := h.decode(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	id := market.UserID(req.ID)
	if id == "" {
		id = market.UserID(uuid.NewString())
	}

	now := time.Now()
	student := &market.Student{ID: id, Name: req.Name, Email: req.Email, CreatedAt: now}
	err := h.Store.WithTx(r.Context(), func(s market.Store) error {
		if err := s.PutStudent(r.Context(), student); err != nil {
			return err
		}
		return s.PutUser(r.Context(), &market.User{ID: id, Role: market.RoleStudent, CreatedAt: now})
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toStudentDTO(student))
}

func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id := market.UserID(chi.URLParam(r, "id"))
	s, err := h.Store.GetStudent(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toStudentDTO(s))
}

func (h *Handler) UpdateStudentProfile(w http.ResponseWriter, r *http.Request) {
	id := market.UserID(chi.URLParam(r, "id"))
	if _, err := h.actor(r, id); err != nil {
		h.writeError(w, err)
		return
	}
	var req UpdateStudentProfileRequest
	if err := h.decode(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}

	s, err := h.Store.UpdateStudent(r.Context(), id, func(s *market.Student) error {
		apply := func(dst *string, src *string) {
			if src != nil {
				*dst = *src
			}
		}
		apply(&s.Name, req.Name)
		apply(&s.Level, req.Level)
		apply(&s.Goals, req.Goals)
		apply(&s.Budget, req.Budget)
		apply(&s.PreferredTimes, req.PreferredTimes)
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toStudentDTO(s))
}

func (h *Handler) StudentMatch(w http.ResponseWriter, r *http.Request) {
	id := market.UserID(chi.URLParam(r, "id"))
	m, err := h.Store.MatchForStudent(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if m == nil {
		h.writeError(w, market.ErrMatchNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, toMatchDTO(m))
}

// =============================================================================
// MATCHES
// =============================================================================

// CreateMatch is the core transition: student chooses teacher. When a token
// is present, only the student themselves (or an admin) may trigger it, and
// teacher accounts are rejected outright.
func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req CreateMatchRequest
	if err := h.decode(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	studentID := market.UserID(req.StudentID)
	if _, err := h.actor(r, studentID); err != nil {
		h.writeError(w, err)
		return
	}
	if p, ok := auth.FromContext(r.Context()); ok && p.Role == market.RoleTeacher {
		h.writeError(w, market.ErrNotAuthorized)
		return
	}

	m, err := h.Matching.CreateMatch(r.Context(), studentID, market.UserID(req.TeacherID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toMatchDTO(m))
}

func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.Store.ListMatches(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]MatchDTO, 0, len(matches))
	for _, m := range matches {
		out = append(out, toMatchDTO(m))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req SubmitPaymentRequest
	if err := h.decode(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	studentID := market.UserID(req.StudentID)
	teacherID := market.UserID(req.TeacherID)
	if _, err := h.actor(r, studentID); err != nil {
		h.writeError(w, err)
		return
	}

	// Amount and method default to the match snapshot.
	match, err := h.Store.MatchForPair(r.Context(), studentID, teacherID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if match == nil {
		h.writeError(w, market.ErrNoActiveMatch)
		return
	}
	amount := match.Rate
	if req.Amount != nil {
		amount = decimalFromFloat(*req.Amount)
	}

	p, err := h.Billing.Submit(r.Context(), studentID, teacherID, amount, match.PaymentMethod)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toPaymentDTO(p))
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id := market.PaymentID(chi.URLParam(r, "id"))
	var req ConfirmPaymentRequest
	if err := h.decode(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	actor, err := h.actor(r, market.UserID(req.TeacherID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if actor == "" {
		h.badRequest(w, "teacherId required")
		return
	}

	p, err := h.Billing.Confirm(r.Context(), id, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPaymentDTO(p))
}

// =============================================================================
// CHAT
// =============================================================================

func (h *Handler) ChatEligibility(w http.ResponseWriter, r *http.Request) {
	channelID := market.ChannelID(chi.URLParam(r, "id"))
	studentID, teacherID, err := chat.SplitChannelID(channelID)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	ok, err := h.Gate.CanChat(r.Context(), studentID, teacherID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, EligibilityDTO{CanChat: ok})
}

func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	channelID := market.ChannelID(chi.URLParam(r, "id"))
	requester, err := h.actor(r, market.UserID(r.URL.Query().Get("user")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	msgs, err := h.Room.History(r.Context(), channelID, requester)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageDTO(m))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	channelID := market.ChannelID(chi.URLParam(r, "id"))
	var req SendMessageRequest
	if err := h.decode(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	sender, err := h.actor(r, market.UserID(req.SenderID))
	if err != nil {
		h.writeError(w, err)
		return
	}

	msg, err := h.Room.Send(r.Context(), channelID, sender, req.Text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toMessageDTO(*msg))
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	channelID := market.ChannelID(chi.URLParam(r, "id"))
	user, err := h.actor(r, market.UserID(r.URL.Query().Get("user")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if user == "" {
		h.badRequest(w, "user required")
		return
	}
	if err := h.Gate.MarkRead(r.Context(), user, channelID, time.Now()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) Unread(w http.ResponseWriter, r *http.Request) {
	channelID := market.ChannelID(chi.URLParam(r, "id"))
	user, err := h.actor(r, market.UserID(r.URL.Query().Get("user")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	n, err := h.Gate.Unread(r.Context(), user, channelID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, UnreadDTO{Unread: n})
}

// =============================================================================
// AUTH / ADMIN
// =============================================================================

// MintToken issues a dev token for a known user. A real deployment replaces
// this with the hosted auth provider.
func (h *Handler) MintToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := h.decode(r, &req); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	token, err := h.Auth.Mint(r.Context(), market.UserID(req.UserID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	p, err := h.Auth.Verify(token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, TokenResponse{Token: token, Role: string(p.Role)})
}

func (h *Handler) AdminOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teachers, err := h.Store.ListTeachers(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	students, err := h.Store.ListStudents(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	matches, err := h.Store.ListMatches(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	payments, err := h.Store.ListPayments(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}

	overview := OverviewDTO{
		Teachers: len(teachers),
		Students: len(students),
		Matches:  len(matches),
		Payments: len(payments),
	}
	fees := decimalFromFloat(0)
	for _, p := range payments {
		if p.Confirmed {
			overview.Confirmed++
			fees = fees.Add(p.PlatformFee)
		}
	}
	overview.FeeTotal = fees.InexactFloat64()
	h.writeJSON(w, http.StatusOK, overview)
}
