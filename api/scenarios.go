/*
scenarios.go - Demo data seeding for testing and demonstrations

PURPOSE:

	Populates the store with a realistic marketplace snapshot for demos:
	teachers at different stages of readiness, a matched pair with a
	confirmed payment (chat unlocked), and a pending direct payment.

SEEDED STATE:

	t-elena:  platform payments, rate set, 2 of 5 slots free, matched
	          with s-maria who has a confirmed payment (can chat)
	t-james:  direct payments, bank details complete, 3 slots free,
	          matched with s-kenji whose payment is still pending
	t-aiko:   rate set but zero slots purchased (not matchable)
	t-draft:  no rate yet (not matchable)
	s-nadia:  unmatched student browsing

USAGE VIA API:

	POST /api/admin/seed

NOTE:

	Seeding writes on top of whatever the store holds. Only use in
	development/demo environments with a fresh store.

SEE ALSO:
  - handlers.go: Error and JSON helpers
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/englishhop/marketplace/market"
)

// SeedDemo loads the demo marketplace snapshot.
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	if err := h.seed(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "seeded"})
}

func (h *Handler) seed(ctx context.Context) error {
	now := time.Now()

	type account struct {
		id   market.UserID
		role market.Role
	}
	accounts := []account{
		{"t-elena", market.RoleTeacher},
		{"t-james", market.RoleTeacher},
		{"t-aiko", market.RoleTeacher},
		{"t-draft", market.RoleTeacher},
		{"s-maria", market.RoleStudent},
		{"s-kenji", market.RoleStudent},
		{"s-nadia", market.RoleStudent},
	}

	teachers := []*market.Teacher{
		{
			ID: "t-elena", Name: "Elena Petrova", Email: "elena@example.com",
			Title: "Business English Coach", Bio: "Ten years teaching professionals.",
			Experience: "10 years", Qualifications: "CELTA, DELTA",
			Specializations: "Business English, interview prep",
			RatePerHour:     decimal.NewFromInt(40),
			PaymentMethod:   market.PayPlatform,
			CreatedAt:       now,
		},
		{
			ID: "t-james", Name: "James Okafor", Email: "james@example.com",
			Title: "Conversation Specialist", Bio: "Relaxed conversational practice.",
			Experience: "6 years", Qualifications: "TEFL",
			Specializations: "Conversation, pronunciation",
			RatePerHour:     decimal.NewFromInt(30),
			PaymentMethod:   market.PayDirect,
			BankDetails: market.BankDetails{
				BankName:      "First National",
				AccountName:   "James Okafor",
				AccountNumber: "100200300",
			},
			CreatedAt: now,
		},
		{
			ID: "t-aiko", Name: "Aiko Tanaka", Email: "aiko@example.com",
			Title: "Exam Prep Tutor", Bio: "IELTS and TOEFL focus.",
			RatePerHour:   decimal.NewFromInt(55),
			PaymentMethod: market.PayPlatform,
			CreatedAt:     now,
		},
		{
			ID: "t-draft", Name: "Sam Rivera", Email: "sam@example.com",
			Title: "New Tutor", Bio: "Profile under construction.",
			PaymentMethod: market.PayPlatform,
			CreatedAt:     now,
		},
	}

	students := []*market.Student{
		{ID: "s-maria", Name: "Maria Santos", Email: "maria@example.com", Level: "Intermediate", Goals: "Work presentations", CreatedAt: now},
		{ID: "s-kenji", Name: "Kenji Watanabe", Email: "kenji@example.com", Level: "Beginner", Goals: "Travel conversation", CreatedAt: now},
		{ID: "s-nadia", Name: "Nadia Haddad", Email: "nadia@example.com", Level: "Advanced", Goals: "Accent polish", CreatedAt: now},
	}

	if err := h.Store.WithTx(ctx, func(s market.Store) error {
		for _, a := range accounts {
			if err := s.PutUser(ctx, &market.User{ID: a.id, Role: a.role, CreatedAt: now}); err != nil {
				return err
			}
		}
		for _, t := range teachers {
			if err := s.PutTeacher(ctx, t); err != nil {
				return err
			}
		}
		for _, st := range students {
			if err := s.PutStudent(ctx, st); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	// Slot bundles: elena buys 5, james 3, aiko buys nothing.
	if _, err := h.Slots.Credit(ctx, "t-elena", 5, decimal.NewFromInt(50)); err != nil {
		return err
	}
	if _, err := h.Slots.Credit(ctx, "t-james", 3, decimal.NewFromInt(30)); err != nil {
		return err
	}

	// Matches consume slots through the normal path.
	if _, err := h.Matching.CreateMatch(ctx, "s-maria", "t-elena"); err != nil {
		return err
	}
	if _, err := h.Matching.CreateMatch(ctx, "s-kenji", "t-james"); err != nil {
		return err
	}

	// Maria pays via platform: auto-confirmed, chat unlocks.
	if _, err := h.Billing.Submit(ctx, "s-maria", "t-elena", decimal.NewFromInt(40), market.PayPlatform); err != nil {
		return err
	}
	// Kenji pays direct: stays pending until James confirms.
	if _, err := h.Billing.Submit(ctx, "s-kenji", "t-james", decimal.NewFromInt(30), market.PayDirect); err != nil {
		return err
	}

	// A first message in the unlocked channel.
	channelID := market.ChannelID("s-maria_t-elena")
	if _, err := h.Room.Send(ctx, channelID, "s-maria", "Hi Elena! Looking forward to our first lesson."); err != nil {
		return err
	}

	h.Log.Info("demo data seeded",
		zap.Int("teachers", len(teachers)),
		zap.Int("students", len(students)))
	return nil
}
