package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/englishhop/marketplace/market"
	"github.com/englishhop/marketplace/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestSqlite_TeacherRoundTrip(t *testing.T) {
	// GIVEN: A fully populated teacher
	// WHEN: Writing and reading back
	// THEN: Every field survives, including decimal rate and bank details

	ctx := context.Background()
	s := newStore(t)

	in := &market.Teacher{
		ID:              "t-1",
		Name:            "Elena Petrova",
		Email:           "elena@example.com",
		Title:           "Business English Coach",
		Bio:             "Ten years teaching professionals.",
		Experience:      "10 years",
		Qualifications:  "CELTA",
		Specializations: "Business English",
		RatePerHour:     decimal.RequireFromString("40.50"),
		PaymentMethod:   market.PayDirect,
		BankDetails: market.BankDetails{
			BankName:      "First National",
			AccountName:   "Elena Petrova",
			AccountNumber: "100200300",
		},
		Slots:     market.Slots{Purchased: 5, Used: 2, Available: 3},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.PutTeacher(ctx, in))

	out, err := s.GetTeacher(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Email, out.Email)
	assert.True(t, out.RatePerHour.Equal(in.RatePerHour), "rate = %s", out.RatePerHour)
	assert.Equal(t, in.BankDetails, out.BankDetails)
	assert.Equal(t, in.Slots, out.Slots)
	assert.True(t, out.CreatedAt.Equal(in.CreatedAt))
}

func TestSqlite_PaymentRoundTrip_ConfirmedAtNullable(t *testing.T) {
	// ConfirmedAt must survive as nil for pending payments and as a
	// timestamp once set.

	ctx := context.Background()
	s := newStore(t)

	pending := &market.Payment{
		ID:              "p-1",
		MatchID:         "m-1",
		StudentID:       "s-1",
		TeacherID:       "t-1",
		Amount:          decimal.NewFromInt(500),
		PlatformFee:     decimal.Zero,
		TeacherReceives: decimal.NewFromInt(500),
		PaymentMethod:   market.PayDirect,
		SubmittedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.PutPayment(ctx, pending))

	out, err := s.GetPayment(ctx, "p-1")
	require.NoError(t, err)
	assert.False(t, out.Confirmed)
	assert.Nil(t, out.ConfirmedAt)

	stamp := time.Now().UTC().Truncate(time.Second)
	_, err = s.UpdatePayment(ctx, "p-1", func(p *market.Payment) error {
		p.Confirmed = true
		p.ConfirmedAt = &stamp
		return nil
	})
	require.NoError(t, err)

	out, err = s.GetPayment(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, out.Confirmed)
	require.NotNil(t, out.ConfirmedAt)
	assert.True(t, out.ConfirmedAt.Equal(stamp))
}

func TestSqlite_Get_Unknown_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.GetTeacher(ctx, "ghost")
	assert.True(t, errors.Is(err, market.ErrTeacherNotFound))
	_, err = s.GetPayment(ctx, "ghost")
	assert.True(t, errors.Is(err, market.ErrPaymentNotFound))

	m, err := s.MatchForStudent(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, m)
}

// =============================================================================
// PAIR AND TEACHER QUERIES
// =============================================================================

func TestSqlite_MatchLookups(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	m := &market.Match{
		ID:            "m-1",
		StudentID:     "s-1",
		TeacherID:     "t-1",
		Rate:          decimal.NewFromInt(40),
		PaymentMethod: market.PayPlatform,
		Status:        market.MatchActive,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.PutMatch(ctx, m))

	byStudent, err := s.MatchForStudent(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, byStudent)
	assert.Equal(t, m.ID, byStudent.ID)

	byPair, err := s.MatchForPair(ctx, "s-1", "t-1")
	require.NoError(t, err)
	require.NotNil(t, byPair)

	wrongPair, err := s.MatchForPair(ctx, "s-1", "t-other")
	require.NoError(t, err)
	assert.Nil(t, wrongPair)

	forTeacher, err := s.MatchesForTeacher(ctx, "t-1")
	require.NoError(t, err)
	assert.Len(t, forTeacher, 1)
}

func TestSqlite_OneMatchPerStudent_Enforced(t *testing.T) {
	// The unique index on student_id backstops the engine's precondition.

	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.PutMatch(ctx, &market.Match{
		ID: "m-1", StudentID: "s-1", TeacherID: "t-1",
		Rate: decimal.NewFromInt(40), PaymentMethod: market.PayPlatform,
		Status: market.MatchActive, CreatedAt: time.Now(),
	}))
	err := s.PutMatch(ctx, &market.Match{
		ID: "m-2", StudentID: "s-1", TeacherID: "t-2",
		Rate: decimal.NewFromInt(50), PaymentMethod: market.PayPlatform,
		Status: market.MatchActive, CreatedAt: time.Now(),
	})
	assert.Error(t, err)
}

// =============================================================================
// OPTIMISTIC CONCURRENCY
// =============================================================================

func TestSqlite_Update_VersionGuard(t *testing.T) {
	// GIVEN: Sequential updates
	// WHEN: Each reads the current version
	// THEN: Both succeed and the version climbs

	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.PutTeacher(ctx, &market.Teacher{ID: "t-1", CreatedAt: time.Now()}))

	first, err := s.UpdateTeacher(ctx, "t-1", func(teacher *market.Teacher) error {
		teacher.Title = "first"
		return nil
	})
	require.NoError(t, err)

	second, err := s.UpdateTeacher(ctx, "t-1", func(teacher *market.Teacher) error {
		teacher.Title = "second"
		return nil
	})
	require.NoError(t, err)
	assert.Greater(t, second.Version, first.Version)
	assert.Equal(t, "second", second.Title)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSqlite_WithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.PutTeacher(ctx, &market.Teacher{
		ID:        "t-1",
		Slots:     market.Slots{Purchased: 1, Available: 1},
		CreatedAt: time.Now(),
	}))

	boom := fmt.Errorf("boom")
	err := s.WithTx(ctx, func(tx market.Store) error {
		if err := tx.PutMatch(ctx, &market.Match{
			ID: "m-1", StudentID: "s-1", TeacherID: "t-1",
			Rate: decimal.NewFromInt(40), PaymentMethod: market.PayPlatform,
			Status: market.MatchActive, CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		if _, err := tx.UpdateTeacher(ctx, "t-1", func(teacher *market.Teacher) error {
			next, err := teacher.Slots.Debit("t-1")
			if err != nil {
				return err
			}
			teacher.Slots = next
			return nil
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetMatch(ctx, "m-1")
	assert.True(t, errors.Is(err, market.ErrMatchNotFound))

	teacher, err := s.GetTeacher(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 1, teacher.Slots.Available)
}

// =============================================================================
// CHAT PERSISTENCE
// =============================================================================

func TestSqlite_ChannelAndMessages(t *testing.T) {
	// GIVEN: A channel created implicitly by UpdateChannel
	// WHEN: Appending messages and moving read markers
	// THEN: Messages come back in send order and per-user read times persist

	ctx := context.Background()
	s := newStore(t)
	channelID := market.ChannelID("s-1_t-1")

	base := time.Now().UTC().Truncate(time.Second)
	msgs := []market.Message{
		{ID: "msg-1", SenderID: "s-1", Text: "hello", SentAt: base},
		{ID: "msg-2", SenderID: "t-1", Text: "hi there", SentAt: base.Add(time.Second)},
	}
	for _, m := range msgs {
		require.NoError(t, s.AppendMessage(ctx, channelID, m))
	}

	_, err := s.UpdateChannel(ctx, channelID, func(ch *market.Channel) error {
		last := msgs[1]
		ch.LastMessage = &last
		if ch.LastRead == nil {
			ch.LastRead = make(map[market.UserID]time.Time)
		}
		ch.LastRead["t-1"] = base.Add(time.Second)
		return nil
	})
	require.NoError(t, err)

	history, err := s.Messages(ctx, channelID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, "hi there", history[1].Text)

	ch, err := s.GetChannel(ctx, channelID)
	require.NoError(t, err)
	require.NotNil(t, ch)
	require.NotNil(t, ch.LastMessage)
	assert.Equal(t, market.MessageID("msg-2"), ch.LastMessage.ID)
	assert.True(t, ch.ReadAt("t-1").Equal(base.Add(time.Second)))
	assert.True(t, ch.ReadAt("s-1").IsZero(), "s-1 never read")
}

// =============================================================================
// USERS
// =============================================================================

func TestSqlite_UserDirectory(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	u, err := s.GetUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, s.PutUser(ctx, &market.User{
		ID: "t-1", Role: market.RoleTeacher, CreatedAt: time.Now(),
	}))

	u, err = s.GetUser(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, market.RoleTeacher, u.Role)
}
