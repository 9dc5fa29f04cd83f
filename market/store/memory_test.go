package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/englishhop/marketplace/market"
	"github.com/englishhop/marketplace/market/store"
)

// =============================================================================
// BASIC CRUD AND ISOLATION
// =============================================================================

func TestMemory_PutGet_ReturnsDeepCopies(t *testing.T) {
	// GIVEN: A stored teacher
	// WHEN: Mutating the structs passed in and handed out
	// THEN: The stored record is unaffected

	ctx := context.Background()
	mem := store.NewMemory()

	in := &market.Teacher{
		ID:            "t-1",
		Name:          "Elena",
		RatePerHour:   decimal.NewFromInt(40),
		PaymentMethod: market.PayPlatform,
		Slots:         market.Slots{Purchased: 2, Available: 2},
	}
	require.NoError(t, mem.PutTeacher(ctx, in))
	in.Name = "mutated after put"

	out, err := mem.GetTeacher(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "Elena", out.Name)

	out.Slots.Available = 99
	again, err := mem.GetTeacher(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Slots.Available)
}

func TestMemory_Get_Unknown_NotFound(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	_, err := mem.GetTeacher(ctx, "ghost")
	assert.True(t, errors.Is(err, market.ErrTeacherNotFound))
	_, err = mem.GetStudent(ctx, "ghost")
	assert.True(t, errors.Is(err, market.ErrStudentNotFound))
	_, err = mem.GetPayment(ctx, "ghost")
	assert.True(t, errors.Is(err, market.ErrPaymentNotFound))
}

func TestMemory_PairLookups_NilWhenAbsent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	m, err := mem.MatchForStudent(ctx, "s-1")
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = mem.MatchForPair(ctx, "s-1", "t-1")
	require.NoError(t, err)
	assert.Nil(t, m)

	ch, err := mem.GetChannel(ctx, "s-1_t-1")
	require.NoError(t, err)
	assert.Nil(t, ch)

	u, err := mem.GetUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestMemory_Update_BumpsVersion(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.PutTeacher(ctx, &market.Teacher{ID: "t-1"}))

	before, err := mem.GetTeacher(ctx, "t-1")
	require.NoError(t, err)

	after, err := mem.UpdateTeacher(ctx, "t-1", func(teacher *market.Teacher) error {
		teacher.Title = "Coach"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, before.Version+1, after.Version)
	assert.Equal(t, "Coach", after.Title)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_Error_RollsBackEverything(t *testing.T) {
	// GIVEN: A transaction writing a match, a teacher update, and a student
	// WHEN: The callback fails after those writes
	// THEN: None of them are visible afterwards

	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.PutTeacher(ctx, &market.Teacher{
		ID:    "t-1",
		Slots: market.Slots{Purchased: 1, Available: 1},
	}))

	boom := fmt.Errorf("boom")
	err := mem.WithTx(ctx, func(s market.Store) error {
		if err := s.PutMatch(ctx, &market.Match{ID: "m-1", StudentID: "s-1", TeacherID: "t-1"}); err != nil {
			return err
		}
		if _, err := s.UpdateTeacher(ctx, "t-1", func(teacher *market.Teacher) error {
			next, err := teacher.Slots.Debit("t-1")
			if err != nil {
				return err
			}
			teacher.Slots = next
			return nil
		}); err != nil {
			return err
		}
		if err := s.PutStudent(ctx, &market.Student{ID: "s-1", MatchedTeacherID: "t-1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = mem.GetMatch(ctx, "m-1")
	assert.True(t, errors.Is(err, market.ErrMatchNotFound))

	teacher, err := mem.GetTeacher(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 1, teacher.Slots.Available, "slot debit rolled back")

	_, err = mem.GetStudent(ctx, "s-1")
	assert.True(t, errors.Is(err, market.ErrStudentNotFound))
}

func TestWithTx_ReadsSeeStagedWrites(t *testing.T) {
	// Writes inside the transaction are visible to later reads in the same
	// transaction, invisible outside until commit.

	ctx := context.Background()
	mem := store.NewMemory()

	err := mem.WithTx(ctx, func(s market.Store) error {
		if err := s.PutTeacher(ctx, &market.Teacher{ID: "t-1", Name: "Inside"}); err != nil {
			return err
		}
		seen, err := s.GetTeacher(ctx, "t-1")
		if err != nil {
			return err
		}
		assert.Equal(t, "Inside", seen.Name)
		return nil
	})
	require.NoError(t, err)

	committed, err := mem.GetTeacher(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "Inside", committed.Name)
}

// =============================================================================
// CHANGE NOTIFICATION
// =============================================================================

func TestSubscribe_ReceivesCommittedEvents(t *testing.T) {
	// GIVEN: A subscription on the teachers collection
	// WHEN: A teacher is written directly and another inside a transaction
	// THEN: Both events arrive, transaction events only after commit

	ctx := context.Background()
	mem := store.NewMemory()

	events := make(chan market.Event, 8)
	cancel := mem.Subscribe(market.ColTeachers, "", func(e market.Event) {
		events <- e
	})
	defer cancel()

	require.NoError(t, mem.PutTeacher(ctx, &market.Teacher{ID: "t-1"}))

	select {
	case e := <-events:
		assert.Equal(t, market.ColTeachers, e.Collection)
		assert.Equal(t, "t-1", e.ID)
		assert.Equal(t, market.OpPut, e.Op)
	case <-time.After(time.Second):
		t.Fatal("no event for direct put")
	}

	err := mem.WithTx(ctx, func(s market.Store) error {
		if err := s.PutTeacher(ctx, &market.Teacher{ID: "t-2"}); err != nil {
			return err
		}
		select {
		case e := <-events:
			t.Fatalf("event %v leaked before commit", e)
		case <-time.After(20 * time.Millisecond):
		}
		return nil
	})
	require.NoError(t, err)

	select {
	case e := <-events:
		assert.Equal(t, "t-2", e.ID)
	case <-time.After(time.Second):
		t.Fatal("no event after commit")
	}
}

func TestSubscribe_IDFilterAndCancel(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	var got []string
	cancel := mem.Subscribe(market.ColTeachers, "t-wanted", func(e market.Event) {
		got = append(got, e.ID)
	})

	require.NoError(t, mem.PutTeacher(ctx, &market.Teacher{ID: "t-other"}))
	require.NoError(t, mem.PutTeacher(ctx, &market.Teacher{ID: "t-wanted"}))
	assert.Equal(t, []string{"t-wanted"}, got)

	cancel()
	cancel() // second cancel is a no-op
	require.NoError(t, mem.PutTeacher(ctx, &market.Teacher{ID: "t-wanted"}))
	assert.Equal(t, []string{"t-wanted"}, got, "no delivery after cancel")
}

// =============================================================================
// FAILED TRANSACTION EMITS NOTHING
// =============================================================================

func TestWithTx_Error_EmitsNoEvents(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	fired := false
	cancel := mem.Subscribe(market.ColStudents, "", func(market.Event) { fired = true })
	defer cancel()

	err := mem.WithTx(ctx, func(s market.Store) error {
		if err := s.PutStudent(ctx, &market.Student{ID: "s-1"}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)
	assert.False(t, fired)
}
