package matching_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/englishhop/marketplace/market"
	"github.com/englishhop/marketplace/market/store"
	"github.com/englishhop/marketplace/matching"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newFixture(t *testing.T) (*store.Memory, *matching.Engine) {
	t.Helper()
	mem := store.NewMemory()
	return mem, matching.NewEngine(mem, nil)
}

// readyTeacher has a rate, platform payments, and the given slot pool.
func readyTeacher(t *testing.T, mem *store.Memory, id market.UserID, available int) {
	t.Helper()
	ctx := context.Background()
	teacher := &market.Teacher{
		ID:            id,
		Name:          "Teacher " + string(id),
		RatePerHour:   decimal.NewFromInt(40),
		PaymentMethod: market.PayPlatform,
		Slots:         market.Slots{Purchased: available, Used: 0, Available: available},
		CreatedAt:     time.Now(),
	}
	require.NoError(t, mem.PutTeacher(ctx, teacher))
}

func existingStudent(t *testing.T, mem *store.Memory, id market.UserID) {
	t.Helper()
	require.NoError(t, mem.PutStudent(context.Background(), &market.Student{
		ID: id, Name: "Student " + string(id), CreatedAt: time.Now(),
	}))
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestCreateMatch_Succeeds_DebitsSlotAndLinksStudent(t *testing.T) {
	// GIVEN: A ready teacher with 3 slots and a registered student
	// WHEN: The student chooses the teacher
	// THEN: A match exists, one slot is consumed, and the student points at the teacher

	ctx := context.Background()
	mem, engine := newFixture(t)
	readyTeacher(t, mem, "t-1", 3)
	existingStudent(t, mem, "s-1")

	m, err := engine.CreateMatch(ctx, "s-1", "t-1")
	require.NoError(t, err)

	assert.Equal(t, market.UserID("s-1"), m.StudentID)
	assert.Equal(t, market.UserID("t-1"), m.TeacherID)
	assert.Equal(t, market.MatchActive, m.Status)
	assert.True(t, m.Rate.Equal(decimal.NewFromInt(40)), "rate snapshot")
	assert.Equal(t, market.PayPlatform, m.PaymentMethod)

	teacher, err := mem.GetTeacher(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, market.Slots{Purchased: 3, Used: 1, Available: 2}, teacher.Slots)

	student, err := mem.GetStudent(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, market.UserID("t-1"), student.MatchedTeacherID)

	found, err := mem.MatchForStudent(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, m.ID, found.ID)
}

func TestCreateMatch_SnapshotsRateAtMatchTime(t *testing.T) {
	// GIVEN: A match created at rate 40
	// WHEN: The teacher later raises the rate to 60
	// THEN: The existing match still carries 40

	ctx := context.Background()
	mem, engine := newFixture(t)
	readyTeacher(t, mem, "t-1", 1)

	m, err := engine.CreateMatch(ctx, "s-1", "t-1")
	require.NoError(t, err)

	_, err = mem.UpdateTeacher(ctx, "t-1", func(teacher *market.Teacher) error {
		teacher.RatePerHour = decimal.NewFromInt(60)
		return nil
	})
	require.NoError(t, err)

	found, err := mem.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, found.Rate.Equal(decimal.NewFromInt(40)))
}

func TestCreateMatch_UnknownStudent_CreatedOnTheFly(t *testing.T) {
	// GIVEN: A student id never registered
	// WHEN: That student matches
	// THEN: A student record appears, already linked

	ctx := context.Background()
	mem, engine := newFixture(t)
	readyTeacher(t, mem, "t-1", 1)

	_, err := engine.CreateMatch(ctx, "s-new", "t-1")
	require.NoError(t, err)

	student, err := mem.GetStudent(ctx, "s-new")
	require.NoError(t, err)
	assert.Equal(t, market.UserID("t-1"), student.MatchedTeacherID)
}

// =============================================================================
// PRECONDITIONS (first failure wins, nothing is written)
// =============================================================================

func TestCreateMatch_UnknownTeacher_Fails(t *testing.T) {
	ctx := context.Background()
	_, engine := newFixture(t)

	_, err := engine.CreateMatch(ctx, "s-1", "t-missing")
	assert.True(t, errors.Is(err, market.ErrTeacherNotFound))
}

func TestCreateMatch_RateNotSet_FailsWithoutSideEffects(t *testing.T) {
	// GIVEN: A teacher with slots but no rate
	// WHEN: A student tries to match
	// THEN: ErrRateNotSet; no slot debited, no match written, student untouched

	ctx := context.Background()
	mem, engine := newFixture(t)
	require.NoError(t, mem.PutTeacher(ctx, &market.Teacher{
		ID:            "t-norate",
		PaymentMethod: market.PayPlatform,
		Slots:         market.Slots{Purchased: 2, Available: 2},
	}))
	existingStudent(t, mem, "s-1")

	_, err := engine.CreateMatch(ctx, "s-1", "t-norate")
	assert.True(t, errors.Is(err, market.ErrRateNotSet))

	teacher, err := mem.GetTeacher(ctx, "t-norate")
	require.NoError(t, err)
	assert.Equal(t, 2, teacher.Slots.Available, "no slot debited")

	student, err := mem.GetStudent(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, student.Matched())

	m, err := mem.MatchForStudent(ctx, "s-1")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestCreateMatch_DirectTeacherWithoutBankDetails_Fails(t *testing.T) {
	// GIVEN: A direct-payment teacher with a rate but incomplete bank details
	// WHEN: A student tries to match
	// THEN: ErrPayoutSetupIncomplete

	ctx := context.Background()
	mem, engine := newFixture(t)
	require.NoError(t, mem.PutTeacher(ctx, &market.Teacher{
		ID:            "t-direct",
		RatePerHour:   decimal.NewFromInt(30),
		PaymentMethod: market.PayDirect,
		BankDetails:   market.BankDetails{BankName: "Only Bank"}, // missing account fields
		Slots:         market.Slots{Purchased: 1, Available: 1},
	}))

	_, err := engine.CreateMatch(ctx, "s-1", "t-direct")
	assert.True(t, errors.Is(err, market.ErrPayoutSetupIncomplete))
}

func TestCreateMatch_NoSlots_Fails(t *testing.T) {
	ctx := context.Background()
	mem, engine := newFixture(t)
	readyTeacher(t, mem, "t-full", 0)

	_, err := engine.CreateMatch(ctx, "s-1", "t-full")
	require.Error(t, err)
	assert.True(t, errors.Is(err, market.ErrInsufficientSlots))

	var insufficient *market.InsufficientSlotsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, market.UserID("t-full"), insufficient.TeacherID)
}

func TestCreateMatch_StudentAlreadyMatched_Fails(t *testing.T) {
	// GIVEN: A student matched with teacher A
	// WHEN: They try to match with teacher B
	// THEN: AlreadyMatchedError names the current teacher; B's slots are intact

	ctx := context.Background()
	mem, engine := newFixture(t)
	readyTeacher(t, mem, "t-a", 1)
	readyTeacher(t, mem, "t-b", 1)

	_, err := engine.CreateMatch(ctx, "s-1", "t-a")
	require.NoError(t, err)

	_, err = engine.CreateMatch(ctx, "s-1", "t-b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, market.ErrAlreadyMatched))

	var already *market.AlreadyMatchedError
	require.True(t, errors.As(err, &already))
	assert.Equal(t, market.UserID("t-a"), already.TeacherID)

	teacherB, err := mem.GetTeacher(ctx, "t-b")
	require.NoError(t, err)
	assert.Equal(t, 1, teacherB.Slots.Available)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestCreateMatch_RaceForLastSlot_ExactlyOneWins(t *testing.T) {
	// GIVEN: A teacher with exactly one slot and many students racing for it
	// WHEN: All of them call CreateMatch concurrently
	// THEN: Exactly one succeeds; the rest get ErrInsufficientSlots; the
	//       counters never go negative

	ctx := context.Background()
	mem, engine := newFixture(t)
	readyTeacher(t, mem, "t-last", 1)

	const students = 8
	var wg sync.WaitGroup
	errs := make([]error, students)
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := market.UserID([]string{"s-0", "s-1", "s-2", "s-3", "s-4", "s-5", "s-6", "s-7"}[i])
			_, errs[i] = engine.CreateMatch(ctx, id, "t-last")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, market.ErrInsufficientSlots), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins, "exactly one student should win the last slot")

	teacher, err := mem.GetTeacher(ctx, "t-last")
	require.NoError(t, err)
	assert.Equal(t, market.Slots{Purchased: 1, Used: 1, Available: 0}, teacher.Slots)

	matches, err := mem.MatchesForTeacher(ctx, "t-last")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

// =============================================================================
// SLOT ACCOUNTING
// =============================================================================

func TestSlotAccounting_Credit_RecordsPurchaseAndGrowsPool(t *testing.T) {
	// GIVEN: A teacher with an empty pool
	// WHEN: Buying a 5-slot bundle
	// THEN: Counters grow and a purchase record exists

	ctx := context.Background()
	mem, _ := newFixture(t)
	readyTeacher(t, mem, "t-1", 0)
	slots := matching.NewSlotAccounting(mem, nil)

	purchase, err := slots.Credit(ctx, "t-1", 5, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, market.UserID("t-1"), purchase.TeacherID)
	assert.Equal(t, 5, purchase.Slots)

	teacher, err := mem.GetTeacher(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, market.Slots{Purchased: 5, Used: 0, Available: 5}, teacher.Slots)

	history, err := mem.SlotPurchasesForTeacher(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, purchase.ID, history[0].ID)
}

func TestSlotAccounting_Credit_UnknownTeacher_Fails(t *testing.T) {
	ctx := context.Background()
	mem, _ := newFixture(t)
	slots := matching.NewSlotAccounting(mem, nil)

	_, err := slots.Credit(ctx, "t-ghost", 5, decimal.NewFromInt(50))
	assert.True(t, errors.Is(err, market.ErrTeacherNotFound))
}

func TestSlotAccounting_Credit_NonPositiveBundle_Fails(t *testing.T) {
	ctx := context.Background()
	mem, _ := newFixture(t)
	readyTeacher(t, mem, "t-1", 0)
	slots := matching.NewSlotAccounting(mem, nil)

	_, err := slots.Credit(ctx, "t-1", 0, decimal.NewFromInt(10))
	assert.Error(t, err)
}
