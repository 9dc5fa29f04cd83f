package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/englishhop/marketplace/chat"
	"github.com/englishhop/marketplace/market"
	"github.com/englishhop/marketplace/market/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newFixture(t *testing.T) (*store.Memory, *chat.Gate, *chat.Room) {
	t.Helper()
	mem := store.NewMemory()
	gate := chat.NewGate(mem)
	return mem, gate, chat.NewRoom(mem, gate, nil)
}

func putMatch(t *testing.T, mem *store.Memory, studentID, teacherID market.UserID) {
	t.Helper()
	require.NoError(t, mem.PutMatch(context.Background(), &market.Match{
		ID:            market.MatchID("m-" + string(studentID)),
		StudentID:     studentID,
		TeacherID:     teacherID,
		Rate:          decimal.NewFromInt(40),
		PaymentMethod: market.PayDirect,
		Status:        market.MatchActive,
		CreatedAt:     time.Now(),
	}))
}

func putPayment(t *testing.T, mem *store.Memory, studentID, teacherID market.UserID, confirmed bool) *market.Payment {
	t.Helper()
	p := &market.Payment{
		ID:            market.PaymentID("p-" + string(studentID) + "-" + string(teacherID)),
		MatchID:       market.MatchID("m-" + string(studentID)),
		StudentID:     studentID,
		TeacherID:     teacherID,
		Amount:        decimal.NewFromInt(40),
		PaymentMethod: market.PayDirect,
		Confirmed:     confirmed,
		SubmittedAt:   time.Now(),
	}
	require.NoError(t, mem.PutPayment(context.Background(), p))
	return p
}

// =============================================================================
// CHANNEL NAMING
// =============================================================================

func TestChannelID_RoundTrip(t *testing.T) {
	id := chat.ChannelID("s-1", "t-1")
	assert.Equal(t, market.ChannelID("s-1_t-1"), id)

	s, teacher, err := chat.SplitChannelID(id)
	require.NoError(t, err)
	assert.Equal(t, market.UserID("s-1"), s)
	assert.Equal(t, market.UserID("t-1"), teacher)
}

func TestSplitChannelID_Malformed(t *testing.T) {
	for _, bad := range []market.ChannelID{"", "nounderscore", "_t-1", "s-1_"} {
		_, _, err := chat.SplitChannelID(bad)
		assert.Error(t, err, "id %q", bad)
	}
}

// =============================================================================
// ELIGIBILITY LIFECYCLE
// =============================================================================

func TestCanChat_UnlocksOnlyAfterConfirmedPayment(t *testing.T) {
	// GIVEN: A pair moving through the funnel
	// WHEN: Checking eligibility at each stage
	// THEN: no match -> false, match only -> false, pending payment -> false,
	//       confirmed payment -> true

	ctx := context.Background()
	mem, gate, _ := newFixture(t)

	ok, err := gate.CanChat(ctx, "s-1", "t-1")
	require.NoError(t, err)
	assert.False(t, ok, "no match yet")

	putMatch(t, mem, "s-1", "t-1")
	ok, err = gate.CanChat(ctx, "s-1", "t-1")
	require.NoError(t, err)
	assert.False(t, ok, "match alone is not enough")

	p := putPayment(t, mem, "s-1", "t-1", false)
	ok, err = gate.CanChat(ctx, "s-1", "t-1")
	require.NoError(t, err)
	assert.False(t, ok, "pending payment is not enough")

	_, err = mem.UpdatePayment(ctx, p.ID, func(p *market.Payment) error {
		p.Confirmed = true
		return nil
	})
	require.NoError(t, err)

	ok, err = gate.CanChat(ctx, "s-1", "t-1")
	require.NoError(t, err)
	assert.True(t, ok, "confirmed payment unlocks chat")
}

func TestCanChat_OtherPairsPaymentDoesNotUnlock(t *testing.T) {
	// A confirmed payment between s-2 and t-1 must not unlock s-1's channel.

	ctx := context.Background()
	mem, gate, _ := newFixture(t)
	putMatch(t, mem, "s-1", "t-1")
	putMatch(t, mem, "s-2", "t-1")
	putPayment(t, mem, "s-2", "t-1", true)

	ok, err := gate.CanChat(ctx, "s-1", "t-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// SEND AND HISTORY
// =============================================================================

func TestSend_GateClosed_Forbidden(t *testing.T) {
	ctx := context.Background()
	mem, _, room := newFixture(t)
	putMatch(t, mem, "s-1", "t-1")

	_, err := room.Send(ctx, chat.ChannelID("s-1", "t-1"), "s-1", "hello?")
	assert.True(t, errors.Is(err, market.ErrNotAuthorized))
}

func TestSend_NonParticipant_Forbidden(t *testing.T) {
	ctx := context.Background()
	mem, _, room := newFixture(t)
	putMatch(t, mem, "s-1", "t-1")
	putPayment(t, mem, "s-1", "t-1", true)

	_, err := room.Send(ctx, chat.ChannelID("s-1", "t-1"), "s-lurker", "hi")
	assert.True(t, errors.Is(err, market.ErrNotAuthorized))
}

func TestSend_EmptyText_Rejected(t *testing.T) {
	ctx := context.Background()
	mem, _, room := newFixture(t)
	putMatch(t, mem, "s-1", "t-1")
	putPayment(t, mem, "s-1", "t-1", true)

	_, err := room.Send(ctx, chat.ChannelID("s-1", "t-1"), "s-1", "")
	assert.Error(t, err)
}

func TestSend_AppendsAndUpdatesChannelMetadata(t *testing.T) {
	// GIVEN: An unlocked channel
	// WHEN: The student sends two messages and the teacher one
	// THEN: History preserves order; the channel's last message is the
	//       teacher's and each sender has read their own send

	ctx := context.Background()
	mem, _, room := newFixture(t)
	putMatch(t, mem, "s-1", "t-1")
	putPayment(t, mem, "s-1", "t-1", true)
	channelID := chat.ChannelID("s-1", "t-1")

	_, err := room.Send(ctx, channelID, "s-1", "hello")
	require.NoError(t, err)
	_, err = room.Send(ctx, channelID, "s-1", "are you there?")
	require.NoError(t, err)
	last, err := room.Send(ctx, channelID, "t-1", "yes, hi!")
	require.NoError(t, err)

	history, err := room.History(ctx, channelID, "s-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, "are you there?", history[1].Text)
	assert.Equal(t, "yes, hi!", history[2].Text)

	ch, err := mem.GetChannel(ctx, channelID)
	require.NoError(t, err)
	require.NotNil(t, ch)
	require.NotNil(t, ch.LastMessage)
	assert.Equal(t, last.ID, ch.LastMessage.ID)
	assert.False(t, ch.ReadAt("t-1").Before(last.SentAt), "sender has read their own message")
}

func TestHistory_GateClosed_Forbidden(t *testing.T) {
	ctx := context.Background()
	mem, _, room := newFixture(t)
	putMatch(t, mem, "s-1", "t-1")

	_, err := room.History(ctx, chat.ChannelID("s-1", "t-1"), "s-1")
	assert.True(t, errors.Is(err, market.ErrNotAuthorized))
}

// =============================================================================
// UNREAD / MARK READ
// =============================================================================

func TestUnread_FlagLifecycle(t *testing.T) {
	// GIVEN: An unlocked channel
	// WHEN: Messages are sent and read markers move
	// THEN: The flag is 0 for the sender, 1 for the receiver, and drops back
	//       to 0 after MarkRead

	ctx := context.Background()
	mem, gate, room := newFixture(t)
	putMatch(t, mem, "s-1", "t-1")
	putPayment(t, mem, "s-1", "t-1", true)
	channelID := chat.ChannelID("s-1", "t-1")

	// Quiet channel reads as 0 for everyone.
	n, err := gate.Unread(ctx, "t-1", channelID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	msg, err := room.Send(ctx, channelID, "s-1", "new lesson plan")
	require.NoError(t, err)

	n, err = gate.Unread(ctx, "t-1", channelID)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "receiver sees unread")

	n, err = gate.Unread(ctx, "s-1", channelID)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "sender never sees their own message as unread")

	require.NoError(t, gate.MarkRead(ctx, "t-1", channelID, msg.SentAt.Add(time.Second)))
	n, err = gate.Unread(ctx, "t-1", channelID)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "read marker clears the flag")
}

func TestUnread_UnknownChannel_Zero(t *testing.T) {
	ctx := context.Background()
	_, gate, _ := newFixture(t)

	n, err := gate.Unread(ctx, "s-1", "s-1_t-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
