/*
Package chat implements the chat gate: the policy deciding when messaging
between a student and teacher is unlocked, plus the read/unread contract
the navigation badges rely on.

PURPOSE:
  Messaging is a paid capability. It unlocks only once:
    1. A match exists between the pair, AND
    2. At least one payment for the pair is confirmed.

  Eligibility is computed from current state on every check - never cached -
  so a teacher confirming a direct payment unlocks chat immediately.

UNREAD MODEL:
  Unread is a per-channel flag (0 or 1), derived from the channel's most
  recent message and the user's last-read timestamp: unread iff someone
  else sent the last message after the user last read the channel. This is
  deliberately not a true message count.

CHANNEL NAMING:
  One channel per match, keyed "<studentID>_<teacherID>".

SEE ALSO:
  - room.go: Message relay that enforces the gate on send
*/
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/englishhop/marketplace/market"
)

// ChannelID derives the canonical channel key for a student/teacher pair.
func ChannelID(studentID, teacherID market.UserID) market.ChannelID {
	return market.ChannelID(fmt.Sprintf("%s_%s", studentID, teacherID))
}

// SplitChannelID recovers the pair from a channel key.
func SplitChannelID(id market.ChannelID) (studentID, teacherID market.UserID, err error) {
	parts := strings.SplitN(string(id), "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed channel id %q", id)
	}
	return market.UserID(parts[0]), market.UserID(parts[1]), nil
}

// Gate answers chat eligibility and unread questions.
type Gate struct {
	store market.Store
}

func NewGate(store market.Store) *Gate {
	return &Gate{store: store}
}

// CanChat reports whether messaging is unlocked for the pair: a match
// exists and at least one of their payments is confirmed.
func (g *Gate) CanChat(ctx context.Context, studentID, teacherID market.UserID) (bool, error) {
	match, err := g.store.MatchForPair(ctx, studentID, teacherID)
	if err != nil {
		return false, err
	}
	if match == nil {
		return false, nil
	}

	payments, err := g.store.PaymentsForPair(ctx, studentID, teacherID)
	if err != nil {
		return false, err
	}
	for _, p := range payments {
		if p.Confirmed {
			return true, nil
		}
	}
	return false, nil
}

// Unread returns 1 if the channel's last message was sent by someone else
// after the user's last read, else 0. A channel with no activity is read.
func (g *Gate) Unread(ctx context.Context, userID market.UserID, channelID market.ChannelID) (int, error) {
	ch, err := g.store.GetChannel(ctx, channelID)
	if err != nil {
		return 0, err
	}
	if ch == nil || ch.LastMessage == nil {
		return 0, nil
	}
	last := ch.LastMessage
	if last.SenderID != userID && last.SentAt.After(ch.ReadAt(userID)) {
		return 1, nil
	}
	return 0, nil
}

// MarkRead records now as the user's last-read timestamp for the channel.
func (g *Gate) MarkRead(ctx context.Context, userID market.UserID, channelID market.ChannelID, now time.Time) error {
	_, err := g.store.UpdateChannel(ctx, channelID, func(ch *market.Channel) error {
		if ch.LastRead == nil {
			ch.LastRead = make(map[market.UserID]time.Time)
		}
		ch.LastRead[userID] = now
		return nil
	})
	return err
}
