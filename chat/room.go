/*
room.go - Gated message relay

PURPOSE:
  The transport that actually moves messages is external; this relay is the
  core's write path into it. Send enforces the chat gate, appends the
  message, refreshes the channel's last-message metadata, and marks the
  sender as having read their own message (sending implies having seen the
  conversation).
*/
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/englishhop/marketplace/market"
)

// Room relays messages for gated channels.
type Room struct {
	store market.TxStore
	gate  *Gate
	log   *zap.Logger
	now   func() time.Time
}

func NewRoom(store market.TxStore, gate *Gate, log *zap.Logger) *Room {
	if log == nil {
		log = zap.NewNop()
	}
	return &Room{store: store, gate: gate, log: log, now: time.Now}
}

// WithClock overrides the room's clock. Tests only.
func (r *Room) WithClock(now func() time.Time) *Room {
	r.now = now
	return r
}

// Send appends a message to the channel if the sender is a participant and
// the gate is open. Returns the stored message.
func (r *Room) Send(ctx context.Context, channelID market.ChannelID, senderID market.UserID, text string) (*market.Message, error) {
	if text == "" {
		return nil, fmt.Errorf("empty message")
	}

	studentID, teacherID, err := SplitChannelID(channelID)
	if err != nil {
		return nil, err
	}
	if senderID != studentID && senderID != teacherID {
		return nil, market.ErrNotAuthorized
	}

	ok, err := r.gate.CanChat(ctx, studentID, teacherID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, market.ErrNotAuthorized
	}

	msg := market.Message{
		ID:       market.MessageID(uuid.NewString()),
		SenderID: senderID,
		Text:     text,
		SentAt:   r.now(),
	}

	err = r.store.WithTx(ctx, func(s market.Store) error {
		if err := s.AppendMessage(ctx, channelID, msg); err != nil {
			return err
		}
		_, err := s.UpdateChannel(ctx, channelID, func(ch *market.Channel) error {
			m := msg
			ch.LastMessage = &m
			if ch.LastRead == nil {
				ch.LastRead = make(map[market.UserID]time.Time)
			}
			ch.LastRead[senderID] = msg.SentAt
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	r.log.Debug("message sent",
		zap.String("channel_id", string(channelID)),
		zap.String("sender_id", string(senderID)),
	)
	return &msg, nil
}

// History returns the channel's messages in send order, gated the same way
// as Send: only participants of an unlocked channel may read.
func (r *Room) History(ctx context.Context, channelID market.ChannelID, requesterID market.UserID) ([]market.Message, error) {
	studentID, teacherID, err := SplitChannelID(channelID)
	if err != nil {
		return nil, err
	}
	if requesterID != studentID && requesterID != teacherID {
		return nil, market.ErrNotAuthorized
	}
	ok, err := r.gate.CanChat(ctx, studentID, teacherID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, market.ErrNotAuthorized
	}
	return r.store.Messages(ctx, channelID)
}
