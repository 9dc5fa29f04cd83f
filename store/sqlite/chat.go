/*
chat.go - Channel metadata, read-state, messages, and identity directory

PURPOSE:
  The chat gate only needs a channel's most recent message and per-user
  last-read timestamps; those live in the channels and channel_reads
  tables. Full message history lives in messages (append-only).
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/englishhop/marketplace/market"
)

// =============================================================================
// CHANNELS
// =============================================================================

func (v *txView) GetChannel(ctx context.Context, id market.ChannelID) (*market.Channel, error) {
	row := v.q.QueryRowContext(ctx, `
		SELECT id, last_msg_id, last_sender, last_text, last_sent_at, version
		FROM channels WHERE id = ?`, id)

	var ch market.Channel
	var msgID, sender, text, sentAt string
	err := row.Scan(&ch.ID, &msgID, &sender, &text, &sentAt, &ch.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if msgID != "" {
		at, err := decTime(sentAt)
		if err != nil {
			return nil, err
		}
		ch.LastMessage = &market.Message{
			ID:       market.MessageID(msgID),
			SenderID: market.UserID(sender),
			Text:     text,
			SentAt:   at,
		}
	}

	ch.LastRead = make(map[market.UserID]time.Time)
	rows, err := v.q.QueryContext(ctx,
		`SELECT user_id, read_at FROM channel_reads WHERE channel_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var user, readAt string
		if err := rows.Scan(&user, &readAt); err != nil {
			return nil, err
		}
		at, err := decTime(readAt)
		if err != nil {
			return nil, err
		}
		ch.LastRead[market.UserID(user)] = at
	}
	return &ch, rows.Err()
}

func (v *txView) UpdateChannel(ctx context.Context, id market.ChannelID, fn func(*market.Channel) error) (*market.Channel, error) {
	ch, err := v.GetChannel(ctx, id)
	if err != nil {
		return nil, err
	}
	created := false
	if ch == nil {
		created = true
		ch = &market.Channel{ID: id, LastRead: make(map[market.UserID]time.Time)}
	}
	prev := ch.Version
	if err := fn(ch); err != nil {
		return nil, err
	}

	var msgID, sender, text, sentAt string
	if ch.LastMessage != nil {
		msgID = string(ch.LastMessage.ID)
		sender = string(ch.LastMessage.SenderID)
		text = ch.LastMessage.Text
		sentAt = encTime(ch.LastMessage.SentAt)
	}

	if created {
		_, err = v.q.ExecContext(ctx, `
			INSERT INTO channels (id, last_msg_id, last_sender, last_text, last_sent_at, version)
			VALUES (?, ?, ?, ?, ?, 1)`,
			id, msgID, sender, text, sentAt)
		if err != nil {
			return nil, err
		}
		ch.Version = 1
	} else {
		res, err := v.q.ExecContext(ctx, `
			UPDATE channels SET
				last_msg_id = ?, last_sender = ?, last_text = ?, last_sent_at = ?,
				version = version + 1
			WHERE id = ? AND version = ?`,
			msgID, sender, text, sentAt, id, prev)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, market.ErrConflict
		}
		ch.Version = prev + 1
	}

	for user, at := range ch.LastRead {
		_, err := v.q.ExecContext(ctx, `
			INSERT INTO channel_reads (channel_id, user_id, read_at)
			VALUES (?, ?, ?)
			ON CONFLICT(channel_id, user_id) DO UPDATE SET read_at = excluded.read_at`,
			id, user, encTime(at))
		if err != nil {
			return nil, err
		}
	}
	return ch, nil
}

// =============================================================================
// MESSAGES
// =============================================================================

func (v *txView) AppendMessage(ctx context.Context, id market.ChannelID, msg market.Message) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO messages (id, channel_id, sender_id, text, sent_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, id, msg.SenderID, msg.Text, encTime(msg.SentAt))
	return err
}

func (v *txView) Messages(ctx context.Context, id market.ChannelID) ([]market.Message, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, sender_id, text, sent_at
		FROM messages WHERE channel_id = ? ORDER BY sent_at, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Message
	for rows.Next() {
		var m market.Message
		var sentAt string
		if err := rows.Scan(&m.ID, &m.SenderID, &m.Text, &sentAt); err != nil {
			return nil, err
		}
		if m.SentAt, err = decTime(sentAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// IDENTITY DIRECTORY
// =============================================================================

func (v *txView) GetUser(ctx context.Context, id market.UserID) (*market.User, error) {
	row := v.q.QueryRowContext(ctx,
		`SELECT id, role, created_at FROM users WHERE id = ?`, id)

	var u market.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (v *txView) PutUser(ctx context.Context, u *market.User) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO users (id, role, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET role = excluded.role`,
		u.ID, u.Role, encTime(u.CreatedAt))
	return err
}
