/*
tx.go - All-or-nothing transactions for the memory store

PURPOSE:
  Implements market.TxStore.WithTx. The store's mutex is held for the whole
  transaction, so the function runs against a frozen view and concurrent
  callers serialize behind it. Writes land in a staging overlay and are
  applied to the base maps only if the function returns nil.

EVENT ORDERING:
  Change events for staged writes are buffered and emitted after commit,
  so subscribers never observe state that later rolled back.
*/
package store

import (
	"context"
	"sort"
	"time"

	"github.com/englishhop/marketplace/market"
)

// WithTx runs fn against a transactional view. The view sees the base store
// plus its own staged writes; nothing is visible to other callers until
// commit. Returning an error discards every staged write.
func (m *Memory) WithTx(_ context.Context, fn func(market.Store) error) error {
	m.mu.Lock()

	tx := &memTx{
		base:      m,
		teachers:  make(map[market.UserID]*market.Teacher),
		students:  make(map[market.UserID]*market.Student),
		matches:   make(map[market.MatchID]*market.Match),
		payments:  make(map[market.PaymentID]*market.Payment),
		purchases: make(map[market.PurchaseID]*market.SlotPurchase),
		channels:  make(map[market.ChannelID]*market.Channel),
		messages:  make(map[market.ChannelID][]market.Message),
		users:     make(map[market.UserID]*market.User),
	}

	if err := fn(tx); err != nil {
		m.mu.Unlock()
		return err
	}

	// Commit: fold the overlay into the base maps.
	for id, t := range tx.teachers {
		m.teachers[id] = t
	}
	for id, s := range tx.students {
		m.students[id] = s
	}
	for id, mt := range tx.matches {
		m.matches[id] = mt
	}
	for id, p := range tx.payments {
		m.payments[id] = p
	}
	for id, p := range tx.purchases {
		m.purchases[id] = p
	}
	for id, ch := range tx.channels {
		m.channels[id] = ch
	}
	for id, msgs := range tx.messages {
		m.messages[id] = append(m.messages[id], msgs...)
	}
	for id, u := range tx.users {
		m.users[id] = u
	}

	events := tx.events
	m.mu.Unlock()

	for _, e := range events {
		m.notifier.emit(e)
	}
	return nil
}

// memTx is the staging view handed to WithTx functions. All methods run
// with the base store's mutex already held; none of them lock.
type memTx struct {
	base *Memory

	teachers  map[market.UserID]*market.Teacher
	students  map[market.UserID]*market.Student
	matches   map[market.MatchID]*market.Match
	payments  map[market.PaymentID]*market.Payment
	purchases map[market.PurchaseID]*market.SlotPurchase
	channels  map[market.ChannelID]*market.Channel
	messages  map[market.ChannelID][]market.Message
	users     map[market.UserID]*market.User

	events []market.Event
}

var _ market.Store = (*memTx)(nil)

func (tx *memTx) stage(e market.Event) {
	e.At = time.Now()
	tx.events = append(tx.events, e)
}

// =============================================================================
// TEACHERS
// =============================================================================

func (tx *memTx) teacher(id market.UserID) (*market.Teacher, bool) {
	if t, ok := tx.teachers[id]; ok {
		return t, true
	}
	t, ok := tx.base.teachers[id]
	return t, ok
}

func (tx *memTx) GetTeacher(_ context.Context, id market.UserID) (*market.Teacher, error) {
	t, ok := tx.teacher(id)
	if !ok {
		return nil, market.ErrTeacherNotFound
	}
	return cloneTeacher(t), nil
}

func (tx *memTx) PutTeacher(_ context.Context, t *market.Teacher) error {
	c := cloneTeacher(t)
	c.Version++
	tx.teachers[t.ID] = c
	tx.stage(market.Event{Collection: market.ColTeachers, ID: string(t.ID), Op: market.OpPut})
	return nil
}

func (tx *memTx) UpdateTeacher(_ context.Context, id market.UserID, fn func(*market.Teacher) error) (*market.Teacher, error) {
	t, ok := tx.teacher(id)
	if !ok {
		return nil, market.ErrTeacherNotFound
	}
	c := cloneTeacher(t)
	if err := fn(c); err != nil {
		return nil, err
	}
	c.Version++
	tx.teachers[id] = c
	tx.stage(market.Event{Collection: market.ColTeachers, ID: string(id), Op: market.OpUpdate})
	return cloneTeacher(c), nil
}

func (tx *memTx) ListTeachers(_ context.Context) ([]*market.Teacher, error) {
	seen := make(map[market.UserID]bool)
	var out []*market.Teacher
	for id, t := range tx.teachers {
		out = append(out, cloneTeacher(t))
		seen[id] = true
	}
	for id, t := range tx.base.teachers {
		if !seen[id] {
			out = append(out, cloneTeacher(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// STUDENTS
// =============================================================================

func (tx *memTx) student(id market.UserID) (*market.Student, bool) {
	if s, ok := tx.students[id]; ok {
		return s, true
	}
	s, ok := tx.base.students[id]
	return s, ok
}

func (tx *memTx) GetStudent(_ context.Context, id market.UserID) (*market.Student, error) {
	s, ok := tx.student(id)
	if !ok {
		return nil, market.ErrStudentNotFound
	}
	return cloneStudent(s), nil
}

func (tx *memTx) PutStudent(_ context.Context, s *market.Student) error {
	c := cloneStudent(s)
	c.Version++
	tx.students[s.ID] = c
	tx.stage(market.Event{Collection: market.ColStudents, ID: string(s.ID), Op: market.OpPut})
	return nil
}

func (tx *memTx) UpdateStudent(_ context.Context, id market.UserID, fn func(*market.Student) error) (*market.Student, error) {
	s, ok := tx.student(id)
	if !ok {
		return nil, market.ErrStudentNotFound
	}
	c := cloneStudent(s)
	if err := fn(c); err != nil {
		return nil, err
	}
	c.Version++
	tx.students[id] = c
	tx.stage(market.Event{Collection: market.ColStudents, ID: string(id), Op: market.OpUpdate})
	return cloneStudent(c), nil
}

func (tx *memTx) ListStudents(_ context.Context) ([]*market.Student, error) {
	seen := make(map[market.UserID]bool)
	var out []*market.Student
	for id, s := range tx.students {
		out = append(out, cloneStudent(s))
		seen[id] = true
	}
	for id, s := range tx.base.students {
		if !seen[id] {
			out = append(out, cloneStudent(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// MATCHES
// =============================================================================

func (tx *memTx) GetMatch(_ context.Context, id market.MatchID) (*market.Match, error) {
	mt, ok := tx.matches[id]
	if !ok {
		mt, ok = tx.base.matches[id]
	}
	if !ok {
		return nil, market.ErrMatchNotFound
	}
	c := *mt
	return &c, nil
}

func (tx *memTx) PutMatch(_ context.Context, mt *market.Match) error {
	c := *mt
	tx.matches[mt.ID] = &c
	tx.stage(market.Event{Collection: market.ColMatches, ID: string(mt.ID), Op: market.OpPut})
	return nil
}

func (tx *memTx) allMatches() []*market.Match {
	var out []*market.Match
	for _, mt := range tx.matches {
		out = append(out, mt)
	}
	for id, mt := range tx.base.matches {
		if _, staged := tx.matches[id]; !staged {
			out = append(out, mt)
		}
	}
	return out
}

func (tx *memTx) ListMatches(_ context.Context) ([]*market.Match, error) {
	all := tx.allMatches()
	out := make([]*market.Match, 0, len(all))
	for _, mt := range all {
		c := *mt
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (tx *memTx) MatchForStudent(_ context.Context, studentID market.UserID) (*market.Match, error) {
	for _, mt := range tx.allMatches() {
		if mt.StudentID == studentID {
			c := *mt
			return &c, nil
		}
	}
	return nil, nil
}

func (tx *memTx) MatchForPair(_ context.Context, studentID, teacherID market.UserID) (*market.Match, error) {
	for _, mt := range tx.allMatches() {
		if mt.StudentID == studentID && mt.TeacherID == teacherID {
			c := *mt
			return &c, nil
		}
	}
	return nil, nil
}

func (tx *memTx) MatchesForTeacher(_ context.Context, teacherID market.UserID) ([]*market.Match, error) {
	var out []*market.Match
	for _, mt := range tx.allMatches() {
		if mt.TeacherID == teacherID {
			c := *mt
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (tx *memTx) payment(id market.PaymentID) (*market.Payment, bool) {
	if p, ok := tx.payments[id]; ok {
		return p, true
	}
	p, ok := tx.base.payments[id]
	return p, ok
}

func (tx *memTx) GetPayment(_ context.Context, id market.PaymentID) (*market.Payment, error) {
	p, ok := tx.payment(id)
	if !ok {
		return nil, market.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (tx *memTx) PutPayment(_ context.Context, p *market.Payment) error {
	c := clonePayment(p)
	c.Version++
	tx.payments[p.ID] = c
	tx.stage(market.Event{Collection: market.ColPayments, ID: string(p.ID), Op: market.OpPut})
	return nil
}

func (tx *memTx) UpdatePayment(_ context.Context, id market.PaymentID, fn func(*market.Payment) error) (*market.Payment, error) {
	p, ok := tx.payment(id)
	if !ok {
		return nil, market.ErrPaymentNotFound
	}
	c := clonePayment(p)
	if err := fn(c); err != nil {
		return nil, err
	}
	c.Version++
	tx.payments[id] = c
	tx.stage(market.Event{Collection: market.ColPayments, ID: string(id), Op: market.OpUpdate})
	return clonePayment(c), nil
}

func (tx *memTx) allPayments() []*market.Payment {
	var out []*market.Payment
	for _, p := range tx.payments {
		out = append(out, p)
	}
	for id, p := range tx.base.payments {
		if _, staged := tx.payments[id]; !staged {
			out = append(out, p)
		}
	}
	return out
}

func (tx *memTx) ListPayments(_ context.Context) ([]*market.Payment, error) {
	all := tx.allPayments()
	out := make([]*market.Payment, 0, len(all))
	for _, p := range all {
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (tx *memTx) PaymentsForTeacher(_ context.Context, teacherID market.UserID) ([]*market.Payment, error) {
	var out []*market.Payment
	for _, p := range tx.allPayments() {
		if p.TeacherID == teacherID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (tx *memTx) PaymentsForPair(_ context.Context, studentID, teacherID market.UserID) ([]*market.Payment, error) {
	var out []*market.Payment
	for _, p := range tx.allPayments() {
		if p.StudentID == studentID && p.TeacherID == teacherID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

// =============================================================================
// SLOT PURCHASES
// =============================================================================

func (tx *memTx) PutSlotPurchase(_ context.Context, p *market.SlotPurchase) error {
	c := *p
	tx.purchases[p.ID] = &c
	tx.stage(market.Event{Collection: market.ColPurchases, ID: string(p.ID), Op: market.OpPut})
	return nil
}

func (tx *memTx) SlotPurchasesForTeacher(_ context.Context, teacherID market.UserID) ([]*market.SlotPurchase, error) {
	var out []*market.SlotPurchase
	for _, p := range tx.purchases {
		if p.TeacherID == teacherID {
			c := *p
			out = append(out, &c)
		}
	}
	for id, p := range tx.base.purchases {
		if _, staged := tx.purchases[id]; !staged && p.TeacherID == teacherID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchasedAt.Before(out[j].PurchasedAt) })
	return out, nil
}

// =============================================================================
// CHAT CHANNELS
// =============================================================================

func (tx *memTx) channel(id market.ChannelID) (*market.Channel, bool) {
	if ch, ok := tx.channels[id]; ok {
		return ch, true
	}
	ch, ok := tx.base.channels[id]
	return ch, ok
}

func (tx *memTx) GetChannel(_ context.Context, id market.ChannelID) (*market.Channel, error) {
	ch, ok := tx.channel(id)
	if !ok {
		return nil, nil
	}
	return cloneChannel(ch), nil
}

func (tx *memTx) UpdateChannel(_ context.Context, id market.ChannelID, fn func(*market.Channel) error) (*market.Channel, error) {
	ch, ok := tx.channel(id)
	if !ok {
		ch = &market.Channel{ID: id, LastRead: make(map[market.UserID]time.Time)}
	}
	c := cloneChannel(ch)
	if err := fn(c); err != nil {
		return nil, err
	}
	c.Version++
	tx.channels[id] = c
	tx.stage(market.Event{Collection: market.ColChannels, ID: string(id), Op: market.OpUpdate})
	return cloneChannel(c), nil
}

func (tx *memTx) AppendMessage(_ context.Context, id market.ChannelID, msg market.Message) error {
	tx.messages[id] = append(tx.messages[id], msg)
	return nil
}

func (tx *memTx) Messages(_ context.Context, id market.ChannelID) ([]market.Message, error) {
	out := make([]market.Message, 0, len(tx.base.messages[id])+len(tx.messages[id]))
	out = append(out, tx.base.messages[id]...)
	out = append(out, tx.messages[id]...)
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

// =============================================================================
// IDENTITY DIRECTORY
// =============================================================================

func (tx *memTx) GetUser(_ context.Context, id market.UserID) (*market.User, error) {
	u, ok := tx.users[id]
	if !ok {
		u, ok = tx.base.users[id]
	}
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (tx *memTx) PutUser(_ context.Context, u *market.User) error {
	c := *u
	tx.users[u.ID] = &c
	tx.stage(market.Event{Collection: market.ColUsers, ID: string(u.ID), Op: market.OpPut})
	return nil
}
