// Package store provides the in-memory market.Store implementation
// (for testing and dev), including change notification.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/englishhop/marketplace/market"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements market.TxStore and market.Watcher. A single mutex
// serializes all mutations, so every Update* and WithTx is trivially
// atomic and serializable. Records are deep-copied on the way in and out;
// callers never share memory with the store.
type Memory struct {
	mu sync.RWMutex

	teachers  map[market.UserID]*market.Teacher
	students  map[market.UserID]*market.Student
	matches   map[market.MatchID]*market.Match
	payments  map[market.PaymentID]*market.Payment
	purchases map[market.PurchaseID]*market.SlotPurchase
	channels  map[market.ChannelID]*market.Channel
	messages  map[market.ChannelID][]market.Message
	users     map[market.UserID]*market.User

	notifier notifier
}

var _ market.TxStore = (*Memory)(nil)
var _ market.Watcher = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		teachers:  make(map[market.UserID]*market.Teacher),
		students:  make(map[market.UserID]*market.Student),
		matches:   make(map[market.MatchID]*market.Match),
		payments:  make(map[market.PaymentID]*market.Payment),
		purchases: make(map[market.PurchaseID]*market.SlotPurchase),
		channels:  make(map[market.ChannelID]*market.Channel),
		messages:  make(map[market.ChannelID][]market.Message),
		users:     make(map[market.UserID]*market.User),
	}
}

// =============================================================================
// TEACHERS
// =============================================================================

func (m *Memory) GetTeacher(_ context.Context, id market.UserID) (*market.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teachers[id]
	if !ok {
		return nil, market.ErrTeacherNotFound
	}
	return cloneTeacher(t), nil
}

func (m *Memory) PutTeacher(_ context.Context, t *market.Teacher) error {
	m.mu.Lock()
	c := cloneTeacher(t)
	c.Version++
	m.teachers[t.ID] = c
	m.mu.Unlock()
	m.notifier.emit(market.Event{Collection: market.ColTeachers, ID: string(t.ID), Op: market.OpPut, At: time.Now()})
	return nil
}

func (m *Memory) UpdateTeacher(_ context.Context, id market.UserID, fn func(*market.Teacher) error) (*market.Teacher, error) {
	m.mu.Lock()
	t, ok := m.teachers[id]
	if !ok {
		m.mu.Unlock()
		return nil, market.ErrTeacherNotFound
	}
	c := cloneTeacher(t)
	if err := fn(c); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	c.Version++
	m.teachers[id] = c
	out := cloneTeacher(c)
	m.mu.Unlock()
	m.notifier.emit(market.Event{Collection: market.ColTeachers, ID: string(id), Op: market.OpUpdate, At: time.Now()})
	return out, nil
}

func (m *Memory) ListTeachers(_ context.Context) ([]*market.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*market.Teacher, 0, len(m.teachers))
	for _, t := range m.teachers {
		out = append(out, cloneTeacher(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// STUDENTS
// =============================================================================

func (m *Memory) GetStudent(_ context.Context, id market.UserID) (*market.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, market.ErrStudentNotFound
	}
	return cloneStudent(s), nil
}

func (m *Memory) PutStudent(_ context.Context, s *market.Student) error {
	m.mu.Lock()
	c := cloneStudent(s)
	c.Version++
	m.students[s.ID] = c
	m.mu.Unlock()
	m.notifier.emit(market.Event{Collection: market.ColStudents, ID: string(s.ID), Op: market.OpPut, At: time.Now()})
	return nil
}

func (m *Memory) UpdateStudent(_ context.Context, id market.UserID, fn func(*market.Student) error) (*market.Student, error) {
	m.mu.Lock()
	s, ok := m.students[id]
	if !ok {
		m.mu.Unlock()
		return nil, market.ErrStudentNotFound
	}
	c := cloneStudent(s)
	if err := fn(c); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	c.Version++
	m.students[id] = c
	out := cloneStudent(c)
	m.mu.Unlock()
	m.notifier.emit(market.Event{Collection: market.ColStudents, ID: string(id), Op: market.OpUpdate, At: time.Now()})
	return out, nil
}

func (m *Memory) ListStudents(_ context.Context) ([]*market.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*market.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, cloneStudent(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// MATCHES
// =============================================================================

func (m *Memory) GetMatch(_ context.Context, id market.MatchID) (*market.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.matches[id]
	if !ok {
		return nil, market.ErrMatchNotFound
	}
	c := *mt
	return &c, nil
}

func (m *Memory) PutMatch(_ context.Context, mt *market.Match) error {
	m.mu.Lock()
	c := *mt
	m.matches[mt.ID] = &c
	m.mu.Unlock()
	m.notifier.emit(market.Event{Collection: market.ColMatches, ID: string(mt.ID), Op: market.OpPut, At: time.Now()})
	return nil
}

func (m *Memory) ListMatches(_ context.Context) ([]*market.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*market.Match, 0, len(m.matches))
	for _, mt := range m.matches {
		c := *mt
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) MatchForStudent(_ context.Context, studentID market.UserID) (*market.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mt := range m.matches {
		if mt.StudentID == studentID {
			c := *mt
			return &c, nil
		}
	}
	return nil, nil
}

func (m *Memory) MatchForPair(_ context.Context, studentID, teacherID market.UserID) (*market.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mt := range m.matches {
		if mt.StudentID == studentID && mt.TeacherID == teacherID {
			c := *mt
			return &c, nil
		}
	}
	return nil, nil
}

func (m *Memory) MatchesForTeacher(_ context.Context, teacherID market.UserID) ([]*market.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*market.Match
	for _, mt := range m.matches {
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

func (m *Memory) GetPayment(_ context.Context, id market.PaymentID) (*market.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, market.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (m *Memory) PutPayment(_ context.Context, p *market.Payment) error {
	m.mu.Lock()
	c := clonePayment(p)
	c.Version++
	m.payments[p.ID] = c
	m.mu.Unlock()
	m.notifier.emit(market.Event{Collection: market.ColPayments, ID: string(p.ID), Op: market.OpPut, At: time.Now()})
	return nil
}

func (m *Memory) UpdatePayment(_ context.Context, id market.PaymentID, fn func(*market.Payment) error) (*market.Payment, error) {
	m.mu.Lock()
	p, ok := m.payments[id]
	if !ok {
		m.mu.Unlock()
		return nil, market.ErrPaymentNotFound
	}
	c := clonePayment(p)
	if err := fn(c); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	c.Version++
	m.payments[id] = c
	out := clonePayment(c)
	m.mu.Unlock()
	m.notifier.emit(market.Event{Collection: market.ColPayments, ID: string(id), Op: market.OpUpdate, At: time.Now()})
	return out, nil
}

func (m *Memory) ListPayments(_ context.Context) ([]*market.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*market.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (m *Memory) PaymentsForTeacher(_ context.Context, teacherID market.UserID) ([]*market.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*market.Payment
	for _, p := range m.payments {
		if p.TeacherID == teacherID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (m *Memory) PaymentsForPair(_ context.Context, studentID, teacherID market.UserID) ([]*market.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*market.Payment
	for _, p := range m.payments {
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

func (m *Memory) PutSlotPurchase(_ context.Context, p *market.SlotPurchase) error {
	m.mu.Lock()
	c := *p
	m.purchases[p.ID] = &c
	m.mu.Unlock()
	m.notifier.emit(market.Event{Collection: market.ColPurchases, ID: string(p.ID), Op: market.OpPut, At: time.Now()})
	return nil
}

func (m *Memory) SlotPurchasesForTeacher(_ context.Context, teacherID market.UserID) ([]*market.SlotPurchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*market.SlotPurchase
	for _, p := range m.purchases {
		if p.TeacherID == teacherID {
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

func (m *Memory) GetChannel(_ context.Context, id market.ChannelID) (*market.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[id]
	if !ok {
		return nil, nil
	}
	return cloneChannel(ch), nil
}

func (m *Memory) UpdateChannel(_ context.Context, id market.ChannelID, fn func(*market.Channel) error) (*market.Channel, error) {
	m.mu.Lock()
	ch, ok := m.channels[id]
	if !ok {
		ch = &market.Channel{ID: id, LastRead: make(map[market.UserID]time.Time)}
	}
	c := cloneChannel(ch)
	if err := fn(c); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	c.Version++
	m.channels[id] = c
	out := cloneChannel(c)
	m.mu.Unlock()
	m.notifier.emit(market.Event{Collection: market.ColChannels, ID: string(id), Op: market.OpUpdate, At: time.Now()})
	return out, nil
}

func (m *Memory) AppendMessage(_ context.Context, id market.ChannelID, msg market.Message) error {
	m.mu.Lock()
	m.messages[id] = append(m.messages[id], msg)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Messages(_ context.Context, id market.ChannelID) ([]market.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[id]
	out := make([]market.Message, len(msgs))
	copy(out, msgs)
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

// =============================================================================
// IDENTITY DIRECTORY
// =============================================================================

func (m *Memory) GetUser(_ context.Context, id market.UserID) (*market.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (m *Memory) PutUser(_ context.Context, u *market.User) error {
	m.mu.Lock()
	c := *u
	m.users[u.ID] = &c
	m.mu.Unlock()
	m.notifier.emit(market.Event{Collection: market.ColUsers, ID: string(u.ID), Op: market.OpPut, At: time.Now()})
	return nil
}

// =============================================================================
// CLONE HELPERS
// =============================================================================
// Records with only value fields can be shallow-copied; these helpers exist
// for the ones carrying reference fields (maps, pointers).

func cloneTeacher(t *market.Teacher) *market.Teacher {
	c := *t
	return &c
}

func cloneStudent(s *market.Student) *market.Student {
	c := *s
	return &c
}

func clonePayment(p *market.Payment) *market.Payment {
	c := *p
	if p.ConfirmedAt != nil {
		at := *p.ConfirmedAt
		c.ConfirmedAt = &at
	}
	return &c
}

func cloneChannel(ch *market.Channel) *market.Channel {
	c := *ch
	if ch.LastMessage != nil {
		lm := *ch.LastMessage
		c.LastMessage = &lm
	}
	c.LastRead = make(map[market.UserID]time.Time, len(ch.LastRead))
	for k, v := range ch.LastRead {
		c.LastRead[k] = v
	}
	return &c
}
