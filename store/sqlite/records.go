/*
records.go - Teacher, student, match, payment, and slot-purchase persistence

PURPOSE:
  Row mapping and the optimistic Update* implementations. Every Update*
  follows the same shape: read the row with its version, run the caller's
  mutation, then write back guarded by "AND version = ?". Zero affected
  rows means a concurrent writer won and the caller sees market.ErrConflict.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/englishhop/marketplace/market"
)

// =============================================================================
// TEACHERS
// =============================================================================

const teacherCols = `id, name, email, title, bio, experience, qualifications, specializations,
	rate_per_hour, payment_method, bank_name, account_name, account_number,
	slots_purchased, slots_used, slots_available, version, created_at`

func scanTeacher(row interface{ Scan(...any) error }) (*market.Teacher, error) {
	var t market.Teacher
	var rate, createdAt string
	err := row.Scan(&t.ID, &t.Name, &t.Email, &t.Title, &t.Bio, &t.Experience,
		&t.Qualifications, &t.Specializations,
		&rate, &t.PaymentMethod,
		&t.BankDetails.BankName, &t.BankDetails.AccountName, &t.BankDetails.AccountNumber,
		&t.Slots.Purchased, &t.Slots.Used, &t.Slots.Available,
		&t.Version, &createdAt)
	if err != nil {
		return nil, err
	}
	if t.RatePerHour, err = decDecimal(rate); err != nil {
		return nil, fmt.Errorf("bad rate for teacher %s: %w", t.ID, err)
	}
	if t.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at for teacher %s: %w", t.ID, err)
	}
	return &t, nil
}

func (v *txView) GetTeacher(ctx context.Context, id market.UserID) (*market.Teacher, error) {
	row := v.q.QueryRowContext(ctx, `SELECT `+teacherCols+` FROM teachers WHERE id = ?`, id)
	t, err := scanTeacher(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, market.ErrTeacherNotFound
	}
	return t, err
}

func (v *txView) PutTeacher(ctx context.Context, t *market.Teacher) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO teachers (`+teacherCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, email = excluded.email, title = excluded.title,
			bio = excluded.bio, experience = excluded.experience,
			qualifications = excluded.qualifications, specializations = excluded.specializations,
			rate_per_hour = excluded.rate_per_hour, payment_method = excluded.payment_method,
			bank_name = excluded.bank_name, account_name = excluded.account_name,
			account_number = excluded.account_number,
			slots_purchased = excluded.slots_purchased, slots_used = excluded.slots_used,
			slots_available = excluded.slots_available,
			version = teachers.version + 1`,
		t.ID, t.Name, t.Email, t.Title, t.Bio, t.Experience, t.Qualifications, t.Specializations,
		t.RatePerHour.String(), t.PaymentMethod,
		t.BankDetails.BankName, t.BankDetails.AccountName, t.BankDetails.AccountNumber,
		t.Slots.Purchased, t.Slots.Used, t.Slots.Available,
		t.Version+1, encTime(t.CreatedAt))
	return err
}

func (v *txView) UpdateTeacher(ctx context.Context, id market.UserID, fn func(*market.Teacher) error) (*market.Teacher, error) {
	t, err := v.GetTeacher(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := t.Version
	if err := fn(t); err != nil {
		return nil, err
	}

	res, err := v.q.ExecContext(ctx, `
		UPDATE teachers SET
			name = ?, email = ?, title = ?, bio = ?, experience = ?,
			qualifications = ?, specializations = ?,
			rate_per_hour = ?, payment_method = ?,
			bank_name = ?, account_name = ?, account_number = ?,
			slots_purchased = ?, slots_used = ?, slots_available = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		t.Name, t.Email, t.Title, t.Bio, t.Experience,
		t.Qualifications, t.Specializations,
		t.RatePerHour.String(), t.PaymentMethod,
		t.BankDetails.BankName, t.BankDetails.AccountName, t.BankDetails.AccountNumber,
		t.Slots.Purchased, t.Slots.Used, t.Slots.Available,
		id, prev)
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
	t.Version = prev + 1
	return t, nil
}

func (v *txView) ListTeachers(ctx context.Context) ([]*market.Teacher, error) {
	rows, err := v.q.QueryContext(ctx, `SELECT `+teacherCols+` FROM teachers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*market.Teacher
	for rows.Next() {
		t, err := scanTeacher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// STUDENTS
// =============================================================================

const studentCols = `id, name, email, level, goals, budget, preferred_times,
	matched_teacher_id, version, created_at`

func scanStudent(row interface{ Scan(...any) error }) (*market.Student, error) {
	var s market.Student
	var createdAt string
	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Level, &s.Goals, &s.Budget,
		&s.PreferredTimes, &s.MatchedTeacherID, &s.Version, &createdAt)
	if err != nil {
		return nil, err
	}
	if s.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at for student %s: %w", s.ID, err)
	}
	return &s, nil
}

func (v *txView) GetStudent(ctx context.Context, id market.UserID) (*market.Student, error) {
	row := v.q.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE id = ?`, id)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, market.ErrStudentNotFound
	}
	return s, err
}

func (v *txView) PutStudent(ctx context.Context, s *market.Student) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO students (`+studentCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, email = excluded.email, level = excluded.level,
			goals = excluded.goals, budget = excluded.budget,
			preferred_times = excluded.preferred_times,
			matched_teacher_id = excluded.matched_teacher_id,
			version = students.version + 1`,
		s.ID, s.Name, s.Email, s.Level, s.Goals, s.Budget, s.PreferredTimes,
		s.MatchedTeacherID, s.Version+1, encTime(s.CreatedAt))
	return err
}

func (v *txView) UpdateStudent(ctx context.Context, id market.UserID, fn func(*market.Student) error) (*market.Student, error) {
	s, err := v.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := s.Version
	if err := fn(s); err != nil {
		return nil, err
	}

	res, err := v.q.ExecContext(ctx, `
		UPDATE students SET
			name = ?, email = ?, level = ?, goals = ?, budget = ?,
			preferred_times = ?, matched_teacher_id = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		s.Name, s.Email, s.Level, s.Goals, s.Budget,
		s.PreferredTimes, s.MatchedTeacherID,
		id, prev)
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
	s.Version = prev + 1
	return s, nil
}

func (v *txView) ListStudents(ctx context.Context) ([]*market.Student, error) {
	rows, err := v.q.QueryContext(ctx, `SELECT `+studentCols+` FROM students ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*market.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// =============================================================================
// MATCHES
// =============================================================================

const matchCols = `id, student_id, teacher_id, student_name, teacher_name,
	rate, payment_method, status, created_at`

func scanMatch(row interface{ Scan(...any) error }) (*market.Match, error) {
	var m market.Match
	var rate, createdAt string
	err := row.Scan(&m.ID, &m.StudentID, &m.TeacherID, &m.StudentName, &m.TeacherName,
		&rate, &m.PaymentMethod, &m.Status, &createdAt)
	if err != nil {
		return nil, err
	}
	if m.Rate, err = decDecimal(rate); err != nil {
		return nil, fmt.Errorf("bad rate for match %s: %w", m.ID, err)
	}
	if m.CreatedAt, err = decTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at for match %s: %w", m.ID, err)
	}
	return &m, nil
}

func (v *txView) GetMatch(ctx context.Context, id market.MatchID) (*market.Match, error) {
	row := v.q.QueryRowContext(ctx, `SELECT `+matchCols+` FROM matches WHERE id = ?`, id)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, market.ErrMatchNotFound
	}
	return m, err
}

func (v *txView) PutMatch(ctx context.Context, m *market.Match) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO matches (`+matchCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.StudentID, m.TeacherID, m.StudentName, m.TeacherName,
		m.Rate.String(), m.PaymentMethod, m.Status, encTime(m.CreatedAt))
	return err
}

func (v *txView) ListMatches(ctx context.Context) ([]*market.Match, error) {
	return v.queryMatches(ctx, `SELECT `+matchCols+` FROM matches ORDER BY created_at`)
}

func (v *txView) MatchForStudent(ctx context.Context, studentID market.UserID) (*market.Match, error) {
	row := v.q.QueryRowContext(ctx, `SELECT `+matchCols+` FROM matches WHERE student_id = ?`, studentID)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (v *txView) MatchForPair(ctx context.Context, studentID, teacherID market.UserID) (*market.Match, error) {
	row := v.q.QueryRowContext(ctx,
		`SELECT `+matchCols+` FROM matches WHERE student_id = ? AND teacher_id = ?`,
		studentID, teacherID)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (v *txView) MatchesForTeacher(ctx context.Context, teacherID market.UserID) ([]*market.Match, error) {
	return v.queryMatches(ctx,
		`SELECT `+matchCols+` FROM matches WHERE teacher_id = ? ORDER BY created_at`, teacherID)
}

func (v *txView) queryMatches(ctx context.Context, query string, args ...any) ([]*market.Match, error) {
	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*market.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentCols = `id, match_id, student_id, teacher_id, amount, platform_fee,
	teacher_receives, payment_method, confirmed, confirmed_at, submitted_at, version`

func scanPayment(row interface{ Scan(...any) error }) (*market.Payment, error) {
	var p market.Payment
	var amount, fee, receives, submittedAt string
	var confirmedAt sql.NullString
	err := row.Scan(&p.ID, &p.MatchID, &p.StudentID, &p.TeacherID,
		&amount, &fee, &receives, &p.PaymentMethod,
		&p.Confirmed, &confirmedAt, &submittedAt, &p.Version)
	if err != nil {
		return nil, err
	}
	if p.Amount, err = decDecimal(amount); err != nil {
		return nil, fmt.Errorf("bad amount for payment %s: %w", p.ID, err)
	}
	if p.PlatformFee, err = decDecimal(fee); err != nil {
		return nil, fmt.Errorf("bad platform_fee for payment %s: %w", p.ID, err)
	}
	if p.TeacherReceives, err = decDecimal(receives); err != nil {
		return nil, fmt.Errorf("bad teacher_receives for payment %s: %w", p.ID, err)
	}
	if p.SubmittedAt, err = decTime(submittedAt); err != nil {
		return nil, fmt.Errorf("bad submitted_at for payment %s: %w", p.ID, err)
	}
	if confirmedAt.Valid && confirmedAt.String != "" {
		at, err := decTime(confirmedAt.String)
		if err != nil {
			return nil, fmt.Errorf("bad confirmed_at for payment %s: %w", p.ID, err)
		}
		p.ConfirmedAt = &at
	}
	return &p, nil
}

func (v *txView) GetPayment(ctx context.Context, id market.PaymentID) (*market.Payment, error) {
	row := v.q.QueryRowContext(ctx, `SELECT `+paymentCols+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, market.ErrPaymentNotFound
	}
	return p, err
}

func (v *txView) PutPayment(ctx context.Context, p *market.Payment) error {
	var confirmedAt any
	if p.ConfirmedAt != nil {
		confirmedAt = encTime(*p.ConfirmedAt)
	}
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MatchID, p.StudentID, p.TeacherID,
		p.Amount.String(), p.PlatformFee.String(), p.TeacherReceives.String(),
		p.PaymentMethod, p.Confirmed, confirmedAt, encTime(p.SubmittedAt), p.Version+1)
	return err
}

func (v *txView) UpdatePayment(ctx context.Context, id market.PaymentID, fn func(*market.Payment) error) (*market.Payment, error) {
	p, err := v.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := p.Version
	if err := fn(p); err != nil {
		return nil, err
	}

	var confirmedAt any
	if p.ConfirmedAt != nil {
		confirmedAt = encTime(*p.ConfirmedAt)
	}
	res, err := v.q.ExecContext(ctx, `
		UPDATE payments SET
			confirmed = ?, confirmed_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		p.Confirmed, confirmedAt, id, prev)
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
	p.Version = prev + 1
	return p, nil
}

func (v *txView) ListPayments(ctx context.Context) ([]*market.Payment, error) {
	return v.queryPayments(ctx, `SELECT `+paymentCols+` FROM payments ORDER BY submitted_at`)
}

func (v *txView) PaymentsForTeacher(ctx context.Context, teacherID market.UserID) ([]*market.Payment, error) {
	return v.queryPayments(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE teacher_id = ? ORDER BY submitted_at`, teacherID)
}

func (v *txView) PaymentsForPair(ctx context.Context, studentID, teacherID market.UserID) ([]*market.Payment, error) {
	return v.queryPayments(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE student_id = ? AND teacher_id = ? ORDER BY submitted_at`,
		studentID, teacherID)
}

func (v *txView) queryPayments(ctx context.Context, query string, args ...any) ([]*market.Payment, error) {
	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*market.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// SLOT PURCHASES
// =============================================================================

func (v *txView) PutSlotPurchase(ctx context.Context, p *market.SlotPurchase) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO slot_purchases (id, teacher_id, slots, amount, purchased_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.TeacherID, p.Slots, p.Amount.String(), encTime(p.PurchasedAt))
	return err
}

func (v *txView) SlotPurchasesForTeacher(ctx context.Context, teacherID market.UserID) ([]*market.SlotPurchase, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, teacher_id, slots, amount, purchased_at
		FROM slot_purchases WHERE teacher_id = ? ORDER BY purchased_at`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*market.SlotPurchase
	for rows.Next() {
		var p market.SlotPurchase
		var amount, purchasedAt string
		if err := rows.Scan(&p.ID, &p.TeacherID, &p.Slots, &amount, &purchasedAt); err != nil {
			return nil, err
		}
		if p.Amount, err = decDecimal(amount); err != nil {
			return nil, fmt.Errorf("bad amount for purchase %s: %w", p.ID, err)
		}
		if p.PurchasedAt, err = decTime(purchasedAt); err != nil {
			return nil, fmt.Errorf("bad purchased_at for purchase %s: %w", p.ID, err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
