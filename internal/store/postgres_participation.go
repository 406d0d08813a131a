package store

import (
	"context"
	"database/sql"
	"fmt"

	"trainflow/internal/model"
)

const enrollmentSelect = `
	SELECT e.id, e.training_id, e.user_id, e.status, e.enrolled_at, e.completed_at, e.pre_work_completed,
		u.first_name, u.last_name, u.email
	FROM enrollments e JOIN users u ON u.id = e.user_id`

func scanEnrollment(row scanner) (model.Enrollment, error) {
	var (
		e                  model.Enrollment
		first, last, email string
	)
	err := row.Scan(&e.ID, &e.TrainingID, &e.UserID, &e.Status, &e.EnrolledAt, &e.CompletedAt, &e.PreWorkCompleted,
		&first, &last, &email)
	if err != nil {
		return model.Enrollment{}, mapErr(err)
	}
	e.User = summary(e.UserID, first, last, email)
	return e, nil
}

// CreateEnrollment admits a user into a training. The training row is locked
// for the duration of the check so concurrent admissions cannot overshoot
// max_participants.
func (p *Postgres) CreateEnrollment(ctx context.Context, e *model.Enrollment) (err error) {
	ensureID(&e.ID)
	nowIfZero(&e.EnrolledAt)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var maxP sql.NullInt64
	if err = tx.QueryRowContext(ctx, `SELECT max_participants FROM trainings WHERE id = $1 FOR UPDATE`, e.TrainingID).Scan(&maxP); err != nil {
		return mapErr(err)
	}

	var exists bool
	if err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM enrollments WHERE training_id = $1 AND user_id = $2)`,
		e.TrainingID, e.UserID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		err = ErrDuplicate
		return err
	}

	if maxP.Valid && maxP.Int64 > 0 {
		var count int64
		if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments WHERE training_id = $1`, e.TrainingID).Scan(&count); err != nil {
			return err
		}
		if count >= maxP.Int64 {
			err = ErrCapacityReached
			return err
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO enrollments (id, training_id, user_id, status, enrolled_at, pre_work_completed)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, e.ID, e.TrainingID, e.UserID, e.Status, e.EnrolledAt, e.PreWorkCompleted); err != nil {
		return mapErr(err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}

func (p *Postgres) GetEnrollment(ctx context.Context, trainingID, userID string) (model.Enrollment, error) {
	return scanEnrollment(p.db.QueryRowContext(ctx, enrollmentSelect+` WHERE e.training_id = $1 AND e.user_id = $2`, trainingID, userID))
}

func (p *Postgres) UpdateEnrollment(ctx context.Context, e *model.Enrollment) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE enrollments SET status = $3, completed_at = $4, pre_work_completed = $5
		WHERE training_id = $1 AND user_id = $2
	`, e.TrainingID, e.UserID, e.Status, e.CompletedAt, e.PreWorkCompleted)
	return affected(res, err)
}

func (p *Postgres) DeleteEnrollment(ctx context.Context, trainingID, userID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM enrollments WHERE training_id = $1 AND user_id = $2`, trainingID, userID)
	return affected(res, err)
}

// ListEnrollments returns a training's enrollments, newest first.
func (p *Postgres) ListEnrollments(ctx context.Context, trainingID string) ([]model.Enrollment, error) {
	rows, err := p.db.QueryContext(ctx, enrollmentSelect+` WHERE e.training_id = $1 ORDER BY e.enrolled_at DESC, e.id`, trainingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListUserEnrollments returns every enrollment held by a user.
func (p *Postgres) ListUserEnrollments(ctx context.Context, userID string) ([]model.Enrollment, error) {
	rows, err := p.db.QueryContext(ctx, enrollmentSelect+` WHERE e.user_id = $1 ORDER BY e.enrolled_at DESC, e.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) CountEnrollments(ctx context.Context, trainingID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments WHERE training_id = $1`, trainingID).Scan(&n)
	return n, err
}

const attendanceSelect = `
	SELECT a.id, a.training_id, a.user_id, a.status, a.check_in_time, a.marked_by, a.notes,
		u.first_name, u.last_name, u.email
	FROM attendance a JOIN users u ON u.id = a.user_id`

func scanAttendance(row scanner) (model.Attendance, error) {
	var (
		a                  model.Attendance
		first, last, email string
	)
	err := row.Scan(&a.ID, &a.TrainingID, &a.UserID, &a.Status, &a.CheckInTime, &a.MarkedBy, &a.Notes, &first, &last, &email)
	if err != nil {
		return model.Attendance{}, mapErr(err)
	}
	a.User = summary(a.UserID, first, last, email)
	return a, nil
}

// UpsertAttendance creates or overwrites the record for (training, user).
// On overwrite the stored id is written back into a.
func (p *Postgres) UpsertAttendance(ctx context.Context, a *model.Attendance) error {
	ensureID(&a.ID)
	nowIfZero(&a.CheckInTime)
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, training_id, user_id, status, check_in_time, marked_by, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (training_id, user_id) DO UPDATE SET
			status = EXCLUDED.status,
			check_in_time = EXCLUDED.check_in_time,
			marked_by = EXCLUDED.marked_by,
			notes = EXCLUDED.notes
		RETURNING id
	`, a.ID, a.TrainingID, a.UserID, a.Status, a.CheckInTime, a.MarkedBy, a.Notes).Scan(&a.ID)
	return mapErr(err)
}

func (p *Postgres) GetAttendance(ctx context.Context, trainingID, userID string) (model.Attendance, error) {
	return scanAttendance(p.db.QueryRowContext(ctx, attendanceSelect+` WHERE a.training_id = $1 AND a.user_id = $2`, trainingID, userID))
}

// ListAttendance returns a training's attendance, latest check-in first.
func (p *Postgres) ListAttendance(ctx context.Context, trainingID string) ([]model.Attendance, error) {
	rows, err := p.db.QueryContext(ctx, attendanceSelect+` WHERE a.training_id = $1 ORDER BY a.check_in_time DESC, a.id`, trainingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const feedbackSelect = `
	SELECT f.id, f.training_id, f.user_id, f.rating, f.trainer_rating, f.comment, f.trainer_comment, f.submitted_at,
		u.first_name, u.last_name, u.email
	FROM feedbacks f JOIN users u ON u.id = f.user_id`

func scanFeedback(row scanner) (model.Feedback, error) {
	var (
		f                  model.Feedback
		trainerRating      sql.NullInt64
		first, last, email string
	)
	err := row.Scan(&f.ID, &f.TrainingID, &f.UserID, &f.Rating, &trainerRating, &f.Comment, &f.TrainerComment, &f.SubmittedAt,
		&first, &last, &email)
	if err != nil {
		return model.Feedback{}, mapErr(err)
	}
	if trainerRating.Valid {
		v := int(trainerRating.Int64)
		f.TrainerRating = &v
	}
	f.User = summary(f.UserID, first, last, email)
	return f, nil
}

// CreateFeedback inserts feedback; a second row for (training, user) yields ErrDuplicate.
func (p *Postgres) CreateFeedback(ctx context.Context, f *model.Feedback) error {
	ensureID(&f.ID)
	nowIfZero(&f.SubmittedAt)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO feedbacks (id, training_id, user_id, rating, trainer_rating, comment, trainer_comment, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, f.ID, f.TrainingID, f.UserID, f.Rating, nullableInt(f.TrainerRating), f.Comment, f.TrainerComment, f.SubmittedAt)
	return mapErr(err)
}

func (p *Postgres) GetFeedback(ctx context.Context, trainingID, userID string) (model.Feedback, error) {
	return scanFeedback(p.db.QueryRowContext(ctx, feedbackSelect+` WHERE f.training_id = $1 AND f.user_id = $2`, trainingID, userID))
}

// ListFeedback returns a training's feedback, newest first.
func (p *Postgres) ListFeedback(ctx context.Context, trainingID string) ([]model.Feedback, error) {
	rows, err := p.db.QueryContext(ctx, feedbackSelect+` WHERE f.training_id = $1 ORDER BY f.submitted_at DESC, f.id`, trainingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
