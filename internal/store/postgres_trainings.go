package store

import (
	"context"
	"database/sql"
	"strconv"

	"trainflow/internal/model"
)

const trainingSelect = `
	SELECT t.id, t.name, t.description, t.start_date, t.end_date, t.mode, t.location, t.meeting_link,
		t.status, t.max_participants, t.trainer_id, t.created_by_id, t.created_at, t.updated_at,
		COALESCE(tr.first_name, ''), COALESCE(tr.last_name, ''), COALESCE(tr.email, ''),
		COALESCE(cb.first_name, ''), COALESCE(cb.last_name, ''), COALESCE(cb.email, ''),
		(SELECT COUNT(*) FROM enrollments e WHERE e.training_id = t.id),
		(SELECT COUNT(*) FROM training_materials m WHERE m.training_id = t.id),
		(SELECT COUNT(*) FROM feedbacks f WHERE f.training_id = t.id),
		(SELECT COUNT(*) FROM attendance a WHERE a.training_id = t.id)
	FROM trainings t
	LEFT JOIN users tr ON tr.id = t.trainer_id
	LEFT JOIN users cb ON cb.id = t.created_by_id`

func scanTraining(row scanner) (model.TrainingSummary, error) {
	var (
		t                    model.TrainingSummary
		maxP                 sql.NullInt64
		trFirst, trLast, trE string
		cbFirst, cbLast, cbE string
	)
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.StartDate, &t.EndDate, &t.Mode, &t.Location, &t.MeetingLink,
		&t.Status, &maxP, &t.TrainerID, &t.CreatedByID, &t.CreatedAt, &t.UpdatedAt,
		&trFirst, &trLast, &trE, &cbFirst, &cbLast, &cbE,
		&t.Count.Enrollments, &t.Count.Materials, &t.Count.Feedbacks, &t.Count.Attendance)
	if err != nil {
		return model.TrainingSummary{}, mapErr(err)
	}
	if maxP.Valid {
		v := int(maxP.Int64)
		t.MaxParticipants = &v
	}
	t.Trainer = summary(t.TrainerID, trFirst, trLast, trE)
	t.CreatedBy = summary(t.CreatedByID, cbFirst, cbLast, cbE)
	return t, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// CreateTraining inserts a training; an unknown trainer or creator yields ErrNotFound.
func (p *Postgres) CreateTraining(ctx context.Context, t *model.Training) error {
	ensureID(&t.ID)
	nowIfZero(&t.CreatedAt)
	t.UpdatedAt = t.CreatedAt
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trainings (id, name, description, start_date, end_date, mode, location, meeting_link,
			status, max_participants, trainer_id, created_by_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, t.ID, t.Name, t.Description, t.StartDate, t.EndDate, t.Mode, t.Location, t.MeetingLink,
		t.Status, nullableInt(t.MaxParticipants), t.TrainerID, t.CreatedByID, t.CreatedAt, t.UpdatedAt)
	return mapErr(err)
}

// GetTraining returns a training with its trainer, creator and relation counts.
func (p *Postgres) GetTraining(ctx context.Context, id string) (model.TrainingSummary, error) {
	return scanTraining(p.db.QueryRowContext(ctx, trainingSelect+` WHERE t.id = $1`, id))
}

// UpdateTraining overwrites every mutable column.
func (p *Postgres) UpdateTraining(ctx context.Context, t *model.Training) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE trainings SET name = $2, description = $3, start_date = $4, end_date = $5, mode = $6,
			location = $7, meeting_link = $8, status = $9, max_participants = $10, trainer_id = $11, updated_at = $12
		WHERE id = $1
	`, t.ID, t.Name, t.Description, t.StartDate, t.EndDate, t.Mode, t.Location, t.MeetingLink,
		t.Status, nullableInt(t.MaxParticipants), t.TrainerID, t.UpdatedAt)
	return affected(res, err)
}

// DeleteTraining removes a training; dependent rows cascade.
func (p *Postgres) DeleteTraining(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM trainings WHERE id = $1`, id)
	return affected(res, err)
}

// ListTrainings returns one page of trainings and the total match count.
func (p *Postgres) ListTrainings(ctx context.Context, f model.TrainingFilter) ([]model.TrainingSummary, int, error) {
	w := &where{}
	if f.Status != "" {
		w.add("t.status = ?", f.Status)
	}
	if f.TrainerID != "" {
		w.add("t.trainer_id = ?", f.TrainerID)
	}
	if f.Mode != "" {
		w.add("t.mode = ?", f.Mode)
	}
	if f.Search != "" {
		w.add("(t.name ILIKE ? OR t.description ILIKE ?)", "%"+f.Search+"%")
	}
	if f.StartFrom != nil {
		w.add("t.start_date >= ?", *f.StartFrom)
	}
	if f.StartTo != nil {
		w.add("t.start_date <= ?", *f.StartTo)
	}
	if f.EndFrom != nil {
		w.add("t.end_date >= ?", *f.EndFrom)
	}
	if f.EndTo != nil {
		w.add("t.end_date <= ?", *f.EndTo)
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trainings t`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	col, ok := model.TrainingSortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	order := "DESC"
	if f.SortOrder == "asc" {
		order = "ASC"
	}
	query := trainingSelect + w.sql() + ` ORDER BY t.` + col + ` ` + order + `, t.id`
	args := w.args
	if f.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, f.Limit, f.Offset())
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []model.TrainingSummary
	for rows.Next() {
		t, err := scanTraining(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}
