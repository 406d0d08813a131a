package store

import (
	"context"
	"encoding/json"

	"trainflow/internal/model"
)

const templateSelect = `
	SELECT t.id, t.name, t.description, t.category, t.tags, t.template_data, t.is_public, t.usage_count,
		t.created_by_id, t.created_at, t.updated_at, u.first_name, u.last_name, u.email
	FROM training_templates t JOIN users u ON u.id = t.created_by_id`

func scanTemplate(row scanner) (model.TrainingTemplate, error) {
	var (
		t                  model.TrainingTemplate
		tags, data         []byte
		first, last, email string
	)
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Category, &tags, &data, &t.IsPublic, &t.UsageCount,
		&t.CreatedByID, &t.CreatedAt, &t.UpdatedAt, &first, &last, &email)
	if err != nil {
		return model.TrainingTemplate{}, mapErr(err)
	}
	if err := json.Unmarshal(tags, &t.Tags); err != nil {
		return model.TrainingTemplate{}, err
	}
	if err := json.Unmarshal(data, &t.Data); err != nil {
		return model.TrainingTemplate{}, err
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	t.CreatedBy = summary(t.CreatedByID, first, last, email)
	return t, nil
}

func templateJSON(t *model.TrainingTemplate) (tags, data []byte, err error) {
	if tags, err = json.Marshal(t.Tags); err != nil {
		return nil, nil, err
	}
	if t.Tags == nil {
		tags = []byte("[]")
	}
	data, err = json.Marshal(t.Data)
	return tags, data, err
}

func (p *Postgres) CreateTemplate(ctx context.Context, t *model.TrainingTemplate) error {
	ensureID(&t.ID)
	nowIfZero(&t.CreatedAt)
	t.UpdatedAt = t.CreatedAt
	tags, data, err := templateJSON(t)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO training_templates (id, name, description, category, tags, template_data, is_public,
			usage_count, created_by_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,$9,$10)
	`, t.ID, t.Name, t.Description, t.Category, tags, data, t.IsPublic, t.CreatedByID, t.CreatedAt, t.UpdatedAt)
	return mapErr(err)
}

func (p *Postgres) GetTemplate(ctx context.Context, id string) (model.TrainingTemplate, error) {
	return scanTemplate(p.db.QueryRowContext(ctx, templateSelect+` WHERE t.id = $1`, id))
}

// ListTemplates returns matching templates, newest first.
func (p *Postgres) ListTemplates(ctx context.Context, f model.TemplateFilter) ([]model.TrainingTemplate, error) {
	w := &where{}
	if f.Category != "" {
		w.add("t.category = ?", f.Category)
	}
	if f.IsPublic != nil {
		w.add("t.is_public = ?", *f.IsPublic)
	}
	if f.Search != "" {
		w.add("(t.name ILIKE ? OR t.description ILIKE ?)", "%"+f.Search+"%")
	}
	rows, err := p.db.QueryContext(ctx, templateSelect+w.sql()+` ORDER BY t.created_at DESC, t.id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TrainingTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateTemplate(ctx context.Context, t *model.TrainingTemplate) error {
	nowIfZero(&t.UpdatedAt)
	tags, data, err := templateJSON(t)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE training_templates
		SET name = $2, description = $3, category = $4, tags = $5, template_data = $6, is_public = $7, updated_at = $8
		WHERE id = $1
	`, t.ID, t.Name, t.Description, t.Category, tags, data, t.IsPublic, t.UpdatedAt)
	return affected(res, err)
}

func (p *Postgres) DeleteTemplate(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM training_templates WHERE id = $1`, id)
	return affected(res, err)
}

func (p *Postgres) IncrementTemplateUsage(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE training_templates SET usage_count = usage_count + 1 WHERE id = $1`, id)
	return affected(res, err)
}

const commentSelect = `
	SELECT c.id, c.training_id, c.user_id, COALESCE(c.parent_id, ''), c.content, c.is_edited, c.edited_at,
		c.created_at, u.first_name, u.last_name, u.email
	FROM comments c JOIN users u ON u.id = c.user_id`

func scanComment(row scanner) (model.Comment, error) {
	var (
		c                  model.Comment
		first, last, email string
	)
	err := row.Scan(&c.ID, &c.TrainingID, &c.UserID, &c.ParentID, &c.Content, &c.IsEdited, &c.EditedAt,
		&c.CreatedAt, &first, &last, &email)
	if err != nil {
		return model.Comment{}, mapErr(err)
	}
	c.User = summary(c.UserID, first, last, email)
	return c, nil
}

// CreateComment inserts a comment; an empty ParentID stores a top-level comment.
func (p *Postgres) CreateComment(ctx context.Context, c *model.Comment) error {
	ensureID(&c.ID)
	nowIfZero(&c.CreatedAt)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO comments (id, training_id, user_id, parent_id, content, is_edited, edited_at, created_at)
		VALUES ($1,$2,$3,NULLIF($4, ''),$5,$6,$7,$8)
	`, c.ID, c.TrainingID, c.UserID, c.ParentID, c.Content, c.IsEdited, c.EditedAt, c.CreatedAt)
	return mapErr(err)
}

func (p *Postgres) GetComment(ctx context.Context, id string) (model.Comment, error) {
	return scanComment(p.db.QueryRowContext(ctx, commentSelect+` WHERE c.id = $1`, id))
}

// ListComments returns every comment of a training, oldest first.
func (p *Postgres) ListComments(ctx context.Context, trainingID string) ([]model.Comment, error) {
	rows, err := p.db.QueryContext(ctx, commentSelect+` WHERE c.training_id = $1 ORDER BY c.created_at, c.id`, trainingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateComment(ctx context.Context, c *model.Comment) error {
	res, err := p.db.ExecContext(ctx, `UPDATE comments SET content = $2, is_edited = $3, edited_at = $4 WHERE id = $1`,
		c.ID, c.Content, c.IsEdited, c.EditedAt)
	return affected(res, err)
}

// DeleteComment removes a comment; replies go with it through the foreign key.
func (p *Postgres) DeleteComment(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	return affected(res, err)
}
