package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"trainflow/internal/model"
)

const materialColumns = `id, training_id, name, description, type, file_url, file_name, file_size, mime_type,
	file_key, external_link, is_required, distributed_at, created_at`

func scanMaterial(row scanner) (model.Material, error) {
	var m model.Material
	err := row.Scan(&m.ID, &m.TrainingID, &m.Name, &m.Description, &m.Type, &m.FileURL, &m.FileName, &m.FileSize,
		&m.MimeType, &m.FileKey, &m.ExternalLink, &m.IsRequired, &m.DistributedAt, &m.CreatedAt)
	return m, mapErr(err)
}

func (p *Postgres) CreateMaterial(ctx context.Context, m *model.Material) error {
	ensureID(&m.ID)
	nowIfZero(&m.CreatedAt)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO training_materials (id, training_id, name, description, type, file_url, file_name, file_size,
			mime_type, file_key, external_link, is_required, distributed_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, m.ID, m.TrainingID, m.Name, m.Description, m.Type, m.FileURL, m.FileName, m.FileSize,
		m.MimeType, m.FileKey, m.ExternalLink, m.IsRequired, m.DistributedAt, m.CreatedAt)
	return mapErr(err)
}

func (p *Postgres) GetMaterial(ctx context.Context, id string) (model.Material, error) {
	return scanMaterial(p.db.QueryRowContext(ctx, `SELECT `+materialColumns+` FROM training_materials WHERE id = $1`, id))
}

// ListMaterials returns a training's materials, newest first. An empty typ matches every type.
func (p *Postgres) ListMaterials(ctx context.Context, trainingID string, typ model.MaterialType) ([]model.Material, error) {
	w := &where{}
	w.add("training_id = ?", trainingID)
	if typ != "" {
		w.add("type = ?", typ)
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+materialColumns+` FROM training_materials`+w.sql()+` ORDER BY created_at DESC, id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteMaterial(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM training_materials WHERE id = $1`, id)
	return affected(res, err)
}

func (p *Postgres) MarkMaterialDistributed(ctx context.Context, id string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `UPDATE training_materials SET distributed_at = $2 WHERE id = $1`, id, at)
	return affected(res, err)
}

// CreateAuditLog appends an audit record.
func (p *Postgres) CreateAuditLog(ctx context.Context, l *model.AuditLog) error {
	ensureID(&l.ID)
	nowIfZero(&l.CreatedAt)
	var details []byte
	if len(l.Details) > 0 {
		var err error
		if details, err = json.Marshal(l.Details); err != nil {
			return err
		}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, entity_type, entity_id, details, ip_address, user_agent, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, l.ID, l.UserID, l.Action, l.EntityType, l.EntityID, details, l.IPAddress, l.UserAgent, l.CreatedAt)
	return mapErr(err)
}

// ListAuditLogs returns one page of audit records, newest first, and the total match count.
func (p *Postgres) ListAuditLogs(ctx context.Context, f model.AuditFilter) ([]model.AuditLog, int, error) {
	w := &where{}
	if f.UserID != "" {
		w.add("l.user_id = ?", f.UserID)
	}
	if f.Action != "" {
		w.add("l.action = ?", f.Action)
	}
	if f.EntityType != "" {
		w.add("l.entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		w.add("l.entity_id = ?", f.EntityID)
	}
	if f.From != nil {
		w.add("l.created_at >= ?", *f.From)
	}
	if f.To != nil {
		w.add("l.created_at <= ?", *f.To)
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs l`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT l.id, l.user_id, l.action, l.entity_type, l.entity_id, l.details, l.ip_address, l.user_agent, l.created_at,
			COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), COALESCE(u.email, '')
		FROM audit_logs l LEFT JOIN users u ON u.id = l.user_id` + w.sql() + ` ORDER BY l.created_at DESC, l.id`
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
	var out []model.AuditLog
	for rows.Next() {
		var (
			l                  model.AuditLog
			details            []byte
			first, last, email string
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.EntityType, &l.EntityID, &details, &l.IPAddress, &l.UserAgent,
			&l.CreatedAt, &first, &last, &email); err != nil {
			return nil, 0, err
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &l.Details)
		}
		if first != "" || last != "" || email != "" {
			l.User = summary(l.UserID, first, last, email)
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

const notificationColumns = `id, user_id, title, message, type, link, is_read, read_at, created_at`

func scanNotification(row scanner) (model.Notification, error) {
	var n model.Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Link, &n.IsRead, &n.ReadAt, &n.CreatedAt)
	return n, mapErr(err)
}

func (p *Postgres) CreateNotification(ctx context.Context, n *model.Notification) error {
	ensureID(&n.ID)
	nowIfZero(&n.CreatedAt)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type, link, is_read, read_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, n.ID, n.UserID, n.Title, n.Message, n.Type, n.Link, n.IsRead, n.ReadAt, n.CreatedAt)
	return mapErr(err)
}

// ListNotifications returns a user's notifications, newest first.
func (p *Postgres) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	w := &where{}
	w.add("user_id = ?", userID)
	if unreadOnly {
		w.clauses = append(w.clauses, "is_read = FALSE")
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications` + w.sql() + ` ORDER BY created_at DESC, id`
	args := w.args
	if limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1)
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags one of the user's notifications as read.
// Notifications owned by someone else are reported as ErrNotFound.
func (p *Postgres) MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) (model.Notification, error) {
	return scanNotification(p.db.QueryRowContext(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns, id, userID, at))
}

func (p *Postgres) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE user_id = $1 AND is_read = FALSE`, userID, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *Postgres) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID).Scan(&n)
	return n, err
}
