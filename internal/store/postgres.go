package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"trainflow/internal/model"
)

// Postgres is the relational repository gateway.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a gateway over an open connection.
func NewPostgres(db *DB) *Postgres {
	return &Postgres{db: db.Client}
}

type scanner interface {
	Scan(dest ...any) error
}

// where accumulates positional SQL predicates.
type where struct {
	clauses []string
	args    []any
}

// add appends clause, replacing every ? with the next placeholder.
func (w *where) add(clause string, v any) {
	w.args = append(w.args, v)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func nowIfZero(t *time.Time) {
	if t.IsZero() {
		*t = time.Now().UTC()
	}
}

const userColumns = `id, email, password_hash, first_name, last_name, role, created_at, updated_at`

func scanUser(row scanner) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, mapErr(err)
}

// CreateUser inserts a user; a taken email yields ErrDuplicate.
func (p *Postgres) CreateUser(ctx context.Context, u *model.User) error {
	ensureID(&u.ID)
	nowIfZero(&u.CreatedAt)
	u.UpdatedAt = u.CreatedAt
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, u.FirstName, u.LastName, u.Role, u.CreatedAt, u.UpdatedAt)
	return mapErr(err)
}

func (p *Postgres) GetUser(ctx context.Context, id string) (model.User, error) {
	return scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
}

// ListUsers returns users ordered by name, optionally restricted to one role.
func (p *Postgres) ListUsers(ctx context.Context, role model.Role) ([]model.User, error) {
	w := &where{}
	if role != "" {
		w.add("role = ?", role)
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users`+w.sql()+` ORDER BY first_name, last_name`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// FindUsersByEmails resolves a batch of emails; unknown addresses are absent from the result.
func (p *Postgres) FindUsersByEmails(ctx context.Context, emails []string) ([]model.User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(emails))
	for i, e := range emails {
		lowered[i] = strings.ToLower(strings.TrimSpace(e))
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ANY($1)`, lowered)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateUserPassword(ctx context.Context, id, hash string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
	return affected(res, err)
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func summary(id, first, last, email string) *model.UserSummary {
	if id == "" {
		return nil
	}
	return &model.UserSummary{ID: id, FirstName: first, LastName: last, Email: email}
}
