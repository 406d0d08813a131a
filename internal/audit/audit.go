package audit

import (
	"context"
	"time"

	"trainflow/internal/logger"
	"trainflow/internal/metrics"
	"trainflow/internal/model"
)

const (
	ActionCreate   = "CREATE"
	ActionUpdate   = "UPDATE"
	ActionDelete   = "DELETE"
	ActionEnroll   = "ENROLL"
	ActionComplete = "COMPLETE"
	ActionLogin    = "LOGIN"
)

// Store persists and queries audit records.
type Store interface {
	CreateAuditLog(ctx context.Context, l *model.AuditLog) error
	ListAuditLogs(ctx context.Context, f model.AuditFilter) ([]model.AuditLog, int, error)
}

// Entry describes one auditable action.
type Entry struct {
	UserID     string
	Action     string
	EntityType string
	EntityID   string
	Details    map[string]any
	IPAddress  string
	UserAgent  string
}

type requestMetaKey struct{}

type requestMeta struct {
	ip, userAgent string
}

// WithRequestMeta attaches the caller's address and user agent to ctx so
// records written further down the call chain carry them.
func WithRequestMeta(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, requestMeta{ip: ip, userAgent: userAgent})
}

// Recorder writes audit records without ever failing the caller.
type Recorder struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

func NewRecorder(store Store, log *logger.Logger) *Recorder {
	return &Recorder{store: store, log: log.With("service", "AuditRecorder"), now: time.Now}
}

// Record persists e. Failures are logged and discarded.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if meta, ok := ctx.Value(requestMetaKey{}).(requestMeta); ok {
		if e.IPAddress == "" {
			e.IPAddress = meta.ip
		}
		if e.UserAgent == "" {
			e.UserAgent = meta.userAgent
		}
	}
	l := model.AuditLog{
		UserID:     e.UserID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Details:    e.Details,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		CreatedAt:  r.now().UTC(),
	}
	if err := r.store.CreateAuditLog(ctx, &l); err != nil {
		metrics.SideEffectFailures.WithLabelValues("audit").Inc()
		r.log.Warn("audit record failed", "action", e.Action, "entity_type", e.EntityType, "entity_id", e.EntityID, "error", err)
	}
}

// Query serves audit log listings.
type Query struct {
	store Store
}

func NewQuery(store Store) *Query {
	return &Query{store: store}
}

// List returns one page of audit records matching f.
func (q *Query) List(ctx context.Context, f model.AuditFilter) (model.Page[model.AuditLog], error) {
	f = f.Normalize()
	logs, total, err := q.store.ListAuditLogs(ctx, f)
	if err != nil {
		return model.Page[model.AuditLog]{}, err
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return model.Page[model.AuditLog]{Data: logs, Pagination: model.NewPagination(f.Page, f.Limit, total)}, nil
}

// ForEntity returns the full history of one entity, newest first.
func (q *Query) ForEntity(ctx context.Context, entityType, entityID string) ([]model.AuditLog, error) {
	logs, _, err := q.store.ListAuditLogs(ctx, model.AuditFilter{EntityType: entityType, EntityID: entityID})
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return logs, err
}
