package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"trainflow/internal/apperr"
	"trainflow/internal/audit"
	"trainflow/internal/cache"
	"trainflow/internal/logger"
	"trainflow/internal/mail"
	"trainflow/internal/metrics"
	"trainflow/internal/model"
	"trainflow/internal/notify"
	"trainflow/internal/storage"
	"trainflow/internal/store"
)

const (
	listKeyPrefix   = "trainings:"
	listKeyPattern  = "trainings:*"
	detailKeyPrefix = "training:"
)

// Repository is the persistence the engine needs. store.Postgres and store.Memory satisfy it.
type Repository interface {
	GetUser(ctx context.Context, id string) (model.User, error)
	FindUsersByEmails(ctx context.Context, emails []string) ([]model.User, error)

	CreateTraining(ctx context.Context, t *model.Training) error
	GetTraining(ctx context.Context, id string) (model.TrainingSummary, error)
	UpdateTraining(ctx context.Context, t *model.Training) error
	DeleteTraining(ctx context.Context, id string) error
	ListTrainings(ctx context.Context, f model.TrainingFilter) ([]model.TrainingSummary, int, error)

	CreateEnrollment(ctx context.Context, e *model.Enrollment) error
	GetEnrollment(ctx context.Context, trainingID, userID string) (model.Enrollment, error)
	UpdateEnrollment(ctx context.Context, e *model.Enrollment) error
	DeleteEnrollment(ctx context.Context, trainingID, userID string) error
	ListEnrollments(ctx context.Context, trainingID string) ([]model.Enrollment, error)
	ListUserEnrollments(ctx context.Context, userID string) ([]model.Enrollment, error)
	CountEnrollments(ctx context.Context, trainingID string) (int, error)

	UpsertAttendance(ctx context.Context, a *model.Attendance) error
	ListAttendance(ctx context.Context, trainingID string) ([]model.Attendance, error)

	CreateFeedback(ctx context.Context, f *model.Feedback) error
	ListFeedback(ctx context.Context, trainingID string) ([]model.Feedback, error)

	CreateMaterial(ctx context.Context, m *model.Material) error
	GetMaterial(ctx context.Context, id string) (model.Material, error)
	ListMaterials(ctx context.Context, trainingID string, typ model.MaterialType) ([]model.Material, error)
	DeleteMaterial(ctx context.Context, id string) error
	MarkMaterialDistributed(ctx context.Context, id string, at time.Time) error

	CreateTemplate(ctx context.Context, t *model.TrainingTemplate) error
	GetTemplate(ctx context.Context, id string) (model.TrainingTemplate, error)
	ListTemplates(ctx context.Context, f model.TemplateFilter) ([]model.TrainingTemplate, error)
	UpdateTemplate(ctx context.Context, t *model.TrainingTemplate) error
	DeleteTemplate(ctx context.Context, id string) error
	IncrementTemplateUsage(ctx context.Context, id string) error

	CreateComment(ctx context.Context, c *model.Comment) error
	GetComment(ctx context.Context, id string) (model.Comment, error)
	ListComments(ctx context.Context, trainingID string) ([]model.Comment, error)
	UpdateComment(ctx context.Context, c *model.Comment) error
	DeleteComment(ctx context.Context, id string) error
}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notice) error
}

// Auditor records who did what. It never fails the caller.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role model.Role
}

// Deps are the collaborators of Service. Nil collaborators are replaced by no-ops.
type Deps struct {
	Cache     cache.Cache
	Notifier  Notifier
	Mailer    mail.Sender
	Auditor   Auditor
	Storage   storage.Storage
	ListTTL   time.Duration
	DetailTTL time.Duration
}

// Service is the training lifecycle engine.
type Service struct {
	repo      Repository
	cache     cache.Cache
	notifier  Notifier
	mailer    mail.Sender
	auditor   Auditor
	storage   storage.Storage
	listTTL   time.Duration
	detailTTL time.Duration
	validate  *validator.Validate
	log       *logger.Logger
	now       func() time.Time
}

func NewService(repo Repository, d Deps, log *logger.Logger) *Service {
	if d.Cache == nil {
		d.Cache = cache.Noop{}
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Mailer == nil {
		d.Mailer = nopMailer{}
	}
	if d.Auditor == nil {
		d.Auditor = nopAuditor{}
	}
	if d.ListTTL <= 0 {
		d.ListTTL = 5 * time.Minute
	}
	if d.DetailTTL <= 0 {
		d.DetailTTL = 10 * time.Minute
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Service{
		repo:      repo,
		cache:     d.Cache,
		notifier:  d.Notifier,
		mailer:    d.Mailer,
		auditor:   d.Auditor,
		storage:   d.Storage,
		listTTL:   d.ListTTL,
		detailTTL: d.DetailTTL,
		validate:  v,
		log:       log.With("service", "TrainingService"),
		now:       time.Now,
	}
}

// WithClock replaces the time source, for tests and sweeps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) clock() time.Time { return s.now().UTC() }

// bestEffort runs a side effect whose failure must never reach the caller.
func (s *Service) bestEffort(op string, fn func() error, kv ...any) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SideEffectFailures.WithLabelValues(op).Inc()
			s.log.Error("side effect panicked", append(kv, "op", op, "panic", fmt.Sprint(r))...)
		}
	}()
	if err := fn(); err != nil {
		metrics.SideEffectFailures.WithLabelValues(op).Inc()
		s.log.Warn("side effect failed", append(kv, "op", op, "error", err)...)
	}
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	s.bestEffort("audit", func() error {
		s.auditor.Record(ctx, e)
		return nil
	}, "action", e.Action, "entity_id", e.EntityID)
}

func (s *Service) notifyUser(ctx context.Context, n notify.Notice) {
	s.bestEffort("notify", func() error { return s.notifier.Notify(ctx, n) }, "user_id", n.UserID, "title", n.Title)
}

// invalidate drops the detail entry of id (when set) and every listing.
func (s *Service) invalidate(ctx context.Context, id string) {
	if id != "" {
		s.cache.Delete(ctx, detailKey(id))
	}
	s.cache.DeleteByPattern(ctx, listKeyPattern)
}

func detailKey(id string) string { return detailKeyPrefix + id }

func listKey(f model.TrainingFilter) string {
	raw, _ := json.Marshal(f)
	return listKeyPrefix + string(raw)
}

// check runs struct validation and reports the first failure as a BadRequest.
func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.BadRequest(err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperr.BadRequest(fmt.Sprintf("%s is required", fe.Field()))
	case "oneof":
		return apperr.BadRequest(fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
	case "gtefield":
		return apperr.BadRequest(fmt.Sprintf("%s must not be before %s", fe.Field(), toJSONName(fe.Param())))
	case "min", "max", "gte", "lte":
		return apperr.BadRequest(fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
	}
	return apperr.BadRequest(fmt.Sprintf("%s is invalid", fe.Field()))
}

func toJSONName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// notFound maps a repository miss to an API error with msg, passing other errors through.
func notFound(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return err
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, notify.Notice) error { return nil }

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Entry) {}

type nopMailer struct{}

func (nopMailer) SendEnrollmentConfirmation(context.Context, model.UserSummary, model.Training) error {
	return nil
}
func (nopMailer) SendMaterialNotification(context.Context, model.UserSummary, model.Training, model.Material) error {
	return nil
}
func (nopMailer) SendFeedbackReminder(context.Context, model.UserSummary, model.Training) error {
	return nil
}
func (nopMailer) SendPreWorkReminder(context.Context, model.UserSummary, model.Training) error {
	return nil
}
func (nopMailer) SendPasswordReset(context.Context, model.UserSummary, string) error { return nil }
