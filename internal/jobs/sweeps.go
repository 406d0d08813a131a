package jobs

import (
	"context"
	"fmt"
	"time"

	"trainflow/internal/logger"
	"trainflow/internal/mail"
	"trainflow/internal/metrics"
	"trainflow/internal/model"
	"trainflow/internal/notify"
)

const (
	SweepPreWork    = "prework"
	SweepAttendance = "attendance"
	SweepFeedback   = "feedback"

	reminderWindow = 7 * 24 * time.Hour
)

// Repository is the read access the sweeps need.
type Repository interface {
	GetUser(ctx context.Context, id string) (model.User, error)
	ListTrainings(ctx context.Context, f model.TrainingFilter) ([]model.TrainingSummary, int, error)
	ListEnrollments(ctx context.Context, trainingID string) ([]model.Enrollment, error)
	ListAttendance(ctx context.Context, trainingID string) ([]model.Attendance, error)
	ListFeedback(ctx context.Context, trainingID string) ([]model.Feedback, error)
	ListMaterials(ctx context.Context, trainingID string, typ model.MaterialType) ([]model.Material, error)
}

type Notifier interface {
	Notify(ctx context.Context, n notify.Notice) error
}

// Runner executes the reminder sweeps. Sweeps only create notifications and
// send emails; they never change trainings or enrollments.
type Runner struct {
	repo     Repository
	notifier Notifier
	mailer   mail.Sender
	log      *logger.Logger
	now      func() time.Time
}

func NewRunner(repo Repository, notifier Notifier, mailer mail.Sender, log *logger.Logger) *Runner {
	return &Runner{repo: repo, notifier: notifier, mailer: mailer, log: log.With("service", "Sweeps"), now: time.Now}
}

// WithClock replaces the time source.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// PreWorkReminders reminds enrollees of scheduled trainings starting within a
// week that carry pre-work they have not completed. It returns the number of
// users reminded.
func (r *Runner) PreWorkReminders(ctx context.Context) (int, error) {
	now := r.now().UTC()
	until := now.Add(reminderWindow)
	trainings, err := r.trainings(ctx, model.TrainingFilter{Status: model.StatusScheduled, StartFrom: &now, StartTo: &until})
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, t := range trainings {
		preWork, err := r.repo.ListMaterials(ctx, t.ID, model.MaterialPreWork)
		if err != nil {
			r.log.Warn("list pre-work failed", "training_id", t.ID, "error", err)
			continue
		}
		if len(preWork) == 0 {
			continue
		}
		enrollments, err := r.repo.ListEnrollments(ctx, t.ID)
		if err != nil {
			r.log.Warn("list enrollments failed", "training_id", t.ID, "error", err)
			continue
		}
		for _, e := range enrollments {
			if e.PreWorkCompleted {
				continue
			}
			r.remind(ctx, SweepPreWork, e, notify.Notice{
				UserID:  e.UserID,
				Title:   "Pre-work Reminder",
				Message: fmt.Sprintf("Complete pre-work materials for %s before the training starts.", t.Name),
				Type:    model.SeverityWarning,
				Link:    "/trainings/" + t.ID + "/materials",
			}, func(to model.UserSummary) error { return r.mailer.SendPreWorkReminder(ctx, to, t.Training) })
			sent++
		}
	}
	return sent, nil
}

// AttendanceReminders nudges enrollees of started, in-progress trainings who
// have not checked in yet. No email is sent.
func (r *Runner) AttendanceReminders(ctx context.Context) (int, error) {
	now := r.now().UTC()
	trainings, err := r.trainings(ctx, model.TrainingFilter{Status: model.StatusInProgress, StartTo: &now})
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, t := range trainings {
		enrollments, err := r.repo.ListEnrollments(ctx, t.ID)
		if err != nil {
			r.log.Warn("list enrollments failed", "training_id", t.ID, "error", err)
			continue
		}
		records, err := r.repo.ListAttendance(ctx, t.ID)
		if err != nil {
			r.log.Warn("list attendance failed", "training_id", t.ID, "error", err)
			continue
		}
		checkedIn := make(map[string]bool, len(records))
		for _, a := range records {
			checkedIn[a.UserID] = true
		}
		for _, e := range enrollments {
			if checkedIn[e.UserID] {
				continue
			}
			r.remind(ctx, SweepAttendance, e, notify.Notice{
				UserID:  e.UserID,
				Title:   "Attendance Reminder",
				Message: fmt.Sprintf("Don't forget to check in for %s.", t.Name),
				Type:    model.SeverityWarning,
				Link:    "/trainings/" + t.ID + "/attendance",
			}, nil)
			sent++
		}
	}
	return sent, nil
}

// FeedbackReminders asks completed enrollees of trainings that ended within
// the last week for the feedback they have not given yet.
func (r *Runner) FeedbackReminders(ctx context.Context) (int, error) {
	since := r.now().UTC().Add(-reminderWindow)
	trainings, err := r.trainings(ctx, model.TrainingFilter{Status: model.StatusCompleted, EndFrom: &since})
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, t := range trainings {
		enrollments, err := r.repo.ListEnrollments(ctx, t.ID)
		if err != nil {
			r.log.Warn("list enrollments failed", "training_id", t.ID, "error", err)
			continue
		}
		feedbacks, err := r.repo.ListFeedback(ctx, t.ID)
		if err != nil {
			r.log.Warn("list feedback failed", "training_id", t.ID, "error", err)
			continue
		}
		given := make(map[string]bool, len(feedbacks))
		for _, f := range feedbacks {
			given[f.UserID] = true
		}
		for _, e := range enrollments {
			if e.Status != model.EnrollmentCompleted || given[e.UserID] {
				continue
			}
			r.remind(ctx, SweepFeedback, e, notify.Notice{
				UserID:  e.UserID,
				Title:   "Feedback Reminder",
				Message: fmt.Sprintf("Please provide feedback for %s.", t.Name),
				Type:    model.SeverityInfo,
				Link:    "/trainings/" + t.ID + "/feedback",
			}, func(to model.UserSummary) error { return r.mailer.SendFeedbackReminder(ctx, to, t.Training) })
			sent++
		}
	}
	return sent, nil
}

func (r *Runner) trainings(ctx context.Context, f model.TrainingFilter) ([]model.TrainingSummary, error) {
	list, _, err := r.repo.ListTrainings(ctx, f)
	return list, err
}

// remind notifies one enrollee and optionally emails them. Failures are
// logged so one bad recipient never stops the sweep.
func (r *Runner) remind(ctx context.Context, sweep string, e model.Enrollment, n notify.Notice, email func(model.UserSummary) error) {
	metrics.SweepReminders.WithLabelValues(sweep).Inc()
	if err := r.notifier.Notify(ctx, n); err != nil {
		metrics.SideEffectFailures.WithLabelValues("notify").Inc()
		r.log.Warn("reminder notification failed", "sweep", sweep, "user_id", e.UserID, "error", err)
	}
	if email == nil {
		return
	}
	to, err := r.recipient(ctx, e)
	if err == nil {
		err = email(to)
	}
	if err != nil {
		metrics.SideEffectFailures.WithLabelValues("mail").Inc()
		r.log.Warn("reminder email failed", "sweep", sweep, "user_id", e.UserID, "error", err)
	}
}

func (r *Runner) recipient(ctx context.Context, e model.Enrollment) (model.UserSummary, error) {
	if e.User != nil && e.User.Email != "" {
		return *e.User, nil
	}
	u, err := r.repo.GetUser(ctx, e.UserID)
	if err != nil {
		return model.UserSummary{}, err
	}
	return u.Summary(), nil
}
