package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"trainflow/internal/logger"
	"trainflow/internal/metrics"
	"trainflow/internal/model"
	"trainflow/internal/notify"
	"trainflow/internal/store"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
	failFor string
}

func (n *fakeNotifier) Notify(_ context.Context, notice notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if notice.UserID == n.failFor {
		return errors.New("notification store down")
	}
	n.notices = append(n.notices, notice)
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *fakeMailer) add(kind string, to model.UserSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, kind+":"+to.ID)
	return nil
}

func (m *fakeMailer) SendEnrollmentConfirmation(_ context.Context, to model.UserSummary, _ model.Training) error {
	return m.add("confirmation", to)
}
func (m *fakeMailer) SendMaterialNotification(_ context.Context, to model.UserSummary, _ model.Training, _ model.Material) error {
	return m.add("material", to)
}
func (m *fakeMailer) SendFeedbackReminder(_ context.Context, to model.UserSummary, _ model.Training) error {
	return m.add("feedback", to)
}
func (m *fakeMailer) SendPreWorkReminder(_ context.Context, to model.UserSummary, _ model.Training) error {
	return m.add("prework", to)
}
func (m *fakeMailer) SendPasswordReset(_ context.Context, to model.UserSummary, _ string) error {
	return m.add("reset", to)
}

type world struct {
	repo     *store.Memory
	notifier *fakeNotifier
	mailer   *fakeMailer
	runner   *Runner
	trainer  model.User
	seq      int
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{repo: store.NewMemory(), notifier: &fakeNotifier{}, mailer: &fakeMailer{}}
	w.runner = NewRunner(w.repo, w.notifier, w.mailer, logger.NewNop()).WithClock(func() time.Time { return now })
	w.trainer = w.user(t)
	return w
}

func (w *world) user(t *testing.T) model.User {
	t.Helper()
	w.seq++
	u := model.User{Email: fmt.Sprintf("user%d@test.com", w.seq), FirstName: fmt.Sprintf("User%d", w.seq), Role: model.RoleParticipant}
	if err := w.repo.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (w *world) training(t *testing.T, name string, status model.TrainingStatus, start, end time.Time) model.Training {
	t.Helper()
	tr := model.Training{
		Name: name, StartDate: start, EndDate: end, Mode: model.ModeOffline, Location: "HQ",
		Status: status, TrainerID: w.trainer.ID, CreatedByID: w.trainer.ID,
	}
	if err := w.repo.CreateTraining(context.Background(), &tr); err != nil {
		t.Fatalf("seed training: %v", err)
	}
	return tr
}

func (w *world) enroll(t *testing.T, tr model.Training, status model.EnrollmentStatus, preWorkDone bool) model.User {
	t.Helper()
	u := w.user(t)
	e := model.Enrollment{TrainingID: tr.ID, UserID: u.ID, Status: status, PreWorkCompleted: preWorkDone}
	if err := w.repo.CreateEnrollment(context.Background(), &e); err != nil {
		t.Fatalf("seed enrollment: %v", err)
	}
	return u
}

func (w *world) material(t *testing.T, tr model.Training, typ model.MaterialType) {
	t.Helper()
	m := model.Material{TrainingID: tr.ID, Name: "Reading", Type: typ, IsRequired: true}
	if err := w.repo.CreateMaterial(context.Background(), &m); err != nil {
		t.Fatalf("seed material: %v", err)
	}
}

func (w *world) snapshot(t *testing.T, trainingID string) string {
	t.Helper()
	list, err := w.repo.ListEnrollments(context.Background(), trainingID)
	if err != nil {
		t.Fatalf("list enrollments: %v", err)
	}
	out := ""
	for _, e := range list {
		out += fmt.Sprintf("%s:%s:%v;", e.UserID, e.Status, e.PreWorkCompleted)
	}
	return out
}

func (w *world) recipients(title string) []string {
	w.notifier.mu.Lock()
	defer w.notifier.mu.Unlock()
	var out []string
	for _, n := range w.notifier.notices {
		if n.Title == title {
			out = append(out, n.UserID)
		}
	}
	return out
}

func TestPreWorkReminders(t *testing.T) {
	w := newWorld(t)
	day := 24 * time.Hour

	soon := w.training(t, "Soon", model.StatusScheduled, now.Add(3*day), now.Add(4*day))
	w.material(t, soon, model.MaterialPreWork)
	pending := w.enroll(t, soon, model.EnrollmentEnrolled, false)
	w.enroll(t, soon, model.EnrollmentEnrolled, true)

	later := w.training(t, "Later", model.StatusScheduled, now.Add(10*day), now.Add(11*day))
	w.material(t, later, model.MaterialPreWork)
	w.enroll(t, later, model.EnrollmentEnrolled, false)

	noPreWork := w.training(t, "No pre-work", model.StatusScheduled, now.Add(2*day), now.Add(3*day))
	w.material(t, noPreWork, model.MaterialPostTraining)
	w.enroll(t, noPreWork, model.EnrollmentEnrolled, false)

	draft := w.training(t, "Draft", model.StatusDraft, now.Add(day), now.Add(2*day))
	w.material(t, draft, model.MaterialPreWork)
	w.enroll(t, draft, model.EnrollmentEnrolled, false)

	n, err := w.runner.PreWorkReminders(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got := w.recipients("Pre-work Reminder")
	if n != 1 || len(got) != 1 || got[0] != pending.ID {
		t.Fatalf("want only %s reminded, n=%d got=%v", pending.ID, n, got)
	}
	if len(w.mailer.sent) != 1 || w.mailer.sent[0] != "prework:"+pending.ID {
		t.Fatalf("unexpected mails: %v", w.mailer.sent)
	}
	notice := w.notifier.notices[0]
	if notice.Message != "Complete pre-work materials for Soon before the training starts." ||
		notice.Type != model.SeverityWarning || notice.Link != "/trainings/"+soon.ID+"/materials" {
		t.Fatalf("unexpected notice: %+v", notice)
	}
}

func TestAttendanceReminders(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	running := w.training(t, "Running", model.StatusInProgress, now.Add(-time.Hour), now.Add(5*time.Hour))
	present := w.enroll(t, running, model.EnrollmentEnrolled, false)
	absent := w.enroll(t, running, model.EnrollmentEnrolled, false)
	if err := w.repo.UpsertAttendance(ctx, &model.Attendance{
		TrainingID: running.ID, UserID: present.ID, Status: model.AttendancePresent, CheckInTime: now,
	}); err != nil {
		t.Fatalf("seed attendance: %v", err)
	}

	notStarted := w.training(t, "Not started", model.StatusInProgress, now.Add(time.Hour), now.Add(5*time.Hour))
	w.enroll(t, notStarted, model.EnrollmentEnrolled, false)
	scheduled := w.training(t, "Scheduled", model.StatusScheduled, now.Add(-time.Hour), now.Add(time.Hour))
	w.enroll(t, scheduled, model.EnrollmentEnrolled, false)

	n, err := w.runner.AttendanceReminders(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got := w.recipients("Attendance Reminder")
	if n != 1 || len(got) != 1 || got[0] != absent.ID {
		t.Fatalf("want only %s reminded, n=%d got=%v", absent.ID, n, got)
	}
	if len(w.mailer.sent) != 0 {
		t.Fatalf("attendance reminders must not email: %v", w.mailer.sent)
	}
}

func TestFeedbackRemindersContinueAfterFailure(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	day := 24 * time.Hour

	recent := w.training(t, "Recent", model.StatusCompleted, now.Add(-3*day), now.Add(-2*day))
	broken := w.enroll(t, recent, model.EnrollmentCompleted, true)
	pending := w.enroll(t, recent, model.EnrollmentCompleted, true)
	done := w.enroll(t, recent, model.EnrollmentCompleted, true)
	w.enroll(t, recent, model.EnrollmentEnrolled, true)
	if err := w.repo.CreateFeedback(ctx, &model.Feedback{TrainingID: recent.ID, UserID: done.ID, Rating: 5}); err != nil {
		t.Fatalf("seed feedback: %v", err)
	}

	old := w.training(t, "Old", model.StatusCompleted, now.Add(-12*day), now.Add(-10*day))
	w.enroll(t, old, model.EnrollmentCompleted, true)

	w.notifier.failFor = broken.ID
	before := w.snapshot(t, recent.ID)

	n, err := w.runner.FeedbackReminders(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 attempted reminders got=%d", n)
	}
	got := w.recipients("Feedback Reminder")
	if len(got) != 1 || got[0] != pending.ID {
		t.Fatalf("want %s notified got=%v", pending.ID, got)
	}
	if len(w.mailer.sent) != 2 {
		t.Fatalf("emails should go out even when notifications fail: %v", w.mailer.sent)
	}

	if after := w.snapshot(t, recent.ID); before != after {
		t.Fatalf("sweep must not mutate enrollments: before=%s after=%s", before, after)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	w := newWorld(t)
	if _, err := w.runner.Start(Schedule{PreWork: "not a cron"}); err == nil {
		t.Fatal("want error for invalid cron expression")
	}
	c, err := w.runner.Start(Schedule{PreWork: "0 9 * * *", Attendance: "0 10 * * *", Feedback: "0 14 * * *"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()
	if len(c.Entries()) != 3 {
		t.Fatalf("want 3 entries got=%d", len(c.Entries()))
	}
}

func TestRunOnceRecordsOutcome(t *testing.T) {
	w := newWorld(t)
	ok := testutil.ToFloat64(metrics.SweepRuns.WithLabelValues("test", "ok"))
	failed := testutil.ToFloat64(metrics.SweepRuns.WithLabelValues("test", "error"))

	w.runner.RunOnce("test", func(context.Context) (int, error) { return 3, nil }, time.Second)
	w.runner.RunOnce("test", func(context.Context) (int, error) { return 0, errors.New("db down") }, time.Second)

	if got := testutil.ToFloat64(metrics.SweepRuns.WithLabelValues("test", "ok")); got != ok+1 {
		t.Fatalf("want=%v got=%v", ok+1, got)
	}
	if got := testutil.ToFloat64(metrics.SweepRuns.WithLabelValues("test", "error")); got != failed+1 {
		t.Fatalf("want=%v got=%v", failed+1, got)
	}
}
