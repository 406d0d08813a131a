package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"trainflow/internal/apperr"
	"trainflow/internal/audit"
	"trainflow/internal/cache"
	"trainflow/internal/logger"
	"trainflow/internal/model"
	"trainflow/internal/notify"
	"trainflow/internal/store"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, notice notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) titled(title string) []notify.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Notice
	for _, x := range n.notices {
		if x.Title == title {
			out = append(out, x)
		}
	}
	return out
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMailer) add(kind, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, kind+":"+email)
	return m.err
}

func (m *recordingMailer) SendEnrollmentConfirmation(_ context.Context, to model.UserSummary, _ model.Training) error {
	return m.add("confirmation", to.Email)
}
func (m *recordingMailer) SendMaterialNotification(_ context.Context, to model.UserSummary, _ model.Training, _ model.Material) error {
	return m.add("material", to.Email)
}
func (m *recordingMailer) SendFeedbackReminder(_ context.Context, to model.UserSummary, _ model.Training) error {
	return m.add("feedback", to.Email)
}
func (m *recordingMailer) SendPreWorkReminder(_ context.Context, to model.UserSummary, _ model.Training) error {
	return m.add("prework", to.Email)
}
func (m *recordingMailer) SendPasswordReset(_ context.Context, to model.UserSummary, _ string) error {
	return m.add("reset", to.Email)
}

func (m *recordingMailer) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if len(s) > len(kind) && s[:len(kind)+1] == kind+":" {
			n++
		}
	}
	return n
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAuditor) Record(_ context.Context, e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action+":"+e.EntityType)
	}
	return out
}

type panickingAuditor struct{}

func (panickingAuditor) Record(context.Context, audit.Entry) { panic("audit store exploded") }

type fixture struct {
	svc      *Service
	repo     *store.Memory
	cache    *cache.Memory
	notifier *recordingNotifier
	mailer   *recordingMailer
	auditor  *recordingAuditor
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     store.NewMemory(),
		cache:    cache.NewMemory(),
		notifier: &recordingNotifier{},
		mailer:   &recordingMailer{},
		auditor:  &recordingAuditor{},
		now:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, Deps{
		Cache:    f.cache,
		Notifier: f.notifier,
		Mailer:   f.mailer,
		Auditor:  f.auditor,
	}, logger.NewNop()).WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) user(t *testing.T, role model.Role) Actor {
	t.Helper()
	u := model.User{
		Email:     fmt.Sprintf("%s-%s@test.com", role, uuid.NewString()[:8]),
		FirstName: "Test",
		LastName:  string(role),
		Role:      role,
	}
	if err := f.repo.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return Actor{ID: u.ID, Role: role}
}

func (f *fixture) training(t *testing.T, owner Actor, capacity int) model.TrainingSummary {
	t.Helper()
	in := CreateInput{
		Name:        "Go Fundamentals",
		Description: "Intro to Go",
		StartDate:   f.now.Add(72 * time.Hour),
		EndDate:     f.now.Add(96 * time.Hour),
		Mode:        model.ModeOnline,
		MeetingLink: "https://meet.example.com/go",
	}
	if capacity > 0 {
		in.MaxParticipants = &capacity
	}
	tr, err := f.svc.Create(context.Background(), in, owner)
	if err != nil {
		t.Fatalf("seed training: %v", err)
	}
	return tr
}

// setStatus moves a training through the store directly, bypassing transition rules.
func (f *fixture) setStatus(t *testing.T, id string, status model.TrainingStatus) {
	t.Helper()
	tr, err := f.repo.GetTraining(context.Background(), id)
	if err != nil {
		t.Fatalf("get training: %v", err)
	}
	tr.Status = status
	if err := f.repo.UpdateTraining(context.Background(), &tr.Training); err != nil {
		t.Fatalf("set status: %v", err)
	}
	f.svc.invalidate(context.Background(), id)
}

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	if err == nil {
		t.Fatalf("want status %d, got nil error", status)
	}
	if got := apperr.StatusOf(err); got != status {
		t.Fatalf("want=%d got=%d (%v)", status, got, err)
	}
}

func TestCreateAlwaysStartsInDraft(t *testing.T) {
	f := newFixture(t)
	trainer := f.user(t, model.RoleTrainer)

	for _, requested := range []model.TrainingStatus{"", model.StatusScheduled, model.StatusCompleted, model.StatusInProgress} {
		tr, err := f.svc.Create(context.Background(), CreateInput{
			Name:      "Kubernetes",
			StartDate: f.now,
			EndDate:   f.now.Add(time.Hour),
			Mode:      model.ModeOffline,
			Location:  "Room 1",
			Status:    requested,
		}, trainer)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if tr.Status != model.StatusDraft {
			t.Fatalf("requested %q: want=DRAFT got=%s", requested, tr.Status)
		}
		if tr.TrainerID != trainer.ID || tr.CreatedByID != trainer.ID {
			t.Fatalf("trainer should default to actor: %+v", tr.Training)
		}
		if tr.Trainer == nil || tr.Trainer.ID != trainer.ID {
			t.Fatalf("trainer summary missing: %+v", tr.Trainer)
		}
	}
	if got := f.auditor.actions(); len(got) != 4 || got[0] != "CREATE:Training" {
		t.Fatalf("unexpected audit trail: %v", got)
	}
}

func TestCreateRejectsParticipants(t *testing.T) {
	f := newFixture(t)
	p := f.user(t, model.RoleParticipant)
	_, err := f.svc.Create(context.Background(), CreateInput{
		Name: "x", StartDate: f.now, EndDate: f.now, Mode: model.ModeOnline, MeetingLink: "https://m.example.com",
	}, p)
	wantStatus(t, err, http.StatusForbidden)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, model.RoleAdmin)
	base := CreateInput{Name: "Go", StartDate: f.now, EndDate: f.now.Add(time.Hour), Mode: model.ModeHybrid,
		Location: "HQ", MeetingLink: "https://meet.example.com/x"}

	cases := map[string]func(in *CreateInput){
		"missing name":          func(in *CreateInput) { in.Name = "" },
		"end before start":      func(in *CreateInput) { in.EndDate = f.now.Add(-time.Hour) },
		"unknown mode":          func(in *CreateInput) { in.Mode = "CARRIER_PIGEON" },
		"hybrid needs location": func(in *CreateInput) { in.Location = "" },
		"hybrid needs link":     func(in *CreateInput) { in.MeetingLink = "" },
		"bad capacity":          func(in *CreateInput) { zero := 0; in.MaxParticipants = &zero },
	}
	for name, mutate := range cases {
		in := base
		mutate(&in)
		_, err := f.svc.Create(context.Background(), in, admin)
		if apperr.StatusOf(err) != http.StatusBadRequest {
			t.Fatalf("%s: want 400 got=%v", name, err)
		}
	}
	if _, err := f.svc.Create(context.Background(), base, admin); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
}

func TestCreateSurvivesAuditFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.auditor = panickingAuditor{}
	admin := f.user(t, model.RoleAdmin)
	tr := f.training(t, admin, 0)
	if tr.ID == "" {
		t.Fatal("training not created")
	}
}

func TestUpdateRequiresAdminOrCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, model.RoleTrainer)
	other := f.user(t, model.RoleTrainer)
	admin := f.user(t, model.RoleAdmin)
	tr := f.training(t, owner, 0)

	name := "Renamed"
	_, err := f.svc.Update(ctx, tr.ID, UpdateInput{Name: &name}, other)
	wantStatus(t, err, http.StatusForbidden)

	if _, err := f.svc.Update(ctx, tr.ID, UpdateInput{Name: &name}, owner); err != nil {
		t.Fatalf("owner update: %v", err)
	}
	desc := "by admin"
	got, err := f.svc.Update(ctx, tr.ID, UpdateInput{Description: &desc}, admin)
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if got.Name != "Renamed" || got.Description != "by admin" {
		t.Fatalf("patch not applied: %+v", got.Training)
	}

	_, err = f.svc.Update(ctx, "missing", UpdateInput{Name: &name}, admin)
	wantStatus(t, err, http.StatusNotFound)
}

func TestRescheduleNotifiesEveryEnrollee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, model.RoleAdmin)
	tr := f.training(t, admin, 0)
	for i := 0; i < 3; i++ {
		if _, err := f.svc.Enroll(ctx, tr.ID, f.user(t, model.RoleParticipant).ID); err != nil {
			t.Fatalf("enroll: %v", err)
		}
	}

	same := tr.StartDate
	if _, err := f.svc.Update(ctx, tr.ID, UpdateInput{StartDate: &same}, admin); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n := len(f.notifier.titled("Training Rescheduled")); n != 0 {
		t.Fatalf("unchanged start date must not notify, got=%d", n)
	}

	moved := tr.StartDate.Add(24 * time.Hour)
	if _, err := f.svc.Update(ctx, tr.ID, UpdateInput{StartDate: &moved}, admin); err != nil {
		t.Fatalf("update: %v", err)
	}
	notices := f.notifier.titled("Training Rescheduled")
	if len(notices) != 3 {
		t.Fatalf("want=3 got=%d", len(notices))
	}
	want := "Go Fundamentals has been rescheduled from Mar 5, 2026 to Mar 6, 2026."
	if notices[0].Message != want || notices[0].Type != model.SeverityWarning || notices[0].Link != "/trainings/"+tr.ID {
		t.Fatalf("unexpected notice: %+v", notices[0])
	}
	last := f.auditor.entries[len(f.auditor.entries)-1]
	changes, _ := last.Details["changes"].(map[string]any)
	if last.Action != audit.ActionUpdate || changes["start_date"] == nil {
		t.Fatalf("unexpected audit entry: %+v", last)
	}
}

func TestRescheduleSucceedsWhenNotifierFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, model.RoleAdmin)
	tr := f.training(t, admin, 0)
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Enroll(ctx, tr.ID, f.user(t, model.RoleParticipant).ID); err != nil {
			t.Fatalf("enroll: %v", err)
		}
	}
	f.notifier.err = errors.New("notification store down")

	moved := tr.StartDate.Add(12 * time.Hour)
	got, err := f.svc.Update(ctx, tr.ID, UpdateInput{StartDate: &moved}, admin)
	if err != nil {
		t.Fatalf("update must succeed: %v", err)
	}
	if !got.StartDate.Equal(moved) {
		t.Fatalf("want=%v got=%v", moved, got.StartDate)
	}
	if n := len(f.notifier.titled("Training Rescheduled")); n != 2 {
		t.Fatalf("every enrollee should still be attempted, got=%d", n)
	}
}

func TestUpdateStatusFollowsTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, model.RoleAdmin)
	tr := f.training(t, admin, 0)

	_, err := f.svc.Transition(ctx, tr.ID, model.StatusCompleted, admin)
	wantStatus(t, err, http.StatusConflict)

	for _, next := range []model.TrainingStatus{model.StatusScheduled, model.StatusInProgress, model.StatusCompleted} {
		got, err := f.svc.Transition(ctx, tr.ID, next, admin)
		if err != nil {
			t.Fatalf("to %s: %v", next, err)
		}
		if got.Status != next {
			t.Fatalf("want=%s got=%s", next, got.Status)
		}
	}
	_, err = f.svc.Transition(ctx, tr.ID, model.StatusDraft, admin)
	wantStatus(t, err, http.StatusConflict)
	_, err = f.svc.Transition(ctx, tr.ID, "ARCHIVED", admin)
	wantStatus(t, err, http.StatusBadRequest)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to model.TrainingStatus
		want     bool
	}{
		{model.StatusDraft, model.StatusScheduled, true},
		{model.StatusDraft, model.StatusInProgress, false},
		{model.StatusScheduled, model.StatusDraft, true},
		{model.StatusInProgress, model.StatusCompleted, true},
		{model.StatusInProgress, model.StatusScheduled, false},
		{model.StatusCancelled, model.StatusDraft, true},
		{model.StatusCompleted, model.StatusCancelled, false},
		{model.StatusCompleted, model.StatusCompleted, true},
		{"BOGUS", "BOGUS", false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Fatalf("%s->%s want=%v got=%v", c.from, c.to, c.want, got)
		}
	}
}

func TestRemoveIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.user(t, model.RoleTrainer)
	admin := f.user(t, model.RoleAdmin)
	tr := f.training(t, creator, 0)

	wantStatus(t, f.svc.Remove(ctx, tr.ID, creator), http.StatusForbidden)
	if err := f.svc.Remove(ctx, tr.ID, admin); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, err := f.svc.FindOne(ctx, tr.ID)
	wantStatus(t, err, http.StatusNotFound)
	wantStatus(t, f.svc.Remove(ctx, tr.ID, admin), http.StatusNotFound)
}

func TestFindAllServesCacheUntilWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, model.RoleAdmin)
	f.training(t, admin, 0)

	first, err := f.svc.FindAll(ctx, model.TrainingFilter{})
	if err != nil || first.Pagination.Total != 1 {
		t.Fatalf("want total=1 got=%+v err=%v", first.Pagination, err)
	}

	// A write that bypasses the engine is invisible while the listing is cached.
	direct := first.Data[0].Training
	direct.ID = ""
	if err := f.repo.CreateTraining(ctx, &direct); err != nil {
		t.Fatalf("direct insert: %v", err)
	}
	cached, _ := f.svc.FindAll(ctx, model.TrainingFilter{})
	if cached.Pagination.Total != 1 {
		t.Fatalf("want cached total=1 got=%d", cached.Pagination.Total)
	}

	f.training(t, admin, 0)
	fresh, _ := f.svc.FindAll(ctx, model.TrainingFilter{})
	if fresh.Pagination.Total != 3 || fresh.Pagination.TotalPages != 1 {
		t.Fatalf("want fresh total=3 got=%+v", fresh.Pagination)
	}
}

func TestFindAllDegradesWithoutCache(t *testing.T) {
	f := newFixture(t)
	f.svc.cache = cache.Noop{}
	admin := f.user(t, model.RoleAdmin)
	for i := 0; i < 12; i++ {
		f.training(t, admin, 0)
	}
	page, err := f.svc.FindAll(context.Background(), model.TrainingFilter{Page: 2})
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(page.Data) != 2 || page.Pagination.Total != 12 || page.Pagination.TotalPages != 2 || page.Pagination.Limit != model.DefaultLimit {
		t.Fatalf("unexpected page: len=%d %+v", len(page.Data), page.Pagination)
	}
}

func TestFindOneIsStableAcrossCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, model.RoleAdmin)
	tr := f.training(t, admin, 0)
	p := f.user(t, model.RoleParticipant)
	if _, err := f.svc.Enroll(ctx, tr.ID, p.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	first, err := f.svc.FindOne(ctx, tr.ID)
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	second, err := f.svc.FindOne(ctx, tr.ID)
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	direct, _ := f.svc.loadDetail(ctx, tr.ID)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	c, _ := json.Marshal(direct)
	if string(a) != string(b) || string(a) != string(c) {
		t.Fatalf("detail diverged:\n%s\n%s\n%s", a, b, c)
	}
	if len(first.Enrollments) != 1 || first.Enrollments[0].User == nil || first.Count.Enrollments != 1 {
		t.Fatalf("unexpected detail: %+v", first)
	}
}

func TestChildWritesInvalidateDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, model.RoleAdmin)
	tr := f.training(t, admin, 0)
	if _, err := f.svc.FindOne(ctx, tr.ID); err != nil {
		t.Fatalf("find one: %v", err)
	}
	p := f.user(t, model.RoleParticipant)
	if _, err := f.svc.Enroll(ctx, tr.ID, p.ID); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	d, _ := f.svc.FindOne(ctx, tr.ID)
	if len(d.Enrollments) != 1 {
		t.Fatalf("stale detail after enrollment: %d enrollments", len(d.Enrollments))
	}
}

func TestGetStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, model.RoleAdmin)
	tr := f.training(t, admin, 0)

	empty, err := f.svc.GetStats(ctx, tr.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if empty != (Stats{}) {
		t.Fatalf("want zero stats got=%+v", empty)
	}

	var users []Actor
	for i := 0; i < 3; i++ {
		u := f.user(t, model.RoleParticipant)
		users = append(users, u)
		if _, err := f.svc.Enroll(ctx, tr.ID, u.ID); err != nil {
			t.Fatalf("enroll: %v", err)
		}
	}
	if _, err := f.svc.MarkComplete(ctx, tr.ID, users[0].ID, admin); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.SelfCheckIn(ctx, tr.ID, users[0].ID); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := f.svc.MarkAttendance(ctx, tr.ID, AttendanceInput{UserID: users[1].ID, Status: model.AttendanceLate}, admin.ID); err != nil {
		t.Fatalf("mark: %v", err)
	}
	for i, rating := range []int{4, 5} {
		if _, err := f.svc.SubmitFeedback(ctx, tr.ID, users[i].ID, FeedbackInput{Rating: rating}); err != nil {
			t.Fatalf("feedback: %v", err)
		}
	}

	st, err := f.svc.GetStats(ctx, tr.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalEnrollments != 3 || st.CompletedEnrollments != 1 || st.TotalAttendance != 2 || st.TotalFeedbacks != 2 {
		t.Fatalf("unexpected counts: %+v", st)
	}
	if st.AvgRating != 4.5 || st.AttendanceRate < 33.3 || st.AttendanceRate > 33.4 {
		t.Fatalf("unexpected rates: %+v", st)
	}
}

func TestAuthorizeTable(t *testing.T) {
	admin := Actor{ID: "a", Role: model.RoleAdmin}
	trainer := Actor{ID: "t", Role: model.RoleTrainer}
	participant := Actor{ID: "p", Role: model.RoleParticipant}

	cases := []struct {
		op    Operation
		actor Actor
		owner string
		ok    bool
	}{
		{OpCreateTraining, trainer, "", true},
		{OpCreateTraining, participant, "", false},
		{OpUpdateTraining, trainer, "t", true},
		{OpUpdateTraining, trainer, "someone", false},
		{OpUpdateTraining, admin, "someone", true},
		{OpDeleteTraining, trainer, "t", false},
		{OpBulkTrainings, admin, "", true},
		{OpDeleteMaterial, trainer, "t", true},
		{OpDeleteMaterial, participant, "p", false},
		{"unknown", admin, "", false},
	}
	for _, c := range cases {
		err := Authorize(c.op, c.actor, c.owner)
		if (err == nil) != c.ok {
			t.Fatalf("%s as %s owner=%q: want ok=%v got=%v", c.op, c.actor.Role, c.owner, c.ok, err)
		}
	}
	if roles := Roles(OpUpdateTraining); len(roles) != 2 {
		t.Fatalf("want admin and trainer got=%v", roles)
	}
}
