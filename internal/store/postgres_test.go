package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"trainflow/internal/model"
)

// newTestPostgres connects to TEST_DATABASE_URL and migrates the schema.
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := NewDB(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPostgres(db)
}

func pgUser(t *testing.T, p *Postgres, role model.Role) model.User {
	t.Helper()
	u := model.User{Email: uuid.NewString() + "@test.com", PasswordHash: "hash", FirstName: "Pg", LastName: "User", Role: role}
	if err := p.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("pgUser: %v", err)
	}
	return u
}

func TestPostgresEnrollmentAdmission(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()
	trainer := pgUser(t, p, model.RoleTrainer)
	capacity := 1
	tr := model.Training{
		Name: "Pg Training", StartDate: time.Now(), EndDate: time.Now().Add(time.Hour),
		Mode: model.ModeOnline, MeetingLink: "https://meet", Status: model.StatusScheduled,
		MaxParticipants: &capacity, TrainerID: trainer.ID, CreatedByID: trainer.ID,
	}
	if err := p.CreateTraining(ctx, &tr); err != nil {
		t.Fatalf("create training: %v", err)
	}
	t.Cleanup(func() { _ = p.DeleteTraining(context.Background(), tr.ID) })

	a := pgUser(t, p, model.RoleParticipant)
	b := pgUser(t, p, model.RoleParticipant)
	if err := p.CreateEnrollment(ctx, &model.Enrollment{TrainingID: tr.ID, UserID: a.ID, Status: model.EnrollmentEnrolled}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if err := p.CreateEnrollment(ctx, &model.Enrollment{TrainingID: tr.ID, UserID: a.ID, Status: model.EnrollmentEnrolled}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want=%v got=%v", ErrDuplicate, err)
	}
	if err := p.CreateEnrollment(ctx, &model.Enrollment{TrainingID: tr.ID, UserID: b.ID, Status: model.EnrollmentEnrolled}); !errors.Is(err, ErrCapacityReached) {
		t.Fatalf("want=%v got=%v", ErrCapacityReached, err)
	}

	got, err := p.GetTraining(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Count.Enrollments != 1 || got.Trainer == nil || got.Trainer.ID != trainer.ID {
		t.Fatalf("unexpected training: %+v", got)
	}
}

func TestPostgresAttendanceUpsert(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()
	trainer := pgUser(t, p, model.RoleTrainer)
	tr := model.Training{
		Name: "Pg Attendance", StartDate: time.Now(), EndDate: time.Now().Add(time.Hour),
		Mode: model.ModeOffline, Location: "HQ", Status: model.StatusInProgress,
		TrainerID: trainer.ID, CreatedByID: trainer.ID,
	}
	if err := p.CreateTraining(ctx, &tr); err != nil {
		t.Fatalf("create training: %v", err)
	}
	t.Cleanup(func() { _ = p.DeleteTraining(context.Background(), tr.ID) })
	u := pgUser(t, p, model.RoleParticipant)

	first := model.Attendance{TrainingID: tr.ID, UserID: u.ID, Status: model.AttendanceLate}
	if err := p.UpsertAttendance(ctx, &first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	second := model.Attendance{TrainingID: tr.ID, UserID: u.ID, Status: model.AttendancePresent}
	if err := p.UpsertAttendance(ctx, &second); err != nil {
		t.Fatalf("update: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("want=%s got=%s", first.ID, second.ID)
	}
}
