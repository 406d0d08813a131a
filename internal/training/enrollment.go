package training

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trainflow/internal/apperr"
	"trainflow/internal/audit"
	"trainflow/internal/metrics"
	"trainflow/internal/model"
	"trainflow/internal/notify"
	"trainflow/internal/store"
)

const entityEnrollment = "Enrollment"

// Enroll admits userID to the training. Duplicate and over-capacity enrollments
// are rejected with a Conflict; the check and insert are atomic in the repository.
func (s *Service) Enroll(ctx context.Context, trainingID, userID string) (model.Enrollment, error) {
	t, err := s.repo.GetTraining(ctx, trainingID)
	if err != nil {
		metrics.Enrollments.WithLabelValues("not_found").Inc()
		return model.Enrollment{}, notFound(err, "Training not found")
	}
	return s.admit(ctx, t.Training, userID, userID)
}

// admit enrolls userID on behalf of actorID, who is recorded in the audit trail.
func (s *Service) admit(ctx context.Context, t model.Training, userID, actorID string) (model.Enrollment, error) {
	trainingID := t.ID
	e := model.Enrollment{
		TrainingID: trainingID,
		UserID:     userID,
		Status:     model.EnrollmentEnrolled,
		EnrolledAt: s.clock(),
	}
	if err := s.repo.CreateEnrollment(ctx, &e); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			metrics.Enrollments.WithLabelValues("duplicate").Inc()
			return model.Enrollment{}, apperr.Conflict("Already enrolled in this training")
		case errors.Is(err, store.ErrCapacityReached):
			metrics.Enrollments.WithLabelValues("full").Inc()
			return model.Enrollment{}, apperr.Conflict("Training is full")
		case errors.Is(err, store.ErrNotFound):
			metrics.Enrollments.WithLabelValues("not_found").Inc()
			return model.Enrollment{}, apperr.NotFound("User or training not found")
		}
		metrics.Enrollments.WithLabelValues("error").Inc()
		return model.Enrollment{}, err
	}
	metrics.Enrollments.WithLabelValues("admitted").Inc()
	s.record(ctx, audit.Entry{
		UserID: actorID, Action: audit.ActionEnroll, EntityType: entityEnrollment, EntityID: e.ID,
		Details: map[string]any{"training_id": trainingID, "user_id": userID},
	})
	s.invalidate(ctx, trainingID)

	if enrolled, err := s.repo.GetEnrollment(ctx, trainingID, userID); err == nil {
		e = enrolled
	}
	s.afterEnroll(ctx, t, e)
	return e, nil
}

// afterEnroll announces existing pre-work and confirms the enrollment by email.
func (s *Service) afterEnroll(ctx context.Context, t model.Training, e model.Enrollment) {
	preWork, err := s.repo.ListMaterials(ctx, t.ID, model.MaterialPreWork)
	if err != nil {
		s.bestEffort("notify", func() error { return err }, "training_id", t.ID)
	}
	for _, m := range preWork {
		s.notifyUser(ctx, notify.Notice{
			UserID:  e.UserID,
			Title:   "New Pre-work Material Available",
			Message: fmt.Sprintf(`New material "%s" is available for %s`, m.Name, t.Name),
			Type:    model.SeverityInfo,
			Link:    "/trainings/" + t.ID + "/materials",
		})
	}

	s.bestEffort("mail", func() error {
		to, err := s.recipient(ctx, e)
		if err != nil {
			return err
		}
		return s.mailer.SendEnrollmentConfirmation(ctx, to, t)
	}, "training_id", t.ID, "user_id", e.UserID)
}

func (s *Service) recipient(ctx context.Context, e model.Enrollment) (model.UserSummary, error) {
	if e.User != nil && e.User.Email != "" {
		return *e.User, nil
	}
	u, err := s.repo.GetUser(ctx, e.UserID)
	if err != nil {
		return model.UserSummary{}, err
	}
	return u.Summary(), nil
}

// BulkEnroll enrolls each user in order on behalf of actor, skipping the
// ones that fail. An unknown training fails the whole call.
func (s *Service) BulkEnroll(ctx context.Context, trainingID string, userIDs []string, actor Actor) ([]model.Enrollment, error) {
	t, err := s.repo.GetTraining(ctx, trainingID)
	if err != nil {
		return nil, notFound(err, "Training not found")
	}
	out := []model.Enrollment{}
	for _, id := range userIDs {
		e, err := s.admit(ctx, t.Training, id, actor.ID)
		if err != nil {
			s.log.Debug("bulk enroll skipped user", "training_id", trainingID, "user_id", id, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ImportEnrollments resolves emails to users and bulk-enrolls them.
// Unknown emails are skipped.
func (s *Service) ImportEnrollments(ctx context.Context, trainingID string, emails []string, actor Actor) ([]model.Enrollment, error) {
	if _, err := s.repo.GetTraining(ctx, trainingID); err != nil {
		return nil, notFound(err, "Training not found")
	}
	cleaned := make([]string, 0, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			cleaned = append(cleaned, e)
		}
	}
	if len(cleaned) == 0 {
		return []model.Enrollment{}, nil
	}
	users, err := s.repo.FindUsersByEmails(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	byEmail := make(map[string]string, len(users))
	for _, u := range users {
		byEmail[strings.ToLower(u.Email)] = u.ID
	}
	ids := make([]string, 0, len(users))
	seen := map[string]bool{}
	for _, email := range cleaned {
		if id, ok := byEmail[email]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return s.BulkEnroll(ctx, trainingID, ids, actor)
}

// MarkComplete sets the enrollment of userID to COMPLETED.
func (s *Service) MarkComplete(ctx context.Context, trainingID, userID string, actor Actor) (model.Enrollment, error) {
	e, err := s.repo.GetEnrollment(ctx, trainingID, userID)
	if err != nil {
		return model.Enrollment{}, notFound(err, "Enrollment not found")
	}
	now := s.clock()
	e.Status = model.EnrollmentCompleted
	e.CompletedAt = &now
	if err := s.repo.UpdateEnrollment(ctx, &e); err != nil {
		return model.Enrollment{}, notFound(err, "Enrollment not found")
	}
	s.record(ctx, audit.Entry{
		UserID: actor.ID, Action: audit.ActionComplete, EntityType: entityEnrollment, EntityID: e.ID,
		Details: map[string]any{"training_id": trainingID, "user_id": userID},
	})
	s.invalidate(ctx, trainingID)
	return e, nil
}

// CompletePreWork flags the user's pre-work as done.
func (s *Service) CompletePreWork(ctx context.Context, trainingID, userID string) (model.Enrollment, error) {
	e, err := s.repo.GetEnrollment(ctx, trainingID, userID)
	if err != nil {
		return model.Enrollment{}, notFound(err, "Enrollment not found")
	}
	if e.PreWorkCompleted {
		return e, nil
	}
	e.PreWorkCompleted = true
	if err := s.repo.UpdateEnrollment(ctx, &e); err != nil {
		return model.Enrollment{}, notFound(err, "Enrollment not found")
	}
	s.invalidate(ctx, trainingID)
	return e, nil
}

// RemoveEnrollment deletes the enrollment, freeing its seat.
func (s *Service) RemoveEnrollment(ctx context.Context, trainingID, userID string, actor Actor) error {
	if err := s.repo.DeleteEnrollment(ctx, trainingID, userID); err != nil {
		return notFound(err, "Enrollment not found")
	}
	s.record(ctx, audit.Entry{
		UserID: actor.ID, Action: audit.ActionDelete, EntityType: entityEnrollment,
		Details: map[string]any{"training_id": trainingID, "user_id": userID},
	})
	s.invalidate(ctx, trainingID)
	return nil
}

// ListEnrollments returns the training's enrollments, newest first.
func (s *Service) ListEnrollments(ctx context.Context, trainingID string) ([]model.Enrollment, error) {
	list, err := s.repo.ListEnrollments(ctx, trainingID)
	if list == nil {
		list = []model.Enrollment{}
	}
	return list, err
}

// UserEnrollments returns every enrollment of userID across trainings.
func (s *Service) UserEnrollments(ctx context.Context, userID string) ([]model.Enrollment, error) {
	list, err := s.repo.ListUserEnrollments(ctx, userID)
	if list == nil {
		list = []model.Enrollment{}
	}
	return list, err
}
