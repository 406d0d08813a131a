package training

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"trainflow/internal/apperr"
	"trainflow/internal/audit"
	"trainflow/internal/cache"
	"trainflow/internal/model"
	"trainflow/internal/notify"
)

const entityTraining = "Training"

// CreateInput is the payload of Create. Status is accepted but ignored.
type CreateInput struct {
	Name            string               `json:"name" validate:"required,max=200"`
	Description     string               `json:"description"`
	StartDate       time.Time            `json:"start_date" validate:"required"`
	EndDate         time.Time            `json:"end_date" validate:"required,gtefield=StartDate"`
	Mode            model.Mode           `json:"mode" validate:"required,oneof=ONLINE OFFLINE HYBRID"`
	Location        string               `json:"location"`
	MeetingLink     string               `json:"meeting_link" validate:"omitempty,url"`
	Status          model.TrainingStatus `json:"status"`
	MaxParticipants *int                 `json:"max_participants" validate:"omitempty,min=1"`
	TrainerID       string               `json:"trainer_id"`
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Name            *string               `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description     *string               `json:"description,omitempty"`
	StartDate       *time.Time            `json:"start_date,omitempty"`
	EndDate         *time.Time            `json:"end_date,omitempty"`
	Mode            *model.Mode           `json:"mode,omitempty" validate:"omitempty,oneof=ONLINE OFFLINE HYBRID"`
	Location        *string               `json:"location,omitempty"`
	MeetingLink     *string               `json:"meeting_link,omitempty" validate:"omitempty,url"`
	Status          *model.TrainingStatus `json:"status,omitempty"`
	MaxParticipants *int                  `json:"max_participants,omitempty" validate:"omitempty,min=1"`
	TrainerID       *string               `json:"trainer_id,omitempty"`
}

// changes returns the supplied fields keyed by their JSON names.
func (in UpdateInput) changes() map[string]any {
	out := map[string]any{}
	if in.Name != nil {
		out["name"] = *in.Name
	}
	if in.Description != nil {
		out["description"] = *in.Description
	}
	if in.StartDate != nil {
		out["start_date"] = *in.StartDate
	}
	if in.EndDate != nil {
		out["end_date"] = *in.EndDate
	}
	if in.Mode != nil {
		out["mode"] = *in.Mode
	}
	if in.Location != nil {
		out["location"] = *in.Location
	}
	if in.MeetingLink != nil {
		out["meeting_link"] = *in.MeetingLink
	}
	if in.Status != nil {
		out["status"] = *in.Status
	}
	if in.MaxParticipants != nil {
		out["max_participants"] = *in.MaxParticipants
	}
	if in.TrainerID != nil {
		out["trainer_id"] = *in.TrainerID
	}
	return out
}

// Stats are the aggregates shown on a training's dashboard.
type Stats struct {
	TotalEnrollments     int     `json:"total_enrollments"`
	CompletedEnrollments int     `json:"completed_enrollments"`
	CompletionRate       float64 `json:"completion_rate"`
	TotalAttendance      int     `json:"total_attendance"`
	AttendanceRate       float64 `json:"attendance_rate"`
	TotalFeedbacks       int     `json:"total_feedbacks"`
	AvgRating            float64 `json:"avg_rating"`
}

func checkMode(mode model.Mode, location, meetingLink string) error {
	if mode.NeedsLocation() && location == "" {
		return apperr.BadRequest("location is required for OFFLINE and HYBRID trainings")
	}
	if mode.NeedsMeetingLink() && meetingLink == "" {
		return apperr.BadRequest("meeting_link is required for ONLINE and HYBRID trainings")
	}
	return nil
}

func checkCapacity(max *int) error {
	if max != nil && *max < 1 {
		return apperr.BadRequest("max_participants must be at least 1")
	}
	return nil
}

// Create stores a new training in DRAFT.
func (s *Service) Create(ctx context.Context, in CreateInput, actor Actor) (model.TrainingSummary, error) {
	if err := Authorize(OpCreateTraining, actor, ""); err != nil {
		return model.TrainingSummary{}, err
	}
	if err := s.check(in); err != nil {
		return model.TrainingSummary{}, err
	}
	if err := checkMode(in.Mode, in.Location, in.MeetingLink); err != nil {
		return model.TrainingSummary{}, err
	}
	if err := checkCapacity(in.MaxParticipants); err != nil {
		return model.TrainingSummary{}, err
	}
	trainerID := in.TrainerID
	if trainerID == "" {
		trainerID = actor.ID
	}
	now := s.clock()
	t := model.Training{
		Name:            in.Name,
		Description:     in.Description,
		StartDate:       in.StartDate.UTC(),
		EndDate:         in.EndDate.UTC(),
		Mode:            in.Mode,
		Location:        in.Location,
		MeetingLink:     in.MeetingLink,
		Status:          model.StatusDraft,
		MaxParticipants: in.MaxParticipants,
		TrainerID:       trainerID,
		CreatedByID:     actor.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateTraining(ctx, &t); err != nil {
		return model.TrainingSummary{}, notFound(err, "Trainer not found")
	}

	s.record(ctx, audit.Entry{
		UserID: actor.ID, Action: audit.ActionCreate, EntityType: entityTraining, EntityID: t.ID,
		Details: map[string]any{"name": t.Name},
	})
	s.invalidate(ctx, "")

	return s.loadSummary(ctx, t.ID)
}

// Update applies in to the training. Only admins and the creating trainer may update.
// Moving the start date notifies every enrollee.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput, actor Actor) (model.TrainingSummary, error) {
	current, err := s.repo.GetTraining(ctx, id)
	if err != nil {
		return model.TrainingSummary{}, notFound(err, "Training not found")
	}
	if err := Authorize(OpUpdateTraining, actor, current.CreatedByID); err != nil {
		return model.TrainingSummary{}, err
	}
	if err := s.check(in); err != nil {
		return model.TrainingSummary{}, err
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return model.TrainingSummary{}, apperr.BadRequest("name is required")
	}
	if err := checkCapacity(in.MaxParticipants); err != nil {
		return model.TrainingSummary{}, err
	}

	t := current.Training
	oldStart := t.StartDate
	if in.Name != nil {
		t.Name = *in.Name
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.StartDate != nil {
		t.StartDate = in.StartDate.UTC()
	}
	if in.EndDate != nil {
		t.EndDate = in.EndDate.UTC()
	}
	if in.Mode != nil {
		t.Mode = *in.Mode
	}
	if in.Location != nil {
		t.Location = *in.Location
	}
	if in.MeetingLink != nil {
		t.MeetingLink = *in.MeetingLink
	}
	if in.MaxParticipants != nil {
		t.MaxParticipants = in.MaxParticipants
	}
	if in.TrainerID != nil && *in.TrainerID != "" {
		t.TrainerID = *in.TrainerID
	}
	if in.Status != nil && *in.Status != t.Status {
		if err := checkTransition(t.Status, *in.Status); err != nil {
			return model.TrainingSummary{}, err
		}
		t.Status = *in.Status
	}
	if t.EndDate.Before(t.StartDate) {
		return model.TrainingSummary{}, apperr.BadRequest("end_date must not be before start_date")
	}
	if in.Mode != nil || in.Location != nil || in.MeetingLink != nil {
		if err := checkMode(t.Mode, t.Location, t.MeetingLink); err != nil {
			return model.TrainingSummary{}, err
		}
	}
	t.UpdatedAt = s.clock()
	if err := s.repo.UpdateTraining(ctx, &t); err != nil {
		return model.TrainingSummary{}, notFound(err, "Training not found")
	}

	if in.StartDate != nil && !oldStart.Equal(t.StartDate) {
		s.notifyReschedule(ctx, t, oldStart)
	}
	s.record(ctx, audit.Entry{
		UserID: actor.ID, Action: audit.ActionUpdate, EntityType: entityTraining, EntityID: id,
		Details: map[string]any{"changes": in.changes()},
	})
	s.invalidate(ctx, id)

	return s.loadSummary(ctx, id)
}

func (s *Service) notifyReschedule(ctx context.Context, t model.Training, oldStart time.Time) {
	enrollments, err := s.repo.ListEnrollments(ctx, t.ID)
	if err != nil {
		s.bestEffort("notify", func() error { return err }, "training_id", t.ID)
		return
	}
	msg := fmt.Sprintf("%s has been rescheduled from %s to %s.", t.Name, formatDate(oldStart), formatDate(t.StartDate))
	for _, e := range enrollments {
		s.notifyUser(ctx, notify.Notice{
			UserID:  e.UserID,
			Title:   "Training Rescheduled",
			Message: msg,
			Type:    model.SeverityWarning,
			Link:    "/trainings/" + t.ID,
		})
	}
}

func formatDate(t time.Time) string { return t.Format("Jan 2, 2006") }

// Transition moves a training to another lifecycle status.
func (s *Service) Transition(ctx context.Context, id string, to model.TrainingStatus, actor Actor) (model.TrainingSummary, error) {
	return s.Update(ctx, id, UpdateInput{Status: &to}, actor)
}

// Remove deletes a training and everything attached to it. Admin only.
func (s *Service) Remove(ctx context.Context, id string, actor Actor) error {
	if err := Authorize(OpDeleteTraining, actor, ""); err != nil {
		return err
	}
	if err := s.repo.DeleteTraining(ctx, id); err != nil {
		return notFound(err, "Training not found")
	}
	s.record(ctx, audit.Entry{UserID: actor.ID, Action: audit.ActionDelete, EntityType: entityTraining, EntityID: id})
	s.invalidate(ctx, id)
	return nil
}

// FindAll lists trainings matching f. Pages are cached per filter set.
func (s *Service) FindAll(ctx context.Context, f model.TrainingFilter) (model.Page[model.TrainingSummary], error) {
	f = f.Normalize()
	key := listKey(f)
	var page model.Page[model.TrainingSummary]
	if cache.GetJSON(ctx, s.cache, key, &page) {
		return page, nil
	}

	list, total, err := s.repo.ListTrainings(ctx, f)
	if err != nil {
		return page, err
	}
	if list == nil {
		list = []model.TrainingSummary{}
	}
	page = model.Page[model.TrainingSummary]{Data: list, Pagination: model.NewPagination(f.Page, f.Limit, total)}
	cache.SetJSON(ctx, s.cache, key, page, s.listTTL)
	return page, nil
}

// FindOne returns the full training graph, cached per id.
func (s *Service) FindOne(ctx context.Context, id string) (model.TrainingDetail, error) {
	var d model.TrainingDetail
	if cache.GetJSON(ctx, s.cache, detailKey(id), &d) {
		return d, nil
	}
	d, err := s.loadDetail(ctx, id)
	if err != nil {
		return d, err
	}
	cache.SetJSON(ctx, s.cache, detailKey(id), d, s.detailTTL)
	return d, nil
}

func (s *Service) loadDetail(ctx context.Context, id string) (model.TrainingDetail, error) {
	t, err := s.repo.GetTraining(ctx, id)
	if err != nil {
		return model.TrainingDetail{}, notFound(err, "Training not found")
	}
	d := model.TrainingDetail{Training: t.Training, Count: t.Count}
	if d.Materials, err = s.repo.ListMaterials(ctx, id, ""); err != nil {
		return d, err
	}
	if d.Enrollments, err = s.repo.ListEnrollments(ctx, id); err != nil {
		return d, err
	}
	if d.Attendance, err = s.repo.ListAttendance(ctx, id); err != nil {
		return d, err
	}
	if d.Feedbacks, err = s.repo.ListFeedback(ctx, id); err != nil {
		return d, err
	}
	if d.Materials == nil {
		d.Materials = []model.Material{}
	}
	if d.Enrollments == nil {
		d.Enrollments = []model.Enrollment{}
	}
	if d.Attendance == nil {
		d.Attendance = []model.Attendance{}
	}
	if d.Feedbacks == nil {
		d.Feedbacks = []model.Feedback{}
	}
	return d, nil
}

func (s *Service) loadSummary(ctx context.Context, id string) (model.TrainingSummary, error) {
	t, err := s.repo.GetTraining(ctx, id)
	return t, notFound(err, "Training not found")
}

// GetStats aggregates enrollment, attendance and feedback figures for a training.
func (s *Service) GetStats(ctx context.Context, id string) (Stats, error) {
	d, err := s.FindOne(ctx, id)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		TotalEnrollments: len(d.Enrollments),
		TotalAttendance:  len(d.Attendance),
		TotalFeedbacks:   len(d.Feedbacks),
	}
	for _, e := range d.Enrollments {
		if e.Status == model.EnrollmentCompleted {
			st.CompletedEnrollments++
		}
	}
	present := 0
	for _, a := range d.Attendance {
		if a.Status == model.AttendancePresent {
			present++
		}
	}
	ratings := 0
	for _, f := range d.Feedbacks {
		ratings += f.Rating
	}
	st.CompletionRate = percent(st.CompletedEnrollments, st.TotalEnrollments)
	st.AttendanceRate = percent(present, st.TotalEnrollments)
	if st.TotalFeedbacks > 0 {
		st.AvgRating = round1(float64(ratings) / float64(st.TotalFeedbacks))
	}
	return st, nil
}

// percent returns part/whole*100, or 0 when whole is 0.
func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
