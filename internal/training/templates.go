package training

import (
	"context"
	"time"

	"trainflow/internal/apperr"
	"trainflow/internal/audit"
	"trainflow/internal/model"
)

const entityTemplate = "TrainingTemplate"

// TemplateInput creates or replaces a training template.
type TemplateInput struct {
	Name        string             `json:"name" validate:"required,max=200"`
	Description string             `json:"description"`
	Category    string             `json:"category" validate:"max=100"`
	Tags        []string           `json:"tags"`
	Data        model.TemplateData `json:"template_data"`
	IsPublic    bool               `json:"is_public"`
}

// FromTemplateInput carries the fields a template cannot supply.
// Non-empty overrides replace the template's values.
type FromTemplateInput struct {
	StartDate       time.Time  `json:"start_date" validate:"required"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	Name            string     `json:"name,omitempty"`
	Description     string     `json:"description,omitempty"`
	Location        string     `json:"location,omitempty"`
	MeetingLink     string     `json:"meeting_link,omitempty"`
	MaxParticipants *int       `json:"max_participants,omitempty"`
	TrainerID       string     `json:"trainer_id,omitempty"`
}

func (s *Service) checkTemplate(in TemplateInput) error {
	if err := s.check(in); err != nil {
		return err
	}
	switch in.Data.Mode {
	case "", model.ModeOnline, model.ModeOffline, model.ModeHybrid:
	default:
		return apperr.BadRequest("template_data.mode must be one of [ONLINE OFFLINE HYBRID]")
	}
	if in.Data.DurationMinutes < 0 {
		return apperr.BadRequest("template_data.duration_minutes must not be negative")
	}
	return checkCapacity(in.Data.MaxParticipants)
}

func (s *Service) CreateTemplate(ctx context.Context, in TemplateInput, actor Actor) (model.TrainingTemplate, error) {
	if err := Authorize(OpCreateTemplate, actor, ""); err != nil {
		return model.TrainingTemplate{}, err
	}
	if err := s.checkTemplate(in); err != nil {
		return model.TrainingTemplate{}, err
	}
	now := s.clock()
	t := model.TrainingTemplate{
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Tags:        tagsOrEmpty(in.Tags),
		Data:        in.Data,
		IsPublic:    in.IsPublic,
		CreatedByID: actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateTemplate(ctx, &t); err != nil {
		return model.TrainingTemplate{}, notFound(err, "User not found")
	}
	s.record(ctx, audit.Entry{
		UserID: actor.ID, Action: audit.ActionCreate, EntityType: entityTemplate, EntityID: t.ID,
		Details: map[string]any{"name": t.Name},
	})
	return s.GetTemplate(ctx, t.ID)
}

// ListTemplates returns matching templates, newest first.
func (s *Service) ListTemplates(ctx context.Context, f model.TemplateFilter) ([]model.TrainingTemplate, error) {
	list, err := s.repo.ListTemplates(ctx, f)
	if list == nil {
		list = []model.TrainingTemplate{}
	}
	return list, err
}

func (s *Service) GetTemplate(ctx context.Context, id string) (model.TrainingTemplate, error) {
	t, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return model.TrainingTemplate{}, notFound(err, "Template not found")
	}
	return t, nil
}

// UpdateTemplate replaces a template's content. Trainers may only edit their own.
func (s *Service) UpdateTemplate(ctx context.Context, id string, in TemplateInput, actor Actor) (model.TrainingTemplate, error) {
	cur, err := s.GetTemplate(ctx, id)
	if err != nil {
		return model.TrainingTemplate{}, err
	}
	if err := Authorize(OpManageTemplate, actor, cur.CreatedByID); err != nil {
		return model.TrainingTemplate{}, err
	}
	if err := s.checkTemplate(in); err != nil {
		return model.TrainingTemplate{}, err
	}
	cur.Name, cur.Description, cur.Category = in.Name, in.Description, in.Category
	cur.Tags, cur.Data, cur.IsPublic = tagsOrEmpty(in.Tags), in.Data, in.IsPublic
	cur.UpdatedAt = s.clock()
	if err := s.repo.UpdateTemplate(ctx, &cur); err != nil {
		return model.TrainingTemplate{}, notFound(err, "Template not found")
	}
	s.record(ctx, audit.Entry{
		UserID: actor.ID, Action: audit.ActionUpdate, EntityType: entityTemplate, EntityID: id,
		Details: map[string]any{"name": cur.Name},
	})
	return s.GetTemplate(ctx, id)
}

func (s *Service) DeleteTemplate(ctx context.Context, id string, actor Actor) error {
	cur, err := s.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if err := Authorize(OpManageTemplate, actor, cur.CreatedByID); err != nil {
		return err
	}
	if err := s.repo.DeleteTemplate(ctx, id); err != nil {
		return notFound(err, "Template not found")
	}
	s.record(ctx, audit.Entry{
		UserID: actor.ID, Action: audit.ActionDelete, EntityType: entityTemplate, EntityID: id,
		Details: map[string]any{"name": cur.Name},
	})
	return nil
}

// CreateFromTemplate creates a DRAFT training from a template and counts the use.
// Without an explicit end date the template's duration is added to the start.
func (s *Service) CreateFromTemplate(ctx context.Context, templateID string, in FromTemplateInput, actor Actor) (model.TrainingSummary, error) {
	tpl, err := s.GetTemplate(ctx, templateID)
	if err != nil {
		return model.TrainingSummary{}, err
	}
	if err := s.check(in); err != nil {
		return model.TrainingSummary{}, err
	}
	d := tpl.Data
	ci := CreateInput{
		Name:            firstNonEmpty(in.Name, d.Name, tpl.Name),
		Description:     firstNonEmpty(in.Description, d.Description, tpl.Description),
		StartDate:       in.StartDate,
		Mode:            d.Mode,
		Location:        firstNonEmpty(in.Location, d.Location),
		MeetingLink:     firstNonEmpty(in.MeetingLink, d.MeetingLink),
		MaxParticipants: d.MaxParticipants,
		TrainerID:       in.TrainerID,
	}
	if in.MaxParticipants != nil {
		ci.MaxParticipants = in.MaxParticipants
	}
	switch {
	case in.EndDate != nil:
		ci.EndDate = *in.EndDate
	default:
		ci.EndDate = in.StartDate.Add(time.Duration(d.DurationMinutes) * time.Minute)
	}

	created, err := s.Create(ctx, ci, actor)
	if err != nil {
		return model.TrainingSummary{}, err
	}
	s.bestEffort("template_usage", func() error {
		return s.repo.IncrementTemplateUsage(ctx, templateID)
	}, "template_id", templateID)
	return created, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
