package training

import (
	"context"
	"fmt"
	"io"

	"trainflow/internal/apperr"
	"trainflow/internal/audit"
	"trainflow/internal/model"
	"trainflow/internal/notify"
)

const entityMaterial = "TrainingMaterial"

// MaterialInput describes a material. IsRequired defaults to true.
type MaterialInput struct {
	Name         string             `json:"name" validate:"required,max=200"`
	Description  string             `json:"description"`
	Type         model.MaterialType `json:"type" validate:"required,oneof=PRE_WORK POST_TRAINING"`
	ExternalLink string             `json:"external_link" validate:"omitempty,url"`
	IsRequired   *bool              `json:"is_required"`
}

// Upload is a file sent along with a material.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// CreateMaterial stores a material and its optional file. Pre-work added to a
// training that already has enrollees is distributed right away.
func (s *Service) CreateMaterial(ctx context.Context, trainingID string, in MaterialInput, file *Upload, actor Actor) (model.Material, error) {
	if err := Authorize(OpCreateMaterial, actor, ""); err != nil {
		return model.Material{}, err
	}
	if err := s.check(in); err != nil {
		return model.Material{}, err
	}
	t, err := s.repo.GetTraining(ctx, trainingID)
	if err != nil {
		return model.Material{}, notFound(err, "Training not found")
	}

	m := model.Material{
		TrainingID:   trainingID,
		Name:         in.Name,
		Description:  in.Description,
		Type:         in.Type,
		ExternalLink: in.ExternalLink,
		IsRequired:   in.IsRequired == nil || *in.IsRequired,
		CreatedAt:    s.clock(),
	}
	if file != nil {
		if s.storage == nil {
			return model.Material{}, apperr.BadRequest("file uploads are not configured")
		}
		obj, err := s.storage.Put(ctx, file.Filename, file.ContentType, file.Body)
		if err != nil {
			return model.Material{}, fmt.Errorf("store material file: %w", err)
		}
		m.FileURL, m.FileKey, m.FileSize = obj.URL, obj.Key, obj.Size
		m.FileName, m.MimeType = file.Filename, file.ContentType
	}
	if err := s.repo.CreateMaterial(ctx, &m); err != nil {
		return model.Material{}, notFound(err, "Training not found")
	}
	s.record(ctx, audit.Entry{
		UserID: actor.ID, Action: audit.ActionCreate, EntityType: entityMaterial, EntityID: m.ID,
		Details: map[string]any{"training_id": trainingID, "type": m.Type},
	})

	if m.Type == model.MaterialPreWork && t.Count.Enrollments > 0 {
		s.distribute(ctx, t.Training, &m)
	}
	s.invalidate(ctx, trainingID)
	return m, nil
}

// distribute notifies and emails every enrollee about m, then stamps it distributed.
func (s *Service) distribute(ctx context.Context, t model.Training, m *model.Material) {
	enrollments, err := s.repo.ListEnrollments(ctx, t.ID)
	if err != nil {
		s.bestEffort("distribute", func() error { return err }, "material_id", m.ID)
		return
	}
	for _, e := range enrollments {
		s.notifyUser(ctx, notify.Notice{
			UserID:  e.UserID,
			Title:   "New Pre-work Material Available",
			Message: fmt.Sprintf(`New material "%s" is available for %s`, m.Name, t.Name),
			Type:    model.SeverityInfo,
			Link:    "/trainings/" + t.ID + "/materials",
		})
		s.bestEffort("mail", func() error {
			to, err := s.recipient(ctx, e)
			if err != nil {
				return err
			}
			return s.mailer.SendMaterialNotification(ctx, to, t, *m)
		}, "material_id", m.ID, "user_id", e.UserID)
	}
	now := s.clock()
	s.bestEffort("distribute", func() error {
		if err := s.repo.MarkMaterialDistributed(ctx, m.ID, now); err != nil {
			return err
		}
		m.DistributedAt = &now
		return nil
	}, "material_id", m.ID)
}

// ListMaterials returns a training's materials, newest first. An empty typ lists all.
func (s *Service) ListMaterials(ctx context.Context, trainingID string, typ model.MaterialType) ([]model.Material, error) {
	list, err := s.repo.ListMaterials(ctx, trainingID, typ)
	if list == nil {
		list = []model.Material{}
	}
	return list, err
}

// RemoveMaterial deletes a material. Admins and the training's trainer may remove it.
func (s *Service) RemoveMaterial(ctx context.Context, id string, actor Actor) error {
	m, err := s.repo.GetMaterial(ctx, id)
	if err != nil {
		return notFound(err, "Material not found")
	}
	t, err := s.repo.GetTraining(ctx, m.TrainingID)
	if err != nil {
		return notFound(err, "Material not found")
	}
	if err := Authorize(OpDeleteMaterial, actor, t.TrainerID); err != nil {
		return err
	}
	if err := s.repo.DeleteMaterial(ctx, id); err != nil {
		return notFound(err, "Material not found")
	}
	if m.FileKey != "" && s.storage != nil {
		s.bestEffort("storage", func() error { return s.storage.Delete(ctx, m.FileKey) }, "material_id", id)
	}
	s.record(ctx, audit.Entry{UserID: actor.ID, Action: audit.ActionDelete, EntityType: entityMaterial, EntityID: id})
	s.invalidate(ctx, m.TrainingID)
	return nil
}
