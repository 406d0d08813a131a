package training

import (
	"context"
	"fmt"

	"trainflow/internal/apperr"
	"trainflow/internal/audit"
	"trainflow/internal/model"
)

// BulkAction is an operation applied to many trainings at once.
type BulkAction string

const (
	BulkDelete        BulkAction = "DELETE"
	BulkUpdateStatus  BulkAction = "UPDATE_STATUS"
	BulkUpdateMode    BulkAction = "UPDATE_MODE"
	BulkAssignTrainer BulkAction = "ASSIGN_TRAINER"
)

// BulkInput selects trainings and the action to run on each.
type BulkInput struct {
	TrainingIDs []string   `json:"training_ids"`
	Action      BulkAction `json:"action"`
	Data        struct {
		Status    model.TrainingStatus `json:"status,omitempty"`
		Mode      model.Mode           `json:"mode,omitempty"`
		TrainerID string               `json:"trainer_id,omitempty"`
	} `json:"data"`
}

type BulkFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type BulkResult struct {
	Total        int `json:"total"`
	SuccessCount int `json:"success_count"`
	FailedCount  int `json:"failed_count"`
	Results      struct {
		Success []string      `json:"success"`
		Failed  []BulkFailure `json:"failed"`
	} `json:"results"`
}

// BulkOperation applies in.Action to each training, collecting per-item
// outcomes instead of stopping at the first failure. Admin only.
func (s *Service) BulkOperation(ctx context.Context, in BulkInput, actor Actor) (BulkResult, error) {
	if err := Authorize(OpBulkTrainings, actor, ""); err != nil {
		return BulkResult{}, err
	}
	if len(in.TrainingIDs) == 0 {
		return BulkResult{}, apperr.BadRequest("No training IDs provided")
	}

	var res BulkResult
	res.Total = len(in.TrainingIDs)
	res.Results.Success = []string{}
	res.Results.Failed = []BulkFailure{}
	for _, id := range in.TrainingIDs {
		if err := s.bulkOne(ctx, id, in, actor); err != nil {
			res.Results.Failed = append(res.Results.Failed, BulkFailure{ID: id, Error: err.Error()})
			continue
		}
		res.Results.Success = append(res.Results.Success, id)
	}
	res.SuccessCount = len(res.Results.Success)
	res.FailedCount = len(res.Results.Failed)
	return res, nil
}

func (s *Service) bulkOne(ctx context.Context, id string, in BulkInput, actor Actor) error {
	if in.Action == BulkDelete {
		return s.Remove(ctx, id, actor)
	}

	current, err := s.repo.GetTraining(ctx, id)
	if err != nil {
		return notFound(err, "Training not found")
	}
	t := current.Training
	switch in.Action {
	case BulkUpdateStatus:
		if in.Data.Status == "" {
			return apperr.BadRequest("Status is required for UPDATE_STATUS action")
		}
		if err := checkTransition(t.Status, in.Data.Status); err != nil {
			return err
		}
		t.Status = in.Data.Status
	case BulkUpdateMode:
		switch in.Data.Mode {
		case "":
			return apperr.BadRequest("Mode is required for UPDATE_MODE action")
		case model.ModeOnline, model.ModeOffline, model.ModeHybrid:
		default:
			return apperr.BadRequest(fmt.Sprintf("Unknown mode: %s", in.Data.Mode))
		}
		t.Mode = in.Data.Mode
		if err := checkMode(t.Mode, t.Location, t.MeetingLink); err != nil {
			return err
		}
	case BulkAssignTrainer:
		if in.Data.TrainerID == "" {
			return apperr.BadRequest("Trainer ID is required for ASSIGN_TRAINER action")
		}
		t.TrainerID = in.Data.TrainerID
	default:
		return apperr.BadRequest(fmt.Sprintf("Unknown action: %s", in.Action))
	}

	t.UpdatedAt = s.clock()
	if err := s.repo.UpdateTraining(ctx, &t); err != nil {
		return notFound(err, "Training or trainer not found")
	}
	s.record(ctx, audit.Entry{
		UserID: actor.ID, Action: audit.ActionUpdate, EntityType: entityTraining, EntityID: id,
		Details: map[string]any{"bulk_action": string(in.Action)},
	})
	s.invalidate(ctx, id)
	return nil
}
