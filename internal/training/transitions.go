package training

import (
	"fmt"

	"trainflow/internal/apperr"
	"trainflow/internal/model"
)

var transitions = map[model.TrainingStatus][]model.TrainingStatus{
	model.StatusDraft:      {model.StatusScheduled, model.StatusCancelled},
	model.StatusScheduled:  {model.StatusInProgress, model.StatusCancelled, model.StatusDraft},
	model.StatusInProgress: {model.StatusCompleted, model.StatusCancelled},
	model.StatusCancelled:  {model.StatusDraft},
	model.StatusCompleted:  nil,
}

// ValidStatus reports whether s is a known training status.
func ValidStatus(s model.TrainingStatus) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a training may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to model.TrainingStatus) bool {
	if from == to {
		return ValidStatus(to)
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to model.TrainingStatus) error {
	if !ValidStatus(to) {
		return apperr.BadRequest(fmt.Sprintf("Unknown status: %s", to))
	}
	if !CanTransition(from, to) {
		return apperr.Conflict(fmt.Sprintf("Cannot change status from %s to %s", from, to))
	}
	return nil
}
