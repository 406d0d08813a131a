package training

import (
	"context"
	"errors"

	"trainflow/internal/apperr"
	"trainflow/internal/model"
	"trainflow/internal/store"
)

// FeedbackInput is a participant's rating of a training.
type FeedbackInput struct {
	Rating         int    `json:"rating" validate:"required,min=1,max=5"`
	TrainerRating  *int   `json:"trainer_rating" validate:"omitempty,min=1,max=5"`
	Comment        string `json:"comment" validate:"max=5000"`
	TrainerComment string `json:"trainer_comment" validate:"max=5000"`
}

// FeedbackAnalytics aggregates the feedback of a training.
type FeedbackAnalytics struct {
	Total              int         `json:"total"`
	AvgRating          float64     `json:"avg_rating"`
	AvgTrainerRating   float64     `json:"avg_trainer_rating"`
	RatingDistribution map[int]int `json:"rating_distribution"`
}

// SubmitFeedback stores the one feedback an enrollee may give.
func (s *Service) SubmitFeedback(ctx context.Context, trainingID, userID string, in FeedbackInput) (model.Feedback, error) {
	if err := s.check(in); err != nil {
		return model.Feedback{}, err
	}
	if _, err := s.repo.GetEnrollment(ctx, trainingID, userID); err != nil {
		return model.Feedback{}, notFound(err, "You are not enrolled in this training")
	}
	f := model.Feedback{
		TrainingID:     trainingID,
		UserID:         userID,
		Rating:         in.Rating,
		TrainerRating:  in.TrainerRating,
		Comment:        in.Comment,
		TrainerComment: in.TrainerComment,
		SubmittedAt:    s.clock(),
	}
	if err := s.repo.CreateFeedback(ctx, &f); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return model.Feedback{}, apperr.Conflict("Feedback already submitted")
		}
		return model.Feedback{}, notFound(err, "Training not found")
	}
	s.invalidate(ctx, trainingID)
	return f, nil
}

func (s *Service) ListFeedback(ctx context.Context, trainingID string) ([]model.Feedback, error) {
	list, err := s.repo.ListFeedback(ctx, trainingID)
	if list == nil {
		list = []model.Feedback{}
	}
	return list, err
}

// Analytics averages ratings to one decimal and counts each star value.
func (s *Service) Analytics(ctx context.Context, trainingID string) (FeedbackAnalytics, error) {
	list, err := s.repo.ListFeedback(ctx, trainingID)
	if err != nil {
		return FeedbackAnalytics{}, err
	}
	out := FeedbackAnalytics{Total: len(list), RatingDistribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	var sum, trainerSum, trainerCount int
	for _, f := range list {
		sum += f.Rating
		out.RatingDistribution[f.Rating]++
		if f.TrainerRating != nil {
			trainerSum += *f.TrainerRating
			trainerCount++
		}
	}
	if out.Total > 0 {
		out.AvgRating = round1(float64(sum) / float64(out.Total))
	}
	if trainerCount > 0 {
		out.AvgTrainerRating = round1(float64(trainerSum) / float64(trainerCount))
	}
	return out, nil
}
