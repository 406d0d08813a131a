package training

import (
	"context"
	"sort"

	"trainflow/internal/apperr"
	"trainflow/internal/audit"
	"trainflow/internal/model"
)

const entityComment = "Comment"

// CommentInput is a new comment or reply on a training.
type CommentInput struct {
	Content  string `json:"content" validate:"required,max=5000"`
	ParentID string `json:"parent_id"`
}

// CommentEdit replaces the text of an existing comment.
type CommentEdit struct {
	Content string `json:"content" validate:"required,max=5000"`
}

// AddComment posts a comment on a training. Replies are one level deep.
func (s *Service) AddComment(ctx context.Context, trainingID string, in CommentInput, actor Actor) (model.Comment, error) {
	if err := s.check(in); err != nil {
		return model.Comment{}, err
	}
	if _, err := s.repo.GetTraining(ctx, trainingID); err != nil {
		return model.Comment{}, notFound(err, "Training not found")
	}
	if in.ParentID != "" {
		parent, err := s.repo.GetComment(ctx, in.ParentID)
		if err != nil {
			return model.Comment{}, notFound(err, "Parent comment not found")
		}
		if parent.TrainingID != trainingID {
			return model.Comment{}, apperr.BadRequest("Parent comment belongs to another training")
		}
		if parent.ParentID != "" {
			return model.Comment{}, apperr.BadRequest("Replies cannot be nested")
		}
	}
	c := model.Comment{
		TrainingID: trainingID,
		UserID:     actor.ID,
		ParentID:   in.ParentID,
		Content:    in.Content,
		CreatedAt:  s.clock(),
	}
	if err := s.repo.CreateComment(ctx, &c); err != nil {
		return model.Comment{}, notFound(err, "Training not found")
	}
	s.record(ctx, audit.Entry{
		UserID: actor.ID, Action: audit.ActionCreate, EntityType: entityComment, EntityID: c.ID,
		Details: map[string]any{"training_id": trainingID, "parent_id": in.ParentID},
	})
	return s.getComment(ctx, c.ID)
}

// ListComments returns the top-level comments of a training, newest first,
// each with its replies oldest first.
func (s *Service) ListComments(ctx context.Context, trainingID string) ([]model.Comment, error) {
	if _, err := s.repo.GetTraining(ctx, trainingID); err != nil {
		return nil, notFound(err, "Training not found")
	}
	flat, err := s.repo.ListComments(ctx, trainingID)
	if err != nil {
		return nil, err
	}
	replies := map[string][]model.Comment{}
	top := []model.Comment{}
	for _, c := range flat {
		if c.ParentID == "" {
			top = append(top, c)
			continue
		}
		replies[c.ParentID] = append(replies[c.ParentID], c)
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].CreatedAt.After(top[j].CreatedAt) })
	for i := range top {
		top[i].Replies = replies[top[i].ID]
	}
	return top, nil
}

// EditComment changes the text of the actor's own comment.
func (s *Service) EditComment(ctx context.Context, id string, in CommentEdit, actor Actor) (model.Comment, error) {
	if err := s.check(in); err != nil {
		return model.Comment{}, err
	}
	c, err := s.getComment(ctx, id)
	if err != nil {
		return model.Comment{}, err
	}
	if c.UserID != actor.ID {
		return model.Comment{}, apperr.Forbidden("You can only edit your own comments")
	}
	now := s.clock()
	c.Content, c.IsEdited, c.EditedAt = in.Content, true, &now
	if err := s.repo.UpdateComment(ctx, &c); err != nil {
		return model.Comment{}, notFound(err, "Comment not found")
	}
	return s.getComment(ctx, id)
}

// DeleteComment removes a comment and its replies. Admins may delete any comment.
func (s *Service) DeleteComment(ctx context.Context, id string, actor Actor) error {
	c, err := s.getComment(ctx, id)
	if err != nil {
		return err
	}
	if err := Authorize(OpDeleteComment, actor, c.UserID); err != nil {
		return err
	}
	if err := s.repo.DeleteComment(ctx, id); err != nil {
		return notFound(err, "Comment not found")
	}
	s.record(ctx, audit.Entry{
		UserID: actor.ID, Action: audit.ActionDelete, EntityType: entityComment, EntityID: id,
		Details: map[string]any{"training_id": c.TrainingID},
	})
	return nil
}

func (s *Service) getComment(ctx context.Context, id string) (model.Comment, error) {
	c, err := s.repo.GetComment(ctx, id)
	if err != nil {
		return model.Comment{}, notFound(err, "Comment not found")
	}
	return c, nil
}
