package store

import (
	"context"
	"sort"
	"strings"

	"trainflow/internal/model"
)

func (m *Memory) CreateTemplate(_ context.Context, t *model.TrainingTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[t.CreatedByID]; !ok {
		return ErrNotFound
	}
	ensureID(&t.ID)
	nowIfZero(&t.CreatedAt)
	t.UpdatedAt = t.CreatedAt
	m.templates[t.ID] = cloneTemplate(*t)
	return nil
}

func (m *Memory) GetTemplate(_ context.Context, id string) (model.TrainingTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return model.TrainingTemplate{}, ErrNotFound
	}
	t = cloneTemplate(t)
	t.CreatedBy = m.userSummary(t.CreatedByID)
	return t, nil
}

func (m *Memory) ListTemplates(_ context.Context, f model.TemplateFilter) ([]model.TrainingTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search := strings.ToLower(f.Search)
	var out []model.TrainingTemplate
	for _, t := range m.templates {
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.IsPublic != nil && t.IsPublic != *f.IsPublic {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Name), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		t = cloneTemplate(t)
		t.CreatedBy = m.userSummary(t.CreatedByID)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateTemplate(_ context.Context, t *model.TrainingTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.templates[t.ID]
	if !ok {
		return ErrNotFound
	}
	nowIfZero(&t.UpdatedAt)
	t.CreatedByID, t.CreatedAt, t.UsageCount = cur.CreatedByID, cur.CreatedAt, cur.UsageCount
	m.templates[t.ID] = cloneTemplate(*t)
	return nil
}

func (m *Memory) DeleteTemplate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return ErrNotFound
	}
	delete(m.templates, id)
	return nil
}

func (m *Memory) IncrementTemplateUsage(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return ErrNotFound
	}
	t.UsageCount++
	m.templates[id] = t
	return nil
}

func cloneTemplate(t model.TrainingTemplate) model.TrainingTemplate {
	t.Tags = append([]string{}, t.Tags...)
	if t.Data.MaxParticipants != nil {
		v := *t.Data.MaxParticipants
		t.Data.MaxParticipants = &v
	}
	t.CreatedBy = nil
	return t
}

func (m *Memory) CreateComment(_ context.Context, c *model.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trainings[c.TrainingID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.users[c.UserID]; !ok {
		return ErrNotFound
	}
	if c.ParentID != "" {
		if _, ok := m.comments[c.ParentID]; !ok {
			return ErrNotFound
		}
	}
	ensureID(&c.ID)
	nowIfZero(&c.CreatedAt)
	stored := *c
	stored.User, stored.Replies = nil, nil
	m.comments[c.ID] = stored
	return nil
}

func (m *Memory) GetComment(_ context.Context, id string) (model.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.comments[id]
	if !ok {
		return model.Comment{}, ErrNotFound
	}
	c.User = m.userSummary(c.UserID)
	return c, nil
}

// ListComments returns every comment of a training, oldest first.
func (m *Memory) ListComments(_ context.Context, trainingID string) ([]model.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Comment
	for _, c := range m.comments {
		if c.TrainingID == trainingID {
			c.User = m.userSummary(c.UserID)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateComment(_ context.Context, c *model.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.comments[c.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Content, cur.IsEdited, cur.EditedAt = c.Content, c.IsEdited, c.EditedAt
	m.comments[c.ID] = cur
	return nil
}

// DeleteComment removes a comment together with its replies.
func (m *Memory) DeleteComment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[id]; !ok {
		return ErrNotFound
	}
	delete(m.comments, id)
	for k, c := range m.comments {
		if c.ParentID == id {
			delete(m.comments, k)
		}
	}
	return nil
}
