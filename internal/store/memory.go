package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"trainflow/internal/model"
)

type pairKey struct {
	trainingID string
	userID     string
}

// Memory is an in-process repository gateway used by tests and the memory backend.
// Composite (training, user) uniqueness is enforced by map keys.
type Memory struct {
	mu            sync.RWMutex
	users         map[string]model.User
	trainings     map[string]model.Training
	enrollments   map[pairKey]model.Enrollment
	attendance    map[pairKey]model.Attendance
	feedbacks     map[pairKey]model.Feedback
	materials     map[string]model.Material
	auditLogs     []model.AuditLog
	notifications map[string]model.Notification
	templates     map[string]model.TrainingTemplate
	comments      map[string]model.Comment
}

func NewMemory() *Memory {
	return &Memory{
		users:         make(map[string]model.User),
		trainings:     make(map[string]model.Training),
		enrollments:   make(map[pairKey]model.Enrollment),
		attendance:    make(map[pairKey]model.Attendance),
		feedbacks:     make(map[pairKey]model.Feedback),
		materials:     make(map[string]model.Material),
		notifications: make(map[string]model.Notification),
		templates:     make(map[string]model.TrainingTemplate),
		comments:      make(map[string]model.Comment),
	}
}

func (m *Memory) userSummary(id string) *model.UserSummary {
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	s := u.Summary()
	return &s
}

func (m *Memory) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensureID(&u.ID)
	nowIfZero(&u.CreatedAt)
	u.UpdatedAt = u.CreatedAt
	u.Email = strings.ToLower(u.Email)
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	if _, ok := m.users[u.ID]; ok {
		return ErrDuplicate
	}
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (m *Memory) ListUsers(_ context.Context, role model.Role) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.User
	for _, u := range m.users {
		if role == "" || u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		return out[i].LastName < out[j].LastName
	})
	return out, nil
}

func (m *Memory) FindUsersByEmails(_ context.Context, emails []string) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[string]bool, len(emails))
	for _, e := range emails {
		want[strings.ToLower(strings.TrimSpace(e))] = true
	}
	var out []model.User
	for _, u := range m.users {
		if want[u.Email] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *Memory) UpdateUserPassword(_ context.Context, id, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = at
	m.users[id] = u
	return nil
}

func (m *Memory) CreateTraining(_ context.Context, t *model.Training) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensureID(&t.ID)
	nowIfZero(&t.CreatedAt)
	t.UpdatedAt = t.CreatedAt
	if _, ok := m.users[t.TrainerID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.users[t.CreatedByID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.trainings[t.ID]; ok {
		return ErrDuplicate
	}
	stored := *t
	stored.Trainer, stored.CreatedBy = nil, nil
	m.trainings[t.ID] = stored
	return nil
}

func (m *Memory) summarize(t model.Training) model.TrainingSummary {
	t.Trainer = m.userSummary(t.TrainerID)
	t.CreatedBy = m.userSummary(t.CreatedByID)
	s := model.TrainingSummary{Training: t}
	for k := range m.enrollments {
		if k.trainingID == t.ID {
			s.Count.Enrollments++
		}
	}
	for k := range m.attendance {
		if k.trainingID == t.ID {
			s.Count.Attendance++
		}
	}
	for k := range m.feedbacks {
		if k.trainingID == t.ID {
			s.Count.Feedbacks++
		}
	}
	for _, mat := range m.materials {
		if mat.TrainingID == t.ID {
			s.Count.Materials++
		}
	}
	return s
}

func (m *Memory) GetTraining(_ context.Context, id string) (model.TrainingSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trainings[id]
	if !ok {
		return model.TrainingSummary{}, ErrNotFound
	}
	return m.summarize(t), nil
}

func (m *Memory) UpdateTraining(_ context.Context, t *model.Training) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.trainings[t.ID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.users[t.TrainerID]; !ok {
		return ErrNotFound
	}
	stored := *t
	stored.CreatedByID = existing.CreatedByID
	stored.CreatedAt = existing.CreatedAt
	stored.Trainer, stored.CreatedBy = nil, nil
	m.trainings[t.ID] = stored
	return nil
}

// DeleteTraining removes a training and its dependent rows.
func (m *Memory) DeleteTraining(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trainings[id]; !ok {
		return ErrNotFound
	}
	delete(m.trainings, id)
	for k := range m.enrollments {
		if k.trainingID == id {
			delete(m.enrollments, k)
		}
	}
	for k := range m.attendance {
		if k.trainingID == id {
			delete(m.attendance, k)
		}
	}
	for k := range m.feedbacks {
		if k.trainingID == id {
			delete(m.feedbacks, k)
		}
	}
	for k, mat := range m.materials {
		if mat.TrainingID == id {
			delete(m.materials, k)
		}
	}
	for k, c := range m.comments {
		if c.TrainingID == id {
			delete(m.comments, k)
		}
	}
	return nil
}

func trainingMatches(t model.Training, f model.TrainingFilter) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.TrainerID != "" && t.TrainerID != f.TrainerID {
		return false
	}
	if f.Mode != "" && t.Mode != f.Mode {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Name), q) && !strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	if f.StartFrom != nil && t.StartDate.Before(*f.StartFrom) {
		return false
	}
	if f.StartTo != nil && t.StartDate.After(*f.StartTo) {
		return false
	}
	if f.EndFrom != nil && t.EndDate.Before(*f.EndFrom) {
		return false
	}
	if f.EndTo != nil && t.EndDate.After(*f.EndTo) {
		return false
	}
	return true
}

func trainingLess(a, b model.Training, sortBy string) int {
	switch sortBy {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "start_date":
		return a.StartDate.Compare(b.StartDate)
	case "end_date":
		return a.EndDate.Compare(b.EndDate)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (m *Memory) ListTrainings(_ context.Context, f model.TrainingFilter) ([]model.TrainingSummary, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []model.Training
	for _, t := range m.trainings {
		if trainingMatches(t, f) {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		c := trainingLess(matched[i], matched[j], f.SortBy)
		if c == 0 {
			return matched[i].ID < matched[j].ID
		}
		if f.SortOrder == "asc" {
			return c < 0
		}
		return c > 0
	})
	total := len(matched)
	if f.Limit > 0 {
		start := f.Offset()
		if start > total {
			start = total
		}
		end := start + f.Limit
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	out := make([]model.TrainingSummary, 0, len(matched))
	for _, t := range matched {
		out = append(out, m.summarize(t))
	}
	return out, total, nil
}

// CreateEnrollment checks duplicates and capacity and inserts under one lock.
func (m *Memory) CreateEnrollment(_ context.Context, e *model.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trainings[e.TrainingID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.users[e.UserID]; !ok {
		return ErrNotFound
	}
	key := pairKey{e.TrainingID, e.UserID}
	if _, ok := m.enrollments[key]; ok {
		return ErrDuplicate
	}
	if capacity := t.Capacity(); capacity > 0 {
		count := 0
		for k := range m.enrollments {
			if k.trainingID == e.TrainingID {
				count++
			}
		}
		if count >= capacity {
			return ErrCapacityReached
		}
	}
	ensureID(&e.ID)
	nowIfZero(&e.EnrolledAt)
	stored := *e
	stored.User = nil
	m.enrollments[key] = stored
	return nil
}

func (m *Memory) GetEnrollment(_ context.Context, trainingID, userID string) (model.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.enrollments[pairKey{trainingID, userID}]
	if !ok {
		return model.Enrollment{}, ErrNotFound
	}
	e.User = m.userSummary(e.UserID)
	return e, nil
}

func (m *Memory) UpdateEnrollment(_ context.Context, e *model.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{e.TrainingID, e.UserID}
	existing, ok := m.enrollments[key]
	if !ok {
		return ErrNotFound
	}
	existing.Status = e.Status
	existing.CompletedAt = e.CompletedAt
	existing.PreWorkCompleted = e.PreWorkCompleted
	m.enrollments[key] = existing
	return nil
}

func (m *Memory) DeleteEnrollment(_ context.Context, trainingID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{trainingID, userID}
	if _, ok := m.enrollments[key]; !ok {
		return ErrNotFound
	}
	delete(m.enrollments, key)
	return nil
}

func (m *Memory) enrollmentsWhere(keep func(pairKey) bool) []model.Enrollment {
	var out []model.Enrollment
	for k, e := range m.enrollments {
		if keep(k) {
			e.User = m.userSummary(e.UserID)
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].EnrolledAt.After(out[j].EnrolledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) ListEnrollments(_ context.Context, trainingID string) ([]model.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enrollmentsWhere(func(k pairKey) bool { return k.trainingID == trainingID }), nil
}

func (m *Memory) ListUserEnrollments(_ context.Context, userID string) ([]model.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enrollmentsWhere(func(k pairKey) bool { return k.userID == userID }), nil
}

func (m *Memory) CountEnrollments(_ context.Context, trainingID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for k := range m.enrollments {
		if k.trainingID == trainingID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) UpsertAttendance(_ context.Context, a *model.Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trainings[a.TrainingID]; !ok {
		return ErrNotFound
	}
	key := pairKey{a.TrainingID, a.UserID}
	if existing, ok := m.attendance[key]; ok {
		a.ID = existing.ID
	}
	ensureID(&a.ID)
	nowIfZero(&a.CheckInTime)
	stored := *a
	stored.User = nil
	m.attendance[key] = stored
	return nil
}

func (m *Memory) GetAttendance(_ context.Context, trainingID, userID string) (model.Attendance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attendance[pairKey{trainingID, userID}]
	if !ok {
		return model.Attendance{}, ErrNotFound
	}
	a.User = m.userSummary(a.UserID)
	return a, nil
}

func (m *Memory) ListAttendance(_ context.Context, trainingID string) ([]model.Attendance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Attendance
	for k, a := range m.attendance {
		if k.trainingID == trainingID {
			a.User = m.userSummary(a.UserID)
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CheckInTime.Equal(out[j].CheckInTime) {
			return out[i].CheckInTime.After(out[j].CheckInTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) CreateFeedback(_ context.Context, f *model.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trainings[f.TrainingID]; !ok {
		return ErrNotFound
	}
	key := pairKey{f.TrainingID, f.UserID}
	if _, ok := m.feedbacks[key]; ok {
		return ErrDuplicate
	}
	ensureID(&f.ID)
	nowIfZero(&f.SubmittedAt)
	stored := *f
	stored.User = nil
	m.feedbacks[key] = stored
	return nil
}

func (m *Memory) GetFeedback(_ context.Context, trainingID, userID string) (model.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.feedbacks[pairKey{trainingID, userID}]
	if !ok {
		return model.Feedback{}, ErrNotFound
	}
	f.User = m.userSummary(f.UserID)
	return f, nil
}

func (m *Memory) ListFeedback(_ context.Context, trainingID string) ([]model.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Feedback
	for k, f := range m.feedbacks {
		if k.trainingID == trainingID {
			f.User = m.userSummary(f.UserID)
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) CreateMaterial(_ context.Context, mat *model.Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trainings[mat.TrainingID]; !ok {
		return ErrNotFound
	}
	ensureID(&mat.ID)
	nowIfZero(&mat.CreatedAt)
	m.materials[mat.ID] = *mat
	return nil
}

func (m *Memory) GetMaterial(_ context.Context, id string) (model.Material, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mat, ok := m.materials[id]
	if !ok {
		return model.Material{}, ErrNotFound
	}
	return mat, nil
}

func (m *Memory) ListMaterials(_ context.Context, trainingID string, typ model.MaterialType) ([]model.Material, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Material
	for _, mat := range m.materials {
		if mat.TrainingID == trainingID && (typ == "" || mat.Type == typ) {
			out = append(out, mat)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) DeleteMaterial(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.materials[id]; !ok {
		return ErrNotFound
	}
	delete(m.materials, id)
	return nil
}

func (m *Memory) MarkMaterialDistributed(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mat, ok := m.materials[id]
	if !ok {
		return ErrNotFound
	}
	mat.DistributedAt = &at
	m.materials[id] = mat
	return nil
}

func (m *Memory) CreateAuditLog(_ context.Context, l *model.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ensureID(&l.ID)
	nowIfZero(&l.CreatedAt)
	stored := *l
	stored.User = nil
	m.auditLogs = append(m.auditLogs, stored)
	return nil
}

func (m *Memory) ListAuditLogs(_ context.Context, f model.AuditFilter) ([]model.AuditLog, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []model.AuditLog
	for i := len(m.auditLogs) - 1; i >= 0; i-- {
		l := m.auditLogs[i]
		switch {
		case f.UserID != "" && l.UserID != f.UserID,
			f.Action != "" && l.Action != f.Action,
			f.EntityType != "" && l.EntityType != f.EntityType,
			f.EntityID != "" && l.EntityID != f.EntityID,
			f.From != nil && l.CreatedAt.Before(*f.From),
			f.To != nil && l.CreatedAt.After(*f.To):
			continue
		}
		l.User = m.userSummary(l.UserID)
		matched = append(matched, l)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	if f.Limit > 0 {
		start := f.Offset()
		if start > total {
			start = total
		}
		end := start + f.Limit
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (m *Memory) CreateNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[n.UserID]; !ok {
		return ErrNotFound
	}
	ensureID(&n.ID)
	nowIfZero(&n.CreatedAt)
	m.notifications[n.ID] = *n
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Notification
	for _, n := range m.notifications {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkNotificationRead(_ context.Context, userID, id string, at time.Time) (model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return model.Notification{}, ErrNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = &at
		m.notifications[id] = n
	}
	return n, nil
}

func (m *Memory) MarkAllNotificationsRead(_ context.Context, userID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for id, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &at
			m.notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (m *Memory) CountUnreadNotifications(_ context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}
