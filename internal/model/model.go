package model

import "time"

// Role is the account role used for authorization decisions.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleTrainer     Role = "TRAINER"
	RoleParticipant Role = "PARTICIPANT"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTrainer, RoleParticipant:
		return true
	}
	return false
}

// TrainingStatus is the lifecycle state of a training.
type TrainingStatus string

const (
	StatusDraft      TrainingStatus = "DRAFT"
	StatusScheduled  TrainingStatus = "SCHEDULED"
	StatusInProgress TrainingStatus = "IN_PROGRESS"
	StatusCompleted  TrainingStatus = "COMPLETED"
	StatusCancelled  TrainingStatus = "CANCELLED"
)

// Mode describes how a training is delivered.
type Mode string

const (
	ModeOnline  Mode = "ONLINE"
	ModeOffline Mode = "OFFLINE"
	ModeHybrid  Mode = "HYBRID"
)

// NeedsLocation reports whether the mode requires a physical location.
func (m Mode) NeedsLocation() bool { return m == ModeOffline || m == ModeHybrid }

// NeedsMeetingLink reports whether the mode requires a meeting link.
func (m Mode) NeedsMeetingLink() bool { return m == ModeOnline || m == ModeHybrid }

type EnrollmentStatus string

const (
	EnrollmentEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentCancelled EnrollmentStatus = "CANCELLED"
)

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendanceLate    AttendanceStatus = "LATE"
)

type MaterialType string

const (
	MaterialPreWork      MaterialType = "PRE_WORK"
	MaterialPostTraining MaterialType = "POST_TRAINING"
)

// Severity is the notification type shown in the UI.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeveritySuccess Severity = "SUCCESS"
	SeverityError   Severity = "ERROR"
)

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summary returns the public projection of the user.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

// UserSummary is the projection embedded in other entities.
type UserSummary struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
}

// FullName joins first and last name.
func (u UserSummary) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Training is a scheduled learning event.
type Training struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	StartDate       time.Time      `json:"start_date"`
	EndDate         time.Time      `json:"end_date"`
	Mode            Mode           `json:"mode"`
	Location        string         `json:"location,omitempty"`
	MeetingLink     string         `json:"meeting_link,omitempty"`
	Status          TrainingStatus `json:"status"`
	MaxParticipants *int           `json:"max_participants,omitempty"`
	TrainerID       string         `json:"trainer_id"`
	CreatedByID     string         `json:"created_by_id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`

	Trainer   *UserSummary `json:"trainer,omitempty"`
	CreatedBy *UserSummary `json:"created_by,omitempty"`
}

// Capacity returns the participant cap, 0 meaning unbounded.
func (t Training) Capacity() int {
	if t.MaxParticipants == nil || *t.MaxParticipants <= 0 {
		return 0
	}
	return *t.MaxParticipants
}

// Counts holds relation counts attached to listings and detail views.
type Counts struct {
	Enrollments int `json:"enrollments"`
	Materials   int `json:"materials"`
	Feedbacks   int `json:"feedbacks"`
	Attendance  int `json:"attendance"`
}

// TrainingSummary is a row of the training listing.
type TrainingSummary struct {
	Training
	Count Counts `json:"_count"`
}

// TrainingDetail is the full training graph.
type TrainingDetail struct {
	Training
	Materials   []Material   `json:"materials"`
	Enrollments []Enrollment `json:"enrollments"`
	Attendance  []Attendance `json:"attendance"`
	Feedbacks   []Feedback   `json:"feedbacks"`
	Count       Counts       `json:"_count"`
}

// Enrollment is a participant's registration in a training.
type Enrollment struct {
	ID               string           `json:"id"`
	TrainingID       string           `json:"training_id"`
	UserID           string           `json:"user_id"`
	Status           EnrollmentStatus `json:"status"`
	EnrolledAt       time.Time        `json:"enrolled_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	PreWorkCompleted bool             `json:"pre_work_completed"`

	User *UserSummary `json:"user,omitempty"`
}

// Attendance is the presence record of one enrollee.
type Attendance struct {
	ID          string           `json:"id"`
	TrainingID  string           `json:"training_id"`
	UserID      string           `json:"user_id"`
	Status      AttendanceStatus `json:"status"`
	CheckInTime time.Time        `json:"check_in_time"`
	MarkedBy    string           `json:"marked_by,omitempty"`
	Notes       string           `json:"notes,omitempty"`

	User *UserSummary `json:"user,omitempty"`
}

// Feedback is a participant's rating of a training.
type Feedback struct {
	ID             string    `json:"id"`
	TrainingID     string    `json:"training_id"`
	UserID         string    `json:"user_id"`
	Rating         int       `json:"rating"`
	TrainerRating  *int      `json:"trainer_rating,omitempty"`
	Comment        string    `json:"comment,omitempty"`
	TrainerComment string    `json:"trainer_comment,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`

	User *UserSummary `json:"user,omitempty"`
}

// Material is a file or link attached to a training.
type Material struct {
	ID            string       `json:"id"`
	TrainingID    string       `json:"training_id"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Type          MaterialType `json:"type"`
	FileURL       string       `json:"file_url,omitempty"`
	FileName      string       `json:"file_name,omitempty"`
	FileSize      int64        `json:"file_size,omitempty"`
	MimeType      string       `json:"mime_type,omitempty"`
	FileKey       string       `json:"-"`
	ExternalLink  string       `json:"external_link,omitempty"`
	IsRequired    bool         `json:"is_required"`
	DistributedAt *time.Time   `json:"distributed_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Link returns the URL participants should open for the material.
func (m Material) Link() string {
	if m.FileURL != "" {
		return m.FileURL
	}
	return m.ExternalLink
}

// AuditLog is an append-only record of who did what to which entity.
type AuditLog struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`

	User *UserSummary `json:"user,omitempty"`
}

// Notification is a per-user in-app message.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      Severity   `json:"type"`
	Link      string     `json:"link,omitempty"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// TemplateData is the training blueprint a template prefills.
type TemplateData struct {
	Name            string `json:"name,omitempty"`
	Description     string `json:"description,omitempty"`
	Mode            Mode   `json:"mode,omitempty"`
	Location        string `json:"location,omitempty"`
	MeetingLink     string `json:"meeting_link,omitempty"`
	MaxParticipants *int   `json:"max_participants,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

// TrainingTemplate is a reusable blueprint for new trainings.
type TrainingTemplate struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Category    string       `json:"category,omitempty"`
	Tags        []string     `json:"tags"`
	Data        TemplateData `json:"template_data"`
	IsPublic    bool         `json:"is_public"`
	UsageCount  int          `json:"usage_count"`
	CreatedByID string       `json:"created_by_id"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	CreatedBy *UserSummary `json:"created_by,omitempty"`
}

// Comment is a discussion post on a training. Replies hang off a top-level
// comment through ParentID and are one level deep.
type Comment struct {
	ID         string     `json:"id"`
	TrainingID string     `json:"training_id"`
	UserID     string     `json:"user_id"`
	ParentID   string     `json:"parent_id,omitempty"`
	Content    string     `json:"content"`
	IsEdited   bool       `json:"is_edited"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`

	User    *UserSummary `json:"user,omitempty"`
	Replies []Comment    `json:"replies,omitempty"`
}
