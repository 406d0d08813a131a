package training

import (
	"context"
	"errors"

	"trainflow/internal/model"
	"trainflow/internal/store"
)

// EligibilityThreshold is the minimum training-wide attendance rate for a certificate.
const EligibilityThreshold = 75.0

// AttendanceInput marks one enrollee.
type AttendanceInput struct {
	UserID string                 `json:"user_id" validate:"required"`
	Status model.AttendanceStatus `json:"status" validate:"omitempty,oneof=PRESENT ABSENT LATE"`
	Notes  string                 `json:"notes" validate:"max=1000"`
}

// AttendanceStats summarizes a training's attendance records.
type AttendanceStats struct {
	Total          int     `json:"total"`
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	Late           int     `json:"late"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// AttendanceList is the attendance sheet of a training.
type AttendanceList struct {
	Records []model.Attendance `json:"records"`
	Stats   AttendanceStats    `json:"stats"`
}

// Eligibility is the certificate decision for one enrollee.
type Eligibility struct {
	Eligible         bool                   `json:"eligible"`
	TrainingStatus   model.TrainingStatus   `json:"training_status"`
	EnrollmentStatus model.EnrollmentStatus `json:"enrollment_status,omitempty"`
	AttendanceRate   float64                `json:"attendance_rate"`
	Threshold        float64                `json:"threshold"`
}

// MarkAttendance records attendance for an enrolled user, overwriting any
// earlier record. The check-in time is always reset to now.
func (s *Service) MarkAttendance(ctx context.Context, trainingID string, in AttendanceInput, markedBy string) (model.Attendance, error) {
	if err := s.check(in); err != nil {
		return model.Attendance{}, err
	}
	if _, err := s.repo.GetEnrollment(ctx, trainingID, in.UserID); err != nil {
		return model.Attendance{}, notFound(err, "User is not enrolled in this training")
	}
	status := in.Status
	if status == "" {
		status = model.AttendancePresent
	}
	a := model.Attendance{
		TrainingID:  trainingID,
		UserID:      in.UserID,
		Status:      status,
		CheckInTime: s.clock(),
		MarkedBy:    markedBy,
		Notes:       in.Notes,
	}
	if err := s.repo.UpsertAttendance(ctx, &a); err != nil {
		return model.Attendance{}, notFound(err, "User is not enrolled in this training")
	}
	s.invalidate(ctx, trainingID)
	return a, nil
}

// SelfCheckIn marks userID present on their own behalf.
func (s *Service) SelfCheckIn(ctx context.Context, trainingID, userID string) (model.Attendance, error) {
	return s.MarkAttendance(ctx, trainingID, AttendanceInput{UserID: userID, Status: model.AttendancePresent}, userID)
}

// ListAttendance returns the attendance records of a training, latest check-in first.
func (s *Service) ListAttendance(ctx context.Context, trainingID string) (AttendanceList, error) {
	records, err := s.repo.ListAttendance(ctx, trainingID)
	if err != nil {
		return AttendanceList{}, err
	}
	total, err := s.repo.CountEnrollments(ctx, trainingID)
	if err != nil {
		return AttendanceList{}, err
	}
	if records == nil {
		records = []model.Attendance{}
	}
	st := AttendanceStats{Total: len(records)}
	for _, a := range records {
		switch a.Status {
		case model.AttendancePresent:
			st.Present++
		case model.AttendanceAbsent:
			st.Absent++
		case model.AttendanceLate:
			st.Late++
		}
	}
	st.AttendanceRate = round1(percent(st.Present, total))
	return AttendanceList{Records: records, Stats: st}, nil
}

// AttendanceRate is present records over current enrollments, as a percentage.
func (s *Service) AttendanceRate(ctx context.Context, trainingID string) (float64, error) {
	if _, err := s.repo.GetTraining(ctx, trainingID); err != nil {
		return 0, notFound(err, "Training not found")
	}
	return s.attendanceRate(ctx, trainingID)
}

func (s *Service) attendanceRate(ctx context.Context, trainingID string) (float64, error) {
	total, err := s.repo.CountEnrollments(ctx, trainingID)
	if err != nil || total == 0 {
		return 0, err
	}
	records, err := s.repo.ListAttendance(ctx, trainingID)
	if err != nil {
		return 0, err
	}
	present := 0
	for _, a := range records {
		if a.Status == model.AttendancePresent {
			present++
		}
	}
	return percent(present, total), nil
}

// CertificateEligibility decides whether userID may receive a certificate. The
// attendance gate is the rate of the whole cohort, not of the individual.
func (s *Service) CertificateEligibility(ctx context.Context, trainingID, userID string) (Eligibility, error) {
	t, err := s.repo.GetTraining(ctx, trainingID)
	if err != nil {
		return Eligibility{}, notFound(err, "Training not found")
	}
	out := Eligibility{TrainingStatus: t.Status, Threshold: EligibilityThreshold}
	if e, err := s.repo.GetEnrollment(ctx, trainingID, userID); err == nil {
		out.EnrollmentStatus = e.Status
	} else if !errors.Is(err, store.ErrNotFound) {
		return Eligibility{}, err
	}
	if out.AttendanceRate, err = s.attendanceRate(ctx, trainingID); err != nil {
		return Eligibility{}, err
	}
	out.Eligible = t.Status == model.StatusCompleted &&
		out.EnrollmentStatus == model.EnrollmentCompleted &&
		out.AttendanceRate >= EligibilityThreshold
	return out, nil
}
