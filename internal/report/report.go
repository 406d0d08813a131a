package report

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"trainflow/internal/apperr"
	"trainflow/internal/logger"
	"trainflow/internal/model"
	"trainflow/internal/store"
)

// ContentType is the MIME type of every generated report.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	KindAttendance = "attendance"
	KindCompletion = "completion"
	KindFeedback   = "feedback"
)

type Repository interface {
	GetTraining(ctx context.Context, id string) (model.TrainingSummary, error)
	ListEnrollments(ctx context.Context, trainingID string) ([]model.Enrollment, error)
	ListAttendance(ctx context.Context, trainingID string) ([]model.Attendance, error)
	ListFeedback(ctx context.Context, trainingID string) ([]model.Feedback, error)
}

// File is a rendered workbook ready to be streamed to the client.
type File struct {
	Name string
	Data []byte
}

type column struct {
	header string
	width  float64
}

// Service builds XLSX exports. It never writes to the repository.
type Service struct {
	repo Repository
	log  *logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log.With("service", "ReportService"), now: time.Now}
}

// WithClock replaces the time source used for file names.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Attendance lists every enrollee with their attendance record. Enrollees
// without a record are reported ABSENT.
func (s *Service) Attendance(ctx context.Context, trainingID string) (File, error) {
	t, err := s.training(ctx, trainingID)
	if err != nil {
		return File{}, err
	}
	enrollments, err := s.repo.ListEnrollments(ctx, trainingID)
	if err != nil {
		return File{}, err
	}
	records, err := s.repo.ListAttendance(ctx, trainingID)
	if err != nil {
		return File{}, err
	}
	byUser := make(map[string]model.Attendance, len(records))
	for _, a := range records {
		byUser[a.UserID] = a
	}

	rows := [][]interface{}{
		{"Training:", t.Name},
		{"Date:", stamp(t.StartDate)},
		{},
	}
	for _, e := range enrollments {
		name, email := person(e.User)
		status, checkIn, notes := string(model.AttendanceAbsent), "", ""
		if a, ok := byUser[e.UserID]; ok {
			status, checkIn, notes = string(a.Status), stamp(a.CheckInTime), a.Notes
		}
		rows = append(rows, []interface{}{name, email, status, checkIn, notes})
	}
	return s.render(KindAttendance, trainingID, "Attendance Report", []column{
		{"Name", 30}, {"Email", 30}, {"Status", 15}, {"Check-in Time", 20}, {"Notes", 40},
	}, rows)
}

// Completion lists every enrollee with their enrollment status.
func (s *Service) Completion(ctx context.Context, trainingID string) (File, error) {
	t, err := s.training(ctx, trainingID)
	if err != nil {
		return File{}, err
	}
	enrollments, err := s.repo.ListEnrollments(ctx, trainingID)
	if err != nil {
		return File{}, err
	}
	rows := [][]interface{}{{"Training:", t.Name}, {}}
	for _, e := range enrollments {
		name, email := person(e.User)
		completed := ""
		if e.CompletedAt != nil {
			completed = stamp(*e.CompletedAt)
		}
		rows = append(rows, []interface{}{name, email, string(e.Status), stamp(e.EnrolledAt), completed})
	}
	return s.render(KindCompletion, trainingID, "Completion Report", []column{
		{"Name", 30}, {"Email", 30}, {"Status", 15}, {"Enrolled At", 20}, {"Completed At", 20},
	}, rows)
}

// Feedback lists every submitted feedback.
func (s *Service) Feedback(ctx context.Context, trainingID string) (File, error) {
	t, err := s.training(ctx, trainingID)
	if err != nil {
		return File{}, err
	}
	feedbacks, err := s.repo.ListFeedback(ctx, trainingID)
	if err != nil {
		return File{}, err
	}
	rows := [][]interface{}{{"Training:", t.Name}, {}}
	for _, f := range feedbacks {
		name, email := person(f.User)
		trainerRating := ""
		if f.TrainerRating != nil {
			trainerRating = strconv.Itoa(*f.TrainerRating)
		}
		rows = append(rows, []interface{}{name, email, f.Rating, f.Comment, trainerRating, f.TrainerComment, stamp(f.SubmittedAt)})
	}
	return s.render(KindFeedback, trainingID, "Feedback Report", []column{
		{"Name", 30}, {"Email", 30}, {"Rating", 10}, {"Comment", 50},
		{"Trainer Rating", 15}, {"Trainer Comment", 50}, {"Submitted At", 20},
	}, rows)
}

func (s *Service) training(ctx context.Context, id string) (model.TrainingSummary, error) {
	t, err := s.repo.GetTraining(ctx, id)
	if store.IsNotFound(err) {
		return t, apperr.NotFound("Training not found")
	}
	return t, err
}

func (s *Service) render(kind, trainingID, sheet string, cols []column, rows [][]interface{}) (File, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return File{}, err
	}
	header := make([]interface{}, len(cols))
	for i, c := range cols {
		header[i] = c.header
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return File{}, err
		}
		if err := f.SetColWidth(sheet, name, name, c.width); err != nil {
			return File{}, err
		}
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return File{}, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return File{}, err
	}
	last, _ := excelize.CoordinatesToCellName(len(cols), 1)
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return File{}, err
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return File{}, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return File{}, fmt.Errorf("write %s report: %w", kind, err)
	}
	name := fmt.Sprintf("%s-%s-%d.xlsx", kind, trainingID, s.now().UnixMilli())
	s.log.Info("report generated", "kind", kind, "training_id", trainingID, "rows", len(rows), "bytes", buf.Len())
	return File{Name: name, Data: buf.Bytes()}, nil
}

func person(u *model.UserSummary) (string, string) {
	if u == nil {
		return "", ""
	}
	return u.FullName(), u.Email
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
