package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// Kind selects the template used for a message.
type Kind string

const (
	KindEnrollmentConfirmation Kind = "enrollment_confirmation"
	KindMaterialNotification   Kind = "material_notification"
	KindFeedbackReminder       Kind = "feedback_reminder"
	KindPreWorkReminder        Kind = "prework_reminder"
	KindPasswordReset          Kind = "password_reset"
)

// Message is the queued, template-agnostic description of one email.
type Message struct {
	Kind         Kind       `json:"kind"`
	To           string     `json:"to"`
	FirstName    string     `json:"first_name"`
	TrainingName string     `json:"training_name,omitempty"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	MaterialName string     `json:"material_name,omitempty"`
	Link         string     `json:"link,omitempty"`
}

// Rendered is a message ready for delivery.
type Rendered struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

const signature = `<p>Best regards,<br>{{.Team}}</p>`

var templates = map[Kind]struct {
	subject string
	body    *template.Template
}{
	KindEnrollmentConfirmation: {
		subject: "Enrollment Confirmed: %s",
		body: template.Must(template.New("enroll").Parse(`<h2>Welcome to {{.TrainingName}}!</h2>
<p>Hi {{.FirstName}},</p>
<p>Your enrollment has been confirmed.{{if .StartDate}} The training will start on {{.StartDate}}.{{end}}</p>
<p>We'll send you pre-work materials shortly.</p>` + signature)),
	},
	KindMaterialNotification: {
		subject: "New Material Available: %s",
		body: template.Must(template.New("material").Parse(`<h2>New Material Available</h2>
<p>Hi {{.FirstName}},</p>
<p>A new material "{{.MaterialName}}" is now available for {{.TrainingName}}.</p>
{{if .Link}}<p><a href="{{.Link}}">Access Material</a></p>{{end}}` + signature)),
	},
	KindFeedbackReminder: {
		subject: "Feedback Request: %s",
		body: template.Must(template.New("feedback").Parse(`<h2>We'd Love Your Feedback</h2>
<p>Hi {{.FirstName}},</p>
<p>Thank you for attending {{.TrainingName}}. We'd appreciate your feedback to help us improve.</p>
<p><a href="{{.Link}}">Submit Feedback</a></p>` + signature)),
	},
	KindPreWorkReminder: {
		subject: "Pre-work Reminder: %s",
		body: template.Must(template.New("prework").Parse(`<h2>Pre-work Pending</h2>
<p>Hi {{.FirstName}},</p>
<p>Please complete the pre-work materials for {{.TrainingName}}{{if .StartDate}} before it starts on {{.StartDate}}{{end}}.</p>
<p><a href="{{.Link}}">Open Materials</a></p>` + signature)),
	},
	KindPasswordReset: {
		subject: "Password Reset Request%s",
		body: template.Must(template.New("reset").Parse(`<h2>Password Reset Request</h2>
<p>Hello {{.FirstName}},</p>
<p>You requested to reset your password. Use the link below to choose a new one:</p>
<p><a href="{{.Link}}">Reset Password</a></p>
<p>This link will expire soon. If you didn't request this, please ignore this email.</p>`)),
	},
}

// Render fills the template for m.Kind.
func Render(m Message, team string) (Rendered, error) {
	tpl, ok := templates[m.Kind]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown mail kind %q", m.Kind)
	}
	if strings.TrimSpace(m.To) == "" {
		return Rendered{}, fmt.Errorf("mail %s: recipient required", m.Kind)
	}
	data := struct {
		FirstName    string
		TrainingName string
		MaterialName string
		Link         string
		StartDate    string
		Team         string
	}{
		FirstName:    m.FirstName,
		TrainingName: m.TrainingName,
		MaterialName: m.MaterialName,
		Link:         m.Link,
		Team:         team,
	}
	if m.StartDate != nil {
		data.StartDate = m.StartDate.Format("Jan 2, 2006")
	}
	var buf bytes.Buffer
	if err := tpl.body.Execute(&buf, data); err != nil {
		return Rendered{}, fmt.Errorf("render %s: %w", m.Kind, err)
	}

	var subjectArg string
	switch m.Kind {
	case KindMaterialNotification:
		subjectArg = m.MaterialName
	case KindPasswordReset:
		if team != "" {
			subjectArg = " - " + team
		}
	default:
		subjectArg = m.TrainingName
	}
	return Rendered{
		To:      m.To,
		ToName:  m.FirstName,
		Subject: fmt.Sprintf(tpl.subject, subjectArg),
		HTML:    buf.String(),
	}, nil
}
