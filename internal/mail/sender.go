package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"trainflow/internal/metrics"
	"trainflow/internal/model"
	"trainflow/internal/queue"
)

// MessageType is the queue message type carrying a Message.
const MessageType = "email"

// Sender composes the outbound emails the application sends.
type Sender interface {
	SendEnrollmentConfirmation(ctx context.Context, to model.UserSummary, t model.Training) error
	SendMaterialNotification(ctx context.Context, to model.UserSummary, t model.Training, m model.Material) error
	SendFeedbackReminder(ctx context.Context, to model.UserSummary, t model.Training) error
	SendPreWorkReminder(ctx context.Context, to model.UserSummary, t model.Training) error
	SendPasswordReset(ctx context.Context, to model.UserSummary, token string) error
}

// QueueSender enqueues messages for the worker to deliver.
type QueueSender struct {
	q           queue.Queue
	frontendURL string
}

func NewQueueSender(q queue.Queue, frontendURL string) *QueueSender {
	return &QueueSender{q: q, frontendURL: strings.TrimRight(frontendURL, "/")}
}

func (s *QueueSender) SendEnrollmentConfirmation(ctx context.Context, to model.UserSummary, t model.Training) error {
	start := t.StartDate
	return s.publish(ctx, Message{
		Kind: KindEnrollmentConfirmation, To: to.Email, FirstName: to.FirstName,
		TrainingName: t.Name, StartDate: &start,
		Link: fmt.Sprintf("%s/trainings/%s", s.frontendURL, t.ID),
	})
}

func (s *QueueSender) SendMaterialNotification(ctx context.Context, to model.UserSummary, t model.Training, m model.Material) error {
	link := m.Link()
	if link == "" {
		link = fmt.Sprintf("%s/trainings/%s/materials", s.frontendURL, t.ID)
	}
	return s.publish(ctx, Message{
		Kind: KindMaterialNotification, To: to.Email, FirstName: to.FirstName,
		TrainingName: t.Name, MaterialName: m.Name, Link: link,
	})
}

func (s *QueueSender) SendFeedbackReminder(ctx context.Context, to model.UserSummary, t model.Training) error {
	return s.publish(ctx, Message{
		Kind: KindFeedbackReminder, To: to.Email, FirstName: to.FirstName,
		TrainingName: t.Name, Link: fmt.Sprintf("%s/trainings/%s/feedback", s.frontendURL, t.ID),
	})
}

func (s *QueueSender) SendPreWorkReminder(ctx context.Context, to model.UserSummary, t model.Training) error {
	start := t.StartDate
	return s.publish(ctx, Message{
		Kind: KindPreWorkReminder, To: to.Email, FirstName: to.FirstName,
		TrainingName: t.Name, StartDate: &start,
		Link: fmt.Sprintf("%s/trainings/%s/materials", s.frontendURL, t.ID),
	})
}

func (s *QueueSender) SendPasswordReset(ctx context.Context, to model.UserSummary, token string) error {
	return s.publish(ctx, Message{
		Kind: KindPasswordReset, To: to.Email, FirstName: to.FirstName,
		Link: fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, url.QueryEscape(token)),
	})
}

func (s *QueueSender) publish(ctx context.Context, m Message) error {
	if m.To == "" {
		return fmt.Errorf("mail %s: recipient has no email", m.Kind)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := s.q.Publish(ctx, queue.Message{Type: MessageType, Body: body}); err != nil {
		metrics.MailMessages.WithLabelValues(string(m.Kind), "failed").Inc()
		return fmt.Errorf("enqueue %s: %w", m.Kind, err)
	}
	metrics.MailMessages.WithLabelValues(string(m.Kind), "queued").Inc()
	return nil
}
