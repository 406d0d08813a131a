package mail

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"trainflow/internal/logger"
	"trainflow/internal/model"
	"trainflow/internal/queue"
)

func TestRenderEscapesAndFillsSubject(t *testing.T) {
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	r, err := Render(Message{
		Kind: KindEnrollmentConfirmation, To: "p@test.com", FirstName: "<b>Ann</b>",
		TrainingName: "Go 101", StartDate: &start,
	}, "Trainflow")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if r.Subject != "Enrollment Confirmed: Go 101" {
		t.Fatalf("subject: got=%q", r.Subject)
	}
	if strings.Contains(r.HTML, "<b>Ann</b>") {
		t.Fatal("first name must be HTML-escaped")
	}
	if !strings.Contains(r.HTML, "May 4, 2026") {
		t.Fatalf("start date missing: %s", r.HTML)
	}

	if _, err := Render(Message{Kind: "unknown", To: "x@y.z"}, ""); err == nil {
		t.Fatal("want error for unknown kind")
	}
	if _, err := Render(Message{Kind: KindFeedbackReminder}, ""); err == nil {
		t.Fatal("want error for missing recipient")
	}
}

func TestQueueSenderPublishesEnvelope(t *testing.T) {
	q := queue.NewInMemory(4)
	s := NewQueueSender(q, "https://app.example.com/")
	ctx := context.Background()
	to := model.UserSummary{ID: "u1", FirstName: "Ann", Email: "ann@test.com"}
	tr := model.Training{ID: "t1", Name: "Go 101"}

	if err := s.SendFeedbackReminder(ctx, to, tr); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.SendFeedbackReminder(ctx, model.UserSummary{ID: "u2"}, tr); err == nil {
		t.Fatal("want error for recipient without email")
	}
	if q.Len() != 1 {
		t.Fatalf("want=1 got=%d", q.Len())
	}

	msgs, _ := q.Consume(ctx)
	msg := <-msgs
	var m Message
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != MessageType || m.Kind != KindFeedbackReminder || m.Link != "https://app.example.com/trainings/t1/feedback" {
		t.Fatalf("unexpected message: type=%s %+v", msg.Type, m)
	}
}

func TestSendGridRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" || r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"subject":"Hello"`) {
			t.Errorf("unexpected body: %s", body)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sg, err := NewSendGrid(SendGridConfig{APIKey: "key", BaseURL: srv.URL, FromEmail: "noreply@test.com"}, logger.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := sg.Deliver(context.Background(), Rendered{To: "a@b.c", Subject: "Hello", HTML: "<p>hi</p>"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("want=2 got=%d", calls)
	}
}

func TestSendGridDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad from"}]}`))
	}))
	defer srv.Close()

	sg, _ := NewSendGrid(SendGridConfig{APIKey: "key", BaseURL: srv.URL}, logger.NewNop())
	err := sg.Deliver(context.Background(), Rendered{To: "a@b.c", Subject: "s", HTML: "h"})
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 HTTPError got=%v", err)
	}
	if calls != 1 {
		t.Fatalf("want=1 got=%d", calls)
	}
}

type flakyTransport struct {
	failures int
	sent     []Rendered
}

func (f *flakyTransport) Deliver(_ context.Context, r Rendered) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, r)
	return nil
}

func TestConsumerRequeuesFailedDelivery(t *testing.T) {
	q := queue.NewInMemory(4)
	tr := &flakyTransport{failures: 1}
	c := NewConsumer(q, tr, "Trainflow", logger.NewNop())
	ctx := context.Background()

	body, _ := json.Marshal(Message{Kind: KindPasswordReset, To: "a@b.c", FirstName: "Ann", Link: "https://x/reset"})
	c.Handle(ctx, queue.Message{Type: MessageType, Body: body})
	if q.Len() != 1 {
		t.Fatalf("want requeued message, queue len=%d", q.Len())
	}

	msgs, _ := q.Consume(ctx)
	requeued := <-msgs
	if requeued.Attempt != 1 {
		t.Fatalf("want attempt=1 got=%d", requeued.Attempt)
	}
	c.Handle(ctx, requeued)
	if len(tr.sent) != 1 || tr.sent[0].Subject != "Password Reset Request - Trainflow" {
		t.Fatalf("unexpected deliveries: %+v", tr.sent)
	}
}

func TestConsumerDropsAfterMaxAttempts(t *testing.T) {
	q := queue.NewInMemory(4)
	c := NewConsumer(q, &flakyTransport{failures: 10}, "", logger.NewNop())
	body, _ := json.Marshal(Message{Kind: KindFeedbackReminder, To: "a@b.c", TrainingName: "Go"})
	c.Handle(context.Background(), queue.Message{Type: MessageType, Body: body, Attempt: maxAttempts - 1})
	if q.Len() != 0 {
		t.Fatalf("want dropped message, queue len=%d", q.Len())
	}
}
