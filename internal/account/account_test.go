package account

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"trainflow/internal/apperr"
	"trainflow/internal/audit"
	"trainflow/internal/auth"
	"trainflow/internal/logger"
	"trainflow/internal/model"
	"trainflow/internal/store"
)

type captureMailer struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, to model.UserSummary, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[to.Email] = token
	return nil
}

type captureAuditor struct {
	entries []audit.Entry
}

func (a *captureAuditor) Record(_ context.Context, e audit.Entry) { a.entries = append(a.entries, e) }

type harness struct {
	svc     *Service
	repo    *store.Memory
	mailer  *captureMailer
	auditor *captureAuditor
}

var testConfig = Config{
	Issuer: "trainflow-test", SigningKey: "k", AccessTTL: time.Minute, RefreshTTL: time.Hour,
	ResetTTL: time.Hour, BcryptCost: bcrypt.MinCost,
}

func newHarness(t *testing.T) harness {
	t.Helper()
	h := harness{repo: store.NewMemory(), mailer: &captureMailer{tokens: map[string]string{}}, auditor: &captureAuditor{}}
	h.svc = NewService(h.repo, h.mailer, h.auditor, testConfig, logger.NewNop())
	return h
}

func (h harness) register(t *testing.T, email string) Session {
	t.Helper()
	s, err := h.svc.Register(context.Background(), RegisterInput{Email: email, Password: "secret1", FirstName: "Ann", LastName: "Lee"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return s
}

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	if got := apperr.StatusOf(err); err == nil || got != status {
		t.Fatalf("want=%v got=%v (%v)", status, got, err)
	}
}

func TestRegisterAlwaysParticipant(t *testing.T) {
	h := newHarness(t)
	s := h.register(t, "Ann@Test.com")
	if s.User.Role != model.RoleParticipant || s.User.Email != "ann@test.com" {
		t.Fatalf("unexpected user %+v", s.User)
	}
	if s.User.PasswordHash == "secret1" {
		t.Fatal("password stored in clear")
	}
	claims, err := auth.Parse(s.Tokens.AccessToken, testConfig.SigningKey, testConfig.Issuer, auth.PurposeAccess)
	if err != nil || claims.Subject != s.User.ID || claims.Role != string(model.RoleParticipant) {
		t.Fatalf("unexpected claims %+v err=%v", claims, err)
	}

	_, err = h.svc.Register(context.Background(), RegisterInput{Email: "ann@test.com", Password: "secret2", FirstName: "A", LastName: "B"})
	wantStatus(t, err, http.StatusConflict)

	_, err = h.svc.Register(context.Background(), RegisterInput{Email: "bad", Password: "123", FirstName: "A", LastName: "B"})
	wantStatus(t, err, http.StatusBadRequest)
}

func TestCreateUserAdminOnly(t *testing.T) {
	h := newHarness(t)
	in := CreateUserInput{
		RegisterInput: RegisterInput{Email: "trainer@test.com", Password: "secret1", FirstName: "T", LastName: "R"},
		Role:          model.RoleTrainer,
	}
	_, err := h.svc.CreateUser(context.Background(), in, model.RoleTrainer)
	wantStatus(t, err, http.StatusForbidden)

	u, err := h.svc.CreateUser(context.Background(), in, model.RoleAdmin)
	if err != nil || u.Role != model.RoleTrainer {
		t.Fatalf("create trainer: %+v err=%v", u, err)
	}
	trainers, _ := h.svc.ListUsers(context.Background(), model.RoleTrainer)
	if len(trainers) != 1 {
		t.Fatalf("want=1 got=%d", len(trainers))
	}
}

func TestLoginAndRefresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reg := h.register(t, "ann@test.com")

	_, err := h.svc.Login(ctx, LoginInput{Email: "ann@test.com", Password: "wrong"})
	wantStatus(t, err, http.StatusUnauthorized)
	_, err = h.svc.Login(ctx, LoginInput{Email: "nobody@test.com", Password: "secret1"})
	wantStatus(t, err, http.StatusUnauthorized)

	s, err := h.svc.Login(ctx, LoginInput{Email: "ANN@test.com", Password: "secret1"})
	if err != nil || s.User.ID != reg.User.ID {
		t.Fatalf("login: %+v err=%v", s.User, err)
	}
	if len(h.auditor.entries) != 1 || h.auditor.entries[0].Action != audit.ActionLogin {
		t.Fatalf("want one LOGIN audit entry got=%+v", h.auditor.entries)
	}

	if _, err := h.svc.Refresh(ctx, s.Tokens.AccessToken); apperr.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("access token must not refresh, got %v", err)
	}
	next, err := h.svc.Refresh(ctx, s.Tokens.RefreshToken)
	if err != nil || next.User.ID != reg.User.ID {
		t.Fatalf("refresh: %v", err)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "ann@test.com")

	h.svc.ForgotPassword(ctx, "nobody@test.com")
	if len(h.mailer.tokens) != 0 {
		t.Fatal("no email for unknown address")
	}
	h.svc.ForgotPassword(ctx, "ann@test.com")
	token := h.mailer.tokens["ann@test.com"]
	if token == "" {
		t.Fatal("want reset email")
	}

	wantStatus(t, h.svc.ResetPassword(ctx, "garbage", "newpass1"), http.StatusBadRequest)
	wantStatus(t, h.svc.ResetPassword(ctx, token, "123"), http.StatusBadRequest)

	h.svc.WithClock(func() time.Time { return time.Now().Add(time.Minute) })
	if err := h.svc.ResetPassword(ctx, token, "newpass1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := h.svc.Login(ctx, LoginInput{Email: "ann@test.com", Password: "newpass1"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	wantStatus(t, h.svc.ResetPassword(ctx, token, "another1"), http.StatusBadRequest)
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.register(t, "ann@test.com")

	wantStatus(t, h.svc.ChangePassword(ctx, s.User.ID, "wrong", "newpass1"), http.StatusBadRequest)
	if err := h.svc.ChangePassword(ctx, s.User.ID, "secret1", "newpass1"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := h.svc.Login(ctx, LoginInput{Email: "ann@test.com", Password: "newpass1"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	_, err := h.svc.Me(ctx, "missing")
	wantStatus(t, err, http.StatusNotFound)
}
