package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"trainflow/internal/apperr"
	"trainflow/internal/audit"
	"trainflow/internal/auth"
	"trainflow/internal/logger"
	"trainflow/internal/model"
	"trainflow/internal/store"
)

type Repository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	ListUsers(ctx context.Context, role model.Role) ([]model.User, error)
	UpdateUserPassword(ctx context.Context, id, hash string, at time.Time) error
}

// Mailer sends the reset link.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to model.UserSummary, token string) error
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// Config carries token settings.
type Config struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	BcryptCost int
}

// Session is what a successful login returns.
type Session struct {
	User   model.User     `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

type RegisterInput struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

type CreateUserInput struct {
	RegisterInput
	Role model.Role `json:"role" validate:"required,oneof=ADMIN TRAINER PARTICIPANT"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type Service struct {
	repo    Repository
	mailer  Mailer
	auditor Auditor
	cfg     Config
	log     *logger.Logger
	v       *validator.Validate
	now     func() time.Time
}

func NewService(repo Repository, mailer Mailer, auditor Auditor, cfg Config, log *logger.Logger) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if mailer == nil {
		mailer = nopMailer{}
	}
	if auditor == nil {
		auditor = nopAuditor{}
	}
	return &Service{
		repo: repo, mailer: mailer, auditor: auditor, cfg: cfg,
		log: log.With("service", "AccountService"),
		v:   validator.New(),
		now: time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a participant account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	u, err := s.create(ctx, in, model.RoleParticipant)
	if err != nil {
		return Session{}, err
	}
	return s.session(u)
}

// CreateUser lets an admin create an account with any role.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput, actorRole model.Role) (model.User, error) {
	if actorRole != model.RoleAdmin {
		return model.User{}, apperr.Forbidden("Only admins can create users")
	}
	if err := s.validate(in); err != nil {
		return model.User{}, err
	}
	return s.create(ctx, in.RegisterInput, in.Role)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role model.Role) (model.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validate(in); err != nil {
		return model.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, err
	}
	u := model.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, &u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return model.User{}, apperr.Conflict("Email already exists")
		}
		return model.User{}, err
	}
	s.log.Info("user created", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Login checks credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	if err := s.validate(in); err != nil {
		return Session{}, err
	}
	u, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		if store.IsNotFound(err) {
			return Session{}, apperr.Unauthorized("Invalid credentials")
		}
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return Session{}, apperr.Unauthorized("Invalid credentials")
	}
	s.auditor.Record(ctx, audit.Entry{UserID: u.ID, Action: audit.ActionLogin, EntityType: "User", EntityID: u.ID})
	return s.session(u)
}

// Refresh exchanges a refresh token for a new pair. The role is re-read so
// role changes take effect on the next refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := auth.Parse(refreshToken, s.cfg.SigningKey, s.cfg.Issuer, auth.PurposeRefresh)
	if err != nil {
		return Session{}, apperr.Unauthorized("Invalid refresh token")
	}
	u, err := s.repo.GetUser(ctx, claims.Subject)
	if err != nil {
		if store.IsNotFound(err) {
			return Session{}, apperr.Unauthorized("Invalid refresh token")
		}
		return Session{}, err
	}
	return s.session(u)
}

// ForgotPassword emails a reset link when the address is known. It never
// reveals whether an account exists.
func (s *Service) ForgotPassword(ctx context.Context, email string) {
	u, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !store.IsNotFound(err) {
			s.log.Warn("forgot password lookup failed", "error", err)
		}
		return
	}
	token, err := auth.IssueReset(u.ID, s.cfg.Issuer, s.cfg.SigningKey, s.cfg.ResetTTL)
	if err != nil {
		s.log.Error("issue reset token failed", "user_id", u.ID, "error", err)
		return
	}
	if err := s.mailer.SendPasswordReset(ctx, u.Summary(), token); err != nil {
		s.log.Warn("password reset email failed", "user_id", u.ID, "error", err)
	}
}

// ResetPassword sets a new password for the holder of a valid reset token.
// Tokens issued before the last password change are rejected.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 6 {
		return apperr.BadRequest("password must be at least 6 characters")
	}
	claims, err := auth.Parse(token, s.cfg.SigningKey, s.cfg.Issuer, auth.PurposeReset)
	if err != nil {
		return apperr.BadRequest("Invalid or expired reset token")
	}
	u, err := s.repo.GetUser(ctx, claims.Subject)
	if err != nil {
		if store.IsNotFound(err) {
			return apperr.BadRequest("Invalid or expired reset token")
		}
		return err
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.Before(u.UpdatedAt.Truncate(time.Second)) {
		return apperr.BadRequest("Invalid or expired reset token")
	}
	return s.setPassword(ctx, u.ID, newPassword)
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < 6 {
		return apperr.BadRequest("password must be at least 6 characters")
	}
	u, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return apperr.BadRequest("Current password is incorrect")
	}
	return s.setPassword(ctx, u.ID, next)
}

func (s *Service) setPassword(ctx context.Context, userID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateUserPassword(ctx, userID, string(hash), s.now().UTC()); err != nil {
		return err
	}
	s.log.Info("password changed", "user_id", userID)
	return nil
}

// Me returns the caller's account.
func (s *Service) Me(ctx context.Context, userID string) (model.User, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if store.IsNotFound(err) {
		return u, apperr.NotFound("User not found")
	}
	return u, err
}

// ListUsers lists accounts, optionally filtered by role.
func (s *Service) ListUsers(ctx context.Context, role model.Role) ([]model.User, error) {
	if role != "" && !role.Valid() {
		return nil, apperr.BadRequest("Unknown role: " + string(role))
	}
	users, err := s.repo.ListUsers(ctx, role)
	if users == nil {
		users = []model.User{}
	}
	return users, err
}

func (s *Service) session(u model.User) (Session, error) {
	pair, err := auth.Issue(u.ID, string(u.Role), s.cfg.Issuer, s.cfg.SigningKey, s.cfg.AccessTTL, s.cfg.RefreshTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Tokens: pair}, nil
}

func (s *Service) validate(v any) error {
	err := s.v.Struct(v)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, strings.ToLower(fe.Field())+" failed "+fe.Tag())
		}
		return apperr.BadRequest(strings.Join(msgs, "; "))
	}
	return err
}

type nopMailer struct{}

func (nopMailer) SendPasswordReset(context.Context, model.UserSummary, string) error { return nil }

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Entry) {}
