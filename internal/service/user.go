package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrSnakeDoc/unilend/internal/auth"
	"github.com/MrSnakeDoc/unilend/internal/docstore"
	"github.com/MrSnakeDoc/unilend/internal/domain"
	apperrors "github.com/MrSnakeDoc/unilend/internal/errors"
	"github.com/MrSnakeDoc/unilend/internal/id"
	"github.com/MrSnakeDoc/unilend/internal/logger"
	"github.com/MrSnakeDoc/unilend/internal/validation"
)

type SignUpInput struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,min=8,max=1024"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" validate:"max=100"`
	Contact         string `json:"contact" validate:"max=30"`
	Address         string `json:"address" validate:"max=500"`
	Branch          string `json:"branch" validate:"max=100"`
}

type SignInInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=1024"`
}

type ProfileInput struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Contact   string `json:"contact" validate:"max=30"`
	Address   string `json:"address" validate:"max=500"`
	Branch    string `json:"branch" validate:"max=100"`
}

type ResetPasswordInput struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required,min=8,max=1024"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// Session is a signed-in user and the bearer token that proves it.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      domain.User `json:"user"`
}

type UserConfig struct {
	SessionTTL time.Duration
	ResetTTL   time.Duration
	Hasher     auth.Hasher
}

// UserService manages accounts and sessions.
type UserService struct {
	store    docstore.Store
	sessions auth.SessionStore
	cfg      UserConfig
	validate *validation.Validator
	log      logger.Logger
	now      func() time.Time

	// signUpMu serializes the email uniqueness check within this process.
	signUpMu sync.Mutex
}

func NewUserService(store docstore.Store, sessions auth.SessionStore, cfg UserConfig, log logger.Logger) *UserService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.Hasher == (auth.Hasher{}) {
		cfg.Hasher = auth.DefaultHasher
	}
	return &UserService{
		store:    store,
		sessions: sessions,
		cfg:      cfg,
		validate: validation.New(),
		log:      log,
		now:      time.Now,
	}
}

// SignUp registers a buyer account.
func (s *UserService) SignUp(ctx context.Context, in SignUpInput) (domain.User, error) {
	in.Email = domain.NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := s.validate.Validate(in); err != nil {
		return domain.User{}, err
	}

	s.signUpMu.Lock()
	defer s.signUpMu.Unlock()

	if _, err := s.findByEmail(ctx, in.Email); err == nil {
		return domain.User{}, apperrors.AlreadyExists("an account with this email already exists")
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		return domain.User{}, err
	}

	hash, err := s.cfg.Hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, apperrors.Internal(err, "failed to hash password")
	}

	fields := map[string]any{
		domain.FieldEmail:        in.Email,
		domain.FieldFirstName:    in.FirstName,
		domain.FieldLastName:     in.LastName,
		domain.FieldContact:      strings.TrimSpace(in.Contact),
		domain.FieldAddress:      strings.TrimSpace(in.Address),
		domain.FieldBranch:       strings.TrimSpace(in.Branch),
		domain.FieldRole:         domain.RoleBuyer,
		domain.FieldAccountDate:  s.now().UTC(),
		domain.FieldPasswordHash: hash,
	}
	userID, err := s.store.Create(ctx, domain.CollectionUsers, fields)
	if err != nil {
		return domain.User{}, apperrors.Internal(err, "failed to create account")
	}

	s.log.Info("account created", logger.String("user_id", userID), logger.String("email", in.Email))
	return domain.UserFromDocument(userID, fields), nil
}

// SignIn checks the credentials and opens a session. Unknown emails and
// wrong passwords fail the same way.
func (s *UserService) SignIn(ctx context.Context, in SignInInput) (Session, error) {
	in.Email = domain.NormalizeEmail(in.Email)
	if err := s.validate.Validate(in); err != nil {
		return Session{}, err
	}

	user, err := s.findByEmail(ctx, in.Email)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return Session{}, apperrors.InvalidCredentials("invalid email or password")
		}
		return Session{}, err
	}
	if !s.cfg.Hasher.Verify(user.PasswordHash, in.Password) {
		return Session{}, apperrors.InvalidCredentials("invalid email or password")
	}

	token, err := id.Generate("sess")
	if err != nil {
		return Session{}, apperrors.Internal(err, "failed to create session")
	}
	ident := domain.Identity{UserID: user.ID, Email: user.Email}
	if err := s.sessions.SaveSession(ctx, token, ident, s.cfg.SessionTTL); err != nil {
		return Session{}, apperrors.Internal(err, "failed to create session")
	}

	s.log.Debug("signed in", logger.String("user_id", user.ID))
	return Session{Token: token, ExpiresAt: s.now().Add(s.cfg.SessionTTL).UTC(), User: user}, nil
}

func (s *UserService) SignOut(ctx context.Context, token string) error {
	if err := s.sessions.DeleteSession(ctx, token); err != nil {
		return apperrors.Internal(err, "failed to end session")
	}
	return nil
}

// Authenticate resolves a bearer token to its identity.
func (s *UserService) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, apperrors.Unauthorized("missing session token")
	}
	ident, err := s.sessions.LookupSession(ctx, token)
	if err != nil {
		if apperrors.Is(err, auth.ErrTokenNotFound) {
			return domain.Identity{}, apperrors.Unauthorized("session expired or invalid")
		}
		return domain.Identity{}, apperrors.Internal(err, "failed to check session")
	}
	return ident, nil
}

func (s *UserService) Profile(ctx context.Context, ident domain.Identity) (domain.User, error) {
	doc, err := s.store.Get(ctx, domain.CollectionUsers, ident.UserID)
	if err != nil {
		if apperrors.Is(err, docstore.ErrNotFound) {
			return domain.User{}, apperrors.NotFoundf("account %s not found", ident.UserID)
		}
		return domain.User{}, apperrors.Internal(err, "failed to load account")
	}
	return domain.UserFromDocument(doc.ID, doc.Fields), nil
}

// UpdateProfile overwrites the editable profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, ident domain.Identity, in ProfileInput) (domain.User, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := s.validate.Validate(in); err != nil {
		return domain.User{}, err
	}

	err := s.store.Update(ctx, domain.CollectionUsers, ident.UserID,
		docstore.Set(domain.FieldFirstName, in.FirstName),
		docstore.Set(domain.FieldLastName, in.LastName),
		docstore.Set(domain.FieldContact, strings.TrimSpace(in.Contact)),
		docstore.Set(domain.FieldAddress, strings.TrimSpace(in.Address)),
		docstore.Set(domain.FieldBranch, strings.TrimSpace(in.Branch)),
	)
	if err != nil {
		if apperrors.Is(err, docstore.ErrNotFound) {
			return domain.User{}, apperrors.NotFoundf("account %s not found", ident.UserID)
		}
		return domain.User{}, apperrors.Internal(err, "failed to update account")
	}
	return s.Profile(ctx, ident)
}

// RequestPasswordReset issues a reset token when the email belongs to an
// account. There is no mail transport; the token is logged. The result
// never reveals whether the account exists.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return apperrors.Validation("email is required")
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			s.log.Debug("password reset for unknown email", logger.String("email", email))
			return nil
		}
		return err
	}

	token, err := id.Generate("reset")
	if err != nil {
		return apperrors.Internal(err, "failed to create reset token")
	}
	if err := s.sessions.SaveResetToken(ctx, token, user.Email, s.cfg.ResetTTL); err != nil {
		return apperrors.Internal(err, "failed to save reset token")
	}

	s.log.Info("password reset requested",
		logger.String("email", user.Email),
		logger.String("reset_token", token),
		logger.Duration("ttl", s.cfg.ResetTTL))
	return nil
}

// ResetPassword consumes a reset token and stores the new password.
func (s *UserService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := s.validate.Validate(in); err != nil {
		return err
	}

	email, err := s.sessions.ConsumeResetToken(ctx, in.Token)
	if err != nil {
		if apperrors.Is(err, auth.ErrTokenNotFound) {
			return apperrors.Unauthorized("reset token expired or invalid")
		}
		return apperrors.Internal(err, "failed to check reset token")
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := s.cfg.Hasher.Hash(in.Password)
	if err != nil {
		return apperrors.Internal(err, "failed to hash password")
	}
	if err := s.store.Update(ctx, domain.CollectionUsers, user.ID, docstore.Set(domain.FieldPasswordHash, hash)); err != nil {
		return apperrors.Internal(err, "failed to update password")
	}

	// Sessions opened with the old password end here.
	revoked, err := s.sessions.DeleteUserSessions(ctx, user.ID)
	if err != nil {
		return apperrors.Internal(err, "password changed but sessions could not be revoked")
	}

	s.log.Info("password reset", logger.String("user_id", user.ID), logger.Int("sessions_revoked", revoked))
	return nil
}

func (s *UserService) findByEmail(ctx context.Context, email string) (domain.User, error) {
	docs, err := s.store.Query(ctx, domain.CollectionUsers, docstore.Where(domain.FieldEmail, docstore.OpEqual, email))
	if err != nil {
		return domain.User{}, apperrors.Internal(err, "failed to look up account")
	}
	if len(docs) == 0 {
		return domain.User{}, apperrors.NotFoundf("no account for %s", email)
	}
	return domain.UserFromDocument(docs[0].ID, docs[0].Fields), nil
}
