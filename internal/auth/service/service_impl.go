package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/mail"
	"strings"
	"time"

	"github.com/billfold/billfold/internal/auth/domain"
	"github.com/billfold/billfold/internal/auth/password"
	"github.com/billfold/billfold/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sessionTokenBytes = 32
	sessionTTL        = 7 * 24 * time.Hour

	minPasswordLength = 8
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	users    repository.Repository[domain.User]
	sessions repository.Repository[domain.Session]
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("auth.service"),
		genID: p.GenID,

		users:    repository.ProvideStore[domain.User](p.DB),
		sessions: repository.ProvideStore[domain.Session](p.DB),
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if len(strings.TrimSpace(req.Password)) < minPasswordLength {
		return nil, domain.ErrWeakPassword
	}

	role := req.Role
	if role == "" {
		role = domain.RoleCustomer
	}
	if !role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	existing, err := s.users.FindOne(ctx, &domain.User{Email: email})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrUserExists
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = defaultDisplayName(email)
	}

	user := &domain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		PasswordHash: hashed,
		DisplayName:  displayName,
		Role:         role,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindOne(ctx, &domain.User{Email: email})
	if err != nil {
		return nil, err
	}
	if user == nil || !password.Verify(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if user.Status != domain.UserStatusActive {
		return nil, domain.ErrUserInactive
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(sessionTTL)
	session := &domain.Session{
		ID:        s.genID.Generate(),
		UserID:    user.ID,
		TokenHash: hashToken(token),
		ExpiresAt: expiresAt,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	return &domain.LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      *user,
	}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	session, err := s.sessions.FindOne(ctx, &domain.Session{TokenHash: hashToken(token)})
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	now := time.Now().UTC()
	return s.sessions.Update(ctx, session.ID.String(), map[string]any{"revoked_at": now})
}

func (s *Service) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	if strings.TrimSpace(token) == "" {
		return domain.Principal{}, domain.ErrInvalidSession
	}

	session, err := s.sessions.FindOne(ctx, &domain.Session{TokenHash: hashToken(token)})
	if err != nil {
		return domain.Principal{}, err
	}
	if session == nil {
		return domain.Principal{}, domain.ErrInvalidSession
	}
	if session.RevokedAt != nil {
		return domain.Principal{}, domain.ErrSessionRevoked
	}
	if time.Now().UTC().After(session.ExpiresAt) {
		return domain.Principal{}, domain.ErrSessionExpired
	}

	user, err := s.users.FindOne(ctx, &domain.User{ID: session.UserID})
	if err != nil {
		return domain.Principal{}, err
	}
	if user == nil {
		return domain.Principal{}, domain.ErrInvalidSession
	}
	if user.Status != domain.UserStatusActive {
		return domain.Principal{}, domain.ErrUserInactive
	}

	return domain.Principal{UserID: user.ID, Role: user.Role}, nil
}

func (s *Service) GetUser(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	user, err := s.users.FindOne(ctx, &domain.User{ID: id})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id snowflake.ID, req domain.UpdateProfileRequest) (*domain.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*req.DisplayName)
	}
	if req.Email != nil {
		email, err := normalizeEmail(*req.Email)
		if err != nil {
			return nil, domain.ErrInvalidCredentials
		}
		if email != user.Email {
			existing, err := s.users.FindOne(ctx, &domain.User{Email: email})
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return nil, domain.ErrUserExists
			}
			updates["email"] = email
		}
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.users.Update(ctx, id.String(), updates); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

func (s *Service) ChangePassword(ctx context.Context, id snowflake.ID, req domain.ChangePasswordRequest) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if !password.Verify(req.Current, user.PasswordHash) {
		return domain.ErrInvalidCredentials
	}
	if len(strings.TrimSpace(req.New)) < minPasswordLength {
		return domain.ErrWeakPassword
	}

	hashed, err := password.Hash(req.New)
	if err != nil {
		return err
	}
	return s.users.Update(ctx, id.String(), map[string]any{"password_hash": hashed})
}

func (s *Service) SetStatus(ctx context.Context, id snowflake.ID, status domain.UserStatus) error {
	if status != domain.UserStatusActive && status != domain.UserStatusInactive {
		return domain.ErrInvalidRole
	}
	if _, err := s.GetUser(ctx, id); err != nil {
		return err
	}
	return s.users.Update(ctx, id.String(), map[string]any{"status": status})
}

func newToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(addr.Address), nil
}

func defaultDisplayName(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
