// Package auth はメールアドレスとパスワードによる認証と、アクセストークンの発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/donormatch/internal/model"
	"github.com/hitoshi/donormatch/internal/repository"
)

// TokenIssuer はアクセストークンを発行する。
type TokenIssuer interface {
	Issue(user *model.User) (string, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	BcryptCost int // 0の場合はbcrypt.DefaultCost
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	tokens   TokenIssuer
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, tokens TokenIssuer, config ServiceConfig) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		userRepo: userRepo,
		tokens:   tokens,
		config:   config,
	}
}

// Signup はユーザーを登録し、アクセストークンを返す。
// ロールは作成後に変更できない。
func (s *Service) Signup(ctx context.Context, email, password, role string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" || strings.TrimSpace(role) == "" {
		return "", model.NewValidationError(model.ErrCodeValidation, "Missing required fields")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", model.NewValidationError(model.ErrCodeValidation, "Invalid email address")
	}
	parsedRole, err := model.ParseRole(role)
	if err != nil {
		return "", model.NewValidationError(model.ErrCodeValidation, "Role must be 'DONOR' or 'REQUESTER'")
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return "", model.NewEmailInUseError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", model.NewValidationError(model.ErrCodeValidation, "Password is too long")
		}
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         parsedRole,
		CreatedAt:    time.Now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return "", model.NewEmailInUseError()
		}
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return s.tokens.Issue(user)
}

// Login は資格情報を検証し、アクセストークンを返す。
// 未登録のメールアドレスと誤ったパスワードは区別しない。
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", model.NewValidationError(model.ErrCodeValidation, "Missing email or password")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return "", model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", model.NewInvalidCredentialsError()
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return s.tokens.Issue(user)
}
