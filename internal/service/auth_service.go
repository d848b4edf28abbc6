package service

import (
	"context"
	"errors"
	"learnbridge_backend/internal/config"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/repository"
	"learnbridge_backend/internal/util"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	UserRepo *repository.UserRepository
	Cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Cfg:      cfg,
	}
}

type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	Role        model.UserRole
	ParentEmail string // 儿童账号可关联家长
	Language    string
}

type LoginResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Register 管理员账号不能自助注册
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if in.Role == "" {
		in.Role = model.Child
	}
	if !in.Role.Valid() || in.Role == model.Admin {
		return nil, util.ErrPermissionDenied
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	_, err := s.UserRepo.FindByEmail(ctx, email)
	if err == nil {
		return nil, util.ErrEmailRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user := &model.User{
		Name:     in.Name,
		Email:    email,
		Role:     in.Role,
		Language: in.Language,
	}
	if user.Language == "" {
		user.Language = "en"
	}

	if in.Role == model.Child && in.ParentEmail != "" {
		parent, err := s.UserRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(in.ParentEmail)))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrUserNotFound
		}
		if err != nil {
			return nil, err
		}
		if parent.Role != model.Parent {
			return nil, util.ErrPermissionDenied
		}
		user.ParentID = &parent.ID
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user.Password = string(hashedPassword)
	if err := s.UserRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.UserRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, util.ErrInvalidCredential
	}
	if user.Disabled {
		return nil, util.ErrPermissionDenied
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, util.ErrInvalidCredential
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: user}, nil
}

func (s *AuthService) Profile(ctx context.Context, session *Session) (*model.User, error) {
	if session == nil {
		return nil, util.ErrPermissionDenied
	}
	user, err := s.UserRepo.FindByID(ctx, session.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrUserNotFound
	}
	return user, err
}
