package service

import (
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/util"
)

// Session 当前请求的身份，按参数显式传入各服务；nil 表示访客
type Session struct {
	UserID uint
	Role   model.UserRole
	Name   string
	Token  string
}

func SessionFromClaims(claims *util.Claims, token string) *Session {
	if claims == nil {
		return nil
	}
	return &Session{
		UserID: claims.UserID,
		Role:   claims.Role,
		Name:   claims.Name,
		Token:  token,
	}
}

func (s *Session) IsGuest() bool {
	return s == nil
}

func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == model.Admin
}
