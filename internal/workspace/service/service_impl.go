package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/partnerpay/internal/workspace/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("workspace.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Workspace, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrMissingWorkspace
	}
	ws, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, domain.ErrWorkspaceNotFound
	}
	return ws, nil
}
