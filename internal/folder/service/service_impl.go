package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/partnerpay/internal/cache"
	"github.com/smallbiznis/partnerpay/internal/folder/domain"
	"github.com/smallbiznis/partnerpay/internal/observability/logger"
	workspacedomain "github.com/smallbiznis/partnerpay/internal/workspace/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CacheTTL matches how long clients dedupe folder reads.
const CacheTTL = 60 * time.Second

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Cache cache.Store `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	cache cache.Store
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("folder.service"),
		repo:  p.Repo,
		cache: p.Cache,
	}
}

func CacheKey(workspaceID, folderID string) string {
	return fmt.Sprintf("folder:%s:%s", workspaceID, folderID)
}

func (s *Service) Get(ctx context.Context, ws *workspacedomain.Workspace, folderID string) (*domain.Folder, error) {
	if ws == nil {
		return nil, workspacedomain.ErrMissingWorkspace
	}
	folderID = strings.TrimSpace(folderID)
	if folderID == "" || folderID == domain.UnsortedFolderID {
		return nil, domain.ErrFolderNotFound
	}
	if ws.PlanIn(workspacedomain.PlanFree) || !ws.HasFlag(workspacedomain.FlagLinkFolders) {
		return nil, domain.ErrFoldersUnavailable
	}

	log := logger.WithContext(ctx, s.log).With(
		zap.String("workspace_id", ws.ID),
		zap.String("folder_id", folderID),
	)
	key := CacheKey(ws.ID, folderID)

	if s.cache != nil {
		var cached domain.Folder
		ok, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Warn("folder cache read failed", zap.Error(err))
		} else if ok {
			return &cached, nil
		}
	}

	folder, err := s.repo.FindByID(ctx, s.db, ws.ID, folderID)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, domain.ErrFolderNotFound
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, folder, CacheTTL); err != nil {
			log.Warn("folder cache write failed", zap.Error(err))
		}
	}
	return folder, nil
}
