package repository

import (
	"context"

	"github.com/smallbiznis/partnerpay/internal/workspace/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Workspace, error) {
	var item domain.Workspace
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, plan, flags, created_at, updated_at
		 FROM workspaces
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}
