package repository

import (
	"context"

	"github.com/smallbiznis/partnerpay/internal/folder/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, workspaceID string, id string) (*domain.Folder, error) {
	var item domain.Folder
	err := db.WithContext(ctx).Raw(
		`SELECT id, workspace_id, name, access_level, link_count, created_at, updated_at
		 FROM folders
		 WHERE workspace_id = ? AND id = ?
		 LIMIT 1`,
		workspaceID,
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
