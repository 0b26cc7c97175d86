package domain

import (
	"context"
	"errors"
	"time"

	workspacedomain "github.com/smallbiznis/partnerpay/internal/workspace/domain"
	"gorm.io/gorm"
)

// UnsortedFolderID addresses links that are not in any folder.
const UnsortedFolderID = "unsorted"

var (
	ErrFolderNotFound     = errors.New("folder_not_found")
	ErrFoldersUnavailable = errors.New("folders_unavailable")
)

type Folder struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID string    `json:"workspaceId" gorm:"type:text;not null;index"`
	Name        string    `json:"name" gorm:"type:text;not null"`
	AccessLevel *string   `json:"accessLevel" gorm:"type:text"`
	LinkCount   int64     `json:"linkCount" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"createdAt" gorm:"not null"`
	UpdatedAt   time.Time `json:"updatedAt" gorm:"not null"`
}

func (Folder) TableName() string { return "folders" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, workspaceID string, id string) (*Folder, error)
}

type Service interface {
	// Get returns ErrFoldersUnavailable when the workspace cannot use folders.
	Get(ctx context.Context, ws *workspacedomain.Workspace, folderID string) (*Folder, error)
}
