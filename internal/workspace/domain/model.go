package domain

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

const (
	PlanFree          = "free"
	PlanPro           = "pro"
	PlanBusiness      = "business"
	PlanBusinessPlus  = "business plus"
	PlanBusinessExtra = "business extra"
	PlanBusinessMax   = "business max"
	PlanEnterprise    = "enterprise"
)

const FlagLinkFolders = "linkFolders"

var (
	ErrWorkspaceNotFound = errors.New("workspace_not_found")
	ErrMissingWorkspace  = errors.New("missing_workspace")
)

type Workspace struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	Slug      string    `json:"slug" gorm:"type:text;not null;uniqueIndex"`
	Plan      string    `json:"plan" gorm:"type:text;not null;default:free"`
	Flags     Flags     `json:"flags"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Workspace) TableName() string { return "workspaces" }

// Flags is a text array on postgres and an encoded array literal elsewhere.
type Flags []string

func (f Flags) Value() (driver.Value, error) {
	return pq.StringArray(f).Value()
}

func (f *Flags) Scan(src any) error {
	return (*pq.StringArray)(f).Scan(src)
}

func (Flags) GormDataType() string { return "text" }

func (Flags) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

func (w Workspace) HasFlag(flag string) bool {
	for _, f := range w.Flags {
		if strings.EqualFold(strings.TrimSpace(f), flag) {
			return true
		}
	}
	return false
}

// PlanIn reports whether the workspace plan is one of plans.
func (w Workspace) PlanIn(plans ...string) bool {
	plan := strings.ToLower(strings.TrimSpace(w.Plan))
	for _, p := range plans {
		if plan == p {
			return true
		}
	}
	return false
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Workspace, error)
}

type Service interface {
	Get(ctx context.Context, id string) (*Workspace, error)
}
