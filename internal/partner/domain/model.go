package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	EnrollmentStatusApproved = "approved"
	EnrollmentStatusPending  = "pending"
	EnrollmentStatusBanned   = "banned"
)

var (
	ErrProgramNotFound    = errors.New("program_not_found")
	ErrPartnerNotFound    = errors.New("partner_not_found")
	ErrPartnerNotEnrolled = errors.New("partner_not_enrolled")
	ErrInvalidPartner     = errors.New("invalid_partner")
)

type Program struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	WorkspaceID string    `json:"workspace_id" gorm:"type:text;not null;index"`
	Name        string    `json:"name" gorm:"type:text;not null"`
	Slug        string    `json:"slug" gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"not null"`
}

func (Program) TableName() string { return "programs" }

type Partner struct {
	ID              string    `json:"id" gorm:"primaryKey;type:text"`
	Name            string    `json:"name" gorm:"type:text;not null"`
	Email           *string   `json:"email,omitempty" gorm:"type:text;uniqueIndex"`
	Username        *string   `json:"username,omitempty" gorm:"type:text;uniqueIndex"`
	Image           *string   `json:"image,omitempty" gorm:"type:text"`
	Country         *string   `json:"country,omitempty" gorm:"type:text"`
	Description     *string   `json:"description,omitempty" gorm:"type:text"`
	StripeConnectID *string   `json:"stripe_connect_id,omitempty" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"not null"`
}

func (Partner) TableName() string { return "partners" }

// ProgramEnrollment links a partner to a program. TenantID is the workspace's
// own identifier for the partner, unique per program.
type ProgramEnrollment struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	ProgramID string    `json:"program_id" gorm:"type:text;not null;uniqueIndex:ux_enrollment_partner_program,priority:2;uniqueIndex:ux_enrollment_tenant_program,priority:2"`
	PartnerID string    `json:"partner_id" gorm:"type:text;not null;uniqueIndex:ux_enrollment_partner_program,priority:1"`
	TenantID  *string   `json:"tenant_id,omitempty" gorm:"type:text;uniqueIndex:ux_enrollment_tenant_program,priority:1"`
	Status    string    `json:"status" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (ProgramEnrollment) TableName() string { return "program_enrollments" }

type Repository interface {
	FindProgram(ctx context.Context, db *gorm.DB, id string) (*Program, error)
	FindPartnerByEmail(ctx context.Context, db *gorm.DB, email string) (*Partner, error)
	FindEnrollment(ctx context.Context, db *gorm.DB, partnerID string, programID string) (*ProgramEnrollment, error)
	FindEnrollmentByTenant(ctx context.Context, db *gorm.DB, tenantID string, programID string) (*ProgramEnrollment, error)
	UsernameExists(ctx context.Context, db *gorm.DB, username string) (bool, error)
	InsertPartner(ctx context.Context, db *gorm.DB, partner *Partner) error
	InsertEnrollment(ctx context.Context, db *gorm.DB, enrollment *ProgramEnrollment) error
}
