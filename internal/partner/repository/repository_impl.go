package repository

import (
	"context"

	"github.com/smallbiznis/partnerpay/internal/partner/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindProgram(ctx context.Context, db *gorm.DB, id string) (*domain.Program, error) {
	var item domain.Program
	err := db.WithContext(ctx).Raw(
		`SELECT id, workspace_id, name, slug, created_at, updated_at
		 FROM programs
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

func (r *repo) FindPartnerByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Partner, error) {
	var item domain.Partner
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, username, image, country, description,
			stripe_connect_id, created_at, updated_at
		 FROM partners
		 WHERE email = ?
		 LIMIT 1`,
		email,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindEnrollment(ctx context.Context, db *gorm.DB, partnerID string, programID string) (*domain.ProgramEnrollment, error) {
	return r.findEnrollment(ctx, db, `partner_id = ? AND program_id = ?`, partnerID, programID)
}

func (r *repo) FindEnrollmentByTenant(ctx context.Context, db *gorm.DB, tenantID string, programID string) (*domain.ProgramEnrollment, error) {
	return r.findEnrollment(ctx, db, `tenant_id = ? AND program_id = ?`, tenantID, programID)
}

func (r *repo) findEnrollment(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.ProgramEnrollment, error) {
	var item domain.ProgramEnrollment
	err := db.WithContext(ctx).Raw(
		`SELECT id, program_id, partner_id, tenant_id, status, created_at, updated_at
		 FROM program_enrollments
		 WHERE `+where+`
		 LIMIT 1`,
		args...,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UsernameExists(ctx context.Context, db *gorm.DB, username string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM partners WHERE username = ?`,
		username,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) InsertPartner(ctx context.Context, db *gorm.DB, partner *domain.Partner) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO partners (
			id, name, email, username, image, country, description,
			stripe_connect_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		partner.ID,
		partner.Name,
		partner.Email,
		partner.Username,
		partner.Image,
		partner.Country,
		partner.Description,
		partner.StripeConnectID,
		partner.CreatedAt,
		partner.UpdatedAt,
	).Error
}

func (r *repo) InsertEnrollment(ctx context.Context, db *gorm.DB, enrollment *domain.ProgramEnrollment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO program_enrollments (
			id, program_id, partner_id, tenant_id, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		enrollment.ID,
		enrollment.ProgramID,
		enrollment.PartnerID,
		enrollment.TenantID,
		enrollment.Status,
		enrollment.CreatedAt,
		enrollment.UpdatedAt,
	).Error
}
