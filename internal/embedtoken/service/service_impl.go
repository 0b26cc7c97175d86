package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/partnerpay/internal/clock"
	"github.com/smallbiznis/partnerpay/internal/config"
	"github.com/smallbiznis/partnerpay/internal/embedtoken/domain"
	"github.com/smallbiznis/partnerpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/partnerpay/internal/observability/metrics"
	partnerdomain "github.com/smallbiznis/partnerpay/internal/partner/domain"
	"github.com/smallbiznis/partnerpay/internal/ratelimit"
	workspacedomain "github.com/smallbiznis/partnerpay/internal/workspace/domain"
	"github.com/smallbiznis/partnerpay/pkg/idgen"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	rateKeyPrefix      = "embed:rate:"
	maxUsernameRetries = 5
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Clock      clock.Clock
	Partners   partnerdomain.Repository
	Store      domain.Store
	Limiter    ratelimit.Limiter   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	partners   partnerdomain.Repository
	store      domain.Store
	limiter    ratelimit.Limiter
	obsMetrics *obsmetrics.Metrics

	ttl           time.Duration
	ratePerMinute int
	rateBurst     int
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	ttl := p.Cfg.Embed.TokenTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("embedtoken.service"),
		clock:         clk,
		partners:      p.Partners,
		store:         p.Store,
		limiter:       p.Limiter,
		obsMetrics:    p.ObsMetrics,
		ttl:           ttl,
		ratePerMinute: p.Cfg.Embed.RatePerMinute,
		rateBurst:     p.Cfg.Embed.RateBurst,
	}
}

func (s *Service) Create(ctx context.Context, ws *workspacedomain.Workspace, req domain.CreateRequest) (*domain.Token, error) {
	if ws == nil {
		return nil, workspacedomain.ErrMissingWorkspace
	}
	if !ws.PlanIn(domain.AllowedPlans...) {
		return nil, domain.PlanNotAllowedError(ws.Plan)
	}

	req = normalize(req)
	if req.ProgramID == "" {
		return nil, domain.InvalidRequestError("programId is required.")
	}
	if req.PartnerID == "" && req.TenantID == "" && req.Partner == nil {
		return nil, domain.MissingTargetError()
	}
	if err := s.allow(ctx, ws.ID); err != nil {
		return nil, err
	}

	log := logger.WithContext(ctx, s.log).With(
		zap.String("workspace_id", ws.ID),
		zap.String("program_id", req.ProgramID),
	)

	enrollment, err := s.resolveEnrollment(ctx, ws, req)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		subject := req.PartnerID
		if subject == "" {
			subject = req.TenantID
		}
		return nil, domain.PartnerNotEnrolledError(subject, req.ProgramID)
	}

	token, err := newPublicToken()
	if err != nil {
		return nil, err
	}
	session := domain.Session{ProgramID: req.ProgramID, PartnerID: enrollment.PartnerID}
	if err := s.store.Save(ctx, token, session, s.ttl); err != nil {
		return nil, fmt.Errorf("store embed token: %w", err)
	}

	s.obsMetrics.RecordEmbedTokenIssued(ctx)
	log.Info("embed token issued", zap.String("partner_id", enrollment.PartnerID))

	return &domain.Token{
		PublicToken: token,
		Expires:     s.clock.Now().Add(s.ttl),
	}, nil
}

func (s *Service) Resolve(ctx context.Context, publicToken string) (*domain.Session, error) {
	publicToken = strings.TrimSpace(publicToken)
	if !strings.HasPrefix(publicToken, domain.TokenPrefix) || len(publicToken) == len(domain.TokenPrefix) {
		return nil, domain.ErrInvalidToken
	}
	session, err := s.store.Load(ctx, publicToken)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrInvalidToken
	}
	return session, nil
}

// allow fails open when the limiter backend errors.
func (s *Service) allow(ctx context.Context, workspaceID string) error {
	if s.limiter == nil || s.ratePerMinute <= 0 || s.rateBurst <= 0 {
		return nil
	}
	res, err := s.limiter.Allow(ctx, rateKeyPrefix+workspaceID, float64(s.ratePerMinute)/60, s.rateBurst)
	if err != nil {
		s.log.Warn("embed rate limiter unavailable", zap.String("workspace_id", workspaceID), zap.Error(err))
		return nil
	}
	if !res.Allowed {
		return &domain.RateLimitError{RetryAfter: res.RetryAfter}
	}
	return nil
}

func (s *Service) resolveEnrollment(ctx context.Context, ws *workspacedomain.Workspace, req domain.CreateRequest) (*partnerdomain.ProgramEnrollment, error) {
	if req.PartnerID == "" && req.TenantID == "" && req.Partner.Email == "" {
		return nil, domain.InvalidRequestError("partner.email is required.")
	}

	program, err := s.partners.FindProgram(ctx, s.db, req.ProgramID)
	if err != nil {
		return nil, err
	}
	if program == nil || program.WorkspaceID != ws.ID {
		return nil, domain.ProgramNotFoundError(req.ProgramID)
	}

	switch {
	case req.PartnerID != "":
		return s.partners.FindEnrollment(ctx, s.db, req.PartnerID, program.ID)
	case req.TenantID != "":
		return s.partners.FindEnrollmentByTenant(ctx, s.db, req.TenantID, program.ID)
	}

	props := req.Partner
	var enrollment *partnerdomain.ProgramEnrollment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		partner, err := s.partners.FindPartnerByEmail(ctx, tx, props.Email)
		if err != nil {
			return err
		}
		if partner == nil {
			partner, err = s.createPartner(ctx, tx, *props)
			if err != nil {
				return err
			}
		} else {
			enrollment, err = s.partners.FindEnrollment(ctx, tx, partner.ID, program.ID)
			if err != nil || enrollment != nil {
				return err
			}
		}
		enrollment, err = s.enroll(ctx, tx, partner.ID, program.ID, props.TenantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

func (s *Service) createPartner(ctx context.Context, tx *gorm.DB, props domain.PartnerProps) (*partnerdomain.Partner, error) {
	username, err := s.pickUsername(ctx, tx, props)
	if err != nil {
		return nil, err
	}

	name := props.Name
	if name == "" {
		name = emailLocalPart(props.Email)
	}
	now := s.clock.Now()
	partner := &partnerdomain.Partner{
		ID:          idgen.New(idgen.PrefixPartner),
		Name:        name,
		Email:       &props.Email,
		Username:    &username,
		Image:       optional(props.Image),
		Country:     optional(props.Country),
		Description: optional(props.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.partners.InsertPartner(ctx, tx, partner); err != nil {
		return nil, fmt.Errorf("create partner: %w", err)
	}
	s.log.Info("partner created", zap.String("partner_id", partner.ID), zap.String("username", username))
	return partner, nil
}

func (s *Service) enroll(ctx context.Context, tx *gorm.DB, partnerID, programID, tenantID string) (*partnerdomain.ProgramEnrollment, error) {
	now := s.clock.Now()
	enrollment := &partnerdomain.ProgramEnrollment{
		ID:        idgen.New(idgen.PrefixEnrollment),
		ProgramID: programID,
		PartnerID: partnerID,
		TenantID:  optional(tenantID),
		Status:    partnerdomain.EnrollmentStatusApproved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.partners.InsertEnrollment(ctx, tx, enrollment); err != nil {
		return nil, fmt.Errorf("enroll partner: %w", err)
	}
	return enrollment, nil
}

// pickUsername slugs the requested username, name or email, adding a numeric
// suffix until the handle is free.
func (s *Service) pickUsername(ctx context.Context, tx *gorm.DB, props domain.PartnerProps) (string, error) {
	base := ""
	for _, candidate := range []string{props.Username, props.Name, emailLocalPart(props.Email)} {
		if base = slug.Make(candidate); base != "" {
			break
		}
	}
	if base == "" {
		base = "partner"
	}

	for attempt := 1; attempt <= maxUsernameRetries; attempt++ {
		username := base
		if attempt > 1 {
			username = fmt.Sprintf("%s-%d", base, attempt)
		}
		exists, err := s.partners.UsernameExists(ctx, tx, username)
		if err != nil {
			return "", err
		}
		if !exists {
			return username, nil
		}
	}
	return base + "-" + idgen.New("")[20:], nil
}

func newPublicToken() (string, error) {
	buf := make([]byte, domain.TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate embed token: %w", err)
	}
	return domain.TokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

func normalize(req domain.CreateRequest) domain.CreateRequest {
	req.ProgramID = strings.TrimSpace(req.ProgramID)
	req.PartnerID = strings.TrimSpace(req.PartnerID)
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.Partner != nil {
		props := *req.Partner
		props.Email = strings.ToLower(strings.TrimSpace(props.Email))
		props.Name = strings.TrimSpace(props.Name)
		props.Username = strings.TrimSpace(props.Username)
		props.Image = strings.TrimSpace(props.Image)
		props.Country = strings.TrimSpace(props.Country)
		props.Description = strings.TrimSpace(props.Description)
		props.TenantID = strings.TrimSpace(props.TenantID)
		req.Partner = &props
	}
	return req
}

func emailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
