package domain

import (
	"context"
	"time"

	workspacedomain "github.com/smallbiznis/partnerpay/internal/workspace/domain"
)

const (
	TokenPrefix = "embed_"
	// TokenBytes is the amount of randomness behind each public token.
	TokenBytes = 32
)

// AllowedPlans are the workspace plans that may issue embed tokens.
var AllowedPlans = []string{
	workspacedomain.PlanBusiness,
	workspacedomain.PlanBusinessPlus,
	workspacedomain.PlanBusinessExtra,
	workspacedomain.PlanBusinessMax,
	workspacedomain.PlanEnterprise,
}

type PartnerProps struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Username    string `json:"username,omitempty"`
	Image       string `json:"image,omitempty"`
	Country     string `json:"country,omitempty"`
	Description string `json:"description,omitempty"`
	TenantID    string `json:"tenantId,omitempty"`
}

type CreateRequest struct {
	ProgramID string        `json:"programId"`
	PartnerID string        `json:"partnerId,omitempty"`
	TenantID  string        `json:"tenantId,omitempty"`
	Partner   *PartnerProps `json:"partner,omitempty"`
}

type Token struct {
	PublicToken string    `json:"publicToken"`
	Expires     time.Time `json:"expires"`
}

// Session is what a public token grants access to.
type Session struct {
	ProgramID string `json:"programId"`
	PartnerID string `json:"partnerId"`
}

type Service interface {
	Create(ctx context.Context, ws *workspacedomain.Workspace, req CreateRequest) (*Token, error)
	Resolve(ctx context.Context, publicToken string) (*Session, error)
}

// Store keeps issued tokens until they expire. Load returns nil when the
// token is unknown or expired.
type Store interface {
	Save(ctx context.Context, token string, session Session, ttl time.Duration) error
	Load(ctx context.Context, token string) (*Session, error)
}
