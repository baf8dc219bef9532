package tenant

import "time"

// Tenant is the durable per-customer configuration row. The API key is only
// ever stored as a bcrypt hash.
type Tenant struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	TenantKey string `gorm:"type:varchar(64);uniqueIndex;not null" json:"tenant_key"`
	Name      string `gorm:"type:varchar(128);not null" json:"name"`

	APIKeyHash string `gorm:"type:varchar(128);not null" json:"-"`

	MaxRequests   int   `gorm:"not null;default:20" json:"max_requests"`
	WindowSeconds int   `gorm:"not null;default:60" json:"window_seconds"`
	MonthlyLimit  int64 `gorm:"not null;default:1000" json:"monthly_limit"`

	SessionTimeoutMinutes int `gorm:"not null;default:0" json:"session_timeout_minutes"`

	Provider     string `gorm:"type:varchar(32);not null;default:''" json:"provider"`
	Model        string `gorm:"type:varchar(64);not null;default:''" json:"model"`
	SystemPrompt string `gorm:"type:text" json:"system_prompt"`
	MaxChunks    int    `gorm:"not null;default:5" json:"max_chunks"`

	FeedbackEnabled bool `gorm:"not null;default:true" json:"feedback_enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

// Config is the request-scoped, read-only view of a tenant handed to the
// admission path. Every Resolve call produces a fresh value, so per-request
// overrides (persona prompt, chunk count) never leak into shared state.
type Config struct {
	TenantKey      string        `json:"tenant_key"`
	MaxRequests    int           `json:"max_requests"`
	WindowSeconds  int           `json:"window_seconds"`
	MonthlyLimit   int64         `json:"monthly_limit"`
	SessionTimeout time.Duration `json:"session_timeout"`

	Provider     string `json:"provider"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
	MaxChunks    int    `json:"max_chunks"`

	FeedbackEnabled bool `json:"feedback_enabled"`
}

// Window returns the rate-limit window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}
