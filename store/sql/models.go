package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type completionRecord struct {
	bun.BaseModel `bun:"table:pending_form_data,alias:pfd"`

	ID            string         `bun:"id,pk"`
	PreviewID     string         `bun:"preview_id,notnull"`
	SessionID     string         `bun:"stripe_session_id,notnull"`
	EventID       string         `bun:"stripe_event_id,notnull"`
	CustomerEmail string         `bun:"customer_email,notnull"`
	FormData      map[string]any `bun:"form_data,type:jsonb,notnull"`
	Processed     bool           `bun:"processed,notnull"`
	ProcessedAt   *time.Time     `bun:"processed_at,nullzero"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:webhook_deliveries,alias:wd"`

	ID             string     `bun:"id,pk"`
	ClaimID        string     `bun:"claim_id,notnull"`
	ProviderID     string     `bun:"provider_id,notnull"`
	DeliveryID     string     `bun:"delivery_id,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	LastError      string     `bun:"last_error,notnull"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	NextAttemptAt  *time.Time `bun:"next_attempt_at,nullzero"`
	Payload        []byte     `bun:"payload"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
