package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	SessionID       string         `json:"session_id" gorm:"type:text"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypeCheckoutCompleted = "checkout_completed"
	EventTypeCheckoutFailed    = "checkout_failed"
)

// Metadata keys attached to every checkout session.
const (
	MetadataUserID     = "user_id"
	MetadataKind       = "kind"
	MetadataPurchaseID = "purchase_id"
	MetadataPackID     = "pack_id"
	MetadataAddOnID    = "add_on_id"
	MetadataJobID      = "job_id"
)

// CheckoutEvent is the canonical checkout outcome parsed by adapters.
type CheckoutEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	SessionID       string
	Kind            string
	Metadata        map[string]string
	AmountTotal     int64
	Currency        string
	OccurredAt      time.Time
	RawPayload      []byte
}

type LineItem struct {
	Name       string
	PriceID    string
	UnitAmount int64
	Quantity   int64
}

type CheckoutSessionRequest struct {
	ClientReferenceID string
	Currency          string
	SuccessURL        string
	CancelURL         string
	LineItems         []LineItem
	Metadata          map[string]string
}

type CheckoutSession struct {
	ID          string
	URL         string
	Paid        bool
	AmountTotal int64
	Currency    string
	Metadata    map[string]string
}
