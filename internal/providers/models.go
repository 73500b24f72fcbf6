package providers

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Availability is the provider's live presence state.
type Availability string

const (
	AvailabilityOnline  Availability = "online"
	AvailabilityOffline Availability = "offline"
	AvailabilityBusy    Availability = "busy"
)

// Eligibility is the provider's right to be discovered and accept work,
// governed by the verification workflow.
type Eligibility string

const (
	EligibilityNotSubmitted Eligibility = "not_submitted"
	EligibilityPending      Eligibility = "pending"
	EligibilityApproved     Eligibility = "approved"
	EligibilityRejected     Eligibility = "rejected"
	EligibilityNeedsInfo    Eligibility = "needs_info"
	EligibilityExpired      Eligibility = "expired"
)

// Provider is the field technician entity being matched and dispatched.
// Never hard-deleted; lifecycle is soft via eligibility.
type Provider struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	UserID          uuid.UUID      `db:"user_id" json:"user_id"`
	Name            string         `db:"name" json:"name"`
	Skills          pq.StringArray `db:"skills" json:"skills"`
	ServiceRadiusKm float64        `db:"service_radius_km" json:"service_radius_km"`
	BaseRate        float64        `db:"base_rate" json:"base_rate"`
	Rating          float64        `db:"rating" json:"rating"`

	Availability  Availability `db:"availability" json:"availability"`
	Eligibility   Eligibility  `db:"eligibility" json:"eligibility"`
	CanGoOnline   bool         `db:"can_go_online" json:"can_go_online"`
	EligibleUntil *time.Time   `db:"eligible_until" json:"eligible_until,omitempty"`
	ResubmitAt    *time.Time   `db:"resubmit_at" json:"resubmit_at,omitempty"`

	Lat          *float64   `db:"lat" json:"lat,omitempty"`
	Lng          *float64   `db:"lng" json:"lng,omitempty"`
	Cell         *string    `db:"cell" json:"cell,omitempty"`
	LastActiveAt *time.Time `db:"last_active_at" json:"last_active_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Eligible reports whether the provider may be discovered or accept work
// at the given instant.
func (p *Provider) Eligible(now time.Time) bool {
	return p.Eligibility == EligibilityApproved &&
		p.EligibleUntil != nil && p.EligibleUntil.After(now)
}

// AuditEntry is an append-only record of a provider state change.
type AuditEntry struct {
	ID         int64     `db:"id" json:"id"`
	ProviderID uuid.UUID `db:"provider_id" json:"provider_id"`
	Action     string    `db:"action" json:"action"`
	Actor      string    `db:"actor" json:"actor"`
	At         time.Time `db:"at" json:"at"`
	Summary    string    `db:"summary" json:"summary"`
}
