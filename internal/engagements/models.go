package engagements

import (
	"time"

	"github.com/google/uuid"
)

// Status moves through the fixed lifecycle enforced by the transition
// table in pkg/workflows.
type Status string

const (
	StatusRequested  Status = "requested"
	StatusAccepted   Status = "accepted"
	StatusArrived    Status = "arrived"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusClosed     Status = "closed"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
)

// PaymentStatus tracks the money side independently of the work side.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Schedule is the requested service slot.
type Schedule struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Engagement is a booking from request through payment closure. The
// provider reference is immutable after creation; the record is never
// mutated after closed.
type Engagement struct {
	ID          uuid.UUID `db:"id" json:"id"`
	RequesterID uuid.UUID `db:"requester_id" json:"requester_id"`
	ProviderID  uuid.UUID `db:"provider_id" json:"provider_id"`

	ScheduleDate string  `db:"schedule_date" json:"schedule_date"`
	ScheduleTime string  `db:"schedule_time" json:"schedule_time"`
	Description  string  `db:"description" json:"description"`
	Lat          float64 `db:"lat" json:"lat"`
	Lng          float64 `db:"lng" json:"lng"`
	Amount       float64 `db:"amount" json:"amount"`

	Status        Status        `db:"status" json:"status"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"payment_status"`

	// One-time codes proving physical co-presence. Delivered out-of-band
	// to the requester; kept after consumption for audit.
	StartCode    string `db:"start_code" json:"-"`
	CompleteCode string `db:"complete_code" json:"-"`

	PlatformFee     *float64 `db:"platform_fee" json:"platform_fee,omitempty"`
	ProviderEarning *float64 `db:"provider_earning" json:"provider_earning,omitempty"`
	PaymentOrderID  *string  `db:"payment_order_id" json:"payment_order_id,omitempty"`
	PaymentRef      *string  `db:"payment_ref" json:"payment_ref,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CreateRequest is the payload for a new engagement.
type CreateRequest struct {
	ProviderID  uuid.UUID `json:"provider_id" binding:"required"`
	Schedule    Schedule  `json:"schedule" binding:"required"`
	Description string    `json:"description"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Amount      float64   `json:"amount" binding:"required,gt=0"`
}

// Snapshot is the full-state payload published on every transition. It
// includes the codes only for the requester's channel; the provider copy
// has them blanked.
type Snapshot struct {
	Engagement
	StartCode    string `json:"start_code,omitempty"`
	CompleteCode string `json:"complete_code,omitempty"`
}

// RequesterSnapshot includes the one-time codes.
func (e *Engagement) RequesterSnapshot() Snapshot {
	return Snapshot{Engagement: *e, StartCode: e.StartCode, CompleteCode: e.CompleteCode}
}

// ProviderSnapshot omits the one-time codes.
func (e *Engagement) ProviderSnapshot() Snapshot {
	return Snapshot{Engagement: *e}
}
