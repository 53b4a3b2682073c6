// internal/procurement/domain.go
package procurement

import (
	"errors"
	"time"
)

type AccountState string

const (
	AccountStatePending AccountState = "pending"
	AccountStateActive  AccountState = "active"
	AccountStateDeleted AccountState = "deleted"
)

type EntitlementState string

const (
	EntitlementStatePending             EntitlementState = "pending"
	EntitlementStatePendingApproval     EntitlementState = "pending_approval"
	EntitlementStateActive              EntitlementState = "active"
	EntitlementStatePendingCancellation EntitlementState = "pending_cancellation"
	EntitlementStateCancelled           EntitlementState = "cancelled"
	EntitlementStateDeleted             EntitlementState = "deleted"
	EntitlementStateSuspended           EntitlementState = "suspended"
)

// Account is the buyer's billing identity in the marketplace. Accounts are
// never hard-deleted; deletion is a state transition.
type Account struct {
	ID         string
	ProviderID string
	State      AccountState
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Metadata   map[string]string
}

// Entitlement is a purchased order. Credential linkage (client id) is owned
// by the dcr package; lifecycle state is owned by this one.
type Entitlement struct {
	ID                 string
	AccountID          string
	State              EntitlementState
	Plan               string
	ProviderID         string
	UsageReportingID   string
	OfferStartTime     *time.Time
	OfferEndTime       *time.Time
	CancellationReason string
	Metadata           map[string]string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

var ErrNotFound = errors.New("procurement: not found")

// Marketplace lifecycle event types.
type EventType string

const (
	EventAccountCreationRequested        EventType = "ACCOUNT_CREATION_REQUESTED"
	EventAccountActive                   EventType = "ACCOUNT_ACTIVE"
	EventAccountDeleted                  EventType = "ACCOUNT_DELETED"
	EventEntitlementCreationRequested    EventType = "ENTITLEMENT_CREATION_REQUESTED"
	EventEntitlementActive               EventType = "ENTITLEMENT_ACTIVE"
	EventEntitlementPendingCancellation  EventType = "ENTITLEMENT_PENDING_CANCELLATION"
	EventEntitlementCancellationReverted EventType = "ENTITLEMENT_CANCELLATION_REVERTED"
	EventEntitlementCancelled            EventType = "ENTITLEMENT_CANCELLED"
	EventEntitlementDeleted              EventType = "ENTITLEMENT_DELETED"
	EventEntitlementPlanChangeRequested  EventType = "ENTITLEMENT_PLAN_CHANGE_REQUESTED"
	EventEntitlementPlanChanged          EventType = "ENTITLEMENT_PLAN_CHANGED"
)

// Event is the decoded payload of a marketplace push message.
type Event struct {
	EventID     string            `json:"eventId"`
	EventType   EventType         `json:"eventType"`
	ProviderID  string            `json:"providerId"`
	Account     *EventAccount     `json:"account,omitempty"`
	Entitlement *EventEntitlement `json:"entitlement,omitempty"`
}

type EventAccount struct {
	ID string `json:"id"`
}

type EventEntitlement struct {
	ID               string `json:"id"`
	Account          string `json:"account"`
	Plan             string `json:"plan,omitempty"`
	NewPlan          string `json:"newPlan,omitempty"`
	UsageReportingID string `json:"usageReportingId,omitempty"`
	CancellationNote string `json:"cancellationNote,omitempty"`
}

// PubSubMessage is the push-style delivery envelope.
type PubSubMessage struct {
	Message      Message `json:"message"`
	Subscription string  `json:"subscription"`
}

type Message struct {
	Data []byte `json:"data,omitempty"`
	ID   string `json:"messageId"`
}
