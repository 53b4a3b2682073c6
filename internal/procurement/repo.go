// internal/procurement/repo.go
package procurement

import (
	"context"
)

type AccountRepo interface {
	Get(ctx context.Context, id string) (*Account, error)
	Upsert(ctx context.Context, a *Account) error
}

type EntitlementRepo interface {
	Get(ctx context.Context, id string) (*Entitlement, error)
	Upsert(ctx context.Context, e *Entitlement) error
}

// Approver is the external Procurement API used for auto-approval.
type Approver interface {
	ApproveAccount(ctx context.Context, accountID, reason string) error
	ApproveEntitlement(ctx context.Context, entitlementID string) error
	ApprovePlanChange(ctx context.Context, entitlementID, newPlan string) error
}
