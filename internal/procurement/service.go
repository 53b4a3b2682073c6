// internal/procurement/service.go
package procurement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"billgate/pkg/metrics"
)

// Service drives account and entitlement lifecycle state from marketplace
// events. Processing failures are logged, never escalated: the event bus
// guarantees redelivery and the operator can approve manually.
type Service struct {
	log          *zap.SugaredLogger
	accounts     AccountRepo
	entitlements EntitlementRepo
	approver     Approver
}

func NewService(log *zap.SugaredLogger, accounts AccountRepo, entitlements EntitlementRepo, approver Approver) *Service {
	return &Service{log: log, accounts: accounts, entitlements: entitlements, approver: approver}
}

// HandleEvent dispatches one lifecycle event. Unknown event types are
// acknowledged: the bus delivers every type, not just the ones this
// consumer understands.
func (s *Service) HandleEvent(ctx context.Context, ev Event) error {
	metrics.EventsProcessed.WithLabelValues(string(ev.EventType)).Inc()

	switch ev.EventType {
	case EventAccountCreationRequested:
		return s.accountCreationRequested(ctx, ev)
	case EventAccountActive:
		return s.accountActive(ctx, ev)
	case EventAccountDeleted:
		return s.accountDeleted(ctx, ev)
	case EventEntitlementCreationRequested:
		return s.entitlementCreationRequested(ctx, ev)
	case EventEntitlementActive:
		return s.entitlementActive(ctx, ev)
	case EventEntitlementPendingCancellation:
		return s.entitlementPendingCancellation(ctx, ev)
	case EventEntitlementCancellationReverted:
		return s.entitlementCancellationReverted(ctx, ev)
	case EventEntitlementCancelled:
		return s.entitlementCancelled(ctx, ev)
	case EventEntitlementDeleted:
		return s.entitlementDeleted(ctx, ev)
	case EventEntitlementPlanChangeRequested:
		return s.entitlementPlanChangeRequested(ctx, ev)
	case EventEntitlementPlanChanged:
		return s.entitlementPlanChanged(ctx, ev)
	default:
		s.log.Warnw("unknown marketplace event type, ignoring", "type", ev.EventType, "eventId", ev.EventID)
		return nil
	}
}

func (s *Service) accountCreationRequested(ctx context.Context, ev Event) error {
	if ev.Account == nil || ev.Account.ID == "" {
		return fmt.Errorf("account event %s missing account payload", ev.EventID)
	}
	acct, err := s.ensureAccount(ctx, ev.Account.ID, ev.ProviderID)
	if err != nil {
		return err
	}
	if acct.State != AccountStatePending {
		s.log.Infow("account creation replayed, state unchanged", "account", acct.ID, "state", acct.State)
		return nil
	}
	if err := s.approver.ApproveAccount(ctx, acct.ID, "auto-approved on signup"); err != nil {
		// Stay pending; the marketplace redelivers or the operator approves.
		s.log.Warnw("account approval failed", "account", acct.ID, "err", err)
		return nil
	}
	acct.State = AccountStateActive
	return s.accounts.Upsert(ctx, acct)
}

func (s *Service) accountActive(ctx context.Context, ev Event) error {
	if ev.Account == nil || ev.Account.ID == "" {
		return fmt.Errorf("account event %s missing account payload", ev.EventID)
	}
	acct, err := s.ensureAccount(ctx, ev.Account.ID, ev.ProviderID)
	if err != nil {
		return err
	}
	if acct.State == AccountStateActive {
		return nil
	}
	acct.State = AccountStateActive
	return s.accounts.Upsert(ctx, acct)
}

func (s *Service) accountDeleted(ctx context.Context, ev Event) error {
	if ev.Account == nil || ev.Account.ID == "" {
		return fmt.Errorf("account event %s missing account payload", ev.EventID)
	}
	acct, err := s.accounts.Get(ctx, ev.Account.ID)
	if err == ErrNotFound {
		s.log.Warnw("delete for unknown account, ignoring", "account", ev.Account.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if acct.State == AccountStateDeleted {
		return nil
	}
	acct.State = AccountStateDeleted
	return s.accounts.Upsert(ctx, acct)
}

func (s *Service) entitlementCreationRequested(ctx context.Context, ev Event) error {
	pl := ev.Entitlement
	if pl == nil || pl.ID == "" {
		return fmt.Errorf("entitlement event %s missing entitlement payload", ev.EventID)
	}
	if _, err := s.ensureAccount(ctx, pl.Account, ev.ProviderID); err != nil {
		return err
	}

	ent, err := s.entitlements.Get(ctx, pl.ID)
	if err == ErrNotFound {
		ent = &Entitlement{
			ID:               pl.ID,
			AccountID:        pl.Account,
			State:            EntitlementStatePendingApproval,
			Plan:             pl.Plan,
			ProviderID:       ev.ProviderID,
			UsageReportingID: pl.UsageReportingID,
		}
		if err := s.entitlements.Upsert(ctx, ent); err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else if ent.State != EntitlementStatePendingApproval {
		s.log.Infow("entitlement creation replayed, state unchanged", "entitlement", ent.ID, "state", ent.State)
		return nil
	}

	// Approval success does not activate the entitlement; the marketplace
	// confirms with ENTITLEMENT_ACTIVE.
	if err := s.approver.ApproveEntitlement(ctx, ent.ID); err != nil {
		s.log.Warnw("entitlement approval failed", "entitlement", ent.ID, "err", err)
	}
	return nil
}

func (s *Service) entitlementActive(ctx context.Context, ev Event) error {
	ent, pl, err := s.loadEntitlement(ctx, ev)
	if err != nil || ent == nil {
		return err
	}
	switch ent.State {
	case EntitlementStateActive:
		return nil
	case EntitlementStatePendingApproval, EntitlementStateSuspended:
		ent.State = EntitlementStateActive
		if pl.Plan != "" {
			ent.Plan = pl.Plan
		}
		if pl.UsageReportingID != "" {
			ent.UsageReportingID = pl.UsageReportingID
		}
		return s.entitlements.Upsert(ctx, ent)
	default:
		s.log.Warnw("ignoring ENTITLEMENT_ACTIVE in state", "entitlement", ent.ID, "state", ent.State)
		return nil
	}
}

func (s *Service) entitlementPendingCancellation(ctx context.Context, ev Event) error {
	ent, pl, err := s.loadEntitlement(ctx, ev)
	if err != nil || ent == nil {
		return err
	}
	switch ent.State {
	case EntitlementStatePendingCancellation:
		return nil
	case EntitlementStateActive:
		ent.State = EntitlementStatePendingCancellation
		ent.CancellationReason = pl.CancellationNote
		return s.entitlements.Upsert(ctx, ent)
	default:
		s.log.Warnw("ignoring ENTITLEMENT_PENDING_CANCELLATION in state", "entitlement", ent.ID, "state", ent.State)
		return nil
	}
}

func (s *Service) entitlementCancellationReverted(ctx context.Context, ev Event) error {
	ent, _, err := s.loadEntitlement(ctx, ev)
	if err != nil || ent == nil {
		return err
	}
	switch ent.State {
	case EntitlementStateActive:
		return nil
	case EntitlementStatePendingCancellation:
		ent.State = EntitlementStateActive
		ent.CancellationReason = ""
		return s.entitlements.Upsert(ctx, ent)
	default:
		s.log.Warnw("ignoring ENTITLEMENT_CANCELLATION_REVERTED in state", "entitlement", ent.ID, "state", ent.State)
		return nil
	}
}

func (s *Service) entitlementCancelled(ctx context.Context, ev Event) error {
	ent, pl, err := s.loadEntitlement(ctx, ev)
	if err != nil || ent == nil {
		return err
	}
	switch ent.State {
	case EntitlementStateCancelled:
		return nil
	case EntitlementStateDeleted:
		s.log.Warnw("ignoring ENTITLEMENT_CANCELLED after deletion", "entitlement", ent.ID)
		return nil
	default:
		ent.State = EntitlementStateCancelled
		if pl.CancellationNote != "" {
			ent.CancellationReason = pl.CancellationNote
		}
		return s.entitlements.Upsert(ctx, ent)
	}
}

func (s *Service) entitlementDeleted(ctx context.Context, ev Event) error {
	ent, _, err := s.loadEntitlement(ctx, ev)
	if err != nil || ent == nil {
		return err
	}
	switch ent.State {
	case EntitlementStateDeleted:
		return nil
	case EntitlementStateCancelled:
		ent.State = EntitlementStateDeleted
		return s.entitlements.Upsert(ctx, ent)
	default:
		s.log.Warnw("ignoring ENTITLEMENT_DELETED in state", "entitlement", ent.ID, "state", ent.State)
		return nil
	}
}

func (s *Service) entitlementPlanChangeRequested(ctx context.Context, ev Event) error {
	ent, pl, err := s.loadEntitlement(ctx, ev)
	if err != nil || ent == nil {
		return err
	}
	if ent.State != EntitlementStateActive {
		s.log.Warnw("plan change requested for non-active entitlement", "entitlement", ent.ID, "state", ent.State)
		return nil
	}
	if err := s.approver.ApprovePlanChange(ctx, ent.ID, pl.NewPlan); err != nil {
		s.log.Warnw("plan change approval failed", "entitlement", ent.ID, "err", err)
	}
	// Plan is updated when the marketplace confirms with ENTITLEMENT_PLAN_CHANGED.
	return nil
}

func (s *Service) entitlementPlanChanged(ctx context.Context, ev Event) error {
	ent, pl, err := s.loadEntitlement(ctx, ev)
	if err != nil || ent == nil {
		return err
	}
	newPlan := pl.NewPlan
	if newPlan == "" {
		newPlan = pl.Plan
	}
	if newPlan == "" || ent.Plan == newPlan {
		return nil
	}
	ent.Plan = newPlan
	return s.entitlements.Upsert(ctx, ent)
}

// loadEntitlement resolves the entitlement referenced by the event. A nil
// entitlement with nil error means "unknown, logged, acknowledge".
func (s *Service) loadEntitlement(ctx context.Context, ev Event) (*Entitlement, *EventEntitlement, error) {
	pl := ev.Entitlement
	if pl == nil || pl.ID == "" {
		return nil, nil, fmt.Errorf("entitlement event %s missing entitlement payload", ev.EventID)
	}
	ent, err := s.entitlements.Get(ctx, pl.ID)
	if err == ErrNotFound {
		s.log.Warnw("event for unknown entitlement, ignoring", "entitlement", pl.ID, "type", ev.EventType)
		return nil, pl, nil
	}
	if err != nil {
		return nil, pl, err
	}
	return ent, pl, nil
}

func (s *Service) ensureAccount(ctx context.Context, id, providerID string) (*Account, error) {
	if id == "" {
		return nil, fmt.Errorf("account id missing")
	}
	acct, err := s.accounts.Get(ctx, id)
	if err == nil {
		return acct, nil
	}
	if err != ErrNotFound {
		return nil, err
	}
	acct = &Account{ID: id, ProviderID: providerID, State: AccountStatePending}
	if err := s.accounts.Upsert(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}
