// Package deals routes leads to managers and moves deals through the
// pipeline: claiming, auto-assignment, closing, deletion.
package deals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealdesk/internal/application/service/commission"
	"dealdesk/internal/domain/entity/deals"
	"dealdesk/internal/domain/interfaces"
	"dealdesk/internal/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAtCapacity rejects a claim when the manager already carries the
	// configured maximum of open deals.
	ErrAtCapacity = errors.New("manager at deal capacity")

	// ErrDealClosed rejects state changes on terminal deals.
	ErrDealClosed = errors.New("deal is already closed")

	// ErrManagerInactive rejects assignment to a deactivated manager.
	ErrManagerInactive = errors.New("manager is inactive")

	// ErrNotOwner rejects per-deal operations by a manager who does not
	// own the deal.
	ErrNotOwner = errors.New("deal belongs to another manager")

	// ErrInvalidSkipReason rejects a skip with a reason outside the
	// accepted set.
	ErrInvalidSkipReason = errors.New("unknown skip reason")
)

// Reasons a manager may give when skipping a lead.
var skipReasons = map[string]struct{}{
	"low_margin":  {},
	"bad_product": {},
	"no_contact":  {},
	"other":       {},
}

const (
	// DefaultAssignInterval paces the auto-assignment loop.
	DefaultAssignInterval = time.Minute

	assignBatchSize = 10
)

// Service owns deal lifecycle transitions. Assignment mode and the
// per-manager cap are read from the settings store on every pass, so
// flipping free_pool to auto takes effect without a restart.
type Service struct {
	deals    interfaces.DealRepository
	managers interfaces.ManagerRepository
	settings interfaces.SettingsStore
	audit    interfaces.AuditSink
	logger   *logrus.Logger
}

func NewService(
	dealRepo interfaces.DealRepository,
	managerRepo interfaces.ManagerRepository,
	settings interfaces.SettingsStore,
	audit interfaces.AuditSink,
	logger *logrus.Logger,
) *Service {
	return &Service{
		deals:    dealRepo,
		managers: managerRepo,
		settings: settings,
		audit:    audit,
		logger:   logger,
	}
}

// Get returns a deal by id.
func (s *Service) Get(ctx context.Context, dealID int64) (*deals.Deal, error) {
	return s.deals.GetDeal(ctx, dealID)
}

// List returns deals matching the filter.
func (s *Service) List(ctx context.Context, filter interfaces.DealFilter) ([]deals.Deal, error) {
	return s.deals.ListDeals(ctx, filter)
}

// Take claims a warm deal from the free pool for the manager. The claim
// is a compare-and-set: when two managers race, exactly one wins and
// the loser gets ErrAlreadyAssigned. The commission rate is computed
// once here and frozen onto the deal.
func (s *Service) Take(ctx context.Context, dealID, managerID int64) error {
	manager, err := s.activeManager(ctx, managerID)
	if err != nil {
		return err
	}
	if err := s.checkCapacity(ctx, managerID); err != nil {
		return err
	}

	deal, err := s.deals.GetDeal(ctx, dealID)
	if err != nil {
		return err
	}
	rate := commission.Rate(deal, manager)

	if err := s.deals.ClaimDeal(ctx, dealID, managerID, rate, time.Now().UTC()); err != nil {
		return err
	}

	telemetry.DealsAssigned.WithLabelValues(interfaces.AssignmentModeFreePool).Inc()
	s.recordAudit(ctx, managerID, "deal.take", dealID, map[string]any{"rate": rate.String()})
	s.logger.WithFields(logrus.Fields{
		"deal_id":    dealID,
		"manager_id": managerID,
		"rate":       rate.String(),
	}).Info("deal claimed from free pool")
	return nil
}

// AssignPass runs one round of auto-assignment: unassigned warm deals
// go to the least-busy active manager with spare capacity. Returns how
// many deals were assigned.
func (s *Service) AssignPass(ctx context.Context) (int, error) {
	if s.settings.GetString(ctx, interfaces.SettingAssignmentMode, interfaces.DefaultAssignmentMode) != interfaces.AssignmentModeAuto {
		return 0, nil
	}

	pending, err := s.deals.ListUnassignedWarm(ctx, assignBatchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	managers, err := s.managers.ListActiveManagers(ctx)
	if err != nil {
		return 0, err
	}
	if len(managers) == 0 {
		s.logger.Warn("auto-assign: no active managers")
		return 0, nil
	}

	limit := s.settings.GetInt(ctx, interfaces.SettingMaxDealsPerManager, interfaces.DefaultMaxDealsPerManager)

	loads := make(map[int64]int, len(managers))
	for i := range managers {
		count, err := s.deals.CountActiveDeals(ctx, managers[i].ID)
		if err != nil {
			return 0, err
		}
		loads[managers[i].ID] = count
	}

	assigned := 0
	for i := range pending {
		manager := leastBusy(managers, loads, limit)
		if manager == nil {
			s.logger.Warn("auto-assign: all managers at capacity")
			break
		}

		rate := commission.Rate(&pending[i], manager)
		err := s.deals.ClaimDeal(ctx, pending[i].ID, manager.ID, rate, time.Now().UTC())
		switch {
		case errors.Is(err, interfaces.ErrAlreadyAssigned), errors.Is(err, interfaces.ErrNotWarm):
			// Someone got there first; move on.
			continue
		case err != nil:
			return assigned, err
		}

		loads[manager.ID]++
		assigned++
		telemetry.DealsAssigned.WithLabelValues(interfaces.AssignmentModeAuto).Inc()
		s.logger.WithFields(logrus.Fields{
			"deal_id":    pending[i].ID,
			"manager_id": manager.ID,
		}).Info("deal auto-assigned")
	}
	return assigned, nil
}

// RunAssignLoop periodically runs AssignPass until the context is done.
func (s *Service) RunAssignLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultAssignInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := s.AssignPass(ctx); err != nil {
				s.logger.WithError(err).Error("auto-assign pass failed")
			} else if n > 0 {
				s.logger.WithField("assigned", n).Info("auto-assign pass done")
			}
		}
	}
}

// Close finishes a deal. won records a ledger entry computed from the
// margin and the rate frozen at assignment; lost records the resolution
// note only. Either way the negotiation stage is forced to closed.
func (s *Service) Close(ctx context.Context, dealID, userID int64, won bool, resolution string) error {
	deal, err := s.deals.GetDeal(ctx, dealID)
	if err != nil {
		return err
	}
	if deal.Status.IsTerminal() {
		return ErrDealClosed
	}
	if deal.Assigned() && *deal.ManagerID != userID {
		return ErrNotOwner
	}

	var entry *deals.LedgerEntry
	if won {
		deal.Status = deals.StatusWon
		rate := s.effectiveRate(ctx, deal)
		commissionAmount := commission.Amount(deal.Margin, rate)
		deal.Profit = &deal.Margin
		entry = &deals.LedgerEntry{
			DealID:         deal.ID,
			BuyAmount:      deal.BuyPrice,
			SellAmount:     deal.SellPrice,
			Profit:         deal.Margin,
			Commission:     commissionAmount,
			RateApplied:    &rate,
			LeadSource:     deal.LeadSource,
			ClosedByUserID: userID,
			ClosedAt:       time.Now().UTC(),
		}
	} else {
		deal.Status = deals.StatusLost
	}
	if resolution != "" {
		deal.Notes = resolution
	}

	if err := s.deals.CloseDeal(ctx, deal, entry); err != nil {
		return err
	}

	outcome := "lost"
	if won {
		outcome = "won"
	}
	s.recordAudit(ctx, userID, "deal.close", dealID, map[string]any{"outcome": outcome})
	s.logger.WithFields(logrus.Fields{
		"deal_id": dealID,
		"outcome": outcome,
	}).Info("deal closed")
	return nil
}

// Delete removes a deal and everything attached to it. Irreversible.
func (s *Service) Delete(ctx context.Context, dealID, userID int64) error {
	if _, err := s.deals.GetDeal(ctx, dealID); err != nil {
		return err
	}
	if err := s.deals.DeleteDealCascade(ctx, dealID); err != nil {
		return err
	}
	s.recordAudit(ctx, userID, "deal.delete", dealID, nil)
	s.logger.WithField("deal_id", dealID).Info("deal deleted")
	return nil
}

// LeadInput describes a manager-sourced lead.
type LeadInput struct {
	Product   string
	Region    string
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal

	SellerChatID   int64
	SellerSenderID int64
	SellerListing  string

	BuyerChatID   *int64
	BuyerSenderID *int64

	Notes string
}

// CreateManagerLead stores a lead a manager found personally: two
// synthetic orders plus a deal pre-assigned to that manager at the
// manager-lead tier, already handed over.
func (s *Service) CreateManagerLead(ctx context.Context, managerID int64, input LeadInput) (*deals.Deal, error) {
	manager, err := s.activeManager(ctx, managerID)
	if err != nil {
		return nil, err
	}

	sell := &deals.Order{
		Type:     deals.OrderTypeSell,
		ChatID:   input.SellerChatID,
		SenderID: input.SellerSenderID,
		Product:  input.Product,
		Price:    &input.SellPrice,
		Region:   input.Region,
		RawText:  input.SellerListing,
		IsActive: true,
	}
	buy := &deals.Order{
		Type:     deals.OrderTypeBuy,
		Product:  input.Product,
		Price:    &input.BuyPrice,
		Region:   input.Region,
		IsActive: true,
	}
	if input.BuyerChatID != nil {
		buy.ChatID = *input.BuyerChatID
	}
	if input.BuyerSenderID != nil {
		buy.SenderID = *input.BuyerSenderID
	}

	now := time.Now().UTC()
	deal := &deals.Deal{
		Product:       input.Product,
		Region:        input.Region,
		BuyPrice:      input.BuyPrice,
		SellPrice:     input.SellPrice,
		Margin:        input.BuyPrice.Sub(input.SellPrice),
		Status:        deals.StatusHandedToManager,
		LeadSource:    deals.LeadSourceManager,
		ManagerID:     &managerID,
		AssignedAt:    &now,
		Notes:         input.Notes,
		BuyerChatID:   input.BuyerChatID,
		BuyerSenderID: input.BuyerSenderID,
	}
	rate := commission.Rate(deal, manager)
	deal.CommissionRate = &rate

	if err := s.deals.CreateLead(ctx, buy, sell, deal); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, managerID, "lead.create", deal.ID, map[string]any{"rate": rate.String()})
	s.logger.WithFields(logrus.Fields{
		"deal_id":    deal.ID,
		"manager_id": managerID,
	}).Info("manager lead created")
	return deal, nil
}

// Skip rejects a lead the manager does not want. Unassigned leads and
// the manager's own leads go to LOST with the reason recorded in the
// resolution note; leads owned by another manager are refused.
func (s *Service) Skip(ctx context.Context, dealID, managerID int64, reason string) error {
	if _, ok := skipReasons[reason]; !ok {
		return fmt.Errorf("%q: %w", reason, ErrInvalidSkipReason)
	}

	deal, err := s.deals.GetDeal(ctx, dealID)
	if err != nil {
		return err
	}
	if deal.Status.IsTerminal() {
		return ErrDealClosed
	}
	if deal.Assigned() && *deal.ManagerID != managerID {
		return ErrNotOwner
	}

	deal.Status = deals.StatusLost
	deal.AIResolution = "skipped by manager: " + reason
	if err := s.deals.CloseDeal(ctx, deal, nil); err != nil {
		return err
	}
	s.recordAudit(ctx, managerID, "deal.skip", dealID, map[string]any{"reason": reason})
	s.logger.WithFields(logrus.Fields{
		"deal_id":    dealID,
		"manager_id": managerID,
		"reason":     reason,
	}).Info("lead skipped")
	return nil
}

func (s *Service) activeManager(ctx context.Context, managerID int64) (*deals.Manager, error) {
	manager, err := s.managers.GetManager(ctx, managerID)
	if err != nil {
		return nil, err
	}
	if !manager.IsActive {
		return nil, fmt.Errorf("manager %d: %w", managerID, ErrManagerInactive)
	}
	return manager, nil
}

func (s *Service) checkCapacity(ctx context.Context, managerID int64) error {
	limit := s.settings.GetInt(ctx, interfaces.SettingMaxDealsPerManager, interfaces.DefaultMaxDealsPerManager)
	count, err := s.deals.CountActiveDeals(ctx, managerID)
	if err != nil {
		return err
	}
	if count >= limit {
		return fmt.Errorf("manager %d holds %d deals: %w", managerID, count, ErrAtCapacity)
	}
	return nil
}

// effectiveRate prefers the rate frozen at assignment; unassigned deals
// closing directly fall back to the lead-source tier.
func (s *Service) effectiveRate(ctx context.Context, deal *deals.Deal) decimal.Decimal {
	if deal.CommissionRate != nil && !deal.CommissionRate.IsZero() {
		return *deal.CommissionRate
	}
	var manager *deals.Manager
	if deal.ManagerID != nil {
		manager, _ = s.managers.GetManager(ctx, *deal.ManagerID)
	}
	return commission.Rate(deal, manager)
}

func (s *Service) recordAudit(ctx context.Context, userID int64, action string, dealID int64, metadata map[string]any) {
	s.audit.Record(ctx, interfaces.AuditEvent{
		ID:         uuid.New(),
		UserID:     userID,
		Action:     action,
		TargetType: "deal",
		TargetID:   dealID,
		Metadata:   metadata,
		At:         time.Now().UTC(),
	})
}

func leastBusy(managers []deals.Manager, loads map[int64]int, limit int) *deals.Manager {
	var best *deals.Manager
	for i := range managers {
		load := loads[managers[i].ID]
		if load >= limit {
			continue
		}
		if best == nil || load < loads[best.ID] {
			best = &managers[i]
		}
	}
	return best
}
