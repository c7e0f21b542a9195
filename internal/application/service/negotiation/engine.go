// Package negotiation drives per-deal conversations: initiating
// contact, reacting to counterpart replies, and escalating deals from
// cold through in-progress to warm.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealdesk/internal/application/service/commission"
	"dealdesk/internal/domain/entity/chat"
	"dealdesk/internal/domain/entity/deals"
	"dealdesk/internal/domain/interfaces"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// ErrDealClosed rejects operations on deals in a terminal state.
	ErrDealClosed = errors.New("deal is already closed")

	// ErrNoThread means an inbound message matched no live negotiation.
	ErrNoThread = errors.New("no negotiation thread for sender")

	// ErrNotOwner rejects a manager message on a deal owned by another
	// manager.
	ErrNotOwner = errors.New("deal belongs to another manager")
)

const (
	// DefaultGenerateTimeout bounds every generator call so a stalled
	// generation service degrades to a canned message instead of
	// hanging the loop.
	DefaultGenerateTimeout = 20 * time.Second

	DefaultInitiateInterval = 30 * time.Second

	resolutionNoteLimit = 100
)

// Engine is the negotiation state machine. AI mode (copilot vs
// autopilot) is read from the settings store on every invocation, never
// cached, so operators can flip it at runtime.
type Engine struct {
	deals        interfaces.DealRepository
	orders       interfaces.OrderRepository
	negotiations interfaces.NegotiationRepository
	outbox       interfaces.OutboxRepository
	managers     interfaces.ManagerRepository
	settings     interfaces.SettingsStore
	generator    interfaces.Generator
	logger       *logrus.Logger

	generateTimeout time.Duration
}

func NewEngine(
	dealRepo interfaces.DealRepository,
	orderRepo interfaces.OrderRepository,
	negotiationRepo interfaces.NegotiationRepository,
	outboxRepo interfaces.OutboxRepository,
	managerRepo interfaces.ManagerRepository,
	settings interfaces.SettingsStore,
	generator interfaces.Generator,
	logger *logrus.Logger,
) *Engine {
	return &Engine{
		deals:           dealRepo,
		orders:          orderRepo,
		negotiations:    negotiationRepo,
		outbox:          outboxRepo,
		managers:        managerRepo,
		settings:        settings,
		generator:       generator,
		logger:          logger,
		generateTimeout: DefaultGenerateTimeout,
	}
}

// InitiateContact opens the seller conversation for a cold deal:
// creates the negotiation lazily, drafts the opening message (the
// seller never sees the buy price), and moves the deal to in-progress.
// In autopilot the draft is queued for sending; in copilot it is only
// recorded for a human to send.
func (e *Engine) InitiateContact(ctx context.Context, dealID int64) error {
	deal, err := e.deals.GetDeal(ctx, dealID)
	if err != nil {
		return err
	}
	if deal.Status.IsTerminal() {
		return ErrDealClosed
	}

	if _, err := e.negotiations.GetNegotiationByDeal(ctx, deal.ID); err == nil {
		// Already initiated.
		return nil
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return err
	}

	sellOrder, err := e.orders.GetOrder(ctx, deal.SellOrderID)
	if err != nil {
		return fmt.Errorf("sell order for deal %d: %w", deal.ID, err)
	}
	if sellOrder.ChatID == 0 {
		return fmt.Errorf("deal %d: %w", deal.ID, ErrNoThread)
	}

	negotiation := &chat.Negotiation{
		DealID:         deal.ID,
		Stage:          chat.StageInitial,
		SellerChatID:   sellOrder.ChatID,
		SellerSenderID: sellOrder.SenderID,
	}
	if err := e.negotiations.CreateNegotiation(ctx, negotiation); err != nil {
		return err
	}

	text := e.draft(ctx, chat.TargetSeller, deal, sellOrder.RawText)

	message := &chat.NegotiationMessage{
		NegotiationID: negotiation.ID,
		Role:          chat.RoleAI,
		Target:        chat.TargetSeller,
		Content:       text,
	}
	if err := e.negotiations.AddMessage(ctx, message); err != nil {
		return err
	}

	if e.aiMode(ctx) == interfaces.AIModeAutopilot {
		if err := e.enqueue(ctx, negotiation, recipientFor(chat.TargetSeller, negotiation, deal), text, nil); err != nil {
			return err
		}
	}

	deal.Status = deals.StatusInProgress
	if err := e.deals.UpdateDeal(ctx, deal); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"deal_id":        deal.ID,
		"negotiation_id": negotiation.ID,
	}).Info("negotiation initiated")
	return nil
}

// InitiatePass finds cold deals without a negotiation and initiates
// contact, batched. Called periodically.
func (e *Engine) InitiatePass(ctx context.Context) (int, error) {
	cold, err := e.deals.ListColdWithoutNegotiation(ctx, 10)
	if err != nil {
		return 0, err
	}
	initiated := 0
	for i := range cold {
		if err := e.InitiateContact(ctx, cold[i].ID); err != nil {
			e.logger.WithError(err).WithField("deal_id", cold[i].ID).Warn("initiate contact failed")
			continue
		}
		initiated++
	}
	return initiated, nil
}

// RunInitiateLoop periodically initiates contact for new cold deals.
func (e *Engine) RunInitiateLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInitiateInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := e.InitiatePass(ctx); err != nil {
				e.logger.WithError(err).Error("initiate pass failed")
			} else if n > 0 {
				e.logger.WithField("initiated", n).Info("negotiations initiated")
			}
		}
	}
}

// DraftInitial returns an opening message for the manager to review
// without sending anything. Buyer drafts never carry price information.
func (e *Engine) DraftInitial(ctx context.Context, dealID int64, target chat.MessageTarget) (string, error) {
	deal, err := e.deals.GetDeal(ctx, dealID)
	if err != nil {
		return "", err
	}
	orderID := deal.SellOrderID
	if target == chat.TargetBuyer {
		orderID = deal.BuyOrderID
	}
	listing := ""
	if order, err := e.orders.GetOrder(ctx, orderID); err == nil {
		listing = order.RawText
	}
	return e.draft(ctx, target, deal, listing), nil
}

// HandleInbound processes one merged counterpart turn. The sender is
// matched against live negotiations; the generator (or a canned
// fallback) decides whether to continue, close, or mark the deal warm.
func (e *Engine) HandleInbound(ctx context.Context, event chat.InboundEvent, text string) error {
	negotiation, target, err := e.negotiations.FindThread(ctx, event.SenderID, event.ChatID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return ErrNoThread
		}
		return err
	}
	if negotiation.Stage == chat.StageClosed {
		return nil
	}

	deal, err := e.deals.GetDeal(ctx, negotiation.DealID)
	if err != nil {
		return err
	}
	if deal.Status.IsTerminal() {
		return nil
	}

	inbound := &chat.NegotiationMessage{
		NegotiationID:     negotiation.ID,
		Role:              target.CounterpartRole(),
		Target:            target,
		Content:           text,
		ExternalMessageID: &event.ExternalMessageID,
	}
	if err := e.negotiations.AddMessage(ctx, inbound); err != nil {
		return err
	}

	reply := e.respond(ctx, target, deal, negotiation)

	switch reply.Action {
	case interfaces.ActionClose:
		return e.closeLost(ctx, deal, negotiation, text)
	case interfaces.ActionWarm:
		return e.markWarm(ctx, deal, negotiation, target, reply.Phone, text)
	default:
		return e.continueThread(ctx, deal, negotiation, target, reply.Message)
	}
}

// ManagerSend records a manager message to either side and queues it
// for delivery regardless of ai_mode. A manager's first message on an
// unassigned lead claims it: ownership, assignment time and the
// commission rate are fixed once and the deal moves to
// handed_to_manager. Messages on another manager's deal are refused.
func (e *Engine) ManagerSend(ctx context.Context, dealID, userID int64, target chat.MessageTarget, content string) error {
	deal, err := e.deals.GetDeal(ctx, dealID)
	if err != nil {
		return err
	}
	if deal.Status.IsTerminal() {
		return ErrDealClosed
	}
	if deal.Assigned() && *deal.ManagerID != userID {
		return ErrNotOwner
	}
	negotiation, err := e.negotiations.GetNegotiationByDeal(ctx, deal.ID)
	if errors.Is(err, interfaces.ErrNotFound) {
		// First manager contact on an untouched lead creates the thread.
		negotiation, err = e.createThreadForManager(ctx, deal)
	}
	if err != nil {
		return err
	}

	recipient := recipientFor(target, negotiation, deal)
	if recipient == 0 {
		return fmt.Errorf("%s contact unavailable: %w", target, interfaces.ErrNotFound)
	}

	if !deal.Assigned() {
		manager, err := e.managers.GetManager(ctx, userID)
		if err != nil {
			return err
		}
		rate := commission.Rate(deal, manager)
		now := time.Now().UTC()
		deal.ManagerID = &userID
		deal.AssignedAt = &now
		deal.CommissionRate = &rate
	}
	deal.Status = deals.StatusHandedToManager
	if err := e.deals.UpdateDeal(ctx, deal); err != nil {
		return err
	}
	if stage := chat.StageForStatus(deal.Status); stage != "" && negotiation.Stage != stage {
		if err := e.negotiations.UpdateStage(ctx, negotiation.ID, stage); err != nil {
			return err
		}
	}

	message := &chat.NegotiationMessage{
		NegotiationID: negotiation.ID,
		Role:          chat.RoleManager,
		Target:        target,
		Content:       content,
		SentByUserID:  &userID,
	}
	if err := e.negotiations.AddMessage(ctx, message); err != nil {
		return err
	}
	return e.enqueue(ctx, negotiation, recipient, content, &userID)
}

func (e *Engine) createThreadForManager(ctx context.Context, deal *deals.Deal) (*chat.Negotiation, error) {
	sellOrder, err := e.orders.GetOrder(ctx, deal.SellOrderID)
	if err != nil {
		return nil, err
	}
	negotiation := &chat.Negotiation{
		DealID:         deal.ID,
		Stage:          chat.StageInitial,
		SellerChatID:   sellOrder.ChatID,
		SellerSenderID: sellOrder.SenderID,
	}
	if err := e.negotiations.CreateNegotiation(ctx, negotiation); err != nil {
		return nil, err
	}
	return negotiation, nil
}

func (e *Engine) closeLost(ctx context.Context, deal *deals.Deal, negotiation *chat.Negotiation, lastText string) error {
	deal.Status = deals.StatusLost
	deal.AIResolution = "counterpart declined: " + truncate(lastText, resolutionNoteLimit)
	if stage := chat.StageForStatus(deal.Status); stage != "" {
		if err := e.negotiations.UpdateStage(ctx, negotiation.ID, stage); err != nil {
			return err
		}
	}
	if err := e.deals.UpdateDeal(ctx, deal); err != nil {
		return err
	}
	e.logger.WithField("deal_id", deal.ID).Info("deal lost in negotiation")
	return nil
}

func (e *Engine) markWarm(ctx context.Context, deal *deals.Deal, negotiation *chat.Negotiation, target chat.MessageTarget, phone, lastText string) error {
	deal.Status = deals.StatusWarm
	deal.AIInsight = "counterpart engaged: " + truncate(lastText, resolutionNoteLimit)
	if phone != "" {
		if target == chat.TargetBuyer {
			deal.BuyerPhone = phone
		} else {
			deal.SellerPhone = phone
		}
	}
	if stage := chat.StageForStatus(deal.Status); stage != "" {
		if err := e.negotiations.UpdateStage(ctx, negotiation.ID, stage); err != nil {
			return err
		}
	}
	if err := e.deals.UpdateDeal(ctx, deal); err != nil {
		return err
	}
	e.logger.WithField("deal_id", deal.ID).Info("deal warm, ready for manager")
	return nil
}

func (e *Engine) continueThread(ctx context.Context, deal *deals.Deal, negotiation *chat.Negotiation, target chat.MessageTarget, text string) error {
	message := &chat.NegotiationMessage{
		NegotiationID: negotiation.ID,
		Role:          chat.RoleAI,
		Target:        target,
		Content:       text,
	}
	if err := e.negotiations.AddMessage(ctx, message); err != nil {
		return err
	}

	if e.aiMode(ctx) == interfaces.AIModeAutopilot {
		if err := e.enqueue(ctx, negotiation, recipientFor(target, negotiation, deal), text, nil); err != nil {
			return err
		}
	}

	if next := negotiation.Stage.Next(); next != negotiation.Stage {
		if err := e.negotiations.UpdateStage(ctx, negotiation.ID, next); err != nil {
			return err
		}
	}

	if deal.Status == deals.StatusCold {
		deal.Status = deals.StatusInProgress
		return e.deals.UpdateDeal(ctx, deal)
	}
	return nil
}

// draft asks the generator for an opening message, degrading to a
// canned template. Price visibility: the seller side may see the sell
// price, the buyer side never sees any price.
func (e *Engine) draft(ctx context.Context, target chat.MessageTarget, deal *deals.Deal, listing string) string {
	var price *decimal.Decimal
	if target == chat.TargetSeller {
		p := deal.SellPrice
		price = &p
	}

	genCtx, cancel := context.WithTimeout(ctx, e.generateTimeout)
	defer cancel()

	text, err := e.generator.Initial(genCtx, target, deal.Product, price, listing)
	if err != nil || text == "" {
		if err != nil && !errors.Is(err, interfaces.ErrGeneratorUnavailable) {
			e.logger.WithError(err).Warn("initial draft generation failed")
		}
		return cannedInitial(target, deal.Product)
	}
	return text
}

// respond asks the generator for the next move, degrading to a canned
// continue.
func (e *Engine) respond(ctx context.Context, target chat.MessageTarget, deal *deals.Deal, negotiation *chat.Negotiation) interfaces.Reply {
	history, err := e.negotiations.ListMessages(ctx, negotiation.ID, &target)
	if err != nil {
		e.logger.WithError(err).Warn("history load failed, responding blind")
	}

	var price *decimal.Decimal
	if target == chat.TargetSeller {
		p := deal.SellPrice
		price = &p
	}

	genCtx, cancel := context.WithTimeout(ctx, e.generateTimeout)
	defer cancel()

	reply, err := e.generator.Respond(genCtx, target, deal.Product, price, history)
	if err != nil || !reply.Action.IsValid() {
		if err != nil && !errors.Is(err, interfaces.ErrGeneratorUnavailable) {
			e.logger.WithError(err).Warn("response generation failed")
		}
		return interfaces.Reply{Action: interfaces.ActionContinue, Message: cannedFollowUp()}
	}
	if reply.Action == interfaces.ActionContinue && reply.Message == "" {
		reply.Message = cannedFollowUp()
	}
	return reply
}

func (e *Engine) enqueue(ctx context.Context, negotiation *chat.Negotiation, recipientID int64, text string, userID *int64) error {
	if recipientID == 0 {
		return fmt.Errorf("recipient unavailable: %w", interfaces.ErrNotFound)
	}
	return e.outbox.Enqueue(ctx, &chat.OutboxMessage{
		RecipientID:   recipientID,
		Text:          text,
		Status:        chat.OutboxPending,
		NegotiationID: negotiation.ID,
		SentByUserID:  userID,
	})
}

func (e *Engine) aiMode(ctx context.Context) string {
	return e.settings.GetString(ctx, interfaces.SettingAIMode, interfaces.DefaultAIMode)
}

func recipientFor(target chat.MessageTarget, negotiation *chat.Negotiation, deal *deals.Deal) int64 {
	if target == chat.TargetBuyer {
		if deal.BuyerSenderID != nil {
			return *deal.BuyerSenderID
		}
		return 0
	}
	if negotiation.SellerSenderID != 0 {
		return negotiation.SellerSenderID
	}
	return negotiation.SellerChatID
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
