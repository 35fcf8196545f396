// Package orchestrator coordinates payment initiation, asynchronous
// confirmation, refunds and provider fallback across the gateway adapters.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"abaisprings/internal/cache"
	"abaisprings/internal/gateway"
	"abaisprings/internal/models"
	"abaisprings/internal/pkg/utils"
	"abaisprings/internal/repository"
	"abaisprings/internal/verify"
)

// IntentStore is the durable canonical record collaborator, keyed by
// order id.
type IntentStore interface {
	Create(ctx context.Context, intent *models.PaymentIntent) error
	Update(ctx context.Context, intent *models.PaymentIntent) error
	FindByOrderID(ctx context.Context, orderID string) (*models.PaymentIntent, error)
	FindByProviderTxnID(ctx context.Context, providerTxnID string) (*models.PaymentIntent, error)
}

// RefundStore persists refund attempts and answers the cumulative-refund
// question.
type RefundStore interface {
	Create(ctx context.Context, record *models.RefundRecord) error
	SumCompletedByOrder(ctx context.Context, orderID string) (float64, error)
}

// Config tunes the orchestrator's timing behavior.
type Config struct {
	// PendingTTL bounds how long an initiated transaction may wait for
	// confirmation before it lazily resolves to timeout.
	PendingTTL time.Duration
	// EventTTL bounds the webhook replay-detection window.
	EventTTL time.Duration
	// CallTimeout bounds every blocking provider call.
	CallTimeout time.Duration
}

func (c *Config) defaults() {
	if c.PendingTTL <= 0 {
		c.PendingTTL = 15 * time.Minute
	}
	if c.EventTTL <= 0 {
		c.EventTTL = 24 * time.Hour
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
}

// Orchestrator owns the initiate/status/refund/webhook entry points.
type Orchestrator struct {
	adapters  map[string]gateway.Adapter
	verifiers map[string]verify.Verifier
	store     cache.Store
	intents   IntentStore
	refunds   RefundStore
	health    *HealthRegistry
	logger    *zap.Logger
	cfg       Config
}

func New(
	adapters map[string]gateway.Adapter,
	verifiers map[string]verify.Verifier,
	store cache.Store,
	intents IntentStore,
	refunds RefundStore,
	health *HealthRegistry,
	logger *zap.Logger,
	cfg Config,
) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{
		adapters:  adapters,
		verifiers: verifiers,
		store:     store,
		intents:   intents,
		refunds:   refunds,
		health:    health,
		logger:    logger,
		cfg:       cfg,
	}
}

// Health exposes the registry for the periodic refresh job.
func (o *Orchestrator) Health() *HealthRegistry {
	return o.health
}

// fingerprint canonicalizes an initiation payload so duplicate requests
// can be told apart from idempotency-key reuse with different data.
func fingerprint(req *models.ProcessPaymentRequest) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%.2f|%s|%s|%s|%s",
		req.OrderID, req.Amount, req.Currency, req.PaymentMethod, req.PayerIdentifier, req.PreferredGateway)))
	return hex.EncodeToString(sum[:])
}

// ProcessPayment initiates payment for an order. It returns immediately
// after the provider accepts the flow; confirmation arrives asynchronously
// via webhook or polling.
func (o *Orchestrator) ProcessPayment(ctx context.Context, req *models.ProcessPaymentRequest) (*models.ProcessPaymentResponse, error) {
	if req.OrderID == "" {
		return nil, gateway.NewError("orchestrator", gateway.KindValidation, "orderId is required")
	}
	if req.Amount <= 0 {
		return nil, gateway.NewError("orchestrator", gateway.KindValidation, "amount must be positive")
	}
	if req.Currency == "" {
		req.Currency = "KES"
	}

	idemKey := req.IdempotencyKey
	if idemKey == "" {
		idemKey = req.OrderID
	}
	fp := fingerprint(req)

	first, existing, err := o.store.PutIdempotencyKey(ctx, idemKey, fp, o.cfg.PendingTTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency check: %w", err)
	}
	if !first {
		if existing != fp {
			return nil, gateway.NewError("orchestrator", gateway.KindDuplicate,
				"idempotency key reused with a different payload")
		}
		// Same payload replayed: hand back the original attempt.
		intent, err := o.intents.FindByOrderID(ctx, req.OrderID)
		if err != nil {
			return nil, fmt.Errorf("replayed initiation lookup: %w", err)
		}
		return responseFromIntent(intent), nil
	}

	// A failed attempt must not hold the claim for the whole TTL; an
	// identical retry re-enters here as a first writer.
	releaseClaim := func() {
		if err := o.store.DeleteIdempotencyKey(ctx, idemKey); err != nil {
			o.logger.Warn("failed to release idempotency claim",
				zap.String("order_id", req.OrderID), zap.Error(err))
		}
	}

	candidates, err := o.candidates(req)
	if err != nil {
		releaseClaim()
		return nil, err
	}

	var (
		result  *gateway.InitiateResult
		adapter gateway.Adapter
		lastErr error
	)
	for _, name := range candidates {
		a, ok := o.adapters[name]
		if !ok {
			releaseClaim()
			return nil, gateway.NewError("orchestrator", gateway.KindValidation, "unknown gateway: "+name)
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		result, lastErr = a.Initiate(callCtx, &gateway.InitiateRequest{
			OrderID:         req.OrderID,
			Amount:          req.Amount,
			Currency:        req.Currency,
			PayerIdentifier: req.PayerIdentifier,
			Description:     "Abai Springs order " + req.OrderID,
			IdempotencyKey:  idemKey,
		})
		cancel()

		if lastErr == nil {
			adapter = a
			break
		}

		// Fallback only helps for provider-outage-class errors, and only
		// when the caller did not pin a gateway.
		if req.PreferredGateway != "" || !gateway.IsTransient(lastErr) {
			releaseClaim()
			return nil, lastErr
		}
		o.logger.Warn("gateway initiation failed, trying next candidate",
			zap.String("gateway", name),
			zap.String("order_id", req.OrderID),
			zap.Error(lastErr))
	}
	if adapter == nil {
		releaseClaim()
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, gateway.NewError("orchestrator", gateway.KindUnavailable, "no healthy gateway available")
	}

	now := time.Now()
	state := &cache.TransactionState{
		ProviderTransactionID: result.ProviderTransactionID,
		OrderID:               req.OrderID,
		Gateway:               adapter.Name(),
		Amount:                req.Amount,
		PayerIdentifier:       req.PayerIdentifier,
		Status:                string(gateway.StatusPending),
		InitiatedAt:           now,
		ExpiresAt:             now.Add(o.cfg.PendingTTL),
	}
	if err := o.store.SaveTransaction(ctx, state); err != nil {
		o.logger.Error("failed to save transient transaction state",
			zap.String("order_id", req.OrderID), zap.Error(err))
	}

	intent := &models.PaymentIntent{
		ID:                   utils.GenerateTransactionID(),
		OrderID:              req.OrderID,
		Amount:               req.Amount,
		Currency:             req.Currency,
		Gateway:              adapter.Name(),
		PaymentMethod:        req.PaymentMethod,
		Status:               string(gateway.StatusPending),
		GatewayTransactionID: result.ProviderTransactionID,
		Metadata:             map[string]string{"idempotency_key": idemKey},
		CreatedAt:            now,
	}
	if err := o.intents.Create(ctx, intent); err != nil {
		if errors.Is(err, repository.ErrActiveIntentExists) {
			existing, lookupErr := o.intents.FindByOrderID(ctx, req.OrderID)
			if lookupErr == nil {
				return responseFromIntent(existing), nil
			}
		}
		releaseClaim()
		return nil, fmt.Errorf("persist payment intent: %w", err)
	}

	o.logger.Info("payment initiated",
		zap.String("order_id", req.OrderID),
		zap.String("gateway", adapter.Name()),
		zap.String("transaction_id", intent.ID))

	return &models.ProcessPaymentResponse{
		TransactionID:  intent.ID,
		OrderID:        req.OrderID,
		Gateway:        adapter.Name(),
		Status:         string(gateway.StatusPending),
		RequiresAction: result.RequiresAction,
		ActionType:     result.ActionType,
		ActionPayload:  result.ActionPayload,
	}, nil
}

func (o *Orchestrator) candidates(req *models.ProcessPaymentRequest) ([]string, error) {
	if req.PreferredGateway != "" {
		if _, ok := o.adapters[req.PreferredGateway]; !ok {
			return nil, gateway.NewError("orchestrator", gateway.KindValidation,
				"unknown gateway: "+req.PreferredGateway)
		}
		return []string{req.PreferredGateway}, nil
	}

	candidates := gateway.SelectGateways(gateway.SelectionInput{
		Currency: req.Currency,
		Country:  req.Country,
		Amount:   req.Amount,
		HasPhone: req.PayerIdentifier != "" && req.PayerIdentifier[0] != '@' && !isEmail(req.PayerIdentifier),
		Health:   o.health.Snapshot(),
	})
	if len(candidates) == 0 {
		return nil, gateway.NewError("orchestrator", gateway.KindUnavailable, "no healthy gateway available")
	}
	return candidates, nil
}

func isEmail(s string) bool {
	for _, r := range s {
		if r == '@' {
			return true
		}
	}
	return false
}

func responseFromIntent(intent *models.PaymentIntent) *models.ProcessPaymentResponse {
	return &models.ProcessPaymentResponse{
		TransactionID: intent.ID,
		OrderID:       intent.OrderID,
		Gateway:       intent.Gateway,
		Status:        intent.Status,
	}
}

// CheckPaymentStatus returns the current intent status, resolving expired
// pending transactions to timeout without contacting the provider.
func (o *Orchestrator) CheckPaymentStatus(ctx context.Context, orderID string) (*models.PaymentStatusResponse, error) {
	intent, err := o.intents.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("payment lookup: %w", err)
	}

	if gateway.Status(intent.Status) != gateway.StatusPending {
		return statusResponse(intent), nil
	}

	_, err = o.store.GetTransaction(ctx, intent.GatewayTransactionID)
	if errors.Is(err, cache.ErrNotFound) {
		// Confirmation window elapsed; resolve lazily, no network call.
		if applyErr := o.applyStatus(ctx, intent, gateway.StatusTimeout, "no confirmation before expiry"); applyErr != nil {
			return nil, applyErr
		}
		return statusResponse(intent), nil
	}
	if err != nil {
		return nil, fmt.Errorf("transient state lookup: %w", err)
	}

	adapter, ok := o.adapters[intent.Gateway]
	if !ok {
		return nil, gateway.NewError("orchestrator", gateway.KindValidation, "unknown gateway: "+intent.Gateway)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	result, err := adapter.CheckStatus(callCtx, intent.GatewayTransactionID)
	cancel()
	if err != nil {
		return nil, err
	}

	if result.ProviderCaptureID != "" {
		if intent.Metadata == nil {
			intent.Metadata = make(map[string]string)
		}
		intent.Metadata["capture_id"] = result.ProviderCaptureID
	}

	if result.Status != gateway.StatusPending {
		if err := o.applyStatus(ctx, intent, result.Status, result.Raw); err != nil {
			return nil, err
		}
	} else if result.ProviderCaptureID != "" {
		if err := o.intents.Update(ctx, intent); err != nil {
			return nil, fmt.Errorf("persist capture reference: %w", err)
		}
	}
	return statusResponse(intent), nil
}

func statusResponse(intent *models.PaymentIntent) *models.PaymentStatusResponse {
	return &models.PaymentStatusResponse{
		OrderID:       intent.OrderID,
		TransactionID: intent.ID,
		Gateway:       intent.Gateway,
		Amount:        intent.Amount,
		Currency:      intent.Currency,
		Status:        intent.Status,
		FailureReason: intent.FailureReason,
	}
}

// applyStatus runs one state-machine transition and persists it. A
// same-status update is a no-op; a forbidden transition is an invariant
// violation and is logged as such.
func (o *Orchestrator) applyStatus(ctx context.Context, intent *models.PaymentIntent, to gateway.Status, reason string) error {
	from := gateway.Status(intent.Status)
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		o.logger.Error("payment state invariant violation",
			zap.String("order_id", intent.OrderID),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
		return gateway.NewError("orchestrator", gateway.KindValidation,
			fmt.Sprintf("illegal status transition %s -> %s", from, to))
	}

	intent.Status = string(to)
	if to == gateway.StatusFailed || to == gateway.StatusTimeout || to == gateway.StatusCancelled {
		intent.FailureReason = reason
	}
	if to.IsTerminal() {
		now := time.Now()
		intent.ProcessedAt = &now
	}
	if err := o.intents.Update(ctx, intent); err != nil {
		return fmt.Errorf("persist status transition: %w", err)
	}

	if to.IsTerminal() {
		if err := o.store.DeleteTransaction(ctx, intent.GatewayTransactionID); err != nil {
			o.logger.Warn("failed to delete transient state",
				zap.String("order_id", intent.OrderID), zap.Error(err))
		}
	}

	o.logger.Info("payment status transition",
		zap.String("order_id", intent.OrderID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return nil
}

// WebhookOutcome reports what a webhook delivery did.
type WebhookOutcome struct {
	OrderID   string
	Status    gateway.Status
	Duplicate bool
}

// ProcessWebhook verifies, deduplicates and applies one asynchronous
// provider confirmation. Replays of an already-processed event id are
// acknowledged without a second transition or write.
func (o *Orchestrator) ProcessWebhook(ctx context.Context, gatewayName string, headers http.Header, rawBody []byte) (*WebhookOutcome, error) {
	adapter, ok := o.adapters[gatewayName]
	if !ok {
		return nil, gateway.NewError(gatewayName, gateway.KindValidation, "unknown gateway")
	}
	verifier, ok := o.verifiers[gatewayName]
	if !ok {
		return nil, gateway.NewError(gatewayName, gateway.KindSignature, "no verifier configured")
	}

	if err := verifier.Verify(headers, rawBody); err != nil {
		return nil, gateway.WrapError(gatewayName, gateway.KindSignature, "webhook rejected", err)
	}

	result, err := adapter.ProcessWebhook(rawBody)
	if err != nil {
		return nil, err
	}

	firstDelivery, err := o.store.MarkEventOnce(ctx, gatewayName, result.EventID, o.cfg.EventTTL)
	if err != nil {
		return nil, fmt.Errorf("event dedupe: %w", err)
	}
	if !firstDelivery {
		outcome := &WebhookOutcome{Duplicate: true}
		if intent, lookupErr := o.findIntentForTxn(ctx, result.ProviderTransactionID); lookupErr == nil {
			outcome.OrderID = intent.OrderID
			outcome.Status = gateway.Status(intent.Status)
		}
		o.logger.Info("duplicate webhook event ignored",
			zap.String("gateway", gatewayName),
			zap.String("event_id", result.EventID))
		return outcome, nil
	}

	intent, err := o.findIntentForTxn(ctx, result.ProviderTransactionID)
	if err != nil {
		// Release the claim so a provider retry can succeed once the
		// intent becomes visible.
		if unmarkErr := o.store.UnmarkEvent(ctx, gatewayName, result.EventID); unmarkErr != nil {
			o.logger.Warn("failed to release webhook event claim", zap.Error(unmarkErr))
		}
		return nil, fmt.Errorf("webhook correlation: %w", err)
	}

	dirty := false
	if result.PayerInfo != "" {
		if intent.Metadata == nil {
			intent.Metadata = make(map[string]string)
		}
		intent.Metadata["payer_info"] = result.PayerInfo
		dirty = true
	}
	if result.ProviderCaptureID != "" {
		if intent.Metadata == nil {
			intent.Metadata = make(map[string]string)
		}
		intent.Metadata["capture_id"] = result.ProviderCaptureID
		dirty = true
	}

	if result.Status != gateway.StatusPending {
		if err := o.applyStatus(ctx, intent, result.Status, result.EventType); err != nil {
			if unmarkErr := o.store.UnmarkEvent(ctx, gatewayName, result.EventID); unmarkErr != nil {
				o.logger.Warn("failed to release webhook event claim", zap.Error(unmarkErr))
			}
			return nil, err
		}
	} else if dirty {
		// A pending event still carried metadata worth keeping.
		if err := o.intents.Update(ctx, intent); err != nil {
			if unmarkErr := o.store.UnmarkEvent(ctx, gatewayName, result.EventID); unmarkErr != nil {
				o.logger.Warn("failed to release webhook event claim", zap.Error(unmarkErr))
			}
			return nil, fmt.Errorf("persist webhook metadata: %w", err)
		}
	}

	return &WebhookOutcome{
		OrderID: intent.OrderID,
		Status:  gateway.Status(intent.Status),
	}, nil
}

// findIntentForTxn correlates a provider transaction id back to its
// intent, falling back to the transient state when the durable write has
// not landed yet.
func (o *Orchestrator) findIntentForTxn(ctx context.Context, providerTxnID string) (*models.PaymentIntent, error) {
	intent, err := o.intents.FindByProviderTxnID(ctx, providerTxnID)
	if err == nil {
		return intent, nil
	}

	state, stateErr := o.store.GetTransaction(ctx, providerTxnID)
	if stateErr != nil {
		return nil, err
	}
	return o.intents.FindByOrderID(ctx, state.OrderID)
}

// ProcessRefund validates the cumulative-refund bound, calls the owning
// adapter and records the outcome. The intent moves to reversed only once
// the provider confirms and the captured amount is fully returned.
func (o *Orchestrator) ProcessRefund(ctx context.Context, orderID string, req *models.RefundPaymentRequest) (*models.RefundRecord, error) {
	if req.Amount <= 0 {
		return nil, gateway.NewError("orchestrator", gateway.KindValidation, "refund amount must be positive")
	}

	intent, err := o.intents.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("payment lookup: %w", err)
	}
	if gateway.Status(intent.Status) != gateway.StatusCompleted {
		return nil, gateway.NewError("orchestrator", gateway.KindValidation,
			"only completed payments can be refunded")
	}

	refunded, err := o.refunds.SumCompletedByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("refund total lookup: %w", err)
	}
	if refunded+req.Amount > intent.Amount {
		return nil, gateway.NewError("orchestrator", gateway.KindValidation,
			fmt.Sprintf("refund of %.2f exceeds remaining captured amount %.2f",
				req.Amount, intent.Amount-refunded))
	}

	adapter, ok := o.adapters[intent.Gateway]
	if !ok {
		return nil, gateway.NewError("orchestrator", gateway.KindValidation, "unknown gateway: "+intent.Gateway)
	}

	// Providers that capture under a separate reference (PayPal) need the
	// capture id, not the originating transaction id.
	originalTxnID := intent.GatewayTransactionID
	if captureID := intent.Metadata["capture_id"]; captureID != "" {
		originalTxnID = captureID
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	result, err := adapter.Refund(callCtx, &gateway.RefundRequest{
		OriginalTransactionID: originalTxnID,
		Amount:                req.Amount,
		Currency:              intent.Currency,
		Reason:                req.Reason,
	})
	cancel()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := &models.RefundRecord{
		ID:                    utils.GenerateRefundID(),
		OrderID:               orderID,
		OriginalTransactionID: originalTxnID,
		RefundTransactionID:   result.RefundTransactionID,
		Gateway:               intent.Gateway,
		Amount:                req.Amount,
		Reason:                req.Reason,
		Status:                string(result.Status),
		ProcessedAt:           &now,
	}
	if err := o.refunds.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("persist refund record: %w", err)
	}

	if result.Status == gateway.StatusCompleted && refunded+req.Amount >= intent.Amount {
		if err := o.applyStatus(ctx, intent, gateway.StatusReversed, req.Reason); err != nil {
			return nil, err
		}
	}

	o.logger.Info("refund processed",
		zap.String("order_id", orderID),
		zap.String("gateway", intent.Gateway),
		zap.Float64("amount", req.Amount),
		zap.String("status", record.Status))

	return record, nil
}
