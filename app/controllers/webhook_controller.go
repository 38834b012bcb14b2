package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ApexAgent/internal/pkg/webhook"
)

const webhookTimeout = 30 * time.Second

// WebhookVerifier checks a signature over the raw request body
type WebhookVerifier interface {
	VerifyWebhook(body []byte, signature string) bool
}

// EventDispatcher applies a parsed webhook event to meeting state
type EventDispatcher interface {
	Dispatch(ctx context.Context, event webhook.Event) (webhook.Result, error)
}

// ============================================================================
// WEBHOOK CONTROLLER
// ============================================================================

// WebhookController receives the video platform's call lifecycle webhooks
type WebhookController struct {
	verifier   WebhookVerifier
	dispatcher EventDispatcher
	deliveries *webhook.Deliveries
}

// NewWebhookController creates a webhook controller. deliveries may be nil,
// which disables redelivery detection.
func NewWebhookController(verifier WebhookVerifier, dispatcher EventDispatcher, deliveries *webhook.Deliveries) *WebhookController {
	return &WebhookController{
		verifier:   verifier,
		dispatcher: dispatcher,
		deliveries: deliveries,
	}
}

// HandleWebhook verifies, de-duplicates and dispatches one delivery
func (wc *WebhookController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Signature"))
	apiKey := strings.TrimSpace(c.Get("X-Api-Key"))

	if signature == "" {
		log.Warn("[Webhook] Rejected delivery without signature header")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing signature"})
	}
	if apiKey == "" {
		log.Warn("[Webhook] Rejected delivery without api key header")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing API key"})
	}

	if !wc.verifier.VerifyWebhook(rawBody, signature) {
		log.Warnf("[Webhook] Invalid signature %s... (api key %s)", truncate(signature, 10), truncate(apiKey, 6))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid signature"})
	}

	event, err := webhook.Parse(rawBody)
	if err != nil {
		log.Warnf("[Webhook] Rejected payload: %v", err)
		return c.Status(webhook.StatusCode(err)).JSON(fiber.Map{"error": webhook.ErrorMessage(err)})
	}
	meta := event.Metadata()

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	var claim *webhook.Claim
	key := webhook.DeliveryKey(c.Get("X-Webhook-Id"))
	if wc.deliveries != nil && key != "" {
		var duplicate bool
		claim, duplicate, err = wc.deliveries.Claim(ctx, key, meta)
		if errors.Is(err, webhook.ErrDeliveryInProgress) {
			log.Infof("[Webhook] Delivery %s of %s still in progress, asking for a retry", key, meta.Type)
			return c.Status(webhook.StatusCode(err)).JSON(fiber.Map{"error": webhook.ErrorMessage(err)})
		}
		if err != nil {
			log.Errorf("[Webhook] Failed to record delivery for %s: %v", meta.Type, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
		}
		if duplicate {
			log.Infof("[Webhook] Duplicate delivery of %s for meeting %s", meta.Type, meta.MeetingID)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok", "duplicate": true})
		}
	}

	result, err := wc.dispatcher.Dispatch(ctx, event)
	status := webhook.StatusCode(err)
	if claim != nil {
		// The request context may already be cancelled; settle the claim regardless.
		settleCtx, settleCancel := context.WithTimeout(context.Background(), 5*time.Second)
		wc.deliveries.Finish(settleCtx, claim, status, err)
		settleCancel()
	}

	if err != nil {
		if status >= fiber.StatusInternalServerError {
			log.Errorf("[Webhook] %s for meeting %s failed: %v", meta.Type, meta.MeetingID, err)
		} else {
			log.Warnf("[Webhook] %s for meeting %s rejected: %v", meta.Type, meta.MeetingID, err)
		}
		return c.Status(status).JSON(fiber.Map{"error": webhook.ErrorMessage(err)})
	}

	log.Debugf("[Webhook] %s handled: %s %s", meta.Type, result.Outcome, result.MeetingID)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ============================================================================
// GLOBAL WEBHOOK CONTROLLER INSTANCE - Singleton Pattern
// ============================================================================

var webhookController *WebhookController

// InitializeWebhookController installs the global webhook controller
func InitializeWebhookController(verifier WebhookVerifier, dispatcher EventDispatcher, deliveries *webhook.Deliveries) {
	webhookController = NewWebhookController(verifier, dispatcher, deliveries)
}

// GetWebhookController returns the global webhook controller instance
func GetWebhookController() *WebhookController {
	if webhookController == nil {
		panic("webhook controller not initialized")
	}
	return webhookController
}

// HandleWebhook is the route adapter for the global controller
func HandleWebhook(c *fiber.Ctx) error {
	return GetWebhookController().HandleWebhook(c)
}
