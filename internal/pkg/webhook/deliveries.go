package webhook

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/ApexAgent/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// staleClaimAfter is how long an unfinished delivery blocks its redeliveries.
// A claim older than this belongs to a handler that died mid-request.
const staleClaimAfter = 2 * time.Minute

type DeliveryStore interface {
	CreateIfNotExists(ctx context.Context, delivery *models.WebhookDelivery) (bool, *models.WebhookDelivery, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
	Release(ctx context.Context, id uint) error
}

// DeliveryKey identifies a delivery by the sender's webhook id. Without one the
// key is empty and the delivery is not recorded; the guarded meeting updates
// already make a replayed body safe and give it the status it deserves now.
func DeliveryKey(webhookID string) string {
	return strings.TrimSpace(webhookID)
}

// Deliveries records verified deliveries so a redelivered event is applied at
// most once. Only successfully applied deliveries count as duplicates: a
// delivery that failed is released or re-run so the platform's retry gets
// processed, and one still in flight is answered with ErrDeliveryInProgress.
type Deliveries struct {
	store DeliveryStore
	now   func() time.Time
}

func NewDeliveries(store DeliveryStore) *Deliveries {
	return &Deliveries{store: store, now: time.Now}
}

// Claim is a delivery this process is applying
type Claim struct {
	ID      uint
	Key     string
	Attempt int
}

// Claim records the delivery. It returns duplicate=true when the delivery was
// already applied, and ErrDeliveryInProgress while another request applies it.
func (d *Deliveries) Claim(ctx context.Context, key string, meta Meta) (*Claim, bool, error) {
	created, stored, err := d.store.CreateIfNotExists(ctx, newDelivery(key, meta, 1))
	if err != nil {
		return nil, false, err
	}
	if created {
		return &Claim{ID: stored.ID, Key: key, Attempt: stored.Attempt}, false, nil
	}

	switch {
	case stored.ProcessedAt != nil && stored.ProcessingError == "":
		return nil, true, nil
	case stored.ProcessedAt != nil:
		log.Infof("[Webhook] Re-running delivery %s rejected before: %s", key, stored.ProcessingError)
	case d.now().Sub(stored.CreatedAt) < staleClaimAfter:
		return nil, false, ErrDeliveryInProgress
	default:
		log.Warnf("[Webhook] Taking over stale delivery %s (attempt %d)", key, stored.Attempt)
	}

	if err := d.store.Release(ctx, stored.ID); err != nil {
		return nil, false, err
	}
	created, stored, err = d.store.CreateIfNotExists(ctx, newDelivery(key, meta, stored.Attempt+1))
	if err != nil {
		return nil, false, err
	}
	if !created {
		return nil, false, ErrDeliveryInProgress
	}
	return &Claim{ID: stored.ID, Key: key, Attempt: stored.Attempt}, false, nil
}

func newDelivery(key string, meta Meta, attempt int) *models.WebhookDelivery {
	return &models.WebhookDelivery{
		Provider:   models.WebhookProviderStream,
		DeliveryID: key,
		EventType:  meta.Type,
		MeetingID:  meta.MeetingID,
		Attempt:    attempt,
	}
}

// Finish settles a claim from the HTTP status sent back to the platform
func (d *Deliveries) Finish(ctx context.Context, claim *Claim, status int, cause error) {
	if claim == nil {
		return
	}
	if status >= http.StatusInternalServerError {
		if err := d.store.Release(ctx, claim.ID); err != nil {
			log.Errorf("[Webhook] Failed to release delivery %s: %v", claim.Key, err)
		}
		return
	}

	processingError := ""
	if cause != nil {
		processingError = cause.Error()
	}
	if err := d.store.MarkProcessed(ctx, claim.ID, processingError); err != nil {
		log.Errorf("[Webhook] Failed to mark delivery %s processed: %v", claim.Key, err)
	}
}
