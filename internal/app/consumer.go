/**
 * @description
 * RabbitMQ consumer for gateway payment events. The webhook endpoint only
 * verifies and republishes; this consumer does the actual resolution by
 * funneling into the same idempotent confirmation path the client polling
 * endpoint uses.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/flashbot/wallet-service/internal/domain"
	"github.com/flashbot/wallet-service/internal/store"
)

type PaymentStatusConsumer struct {
	service *Service
}

func NewPaymentStatusConsumer(service *Service) *PaymentStatusConsumer {
	return &PaymentStatusConsumer{service: service}
}

// HandleMessage processes one payment status event. Returning true
// acknowledges the message; false requeues it for another attempt.
func (c *PaymentStatusConsumer) HandleMessage(body []byte) bool {
	var event domain.PaymentStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("payment-consumer: failed to unmarshal payload: %v", err)
		return true
	}

	if strings.TrimSpace(event.Reference) == "" {
		log.Printf("payment-consumer: missing reference in event %+v", event)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, event); err != nil {
		log.Printf("payment-consumer: processing error for reference %s: %v", event.Reference, err)
		return false
	}
	return true
}

func (c *PaymentStatusConsumer) processEvent(ctx context.Context, event domain.PaymentStatusEvent) error {
	entry, err := c.service.repo.FindEntryByReference(ctx, event.Reference)
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			log.Printf("payment-consumer: no entry for reference %s; acknowledging", event.Reference)
			return nil
		}
		return fmt.Errorf("lookup entry: %w", err)
	}

	// ConfirmPayment re-verifies against the gateway, so a forged or stale
	// event can never credit a wallet on its own.
	_, err = c.service.ConfirmPayment(ctx, entry.UserID, event.Reference)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPaymentPending):
		// The webhook raced the gateway's own settlement. Requeue.
		return err
	case errors.Is(err, ErrPaymentExpired), errors.Is(err, ErrAmountMismatch):
		log.Printf("payment-consumer: reference %s not creditable: %v", event.Reference, err)
		return nil
	default:
		return err
	}
}
