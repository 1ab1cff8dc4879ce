/**
 * @description
 * This file defines the event payloads exchanged over RabbitMQ. The gateway
 * webhook handler publishes a PaymentStatusEvent; the payment consumer feeds
 * it into the same idempotent confirmation path the polling endpoint uses.
 */

package domain

import "time"

// PaymentStatusEvent is published when the gateway notifies us about a payment
// reference, either via webhook or an operator replay.
type PaymentStatusEvent struct {
	Reference  string    `json:"reference"`
	Status     string    `json:"status"`      // successful | failed | pending
	AmountPaid int64     `json:"amount_paid"` // settled amount in kobo
	OccurredAt time.Time `json:"occurred_at"`
}

// BonusCreditedEvent is published after a signup bonus lands, for downstream
// notification fan-out.
type BonusCreditedEvent struct {
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}
