package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-storefront-orderflow/internal/apperrors"
	"github.com/imrishuroy/go-storefront-orderflow/internal/checkout"
	"github.com/imrishuroy/go-storefront-orderflow/internal/orders"
)

// Confirmer verifies a paid session and marks its order paid.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, msg checkout.PaymentConfirmed) (*orders.Order, error)
}

// Processor handles payment confirmation messages from SQS.
type Processor struct {
	confirmer Confirmer
	log       *slog.Logger
}

func NewProcessor(confirmer Confirmer, log *slog.Logger) *Processor {
	return &Processor{confirmer: confirmer, log: log}
}

// Handle processes a batch in order. The first retryable failure is returned
// so that Lambda redelivers the batch; after too many attempts SQS moves the
// message to the DLQ. Confirmation is idempotent, so redelivering messages
// that already succeeded is harmless.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.ErrorContext(ctx, "worker error", "message_id", rec.MessageId, "err", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg checkout.PaymentConfirmed
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.Event != checkout.EventPaymentConfirmed {
		p.log.WarnContext(ctx, "skipping unknown event", "message_id", rec.MessageId, "event", msg.Event)
		return nil
	}

	p.log.InfoContext(ctx, "received payment confirmation",
		"message_id", rec.MessageId, "order_id", msg.OrderID, "session_id", msg.SessionID)

	o, err := p.confirmer.ConfirmPayment(ctx, msg)
	switch apperrors.KindOf(err) {
	case apperrors.KindUnknown:
		if err != nil {
			return err
		}
		p.log.InfoContext(ctx, "payment confirmed", "order_id", o.OrderID, "order_no", o.OrderNo)
		return nil
	case apperrors.KindValidation, apperrors.KindNotFound, apperrors.KindConflict:
		// retrying cannot change the outcome
		p.log.WarnContext(ctx, "payment confirmation dropped",
			"order_id", msg.OrderID, "session_id", msg.SessionID, "reason", apperrors.KindOf(err).String(), "err", err)
		return nil
	default:
		return fmt.Errorf("confirm order %s: %w", msg.OrderID, err)
	}
}
