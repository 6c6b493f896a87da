package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	orderdb "ms-storefront/internal/order/db"
	lock "ms-storefront/internal/order/redis"
	"ms-storefront/internal/payment/services"
)

const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventPaymentIntentFailed      = "payment_intent.payment_failed"
)

// WebhookError represents an error that occurred during webhook processing
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string // safe to expose to clients
	InternalError string // logs only
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

// HandleStripeWebhook verifies a Stripe event and applies it to the ledger.
func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.Gateway.ConstructEvent(payload, signature)
	if err != nil {
		return s.webhookError(classifyVerifyError(err))
	}

	s.Logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event %s: %s", event.ID, event.Type))

	switch event.Type {
	case EventCheckoutSessionCompleted:
		orderNumber, userID := event.Metadata["order_id"], event.Metadata["user_id"]
		if orderNumber == "" || event.Session == nil {
			return s.webhookError(&WebhookError{
				Category:      "validation",
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Missing order reference",
				InternalError: fmt.Sprintf("event %s has no order_id metadata", event.ID),
			})
		}
		if _, err := s.HandleSuccessPaymentStatus(ctx, event.Session.ID, orderNumber, userID); err != nil {
			return s.webhookError(classifyProcessingError(err))
		}

	case EventPaymentIntentSucceeded:
		// settled by checkout.session.completed
		s.Logger.Debug("WEBHOOK", fmt.Sprintf("Ignoring %s", event.Type))

	case EventPaymentIntentFailed:
		orderNumber, userID := event.Metadata["order_id"], event.Metadata["user_id"]
		if orderNumber == "" {
			s.Logger.Warn("WEBHOOK", fmt.Sprintf("Payment failure %s without order metadata", event.ID))
			return nil
		}
		reason := "Payment failed"
		if event.Intent != nil && event.Intent.FailureReason != "" {
			reason = event.Intent.FailureReason
		}
		if _, err := s.HandleFailurePaymentStatus(ctx, orderNumber, userID, reason); err != nil {
			return s.webhookError(classifyProcessingError(err))
		}

	default:
		s.Logger.Info("WEBHOOK", fmt.Sprintf("Unhandled event type: %s", event.Type))
	}

	return nil
}

func (s *Service) webhookError(e *WebhookError) *WebhookError {
	s.Logger.Error("WEBHOOK", e.InternalError)
	return e
}

func classifyVerifyError(err error) *WebhookError {
	switch {
	case errors.Is(err, services.ErrWebhookNotConfigured):
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: err.Error(),
			OriginalErr:   err,
		}
	case errors.Is(err, services.ErrInvalidSignature):
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Webhook signature verification failed",
			InternalError: err.Error(),
			OriginalErr:   err,
		}
	default:
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: err.Error(),
			OriginalErr:   err,
		}
	}
}

func classifyProcessingError(err error) *WebhookError {
	we := &WebhookError{
		Category:      "processing",
		StatusCode:    http.StatusInternalServerError,
		PublicError:   "Webhook processing error",
		InternalError: err.Error(),
		OriginalErr:   err,
	}

	var notFound *orderdb.OrderNotFoundError
	var invalid *orderdb.InvalidTransitionError
	switch {
	case errors.As(err, &notFound), errors.Is(err, ErrPermissionDenied):
		we.Category = "validation"
		we.StatusCode = http.StatusBadRequest
		we.PublicError = "Unknown order"
	case errors.Is(err, lock.ErrLockHeld), errors.As(err, &invalid):
		// Stripe retries on non-2xx
		we.StatusCode = http.StatusConflict
		we.PublicError = "Order is not in a payable state"
	case errors.Is(err, services.ErrStripeAPIError):
		we.StatusCode = http.StatusBadGateway
		we.PublicError = "Payment provider error"
	}
	return we
}
