package service

import (
	"context"
	"time"

	"github.com/sugarsphere/backend/internal/logging"
	"github.com/sugarsphere/backend/internal/models"
	"github.com/sugarsphere/backend/internal/payment"
)

// Gateway is the slice of the payment client the order flow needs.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*payment.Intent, error)
	VerifySignature(chargeIntentID, paymentID, signature string) bool
}

// Pusher delivers live updates to connected sessions. Nil-safe everywhere: a
// missing hub just means nobody is listening.
type Pusher interface {
	ToUser(userID uint, event string, data interface{})
	ToAdmins(event string, data interface{})
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event interface{}) error
}

type MailSender interface {
	SendVerificationEmail(ctx context.Context, to, name, token string) error
	SendPasswordResetEmail(ctx context.Context, to, name, token string) error
	SendInvoiceEmail(ctx context.Context, to, name string, order *models.Order, paymentID string) error
	SendOrderStatusEmail(ctx context.Context, to, name string, orderID uint, status, statusMessage string) error
}

// publish is the shared fire-and-forget event helper: failures are logged
// and swallowed, never surfaced to the caller.
func publish(ctx context.Context, p EventPublisher, topic, key string, event map[string]interface{}) {
	if p == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.PublishEvent(pubCtx, topic, key, event); err != nil {
		logging.FromContext(ctx).Error("event publish error", "topic", topic, "error", err)
	}
}
