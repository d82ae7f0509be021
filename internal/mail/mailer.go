package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/sugarsphere/backend/internal/events"
	"github.com/sugarsphere/backend/internal/models"
)

// Publisher hands rendered messages to the delivery pipeline. Sends are
// best-effort: callers log a returned error and move on.
type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event interface{}) error
}

type Mailer struct {
	Producer  Publisher
	ClientURL string
}

type message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (m *Mailer) send(ctx context.Context, msg message) error {
	if m == nil || m.Producer == nil {
		return nil
	}
	return m.Producer.PublishEvent(ctx, events.TopicEmailJobs, msg.To, msg)
}

func (m *Mailer) SendVerificationEmail(ctx context.Context, to, name, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", m.ClientURL, token)
	return m.send(ctx, message{
		To:      to,
		Subject: "Verify your SugarSphere account",
		Body:    fmt.Sprintf("Hi %s,\n\nPlease verify your email address:\n%s\n\nThe link expires in 24 hours.", name, link),
	})
}

func (m *Mailer) SendPasswordResetEmail(ctx context.Context, to, name, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", m.ClientURL, token)
	return m.send(ctx, message{
		To:      to,
		Subject: "Reset your SugarSphere password",
		Body:    fmt.Sprintf("Hi %s,\n\nA password reset was requested for your account:\n%s\n\nIf this wasn't you, ignore this email. The link expires in 24 hours.", name, link),
	})
}

func (m *Mailer) SendInvoiceEmail(ctx context.Context, to, name string, order *models.Order, paymentID string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nThanks for your order #%d (payment %s).\n\n", name, order.ID, paymentID)
	for _, it := range order.Items {
		fmt.Fprintf(&b, "  %s x%d @ %.2f = %.2f\n", it.Name, it.Quantity, it.UnitPrice, it.Subtotal)
	}
	fmt.Fprintf(&b, "\nTotal: %.2f %s\n", order.TotalAmount, order.Currency)
	return m.send(ctx, message{
		To:      to,
		Subject: fmt.Sprintf("Your SugarSphere invoice for order #%d", order.ID),
		Body:    b.String(),
	})
}

func (m *Mailer) SendOrderStatusEmail(ctx context.Context, to, name string, orderID uint, status, statusMessage string) error {
	return m.send(ctx, message{
		To:      to,
		Subject: fmt.Sprintf("Order #%d update: %s", orderID, status),
		Body:    fmt.Sprintf("Hi %s,\n\nYour order #%d is now %s. %s", name, orderID, status, statusMessage),
	})
}
