package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sugarsphere/backend/internal/events"
	"github.com/sugarsphere/backend/internal/logging"
	"github.com/sugarsphere/backend/internal/models"
	"github.com/sugarsphere/backend/internal/push"
	"github.com/sugarsphere/backend/internal/util"
)

// LowStockThreshold is the quantity at or below which admins get notified.
const LowStockThreshold = 10

const defaultCurrency = "INR"

type OrderService struct {
	DB       *gorm.DB
	Gateway  Gateway
	Producer EventPublisher
	Mailer   MailSender
	Push     Pusher
}

type OrderItemInput struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type CreateOrderResult struct {
	OrderID        uint               `json:"order_id"`
	ChargeIntentID string             `json:"charge_intent_id"`
	Amount         float64            `json:"amount"`
	Currency       string             `json:"currency"`
	Items          []models.OrderItem `json:"items"`
}

// Create validates the requested items against the catalog, snapshots prices,
// asks the gateway for a charge intent and persists the order in `created`
// status. Stock is NOT reserved here; it is committed at verification time.
func (s *OrderService) Create(ctx context.Context, userID uint, items []OrderItemInput) (*CreateOrderResult, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: items required", ErrValidation)
	}

	ids := make([]uint, 0, len(items))
	for _, it := range items {
		if it.ProductID == 0 {
			return nil, fmt.Errorf("%w: product_id required", ErrValidation)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}
		ids = append(ids, it.ProductID)
	}

	var products []models.Product
	if err := s.DB.WithContext(ctx).
		Where("id IN ? AND is_active = ?", ids, true).
		Find(&products).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var total float64
	orderItems := make([]models.OrderItem, 0, len(items))
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: some products are not available", ErrValidation)
		}
		if p.Quantity < it.Quantity {
			return nil, fmt.Errorf("%w: insufficient stock for %s", ErrConflict, p.Name)
		}

		subtotal := p.Price * float64(it.Quantity)
		total += subtotal
		orderItems = append(orderItems, models.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
			Subtotal:  subtotal,
		})
	}

	receipt := "rcpt_" + uuid.NewString()
	intent, err := s.Gateway.CreateIntent(ctx, int64(math.Round(total*100)), defaultCurrency, receipt, map[string]string{
		"user_id": fmt.Sprint(userID),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	order := models.Order{
		UserID:         userID,
		Items:          orderItems,
		TotalAmount:    total,
		Currency:       defaultCurrency,
		Status:         models.OrderCreated,
		ChargeIntentID: intent.ID,
	}
	if err := s.DB.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}

	if s.Push != nil {
		s.Push.ToAdmins(push.EventOrderNew, order)
	}
	publish(ctx, s.Producer, events.TopicOrderEvents, fmt.Sprint(order.ID), map[string]interface{}{
		"type":     "order_created",
		"order_id": order.ID,
		"user_id":  userID,
		"amount":   total,
	})

	return &CreateOrderResult{
		OrderID:        order.ID,
		ChargeIntentID: intent.ID,
		Amount:         total,
		Currency:       order.Currency,
		Items:          order.Items,
	}, nil
}

// Verify checks the gateway's payment proof and settles the order. A bad
// signature marks the order failed; a valid one commits stock decrements,
// ledger entries, notifications and the paid status as one unit.
func (s *OrderService) Verify(ctx context.Context, userID, orderID uint, paymentID, signature string) (*models.Order, error) {
	if paymentID == "" || signature == "" {
		return nil, fmt.Errorf("%w: payment_id and signature are required", ErrValidation)
	}

	var order models.Order
	if err := s.DB.WithContext(ctx).Preload("Items").
		Where("id = ? AND user_id = ?", orderID, userID).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order not found", ErrNotFound)
		}
		return nil, err
	}

	if order.Status != models.OrderCreated {
		return nil, fmt.Errorf("%w: order already processed", ErrConflict)
	}

	if !s.Gateway.VerifySignature(order.ChargeIntentID, paymentID, signature) {
		if err := s.DB.WithContext(ctx).Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, models.OrderCreated).
			Update("status", models.OrderFailed).Error; err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: payment verification failed", ErrValidation)
	}

	if err := s.settle(ctx, &order, paymentID, signature); err != nil {
		return nil, err
	}
	return &order, nil
}

// settle commits the payment: the conditional status flip doubles as a replay
// guard, the conditional decrements fail closed on insufficient stock, and a
// failure anywhere rolls the whole unit back.
func (s *OrderService) settle(ctx context.Context, order *models.Order, paymentID, signature string) error {
	var lowStock []models.Product

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, models.OrderCreated).
			Updates(map[string]interface{}{
				"status":     models.OrderPaid,
				"payment_id": paymentID,
				"signature":  signature,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: order already processed", ErrConflict)
		}

		for _, it := range order.Items {
			dec := tx.Model(&models.Product{}).
				Where("id = ? AND quantity >= ?", it.ProductID, it.Quantity).
				UpdateColumn("quantity", gorm.Expr("quantity - ?", it.Quantity))
			if dec.Error != nil {
				return dec.Error
			}
			if dec.RowsAffected == 0 {
				return fmt.Errorf("%w: insufficient stock for %s", ErrConflict, it.Name)
			}

			if err := tx.Create(&models.InventoryEntry{
				ProductID:      it.ProductID,
				UserID:         order.UserID,
				Type:           models.InventoryPurchase,
				QuantityChange: -it.Quantity,
				Note:           fmt.Sprintf("order %d", order.ID),
			}).Error; err != nil {
				return err
			}

			var p models.Product
			if err := tx.First(&p, it.ProductID).Error; err != nil {
				return err
			}
			if p.Quantity <= LowStockThreshold {
				var admins []models.User
				if err := tx.Where("role = ?", models.RoleAdmin).Find(&admins).Error; err != nil {
					return err
				}
				for _, a := range admins {
					if err := tx.Create(&models.Notification{
						UserID:  a.ID,
						Type:    models.NotificationInventory,
						Title:   "Low Stock Alert",
						Message: fmt.Sprintf("%s is running low (%d left)", p.Name, p.Quantity),
					}).Error; err != nil {
						return err
					}
				}
				lowStock = append(lowStock, p)
			}
		}

		return tx.Create(&models.Notification{
			UserID:  order.UserID,
			Type:    models.NotificationOrder,
			Title:   "Order Confirmed",
			Message: fmt.Sprintf("Your order #%d has been confirmed!", order.ID),
		}).Error
	})
	if err != nil {
		return err
	}

	order.Status = models.OrderPaid
	order.PaymentID = paymentID
	order.Signature = signature

	// Post-commit side effects are best-effort and must not undo the order.
	l := logging.FromContext(ctx).With("svc", "order.settle", "order_id", order.ID)

	if s.Push != nil {
		for _, p := range lowStock {
			s.Push.ToAdmins(push.EventLowStock, p)
		}
		s.Push.ToUser(order.UserID, push.EventNotificationNew, map[string]interface{}{
			"type":    models.NotificationOrder,
			"title":   "Order Confirmed",
			"message": fmt.Sprintf("Your order #%d has been confirmed!", order.ID),
		})
	}

	if s.Mailer != nil {
		var buyer models.User
		if err := s.DB.WithContext(ctx).First(&buyer, order.UserID).Error; err != nil {
			l.Error("invoice email error", "error", err)
		} else if err := s.Mailer.SendInvoiceEmail(ctx, buyer.Email, buyer.Name, order, paymentID); err != nil {
			l.Error("invoice email error", "error", err)
		}
	}

	publish(ctx, s.Producer, events.TopicOrderEvents, fmt.Sprint(order.ID), map[string]interface{}{
		"type":       "order_paid",
		"order_id":   order.ID,
		"user_id":    order.UserID,
		"payment_id": paymentID,
	})
	return nil
}

func (s *OrderService) ListMine(ctx context.Context, userID uint, status string, page, limit int) ([]models.Order, util.Pagination, error) {
	offset, limit := util.Calculate(page, limit)

	tx := s.DB.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	if status != "" && status != "all" {
		tx = tx.Where("status = ?", status)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, util.Pagination{}, err
	}

	var orders []models.Order
	if err := tx.Preload("Items").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, util.Pagination{}, err
	}
	return orders, util.Paginate(page, limit, total), nil
}

// List returns the caller's recent orders, or everyone's for an admin.
func (s *OrderService) List(ctx context.Context, userID uint, isAdmin bool, limit int) ([]models.Order, error) {
	tx := s.DB.WithContext(ctx).Preload("Items").Order("created_at DESC").Limit(limit)
	if !isAdmin {
		tx = tx.Where("user_id = ?", userID)
	}
	var orders []models.Order
	if err := tx.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *OrderService) Get(ctx context.Context, userID uint, isAdmin bool, orderID uint) (*models.Order, error) {
	tx := s.DB.WithContext(ctx).Preload("Items").Where("id = ?", orderID)
	if !isAdmin {
		tx = tx.Where("user_id = ?", userID)
	}
	var order models.Order
	if err := tx.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order not found", ErrNotFound)
		}
		return nil, err
	}
	return &order, nil
}

func (s *OrderService) Cancel(ctx context.Context, userID uint, isAdmin bool, orderID uint) (*models.Order, error) {
	order, err := s.Get(ctx, userID, isAdmin, orderID)
	if err != nil {
		return nil, err
	}

	res := s.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, models.OrderCreated).
		Update("status", models.OrderCancelled)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: only pending orders can be cancelled", ErrConflict)
	}

	order.Status = models.OrderCancelled
	return order, nil
}

var statusMessages = map[string]string{
	models.OrderPaid:       "Your payment has been confirmed.",
	models.OrderProcessing: "Your order is being processed and will be shipped soon.",
	models.OrderShipped:    "Your order has been shipped and is on its way!",
	models.OrderDelivered:  "Your order has been delivered. Enjoy your sweets!",
	models.OrderCancelled:  "Your order has been cancelled.",
}

// UpdateStatus moves an order along the forward-only status path and notifies
// the buyer through every channel: stored notification, email and live push.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uint, newStatus string) (*models.Order, error) {
	msg, ok := statusMessages[newStatus]
	if !ok {
		return nil, fmt.Errorf("%w: invalid status", ErrValidation)
	}

	var order models.Order
	if err := s.DB.WithContext(ctx).Preload("Items").First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order not found", ErrNotFound)
		}
		return nil, err
	}

	if !models.CanTransition(order.Status, newStatus) {
		return nil, fmt.Errorf("%w: cannot change status from %s to %s", ErrConflict, order.Status, newStatus)
	}

	res := s.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Update("status", newStatus)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: order status changed concurrently", ErrConflict)
	}
	order.Status = newStatus

	if err := s.DB.WithContext(ctx).Create(&models.Notification{
		UserID:  order.UserID,
		Type:    models.NotificationOrder,
		Title:   "Order Status Updated",
		Message: fmt.Sprintf("Your order #%d status changed to: %s", order.ID, newStatus),
	}).Error; err != nil {
		return nil, err
	}

	l := logging.FromContext(ctx).With("svc", "order.update_status", "order_id", order.ID)

	if s.Mailer != nil {
		var buyer models.User
		if err := s.DB.WithContext(ctx).First(&buyer, order.UserID).Error; err != nil {
			l.Error("status email error", "error", err)
		} else if err := s.Mailer.SendOrderStatusEmail(ctx, buyer.Email, buyer.Name, order.ID, newStatus, msg); err != nil {
			l.Error("status email error", "error", err)
		}
	}

	if s.Push != nil {
		s.Push.ToUser(order.UserID, push.EventOrderStatusUpdate, map[string]interface{}{
			"orderId": order.ID,
			"status":  newStatus,
			"message": msg,
		})
	}
	return &order, nil
}

type GatewayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

// HandleGatewayEvent applies an inbound gateway callback idempotently:
// re-delivery of an event for an order already past `created` is a no-op.
func (s *OrderService) HandleGatewayEvent(ctx context.Context, ev GatewayEvent) error {
	l := logging.FromContext(ctx).With("svc", "order.webhook", "event", ev.Event)

	switch ev.Event {
	case "payment.captured":
		var order models.Order
		err := s.DB.WithContext(ctx).Preload("Items").
			Where("charge_intent_id = ?", ev.Payload.Payment.Entity.OrderID).
			First(&order).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				l.Warn("webhook for unknown charge intent", "charge_intent_id", ev.Payload.Payment.Entity.OrderID)
				return nil
			}
			return err
		}
		if order.Status != models.OrderCreated {
			return nil
		}
		if err := s.settle(ctx, &order, ev.Payload.Payment.Entity.ID, ""); err != nil {
			if errors.Is(err, ErrConflict) {
				// Two causes: a concurrent verify settled the order first, or
				// stock ran out and the rollback left the order `created`.
				// The error text carries which; keep it visible for
				// reconciliation.
				l.Warn("webhook settle skipped", "order_id", order.ID, "reason", err)
				return nil
			}
			return err
		}
		l.Info("order settled via webhook", "order_id", order.ID)
		return nil

	case "payment.failed":
		return s.DB.WithContext(ctx).Model(&models.Order{}).
			Where("charge_intent_id = ? AND status = ?", ev.Payload.Payment.Entity.OrderID, models.OrderCreated).
			Update("status", models.OrderFailed).Error

	case "refund.created":
		var order models.Order
		err := s.DB.WithContext(ctx).
			Where("payment_id = ?", ev.Payload.Refund.Entity.PaymentID).
			First(&order).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				l.Warn("refund for unknown payment", "payment_id", ev.Payload.Refund.Entity.PaymentID)
				return nil
			}
			return err
		}
		if !models.CanTransition(order.Status, models.OrderRefunded) {
			return nil
		}

		res := s.DB.WithContext(ctx).Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, order.Status).
			Update("status", models.OrderRefunded)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := s.DB.WithContext(ctx).Create(&models.Notification{
			UserID:  order.UserID,
			Type:    models.NotificationOrder,
			Title:   "Order Refunded",
			Message: fmt.Sprintf("Your order #%d has been refunded.", order.ID),
		}).Error; err != nil {
			return err
		}
		if s.Push != nil {
			s.Push.ToUser(order.UserID, push.EventOrderStatusUpdate, map[string]interface{}{
				"orderId": order.ID,
				"status":  models.OrderRefunded,
				"message": "Your order has been refunded.",
			})
		}
		return nil

	default:
		l.Info("ignoring gateway event")
		return nil
	}
}
