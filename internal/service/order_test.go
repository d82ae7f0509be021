package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sugarsphere/backend/internal/models"
	"github.com/sugarsphere/backend/internal/push"
)

type orderEnv struct {
	DB      *gorm.DB
	Svc     *OrderService
	Gateway *fakeGateway
	Pusher  *fakePusher
	Mailer  *fakeMailer
	Buyer   *models.User
	Admin   *models.User
}

func newOrderEnv(t *testing.T) *orderEnv {
	t.Helper()

	db := newTestDB(t)
	gw := &fakeGateway{}
	pusher := &fakePusher{}
	mailer := &fakeMailer{}
	return &orderEnv{
		DB:      db,
		Svc:     &OrderService{DB: db, Gateway: gw, Mailer: mailer, Push: pusher},
		Gateway: gw,
		Pusher:  pusher,
		Mailer:  mailer,
		Buyer:   createUser(t, db, "Buyer", "buyer@example.com", models.RoleUser),
		Admin:   createUser(t, db, "Admin", "admin@example.com", models.RoleAdmin),
	}
}

func (env *orderEnv) placeOrder(t *testing.T, items ...OrderItemInput) *CreateOrderResult {
	t.Helper()
	res, err := env.Svc.Create(context.Background(), env.Buyer.ID, items)
	require.NoError(t, err)
	return res
}

func (env *orderEnv) settleOrder(t *testing.T, res *CreateOrderResult, paymentID string) *models.Order {
	t.Helper()
	sig := gatewaySign(res.ChargeIntentID, paymentID)
	order, err := env.Svc.Verify(context.Background(), env.Buyer.ID, res.OrderID, paymentID, sig)
	require.NoError(t, err)
	return order
}

func (env *orderEnv) productQuantity(t *testing.T, id uint) int {
	t.Helper()
	var p models.Product
	require.NoError(t, env.DB.First(&p, id).Error)
	return p.Quantity
}

func TestCreateOrderSnapshotsAndTotal(t *testing.T) {
	env := newOrderEnv(t)
	truffle := createProduct(t, env.DB, "Truffle Box", 100, 50)
	fudge := createProduct(t, env.DB, "Fudge Bar", 35.5, 20)

	res := env.placeOrder(t,
		OrderItemInput{ProductID: truffle.ID, Quantity: 2},
		OrderItemInput{ProductID: fudge.ID, Quantity: 3},
	)

	require.InDelta(t, 2*100+3*35.5, res.Amount, 1e-9)
	require.Equal(t, "INR", res.Currency)
	require.NotEmpty(t, res.ChargeIntentID)
	require.Len(t, res.Items, 2)

	var sum float64
	for _, it := range res.Items {
		require.InDelta(t, it.UnitPrice*float64(it.Quantity), it.Subtotal, 1e-9)
		sum += it.Subtotal
	}
	require.InDelta(t, res.Amount, sum, 1e-9)

	// Stock is untouched until verification.
	require.Equal(t, 50, env.productQuantity(t, truffle.ID))
	require.Equal(t, 20, env.productQuantity(t, fudge.ID))

	var order models.Order
	require.NoError(t, env.DB.First(&order, res.OrderID).Error)
	require.Equal(t, models.OrderCreated, order.Status)

	newOrders := env.Pusher.byEvent(push.EventOrderNew)
	require.Len(t, newOrders, 1)
	require.True(t, newOrders[0].Admin)
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Caramel Jar", 50, 5)

	_, err := env.Svc.Create(context.Background(), env.Buyer.ID, nil)
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.Svc.Create(context.Background(), env.Buyer.ID, []OrderItemInput{{ProductID: p.ID, Quantity: 0}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.Svc.Create(context.Background(), env.Buyer.ID, []OrderItemInput{{ProductID: 9999, Quantity: 1}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.Svc.Create(context.Background(), env.Buyer.ID, []OrderItemInput{{ProductID: p.ID, Quantity: 6}})
	require.ErrorIs(t, err, ErrConflict)
}

func TestCreateOrderSkipsInactiveProducts(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Retired Praline", 80, 10)
	require.NoError(t, env.DB.Model(p).Update("is_active", false).Error)

	_, err := env.Svc.Create(context.Background(), env.Buyer.ID, []OrderItemInput{{ProductID: p.ID, Quantity: 1}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateOrderGatewayFailure(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Nougat", 40, 10)
	env.Gateway.failErr = errors.New("gateway down")

	_, err := env.Svc.Create(context.Background(), env.Buyer.ID, []OrderItemInput{{ProductID: p.ID, Quantity: 1}})
	require.ErrorIs(t, err, ErrUpstream)

	var count int64
	require.NoError(t, env.DB.Model(&models.Order{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestVerifySettlesOrder(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Gift Box", 100, 3)

	res := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 2})
	require.InDelta(t, 200, res.Amount, 1e-9)

	order := env.settleOrder(t, res, "pay_123")
	require.Equal(t, models.OrderPaid, order.Status)
	require.Equal(t, "pay_123", order.PaymentID)

	require.Equal(t, 1, env.productQuantity(t, p.ID))

	var entries []models.InventoryEntry
	require.NoError(t, env.DB.Where("product_id = ?", p.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	require.Equal(t, models.InventoryPurchase, entries[0].Type)
	require.Equal(t, -2, entries[0].QuantityChange)

	var buyerNotes []models.Notification
	require.NoError(t, env.DB.Where("user_id = ? AND type = ?", env.Buyer.ID, models.NotificationOrder).Find(&buyerNotes).Error)
	require.Len(t, buyerNotes, 1)
	require.Equal(t, "Order Confirmed", buyerNotes[0].Title)

	// Dropping to 1 unit puts the product under the low stock threshold.
	var adminNotes []models.Notification
	require.NoError(t, env.DB.Where("user_id = ? AND type = ?", env.Admin.ID, models.NotificationInventory).Find(&adminNotes).Error)
	require.Len(t, adminNotes, 1)

	require.Len(t, env.Pusher.byEvent(push.EventLowStock), 1)
	require.Len(t, env.Pusher.byEvent(push.EventNotificationNew), 1)
	require.Len(t, env.Mailer.byKind("invoice"), 1)
}

func TestVerifyBadSignatureFailsOrder(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Marzipan Loaf", 60, 5)

	res := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 2})

	_, err := env.Svc.Verify(context.Background(), env.Buyer.ID, res.OrderID, "pay_bad", "not-a-signature")
	require.ErrorIs(t, err, ErrValidation)

	var order models.Order
	require.NoError(t, env.DB.First(&order, res.OrderID).Error)
	require.Equal(t, models.OrderFailed, order.Status)

	require.Equal(t, 5, env.productQuantity(t, p.ID))

	var entryCount int64
	require.NoError(t, env.DB.Model(&models.InventoryEntry{}).Count(&entryCount).Error)
	require.Zero(t, entryCount)

	var noteCount int64
	require.NoError(t, env.DB.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", env.Buyer.ID, models.NotificationOrder).
		Count(&noteCount).Error)
	require.Zero(t, noteCount)
}

func TestVerifyIsSingleUse(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Bonbon Tin", 25, 20)

	res := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 4})
	env.settleOrder(t, res, "pay_1")
	require.Equal(t, 16, env.productQuantity(t, p.ID))

	sig := gatewaySign(res.ChargeIntentID, "pay_1")
	_, err := env.Svc.Verify(context.Background(), env.Buyer.ID, res.OrderID, "pay_1", sig)
	require.ErrorIs(t, err, ErrConflict)

	// Replay must not decrement a second time.
	require.Equal(t, 16, env.productQuantity(t, p.ID))
}

func TestVerifyScopedToOwner(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Lollipop Pack", 15, 10)
	other := createUser(t, env.DB, "Other", "other@example.com", models.RoleUser)

	res := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 1})

	sig := gatewaySign(res.ChargeIntentID, "pay_x")
	_, err := env.Svc.Verify(context.Background(), other.ID, res.OrderID, "pay_x", sig)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLastUnitGoesToOneOrder(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Limited Praline", 120, 1)

	first := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 1})
	second := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 1})

	env.settleOrder(t, first, "pay_first")

	sig := gatewaySign(second.ChargeIntentID, "pay_second")
	_, err := env.Svc.Verify(context.Background(), env.Buyer.ID, second.OrderID, "pay_second", sig)
	require.ErrorIs(t, err, ErrConflict)

	require.Equal(t, 0, env.productQuantity(t, p.ID))

	var paidCount int64
	require.NoError(t, env.DB.Model(&models.Order{}).
		Where("status = ?", models.OrderPaid).
		Count(&paidCount).Error)
	require.Equal(t, int64(1), paidCount)

	// The failed settlement rolled back wholesale, the order is still open.
	var loser models.Order
	require.NoError(t, env.DB.First(&loser, second.OrderID).Error)
	require.Equal(t, models.OrderCreated, loser.Status)

	var entryCount int64
	require.NoError(t, env.DB.Model(&models.InventoryEntry{}).Count(&entryCount).Error)
	require.Equal(t, int64(1), entryCount)
}

func TestCancelOnlyPendingOrders(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Toffee Box", 45, 30)

	res := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 1})
	order, err := env.Svc.Cancel(context.Background(), env.Buyer.ID, false, res.OrderID)
	require.NoError(t, err)
	require.Equal(t, models.OrderCancelled, order.Status)

	res2 := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 1})
	env.settleOrder(t, res2, "pay_2")

	_, err = env.Svc.Cancel(context.Background(), env.Buyer.ID, false, res2.OrderID)
	require.ErrorIs(t, err, ErrConflict)
}

func TestUpdateStatusForwardOnly(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Sugar Mice", 20, 100)

	res := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 2})

	// created never jumps straight to shipped.
	_, err := env.Svc.UpdateStatus(context.Background(), res.OrderID, models.OrderShipped)
	require.ErrorIs(t, err, ErrConflict)

	env.settleOrder(t, res, "pay_ship")

	order, err := env.Svc.UpdateStatus(context.Background(), res.OrderID, models.OrderShipped)
	require.NoError(t, err)
	require.Equal(t, models.OrderShipped, order.Status)

	// No going back.
	_, err = env.Svc.UpdateStatus(context.Background(), res.OrderID, models.OrderProcessing)
	require.ErrorIs(t, err, ErrConflict)

	_, err = env.Svc.UpdateStatus(context.Background(), res.OrderID, "melted")
	require.ErrorIs(t, err, ErrValidation)
}

func TestUpdateStatusNotifiesBuyerOnce(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Candy Cane Bundle", 30, 100)

	res := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 1})
	env.settleOrder(t, res, "pay_status")

	_, err := env.Svc.UpdateStatus(context.Background(), res.OrderID, models.OrderShipped)
	require.NoError(t, err)

	var notes []models.Notification
	require.NoError(t, env.DB.
		Where("user_id = ? AND title = ?", env.Buyer.ID, "Order Status Updated").
		Find(&notes).Error)
	require.Len(t, notes, 1)
	require.Equal(t, models.NotificationOrder, notes[0].Type)
	require.Contains(t, notes[0].Message, fmt.Sprintf("#%d", res.OrderID))

	updates := env.Pusher.byEvent(push.EventOrderStatusUpdate)
	require.Len(t, updates, 1)
	require.Equal(t, env.Buyer.ID, updates[0].UserID)

	require.Len(t, env.Mailer.byKind("status"), 1)
}

func TestWebhookCapturedSettlesIdempotently(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Honeycomb Slab", 55, 8)

	res := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 3})

	ev := GatewayEvent{Event: "payment.captured"}
	ev.Payload.Payment.Entity.ID = "pay_hook"
	ev.Payload.Payment.Entity.OrderID = res.ChargeIntentID

	require.NoError(t, env.Svc.HandleGatewayEvent(context.Background(), ev))
	require.Equal(t, 5, env.productQuantity(t, p.ID))

	var order models.Order
	require.NoError(t, env.DB.First(&order, res.OrderID).Error)
	require.Equal(t, models.OrderPaid, order.Status)
	require.Equal(t, "pay_hook", order.PaymentID)

	// Re-delivery is a no-op.
	require.NoError(t, env.Svc.HandleGatewayEvent(context.Background(), ev))
	require.Equal(t, 5, env.productQuantity(t, p.ID))

	var entryCount int64
	require.NoError(t, env.DB.Model(&models.InventoryEntry{}).Count(&entryCount).Error)
	require.Equal(t, int64(1), entryCount)
}

func TestWebhookCapturedInsufficientStockLeavesOrderOpen(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Vanilla Fudge", 44, 2)

	res := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 2})

	// Stock disappears between order creation and capture.
	require.NoError(t, env.DB.Model(&models.Product{}).
		Where("id = ?", p.ID).
		Update("quantity", 1).Error)

	ev := GatewayEvent{Event: "payment.captured"}
	ev.Payload.Payment.Entity.ID = "pay_short"
	ev.Payload.Payment.Entity.OrderID = res.ChargeIntentID

	// The delivery is acknowledged, but the settle rolled back wholesale.
	require.NoError(t, env.Svc.HandleGatewayEvent(context.Background(), ev))

	var order models.Order
	require.NoError(t, env.DB.First(&order, res.OrderID).Error)
	require.Equal(t, models.OrderCreated, order.Status)
	require.Empty(t, order.PaymentID)

	require.Equal(t, 1, env.productQuantity(t, p.ID))

	var entryCount int64
	require.NoError(t, env.DB.Model(&models.InventoryEntry{}).Count(&entryCount).Error)
	require.Zero(t, entryCount)
}

func TestWebhookFailedMarksOrder(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Peppermint Bark", 35, 10)

	res := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 1})

	ev := GatewayEvent{Event: "payment.failed"}
	ev.Payload.Payment.Entity.OrderID = res.ChargeIntentID
	require.NoError(t, env.Svc.HandleGatewayEvent(context.Background(), ev))

	var order models.Order
	require.NoError(t, env.DB.First(&order, res.OrderID).Error)
	require.Equal(t, models.OrderFailed, order.Status)
	require.Equal(t, 10, env.productQuantity(t, p.ID))
}

func TestWebhookRefundCreated(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Rock Candy", 18, 40)

	res := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 2})
	env.settleOrder(t, res, "pay_refund")

	ev := GatewayEvent{Event: "refund.created"}
	ev.Payload.Refund.Entity.ID = "rfnd_1"
	ev.Payload.Refund.Entity.PaymentID = "pay_refund"

	require.NoError(t, env.Svc.HandleGatewayEvent(context.Background(), ev))

	var order models.Order
	require.NoError(t, env.DB.First(&order, res.OrderID).Error)
	require.Equal(t, models.OrderRefunded, order.Status)

	var notes []models.Notification
	require.NoError(t, env.DB.
		Where("user_id = ? AND title = ?", env.Buyer.ID, "Order Refunded").
		Find(&notes).Error)
	require.Len(t, notes, 1)

	// Refunded is terminal, re-delivery changes nothing.
	require.NoError(t, env.Svc.HandleGatewayEvent(context.Background(), ev))
	require.NoError(t, env.DB.
		Where("user_id = ? AND title = ?", env.Buyer.ID, "Order Refunded").
		Find(&notes).Error)
	require.Len(t, notes, 1)
}

func TestWebhookUnknownEventIgnored(t *testing.T) {
	env := newOrderEnv(t)
	require.NoError(t, env.Svc.HandleGatewayEvent(context.Background(), GatewayEvent{Event: "payment.authorized"}))
}

func TestListMineFiltersAndScopes(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Jelly Selection", 22, 100)
	other := createUser(t, env.DB, "Other", "other2@example.com", models.RoleUser)

	res1 := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 1})
	env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 2})
	env.settleOrder(t, res1, "pay_list")

	_, err := env.Svc.Create(context.Background(), other.ID, []OrderItemInput{{ProductID: p.ID, Quantity: 1}})
	require.NoError(t, err)

	orders, pg, err := env.Svc.ListMine(context.Background(), env.Buyer.ID, "", 1, 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, int64(2), pg.Total)

	paid, _, err := env.Svc.ListMine(context.Background(), env.Buyer.ID, models.OrderPaid, 1, 10)
	require.NoError(t, err)
	require.Len(t, paid, 1)
	require.Equal(t, res1.OrderID, paid[0].ID)

	all, err := env.Svc.List(context.Background(), env.Admin.ID, true, 100)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestGetOrderOwnership(t *testing.T) {
	env := newOrderEnv(t)
	p := createProduct(t, env.DB, "Liquorice Wheel", 12, 50)
	other := createUser(t, env.DB, "Other", "other3@example.com", models.RoleUser)

	res := env.placeOrder(t, OrderItemInput{ProductID: p.ID, Quantity: 1})

	_, err := env.Svc.Get(context.Background(), other.ID, false, res.OrderID)
	require.ErrorIs(t, err, ErrNotFound)

	order, err := env.Svc.Get(context.Background(), other.ID, true, res.OrderID)
	require.NoError(t, err)
	require.Equal(t, env.Buyer.ID, order.UserID)
}
