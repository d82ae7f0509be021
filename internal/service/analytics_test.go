package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sugarsphere/backend/internal/models"
)

func TestStockStatusBounds(t *testing.T) {
	require.Equal(t, StockStatusOut, StockStatus(-1))
	require.Equal(t, StockStatusOut, StockStatus(0))
	require.Equal(t, StockStatusLow, StockStatus(1))
	require.Equal(t, StockStatusLow, StockStatus(10))
	require.Equal(t, StockStatusIn, StockStatus(11))
}

func seedPaidOrder(t *testing.T, db *gorm.DB, user *models.User, p *models.Product, qty int, status string) *models.Order {
	t.Helper()

	order := models.Order{
		UserID:      user.ID,
		TotalAmount: p.Price * float64(qty),
		Currency:    "INR",
		Status:      status,
		Items: []models.OrderItem{{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  qty,
			Subtotal:  p.Price * float64(qty),
		}},
	}
	require.NoError(t, db.Create(&order).Error)
	return &order
}

func TestOverviewCountsCompletedOnly(t *testing.T) {
	db := newTestDB(t)
	svc := &AnalyticsService{DB: db}

	buyer := createUser(t, db, "Buyer", "buyer@example.com", models.RoleUser)
	createUser(t, db, "Admin", "admin@example.com", models.RoleAdmin)

	full := createProduct(t, db, "Truffle Crate", 100, 50)
	low := createProduct(t, db, "Rare Praline", 200, 3)

	seedPaidOrder(t, db, buyer, full, 2, models.OrderPaid)
	seedPaidOrder(t, db, buyer, low, 1, models.OrderShipped)
	seedPaidOrder(t, db, buyer, full, 1, models.OrderCreated)
	seedPaidOrder(t, db, buyer, full, 1, models.OrderFailed)

	o, err := svc.Overview(context.Background())
	require.NoError(t, err)

	require.Equal(t, int64(2), o.TotalOrders)
	require.InDelta(t, 400, o.TotalRevenue, 1e-9)
	// Admins do not count as customers.
	require.Equal(t, int64(1), o.TotalUsers)
	require.Equal(t, int64(2), o.TotalProducts)
	require.Equal(t, int64(1), o.PendingOrders)
	require.Equal(t, int64(1), o.LowStockItems)
}

func TestTopProductsOrdering(t *testing.T) {
	db := newTestDB(t)
	svc := &AnalyticsService{DB: db}

	buyer := createUser(t, db, "Buyer", "buyer@example.com", models.RoleUser)
	a := createProduct(t, db, "Fudge Slab", 50, 100)
	b := createProduct(t, db, "Mint Drops", 20, 100)

	seedPaidOrder(t, db, buyer, a, 2, models.OrderPaid)
	seedPaidOrder(t, db, buyer, b, 7, models.OrderDelivered)
	seedPaidOrder(t, db, buyer, b, 1, models.OrderFailed)

	top, err := svc.TopProducts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, b.ID, top[0].ProductID)
	require.Equal(t, int64(7), top[0].TotalQuantity)
	require.InDelta(t, 140, top[0].TotalRevenue, 1e-9)
	require.Equal(t, a.ID, top[1].ProductID)
}

func TestRevenueRangeValidation(t *testing.T) {
	db := newTestDB(t)
	svc := &AnalyticsService{DB: db}

	buyer := createUser(t, db, "Buyer", "buyer@example.com", models.RoleUser)
	p := createProduct(t, db, "Toffee Tin", 30, 100)
	seedPaidOrder(t, db, buyer, p, 2, models.OrderPaid)

	rng, buckets, err := svc.Revenue(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "7d", rng)
	require.Len(t, buckets, 1)
	require.InDelta(t, 60, buckets[0].Revenue, 1e-9)
	require.Equal(t, int64(1), buckets[0].Orders)

	_, _, err = svc.Revenue(context.Background(), "365d")
	require.ErrorIs(t, err, ErrValidation)
}

func TestInventoryValuation(t *testing.T) {
	db := newTestDB(t)
	svc := &AnalyticsService{DB: db}

	createProduct(t, db, "Bulk Caramel", 10, 100)
	createProduct(t, db, "Empty Shelf", 40, 0)
	retired := createProduct(t, db, "Retired", 99, 5)
	require.NoError(t, db.Model(retired).Update("is_active", false).Error)

	items, summary, err := svc.Inventory(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	// Sorted by quantity, the empty product comes first.
	require.Equal(t, StockStatusOut, items[0].StockStatus)
	require.Equal(t, StockStatusIn, items[1].StockStatus)

	require.Equal(t, int64(100), summary.TotalItems)
	require.InDelta(t, 1000, summary.TotalValue, 1e-9)
	require.InDelta(t, 25, summary.AvgPrice, 1e-9)
}
