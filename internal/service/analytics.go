package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sugarsphere/backend/internal/models"
)

// completedStatuses are the order states that count toward revenue.
var completedStatuses = []string{
	models.OrderPaid,
	models.OrderProcessing,
	models.OrderShipped,
	models.OrderDelivered,
}

type AnalyticsService struct {
	DB *gorm.DB
}

type Overview struct {
	TotalOrders   int64   `json:"total_orders"`
	TotalRevenue  float64 `json:"total_revenue"`
	TotalUsers    int64   `json:"total_users"`
	TotalProducts int64   `json:"total_products"`
	PendingOrders int64   `json:"pending_orders"`
	LowStockItems int64   `json:"low_stock_items"`
}

func (s *AnalyticsService) Overview(ctx context.Context) (*Overview, error) {
	db := s.DB.WithContext(ctx)
	var o Overview

	if err := db.Model(&models.Order{}).
		Where("status IN ?", completedStatuses).
		Count(&o.TotalOrders).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Order{}).
		Where("status IN ?", completedStatuses).
		Select("COALESCE(SUM(total_amount), 0)").
		Scan(&o.TotalRevenue).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.User{}).
		Where("role = ?", models.RoleUser).
		Count(&o.TotalUsers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Product{}).
		Where("is_active = ?", true).
		Count(&o.TotalProducts).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Order{}).
		Where("status = ?", models.OrderCreated).
		Count(&o.PendingOrders).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Product{}).
		Where("is_active = ? AND quantity <= ?", true, LowStockThreshold).
		Count(&o.LowStockItems).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

type TopProduct struct {
	ProductID     uint    `json:"product_id"`
	Name          string  `json:"name"`
	TotalQuantity int64   `json:"total_quantity"`
	TotalRevenue  float64 `json:"total_revenue"`
}

func (s *AnalyticsService) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []TopProduct
	err := s.DB.WithContext(ctx).
		Table("order_items").
		Select("order_items.product_id, order_items.name, SUM(order_items.quantity) AS total_quantity, SUM(order_items.subtotal) AS total_revenue").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.status IN ?", completedStatuses).
		Group("order_items.product_id, order_items.name").
		Order("total_quantity DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type RevenueBucket struct {
	Day     string  `json:"day"`
	Revenue float64 `json:"revenue"`
	Orders  int64   `json:"orders"`
}

// Revenue buckets completed-order revenue per day over a 7/30/90 day window.
func (s *AnalyticsService) Revenue(ctx context.Context, rng string) (string, []RevenueBucket, error) {
	var days int
	switch rng {
	case "30d":
		days = 30
	case "90d":
		days = 90
	case "", "7d":
		rng, days = "7d", 7
	default:
		return "", nil, fmt.Errorf("%w: invalid range", ErrValidation)
	}

	start := time.Now().AddDate(0, 0, -days)

	var rows []RevenueBucket
	err := s.DB.WithContext(ctx).
		Model(&models.Order{}).
		Select("DATE(created_at) AS day, SUM(total_amount) AS revenue, COUNT(*) AS orders").
		Where("status IN ? AND created_at >= ?", completedStatuses, start).
		Group("DATE(created_at)").
		Order("day ASC").
		Scan(&rows).Error
	if err != nil {
		return "", nil, err
	}
	return rng, rows, nil
}

const (
	StockStatusOut = "out_of_stock"
	StockStatusLow = "low_stock"
	StockStatusIn  = "in_stock"
)

type InventoryItem struct {
	ProductID   uint    `json:"product_id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	StockValue  float64 `json:"stock_value"`
	StockStatus string  `json:"stock_status"`
}

type InventorySummary struct {
	TotalItems int64   `json:"total_items"`
	TotalValue float64 `json:"total_value"`
	AvgPrice   float64 `json:"avg_price"`
}

func StockStatus(quantity int) string {
	switch {
	case quantity <= 0:
		return StockStatusOut
	case quantity <= LowStockThreshold:
		return StockStatusLow
	default:
		return StockStatusIn
	}
}

func (s *AnalyticsService) Inventory(ctx context.Context) ([]InventoryItem, *InventorySummary, error) {
	var products []models.Product
	if err := s.DB.WithContext(ctx).
		Where("is_active = ?", true).
		Order("quantity ASC").
		Find(&products).Error; err != nil {
		return nil, nil, err
	}

	items := make([]InventoryItem, 0, len(products))
	summary := &InventorySummary{}
	for _, p := range products {
		value := float64(p.Quantity) * p.Price
		items = append(items, InventoryItem{
			ProductID:   p.ID,
			Name:        p.Name,
			Category:    p.Category,
			Quantity:    p.Quantity,
			Price:       p.Price,
			StockValue:  value,
			StockStatus: StockStatus(p.Quantity),
		})
		summary.TotalItems += int64(p.Quantity)
		summary.TotalValue += value
		summary.AvgPrice += p.Price
	}
	if len(products) > 0 {
		summary.AvgPrice /= float64(len(products))
	}
	return items, summary, nil
}
