package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/sugarsphere/backend/internal/events"
	"github.com/sugarsphere/backend/internal/logging"
	"github.com/sugarsphere/backend/internal/models"
	"github.com/sugarsphere/backend/internal/util"
)

// ProductIndexer is the slice of the search index the catalog writes through.
// Indexing is best-effort; the database row is the source of truth.
type ProductIndexer interface {
	IndexProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id uint) error
	Search(ctx context.Context, query string, from, size int) (int64, []models.Product, error)
}

type CatalogService struct {
	DB       *gorm.DB
	Producer EventPublisher
	Indexer  ProductIndexer
}

type ProductInput struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Quantity    *int    `json:"quantity"`
	IsActive    *bool   `json:"is_active"`
	ImageURL    string  `json:"image_url"`
}

func (in *ProductInput) validate() error {
	switch {
	case len(strings.TrimSpace(in.Name)) < 2:
		return fmt.Errorf("%w: name must be at least 2 characters", ErrValidation)
	case strings.TrimSpace(in.Category) == "":
		return fmt.Errorf("%w: category is required", ErrValidation)
	case in.Price <= 0:
		return fmt.Errorf("%w: price must be positive", ErrValidation)
	case in.Quantity != nil && *in.Quantity < 0:
		return fmt.Errorf("%w: quantity cannot be negative", ErrValidation)
	}
	return nil
}

type ListProductsQuery struct {
	Category        string
	MinPrice        float64
	MaxPrice        float64
	Sort            string
	Page            int
	Limit           int
	IncludeInactive bool
}

func (s *CatalogService) List(ctx context.Context, q ListProductsQuery) ([]models.Product, util.Pagination, error) {
	offset, limit := util.Calculate(q.Page, q.Limit)

	tx := s.DB.WithContext(ctx).Model(&models.Product{})
	if !q.IncludeInactive {
		tx = tx.Where("is_active = ?", true)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	if q.MinPrice > 0 {
		tx = tx.Where("price >= ?", q.MinPrice)
	}
	if q.MaxPrice > 0 {
		tx = tx.Where("price <= ?", q.MaxPrice)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, util.Pagination{}, err
	}

	switch q.Sort {
	case "price_asc":
		tx = tx.Order("price ASC")
	case "price_desc":
		tx = tx.Order("price DESC")
	case "name_asc":
		tx = tx.Order("name ASC")
	case "name_desc":
		tx = tx.Order("name DESC")
	default:
		tx = tx.Order("created_at DESC")
	}

	var items []models.Product
	if err := tx.Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, util.Pagination{}, err
	}
	return items, util.Paginate(q.Page, limit, total), nil
}

func (s *CatalogService) Get(ctx context.Context, id uint, includeInactive bool) (*models.Product, error) {
	tx := s.DB.WithContext(ctx)
	if !includeInactive {
		tx = tx.Where("is_active = ?", true)
	}
	var p models.Product
	if err := tx.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product not found", ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (s *CatalogService) Create(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	p := models.Product{
		Name:        strings.TrimSpace(in.Name),
		Category:    strings.TrimSpace(in.Category),
		Description: in.Description,
		Price:       in.Price,
		IsActive:    true,
		ImageURL:    in.ImageURL,
	}
	if in.Quantity != nil {
		p.Quantity = *in.Quantity
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}

	if err := s.DB.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, err
	}

	s.reindex(ctx, &p)
	publish(ctx, s.Producer, events.TopicProductEvents, fmt.Sprint(p.ID), map[string]interface{}{
		"type":       "product_created",
		"product_id": p.ID,
		"name":       p.Name,
	})
	return &p, nil
}

func (s *CatalogService) Update(ctx context.Context, id uint, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	p, err := s.Get(ctx, id, true)
	if err != nil {
		return nil, err
	}

	p.Name = strings.TrimSpace(in.Name)
	p.Category = strings.TrimSpace(in.Category)
	p.Description = in.Description
	p.Price = in.Price
	if in.Quantity != nil {
		p.Quantity = *in.Quantity
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if in.ImageURL != "" {
		p.ImageURL = in.ImageURL
	}

	if err := s.DB.WithContext(ctx).Save(p).Error; err != nil {
		return nil, err
	}

	s.reindex(ctx, p)
	publish(ctx, s.Producer, events.TopicProductEvents, fmt.Sprint(p.ID), map[string]interface{}{
		"type":       "product_updated",
		"product_id": p.ID,
		"name":       p.Name,
	})
	return p, nil
}

func (s *CatalogService) Delete(ctx context.Context, id uint) error {
	if _, err := s.Get(ctx, id, true); err != nil {
		return err
	}
	if err := s.DB.WithContext(ctx).Delete(&models.Product{}, id).Error; err != nil {
		return err
	}

	if s.Indexer != nil {
		if err := s.Indexer.DeleteProduct(ctx, id); err != nil {
			logging.FromContext(ctx).Error("search deindex error", "product_id", id, "error", err)
		}
	}
	publish(ctx, s.Producer, events.TopicProductEvents, fmt.Sprint(id), map[string]interface{}{
		"type":       "product_deleted",
		"product_id": id,
	})
	return nil
}

// Restock raises stock and appends a ledger entry in one unit.
func (s *CatalogService) Restock(ctx context.Context, adminID, productID uint, quantity int, note string) (*models.Product, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	var p models.Product
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: product not found", ErrNotFound)
			}
			return err
		}

		if err := tx.Model(&p).
			UpdateColumn("quantity", gorm.Expr("quantity + ?", quantity)).Error; err != nil {
			return err
		}
		p.Quantity += quantity

		return tx.Create(&models.InventoryEntry{
			ProductID:      productID,
			UserID:         adminID,
			Type:           models.InventoryRestock,
			QuantityChange: quantity,
			Note:           note,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.reindex(ctx, &p)
	return &p, nil
}

func (s *CatalogService) Search(ctx context.Context, query string, page, limit int) (int64, []models.Product, error) {
	if strings.TrimSpace(query) == "" {
		return 0, nil, fmt.Errorf("%w: query is required", ErrValidation)
	}
	if s.Indexer == nil {
		return 0, nil, fmt.Errorf("%w: search is unavailable", ErrUpstream)
	}
	from, size := util.Calculate(page, limit)
	total, items, err := s.Indexer.Search(ctx, query, from, size)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return total, items, nil
}

func (s *CatalogService) reindex(ctx context.Context, p *models.Product) {
	if s.Indexer == nil {
		return
	}
	if err := s.Indexer.IndexProduct(ctx, p); err != nil {
		logging.FromContext(ctx).Error("search index error", "product_id", p.ID, "error", err)
	}
}
