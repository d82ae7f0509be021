package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string    `gorm:"not null"                 json:"name"`
	Email            string    `gorm:"unique;not null"          json:"email"`
	PasswordHash     string    `gorm:"not null"                 json:"-"`
	Role             string    `gorm:"not null;default:user"    json:"role"`
	IsActive         bool      `gorm:"not null;default:true"    json:"is_active"`
	IsVerified       bool      `gorm:"not null;default:false"   json:"is_verified"`
	RefreshTokenHash string    `json:"-"`
	AvatarURL        string    `json:"avatar_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"-"`
}

type Product struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"not null"                 json:"name"`
	Category    string    `gorm:"index;not null"           json:"category"`
	Description string    `json:"description"`
	Price       float64   `gorm:"not null"                 json:"price"`
	Quantity    int       `gorm:"not null;default:0"       json:"quantity"`
	IsActive    bool      `gorm:"not null;default:true"    json:"is_active"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"-"`
}

// Order statuses form a forward-only state machine, see CanTransition.
const (
	OrderCreated    = "created"
	OrderPaid       = "paid"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderFailed     = "failed"
	OrderCancelled  = "cancelled"
	OrderRefunded   = "refunded"
)

var allowedTransitions = map[string][]string{
	OrderCreated:    {OrderPaid, OrderFailed, OrderCancelled},
	OrderPaid:       {OrderProcessing, OrderShipped, OrderDelivered, OrderRefunded},
	OrderProcessing: {OrderShipped, OrderDelivered, OrderRefunded},
	OrderShipped:    {OrderDelivered, OrderRefunded},
	OrderDelivered:  {OrderRefunded},
}

func CanTransition(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID             uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         uint        `gorm:"index;not null"           json:"user_id"`
	Items          []OrderItem `gorm:"foreignKey:OrderID"       json:"items"`
	TotalAmount    float64     `gorm:"not null"                 json:"total_amount"`
	Currency       string      `gorm:"not null;default:INR"     json:"currency"`
	Status         string      `gorm:"index;not null"           json:"status"`
	ChargeIntentID string      `gorm:"index"                    json:"charge_intent_id,omitempty"`
	PaymentID      string      `gorm:"index"                    json:"payment_id,omitempty"`
	Signature      string      `json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"-"`
}

// OrderItem snapshots name and unit price at creation time; they are never
// recomputed from the catalog afterwards.
type OrderItem struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"  json:"id"`
	OrderID   uint    `gorm:"index;not null"            json:"order_id"`
	ProductID uint    `gorm:"not null"                  json:"product_id"`
	Name      string  `gorm:"not null"                  json:"name"`
	UnitPrice float64 `gorm:"not null"                  json:"unit_price"`
	Quantity  int     `gorm:"not null;check:quantity>0" json:"quantity"`
	Subtotal  float64 `gorm:"not null"                  json:"subtotal"`
}

const (
	InventoryPurchase   = "purchase"
	InventoryRestock    = "restock"
	InventoryAdjustment = "adjustment"
)

// InventoryEntry is an append-only audit trail of stock changes.
type InventoryEntry struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID      uint      `gorm:"index;not null"           json:"product_id"`
	UserID         uint      `gorm:"not null"                 json:"user_id"`
	Type           string    `gorm:"not null"                 json:"type"`
	QuantityChange int       `gorm:"not null"                 json:"quantity_change"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	NotificationOrder     = "order"
	NotificationInventory = "inventory"
	NotificationSystem    = "system"
)

type Notification struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"index;not null"           json:"user_id"`
	Type      string    `gorm:"not null"                 json:"type"`
	Title     string    `gorm:"not null"                 json:"title"`
	Message   string    `gorm:"not null"                 json:"message"`
	Read      bool      `gorm:"not null;default:false"   json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type PasswordReset struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"index;not null"           json:"user_id"`
	Email     string    `gorm:"not null"                 json:"email"`
	Token     string    `gorm:"uniqueIndex;not null"     json:"-"`
	ExpiresAt time.Time `gorm:"not null"                 json:"expires_at"`
	Used      bool      `gorm:"not null;default:false"   json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

type EmailVerification struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"index;not null"           json:"user_id"`
	Email     string    `gorm:"not null"                 json:"email"`
	Token     string    `gorm:"uniqueIndex;not null"     json:"-"`
	ExpiresAt time.Time `gorm:"not null"                 json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorUserID  uint      `gorm:"index;not null"           json:"actor_user_id"`
	Action       string    `gorm:"not null"                 json:"action"`
	ResourceType string    `gorm:"not null"                 json:"resource_type"`
	ResourceID   uint      `gorm:"not null"                 json:"resource_id"`
	Before       string    `json:"before,omitempty"`
	After        string    `json:"after,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
