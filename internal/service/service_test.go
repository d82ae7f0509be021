package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sugarsphere/backend/internal/config"
	"github.com/sugarsphere/backend/internal/hash"
	"github.com/sugarsphere/backend/internal/models"
	"github.com/sugarsphere/backend/internal/payment"
)

const testGatewaySecret = "test-key-secret"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A pooled second connection would see an empty in-memory database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, config.Migrate(db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, name, email, role string) *models.User {
	t.Helper()

	pw, err := hash.HashPassword("password")
	require.NoError(t, err)
	user := models.User{
		Name:         name,
		Email:        email,
		PasswordHash: pw,
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func createProduct(t *testing.T, db *gorm.DB, name string, price float64, quantity int) *models.Product {
	t.Helper()

	p := models.Product{
		Name:     name,
		Category: "chocolate",
		Price:    price,
		Quantity: quantity,
		IsActive: true,
	}
	require.NoError(t, db.Create(&p).Error)
	return &p
}

// fakeGateway hands out deterministic intents and verifies signatures with
// the same HMAC scheme the real gateway uses.
type fakeGateway struct {
	mu      sync.Mutex
	intents int
	failErr error
}

func (g *fakeGateway) CreateIntent(_ context.Context, amount int64, currency, receipt string, _ map[string]string) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failErr != nil {
		return nil, g.failErr
	}
	g.intents++
	return &payment.Intent{
		ID:       fmt.Sprintf("intent_%d", g.intents),
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) VerifySignature(chargeIntentID, paymentID, signature string) bool {
	return payment.SignPayment(chargeIntentID, paymentID, testGatewaySecret) == signature
}

func gatewaySign(chargeIntentID, paymentID string) string {
	return payment.SignPayment(chargeIntentID, paymentID, testGatewaySecret)
}

type pushedEvent struct {
	UserID uint
	Admin  bool
	Event  string
	Data   interface{}
}

type fakePusher struct {
	mu     sync.Mutex
	events []pushedEvent
}

func (p *fakePusher) ToUser(userID uint, event string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pushedEvent{UserID: userID, Event: event, Data: data})
}

func (p *fakePusher) ToAdmins(event string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pushedEvent{Admin: true, Event: event, Data: data})
}

func (p *fakePusher) byEvent(event string) []pushedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pushedEvent
	for _, e := range p.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type sentMail struct {
	Kind string
	To   string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) record(kind, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{Kind: kind, To: to})
	return nil
}

func (m *fakeMailer) SendVerificationEmail(_ context.Context, to, _, _ string) error {
	return m.record("verification", to)
}

func (m *fakeMailer) SendPasswordResetEmail(_ context.Context, to, _, _ string) error {
	return m.record("reset", to)
}

func (m *fakeMailer) SendInvoiceEmail(_ context.Context, to, _ string, _ *models.Order, _ string) error {
	return m.record("invoice", to)
}

func (m *fakeMailer) SendOrderStatusEmail(_ context.Context, to, _ string, _ uint, _, _ string) error {
	return m.record("status", to)
}

func (m *fakeMailer) byKind(kind string) []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMail
	for _, s := range m.sent {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
