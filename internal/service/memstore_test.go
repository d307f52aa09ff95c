package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/studentmarket-backend/internal/domain/policy"
	"github.com/ignatzorin/studentmarket-backend/internal/domain/valueobject"
	"github.com/ignatzorin/studentmarket-backend/internal/models"
	"github.com/ignatzorin/studentmarket-backend/internal/repository"
	"github.com/ignatzorin/studentmarket-backend/internal/repository/common"
)

// memDB — хранилище в памяти с теми же ошибками, что у репозиториев PostgreSQL.
type memDB struct {
	users      map[uuid.UUID]models.User
	listings   map[uuid.UUID]models.Listing
	orders     map[uuid.UUID]models.Order
	deliveries []models.DeliveryHistoryEntry
	revisions  []models.RevisionHistoryEntry
	payments   []models.Payment
	webhooks   map[string]models.WebhookEvent
	disputes   []models.Dispute
	violations []models.Violation
	messages   []models.Message
	auditLog   []models.AuditLogEntry
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[uuid.UUID]models.User{},
		listings: map[uuid.UUID]models.Listing{},
		orders:   map[uuid.UUID]models.Order{},
		webhooks: map[string]models.WebhookEvent{},
	}
}

func (db *memDB) snapshot() memDB {
	return memDB{
		users:      maps.Clone(db.users),
		listings:   maps.Clone(db.listings),
		orders:     maps.Clone(db.orders),
		deliveries: slices.Clone(db.deliveries),
		revisions:  slices.Clone(db.revisions),
		payments:   slices.Clone(db.payments),
		webhooks:   maps.Clone(db.webhooks),
		disputes:   slices.Clone(db.disputes),
		violations: slices.Clone(db.violations),
		messages:   slices.Clone(db.messages),
		auditLog:   slices.Clone(db.auditLog),
	}
}

// memStore реализует Store: ошибка из InTx возвращает состояние к снимку.
type memStore struct {
	db *memDB
}

func (s *memStore) InTx(_ context.Context, fn func(tx Repositories) error) error {
	snap := s.db.snapshot()
	if err := fn(s); err != nil {
		*s.db = snap
		return err
	}
	return nil
}

func (s *memStore) Users() UserRepository           { return memUsers{s.db} }
func (s *memStore) Listings() ListingRepository     { return memListings{s.db} }
func (s *memStore) Orders() OrderRepository         { return memOrders{s.db} }
func (s *memStore) Payments() PaymentRepository     { return memPayments{s.db} }
func (s *memStore) Webhooks() WebhookRepository     { return memWebhooks{s.db} }
func (s *memStore) Disputes() DisputeRepository     { return memDisputes{s.db} }
func (s *memStore) Violations() ViolationRepository { return memViolations{s.db} }
func (s *memStore) Messages() MessageRepository     { return memMessages{s.db} }
func (s *memStore) Audit() AuditRepository          { return memAudit{s.db} }

type memUsers struct{ db *memDB }

func (r memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := r.db.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (r memUsers) UpdateSuspension(_ context.Context, id uuid.UUID, status valueobject.UserStatus, endDate *time.Time) error {
	u, ok := r.db.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Status = status
	u.SuspensionEndDate = endDate
	r.db.users[id] = u
	return nil
}

type memListings struct{ db *memDB }

func (r memListings) Create(_ context.Context, l *models.Listing) error {
	r.db.listings[l.ID] = *l
	return nil
}

func (r memListings) GetByID(_ context.Context, id uuid.UUID) (*models.Listing, error) {
	l, ok := r.db.listings[id]
	if !ok {
		return nil, repository.ErrListingNotFound
	}
	return &l, nil
}

func (r memListings) SetActive(_ context.Context, id uuid.UUID, active bool, at time.Time) error {
	l, ok := r.db.listings[id]
	if !ok {
		return repository.ErrListingNotFound
	}
	l.IsActive = active
	l.UpdatedAt = at
	r.db.listings[id] = l
	return nil
}

type memOrders struct{ db *memDB }

func (r memOrders) Create(_ context.Context, o *models.Order) error {
	r.db.orders[o.ID] = *o
	return nil
}

func (r memOrders) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := r.db.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return &o, nil
}

func (r memOrders) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.GetByID(ctx, id)
}

func (r memOrders) Update(_ context.Context, o *models.Order) error {
	if _, ok := r.db.orders[o.ID]; !ok {
		return repository.ErrOrderNotFound
	}
	r.db.orders[o.ID] = *o
	return nil
}

func (r memOrders) ListByParticipant(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	var out []models.Order
	for _, o := range r.db.orders {
		if o.IsParticipant(userID) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r memOrders) MarkAllDeliveriesNotCurrent(_ context.Context, orderID uuid.UUID) error {
	for i := range r.db.deliveries {
		if r.db.deliveries[i].OrderID == orderID {
			r.db.deliveries[i].IsCurrent = false
		}
	}
	return nil
}

func (r memOrders) CreateDelivery(_ context.Context, d *models.DeliveryHistoryEntry) error {
	r.db.deliveries = append(r.db.deliveries, *d)
	return nil
}

func (r memOrders) ListDeliveries(_ context.Context, orderID uuid.UUID) ([]models.DeliveryHistoryEntry, error) {
	var out []models.DeliveryHistoryEntry
	for _, d := range r.db.deliveries {
		if d.OrderID == orderID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r memOrders) MarkAllRevisionsNotCurrent(_ context.Context, orderID uuid.UUID) error {
	for i := range r.db.revisions {
		if r.db.revisions[i].OrderID == orderID {
			r.db.revisions[i].IsCurrent = false
		}
	}
	return nil
}

func (r memOrders) CreateRevision(_ context.Context, rev *models.RevisionHistoryEntry) error {
	r.db.revisions = append(r.db.revisions, *rev)
	return nil
}

func (r memOrders) ListRevisions(_ context.Context, orderID uuid.UUID) ([]models.RevisionHistoryEntry, error) {
	var out []models.RevisionHistoryEntry
	for _, rev := range r.db.revisions {
		if rev.OrderID == orderID {
			out = append(out, rev)
		}
	}
	return out, nil
}

type memPayments struct{ db *memDB }

func (r memPayments) Create(_ context.Context, p *models.Payment) error {
	r.db.payments = append(r.db.payments, *p)
	return nil
}

func (r memPayments) Update(_ context.Context, p *models.Payment) error {
	for i := range r.db.payments {
		if r.db.payments[i].ID == p.ID {
			r.db.payments[i] = *p
			return nil
		}
	}
	return repository.ErrPaymentNotFound
}

func (r memPayments) GetByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.ID == id })
}

func (r memPayments) GetChargeForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	charges, _ := r.ListChargesForUpdate(ctx, orderID)
	if len(charges) == 0 {
		return nil, repository.ErrPaymentNotFound
	}
	for i := len(charges) - 1; i >= 0; i-- {
		if charges[i].Status.IsRefundable() {
			return &charges[i], nil
		}
	}
	return &charges[len(charges)-1], nil
}

func (r memPayments) ListChargesForUpdate(_ context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.db.payments {
		if p.OrderID != nil && *p.OrderID == orderID && p.Type == valueobject.PaymentTypeCharge {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memPayments) GetByCheckoutSessionForUpdate(_ context.Context, sessionID string) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool {
		return p.CheckoutSessionID != nil && *p.CheckoutSessionID == sessionID
	})
}

func (r memPayments) GetByIntentForUpdate(_ context.Context, intentID string) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool {
		return p.Type == valueobject.PaymentTypeCharge && p.PaymentIntentID != nil && *p.PaymentIntentID == intentID
	})
}

func (r memPayments) ListByOrder(_ context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.db.payments {
		if p.OrderID != nil && *p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memPayments) find(match func(models.Payment) bool) (*models.Payment, error) {
	for _, p := range r.db.payments {
		if match(p) {
			return &p, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

type memWebhooks struct{ db *memDB }

func (r memWebhooks) Exists(_ context.Context, externalEventID string) (bool, error) {
	_, ok := r.db.webhooks[externalEventID]
	return ok, nil
}

func (r memWebhooks) Insert(_ context.Context, e *models.WebhookEvent) error {
	if _, ok := r.db.webhooks[e.ExternalEventID]; ok {
		return common.ErrAlreadyExists
	}
	r.db.webhooks[e.ExternalEventID] = *e
	return nil
}

func (r memWebhooks) MarkProcessed(_ context.Context, externalEventID string, at time.Time) error {
	e, ok := r.db.webhooks[externalEventID]
	if !ok {
		return common.ErrNotFound
	}
	e.Processed = true
	e.ProcessedAt = &at
	r.db.webhooks[externalEventID] = e
	return nil
}

type memDisputes struct{ db *memDB }

func (r memDisputes) Create(_ context.Context, d *models.Dispute) error {
	for _, existing := range r.db.disputes {
		if existing.OrderID == d.OrderID && existing.Status == valueobject.DisputeStatusOpen {
			return common.ErrAlreadyExists
		}
	}
	r.db.disputes = append(r.db.disputes, *d)
	return nil
}

func (r memDisputes) GetByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	for _, d := range r.db.disputes {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, repository.ErrDisputeNotFound
}

func (r memDisputes) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return r.GetByID(ctx, id)
}

func (r memDisputes) GetOpenByOrderID(_ context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	for _, d := range r.db.disputes {
		if d.OrderID == orderID && d.Status == valueobject.DisputeStatusOpen {
			return &d, nil
		}
	}
	return nil, repository.ErrDisputeNotFound
}

func (r memDisputes) ListByOrder(_ context.Context, orderID uuid.UUID) ([]models.Dispute, error) {
	var out []models.Dispute
	for i := len(r.db.disputes) - 1; i >= 0; i-- {
		if r.db.disputes[i].OrderID == orderID {
			out = append(out, r.db.disputes[i])
		}
	}
	return out, nil
}

func (r memDisputes) Update(_ context.Context, d *models.Dispute) error {
	for i := range r.db.disputes {
		if r.db.disputes[i].ID == d.ID {
			r.db.disputes[i] = *d
			return nil
		}
	}
	return repository.ErrDisputeNotFound
}

type memViolations struct{ db *memDB }

func (r memViolations) Create(_ context.Context, v *models.Violation) error {
	r.db.violations = append(r.db.violations, *v)
	return nil
}

func (r memViolations) CountByUser(_ context.Context, userID uuid.UUID) (int, error) {
	n := 0
	for _, v := range r.db.violations {
		if v.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r memViolations) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Violation, error) {
	var out []models.Violation
	for i := len(r.db.violations) - 1; i >= 0; i-- {
		if r.db.violations[i].UserID == userID {
			out = append(out, r.db.violations[i])
		}
	}
	return out, nil
}

type memMessages struct{ db *memDB }

func (r memMessages) Create(_ context.Context, m *models.Message) error {
	r.db.messages = append(r.db.messages, *m)
	return nil
}

func (r memMessages) GetByID(_ context.Context, id uuid.UUID) (*models.Message, error) {
	for _, m := range r.db.messages {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, repository.ErrMessageNotFound
}

func (r memMessages) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return r.GetByID(ctx, id)
}

func (r memMessages) UpdateFlag(_ context.Context, m *models.Message) error {
	for i := range r.db.messages {
		if r.db.messages[i].ID == m.ID {
			r.db.messages[i].IsFlagged = m.IsFlagged
			r.db.messages[i].FlagReason = m.FlagReason
			r.db.messages[i].FlaggedBy = m.FlaggedBy
			return nil
		}
	}
	return repository.ErrMessageNotFound
}

func (r memMessages) ListByOrder(_ context.Context, orderID uuid.UUID, limit, offset int) ([]models.Message, error) {
	var out []models.Message
	for _, m := range r.db.messages {
		if m.OrderID == orderID {
			out = append(out, m)
		}
	}
	return page(out, limit, offset), nil
}

func (r memMessages) ListFlagged(_ context.Context, limit, offset int) ([]models.Message, error) {
	var out []models.Message
	for _, m := range r.db.messages {
		if m.IsFlagged {
			out = append(out, m)
		}
	}
	return page(out, limit, offset), nil
}

type memAudit struct{ db *memDB }

func (r memAudit) Add(_ context.Context, e *models.AuditLogEntry) error {
	r.db.auditLog = append(r.db.auditLog, *e)
	return nil
}

func (r memAudit) ListByEntity(_ context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLogEntry, error) {
	var out []models.AuditLogEntry
	for _, e := range r.db.auditLog {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// fakeGateway записывает вызовы шлюза; ошибки задаются полями *Err.
type fakeGateway struct {
	charges   []ChargeRequest
	refunds   []int64
	payouts   []PayoutRequest
	chargeErr error
	refundErr error
	payoutErr error
}

func (g *fakeGateway) Charge(_ context.Context, req ChargeRequest) (*ChargeResult, error) {
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	g.charges = append(g.charges, req)
	n := len(g.charges)
	return &ChargeResult{
		IntentID:          "pi_" + req.Reference,
		CheckoutSessionID: fmt.Sprintf("cs_%d", n),
		RedirectURL:       fmt.Sprintf("https://pay.test/checkout/cs_%d", n),
	}, nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, amountCents int64, _ string) (string, error) {
	if g.refundErr != nil {
		return "", g.refundErr
	}
	g.refunds = append(g.refunds, amountCents)
	return fmt.Sprintf("re_%d", len(g.refunds)), nil
}

func (g *fakeGateway) Payout(_ context.Context, req PayoutRequest) (string, error) {
	if g.payoutErr != nil {
		return "", g.payoutErr
	}
	g.payouts = append(g.payouts, req)
	return fmt.Sprintf("po_%d", len(g.payouts)), nil
}

type sentNotification struct {
	userID  uuid.UUID
	kind    string
	payload map[string]interface{}
}

type recordingNotifier struct {
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, kind string, payload map[string]interface{}) {
	n.sent = append(n.sent, sentNotification{userID: userID, kind: kind, payload: payload})
}

func (n *recordingNotifier) forUser(userID uuid.UUID) []sentNotification {
	var out []sentNotification
	for _, s := range n.sent {
		if s.userID == userID {
			out = append(out, s)
		}
	}
	return out
}

func (n *recordingNotifier) kinds(userID uuid.UUID) []string {
	var out []string
	for _, s := range n.forUser(userID) {
		out = append(out, s.kind)
	}
	return out
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixedCommission decimal.Decimal

func (r fixedCommission) CommissionRate(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(r), nil
}

// fixture — набор сервисов поверх одного memDB.
type fixture struct {
	db         *memDB
	store      *memStore
	gateway    *fakeGateway
	notifier   *recordingNotifier
	clock      *testClock
	payments   *PaymentService
	orders     *OrderService
	disputes   *DisputeService
	violations *ViolationService
	messages   *MessageService
	listings   *ListingService

	client  *models.User
	student *models.User
	admin   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newMemDB()
	store := &memStore{db: db}
	gateway := &fakeGateway{}
	notifier := &recordingNotifier{}
	clock := &testClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}

	payments := NewPaymentService(store, gateway, notifier).WithClock(clock.Now)
	f := &fixture{
		db:         db,
		store:      store,
		gateway:    gateway,
		notifier:   notifier,
		clock:      clock,
		payments:   payments,
		orders:     NewOrderService(store, payments, fixedCommission(decimal.NewFromInt(10)), notifier, 2).WithClock(clock.Now),
		disputes:   NewDisputeService(store, payments, notifier).WithClock(clock.Now),
		violations: NewViolationService(store, notifier, policy.DefaultEscalation()).WithClock(clock.Now),
		messages:   NewMessageService(store, notifier).WithClock(clock.Now),
		listings:   NewListingService(store).WithClock(clock.Now),
	}
	f.client = f.addUser(valueobject.RoleClient)
	f.student = f.addUser(valueobject.RoleStudent)
	f.admin = f.addUser(valueobject.RoleAdmin)
	return f
}

func (f *fixture) addUser(role valueobject.Role) *models.User {
	id := uuid.New()
	u := models.User{
		ID:        id,
		Email:     fmt.Sprintf("%s-%s@example.com", role, id.String()[:8]),
		Username:  fmt.Sprintf("%s_%s", role, id.String()[:8]),
		Role:      role,
		Status:    valueobject.UserStatusActive,
		CreatedAt: f.clock.now,
		UpdatedAt: f.clock.now,
	}
	f.db.users[id] = u
	return &u
}

func (f *fixture) suspend(userID uuid.UUID, until *time.Time) {
	u := f.db.users[userID]
	u.Status = valueobject.UserStatusSuspended
	u.SuspensionEndDate = until
	f.db.users[userID] = u
}

func (f *fixture) addListing(t *testing.T, price string, days int) *models.Listing {
	t.Helper()
	listing := models.Listing{
		ID:           uuid.New(),
		StudentID:    f.student.ID,
		Title:        "Essay proofreading",
		Description:  "Grammar and style review",
		Price:        decimal.RequireFromString(price),
		DeliveryDays: days,
		IsActive:     true,
		CreatedAt:    f.clock.now,
		UpdatedAt:    f.clock.now,
	}
	f.db.listings[listing.ID] = listing
	return &listing
}

func (f *fixture) order(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	o, ok := f.db.orders[id]
	require.True(t, ok, "order %s not stored", id)
	return o
}

func (f *fixture) paymentsOf(orderID uuid.UUID, typ valueobject.PaymentType) []models.Payment {
	var out []models.Payment
	for _, p := range f.db.payments {
		if p.OrderID != nil && *p.OrderID == orderID && p.Type == typ {
			out = append(out, p)
		}
	}
	return out
}

// addCharge кладёт в базу списание по заказу в обход шлюза.
func (f *fixture) addCharge(orderID uuid.UUID, amount string, status valueobject.PaymentStatus) models.Payment {
	f.clock.Advance(time.Second)
	id := uuid.New()
	p := models.Payment{
		ID:              id,
		OrderID:         &orderID,
		PaymentIntentID: strPtr("pi_" + id.String()),
		Amount:          decimal.RequireFromString(amount),
		RefundAmount:    decimal.Zero,
		Type:            valueobject.PaymentTypeCharge,
		Status:          status,
		CreatedAt:       f.clock.now,
		UpdatedAt:       f.clock.now,
	}
	f.db.payments = append(f.db.payments, p)
	return p
}

// createOrder оформляет заказ, ещё не оплаченный.
func (f *fixture) createOrder(t *testing.T, price string, days int) *CreateOrderResult {
	t.Helper()
	listing := f.addListing(t, price, days)
	result, err := f.orders.CreateOrder(context.Background(), f.client.ID, CreateOrderInput{
		ServiceID:    listing.ID,
		Requirements: "Please check chapters one and two",
	})
	require.NoError(t, err)
	return result
}

// paidOrder оформляет заказ и подтверждает оплату вебхуком.
func (f *fixture) paidOrder(t *testing.T, price string) models.Order {
	t.Helper()
	result := f.createOrder(t, price, 7)
	f.confirmPayment(t, *result.Payment.PaymentIntentID)
	order := f.order(t, result.Order.ID)
	require.Equal(t, valueobject.OrderStatusInProgress, order.Status)
	return order
}

func (f *fixture) confirmPayment(t *testing.T, intentID string) {
	t.Helper()
	processed, err := f.payments.HandleWebhook(context.Background(), WebhookEvent{
		EventID:   "evt_" + intentID,
		EventType: EventPaymentSucceeded,
		Payload:   []byte(fmt.Sprintf(`{"payment_intent_id":%q}`, intentID)),
	})
	require.NoError(t, err)
	require.True(t, processed)
}

// deliveredOrder — оплаченный заказ со сданной работой.
func (f *fixture) deliveredOrder(t *testing.T, price string) models.Order {
	t.Helper()
	order := f.paidOrder(t, price)
	_, err := f.orders.DeliverOrder(context.Background(), f.student.ID, order.ID, DeliverInput{Message: "Done, see attached"})
	require.NoError(t, err)
	return f.order(t, order.ID)
}

func TestMemStoreRollsBackFailedTransaction(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")

	err := f.store.InTx(context.Background(), func(tx Repositories) error {
		require.NoError(t, tx.Listings().Create(context.Background(), &models.Listing{ID: uuid.New()}))
		return boom
	})

	require.ErrorIs(t, err, boom)
	require.Empty(t, f.db.listings)
}
