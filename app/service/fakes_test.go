package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

// memState mirrors the unique keys and compare-and-set rules of the MySQL schema.
type memState struct {
	customers     map[string]*entity.Customer
	intents       map[string]*entity.PaymentIntent
	payments      map[string]*entity.Payment
	subscriptions map[string]*entity.Subscription
	events        map[string]*entity.WebhookEvent
	nextID        uint64
}

func newMemState() *memState {
	return &memState{
		customers:     map[string]*entity.Customer{},
		intents:       map[string]*entity.PaymentIntent{},
		payments:      map[string]*entity.Payment{},
		subscriptions: map[string]*entity.Subscription{},
		events:        map[string]*entity.WebhookEvent{},
		nextID:        1,
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.nextID = s.nextID
	for k, v := range s.customers {
		cp := *v
		c.customers[k] = &cp
	}
	for k, v := range s.intents {
		cp := *v
		c.intents[k] = &cp
	}
	for k, v := range s.payments {
		cp := *v
		c.payments[k] = &cp
	}
	for k, v := range s.subscriptions {
		cp := *v
		c.subscriptions[k] = &cp
	}
	for k, v := range s.events {
		cp := *v
		c.events[k] = &cp
	}
	return c
}

func (s *memState) id() uint64 {
	id := s.nextID
	s.nextID++
	return id
}

type memLedger struct {
	mu      sync.Mutex
	txMu    sync.Mutex
	state   *memState
	repos   *Repositories
	commits int
	aborts  int

	// failCommit makes the next transaction fail after fn succeeded.
	failCommit error
}

func newMemLedger() *memLedger {
	l := &memLedger{state: newMemState()}
	l.repos = &Repositories{
		Customers:     &memCustomers{l: l},
		Intents:       &memIntents{l: l},
		Payments:      &memPayments{l: l},
		Subscriptions: &memSubscriptions{l: l},
		WebhookEvents: &memEvents{l: l},
	}
	return l
}

func (l *memLedger) Repos() *Repositories {
	return l.repos
}

func (l *memLedger) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	l.mu.Lock()
	snapshot := l.state.clone()
	l.mu.Unlock()

	err := fn(ctx, l.repos)
	if err == nil && l.failCommit != nil {
		err = l.failCommit
		l.failCommit = nil
	}
	if err != nil {
		l.mu.Lock()
		l.state = snapshot
		l.aborts++
		l.mu.Unlock()
		return err
	}

	l.mu.Lock()
	l.commits++
	l.mu.Unlock()
	return nil
}

func (l *memLedger) paymentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state.payments)
}

func (l *memLedger) subscriptionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state.subscriptions)
}

func (l *memLedger) payment(intentID string) *entity.Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.state.payments[intentID]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (l *memLedger) intent(intentID string) *entity.PaymentIntent {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.state.intents[intentID]
	if !ok {
		return nil
	}
	cp := *i
	return &cp
}

func (l *memLedger) subscription(id string) *entity.Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.state.subscriptions[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (l *memLedger) putIntent(intent *entity.PaymentIntent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *intent
	if cp.ID == 0 {
		cp.ID = l.state.id()
	}
	l.state.intents[cp.GatewayIntentID] = &cp
}

func (l *memLedger) putSubscription(sub *entity.Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *sub
	if cp.ID == 0 {
		cp.ID = l.state.id()
	}
	l.state.subscriptions[cp.GatewaySubscriptionID] = &cp
}

type memCustomers struct{ l *memLedger }

func (r *memCustomers) Create(_ context.Context, customer *entity.Customer) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, c := range r.l.state.customers {
		if c.GatewayCustomerID == customer.GatewayCustomerID {
			return repository.ErrCustomerAlreadyExists
		}
		if c.CorrelationKey != nil && customer.CorrelationKey != nil && *c.CorrelationKey == *customer.CorrelationKey {
			return repository.ErrCustomerAlreadyExists
		}
	}
	customer.ID = r.l.state.id()
	cp := *customer
	r.l.state.customers[customer.GatewayCustomerID] = &cp
	return nil
}

func (r *memCustomers) UpsertByGatewayID(_ context.Context, customer *entity.Customer) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if customer.CorrelationKey != nil {
		for _, c := range r.l.state.customers {
			if c.GatewayCustomerID != customer.GatewayCustomerID && c.CorrelationKey != nil && *c.CorrelationKey == *customer.CorrelationKey {
				return repository.ErrCustomerAlreadyExists
			}
		}
	}
	if existing, ok := r.l.state.customers[customer.GatewayCustomerID]; ok {
		if existing.CorrelationKey == nil {
			existing.CorrelationKey = customer.CorrelationKey
		}
		existing.Name = customer.Name
		existing.Email = customer.Email
		existing.Metadata = customer.Metadata
		existing.UpdatedAt = customer.UpdatedAt
		return nil
	}
	cp := *customer
	cp.ID = r.l.state.id()
	r.l.state.customers[customer.GatewayCustomerID] = &cp
	return nil
}

func (r *memCustomers) FindByCorrelationKey(_ context.Context, key string) (*entity.Customer, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, c := range r.l.state.customers {
		if c.CorrelationKey != nil && *c.CorrelationKey == key {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memCustomers) FindByGatewayID(_ context.Context, gatewayCustomerID string) (*entity.Customer, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	c, ok := r.l.state.customers[gatewayCustomerID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

type memIntents struct{ l *memLedger }

func (r *memIntents) Create(_ context.Context, intent *entity.PaymentIntent) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, i := range r.l.state.intents {
		if i.GatewayIntentID == intent.GatewayIntentID || i.IdempotencyKey == intent.IdempotencyKey {
			return repository.ErrPaymentIntentAlreadyExists
		}
	}
	intent.ID = r.l.state.id()
	cp := *intent
	r.l.state.intents[intent.GatewayIntentID] = &cp
	return nil
}

func (r *memIntents) FindByIdempotencyKey(_ context.Context, key string) (*entity.PaymentIntent, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, i := range r.l.state.intents {
		if i.IdempotencyKey == key {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memIntents) FindByGatewayID(_ context.Context, gatewayIntentID string) (*entity.PaymentIntent, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	i, ok := r.l.state.intents[gatewayIntentID]
	if !ok {
		return nil, nil
	}
	cp := *i
	return &cp, nil
}

// FindByGatewayIDForUpdate relies on memLedger serializing transactions.
func (r *memIntents) FindByGatewayIDForUpdate(ctx context.Context, gatewayIntentID string) (*entity.PaymentIntent, error) {
	return r.FindByGatewayID(ctx, gatewayIntentID)
}

func (r *memIntents) UpdateStatus(_ context.Context, gatewayIntentID, status string, now time.Time) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	i, ok := r.l.state.intents[gatewayIntentID]
	if !ok || i.Status == status || i.Status == entity.PaymentStatusSucceeded || i.Status == entity.PaymentStatusCanceled {
		return false, nil
	}
	i.Status = status
	i.UpdatedAt = now
	return true, nil
}

func (r *memIntents) ListStale(_ context.Context, before time.Time, limit int32) ([]*entity.PaymentIntent, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	pending := map[string]bool{}
	for _, s := range entity.PendingPaymentStatuses {
		pending[s] = true
	}
	var out []*entity.PaymentIntent
	for _, i := range r.l.state.intents {
		if pending[i.Status] && i.UpdatedAt.Before(before) {
			cp := *i
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	if limit > 0 && int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type memPayments struct {
	l *memLedger

	// failCreate is returned once by the next Create.
	failCreate error
}

func (r *memPayments) Create(_ context.Context, payment *entity.Payment) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if r.failCreate != nil {
		err := r.failCreate
		r.failCreate = nil
		return err
	}
	if _, ok := r.l.state.payments[payment.GatewayIntentID]; ok {
		return repository.ErrPaymentAlreadyExists
	}
	payment.ID = r.l.state.id()
	cp := *payment
	r.l.state.payments[payment.GatewayIntentID] = &cp
	return nil
}

func (r *memPayments) Update(_ context.Context, payment *entity.Payment) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, p := range r.l.state.payments {
		if p.ID == payment.ID && p.Status != entity.PaymentStatusSucceeded {
			p.PaymentMethodID = payment.PaymentMethodID
			p.Status = payment.Status
			p.UpdatedAt = payment.UpdatedAt
			return nil
		}
	}
	return repository.ErrPaymentNotFound
}

func (r *memPayments) UpsertFromGateway(_ context.Context, payment *entity.Payment) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if existing, ok := r.l.state.payments[payment.GatewayIntentID]; ok {
		if payment.PaymentMethodID != "" {
			existing.PaymentMethodID = payment.PaymentMethodID
		}
		if existing.Status != entity.PaymentStatusSucceeded {
			existing.Status = payment.Status
		}
		existing.UpdatedAt = payment.UpdatedAt
		return nil
	}
	cp := *payment
	cp.ID = r.l.state.id()
	cp.GatewaySubscriptionID = nil
	r.l.state.payments[payment.GatewayIntentID] = &cp
	return nil
}

func (r *memPayments) UpdateStatusByIntentID(_ context.Context, gatewayIntentID, status string, now time.Time) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	p, ok := r.l.state.payments[gatewayIntentID]
	if !ok || p.Status == status || p.Status == entity.PaymentStatusSucceeded {
		return false, nil
	}
	p.Status = status
	p.UpdatedAt = now
	return true, nil
}

func (r *memPayments) LinkSubscription(_ context.Context, paymentID uint64, gatewaySubscriptionID string, now time.Time) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, p := range r.l.state.payments {
		if p.ID == paymentID {
			id := gatewaySubscriptionID
			p.GatewaySubscriptionID = &id
			p.UpdatedAt = now
			return nil
		}
	}
	return repository.ErrPaymentNotFound
}

func (r *memPayments) FindByIntentID(_ context.Context, gatewayIntentID string) (*entity.Payment, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	p, ok := r.l.state.payments[gatewayIntentID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memPayments) ListByCustomer(_ context.Context, gatewayCustomerID string, limit, offset int32) ([]*entity.Payment, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []*entity.Payment
	for _, p := range r.l.state.payments {
		if p.GatewayCustomerID == gatewayCustomerID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	return window(out, limit, offset), nil
}

type memSubscriptions struct{ l *memLedger }

func (r *memSubscriptions) Create(_ context.Context, subscription *entity.Subscription) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if _, ok := r.l.state.subscriptions[subscription.GatewaySubscriptionID]; ok {
		return repository.ErrSubscriptionAlreadyExists
	}
	subscription.ID = r.l.state.id()
	cp := *subscription
	r.l.state.subscriptions[subscription.GatewaySubscriptionID] = &cp
	return nil
}

func (r *memSubscriptions) Upsert(_ context.Context, subscription *entity.Subscription) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if existing, ok := r.l.state.subscriptions[subscription.GatewaySubscriptionID]; ok {
		if subscription.PriceID != "" {
			existing.PriceID = subscription.PriceID
		}
		existing.Quantity = subscription.Quantity
		if existing.Status != entity.SubscriptionStatusCanceled {
			existing.Status = subscription.Status
		}
		if existing.PaymentID == nil && subscription.PaymentID != nil {
			id := *subscription.PaymentID
			existing.PaymentID = &id
		}
		existing.UpdatedAt = subscription.UpdatedAt
		return nil
	}
	cp := *subscription
	cp.ID = r.l.state.id()
	r.l.state.subscriptions[subscription.GatewaySubscriptionID] = &cp
	return nil
}

func (r *memSubscriptions) EnsureExists(_ context.Context, subscription *entity.Subscription) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if _, ok := r.l.state.subscriptions[subscription.GatewaySubscriptionID]; ok {
		return nil
	}
	cp := *subscription
	cp.ID = r.l.state.id()
	cp.PaymentID = nil
	r.l.state.subscriptions[subscription.GatewaySubscriptionID] = &cp
	return nil
}

func (r *memSubscriptions) ActivateIfPending(_ context.Context, gatewaySubscriptionID string, now time.Time) (bool, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	s, ok := r.l.state.subscriptions[gatewaySubscriptionID]
	if !ok || (s.Status != entity.SubscriptionStatusIncomplete && s.Status != entity.SubscriptionStatusPastDue) {
		return false, nil
	}
	s.Status = entity.SubscriptionStatusActive
	s.UpdatedAt = now
	return true, nil
}

func (r *memSubscriptions) FindByGatewayID(_ context.Context, gatewaySubscriptionID string) (*entity.Subscription, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	s, ok := r.l.state.subscriptions[gatewaySubscriptionID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSubscriptions) ListByCustomer(_ context.Context, gatewayCustomerID string, limit, offset int32) ([]*entity.Subscription, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []*entity.Subscription
	for _, s := range r.l.state.subscriptions {
		if s.GatewayCustomerID == gatewayCustomerID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	return window(out, limit, offset), nil
}

type memEvents struct{ l *memLedger }

func (r *memEvents) Record(_ context.Context, event *entity.WebhookEvent) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if existing, ok := r.l.state.events[event.GatewayEventID]; ok {
		existing.Status = event.Status
		existing.Attempts++
		existing.LastError = event.LastError
		existing.UpdatedAt = event.UpdatedAt
		return nil
	}
	cp := *event
	cp.ID = r.l.state.id()
	cp.Attempts = 1
	r.l.state.events[event.GatewayEventID] = &cp
	return nil
}

func (r *memEvents) FindByGatewayID(_ context.Context, gatewayEventID string) (*entity.WebhookEvent, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	e, ok := r.l.state.events[gatewayEventID]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func window[T any](items []T, limit, offset int32) []T {
	if int(offset) >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}

// fakeGateway records calls and answers from in-memory state.
type fakeGateway struct {
	mu sync.Mutex

	calls          []string
	confirmStatus  string
	confirmErr     error
	subscribeErr   error
	intentStatuses map[string]string
	subscriptions  map[string]*provider.Subscription
	lastUpdate     *provider.UpdateSubscriptionInput
	lastCustomer   *provider.CreateCustomerInput
	nextIntent     int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		confirmStatus:  entity.PaymentStatusSucceeded,
		intentStatuses: map[string]string{},
		subscriptions:  map[string]*provider.Subscription{},
	}
}

func (g *fakeGateway) record(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) count(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (g *fakeGateway) CreateCustomer(_ context.Context, input *provider.CreateCustomerInput) (*provider.Customer, error) {
	g.record("CreateCustomer")
	g.mu.Lock()
	g.lastCustomer = input
	g.mu.Unlock()
	return &provider.Customer{ID: "cus_" + input.Metadata["company"], Name: input.Name, Email: input.Email, Metadata: input.Metadata}, nil
}

func (g *fakeGateway) CreateIntent(_ context.Context, input *provider.CreateIntentInput) (*provider.Intent, error) {
	g.record("CreateIntent")
	g.mu.Lock()
	g.nextIntent++
	id := fmt.Sprintf("pi_%d", g.nextIntent)
	g.mu.Unlock()
	return &provider.Intent{
		ID:          id,
		CustomerID:  input.CustomerID,
		AmountMinor: input.AmountMinor,
		Currency:    input.Currency,
		Status:      entity.PaymentStatusRequiresPaymentMethod,
	}, nil
}

func (g *fakeGateway) ConfirmIntent(_ context.Context, intentID, paymentMethodID string) (*provider.Intent, error) {
	g.record("ConfirmIntent")
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	return &provider.Intent{ID: intentID, PaymentMethodID: paymentMethodID, Status: g.confirmStatus}, nil
}

func (g *fakeGateway) RetrieveIntent(_ context.Context, intentID string) (*provider.Intent, error) {
	g.record("RetrieveIntent")
	status, ok := g.intentStatuses[intentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, intentID)
	}
	return &provider.Intent{ID: intentID, CustomerID: "cus_1", PaymentMethodID: "pm_1", AmountMinor: 1000, Currency: "usd", Status: status}, nil
}

func (g *fakeGateway) CreateSubscription(_ context.Context, input *provider.CreateSubscriptionInput) (*provider.Subscription, error) {
	g.record("CreateSubscription")
	if g.subscribeErr != nil {
		return nil, g.subscribeErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	sub := &provider.Subscription{
		ID:         fmt.Sprintf("sub_%d", len(g.subscriptions)+1),
		CustomerID: input.CustomerID,
		Status:     entity.SubscriptionStatusActive,
		Items:      []provider.SubscriptionItem{{ID: fmt.Sprintf("si_%d", len(g.subscriptions)+1), PriceID: input.PriceID, Quantity: input.Quantity}},
	}
	g.subscriptions[sub.ID] = sub
	return cloneSubscription(sub), nil
}

func (g *fakeGateway) UpdateSubscription(_ context.Context, subscriptionID string, input *provider.UpdateSubscriptionInput) (*provider.Subscription, error) {
	g.record("UpdateSubscription")
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastUpdate = input
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, subscriptionID)
	}
	for i := range sub.Items {
		if sub.Items[i].ID == input.ItemID {
			sub.Items[i].PriceID = input.PriceID
			sub.Items[i].Quantity = input.Quantity
		}
	}
	return cloneSubscription(sub), nil
}

func (g *fakeGateway) CancelSubscription(_ context.Context, subscriptionID string) (*provider.Subscription, error) {
	g.record("CancelSubscription")
	g.mu.Lock()
	defer g.mu.Unlock()
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, subscriptionID)
	}
	sub.Status = entity.SubscriptionStatusCanceled
	return cloneSubscription(sub), nil
}

func (g *fakeGateway) RetrieveSubscription(_ context.Context, subscriptionID string) (*provider.Subscription, error) {
	g.record("RetrieveSubscription")
	g.mu.Lock()
	defer g.mu.Unlock()
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, subscriptionID)
	}
	return cloneSubscription(sub), nil
}

func (g *fakeGateway) CreateInvoice(_ context.Context, input *provider.CreateInvoiceInput) (*provider.Invoice, error) {
	g.record("CreateInvoice")
	return &provider.Invoice{ID: "in_1", CustomerID: input.CustomerID, SubscriptionID: input.SubscriptionID, Status: "draft", Currency: "usd"}, nil
}

func (g *fakeGateway) RetrieveInvoice(_ context.Context, invoiceID string) (*provider.Invoice, error) {
	g.record("RetrieveInvoice")
	if invoiceID != "in_1" {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, invoiceID)
	}
	return &provider.Invoice{ID: "in_1", CustomerID: "cus_1", Status: "open", AmountDue: 1000, Currency: "usd"}, nil
}

// ConstructVerifiedEvent accepts only the signature "valid" computed for secret "whsec_test".
func (g *fakeGateway) ConstructVerifiedEvent(payload []byte, signature, secret string) (*provider.Event, error) {
	g.record("ConstructVerifiedEvent")
	if secret != "whsec_test" || signature != "valid" {
		return nil, provider.ErrSignatureInvalid
	}
	var raw struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	return &provider.Event{ID: raw.ID, Type: raw.Type, Object: raw.Data.Object}, nil
}

func (g *fakeGateway) addSubscription(sub *provider.Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscriptions[sub.ID] = cloneSubscription(sub)
}

func cloneSubscription(sub *provider.Subscription) *provider.Subscription {
	cp := *sub
	cp.Items = append([]provider.SubscriptionItem(nil), sub.Items...)
	return &cp
}
