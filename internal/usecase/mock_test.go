//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"strconv"
	"sync"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-access-subscription/internal/clock"
	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/adapter"
	"telegram-access-subscription/internal/domain/ports/repository"
	"telegram-access-subscription/internal/infra/i18n"
	"telegram-access-subscription/internal/usecase"
)

// -----------------------------
// In-memory ledger
// -----------------------------

// memStore backs every in-memory repository so cross-table queries (dedup
// exclusion, cascading delete) behave like the SQL versions.
type memStore struct {
	mu       sync.RWMutex
	subs     map[string]*model.Subscription
	payments map[string]*model.Payment
	actions  []*model.ActionLogEntry
	promos   map[string]*model.Promocode
	tariffs  map[string]*model.Tariff
	users    map[string]*model.User
	defs     []*model.NotificationDefinition
	states   map[int64]*model.BotState
	attempts map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		subs:     map[string]*model.Subscription{},
		payments: map[string]*model.Payment{},
		promos:   map[string]*model.Promocode{},
		tariffs:  map[string]*model.Tariff{},
		users:    map[string]*model.User{},
		states:   map[int64]*model.BotState{},
		attempts: map[string]time.Time{},
	}
}

func cloneSub(s *model.Subscription) *model.Subscription {
	cp := *s
	return &cp
}

// --- subscriptions

type memSubRepo struct {
	*memStore
	UpdateFunc        func(s *model.Subscription) error
	SetAccessFlagFunc func(id string, sys model.AccessSystem, granted bool) error
}

var _ repository.SubscriptionRepository = (*memSubRepo)(nil)

func (m *memSubRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.subs[s.ID] = cloneSub(s)
	return nil
}

func (m *memSubRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSub(s), nil
}

func (m *memSubRepo) Update(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if m.UpdateFunc != nil {
		if err := m.UpdateFunc(s); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.subs[s.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cp := cloneSub(s)
	cp.Access = cur.Access
	m.subs[s.ID] = cp
	return nil
}

func (m *memSubRepo) SetAccessFlag(ctx context.Context, tx repository.Tx, id string, sys model.AccessSystem, granted bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.SetAccessFlagFunc != nil {
		if err := m.SetAccessFlagFunc(id, sys, granted); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Access.Set(sys, granted)
	return nil
}

func (m *memSubRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.subs, id)
	for pid, p := range m.payments {
		if p.SubscriptionID == id {
			delete(m.payments, pid)
		}
	}
	kept := m.actions[:0]
	for _, e := range m.actions {
		if e.SubscriptionID == nil || *e.SubscriptionID != id {
			kept = append(kept, e)
		}
	}
	m.actions = kept
	return nil
}

func (m *memSubRepo) sorted(filter func(*model.Subscription) bool, limit int) []*model.Subscription {
	var out []*model.Subscription
	for _, s := range m.subs {
		if filter(s) {
			out = append(out, cloneSub(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memSubRepo) ListDueForExpiry(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(s *model.Subscription) bool { return s.IsOverdue(now) }, limit), nil
}

func (m *memSubRepo) ListExpiringBetween(ctx context.Context, tx repository.Tx, from, to time.Time, excludeAction string, limit int) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(s *model.Subscription) bool {
		if !s.IsActive() || s.EndDate == nil || !s.EndDate.After(from) || s.EndDate.After(to) {
			return false
		}
		return !m.hasKey(s.ID, excludeAction)
	}, limit), nil
}

func (m *memSubRepo) ListAccessDrift(ctx context.Context, tx repository.Tx, limit int) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.sorted(func(s *model.Subscription) bool {
		all := s.Access.CommunityChat && s.Access.KnowledgeBase && s.Access.FileStorage
		switch s.Status {
		case model.SubscriptionStatusActive:
			return !all
		case model.SubscriptionStatusExpired, model.SubscriptionStatusCancelled:
			return s.Access.Any()
		}
		return false
	}, 0)
	// never attempted first, then oldest attempt
	sort.SliceStable(out, func(i, j int) bool {
		return m.attempts[out[i].ID].Before(m.attempts[out[j].ID])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSubRepo) MarkAccessAttempt(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[id] = at
	return nil
}

func (m *memSubRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[model.SubscriptionStatus]int{}
	for _, s := range m.subs {
		out[s.Status]++
	}
	return out, nil
}

// --- payments

type memPaymentRepo struct{ *memStore }

var _ repository.PaymentRepository = (*memPaymentRepo)(nil)

func (m *memPaymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.payments {
		if ex.ExternalID == p.ExternalID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *memPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.ExternalID == externalID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPaymentRepo) MarkCompleted(ctx context.Context, tx repository.Tx, id string, at time.Time, payload []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status == model.PaymentStatusCompleted || p.Status == model.PaymentStatusRefunded {
		return false, nil
	}
	p.Status = model.PaymentStatusCompleted
	p.CompletedAt = &at
	p.Payload = payload
	return true, nil
}

func (m *memPaymentRepo) MarkFailed(ctx context.Context, tx repository.Tx, id, reason string, payload []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = model.PaymentStatusFailed
	p.ErrorMessage = reason
	p.Payload = payload
	return true, nil
}

func (m *memPaymentRepo) MarkRefunded(ctx context.Context, tx repository.Tx, id string, payload []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != model.PaymentStatusCompleted {
		return false, nil
	}
	p.Status = model.PaymentStatusRefunded
	p.Payload = payload
	return true, nil
}

// --- action log

type memActionRepo struct{ *memStore }

var _ repository.ActionLogRepository = (*memActionRepo)(nil)

// hasKey expects the caller to hold the lock.
func (m *memStore) hasKey(subID, key string) bool {
	for _, e := range m.actions {
		if e.SubscriptionID != nil && *e.SubscriptionID == subID && e.DedupKey != nil && *e.DedupKey == key {
			return true
		}
	}
	return false
}

// Append rejects a done ctx the way the database driver does.
func (m *memActionRepo) Append(ctx context.Context, tx repository.Tx, e *model.ActionLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, e)
	return nil
}

func (m *memActionRepo) Claim(ctx context.Context, tx repository.Tx, e *model.ActionLogEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasKey(*e.SubscriptionID, *e.DedupKey) {
		return false, nil
	}
	m.actions = append(m.actions, e)
	return true, nil
}

func (m *memActionRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string, limit int) ([]*model.ActionLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ActionLogEntry
	for _, e := range m.actions {
		if e.SubscriptionID != nil && *e.SubscriptionID == subscriptionID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// byAction counts entries with the given action, across all subscriptions.
func (m *memStore) byAction(action string) []*model.ActionLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ActionLogEntry
	for _, e := range m.actions {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// --- promocodes, tariffs, users, definitions, bot states

type memPromoRepo struct{ *memStore }

func (m *memPromoRepo) Create(ctx context.Context, tx repository.Tx, p *model.Promocode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code := model.NormalizeCode(p.Code)
	if _, ok := m.promos[code]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *p
	m.promos[code] = &cp
	return nil
}

func (m *memPromoRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Promocode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.promos[model.NormalizeCode(code)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type memTariffRepo struct{ *memStore }

func (m *memTariffRepo) Save(ctx context.Context, tx repository.Tx, t *model.Tariff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tariffs[t.ID] = &cp
	return nil
}

func (m *memTariffRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Tariff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tariffs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTariffRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Tariff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Tariff
	for _, t := range m.tariffs {
		if t.IsActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memUserRepo struct{ *memStore }

func (m *memUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.TelegramID == tgID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

type memDefRepo struct{ *memStore }

func (m *memDefRepo) Save(ctx context.Context, tx repository.Tx, d *model.NotificationDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs = append(m.defs, d)
	return nil
}

func (m *memDefRepo) ListActiveExpiryDefinitions(ctx context.Context, tx repository.Tx) ([]*model.NotificationDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.NotificationDefinition
	for _, d := range m.defs {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

type memStateRepo struct{ *memStore }

func (m *memStateRepo) Set(ctx context.Context, st *model.BotState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *st
	m.states[st.TelegramID] = &cp
	return nil
}

func (m *memStateRepo) Get(ctx context.Context, tgID int64) (*model.BotState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[tgID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *memStateRepo) Clear(ctx context.Context, tgID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, tgID)
	return nil
}

func (m *memStateRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, st := range m.states {
		if st.Expired(now) {
			delete(m.states, id)
			n++
		}
	}
	return n, nil
}

// -----------------------------
// Collaborator fakes
// -----------------------------

// MockTxManager runs fn immediately with NoTX unless WithTxFunc is set.
type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// fakeProvider records remote state per identity and counts calls.
type fakeProvider struct {
	mu        sync.Mutex
	sys       model.AccessSystem
	granted   map[string]bool
	grants    int
	revokes   int
	GrantErr  error
	RevokeErr error
	OnGrant   func()
}

var _ adapter.AccessProvider = (*fakeProvider)(nil)

func newFakeProvider(sys model.AccessSystem) *fakeProvider {
	return &fakeProvider{sys: sys, granted: map[string]bool{}}
}

func (f *fakeProvider) System() model.AccessSystem { return f.sys }

func (f *fakeProvider) Grant(ctx context.Context, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants++
	if f.OnGrant != nil {
		f.OnGrant()
	}
	if f.GrantErr != nil {
		return f.GrantErr
	}
	f.granted[identity] = true
	return nil
}

func (f *fakeProvider) Revoke(ctx context.Context, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokes++
	if f.RevokeErr != nil {
		return f.RevokeErr
	}
	delete(f.granted, identity)
	return nil
}

func (f *fakeProvider) calls() (grants, revokes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grants, f.revokes
}

type sentMessage struct {
	TelegramID int64
	Text       string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	Err  error
}

var _ adapter.Notifier = (*fakeNotifier)(nil)

func (n *fakeNotifier) SendMessage(ctx context.Context, telegramID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.sent = append(n.sent, sentMessage{TelegramID: telegramID, Text: text})
	return nil
}

func (n *fakeNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestTranslator() *i18n.Translator {
	testFS := fstest.MapFS{
		"locales/en.yaml": {Data: []byte(`
subscription_activated: "activated until {{endDate}}"
subscription_renewed: "renewed until {{endDate}}"
subscription_expired: "expired {{endDate}}"
subscription_cancelled: "cancelled"
tariff_unknown: "access"
`)},
	}
	translator, _ := i18n.NewTranslator(testFS, "en")
	return translator
}

// -----------------------------
// Harness
// -----------------------------

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store     *memStore
	subs      *memSubRepo
	payments  *memPaymentRepo
	actions   *memActionRepo
	promos    *memPromoRepo
	tariffs   *memTariffRepo
	users     *memUserRepo
	defs      *memDefRepo
	states    *memStateRepo
	tm        *MockTxManager
	clock     *clock.FakeClock
	bot       *fakeNotifier
	chat      *fakeProvider
	kb        *fakeProvider
	files     *fakeProvider
	access    usecase.AccessUseCase
	notices   usecase.NotificationUseCase
	lifecycle usecase.LifecycleUseCase
	payment   usecase.PaymentUseCase
	pricing   usecase.PricingUseCase
	purchase  usecase.PurchaseUseCase
	reconcile usecase.ReconcileUseCase
}

func newHarness() *harness {
	st := newMemStore()
	h := &harness{
		store:    st,
		subs:     &memSubRepo{memStore: st},
		payments: &memPaymentRepo{st},
		actions:  &memActionRepo{st},
		promos:   &memPromoRepo{st},
		tariffs:  &memTariffRepo{st},
		users:    &memUserRepo{st},
		defs:     &memDefRepo{st},
		states:   &memStateRepo{st},
		tm:       &MockTxManager{},
		clock:    clock.NewFakeClock(testNow),
		bot:      &fakeNotifier{},
		chat:     newFakeProvider(model.AccessCommunityChat),
		kb:       newFakeProvider(model.AccessKnowledgeBase),
		files:    newFakeProvider(model.AccessFileStorage),
	}
	log := newTestLogger()
	providers := []adapter.AccessProvider{h.chat, h.kb, h.files}
	h.access = usecase.NewAccessUseCase(providers, h.subs, h.users, time.Second, log)
	h.notices = usecase.NewNotificationUseCase(h.defs, h.actions, h.users, h.tariffs, h.bot, newTestTranslator(), h.clock, "2006-01-02", log)
	h.lifecycle = usecase.NewLifecycleUseCase(h.subs, h.users, h.tariffs, h.actions, h.tm, h.access, h.notices, h.clock, log)
	h.payment = usecase.NewPaymentUseCase(h.payments, h.subs, h.actions, h.lifecycle, h.clock, log)
	h.pricing = usecase.NewPricingUseCase(h.promos, h.tariffs, h.clock, log)
	h.purchase = usecase.NewPurchaseUseCase(h.users, h.tariffs, h.subs, h.payments, h.actions, h.pricing, h.tm, h.clock, log)
	h.reconcile = usecase.NewReconcileUseCase(h.subs, h.states, h.lifecycle, h.notices, h.access, h.clock,
		usecase.ReconcileOptions{Concurrency: 4, BatchSize: 100, RetryAccess: true}, log)
	return h
}

// seedUser stores a user with every identity linked.
func (h *harness) seedUser(id string, tgID int64) *model.User {
	u := &model.User{
		ID:                 id,
		TelegramID:         tgID,
		Username:           "user" + strconv.FormatInt(tgID, 10),
		KnowledgeBaseEmail: id + "@example.com",
		StorageAccount:     "acct-" + id,
	}
	_ = h.users.Save(context.Background(), nil, u)
	return u
}

func (h *harness) seedSub(id, userID string, status model.SubscriptionStatus, end *time.Time, access model.AccessFlags) *model.Subscription {
	s := &model.Subscription{
		ID:           id,
		UserID:       userID,
		PeriodMonths: 1,
		Amount:       1000,
		Currency:     "USD",
		Status:       status,
		EndDate:      end,
		Access:       access,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	if end != nil {
		start := end.AddDate(0, -1, 0)
		s.StartDate = &start
	}
	_ = h.subs.Create(context.Background(), nil, s)
	return s
}

func (h *harness) mustSub(id string) *model.Subscription {
	s, err := h.subs.FindByID(context.Background(), nil, id)
	if err != nil {
		panic(err)
	}
	return s
}

func timePtr(t time.Time) *time.Time { return &t }

func statusPtr(s model.SubscriptionStatus) *model.SubscriptionStatus { return &s }

var allGranted = model.AccessFlags{CommunityChat: true, KnowledgeBase: true, FileStorage: true}
