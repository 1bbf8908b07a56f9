package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"hgnc/internal/model"
	"hgnc/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// memStore 内存版存储，事务失败时恢复快照
type memStore struct {
	users   map[string]*model.User
	entries map[model.Stream][]*model.LedgerEntry
	items   []*model.OrderItem
	records map[int64]*model.FulfillmentRecord
	outbox  []*model.OutboxMessage

	nextRecordID int64
	clock        time.Time

	// 故障注入：key 为 "操作:参数"
	faults map[string]error
	// IncrementBalance 按用户计数
	increments map[string]int
	txCount    int
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[string]*model.User),
		entries:    make(map[model.Stream][]*model.LedgerEntry),
		records:    make(map[int64]*model.FulfillmentRecord),
		faults:     make(map[string]error),
		increments: make(map[string]int),
		clock:      time.Date(2024, 5, 20, 10, 0, 0, 0, time.Local),
	}
}

type snapshot struct {
	users   map[string]model.User
	entries map[model.Stream][]*model.LedgerEntry
	items   []model.OrderItem
	records map[int64]model.FulfillmentRecord
	outbox  []*model.OutboxMessage
}

func (m *memStore) snapshot() snapshot {
	snap := snapshot{
		users:   make(map[string]model.User, len(m.users)),
		entries: make(map[model.Stream][]*model.LedgerEntry, len(m.entries)),
		records: make(map[int64]model.FulfillmentRecord, len(m.records)),
		outbox:  append([]*model.OutboxMessage(nil), m.outbox...),
	}
	for id, u := range m.users {
		snap.users[id] = *u
	}
	for s, list := range m.entries {
		snap.entries[s] = append([]*model.LedgerEntry(nil), list...)
	}
	for _, it := range m.items {
		snap.items = append(snap.items, *it)
	}
	for id, r := range m.records {
		snap.records[id] = *r
	}
	return snap
}

func (m *memStore) restore(snap snapshot) {
	for id := range m.users {
		if _, ok := snap.users[id]; !ok {
			delete(m.users, id)
		}
	}
	for id, u := range snap.users {
		if cur, ok := m.users[id]; ok {
			*cur = u
		} else {
			u := u
			m.users[id] = &u
		}
	}
	m.entries = snap.entries
	for i := range m.items {
		if i < len(snap.items) {
			*m.items[i] = snap.items[i]
		}
	}
	m.items = m.items[:len(snap.items)]
	for id := range m.records {
		if _, ok := snap.records[id]; !ok {
			delete(m.records, id)
		}
	}
	for id, r := range snap.records {
		if cur, ok := m.records[id]; ok {
			*cur = r
		} else {
			r := r
			m.records[id] = &r
		}
	}
	m.outbox = snap.outbox
}

func (m *memStore) Transaction(_ context.Context, fn func(tx *gorm.DB) error) error {
	m.txCount++
	snap := m.snapshot()
	if err := fn(nil); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) fault(op, arg string) error {
	return m.faults[op+":"+arg]
}

func (m *memStore) inject(op, arg string, err error) {
	m.faults[op+":"+arg] = err
}

func (m *memStore) clear(op, arg string) {
	delete(m.faults, op+":"+arg)
}

func (m *memStore) addUser(id, code, parent string, role model.Role) *model.User {
	u := &model.User{
		ID:           id,
		ReferralCode: code,
		ParentCode:   parent,
		Role:         role,
		Alive:        true,
		Gold:         decimal.Zero,
		Remain:       decimal.Zero,
		Cost:         decimal.Zero,
	}
	m.users[id] = u
	return u
}

func (m *memStore) stream(s model.Stream, typ string) []*model.LedgerEntry {
	var out []*model.LedgerEntry
	for _, e := range m.entries[s] {
		if typ == "" || e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// ============================================================================
// UserRepository
// ============================================================================

type memUsers struct{ *memStore }

func (r memUsers) Create(_ context.Context, _ *gorm.DB, user *model.User) error {
	if err := r.fault("CreateUser", user.ReferralCode); err != nil {
		return err
	}
	for _, u := range r.users {
		if u.ReferralCode == user.ReferralCode {
			return repository.ErrDuplicateReferralCode
		}
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r memUsers) GetByID(_ context.Context, _ *gorm.DB, id string) (*model.User, error) {
	u, ok := r.users[id]
	if !ok || !u.Alive {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByIDForUpdate(_ context.Context, _ *gorm.DB, id string) (*model.User, error) {
	if err := r.fault("Lock", id); err != nil {
		return nil, err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByPhone(_ context.Context, phone string) (*model.User, error) {
	for _, u := range r.users {
		if u.Phone == phone && u.Alive {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r memUsers) FindByReferralCode(_ context.Context, code string) (*model.User, error) {
	if err := r.fault("FindByReferralCode", code); err != nil {
		return nil, err
	}
	for _, u := range r.users {
		if u.ReferralCode == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memUsers) ListByParentCodes(_ context.Context, codes []string) ([]*model.User, error) {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	var out []*model.User
	for _, u := range r.users {
		if set[u.ParentCode] {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memUsers) IncrementBalance(_ context.Context, _ *gorm.DB, id string, delta model.BalanceDelta) error {
	if err := r.fault("IncrementBalance", id); err != nil {
		return err
	}
	if delta.IsZero() {
		return nil
	}
	u, ok := r.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	*u = delta.Apply(*u)
	r.increments[id]++
	return nil
}

func (r memUsers) DeductGold(_ context.Context, _ *gorm.DB, id string, amount decimal.Decimal) error {
	u, ok := r.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	if u.Gold.LessThan(amount) {
		return repository.ErrBalanceNotEnough
	}
	u.Gold = u.Gold.Sub(amount)
	u.Version++
	return nil
}

func (r memUsers) update(id string, fn func(u *model.User)) error {
	u, ok := r.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	fn(u)
	return nil
}

func (r memUsers) UpdateRole(_ context.Context, _ *gorm.DB, id string, role model.Role) error {
	if err := r.fault("UpdateRole", id); err != nil {
		return err
	}
	return r.update(id, func(u *model.User) { u.Role = role })
}

func (r memUsers) UpdatePassword(_ context.Context, _ *gorm.DB, id, hash string) error {
	return r.update(id, func(u *model.User) { u.Pwd = hash })
}

func (r memUsers) UpdatePhone(_ context.Context, _ *gorm.DB, id, phone string) error {
	return r.update(id, func(u *model.User) { u.Phone = phone })
}

func (r memUsers) SetAlive(_ context.Context, _ *gorm.DB, id string, alive bool) error {
	return r.update(id, func(u *model.User) { u.Alive = alive })
}

func (r memUsers) ListPointHolders(_ context.Context, afterID string, limit int) ([]*model.User, error) {
	var out []*model.User
	for _, u := range r.users {
		if u.ComPoint > 0 && u.ID > afterID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ============================================================================
// LedgerRepository
// ============================================================================

type memLedger struct{ *memStore }

func (r memLedger) Append(_ context.Context, _ *gorm.DB, stream model.Stream, entries ...*model.LedgerEntry) error {
	if err := r.fault("Append", string(stream)); err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID == "" {
			e.ID = repository.NewEntryID()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = r.clock
		}
		r.entries[stream] = append(r.entries[stream], e)
	}
	return nil
}

func (r memLedger) SumByType(_ context.Context, stream model.Stream, influencer, typ string, start, end time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range r.entries[stream] {
		if e.Influencer != influencer || e.Type != typ {
			continue
		}
		if e.CreatedAt.Before(start) || !e.CreatedAt.Before(end) {
			continue
		}
		v, err := decimal.NewFromString(e.Description)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	return total, nil
}

func (r memLedger) List(_ context.Context, q model.LedgerQuery) ([]*model.LedgerEntry, int64, error) {
	types := make(map[string]bool, len(q.Types))
	for _, t := range q.Types {
		types[t] = true
	}
	var matched []*model.LedgerEntry
	for _, e := range r.entries[q.Stream] {
		if e.Influencer != q.Influencer {
			continue
		}
		if len(types) > 0 && !types[e.Type] {
			continue
		}
		if !q.Start.IsZero() && e.CreatedAt.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && !e.CreatedAt.Before(q.End) {
			continue
		}
		matched = append(matched, e)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	from := (q.Page - 1) * q.PageSize
	if from >= len(matched) {
		return nil, total, nil
	}
	to := from + q.PageSize
	if to > len(matched) {
		to = len(matched)
	}
	return matched[from:to], total, nil
}

// ============================================================================
// OrderRepository / FulfillmentRepository / OutboxRepository
// ============================================================================

type memOrders struct{ *memStore }

func (m *memStore) addOrder(orderID int64, userID, status string, prices ...string) {
	for i, p := range prices {
		m.items = append(m.items, &model.OrderItem{
			ID:        int64(len(m.items) + 1),
			OrderID:   orderID,
			UserID:    userID,
			GoodsID:   fmt.Sprintf("g%d", i),
			Price:     decimal.RequireFromString(p),
			PointRate: decimal.Zero,
			Status:    status,
			Alive:     true,
		})
	}
}

func (r memOrders) ListItems(_ context.Context, _ *gorm.DB, orderID int64) ([]*model.OrderItem, error) {
	var out []*model.OrderItem
	for _, it := range r.items {
		if it.OrderID == orderID && it.Alive {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memOrders) UpdateStatus(_ context.Context, _ *gorm.DB, orderID int64, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return repository.ErrOrderStatusInvalid
	}
	n := 0
	for _, it := range r.items {
		if it.OrderID == orderID && it.Status == fromStatus && it.Alive {
			it.Status = toStatus
			n++
		}
	}
	if n == 0 {
		return repository.ErrOrderStatusInvalid
	}
	return nil
}

func (m *memStore) orderStatus(orderID int64) string {
	for _, it := range m.items {
		if it.OrderID == orderID {
			return it.Status
		}
	}
	return ""
}

type memRecords struct{ *memStore }

func (r memRecords) Create(_ context.Context, _ *gorm.DB, record *model.FulfillmentRecord) error {
	for _, existing := range r.records {
		if existing.OrderID == record.OrderID {
			return fmt.Errorf("duplicate order_id %d", record.OrderID)
		}
	}
	r.nextRecordID++
	record.ID = r.nextRecordID
	record.UpdatedAt = r.clock
	cp := *record
	r.records[record.ID] = &cp
	return nil
}

func (r memRecords) GetByOrderID(_ context.Context, _ *gorm.DB, orderID int64) (*model.FulfillmentRecord, error) {
	for _, rec := range r.records {
		if rec.OrderID == orderID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memRecords) MarkStep(_ context.Context, _ *gorm.DB, id int64, step model.FulfillmentStep, status, lastErr string) error {
	rec, ok := r.records[id]
	if !ok {
		return repository.ErrRecordNotFound
	}
	rec.SetStepStatus(step, status)
	if status == model.StepStatusFailed {
		rec.LastError = lastErr
	}
	rec.UpdatedAt = r.clock
	return nil
}

func (r memRecords) IncrementAttempts(_ context.Context, _ *gorm.DB, id int64) error {
	rec, ok := r.records[id]
	if !ok {
		return repository.ErrRecordNotFound
	}
	rec.Attempts++
	return nil
}

func (r memRecords) ListUnsettled(_ context.Context, before time.Time, maxAttempts, limit int) ([]*model.FulfillmentRecord, error) {
	var out []*model.FulfillmentRecord
	for _, rec := range r.records {
		if rec.Settled() || rec.Attempts >= maxAttempts || !rec.UpdatedAt.Before(before) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) record(orderID int64) *model.FulfillmentRecord {
	for _, rec := range m.records {
		if rec.OrderID == orderID {
			return rec
		}
	}
	return nil
}

type memOutbox struct{ *memStore }

func (r memOutbox) CreateEvent(_ context.Context, _ *gorm.DB, topic, key string, event interface{}) error {
	if err := r.fault("Outbox", topic); err != nil {
		return err
	}
	r.outbox = append(r.outbox, &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		Payload:    fmt.Sprintf("%+v", event),
		Status:     model.OutboxStatusPending,
	})
	return nil
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
