package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apsentry/apsentry/models"
)

// Memory is an in-memory Store used by tests and demo seeding. It honors the
// same contracts as the Postgres store: (tenant, external_id) bill upserts,
// (vendor, window) baseline upserts, (tenant, bill, kind) insert-or-skip,
// and rollback of every write made inside a failed Transact.
type Memory struct {
	mu sync.Mutex
	st *memState
}

var _ models.TxStore = (*Memory)(nil)
var _ models.Store = (*memTx)(nil)

type memState struct {
	tenants   map[uuid.UUID]models.Tenant
	vendors   map[uuid.UUID]models.Vendor
	bills     map[uuid.UUID]models.Bill
	baselines map[uuid.UUID]models.VendorBaseline
	anomalies map[uuid.UUID]models.Anomaly
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{st: newMemState()}
}

func newMemState() *memState {
	return &memState{
		tenants:   make(map[uuid.UUID]models.Tenant),
		vendors:   make(map[uuid.UUID]models.Vendor),
		bills:     make(map[uuid.UUID]models.Bill),
		baselines: make(map[uuid.UUID]models.VendorBaseline),
		anomalies: make(map[uuid.UUID]models.Anomaly),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.tenants {
		c.tenants[k] = v
	}
	for k, v := range s.vendors {
		c.vendors[k] = v
	}
	for k, v := range s.bills {
		c.bills[k] = v
	}
	for k, v := range s.baselines {
		c.baselines[k] = v
	}
	for k, v := range s.anomalies {
		c.anomalies[k] = v
	}
	return c
}

// Transact runs fn against the live state under the store lock and restores
// a snapshot if fn fails, so a failed run leaves no partial writes.
func (m *Memory) Transact(ctx context.Context, fn func(models.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&memTx{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// memTx exposes the state to a Transact callback without re-locking.
type memTx struct {
	st *memState
}

func (m *Memory) InsertTenant(ctx context.Context, t *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertTenant(t)
}

func (m *Memory) InsertVendor(ctx context.Context, v *models.Vendor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertVendor(v)
}

func (m *Memory) UpsertBill(ctx context.Context, b *models.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.upsertBill(b)
}

func (m *Memory) VendorsByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.vendorsByTenant(tenantID), nil
}

func (m *Memory) BillsByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.billsByTenant(tenantID), nil
}

func (m *Memory) BillsByVendorWindow(ctx context.Context, vendorID uuid.UUID, from, to time.Time) ([]models.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.billsByVendorWindow(vendorID, from, to), nil
}

func (m *Memory) BillsByVendorAbove(ctx context.Context, vendorID uuid.UUID, min decimal.Decimal) ([]models.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.billsByVendorAbove(vendorID, min), nil
}

func (m *Memory) UpsertBaseline(ctx context.Context, b *models.VendorBaseline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.upsertBaseline(b)
}

func (m *Memory) BaselinesByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.VendorBaseline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.baselinesByTenant(tenantID), nil
}

func (m *Memory) HasAnomaly(ctx context.Context, tenantID, billID uuid.UUID, kind models.AnomalyKind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.hasAnomaly(tenantID, billID, kind), nil
}

func (m *Memory) InsertAnomaly(ctx context.Context, a *models.Anomaly) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertAnomaly(a)
}

func (m *Memory) OpenAlerts(ctx context.Context, tenantID uuid.UUID) ([]models.Anomaly, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.openAlerts(tenantID), nil
}

func (t *memTx) InsertTenant(ctx context.Context, tn *models.Tenant) error {
	return t.st.insertTenant(tn)
}

func (t *memTx) InsertVendor(ctx context.Context, v *models.Vendor) error {
	return t.st.insertVendor(v)
}

func (t *memTx) UpsertBill(ctx context.Context, b *models.Bill) error {
	return t.st.upsertBill(b)
}

func (t *memTx) VendorsByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Vendor, error) {
	return t.st.vendorsByTenant(tenantID), nil
}

func (t *memTx) BillsByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Bill, error) {
	return t.st.billsByTenant(tenantID), nil
}

func (t *memTx) BillsByVendorWindow(ctx context.Context, vendorID uuid.UUID, from, to time.Time) ([]models.Bill, error) {
	return t.st.billsByVendorWindow(vendorID, from, to), nil
}

func (t *memTx) BillsByVendorAbove(ctx context.Context, vendorID uuid.UUID, min decimal.Decimal) ([]models.Bill, error) {
	return t.st.billsByVendorAbove(vendorID, min), nil
}

func (t *memTx) UpsertBaseline(ctx context.Context, b *models.VendorBaseline) error {
	return t.st.upsertBaseline(b)
}

func (t *memTx) BaselinesByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.VendorBaseline, error) {
	return t.st.baselinesByTenant(tenantID), nil
}

func (t *memTx) HasAnomaly(ctx context.Context, tenantID, billID uuid.UUID, kind models.AnomalyKind) (bool, error) {
	return t.st.hasAnomaly(tenantID, billID, kind), nil
}

func (t *memTx) InsertAnomaly(ctx context.Context, a *models.Anomaly) (bool, error) {
	return t.st.insertAnomaly(a)
}

func (t *memTx) OpenAlerts(ctx context.Context, tenantID uuid.UUID) ([]models.Anomaly, error) {
	return t.st.openAlerts(tenantID), nil
}

func (s *memState) insertTenant(t *models.Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.tenants[t.ID] = *t
	return nil
}

func (s *memState) insertVendor(v *models.Vendor) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	for _, other := range s.vendors {
		if other.TenantID == v.TenantID && other.ExternalID == v.ExternalID {
			return fmt.Errorf("vendor %q already exists for tenant %s", v.ExternalID, v.TenantID)
		}
	}
	s.vendors[v.ID] = *v
	return nil
}

func (s *memState) upsertBill(b *models.Bill) error {
	for id, other := range s.bills {
		if other.TenantID == b.TenantID && other.ExternalID == b.ExternalID {
			b.ID = id
			s.bills[id] = *b
			return nil
		}
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	s.bills[b.ID] = *b
	return nil
}

func (s *memState) vendorsByTenant(tenantID uuid.UUID) []models.Vendor {
	var vendors []models.Vendor
	for _, v := range s.vendors {
		if v.TenantID == tenantID {
			vendors = append(vendors, v)
		}
	}
	sort.Slice(vendors, func(i, j int) bool { return vendors[i].Name < vendors[j].Name })
	return vendors
}

func (s *memState) billsByTenant(tenantID uuid.UUID) []models.Bill {
	var bills []models.Bill
	for _, b := range s.bills {
		if b.TenantID == tenantID {
			bills = append(bills, b)
		}
	}
	sortBills(bills)
	return bills
}

func (s *memState) billsByVendorWindow(vendorID uuid.UUID, from, to time.Time) []models.Bill {
	var bills []models.Bill
	for _, b := range s.bills {
		if b.VendorID == vendorID && !b.TxnDate.Before(from) && !b.TxnDate.After(to) {
			bills = append(bills, b)
		}
	}
	sortBills(bills)
	return bills
}

func (s *memState) billsByVendorAbove(vendorID uuid.UUID, min decimal.Decimal) []models.Bill {
	var bills []models.Bill
	for _, b := range s.bills {
		if b.VendorID == vendorID && b.TotalAmount.GreaterThan(min) {
			bills = append(bills, b)
		}
	}
	sortBills(bills)
	return bills
}

func sortBills(bills []models.Bill) {
	sort.Slice(bills, func(i, j int) bool { return bills[i].TxnDate.Before(bills[j].TxnDate) })
}

func (s *memState) upsertBaseline(b *models.VendorBaseline) error {
	for id, other := range s.baselines {
		if other.VendorID == b.VendorID && other.WindowStart.Equal(b.WindowStart) && other.WindowEnd.Equal(b.WindowEnd) {
			b.ID = id
			s.baselines[id] = *b
			return nil
		}
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	s.baselines[b.ID] = *b
	return nil
}

func (s *memState) baselinesByTenant(tenantID uuid.UUID) []models.VendorBaseline {
	var baselines []models.VendorBaseline
	for _, b := range s.baselines {
		if v, ok := s.vendors[b.VendorID]; ok && v.TenantID == tenantID {
			baselines = append(baselines, b)
		}
	}
	return baselines
}

func (s *memState) hasAnomaly(tenantID, billID uuid.UUID, kind models.AnomalyKind) bool {
	for _, a := range s.anomalies {
		if a.TenantID == tenantID && a.Kind == kind && a.BillID != nil && *a.BillID == billID {
			return true
		}
	}
	return false
}

func (s *memState) insertAnomaly(a *models.Anomaly) (bool, error) {
	if a.BillID != nil && s.hasAnomaly(a.TenantID, *a.BillID, a.Kind) {
		return false, nil
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.StatusOpen
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.anomalies[a.ID] = *a
	return true, nil
}

func (s *memState) openAlerts(tenantID uuid.UUID) []models.Anomaly {
	var anomalies []models.Anomaly
	for _, a := range s.anomalies {
		if a.TenantID == tenantID && a.ShouldAlert && a.Status == models.StatusOpen {
			anomalies = append(anomalies, a)
		}
	}
	sort.Slice(anomalies, func(i, j int) bool { return anomalies[i].CreatedAt.After(anomalies[j].CreatedAt) })
	return anomalies
}
