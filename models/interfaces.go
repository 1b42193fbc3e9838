package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the persistence port consumed by the detection core. Bill and
// vendor writes exist only for ingestion-shaped callers (seeding, tests);
// detectors read bills and write baselines and anomalies.
type Store interface {
	InsertTenant(ctx context.Context, t *Tenant) error
	InsertVendor(ctx context.Context, v *Vendor) error
	// UpsertBill inserts a bill or, on a (tenant, external_id) conflict,
	// overwrites the existing row. Mirrors the ingestion contract.
	UpsertBill(ctx context.Context, b *Bill) error

	VendorsByTenant(ctx context.Context, tenantID uuid.UUID) ([]Vendor, error)
	// BillsByTenant returns the tenant's bills ordered by transaction date.
	BillsByTenant(ctx context.Context, tenantID uuid.UUID) ([]Bill, error)
	// BillsByVendorWindow returns a vendor's bills with transaction date in
	// [from, to], inclusive on both ends.
	BillsByVendorWindow(ctx context.Context, vendorID uuid.UUID, from, to time.Time) ([]Bill, error)
	// BillsByVendorAbove returns a vendor's bills with amount strictly
	// greater than min.
	BillsByVendorAbove(ctx context.Context, vendorID uuid.UUID, min decimal.Decimal) ([]Bill, error)

	// UpsertBaseline inserts a baseline or overwrites the statistics of the
	// existing row for the same (vendor, window_start, window_end).
	UpsertBaseline(ctx context.Context, b *VendorBaseline) error
	BaselinesByTenant(ctx context.Context, tenantID uuid.UUID) ([]VendorBaseline, error)

	HasAnomaly(ctx context.Context, tenantID, billID uuid.UUID, kind AnomalyKind) (bool, error)
	// InsertAnomaly writes a new finding. It returns false with a nil error
	// when the (tenant, bill, kind) uniqueness constraint is hit: the finding
	// already exists and the insert was skipped.
	InsertAnomaly(ctx context.Context, a *Anomaly) (bool, error)
	// OpenAlerts returns anomalies with should_alert set and status open,
	// newest first. Consumed by the notification collaborator.
	OpenAlerts(ctx context.Context, tenantID uuid.UUID) ([]Anomaly, error)
}

// TxStore is a Store whose writes can be grouped into one atomic unit.
type TxStore interface {
	Store
	// Transact runs fn against a transaction-scoped Store. If fn returns an
	// error every write made inside it is rolled back.
	Transact(ctx context.Context, fn func(Store) error) error
}
