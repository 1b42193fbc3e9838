package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apsentry/apsentry/models"
)

// DB represents a database connection
type DB struct {
	*sql.DB
	store
}

var _ models.TxStore = (*DB)(nil)

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so every
// query below works both standalone and inside Transact.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type store struct {
	q dbtx
}

// New creates a new database connection
func New(params ConnectionParams) (*DB, error) {
	// Create PostgreSQL connection string
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Check connection with exponential backoff; the database may still be
	// starting when we are.
	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(db.Ping, backoffStrategy); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{DB: db, store: store{q: db}}, nil
}

// createTables creates the necessary tables if they don't exist. The unique
// constraints back the upsert and insert-or-skip operations: bills are unique
// per (tenant, external_id), baselines per (vendor, window), and anomalies
// per (tenant, bill, kind).
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tenants (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			alert_email TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS vendors (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			external_id TEXT NOT NULL,
			name TEXT NOT NULL,
			UNIQUE (tenant_id, external_id)
		);

		CREATE TABLE IF NOT EXISTS bills (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			vendor_id UUID NOT NULL REFERENCES vendors(id),
			external_id TEXT NOT NULL,
			bill_number TEXT NOT NULL DEFAULT '',
			total_amount NUMERIC(14,2) NOT NULL,
			txn_date DATE NOT NULL,
			has_line_items BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (tenant_id, external_id)
		);
		CREATE INDEX IF NOT EXISTS idx_bills_vendor_date ON bills (vendor_id, txn_date);

		CREATE TABLE IF NOT EXISTS vendor_baselines (
			id UUID PRIMARY KEY,
			vendor_id UUID NOT NULL REFERENCES vendors(id),
			window_start DATE NOT NULL,
			window_end DATE NOT NULL,
			sample_count INT NOT NULL,
			mean_amount DOUBLE PRECISION NOT NULL,
			std_amount DOUBLE PRECISION NOT NULL,
			min_amount NUMERIC(14,2) NOT NULL,
			max_amount NUMERIC(14,2) NOT NULL,
			UNIQUE (vendor_id, window_start, window_end)
		);

		CREATE TABLE IF NOT EXISTS anomalies (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL REFERENCES tenants(id),
			bill_id UUID REFERENCES bills(id),
			kind TEXT NOT NULL,
			severity TEXT NOT NULL,
			amount NUMERIC(14,2) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			description TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			should_alert BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL DEFAULT 'open',
			resolution_notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (tenant_id, bill_id, kind)
		);
		CREATE INDEX IF NOT EXISTS idx_anomalies_tenant_status ON anomalies (tenant_id, status);
	`)

	return err
}

// Transact runs fn inside a single transaction. Detection runs use this so a
// mid-run failure leaves no partial set of anomalies behind.
func (db *DB) Transact(ctx context.Context, fn func(models.Store) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(&store{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back after %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *store) InsertTenant(ctx context.Context, t *models.Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO tenants (id, name, alert_email, created_at)
		VALUES ($1, $2, $3, $4)
	`, t.ID, t.Name, t.AlertEmail, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting tenant: %w", err)
	}
	return nil
}

func (s *store) InsertVendor(ctx context.Context, v *models.Vendor) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO vendors (id, tenant_id, external_id, name)
		VALUES ($1, $2, $3, $4)
	`, v.ID, v.TenantID, v.ExternalID, v.Name)
	if err != nil {
		return fmt.Errorf("inserting vendor: %w", err)
	}
	return nil
}

// UpsertBill inserts a bill, or overwrites the existing row when the
// ingestion source re-delivers the same (tenant, external_id).
func (s *store) UpsertBill(ctx context.Context, b *models.Bill) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO bills (id, tenant_id, vendor_id, external_id, bill_number, total_amount, txn_date, has_line_items)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, external_id)
		DO UPDATE SET
			vendor_id = EXCLUDED.vendor_id,
			bill_number = EXCLUDED.bill_number,
			total_amount = EXCLUDED.total_amount,
			txn_date = EXCLUDED.txn_date,
			has_line_items = EXCLUDED.has_line_items
	`, b.ID, b.TenantID, b.VendorID, b.ExternalID, b.BillNumber, b.TotalAmount, b.TxnDate, b.HasLineItems)
	if err != nil {
		return fmt.Errorf("upserting bill: %w", err)
	}
	return nil
}

func (s *store) VendorsByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Vendor, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, tenant_id, external_id, name
		FROM vendors
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying vendors: %w", err)
	}
	defer rows.Close()

	var vendors []models.Vendor
	for rows.Next() {
		var v models.Vendor
		if err := rows.Scan(&v.ID, &v.TenantID, &v.ExternalID, &v.Name); err != nil {
			return nil, fmt.Errorf("scanning vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

func (s *store) BillsByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Bill, error) {
	return s.queryBills(ctx, `
		SELECT id, tenant_id, vendor_id, external_id, bill_number, total_amount, txn_date, has_line_items
		FROM bills
		WHERE tenant_id = $1
		ORDER BY txn_date
	`, tenantID)
}

func (s *store) BillsByVendorWindow(ctx context.Context, vendorID uuid.UUID, from, to time.Time) ([]models.Bill, error) {
	return s.queryBills(ctx, `
		SELECT id, tenant_id, vendor_id, external_id, bill_number, total_amount, txn_date, has_line_items
		FROM bills
		WHERE vendor_id = $1 AND txn_date >= $2 AND txn_date <= $3
		ORDER BY txn_date
	`, vendorID, from, to)
}

func (s *store) BillsByVendorAbove(ctx context.Context, vendorID uuid.UUID, min decimal.Decimal) ([]models.Bill, error) {
	return s.queryBills(ctx, `
		SELECT id, tenant_id, vendor_id, external_id, bill_number, total_amount, txn_date, has_line_items
		FROM bills
		WHERE vendor_id = $1 AND total_amount > $2
		ORDER BY txn_date
	`, vendorID, min)
}

func (s *store) queryBills(ctx context.Context, query string, args ...any) ([]models.Bill, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying bills: %w", err)
	}
	defer rows.Close()

	var bills []models.Bill
	for rows.Next() {
		var b models.Bill
		if err := rows.Scan(&b.ID, &b.TenantID, &b.VendorID, &b.ExternalID, &b.BillNumber, &b.TotalAmount, &b.TxnDate, &b.HasLineItems); err != nil {
			return nil, fmt.Errorf("scanning bill: %w", err)
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// UpsertBaseline inserts a baseline row, or overwrites the statistics of the
// existing row for the same (vendor, window_start, window_end).
func (s *store) UpsertBaseline(ctx context.Context, b *models.VendorBaseline) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO vendor_baselines (
			id, vendor_id, window_start, window_end, sample_count, mean_amount, std_amount, min_amount, max_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (vendor_id, window_start, window_end)
		DO UPDATE SET
			sample_count = EXCLUDED.sample_count,
			mean_amount = EXCLUDED.mean_amount,
			std_amount = EXCLUDED.std_amount,
			min_amount = EXCLUDED.min_amount,
			max_amount = EXCLUDED.max_amount
	`, b.ID, b.VendorID, b.WindowStart, b.WindowEnd, b.SampleCount, b.MeanAmount, b.StdAmount, b.MinAmount, b.MaxAmount)
	if err != nil {
		return fmt.Errorf("upserting baseline: %w", err)
	}
	return nil
}

func (s *store) BaselinesByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.VendorBaseline, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT b.id, b.vendor_id, b.window_start, b.window_end, b.sample_count, b.mean_amount, b.std_amount, b.min_amount, b.max_amount
		FROM vendor_baselines b
		JOIN vendors v ON v.id = b.vendor_id
		WHERE v.tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying baselines: %w", err)
	}
	defer rows.Close()

	var baselines []models.VendorBaseline
	for rows.Next() {
		var b models.VendorBaseline
		if err := rows.Scan(&b.ID, &b.VendorID, &b.WindowStart, &b.WindowEnd, &b.SampleCount, &b.MeanAmount, &b.StdAmount, &b.MinAmount, &b.MaxAmount); err != nil {
			return nil, fmt.Errorf("scanning baseline: %w", err)
		}
		baselines = append(baselines, b)
	}
	return baselines, rows.Err()
}

func (s *store) HasAnomaly(ctx context.Context, tenantID, billID uuid.UUID, kind models.AnomalyKind) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM anomalies
			WHERE tenant_id = $1 AND bill_id = $2 AND kind = $3
		)
	`, tenantID, billID, kind).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking anomaly: %w", err)
	}
	return exists, nil
}

// InsertAnomaly writes a finding, relying on the (tenant, bill, kind)
// constraint for idempotency. A conflict means the bill is already flagged
// for this kind, which is expected and not an error.
func (s *store) InsertAnomaly(ctx context.Context, a *models.Anomaly) (bool, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.StatusOpen
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return false, fmt.Errorf("encoding anomaly metadata: %w", err)
	}

	billID := uuid.NullUUID{}
	if a.BillID != nil {
		billID = uuid.NullUUID{UUID: *a.BillID, Valid: true}
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO anomalies (
			id, tenant_id, bill_id, kind, severity, amount, confidence, description, metadata, should_alert, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id, bill_id, kind) DO NOTHING
	`, a.ID, a.TenantID, billID, a.Kind, a.Severity, a.Amount, a.Confidence, a.Description, meta, a.ShouldAlert, a.Status, a.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("inserting anomaly: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting anomaly: %w", err)
	}
	return n == 1, nil
}

func (s *store) OpenAlerts(ctx context.Context, tenantID uuid.UUID) ([]models.Anomaly, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, tenant_id, bill_id, kind, severity, amount, confidence, description, metadata, should_alert, status, created_at
		FROM anomalies
		WHERE tenant_id = $1 AND should_alert AND status = 'open'
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var anomalies []models.Anomaly
	for rows.Next() {
		var (
			a      models.Anomaly
			billID uuid.NullUUID
			meta   []byte
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &billID, &a.Kind, &a.Severity, &a.Amount, &a.Confidence, &a.Description, &meta, &a.ShouldAlert, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning anomaly: %w", err)
		}
		if billID.Valid {
			id := billID.UUID
			a.BillID = &id
		}
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decoding anomaly metadata: %w", err)
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}
