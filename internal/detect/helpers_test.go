package detect

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/apsentry/apsentry/internal/database"
	"github.com/apsentry/apsentry/models"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func seedTenantVendor(t *testing.T, store models.Store) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	tenant := &models.Tenant{Name: "Test Co"}
	require.NoError(t, store.InsertTenant(ctx, tenant))

	vendor := &models.Vendor{TenantID: tenant.ID, ExternalID: "v1", Name: "Acme Supplies"}
	require.NoError(t, store.InsertVendor(ctx, vendor))

	return tenant.ID, vendor.ID
}

func addBill(t *testing.T, store models.Store, tenantID, vendorID uuid.UUID, extID, amount string, txn time.Time, hasLineItems bool) models.Bill {
	t.Helper()
	b := &models.Bill{
		TenantID:     tenantID,
		VendorID:     vendorID,
		ExternalID:   extID,
		TotalAmount:  decimal.RequireFromString(amount),
		TxnDate:      txn,
		HasLineItems: hasLineItems,
	}
	require.NoError(t, store.UpsertBill(context.Background(), b))
	return *b
}

func openAlerts(t *testing.T, store models.Store, tenantID uuid.UUID) []models.Anomaly {
	t.Helper()
	anomalies, err := store.OpenAlerts(context.Background(), tenantID)
	require.NoError(t, err)
	return anomalies
}

func newMemory() *database.Memory {
	return database.NewMemory()
}
