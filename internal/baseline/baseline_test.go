package baseline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apsentry/apsentry/internal/database"
	"github.com/apsentry/apsentry/models"
)

var now = time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)

func seedVendorWithBills(t *testing.T, store models.Store, amounts []string) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	tenant := &models.Tenant{Name: "Test Co"}
	require.NoError(t, store.InsertTenant(ctx, tenant))
	vendor := &models.Vendor{TenantID: tenant.ID, ExternalID: "v1", Name: "Acme Supplies"}
	require.NoError(t, store.InsertVendor(ctx, vendor))

	for i, a := range amounts {
		require.NoError(t, store.UpsertBill(ctx, &models.Bill{
			TenantID:    tenant.ID,
			VendorID:    vendor.ID,
			ExternalID:  "b" + string(rune('1'+i)),
			TotalAmount: decimal.RequireFromString(a),
			TxnDate:     time.Date(2026, time.March, 1+i, 0, 0, 0, 0, time.UTC),
		}))
	}
	return tenant.ID, vendor.ID
}

func TestBaselineStatistics(t *testing.T) {
	store := database.NewMemory()
	tenantID, vendorID := seedVendorWithBills(t, store, []string{"100.00", "100.00", "100.00", "98.00"})

	calc := NewCalculator(90, zerolog.Nop())
	count, err := calc.Run(context.Background(), store, tenantID, now)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	baselines, err := store.BaselinesByTenant(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, baselines, 1)

	b := baselines[0]
	assert.Equal(t, vendorID, b.VendorID)
	assert.Equal(t, 4, b.SampleCount)
	assert.InDelta(t, 99.5, b.MeanAmount, 1e-9)
	// Sample variance with Bessel's correction: 3/3 = 1
	assert.InDelta(t, 1.0, b.StdAmount, 1e-9)
	assert.True(t, b.MinAmount.Equal(decimal.RequireFromString("98.00")))
	assert.True(t, b.MaxAmount.Equal(decimal.RequireFromString("100.00")))
	assert.Equal(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), b.WindowEnd)
	assert.Equal(t, time.Date(2025, time.December, 15, 0, 0, 0, 0, time.UTC), b.WindowStart)
}

func TestBaselineSingleBillHasZeroStd(t *testing.T) {
	store := database.NewMemory()
	tenantID, _ := seedVendorWithBills(t, store, []string{"250.00"})

	count, err := NewCalculator(90, zerolog.Nop()).Run(context.Background(), store, tenantID, now)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	baselines, err := store.BaselinesByTenant(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, baselines, 1)
	assert.Equal(t, 1, baselines[0].SampleCount)
	assert.Zero(t, baselines[0].StdAmount)
}

func TestBaselineEmptyVendorSkipped(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemory()
	tenantID, _ := seedVendorWithBills(t, store, []string{"100.00"})

	// A second vendor with no bills gets no baseline and causes no error.
	require.NoError(t, store.InsertVendor(ctx, &models.Vendor{
		TenantID: tenantID, ExternalID: "v2", Name: "Idle Vendor",
	}))

	count, err := NewCalculator(90, zerolog.Nop()).Run(ctx, store, tenantID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	baselines, err := store.BaselinesByTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, baselines, 1)
}

func TestBaselineWindowExcludesOldBills(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemory()
	tenantID, vendorID := seedVendorWithBills(t, store, []string{"100.00"})

	// Outside the 90-day window; must not affect the statistics.
	require.NoError(t, store.UpsertBill(ctx, &models.Bill{
		TenantID:    tenantID,
		VendorID:    vendorID,
		ExternalID:  "old",
		TotalAmount: decimal.NewFromInt(99999),
		TxnDate:     now.AddDate(0, 0, -91),
	}))

	count, err := NewCalculator(90, zerolog.Nop()).Run(ctx, store, tenantID, now)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	baselines, err := store.BaselinesByTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, baselines, 1)
	assert.Equal(t, 1, baselines[0].SampleCount)
	assert.InDelta(t, 100.0, baselines[0].MeanAmount, 1e-9)
}

func TestBaselineRerunOverwritesSameWindow(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemory()
	tenantID, vendorID := seedVendorWithBills(t, store, []string{"100.00"})

	calc := NewCalculator(90, zerolog.Nop())
	_, err := calc.Run(ctx, store, tenantID, now)
	require.NoError(t, err)

	// New bill arrives, same window recomputed: still one row, new stats.
	require.NoError(t, store.UpsertBill(ctx, &models.Bill{
		TenantID:    tenantID,
		VendorID:    vendorID,
		ExternalID:  "b9",
		TotalAmount: decimal.NewFromInt(200),
		TxnDate:     now.AddDate(0, 0, -1),
	}))
	_, err = calc.Run(ctx, store, tenantID, now)
	require.NoError(t, err)

	baselines, err := store.BaselinesByTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, baselines, 1)
	assert.Equal(t, 2, baselines[0].SampleCount)
	assert.InDelta(t, 150.0, baselines[0].MeanAmount, 1e-9)
}
