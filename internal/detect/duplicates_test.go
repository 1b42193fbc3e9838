package detect

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apsentry/apsentry/models"
)

func newDuplicateDetector() *DuplicateDetector {
	return &DuplicateDetector{
		DayWindow:      7,
		AlertMinAmount: decimal.NewFromInt(500),
	}
}

func TestDuplicatePair(t *testing.T) {
	ctx := context.Background()
	store := newMemory()
	tenantID, vendorID := seedTenantVendor(t, store)

	first := addBill(t, store, tenantID, vendorID, "b1", "5000.00", date(2026, time.March, 2), true)
	second := addBill(t, store, tenantID, vendorID, "b2", "5000.00", date(2026, time.March, 5), true)

	d := newDuplicateDetector()
	count, err := d.Run(ctx, store, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	alerts := openAlerts(t, store, tenantID)
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, models.KindDuplicate, a.Kind)
	assert.Equal(t, models.SeverityHigh, a.Severity)
	assert.Equal(t, 0.95, a.Confidence)
	assert.True(t, a.ShouldAlert)
	require.NotNil(t, a.BillID)
	require.NotNil(t, a.Metadata.Duplicate)
	flagged := *a.BillID
	related := a.Metadata.Duplicate.RelatedBillID
	assert.NotEqual(t, flagged, related)
	assert.Contains(t, []string{first.ID.String(), second.ID.String()}, flagged.String())
	assert.Contains(t, []string{first.ID.String(), second.ID.String()}, related.String())

	// Re-running on unchanged data creates nothing new.
	count, err = d.Run(ctx, store, tenantID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDuplicateSeverityBoundary(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   models.Severity
	}{
		{"exactly 1000", "1000.00", models.SeverityHigh},
		{"just under 1000", "999.99", models.SeverityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemory()
			tenantID, vendorID := seedTenantVendor(t, store)
			addBill(t, store, tenantID, vendorID, "b1", tt.amount, date(2026, time.March, 2), true)
			addBill(t, store, tenantID, vendorID, "b2", tt.amount, date(2026, time.March, 4), true)

			count, err := newDuplicateDetector().Run(context.Background(), store, tenantID)
			require.NoError(t, err)
			require.Equal(t, 1, count)

			alerts := openAlerts(t, store, tenantID)
			require.Len(t, alerts, 1)
			assert.Equal(t, tt.want, alerts[0].Severity)
		})
	}
}

func TestDuplicateOutsideWindow(t *testing.T) {
	store := newMemory()
	tenantID, vendorID := seedTenantVendor(t, store)
	addBill(t, store, tenantID, vendorID, "b1", "5000.00", date(2026, time.March, 2), true)
	addBill(t, store, tenantID, vendorID, "b2", "5000.00", date(2026, time.March, 12), true)

	count, err := newDuplicateDetector().Run(context.Background(), store, tenantID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDuplicateDifferentAmountsNotGrouped(t *testing.T) {
	store := newMemory()
	tenantID, vendorID := seedTenantVendor(t, store)
	addBill(t, store, tenantID, vendorID, "b1", "100.00", date(2026, time.March, 2), true)
	addBill(t, store, tenantID, vendorID, "b2", "100.50", date(2026, time.March, 3), true)

	count, err := newDuplicateDetector().Run(context.Background(), store, tenantID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

// A cluster of three same-amount bills within the window yields at least one
// finding and never more than one per bill, whatever the iteration order.
func TestDuplicateCluster(t *testing.T) {
	ctx := context.Background()
	store := newMemory()
	tenantID, vendorID := seedTenantVendor(t, store)

	bills := []models.Bill{
		addBill(t, store, tenantID, vendorID, "b1", "2500.00", date(2026, time.March, 2), true),
		addBill(t, store, tenantID, vendorID, "b2", "2500.00", date(2026, time.March, 4), true),
		addBill(t, store, tenantID, vendorID, "b3", "2500.00", date(2026, time.March, 6), true),
	}

	d := newDuplicateDetector()
	count, err := d.Run(ctx, store, tenantID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 1)
	assert.LessOrEqual(t, count, len(bills))

	flagged := 0
	for _, b := range bills {
		exists, err := store.HasAnomaly(ctx, tenantID, b.ID, models.KindDuplicate)
		require.NoError(t, err)
		if exists {
			flagged++
		}
	}
	assert.Equal(t, count, flagged)

	count, err = d.Run(ctx, store, tenantID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
