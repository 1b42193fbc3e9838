// Package seed loads deterministic demo fixtures so detection can be
// exercised without a live accounting connection.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apsentry/apsentry/models"
)

type billSpec struct {
	vendor   int
	amount   int64
	hasLines bool
}

// The demo set exercises every detector: the two Acme 5000s three days apart
// are duplicates, 5000 against Acme's ~1000 baseline is a price outlier, and
// the itemless 5000s are round numbers.
var billSpecs = []billSpec{
	{0, 1200, true},
	{0, 800, true},
	{0, 5000, false},
	{0, 5000, false},
	{1, 450, true},
	{1, 1100, true},
	{2, 999, false},
	{2, 5000, false},
}

var vendorNames = []string{"Acme Supplies", "TechCorp IT", "Office Depot", "CloudHost Inc", "Consulting LLC"}

// Demo creates a demo tenant with vendors and bills and returns the tenant
// ID. Bills land inside the trailing 90 days so baselines pick them up.
func Demo(ctx context.Context, store models.Store, now time.Time) (uuid.UUID, error) {
	tenant := &models.Tenant{Name: "Demo Company"}
	if err := store.InsertTenant(ctx, tenant); err != nil {
		return uuid.Nil, fmt.Errorf("seeding tenant: %w", err)
	}

	vendors := make([]*models.Vendor, len(vendorNames))
	for i, name := range vendorNames {
		vendors[i] = &models.Vendor{
			TenantID:   tenant.ID,
			ExternalID: fmt.Sprintf("v%d", i+1),
			Name:       name,
		}
		if err := store.InsertVendor(ctx, vendors[i]); err != nil {
			return uuid.Nil, fmt.Errorf("seeding vendor %q: %w", name, err)
		}
	}

	base := now.AddDate(0, 0, -90)
	for i, b := range billSpecs {
		txn := base.AddDate(0, 0, 20+i*3)
		bill := &models.Bill{
			TenantID:     tenant.ID,
			VendorID:     vendors[b.vendor].ID,
			ExternalID:   fmt.Sprintf("bill-demo-%d", i+1),
			BillNumber:   fmt.Sprintf("INV-%d", 1000+i),
			TotalAmount:  decimal.NewFromInt(b.amount),
			TxnDate:      time.Date(txn.Year(), txn.Month(), txn.Day(), 0, 0, 0, 0, time.UTC),
			HasLineItems: b.hasLines,
		}
		if err := store.UpsertBill(ctx, bill); err != nil {
			return uuid.Nil, fmt.Errorf("seeding bill %s: %w", bill.ExternalID, err)
		}
	}

	return tenant.ID, nil
}
