package detect

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/apsentry/apsentry/models"
)

var oneThousand = decimal.NewFromInt(1000)

// DuplicateDetector flags bills with the same vendor and amount within a day
// window. Amounts are compared rounded to the smallest currency unit.
type DuplicateDetector struct {
	DayWindow      int
	AlertMinAmount decimal.Decimal
	Logger         zerolog.Logger
}

func (d *DuplicateDetector) Kind() models.AnomalyKind { return models.KindDuplicate }

func (d *DuplicateDetector) Run(ctx context.Context, store models.Store, tenantID uuid.UUID) (int, error) {
	bills, err := store.BillsByTenant(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("loading bills: %w", err)
	}

	type groupKey struct {
		vendorID uuid.UUID
		amount   string
	}
	groups := make(map[groupKey][]models.Bill)
	for _, b := range bills {
		key := groupKey{vendorID: b.VendorID, amount: b.TotalAmount.Round(2).String()}
		groups[key] = append(groups[key], b)
	}

	count := 0
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		for i, bill := range group {
			for _, other := range group[i+1:] {
				if absDayDiff(bill, other) > d.DayWindow {
					continue
				}
				// One duplicate finding per bill; the first qualifying pair
				// wins, further pairs for the same bill are skipped.
				exists, err := store.HasAnomaly(ctx, tenantID, bill.ID, models.KindDuplicate)
				if err != nil {
					return count, fmt.Errorf("checking existing finding: %w", err)
				}
				if exists {
					continue
				}

				billID := bill.ID
				inserted, err := store.InsertAnomaly(ctx, &models.Anomaly{
					TenantID:    tenantID,
					BillID:      &billID,
					Kind:        models.KindDuplicate,
					Severity:    duplicateSeverity(bill.TotalAmount),
					Amount:      bill.TotalAmount,
					Confidence:  0.95,
					Description: fmt.Sprintf("Possible duplicate: same vendor and amount within %d days", d.DayWindow),
					Metadata: models.AnomalyMetadata{
						Duplicate: &models.DuplicateMeta{RelatedBillID: other.ID},
					},
					ShouldAlert: bill.TotalAmount.GreaterThanOrEqual(d.AlertMinAmount),
				})
				if err != nil {
					return count, fmt.Errorf("writing finding: %w", err)
				}
				if inserted {
					count++
					d.Logger.Debug().
						Str("bill_id", bill.ID.String()).
						Str("related_bill_id", other.ID.String()).
						Str("amount", bill.TotalAmount.String()).
						Msg("Duplicate flagged")
				}
			}
		}
	}
	return count, nil
}

func duplicateSeverity(amount decimal.Decimal) models.Severity {
	if amount.GreaterThanOrEqual(oneThousand) {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}
